// -----------------------------------------------------------------------
// Execution progress and result types emitted by the job executor
// -----------------------------------------------------------------------

package models

// JobStep is one stage of the execution pipeline.
type JobStep string

const (
	StepQueued          JobStep = "queued"
	StepNavigating      JobStep = "navigating"
	StepPageLoaded      JobStep = "page_loaded"
	StepFetching        JobStep = "fetching"
	StepGeneratingProof JobStep = "generating_proof"
	StepSubmittingTx    JobStep = "submitting_tx"
	StepTxConfirmed     JobStep = "tx_confirmed"
	StepComplete        JobStep = "complete"
	StepFailed          JobStep = "failed"
)

// JobProgress is a transient progress tick for one execution.
type JobProgress struct {
	JobID    uint64  `json:"job_id"`
	Step     JobStep `json:"step"`
	Progress int     `json:"progress"` // 0-100
	Message  string  `json:"message"`
}

// Proof is the opaque output of the proof-generation capability. The
// executor assumes nothing about the scheme beyond the hex payload.
type Proof struct {
	Data    string    `json:"data"`    // Hex-encoded proof data
	Version string    `json:"version"` // Protocol version
	Meta    ProofMeta `json:"meta"`
}

type ProofMeta struct {
	NotaryURL string `json:"notaryUrl"`
}

// JobResult is the terminal outcome of one execution attempt.
type JobResult struct {
	JobID         uint64 `json:"job_id"`
	Success       bool   `json:"success"`
	Proof         *Proof `json:"proof,omitempty"`
	ResultPayload string `json:"result_payload,omitempty"`
	TxHash        string `json:"tx_hash,omitempty"`
	Error         string `json:"error,omitempty"`
}

// QueueStatus is the queue processor's instantaneous state.
type QueueStatus string

const (
	QueueIdle       QueueStatus = "idle"
	QueueProcessing QueueStatus = "processing"
	QueuePaused     QueueStatus = "paused"
)

// WorkerStatus is a derived snapshot of the whole engine, recomputed on
// demand from live component state and pushed to subscribers.
type WorkerStatus struct {
	TabOpen         bool         `json:"tab_open"`
	TabID           string       `json:"tab_id,omitempty"`
	AutoMode        bool         `json:"auto_mode"`
	QueueLength     int          `json:"queue_length"`
	CurrentJob      *JobWithSpec `json:"current_job,omitempty"`
	CurrentStep     JobStep      `json:"current_step,omitempty"`
	CurrentProgress int          `json:"current_progress"`
}
