// -----------------------------------------------------------------------
// Persistent store records - followed specs, active jobs, job history
// -----------------------------------------------------------------------

package models

import "time"

// FollowedSpec is a spec the operator monitors for new jobs.
// Keyed by (wallet address, spec id).
type FollowedSpec struct {
	SpecID        uint64    `json:"spec_id" badgerhold:"index"`
	WalletAddress string    `json:"wallet_address" badgerhold:"index"`
	MainDomain    string    `json:"main_domain"`
	MinBounty     float64   `json:"min_bounty"` // ETH; 0 = any bounty accepted
	AutoClaim     bool      `json:"auto_claim"`
	CreatedAt     time.Time `json:"created_at"`
}

// ActiveJobStatus is the store-level lifecycle of a job being worked.
type ActiveJobStatus string

const (
	ActiveJobPending         ActiveJobStatus = "pending"
	ActiveJobNavigating      ActiveJobStatus = "navigating"
	ActiveJobCollecting      ActiveJobStatus = "collecting"
	ActiveJobGeneratingProof ActiveJobStatus = "generating_proof"
	ActiveJobSubmitting      ActiveJobStatus = "submitting"
	ActiveJobCompleted       ActiveJobStatus = "completed"
	ActiveJobFailed          ActiveJobStatus = "failed"
)

// ActiveStatusForStep maps execution pipeline steps onto the store's
// job lifecycle. Terminal steps are handled separately and report false.
func ActiveStatusForStep(step JobStep) (ActiveJobStatus, bool) {
	switch step {
	case StepNavigating, StepPageLoaded:
		return ActiveJobNavigating, true
	case StepFetching:
		return ActiveJobCollecting, true
	case StepGeneratingProof:
		return ActiveJobGeneratingProof, true
	case StepSubmittingTx, StepTxConfirmed:
		return ActiveJobSubmitting, true
	default:
		return "", false
	}
}

// ActiveJob is a job currently being processed. Keyed by job id.
// Ids are stored as decimal strings - they cross the message protocol
// boundary where native 64-bit integers are not guaranteed.
type ActiveJob struct {
	JobID         string          `json:"job_id" badgerhold:"index"`
	SpecID        uint64          `json:"spec_id"`
	MainDomain    string          `json:"main_domain"`
	NotarizeURL   string          `json:"notarize_url"`
	Inputs        string          `json:"inputs,omitempty"`
	Bounty        string          `json:"bounty"` // wei, decimal string
	Token         string          `json:"token"`
	Status        ActiveJobStatus `json:"status" badgerhold:"index"`
	Progress      int             `json:"progress"` // 0-100
	ResultPayload string          `json:"result_payload,omitempty"`
	ProofData     string          `json:"proof_data,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// JobHistoryRecord is an append-only record of a finished job for
// earnings tracking.
type JobHistoryRecord struct {
	ID           string    `json:"id"` // Record id (UUID)
	JobID        string    `json:"job_id" badgerhold:"index"`
	SpecID       uint64    `json:"spec_id"`
	MainDomain   string    `json:"main_domain"`
	BountyEarned string    `json:"bounty_earned,omitempty"`
	Token        string    `json:"token,omitempty"`
	TxHash       string    `json:"tx_hash,omitempty"`
	CompletedAt  time.Time `json:"completed_at" badgerhold:"index"`
}
