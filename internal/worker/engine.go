// -----------------------------------------------------------------------
// Worker engine - ties listener, queue, processor and tab into one unit
// -----------------------------------------------------------------------

package worker

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/merces/internal/interfaces"
	"github.com/ternarybob/merces/internal/models"
)

// EngineConfig wires an Engine's collaborators.
type EngineConfig struct {
	Registry     interfaces.RegistryProvider
	TabManager   interfaces.TabManager
	Prover       interfaces.ProofClient
	Events       interfaces.EventService
	Storage      interfaces.StorageManager
	RunnerURL    string
	PollInterval time.Duration
	NavTimeout   time.Duration
	SettleDelay  time.Duration
	JobDelay     time.Duration
}

// Engine is the top-level worker facade. It owns the single controlled
// tab, the acceptance criteria, the queue and the processing loop, and
// publishes status/progress/completion on the event bus.
type Engine struct {
	config    EngineConfig
	queue     *Queue
	processor *Processor
	listener  *Listener

	session         interfaces.PageSession
	currentStep     models.JobStep
	currentProgress int
	activeJobs      map[uint64]*models.JobWithSpec
	baseCtx         context.Context
	mu              sync.Mutex
	logger          arbor.ILogger
}

// NewEngine creates a stopped worker engine.
func NewEngine(config EngineConfig, logger arbor.ILogger) *Engine {
	e := &Engine{
		config:     config,
		activeJobs: make(map[uint64]*models.JobWithSpec),
		baseCtx:    context.Background(),
		logger:     logger,
	}

	e.queue = NewQueue(logger)

	executor := NewExecutor(ExecutorConfig{
		Registry:    config.Registry,
		Prover:      config.Prover,
		NavTimeout:  config.NavTimeout,
		SettleDelay: config.SettleDelay,
	}, logger)

	e.processor = NewProcessor(ProcessorConfig{
		Queue:          e.queue,
		Session:        e.getSession,
		JobDelay:       config.JobDelay,
		OnProgress:     e.onProgress,
		OnJobComplete:  e.onJobComplete,
		OnStatusChange: func(models.QueueStatus) { e.publishStatus() },
	}, executor, logger)

	e.listener = NewListener(ListenerConfig{
		Registry:     config.Registry,
		Criteria:     NewCriteria(nil, nil),
		OnJobFound:   e.onJobFound,
		PollInterval: config.PollInterval,
	}, logger)

	e.queue.OnChange(func(jobs []*models.JobWithSpec) {
		e.publishQueueChanged(jobs)
		e.publishStatus()
	})

	return e
}

// Start begins listening for registry jobs. Idempotent.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	e.baseCtx = ctx
	e.mu.Unlock()

	e.logger.Info().Msg("Worker engine starting")
	e.listener.Start(ctx)
}

// Stop halts listening, pauses processing, clears the queue and drops
// the listener's position. An in-flight job runs to completion.
// Idempotent.
func (e *Engine) Stop() {
	e.logger.Info().Msg("Worker engine stopping")
	e.listener.Stop()
	e.processor.Pause()
	e.queue.Clear()
	e.listener.Reset()
}

func (e *Engine) getSession() interfaces.PageSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// OpenWorkerTab reuses and focuses the existing controlled tab, or
// creates a new one at the runner URL. Returns the tab id.
func (e *Engine) OpenWorkerTab(ctx context.Context) (string, error) {
	e.mu.Lock()
	session := e.session
	e.mu.Unlock()

	if session != nil {
		if err := session.Focus(ctx); err == nil {
			return session.TargetID(), nil
		}
		// Tab went away underneath us
		e.mu.Lock()
		if e.session == session {
			e.session = nil
		}
		e.mu.Unlock()
	}

	session, err := e.config.TabManager.OpenTab(ctx, e.config.RunnerURL)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	e.session = session
	e.mu.Unlock()

	go e.watchTab(session)

	e.logger.Info().Str("tab_id", session.TargetID()).Msg("Worker tab opened")
	e.publishStatus()

	return session.TargetID(), nil
}

// watchTab pauses processing when the tab disappears outside our
// control, e.g. the user closes it by hand.
func (e *Engine) watchTab(session interfaces.PageSession) {
	<-session.Closed()

	e.mu.Lock()
	current := e.session == session
	if current {
		e.session = nil
	}
	e.mu.Unlock()

	if current {
		e.logger.Info().Str("tab_id", session.TargetID()).Msg("Worker tab closed")
		e.processor.Pause()
		e.publishStatus()
	}
}

// CloseWorkerTab closes the controlled tab and pauses processing.
func (e *Engine) CloseWorkerTab() {
	e.mu.Lock()
	session := e.session
	e.session = nil
	e.mu.Unlock()

	if session == nil {
		return
	}

	if err := session.Close(); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to close worker tab")
	}
	e.processor.Pause()
	e.publishStatus()
}

// TabID returns the controlled tab's id, empty when no tab is open.
func (e *Engine) TabID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return ""
	}
	return e.session.TargetID()
}

// SetApprovedSpecs swaps the acceptance criteria. The listener keeps
// its position in the ledger, so jobs scanned under the old criteria
// are not revisited.
func (e *Engine) SetApprovedSpecs(approved []uint64, minBountyBySpec map[uint64]float64) {
	e.listener.SetCriteria(NewCriteria(approved, minBountyBySpec))
}

// SetAutoMode toggles automatic queue draining. Enabling is refused
// while no controlled tab is open.
func (e *Engine) SetAutoMode(enabled bool) bool {
	if enabled {
		if e.getSession() == nil {
			e.logger.Info().Msg("Cannot enable auto-mode without a worker tab")
			e.publishStatus()
			return false
		}
		e.processor.Start(e.base())
	} else {
		e.processor.Pause()
	}
	e.publishStatus()
	return e.processor.IsAutoMode()
}

// AutoMode reports whether auto-mode is on.
func (e *Engine) AutoMode() bool {
	return e.processor.IsAutoMode()
}

// ProcessNextJob runs a single queued job. Returns nil when no tab is
// open, the queue is empty, or a job is already executing.
func (e *Engine) ProcessNextJob() *models.JobResult {
	if e.getSession() == nil {
		e.logger.Debug().Msg("Cannot process without a worker tab")
		return nil
	}
	return e.processor.ProcessOne(e.base())
}

// EnqueueJob adds a job to the queue directly, bypassing the listener.
// Used when the operator starts a job by hand.
func (e *Engine) EnqueueJob(job *models.JobWithSpec) {
	e.onJobFound(job)
}

// QueuedJobs returns a snapshot of the queue.
func (e *Engine) QueuedJobs() []*models.JobWithSpec {
	return e.queue.GetAll()
}

// CurrentJob returns the job mid-execution, nil when idle.
func (e *Engine) CurrentJob() *models.JobWithSpec {
	return e.processor.CurrentJob()
}

// GetStatus derives the engine's full status from live component state.
// Never cached.
func (e *Engine) GetStatus() *models.WorkerStatus {
	e.mu.Lock()
	tabID := ""
	if e.session != nil {
		tabID = e.session.TargetID()
	}
	step := e.currentStep
	pct := e.currentProgress
	e.mu.Unlock()

	return &models.WorkerStatus{
		TabOpen:         tabID != "",
		TabID:           tabID,
		AutoMode:        e.processor.IsAutoMode(),
		QueueLength:     e.queue.Len(),
		CurrentJob:      e.processor.CurrentJob(),
		CurrentStep:     step,
		CurrentProgress: pct,
	}
}

func (e *Engine) base() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.baseCtx
}

// onJobFound queues a matching job and records it as active. When
// auto-mode is on and a tab is open, processing resumes immediately.
func (e *Engine) onJobFound(job *models.JobWithSpec) {
	e.mu.Lock()
	e.activeJobs[job.JobID] = job
	e.mu.Unlock()

	e.queue.Enqueue(job)
	e.recordJobPending(job)

	if e.processor.IsAutoMode() && e.getSession() != nil {
		e.processor.Kick(e.base())
	}
}

func (e *Engine) onProgress(progress models.JobProgress) {
	e.mu.Lock()
	e.currentStep = progress.Step
	e.currentProgress = progress.Progress
	e.mu.Unlock()

	e.recordJobProgress(progress)

	if e.config.Events != nil {
		_ = e.config.Events.Publish(e.base(), interfaces.Event{
			Type:    interfaces.EventJobProgress,
			Payload: progress,
		})
	}
	e.publishStatus()
}

func (e *Engine) onJobComplete(result *models.JobResult) {
	e.mu.Lock()
	job := e.activeJobs[result.JobID]
	delete(e.activeJobs, result.JobID)
	e.currentStep = ""
	e.currentProgress = 0
	e.mu.Unlock()

	e.recordJobFinished(job, result)

	if e.config.Events != nil {
		_ = e.config.Events.Publish(e.base(), interfaces.Event{
			Type:    interfaces.EventJobCompleted,
			Payload: result,
		})
	}
	e.publishStatus()
}

func (e *Engine) publishStatus() {
	if e.config.Events == nil {
		return
	}
	_ = e.config.Events.Publish(e.base(), interfaces.Event{
		Type:    interfaces.EventWorkerStatus,
		Payload: e.GetStatus(),
	})
}

func (e *Engine) publishQueueChanged(jobs []*models.JobWithSpec) {
	if e.config.Events == nil {
		return
	}
	_ = e.config.Events.Publish(e.base(), interfaces.Event{
		Type:    interfaces.EventQueueChanged,
		Payload: jobs,
	})
}

// recordJobPending upserts the store record for a freshly queued job.
func (e *Engine) recordJobPending(job *models.JobWithSpec) {
	if e.config.Storage == nil {
		return
	}

	bounty := "0"
	if job.Bounty != nil {
		bounty = job.Bounty.String()
	}

	record := &models.ActiveJob{
		JobID:       strconv.FormatUint(job.JobID, 10),
		SpecID:      job.SpecID,
		MainDomain:  job.MainDomain,
		NotarizeURL: job.NotarizeURL,
		Inputs:      job.Inputs,
		Bounty:      bounty,
		Token:       job.Token,
		Status:      models.ActiveJobPending,
	}
	if err := e.config.Storage.ActiveJobStorage().Create(e.base(), record); err != nil {
		e.logger.Warn().Err(err).Int64("job_id", int64(job.JobID)).Msg("Failed to record active job")
	}
}

func (e *Engine) recordJobProgress(progress models.JobProgress) {
	if e.config.Storage == nil {
		return
	}

	status, ok := models.ActiveStatusForStep(progress.Step)
	if !ok {
		return
	}

	jobID := strconv.FormatUint(progress.JobID, 10)
	if err := e.config.Storage.ActiveJobStorage().UpdateStatus(e.base(), jobID, status, progress.Progress); err != nil {
		e.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to update active job status")
	}
}

// recordJobFinished archives a successful job into history and removes
// its active record; failures keep the record with the error message.
func (e *Engine) recordJobFinished(job *models.JobWithSpec, result *models.JobResult) {
	if e.config.Storage == nil {
		return
	}

	ctx := e.base()
	jobID := strconv.FormatUint(result.JobID, 10)

	if !result.Success {
		if err := e.config.Storage.ActiveJobStorage().SetError(ctx, jobID, result.Error); err != nil {
			e.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to record job failure")
		}
		return
	}

	proofData := ""
	if result.Proof != nil {
		proofData = result.Proof.Data
	}
	if err := e.config.Storage.ActiveJobStorage().SetResult(ctx, jobID, result.ResultPayload, proofData); err != nil {
		e.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to record job result")
	}

	record := &models.JobHistoryRecord{
		JobID:  jobID,
		TxHash: result.TxHash,
	}
	if job != nil {
		record.SpecID = job.SpecID
		record.MainDomain = job.MainDomain
		record.Token = job.Token
		if job.Bounty != nil {
			record.BountyEarned = job.Bounty.String()
		}
	}
	if err := e.config.Storage.JobHistoryStorage().Append(ctx, record); err != nil {
		e.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to append job history")
		return
	}

	if err := e.config.Storage.ActiveJobStorage().Delete(ctx, jobID); err != nil {
		e.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to clear active job")
	}
}
