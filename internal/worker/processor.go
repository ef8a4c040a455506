// -----------------------------------------------------------------------
// Queue processor - orchestrates job execution with auto-mode support
// -----------------------------------------------------------------------

package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/merces/internal/interfaces"
	"github.com/ternarybob/merces/internal/models"
)

// ProcessorConfig wires a Processor's collaborators.
type ProcessorConfig struct {
	Queue *Queue
	// Session returns the current controlled tab, nil when closed.
	Session func() interfaces.PageSession
	// JobDelay is the pause between jobs in auto-mode.
	JobDelay       time.Duration
	OnProgress     func(models.JobProgress)
	OnJobComplete  func(*models.JobResult)
	OnStatusChange func(models.QueueStatus)
}

// Processor drains the queue through the executor. At most one job runs
// at a time; auto-mode keeps draining until the queue empties or the tab
// goes away. The processor never touches the network or the tab itself.
type Processor struct {
	config   ProcessorConfig
	executor *Executor

	status       models.QueueStatus
	autoMode     bool
	currentJob   *models.JobWithSpec
	isProcessing bool
	mu           sync.Mutex
	logger       arbor.ILogger
}

// NewProcessor creates an idle queue processor.
func NewProcessor(config ProcessorConfig, executor *Executor, logger arbor.ILogger) *Processor {
	if config.JobDelay <= 0 {
		config.JobDelay = time.Second
	}
	return &Processor{
		config:   config,
		executor: executor,
		status:   models.QueueIdle,
		logger:   logger,
	}
}

func (p *Processor) setStatus(status models.QueueStatus) {
	p.mu.Lock()
	changed := p.status != status
	p.status = status
	p.mu.Unlock()

	if changed && p.config.OnStatusChange != nil {
		p.config.OnStatusChange(status)
	}
}

// Start enables auto-mode and begins draining the queue. If a job is
// already mid-execution the loop resumes when it finishes.
func (p *Processor) Start(ctx context.Context) {
	p.mu.Lock()
	if p.autoMode {
		p.mu.Unlock()
		return
	}
	p.autoMode = true
	busy := p.isProcessing
	p.mu.Unlock()

	p.logger.Info().Msg("Auto-mode enabled")

	if !busy {
		go p.loop(ctx)
	}
}

// Pause disables auto-mode. An in-flight job runs to completion; only
// the next dequeue is blocked.
func (p *Processor) Pause() {
	p.mu.Lock()
	if !p.autoMode {
		p.mu.Unlock()
		return
	}
	p.autoMode = false
	p.mu.Unlock()

	p.logger.Info().Msg("Auto-mode paused")
	p.setStatus(models.QueuePaused)
}

// ProcessOne executes the next queued job. Returns nil without touching
// the queue when another execution is already in flight.
func (p *Processor) ProcessOne(ctx context.Context) *models.JobResult {
	p.mu.Lock()
	if p.isProcessing {
		p.mu.Unlock()
		p.logger.Debug().Msg("Already processing a job")
		return nil
	}
	p.isProcessing = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.isProcessing = false
		p.mu.Unlock()
	}()

	return p.processNext(ctx)
}

// processNext runs one job. Callers must hold the isProcessing flag.
func (p *Processor) processNext(ctx context.Context) *models.JobResult {
	session := p.config.Session()
	if session == nil {
		p.logger.Debug().Msg("No controlled tab, cannot process")
		p.setStatus(models.QueueIdle)
		return nil
	}

	job := p.config.Queue.Dequeue()
	if job == nil {
		p.setStatus(models.QueueIdle)
		return nil
	}

	p.mu.Lock()
	p.currentJob = job
	p.mu.Unlock()
	p.setStatus(models.QueueProcessing)

	defer func() {
		p.mu.Lock()
		p.currentJob = nil
		p.mu.Unlock()
	}()

	result := p.executor.Execute(ctx, job, ExecOptions{
		Session:    session,
		OnProgress: p.config.OnProgress,
	})

	if p.config.OnJobComplete != nil {
		p.config.OnJobComplete(result)
	}
	return result
}

// loop drains the queue while auto-mode stays on.
func (p *Processor) loop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Msgf("Queue processor loop panicked: %v", r)
			p.mu.Lock()
			p.isProcessing = false
			p.mu.Unlock()
		}
	}()

	for {
		p.mu.Lock()
		if !p.autoMode || p.config.Queue.Len() == 0 {
			auto := p.autoMode
			p.mu.Unlock()
			if !auto {
				p.setStatus(models.QueuePaused)
			} else {
				p.setStatus(models.QueueIdle)
			}
			return
		}
		if p.isProcessing {
			p.mu.Unlock()
			return
		}
		p.isProcessing = true
		p.mu.Unlock()

		if p.config.Session() == nil {
			// Tab gone; auto-mode cannot continue.
			p.mu.Lock()
			p.autoMode = false
			p.isProcessing = false
			p.mu.Unlock()
			p.logger.Info().Msg("Controlled tab closed, disabling auto-mode")
			p.setStatus(models.QueueIdle)
			return
		}

		p.processNext(ctx)

		p.mu.Lock()
		p.isProcessing = false
		more := p.autoMode && p.config.Queue.Len() > 0
		p.mu.Unlock()

		if more {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.config.JobDelay):
			}
		}
	}
}

// Kick resumes the auto-mode loop, typically after a new job arrives.
func (p *Processor) Kick(ctx context.Context) {
	p.mu.Lock()
	run := p.autoMode && !p.isProcessing
	p.mu.Unlock()

	if run {
		go p.loop(ctx)
	}
}

// Status returns the processor's instantaneous state.
func (p *Processor) Status() models.QueueStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// CurrentJob returns the job mid-execution, nil when none.
func (p *Processor) CurrentJob() *models.JobWithSpec {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentJob
}

// IsAutoMode reports whether auto-mode is enabled.
func (p *Processor) IsAutoMode() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.autoMode
}
