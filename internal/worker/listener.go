// -----------------------------------------------------------------------
// Job listener - polls the registry for new jobs matching the criteria
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

// Listener polls the job registry on a fixed interval and reports jobs
// that pass the acceptance criteria. Polling errors are logged and
// swallowed; the loop never terminates itself.
type Listener struct {
	registry     interfaces.RegistryProvider
	criteria     Criteria
	onJobFound   func(*models.JobWithSpec)
	pollInterval time.Duration

	// lastJobCount is a monotone high-water mark over the registry's
	// job ledger; seenJobIDs guards against reprocessing when the mark
	// has not advanced yet. Neither is reset by a criteria change.
	lastJobCount uint64
	seenJobIDs   map[uint64]bool

	cancel  context.CancelFunc
	running bool
	mu      sync.Mutex
	logger  arbor.ILogger
}

// ListenerConfig wires a Listener's collaborators.
type ListenerConfig struct {
	Registry     interfaces.RegistryProvider
	Criteria     Criteria
	OnJobFound   func(*models.JobWithSpec)
	PollInterval time.Duration
}

// NewListener creates a stopped listener.
func NewListener(config ListenerConfig, logger arbor.ILogger) *Listener {
	if config.PollInterval <= 0 {
		config.PollInterval = 10 * time.Second
	}
	return &Listener{
		registry:     config.Registry,
		criteria:     config.Criteria,
		onJobFound:   config.OnJobFound,
		pollInterval: config.PollInterval,
		seenJobIDs:   make(map[uint64]bool),
		logger:       logger,
	}
}

// Start begins polling: one immediate poll, then on the configured
// interval. Idempotent while running.
func (l *Listener) Start(ctx context.Context) {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.running = true
	l.mu.Unlock()

	l.logger.Info().
		Dur("poll_interval", l.pollInterval).
		Msg("Job listener started")

	go l.loop(loopCtx)
}

// Stop halts polling. The high-water mark and seen set survive so a
// later Start picks up where polling left off. Idempotent.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.running {
		return
	}
	l.cancel()
	l.cancel = nil
	l.running = false
	l.logger.Info().Msg("Job listener stopped")
}

// IsRunning reports whether the poll loop is active.
func (l *Listener) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// SetCriteria swaps the acceptance filter. The listener's position in
// the ledger is preserved, so jobs already scanned under the old filter
// are not re-evaluated.
func (l *Listener) SetCriteria(criteria Criteria) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.criteria = criteria
	l.logger.Debug().Int("approved_specs", len(criteria.ApprovedSpecIDs)).Msg("Listener criteria updated")
}

// Reset clears the high-water mark and seen set. Only a full engine
// stop does this.
func (l *Listener) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastJobCount = 0
	l.seenJobIDs = make(map[uint64]bool)
}

func (l *Listener) loop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().Msgf("Job listener loop panicked: %v", r)
		}
	}()

	l.poll(ctx)

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.poll(ctx)
		}
	}
}

func (l *Listener) poll(ctx context.Context) {
	registry, err := l.registry()
	if err != nil {
		// Not initialized yet; skip quietly and try again next tick.
		return
	}

	count, err := registry.JobCount(ctx)
	if err != nil {
		l.logger.Warn().Err(err).Msg("Failed to read job count, will retry next poll")
		return
	}

	l.mu.Lock()
	from := l.lastJobCount
	criteria := l.criteria
	l.mu.Unlock()

	for id := from; id < count; id++ {
		l.mu.Lock()
		seen := l.seenJobIDs[id]
		if !seen {
			l.seenJobIDs[id] = true
		}
		l.mu.Unlock()
		if seen {
			continue
		}

		job, err := l.fetchJobWithSpec(ctx, registry, id)
		if err != nil {
			l.logger.Warn().Err(err).Str("job_id", strconv.FormatUint(id, 10)).Msg("Failed to fetch job")
			continue
		}
		if job == nil {
			continue
		}

		if criteria.Accepts(job) {
			l.logger.Info().
				Int64("job_id", int64(id)).
				Int64("spec_id", int64(job.SpecID)).
				Str("domain", job.MainDomain).
				Msg("Found matching job")
			l.onJobFound(job)
		}
	}

	// Advance the mark even when individual jobs failed to fetch; those
	// indices are already in the seen set.
	l.mu.Lock()
	if count > l.lastJobCount {
		l.lastJobCount = count
	}
	l.mu.Unlock()
}

// fetchJobWithSpec reads a job and denormalizes it with its spec.
// Returns nil for jobs that are no longer open.
func (l *Listener) fetchJobWithSpec(ctx context.Context, registry interfaces.RegistryClient, jobID uint64) (*models.JobWithSpec, error) {
	job, err := registry.JobByIndex(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if !job.Status.IsOpen() {
		return nil, nil
	}

	spec, err := registry.JobSpecByID(ctx, job.SpecID)
	if err != nil {
		return nil, err
	}

	return models.NewJobWithSpec(job, spec), nil
}
