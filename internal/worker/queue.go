package worker

import (
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/merces/internal/models"
)

// Queue is the in-memory FIFO of jobs waiting to be executed. Every
// mutation synchronously notifies subscribers with a snapshot copy.
// Callbacks run outside the queue lock, so they may call back into the
// queue (status derivation does).
type Queue struct {
	jobs      []*models.JobWithSpec
	listeners map[uint64]func([]*models.JobWithSpec)
	nextToken uint64
	mu        sync.Mutex
	logger    arbor.ILogger
}

// NewQueue creates an empty job queue.
func NewQueue(logger arbor.ILogger) *Queue {
	return &Queue{
		listeners: make(map[uint64]func([]*models.JobWithSpec)),
		logger:    logger,
	}
}

// snapshot must be called with the mutex held.
func (q *Queue) snapshot() []*models.JobWithSpec {
	out := make([]*models.JobWithSpec, len(q.jobs))
	copy(out, q.jobs)
	return out
}

// collectListeners must be called with the mutex held.
func (q *Queue) collectListeners() []func([]*models.JobWithSpec) {
	cbs := make([]func([]*models.JobWithSpec), 0, len(q.listeners))
	for _, cb := range q.listeners {
		cbs = append(cbs, cb)
	}
	return cbs
}

func notifyAll(cbs []func([]*models.JobWithSpec), snapshot []*models.JobWithSpec) {
	for _, cb := range cbs {
		cb(snapshot)
	}
}

// Enqueue appends a job. Jobs already queued are skipped.
func (q *Queue) Enqueue(job *models.JobWithSpec) {
	q.mu.Lock()
	for _, j := range q.jobs {
		if j.JobID == job.JobID {
			q.mu.Unlock()
			q.logger.Debug().Int64("job_id", int64(job.JobID)).Msg("Job already queued, skipping")
			return
		}
	}

	q.jobs = append(q.jobs, job)
	length := len(q.jobs)
	cbs := q.collectListeners()
	snapshot := q.snapshot()
	q.mu.Unlock()

	q.logger.Debug().
		Int64("job_id", int64(job.JobID)).
		Int("queue_length", length).
		Msg("Job enqueued")
	notifyAll(cbs, snapshot)
}

// Peek returns the next job without removing it.
func (q *Queue) Peek() *models.JobWithSpec {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return nil
	}
	return q.jobs[0]
}

// Dequeue removes and returns the next job, or nil when empty.
func (q *Queue) Dequeue() *models.JobWithSpec {
	q.mu.Lock()
	if len(q.jobs) == 0 {
		q.mu.Unlock()
		return nil
	}

	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	length := len(q.jobs)
	cbs := q.collectListeners()
	snapshot := q.snapshot()
	q.mu.Unlock()

	q.logger.Debug().
		Int64("job_id", int64(job.JobID)).
		Int("queue_length", length).
		Msg("Job dequeued")
	notifyAll(cbs, snapshot)
	return job
}

// Len returns the current queue length.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// GetAll returns a copy of the queued jobs in order.
func (q *Queue) GetAll() []*models.JobWithSpec {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshot()
}

// Remove deletes the job with the given id, reporting whether it was
// present.
func (q *Queue) Remove(jobID uint64) bool {
	q.mu.Lock()
	for i, j := range q.jobs {
		if j.JobID == jobID {
			q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
			length := len(q.jobs)
			cbs := q.collectListeners()
			snapshot := q.snapshot()
			q.mu.Unlock()

			q.logger.Debug().
				Int64("job_id", int64(jobID)).
				Int("queue_length", length).
				Msg("Job removed from queue")
			notifyAll(cbs, snapshot)
			return true
		}
	}
	q.mu.Unlock()
	return false
}

// Has reports whether the job is queued.
func (q *Queue) Has(jobID uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, j := range q.jobs {
		if j.JobID == jobID {
			return true
		}
	}
	return false
}

// Clear drops all queued jobs.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.jobs = nil
	cbs := q.collectListeners()
	snapshot := q.snapshot()
	q.mu.Unlock()

	q.logger.Debug().Msg("Queue cleared")
	notifyAll(cbs, snapshot)
}

// OnChange subscribes to queue mutations. The callback fires once
// immediately with the current contents, then on every change. The
// returned function removes the subscription.
func (q *Queue) OnChange(cb func([]*models.JobWithSpec)) func() {
	q.mu.Lock()
	q.nextToken++
	token := q.nextToken
	q.listeners[token] = cb
	snapshot := q.snapshot()
	q.mu.Unlock()

	cb(snapshot)

	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.listeners, token)
	}
}
