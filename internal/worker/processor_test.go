package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/merces/internal/interfaces"
	"github.com/ternarybob/merces/internal/models"
)

type processorFixture struct {
	registry  *fakeRegistry
	queue     *Queue
	session   *fakeSession
	sessionMu sync.Mutex
	processor *Processor
	results   []*models.JobResult
	resultsMu sync.Mutex
}

func newProcessorFixture(t *testing.T, proverDelay time.Duration) *processorFixture {
	t.Helper()
	logger := arbor.NewLogger()

	f := &processorFixture{
		registry: newFakeRegistry(),
		queue:    NewQueue(logger),
		session:  newFakeSession("tab-1"),
	}

	executor := NewExecutor(ExecutorConfig{
		Registry:    f.registry.provider(),
		Prover:      &fakeProver{delay: proverDelay},
		NavTimeout:  time.Second,
		SettleDelay: time.Millisecond,
	}, logger)

	f.processor = NewProcessor(ProcessorConfig{
		Queue: f.queue,
		Session: func() interfaces.PageSession {
			f.sessionMu.Lock()
			defer f.sessionMu.Unlock()
			if f.session == nil {
				return nil
			}
			return f.session
		},
		JobDelay: time.Millisecond,
		OnJobComplete: func(r *models.JobResult) {
			f.resultsMu.Lock()
			defer f.resultsMu.Unlock()
			f.results = append(f.results, r)
		},
	}, executor, logger)

	return f
}

func (f *processorFixture) completed() int {
	f.resultsMu.Lock()
	defer f.resultsMu.Unlock()
	return len(f.results)
}

func TestProcessOneDrainsSingleJob(t *testing.T) {
	f := newProcessorFixture(t, 0)
	f.queue.Enqueue(testJob(1, 1, eth(0.5)))
	f.queue.Enqueue(testJob(2, 1, eth(0.5)))

	result := f.processor.ProcessOne(context.Background())
	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Equal(t, uint64(1), result.JobID)

	// Only one job was taken
	assert.Equal(t, 1, f.queue.Len())
	assert.Equal(t, 1, f.completed())
}

func TestProcessOneSingleFlight(t *testing.T) {
	f := newProcessorFixture(t, 0)
	gate := make(chan struct{})
	f.session.fetchGate = gate

	f.queue.Enqueue(testJob(1, 1, eth(0.5)))
	f.queue.Enqueue(testJob(2, 1, eth(0.5)))

	done := make(chan *models.JobResult, 1)
	go func() {
		done <- f.processor.ProcessOne(context.Background())
	}()

	// Wait until the first job is mid-execution
	require.Eventually(t, func() bool {
		return f.processor.CurrentJob() != nil
	}, time.Second, time.Millisecond)

	// A concurrent call returns nil without touching the queue
	assert.Nil(t, f.processor.ProcessOne(context.Background()))
	assert.Equal(t, 1, f.queue.Len())

	close(gate)
	result := <-done
	require.NotNil(t, result)
	assert.Equal(t, uint64(1), result.JobID)
}

func TestProcessOneReturnsNilWithoutTab(t *testing.T) {
	f := newProcessorFixture(t, 0)
	f.sessionMu.Lock()
	f.session = nil
	f.sessionMu.Unlock()

	f.queue.Enqueue(testJob(1, 1, eth(0.5)))

	assert.Nil(t, f.processor.ProcessOne(context.Background()))
	assert.Equal(t, 1, f.queue.Len())
	assert.Equal(t, models.QueueIdle, f.processor.Status())
}

func TestAutoModeDrainsQueue(t *testing.T) {
	f := newProcessorFixture(t, 0)
	f.queue.Enqueue(testJob(1, 1, eth(0.5)))
	f.queue.Enqueue(testJob(2, 1, eth(0.5)))
	f.queue.Enqueue(testJob(3, 1, eth(0.5)))

	f.processor.Start(context.Background())

	require.Eventually(t, func() bool {
		return f.completed() == 3 && f.queue.Len() == 0
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return f.processor.Status() == models.QueueIdle
	}, time.Second, time.Millisecond)
	assert.True(t, f.processor.IsAutoMode())
}

func TestAutoModeStopsWhenTabCloses(t *testing.T) {
	f := newProcessorFixture(t, 0)
	f.sessionMu.Lock()
	f.session = nil
	f.sessionMu.Unlock()

	f.queue.Enqueue(testJob(1, 1, eth(0.5)))
	f.processor.Start(context.Background())

	// With no tab the loop disables auto-mode and leaves the queue alone
	require.Eventually(t, func() bool {
		return !f.processor.IsAutoMode()
	}, time.Second, time.Millisecond)
	assert.Equal(t, 1, f.queue.Len())
	assert.Equal(t, 0, f.completed())
}

func TestPauseLetsInFlightJobFinish(t *testing.T) {
	f := newProcessorFixture(t, 0)
	gate := make(chan struct{})
	f.session.fetchGate = gate

	f.queue.Enqueue(testJob(1, 1, eth(0.5)))
	f.queue.Enqueue(testJob(2, 1, eth(0.5)))

	f.processor.Start(context.Background())
	require.Eventually(t, func() bool {
		return f.processor.CurrentJob() != nil
	}, time.Second, time.Millisecond)

	f.processor.Pause()
	assert.False(t, f.processor.IsAutoMode())

	close(gate)

	// The in-flight job completes; the second stays queued
	require.Eventually(t, func() bool {
		return f.completed() == 1
	}, 5*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, f.queue.Len())
	assert.Equal(t, models.QueuePaused, f.processor.Status())
}
