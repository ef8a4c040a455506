package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/merces/internal/interfaces"
	"github.com/ternarybob/merces/internal/models"
)

func seedRegistry(registry *fakeRegistry, jobID, specID uint64, bounty float64, status models.JobStatus) {
	registry.addSpec(&models.JobSpec{
		SpecID:      specID,
		MainDomain:  "example.com",
		NotarizeURL: "https://example.com/api/items/{slug}",
		Active:      true,
	})
	registry.addJob(&models.Job{
		JobID:  jobID,
		SpecID: specID,
		Bounty: eth(bounty),
		Status: status,
		Inputs: `{"slug":"widget-a"}`,
	})
}

type foundCollector struct {
	mu    sync.Mutex
	found []uint64
}

func (c *foundCollector) add(job *models.JobWithSpec) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.found = append(c.found, job.JobID)
}

func (c *foundCollector) ids() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint64, len(c.found))
	copy(out, c.found)
	return out
}

func TestListenerFindsMatchingOpenJobs(t *testing.T) {
	registry := newFakeRegistry()
	seedRegistry(registry, 0, 1, 0.5, models.JobStatusOpen)
	// Below minimum bounty, unapproved spec, and no longer open
	seedRegistry(registry, 1, 1, 0.05, models.JobStatusOpen)
	seedRegistry(registry, 2, 6, 1.0, models.JobStatusOpen)
	seedRegistry(registry, 3, 1, 0.5, models.JobStatusCompleted)

	collector := &foundCollector{}
	listener := NewListener(ListenerConfig{
		Registry:   registry.provider(),
		Criteria:   NewCriteria([]uint64{1}, map[uint64]float64{1: 0.1}),
		OnJobFound: collector.add,
	}, arbor.NewLogger())

	listener.poll(context.Background())

	assert.Equal(t, []uint64{0}, collector.ids())
}

func TestListenerDoesNotRevisitSeenJobs(t *testing.T) {
	registry := newFakeRegistry()
	seedRegistry(registry, 0, 1, 0.5, models.JobStatusOpen)

	collector := &foundCollector{}
	listener := NewListener(ListenerConfig{
		Registry:   registry.provider(),
		Criteria:   NewCriteria([]uint64{1}, nil),
		OnJobFound: collector.add,
	}, arbor.NewLogger())

	listener.poll(context.Background())
	listener.poll(context.Background())

	assert.Equal(t, []uint64{0}, collector.ids())
}

func TestListenerKeepsPositionAcrossCriteriaChange(t *testing.T) {
	registry := newFakeRegistry()
	seedRegistry(registry, 0, 1, 0.5, models.JobStatusOpen)
	seedRegistry(registry, 1, 2, 0.5, models.JobStatusOpen) // spec 2 not yet approved

	collector := &foundCollector{}
	listener := NewListener(ListenerConfig{
		Registry:   registry.provider(),
		Criteria:   NewCriteria([]uint64{1}, nil),
		OnJobFound: collector.add,
	}, arbor.NewLogger())

	listener.poll(context.Background())
	require.Equal(t, []uint64{0}, collector.ids())

	// Approving spec 2 must not rescan jobs already passed over
	listener.SetCriteria(NewCriteria([]uint64{1, 2}, nil))
	listener.poll(context.Background())
	assert.Equal(t, []uint64{0}, collector.ids())

	// But a new spec-2 job is picked up
	seedRegistry(registry, 2, 2, 0.5, models.JobStatusOpen)
	listener.poll(context.Background())
	assert.Equal(t, []uint64{0, 2}, collector.ids())
}

func TestListenerAdvancesMarkPastFailedFetches(t *testing.T) {
	registry := newFakeRegistry()
	seedRegistry(registry, 0, 1, 0.5, models.JobStatusOpen)
	// Job 1 exists in the count but has no record, so the fetch fails
	registry.mu.Lock()
	registry.count = 2
	registry.mu.Unlock()

	collector := &foundCollector{}
	listener := NewListener(ListenerConfig{
		Registry:   registry.provider(),
		Criteria:   NewCriteria([]uint64{1}, nil),
		OnJobFound: collector.add,
	}, arbor.NewLogger())

	listener.poll(context.Background())
	assert.Equal(t, []uint64{0}, collector.ids())

	// The failed index is not retried on the next poll
	listener.poll(context.Background())
	assert.Equal(t, []uint64{0}, collector.ids())
}

func TestListenerSkipsWhenRegistryUnavailable(t *testing.T) {
	uninitialized := func() (interfaces.RegistryClient, error) {
		return nil, interfaces.ErrNotInitialized
	}

	collector := &foundCollector{}
	listener := NewListener(ListenerConfig{
		Registry:   uninitialized,
		Criteria:   NewCriteria([]uint64{1}, nil),
		OnJobFound: collector.add,
	}, arbor.NewLogger())

	// Must not panic or report jobs
	listener.poll(context.Background())
	assert.Empty(t, collector.ids())
}

func TestListenerSwallowsCountErrors(t *testing.T) {
	registry := newFakeRegistry()
	registry.countErr = fmt.Errorf("rpc unreachable")

	listener := NewListener(ListenerConfig{
		Registry:   registry.provider(),
		Criteria:   NewCriteria([]uint64{1}, nil),
		OnJobFound: func(*models.JobWithSpec) {},
	}, arbor.NewLogger())

	listener.poll(context.Background())

	// The error clears and the next poll succeeds
	registry.mu.Lock()
	registry.countErr = nil
	registry.mu.Unlock()
	seedRegistry(registry, 0, 1, 0.5, models.JobStatusOpen)

	collector := &foundCollector{}
	listener.onJobFound = collector.add
	listener.poll(context.Background())
	assert.Equal(t, []uint64{0}, collector.ids())
}

func TestListenerStartStopIdempotent(t *testing.T) {
	registry := newFakeRegistry()
	listener := NewListener(ListenerConfig{
		Registry:     registry.provider(),
		Criteria:     NewCriteria(nil, nil),
		OnJobFound:   func(*models.JobWithSpec) {},
		PollInterval: 10 * time.Millisecond,
	}, arbor.NewLogger())

	ctx := context.Background()
	listener.Start(ctx)
	listener.Start(ctx)
	assert.True(t, listener.IsRunning())

	listener.Stop()
	listener.Stop()
	assert.False(t, listener.IsRunning())
}
