package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/merces/internal/models"
)

func TestQueueFIFOAndDedup(t *testing.T) {
	q := NewQueue(arbor.NewLogger())

	q.Enqueue(testJob(1, 1, eth(1)))
	q.Enqueue(testJob(2, 1, eth(1)))
	q.Enqueue(testJob(1, 1, eth(1))) // duplicate, skipped
	q.Enqueue(testJob(3, 1, eth(1)))

	require.Equal(t, 3, q.Len())
	assert.True(t, q.Has(1))
	assert.True(t, q.Has(2))
	assert.False(t, q.Has(9))

	assert.Equal(t, uint64(1), q.Peek().JobID)
	assert.Equal(t, uint64(1), q.Dequeue().JobID)
	assert.Equal(t, uint64(2), q.Dequeue().JobID)
	assert.Equal(t, uint64(3), q.Dequeue().JobID)
	assert.Nil(t, q.Dequeue())
	assert.Nil(t, q.Peek())
}

func TestQueueRemoveAndClear(t *testing.T) {
	q := NewQueue(arbor.NewLogger())
	q.Enqueue(testJob(1, 1, eth(1)))
	q.Enqueue(testJob(2, 1, eth(1)))

	assert.True(t, q.Remove(1))
	assert.False(t, q.Remove(1))
	assert.Equal(t, 1, q.Len())

	q.Clear()
	assert.Equal(t, 0, q.Len())
}

func TestQueueOnChange(t *testing.T) {
	q := NewQueue(arbor.NewLogger())
	q.Enqueue(testJob(1, 1, eth(1)))

	var snapshots [][]*models.JobWithSpec
	unsubscribe := q.OnChange(func(jobs []*models.JobWithSpec) {
		snapshots = append(snapshots, jobs)
	})

	// Fires immediately with current contents
	require.Len(t, snapshots, 1)
	require.Len(t, snapshots[0], 1)

	q.Enqueue(testJob(2, 1, eth(1)))
	require.Len(t, snapshots, 2)
	assert.Len(t, snapshots[1], 2)

	// Duplicate enqueue does not notify
	q.Enqueue(testJob(2, 1, eth(1)))
	assert.Len(t, snapshots, 2)

	// Snapshot is a copy: mutating it does not affect the queue
	snapshots[1][0] = nil
	assert.NotNil(t, q.Peek())

	unsubscribe()
	q.Dequeue()
	assert.Len(t, snapshots, 2)
}

func TestQueueCallbackMayReenter(t *testing.T) {
	q := NewQueue(arbor.NewLogger())

	var observed int
	q.OnChange(func(jobs []*models.JobWithSpec) {
		observed = q.Len()
	})

	q.Enqueue(testJob(1, 1, eth(1)))
	assert.Equal(t, 1, observed)
}
