package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/merces/internal/interfaces"
)

func newTestService() interfaces.EventService {
	return NewService(arbor.NewLogger())
}

func TestSubscribePublishSync(t *testing.T) {
	svc := newTestService()

	var got []interfaces.Event
	var mu sync.Mutex

	_, err := svc.Subscribe(interfaces.EventWorkerStatus, func(ctx context.Context, e interfaces.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
		return nil
	})
	require.NoError(t, err)

	err = svc.PublishSync(context.Background(), interfaces.Event{
		Type:    interfaces.EventWorkerStatus,
		Payload: map[string]interface{}{"tab_open": true},
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, interfaces.EventWorkerStatus, got[0].Type)
}

func TestSubscribeNilHandler(t *testing.T) {
	svc := newTestService()

	sub, err := svc.Subscribe(interfaces.EventJobProgress, nil)
	assert.Error(t, err)
	assert.Nil(t, sub)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	svc := newTestService()

	var calls int32
	sub, err := svc.Subscribe(interfaces.EventJobProgress, func(ctx context.Context, e interfaces.Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventJobProgress}))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	sub.Unsubscribe()
	sub.Unsubscribe() // second call is a no-op

	require.NoError(t, svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventJobProgress}))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestUnsubscribeRemovesOnlyOwnHandler(t *testing.T) {
	svc := newTestService()

	var first, second int32
	subA, err := svc.Subscribe(interfaces.EventQueueChanged, func(ctx context.Context, e interfaces.Event) error {
		atomic.AddInt32(&first, 1)
		return nil
	})
	require.NoError(t, err)

	_, err = svc.Subscribe(interfaces.EventQueueChanged, func(ctx context.Context, e interfaces.Event) error {
		atomic.AddInt32(&second, 1)
		return nil
	})
	require.NoError(t, err)

	subA.Unsubscribe()

	require.NoError(t, svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventQueueChanged}))
	assert.Equal(t, int32(0), atomic.LoadInt32(&first))
	assert.Equal(t, int32(1), atomic.LoadInt32(&second))
}

func TestPublishSyncCollectsHandlerErrors(t *testing.T) {
	svc := newTestService()

	_, err := svc.Subscribe(interfaces.EventJobCompleted, func(ctx context.Context, e interfaces.Event) error {
		return fmt.Errorf("boom")
	})
	require.NoError(t, err)

	err = svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventJobCompleted})
	assert.Error(t, err)
}

func TestPublishWithNoSubscribers(t *testing.T) {
	svc := newTestService()

	assert.NoError(t, svc.Publish(context.Background(), interfaces.Event{Type: interfaces.EventConfigSaved}))
	assert.NoError(t, svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventConfigSaved}))
}
