package handlers

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/merces/internal/common"
	"github.com/ternarybob/merces/internal/models"
)

func newTestWebSocketHandler(t *testing.T, config *common.WebSocketConfig) *WebSocketHandler {
	t.Helper()
	protocol, _, _ := newTestProtocol(t)
	return NewWebSocketHandler(protocol, nil, arbor.NewLogger(), config)
}

func TestStatusPayloadMapping(t *testing.T) {
	h := newTestWebSocketHandler(t, nil)

	payload := h.statusPayload(&models.WorkerStatus{
		TabOpen:     true,
		TabID:       "tab-1",
		AutoMode:    true,
		QueueLength: 2,
		CurrentJob: &models.JobWithSpec{
			JobID:      42,
			MainDomain: "example.com",
			Bounty:     big.NewInt(1),
		},
		CurrentStep:     models.StepFetching,
		CurrentProgress: 40,
	})

	assert.True(t, payload.Connected)
	assert.True(t, payload.TabOpen)
	assert.True(t, payload.AutoMode)
	assert.Equal(t, 2, payload.QueueLength)
	assert.NotEmpty(t, payload.Version)
	assert.NotEmpty(t, payload.ServerInstanceID)

	require.NotNil(t, payload.ActiveJob)
	assert.Equal(t, "42", payload.ActiveJob.JobID)
	assert.Equal(t, "example.com", payload.ActiveJob.SpecDomain)
	assert.Equal(t, "fetching", payload.ActiveJob.Status)
	assert.Equal(t, 40, payload.ActiveJob.Progress)
}

func TestStatusPayloadIdleEngine(t *testing.T) {
	h := newTestWebSocketHandler(t, nil)

	payload := h.statusPayload(&models.WorkerStatus{})
	assert.True(t, payload.Connected)
	assert.Nil(t, payload.ActiveJob)

	// Queued job with no step yet reports the queued status
	payload = h.statusPayload(&models.WorkerStatus{
		CurrentJob: &models.JobWithSpec{JobID: 1},
	})
	require.NotNil(t, payload.ActiveJob)
	assert.Equal(t, "queued", payload.ActiveJob.Status)
}

func TestEventWhitelist(t *testing.T) {
	h := newTestWebSocketHandler(t, nil)
	assert.True(t, h.eventAllowed("job_progress"))
	assert.True(t, h.eventAllowed("anything"))

	h = newTestWebSocketHandler(t, &common.WebSocketConfig{
		AllowedEvents: []string{"job_completed"},
	})
	assert.True(t, h.eventAllowed("job_completed"))
	assert.False(t, h.eventAllowed("job_progress"))
}

func TestProgressThrottlerConfig(t *testing.T) {
	h := newTestWebSocketHandler(t, &common.WebSocketConfig{ProgressInterval: "250ms"})
	assert.NotNil(t, h.progressThrottler)

	h = newTestWebSocketHandler(t, &common.WebSocketConfig{ProgressInterval: "bogus"})
	assert.Nil(t, h.progressThrottler)

	h = newTestWebSocketHandler(t, nil)
	assert.Nil(t, h.progressThrottler)
}
