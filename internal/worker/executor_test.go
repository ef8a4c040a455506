package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/merces/internal/models"
)

func newTestExecutor(registry *fakeRegistry) *Executor {
	return NewExecutor(ExecutorConfig{
		Registry:    registry.provider(),
		Prover:      &fakeProver{},
		NavTimeout:  time.Second,
		SettleDelay: time.Millisecond,
	}, arbor.NewLogger())
}

func TestExecuteHappyPath(t *testing.T) {
	registry := newFakeRegistry()
	executor := newTestExecutor(registry)
	session := newFakeSession("tab-1")
	session.fetchBody = `{"price":42}`

	var steps []models.JobStep
	var progresses []int
	job := testJob(7, 1, eth(0.5))

	result := executor.Execute(context.Background(), job, ExecOptions{
		Session: session,
		OnProgress: func(p models.JobProgress) {
			steps = append(steps, p.Step)
			progresses = append(progresses, p.Progress)
			assert.Equal(t, uint64(7), p.JobID)
		},
	})

	require.True(t, result.Success)
	assert.Equal(t, uint64(7), result.JobID)
	assert.NotEmpty(t, result.TxHash)
	require.NotNil(t, result.Proof)

	// Inputs substituted into the URL template
	assert.Equal(t, "https://example.com/api/items/widget-a", session.fetchedURL)

	// Bare domain got the https:// prefix
	require.Len(t, session.navigated, 1)
	assert.Equal(t, "https://example.com", session.navigated[0])

	// The full pipeline in order with fixed percentages
	assert.Equal(t, []models.JobStep{
		models.StepNavigating,
		models.StepPageLoaded,
		models.StepFetching,
		models.StepGeneratingProof,
		models.StepGeneratingProof,
		models.StepSubmittingTx,
		models.StepSubmittingTx,
		models.StepTxConfirmed,
		models.StepComplete,
	}, steps)
	assert.Equal(t, []int{10, 25, 40, 60, 75, 85, 90, 95, 100}, progresses)

	// Result payload carries proof, response and a timestamp
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(result.ResultPayload), &payload))
	assert.Equal(t, "0x616263", payload["proof"])
	assert.Equal(t, `{"price":42}`, payload["response"])
	assert.NotNil(t, payload["timestamp"])

	require.Len(t, registry.submitted, 1)
}

func TestExecuteNavigationTimeout(t *testing.T) {
	registry := newFakeRegistry()
	executor := newTestExecutor(registry)
	session := newFakeSession("tab-1")
	session.navErr = fmt.Errorf("page load timed out after 1s: %w", context.DeadlineExceeded)

	var last models.JobProgress
	result := executor.Execute(context.Background(), testJob(7, 1, eth(0.5)), ExecOptions{
		Session:    session,
		OnProgress: func(p models.JobProgress) { last = p },
	})

	require.False(t, result.Success)
	assert.Equal(t, "Tab load timeout", result.Error)
	assert.Empty(t, result.TxHash)

	// Failure is announced as a terminal progress tick at 0%
	assert.Equal(t, models.StepFailed, last.Step)
	assert.Equal(t, 0, last.Progress)

	// Nothing was submitted on chain
	assert.Empty(t, registry.submitted)
}

func TestExecuteNavigationErrorKeepsMessage(t *testing.T) {
	registry := newFakeRegistry()
	executor := newTestExecutor(registry)
	session := newFakeSession("tab-1")
	session.navErr = fmt.Errorf("navigation failed: net::ERR_NAME_NOT_RESOLVED")

	var last models.JobProgress
	result := executor.Execute(context.Background(), testJob(7, 1, eth(0.5)), ExecOptions{
		Session:    session,
		OnProgress: func(p models.JobProgress) { last = p },
	})

	require.False(t, result.Success)

	// Non-timeout navigation failures keep their own message
	assert.Equal(t, "navigation failed: net::ERR_NAME_NOT_RESOLVED", result.Error)
	assert.Equal(t, models.StepFailed, last.Step)
	assert.Empty(t, registry.submitted)
}

func TestExecuteFetchFailureUsesFallbackPayload(t *testing.T) {
	registry := newFakeRegistry()
	executor := newTestExecutor(registry)
	session := newFakeSession("tab-1")
	session.fetchErr = fmt.Errorf("network error")
	session.fetchBody = ""

	result := executor.Execute(context.Background(), testJob(8, 1, eth(0.5)), ExecOptions{Session: session})

	require.True(t, result.Success)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(result.ResultPayload), &payload))
	assert.Equal(t, `{"success":true,"mocked":true}`, payload["response"])
}

func TestExecuteRevertedTransaction(t *testing.T) {
	registry := newFakeRegistry()
	registry.revertNext = true
	executor := newTestExecutor(registry)
	session := newFakeSession("tab-1")

	var last models.JobProgress
	result := executor.Execute(context.Background(), testJob(9, 1, eth(0.5)), ExecOptions{
		Session:    session,
		OnProgress: func(p models.JobProgress) { last = p },
	})

	require.False(t, result.Success)
	assert.Equal(t, "Transaction reverted", result.Error)
	assert.Equal(t, models.StepFailed, last.Step)
}

func TestBuildFetchURL(t *testing.T) {
	tests := []struct {
		name     string
		template string
		inputs   string
		want     string
	}{
		{"single placeholder", "https://x.com/api/{slug}", `{"slug":"widget-a"}`, "https://x.com/api/widget-a"},
		{"value gets url-encoded", "https://x.com/api/{q}", `{"q":"a b&c"}`, "https://x.com/api/a+b%26c"},
		{"multiple placeholders", "https://x.com/{a}/{b}", `{"a":"1","b":"2"}`, "https://x.com/1/2"},
		{"malformed inputs leave template untouched", "https://x.com/{slug}", "not-json", "https://x.com/{slug}"},
		{"empty inputs", "https://x.com/items", "", "https://x.com/items"},
		{"unknown placeholder survives", "https://x.com/{other}", `{"slug":"v"}`, "https://x.com/{other}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildFetchURL(tt.template, tt.inputs))
		})
	}
}
