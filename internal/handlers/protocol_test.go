package handlers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/merces/internal/common"
	"github.com/ternarybob/merces/internal/interfaces"
	"github.com/ternarybob/merces/internal/models"
	"github.com/ternarybob/merces/internal/storage/badger"
	"github.com/ternarybob/merces/internal/worker"
)

func newTestProtocol(t *testing.T) (*Protocol, *worker.Engine, interfaces.StorageManager) {
	t.Helper()

	logger := arbor.NewLogger()

	storage, err := badger.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	engine := worker.NewEngine(worker.EngineConfig{
		Registry: func() (interfaces.RegistryClient, error) {
			return nil, interfaces.ErrNotInitialized
		},
		Storage: storage,
	}, logger)

	return NewProtocol(engine, storage, logger), engine, storage
}

func dispatch(t *testing.T, p *Protocol, msgType string, payload interface{}) *OutboundMessage {
	t.Helper()

	raw, err := json.Marshal(map[string]interface{}{
		"type":    msgType,
		"payload": payload,
	})
	require.NoError(t, err)

	response := p.Handle(context.Background(), raw)
	require.NotNil(t, response)
	return response
}

func TestProtocolPing(t *testing.T) {
	p, _, _ := newTestProtocol(t)

	response := dispatch(t, p, MsgPing, nil)
	assert.Equal(t, MsgPong, response.Type)

	payload, ok := response.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, payload["version"])
}

func TestProtocolMalformedMessage(t *testing.T) {
	p, _, _ := newTestProtocol(t)

	response := p.Handle(context.Background(), []byte("{not json"))
	require.NotNil(t, response)
	assert.Equal(t, MsgError, response.Type)
}

func TestProtocolUnknownType(t *testing.T) {
	p, _, _ := newTestProtocol(t)

	response := dispatch(t, p, "MERCES_BOGUS", nil)
	assert.Equal(t, MsgError, response.Type)

	response = dispatch(t, p, "OTHER_PING", nil)
	assert.Equal(t, MsgError, response.Type)
}

func TestProtocolStartJob(t *testing.T) {
	p, engine, _ := newTestProtocol(t)

	response := dispatch(t, p, MsgStartJob, StartJobPayload{
		JobID:       "42",
		SpecID:      3,
		MainDomain:  "example.com",
		NotarizeURL: "https://example.com/api/items/{slug}",
		Inputs:      map[string]string{"slug": "widget-a"},
		Bounty:      "500000000000000000",
		Token:       "0x0000000000000000000000000000000000000000",
	})
	assert.Equal(t, MsgJobStarted, response.Type)

	jobs := engine.QueuedJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, uint64(42), jobs[0].JobID)
	assert.Equal(t, uint64(3), jobs[0].SpecID)
	assert.Equal(t, "500000000000000000", jobs[0].Bounty.String())
	assert.JSONEq(t, `{"slug":"widget-a"}`, jobs[0].Inputs)
}

func TestProtocolStartJobInvalidIDs(t *testing.T) {
	p, engine, _ := newTestProtocol(t)

	response := dispatch(t, p, MsgStartJob, StartJobPayload{JobID: "not-a-number"})
	assert.Equal(t, MsgError, response.Type)

	response = dispatch(t, p, MsgStartJob, StartJobPayload{JobID: "1", Bounty: "0xff"})
	assert.Equal(t, MsgError, response.Type)

	assert.Empty(t, engine.QueuedJobs())
}

func TestProtocolFollowAndQuerySpecs(t *testing.T) {
	p, _, _ := newTestProtocol(t)
	wallet := "0xAbC0000000000000000000000000000000000001"

	response := dispatch(t, p, MsgFollowSpec, FollowSpecPayload{
		SpecID:        7,
		WalletAddress: wallet,
		MainDomain:    "example.com",
		MinBounty:     0.25,
	})
	assert.Equal(t, MsgQueryResult, response.Type)

	response = dispatch(t, p, MsgQuery, QueryPayload{
		Query:         QueryFollowedSpecs,
		WalletAddress: wallet,
	})
	require.Equal(t, MsgQueryResult, response.Type)

	payload, ok := response.Payload.(map[string]interface{})
	require.True(t, ok)
	specs, ok := payload["data"].([]models.FollowedSpec)
	require.True(t, ok)
	require.Len(t, specs, 1)
	assert.Equal(t, uint64(7), specs[0].SpecID)
	assert.Equal(t, 0.25, specs[0].MinBounty)
}

func TestProtocolUnfollowSpec(t *testing.T) {
	p, _, storage := newTestProtocol(t)
	wallet := "0xabc0000000000000000000000000000000000001"

	dispatch(t, p, MsgFollowSpec, FollowSpecPayload{SpecID: 7, WalletAddress: wallet})
	dispatch(t, p, MsgUnfollowSpec, UnfollowSpecPayload{SpecID: 7, WalletAddress: wallet})

	specs, err := storage.FollowedSpecStorage().List(context.Background(), wallet)
	require.NoError(t, err)
	assert.Empty(t, specs)
}

func TestProtocolFollowRequiresWallet(t *testing.T) {
	p, _, _ := newTestProtocol(t)

	response := dispatch(t, p, MsgFollowSpec, FollowSpecPayload{SpecID: 7})
	assert.Equal(t, MsgError, response.Type)
}

func TestProtocolQueryActiveJob(t *testing.T) {
	p, _, storage := newTestProtocol(t)
	ctx := context.Background()

	require.NoError(t, storage.ActiveJobStorage().Create(ctx, &models.ActiveJob{
		JobID:      "9",
		SpecID:     1,
		MainDomain: "example.com",
		Bounty:     "100",
	}))

	response := dispatch(t, p, MsgQuery, QueryPayload{Query: QueryActiveJob, JobID: "9"})
	require.Equal(t, MsgQueryResult, response.Type)
	payload := response.Payload.(map[string]interface{})
	job, ok := payload["data"].(*models.ActiveJob)
	require.True(t, ok)
	assert.Equal(t, "9", job.JobID)

	// Missing job yields a nil result, not an error
	response = dispatch(t, p, MsgQuery, QueryPayload{Query: QueryActiveJob, JobID: "404"})
	require.Equal(t, MsgQueryResult, response.Type)
	payload = response.Payload.(map[string]interface{})
	assert.Nil(t, payload["data"])
}

func TestProtocolQueryJobHistory(t *testing.T) {
	p, _, storage := newTestProtocol(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, storage.JobHistoryStorage().Append(ctx, &models.JobHistoryRecord{
			JobID:  string(rune('1' + i)),
			SpecID: 1,
		}))
	}

	response := dispatch(t, p, MsgQuery, QueryPayload{Query: QueryJobHistory, Limit: 2})
	require.Equal(t, MsgQueryResult, response.Type)
	payload := response.Payload.(map[string]interface{})
	records, ok := payload["data"].([]models.JobHistoryRecord)
	require.True(t, ok)
	assert.Len(t, records, 2)
}

func TestProtocolUnknownQuery(t *testing.T) {
	p, _, _ := newTestProtocol(t)

	response := dispatch(t, p, MsgQuery, QueryPayload{Query: "GET_NONSENSE"})
	assert.Equal(t, MsgError, response.Type)
}
