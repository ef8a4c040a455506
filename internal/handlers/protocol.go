// -----------------------------------------------------------------------
// Web-app message protocol - MERCES_* envelope over WebSocket
// -----------------------------------------------------------------------

package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/merces/internal/common"
	"github.com/ternarybob/merces/internal/interfaces"
	"github.com/ternarybob/merces/internal/models"
	"github.com/ternarybob/merces/internal/worker"
)

// MessagePrefix marks every protocol message type.
const MessagePrefix = "MERCES_"

// Web app -> engine message types
const (
	MsgPing         = "MERCES_PING"
	MsgStartJob     = "MERCES_START_JOB"
	MsgQuery        = "MERCES_QUERY"
	MsgFollowSpec   = "MERCES_FOLLOW_SPEC"
	MsgUnfollowSpec = "MERCES_UNFOLLOW_SPEC"
)

// Engine -> web app message types
const (
	MsgPong            = "MERCES_PONG"
	MsgJobStarted      = "MERCES_JOB_STARTED"
	MsgJobProgress     = "MERCES_JOB_PROGRESS"
	MsgJobCompleted    = "MERCES_JOB_COMPLETED"
	MsgJobFailed       = "MERCES_JOB_FAILED"
	MsgQueryResult     = "MERCES_QUERY_RESULT"
	MsgExtensionStatus = "MERCES_EXTENSION_STATUS"
	MsgQueueChanged    = "MERCES_QUEUE_CHANGED"
	MsgError           = "MERCES_ERROR"
)

// Query names accepted inside a MERCES_QUERY payload
const (
	QueryFollowedSpecs = "GET_FOLLOWED_SPECS"
	QueryActiveJobs    = "GET_ACTIVE_JOBS"
	QueryActiveJob     = "GET_ACTIVE_JOB"
	QueryJobHistory    = "GET_JOB_HISTORY"
)

const defaultHistoryLimit = 50

// InboundMessage is the raw envelope read off the wire.
type InboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OutboundMessage is the envelope written back.
type OutboundMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// StartJobPayload starts a job by hand. Ids and bounty cross the wire as
// decimal strings because the web side cannot carry full 64/256-bit
// integers natively.
type StartJobPayload struct {
	JobID              string            `json:"jobId"`
	SpecID             uint64            `json:"specId"`
	MainDomain         string            `json:"mainDomain"`
	NotarizeURL        string            `json:"notarizeUrl"`
	Inputs             map[string]string `json:"inputs,omitempty"`
	PromptInstructions string            `json:"promptInstructions,omitempty"`
	OutputSchema       string            `json:"outputSchema,omitempty"`
	Bounty             string            `json:"bounty"`
	Token              string            `json:"token"`
}

// QueryPayload selects one of the store queries.
type QueryPayload struct {
	Query         string `json:"query"`
	WalletAddress string `json:"walletAddress,omitempty"`
	JobID         string `json:"jobId,omitempty"`
	Limit         int    `json:"limit,omitempty"`
}

// FollowSpecPayload registers interest in a spec.
type FollowSpecPayload struct {
	SpecID        uint64  `json:"specId"`
	WalletAddress string  `json:"walletAddress"`
	MainDomain    string  `json:"mainDomain"`
	MinBounty     float64 `json:"minBounty,omitempty"`
	AutoClaim     bool    `json:"autoClaim,omitempty"`
}

// UnfollowSpecPayload removes interest in a spec.
type UnfollowSpecPayload struct {
	SpecID        uint64 `json:"specId"`
	WalletAddress string `json:"walletAddress"`
}

// ErrorPayload is the generic error envelope.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Protocol dispatches inbound protocol messages against the engine and
// the store. Every malformed or failing message yields a MERCES_ERROR
// response instead of closing the connection.
type Protocol struct {
	engine  *worker.Engine
	storage interfaces.StorageManager
	logger  arbor.ILogger
}

// NewProtocol creates a protocol dispatcher.
func NewProtocol(engine *worker.Engine, storage interfaces.StorageManager, logger arbor.ILogger) *Protocol {
	return &Protocol{
		engine:  engine,
		storage: storage,
		logger:  logger,
	}
}

func errorMessage(format string, args ...interface{}) *OutboundMessage {
	return &OutboundMessage{
		Type:    MsgError,
		Payload: ErrorPayload{Message: fmt.Sprintf(format, args...)},
	}
}

// Handle dispatches one raw inbound message and returns the response.
func (p *Protocol) Handle(ctx context.Context, raw []byte) *OutboundMessage {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return errorMessage("malformed message: %v", err)
	}
	if !strings.HasPrefix(msg.Type, MessagePrefix) {
		return errorMessage("unknown message type: %s", msg.Type)
	}

	switch msg.Type {
	case MsgPing:
		return p.handlePing()
	case MsgStartJob:
		return p.handleStartJob(msg.Payload)
	case MsgQuery:
		return p.handleQuery(ctx, msg.Payload)
	case MsgFollowSpec:
		return p.handleFollowSpec(ctx, msg.Payload)
	case MsgUnfollowSpec:
		return p.handleUnfollowSpec(ctx, msg.Payload)
	default:
		return errorMessage("unknown message type: %s", msg.Type)
	}
}

func (p *Protocol) handlePing() *OutboundMessage {
	return &OutboundMessage{
		Type: MsgPong,
		Payload: map[string]interface{}{
			"version": common.GetVersion(),
		},
	}
}

func (p *Protocol) handleStartJob(raw json.RawMessage) *OutboundMessage {
	var payload StartJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return errorMessage("malformed start_job payload: %v", err)
	}

	jobID, err := strconv.ParseUint(payload.JobID, 10, 64)
	if err != nil {
		return errorMessage("invalid job id: %s", payload.JobID)
	}

	bounty := new(big.Int)
	if payload.Bounty != "" {
		if _, ok := bounty.SetString(payload.Bounty, 10); !ok {
			return errorMessage("invalid bounty: %s", payload.Bounty)
		}
	}

	inputs := ""
	if len(payload.Inputs) > 0 {
		encoded, err := json.Marshal(payload.Inputs)
		if err != nil {
			return errorMessage("invalid inputs: %v", err)
		}
		inputs = string(encoded)
	}

	p.engine.EnqueueJob(&models.JobWithSpec{
		JobID:              jobID,
		SpecID:             payload.SpecID,
		Inputs:             inputs,
		Bounty:             bounty,
		Token:              payload.Token,
		MainDomain:         payload.MainDomain,
		NotarizeURL:        payload.NotarizeURL,
		PromptInstructions: payload.PromptInstructions,
		OutputSchema:       payload.OutputSchema,
	})

	p.logger.Info().Str("job_id", payload.JobID).Msg("Job started via protocol message")

	return &OutboundMessage{
		Type:    MsgJobStarted,
		Payload: map[string]string{"jobId": payload.JobID},
	}
}

func (p *Protocol) handleQuery(ctx context.Context, raw json.RawMessage) *OutboundMessage {
	var payload QueryPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return errorMessage("malformed query payload: %v", err)
	}

	queryResult := func(data interface{}) *OutboundMessage {
		return &OutboundMessage{
			Type: MsgQueryResult,
			Payload: map[string]interface{}{
				"query": payload.Query,
				"data":  data,
			},
		}
	}

	switch payload.Query {
	case QueryFollowedSpecs:
		specs, err := p.storage.FollowedSpecStorage().List(ctx, payload.WalletAddress)
		if err != nil {
			return errorMessage("failed to list followed specs: %v", err)
		}
		return queryResult(specs)

	case QueryActiveJobs:
		jobs, err := p.storage.ActiveJobStorage().List(ctx)
		if err != nil {
			return errorMessage("failed to list active jobs: %v", err)
		}
		return queryResult(jobs)

	case QueryActiveJob:
		job, err := p.storage.ActiveJobStorage().Get(ctx, payload.JobID)
		if err == interfaces.ErrNotFound {
			return queryResult(nil)
		}
		if err != nil {
			return errorMessage("failed to get active job: %v", err)
		}
		return queryResult(job)

	case QueryJobHistory:
		limit := payload.Limit
		if limit <= 0 {
			limit = defaultHistoryLimit
		}
		records, err := p.storage.JobHistoryStorage().List(ctx, limit)
		if err != nil {
			return errorMessage("failed to list job history: %v", err)
		}
		return queryResult(records)

	default:
		return errorMessage("unknown query: %s", payload.Query)
	}
}

func (p *Protocol) handleFollowSpec(ctx context.Context, raw json.RawMessage) *OutboundMessage {
	var payload FollowSpecPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return errorMessage("malformed follow_spec payload: %v", err)
	}
	if payload.WalletAddress == "" {
		return errorMessage("wallet address is required")
	}

	spec := &models.FollowedSpec{
		SpecID:        payload.SpecID,
		WalletAddress: payload.WalletAddress,
		MainDomain:    payload.MainDomain,
		MinBounty:     payload.MinBounty,
		AutoClaim:     payload.AutoClaim,
	}
	if err := p.storage.FollowedSpecStorage().Add(ctx, spec); err != nil {
		return errorMessage("failed to follow spec: %v", err)
	}

	p.refreshCriteria(ctx, payload.WalletAddress)

	return &OutboundMessage{
		Type: MsgQueryResult,
		Payload: map[string]interface{}{
			"query": "FOLLOW_SPEC",
			"data":  spec,
		},
	}
}

func (p *Protocol) handleUnfollowSpec(ctx context.Context, raw json.RawMessage) *OutboundMessage {
	var payload UnfollowSpecPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return errorMessage("malformed unfollow_spec payload: %v", err)
	}

	if err := p.storage.FollowedSpecStorage().Remove(ctx, payload.WalletAddress, payload.SpecID); err != nil {
		return errorMessage("failed to unfollow spec: %v", err)
	}

	p.refreshCriteria(ctx, payload.WalletAddress)

	return &OutboundMessage{
		Type: MsgQueryResult,
		Payload: map[string]interface{}{
			"query": "UNFOLLOW_SPEC",
			"data":  map[string]uint64{"specId": payload.SpecID},
		},
	}
}

// refreshCriteria rebuilds the engine's acceptance criteria from the
// wallet's followed specs. The listener keeps its ledger position.
func (p *Protocol) refreshCriteria(ctx context.Context, wallet string) {
	specs, err := p.storage.FollowedSpecStorage().List(ctx, wallet)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Failed to reload followed specs")
		return
	}

	approved := make([]uint64, 0, len(specs))
	minBounty := make(map[uint64]float64, len(specs))
	for _, spec := range specs {
		approved = append(approved, spec.SpecID)
		if spec.MinBounty > 0 {
			minBounty[spec.SpecID] = spec.MinBounty
		}
	}

	p.engine.SetApprovedSpecs(approved, minBounty)
}
