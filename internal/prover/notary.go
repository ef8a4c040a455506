// -----------------------------------------------------------------------
// HTTP notary proof client
// -----------------------------------------------------------------------

package prover

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/merces/internal/common"
	"github.com/ternarybob/merces/internal/interfaces"
	"github.com/ternarybob/merces/internal/models"
)

const defaultNotaryURL = "https://web-prover.vlayer.xyz/api/v1"

// NotaryClient implements ProofClient against a web prover HTTP API.
type NotaryClient struct {
	baseURL  string
	clientID string
	secret   string
	client   *http.Client
	logger   arbor.ILogger
}

// NewNotaryClient creates a proof client for the configured notary API.
func NewNotaryClient(cfg *common.ProverConfig, logger arbor.ILogger) *NotaryClient {
	baseURL := cfg.NotaryURL
	if baseURL == "" {
		baseURL = defaultNotaryURL
	}

	timeout := common.ParseDurationOr(cfg.Timeout, 60*time.Second)

	return &NotaryClient{
		baseURL:  baseURL,
		clientID: cfg.ClientID,
		secret:   cfg.Secret,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Prove posts the request description to the notary and returns the
// resulting presentation.
func (c *NotaryClient) Prove(ctx context.Context, input interfaces.ProveInput) (*models.Proof, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode prove request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prove", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build prove request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.clientID != "" {
		req.Header.Set("x-client-id", c.clientID)
	}
	if c.secret != "" {
		req.Header.Set("Authorization", "Bearer "+c.secret)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("prove request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("prove failed: %d - %s", resp.StatusCode, string(msg))
	}

	var proof models.Proof
	if err := json.NewDecoder(resp.Body).Decode(&proof); err != nil {
		return nil, fmt.Errorf("failed to decode prove response: %w", err)
	}

	c.logger.Debug().
		Str("url", input.URL).
		Dur("duration", time.Since(start)).
		Msg("Proof generated")

	return &proof, nil
}

// NewClient returns the proof client selected by configuration.
func NewClient(cfg *common.ProverConfig, logger arbor.ILogger) interfaces.ProofClient {
	if cfg.Mode == "notary" {
		return NewNotaryClient(cfg, logger)
	}
	return NewMockClient(time.Second, logger)
}
