// -----------------------------------------------------------------------
// Mock proof client for development and tests - no notary round trip
// -----------------------------------------------------------------------

package prover

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/merces/internal/interfaces"
	"github.com/ternarybob/merces/internal/models"
)

const (
	mockVersion   = "1.0.0-mock"
	mockNotaryURL = "https://mock-notary.local"
)

// MockClient implements ProofClient without a notary round trip. The
// proof payload is a hex encoding of the request description, which is
// enough for callers to treat it as opaque data.
type MockClient struct {
	simulatedDelay time.Duration
	logger         arbor.ILogger
}

// NewMockClient creates a mock proof client.
func NewMockClient(simulatedDelay time.Duration, logger arbor.ILogger) *MockClient {
	if simulatedDelay <= 0 {
		simulatedDelay = time.Second
	}
	return &MockClient{
		simulatedDelay: simulatedDelay,
		logger:         logger,
	}
}

// Prove returns a synthetic proof after a simulated network delay.
func (c *MockClient) Prove(ctx context.Context, input interfaces.ProveInput) (*models.Proof, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(c.simulatedDelay):
	}

	method := input.Method
	if method == "" {
		method = "GET"
	}

	payload, err := json.Marshal(map[string]interface{}{
		"url":       input.URL,
		"method":    method,
		"timestamp": time.Now().UnixMilli(),
		"mock":      true,
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug().Str("url", input.URL).Msg("Mock proof generated")

	return &models.Proof{
		Data:    "0x" + hex.EncodeToString(payload),
		Version: mockVersion,
		Meta:    models.ProofMeta{NotaryURL: mockNotaryURL},
	}, nil
}
