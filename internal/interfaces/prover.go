package interfaces

import (
	"context"

	"github.com/ternarybob/merces/internal/models"
)

// ProveInput describes the request a proof is generated for.
type ProveInput struct {
	// URL the response was fetched from. Only HTTPS URLs are provable.
	URL string `json:"url"`

	// Method is the HTTP method, defaulting to GET.
	Method string `json:"method,omitempty"`

	// Body is the response body the proof covers.
	Body string `json:"body,omitempty"`

	// NotaryURL optionally overrides the notary server.
	NotaryURL string `json:"notaryUrl,omitempty"`
}

// ProofClient generates a cryptographic proof over fetched response data.
// The scheme is opaque; callers may only rely on the hex-encoded payload.
type ProofClient interface {
	Prove(ctx context.Context, input ProveInput) (*models.Proof, error)
}
