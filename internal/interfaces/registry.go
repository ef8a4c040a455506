package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/merces/internal/models"
)

// ErrNotInitialized is returned by chain accessors before the operator has
// supplied connection settings. Callers must check Initialized first and
// skip gracefully rather than let this propagate into a poll loop.
var ErrNotInitialized = errors.New("chain clients not initialized")

// RegistryClient is the read/write surface of the on-chain job registry.
type RegistryClient interface {
	// JobCount returns the total number of jobs ever created on the ledger.
	JobCount(ctx context.Context) (uint64, error)

	// JobByIndex returns the job record at the given ledger index.
	JobByIndex(ctx context.Context, jobID uint64) (*models.Job, error)

	// JobSpecByID returns the spec record for the given spec id.
	JobSpecByID(ctx context.Context, specID uint64) (*models.JobSpec, error)

	// SubmitWork submits a result payload for a job and returns the
	// transaction hash.
	SubmitWork(ctx context.Context, jobID uint64, resultPayload string) (string, error)

	// WaitForReceipt blocks until the transaction is mined. It returns an
	// error if the receipt indicates the transaction reverted.
	WaitForReceipt(ctx context.Context, txHash string) error
}

// RegistryProvider resolves the current registry client at call time.
// Configuration may change via reinitialization, so consumers must not
// cache the client at construction.
type RegistryProvider func() (RegistryClient, error)
