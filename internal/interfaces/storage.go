package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/merces/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// FollowedSpecStorage persists the specs an operator follows,
// keyed by (wallet address, spec id).
type FollowedSpecStorage interface {
	Add(ctx context.Context, spec *models.FollowedSpec) error
	Get(ctx context.Context, wallet string, specID uint64) (*models.FollowedSpec, error)
	List(ctx context.Context, wallet string) ([]models.FollowedSpec, error)
	Update(ctx context.Context, wallet string, specID uint64, minBounty float64, autoClaim bool) error
	Remove(ctx context.Context, wallet string, specID uint64) error
}

// ActiveJobStorage persists jobs currently being worked, keyed by job id.
type ActiveJobStorage interface {
	Create(ctx context.Context, job *models.ActiveJob) error
	Get(ctx context.Context, jobID string) (*models.ActiveJob, error)
	List(ctx context.Context) ([]models.ActiveJob, error)
	UpdateStatus(ctx context.Context, jobID string, status models.ActiveJobStatus, progress int) error
	SetResult(ctx context.Context, jobID string, resultPayload, proofData string) error
	SetError(ctx context.Context, jobID string, message string) error
	Delete(ctx context.Context, jobID string) error
}

// JobHistoryStorage is an append-only log of finished jobs.
type JobHistoryStorage interface {
	Append(ctx context.Context, record *models.JobHistoryRecord) error
	List(ctx context.Context, limit int) ([]models.JobHistoryRecord, error)
}

// StorageManager provides access to all storage interfaces
type StorageManager interface {
	FollowedSpecStorage() FollowedSpecStorage
	ActiveJobStorage() ActiveJobStorage
	JobHistoryStorage() JobHistoryStorage

	// DB returns the underlying database handle
	DB() interface{}

	// Close closes the database connection
	Close() error
}
