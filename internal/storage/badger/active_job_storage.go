package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/merces/internal/interfaces"
	"github.com/ternarybob/merces/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ActiveJobStorage implements the ActiveJobStorage interface for Badger
type ActiveJobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewActiveJobStorage creates a new ActiveJobStorage instance
func NewActiveJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ActiveJobStorage {
	return &ActiveJobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ActiveJobStorage) Create(ctx context.Context, job *models.ActiveJob) error {
	if job.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	if job.StartedAt.IsZero() {
		job.StartedAt = time.Now()
	}
	if job.Status == "" {
		job.Status = models.ActiveJobPending
	}

	if err := s.db.Store().Upsert(job.JobID, job); err != nil {
		return fmt.Errorf("failed to store active job: %w", err)
	}

	s.logger.Debug().
		Str("job_id", job.JobID).
		Str("status", string(job.Status)).
		Msg("Active job stored")

	return nil
}

func (s *ActiveJobStorage) Get(ctx context.Context, jobID string) (*models.ActiveJob, error) {
	var job models.ActiveJob
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get active job: %w", err)
	}
	return &job, nil
}

func (s *ActiveJobStorage) List(ctx context.Context) ([]models.ActiveJob, error) {
	var jobs []models.ActiveJob
	if err := s.db.Store().Find(&jobs, nil); err != nil {
		return nil, fmt.Errorf("failed to list active jobs: %w", err)
	}
	return jobs, nil
}

func (s *ActiveJobStorage) UpdateStatus(ctx context.Context, jobID string, status models.ActiveJobStatus, progress int) error {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}

	job.Status = status
	job.Progress = progress

	if err := s.db.Store().Update(jobID, job); err != nil {
		return fmt.Errorf("failed to update active job status: %w", err)
	}
	return nil
}

func (s *ActiveJobStorage) SetResult(ctx context.Context, jobID string, resultPayload, proofData string) error {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}

	now := time.Now()
	job.Status = models.ActiveJobCompleted
	job.Progress = 100
	job.ResultPayload = resultPayload
	job.ProofData = proofData
	job.CompletedAt = &now

	if err := s.db.Store().Update(jobID, job); err != nil {
		return fmt.Errorf("failed to set active job result: %w", err)
	}
	return nil
}

func (s *ActiveJobStorage) SetError(ctx context.Context, jobID string, message string) error {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}

	now := time.Now()
	job.Status = models.ActiveJobFailed
	job.Progress = 0
	job.ErrorMessage = message
	job.CompletedAt = &now

	if err := s.db.Store().Update(jobID, job); err != nil {
		return fmt.Errorf("failed to set active job error: %w", err)
	}
	return nil
}

func (s *ActiveJobStorage) Delete(ctx context.Context, jobID string) error {
	if err := s.db.Store().Delete(jobID, &models.ActiveJob{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil // Already deleted
		}
		return fmt.Errorf("failed to delete active job: %w", err)
	}
	return nil
}
