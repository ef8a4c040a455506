package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/merces/internal/interfaces"
	"github.com/ternarybob/merces/internal/models"
)

// JobHistoryStorage implements the JobHistoryStorage interface for Badger
type JobHistoryStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobHistoryStorage creates a new JobHistoryStorage instance
func NewJobHistoryStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobHistoryStorage {
	return &JobHistoryStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobHistoryStorage) Append(ctx context.Context, record *models.JobHistoryRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CompletedAt.IsZero() {
		record.CompletedAt = time.Now()
	}

	if err := s.db.Store().Insert(record.ID, record); err != nil {
		return fmt.Errorf("failed to append history record: %w", err)
	}

	s.logger.Debug().
		Str("job_id", record.JobID).
		Str("bounty", record.BountyEarned).
		Msg("Job history record appended")

	return nil
}

func (s *JobHistoryStorage) List(ctx context.Context, limit int) ([]models.JobHistoryRecord, error) {
	var records []models.JobHistoryRecord
	if err := s.db.Store().Find(&records, nil); err != nil {
		return nil, fmt.Errorf("failed to list history records: %w", err)
	}

	// Newest first
	sort.Slice(records, func(i, j int) bool {
		return records[i].CompletedAt.After(records[j].CompletedAt)
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
