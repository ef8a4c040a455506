package badger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/merces/internal/interfaces"
	"github.com/ternarybob/merces/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// FollowedSpecStorage implements the FollowedSpecStorage interface for Badger
type FollowedSpecStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewFollowedSpecStorage creates a new FollowedSpecStorage instance
func NewFollowedSpecStorage(db *BadgerDB, logger arbor.ILogger) interfaces.FollowedSpecStorage {
	return &FollowedSpecStorage{
		db:     db,
		logger: logger,
	}
}

// Wallet addresses are checksummed inconsistently across callers, so the
// composite key always uses the lowercase form.
func followedSpecKey(wallet string, specID uint64) string {
	return fmt.Sprintf("%s:%d", strings.ToLower(wallet), specID)
}

func (s *FollowedSpecStorage) Add(ctx context.Context, spec *models.FollowedSpec) error {
	if spec.WalletAddress == "" {
		return fmt.Errorf("wallet address is required")
	}

	spec.WalletAddress = strings.ToLower(spec.WalletAddress)
	if spec.CreatedAt.IsZero() {
		spec.CreatedAt = time.Now()
	}

	key := followedSpecKey(spec.WalletAddress, spec.SpecID)
	if err := s.db.Store().Upsert(key, spec); err != nil {
		return fmt.Errorf("failed to store followed spec: %w", err)
	}

	s.logger.Debug().
		Str("wallet", spec.WalletAddress).
		Int64("spec_id", int64(spec.SpecID)).
		Msg("Followed spec stored")

	return nil
}

func (s *FollowedSpecStorage) Get(ctx context.Context, wallet string, specID uint64) (*models.FollowedSpec, error) {
	var spec models.FollowedSpec
	if err := s.db.Store().Get(followedSpecKey(wallet, specID), &spec); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get followed spec: %w", err)
	}
	return &spec, nil
}

func (s *FollowedSpecStorage) List(ctx context.Context, wallet string) ([]models.FollowedSpec, error) {
	var specs []models.FollowedSpec
	query := badgerhold.Where("WalletAddress").Eq(strings.ToLower(wallet))
	if err := s.db.Store().Find(&specs, query); err != nil {
		return nil, fmt.Errorf("failed to list followed specs: %w", err)
	}
	return specs, nil
}

func (s *FollowedSpecStorage) Update(ctx context.Context, wallet string, specID uint64, minBounty float64, autoClaim bool) error {
	spec, err := s.Get(ctx, wallet, specID)
	if err != nil {
		return err
	}

	spec.MinBounty = minBounty
	spec.AutoClaim = autoClaim

	key := followedSpecKey(wallet, specID)
	if err := s.db.Store().Update(key, spec); err != nil {
		return fmt.Errorf("failed to update followed spec: %w", err)
	}
	return nil
}

func (s *FollowedSpecStorage) Remove(ctx context.Context, wallet string, specID uint64) error {
	key := followedSpecKey(wallet, specID)
	if err := s.db.Store().Delete(key, &models.FollowedSpec{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil // Already removed
		}
		return fmt.Errorf("failed to remove followed spec: %w", err)
	}

	s.logger.Debug().
		Str("wallet", strings.ToLower(wallet)).
		Int64("spec_id", int64(specID)).
		Msg("Followed spec removed")

	return nil
}
