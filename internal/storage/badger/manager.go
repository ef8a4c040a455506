package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/merces/internal/common"
	"github.com/ternarybob/merces/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db           *BadgerDB
	followedSpec interfaces.FollowedSpecStorage
	activeJob    interfaces.ActiveJobStorage
	jobHistory   interfaces.JobHistoryStorage
	logger       arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:           db,
		followedSpec: NewFollowedSpecStorage(db, logger),
		activeJob:    NewActiveJobStorage(db, logger),
		jobHistory:   NewJobHistoryStorage(db, logger),
		logger:       logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// FollowedSpecStorage returns the FollowedSpec storage interface
func (m *Manager) FollowedSpecStorage() interfaces.FollowedSpecStorage {
	return m.followedSpec
}

// ActiveJobStorage returns the ActiveJob storage interface
func (m *Manager) ActiveJobStorage() interfaces.ActiveJobStorage {
	return m.activeJob
}

// JobHistoryStorage returns the JobHistory storage interface
func (m *Manager) JobHistoryStorage() interfaces.JobHistoryStorage {
	return m.jobHistory
}

// DB returns the underlying database connection
func (m *Manager) DB() interface{} {
	if m.db != nil {
		return m.db.Store()
	}
	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
