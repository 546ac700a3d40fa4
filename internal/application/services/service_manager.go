package services

import (
	"github.com/fieldsync/backend/internal/infrastructure/database"
	"github.com/fieldsync/backend/internal/infrastructure/persistence"
	"github.com/fieldsync/backend/internal/infrastructure/upstream"
)

// ServiceManager wires all services with explicit dependency injection.
// Handlers and tests receive collaborators through this struct; there are
// no package-level singletons.
type ServiceManager struct {
	db *database.Connection

	TxManager *persistence.TransactionManager
	Tasks     *persistence.TaskRepository
	Types     *persistence.TaskTypeRepository
	Changes   *persistence.FieldChangeRepository

	Upstream  upstream.API
	Sync      *SyncService
	TypeSync  *TypeSyncService
	ChangeLog *ChangeLogService
	Retention *RetentionService
}

// NewServiceManager creates a new service manager with all dependencies wired
func NewServiceManager(db *database.Connection, api upstream.API, retention RetentionConfig) *ServiceManager {
	sm := &ServiceManager{
		db:       db,
		Upstream: api,
	}

	// Initialize services in dependency order
	sm.TxManager = persistence.NewTransactionManager(db)
	sm.Tasks = persistence.NewTaskRepository(db.DB())
	sm.Types = persistence.NewTaskTypeRepository(db.DB())
	sm.Changes = persistence.NewFieldChangeRepository(db.DB())

	sm.ChangeLog = NewChangeLogService(sm.Changes)
	sm.TypeSync = NewTypeSyncService(api, sm.TxManager, sm.Types, sm.Tasks)
	sm.Sync = NewSyncService(api, sm.TxManager, sm.Tasks, sm.TypeSync, sm.ChangeLog)
	sm.Retention = NewRetentionService(retention, sm.Tasks, sm.Types, sm.Changes)

	return sm
}

// StartRetention starts the background retention sweep
func (sm *ServiceManager) StartRetention() error {
	return sm.Retention.Start()
}

// StopRetention stops the background retention sweep
func (sm *ServiceManager) StopRetention() {
	sm.Retention.Stop()
}
