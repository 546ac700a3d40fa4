package services

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/fieldsync/backend/internal/domain/models"
	"github.com/fieldsync/backend/internal/infrastructure/persistence"
	"github.com/fieldsync/backend/internal/infrastructure/upstream"
	apperrors "github.com/fieldsync/backend/pkg/errors"
)

// TypeSyncService keeps the task_type side-table equal to the remote
// catalog and maintains type/parent linkage on task rows.
type TypeSyncService struct {
	api   upstream.API
	txm   *persistence.TransactionManager
	types *persistence.TaskTypeRepository
	tasks *persistence.TaskRepository
}

// NewTypeSyncService creates a new TypeSyncService
func NewTypeSyncService(api upstream.API, txm *persistence.TransactionManager, types *persistence.TaskTypeRepository, tasks *persistence.TaskRepository) *TypeSyncService {
	return &TypeSyncService{api: api, txm: txm, types: types, tasks: tasks}
}

// RefreshCatalog pulls the full remote type list and reconciles the local
// side-table against it: upsert every entry, then delete ids not in the
// fetched set. Upserts and prune run in one transaction, so a fetch failure
// can never cause spurious deletions.
func (s *TypeSyncService) RefreshCatalog(ctx context.Context, workspaceID string) ([]models.TaskType, error) {
	defs, err := s.api.GetCustomTypes(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	types := make([]models.TaskType, len(defs))
	ids := make([]string, len(defs))
	for i, d := range defs {
		types[i] = models.TaskType{
			ID:          d.ID,
			Name:        d.Name,
			Color:       d.Color,
			Status:      d.Status,
			OrderIndex:  d.OrderIndex,
			WorkspaceID: workspaceID,
			UpdatedAt:   now,
		}
		ids[i] = d.ID
	}

	err = s.txm.WithTransaction(func(tx *sql.Tx) error {
		if err := s.types.UpsertAll(ctx, tx, types); err != nil {
			return err
		}
		pruned, err := s.types.DeleteNotIn(ctx, tx, ids)
		if err != nil {
			return err
		}
		if pruned > 0 {
			log.Printf("🧹 Pruned %d task types no longer in workspace %s", pruned, workspaceID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return types, nil
}

// LinkTaskType sets one task's type id and denormalized type name, looked
// up by id at write time, in its own transaction.
func (s *TypeSyncService) LinkTaskType(ctx context.Context, taskID, typeID string) (*models.Task, error) {
	typeRow, err := s.types.GetByID(ctx, typeID)
	if err != nil {
		return nil, err
	}

	var typeName *string
	idRef := &typeID
	if typeRow != nil {
		typeName = &typeRow.Name
	}

	err = s.txm.WithTransaction(func(tx *sql.Tx) error {
		return s.tasks.LinkType(ctx, tx, taskID, idRef, typeName)
	})
	if err != nil {
		return nil, err
	}

	return s.tasks.GetByID(ctx, taskID)
}

// SyncRelationships refreshes one task's relationship document from
// upstream detail. The parent reference is validated against the local
// store first; an unresolvable parent is stored as null rather than
// failing the operation.
func (s *TypeSyncService) SyncRelationships(ctx context.Context, taskID string) error {
	detail, err := s.api.GetTaskDetail(ctx, taskID)
	if err != nil {
		return err
	}

	exists, err := s.tasks.Exists(ctx, taskID)
	if err != nil {
		return err
	}
	if !exists {
		return apperrors.NewNotFoundError("task", taskID)
	}

	rel := models.Relationships{Parent: detail.Parent}
	if detail.CustomType != nil {
		rel.CustomTypeName = &detail.CustomType.Name
	}

	if rel.Parent != nil {
		parentExists, err := s.tasks.Exists(ctx, *rel.Parent)
		if err != nil {
			return err
		}
		if !parentExists {
			log.Printf("⚠️  Task %s claims unknown parent %s, dropping reference", taskID, *rel.Parent)
			rel.Parent = nil
		}
	}

	return s.txm.WithTransaction(func(tx *sql.Tx) error {
		return s.tasks.UpdateRelationships(ctx, tx, taskID, rel)
	})
}
