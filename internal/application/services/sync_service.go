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
	"github.com/fieldsync/backend/pkg/fieldmap"
)

// SyncService is the merge engine: it pulls one task's current upstream
// detail and reconciles it into the shared task row without touching the
// bulk importer's provenance columns.
//
// Concurrent syncs for the same task are allowed; consistency relies on
// transaction isolation only, and the final state is whichever commit
// lands last.
type SyncService struct {
	api       upstream.API
	txm       *persistence.TransactionManager
	tasks     *persistence.TaskRepository
	typeSync  *TypeSyncService
	changeLog *ChangeLogService
}

// NewSyncService creates a new SyncService
func NewSyncService(api upstream.API, txm *persistence.TransactionManager, tasks *persistence.TaskRepository, typeSync *TypeSyncService, changeLog *ChangeLogService) *SyncService {
	return &SyncService{api: api, txm: txm, tasks: tasks, typeSync: typeSync, changeLog: changeLog}
}

// SyncTaskFields fetches a task's detail, creates a placeholder row if the
// importer has not written one yet, normalizes every custom field through
// the catalog, and persists an idempotent partial update.
//
// Re-running with unchanged upstream data reproduces the same stored
// documents and writes no new ledger rows.
func (s *SyncService) SyncTaskFields(ctx context.Context, taskID string) (*models.Task, error) {
	detail, err := s.api.GetTaskDetail(ctx, taskID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NewNotFoundError("task in external source", taskID)
		}
		return nil, err
	}

	exists, err := s.tasks.Exists(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := s.insertPlaceholder(ctx, taskID, detail); err != nil {
			return nil, err
		}
	}

	existing, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		// Insert reported success but the row is gone; surface it rather
		// than writing into the void.
		return nil, apperrors.NewInternalError("task row not found after placeholder insert", nil)
	}

	// Type metadata is best-effort relative to field data
	if detail.WorkspaceID != "" {
		if _, err := s.typeSync.RefreshCatalog(ctx, detail.WorkspaceID); err != nil {
			log.Printf("⚠️  Task type catalog refresh failed for workspace %s: %v", detail.WorkspaceID, err)
		}
	}
	if detail.CustomType != nil {
		if _, err := s.typeSync.LinkTaskType(ctx, taskID, detail.CustomType.ID); err != nil {
			log.Printf("⚠️  Type link failed for task %s: %v", taskID, err)
		}
	}

	defs, values := s.stageFields(taskID, detail, existing)

	rel := models.Relationships{Parent: detail.Parent}
	if detail.CustomType != nil {
		rel.CustomTypeName = &detail.CustomType.Name
	}

	err = s.txm.WithTransaction(func(tx *sql.Tx) error {
		for key, fv := range values {
			var oldVal interface{}
			if prev, ok := existing.FieldValues[key]; ok {
				oldVal = prev.Value
			}
			if _, err := s.changeLog.RecordIfChanged(ctx, tx, taskID, key, oldVal, fv.Value); err != nil {
				return err
			}
		}

		return s.tasks.UpdateSynced(ctx, tx, taskID, persistence.SyncedUpdate{
			Name:          detail.Name,
			TextContent:   detail.TextContent,
			Description:   detail.Description,
			Status:        detail.Status,
			CustomFields:  defs,
			Relationships: rel,
			FieldValues:   values,
		})
	})
	if err != nil {
		return nil, err
	}

	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		// Deleted between commit and re-read; never report success with
		// no row to show for it
		return nil, apperrors.NewInternalError("task row deleted after sync commit", nil)
	}
	return task, nil
}

// insertPlaceholder creates the minimal row ahead of the bulk importer.
// The synthesized provenance tag is derived from the task id so a later
// importer pass can recognize and overwrite it.
func (s *SyncService) insertPlaceholder(ctx context.Context, taskID string, detail *upstream.TaskDetail) error {
	placeholder := &models.Task{
		ID:            taskID,
		SourceSystem:  models.PlaceholderSource(taskID),
		ExtractedAt:   time.Now().UTC(),
		Name:          detail.Name,
		TextContent:   detail.TextContent,
		Description:   detail.Description,
		Status:        detail.Status,
		CustomFields:  models.FieldDefinitions{},
		Relationships: models.Relationships{},
		FieldValues:   models.FieldValues{},
	}
	return s.tasks.InsertPlaceholder(ctx, placeholder)
}

// stageFields builds the field-definition and value documents for one merge
// run. Malformed entries are skipped, unmapped fields are retained in the
// definitions but carry no value, and values structurally equal to the
// stored ones are carried forward untouched so repeated runs stay
// byte-identical.
func (s *SyncService) stageFields(taskID string, detail *upstream.TaskDetail, existing *models.Task) (models.FieldDefinitions, models.FieldValues) {
	defs := models.FieldDefinitions{}
	values := models.FieldValues{}
	now := time.Now().UTC()

	for _, cf := range detail.CustomFields {
		clean := fieldmap.CleanName(cf.Name)
		if clean == "" {
			log.Printf("⚠️  Task %s has a custom field with no usable name (id=%s), skipping", taskID, cf.ID)
			continue
		}

		defs[clean] = models.FieldDefinition{
			ID:           cf.ID,
			Type:         cf.Type,
			TypeConfig:   cf.TypeConfig,
			OriginalName: cf.Name,
		}

		if cf.Value == nil {
			continue
		}

		mapping, ok := fieldmap.Classify(cf.Name)
		if !ok {
			// Unknown field names are a deliberate filter, not an error
			continue
		}

		coerced, err := mapping.Coerce(cf.Value)
		if err != nil {
			log.Printf("⚠️  Task %s field %q: %v, dropping value", taskID, clean, err)
			continue
		}

		key := mapping.StorageKey(clean)
		if prev, ok := existing.FieldValues[key]; ok {
			if equal, err := ValuesEqual(prev.Value, coerced); err == nil && equal {
				values[key] = prev
				continue
			}
		}
		values[key] = models.FieldValue{
			Value:        coerced,
			SyncedAt:     now,
			FieldID:      cf.ID,
			OriginalName: cf.Name,
		}
	}

	return defs, values
}
