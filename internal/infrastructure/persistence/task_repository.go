package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/fieldsync/backend/internal/domain/models"
)

// TaskRepository handles database operations for the shared task table.
// The table is co-written by the external bulk importer; every statement
// here is written to stay off the importer's provenance columns.
type TaskRepository struct {
	db *sql.DB
}

// NewTaskRepository creates a new TaskRepository
func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskColumns = "id, source_system, extracted_at, name, text_content, description, status, " +
	"custom_fields, relationships, field_values, custom_type_id, custom_type_name, updated_at, resynced_at"

// Exists checks whether a task row exists by primary key
func (r *TaskRepository) Exists(ctx context.Context, id string) (bool, error) {
	query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE %s = ?)", TableTask, ColID)

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check task existence: %w", err)
	}
	return exists, nil
}

// GetByID fetches one task row. Returns (nil, nil) when the row is absent.
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*models.Task, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", taskColumns, TableTask, ColID)

	t, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	return t, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var t models.Task
	var resynced sql.NullTime
	err := row.Scan(
		&t.ID, &t.SourceSystem, &t.ExtractedAt,
		&t.Name, &t.TextContent, &t.Description, &t.Status,
		&t.CustomFields, &t.Relationships, &t.FieldValues,
		&t.CustomTypeID, &t.CustomTypeName,
		&t.UpdatedAt, &resynced,
	)
	if err != nil {
		return nil, err
	}
	if resynced.Valid {
		t.ResyncedAt = &resynced.Time
	}
	if t.CustomFields == nil {
		t.CustomFields = models.FieldDefinitions{}
	}
	if t.FieldValues == nil {
		t.FieldValues = models.FieldValues{}
	}
	return &t, nil
}

// InsertPlaceholder creates a minimal row ahead of the bulk importer, with
// synthesized provenance. Insert failures propagate; the caller must not
// swallow them.
func (r *TaskRepository) InsertPlaceholder(ctx context.Context, t *models.Task) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, source_system, extracted_at, name, text_content, description, status,
			custom_fields, relationships, field_values, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NOW())
	`, TableTask)

	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.SourceSystem, t.ExtractedAt,
		t.Name, t.TextContent, t.Description, t.Status,
		t.CustomFields, t.Relationships, t.FieldValues,
	)
	if err != nil {
		return fmt.Errorf("failed to insert placeholder for task %s: %w", t.ID, err)
	}
	return nil
}

// SyncedUpdate carries everything one merge run writes to the task row.
// The three documents replace the stored columns wholesale; the descriptive
// fields are coalesced (only written when non-null).
type SyncedUpdate struct {
	Name        *string
	TextContent *string
	Description *string
	Status      *string

	CustomFields  models.FieldDefinitions
	Relationships models.Relationships
	FieldValues   models.FieldValues
}

// UpdateSynced persists a merge run. Provenance columns (source_system,
// extracted_at) are never touched. Zero rows matched means the row vanished
// between existence check and update; the connection uses clientFoundRows so
// an unchanged update still reports its match count.
func (r *TaskRepository) UpdateSynced(ctx context.Context, exec Executor, id string, u SyncedUpdate) error {
	query := fmt.Sprintf(`
		UPDATE %s SET
			name = COALESCE(?, name),
			text_content = COALESCE(?, text_content),
			description = COALESCE(?, description),
			status = COALESCE(?, status),
			custom_fields = ?,
			relationships = ?,
			field_values = ?,
			updated_at = NOW(),
			resynced_at = NOW()
		WHERE id = ?
	`, TableTask)

	result, err := exec.ExecContext(ctx, query,
		u.Name, u.TextContent, u.Description, u.Status,
		u.CustomFields, u.Relationships, u.FieldValues,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update task %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected for task %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("task %s vanished during sync update", id)
	}
	return nil
}

// UpdateRelationships replaces the relationships document for one task
func (r *TaskRepository) UpdateRelationships(ctx context.Context, exec Executor, id string, rel models.Relationships) error {
	query := fmt.Sprintf("UPDATE %s SET relationships = ?, updated_at = NOW() WHERE id = ?", TableTask)

	_, err := exec.ExecContext(ctx, query, rel, id)
	if err != nil {
		return fmt.Errorf("failed to update relationships for task %s: %w", id, err)
	}
	return nil
}

// LinkType sets the type linkage (id plus denormalized name) for one task.
// A foreign-key violation means the type row disappeared under us; that is
// logged and treated as no update performed.
func (r *TaskRepository) LinkType(ctx context.Context, exec Executor, id string, typeID, typeName *string) error {
	query := fmt.Sprintf("UPDATE %s SET custom_type_id = ?, custom_type_name = ?, updated_at = NOW() WHERE id = ?", TableTask)

	_, err := exec.ExecContext(ctx, query, typeID, typeName, id)
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == ErrNumFKViolation {
			log.Printf("⚠️  Type link for task %s rejected by FK constraint, skipping", id)
			return nil
		}
		return fmt.Errorf("failed to link type for task %s: %w", id, err)
	}
	return nil
}

// GetUpdatedWithin returns tasks whose updated_at falls in the last N minutes
func (r *TaskRepository) GetUpdatedWithin(ctx context.Context, minutes int) ([]models.Task, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE updated_at >= NOW() - INTERVAL ? MINUTE
		ORDER BY updated_at DESC
	`, taskColumns, TableTask)

	rows, err := r.db.QueryContext(ctx, query, minutes)
	if err != nil {
		return nil, fmt.Errorf("failed to query recently updated tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			log.Printf("⚠️  Skipping unscannable task row: %v", err)
			continue
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// DeleteOlderThan removes task rows whose update timestamp is before the
// cutoff. Used only by the retention sweep.
func (r *TaskRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE updated_at < ?", TableTask)

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep old tasks: %w", err)
	}
	return result.RowsAffected()
}
