package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/fieldsync/backend/internal/domain/models"
)

// TaskTypeRepository handles database operations for the task_type
// side-table. The table is fully owned by the catalog refresh.
type TaskTypeRepository struct {
	db *sql.DB
}

// NewTaskTypeRepository creates a new TaskTypeRepository
func NewTaskTypeRepository(db *sql.DB) *TaskTypeRepository {
	return &TaskTypeRepository{db: db}
}

// UpsertAll inserts or updates every entry of the freshly fetched catalog.
// Runs inside the caller's transaction together with DeleteNotIn so the
// whole refresh is atomic.
func (r *TaskTypeRepository) UpsertAll(ctx context.Context, exec Executor, types []models.TaskType) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, name, color, status, order_index, workspace_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, NOW())
		ON DUPLICATE KEY UPDATE
			name = VALUES(name),
			color = VALUES(color),
			status = VALUES(status),
			order_index = VALUES(order_index),
			workspace_id = VALUES(workspace_id),
			updated_at = NOW()
	`, TableTaskType)

	for _, t := range types {
		if _, err := exec.ExecContext(ctx, query, t.ID, t.Name, t.Color, t.Status, t.OrderIndex, t.WorkspaceID); err != nil {
			return fmt.Errorf("failed to upsert task type %s: %w", t.ID, err)
		}
	}
	return nil
}

// DeleteNotIn removes local types whose id is not in the current remote
// set. An empty set clears the table.
func (r *TaskTypeRepository) DeleteNotIn(ctx context.Context, exec Executor, ids []string) (int64, error) {
	var result sql.Result
	var err error

	if len(ids) == 0 {
		result, err = exec.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", TableTaskType))
	} else {
		placeholders := strings.Repeat("?,", len(ids))
		placeholders = placeholders[:len(placeholders)-1]
		args := make([]interface{}, len(ids))
		for i, id := range ids {
			args[i] = id
		}
		query := fmt.Sprintf("DELETE FROM %s WHERE id NOT IN (%s)", TableTaskType, placeholders)
		result, err = exec.ExecContext(ctx, query, args...)
	}

	if err != nil {
		return 0, fmt.Errorf("failed to prune task types: %w", err)
	}
	return result.RowsAffected()
}

// GetByID fetches one type row. Returns (nil, nil) when absent.
func (r *TaskTypeRepository) GetByID(ctx context.Context, id string) (*models.TaskType, error) {
	query := fmt.Sprintf(`
		SELECT id, name, color, status, order_index, workspace_id, updated_at
		FROM %s WHERE id = ?
	`, TableTaskType)

	var t models.TaskType
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.Name, &t.Color, &t.Status, &t.OrderIndex, &t.WorkspaceID, &t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task type %s: %w", id, err)
	}
	return &t, nil
}

// DeleteUnreferenced removes type rows no task row points at. Used only by
// the retention sweep.
func (r *TaskTypeRepository) DeleteUnreferenced(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE id NOT IN (
			SELECT custom_type_id FROM %s WHERE custom_type_id IS NOT NULL
		)
	`, TableTaskType, TableTask)

	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep unreferenced task types: %w", err)
	}
	return result.RowsAffected()
}
