package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fieldsync/backend/internal/domain/models"
)

// FieldChangeRepository handles the append-only field_change ledger
type FieldChangeRepository struct {
	db *sql.DB
}

// NewFieldChangeRepository creates a new FieldChangeRepository
func NewFieldChangeRepository(db *sql.DB) *FieldChangeRepository {
	return &FieldChangeRepository{db: db}
}

// Append writes one immutable ledger row. Ledger rows are never updated.
func (r *FieldChangeRepository) Append(ctx context.Context, exec Executor, c *models.FieldChange) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, task_id, field_name, old_value, new_value, changed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, TableFieldChange)

	_, err := exec.ExecContext(ctx, query,
		c.ID, c.TaskID, c.FieldName, []byte(c.OldValue), []byte(c.NewValue), c.ChangedAt)
	if err != nil {
		return fmt.Errorf("failed to append field change for task %s field %s: %w", c.TaskID, c.FieldName, err)
	}
	return nil
}

// ListByTaskField returns ledger rows for one (task, field) pair, newest
// first. A nil since means no lower bound.
func (r *FieldChangeRepository) ListByTaskField(ctx context.Context, taskID, fieldName string, limit int, since *time.Time) ([]models.FieldChange, error) {
	query := fmt.Sprintf(`
		SELECT id, task_id, field_name, old_value, new_value, changed_at
		FROM %s
		WHERE task_id = ? AND field_name = ?
	`, TableFieldChange)

	args := []interface{}{taskID, fieldName}
	if since != nil {
		query += " AND changed_at >= ?"
		args = append(args, *since)
	}
	query += " ORDER BY changed_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query field changes: %w", err)
	}
	defer rows.Close()

	var changes []models.FieldChange
	for rows.Next() {
		var c models.FieldChange
		var oldVal, newVal []byte
		if err := rows.Scan(&c.ID, &c.TaskID, &c.FieldName, &oldVal, &newVal, &c.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan field change: %w", err)
		}
		c.OldValue = oldVal
		c.NewValue = newVal
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// Stats aggregates ledger activity for one field name across all tasks
func (r *FieldChangeRepository) Stats(ctx context.Context, fieldName string) (*models.FieldChangeStats, error) {
	query := fmt.Sprintf(`
		SELECT
			COUNT(DISTINCT task_id),
			COUNT(*),
			MIN(changed_at),
			MAX(changed_at),
			COUNT(DISTINCT new_value)
		FROM %s
		WHERE field_name = ?
	`, TableFieldChange)

	stats := &models.FieldChangeStats{FieldName: fieldName}
	var earliest, latest sql.NullTime
	err := r.db.QueryRowContext(ctx, query, fieldName).Scan(
		&stats.DistinctTasks, &stats.TotalChanges, &earliest, &latest, &stats.DistinctValues,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate field change stats: %w", err)
	}
	if earliest.Valid {
		stats.EarliestChange = &earliest.Time
	}
	if latest.Valid {
		stats.LatestChange = &latest.Time
	}

	if stats.DistinctTasks > 0 {
		stats.AvgPerTask = float64(stats.TotalChanges) / float64(stats.DistinctTasks)

		maxQuery := fmt.Sprintf(`
			SELECT MAX(cnt) FROM (
				SELECT COUNT(*) AS cnt FROM %s WHERE field_name = ? GROUP BY task_id
			) per_task
		`, TableFieldChange)
		if err := r.db.QueryRowContext(ctx, maxQuery, fieldName).Scan(&stats.MaxPerTask); err != nil {
			return nil, fmt.Errorf("failed to aggregate max changes per task: %w", err)
		}
	}

	return stats, nil
}

// DeleteOlderThan removes ledger rows before the cutoff. Used only by the
// retention sweep.
func (r *FieldChangeRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE changed_at < ?", TableFieldChange)

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep old field changes: %w", err)
	}
	return result.RowsAffected()
}
