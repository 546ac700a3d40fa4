package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fieldsync/backend/internal/domain/models"
	"github.com/fieldsync/backend/internal/infrastructure/persistence"
	"github.com/fieldsync/backend/pkg/utils"
)

// ChangeLogService maintains the append-only field_change ledger and its
// read side.
type ChangeLogService struct {
	changes *persistence.FieldChangeRepository
}

// NewChangeLogService creates a new ChangeLogService
func NewChangeLogService(changes *persistence.FieldChangeRepository) *ChangeLogService {
	return &ChangeLogService{changes: changes}
}

// canonicalJSON serializes a value through an unmarshal/marshal roundtrip so
// that map key order and numeric representation are normalized. Two values
// are structurally equal iff their canonical bytes are equal.
func canonicalJSON(v interface{}) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize value: %w", err)
	}

	var normalized interface{}
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return nil, fmt.Errorf("failed to normalize value: %w", err)
	}
	return json.Marshal(normalized)
}

// ValuesEqual reports structural equality of two field values under
// canonical JSON serialization.
func ValuesEqual(a, b interface{}) (bool, error) {
	ca, err := canonicalJSON(a)
	if err != nil {
		return false, err
	}
	cb, err := canonicalJSON(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ca, cb), nil
}

// RecordIfChanged appends a ledger row when newVal differs structurally
// from oldVal. Returns whether a row was written. Runs on the caller's
// executor so the append commits with the merge that produced it.
func (s *ChangeLogService) RecordIfChanged(ctx context.Context, exec persistence.Executor, taskID, fieldName string, oldVal, newVal interface{}) (bool, error) {
	equal, err := ValuesEqual(oldVal, newVal)
	if err != nil {
		return false, err
	}
	if equal {
		return false, nil
	}

	oldJSON, err := canonicalJSON(oldVal)
	if err != nil {
		return false, err
	}
	newJSON, err := canonicalJSON(newVal)
	if err != nil {
		return false, err
	}

	change := &models.FieldChange{
		ID:        utils.GenerateID(),
		TaskID:    taskID,
		FieldName: fieldName,
		OldValue:  oldJSON,
		NewValue:  newJSON,
		ChangedAt: time.Now().UTC(),
	}
	if err := s.changes.Append(ctx, exec, change); err != nil {
		return false, err
	}
	return true, nil
}

// History returns the newest-first change sequence for a (task, field)
// pair, each entry annotated with its neighbouring values and how long the
// value was held before the next later change.
func (s *ChangeLogService) History(ctx context.Context, taskID, fieldName string, limit int, since *time.Time) ([]models.FieldChangeEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	changes, err := s.changes.ListByTaskField(ctx, taskID, fieldName, limit, since)
	if err != nil {
		return nil, err
	}

	entries := make([]models.FieldChangeEntry, len(changes))
	for i, c := range changes {
		entry := models.FieldChangeEntry{FieldChange: c}
		if i+1 < len(changes) {
			entry.PreviousValue = changes[i+1].NewValue
		}
		if i > 0 {
			entry.NextValue = changes[i-1].NewValue
			entry.HeldFor = changes[i-1].ChangedAt.Sub(c.ChangedAt)
		}
		entries[i] = entry
	}
	return entries, nil
}

// ChangeStats aggregates ledger activity for one field name
func (s *ChangeLogService) ChangeStats(ctx context.Context, fieldName string) (*models.FieldChangeStats, error) {
	return s.changes.Stats(ctx, fieldName)
}
