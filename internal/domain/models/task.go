package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// FieldDefinition captures the upstream definition of one custom field,
// keyed in FieldDefinitions by the field's clean name.
type FieldDefinition struct {
	ID           string                 `json:"id"`
	Type         string                 `json:"type"`
	TypeConfig   map[string]interface{} `json:"type_config,omitempty"`
	OriginalName string                 `json:"original_name"`
}

// FieldValue is one coerced value in the value document, keyed by the
// mapped storage key.
type FieldValue struct {
	Value        interface{} `json:"value"`
	SyncedAt     time.Time   `json:"synced_at"`
	FieldID      string      `json:"field_id"`
	OriginalName string      `json:"original_name"`
}

// Relationships is the task's relationship document: parent task id and
// the denormalized custom type name.
type Relationships struct {
	Parent         *string `json:"parent"`
	CustomTypeName *string `json:"custom_type_name"`
}

// FieldDefinitions is stored as a whole JSON document column
type FieldDefinitions map[string]FieldDefinition

// FieldValues is stored as a whole JSON document column
type FieldValues map[string]FieldValue

// Value implements driver.Valuer; empty maps serialize as {} rather than null
func (d FieldDefinitions) Value() (driver.Value, error) {
	if d == nil {
		d = FieldDefinitions{}
	}
	return json.Marshal(d)
}

// Scan implements sql.Scanner
func (d *FieldDefinitions) Scan(src interface{}) error {
	return scanJSON(src, d)
}

// Value implements driver.Valuer; empty maps serialize as {} rather than null
func (v FieldValues) Value() (driver.Value, error) {
	if v == nil {
		v = FieldValues{}
	}
	return json.Marshal(v)
}

// Scan implements sql.Scanner
func (v *FieldValues) Scan(src interface{}) error {
	return scanJSON(src, v)
}

// Value implements driver.Valuer
func (r Relationships) Value() (driver.Value, error) {
	return json.Marshal(r)
}

// Scan implements sql.Scanner
func (r *Relationships) Scan(src interface{}) error {
	return scanJSON(src, r)
}

func scanJSON(src, dest interface{}) error {
	switch data := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(data) == 0 {
			return nil
		}
		return json.Unmarshal(data, dest)
	case string:
		if data == "" {
			return nil
		}
		return json.Unmarshal([]byte(data), dest)
	default:
		return fmt.Errorf("cannot scan %T into JSON document", src)
	}
}

// Task is one row of the shared task table. The row is co-written by the
// external bulk importer (provenance and core descriptive columns) and by
// the sync core (documents, type linkage, timestamps).
type Task struct {
	ID string `json:"id"`

	// Importer-owned provenance. The core only writes these when it
	// synthesizes a placeholder row ahead of the importer.
	SourceSystem string    `json:"source_system"`
	ExtractedAt  time.Time `json:"extracted_at"`

	// Descriptive columns, refreshed coalesce-only (never overwritten
	// with null).
	Name        *string `json:"name"`
	TextContent *string `json:"text_content"`
	Description *string `json:"description"`
	Status      *string `json:"status"`

	CustomFields  FieldDefinitions `json:"custom_fields"`
	Relationships Relationships    `json:"relationships"`
	FieldValues   FieldValues      `json:"field_values"`

	CustomTypeID   *string `json:"custom_type_id"`
	CustomTypeName *string `json:"custom_type_name"`

	UpdatedAt  time.Time  `json:"updated_at"`
	ResyncedAt *time.Time `json:"resynced_at"`
}

// PlaceholderSourcePrefix tags rows this core created ahead of the bulk
// importer, so a later importer pass can recognize and overwrite the
// synthesized provenance.
const PlaceholderSourcePrefix = "fieldsync:placeholder:"

// PlaceholderSource derives the synthesized provenance tag for a task id
func PlaceholderSource(taskID string) string {
	return PlaceholderSourcePrefix + taskID
}

// TaskType is one row of the task_type side-table, fully owned by the
// catalog refresh (upsert + prune).
type TaskType struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Color       string    `json:"color"`
	Status      string    `json:"status"`
	OrderIndex  int       `json:"order_index"`
	WorkspaceID string    `json:"workspace_id"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FieldChange is one append-only ledger row recording a value transition
// for a (task, field) pair.
type FieldChange struct {
	ID        string          `json:"id"`
	TaskID    string          `json:"task_id"`
	FieldName string          `json:"field_name"`
	OldValue  json.RawMessage `json:"old_value"`
	NewValue  json.RawMessage `json:"new_value"`
	ChangedAt time.Time       `json:"changed_at"`
}

// FieldChangeEntry annotates a ledger row with its neighbours for the
// history read side.
type FieldChangeEntry struct {
	FieldChange
	PreviousValue json.RawMessage `json:"previous_value,omitempty"`
	NextValue     json.RawMessage `json:"next_value,omitempty"`
	// Duration until the next later change; zero for the most recent entry
	HeldFor time.Duration `json:"held_for_ns"`
}

// FieldChangeStats aggregates ledger activity for one field name
type FieldChangeStats struct {
	FieldName      string     `json:"field_name"`
	DistinctTasks  int        `json:"distinct_tasks"`
	TotalChanges   int        `json:"total_changes"`
	AvgPerTask     float64    `json:"avg_changes_per_task"`
	MaxPerTask     int        `json:"max_changes_per_task"`
	EarliestChange *time.Time `json:"earliest_change"`
	LatestChange   *time.Time `json:"latest_change"`
	DistinctValues int        `json:"distinct_values"`
}
