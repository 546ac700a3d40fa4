package services

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsync/backend/internal/domain/models"
	"github.com/fieldsync/backend/internal/infrastructure/persistence"
	"github.com/fieldsync/backend/internal/infrastructure/upstream"
	apperrors "github.com/fieldsync/backend/pkg/errors"
)

// fakeAPI substitutes the remote service in service tests
type fakeAPI struct {
	detail func(ctx context.Context, taskID string) (*upstream.TaskDetail, error)
	types  func(ctx context.Context, workspaceID string) ([]upstream.TypeDef, error)
}

func (f *fakeAPI) GetTaskDetail(ctx context.Context, taskID string) (*upstream.TaskDetail, error) {
	if f.detail == nil {
		return nil, apperrors.NewNotFoundError("task", taskID)
	}
	return f.detail(ctx, taskID)
}

func (f *fakeAPI) GetCustomTypes(ctx context.Context, workspaceID string) ([]upstream.TypeDef, error) {
	if f.types == nil {
		return nil, nil
	}
	return f.types(ctx, workspaceID)
}

func (f *fakeAPI) ListTasksInSpace(ctx context.Context, spaceID string) ([]upstream.TaskSummary, error) {
	return nil, nil
}

func (f *fakeAPI) ListTasksInList(ctx context.Context, listID string) ([]upstream.TaskSummary, error) {
	return nil, nil
}

func newSyncFixture(t *testing.T, api *fakeAPI) (*SyncService, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}

	txm := persistence.NewTransactionManager(db)
	tasks := persistence.NewTaskRepository(db)
	types := persistence.NewTaskTypeRepository(db)
	changes := persistence.NewFieldChangeRepository(db)

	changeLog := NewChangeLogService(changes)
	typeSync := NewTypeSyncService(api, txm, types, tasks)
	svc := NewSyncService(api, txm, tasks, typeSync, changeLog)

	return svc, mock, func() { db.Close() }
}

func syncTaskRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "source_system", "extracted_at", "name", "text_content", "description", "status",
		"custom_fields", "relationships", "field_values", "custom_type_id", "custom_type_name",
		"updated_at", "resynced_at",
	})
}

func strPtr(s string) *string { return &s }

// Pins the coalesce wrapping of the descriptive columns, not just the
// statement prefix; a destructive rewrite of the importer's columns must
// fail these expectations.
var coalesceUpdate = regexp.QuoteMeta(
	"name = COALESCE(?, name), " +
		"text_content = COALESCE(?, text_content), " +
		"description = COALESCE(?, description), " +
		"status = COALESCE(?, status)")

func TestSyncTaskFields_UpstreamNotFound(t *testing.T) {
	api := &fakeAPI{}
	svc, mock, closeDB := newSyncFixture(t, api)
	defer closeDB()

	_, err := svc.SyncTaskFields(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncTaskFields_CreatesPlaceholderAndMapsField(t *testing.T) {
	now := time.Now().UTC()
	api := &fakeAPI{
		detail: func(ctx context.Context, taskID string) (*upstream.TaskDetail, error) {
			return &upstream.TaskDetail{
				ID:   taskID,
				Name: strPtr("Fix login"),
				CustomFields: []upstream.CustomField{
					{ID: "f1", Name: "Client 🎯", Type: "text", Value: "Acme"},
				},
			}, nil
		},
	}
	svc, mock, closeDB := newSyncFixture(t, api)
	defer closeDB()

	expectedDefs, _ := json.Marshal(models.FieldDefinitions{
		"Client": {ID: "f1", Type: "text", OriginalName: "Client 🎯"},
	})
	expectedRel, _ := json.Marshal(models.Relationships{})

	mock.ExpectQuery("SELECT EXISTS").WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO task").
		WithArgs(
			"task-1", models.PlaceholderSource("task-1"), sqlmock.AnyArg(),
			strPtr("Fix login"), nil, nil, nil,
			[]byte(`{}`), expectedRel, []byte(`{}`),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT .+ FROM task WHERE id = ?").WithArgs("task-1").
		WillReturnRows(syncTaskRows().AddRow(
			"task-1", models.PlaceholderSource("task-1"), now, "Fix login", nil, nil, nil,
			[]byte(`{}`), expectedRel, []byte(`{}`), nil, nil, now, nil,
		))

	mock.ExpectBegin()
	// The sanitized name maps to the dedicated column slot and the first
	// value lands in the ledger
	mock.ExpectExec("INSERT INTO field_change").
		WithArgs(sqlmock.AnyArg(), "task-1", "client", []byte(`null`), []byte(`"Acme"`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(coalesceUpdate).
		WithArgs(
			strPtr("Fix login"), nil, nil, nil,
			expectedDefs, expectedRel, sqlmock.AnyArg(),
			"task-1",
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectQuery("SELECT .+ FROM task WHERE id = ?").WithArgs("task-1").
		WillReturnRows(syncTaskRows().AddRow(
			"task-1", models.PlaceholderSource("task-1"), now, "Fix login", nil, nil, nil,
			expectedDefs, expectedRel,
			[]byte(`{"client":{"value":"Acme","synced_at":"2026-05-01T10:00:00Z","field_id":"f1","original_name":"Client 🎯"}}`),
			nil, nil, now, &now,
		))

	task, err := svc.SyncTaskFields(context.Background(), "task-1")
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, "Acme", task.FieldValues["client"].Value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncTaskFields_RerunWithUnchangedDataIsIdempotent(t *testing.T) {
	syncedAt := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	now := time.Now().UTC()

	api := &fakeAPI{
		detail: func(ctx context.Context, taskID string) (*upstream.TaskDetail, error) {
			return &upstream.TaskDetail{
				ID: taskID,
				CustomFields: []upstream.CustomField{
					{ID: "f1", Name: "Client", Type: "text", Value: "Acme"},
				},
			}, nil
		},
	}
	svc, mock, closeDB := newSyncFixture(t, api)
	defer closeDB()

	storedValues := models.FieldValues{
		"client": {Value: "Acme", SyncedAt: syncedAt, FieldID: "f1", OriginalName: "Client"},
	}
	storedDoc, _ := json.Marshal(storedValues)
	expectedRel, _ := json.Marshal(models.Relationships{})

	mock.ExpectQuery("SELECT EXISTS").WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT .+ FROM task WHERE id = ?").WithArgs("task-1").
		WillReturnRows(syncTaskRows().AddRow(
			"task-1", "importer:v2", now, nil, nil, nil, nil,
			[]byte(`{}`), expectedRel, storedDoc, nil, nil, now, nil,
		))

	mock.ExpectBegin()
	// No ledger insert: the incoming value is structurally equal, and the
	// stored entry is carried forward untouched so the document stays
	// byte-identical across reruns
	mock.ExpectExec(coalesceUpdate).
		WithArgs(
			nil, nil, nil, nil,
			sqlmock.AnyArg(), expectedRel, storedDoc,
			"task-1",
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectQuery("SELECT .+ FROM task WHERE id = ?").WithArgs("task-1").
		WillReturnRows(syncTaskRows().AddRow(
			"task-1", "importer:v2", now, nil, nil, nil, nil,
			[]byte(`{}`), expectedRel, storedDoc, nil, nil, now, &now,
		))

	_, err := svc.SyncTaskFields(context.Background(), "task-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncTaskFields_RowDeletedAfterCommit(t *testing.T) {
	now := time.Now().UTC()
	api := &fakeAPI{
		detail: func(ctx context.Context, taskID string) (*upstream.TaskDetail, error) {
			return &upstream.TaskDetail{ID: taskID}, nil
		},
	}
	svc, mock, closeDB := newSyncFixture(t, api)
	defer closeDB()

	expectedRel, _ := json.Marshal(models.Relationships{})

	mock.ExpectQuery("SELECT EXISTS").WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT .+ FROM task WHERE id = ?").WithArgs("task-1").
		WillReturnRows(syncTaskRows().AddRow(
			"task-1", "importer:v2", now, nil, nil, nil, nil,
			[]byte(`{}`), expectedRel, []byte(`{}`), nil, nil, now, nil,
		))

	mock.ExpectBegin()
	mock.ExpectExec(coalesceUpdate).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// Row swept away between commit and re-read
	mock.ExpectQuery("SELECT .+ FROM task WHERE id = ?").WithArgs("task-1").
		WillReturnRows(syncTaskRows())

	task, err := svc.SyncTaskFields(context.Background(), "task-1")
	require.Error(t, err)
	assert.Nil(t, task)
	assert.Contains(t, err.Error(), "after sync commit")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncTaskFields_UnmappedFieldRetainedWithoutValue(t *testing.T) {
	now := time.Now().UTC()
	api := &fakeAPI{
		detail: func(ctx context.Context, taskID string) (*upstream.TaskDetail, error) {
			return &upstream.TaskDetail{
				ID: taskID,
				CustomFields: []upstream.CustomField{
					{ID: "f9", Name: "Internal Notes", Type: "text", Value: "secret"},
				},
			}, nil
		},
	}
	svc, mock, closeDB := newSyncFixture(t, api)
	defer closeDB()

	expectedDefs, _ := json.Marshal(models.FieldDefinitions{
		"Internal Notes": {ID: "f9", Type: "text", OriginalName: "Internal Notes"},
	})
	expectedRel, _ := json.Marshal(models.Relationships{})

	mock.ExpectQuery("SELECT EXISTS").WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT .+ FROM task WHERE id = ?").WithArgs("task-1").
		WillReturnRows(syncTaskRows().AddRow(
			"task-1", "importer:v2", now, nil, nil, nil, nil,
			[]byte(`{}`), expectedRel, []byte(`{}`), nil, nil, now, nil,
		))

	mock.ExpectBegin()
	// The definition is retained but no value is staged and nothing hits
	// the ledger
	mock.ExpectExec(coalesceUpdate).
		WithArgs(
			nil, nil, nil, nil,
			expectedDefs, expectedRel, []byte(`{}`),
			"task-1",
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectQuery("SELECT .+ FROM task WHERE id = ?").WithArgs("task-1").
		WillReturnRows(syncTaskRows().AddRow(
			"task-1", "importer:v2", now, nil, nil, nil, nil,
			expectedDefs, expectedRel, []byte(`{}`), nil, nil, now, &now,
		))

	task, err := svc.SyncTaskFields(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Empty(t, task.FieldValues)
	assert.Contains(t, task.CustomFields, "Internal Notes")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncTaskFields_UncoercibleValueDropped(t *testing.T) {
	now := time.Now().UTC()
	api := &fakeAPI{
		detail: func(ctx context.Context, taskID string) (*upstream.TaskDetail, error) {
			return &upstream.TaskDetail{
				ID: taskID,
				CustomFields: []upstream.CustomField{
					{ID: "f3", Name: "Due Date", Type: "date", Value: "next tuesday"},
				},
			}, nil
		},
	}
	svc, mock, closeDB := newSyncFixture(t, api)
	defer closeDB()

	expectedDefs, _ := json.Marshal(models.FieldDefinitions{
		"Due Date": {ID: "f3", Type: "date", OriginalName: "Due Date"},
	})
	expectedRel, _ := json.Marshal(models.Relationships{})

	mock.ExpectQuery("SELECT EXISTS").WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT .+ FROM task WHERE id = ?").WithArgs("task-1").
		WillReturnRows(syncTaskRows().AddRow(
			"task-1", "importer:v2", now, nil, nil, nil, nil,
			[]byte(`{}`), expectedRel, []byte(`{}`), nil, nil, now, nil,
		))

	mock.ExpectBegin()
	mock.ExpectExec(coalesceUpdate).
		WithArgs(
			nil, nil, nil, nil,
			expectedDefs, expectedRel, []byte(`{}`),
			"task-1",
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectQuery("SELECT .+ FROM task WHERE id = ?").WithArgs("task-1").
		WillReturnRows(syncTaskRows().AddRow(
			"task-1", "importer:v2", now, nil, nil, nil, nil,
			expectedDefs, expectedRel, []byte(`{}`), nil, nil, now, &now,
		))

	task, err := svc.SyncTaskFields(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Empty(t, task.FieldValues)
	assert.NoError(t, mock.ExpectationsWereMet())
}
