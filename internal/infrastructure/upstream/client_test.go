package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/fieldsync/backend/pkg/errors"
)

func newTestClient(serverURL string) *Client {
	c := NewClient(serverURL, "test-token")
	c.RetryBase = time.Millisecond
	c.PageDelay = 0
	return c
}

func TestGetTaskDetailNormalizesPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "true", r.URL.Query().Get("custom_fields"))
		assert.Equal(t, "true", r.URL.Query().Get("include_subtasks"))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "abc123",
			"name":    "Build the thing",
			"status":  map[string]interface{}{"status": "in progress"},
			"team_id": "ws1",
			"custom_type": map[string]interface{}{
				"id": "ct1", "name": "Milestone", "color": "#ff0000",
			},
			// custom_fields deliberately absent
		})
	}))
	defer server.Close()

	detail, err := newTestClient(server.URL).GetTaskDetail(context.Background(), "abc123")
	require.NoError(t, err)

	assert.Equal(t, "abc123", detail.ID)
	require.NotNil(t, detail.Name)
	assert.Equal(t, "Build the thing", *detail.Name)
	require.NotNil(t, detail.Status)
	assert.Equal(t, "in progress", *detail.Status)
	assert.Nil(t, detail.Parent)
	require.NotNil(t, detail.CustomType)
	assert.Equal(t, "ct1", detail.CustomType.ID)
	assert.NotNil(t, detail.CustomFields)
	assert.Empty(t, detail.CustomFields)
}

func TestGetTaskDetailNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).GetTaskDetail(context.Background(), "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestGetTaskDetailRetryCeiling(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).GetTaskDetail(context.Background(), "abc123")
	require.Error(t, err)
	assert.True(t, apperrors.IsTransientRemote(err), "expected transient-remote error, got %v", err)
	assert.Equal(t, int32(3), calls.Load(), "retry budget is 3 attempts total")
}

func TestGetTaskDetailRecoversFromRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": "abc123"})
	}))
	defer server.Close()

	detail, err := newTestClient(server.URL).GetTaskDetail(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", detail.ID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetCustomTypes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/workspace/ws1/types", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"types": []map[string]interface{}{
				{"id": "ct1", "name": "Milestone", "color": "#f00", "status": "active", "orderindex": 1},
				{"id": "ct2", "name": "Bug", "color": "#0f0", "status": "active", "orderindex": 2},
			},
		})
	}))
	defer server.Close()

	types, err := newTestClient(server.URL).GetCustomTypes(context.Background(), "ws1")
	require.NoError(t, err)
	require.Len(t, types, 2)
	assert.Equal(t, "Milestone", types[0].Name)
	assert.Equal(t, 2, types[1].OrderIndex)
}

func TestListTasksPaginatesUntilShortPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		count := pageSize
		if page == "1" {
			count = 37
		}
		tasks := make([]map[string]string, count)
		for i := range tasks {
			tasks[i] = map[string]string{"id": fmt.Sprintf("t-%s-%d", page, i)}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"tasks": tasks})
	}))
	defer server.Close()

	tasks, err := newTestClient(server.URL).ListTasksInSpace(context.Background(), "sp1")
	require.NoError(t, err)
	assert.Len(t, tasks, pageSize+37)
}

func TestListTasksDegradesOnPersistentGatewayError(t *testing.T) {
	// Listing endpoints degrade to the tasks accumulated so far instead of
	// failing; here that means an empty, non-nil result.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	tasks, err := newTestClient(server.URL).ListTasksInList(context.Background(), "l1")
	require.NoError(t, err)
	assert.NotNil(t, tasks)
	assert.Empty(t, tasks)
}
