package rest

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fieldsync/backend/internal/application/services"
	"github.com/fieldsync/backend/pkg/errors"
)

// TaskHandler exposes the read-only query surface
type TaskHandler struct {
	svcMgr *services.ServiceManager
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(svcMgr *services.ServiceManager) *TaskHandler {
	return &TaskHandler{svcMgr: svcMgr}
}

// GetTask fetches one task row by id.
// GET /api/tasks/:id
func (h *TaskHandler) GetTask(c *gin.Context) {
	id := c.Param("id")

	HandleGetEnvelope(c, "task", func() (interface{}, error) {
		task, err := h.svcMgr.Tasks.GetByID(c.Request.Context(), id)
		if err != nil {
			return nil, err
		}
		if task == nil {
			return nil, errors.NewNotFoundError("task", id)
		}
		return task, nil
	})
}

// GetRecentTasks returns rows updated within the last N minutes (default 60).
// GET /api/tasks/recent?minutes=N
func (h *TaskHandler) GetRecentTasks(c *gin.Context) {
	minutes := 60
	if raw := c.Query("minutes"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			RespondAppError(c, errors.NewValidationError("minutes", "must be a positive integer"))
			return
		}
		minutes = n
	}

	HandleGetEnvelope(c, "tasks", func() (interface{}, error) {
		return h.svcMgr.Tasks.GetUpdatedWithin(c.Request.Context(), minutes)
	})
}

// GetFieldHistory returns the change ledger for one (task, field) pair.
// GET /api/tasks/:id/changes/:field?limit=N&since=RFC3339
func (h *TaskHandler) GetFieldHistory(c *gin.Context) {
	taskID := c.Param("id")
	fieldName := c.Param("field")

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			RespondAppError(c, errors.NewValidationError("limit", "must be a positive integer"))
			return
		}
		limit = n
	}

	var since *time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			RespondAppError(c, errors.NewValidationError("since", "must be an RFC3339 timestamp"))
			return
		}
		since = &t
	}

	HandleGetEnvelope(c, "changes", func() (interface{}, error) {
		return h.svcMgr.ChangeLog.History(c.Request.Context(), taskID, fieldName, limit, since)
	})
}

// GetFieldStats aggregates ledger activity for one field name.
// GET /api/changes/:field/stats
func (h *TaskHandler) GetFieldStats(c *gin.Context) {
	fieldName := c.Param("field")

	HandleGetEnvelope(c, "stats", func() (interface{}, error) {
		return h.svcMgr.ChangeLog.ChangeStats(c.Request.Context(), fieldName)
	})
}
