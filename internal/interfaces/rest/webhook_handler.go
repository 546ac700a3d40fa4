package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fieldsync/backend/internal/application/services"
	"github.com/fieldsync/backend/pkg/errors"
)

// WebhookHandler receives task change events from the upstream service
type WebhookHandler struct {
	svcMgr *services.ServiceManager
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(svcMgr *services.ServiceManager) *WebhookHandler {
	return &WebhookHandler{svcMgr: svcMgr}
}

// TaskEventRequest is the inbound webhook payload
type TaskEventRequest struct {
	TaskID string `json:"task_id" binding:"required"`
	Event  string `json:"event" binding:"required"`
}

// HandleTaskEvent runs a field sync for a created/updated event.
// POST /api/webhooks/tasks
func (h *WebhookHandler) HandleTaskEvent(c *gin.Context) {
	var req TaskEventRequest
	if !BindJSON(c, &req) {
		return
	}

	if req.Event != "created" && req.Event != "updated" {
		RespondAppError(c, errors.NewValidationError("event", "must be 'created' or 'updated'"))
		return
	}

	task, err := h.svcMgr.Sync.SyncTaskFields(c.Request.Context(), req.TaskID)
	if err != nil {
		RespondSyncError(c, req.TaskID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":   true,
		"task": task,
	})
}
