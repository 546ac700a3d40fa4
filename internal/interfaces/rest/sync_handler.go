package rest

import (
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/fieldsync/backend/internal/application/services"
)

// SyncHandler exposes the manual sync trigger
type SyncHandler struct {
	svcMgr *services.ServiceManager
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(svcMgr *services.ServiceManager) *SyncHandler {
	return &SyncHandler{svcMgr: svcMgr}
}

// TriggerSync runs the field sync and the relationship refresh for one task
// concurrently, then returns the refreshed row.
// POST /api/sync/tasks/:id
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	taskID := c.Param("id")
	ctx := c.Request.Context()

	var wg sync.WaitGroup
	var syncErr, relErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, syncErr = h.svcMgr.Sync.SyncTaskFields(ctx, taskID)
	}()
	go func() {
		defer wg.Done()
		relErr = h.svcMgr.TypeSync.SyncRelationships(ctx, taskID)
	}()
	wg.Wait()

	if syncErr != nil {
		RespondSyncError(c, taskID, syncErr)
		return
	}
	if relErr != nil {
		// Field data landed; relationship refresh is secondary
		log.Printf("⚠️  Relationship refresh failed for task %s: %v", taskID, relErr)
	}

	task, err := h.svcMgr.Tasks.GetByID(ctx, taskID)
	if err != nil {
		RespondSyncError(c, taskID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":   true,
		"task": task,
	})
}
