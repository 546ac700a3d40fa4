package upstream

import "context"

// TypeRef is the projection of a task's resolved custom type carried on
// task detail
type TypeRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// CustomField is one custom field definition plus its current value as the
// remote API reports it. Value is whatever JSON the API returns; coercion
// happens in the merge engine.
type CustomField struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Type       string                 `json:"type"`
	TypeConfig map[string]interface{} `json:"type_config"`
	Value      interface{}            `json:"value"`
}

// TaskDetail is the normalized full detail of one remote task
type TaskDetail struct {
	ID          string
	Name        *string
	TextContent *string
	Description *string
	Status      *string
	Parent      *string
	WorkspaceID string
	CustomType  *TypeRef
	// Never nil; defaults to an empty slice
	CustomFields []CustomField
}

// TypeDef is one entry of a workspace's custom task type catalog
type TypeDef struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Color      string `json:"color"`
	Status     string `json:"status"`
	OrderIndex int    `json:"orderindex"`
}

// TaskSummary is one entry of a bulk task listing
type TaskSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// API is the surface of the remote task-management service consumed by the
// sync core. Services depend on this interface so tests can substitute a
// fake.
type API interface {
	GetTaskDetail(ctx context.Context, taskID string) (*TaskDetail, error)
	GetCustomTypes(ctx context.Context, workspaceID string) ([]TypeDef, error)
	ListTasksInSpace(ctx context.Context, spaceID string) ([]TaskSummary, error)
	ListTasksInList(ctx context.Context, listID string) ([]TaskSummary, error)
}
