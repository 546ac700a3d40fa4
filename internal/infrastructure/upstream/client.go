package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	apperrors "github.com/fieldsync/backend/pkg/errors"
)

const (
	// Pages of bulk listings; a page shorter than this ends pagination
	pageSize = 100
	// Total attempts for a transient-failing request (1 initial + 2 retries)
	maxAttempts = 3
)

// Client talks to the remote task-management API over authenticated
// HTTPS/JSON. It is stateless apart from fixed credentials and is shared by
// all operations.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client

	// Base delay for the linear retry policy (delay = base * attempt)
	RetryBase time.Duration
	// Fixed delay between listing pages, to respect rate limits
	PageDelay time.Duration
}

var _ API = (*Client)(nil)

// NewClient creates a Client with production defaults
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		RetryBase: 2 * time.Second,
		PageDelay: 500 * time.Millisecond,
	}
}

// linearBackOff waits base*1, base*2, ... between attempts
type linearBackOff struct {
	base    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.base * time.Duration(b.attempt)
}

func (b *linearBackOff) Reset() { b.attempt = 0 }

// transientStatusError marks a retryable upstream status (502 or 429)
type transientStatusError struct {
	status int
}

func (e *transientStatusError) Error() string {
	return fmt.Sprintf("upstream returned transient status %d", e.status)
}

// getJSON performs one authenticated GET with the retry policy: 502 and 429
// are retried up to maxAttempts total with linear backoff; everything else
// is terminal on the first occurrence.
func (c *Client) getJSON(ctx context.Context, operation, path string, out interface{}) error {
	attempts := 0

	op := func() error {
		attempts++

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Authorization", c.Token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("request failed: %w", err))
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(apperrors.NewNotFoundError("upstream resource", path))
		case resp.StatusCode == http.StatusBadGateway || resp.StatusCode == http.StatusTooManyRequests:
			return &transientStatusError{status: resp.StatusCode}
		case resp.StatusCode >= 400:
			body, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("api error (%d): %s", resp.StatusCode, string(body)))
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
			}
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{base: c.RetryBase}, maxAttempts-1), ctx)

	err := backoff.Retry(op, policy)
	if err != nil {
		var tse *transientStatusError
		if errors.As(err, &tse) {
			return apperrors.NewTransientRemoteError(operation, tse.status, attempts)
		}
		return err
	}
	return nil
}

// rawTask mirrors the wire shape of the task detail endpoint
type rawTask struct {
	ID          string  `json:"id"`
	Name        *string `json:"name"`
	TextContent *string `json:"text_content"`
	Description *string `json:"description"`
	Status      *struct {
		Status *string `json:"status"`
	} `json:"status"`
	Parent       *string       `json:"parent"`
	WorkspaceID  string        `json:"team_id"`
	CustomType   *TypeRef      `json:"custom_type"`
	CustomFields []CustomField `json:"custom_fields"`
}

// GetTaskDetail fetches one task's full detail, always requesting the full
// field/value/subtask expansion. A missing task surfaces as a typed
// NotFound; 502/429 follow the retry policy and then propagate.
func (c *Client) GetTaskDetail(ctx context.Context, taskID string) (*TaskDetail, error) {
	path := fmt.Sprintf("/task/%s?include_subtasks=true&custom_fields=true", taskID)

	var raw rawTask
	if err := c.getJSON(ctx, "task detail", path, &raw); err != nil {
		return nil, err
	}

	detail := &TaskDetail{
		ID:           raw.ID,
		Name:         raw.Name,
		TextContent:  raw.TextContent,
		Description:  raw.Description,
		Parent:       raw.Parent,
		WorkspaceID:  raw.WorkspaceID,
		CustomType:   raw.CustomType,
		CustomFields: raw.CustomFields,
	}
	if raw.Status != nil {
		detail.Status = raw.Status.Status
	}
	if detail.CustomFields == nil {
		detail.CustomFields = []CustomField{}
	}
	return detail, nil
}

// GetCustomTypes fetches the workspace's custom task type catalog
func (c *Client) GetCustomTypes(ctx context.Context, workspaceID string) ([]TypeDef, error) {
	path := fmt.Sprintf("/workspace/%s/types", workspaceID)

	var resp struct {
		Types []TypeDef `json:"types"`
	}
	if err := c.getJSON(ctx, "custom types", path, &resp); err != nil {
		return nil, err
	}
	return resp.Types, nil
}

// ListTasksInSpace lists all tasks of a space, paging until a short page
func (c *Client) ListTasksInSpace(ctx context.Context, spaceID string) ([]TaskSummary, error) {
	return c.listTasks(ctx, "space task listing", fmt.Sprintf("/space/%s/task", spaceID))
}

// ListTasksInList lists all tasks of a list, paging until a short page
func (c *Client) ListTasksInList(ctx context.Context, listID string) ([]TaskSummary, error) {
	return c.listTasks(ctx, "list task listing", fmt.Sprintf("/list/%s/task", listID))
}

// listTasks pages through a listing endpoint. Transient errors that survive
// the retry budget degrade to the tasks accumulated so far with a logged
// warning; single-entity fetches never degrade this way.
func (c *Client) listTasks(ctx context.Context, operation, basePath string) ([]TaskSummary, error) {
	tasks := []TaskSummary{}

	for page := 0; ; page++ {
		var resp struct {
			Tasks []TaskSummary `json:"tasks"`
		}
		path := fmt.Sprintf("%s?page=%d", basePath, page)
		if err := c.getJSON(ctx, operation, path, &resp); err != nil {
			if apperrors.IsTransientRemote(err) {
				log.Printf("⚠️  %s degraded after page %d: %v", operation, page, err)
				return tasks, nil
			}
			return nil, err
		}

		tasks = append(tasks, resp.Tasks...)
		if len(resp.Tasks) < pageSize {
			return tasks, nil
		}

		select {
		case <-ctx.Done():
			return tasks, ctx.Err()
		case <-time.After(c.PageDelay):
		}
	}
}
