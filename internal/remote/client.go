// Package remote speaks the task service's HTTP contract. The Client
// interface is what the synchronization layer consumes; HTTPClient is the
// production implementation.
package remote

import (
	"context"
	"fmt"

	"github.com/origon/todosync/internal/codec"
)

// TaskDraft is the payload for creating a task.
type TaskDraft struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// TaskPatch is a partial update. Nil fields are omitted from the request
// body, so the service only touches the fields actually sent.
type TaskPatch struct {
	Title       *string
	Description *string
	Completed   *bool
}

func (p TaskPatch) body() map[string]any {
	fields := map[string]any{}
	if p.Title != nil {
		fields["title"] = *p.Title
	}
	if p.Description != nil {
		fields["description"] = *p.Description
	}
	if p.Completed != nil {
		fields["is_completed"] = *p.Completed
	}
	return fields
}

// Client is the remote task service boundary. Implementations decode
// responses through the entity codec, so malformed payloads yield
// default-filled entities rather than errors.
type Client interface {
	Login(ctx context.Context, username string) (codec.User, error)
	ListTasks(ctx context.Context, userID int64) ([]codec.Task, error)
	CreateTask(ctx context.Context, userID int64, draft TaskDraft) (codec.Task, error)
	UpdateTask(ctx context.Context, userID, taskID int64, patch TaskPatch) (codec.Task, error)
	DeleteTask(ctx context.Context, userID, taskID int64) error
}

// HTTPError is any non-success HTTP status. The message mirrors what the
// service put on the wire; the status line stands in when the body carries
// nothing usable.
type HTTPError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("%d %s", e.StatusCode, e.Status)
}
