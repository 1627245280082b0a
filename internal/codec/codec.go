// Package codec maps loosely-typed remote payloads onto canonical entities.
//
// The contract is total: any input, including nil, a wrong-typed value, or a
// payload with missing fields, decodes to a valid entity filled with the
// documented defaults. Decoding never fails and has no side effects.
package codec

// UnassignedID marks an identifier the remote service has not resolved.
// Remote identifiers are always non-negative, so -1 is never a real id.
const UnassignedID int64 = -1

// Task is the canonical task entity.
type Task struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
	Completed   bool   `json:"isCompleted"`
}

// User is the canonical session entity.
type User struct {
	ID       int64  `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email,omitempty"`
	LoggedIn bool   `json:"loggedIn"`
}

// Decoding defaults, field by field:
//
//	id          -> UnassignedID
//	strings     -> ""
//	created_at  -> "" (no timestamp)
//	booleans    -> false

// DecodeTask decodes a single raw task representation.
func DecodeTask(raw any) Task {
	fields, _ := raw.(map[string]any)
	return Task{
		ID:          intField(fields, "id"),
		Title:       stringField(fields, "title"),
		Description: stringField(fields, "description"),
		CreatedAt:   stringField(fields, "created_at"),
		Completed:   boolField(fields, "is_completed"),
	}
}

// DecodeTaskList decodes a raw task array. Non-array input yields an empty
// list; each element decodes independently.
func DecodeTaskList(raw any) []Task {
	items, _ := raw.([]any)
	tasks := make([]Task, 0, len(items))
	for _, item := range items {
		tasks = append(tasks, DecodeTask(item))
	}
	return tasks
}

// DecodeUser decodes a raw user representation.
func DecodeUser(raw any) User {
	fields, _ := raw.(map[string]any)
	return User{
		ID:       intField(fields, "id"),
		FullName: stringField(fields, "username"),
		Email:    stringField(fields, "email"),
		LoggedIn: boolField(fields, "logged_in"),
	}
}

func intField(fields map[string]any, key string) int64 {
	switch v := fields[key].(type) {
	case float64:
		// encoding/json decodes all numbers as float64.
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return UnassignedID
	}
}

func stringField(fields map[string]any, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

func boolField(fields map[string]any, key string) bool {
	if v, ok := fields[key].(bool); ok {
		return v
	}
	return false
}
