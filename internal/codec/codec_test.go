package codec

import (
	"encoding/json"
	"testing"
)

func TestDecodeTaskEmptyPayloadYieldsDefaults(t *testing.T) {
	task := DecodeTask(map[string]any{})

	if task.ID != UnassignedID {
		t.Fatalf("expected unassigned id, got %d", task.ID)
	}
	if task.Title != "" || task.Description != "" || task.CreatedAt != "" {
		t.Fatalf("expected empty string fields, got %+v", task)
	}
	if task.Completed {
		t.Fatalf("expected completed=false, got %+v", task)
	}
}

func TestDecodeTaskNilAndWrongTypedInput(t *testing.T) {
	for _, raw := range []any{nil, "garbage", 42.0, []any{"x"}} {
		task := DecodeTask(raw)
		if task.ID != UnassignedID || task.Title != "" || task.Completed {
			t.Fatalf("raw %v: expected default task, got %+v", raw, task)
		}
	}
}

func TestDecodeTaskWrongTypedFieldsFallBack(t *testing.T) {
	task := DecodeTask(map[string]any{
		"id":           "12",
		"title":        7.0,
		"description":  true,
		"created_at":   nil,
		"is_completed": "yes",
	})

	if task.ID != UnassignedID {
		t.Fatalf("string id must not decode, got %d", task.ID)
	}
	if task.Title != "" || task.Description != "" || task.CreatedAt != "" || task.Completed {
		t.Fatalf("expected all defaults, got %+v", task)
	}
}

func TestDecodeTaskWellFormedPayload(t *testing.T) {
	var raw any
	payload := `{"id":3,"title":"Buy milk","description":"2L","created_at":"2024-05-01T10:00:00Z","is_completed":true}`
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	task := DecodeTask(raw)
	if task.ID != 3 {
		t.Fatalf("expected id 3, got %d", task.ID)
	}
	if task.Title != "Buy milk" || task.Description != "2L" {
		t.Fatalf("unexpected text fields: %+v", task)
	}
	if task.CreatedAt != "2024-05-01T10:00:00Z" {
		t.Fatalf("unexpected timestamp: %q", task.CreatedAt)
	}
	if !task.Completed {
		t.Fatalf("expected completed=true")
	}
}

func TestDecodeTaskListNonArrayYieldsEmptyList(t *testing.T) {
	for _, raw := range []any{nil, map[string]any{"id": 1.0}, "nope"} {
		tasks := DecodeTaskList(raw)
		if len(tasks) != 0 {
			t.Fatalf("raw %v: expected empty list, got %d entries", raw, len(tasks))
		}
	}
}

func TestDecodeTaskListDecodesEachElement(t *testing.T) {
	tasks := DecodeTaskList([]any{
		map[string]any{"id": 1.0, "title": "one"},
		"malformed entry",
		map[string]any{"id": 2.0, "title": "two", "is_completed": true},
	})

	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(tasks))
	}
	if tasks[0].ID != 1 || tasks[0].Title != "one" {
		t.Fatalf("unexpected first task: %+v", tasks[0])
	}
	if tasks[1].ID != UnassignedID {
		t.Fatalf("malformed element should decode to defaults, got %+v", tasks[1])
	}
	if tasks[2].ID != 2 || !tasks[2].Completed {
		t.Fatalf("unexpected third task: %+v", tasks[2])
	}
}

func TestDecodeUser(t *testing.T) {
	user := DecodeUser(map[string]any{
		"id":        5.0,
		"username":  "Ada Lovelace",
		"email":     "ada@example.com",
		"logged_in": true,
	})

	if user.ID != 5 || user.FullName != "Ada Lovelace" || user.Email != "ada@example.com" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if !user.LoggedIn {
		t.Fatalf("expected logged_in to carry through")
	}

	empty := DecodeUser(nil)
	if empty.ID != UnassignedID || empty.FullName != "" || empty.LoggedIn {
		t.Fatalf("expected default user, got %+v", empty)
	}
}
