package todostate

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/origon/todosync/internal/codec"
)

func newHydratedPair(t *testing.T, backend StateBackend) (*Store, *Session, *Gateway) {
	t.Helper()
	store := NewStore()
	session := NewSession()
	gateway := NewGateway(store, session, GatewayOptions{Backend: backend, Debounce: time.Hour})
	if err := gateway.Hydrate(); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	return store, session, gateway
}

func TestRoundTripExcludesTransientStatus(t *testing.T) {
	backend := NewInMemoryStateBackend()
	store, session, gateway := newHydratedPair(t, backend)

	store.AddOne(codec.Task{ID: 1, Title: "in flight", CreatedAt: "2024-01-01T00:00:00Z"})
	store.BeginUpdate(1)
	session.BeginLogin()
	session.CompleteLogin(codec.User{ID: 4, FullName: "Ada Lovelace"})
	if err := gateway.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	// Fresh process: new stores over the same backend.
	store2, session2, _ := newHydratedPair(t, backend)

	got, ok := store2.TaskByID(1)
	if !ok {
		t.Fatalf("expected rehydrated entity")
	}
	if got.Status != StatusIdle || got.Error != "" {
		t.Fatalf("rehydrated status must be resting, got %+v", got)
	}
	if got.Title != "in flight" || got.CreatedAt != "2024-01-01T00:00:00Z" {
		t.Fatalf("durable fields lost: %+v", got)
	}
	if store2.FetchStatus().Status != StatusIdle {
		t.Fatalf("rehydrated aggregate must be resting")
	}
	if !session2.LoggedIn() || session2.UserID() != 4 {
		t.Fatalf("expected rehydrated session, got %+v", session2.User())
	}
	if session2.Status().Status != StatusIdle {
		t.Fatalf("rehydrated session status must be resting")
	}
}

func TestHydrateWithoutSnapshotYieldsInitialState(t *testing.T) {
	store, session, _ := newHydratedPair(t, NewInMemoryStateBackend())

	if store.Len() != 0 || store.FetchStatus().Status != StatusIdle {
		t.Fatalf("expected empty resting store")
	}
	if session.LoggedIn() {
		t.Fatalf("expected logged-out session")
	}
}

func TestHydrateDiscardsSchemaInvalidPartition(t *testing.T) {
	backend := NewInMemoryStateBackend()
	if err := backend.Set("root", []byte(`{"version":1,"partitions":["tasks","user"]}`)); err != nil {
		t.Fatalf("seed root: %v", err)
	}
	// id must be an integer per the snapshot schema.
	if err := backend.Set("tasks", []byte(`[{"id":"one","title":"bad"}]`)); err != nil {
		t.Fatalf("seed tasks: %v", err)
	}
	if err := backend.Set("user", []byte(`{"id":4,"fullName":"Ada Lovelace"}`)); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	store, session, _ := newHydratedPair(t, backend)

	if store.Len() != 0 {
		t.Fatalf("invalid tasks partition must not be applied")
	}
	if !session.LoggedIn() {
		t.Fatalf("valid user partition must still apply")
	}
}

func TestHydrateDiscardsUnknownSchemaVersion(t *testing.T) {
	backend := NewInMemoryStateBackend()
	if err := backend.Set("root", []byte(`{"version":99,"partitions":["tasks","user"]}`)); err != nil {
		t.Fatalf("seed root: %v", err)
	}
	if err := backend.Set("tasks", []byte(`[{"id":1,"title":"stale"}]`)); err != nil {
		t.Fatalf("seed tasks: %v", err)
	}

	store, _, _ := newHydratedPair(t, backend)
	if store.Len() != 0 {
		t.Fatalf("snapshot with unknown version must be discarded")
	}
}

func TestClearIsIdempotentAndLeavesMemoryStateAlone(t *testing.T) {
	backend := NewInMemoryStateBackend()
	store, _, gateway := newHydratedPair(t, backend)

	store.AddOne(codec.Task{ID: 1, Title: "kept in memory"})
	if err := gateway.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if err := gateway.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := gateway.Clear(); err != nil {
		t.Fatalf("second clear must not fail: %v", err)
	}

	if store.Len() != 1 {
		t.Fatalf("clearing storage must not touch in-memory state")
	}
	value, err := backend.Get("root")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if value != nil {
		t.Fatalf("expected cleared namespace, found root partition")
	}
}

func TestDebouncedWriteHappensAfterMutation(t *testing.T) {
	backend := NewInMemoryStateBackend()
	store := NewStore()
	session := NewSession()
	NewGateway(store, session, GatewayOptions{Backend: backend, Debounce: 10 * time.Millisecond})

	store.AddOne(codec.Task{ID: 1, Title: "persist me"})

	deadline := time.Now().Add(2 * time.Second)
	for {
		value, err := backend.Get("tasks")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if value != nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("debounced snapshot write never happened")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGatewayWithJSONFileBackendSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "todosync.json")
	backend := NewJSONFileStateBackend(path)

	store, session, gateway := newHydratedPair(t, backend)
	store.AddOne(codec.Task{ID: 3, Title: "durable", CreatedAt: "2024-06-01T00:00:00Z"})
	session.BeginLogin()
	session.CompleteLogin(codec.User{ID: 7, FullName: "Grace Hopper"})
	if err := gateway.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store2, session2, _ := newHydratedPair(t, NewJSONFileStateBackend(path))
	if _, ok := store2.TaskByID(3); !ok {
		t.Fatalf("expected task to survive restart")
	}
	if session2.UserID() != 7 {
		t.Fatalf("expected session to survive restart, got id %d", session2.UserID())
	}
}

func TestCloseFlushesAndStopsFurtherWrites(t *testing.T) {
	backend := NewInMemoryStateBackend()
	store, _, gateway := newHydratedPair(t, backend)

	store.AddOne(codec.Task{ID: 1, Title: "final"})
	if err := gateway.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	value, err := backend.Get("tasks")
	if err != nil || value == nil {
		t.Fatalf("expected final snapshot on close, value=%v err=%v", value, err)
	}
	if err := gateway.Close(); err != nil {
		t.Fatalf("second close must be a no-op: %v", err)
	}
}
