package todostate

import (
	"errors"
	"testing"

	"github.com/origon/todosync/internal/codec"
)

func TestSessionStartsLoggedOut(t *testing.T) {
	session := NewSession()

	user := session.User()
	if user.ID != codec.UnassignedID || user.LoggedIn {
		t.Fatalf("expected logged-out resting user, got %+v", user)
	}
	if got := session.Status(); got.Status != StatusIdle {
		t.Fatalf("expected idle status, got %s", got.Status)
	}
}

func TestLoginLifecycle(t *testing.T) {
	session := NewSession()

	session.BeginLogin()
	if session.LoggedIn() {
		t.Fatalf("logged-in flag must not flip before the round trip resolves")
	}
	if got := session.Status(); got.Status != StatusLoading {
		t.Fatalf("expected loading, got %s", got.Status)
	}

	session.CompleteLogin(codec.User{ID: 4, FullName: "Ada Lovelace", Email: "ada@example.com"})
	if !session.LoggedIn() {
		t.Fatalf("expected logged in after confirmed round trip")
	}
	if session.UserID() != 4 {
		t.Fatalf("expected user id 4, got %d", session.UserID())
	}
	if got := session.Status(); got.Status != StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", got.Status)
	}
}

func TestFailLoginStoresMessageAndStaysLoggedOut(t *testing.T) {
	session := NewSession()
	session.BeginLogin()
	session.FailLogin(errors.New("401 Unauthorized"))

	if session.LoggedIn() {
		t.Fatalf("failed login must leave the session logged out")
	}
	got := session.Status()
	if got.Status != StatusFailed || got.Error != "401 Unauthorized" {
		t.Fatalf("expected failed status with message, got %+v", got)
	}
}

func TestLoginTerminalTransitionsGuardOnLoading(t *testing.T) {
	session := NewSession()

	session.CompleteLogin(codec.User{ID: 9, FullName: "stray"})
	if session.LoggedIn() {
		t.Fatalf("completion without a pending login must be ignored")
	}

	session.BeginLogin()
	session.Logout()
	session.CompleteLogin(codec.User{ID: 9, FullName: "late"})
	if session.LoggedIn() {
		t.Fatalf("completion after logout must be ignored")
	}
}

func TestLogoutResetsToInitialState(t *testing.T) {
	session := NewSession()
	session.BeginLogin()
	session.CompleteLogin(codec.User{ID: 4, FullName: "Ada Lovelace"})

	session.Logout()

	user := session.User()
	if user.ID != codec.UnassignedID || user.FullName != "" || user.LoggedIn {
		t.Fatalf("expected resting user after logout, got %+v", user)
	}
	if got := session.Status(); got.Status != StatusIdle {
		t.Fatalf("expected idle status after logout, got %s", got.Status)
	}
}

func TestResetStatusKeepsUser(t *testing.T) {
	session := NewSession()
	session.BeginLogin()
	session.FailLogin(errors.New("boom"))

	session.ResetStatus()

	if got := session.Status(); got.Status != StatusIdle || got.Error != "" {
		t.Fatalf("expected resting status, got %+v", got)
	}
}

func TestSessionRestoreDerivesLoggedInFlag(t *testing.T) {
	session := NewSession()

	session.restore(codec.User{ID: 4, FullName: "Ada Lovelace"})
	if !session.LoggedIn() {
		t.Fatalf("restored resolved identifier must derive logged-in=true")
	}

	session.restore(codec.User{ID: codec.UnassignedID})
	if session.LoggedIn() {
		t.Fatalf("restored unresolved identifier must derive logged-in=false")
	}
}

func TestSnapshotUserDropsLoggedInFlag(t *testing.T) {
	session := NewSession()
	session.BeginLogin()
	session.CompleteLogin(codec.User{ID: 4, FullName: "Ada Lovelace"})

	snapshot := session.snapshotUser()
	if snapshot.LoggedIn {
		t.Fatalf("durable user view must not carry the logged-in flag")
	}
	if snapshot.ID != 4 || snapshot.FullName != "Ada Lovelace" {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
}
