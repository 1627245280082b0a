// Package todosync drives the task and session stores from remote round
// trips: the named synchronization operations (fetch-all, create, update,
// delete, toggle-completion, login) and the cross-store transactions
// (logout-and-reset, reload-all).
//
// Operations run to completion once issued; there is no cancellation beyond
// the context on the remote call itself, and every terminal store
// transition is applied even if the initiator has moved on. Concurrent
// operations on the same entity resolve last-write-wins by completion
// order: a delete landing last removes the entity regardless of an earlier
// update, and an update landing after a delete no-ops instead of
// resurrecting it.
package todosync

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/origon/todosync/internal/remote"
	"github.com/origon/todosync/internal/todostate"
)

// Validation errors. These are reported to the caller before any remote
// call or store transition; they never enter store state.
var (
	ErrEmptyTitle    = errors.New("task title is empty")
	ErrEmptyUsername = errors.New("username is empty")
	ErrNotLoggedIn   = errors.New("not logged in")
	ErrTaskNotFound  = errors.New("task not found")
)

// Logger matches the subset of the stdlib logger the package needs.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Options configures a Syncer.
type Options struct {
	Client  remote.Client
	Store   *todostate.Store
	Session *todostate.Session
	// Latency is an artificial delay applied before every remote call,
	// useful for exercising in-flight states by hand. Zero disables it.
	Latency time.Duration
	Logger  Logger
}

// Syncer is the single writer of both stores besides the stores' own reset
// entry points.
type Syncer struct {
	client  remote.Client
	store   *todostate.Store
	session *todostate.Session
	latency time.Duration
	logger  Logger
}

func New(opts Options) (*Syncer, error) {
	if opts.Client == nil {
		return nil, errors.New("todosync: remote client is required")
	}
	if opts.Store == nil || opts.Session == nil {
		return nil, errors.New("todosync: store and session are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	return &Syncer{
		client:  opts.Client,
		store:   opts.Store,
		session: opts.Session,
		latency: opts.Latency,
		logger:  logger,
	}, nil
}

// LoginUser resolves the username against the remote service and installs
// the confirmed user in the session store. The logged-in flag flips only
// after the round trip succeeds.
func (s *Syncer) LoginUser(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return ErrEmptyUsername
	}
	s.session.BeginLogin()
	if err := s.wait(ctx); err != nil {
		s.session.FailLogin(err)
		return err
	}
	user, err := s.client.Login(ctx, username)
	if err != nil {
		s.session.FailLogin(err)
		return err
	}
	s.session.CompleteLogin(user)
	return nil
}

// FetchAllTasks refreshes the collection from the remote service. On
// failure the prior collection contents stay in place and only the fetch
// aggregate records the error.
func (s *Syncer) FetchAllTasks(ctx context.Context) error {
	userID, err := s.currentUserID()
	if err != nil {
		return err
	}
	s.store.BeginFetch()
	if err := s.wait(ctx); err != nil {
		s.store.FailFetch(err)
		return err
	}
	tasks, err := s.client.ListTasks(ctx, userID)
	if err != nil {
		s.logger.Printf("todosync: fetch failed: %v", err)
		s.store.FailFetch(err)
		return err
	}
	s.store.CompleteFetch(tasks)
	return nil
}

// EnsureLoaded fetches the collection only when the fetch aggregate is
// still at rest, so entering the task screen repeatedly does not refetch.
func (s *Syncer) EnsureLoaded(ctx context.Context) error {
	if s.store.FetchStatus().Status != todostate.StatusIdle {
		return nil
	}
	return s.FetchAllTasks(ctx)
}

// CreateTask submits a draft and inserts the entity the service confirmed,
// with its assigned identifier. The entity never exists locally before the
// acknowledgment.
func (s *Syncer) CreateTask(ctx context.Context, draft remote.TaskDraft) error {
	if strings.TrimSpace(draft.Title) == "" {
		return ErrEmptyTitle
	}
	userID, err := s.currentUserID()
	if err != nil {
		return err
	}
	s.store.BeginCreate()
	if err := s.wait(ctx); err != nil {
		s.store.FailCreate(err)
		return err
	}
	task, err := s.client.CreateTask(ctx, userID, draft)
	if err != nil {
		s.store.FailCreate(err)
		return err
	}
	s.store.CompleteCreate(task)
	return nil
}

// UpdateTask submits a partial edit and merges the confirmed entity back.
// If the entity was deleted while the update was in flight, the
// confirmation no-ops.
func (s *Syncer) UpdateTask(ctx context.Context, taskID int64, patch remote.TaskPatch) error {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return ErrEmptyTitle
	}
	userID, err := s.currentUserID()
	if err != nil {
		return err
	}
	s.store.BeginUpdate(taskID)
	if err := s.wait(ctx); err != nil {
		s.store.FailUpdate(taskID, err)
		return err
	}
	task, err := s.client.UpdateTask(ctx, userID, taskID, patch)
	if err != nil {
		s.logger.Printf("todosync: update of task %d failed: %v", taskID, err)
		s.store.FailUpdate(taskID, err)
		return err
	}
	s.store.CompleteUpdate(task)
	return nil
}

// ToggleTaskCompletion flips the completion flag through a remote update.
// The flag's target value is read once at issue time.
func (s *Syncer) ToggleTaskCompletion(ctx context.Context, taskID int64) error {
	task, ok := s.store.TaskByID(taskID)
	if !ok {
		return ErrTaskNotFound
	}
	completed := !task.Completed
	return s.UpdateTask(ctx, taskID, remote.TaskPatch{Completed: &completed})
}

// DeleteTask removes the entity once the remote service acknowledges.
// Until then the entity stays visible in deleting status.
func (s *Syncer) DeleteTask(ctx context.Context, taskID int64) error {
	userID, err := s.currentUserID()
	if err != nil {
		return err
	}
	s.store.BeginDelete(taskID)
	if err := s.wait(ctx); err != nil {
		s.store.FailDelete(taskID, err)
		return err
	}
	if err := s.client.DeleteTask(ctx, userID, taskID); err != nil {
		s.store.FailDelete(taskID, err)
		return err
	}
	s.store.CompleteDelete(taskID)
	return nil
}

// LogoutAndReset logs the session out and clears the task collection in one
// synchronous sequence with no suspension point in between, so no observer
// sees a logged-out session alongside the previous user's tasks.
func (s *Syncer) LogoutAndReset() {
	s.session.Logout()
	s.store.RemoveAll()
}

// ReloadAll returns the aggregate statuses to rest and refetches, so an
// observer sees loading rather than a stale success while the refresh runs.
func (s *Syncer) ReloadAll(ctx context.Context) error {
	s.store.ResetFetchStatus()
	s.store.ResetExtras()
	return s.FetchAllTasks(ctx)
}

// currentUserID resolves the session identifier once at call time. The
// stores stay decoupled: operations carry the identifier into the remote
// call instead of the task layer reaching into session state later.
func (s *Syncer) currentUserID() (int64, error) {
	if !s.session.LoggedIn() {
		return 0, ErrNotLoggedIn
	}
	return s.session.UserID(), nil
}

func (s *Syncer) wait(ctx context.Context) error {
	if s.latency <= 0 {
		return nil
	}
	timer := time.NewTimer(s.latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
