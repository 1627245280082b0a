// Package todostate owns the client-side task and session state: the
// normalized task collection with its lifecycle statuses, the single session
// entity, and the persistence gateway that moves both to and from durable
// storage.
//
// All mutation is synchronous and atomic behind an internal mutex. The
// synchronization operations layer is the only intended writer; everything
// else reads through selectors.
package todostate

import (
	"sort"
	"sync"

	"github.com/origon/todosync/internal/codec"
)

// TaskState is a task entity together with its transient lifecycle fields.
// Status and Error never reach durable storage.
type TaskState struct {
	codec.Task
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// TaskChanges is a partial update applied to a stored entity. Nil fields are
// left untouched.
type TaskChanges struct {
	Title       *string
	Description *string
	Completed   *bool
}

// StoreOptions configures a Store. Zero values select the defaults.
type StoreOptions struct {
	Logger Logger
}

// Store is the normalized task collection. One instance exists per process;
// it is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	tasks    map[int64]TaskState
	fetch    AggregateStatus
	extras   ExtrasState
	logger   Logger
	onChange func()
}

// NewStore creates an empty store with every status at rest.
func NewStore() *Store {
	return NewStoreWithOptions(StoreOptions{})
}

func NewStoreWithOptions(opts StoreOptions) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	return &Store{
		tasks:  map[int64]TaskState{},
		fetch:  restingAggregate(),
		extras: restingExtras(),
		logger: logger,
	}
}

// SetOnChange registers a hook invoked after every mutation, outside the
// store lock. The persistence gateway uses it to schedule snapshots.
func (s *Store) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Store) notify() {
	s.mu.RLock()
	fn := s.onChange
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// UpsertMany merges fetched entities by identifier. Entities already present
// keep their current status and error; new entities enter at rest.
func (s *Store) UpsertMany(tasks []codec.Task) {
	s.mu.Lock()
	s.upsertManyLocked(tasks)
	s.mu.Unlock()
	s.notify()
}

func (s *Store) upsertManyLocked(tasks []codec.Task) {
	for _, task := range tasks {
		if existing, ok := s.tasks[task.ID]; ok {
			existing.Task = task
			s.tasks[task.ID] = existing
			continue
		}
		s.tasks[task.ID] = TaskState{Task: task, Status: StatusIdle}
	}
}

// AddOne inserts a freshly created entity at rest. Inserting an identifier
// that is already present is a no-op, so a duplicated create acknowledgment
// cannot double-insert. Reports whether the entity was inserted.
func (s *Store) AddOne(task codec.Task) bool {
	s.mu.Lock()
	added := s.addOneLocked(task)
	s.mu.Unlock()
	if added {
		s.notify()
	}
	return added
}

func (s *Store) addOneLocked(task codec.Task) bool {
	if _, ok := s.tasks[task.ID]; ok {
		s.logger.Printf("todostate: ignoring duplicate insert for task %d", task.ID)
		return false
	}
	s.tasks[task.ID] = TaskState{Task: task, Status: StatusIdle}
	return true
}

// UpdateOne merges changes into the entity with the given identifier. An
// absent identifier is a no-op: a stale update landing after a delete must
// not resurrect the entity.
func (s *Store) UpdateOne(id int64, changes TaskChanges) {
	s.mu.Lock()
	s.updateOneLocked(id, changes)
	s.mu.Unlock()
	s.notify()
}

func (s *Store) updateOneLocked(id int64, changes TaskChanges) {
	existing, ok := s.tasks[id]
	if !ok {
		return
	}
	if changes.Title != nil {
		existing.Title = *changes.Title
	}
	if changes.Description != nil {
		existing.Description = *changes.Description
	}
	if changes.Completed != nil {
		existing.Completed = *changes.Completed
	}
	s.tasks[id] = existing
}

// RemoveOne drops the entity with the given identifier. Idempotent.
func (s *Store) RemoveOne(id int64) {
	s.mu.Lock()
	delete(s.tasks, id)
	s.mu.Unlock()
	s.notify()
}

// RemoveAll clears the collection and returns every aggregate status to
// rest. Used by logout.
func (s *Store) RemoveAll() {
	s.mu.Lock()
	s.tasks = map[int64]TaskState{}
	s.fetch = restingAggregate()
	s.extras = restingExtras()
	s.mu.Unlock()
	s.notify()
}

// ResetEntityStatus returns one entity's status and error to rest, so a
// consumed success or failure does not re-trigger observers. No-op for an
// absent identifier.
func (s *Store) ResetEntityStatus(id int64) {
	s.mu.Lock()
	if existing, ok := s.tasks[id]; ok {
		existing.Status = StatusIdle
		existing.Error = ""
		s.tasks[id] = existing
	}
	s.mu.Unlock()
	s.notify()
}

// ResetFetchStatus returns the bulk-fetch aggregate to rest.
func (s *Store) ResetFetchStatus() {
	s.mu.Lock()
	s.fetch = restingAggregate()
	s.mu.Unlock()
	s.notify()
}

// ResetAddStatus returns the create aggregate to rest without touching the
// created entity.
func (s *Store) ResetAddStatus() {
	s.mu.Lock()
	s.extras.Add = restingAggregate()
	s.mu.Unlock()
	s.notify()
}

// ResetUpdateStatus returns the update aggregate to rest.
func (s *Store) ResetUpdateStatus() {
	s.mu.Lock()
	s.extras.Update = restingAggregate()
	s.mu.Unlock()
	s.notify()
}

// ResetDeleteStatus returns the delete aggregate to rest.
func (s *Store) ResetDeleteStatus() {
	s.mu.Lock()
	s.extras.Delete = restingAggregate()
	s.mu.Unlock()
	s.notify()
}

// ResetExtras returns every mutating-workflow aggregate to rest in one step.
func (s *Store) ResetExtras() {
	s.mu.Lock()
	s.extras = restingExtras()
	s.mu.Unlock()
	s.notify()
}

// Fetch transitions. Terminal transitions are guarded on the in-flight
// status so a late resolution cannot clobber a state already reset or
// superseded by another cycle.

func (s *Store) BeginFetch() {
	s.mu.Lock()
	s.fetch = AggregateStatus{Status: StatusLoading}
	s.mu.Unlock()
	s.notify()
}

func (s *Store) CompleteFetch(tasks []codec.Task) {
	s.mu.Lock()
	if s.fetch.Status == StatusLoading {
		s.upsertManyLocked(tasks)
		s.fetch = AggregateStatus{Status: StatusSucceeded}
	}
	s.mu.Unlock()
	s.notify()
}

// FailFetch records the failure message. The prior collection contents stay
// untouched; a failed refresh never clears previously fetched entities.
func (s *Store) FailFetch(err error) {
	s.mu.Lock()
	if s.fetch.Status == StatusLoading {
		s.fetch = AggregateStatus{Status: StatusFailed, Error: errorMessage(err)}
	}
	s.mu.Unlock()
	s.notify()
}

// Create transitions. Tracked only at the aggregate level: a create has no
// identifier until the remote service assigns one.

func (s *Store) BeginCreate() {
	s.mu.Lock()
	s.extras.Add = AggregateStatus{Status: StatusCreating}
	s.mu.Unlock()
	s.notify()
}

func (s *Store) CompleteCreate(task codec.Task) {
	s.mu.Lock()
	if s.extras.Add.Status == StatusCreating {
		s.addOneLocked(task)
		s.extras.Add = AggregateStatus{Status: StatusCreated}
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Store) FailCreate(err error) {
	s.mu.Lock()
	if s.extras.Add.Status == StatusCreating {
		s.extras.Add = AggregateStatus{Status: StatusFailed, Error: errorMessage(err)}
	}
	s.mu.Unlock()
	s.notify()
}

// Update transitions. The entity status is the source of truth; the update
// aggregate mirrors the most recent update workflow.

func (s *Store) BeginUpdate(id int64) {
	s.mu.Lock()
	if existing, ok := s.tasks[id]; ok {
		existing.Status = StatusLoading
		existing.Error = ""
		s.tasks[id] = existing
	}
	s.extras.Update = AggregateStatus{Status: StatusLoading}
	s.mu.Unlock()
	s.notify()
}

// CompleteUpdate applies the confirmed entity. An absent identifier is a
// no-op: the entity was deleted while the update was in flight.
func (s *Store) CompleteUpdate(task codec.Task) {
	s.mu.Lock()
	if existing, ok := s.tasks[task.ID]; ok {
		existing.Task = task
		existing.Status = StatusSucceeded
		existing.Error = ""
		s.tasks[task.ID] = existing
	}
	if s.extras.Update.Status == StatusLoading {
		s.extras.Update = AggregateStatus{Status: StatusSucceeded}
	}
	s.mu.Unlock()
	s.notify()
}

// FailUpdate leaves the entity at its last-known field values in failed
// status, so the edit can be retried.
func (s *Store) FailUpdate(id int64, err error) {
	s.mu.Lock()
	if existing, ok := s.tasks[id]; ok {
		existing.Status = StatusFailed
		existing.Error = errorMessage(err)
		s.tasks[id] = existing
	}
	if s.extras.Update.Status == StatusLoading {
		s.extras.Update = AggregateStatus{Status: StatusFailed, Error: errorMessage(err)}
	}
	s.mu.Unlock()
	s.notify()
}

// Delete transitions. The entity stays visible in deleting status until the
// remote service acknowledges; removal is never optimistic.

func (s *Store) BeginDelete(id int64) {
	s.mu.Lock()
	if existing, ok := s.tasks[id]; ok {
		existing.Status = StatusDeleting
		existing.Error = ""
		s.tasks[id] = existing
	}
	s.extras.Delete = AggregateStatus{Status: StatusLoading}
	s.mu.Unlock()
	s.notify()
}

func (s *Store) CompleteDelete(id int64) {
	s.mu.Lock()
	delete(s.tasks, id)
	if s.extras.Delete.Status == StatusLoading {
		s.extras.Delete = AggregateStatus{Status: StatusSucceeded}
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Store) FailDelete(id int64, err error) {
	s.mu.Lock()
	if existing, ok := s.tasks[id]; ok {
		existing.Status = StatusFailed
		existing.Error = errorMessage(err)
		s.tasks[id] = existing
	}
	if s.extras.Delete.Status == StatusLoading {
		s.extras.Delete = AggregateStatus{Status: StatusFailed, Error: errorMessage(err)}
	}
	s.mu.Unlock()
	s.notify()
}

// Selectors.

// AllTasks returns every entity ordered by creation timestamp descending,
// most recently created first. The sort happens at selection time; ties
// break on identifier descending so the order is deterministic.
func (s *Store) AllTasks() []TaskState {
	s.mu.RLock()
	tasks := make([]TaskState, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, task)
	}
	s.mu.RUnlock()

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt != tasks[j].CreatedAt {
			return tasks[i].CreatedAt > tasks[j].CreatedAt
		}
		return tasks[i].ID > tasks[j].ID
	})
	return tasks
}

// TaskByID returns the entity with the given identifier.
func (s *Store) TaskByID(id int64) (TaskState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	return task, ok
}

// Len reports the number of stored entities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// FetchStatus returns the bulk-fetch aggregate.
func (s *Store) FetchStatus() AggregateStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetch
}

// AddStatus returns the create aggregate.
func (s *Store) AddStatus() AggregateStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.extras.Add
}

// UpdateStatus returns the update aggregate.
func (s *Store) UpdateStatus() AggregateStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.extras.Update
}

// DeleteStatus returns the delete aggregate.
func (s *Store) DeleteStatus() AggregateStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.extras.Delete
}

// Extras returns all three mutating-workflow aggregates.
func (s *Store) Extras() ExtrasState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.extras
}

// CurrentWorkflowError returns the first non-empty workflow error, checking
// add, then update, then delete.
func (s *Store) CurrentWorkflowError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.extras.Add.Error != "" {
		return s.extras.Add.Error
	}
	if s.extras.Update.Error != "" {
		return s.extras.Update.Error
	}
	return s.extras.Delete.Error
}

// AnyWorkflowInFlight reports whether any mutating workflow is between its
// begin and terminal transitions.
func (s *Store) AnyWorkflowInFlight() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.extras.Add.Status == StatusCreating ||
		s.extras.Update.Status == StatusLoading ||
		s.extras.Delete.Status == StatusLoading
}

// AnyWorkflowSucceeded reports whether any mutating workflow sits at an
// unconsumed success.
func (s *Store) AnyWorkflowSucceeded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.extras.Add.Status == StatusCreated ||
		s.extras.Update.Status == StatusSucceeded ||
		s.extras.Delete.Status == StatusSucceeded
}

// restore replaces the collection with rehydrated entities. Statuses are
// forced to rest regardless of input and the change hook does not fire;
// hydration must not schedule a write of the state it just read.
func (s *Store) restore(tasks []codec.Task) {
	s.mu.Lock()
	s.tasks = make(map[int64]TaskState, len(tasks))
	for _, task := range tasks {
		s.tasks[task.ID] = TaskState{Task: task, Status: StatusIdle}
	}
	s.fetch = restingAggregate()
	s.extras = restingExtras()
	s.mu.Unlock()
}

// snapshotTasks returns the durable view of the collection: entities only,
// ordered by identifier, transient fields dropped.
func (s *Store) snapshotTasks() []codec.Task {
	s.mu.RLock()
	tasks := make([]codec.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, task.Task)
	}
	s.mu.RUnlock()

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
