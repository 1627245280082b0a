package todostate

// Status is the lifecycle value attached to an entity or an aggregate
// workflow. StatusIdle is the resting value; it is the only status ever
// written to durable storage.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusLoading   Status = "loading"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusDeleting  Status = "deleting"
	StatusCreating  Status = "creating"
	StatusCreated   Status = "created"
)

// AggregateStatus is one status/error pair tracked once per workflow rather
// than per entity.
type AggregateStatus struct {
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

func restingAggregate() AggregateStatus {
	return AggregateStatus{Status: StatusIdle}
}

// ExtrasState groups the per-workflow aggregates for the three mutating
// workflows. The per-entity statuses on TaskState are the source of truth
// for update and delete; these aggregates exist so an observer can watch a
// workflow without knowing which entity it targets.
type ExtrasState struct {
	Add    AggregateStatus `json:"add"`
	Update AggregateStatus `json:"update"`
	Delete AggregateStatus `json:"delete"`
}

func restingExtras() ExtrasState {
	return ExtrasState{
		Add:    restingAggregate(),
		Update: restingAggregate(),
		Delete: restingAggregate(),
	}
}

// Logger matches the subset of the stdlib logger the package needs.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}
