package todostate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/origon/todosync/internal/codec"
)

// Partition keys inside the durable namespace. The root partition records
// schema and partition bookkeeping; the other two hold the entities with
// every transient field already stripped.
const (
	rootStateKey  = "root"
	tasksStateKey = "tasks"
	userStateKey  = "user"

	snapshotSchemaVersion = 1
)

const defaultGatewayDebounce = 100 * time.Millisecond

type rootPartition struct {
	Version    int      `json:"version"`
	Partitions []string `json:"partitions"`
}

// persistedUser is the durable view of the session entity. The logged-in
// flag is derived on rehydration, never stored.
type persistedUser struct {
	ID       int64  `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email,omitempty"`
}

// GatewayOptions configures a Gateway. Zero values select the defaults.
type GatewayOptions struct {
	// Backend is the durable namespace. Nil selects in-memory storage.
	Backend StateBackend
	// Debounce delays snapshot writes so a burst of mutations costs one
	// write.
	Debounce time.Duration
	Logger   Logger
}

// Gateway serializes the task and session stores into a durable key-value
// namespace and rehydrates them on startup. Writes are debounced and happen
// off the mutating goroutine; hydration and clearing are explicit calls.
type Gateway struct {
	backend  StateBackend
	store    *Store
	session  *Session
	debounce time.Duration
	logger   Logger

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
}

// NewGateway wires a gateway to both stores. From this point every store
// mutation schedules a snapshot write.
func NewGateway(store *Store, session *Session, opts GatewayOptions) *Gateway {
	backend := opts.Backend
	if backend == nil {
		backend = NewInMemoryStateBackend()
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = defaultGatewayDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	g := &Gateway{
		backend:  backend,
		store:    store,
		session:  session,
		debounce: debounce,
		logger:   logger,
	}
	store.SetOnChange(g.markDirty)
	session.SetOnChange(g.markDirty)
	return g
}

func (g *Gateway) markDirty() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	if g.timer == nil {
		g.timer = time.AfterFunc(g.debounce, func() {
			g.mu.Lock()
			g.timer = nil
			closed := g.closed
			g.mu.Unlock()
			if closed {
				return
			}
			if err := g.Flush(); err != nil {
				g.logger.Printf("todostate: snapshot write failed: %v", err)
			}
		})
		return
	}
	g.timer.Reset(g.debounce)
}

// Flush writes the current durable snapshot immediately.
func (g *Gateway) Flush() error {
	tasks := g.store.snapshotTasks()
	user := g.session.snapshotUser()

	tasksJSON, err := json.Marshal(tasks)
	if err != nil {
		return err
	}
	userJSON, err := json.Marshal(persistedUser{ID: user.ID, FullName: user.FullName, Email: user.Email})
	if err != nil {
		return err
	}
	rootJSON, err := json.Marshal(rootPartition{
		Version:    snapshotSchemaVersion,
		Partitions: []string{tasksStateKey, userStateKey},
	})
	if err != nil {
		return err
	}

	if err := g.backend.Set(tasksStateKey, tasksJSON); err != nil {
		return err
	}
	if err := g.backend.Set(userStateKey, userJSON); err != nil {
		return err
	}
	// Root goes last: its presence marks the partitions complete.
	return g.backend.Set(rootStateKey, rootJSON)
}

// Hydrate reads the durable snapshot and installs it as the stores' initial
// state, with every status at rest. An absent, corrupt, or schema-invalid
// snapshot leaves the documented empty initial state in place.
func (g *Gateway) Hydrate() error {
	rootJSON, err := g.backend.Get(rootStateKey)
	if err != nil {
		return err
	}
	if rootJSON == nil {
		return nil
	}
	if err := validatePartition(rootStateKey, rootJSON); err != nil {
		g.logger.Printf("todostate: discarding snapshot, root partition invalid: %v", err)
		return nil
	}
	var root rootPartition
	if err := json.Unmarshal(rootJSON, &root); err != nil {
		g.logger.Printf("todostate: discarding snapshot, root partition unreadable: %v", err)
		return nil
	}
	if root.Version != snapshotSchemaVersion {
		g.logger.Printf("todostate: discarding snapshot with schema version %d", root.Version)
		return nil
	}

	if tasksJSON, err := g.backend.Get(tasksStateKey); err != nil {
		return err
	} else if tasksJSON != nil {
		if err := validatePartition(tasksStateKey, tasksJSON); err != nil {
			g.logger.Printf("todostate: discarding tasks partition: %v", err)
		} else {
			var tasks []codec.Task
			if err := json.Unmarshal(tasksJSON, &tasks); err != nil {
				g.logger.Printf("todostate: discarding unreadable tasks partition: %v", err)
			} else {
				g.store.restore(tasks)
			}
		}
	}

	if userJSON, err := g.backend.Get(userStateKey); err != nil {
		return err
	} else if userJSON != nil {
		if err := validatePartition(userStateKey, userJSON); err != nil {
			g.logger.Printf("todostate: discarding user partition: %v", err)
		} else {
			var user persistedUser
			if err := json.Unmarshal(userJSON, &user); err != nil {
				g.logger.Printf("todostate: discarding unreadable user partition: %v", err)
			} else {
				g.session.restore(codec.User{ID: user.ID, FullName: user.FullName, Email: user.Email})
			}
		}
	}
	return nil
}

// Clear removes every persisted key. Idempotent, and deliberately leaves
// the running in-memory state alone; the next mutation writes a fresh
// snapshot.
func (g *Gateway) Clear() error {
	return g.backend.Clear()
}

// Close stops the debounce timer, writes a final snapshot, and releases the
// backend.
func (g *Gateway) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.mu.Unlock()

	flushErr := g.Flush()
	if closer, ok := g.backend.(stateBackendCloser); ok {
		if err := closer.Close(); err != nil && flushErr == nil {
			flushErr = err
		}
	}
	return flushErr
}

// Snapshot schema. Partitions that fail validation are treated as absent
// rather than half-applied.
const snapshotSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$defs": {
    "root": {
      "type": "object",
      "required": ["version", "partitions"],
      "properties": {
        "version": {"type": "integer"},
        "partitions": {"type": "array", "items": {"type": "string"}}
      }
    },
    "tasks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "title"],
        "properties": {
          "id": {"type": "integer"},
          "title": {"type": "string"},
          "description": {"type": "string"},
          "createdAt": {"type": "string"},
          "isCompleted": {"type": "boolean"}
        }
      }
    },
    "user": {
      "type": "object",
      "required": ["id"],
      "properties": {
        "id": {"type": "integer"},
        "fullName": {"type": "string"},
        "email": {"type": "string"}
      }
    }
  }
}`

const snapshotSchemaURL = "todosync://snapshot.schema.json"

var snapshotSchemas = struct {
	once   sync.Once
	err    error
	byName map[string]*jsonschema.Schema
}{}

func compileSnapshotSchemas() (map[string]*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(snapshotSchemaJSON))
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(snapshotSchemaURL, doc); err != nil {
		return nil, err
	}
	schemas := map[string]*jsonschema.Schema{}
	for _, name := range []string{rootStateKey, tasksStateKey, userStateKey} {
		schema, err := compiler.Compile(snapshotSchemaURL + "#/$defs/" + name)
		if err != nil {
			return nil, err
		}
		schemas[name] = schema
	}
	return schemas, nil
}

func validatePartition(name string, data []byte) error {
	snapshotSchemas.once.Do(func() {
		snapshotSchemas.byName, snapshotSchemas.err = compileSnapshotSchemas()
	})
	if snapshotSchemas.err != nil {
		return fmt.Errorf("snapshot schema: %w", snapshotSchemas.err)
	}
	schema, ok := snapshotSchemas.byName[name]
	if !ok {
		return fmt.Errorf("%w: unknown partition %s", ErrInvalidInput, name)
	}
	value, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return err
	}
	return schema.Validate(value)
}
