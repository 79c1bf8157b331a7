// Package transfer holds the moving parts of a file transfer: the chunked
// copy loop, its progress throttle, the cancellation registry, and the queue
// that tracks every transfer's lifecycle for listing and events.
package transfer

import (
	"sync"
	"time"
)

// Direction is the way bytes flow relative to the local machine.
type Direction string

const (
	Upload   Direction = "upload"
	Download Direction = "download"
)

// TaskState represents the current state of a transfer task.
type TaskState string

const (
	TaskQueued    TaskState = "queued"    // Waiting for a worker slot
	TaskActive    TaskState = "active"    // Slot acquired, bytes moving
	TaskCompleted TaskState = "completed" // Successfully completed
	TaskFailed    TaskState = "failed"    // Failed with error
	TaskCancelled TaskState = "cancelled" // Cancelled by user
)

// Task is one tracked transfer. Fields are guarded by mu; use Snapshot for
// a consistent copy.
type Task struct {
	ID        string
	Direction Direction
	SessionID string
	Name      string // Display name (filename)
	Source    string // Remote path (download) or local path (upload)
	Dest      string // Local path (download) or remote path (upload)

	mu          sync.RWMutex
	size        int64
	bytes       int64
	speed       float64
	state       TaskState
	err         error
	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time
}

// TaskInfo is a point-in-time copy of a Task.
type TaskInfo struct {
	ID          string     `json:"id"`
	Direction   Direction  `json:"direction"`
	SessionID   string     `json:"session_id"`
	Name        string     `json:"name"`
	Source      string     `json:"source"`
	Dest        string     `json:"dest"`
	Size        int64      `json:"size"`
	Bytes       int64      `json:"bytes"`
	Speed       float64    `json:"speed"`
	State       TaskState  `json:"state"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func newTask(id string, dir Direction, sessionID, name, source, dest string) *Task {
	return &Task{
		ID:        id,
		Direction: dir,
		SessionID: sessionID,
		Name:      name,
		Source:    source,
		Dest:      dest,
		state:     TaskQueued,
		createdAt: time.Now(),
	}
}

// State returns the current state.
func (t *Task) State() TaskState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Err returns the failure, if any.
func (t *Task) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.err
}

// IsTerminal returns true if the task is completed, failed, or cancelled.
func (t *Task) IsTerminal() bool {
	return t.State().terminal()
}

func (s TaskState) terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// Snapshot returns a copy safe to hand to other goroutines.
func (t *Task) Snapshot() TaskInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	info := TaskInfo{
		ID:        t.ID,
		Direction: t.Direction,
		SessionID: t.SessionID,
		Name:      t.Name,
		Source:    t.Source,
		Dest:      t.Dest,
		Size:      t.size,
		Bytes:     t.bytes,
		Speed:     t.speed,
		State:     t.state,
		CreatedAt: t.createdAt,
	}
	if t.err != nil {
		info.Error = t.err.Error()
	}
	if !t.startedAt.IsZero() {
		started := t.startedAt
		info.StartedAt = &started
	}
	if !t.completedAt.IsZero() {
		completed := t.completedAt
		info.CompletedAt = &completed
	}
	return info
}

// finish moves the task to a terminal state. It reports false when the task
// had already finished, so the first outcome sticks.
func (t *Task) finish(state TaskState, bytes int64, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.terminal() {
		return false
	}
	t.state = state
	t.err = err
	if bytes > t.bytes {
		t.bytes = bytes
	}
	t.completedAt = time.Now()
	return true
}
