package transfer

import (
	"sync"
	"time"

	"github.com/sftpdesk/sftpdesk/internal/constants"
	"github.com/sftpdesk/sftpdesk/internal/events"
)

// QueueStats holds statistics about the transfer queue.
type QueueStats struct {
	Queued    int `json:"queued"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// Total returns total number of tasks in queue.
func (s QueueStats) Total() int {
	return s.Queued + s.Active + s.Completed + s.Failed + s.Cancelled
}

// Queue is a passive transfer tracker that publishes lifecycle events.
// It does NOT execute transfers; the transfer service does, reporting each
// step here:
//   - Track when the transfer is accepted (queued)
//   - Start once a worker slot is held and the size is known
//   - Progress on every emitted progress sample
//   - Complete, Fail or Cancel exactly once at the end
//
// The service holds the *Task it tracked, so a later transfer reusing the
// same id never receives a stale transfer's updates.
type Queue struct {
	tasks     []*Task          // All tasks in creation order
	tasksByID map[string]*Task // Latest task per transfer id
	mu        sync.RWMutex

	// maxFinished bounds how many finished tasks are kept. Unfinished
	// tasks are never pruned.
	maxFinished int

	eventBus *events.EventBus
}

// NewQueue creates a new transfer queue with the specified event bus.
// eventBus may be nil.
func NewQueue(eventBus *events.EventBus) *Queue {
	return &Queue{
		tasks:       make([]*Task, 0),
		tasksByID:   make(map[string]*Task),
		maxFinished: constants.MaxFinishedTransfers,
		eventBus:    eventBus,
	}
}

// Track registers a new transfer in TaskQueued state.
func (q *Queue) Track(id string, dir Direction, sessionID, name, source, dest string) *Task {
	task := newTask(id, dir, sessionID, name, source, dest)

	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.tasksByID[id] = task
	q.pruneLocked()
	q.mu.Unlock()

	q.publishTransferEvent(events.EventTransferQueued, task)
	return task
}

// Start marks a queued task active once its worker slot is held.
func (q *Queue) Start(task *Task, size int64) {
	task.mu.Lock()
	started := task.state == TaskQueued
	if started {
		task.state = TaskActive
		task.size = size
		task.startedAt = time.Now()
	}
	task.mu.Unlock()

	if started {
		q.publishTransferEvent(events.EventTransferStarted, task)
	}
}

// Progress records the running byte count and the smoothed speed computed by
// the copy loop. No event is published; the copy loop publishes its own.
func (q *Queue) Progress(task *Task, bytes int64, speed float64) {
	task.mu.Lock()
	defer task.mu.Unlock()
	if task.state.terminal() {
		return
	}
	task.bytes = bytes
	task.speed = speed
}

// Complete marks a task as successfully completed.
func (q *Queue) Complete(task *Task, bytes int64) {
	task.mu.Lock()
	if task.size == 0 {
		task.size = bytes
	}
	task.mu.Unlock()

	if task.finish(TaskCompleted, bytes, nil) {
		q.publishTransferEvent(events.EventTransferCompleted, task)
	}
}

// Fail marks a task as failed with an error.
func (q *Queue) Fail(task *Task, err error) {
	if task.finish(TaskFailed, 0, err) {
		q.publishTransferEvent(events.EventTransferFailed, task)
	}
}

// Cancel marks a task as cancelled with the bytes moved before it stopped.
func (q *Queue) Cancel(task *Task, bytes int64) {
	if task.finish(TaskCancelled, bytes, nil) {
		q.publishTransferEvent(events.EventTransferCancelled, task)
	}
}

// ClearFinished removes all completed/failed/cancelled tasks and returns how
// many were removed.
func (q *Queue) ClearFinished() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	filtered := make([]*Task, 0, len(q.tasks))
	removed := 0
	for _, task := range q.tasks {
		if !task.IsTerminal() {
			filtered = append(filtered, task)
			continue
		}
		removed++
		if q.tasksByID[task.ID] == task {
			delete(q.tasksByID, task.ID)
		}
	}
	q.tasks = filtered
	return removed
}

// pruneLocked drops the oldest finished tasks beyond maxFinished.
func (q *Queue) pruneLocked() {
	finished := 0
	for _, task := range q.tasks {
		if task.IsTerminal() {
			finished++
		}
	}
	excess := finished - q.maxFinished
	if excess <= 0 {
		return
	}

	kept := q.tasks[:0]
	for _, task := range q.tasks {
		if excess > 0 && task.IsTerminal() {
			excess--
			if q.tasksByID[task.ID] == task {
				delete(q.tasksByID, task.ID)
			}
			continue
		}
		kept = append(kept, task)
	}
	clear(q.tasks[len(kept):])
	q.tasks = kept
}

// GetStats returns current queue statistics.
func (q *Queue) GetStats() QueueStats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := QueueStats{}
	for _, task := range q.tasks {
		switch task.State() {
		case TaskQueued:
			stats.Queued++
		case TaskActive:
			stats.Active++
		case TaskCompleted:
			stats.Completed++
		case TaskFailed:
			stats.Failed++
		case TaskCancelled:
			stats.Cancelled++
		}
	}
	return stats
}

// GetTasks returns a copy of all tasks for display, oldest first.
func (q *Queue) GetTasks() []TaskInfo {
	q.mu.RLock()
	defer q.mu.RUnlock()

	result := make([]TaskInfo, len(q.tasks))
	for i, task := range q.tasks {
		result[i] = task.Snapshot()
	}
	return result
}

// GetTask returns a copy of the latest task with the given id.
func (q *Queue) GetTask(id string) (TaskInfo, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	task, exists := q.tasksByID[id]
	if !exists {
		return TaskInfo{}, false
	}
	return task.Snapshot(), true
}

// publishTransferEvent publishes a transfer event to the event bus.
func (q *Queue) publishTransferEvent(eventType events.EventType, task *Task) {
	if q.eventBus == nil {
		return
	}

	info := task.Snapshot()
	event := &events.TransferEvent{
		BaseEvent: events.BaseEvent{
			EventType: eventType,
			Time:      time.Now(),
		},
		TaskID:    info.ID,
		Direction: string(info.Direction),
		SessionID: info.SessionID,
		Name:      info.Name,
		Source:    info.Source,
		Dest:      info.Dest,
		Size:      info.Size,
		Bytes:     info.Bytes,
		Speed:     info.Speed,
		Error:     task.Err(),
	}
	q.eventBus.Publish(event)
}
