// Package history keeps a bounded, most-recent-first in-memory record of
// processed messages for the observability surface. The record is
// process-lifetime only; persistence across restarts is a non-goal.
package history

import (
	"sync"
	"time"
)

// Status is the aggregate outcome of one forwarded message.
type Status string

const (
	// StatusSuccess means every recipient delivery succeeded.
	StatusSuccess Status = "success"
	// StatusFailed means at least one recipient delivery failed.
	StatusFailed Status = "failed"
)

// DefaultCapacity bounds the task log when no capacity is configured.
const DefaultCapacity = 100

// ForwardTask is one historical record of a matched-and-forwarded message.
// It is never mutated after being appended.
type ForwardTask struct {
	// ID is a monotonic, process-lifetime sequence number assigned on append.
	ID uint64 `json:"id"`
	// Timestamp is assigned on append unless already set.
	Timestamp    time.Time `json:"timestamp"`
	Subject      string    `json:"subject"`
	Sender       string    `json:"sender"`
	Tag          string    `json:"tag"`
	Recipients   []string  `json:"recipients"`
	Status       Status    `json:"status"`
	// ErrorSummary is "<n>/<total> failed" when Status is StatusFailed.
	ErrorSummary string `json:"errorSummary,omitempty"`
}

// TaskLog is a bounded, newest-first sequence of ForwardTask. Appends are a
// single atomic structural operation, so a concurrent reader never observes
// the list mid-mutation.
type TaskLog struct {
	mu       sync.RWMutex
	capacity int
	nextID   uint64
	tasks    []ForwardTask
}

// NewTaskLog creates a TaskLog holding at most capacity entries. A
// non-positive capacity selects DefaultCapacity.
func NewTaskLog(capacity int) *TaskLog {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &TaskLog{capacity: capacity}
}

// Append inserts a task at the head of the log, assigning its sequence id and
// timestamp, and evicts the oldest entry on overflow. The stored task is
// returned.
func (l *TaskLog) Append(task ForwardTask) ForwardTask {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	task.ID = l.nextID
	if task.Timestamp.IsZero() {
		task.Timestamp = time.Now()
	}

	updated := make([]ForwardTask, 0, len(l.tasks)+1)
	updated = append(updated, task)
	updated = append(updated, l.tasks...)
	if len(updated) > l.capacity {
		updated = updated[:l.capacity]
	}
	l.tasks = updated
	return task
}

// Snapshot returns a copy of the current log, newest first.
func (l *TaskLog) Snapshot() []ForwardTask {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]ForwardTask, len(l.tasks))
	copy(out, l.tasks)
	return out
}

// Len returns the number of entries currently held.
func (l *TaskLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.tasks)
}
