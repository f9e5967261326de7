// Package queue hands dispatch tasks from the caller to the delivery workers.
//
// Dispatch never holds the caller open: it validates the event, builds the
// envelope and enqueues a Task. Workers dequeue tasks and run the delivery
// loops. The in-memory queue serves a single process; the Redis queue lets
// several instances share one backlog.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/xraph/herald/id"
)

// ErrClosed is returned by Enqueue after Close, and by Dequeue once a closed
// queue has been drained.
var ErrClosed = errors.New("herald: queue closed")

// Task is one dispatch of an event for a user.
type Task struct {
	UserID string `json:"user_id"`
	Event  string `json:"event"`

	// Payload is the serialized envelope. It is sent byte-for-byte on every
	// attempt so the signature stays reproducible.
	Payload json.RawMessage `json:"payload"`

	// Timestamp is captured when Dispatch is called.
	Timestamp time.Time `json:"timestamp"`

	// SubscriptionID pins the task to a single subscription, bypassing the
	// event filter. Used for test deliveries.
	SubscriptionID id.ID `json:"subscription_id"`
}

// Pinned reports whether the task targets one subscription.
func (t Task) Pinned() bool { return !t.SubscriptionID.IsNil() }

// Queue is a FIFO of dispatch tasks.
type Queue interface {
	// Enqueue adds a task. It blocks while the queue is full.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue blocks until a task is available, ctx is done or the queue is
	// closed and drained.
	Dequeue(ctx context.Context) (Task, error)

	// Len returns the number of tasks waiting.
	Len(ctx context.Context) (int64, error)

	// Close stops accepting tasks.
	Close() error
}
