// Package notify publishes batch-completion notifications. Delivery is
// at-least-once and advisory; the pipeline's correctness never depends on a
// notification landing.
package notify

import (
	"context"
	"time"
)

// Event describes one batch that reached DONE.
type Event struct {
	RunID     string    `json:"run_id"`
	Source    string    `json:"source"`
	Batch     int       `json:"batch"`
	Artifact  string    `json:"artifact"`
	RepoID    string    `json:"repo_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier publishes completion events.
type Notifier interface {
	BatchDone(ctx context.Context, event Event) error
}

// NoOp discards all events.
type NoOp struct{}

// BatchDone does nothing and always returns nil.
func (NoOp) BatchDone(_ context.Context, _ Event) error {
	return nil
}
