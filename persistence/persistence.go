// Package persistence saves and loads the two pieces of state a resumed
// or replayed run needs to survive a process restart: a flow.Snapshot
// (node statuses, edge gates, loop counters, accumulated state/outputs)
// and a bus.PausedSession (the resumable-abort record the bus's
// pause/resume state machine hands off to whatever restarts the run).
// Grounded on the teacher's features/session/mongo and features/run/mongo
// packages (a thin Store delegating CRUD to a Mongo collection, one
// document per record, sentinel ErrNotFound), adapted from the teacher's
// pinned go.mongodb.org/mongo-driver v1 import paths to the v2 driver
// this module's go.mod carries, the same adaptation recording/mongostore
// already makes.
package persistence

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

const defaultTimeout = 5 * time.Second

// ErrNotFound is returned when no record exists for the requested ID.
var ErrNotFound = errors.New("persistence: not found")

// Options configures a Store's backing Mongo collection.
type Options struct {
	Client     *mongo.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

func (o Options) collection(defaultName string) (*mongo.Collection, time.Duration, error) {
	if o.Client == nil {
		return nil, 0, errors.New("persistence: client is required")
	}
	if o.Database == "" {
		return nil, 0, errors.New("persistence: database name is required")
	}
	name := o.Collection
	if name == "" {
		name = defaultName
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return o.Client.Database(o.Database).Collection(name), timeout, nil
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}
