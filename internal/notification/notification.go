package notification

import (
	"context"
	"time"
)

// Job is one pending delivery to one principal.
type Job struct {
	PrincipalID int64
	Kind        string
	Payload     map[string]any
	EnqueuedAt  time.Time
}

// Sender performs the actual delivery. Email, webhook and chat senders all
// fit behind this; the default just logs.
type Sender interface {
	Send(ctx context.Context, job Job) error
}

// Config tunes the dispatcher pool.
type Config struct {
	MaxWorkers   int
	JobQueueSize int
}

func (c Config) withDefaults() Config {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 5
	}
	if c.JobQueueSize <= 0 {
		c.JobQueueSize = 100
	}
	return c
}
