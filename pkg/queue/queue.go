package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotRunning = errors.New("queue not running")
	ErrNoJob      = errors.New("no job registered for type")
)

// Enqueuer is the producer side of a queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) (string, error)
}

// QueueConfig contains the configuration for the queue
type QueueConfig struct {
	Workers    int           // number of workers
	RetryLimit int           // number of maximum retries
	RetryDelay time.Duration // time delay between retries
	PollEvery  time.Duration // how often due retries are moved back
}

// Message represents a message in the queue
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
	LastError string          `json:"last_error,omitempty"`
}

// Decode unmarshals a job payload into T.
func Decode[T any](payload json.RawMessage) (*T, error) {
	var result T
	if len(payload) == 0 {
		return nil, Permanent(fmt.Errorf("empty payload"))
	}
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, Permanent(fmt.Errorf("unmarshal payload: %w", err))
	}
	return &result, nil
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
