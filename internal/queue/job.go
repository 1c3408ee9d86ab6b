// Package queue adapts an external message broker into a small job queue:
// producers Send typed payloads, consumers Work one job at a time per kind,
// and failed jobs are republished with backoff until they are dead-lettered.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Job is the envelope carried through the broker.
type Job struct {
	ID           string          `json:"id"`
	Kind         string          `json:"kind"`
	Payload      json.RawMessage `json:"payload"`
	RetryLimit   int             `json:"retry_limit"`
	RetryDelay   time.Duration   `json:"retry_delay"`
	RetryBackoff bool            `json:"retry_backoff"`
	ExpireIn     time.Duration   `json:"expire_in"`
	Attempt      int             `json:"attempt"`
	CreatedAt    time.Time       `json:"created_at"`
}

// SendOptions controls retry and expiry of a job.
type SendOptions struct {
	RetryLimit   int
	RetryDelay   time.Duration
	RetryBackoff bool
	ExpireIn     time.Duration
	// StartAfter delays the first delivery.
	StartAfter time.Duration
}

// Handler processes one job. Returning an error schedules a retry unless the
// error is Permanent or the retry limit is spent.
type Handler func(ctx context.Context, job Job) error

// Decode unmarshals the payload into v.
func (j Job) Decode(v any) error {
	return json.Unmarshal(j.Payload, v)
}

// Expired reports whether the job outlived its ExpireIn window.
func (j Job) Expired(now time.Time) bool {
	return j.ExpireIn > 0 && now.After(j.CreatedAt.Add(j.ExpireIn))
}

// CanRetry reports whether another attempt is allowed after this one.
func (j Job) CanRetry() bool {
	return j.Attempt <= j.RetryLimit
}

// NextDelay is the wait before the attempt following this one:
// RetryDelay, doubled per previous attempt when backoff is on.
func (j Job) NextDelay() time.Duration {
	if !j.RetryBackoff || j.Attempt <= 1 {
		return j.RetryDelay
	}
	shift := j.Attempt - 1
	if shift > 20 {
		shift = 20
	}
	return j.RetryDelay * time.Duration(1<<shift)
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying; the job is dead-lettered at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
