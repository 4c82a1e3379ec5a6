package publish

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Credentials address one page on the social network.
type Credentials struct {
	PageID      string
	AccessToken string
}

type ThreadKind string

const (
	ThreadComment ThreadKind = "comment"
	ThreadMessage ThreadKind = "message"
)

// ThreadRef is what a reply answers: a comment id, or a Messenger user id.
type ThreadRef struct {
	Kind ThreadKind `json:"kind"`
	ID   string     `json:"id"`
}

// Gateway delivers content to a page. Every error it returns can be
// classified with Classify.
type Gateway interface {
	Publish(ctx context.Context, creds Credentials, text, mediaRef string) (string, error)
	Reply(ctx context.Context, thread ThreadRef, creds Credentials, text string) (string, error)
}

type Class string

const (
	Transient Class = "transient"
	Permanent Class = "permanent"
)

// Error is a classified delivery failure.
type Error struct {
	Class      Class
	Op         string
	StatusCode int
	Code       int // provider-specific error code, 0 if unknown
	Err        error
}

func (e *Error) Error() string {
	msg := "unknown error"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s failed (status %d, code %d): %s", e.Class, e.Op, e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Class, e.Op, msg)
}

func (e *Error) Unwrap() error { return e.Err }

func NewTransient(op string, err error) *Error {
	return &Error{Class: Transient, Op: op, Err: err}
}

func NewPermanent(op string, err error) *Error {
	return &Error{Class: Permanent, Op: op, Err: err}
}

// Classify returns the class carried by err. Unclassified errors, network
// failures and timeouts included, are transient.
func Classify(err error) Class {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Class
	}
	return Transient
}

// RetryPolicy decides what a failed delivery attempt does to an item.
type RetryPolicy struct {
	MaxRetries int
	Base       time.Duration
	// FailFastOnPermanent fails an item on its first permanent error
	// instead of spending the remaining retries.
	FailFastOnPermanent bool
}

// Backoff is the wait required after the retryCount-th failure:
// base × 2^(retryCount-1). Zero when retryCount is 0.
func (p RetryPolicy) Backoff(retryCount int) time.Duration {
	if retryCount <= 0 {
		return 0
	}
	shift := retryCount - 1
	if shift > 30 {
		shift = 30
	}
	return p.Base * time.Duration(1<<uint(shift))
}

// Next returns the retry count after a failure and whether the item is now terminal.
func (p RetryPolicy) Next(retryCount int, err error) (int, bool) {
	next := retryCount + 1
	if p.MaxRetries > 0 && next > p.MaxRetries {
		next = p.MaxRetries
	}
	if next >= p.MaxRetries {
		return next, true
	}
	if p.FailFastOnPermanent && Classify(err) == Permanent {
		return next, true
	}
	return next, false
}
