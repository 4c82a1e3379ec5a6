package publish

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, Class(""), Classify(nil))
	assert.Equal(t, Permanent, Classify(NewPermanent("publish", errors.New("bad token"))))
	assert.Equal(t, Transient, Classify(NewTransient("publish", errors.New("429"))))
	assert.Equal(t, Permanent, Classify(fmt.Errorf("wrapped: %w", NewPermanent("publish", errors.New("x")))))
	assert.Equal(t, Transient, Classify(context.DeadlineExceeded))
	assert.Equal(t, Transient, Classify(errors.New("something odd")))
}

func TestError_Message(t *testing.T) {
	err := &Error{Class: Permanent, Op: "publish", StatusCode: 400, Code: 190, Err: errors.New("token expired")}
	assert.Contains(t, err.Error(), "permanent publish failed")
	assert.Contains(t, err.Error(), "code 190")
	assert.ErrorIs(t, err, err.Err)
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, Base: 30 * time.Second}
	assert.Equal(t, time.Duration(0), p.Backoff(0))
	assert.Equal(t, 30*time.Second, p.Backoff(1))
	assert.Equal(t, 60*time.Second, p.Backoff(2))
	assert.Equal(t, 120*time.Second, p.Backoff(3))
}

func TestRetryPolicy_Next(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, Base: time.Second}
	transient := NewTransient("publish", errors.New("timeout"))
	permanent := NewPermanent("publish", errors.New("rejected"))

	n, terminal := p.Next(0, transient)
	assert.Equal(t, 1, n)
	assert.False(t, terminal)

	n, terminal = p.Next(2, transient)
	assert.Equal(t, 3, n)
	assert.True(t, terminal)

	n, terminal = p.Next(0, permanent)
	assert.Equal(t, 1, n)
	assert.False(t, terminal, "permanent errors consume retries by default")

	p.FailFastOnPermanent = true
	_, terminal = p.Next(0, permanent)
	assert.True(t, terminal)
}
