package application

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Claimer grants exclusive delivery rights on one item. The Valkey-backed
// implementation extends the guarantee across processes.
type Claimer interface {
	Claim(ctx context.Context, itemID string) (string, bool, error)
	Release(ctx context.Context, itemID, token string)
	// Refresh extends a claim that token still owns, or takes it back when
	// it lapsed and nobody else holds it. False means another holder won.
	Refresh(ctx context.Context, itemID, token string) (bool, error)
}

// LocalClaims is the in-process Claimer used when Valkey is disabled.
type LocalClaims struct {
	mu     sync.Mutex
	tokens map[string]string
}

func NewLocalClaims() *LocalClaims {
	return &LocalClaims{tokens: make(map[string]string)}
}

func (c *LocalClaims) Claim(_ context.Context, itemID string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, held := c.tokens[itemID]; held {
		return "", false, nil
	}
	token := uuid.NewString()
	c.tokens[itemID] = token
	return token, true, nil
}

func (c *LocalClaims) Release(_ context.Context, itemID, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokens[itemID] == token {
		delete(c.tokens, itemID)
	}
}

func (c *LocalClaims) Refresh(_ context.Context, itemID, token string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	held, ok := c.tokens[itemID]
	if !ok {
		c.tokens[itemID] = token
		return true, nil
	}
	return held == token, nil
}
