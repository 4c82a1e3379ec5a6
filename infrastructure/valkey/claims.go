package valkey

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const releaseClaimScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

const refreshClaimScript = `
local held = redis.call("get", KEYS[1])
if held == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
elseif not held then
	redis.call("set", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
else
	return 0
end
`

// ItemClaims hands out per-item delivery claims shared by every scheduler
// process pointing at the same Valkey. A claim expires on its own after ttl
// so a crashed holder cannot block an item forever.
type ItemClaims struct {
	client *Client
	holder string
	ttl    time.Duration
}

func NewItemClaims(client *Client, holder string, ttl time.Duration) *ItemClaims {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if holder == "" {
		holder = uuid.NewString()
	}
	return &ItemClaims{client: client, holder: holder, ttl: ttl}
}

func (c *ItemClaims) key(itemID string) string {
	return c.client.Key("claim", "item", itemID)
}

// Claim returns a release token when the item was free.
func (c *ItemClaims) Claim(ctx context.Context, itemID string) (string, bool, error) {
	token := c.holder + ":" + uuid.NewString()
	inner := c.client.inner
	cmd := inner.B().Set().
		Key(c.key(itemID)).
		Value(token).
		Nx().
		Px(c.ttl).
		Build()

	if err := inner.Do(ctx, cmd).Error(); err != nil {
		if isNil(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("claim item %s: %w", itemID, err)
	}
	return token, true, nil
}

// Release drops the claim only if token still owns it.
func (c *ItemClaims) Release(ctx context.Context, itemID, token string) {
	inner := c.client.inner
	cmd := inner.B().Eval().
		Script(releaseClaimScript).
		Numkeys(1).
		Key(c.key(itemID)).
		Arg(token).
		Build()
	if err := inner.Do(ctx, cmd).Error(); err != nil {
		logrus.WithError(err).WithField("item_id", itemID).Warn("[VALKEY] Failed to release item claim")
	}
}

// Refresh restarts the claim's ttl. A lapsed claim nobody picked up is taken
// back under the same token.
func (c *ItemClaims) Refresh(ctx context.Context, itemID, token string) (bool, error) {
	inner := c.client.inner
	cmd := inner.B().Eval().
		Script(refreshClaimScript).
		Numkeys(1).
		Key(c.key(itemID)).
		Arg(token, strconv.FormatInt(c.ttl.Milliseconds(), 10)).
		Build()
	n, err := inner.Do(ctx, cmd).AsInt64()
	if err != nil {
		return false, fmt.Errorf("refresh claim on item %s: %w", itemID, err)
	}
	return n == 1, nil
}
