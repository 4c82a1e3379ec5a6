package valkey

import (
	"context"
	"fmt"
	"strings"
	"time"

	valkeylib "github.com/valkey-io/valkey-go"
)

const DefaultConnectTimeout = 5 * time.Second

type Config struct {
	Address        string
	Password       string
	DB             int
	KeyPrefix      string
	ConnectTimeout time.Duration
}

// Client is the shared connection used for item claims, the scheduler wake
// signal and the websocket fan-out. Every key it builds carries KeyPrefix so
// several deployments can share one server.
type Client struct {
	inner  valkeylib.Client
	prefix string
}

// NewClient connects and pings within ConnectTimeout. Close releases it.
func NewClient(cfg Config) (*Client, error) {
	inner, err := valkeylib.NewClient(valkeylib.ClientOption{
		InitAddress: []string{cfg.Address},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	c := &Client{inner: inner, prefix: strings.TrimSuffix(cfg.KeyPrefix, ":")}
	if err := c.Ping(ctx); err != nil {
		inner.Close()
		return nil, fmt.Errorf("failed to ping valkey at %s (timeout %v): %w", cfg.Address, timeout, err)
	}
	return c, nil
}

func (c *Client) Close() {
	if c.inner != nil {
		c.inner.Close()
	}
}

// Key joins parts under the prefix: Key("claim", "item", "42") -> "autoposter:claim:item:42".
func (c *Client) Key(parts ...string) string {
	all := make([]string, 0, len(parts)+1)
	if c.prefix != "" {
		all = append(all, c.prefix)
	}
	all = append(all, parts...)
	return strings.Join(all, ":")
}

func (c *Client) Ping(ctx context.Context) error {
	return c.inner.Do(ctx, c.inner.B().Ping().Build()).Error()
}

// Publish sends payload on a pub/sub channel.
func (c *Client) Publish(ctx context.Context, channel, payload string) error {
	return c.inner.Do(ctx, c.inner.B().Publish().Channel(channel).Message(payload).Build()).Error()
}

// Subscribe blocks until ctx is done or the subscription fails.
func (c *Client) Subscribe(ctx context.Context, channel string, fn func(payload string)) error {
	return c.inner.Receive(ctx, c.inner.B().Subscribe().Channel(channel).Build(), func(msg valkeylib.PubSubMessage) {
		fn(msg.Message)
	})
}

func isNil(err error) bool {
	return valkeylib.IsValkeyNil(err)
}
