package valkey

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Signal is a named pub/sub channel used to wake peers up early.
type Signal struct {
	client  *Client
	channel string
}

func NewSignal(client *Client, name string) *Signal {
	return &Signal{client: client, channel: client.Key("signal", name)}
}

func (s *Signal) Channel() string {
	return s.channel
}

func (s *Signal) Notify(ctx context.Context, payload string) error {
	return s.client.Publish(ctx, s.channel, payload)
}

// Listen blocks until ctx is done, calling fn for each received message.
func (s *Signal) Listen(ctx context.Context, fn func(payload string)) {
	if err := s.client.Subscribe(ctx, s.channel, fn); err != nil && ctx.Err() == nil {
		logrus.WithError(err).Errorf("[VALKEY] Subscriber for %s stopped", s.channel)
	}
}
