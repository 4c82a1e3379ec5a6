package application

import (
	"context"

	"github.com/re178/mega-facebook-autoposter/generation"
)

// ContentGenerator is the slice of generation.Generator the scheduler and
// planner depend on.
type ContentGenerator interface {
	GenerateText(ctx context.Context, req generation.TextRequest) (string, bool)
	GenerateImage(ctx context.Context, req generation.ImageRequest) (string, bool)
	ShouldAttemptMedia(includeMedia bool) bool
	DetectCritical(ctx context.Context, topic string) bool
}

// WakeSignal lets one process wake the schedulers of its peers.
type WakeSignal interface {
	Notify(ctx context.Context, payload string) error
	Listen(ctx context.Context, fn func(payload string))
}
