package generation

import (
	"context"
	"errors"
	"time"
)

// Kind selects one of the registry's provider pools.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// Provider is one interchangeable generation backend. Text providers return
// the generated text, image providers return a media reference (URL or
// file:// path).
type Provider interface {
	Name() string
	// DailyLimit is the number of successful calls allowed per calendar day.
	// Zero or less means unlimited.
	DailyLimit() int
	Generate(ctx context.Context, prompt string) (string, error)
}

// ProviderState is the operator-facing view of one provider.
type ProviderState struct {
	Name                string     `json:"name"`
	Kind                Kind       `json:"kind"`
	Enabled             bool       `json:"enabled"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	CooldownUntil       *time.Time `json:"cooldown_until,omitempty"`
	CallsUsedToday      int        `json:"calls_used_today"`
	DailyQuota          int        `json:"daily_quota"`
	LastError           string     `json:"last_error,omitempty"`
}

var (
	ErrPoolExhausted   = errors.New("no eligible provider left in pool")
	ErrUnknownProvider = errors.New("unknown provider")
	ErrEmptyOutput     = errors.New("provider returned empty output")
)

type ownerKey struct{}

// WithOwner tags ctx with the page a generation request is for, so providers
// that write files can place them per page.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey{}, ownerID)
}

func OwnerFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ownerKey{}).(string)
	return v
}
