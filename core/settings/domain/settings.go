package domain

import "context"

// Runtime switches an operator can flip without a restart. Values are stored
// as strings; an absent key means the compiled-in default.
const (
	KeyAutoGenerationEnabled = "auto_generation_enabled"
	KeySchedulerPaused       = "scheduler_paused"
	KeyMediaProbability      = "generation_media_probability"
	KeyDisabledProviders     = "generation_disabled_providers" // comma separated provider names
)

// Repository persists runtime settings as key/value pairs. Get returns an
// empty string for keys never set.
type Repository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	InitSchema(ctx context.Context) error
}
