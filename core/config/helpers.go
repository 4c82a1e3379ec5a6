package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// GetAllSettings returns a map of the runtime settings exposed to operators.
func GetAllSettings() map[string]any {
	if Global == nil {
		return map[string]any{}
	}
	return map[string]any{
		"scheduler_tick_interval":       Global.Scheduler.TickInterval.String(),
		"scheduler_max_retries":         Global.Scheduler.MaxRetries,
		"scheduler_backoff_base":        Global.Scheduler.BackoffBase.String(),
		"scheduler_timezone":            Global.Scheduler.Timezone,
		"scheduler_fail_fast_permanent": Global.Scheduler.FailFastOnPermanent,
		"planner_max_posts_per_topic":   Global.Planner.MaxPostsPerTopic,
		"planner_generate_ahead":        Global.Planner.GenerateAhead,
		"generation_media_probability":  Global.Generation.MediaProbability,
		"generation_base_cooldown":      Global.Generation.BaseCooldown.String(),
		"generation_max_cooldown":       Global.Generation.MaxCooldown.String(),
		"publish_graph_version":         Global.Publish.GraphVersion,
		"publish_rate_per_second":       Global.Publish.RatePerSecond,
		"app_debug":                     Global.App.Debug,
		"app_version":                   Global.App.Version,
	}
}

// Helpers
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		vLower := strings.ToLower(v)
		return vLower == "1" || vLower == "true" || vLower == "yes" || vLower == "on"
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
