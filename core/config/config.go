package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App        AppConfig
	MCP        MCPConfig
	Paths      PathsConfig
	Database   DatabaseConfig
	Scheduler  SchedulerConfig
	Planner    PlannerConfig
	Generation GenerationConfig
	Publish    PublishConfig
	WorkerPool WorkerPoolConfig
	APIKeys    APIKeysConfig
}

type AppConfig struct {
	Version            string
	Port               string
	Debug              bool
	LogFormat          string
	Environment        string
	BasicAuth          []string
	BasePath           string
	CorsAllowedOrigins []string
	ServerID           string
	// SecretKey encrypts page access tokens at rest. Empty stores them as is.
	SecretKey string
}

type MCPConfig struct {
	Port string
	Host string
}

type PathsConfig struct {
	BaseDir  string
	Media    string
	Storages string
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string // File path for SQLite, DB Name for Postgres
	ValkeyEnabled   bool
	ValkeyAddress   string
	ValkeyPassword  string
	ValkeyDB        int
	ValkeyKeyPrefix string
}

type SchedulerConfig struct {
	TickInterval         time.Duration
	MaxRetries           int
	BackoffBase          time.Duration
	Timezone             string
	TickLogInterval      time.Duration
	ClaimTTL             time.Duration
	MaintenanceSpec      string
	PostedRetention      time.Duration
	FailedRetention      time.Duration
	LogRetention         time.Duration
	RetainedLogRetention time.Duration // 0 keeps retained entries forever
	FailFastOnPermanent  bool
}

type PlannerConfig struct {
	Interval         time.Duration
	MaxIterations    int
	MaxPostsPerTopic int
	GenerateAhead    bool
}

type GenerationConfig struct {
	ProvidersFile    string
	MediaProbability float64
	BaseCooldown     time.Duration
	MaxCooldown      time.Duration
	CallTimeout      time.Duration
}

type PublishConfig struct {
	GraphURL      string
	GraphVersion  string
	RatePerSecond float64
	Timeout       time.Duration
}

type WorkerPoolConfig struct {
	Size      int
	QueueSize int
}

type APIKeysConfig struct {
	Gemini string
	OpenAI string
	Claude string
}

// Global provides access to the loaded configuration globally.
var Global *Config

// LoadConfig loads configuration from Environment Variables or defaults.
func LoadConfig() (*Config, error) {
	baseDir := getEnv("APP_BASE_DIR", "storages")

	debug := false
	if v := os.Getenv("APP_DEBUG"); v == "true" || v == "1" || v == "on" {
		debug = true
	} else if v := os.Getenv("DEBUG"); v == "true" || v == "1" {
		debug = true
	}

	var basicAuth []string
	if v := os.Getenv("APP_BASIC_AUTH"); v != "" {
		basicAuth = strings.Split(v, ",")
	}

	corsOrigins := []string{"http://localhost:3000", "http://localhost:5173"}
	if v := os.Getenv("APP_CORS_ALLOWED_ORIGINS"); v != "" {
		corsOrigins = strings.Split(v, ",")
	}

	appCfg := AppConfig{
		Version:            "v1.4.0",
		Port:               getEnv("APP_PORT", "3000"),
		Debug:              debug,
		LogFormat:          getEnv("APP_LOG_FORMAT", "text"),
		Environment:        getEnv("APP_ENV", "development"),
		BasicAuth:          basicAuth,
		BasePath:           getEnv("APP_BASE_PATH", ""),
		CorsAllowedOrigins: corsOrigins,
		ServerID:           getEnv("SERVER_ID", ""),
		SecretKey:          getEnv("APP_SECRET_KEY", ""),
	}

	pathsCfg := PathsConfig{
		BaseDir:  baseDir,
		Media:    getEnv("PATH_MEDIA", filepath.Join(baseDir, "media")),
		Storages: baseDir,
	}

	dbCfg := DatabaseConfig{
		Driver:          getEnv("DB_DRIVER", "sqlite"),
		Name:            getEnv("DB_NAME", filepath.Join(pathsCfg.Storages, "autoposter.db")),
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", ""),
		ValkeyEnabled:   getEnvBool("VALKEY_ENABLED", false),
		ValkeyAddress:   getEnv("VALKEY_ADDRESS", "localhost:6379"),
		ValkeyPassword:  getEnv("VALKEY_PASSWORD", ""),
		ValkeyDB:        getEnvInt("VALKEY_DB", 0),
		ValkeyKeyPrefix: getEnv("VALKEY_KEY_PREFIX", "autoposter:"),
	}

	cfg := &Config{
		App:      appCfg,
		MCP:      MCPConfig{Port: getEnv("MCP_PORT", "8080"), Host: getEnv("MCP_HOST", "localhost")},
		Paths:    pathsCfg,
		Database: dbCfg,
		Scheduler: SchedulerConfig{
			TickInterval:         getEnvDuration("SCHEDULER_TICK_INTERVAL", 30*time.Second),
			MaxRetries:           getEnvInt("SCHEDULER_MAX_RETRIES", 3),
			BackoffBase:          getEnvDuration("SCHEDULER_BACKOFF_BASE", 30*time.Second),
			Timezone:             getEnv("SCHEDULER_TIMEZONE", "UTC"),
			TickLogInterval:      getEnvDuration("SCHEDULER_TICK_LOG_INTERVAL", 5*time.Minute),
			ClaimTTL:             getEnvDuration("SCHEDULER_CLAIM_TTL", 2*time.Minute),
			MaintenanceSpec:      getEnv("SCHEDULER_MAINTENANCE_SPEC", "@every 1m"),
			PostedRetention:      getEnvDuration("SCHEDULER_POSTED_RETENTION", 10*time.Minute),
			FailedRetention:      getEnvDuration("SCHEDULER_FAILED_RETENTION", 30*time.Minute),
			LogRetention:         getEnvDuration("SCHEDULER_LOG_RETENTION", 30*time.Minute),
			RetainedLogRetention: getEnvDuration("SCHEDULER_RETAINED_LOG_RETENTION", 168*time.Hour),
			FailFastOnPermanent:  getEnvBool("SCHEDULER_FAIL_FAST_PERMANENT", false),
		},
		Planner: PlannerConfig{
			Interval:         getEnvDuration("PLANNER_INTERVAL", time.Minute),
			MaxIterations:    getEnvInt("PLANNER_MAX_ITERATIONS", 500),
			MaxPostsPerTopic: getEnvInt("PLANNER_MAX_POSTS_PER_TOPIC", 10),
			GenerateAhead:    getEnvBool("PLANNER_GENERATE_AHEAD", true),
		},
		Generation: GenerationConfig{
			ProvidersFile:    getEnv("GENERATION_PROVIDERS_FILE", "providers.yaml"),
			MediaProbability: getEnvFloat("GENERATION_MEDIA_PROBABILITY", 0.5),
			BaseCooldown:     getEnvDuration("GENERATION_BASE_COOLDOWN", time.Minute),
			MaxCooldown:      getEnvDuration("GENERATION_MAX_COOLDOWN", 30*time.Minute),
			CallTimeout:      getEnvDuration("GENERATION_CALL_TIMEOUT", 60*time.Second),
		},
		Publish: PublishConfig{
			GraphURL:      getEnv("PUBLISH_GRAPH_URL", "https://graph.facebook.com"),
			GraphVersion:  getEnv("PUBLISH_GRAPH_VERSION", "v19.0"),
			RatePerSecond: getEnvFloat("PUBLISH_RATE_PER_SECOND", 1),
			Timeout:       getEnvDuration("PUBLISH_TIMEOUT", 30*time.Second),
		},
		WorkerPool: WorkerPoolConfig{
			Size:      getEnvInt("WORKER_POOL_SIZE", 4),
			QueueSize: getEnvInt("WORKER_QUEUE_SIZE", 100),
		},
		APIKeys: APIKeysConfig{
			Gemini: getEnv("GEMINI_API_KEY", ""),
			OpenAI: getEnv("OPENAI_API_KEY", ""),
			Claude: getEnv("CLAUDE_API_KEY", ""),
		},
	}

	Global = cfg
	return cfg, nil
}

// Location resolves the scheduler timezone, falling back to UTC.
func (c SchedulerConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
