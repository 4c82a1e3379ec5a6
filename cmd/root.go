package cmd

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	coreconfig "github.com/re178/mega-facebook-autoposter/core/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "autoposter",
	Short: "Multi-page Facebook post scheduler",
	Long: `Plans, generates and publishes Facebook posts for many pages.
Topics expand into scheduled posts whose text and images are produced by a
pool of AI providers with automatic failover.`,
}

func init() {
	// Load environment variables first
	_ = godotenv.Load()

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	initFlags()

	cobra.OnInitialize(initEnvConfig)
}

func initFlags() {
	rootCmd.PersistentFlags().StringP("port", "p", "", "change port number with --port <number> | example: --port=8080")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "hide or displaying log with --debug <true/false> | example: --debug=true")
	rootCmd.PersistentFlags().StringSliceP("basic-auth", "b", nil, "basic auth credential | -b=yourUsername:yourPassword")
	rootCmd.PersistentFlags().String("base-path", "", `base path for subpath deployment --base-path <string> | example: --base-path="/autoposter"`)
	rootCmd.PersistentFlags().String("db-driver", "", `database driver --db-driver <sqlite|postgres>`)
	rootCmd.PersistentFlags().String("db-name", "", `sqlite file or postgres database name --db-name <string>`)
	rootCmd.PersistentFlags().String("timezone", "", `scheduler timezone --timezone <IANA name> | example: --timezone="Europe/Madrid"`)
	rootCmd.PersistentFlags().String("providers-file", "", `provider pool definition --providers-file <path> | example: --providers-file=providers.yaml`)
	rootCmd.PersistentFlags().Int("delivery-workers", 0, `number of concurrent delivery workers --delivery-workers <number> (default: 4)`)

	bind := map[string]string{
		"app_port":                  "port",
		"app_debug":                 "debug",
		"app_basic_auth":            "basic-auth",
		"app_base_path":             "base-path",
		"db_driver":                 "db-driver",
		"db_name":                   "db-name",
		"scheduler_timezone":        "timezone",
		"generation_providers_file": "providers-file",
		"worker_pool_size":          "delivery-workers",
	}
	for key, flag := range bind {
		_ = viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag))
	}
}

// initEnvConfig loads the environment configuration and lets flags override it.
func initEnvConfig() {
	viper.AutomaticEnv()

	cfg, err := coreconfig.LoadConfig()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	if v := viper.GetString("app_port"); v != "" {
		cfg.App.Port = v
	}
	if viper.GetBool("app_debug") {
		cfg.App.Debug = true
	}
	if v := viper.GetStringSlice("app_basic_auth"); len(v) > 0 {
		cfg.App.BasicAuth = splitList(v)
	}
	if v := viper.GetString("app_base_path"); v != "" {
		cfg.App.BasePath = v
	}
	if v := viper.GetString("db_driver"); v != "" {
		cfg.Database.Driver = v
	}
	if v := viper.GetString("db_name"); v != "" {
		cfg.Database.Name = v
	}
	if v := viper.GetString("scheduler_timezone"); v != "" {
		cfg.Scheduler.Timezone = v
	}
	if v := viper.GetString("generation_providers_file"); v != "" {
		cfg.Generation.ProvidersFile = v
	}
	if v := viper.GetInt("worker_pool_size"); v > 0 {
		cfg.WorkerPool.Size = v
	}

	initLogging(cfg.App)

	if _, err := time.LoadLocation(cfg.Scheduler.Timezone); err != nil {
		logrus.Warnf("[CONFIG] Unknown timezone %q, using UTC", cfg.Scheduler.Timezone)
	}
}

func initLogging(app coreconfig.AppConfig) {
	if app.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
	if strings.EqualFold(app.LogFormat, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// splitList flattens "a,b" style entries coming from env vars.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
