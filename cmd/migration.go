package cmd

import (
	"context"
	"fmt"

	"github.com/re178/mega-facebook-autoposter/autopost/repository"
	coreconfig "github.com/re178/mega-facebook-autoposter/core/config"
	coreDB "github.com/re178/mega-facebook-autoposter/core/database"
	settingsApp "github.com/re178/mega-facebook-autoposter/core/settings/application"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	Run:   runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) {
	db, err := coreDB.NewDatabase(coreconfig.Global)
	if err != nil {
		logrus.Fatalf("[MIGRATION] %v", err)
	}
	if err := migrate(cmd.Context(), db); err != nil {
		logrus.Fatalf("[MIGRATION] %v", err)
	}
	logrus.Info("[MIGRATION] Schema is up to date")
}

// migrate brings the scheduler tables and the settings table up to date.
func migrate(ctx context.Context, db *gorm.DB) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logrus.Info("[MIGRATION] Migrating scheduler schema...")
	if err := repository.AutoMigrate(ctx, db); err != nil {
		return fmt.Errorf("failed to migrate scheduler tables: %w", err)
	}
	if err := settingsApp.NewSettingsService(db).Init(ctx); err != nil {
		return fmt.Errorf("failed to migrate settings table: %w", err)
	}
	return nil
}
