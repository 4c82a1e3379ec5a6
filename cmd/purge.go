package cmd

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Run one maintenance pass and exit",
	Long:  `Removes delivered and failed posts past their retention, expired activity entries and finished topics.`,
	Run:   runPurge,
}

func init() {
	rootCmd.AddCommand(purgeCmd)
}

func runPurge(cmd *cobra.Command, _ []string) {
	ctx, cancel := withTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	a, err := bootstrap(ctx, false)
	if err != nil {
		logrus.Fatalf("[MAINTENANCE] Failed to start: %v", err)
	}
	defer a.Stop()

	report, err := a.maintenance.RunOnce(ctx)
	if err != nil {
		logrus.Errorf("[MAINTENANCE] Purge failed: %v", err)
		return
	}
	logrus.WithFields(logrus.Fields{
		"posted_removed": report.PostedRemoved,
		"failed_removed": report.FailedRemoved,
		"logs_purged":    report.LogsPurged,
	}).Info("[MAINTENANCE] Purge finished")
}
