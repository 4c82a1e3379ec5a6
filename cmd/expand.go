package cmd

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/re178/mega-facebook-autoposter/autopost/application"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/post"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/topic"
	coreconfig "github.com/re178/mega-facebook-autoposter/core/config"
	"github.com/re178/mega-facebook-autoposter/pkg/timeutils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// expandCmd prints the slots a topic plan would produce without touching storage.
var expandCmd = &cobra.Command{
	Use:   "expand <topic>",
	Short: "Preview the delivery times of a topic plan",
	Args:  cobra.ExactArgs(1),
	Run:   runExpand,
}

func init() {
	expandCmd.Flags().StringSlice("slots", []string{"09:00"}, "Time slots, HH:MM")
	expandCmd.Flags().Int("per-day", 1, "Posts per day")
	expandCmd.Flags().String("start", "", "Start date, YYYY-MM-DD (default today)")
	expandCmd.Flags().String("end", "", "End date, YYYY-MM-DD (default start + 7 days)")
	expandCmd.Flags().String("cadence", string(topic.CadenceDaily), "daily, weekly or monthly")
	expandCmd.Flags().Bool("immediate", false, "Only today, keeping slots already past")
	rootCmd.AddCommand(expandCmd)
}

func runExpand(cmd *cobra.Command, args []string) {
	loc := coreconfig.Global.Scheduler.Location()
	now := time.Now().In(loc)

	slots, _ := cmd.Flags().GetStringSlice("slots")
	perDay, _ := cmd.Flags().GetInt("per-day")
	cadence, _ := cmd.Flags().GetString("cadence")
	immediate, _ := cmd.Flags().GetBool("immediate")

	start := timeutils.StartOfDay(now, loc)
	if raw, _ := cmd.Flags().GetString("start"); raw != "" {
		d, err := timeutils.ParseDate(raw, loc)
		if err != nil {
			logrus.Fatalf("[EXPAND] %v", err)
		}
		start = d
	}
	end := start.AddDate(0, 0, 7)
	if raw, _ := cmd.Flags().GetString("end"); raw != "" {
		d, err := timeutils.ParseDate(raw, loc)
		if err != nil {
			logrus.Fatalf("[EXPAND] %v", err)
		}
		end = d
	}

	plan := topic.Plan{
		OwnerID:     "preview",
		Name:        args[0],
		PostsPerDay: perDay,
		TimeSlots:   slots,
		StartDate:   start,
		EndDate:     end,
		Cadence:     topic.Cadence(cadence),
		ContentTag:  post.TagNormal,
	}

	planner := application.NewPlanner(nil, nil, nil, nil, application.PlannerConfig{
		MaxIterations: coreconfig.Global.Planner.MaxIterations,
		Location:      loc,
	})
	out, err := planner.Expand(plan, application.ExpandOptions{Immediate: immediate, Now: now})
	if err != nil {
		logrus.Fatalf("[EXPAND] %v", err)
	}

	if len(out) == 0 {
		fmt.Println("No future slots for this plan.")
		return
	}
	for _, s := range out {
		fmt.Printf("%3d  %s  %-16s %s\n", s.Index+1, s.ScheduledAt.In(loc).Format("Mon 2006-01-02 15:04"), s.Angle, humanize.Time(s.ScheduledAt))
	}
	fmt.Printf("%d slots\n", len(out))
}
