package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fedpulse/fedpulse/config"
	"github.com/fedpulse/fedpulse/internal/scheduler"
	"github.com/fedpulse/fedpulse/internal/store"
	"github.com/fedpulse/fedpulse/models"
	"github.com/fedpulse/fedpulse/news/eventregistry"
	"github.com/fedpulse/fedpulse/provider"
)

// tickCMD runs exactly one analysis pass with an optionally simulated clock.
// Useful for replaying an announcement window deterministically.
func tickCMD() *cobra.Command {
	var cfgPath string
	var runContext string
	var fomcTime string
	var hours int
	var limit int
	var nowFlag string

	var tick = &cobra.Command{
		Use:   "tick",
		Short: "Run a single analysis pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)

			now := time.Now().UTC()
			if nowFlag != "" {
				var err error
				now, err = time.Parse(time.RFC3339, nowFlag)
				if err != nil {
					return fmt.Errorf("parse --now: %w", err)
				}
				now = now.UTC()
			}

			decision := scheduler.Decision{Fire: true, Context: models.ContextGeneral}
			if fomcTime != "" {
				announcement, err := time.Parse(time.RFC3339, fomcTime)
				if err != nil {
					return fmt.Errorf("parse --fomc-time: %w", err)
				}
				decision.Critical = true
				decision.AnnouncementAt = announcement.UTC()
				if now.Before(decision.AnnouncementAt) {
					decision.Context = models.ContextPreAnnouncement
				} else {
					decision.Context = models.ContextPostAnnouncement
				}
			}
			if runContext != "" {
				switch runContext {
				case models.ContextGeneral, models.ContextPreAnnouncement, models.ContextPostAnnouncement:
					decision.Context = runContext
				default:
					return fmt.Errorf("unknown context %q", runContext)
				}
			}
			if hours > 0 {
				cfg.Scheduler.QueryLookback = time.Duration(hours) * time.Hour
				cfg.Scheduler.Lookback = time.Duration(hours) * time.Hour
			}
			if limit > 0 {
				cfg.Scheduler.ArticleLimit = limit
			}

			st, err := store.Open(cmd.Context(), cfg.Storage.Postgres)
			if err != nil {
				return err
			}
			defer st.DB.Close()

			prov, err := provider.NewProvider(cfg.LLM)
			if err != nil {
				return err
			}

			fetcher := eventregistry.NewClient(cfg.Sources.EventRegistry)
			runner := scheduler.NewRunner(cfg.Scheduler, cfg.LLM, fetcher, st, prov, nil, "manual")
			_, err = runner.RunOnce(cmd.Context(), now, decision)
			return err
		},
	}
	tick.Flags().StringVar(&runContext, "context", "", "run context: general, pre_announcement or post_announcement")
	tick.Flags().StringVar(&fomcTime, "fomc-time", "", "announcement time (RFC3339) for a critical run")
	tick.Flags().IntVar(&hours, "hours", 0, "lookback window in hours (overrides config)")
	tick.Flags().IntVar(&limit, "limit", 0, "max articles to analyze (overrides config)")
	tick.Flags().StringVar(&nowFlag, "now", "", "simulated clock (RFC3339, default: wall clock)")
	tick.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return tick
}
