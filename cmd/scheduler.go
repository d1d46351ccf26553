package cmd

import (
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/fedpulse/fedpulse/config"
	"github.com/fedpulse/fedpulse/internal/scheduler"
	"github.com/fedpulse/fedpulse/internal/store"
	"github.com/fedpulse/fedpulse/news/eventregistry"
	"github.com/fedpulse/fedpulse/provider"
)

func schedulerCMD() *cobra.Command {
	var cfgPath string
	var sched = &cobra.Command{
		Use:   "scheduler",
		Short: "Run the analysis scheduler loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			st, err := store.Open(cmd.Context(), cfg.Storage.Postgres)
			if err != nil {
				return err
			}
			defer st.DB.Close()

			prov, err := provider.NewProvider(cfg.LLM)
			if err != nil {
				return err
			}

			var lock *scheduler.Lock
			if cfg.Storage.Redis.Enabled() {
				client := redis.NewClient(&redis.Options{
					Addr:     cfg.Storage.Redis.Addr(),
					Password: cfg.Storage.Redis.Password,
					DB:       cfg.Storage.Redis.DB,
				})
				lock = scheduler.NewLock(client, "fedpulse:scheduler:run", 10*time.Minute)
			}

			fetcher := eventregistry.NewClient(cfg.Sources.EventRegistry)
			runner := scheduler.NewRunner(cfg.Scheduler, cfg.LLM, fetcher, st, prov, lock, "scheduler")
			return runner.Loop(cmd.Context())
		},
	}
	sched.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return sched
}
