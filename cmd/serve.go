package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/fedpulse/fedpulse/config"
	srv "github.com/fedpulse/fedpulse/internal/server"
	"github.com/fedpulse/fedpulse/internal/store"
)

func serveCMD() *cobra.Command {
	var cfgPath string
	var addr string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			st, err := store.Open(cmd.Context(), cfg.Storage.Postgres)
			if err != nil {
				return err
			}
			defer st.DB.Close()

			if addr == "" {
				addr = cfg.Server.Address
			}
			s := srv.New(st)
			go func() {
				<-cmd.Context().Done()
				_ = s.Shutdown(context.Background())
			}()
			return s.Start(addr)
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	serve.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return serve
}
