package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/termbridge/internal/appconfig"
	"pkt.systems/termbridge/sessionhost"
)

func newHostCmd() *cobra.Command {
	var cfgPath string
	var addr string
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Run the terminal session host",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Host.Addr = addr
			}

			reg := sessionhost.NewRegistry(sessionhost.RegistryConfig{
				Shell:           cfg.Host.Shell,
				ScrollbackBytes: cfg.Host.ScrollbackBytes,
				HighWater:       cfg.Host.HighWaterBytes,
			}, logger)
			srv := sessionhost.NewServer(sessionhost.ServerConfig{
				Addr: cfg.Host.Addr,
				Path: cfg.Host.Path,
			}, reg, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Warn("session host shutdown failed", "err", err)
				}
			}()
			return srv.ListenAndServe()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address override")
	return cmd
}
