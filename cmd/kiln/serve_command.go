package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"kiln/internal/logging"
	"kiln/internal/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve job URLs over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(func(s *engineSession) error {
				if strings.TrimSpace(bind) != "" {
					s.cfg.Server.Bind = strings.TrimSpace(bind)
				}
				runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				if err := s.cache.Prune(runCtx); err != nil {
					logging.WarnWithContext(s.logger, "result cache prune failed", "serve_cache_prune_failed",
						logging.Error(err),
						logging.String(logging.FieldImpact, "cache may exceed its size limit until the next write"),
					)
				}

				srv := server.New(s.cfg, s.engine, s.cache, s.logger)
				if err := srv.Start(runCtx); err != nil {
					return err
				}
				<-runCtx.Done()
				srv.Stop()
				s.logger.Info("http server stopped")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Override server.bind")
	return cmd
}
