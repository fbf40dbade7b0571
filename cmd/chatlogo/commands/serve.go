package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/haivivi/chatlogo/cmd/chatlogo/internal/config"
	"github.com/haivivi/chatlogo/pkg/chatapi"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg := globalConfig
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}
		jwt, err := newAuthenticator(cfg)
		if err != nil {
			return err
		}
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           chatapi.New(a.svc, jwt, logger),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("chatlogo: listening", "addr", srv.Addr, "resumable", a.svc.Resumable())
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			logger.Info("chatlogo: shutting down")
			sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Or(config.DefaultShutdownTimeout))
			defer cancel()
			return srv.Shutdown(sctx)
		})
		err = g.Wait()

		// Turns keep writing after their client is gone; let them finish
		// before the store closes.
		dctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Or(config.DefaultShutdownTimeout))
		defer cancel()
		if derr := a.svc.Drain(dctx); derr != nil {
			logger.Warn("chatlogo: turns still running at shutdown", "error", derr)
		}
		return err
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}
