package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"myhelper/internal/logger"
	"myhelper/internal/queue"
	"myhelper/internal/server"
	"myhelper/internal/trigger"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the worker pool, recovery and cron triggers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		e, err := openEngine(ctx, cfg, nil)
		if err != nil {
			return err
		}
		defer e.Close()

		sched, err := trigger.NewScheduler(e.intake, cfg.Schedules, nil)
		if err != nil {
			return err
		}
		httpSrv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           server.New(e.intake, e.pool, nil),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return e.pool.Run(ctx) })
		g.Go(func() error {
			e.recoverer.Run(ctx, cfg.StaleAfter/2)
			return nil
		})
		g.Go(func() error { return sched.Run(ctx) })
		g.Go(func() error {
			logger.Log.Info("http listening", "addr", cfg.HTTPAddr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpSrv.Shutdown(shutCtx)
		})

		fmt.Fprintf(cmd.OutOrStdout(), "myhelper serving on %s with %d workers\n", cfg.HTTPAddr, cfg.Workers)
		return g.Wait()
	},
}

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Requeue stale missions once (run only while no engine owns them)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		ids, err := queue.NewRecoverer(a.store, a.queue, cfg.StaleAfter, nil, nil).Recover(cmd.Context())
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "nothing to recover")
			return nil
		}
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), "requeued", id)
		}
		return nil
	},
}
