package cli

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"
	"hunter/internal/api"
	pkgerrors "hunter/pkg/errors"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the control API",
	Long: `Serve the session controller over HTTP with Prometheus metrics at
/metrics. Confirmations are answered by the confirm query parameter of the
request that raised them. Declining a process conflict stops the server.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("listen")

		sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithCancel(sigCtx)
		defer cancel()

		var aborted atomic.Bool
		router := api.NewRouter(appInstance.Controller, api.Options{
			Metrics: appInstance.Telemetry.PrometheusHandler(),
			OnAbort: func() {
				aborted.Store(true)
				cancel()
			},
			Logger: appInstance.Logger.With("component", "api"),
		})

		if err := api.Serve(ctx, addr, router, appInstance.Logger); err != nil {
			return err
		}
		if aborted.Load() {
			return pkgerrors.ErrAborted
		}
		return appInstance.Controller.Shutdown(context.Background())
	},
}

func init() {
	serveCmd.Flags().StringP("listen", "l", "127.0.0.1:7890", "listen address")
	rootCmd.AddCommand(serveCmd)
}
