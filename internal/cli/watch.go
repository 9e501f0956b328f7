package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"hunter/internal/core/types"
	"hunter/internal/monitor"
	"hunter/internal/storage"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Report session changes until interrupted",
	Long: `Poll the trojan-go process and system proxy and print a line whenever
the session changes. On exit the session is stopped unless daemon is on.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		interval, _ := cmd.Flags().GetDuration("interval")
		if !cmd.Flags().Changed("interval") {
			if v, err := appInstance.Storage.GetSetting(ctx, storage.SettingMonitorInterval); err == nil {
				if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
					interval = time.Duration(secs) * time.Second
				}
			}
		}

		if _, err := appInstance.Controller.Reconcile(ctx); err != nil {
			return err
		}

		m, err := monitor.New(appInstance.Controller, interval, func(prev, next *types.State) {
			fmt.Printf("%s  %s\n", time.Now().Format("15:04:05"), monitor.Summary(next))
		}, appInstance.Logger.With("component", "monitor"))
		if err != nil {
			return err
		}
		if err := m.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()
		if err := m.Stop(); err != nil {
			appInstance.Logger.Warn("failed to stop monitor", "error", err)
		}
		return appInstance.Controller.Shutdown(context.Background())
	},
}

func init() {
	watchCmd.Flags().DurationP("interval", "i", 10*time.Second, "poll interval")
	rootCmd.AddCommand(watchCmd)
}
