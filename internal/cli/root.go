package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"hunter/internal/app"
	"hunter/internal/core/types"
	"hunter/internal/tui"
	pkgerrors "hunter/pkg/errors"
)

var (
	appInstance *app.App
	version     = "dev"
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "hunter",
	Short: "Hunter - a trojan-go session manager",
	Long: `Hunter - a trojan-go session manager

  Keep a list of trojan servers, run one trojan-go client at a time and
  point the desktop proxy at it through a PAC file.

  Quick start:
    hunter node add tokyo --addr jp.example.com --password secret
    hunter enable tokyo
    hunter probe
    hunter disable

  Core features:
    • One managed trojan-go process, detected across restarts
    • Foreign trojan-go processes are reported and terminated only on confirmation
    • GNOME, KDE and macOS system proxy toggling
    • TCP latency testing with parallel workers`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger(cmd)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)

		dbPath, _ := cmd.Flags().GetString("db")
		binary, _ := cmd.Flags().GetString("binary")
		yes, _ := cmd.Flags().GetBool("yes")

		var prompter types.Prompter = tui.NewPrompter()
		if yes {
			prompter = types.PrompterFunc(func(ctx context.Context, p types.Prompt) (bool, error) {
				logger.Info("confirmed without asking", "title", p.Title)
				return true, nil
			})
		}

		appInstance, err = app.New(app.Config{
			DBPath:   dbPath,
			Binary:   binary,
			Prompter: prompter,
			Logger:   logger,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if appInstance != nil {
			return appInstance.Close()
		}
		return nil
	},
}

func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	levelName, _ := cmd.Flags().GetString("log-level")
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", levelName, err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if appInstance != nil {
			appInstance.Close()
		}
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, pkgerrors.ErrAborted) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("db", "", "database path")
	rootCmd.PersistentFlags().String("binary", "", "trojan-go executable")
	rootCmd.PersistentFlags().BoolP("yes", "y", false, "answer yes to every confirmation")

	rootCmd.RegisterFlagCompletionFunc("log-level", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("hunter %s\n", version)
	},
}
