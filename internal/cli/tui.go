package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"hunter/internal/tui"
	pkgerrors "hunter/pkg/errors"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the interactive terminal UI",
	Long: `Launch the full-screen dashboard for managing nodes and the session.
On exit the session is stopped unless daemon is on.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, m := tui.NewProgram(tui.Deps{
			Storage:    appInstance.Storage,
			Controller: appInstance.Controller,
		})
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("TUI error: %w", err)
		}
		if m.Aborted() {
			return pkgerrors.ErrAborted
		}
		return appInstance.Controller.Shutdown(context.Background())
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}
