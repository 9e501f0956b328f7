package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"hunter/internal/core/types"
	"hunter/internal/monitor"
)

var enableCmd = &cobra.Command{
	Use:     "enable <name>",
	Aliases: []string{"connect"},
	Short:   "Start trojan-go with a node",
	Long: `Start trojan-go with the named node and turn the system proxy on.
If another node is running it is stopped first. A trojan-go process not
started by hunter is only terminated after confirmation.`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeNodeNames,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		st, err := appInstance.Controller.Enable(ctx, args[0])
		if err != nil {
			return err
		}
		printState(st)
		return nil
	},
}

var disableCmd = &cobra.Command{
	Use:     "disable",
	Aliases: []string{"disconnect"},
	Short:   "Stop trojan-go and turn the system proxy off",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		st, err := appInstance.Controller.Disable(ctx)
		if err != nil {
			return err
		}
		printState(st)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		st, err := appInstance.Controller.State(ctx)
		if err != nil {
			return err
		}
		printState(st)
		return nil
	},
}

var proxyCmd = &cobra.Command{
	Use:               "proxy on|off",
	Short:             "Turn the system proxy on or off",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeOnOff,
	RunE: func(cmd *cobra.Command, args []string) error {
		on, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		st, err := appInstance.Controller.SetSystemProxy(context.Background(), on)
		if err != nil {
			return err
		}
		printState(st)
		return nil
	},
}

var daemonCmd = &cobra.Command{
	Use:   "daemon on|off",
	Short: "Keep trojan-go running after hunter exits",
	Long: `With daemon on, the running trojan-go process and the system proxy are
left in place when hunter exits. With daemon off they are torn down.`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeOnOff,
	RunE: func(cmd *cobra.Command, args []string) error {
		on, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		st, err := appInstance.Controller.SetDaemon(context.Background(), on)
		if err != nil {
			return err
		}
		printState(st)
		return nil
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Send a request through the local listener",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		elapsed, err := appInstance.Controller.Probe(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("Proxy is working (%d ms)\n", elapsed.Milliseconds())
		return nil
	},
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1", "yes":
		return true, nil
	case "off", "false", "0", "no":
		return false, nil
	default:
		return false, fmt.Errorf("expected on or off, got %q", s)
	}
}

func printState(st *types.State) {
	fmt.Printf("Session: %s\n", monitor.Summary(st))
	if st.Phase == types.PhaseRunning {
		for _, n := range st.Nodes {
			if n.Using {
				fmt.Printf("  Node:    %s (%s)\n", n.Name, n.Endpoint())
			}
		}
	}
	if st.Conflict != nil {
		fmt.Printf("  Warning: trojan-go pid %d was not started by hunter (%s)\n", st.Conflict.PID, st.Conflict.Kind)
	}
}

func init() {
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(proxyCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(probeCmd)
}
