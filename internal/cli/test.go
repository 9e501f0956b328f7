package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"hunter/internal/latency"
	"hunter/internal/storage/models"
)

var testCmd = &cobra.Command{
	Use:   "test [#-or-name...]",
	Short: "Test node latency",
	Long: `Test TCP handshake latency of server nodes.

Test the given nodes, or every complete node when none are named.
Results are stored and shown in "hunter node list".`,
	ValidArgsFunction: completeNodeNames,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		cfg := latency.ConfigFromSettings(ctx, appInstance.Storage)
		if cmd.Flags().Changed("workers") {
			cfg.Workers, _ = cmd.Flags().GetInt64("workers")
		}
		if cmd.Flags().Changed("timeout") {
			timeoutMS, _ := cmd.Flags().GetInt64("timeout")
			cfg.Timeout = time.Duration(timeoutMS) * time.Millisecond
		}
		cfg.Logger = appInstance.Logger.With("component", "latency")

		tester := latency.NewTester(appInstance.Storage, cfg)

		var nodes []*models.ServerNode
		if len(args) == 0 {
			all, err := appInstance.Storage.GetNodes(ctx)
			if err != nil {
				return err
			}
			for _, n := range all {
				if n.IsComplete() {
					nodes = append(nodes, n)
				}
			}
		} else {
			for _, arg := range args {
				_, n, err := resolveNode(ctx, arg)
				if err != nil {
					return err
				}
				nodes = append(nodes, n)
			}
		}

		if len(nodes) == 0 {
			fmt.Println("No complete nodes to test.")
			return nil
		}
		if len(nodes) == 1 {
			return runSingleTest(ctx, tester, nodes[0])
		}
		return runBatchTest(ctx, tester, nodes)
	},
}

var testHistoryCmd = &cobra.Command{
	Use:               "history <#-or-name>",
	Short:             "Show latency test history",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeNodeNames,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		limit, _ := cmd.Flags().GetInt("limit")

		_, node, err := resolveNode(ctx, args[0])
		if err != nil {
			return err
		}

		history, err := appInstance.Storage.GetLatencyHistory(ctx, node.ID, limit)
		if err != nil {
			return err
		}
		if len(history) == 0 {
			fmt.Printf("No latency history for %s\n", displayNodeName(node))
			return nil
		}

		fmt.Printf("Latency History: %s (%s)\n", displayNodeName(node), node.Endpoint())
		fmt.Println(strings.Repeat("═", 50))

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tLATENCY\tSTATUS")
		fmt.Fprintln(w, "----\t-------\t------")
		for _, entry := range history {
			latStr, statusStr := formatLatency(entry)
			fmt.Fprintf(w, "%s\t%s\t%s\n", entry.TestedAt.Format("2006-01-02 15:04:05"), latStr, statusStr)
		}
		w.Flush()

		return nil
	},
}

func formatLatency(l *models.LatencyTest) (latStr, statusStr string) {
	if l.Success && l.LatencyMS != nil {
		return fmt.Sprintf("%d ms", *l.LatencyMS), "OK"
	}
	return "N/A", "FAIL"
}

func runSingleTest(ctx context.Context, tester *latency.Tester, node *models.ServerNode) error {
	fmt.Printf("Testing %s (%s)... ", displayNodeName(node), node.Endpoint())

	result := tester.TestSingle(ctx, node)
	if result.Latency.Success {
		fmt.Printf("%d ms\n", *result.Latency.LatencyMS)
	} else {
		fmt.Printf("FAILED (%s)\n", result.Latency.ErrorMessage)
	}
	return nil
}

func runBatchTest(ctx context.Context, tester *latency.Tester, nodes []*models.ServerNode) error {
	fmt.Printf("Testing %d nodes...\n\n", len(nodes))

	progress := func(result *latency.TestResult, current, total int) {
		latStr, _ := formatLatency(result.Latency)
		if !result.Latency.Success {
			latStr = "FAILED"
		}
		fmt.Printf("  [%d/%d] %-40s %s\n", current, total, truncateName(displayNodeName(result.Node), 40), latStr)
	}

	batch := tester.TestBatch(ctx, nodes, progress)

	fmt.Printf("\nResults (sorted by latency):\n")
	fmt.Println(strings.Repeat("─", 60))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tNAME\tADDRESS\tLATENCY\tSTATUS")
	fmt.Fprintln(w, "-\t----\t-------\t-------\t------")
	for i, result := range batch.Results {
		latStr, statusStr := formatLatency(result.Latency)
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			i+1, truncateName(displayNodeName(result.Node), 35), result.Node.Endpoint(), latStr, statusStr)
	}
	w.Flush()

	fmt.Printf("\nSummary: %d tested, %d succeeded, %d failed (%.1fs)\n",
		batch.Tested, batch.Succeeded, batch.Failed, batch.Duration.Seconds())

	return nil
}

func init() {
	testCmd.Flags().Int64P("workers", "w", 10, "number of concurrent workers")
	testCmd.Flags().Int64P("timeout", "t", 5000, "per-test timeout in milliseconds")

	testHistoryCmd.Flags().IntP("limit", "n", 20, "number of history entries")

	testCmd.AddCommand(testHistoryCmd)
	rootCmd.AddCommand(testCmd)
}
