package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"hunter/internal/config/parser"
	"hunter/internal/core"
	"hunter/internal/storage/models"
	"hunter/internal/subscription"
	pkgerrors "hunter/pkg/errors"
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Manage server nodes",
	Long:  "Add, list, update, and delete trojan server nodes",
}

var nodeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all nodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		st, err := appInstance.Controller.State(ctx)
		if err != nil {
			return err
		}
		if len(st.Nodes) == 0 {
			fmt.Println("No nodes configured. Add one with: hunter node add <name> --addr <host> --password <secret>")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tNAME\tADDRESS\tLATENCY\tUSING")
		fmt.Fprintln(w, "-\t----\t-------\t-------\t-----")

		for i, n := range st.Nodes {
			latStr := "-"
			if n.ID != 0 {
				if l, err := appInstance.Storage.GetLatestLatency(ctx, n.ID); err == nil && l != nil {
					latStr = "FAIL"
					if l.Success && l.LatencyMS != nil {
						latStr = fmt.Sprintf("%d ms", *l.LatencyMS)
					}
				}
			}
			using := ""
			if n.Using {
				using = "●"
			}
			endpoint := "-"
			if n.Addr != "" {
				endpoint = n.Endpoint()
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i+1, truncateName(displayNodeName(&n.ServerNode), 35), endpoint, latStr, using)
		}
		w.Flush()

		return nil
	},
}

var nodeAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Append a node",
	Long: `Append a node given by flags, or by a trojan:// link with --uri. A name
given as argument overrides the link's name.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		base := &models.ServerNode{Port: models.DefaultNodePort}
		if uri, _ := cmd.Flags().GetString("uri"); uri != "" {
			parsed, err := parser.Parse(uri)
			if err != nil {
				return err
			}
			base = parsed
		}
		if len(args) == 1 {
			base.Name = args[0]
		}
		node, err := nodeFromFlags(cmd, base)
		if err != nil {
			return err
		}

		if err := appInstance.Controller.AddOrUpdate(ctx, node, core.AppendIndex); err != nil {
			return err
		}
		nodes, err := appInstance.Storage.GetNodes(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Node added successfully!\n\n")
		fmt.Printf("  #:        %d\n", positionOf(nodes, node.Name))
		fmt.Printf("  Name:     %s\n", node.Name)
		fmt.Printf("  Address:  %s\n", node.Endpoint())
		fmt.Printf("  Password: %s\n", maskPassword(node.Password))
		return nil
	},
}

var nodeUpdateCmd = &cobra.Command{
	Use:               "update <#-or-name>",
	Short:             "Update a node",
	Long:              "Update a node in place. Only the given flags change.",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeNodeNames,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		index, current, err := resolveNode(ctx, args[0])
		if err != nil {
			return err
		}

		updated := *current
		if name, _ := cmd.Flags().GetString("name"); cmd.Flags().Changed("name") {
			updated.Name = name
		}
		node, err := nodeFromFlags(cmd, &updated)
		if err != nil {
			return err
		}

		if err := appInstance.Controller.AddOrUpdate(ctx, node, index); err != nil {
			return err
		}
		fmt.Printf("Node #%d updated: %s (%s)\n", index+1, node.Name, node.Endpoint())
		return nil
	},
}

var nodeDeleteCmd = &cobra.Command{
	Use:               "delete <#-or-name>",
	Aliases:           []string{"rm"},
	Short:             "Delete a node",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeNodeNames,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		index, node, err := resolveNode(ctx, args[0])
		if err != nil {
			return err
		}

		deleted, err := appInstance.Controller.Delete(ctx, index)
		if err != nil {
			return err
		}
		if !deleted {
			fmt.Println("Cancelled.")
			return nil
		}
		fmt.Printf("Node deleted: %s\n", displayNodeName(node))
		return nil
	},
}

var nodeImportCmd = &cobra.Command{
	Use:   "import <url-or-file>",
	Short: "Append nodes from a subscription",
	Long: `Append the trojan:// links found in a subscription URL or file. The
content may be plain text or base64. Links of other protocols are skipped,
as are nodes whose name or address already exists.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		fetcherCfg := subscription.DefaultFetcherConfig()
		if viaProxy, _ := cmd.Flags().GetBool("via-proxy"); viaProxy {
			cfg, err := appInstance.Storage.GetConfiguration(ctx)
			if err != nil {
				return err
			}
			fetcherCfg.SOCKS5 = net.JoinHostPort(cfg.LocalAddr, strconv.Itoa(cfg.LocalPort))
		}
		fetcher, err := subscription.NewFetcher(fetcherCfg)
		if err != nil {
			return err
		}

		importer := subscription.NewImporter(appInstance.Controller, fetcher,
			appInstance.Logger.With("component", "subscription"))
		res, err := importer.Import(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Imported %d of %d links (%d duplicates, %d other protocols, %d failed)\n",
			res.Added, res.Total, res.Duplicates, res.Skipped, res.Failed)
		for _, e := range res.Errors {
			fmt.Printf("  %v\n", e)
		}
		return nil
	},
}

var nodeShareCmd = &cobra.Command{
	Use:               "share <#-or-name>",
	Short:             "Print the trojan:// link of a node",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeNodeNames,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, node, err := resolveNode(context.Background(), args[0])
		if err != nil {
			return err
		}
		uri, err := parser.Encode(node)
		if err != nil {
			return err
		}
		fmt.Println(uri)
		return nil
	},
}

// nodeFromFlags applies the --addr, --port and --password flags to base.
// Every node written from the command line must be complete.
func nodeFromFlags(cmd *cobra.Command, base *models.ServerNode) (*models.ServerNode, error) {
	if cmd.Flags().Changed("addr") {
		base.Addr, _ = cmd.Flags().GetString("addr")
	}
	if cmd.Flags().Changed("port") {
		base.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("password") {
		base.Password, _ = cmd.Flags().GetString("password")
	}
	if base.Port < 1 || base.Port > 65535 {
		return nil, fmt.Errorf("port out of range: %d", base.Port)
	}
	if !base.IsComplete() {
		return nil, &pkgerrors.NodeError{Name: base.Name, Err: pkgerrors.ErrNodeIncomplete}
	}
	return base, nil
}

// resolveNode finds a node by its 1-based list position or by name and
// returns its 0-based index.
func resolveNode(ctx context.Context, identifier string) (int, *models.ServerNode, error) {
	nodes, err := appInstance.Storage.GetNodes(ctx)
	if err != nil {
		return 0, nil, err
	}

	if pos, parseErr := strconv.Atoi(identifier); parseErr == nil {
		if pos < 1 || pos > len(nodes) {
			return 0, nil, &pkgerrors.NodeError{Index: pos - 1, Err: pkgerrors.ErrIndexOutOfRange}
		}
		return pos - 1, nodes[pos-1], nil
	}

	for i, n := range nodes {
		if n.Name == identifier {
			return i, n, nil
		}
	}
	return 0, nil, &pkgerrors.NodeError{Name: identifier, Err: pkgerrors.ErrNodeNotFound}
}

// positionOf returns the 1-based list position of the last node called name,
// or 0 when there is none.
func positionOf(nodes []*models.ServerNode, name string) int {
	for i := len(nodes) - 1; i >= 0; i-- {
		if nodes[i].Name == name {
			return i + 1
		}
	}
	return 0
}

func displayNodeName(n *models.ServerNode) string {
	if n.Name == "" {
		return "(unnamed)"
	}
	return n.Name
}

func truncateName(name string, maxLen int) string {
	if len(name) <= maxLen {
		return name
	}
	return name[:maxLen-3] + "..."
}

func maskPassword(p string) string {
	if len(p) <= 2 {
		return strings.Repeat("*", len(p))
	}
	return p[:1] + strings.Repeat("*", len(p)-2) + p[len(p)-1:]
}

func init() {
	for _, c := range []*cobra.Command{nodeAddCmd, nodeUpdateCmd} {
		c.Flags().StringP("addr", "a", "", "server address")
		c.Flags().IntP("port", "p", models.DefaultNodePort, "server port")
		c.Flags().StringP("password", "P", "", "trojan password")
	}
	nodeUpdateCmd.Flags().StringP("name", "n", "", "new node name")
	nodeAddCmd.Flags().StringP("uri", "u", "", "trojan:// link to take the node from")
	nodeImportCmd.Flags().Bool("via-proxy", false, "fetch through the local trojan-go listener")

	nodeCmd.AddCommand(nodeListCmd)
	nodeCmd.AddCommand(nodeAddCmd)
	nodeCmd.AddCommand(nodeUpdateCmd)
	nodeCmd.AddCommand(nodeDeleteCmd)
	nodeCmd.AddCommand(nodeImportCmd)
	nodeCmd.AddCommand(nodeShareCmd)
	rootCmd.AddCommand(nodeCmd)
}
