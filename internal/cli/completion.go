package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"hunter/internal/app"
)

// ensureApp lazily initializes appInstance for shell completion.
// Cobra may invoke ValidArgsFunction without running PersistentPreRunE.
func ensureApp() error {
	if appInstance != nil {
		return nil
	}
	var err error
	appInstance, err = app.New(app.Config{})
	return err
}

// completeNodeNames provides shell completion for node names.
func completeNodeNames(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	if err := ensureApp(); err != nil {
		return nil, cobra.ShellCompDirectiveError
	}

	nodes, err := appInstance.Storage.GetNodes(context.Background())
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}

	var completions []string
	for _, n := range nodes {
		if n.Name != "" && strings.HasPrefix(strings.ToLower(n.Name), strings.ToLower(toComplete)) {
			completions = append(completions, n.Name)
		}
	}

	return completions, cobra.ShellCompDirectiveNoFileComp
}

// completeOnOff completes the argument of toggle commands.
func completeOnOff(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return []string{"on", "off"}, cobra.ShellCompDirectiveNoFileComp
}
