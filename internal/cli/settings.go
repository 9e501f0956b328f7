package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"hunter/internal/core"
	"hunter/internal/core/types"
	"hunter/internal/storage"
	"hunter/internal/storage/models"
	pkgerrors "hunter/pkg/errors"
)

// settingKeys lists the keys accepted by "settings set".
var settingKeys = []string{
	storage.SettingLocalAddr,
	storage.SettingLocalPort,
	storage.SettingPAC,
	storage.SettingLogLevel,
	storage.SettingBinary,
	storage.SettingLatencyWorkers,
	storage.SettingLatencyTimeout,
	storage.SettingMonitorInterval,
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show and change settings",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print one setting or all of them",
	Args:  cobra.MaximumNArgs(1),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return settingKeys, cobra.ShellCompDirectiveNoFileComp
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		if len(args) == 1 {
			value, err := appInstance.Storage.GetSetting(ctx, args[0])
			if err != nil {
				return fmt.Errorf("setting not found: %s", args[0])
			}
			fmt.Println(value)
			return nil
		}

		all, err := appInstance.Storage.GetAllSettings(ctx)
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(all))
		for k := range all {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tVALUE")
		for _, k := range keys {
			fmt.Fprintf(w, "%s\t%s\n", k, all[k])
		}
		w.Flush()
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a setting",
	Long: `Change a setting. Listener, PAC and log level settings cannot be
changed while a session is running.`,
	Args: cobra.ExactArgs(2),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return settingKeys, cobra.ShellCompDirectiveNoFileComp
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applySetting(context.Background(), appInstance.Controller, appInstance.Storage, args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("%s = %s\n", args[0], args[1])
		return nil
	},
}

// settingsUpdater applies listener settings.
type settingsUpdater interface {
	UpdateSettings(ctx context.Context, s core.Settings) error
}

// applySetting validates key and value and writes them. Session-bound keys go
// through the controller; the rest are written directly.
func applySetting(ctx context.Context, ctrl settingsUpdater, store storage.Storage, key, value string) error {
	switch key {
	case storage.SettingLocalAddr:
		return ctrl.UpdateSettings(ctx, core.Settings{LocalAddr: &value})
	case storage.SettingLocalPort:
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", value, err)
		}
		return ctrl.UpdateSettings(ctx, core.Settings{LocalPort: &port})
	case storage.SettingPAC:
		return ctrl.UpdateSettings(ctx, core.Settings{PAC: &value})
	case storage.SettingLogLevel:
		level, err := models.ParseLogLevel(value)
		if err != nil {
			return err
		}
		return ctrl.UpdateSettings(ctx, core.Settings{LogLevel: &level})
	case storage.SettingLatencyWorkers, storage.SettingLatencyTimeout, storage.SettingMonitorInterval:
		if n, err := strconv.Atoi(value); err != nil || n <= 0 {
			return fmt.Errorf("%s must be a positive integer, got %q", key, value)
		}
		return store.SetSetting(ctx, key, value)
	case storage.SettingBinary:
		return store.SetSetting(ctx, key, value)
	default:
		return fmt.Errorf("unknown setting: %s", key)
	}
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Export or import the configuration",
	Long:  "Export or import the node list and listener settings as YAML",
}

var configExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write the configuration as YAML",
	Long:  "Write the configuration as YAML to file, or to stdout when no file is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := appInstance.Storage.GetConfiguration(context.Background())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(args) == 1 {
			f, err := os.OpenFile(args[0], os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", args[0], err)
			}
			defer f.Close()
			out = f
		}
		return exportConfiguration(out, cfg)
	},
}

var configImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the configuration from YAML",
	Long: `Replace the node list and listener settings from a YAML file written by
"hunter config export". Not allowed while a session is running.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()

		cfg, err := importConfiguration(f)
		if err != nil {
			return err
		}

		st, err := appInstance.Controller.State(ctx)
		if err != nil {
			return err
		}
		if st.Phase == types.PhaseRunning {
			return pkgerrors.ErrSessionRunning
		}

		if err := appInstance.Storage.SaveConfiguration(ctx, cfg); err != nil {
			return fmt.Errorf("failed to save configuration: %w", err)
		}
		fmt.Printf("Imported %d nodes.\n", len(cfg.Nodes))
		return nil
	},
}

func exportConfiguration(w io.Writer, cfg *models.Configuration) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	return enc.Close()
}

// importConfiguration decodes a configuration, filling defaults for missing
// settings and rejecting duplicate node names.
func importConfiguration(r io.Reader) (*models.Configuration, error) {
	cfg := models.DefaultConfiguration()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if cfg.LocalPort < 1 || cfg.LocalPort > 65535 {
		return nil, fmt.Errorf("local_port out of range: %d", cfg.LocalPort)
	}
	level, err := models.ParseLogLevel(string(cfg.LogLevel))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	seen := make(map[string]bool, len(cfg.Nodes))
	for i, n := range cfg.Nodes {
		if n == nil {
			return nil, fmt.Errorf("node %d is empty", i+1)
		}
		if n.Name == "" {
			continue
		}
		if seen[n.Name] {
			return nil, &pkgerrors.NodeError{Index: i, Name: n.Name, Err: pkgerrors.ErrNodeExists}
		}
		seen[n.Name] = true
	}
	return cfg, nil
}

func init() {
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)

	configCmd.AddCommand(configExportCmd)
	configCmd.AddCommand(configImportCmd)
	rootCmd.AddCommand(configCmd)
}
