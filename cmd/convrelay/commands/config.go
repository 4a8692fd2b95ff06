package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/convrelay/pkg/audio/resampler"
	"github.com/haivivi/convrelay/pkg/cli"
	"github.com/haivivi/convrelay/pkg/convrelay"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long: `Manage convrelay configuration.

Configuration is stored in ~/.giztoy/convrelay/config.yaml.
Multiple contexts can be defined, one per relay backend.`,
}

var configAddContextCmd = &cobra.Command{
	Use:   "add-context <name>",
	Short: "Add or replace a context",
	Long: `Add or replace a context describing one relay backend.

Examples:
  convrelay config add-context local --endpoint ws://127.0.0.1:8000/ws/audio
  convrelay config add-context staging --endpoint wss://relay.example.com/ws/audio --keepalive 20
  convrelay config add-context lab --endpoint ws://10.0.0.5:8000/ws/audio --allow-insecure --device USB`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := contextFromFlags(cmd)
		if err != nil {
			return err
		}
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if err := cfg.AddContext(args[0], ctx); err != nil {
			return err
		}
		cli.PrintSuccess("Context '%s' added", args[0])
		if cfg.CurrentContext == "" {
			fmt.Printf("Use 'convrelay config use-context %s' to make it the default\n", args[0])
		}
		return nil
	},
}

var configDeleteContextCmd = &cobra.Command{
	Use:   "delete-context <name>",
	Short: "Delete a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if err := cfg.DeleteContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Context '%s' deleted", args[0])
		return nil
	},
}

var configUseContextCmd = &cobra.Command{
	Use:   "use-context <name>",
	Short: "Set the default context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if err := cfg.UseContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Switched to context '%s'", args[0])
		return nil
	},
}

var configGetContextCmd = &cobra.Command{
	Use:   "get-context",
	Short: "Show the current context",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if cfg.CurrentContext == "" {
			fmt.Println("No current context set")
		} else {
			fmt.Println(cfg.CurrentContext)
		}
		return nil
	},
}

var configListContextsCmd = &cobra.Command{
	Use:   "list-contexts",
	Short: "List all contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		names := cfg.ListContexts()
		if len(names) == 0 {
			fmt.Println("No contexts configured")
			return nil
		}
		return cli.Output(contextTable{cfg: cfg, names: names}, cli.OutputOptions{Format: cli.FormatTable})
	},
}

// contextTable lists contexts, the current one marked.
type contextTable struct {
	cfg   *cli.Config
	names []string
}

func (contextTable) Columns() []string {
	return []string{"CURRENT", "NAME", "ENDPOINT", "DEVICE"}
}

func (t contextTable) Rows() [][]string {
	rows := make([][]string, 0, len(t.names))
	for _, name := range t.names {
		ctx := t.cfg.Contexts[name]
		marker := ""
		if name == t.cfg.CurrentContext {
			marker = "*"
		}
		endpoint := ctx.Endpoint
		if endpoint == "" {
			endpoint = convrelay.DefaultURL
		}
		device := ctx.AudioDevice
		if device == "" {
			device = "default"
		}
		rows = append(rows, []string{marker, name, endpoint, device})
	}
	return rows
}

var configViewFormat string

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "View full configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		view := cli.Config{CurrentContext: cfg.CurrentContext, Contexts: make(map[string]*cli.Context, len(cfg.Contexts))}
		for name, ctx := range cfg.Contexts {
			view.Contexts[name] = ctx.Masked()
		}
		return cli.Output(view, cli.OutputOptions{Format: cli.OutputFormat(configViewFormat), Indent: "  "})
	},
}

// contextFromFlags builds a context from the add-context flags.
func contextFromFlags(cmd *cobra.Command) (*cli.Context, error) {
	fs := cmd.Flags()
	ctx := &cli.Context{}
	ctx.Endpoint, _ = fs.GetString("endpoint")
	ctx.AudioDevice, _ = fs.GetString("device")
	ctx.BlockSize, _ = fs.GetInt("block-size")
	ctx.Resampler, _ = fs.GetString("resampler")
	ctx.AllowInsecure, _ = fs.GetBool("allow-insecure")
	ctx.Keepalive, _ = fs.GetInt("keepalive")
	ctx.Timeout, _ = fs.GetInt("timeout")
	ctx.RecordDir, _ = fs.GetString("record-dir")
	headers, _ := fs.GetStringArray("header")

	if ctx.BlockSize < 0 || ctx.Keepalive < 0 || ctx.Timeout < 0 {
		return nil, fmt.Errorf("block-size, keepalive and timeout must not be negative")
	}
	if ctx.Resampler != "" {
		if _, err := resampler.ParseMode(ctx.Resampler); err != nil {
			return nil, err
		}
	}
	for _, h := range headers {
		if err := ctx.SetHeader(h); err != nil {
			return nil, err
		}
	}
	return ctx, nil
}

func registerContextFlags(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.String("endpoint", "", "relay websocket URL")
	fs.String("device", "", "capture device index or name substring")
	fs.Int("block-size", 0, "source frames per audio block")
	fs.String("resampler", "", "resampler: box or soxr")
	fs.Bool("allow-insecure", false, "allow audio over ws:// to a non-loopback host")
	fs.Int("keepalive", 0, "ping interval in seconds (0 disables)")
	fs.Int("timeout", 0, "handshake timeout in seconds")
	fs.String("record-dir", "", "record every session to this directory")
	fs.StringArrayP("header", "H", nil, "extra handshake header (Key: value), repeatable")
}

func init() {
	registerContextFlags(configAddContextCmd)
	configViewCmd.Flags().StringVarP(&configViewFormat, "output", "o", "yaml", "output format: yaml or json")

	configCmd.AddCommand(configAddContextCmd)
	configCmd.AddCommand(configDeleteContextCmd)
	configCmd.AddCommand(configUseContextCmd)
	configCmd.AddCommand(configGetContextCmd)
	configCmd.AddCommand(configListContextsCmd)
	configCmd.AddCommand(configViewCmd)
}
