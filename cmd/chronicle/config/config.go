// Package configcmder provides the config command for managing persistent
// chronicle configuration stored in the .chronicle/ directory.
package configcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chronicle/pkg/cliui"
	"github.com/papercomputeco/chronicle/pkg/config"
)

const configLongDesc string = `Manage persistent chronicle configuration.

Configuration is stored as config.toml in the .chronicle/ directory and provides
default values for command flags. CLI flags always take precedence over
config file values. A running "chronicle serve" picks up engine.* changes
on the next tick.

Keys use dotted notation matching the TOML section structure:
  storage.provider, storage.sqlite_path, storage.postgres_dsn,
  vector_store.provider, vector_store.target,
  embedding.provider, embedding.target, embedding.model, embedding.dimensions,
  generator.provider, generator.model, generator.target,
  engine.*, api.listen,
  events.provider, events.brokers, events.topic

Use subcommands to get, set, or list configuration values:
  chronicle config set <key> <value>    Set a configuration value
  chronicle config get <key>            Get a configuration value
  chronicle config list                 List all configuration values

Examples:
  chronicle config set generator.provider anthropic
  chronicle config set engine.plot_beats_ahead 8
  chronicle config get engine.use_plot_first
  chronicle config list`

const configShortDesc string = "Manage persistent chronicle configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func printTarget(w io.Writer, cfger *config.Configer) {
	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(w, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
		return
	}
	fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
}
