// Package chroniclecmder
package chroniclecmder

import (
	"github.com/spf13/cobra"

	checkpointcmder "github.com/papercomputeco/chronicle/cmd/chronicle/checkpoint"
	configcmder "github.com/papercomputeco/chronicle/cmd/chronicle/config"
	initcmder "github.com/papercomputeco/chronicle/cmd/chronicle/init"
	searchcmder "github.com/papercomputeco/chronicle/cmd/chronicle/search"
	seedcmder "github.com/papercomputeco/chronicle/cmd/chronicle/seed"
	servecmder "github.com/papercomputeco/chronicle/cmd/chronicle/serve"
	showcmder "github.com/papercomputeco/chronicle/cmd/chronicle/show"
	statuscmder "github.com/papercomputeco/chronicle/cmd/chronicle/status"
	tickcmder "github.com/papercomputeco/chronicle/cmd/chronicle/tick"
	versioncmder "github.com/papercomputeco/chronicle/cmd/version"
)

const chronicleLongDesc string = `Chronicle grows a story one tick at a time.

Each tick plans a scene against the tracked world, writes it, commits the
changes and files away the lore it established.

Get started:
  chronicle init --seed world.yaml   Create a project and seed its world
  chronicle tick -n 5                Run five ticks
  chronicle status                   Show where the story stands
  chronicle serve                    Run the API server`

const chronicleShortDesc string = "Chronicle - Narrative World Engine"

func NewChronicleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "chronicle",
		Short:        chronicleShortDesc,
		Long:         chronicleLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .chronicle/ project directory")

	// Add subcommands
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(seedcmder.NewSeedCmd())
	cmd.AddCommand(tickcmder.NewTickCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(showcmder.NewShowCmd())
	cmd.AddCommand(checkpointcmder.NewCheckpointCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
