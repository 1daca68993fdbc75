// Package initcmder provides the init command for creating a chronicle
// project in the current working directory.
package initcmder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chronicle/cmd/chronicle/project"
	"github.com/papercomputeco/chronicle/pkg/cliui"
	"github.com/papercomputeco/chronicle/pkg/config"
	"github.com/papercomputeco/chronicle/pkg/dotdir"
	"github.com/papercomputeco/chronicle/pkg/seed"
)

const initLongDesc string = `Initialize a new chronicle project in the current working directory.

Creates a local .chronicle/ directory holding config.toml, the world
database, vector indices and checkpoints. A local .chronicle/ takes
precedence over ~/.chronicle/.

Use --preset to start from a generator preset (openai, anthropic, ollama)
and --seed to populate the world from a YAML file in the same step.
An existing config.toml is never overwritten.

Examples:
  chronicle init
  chronicle init --preset anthropic
  chronicle init --seed world.yaml`

const initShortDesc string = "Initialize a local .chronicle/ project"

type initCommander struct {
	preset   string
	seedPath string
}

func NewInitCmd() *cobra.Command {
	cmder := &initCommander{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVar(&cmder.preset, "preset", "", "Generator preset: "+fmt.Sprint(config.ValidPresetNames()))
	cmd.Flags().StringVar(&cmder.seedPath, "seed", "", "YAML world file to seed the new project with")

	return cmd
}

func (c *initCommander) run(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	cfg := config.NewDefaultConfig()
	if c.preset != "" {
		var err error
		if cfg, err = config.PresetConfig(c.preset); err != nil {
			return err
		}
	}

	// Parse the seed file before touching the filesystem.
	var world *seed.World
	if c.seedPath != "" {
		var err error
		if world, err = seed.Load(c.seedPath); err != nil {
			return err
		}
	}

	dir, err := targetDir(cmd)
	if err != nil {
		return err
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfger.GetTarget()); errors.Is(err, os.ErrNotExist) {
		if err := cfger.SaveConfig(cfg); err != nil {
			return err
		}
		fmt.Fprintf(out, "  %s Initialized chronicle project: %s\n", cliui.SuccessMark, cliui.DimStyle.Render(dir))
	} else {
		fmt.Fprintf(out, "  %s Already initialized: %s\n", cliui.SuccessMark, cliui.DimStyle.Render(dir))
	}

	if world == nil {
		return nil
	}
	return seedProject(cmd, out, world, filepath.Base(c.seedPath))
}

// targetDir is --config-dir when given, otherwise .chronicle/ in the
// working directory.
func targetDir(cmd *cobra.Command) (string, error) {
	m := dotdir.NewManager()
	if configDir, _ := cmd.Flags().GetString("config-dir"); configDir != "" {
		return m.Target(configDir)
	}
	return m.Local()
}

func seedProject(cmd *cobra.Command, out io.Writer, w *seed.World, name string) error {
	p, err := project.Open(cmd)
	if err != nil {
		return err
	}
	defer p.Close()

	var res *seed.Result
	if err := cliui.Step(out, "Seeding world from "+name, func() error {
		var seedErr error
		res, seedErr = p.Engine.Seed(cmd.Context(), w)
		return seedErr
	}); err != nil {
		return err
	}

	fmt.Fprintf(out, "  %s Seeded %s entities\n", cliui.SuccessMark, cliui.NameStyle.Render(strconv.Itoa(len(res.Created))))
	return nil
}
