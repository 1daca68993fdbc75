// Package seedcmder provides the seed command for populating an empty
// project's world from a YAML file.
package seedcmder

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chronicle/cmd/chronicle/project"
	"github.com/papercomputeco/chronicle/pkg/cliui"
	"github.com/papercomputeco/chronicle/pkg/seed"
	"github.com/papercomputeco/chronicle/pkg/world"
)

const seedLongDesc string = `Seed the world of an empty project from a YAML file.

The file lists locations, characters, relationships, lore and plot beats.
Entries refer to each other by key; keys are replaced by entity IDs as the
world is created. Seeding is refused once the project has characters,
locations or committed ticks.

Examples:
  chronicle seed world.yaml
  chronicle seed world.yaml --config-dir ./saga/.chronicle`

const seedShortDesc string = "Seed an empty world from YAML"

type seedCommander struct{}

func NewSeedCmd() *cobra.Command {
	cmder := &seedCommander{}

	cmd := &cobra.Command{
		Use:   "seed <world.yaml>",
		Short: seedShortDesc,
		Long:  seedLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args[0])
		},
	}

	project.AddFlags(cmd)

	return cmd
}

func (c *seedCommander) run(cmd *cobra.Command, path string) error {
	w, err := seed.Load(path)
	if err != nil {
		return err
	}

	p, err := project.Open(cmd)
	if err != nil {
		return err
	}
	defer p.Close()

	out := cmd.OutOrStdout()

	var res *seed.Result
	if err := cliui.Step(out, "Seeding world from "+filepath.Base(path), func() error {
		var seedErr error
		res, seedErr = p.Engine.Seed(cmd.Context(), w)
		return seedErr
	}); err != nil {
		return err
	}

	counts := map[world.Kind]int{}
	for _, id := range res.Created {
		if kind, ok := world.KindOf(id); ok {
			counts[kind]++
		}
	}

	fmt.Fprintf(out, "\n  %s Seeded %s entities\n", cliui.SuccessMark, cliui.NameStyle.Render(strconv.Itoa(len(res.Created))))
	for _, kind := range world.Kinds {
		if n := counts[kind]; n > 0 {
			fmt.Fprintf(out, "    %s %d\n", cliui.KeyStyle.Render(fmt.Sprintf("%-13s", kind)), n)
		}
	}
	fmt.Fprintln(out)
	return nil
}
