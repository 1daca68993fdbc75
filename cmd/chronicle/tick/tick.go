// Package tickcmder provides the tick command for advancing the story.
package tickcmder

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chronicle/cmd/chronicle/project"
	"github.com/papercomputeco/chronicle/pkg/cliui"
	"github.com/papercomputeco/chronicle/pkg/store"
	"github.com/papercomputeco/chronicle/pkg/tick"
	"github.com/papercomputeco/chronicle/pkg/world"
)

const tickLongDesc string = `Run one or more ticks.

Each tick retrieves the relevant world, plans a scene, applies the planned
world changes, writes the prose and commits it. Lore extraction,
contradiction checks and beat verification follow the commit; their failures
are reported but never undo the scene.

Ticks run one after another. The first tick that aborts stops the run and
leaves the world as it was before that tick.

Examples:
  chronicle tick
  chronicle tick -n 10
  chronicle tick --json | jq .scene_id`

const tickShortDesc string = "Advance the story"

type tickCommander struct {
	count int
	json  bool
}

func NewTickCmd() *cobra.Command {
	cmder := &tickCommander{}

	cmd := &cobra.Command{
		Use:   "tick",
		Short: tickShortDesc,
		Long:  tickLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmder.count <= 0 {
				return errors.New("--count must be positive")
			}
			return cmder.run(cmd)
		},
	}

	cmd.Flags().IntVarP(&cmder.count, "count", "n", 1, "Number of ticks to run")
	cmd.Flags().BoolVar(&cmder.json, "json", false, "Print each tick result as a JSON line")
	project.AddFlags(cmd)

	return cmd
}

func (c *tickCommander) run(cmd *cobra.Command) error {
	p, err := project.Open(cmd)
	if err != nil {
		return err
	}
	defer p.Close()

	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)

	for range c.count {
		var res *tick.Result
		run := func() error {
			var tickErr error
			res, tickErr = p.Engine.Tick(cmd.Context())
			return tickErr
		}

		if c.json {
			err = run()
			if res != nil {
				if encErr := enc.Encode(res); encErr != nil {
					return encErr
				}
			}
		} else {
			err = cliui.Step(out, fmt.Sprintf("Tick %d", p.Engine.Reader().Tick()+1), run)
			if res != nil {
				printResult(out, p.Engine.Reader(), res)
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func printResult(w io.Writer, r store.Reader, res *tick.Result) {
	if res.Committed() {
		pov := res.POVCharacterID
		if ent, err := r.Get(pov); err == nil {
			if c, ok := ent.(*world.Character); ok {
				pov = c.FullName()
			}
		}
		fmt.Fprintf(w, "    %s  %s %s  %s %s %d  %s\n",
			cliui.IDStyle.Render(res.SceneID),
			cliui.KeyStyle.Render("pov"),
			cliui.NameStyle.Render(pov),
			cliui.KeyStyle.Render("tension"),
			cliui.TensionBar(res.Tension),
			res.Tension,
			cliui.DimStyle.Render(fmt.Sprintf("%d words", res.WordCount)),
		)
		if res.Intention != "" {
			fmt.Fprintf(w, "    %s\n", cliui.PreviewStyle.Render(cliui.Preview(res.Intention, 72)))
		}
	}

	if res.Beat != nil {
		fmt.Fprintf(w, "    %s %s %s\n",
			cliui.KeyStyle.Render("beat"),
			cliui.IDStyle.Render(res.Beat.BeatID),
			cliui.ValueStyle.Render(string(res.Beat.Status)),
		)
	}
	if len(res.GeneratedBeats) > 0 {
		fmt.Fprintf(w, "    %s %d new beats\n", cliui.KeyStyle.Render("outline"), len(res.GeneratedBeats))
	}
	if len(res.LoreIDs) > 0 {
		fmt.Fprintf(w, "    %s %d facts, %d contradictions\n", cliui.KeyStyle.Render("lore"), len(res.LoreIDs), len(res.Contradictions))
	}
	for _, f := range res.Fallbacks {
		fmt.Fprintf(w, "    %s %s: %s\n", cliui.WarnStyle.Render("fallback"), f.State, f.Reason)
	}
	for _, e := range res.StageErrors {
		fmt.Fprintf(w, "    %s %s: %s\n", cliui.FailMark, e.State, e.Message)
	}
}
