// Package statuscmder provides the status command for summarising a
// project's world and story.
package statuscmder

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chronicle/cmd/chronicle/project"
	"github.com/papercomputeco/chronicle/pkg/cliui"
	"github.com/papercomputeco/chronicle/pkg/engine"
	"github.com/papercomputeco/chronicle/pkg/store"
	"github.com/papercomputeco/chronicle/pkg/world"
)

const statusLongDesc string = `Show where the story stands.

Displays the committed tick, entity counts, the tension of the most recent
scenes, the upcoming plot beats and the engine options the next tick will
run with.

Examples:
  chronicle status`

const statusShortDesc string = "Show project status"

// recentScenes is how many scenes the tension trend covers.
const recentScenes = 5

func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd)
		},
	}

	project.AddFlags(cmd)

	return cmd
}

func runStatus(cmd *cobra.Command) error {
	p, err := project.Open(cmd)
	if err != nil {
		return err
	}
	defer p.Close()

	r := p.Engine.Reader()
	render(cmd.OutOrStdout(), p.Engine.Status(), lastScenes(r, recentScenes), p.Engine.PendingBeats())
	return nil
}

func lastScenes(r store.Reader, n int) []*world.Scene {
	scenes := store.ListAs[*world.Scene](r, world.KindScene, nil)
	if len(scenes) > n {
		scenes = scenes[len(scenes)-n:]
	}
	return scenes
}

func render(w io.Writer, st engine.Status, scenes []*world.Scene, beats []*world.PlotBeat) {
	fmt.Fprintf(w, "\n  %s  %s\n", cliui.KeyStyle.Render("Project:"), cliui.NameStyle.Render(st.Project))
	fmt.Fprintf(w, "  %s  %s\n\n", cliui.KeyStyle.Render("Tick:   "), cliui.NameStyle.Render(strconv.Itoa(st.Tick)))

	for _, kind := range world.Kinds {
		fmt.Fprintf(w, "  %s %d\n", cliui.KeyStyle.Render(fmt.Sprintf("%-13s", kind)), st.Counts[kind])
	}

	if len(scenes) > 0 {
		fmt.Fprintf(w, "\n  %s\n", cliui.HeaderStyle.Render("Recent scenes"))
		for _, s := range scenes {
			fmt.Fprintf(w, "  %s %s %2d  %s\n",
				cliui.IDStyle.Render(s.ID),
				cliui.TensionBar(s.Tension),
				s.Tension,
				cliui.PreviewStyle.Render(cliui.Preview(s.Intention, 56)),
			)
		}
	}

	fmt.Fprintf(w, "\n  %s %s\n", cliui.HeaderStyle.Render("Pending beats"), cliui.DimStyle.Render("("+strconv.Itoa(st.PendingBeats)+")"))
	if len(beats) == 0 {
		fmt.Fprintf(w, "  %s\n", cliui.DimStyle.Render("none"))
	}
	for i, b := range beats {
		fmt.Fprintf(w, "  %s %s %s\n",
			cliui.DimStyle.Render(fmt.Sprintf("%d.", i+1)),
			cliui.IDStyle.Render(b.ID),
			cliui.PreviewStyle.Render(cliui.Preview(b.Description, 64)),
		)
	}

	o := st.Options
	fmt.Fprintf(w, "\n  %s\n", cliui.HeaderStyle.Render("Options"))
	for _, row := range [][2]string{
		{"plot first", strconv.FormatBool(o.UsePlotFirst)},
		{"beats ahead", strconv.Itoa(o.PlotBeatsAhead)},
		{"verify beats", strconv.FormatBool(o.VerifyBeatExecution)},
		{"allow skip", strconv.FormatBool(o.AllowBeatSkip)},
		{"lore tracking", strconv.FormatBool(o.EnableLoreTracking)},
		{"tension guide", strconv.FormatBool(o.EnableTensionGuidance)},
	} {
		fmt.Fprintf(w, "  %s %s\n", cliui.KeyStyle.Render(fmt.Sprintf("%-13s", row[0])), cliui.ValueStyle.Render(row[1]))
	}
	fmt.Fprintln(w)
}
