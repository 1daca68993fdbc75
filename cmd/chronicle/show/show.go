// Package showcmder provides the show command for printing one entity.
package showcmder

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chronicle/cmd/chronicle/project"
	"github.com/papercomputeco/chronicle/pkg/cliui"
	"github.com/papercomputeco/chronicle/pkg/store"
	"github.com/papercomputeco/chronicle/pkg/world"
)

const showLongDesc string = `Show an entity by ID.

Scenes are rendered as markdown with their tick, point of view and tension.
Every other entity is printed as JSON, including its change history.

Examples:
  chronicle show scene_012
  chronicle show char_003
  chronicle show scene_012 --raw > scene.md`

const showShortDesc string = "Show an entity"

type showCommander struct {
	raw bool
}

func NewShowCmd() *cobra.Command {
	cmder := &showCommander{}

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: showShortDesc,
		Long:  showLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args[0])
		},
	}

	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Print scene markdown without terminal rendering")
	project.AddFlags(cmd)

	return cmd
}

func (c *showCommander) run(cmd *cobra.Command, id string) error {
	p, err := project.Open(cmd)
	if err != nil {
		return err
	}
	defer p.Close()

	return show(cmd.OutOrStdout(), p.Engine.Reader(), id, c.raw)
}

func show(w io.Writer, r store.Reader, id string, raw bool) error {
	ent, err := r.Get(id)
	if err != nil {
		return err
	}

	scene, ok := ent.(*world.Scene)
	if !ok {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(ent)
	}

	md := sceneMarkdown(r, scene)
	if raw {
		_, err := io.WriteString(w, md)
		return err
	}

	rendered, err := cliui.RenderMarkdown(md)
	if err != nil {
		// glamour failures still leave the plain markdown to print
		rendered = md
	}
	_, err = io.WriteString(w, rendered)
	return err
}

func sceneMarkdown(r store.Reader, s *world.Scene) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", s.ID)

	meta := []string{fmt.Sprintf("tick %d", s.Tick)}
	if s.POVCharacterID != "" {
		pov := s.POVCharacterID
		if c, err := store.GetAs[*world.Character](r, s.POVCharacterID); err == nil {
			pov = c.FullName()
		}
		meta = append(meta, "pov "+pov)
	}
	meta = append(meta, fmt.Sprintf("tension %d/10", s.Tension), fmt.Sprintf("%d words", s.WordCount))
	if s.BeatID != "" {
		meta = append(meta, "beat "+s.BeatID)
	}
	fmt.Fprintf(&b, "*%s*\n\n", strings.Join(meta, " · "))

	if s.Intention != "" {
		fmt.Fprintf(&b, "> %s\n\n", s.Intention)
	}
	b.WriteString(s.Text)
	b.WriteString("\n")
	return b.String()
}
