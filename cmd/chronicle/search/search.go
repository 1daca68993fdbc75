// Package searchcmder provides the search command for semantic search over
// the world.
package searchcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chronicle/cmd/chronicle/project"
	"github.com/papercomputeco/chronicle/pkg/cliui"
	"github.com/papercomputeco/chronicle/pkg/index"
	"github.com/papercomputeco/chronicle/pkg/store"
)

type searchCommander struct {
	topK  int
	lore  bool
	quiet bool
}

const searchLongDesc string = `Search the world semantically.

Searches characters, locations, relationships and scenes by default. Use
--lore to search established lore facts instead.

Use --quiet to print only matching IDs, one per line, for piping into
chronicle show.

Examples:
  chronicle search "who keeps the lighthouse"
  chronicle search "salt wards" --lore -k 10
  chronicle show $(chronicle search "the letter" -q -k 1)`

const searchShortDesc string = "Search the world"

func NewSearchCmd() *cobra.Command {
	cmder := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args[0])
		},
	}

	cmd.Flags().IntVarP(&cmder.topK, "top", "k", 5, "Number of results to return")
	cmd.Flags().BoolVar(&cmder.lore, "lore", false, "Search lore facts instead of entities")
	cmd.Flags().BoolVarP(&cmder.quiet, "quiet", "q", false, "Output only IDs, one per line (for piping)")
	project.AddFlags(cmd)

	return cmd
}

func (c *searchCommander) run(cmd *cobra.Command, query string) error {
	p, err := project.Open(cmd)
	if err != nil {
		return err
	}
	defer p.Close()

	name := index.Entities
	if c.lore {
		name = index.Lore
	}

	hits, err := p.Engine.Search(cmd.Context(), name, query, c.topK)
	if err != nil {
		return err
	}

	printHits(cmd.OutOrStdout(), p.Engine.Reader(), query, hits, c.quiet)
	return nil
}

func printHits(w io.Writer, r store.Reader, query string, hits []index.Hit, quiet bool) {
	if quiet {
		for _, hit := range hits {
			fmt.Fprintln(w, hit.ID)
		}
		return
	}

	if len(hits) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	fmt.Fprintf(w, "\n%s %s\n\n",
		cliui.HeaderStyle.Render("Search Results for:"),
		cliui.IDStyle.Render(fmt.Sprintf("%q", query)),
	)

	for i, hit := range hits {
		fmt.Fprintf(w, "  %s  %s  %s\n",
			cliui.NameStyle.Render(fmt.Sprintf("#%d", i+1)),
			cliui.DimStyle.Render(fmt.Sprintf("score: %.4f", hit.Score)),
			cliui.IDStyle.Render(hit.ID),
		)

		ent, err := r.Get(hit.ID)
		if err != nil {
			fmt.Fprintf(w, "  %s\n\n", cliui.DimStyle.Render("(no longer in the world)"))
			continue
		}
		text, _, _ := index.Document(ent)
		fmt.Fprintf(w, "  %s\n\n", cliui.PreviewStyle.Render(cliui.Preview(text, 100)))
	}
}
