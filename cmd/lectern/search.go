package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pders01/lectern/internal/search"
)

type searchOptions struct {
	texts   []string
	limit   int
	ranked  bool
	context int
	asJSON  bool
}

func newSearchCmd(a *app) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find sections containing every query word",
		Long: `Find sections containing every word of the query. Searches all texts
with content unless --text names the ones to search.

Examples:
  lectern search "living water"
  lectern search grace --text KJV --text WEB --limit 10
  lectern search light --ranked`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSearch(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.texts, "text", "t", nil, "Text to search (repeatable)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", -1, "Maximum number of matches, 0 for all (default from config)")
	cmd.Flags().BoolVar(&opts.ranked, "ranked", false, "Order matches by score instead of text order")
	cmd.Flags().IntVarP(&opts.context, "context", "C", 0, "Words of context either side of a match (default from config)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Output results as JSON")
	return cmd
}

func (a *app) runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	lib, err := a.library()
	if err != nil {
		return err
	}
	ctx, cancel := a.context(cmd)
	defer cancel()

	searchOpts := lib.SearchOptions()
	if opts.limit >= 0 {
		searchOpts.Limit = opts.limit
	}
	if cmd.Flags().Changed("ranked") {
		searchOpts.Ranked = opts.ranked
	}
	if opts.context != 0 {
		searchOpts.ContextTokens = opts.context
	}

	res, err := lib.Search(ctx, query, opts.texts, searchOpts)
	if err != nil {
		return err
	}
	if opts.asJSON {
		return writeJSON(cmd.OutOrStdout(), searchJSON(res))
	}

	out := cmd.OutOrStdout()
	for _, m := range res.Matches {
		fmt.Fprintf(out, "%s %s\n  %s\n",
			a.styles.accent.Render(m.TextID),
			a.styles.title.Render(m.SectionID),
			highlight(m.Snippet, res.Terms, a.styles.success.Render),
		)
	}
	for _, s := range res.Skipped {
		fmt.Fprintln(cmd.ErrOrStderr(), a.styles.err.Render(fmt.Sprintf("skipped %s: %v", s.TextID, s.Err)))
	}
	fmt.Fprintln(out, a.styles.muted.Render(fmt.Sprintf("%d matches for %q", len(res.Matches), query)))
	return nil
}

// highlight marks the words of snippet that carry a query term.
func highlight(snippet string, terms []string, mark func(...string) string) string {
	if len(terms) == 0 {
		return snippet
	}
	words := strings.Fields(snippet)
	for i, w := range words {
		lw := strings.ToLower(w)
		for _, t := range terms {
			if strings.Contains(lw, t) {
				words[i] = mark(w)
				break
			}
		}
	}
	return strings.Join(words, " ")
}

type matchJSON struct {
	TextID    string  `json:"text_id"`
	SectionID string  `json:"section_id"`
	Position  int     `json:"position"`
	Snippet   string  `json:"snippet"`
	Score     float64 `json:"score"`
}

type skippedJSON struct {
	TextID string `json:"text_id"`
	Reason string `json:"reason"`
	Index  bool   `json:"index_build_failure"`
}

type resultsJSON struct {
	Query   string        `json:"query"`
	Terms   []string      `json:"terms"`
	Matches []matchJSON   `json:"matches"`
	Skipped []skippedJSON `json:"skipped,omitempty"`
}

func searchJSON(res *search.Results) resultsJSON {
	out := resultsJSON{Query: res.Query, Terms: res.Terms, Matches: make([]matchJSON, len(res.Matches))}
	for i, m := range res.Matches {
		out.Matches[i] = matchJSON(m)
	}
	for _, s := range res.Skipped {
		out.Skipped = append(out.Skipped, skippedJSON{
			TextID: s.TextID,
			Reason: s.Err.Error(),
			Index:  search.IsIndexBuildFailure(s.Err),
		})
	}
	return out
}
