package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	scripterrors "github.com/trieloff/scriptrag/internal/errors"
	"github.com/trieloff/scriptrag/internal/search"
)

type searchFlags struct {
	limit         int
	offset        int
	mode          string
	project       string
	characters    []string
	locations     []string
	dialogue      string
	action        string
	parenthetical string
	seasonStart   int
	seasonEnd     int
	episodeStart  int
	episodeEnd    int
	bible         bool
	onlyBible     bool
	format        string
}

func newSearchCmd() *cobra.Command {
	flags := &searchFlags{}

	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Search indexed screenplays",
		Long: `Search indexed screenplays with combined keyword and semantic matching.

Short queries use keyword matching alone; longer queries also consult the
similarity index when embeddings are available. Use --mode to force either
behavior.

Examples:
  scriptrag search coffee shop
  scriptrag search "what does Sarah want" --mode fuzzy
  scriptrag search rain --character SARAH --limit 5
  scriptrag search worldbuilding notes --only-bible --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, args, flags)
		},
	}

	cmd.Flags().IntVarP(&flags.limit, "limit", "n", 0, "Maximum results to return")
	cmd.Flags().IntVar(&flags.offset, "offset", 0, "Results to skip, for pagination")
	cmd.Flags().StringVar(&flags.mode, "mode", "auto", "Search mode: auto, strict, or fuzzy")
	cmd.Flags().StringVar(&flags.project, "project", "", "Restrict to one project")
	cmd.Flags().StringSliceVar(&flags.characters, "character", nil, "Restrict dialogue to these characters")
	cmd.Flags().StringSliceVar(&flags.locations, "location", nil, "Restrict scenes to these locations")
	cmd.Flags().StringVar(&flags.dialogue, "dialogue", "", "Restrict to dialogue lines containing this text")
	cmd.Flags().StringVar(&flags.action, "action", "", "Restrict to action lines containing this text")
	cmd.Flags().StringVar(&flags.parenthetical, "parenthetical", "", "Restrict lines by parenthetical content")
	cmd.Flags().IntVar(&flags.seasonStart, "season-start", 0, "First season to search")
	cmd.Flags().IntVar(&flags.seasonEnd, "season-end", 0, "Last season to search")
	cmd.Flags().IntVar(&flags.episodeStart, "episode-start", 0, "First episode to search")
	cmd.Flags().IntVar(&flags.episodeEnd, "episode-end", 0, "Last episode to search")
	cmd.Flags().BoolVar(&flags.bible, "bible", false, "Include bible documents in results")
	cmd.Flags().BoolVar(&flags.onlyBible, "only-bible", false, "Search bible documents only")
	cmd.Flags().StringVar(&flags.format, "format", "text", "Output format: text or json")

	return cmd
}

func parseMode(mode string) (search.SearchMode, error) {
	switch strings.ToLower(mode) {
	case "", "auto":
		return search.ModeAuto, nil
	case "strict":
		return search.ModeStrict, nil
	case "fuzzy":
		return search.ModeFuzzy, nil
	default:
		return "", scripterrors.New(scripterrors.ErrCodeInvalidQuery,
			"unknown search mode", nil).WithDetail("mode", mode)
	}
}

func runSearch(cmd *cobra.Command, args []string, flags *searchFlags) error {
	mode, err := parseMode(flags.mode)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	comps, err := openComponents(ctx)
	if err != nil {
		return err
	}
	defer comps.Close()

	reader, err := comps.meta.Reader()
	if err != nil {
		return err
	}

	semantic := search.NewSemanticAdapter(comps.pipeline, comps.vectors, nil, 0, slog.Default())
	engine := search.NewEngine(reader, search.NewSQLQueryBuilder(), semantic, comps.cfg.Search, slog.Default())

	resp, err := engine.Search(ctx, &search.Query{
		Raw:           strings.Join(args, " "),
		Mode:          mode,
		Project:       flags.project,
		Characters:    flags.characters,
		Locations:     flags.locations,
		Dialogue:      flags.dialogue,
		Action:        flags.action,
		Parenthetical: flags.parenthetical,
		SeasonStart:   flags.seasonStart,
		SeasonEnd:     flags.seasonEnd,
		EpisodeStart:  flags.episodeStart,
		EpisodeEnd:    flags.episodeEnd,
		Limit:         flags.limit,
		Offset:        flags.offset,
		IncludeBible:  flags.bible,
		OnlyBible:     flags.onlyBible,
	})
	if err != nil {
		return err
	}

	if flags.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	printResults(cmd.OutOrStdout(), resp)
	return nil
}

// ANSI styles, emitted only when stdout is a terminal.
const (
	ansiBold  = "\033[1m"
	ansiDim   = "\033[2m"
	ansiReset = "\033[0m"
)

func useColor(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

func printResults(w io.Writer, resp *search.Response) {
	bold, dim, reset := "", "", ""
	if useColor(w) {
		bold, dim, reset = ansiBold, ansiDim, ansiReset
	}

	if len(resp.Results) == 0 {
		fmt.Fprintln(w, "No results.")
		return
	}

	for i, res := range resp.Results {
		header := fmt.Sprintf("%d. [%s] %s", i+1, res.Type, res.ID)
		if speaker := res.Metadata["character"]; speaker != "" {
			header += " " + speaker
		}
		fmt.Fprintf(w, "%s%s%s %s(%.2f)%s\n", bold, header, reset, dim, res.Score, reset)

		if len(res.Highlights) > 0 {
			for _, h := range res.Highlights {
				fmt.Fprintf(w, "   %s\n", h)
			}
		} else if res.Content != "" {
			fmt.Fprintf(w, "   %s\n", firstLine(res.Content))
		}
	}

	fmt.Fprintf(w, "\n%d of %d results", len(resp.Results), resp.TotalCount)
	if resp.HasMore {
		fmt.Fprint(w, " (more available)")
	}
	fmt.Fprintf(w, " in %dms via %s\n", resp.ExecutionTimeMS, strings.Join(resp.SearchMethods, "+"))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
