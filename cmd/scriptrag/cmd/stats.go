package cmd

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	scripterrors "github.com/trieloff/scriptrag/internal/errors"
)

type indexStats struct {
	Scenes      int `json:"scenes"`
	Lines       int `json:"lines"`
	BibleChunks int `json:"bible_chunks"`
	Vectors     int `json:"vectors"`
	CacheStats  struct {
		Entries   int    `json:"entries"`
		SizeBytes int64  `json:"size_bytes"`
		Hits      uint64 `json:"hits"`
		Misses    uint64 `json:"misses"`
	} `json:"cache"`
}

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output statistics as JSON")

	return cmd
}

func runStats(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	comps, err := openComponents(ctx)
	if err != nil {
		return err
	}
	defer comps.Close()

	reader, err := comps.meta.Reader()
	if err != nil {
		return err
	}

	var stats indexStats
	if stats.Scenes, err = countRows(ctx, reader, "scenes"); err != nil {
		return err
	}
	if stats.Lines, err = countRows(ctx, reader, "script_lines"); err != nil {
		return err
	}
	if stats.BibleChunks, err = countRows(ctx, reader, "bible_chunks"); err != nil {
		return err
	}
	stats.Vectors = comps.index.Count()

	cache := comps.pipeline.CacheStats()
	stats.CacheStats.Entries = cache.Entries
	stats.CacheStats.SizeBytes = cache.SizeBytes
	stats.CacheStats.Hits = cache.Hits
	stats.CacheStats.Misses = cache.Misses

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Scenes:       %d\n", stats.Scenes)
	fmt.Fprintf(w, "Lines:        %d\n", stats.Lines)
	fmt.Fprintf(w, "Bible chunks: %d\n", stats.BibleChunks)
	fmt.Fprintf(w, "Vectors:      %d\n", stats.Vectors)
	fmt.Fprintf(w, "Cache:        %d entries, %d bytes (%d hits, %d misses)\n",
		stats.CacheStats.Entries, stats.CacheStats.SizeBytes,
		stats.CacheStats.Hits, stats.CacheStats.Misses)
	return nil
}

func countRows(ctx context.Context, db *sql.DB, table string) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, scripterrors.New(scripterrors.ErrCodeQueryFailed, "cannot count rows", err).
			WithDetail("table", table)
	}
	return n, nil
}
