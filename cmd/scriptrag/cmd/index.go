package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/trieloff/scriptrag/internal/embed"
	scripterrors "github.com/trieloff/scriptrag/internal/errors"
	"github.com/trieloff/scriptrag/internal/store"
)

// scriptFile is the JSON shape produced by the screenplay exporter.
type scriptFile struct {
	Project string `json:"project"`
	Scenes  []struct {
		ID          string `json:"id"`
		Season      int    `json:"season"`
		Episode     int    `json:"episode"`
		ScriptOrder int    `json:"script_order"`
		Heading     string `json:"heading"`
		Location    string `json:"location"`
		TimeOfDay   string `json:"time_of_day"`
		Content     string `json:"content"`
		Lines       []struct {
			ID            string `json:"id"`
			Type          string `json:"type"`
			Character     string `json:"character"`
			Parenthetical string `json:"parenthetical"`
			Content       string `json:"content"`
		} `json:"lines"`
	} `json:"scenes"`
	Bible []struct {
		ID         string `json:"id"`
		Document   string `json:"document"`
		Heading    string `json:"heading"`
		ChunkIndex int    `json:"chunk_index"`
		Content    string `json:"content"`
	} `json:"bible"`
}

func newIndexCmd() *cobra.Command {
	var skipEmbeddings bool

	cmd := &cobra.Command{
		Use:   "index <script.json>",
		Short: "Index a screenplay export",
		Long: `Index a screenplay export: store scenes, lines, and bible chunks
in the metadata database and generate embeddings for semantic search.

Examples:
  scriptrag index pilot.json
  scriptrag index pilot.json --skip-embeddings`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), cmd, args[0], skipEmbeddings)
		},
	}

	cmd.Flags().BoolVar(&skipEmbeddings, "skip-embeddings", false, "Store metadata only, skip embedding generation")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, path string, skipEmbeddings bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return scripterrors.New(scripterrors.ErrCodeStoreRead, "cannot read script file", err)
	}

	var script scriptFile
	if err := json.Unmarshal(data, &script); err != nil {
		return scripterrors.New(scripterrors.ErrCodeConfigInvalid, "cannot parse script file", err)
	}
	if script.Project == "" {
		return scripterrors.New(scripterrors.ErrCodeConfigInvalid, "script file has no project name", nil)
	}

	comps, err := openComponents(ctx)
	if err != nil {
		return err
	}
	defer comps.Close()

	scenes, lines := collectEntities(&script)
	if err := comps.meta.SaveScenes(ctx, scenes); err != nil {
		return err
	}
	if err := comps.meta.SaveLines(ctx, lines); err != nil {
		return err
	}

	chunks := make([]*store.BibleChunk, 0, len(script.Bible))
	for _, b := range script.Bible {
		chunks = append(chunks, &store.BibleChunk{
			ID: b.ID, Project: script.Project, Document: b.Document,
			Heading: b.Heading, ChunkIndex: b.ChunkIndex, Content: b.Content,
		})
	}
	if len(chunks) > 0 {
		if err := comps.meta.SaveBibleChunks(ctx, chunks); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Stored %d scenes, %d lines, %d bible chunks\n",
		len(scenes), len(lines), len(chunks))

	if skipEmbeddings {
		return nil
	}

	embedded, err := embedScript(ctx, comps, scenes, lines, chunks)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Generated %d embeddings (model %s)\n",
		embedded, comps.pipeline.Model())
	return nil
}

func collectEntities(script *scriptFile) ([]*store.Scene, []*store.ScriptLine) {
	var scenes []*store.Scene
	var lines []*store.ScriptLine

	for _, sc := range script.Scenes {
		scenes = append(scenes, &store.Scene{
			ID: sc.ID, Project: script.Project, Season: sc.Season, Episode: sc.Episode,
			ScriptOrder: sc.ScriptOrder, Heading: sc.Heading, Location: sc.Location,
			TimeOfDay: sc.TimeOfDay, Content: sc.Content,
		})
		for _, ln := range sc.Lines {
			lines = append(lines, &store.ScriptLine{
				ID: ln.ID, SceneID: sc.ID, LineType: ln.Type,
				Character: ln.Character, Parenthetical: ln.Parenthetical, Content: ln.Content,
			})
		}
	}
	return scenes, lines
}

// embedScript generates and stores embeddings for every indexed
// entity. Individual failures are logged and skipped so one bad line
// cannot abort an indexing run.
func embedScript(ctx context.Context, comps *components, scenes []*store.Scene, lines []*store.ScriptLine, chunks []*store.BibleChunk) (int, error) {
	model := comps.pipeline.Model()
	embedded := 0

	sceneVecs, err := comps.pipeline.GenerateForScenes(ctx, scenes)
	if err != nil {
		return 0, err
	}
	bySceneID := make(map[string]*store.Scene, len(scenes))
	for _, sc := range scenes {
		bySceneID[sc.ID] = sc
	}
	for id, vec := range sceneVecs {
		sc := bySceneID[id]
		metadata := map[string]string{
			"content":      sc.Content,
			"heading":      sc.Heading,
			"location":     sc.Location,
			"script_order": strconv.Itoa(sc.ScriptOrder),
		}
		if err := comps.vectors.Store(ctx, store.EntityScene, id, vec, model, metadata); err != nil {
			slog.Warn("cannot store scene embedding", slog.String("scene", id), slog.String("error", err.Error()))
			continue
		}
		embedded++
	}

	texts := make([]string, len(lines))
	for i, ln := range lines {
		texts[i] = ln.Content
	}
	lineVecs, err := comps.pipeline.GenerateBatch(ctx, texts)
	if err != nil {
		return embedded, err
	}
	for i, vec := range lineVecs {
		if vec == nil {
			continue
		}
		ln := lines[i]
		entityType := store.EntityAction
		if ln.LineType == "dialogue" {
			entityType = store.EntityDialogue
		}
		sc := bySceneID[ln.SceneID]
		metadata := map[string]string{"content": ln.Content, "character": ln.Character}
		if sc != nil {
			metadata["heading"] = sc.Heading
			metadata["script_order"] = strconv.Itoa(sc.ScriptOrder)
		}
		if err := comps.vectors.Store(ctx, entityType, ln.ID, vec, model, metadata); err != nil {
			slog.Warn("cannot store line embedding", slog.String("line", ln.ID), slog.String("error", err.Error()))
			continue
		}
		embedded++
	}

	n, err := embedBibleChunks(ctx, comps, chunks)
	if err != nil {
		return embedded, err
	}
	return embedded + n, nil
}

// embedBibleChunks windows long bible chunks and stores one embedding
// per window, keyed "<chunk id>#<window index>".
func embedBibleChunks(ctx context.Context, comps *components, chunks []*store.BibleChunk) (int, error) {
	model := comps.pipeline.Model()
	batch := embed.NewBatchProcessor(comps.provider, model, comps.cfg.Embeddings.BatchSize, slog.Default())
	chunker := embed.NewChunkingBatchProcessor(batch,
		comps.cfg.Embeddings.ChunkSize, comps.cfg.Embeddings.ChunkOverlap)

	embedded := 0
	for _, c := range chunks {
		windows, vecs, err := chunker.Process(ctx, c.Content)
		if err != nil {
			slog.Warn("cannot embed bible chunk", slog.String("chunk", c.ID), slog.String("error", err.Error()))
			continue
		}
		for i, vec := range vecs {
			if vec == nil {
				continue
			}
			id := fmt.Sprintf("%s#%d", c.ID, i)
			metadata := map[string]string{
				"content":  windows[i].Text,
				"document": c.Document,
				"heading":  c.Heading,
			}
			if err := comps.vectors.Store(ctx, store.EntityBibleChunk, id, vec, model, metadata); err != nil {
				slog.Warn("cannot store bible embedding", slog.String("chunk", id), slog.String("error", err.Error()))
				continue
			}
			embedded++
		}
	}
	return embedded, nil
}
