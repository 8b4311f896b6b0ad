package search

import (
	"context"
	"database/sql"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/trieloff/scriptrag/internal/config"
	scripterrors "github.com/trieloff/scriptrag/internal/errors"
)

// highlightContext is how many runes of context surround a match in a
// highlight fragment.
const highlightContext = 40

// Engine executes hybrid searches: SQL text search always, semantic
// search when the mode and query shape call for it.
type Engine struct {
	db       *sql.DB
	builder  QueryBuilder
	semantic SemanticSearcher // nil disables semantic search
	ranker   *Ranker
	cfg      config.SearchConfig
	logger   *slog.Logger
}

// NewEngine creates a search engine over the read-only metadata
// connection. semantic may be nil.
func NewEngine(db *sql.DB, builder QueryBuilder, semantic SemanticSearcher, cfg config.SearchConfig, logger *slog.Logger) *Engine {
	if builder == nil {
		builder = NewSQLQueryBuilder()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		db:       db,
		builder:  builder,
		semantic: semantic,
		ranker:   NewRanker(),
		cfg:      cfg,
		logger:   logger,
	}
}

// Search runs the query and returns a ranked, paginated response.
func (e *Engine) Search(ctx context.Context, q *Query) (*Response, error) {
	start := time.Now()

	if strings.TrimSpace(q.Raw) == "" {
		return nil, scripterrors.New(scripterrors.ErrCodeInvalidQuery, "query text is empty", nil)
	}
	normalized := e.normalize(q)

	var methods []string
	var sqlResults []*Result
	total := 0

	if !normalized.OnlyBible {
		methods = append(methods, "sql")
		var err error
		sqlResults, err = e.runSQLSearch(ctx, normalized)
		if err != nil {
			return nil, err
		}
		total = e.runCount(ctx, normalized)
	}

	// HasMore reflects SQL pagination; semantic and bible results are
	// merged into the current page, not paginated separately.
	hasMore := normalized.Offset+len(sqlResults) < total

	var semResults []*Result
	if e.shouldUseSemantic(normalized) {
		// Recorded up front: an attempted method stays visible even
		// when the adapter degrades.
		methods = append(methods, "semantic")
		semResults = e.runSemantic(ctx, normalized)
	}

	var bibleResults []*Result
	if normalized.IncludeBible || normalized.OnlyBible {
		bibleResults = e.runBibleSearch(ctx, normalized)
		total += len(bibleResults)
	}

	merged := MergeResults(sqlResults, semResults, bibleResults)
	ranked := e.ranker.RankResults(merged, normalized.Raw)
	for _, res := range ranked {
		if len(res.Highlights) == 0 && res.Content != "" {
			res.Highlights = makeHighlights(res.Content, normalized.Raw)
		}
	}

	return &Response{
		Results:         ranked,
		TotalCount:      total,
		HasMore:         hasMore,
		ExecutionTimeMS: time.Since(start).Milliseconds(),
		SearchMethods:   methods,
	}, nil
}

// normalize clamps pagination and defaults the mode without mutating
// the caller's query.
func (e *Engine) normalize(q *Query) *Query {
	n := *q
	if n.Mode == "" {
		n.Mode = ModeAuto
	}
	if n.Limit <= 0 {
		n.Limit = e.cfg.DefaultLimit
	}
	if e.cfg.MaxLimit > 0 && n.Limit > e.cfg.MaxLimit {
		n.Limit = e.cfg.MaxLimit
	}
	if n.Offset < 0 {
		n.Offset = 0
	}
	return &n
}

func (e *Engine) runSQLSearch(ctx context.Context, q *Query) ([]*Result, error) {
	query, args := e.builder.BuildSearchQuery(q)
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, scripterrors.New(scripterrors.ErrCodeQueryFailed, "search query failed", err)
	}
	defer func() { _ = rows.Close() }()

	matchType := classifyMatch(q)
	var results []*Result
	for rows.Next() {
		var resultType, id, content, speaker, heading, location string
		var scriptOrder int
		if err := rows.Scan(&resultType, &id, &content, &speaker, &heading, &location, &scriptOrder); err != nil {
			return nil, scripterrors.New(scripterrors.ErrCodeQueryFailed, "cannot scan search row", err)
		}

		res := &Result{
			Type:    resultType,
			ID:      id,
			Content: content,
			Metadata: map[string]string{
				"heading":      heading,
				"location":     location,
				"script_order": strconv.Itoa(scriptOrder),
			},
		}
		if speaker != "" {
			res.Metadata["character"] = speaker
		}
		res.Metadata["match_type"] = matchType
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, scripterrors.New(scripterrors.ErrCodeQueryFailed, "search query failed", err)
	}
	return results, nil
}

// runCount returns the total SQL match count. A failed or malformed
// count degrades to 0 rather than failing the search.
func (e *Engine) runCount(ctx context.Context, q *Query) int {
	query, args := e.builder.BuildCountQuery(q)

	var total int
	if err := e.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		e.logger.Warn("count query failed", slog.String("error", err.Error()))
		return 0
	}
	if total < 0 {
		return 0
	}
	return total
}

// shouldUseSemantic applies the mode rules: strict never, fuzzy
// always, auto when the query is long enough to carry meaning.
func (e *Engine) shouldUseSemantic(q *Query) bool {
	if e.semantic == nil || q.OnlyBible {
		return false
	}
	switch q.Mode {
	case ModeStrict:
		return false
	case ModeFuzzy:
		return true
	default:
		return len(strings.Fields(q.Raw)) >= e.cfg.VectorThreshold
	}
}

// runSemantic asks for an adaptively scaled result count and degrades
// to no results on adapter failure.
func (e *Engine) runSemantic(ctx context.Context, q *Query) []*Result {
	limit := int(math.Round(float64(q.Limit) * e.cfg.VectorResultLimitFactor))
	if limit < e.cfg.VectorMinResults {
		limit = e.cfg.VectorMinResults
	}

	results, err := e.semantic.Search(ctx, q.Raw, limit)
	if err != nil {
		e.logger.Warn("semantic search degraded to sql-only",
			slog.String("query", q.Raw),
			slog.String("error", err.Error()))
		return nil
	}
	return results
}

// runBibleSearch queries bible chunks, degrading to no results on
// failure.
func (e *Engine) runBibleSearch(ctx context.Context, q *Query) []*Result {
	query, args := e.builder.BuildBibleQuery(q)
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		e.logger.Warn("bible chunk query failed", slog.String("error", err.Error()))
		return nil
	}
	defer func() { _ = rows.Close() }()

	var results []*Result
	for rows.Next() {
		var id, document, heading, content string
		var chunkIndex int
		if err := rows.Scan(&id, &document, &heading, &chunkIndex, &content); err != nil {
			e.logger.Warn("cannot scan bible chunk row", slog.String("error", err.Error()))
			return nil
		}
		results = append(results, &Result{
			Type:    ResultTypeBibleChunk,
			ID:      id,
			Content: content,
			Metadata: map[string]string{
				"document":    document,
				"heading":     heading,
				"chunk_index": strconv.Itoa(chunkIndex),
				"match_type":  "text",
			},
		})
	}
	if err := rows.Err(); err != nil {
		e.logger.Warn("bible chunk query failed", slog.String("error", err.Error()))
		return nil
	}
	return results
}

// classifyMatch labels how the query matched from the filters that
// narrowed it, by priority: dialogue, action, character, location,
// plain text.
func classifyMatch(q *Query) string {
	switch {
	case q.Dialogue != "":
		return "dialogue"
	case q.Action != "":
		return "action"
	case len(q.Characters) > 0:
		return "character"
	case len(q.Locations) > 0:
		return "location"
	}
	return "text"
}

// makeHighlights extracts a fragment of context around each query
// occurrence, capped at three fragments.
func makeHighlights(content, query string) []string {
	lowerContent := strings.ToLower(content)
	lowerQuery := strings.ToLower(query)
	if lowerQuery == "" {
		return nil
	}

	var highlights []string
	offset := 0
	for len(highlights) < 3 {
		idx := strings.Index(lowerContent[offset:], lowerQuery)
		if idx < 0 {
			break
		}
		idx += offset

		start := idx - highlightContext
		if start < 0 {
			start = 0
		}
		end := idx + len(lowerQuery) + highlightContext
		if end > len(content) {
			end = len(content)
		}
		highlights = append(highlights, strings.TrimSpace(content[start:end]))
		offset = idx + len(lowerQuery)
	}
	return highlights
}
