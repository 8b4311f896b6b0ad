package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trieloff/scriptrag/internal/config"
	scripterrors "github.com/trieloff/scriptrag/internal/errors"
	"github.com/trieloff/scriptrag/internal/store"
)

// fakeSemantic records calls and returns canned results.
type fakeSemantic struct {
	results  []*Result
	err      error
	calls    int
	gotLimit int
}

func (f *fakeSemantic) Search(_ context.Context, _ string, limit int) ([]*Result, error) {
	f.calls++
	f.gotLimit = limit
	return f.results, f.err
}

func testSearchConfig() config.SearchConfig {
	return config.SearchConfig{
		VectorThreshold:         3,
		VectorResultLimitFactor: 2.0,
		VectorMinResults:        5,
		DefaultLimit:            10,
		MaxLimit:                100,
	}
}

// seedEngine builds an engine over an in-memory metadata store with a
// small screenplay.
func seedEngine(t *testing.T, semantic SemanticSearcher) *Engine {
	t.Helper()

	meta, err := store.NewMetadataStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = meta.Close() })

	ctx := context.Background()
	require.NoError(t, meta.SaveScenes(ctx, []*store.Scene{
		{ID: "s1", Project: "pilot", Season: 1, Episode: 1, ScriptOrder: 1,
			Heading: "INT. COFFEE SHOP - DAY",
			Location: "COFFEE SHOP", Content: "Steam rises. Coffee everywhere."},
		{ID: "s2", Project: "pilot", Season: 2, Episode: 3, ScriptOrder: 2,
			Heading: "EXT. STREET - NIGHT",
			Location: "STREET", Content: "Rain slicks the pavement."},
	}))
	require.NoError(t, meta.SaveLines(ctx, []*store.ScriptLine{
		{ID: "d1", SceneID: "s1", LineType: "dialogue", Character: "SARAH",
			Parenthetical: "exhausted", Content: "I need coffee before we talk."},
		{ID: "a1", SceneID: "s1", LineType: "action",
			Content: "She spills the coffee across the counter."},
		{ID: "d2", SceneID: "s2", LineType: "dialogue", Character: "MARCUS",
			Content: "The rain never stops here."},
	}))
	require.NoError(t, meta.SaveBibleChunks(ctx, []*store.BibleChunk{
		{ID: "b1", Project: "pilot", Document: "world", Heading: "The Coffee Trade",
			ChunkIndex: 0, Content: "Coffee is the city's lifeblood and its curse."},
	}))

	reader, err := meta.Reader()
	require.NoError(t, err)

	return NewEngine(reader, NewSQLQueryBuilder(), semantic, testSearchConfig(), nil)
}

func TestSearchEmptyQuery(t *testing.T) {
	e := seedEngine(t, nil)

	_, err := e.Search(context.Background(), &Query{Raw: "   "})
	require.Error(t, err)
	assert.Equal(t, scripterrors.ErrCodeInvalidQuery, scripterrors.GetCode(err))
}

func TestSearchSQLOnly(t *testing.T) {
	e := seedEngine(t, nil)

	resp, err := e.Search(context.Background(), &Query{Raw: "coffee"})
	require.NoError(t, err)

	assert.Equal(t, []string{"sql"}, resp.SearchMethods)
	assert.Equal(t, 3, resp.TotalCount, "one scene, one dialogue, one action")
	assert.False(t, resp.HasMore)
	require.Len(t, resp.Results, 3)

	ids := make(map[string]bool)
	for _, res := range resp.Results {
		ids[res.ID] = true
		assert.NotEmpty(t, res.Highlights)
	}
	assert.True(t, ids["s1"] && ids["d1"] && ids["a1"])
}

func TestSearchMatchTypeClassification(t *testing.T) {
	e := seedEngine(t, nil)

	tests := []struct {
		name  string
		query *Query
		want  string
	}{
		{"unfiltered", &Query{Raw: "coffee"}, "text"},
		{"dialogue filter", &Query{Raw: "coffee", Dialogue: "coffee"}, "dialogue"},
		{"action filter", &Query{Raw: "coffee", Action: "spills"}, "action"},
		{"character filter", &Query{Raw: "coffee", Characters: []string{"SARAH"}}, "character"},
		{"location filter", &Query{Raw: "coffee", Locations: []string{"COFFEE SHOP"}}, "location"},
		{"dialogue wins over character", &Query{Raw: "coffee",
			Dialogue: "coffee", Characters: []string{"SARAH"}}, "dialogue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := e.Search(context.Background(), tt.query)
			require.NoError(t, err)
			require.NotEmpty(t, resp.Results)
			for _, res := range resp.Results {
				assert.Equal(t, tt.want, res.Metadata["match_type"])
			}
		})
	}
}

func TestSearchPagination(t *testing.T) {
	e := seedEngine(t, nil)

	page1, err := e.Search(context.Background(), &Query{Raw: "coffee", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page1.Results, 2)
	assert.Equal(t, 3, page1.TotalCount)
	assert.True(t, page1.HasMore)

	page2, err := e.Search(context.Background(), &Query{Raw: "coffee", Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, page2.Results, 1)
	assert.False(t, page2.HasMore)

	beyond, err := e.Search(context.Background(), &Query{Raw: "coffee", Limit: 2, Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, beyond.Results)
	assert.False(t, beyond.HasMore)
}

func TestSearchStrictNeverSemantic(t *testing.T) {
	sem := &fakeSemantic{}
	e := seedEngine(t, sem)

	resp, err := e.Search(context.Background(), &Query{
		Raw:  "a long query with plenty of words to cross any threshold",
		Mode: ModeStrict,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, sem.calls)
	assert.Equal(t, []string{"sql"}, resp.SearchMethods)
}

func TestSearchFuzzyAlwaysSemantic(t *testing.T) {
	sem := &fakeSemantic{}
	e := seedEngine(t, sem)

	resp, err := e.Search(context.Background(), &Query{Raw: "coffee", Mode: ModeFuzzy, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, sem.calls)
	assert.Equal(t, []string{"sql", "semantic"}, resp.SearchMethods)
	assert.Equal(t, 20, sem.gotLimit, "limit scaled by the result factor")
}

func TestSearchAdaptiveLimitFloor(t *testing.T) {
	sem := &fakeSemantic{}
	e := seedEngine(t, sem)

	_, err := e.Search(context.Background(), &Query{Raw: "coffee", Mode: ModeFuzzy, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 5, sem.gotLimit, "floored at the configured minimum")
}

func TestSearchAutoThreshold(t *testing.T) {
	sem := &fakeSemantic{}
	e := seedEngine(t, sem)

	_, err := e.Search(context.Background(), &Query{Raw: "coffee now", Mode: ModeAuto})
	require.NoError(t, err)
	assert.Equal(t, 0, sem.calls, "two words stay below the threshold")

	_, err = e.Search(context.Background(), &Query{Raw: "where is the coffee", Mode: ModeAuto})
	require.NoError(t, err)
	assert.Equal(t, 1, sem.calls, "four words trigger semantic search")
}

func TestSearchSemanticDegradation(t *testing.T) {
	sem := &fakeSemantic{err: scripterrors.AdapterError("provider down", nil)}
	e := seedEngine(t, sem)

	resp, err := e.Search(context.Background(), &Query{Raw: "coffee", Mode: ModeFuzzy})
	require.NoError(t, err, "adapter failure never fails the search")

	assert.Equal(t, []string{"sql", "semantic"}, resp.SearchMethods,
		"attempted methods stay recorded after degradation")
	assert.Len(t, resp.Results, 3, "sql results survive")
}

func TestSearchSemanticMerge(t *testing.T) {
	sem := &fakeSemantic{results: []*Result{
		{Type: ResultTypeScene, ID: "s2", Content: "Rain slicks the pavement.",
			Score: 0.9, Metadata: map[string]string{"match_type": "semantic"}},
		{Type: ResultTypeScene, ID: "s1", Content: "Steam rises. Coffee everywhere.",
			Score: 0.8, Metadata: map[string]string{"match_type": "semantic"}},
	}}
	e := seedEngine(t, sem)

	resp, err := e.Search(context.Background(), &Query{Raw: "coffee", Mode: ModeFuzzy})
	require.NoError(t, err)

	ids := make(map[string]int)
	for _, res := range resp.Results {
		ids[res.ID]++
	}
	assert.Equal(t, 1, ids["s1"], "semantic duplicate merged with the sql hit")
	assert.Equal(t, 1, ids["s2"], "semantic-only hit included")
}

func TestSearchIncludeBible(t *testing.T) {
	e := seedEngine(t, nil)

	resp, err := e.Search(context.Background(), &Query{Raw: "coffee", IncludeBible: true})
	require.NoError(t, err)

	var bible *Result
	for _, res := range resp.Results {
		if res.Type == ResultTypeBibleChunk {
			bible = res
		}
	}
	require.NotNil(t, bible)
	assert.Equal(t, "b1", bible.ID)
	assert.Equal(t, "world", bible.Metadata["document"])
	assert.Equal(t, 4, resp.TotalCount, "bible chunk counted on top of sql total")
}

func TestSearchOnlyBible(t *testing.T) {
	sem := &fakeSemantic{}
	e := seedEngine(t, sem)

	resp, err := e.Search(context.Background(), &Query{Raw: "coffee", Mode: ModeFuzzy, OnlyBible: true})
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	assert.Equal(t, ResultTypeBibleChunk, resp.Results[0].Type)
	assert.Equal(t, 0, sem.calls, "bible-only search skips semantic")
	assert.Empty(t, resp.SearchMethods, "no sql method recorded when the structural pass is skipped")
}

func TestSearchProjectFilter(t *testing.T) {
	e := seedEngine(t, nil)

	resp, err := e.Search(context.Background(), &Query{Raw: "coffee", Project: "other"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Equal(t, 0, resp.TotalCount)
}

func TestSearchCharacterFilter(t *testing.T) {
	e := seedEngine(t, nil)

	resp, err := e.Search(context.Background(), &Query{Raw: "coffee", Characters: []string{"SARAH"}})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "d1", resp.Results[0].ID)
	assert.Equal(t, "SARAH", resp.Results[0].Metadata["character"])
}

func TestSearchDialogueFilter(t *testing.T) {
	e := seedEngine(t, nil)

	resp, err := e.Search(context.Background(), &Query{Raw: "coffee", Dialogue: "coffee"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1, "action and scene hits drop out")
	assert.Equal(t, "d1", resp.Results[0].ID)
}

func TestSearchParentheticalFilter(t *testing.T) {
	e := seedEngine(t, nil)

	resp, err := e.Search(context.Background(), &Query{Raw: "coffee", Parenthetical: "exhausted"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "d1", resp.Results[0].ID)
}

func TestSearchSeasonEpisodeRange(t *testing.T) {
	e := seedEngine(t, nil)

	resp, err := e.Search(context.Background(), &Query{Raw: "rain", SeasonStart: 2})
	require.NoError(t, err)
	ids := make(map[string]bool)
	for _, res := range resp.Results {
		ids[res.ID] = true
	}
	assert.True(t, ids["s2"] && ids["d2"], "season two scene and its line survive")

	resp, err = e.Search(context.Background(), &Query{Raw: "rain", SeasonEnd: 1})
	require.NoError(t, err)
	assert.Empty(t, resp.Results, "rain only falls after season one")

	resp, err = e.Search(context.Background(), &Query{Raw: "coffee", EpisodeStart: 2})
	require.NoError(t, err)
	assert.Empty(t, resp.Results, "the coffee shop scene is episode one")
}

func TestSearchRecordsExecutionTime(t *testing.T) {
	e := seedEngine(t, nil)

	resp, err := e.Search(context.Background(), &Query{Raw: "coffee"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, resp.ExecutionTimeMS, int64(0))
}
