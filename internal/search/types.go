// Package search implements hybrid screenplay search: SQL text search
// over scenes and lines, optional semantic search over embeddings, and
// composite ranking of the merged results.
package search

// SearchMode controls whether semantic search augments SQL search.
type SearchMode string

const (
	// ModeAuto enables semantic search for long queries only.
	ModeAuto SearchMode = "auto"

	// ModeStrict never runs semantic search.
	ModeStrict SearchMode = "strict"

	// ModeFuzzy always runs semantic search.
	ModeFuzzy SearchMode = "fuzzy"
)

// Result types. Scene-level entities come from the scenes table,
// dialogue and action from script lines, bible chunks from reference
// documents.
const (
	ResultTypeScene      = "scene"
	ResultTypeDialogue   = "dialogue"
	ResultTypeAction     = "action"
	ResultTypeCharacter  = "character"
	ResultTypeLocation   = "location"
	ResultTypeBibleChunk = "bible_chunk"
)

// Query is one search request.
type Query struct {
	// Raw is the user's query text.
	Raw string

	// Mode selects semantic search behavior (default: ModeAuto).
	Mode SearchMode

	// Project restricts results to one project when set.
	Project string

	// Characters restricts dialogue results to these speakers.
	Characters []string

	// Locations restricts results to scenes at these locations.
	Locations []string

	// Dialogue restricts matches to dialogue lines containing this text.
	Dialogue string

	// Action restricts matches to action lines containing this text.
	Action string

	// Parenthetical restricts line matches by parenthetical content.
	Parenthetical string

	// SeasonStart and SeasonEnd bound the season range; zero means
	// unbounded on that side. EpisodeStart and EpisodeEnd bound the
	// episode range the same way.
	SeasonStart  int
	SeasonEnd    int
	EpisodeStart int
	EpisodeEnd   int

	// Limit is the page size (0 means the configured default).
	Limit int

	// Offset is the pagination offset.
	Offset int

	// IncludeBible adds bible chunk results to the response.
	IncludeBible bool

	// OnlyBible searches bible chunks exclusively.
	OnlyBible bool
}

// Result is a single ranked hit.
type Result struct {
	// Type is one of the ResultType constants.
	Type string

	// ID is the entity's primary key.
	ID string

	// Content is the matched text.
	Content string

	// Score is the composite relevance score (0-1).
	Score float64

	// Metadata carries entity context: heading, location, character,
	// script_order, match_type.
	Metadata map[string]string

	// Highlights are content fragments around query matches.
	Highlights []string
}

// Response is a completed search.
type Response struct {
	// Results are ranked hits for the requested page.
	Results []*Result

	// TotalCount is the total number of SQL matches before paging.
	TotalCount int

	// HasMore reports whether another page exists.
	HasMore bool

	// ExecutionTimeMS is the wall-clock search duration.
	ExecutionTimeMS int64

	// SearchMethods lists the methods attempted, in order. A method is
	// recorded when attempted, even if it later degraded.
	SearchMethods []string
}

// QueryBuilder produces the SQL for a query. Implementations own the
// schema knowledge; the engine only executes and scans.
type QueryBuilder interface {
	// BuildSearchQuery returns the paged row query and its arguments.
	BuildSearchQuery(q *Query) (string, []any)

	// BuildCountQuery returns the total-count query and its arguments.
	BuildCountQuery(q *Query) (string, []any)

	// BuildBibleQuery returns the bible chunk query and its arguments.
	BuildBibleQuery(q *Query) (string, []any)
}
