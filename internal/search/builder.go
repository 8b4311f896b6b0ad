package search

import (
	"strings"
)

// SQLQueryBuilder builds queries against the screenplay metadata
// schema. The engine normalizes Limit and Offset before building.
type SQLQueryBuilder struct{}

var _ QueryBuilder = (*SQLQueryBuilder)(nil)

// NewSQLQueryBuilder creates a builder for the default schema.
func NewSQLQueryBuilder() *SQLQueryBuilder {
	return &SQLQueryBuilder{}
}

// likePattern escapes LIKE wildcards in the query text and wraps it
// for substring matching.
func likePattern(raw string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(raw)
	return "%" + escaped + "%"
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// hasLineFilter reports whether any filter narrows matches to script
// lines. Such filters exclude the scene arm, which has no line columns.
func hasLineFilter(q *Query) bool {
	return len(q.Characters) > 0 || q.Dialogue != "" || q.Action != "" || q.Parenthetical != ""
}

// sceneFilters appends the scene-level filters shared by both arms.
func sceneFilters(sb *strings.Builder, args []any, q *Query) []any {
	if q.Project != "" {
		sb.WriteString(" AND s.project = ?")
		args = append(args, q.Project)
	}
	if len(q.Locations) > 0 {
		sb.WriteString(" AND s.location IN (" + placeholders(len(q.Locations)) + ")")
		for _, loc := range q.Locations {
			args = append(args, loc)
		}
	}
	if q.SeasonStart > 0 {
		sb.WriteString(" AND s.season >= ?")
		args = append(args, q.SeasonStart)
	}
	if q.SeasonEnd > 0 {
		sb.WriteString(" AND s.season <= ?")
		args = append(args, q.SeasonEnd)
	}
	if q.EpisodeStart > 0 {
		sb.WriteString(" AND s.episode >= ?")
		args = append(args, q.EpisodeStart)
	}
	if q.EpisodeEnd > 0 {
		sb.WriteString(" AND s.episode <= ?")
		args = append(args, q.EpisodeEnd)
	}
	return args
}

// sceneArm selects matching scenes. Skipped entirely when a line-level
// filter is set, since scenes carry no speaker or parenthetical.
func (b *SQLQueryBuilder) sceneArm(q *Query) (string, []any) {
	var sb strings.Builder
	args := []any{likePattern(q.Raw)}

	sb.WriteString(`SELECT 'scene' AS result_type, s.id, s.content, '' AS speaker,
		s.heading, s.location, s.script_order
		FROM scenes s
		WHERE s.content LIKE ? ESCAPE '\'`)

	args = sceneFilters(&sb, args, q)
	return sb.String(), args
}

// lineArm selects matching dialogue and action lines joined to their
// scene for heading, location, and ordering.
func (b *SQLQueryBuilder) lineArm(q *Query) (string, []any) {
	var sb strings.Builder
	args := []any{likePattern(q.Raw)}

	sb.WriteString(`SELECT l.line_type AS result_type, l.id, l.content, l.character AS speaker,
		s.heading, s.location, s.script_order
		FROM script_lines l
		JOIN scenes s ON s.id = l.scene_id
		WHERE l.content LIKE ? ESCAPE '\'`)

	args = sceneFilters(&sb, args, q)
	if len(q.Characters) > 0 {
		sb.WriteString(" AND l.character IN (" + placeholders(len(q.Characters)) + ")")
		for _, ch := range q.Characters {
			args = append(args, ch)
		}
	}
	if q.Dialogue != "" {
		sb.WriteString(` AND l.line_type = 'dialogue' AND l.content LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(q.Dialogue))
	}
	if q.Action != "" {
		sb.WriteString(` AND l.line_type = 'action' AND l.content LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(q.Action))
	}
	if q.Parenthetical != "" {
		sb.WriteString(` AND l.parenthetical LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(q.Parenthetical))
	}
	return sb.String(), args
}

func (b *SQLQueryBuilder) unionArms(q *Query) (string, []any) {
	lineSQL, lineArgs := b.lineArm(q)
	if hasLineFilter(q) {
		return lineSQL, lineArgs
	}

	sceneSQL, sceneArgs := b.sceneArm(q)
	return sceneSQL + "\nUNION ALL\n" + lineSQL, append(sceneArgs, lineArgs...)
}

// BuildSearchQuery returns the paged row query. Columns: result_type,
// id, content, speaker, heading, location, script_order.
func (b *SQLQueryBuilder) BuildSearchQuery(q *Query) (string, []any) {
	arms, args := b.unionArms(q)
	sql := "SELECT * FROM (" + arms + ")\nORDER BY script_order, id LIMIT ? OFFSET ?"
	return sql, append(args, q.Limit, q.Offset)
}

// BuildCountQuery returns the total match count for the same arms.
func (b *SQLQueryBuilder) BuildCountQuery(q *Query) (string, []any) {
	arms, args := b.unionArms(q)
	return "SELECT COUNT(*) FROM (" + arms + ")", args
}

// BuildBibleQuery returns matching bible chunks. Columns: id,
// document, heading, chunk_index, content.
func (b *SQLQueryBuilder) BuildBibleQuery(q *Query) (string, []any) {
	var sb strings.Builder
	args := []any{likePattern(q.Raw)}

	sb.WriteString(`SELECT id, document, heading, chunk_index, content
		FROM bible_chunks
		WHERE content LIKE ? ESCAPE '\'`)

	if q.Project != "" {
		sb.WriteString(" AND project = ?")
		args = append(args, q.Project)
	}
	sb.WriteString(" ORDER BY document, chunk_index LIMIT ?")
	return sb.String(), append(args, q.Limit)
}
