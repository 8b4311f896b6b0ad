package search

import (
	"sort"
	"strconv"
	"strings"
)

// Type weights bias composite scores toward the entity types users
// search for most. Unknown types rank below every known one.
var typeWeights = map[string]float64{
	ResultTypeScene:     1.0,
	ResultTypeDialogue:  0.9,
	ResultTypeCharacter: 0.85,
	ResultTypeAction:    0.8,
	ResultTypeLocation:  0.75,
	"object":            0.7,
}

const defaultTypeWeight = 0.5

// exactMatchBoost rewards a verbatim occurrence of the query.
const exactMatchBoost = 1.2

// Metadata field boosts, cumulative when several fields match.
const (
	characterBoost   = 0.15
	headingBoost     = 0.10
	descriptionBoost = 0.05
)

// Ranker computes composite relevance scores.
type Ranker struct{}

// NewRanker creates a ranker.
func NewRanker() *Ranker {
	return &Ranker{}
}

// Score computes the composite score for one result:
//
//	base * typeWeight * (1 + density) * exact * (1 + metadata) * recency
//
// clamped to [0, 1]. maxOrder is the highest script_order in the
// candidate set and anchors the recency band.
func (r *Ranker) Score(result *Result, query string, maxOrder int) float64 {
	base := baseScore(result)

	weight, ok := typeWeights[result.Type]
	if !ok {
		weight = defaultTypeWeight
	}

	score := base * weight
	score *= 1 + densityBoost(result.Content, query)
	if strings.Contains(strings.ToLower(result.Content), strings.ToLower(query)) {
		score *= exactMatchBoost
	}
	score *= 1 + metadataBoost(result.Metadata, query)
	score *= recencyFactor(result.Metadata, maxOrder)

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

// baseScore reads the pre-ranking score. Semantic results carry their
// similarity; unscored SQL matches get a neutral 0.5 so the boosts can
// differentiate them below the clamp. The first ranking pass records
// the base in metadata so reranking the same results is idempotent.
func baseScore(result *Result) float64 {
	if s, ok := result.Metadata["base_score"]; ok {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v
		}
	}

	base := result.Score
	if base <= 0 {
		base = 0.5
	}
	if result.Metadata == nil {
		result.Metadata = make(map[string]string)
	}
	result.Metadata["base_score"] = strconv.FormatFloat(base, 'f', -1, 64)
	return base
}

// densityBoost rewards repeated occurrences of the query's words
// relative to content length, capped at 0.5 so short texts cannot
// dominate. Each query word counts independently, so multi-word
// queries score even when their words appear apart.
func densityBoost(content, query string) float64 {
	words := len(strings.Fields(content))
	if words == 0 || query == "" {
		return 0
	}
	lower := strings.ToLower(content)
	occurrences := 0
	for _, w := range strings.Fields(strings.ToLower(query)) {
		occurrences += strings.Count(lower, w)
	}
	boost := 5 * float64(occurrences) / float64(words)
	if boost > 0.5 {
		boost = 0.5
	}
	return boost
}

// metadataBoost rewards query matches in structured fields.
func metadataBoost(metadata map[string]string, query string) float64 {
	if len(metadata) == 0 || query == "" {
		return 0
	}
	lower := strings.ToLower(query)

	var boost float64
	if strings.Contains(strings.ToLower(metadata["character"]), lower) && metadata["character"] != "" {
		boost += characterBoost
	}
	if strings.Contains(strings.ToLower(metadata["heading"]), lower) && metadata["heading"] != "" {
		boost += headingBoost
	}
	if strings.Contains(strings.ToLower(metadata["description"]), lower) && metadata["description"] != "" {
		boost += descriptionBoost
	}
	return boost
}

// recencyFactor maps script_order into [0.9, 1.0], favoring earlier
// scenes, without overwhelming relevance. Results without an order
// (bible chunks) are not penalized.
func recencyFactor(metadata map[string]string, maxOrder int) float64 {
	if maxOrder <= 0 {
		return 1.0
	}
	s, ok := metadata["script_order"]
	if !ok {
		return 1.0
	}
	order, err := strconv.Atoi(s)
	if err != nil || order < 0 {
		return 1.0
	}
	return 1.0 - 0.1*float64(order)/float64(maxOrder)
}

// RankResults scores, deduplicates, and sorts results by descending
// score. Duplicate (type, id) pairs keep their best-scoring instance.
// Ranking already-ranked results leaves them unchanged.
func (r *Ranker) RankResults(results []*Result, query string) []*Result {
	maxOrder := 0
	for _, res := range results {
		if s, ok := res.Metadata["script_order"]; ok {
			if order, err := strconv.Atoi(s); err == nil && order > maxOrder {
				maxOrder = order
			}
		}
	}

	type key struct{ typ, id string }
	best := make(map[key]*Result, len(results))
	order := make([]key, 0, len(results))

	for _, res := range results {
		res.Score = r.Score(res, query, maxOrder)
		k := key{res.Type, res.ID}
		if prev, ok := best[k]; ok {
			if res.Score > prev.Score {
				best[k] = res
			}
			continue
		}
		best[k] = res
		order = append(order, k)
	}

	ranked := make([]*Result, 0, len(best))
	for _, k := range order {
		ranked = append(ranked, best[k])
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ID < ranked[j].ID
	})
	return ranked
}

// FilterResults keeps results scoring at or above minScore.
func FilterResults(results []*Result, minScore float64) []*Result {
	filtered := make([]*Result, 0, len(results))
	for _, res := range results {
		if res.Score >= minScore {
			filtered = append(filtered, res)
		}
	}
	return filtered
}

// GroupResultsByType buckets results by their type.
func GroupResultsByType(results []*Result) map[string][]*Result {
	groups := make(map[string][]*Result)
	for _, res := range results {
		groups[res.Type] = append(groups[res.Type], res)
	}
	return groups
}

// MergeResults combines result lists, deduplicating by (type, id) and
// keeping the higher-scoring instance. Input order is preserved for
// first appearances.
func MergeResults(lists ...[]*Result) []*Result {
	type key struct{ typ, id string }
	seen := make(map[key]int)
	var merged []*Result

	for _, list := range lists {
		for _, res := range list {
			k := key{res.Type, res.ID}
			if idx, ok := seen[k]; ok {
				if res.Score > merged[idx].Score {
					merged[idx] = res
				}
				continue
			}
			seen[k] = len(merged)
			merged = append(merged, res)
		}
	}
	return merged
}
