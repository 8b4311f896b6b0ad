package preprocess

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// transitionKeywords are standalone screenplay transitions that get
// isolated with surrounding blank lines.
var transitionKeywords = map[string]bool{
	"CUT TO:":       true,
	"FADE IN:":      true,
	"FADE OUT.":     true,
	"FADE TO:":      true,
	"DISSOLVE TO:":  true,
	"SMASH CUT TO:": true,
	"MATCH CUT TO:": true,
}

// maxCueLen is the longest trimmed line still treated as a character cue.
const maxCueLen = 30

var (
	parenInnerRe  = regexp.MustCompile(`\(\s*([^)]*?)\s*\)`)
	parenAttachRe = regexp.MustCompile(`(\S)\(`)
	sceneHeadRe   = regexp.MustCompile(`^(INT\.|EXT\.|INT/EXT\.|I/E\.)`)
)

var titleCaser = cases.Title(language.English)

// ScreenplayPreprocessor normalizes screenplay-formatted text while
// preserving its line structure. It retitles short all-caps character
// cues, tightens parenthetical spacing, isolates transitions, and
// collapses excessive blank lines.
type ScreenplayPreprocessor struct{}

var _ Preprocessor = (*ScreenplayPreprocessor)(nil)

// NewScreenplayPreprocessor creates a screenplay-aware preprocessor.
func NewScreenplayPreprocessor() *ScreenplayPreprocessor {
	return &ScreenplayPreprocessor{}
}

// Process applies screenplay normalization. Unlike the standard
// pipeline it keeps newlines intact, since scene structure carries
// meaning for downstream embedding.
func (p *ScreenplayPreprocessor) Process(text string) string {
	text = norm.NFKC.String(text)
	lines := strings.Split(text, "\n")

	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		line = normalizeParentheticals(line)
		if isCharacterCue(line) {
			line = titleCaser.String(strings.ToLower(strings.TrimSpace(line)))
		}
		out = append(out, line)
	}

	out = isolateTransitions(out)
	out = collapseBlankRuns(out)
	return strings.Join(out, "\n")
}

// normalizeParentheticals trims space inside parentheses and ensures a
// single space between a word and an opening paren.
func normalizeParentheticals(line string) string {
	line = parenInnerRe.ReplaceAllString(line, "($1)")
	return parenAttachRe.ReplaceAllString(line, "$1 (")
}

// isCharacterCue reports whether a line looks like a character name:
// short, fully uppercase, and neither a scene heading nor a transition.
func isCharacterCue(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || len(trimmed) > maxCueLen {
		return false
	}
	if sceneHeadRe.MatchString(trimmed) || transitionKeywords[trimmed] {
		return false
	}
	hasLetter := false
	for _, r := range trimmed {
		if r >= 'a' && r <= 'z' {
			return false
		}
		if r >= 'A' && r <= 'Z' {
			hasLetter = true
		}
	}
	return hasLetter
}

// isolateTransitions surrounds standalone transition lines with blank
// lines when they are not already isolated.
func isolateTransitions(lines []string) []string {
	out := make([]string, 0, len(lines)+4)
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if transitionKeywords[trimmed] {
			if len(out) > 0 && strings.TrimSpace(out[len(out)-1]) != "" {
				out = append(out, "")
			}
			out = append(out, trimmed)
			if i+1 < len(lines) && strings.TrimSpace(lines[i+1]) != "" {
				out = append(out, "")
			}
			continue
		}
		out = append(out, line)
	}
	return out
}

// collapseBlankRuns reduces runs of three or more blank lines to one.
func collapseBlankRuns(lines []string) []string {
	out := make([]string, 0, len(lines))
	blanks := 0
	flush := func() {
		if blanks >= 3 {
			out = append(out, "")
		} else {
			for i := 0; i < blanks; i++ {
				out = append(out, "")
			}
		}
		blanks = 0
	}
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blanks++
			continue
		}
		flush()
		out = append(out, line)
	}
	flush()
	return out
}
