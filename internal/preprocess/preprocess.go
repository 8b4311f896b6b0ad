// Package preprocess normalizes text before embedding generation. It
// provides a generic step-driven pipeline and a screenplay-aware
// specialization for scene content.
package preprocess

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Step identifies one text transformation. Steps run in exactly the
// order the caller configures; the pipeline never reorders them.
type Step string

const (
	StepLowercase             Step = "lowercase"
	StepRemovePunctuation     Step = "remove_punctuation"
	StepRemoveExtraWhitespace Step = "remove_extra_whitespace"
	StepNormalizeUnicode      Step = "normalize_unicode"
	StepRemoveURLs            Step = "remove_urls"
	StepRemoveEmails          Step = "remove_emails"
	StepRemoveNumbers         Step = "remove_numbers"
	StepTruncate              Step = "truncate"
	StepExpandContractions    Step = "expand_contractions"
)

// DefaultSteps is the step sequence used when none is configured.
var DefaultSteps = []Step{StepRemoveExtraWhitespace, StepNormalizeUnicode}

// DefaultMaxLength bounds StepTruncate output when unconfigured.
const DefaultMaxLength = 8000

// ellipsis is appended by StepTruncate, only when truncation occurred.
const ellipsis = "..."

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	urlRe        = regexp.MustCompile(`(?i)\bhttps?://\S+|\bwww\.\S+`)
	emailRe      = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	numberRe     = regexp.MustCompile(`\d+`)
)

// contractions is the fixed expansion table for StepExpandContractions.
// Matching is case-insensitive; replacements are lowercase.
var contractions = map[string]string{
	"can't":     "cannot",
	"won't":     "will not",
	"shan't":    "shall not",
	"n't":       " not",
	"i'm":       "i am",
	"it's":      "it is",
	"that's":    "that is",
	"there's":   "there is",
	"let's":     "let us",
	"'re":       " are",
	"'ve":       " have",
	"'ll":       " will",
	"'d":        " would",
	"who's":     "who is",
	"what's":    "what is",
	"where's":   "where is",
	"y'all":     "you all",
	"o'clock":   "of the clock",
	"could've":  "could have",
	"should've": "should have",
	"would've":  "would have",
}

// contractionOrder applies whole-word forms before suffix forms so that
// "can't" expands to "cannot" rather than "ca not".
var contractionOrder = []string{
	"can't", "won't", "shan't", "i'm", "it's", "that's", "there's",
	"let's", "who's", "what's", "where's", "y'all", "o'clock",
	"could've", "should've", "would've",
	"n't", "'re", "'ve", "'ll", "'d",
}

// suffixContractions attach to a preceding word, so they must not be
// anchored on a leading word boundary.
var suffixContractions = map[string]bool{
	"n't": true, "'re": true, "'ve": true, "'ll": true, "'d": true,
}

var contractionRes = func() map[string]*regexp.Regexp {
	res := make(map[string]*regexp.Regexp, len(contractionOrder))
	for _, c := range contractionOrder {
		pattern := regexp.QuoteMeta(c) + `\b`
		if !suffixContractions[c] {
			pattern = `\b` + pattern
		}
		res[c] = regexp.MustCompile(`(?i)` + pattern)
	}
	return res
}()

// Preprocessor transforms raw text into embedding input.
type Preprocessor interface {
	Process(text string) string
}

// Options configures a StandardPreprocessor.
type Options struct {
	// Steps is the ordered transformation sequence. Nil means DefaultSteps.
	Steps []Step

	// MaxLength bounds StepTruncate output, ellipsis included.
	MaxLength int
}

// StandardPreprocessor applies a configured sequence of steps.
type StandardPreprocessor struct {
	steps     []Step
	maxLength int
}

var _ Preprocessor = (*StandardPreprocessor)(nil)

// NewStandardPreprocessor creates a preprocessor with the given options.
func NewStandardPreprocessor(opts Options) *StandardPreprocessor {
	steps := opts.Steps
	if steps == nil {
		steps = DefaultSteps
	}
	maxLength := opts.MaxLength
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &StandardPreprocessor{steps: steps, maxLength: maxLength}
}

// Steps returns the configured step sequence.
func (p *StandardPreprocessor) Steps() []Step {
	return p.steps
}

// Process applies the configured steps in order.
func (p *StandardPreprocessor) Process(text string) string {
	for _, step := range p.steps {
		text = applyStep(step, text, p.maxLength)
	}
	return text
}

// applyStep dispatches one step. Unknown steps are ignored so that
// config typos degrade instead of panicking.
func applyStep(step Step, text string, maxLength int) string {
	switch step {
	case StepLowercase:
		return strings.ToLower(text)
	case StepRemovePunctuation:
		return removePunctuation(text)
	case StepRemoveExtraWhitespace:
		return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
	case StepNormalizeUnicode:
		return norm.NFKC.String(text)
	case StepRemoveURLs:
		return urlRe.ReplaceAllString(text, "")
	case StepRemoveEmails:
		return emailRe.ReplaceAllString(text, "")
	case StepRemoveNumbers:
		return numberRe.ReplaceAllString(text, "")
	case StepTruncate:
		return truncate(text, maxLength)
	case StepExpandContractions:
		return expandContractions(text)
	default:
		return text
	}
}

func removePunctuation(text string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return r
	}, text)
}

// truncate cuts text to maxLength runes, appending the ellipsis marker
// only when truncation actually occurred.
func truncate(text string, maxLength int) string {
	runes := []rune(text)
	if len(runes) <= maxLength {
		return text
	}
	if maxLength <= len(ellipsis) {
		return string(runes[:maxLength])
	}
	return string(runes[:maxLength-len(ellipsis)]) + ellipsis
}

func expandContractions(text string) string {
	for _, c := range contractionOrder {
		text = contractionRes[c].ReplaceAllString(text, contractions[c])
	}
	return text
}
