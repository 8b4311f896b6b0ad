package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scripterrors "github.com/trieloff/scriptrag/internal/errors"
	"github.com/trieloff/scriptrag/internal/search"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    search.SearchMode
		wantErr bool
	}{
		{"auto", search.ModeAuto, false},
		{"", search.ModeAuto, false},
		{"strict", search.ModeStrict, false},
		{"fuzzy", search.ModeFuzzy, false},
		{"FUZZY", search.ModeFuzzy, false},
		{"semantic", "", true},
	}

	for _, tt := range tests {
		t.Run("mode "+tt.input, func(t *testing.T) {
			mode, err := parseMode(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, scripterrors.ErrCodeInvalidQuery, scripterrors.GetCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, mode)
		})
	}
}

func TestSearchCmdFilters(t *testing.T) {
	cmd := newSearchCmd()

	for _, name := range []string{
		"dialogue", "action", "parenthetical",
		"season-start", "season-end", "episode-start", "episode-end",
	} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "flag --%s registered", name)
	}
}

func TestPrintResults_Empty(t *testing.T) {
	buf := &bytes.Buffer{}
	printResults(buf, &search.Response{SearchMethods: []string{"sql"}})

	assert.Contains(t, buf.String(), "No results.")
}

func TestPrintResults_Formatting(t *testing.T) {
	// Given: a response with one dialogue hit and one scene hit
	resp := &search.Response{
		Results: []*search.Result{
			{
				Type:       search.ResultTypeDialogue,
				ID:         "d1",
				Content:    "It never rains here.\nNot in June.",
				Score:      0.82,
				Metadata:   map[string]string{"character": "SARAH"},
				Highlights: []string{"It never rains here."},
			},
			{
				Type:    search.ResultTypeScene,
				ID:      "s1",
				Content: "INT. COFFEE SHOP - DAY\nA quiet morning.",
				Score:   0.64,
			},
		},
		TotalCount:      5,
		HasMore:         true,
		ExecutionTimeMS: 3,
		SearchMethods:   []string{"sql", "semantic"},
	}

	// When: printing to a plain buffer (no terminal, so no ANSI codes)
	buf := &bytes.Buffer{}
	printResults(buf, resp)

	// Then: headers, highlights, and the summary line are present
	output := buf.String()
	assert.Contains(t, output, "1. [dialogue] d1 SARAH")
	assert.Contains(t, output, "It never rains here.")
	assert.Contains(t, output, "2. [scene] s1")
	// Scene has no highlight, so its first content line is shown.
	assert.Contains(t, output, "INT. COFFEE SHOP - DAY")
	assert.NotContains(t, output, "Not in June", "Only the first content line is shown")
	assert.Contains(t, output, "2 of 5 results")
	assert.Contains(t, output, "(more available)")
	assert.Contains(t, output, "sql+semantic")
	assert.NotContains(t, output, "\033[", "Buffer output should carry no ANSI escapes")
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "one", firstLine("one\ntwo"))
	assert.Equal(t, "only", firstLine("only"))
	assert.Equal(t, "padded", firstLine("  padded  \nrest"))
}
