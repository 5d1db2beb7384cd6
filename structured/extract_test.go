package structured

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractor_Strategies(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		strategy string
		json     string
	}{
		{
			name:     "bare object",
			text:     "  {\"a\":1}\n",
			strategy: StrategyDirect,
			json:     `{"a":1}`,
		},
		{
			name:     "bare array is valid JSON",
			text:     `[1,2,3]`,
			strategy: StrategyDirect,
			json:     `[1,2,3]`,
		},
		{
			name:     "prose around object",
			text:     `Sure! Here you go: {"title":"T","note":"use } and { freely"} Hope it helps.`,
			strategy: StrategyBalanced,
			json:     `{"title":"T","note":"use } and { freely"}`,
		},
		{
			name:     "escaped quote inside string",
			text:     `result: {"q":"say \"}\" now"} done`,
			strategy: StrategyBalanced,
			json:     `{"q":"say \"}\" now"}`,
		},
		{
			name:     "fenced object after prose braces",
			text:     "Use {name} placeholders.\n```json\n{\"a\":1}\n```\nThanks",
			strategy: StrategyFence,
			json:     `{"a":1}`,
		},
		{
			name:     "fenced array",
			text:     "```\n[\"x\"]\n```",
			strategy: StrategyFence,
			json:     `["x"]`,
		},
		{
			name:     "fence without closing marker",
			text:     "{oops}\n```json\n{\"a\":true}",
			strategy: StrategyFence,
			json:     `{"a":true}`,
		},
	}
	e := NewExtractor(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Extract(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.strategy, res.Strategy)
			assert.Equal(t, tt.json, res.JSON)
			assert.Equal(t, tt.json, res.Node.String())
		})
	}
}

func TestExtractor_FencedLessonFindsObject(t *testing.T) {
	text := "Here is the JSON:\n```json\n{\"lesson\":{\"level\":\"Beginner\"}}\n```"
	res, err := NewExtractor(0).Extract(text)
	require.NoError(t, err)
	assert.Equal(t, `{"lesson":{"level":"Beginner"}}`, res.JSON)
}

func TestExtractor_NoJSON(t *testing.T) {
	text := strings.Repeat("a", 150) + strings.Repeat("é", 150) + strings.Repeat("z", 150)
	_, err := NewExtractor(0).Extract(text)
	require.Error(t, err)

	var ee *ExtractionError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, 450, ee.Length)
	assert.Equal(t, DefaultSnippetChars, len([]rune(ee.Head)))
	assert.Equal(t, DefaultSnippetChars, len([]rune(ee.Tail)))
	assert.True(t, strings.HasPrefix(ee.Head, strings.Repeat("a", 150)))
	assert.True(t, strings.HasSuffix(ee.Tail, strings.Repeat("z", 150)))
	assert.Contains(t, ee.Error(), "450 characters")
}

func TestExtractor_ShortTextSnippets(t *testing.T) {
	_, err := NewExtractor(5).Extract("no json {here")
	var ee *ExtractionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "no js", ee.Head)
	assert.Equal(t, "{here", ee.Tail)

	_, err = NewExtractor(0).Extract("")
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 0, ee.Length)
}

func TestExtractor_ZeroValueUsesDefaults(t *testing.T) {
	var e Extractor
	res, err := e.Extract(`{"ok":true}`)
	require.NoError(t, err)
	assert.Equal(t, StrategyDirect, res.Strategy)
}
