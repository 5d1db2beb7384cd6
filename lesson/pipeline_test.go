package lesson

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/lessonpipe/structured"
	"github.com/BaSui01/lessonpipe/testutil"
	"github.com/BaSui01/lessonpipe/testutil/fixtures"
	"github.com/BaSui01/lessonpipe/testutil/mocks"
	"github.com/BaSui01/lessonpipe/types"
)

func TestPipeline_LessonFixtures(t *testing.T) {
	tests := []struct {
		name      string
		replies   []string
		wantKind  types.FailureKind
		wantCalls int
		check     func(t *testing.T, l *Lesson, res *structured.Result)
	}{
		{
			name:      "valid",
			replies:   []string{fixtures.ValidLesson},
			wantCalls: 1,
			check: func(t *testing.T, l *Lesson, res *structured.Result) {
				assert.Equal(t, structured.StrategyDirect, res.Strategy)
				assert.Empty(t, res.Steps)
				assert.Equal(t, []string{"speaking"}, l.DifficultyTags)
			},
		},
		{
			name:      "fenced drift",
			replies:   []string{fixtures.FencedLesson},
			wantCalls: 1,
			check: func(t *testing.T, l *Lesson, res *structured.Result) {
				assert.NotEmpty(t, res.Steps)
				assert.Equal(t, LevelBeginner, l.Level)
				require.Len(t, l.SubLessons, 1)
				assert.Equal(t, "Say hola.", l.SubLessons[0].Content)
			},
		},
		{
			name:      "truncated then valid",
			replies:   []string{fixtures.TruncatedLesson, fixtures.ValidLesson},
			wantCalls: 2,
			check: func(t *testing.T, l *Lesson, res *structured.Result) {
				assert.Equal(t, 2, res.Attempts)
				assert.Equal(t, "Greetings", l.Title)
			},
		},
		{
			name:      "prose only",
			replies:   []string{fixtures.ProseOnly, fixtures.ProseOnly},
			wantKind:  types.FailureExtraction,
			wantCalls: 2,
		},
		{
			name:      "invalid level",
			replies:   []string{fixtures.InvalidLevelLesson},
			wantKind:  types.FailureValidation,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := mocks.NewMockGenerator().WithResponses(tt.replies...)
			p := structured.NewPipeline(gen)

			l, res, err := structured.RunTyped[Lesson](testutil.TestContext(t), p, &structured.Request{
				Prompt: "Teach greetings in Spanish.",
				Schema: Schema(),
			})
			assert.Equal(t, tt.wantCalls, gen.CallCount())

			if tt.wantKind != "" {
				var f *types.Failure
				require.True(t, errors.As(err, &f), "got %v", err)
				assert.Equal(t, tt.wantKind, f.Kind)
				return
			}
			require.NoError(t, err)
			tt.check(t, l, res)
		})
	}
}

func TestPipeline_StoryFixture(t *testing.T) {
	gen := mocks.NewMockGenerator().WithResponse(fixtures.ValidStory)
	p := structured.NewPipeline(gen)

	s, _, err := structured.RunTyped[Story](context.Background(), p, &structured.Request{
		Prompt: "A short story about a cat.",
		Schema: StorySchema(),
	})
	require.NoError(t, err)
	assert.Equal(t, LevelIntermediate, s.Level)
	assert.Len(t, s.Paragraphs, 2)
	assert.Equal(t, []Vocabulary{{Word: "garden", Definition: "an area with plants"}}, s.Vocabulary)
}
