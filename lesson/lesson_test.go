package lesson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/lessonpipe/structured"
)

func TestSchemas_WellFormed(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			s, err := Lookup(name)
			require.NoError(t, err)
			assert.NoError(t, s.Check())
		})
	}
}

func TestSchema_Shared(t *testing.T) {
	assert.Same(t, Schema(), Schema())
	assert.Same(t, StorySchema(), StorySchema())
}

func TestLookup(t *testing.T) {
	s, err := Lookup(" Lesson ")
	require.NoError(t, err)
	assert.Equal(t, "Lesson", s.Title)

	_, err = Lookup("poem")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lesson, story")
}

func TestLesson_NormalizeValidateDecode(t *testing.T) {
	raw := `{"lesson":{
		"title":"Ordering food",
		"level":" Beginner ",
		"sub_lessons":[
			"legacy string example",
			{"title":"Greetings","body":"Say hello.","examples":[{"sentence":"Bonjour","meaning":"Hello"}]}
		],
		"tags":["Vocabulary-Heavy","not-a-real-tag"],
		"summary":null
	}}`

	doc, err := structured.Parse([]byte(raw))
	require.NoError(t, err)
	doc, steps := structured.NewNormalizer().Normalize(doc, Schema())
	assert.NotEmpty(t, steps)

	vr := structured.NewValidator().Validate(doc, Schema())
	require.True(t, vr.Valid(), "issues: %v", vr.Issues)

	l, err := structured.DecodeRecord[Lesson](vr.Record)
	require.NoError(t, err)
	assert.Equal(t, "Ordering food", l.Title)
	assert.Equal(t, LevelBeginner, l.Level)
	require.Len(t, l.SubLessons, 1)
	assert.Equal(t, "Say hello.", l.SubLessons[0].Content)
	assert.Equal(t, []Example{{Sentence: "Bonjour", Translation: "Hello"}}, l.SubLessons[0].Examples)
	assert.Equal(t, []string{"vocabulary-heavy"}, l.DifficultyTags)
	assert.Empty(t, l.Summary)
}

func TestLesson_MissingSubLessonsFails(t *testing.T) {
	doc, err := structured.Parse([]byte(`{"title":"T","level":"advanced","subLessons":[]}`))
	require.NoError(t, err)
	doc, _ = structured.NewNormalizer().Normalize(doc, Schema())

	vr := structured.NewValidator().Validate(doc, Schema())
	require.False(t, vr.Valid())
	require.Len(t, vr.Issues, 1)
	assert.Equal(t, "subLessons", vr.Issues[0].Path)
	assert.Equal(t, structured.IssueMinItems, vr.Issues[0].Code)
}

func TestStory_Decode(t *testing.T) {
	raw := `{"story":{"title":"The Fox","level":"INTERMEDIATE","paragraphs":["Once upon a time."],
		"glossary":[{"word":"fox","meaning":"a wild animal"}]}}`

	doc, err := structured.Parse([]byte(raw))
	require.NoError(t, err)
	doc, _ = structured.NewNormalizer().Normalize(doc, StorySchema())
	vr := structured.NewValidator().Validate(doc, StorySchema())
	require.True(t, vr.Valid(), "issues: %v", vr.Issues)

	var s Story
	require.NoError(t, vr.Record.Decode(&s))
	assert.Equal(t, LevelIntermediate, s.Level)
	assert.Equal(t, []Vocabulary{{Word: "fox", Definition: "a wild animal"}}, s.Vocabulary)
}

func TestSchema_JSONSchemaHasRequired(t *testing.T) {
	js := Schema().JSONSchema()
	assert.Equal(t, []string{"title", "level", "subLessons"}, js["required"])
	props, ok := js["properties"].(map[string]any)
	require.True(t, ok)
	level, ok := props["level"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, Levels, level["enum"])
}
