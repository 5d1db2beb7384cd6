package structured

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamingForms(t *testing.T) {
	tests := []struct {
		in                         string
		snake, kebab, pascal, camel string
	}{
		{"subLessons", "sub_lessons", "sub-lessons", "SubLessons", "subLessons"},
		{"difficultyTags", "difficulty_tags", "difficulty-tags", "DifficultyTags", "difficultyTags"},
		{"subLessonID", "sub_lesson_id", "sub-lesson-id", "SubLessonId", "subLessonId"},
		{"HTTPServer", "http_server", "http-server", "HttpServer", "httpServer"},
		{"level2Tags", "level2_tags", "level2-tags", "Level2Tags", "level2Tags"},
		{"title", "title", "title", "Title", "title"},
		{"Lesson Plan", "lesson_plan", "lesson-plan", "LessonPlan", "lessonPlan"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.snake, snakeCase(tt.in))
			assert.Equal(t, tt.kebab, kebabCase(tt.in))
			assert.Equal(t, tt.pascal, pascalCase(tt.in))
			assert.Equal(t, tt.camel, lowerCamel(tt.in))
		})
	}
	assert.Equal(t, "", lowerCamel(""))
}

func TestAliasTable_AmbiguousAlternatesDropped(t *testing.T) {
	s := NewObjectSchema().
		AddProperty("subLessons", NewArraySchema(NewStringSchema())).
		AddProperty("sub_lessons_count", NewIntegerSchema()).
		AddProperty("notes", NewStringSchema()).
		AddProperty("remarks", NewStringSchema()).
		WithAliases("notes", "comments").
		WithAliases("remarks", "comments", "notes")

	table := aliasTable(s)
	assert.Equal(t, "subLessons", table["sub_lessons"])
	assert.NotContains(t, table, "comments", "claimed by two properties")
	assert.NotContains(t, table, "notes", "canonical names are never alternates")

	p, ok := s.Property("subLessons")
	require.True(t, ok)
	assert.Equal(t, []string{"sub_lessons", "sub-lessons", "SubLessons"}, alternatesFor(p, table))
}

func TestAliasTable_ExplicitAliasFirst(t *testing.T) {
	s := NewObjectSchema().
		AddProperty("subLessons", NewArraySchema(NewStringSchema())).
		WithAliases("subLessons", "sections")
	p, _ := s.Property("subLessons")
	alts := alternatesFor(p, aliasTable(s))
	require.NotEmpty(t, alts)
	assert.Equal(t, "sections", alts[0])

	// 多个别名同时出现时按查找顺序只移动第一个
	doc := mustParse(t, `{"sub_lessons":["b"],"sections":["a"]}`)
	out, steps := NewNormalizer().Normalize(doc, s)
	assert.Equal(t, `{"sub_lessons":["b"],"subLessons":["a"]}`, out.String())
	assert.Len(t, steps, 1)
}
