package lesson

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/BaSui01/lessonpipe/structured"
)

// Level 课程难度
type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
)

// Levels 按难度递增排列
var Levels = []string{string(LevelBeginner), string(LevelIntermediate), string(LevelAdvanced)}

// DifficultyTags 允许的难度标签
var DifficultyTags = []string{
	"vocabulary-heavy",
	"grammar-focus",
	"listening",
	"speaking",
	"reading",
	"writing",
	"cultural-context",
	"idioms",
}

// =============================================================================
// 📘 Lesson
// =============================================================================

// Lesson is a generated language lesson.
type Lesson struct {
	Title          string      `json:"title"`
	Level          Level       `json:"level"`
	Summary        string      `json:"summary,omitempty"`
	SubLessons     []SubLesson `json:"subLessons"`
	DifficultyTags []string    `json:"difficultyTags,omitempty"`
}

// SubLesson is one section of a Lesson.
type SubLesson struct {
	Title    string    `json:"title"`
	Content  string    `json:"content"`
	Examples []Example `json:"examples,omitempty"`
}

// Example is a sentence with its translation.
type Example struct {
	Sentence    string `json:"sentence"`
	Translation string `json:"translation,omitempty"`
}

// Schema returns the shared Lesson schema. Callers must not modify it.
func Schema() *structured.Schema { return lessonSchema() }

var lessonSchema = sync.OnceValue(func() *structured.Schema {
	example := structured.NewObjectSchema().
		WithTitle("Example").
		WithPrimaryKey("sentence").
		AddProperty("sentence", structured.NewStringSchema().WithMinLength(1)).
		AddProperty("translation", structured.NewStringSchema()).
		AddRequired("sentence").
		WithAliases("translation", "meaning")

	sub := structured.NewObjectSchema().
		WithTitle("SubLesson").
		AddProperty("title", structured.NewStringSchema().WithMinLength(1)).
		AddProperty("content", structured.NewStringSchema().WithMinLength(1)).
		AddProperty("examples", structured.NewArraySchema(example)).
		AddRequired("title", "content").
		WithAliases("content", "body", "text")

	return structured.NewObjectSchema().
		WithTitle("Lesson").
		WithDescription("A language lesson split into ordered sub-lessons.").
		WithWrappers("data", "result").
		AddProperty("title", structured.NewStringSchema().WithMinLength(1).WithMaxLength(200)).
		AddProperty("level", structured.NewEnumSchema(Levels...)).
		AddProperty("summary", structured.NewStringSchema()).
		AddProperty("subLessons", structured.NewArraySchema(sub).WithMinItems(1)).
		AddProperty("difficultyTags", structured.NewArraySchema(structured.NewEnumSchema(DifficultyTags...))).
		AddRequired("title", "level", "subLessons").
		WithAliases("subLessons", "sections", "lessons").
		WithAliases("difficultyTags", "tags")
})

// =============================================================================
// 📖 Story
// =============================================================================

// Story is a short graded reader.
type Story struct {
	Title      string       `json:"title"`
	Level      Level        `json:"level"`
	Paragraphs []string     `json:"paragraphs"`
	Vocabulary []Vocabulary `json:"vocabulary,omitempty"`
	Moral      string       `json:"moral,omitempty"`
}

// Vocabulary is a glossary entry of a Story.
type Vocabulary struct {
	Word       string `json:"word"`
	Definition string `json:"definition,omitempty"`
}

// StorySchema returns the shared Story schema. Callers must not modify it.
func StorySchema() *structured.Schema { return storySchema() }

var storySchema = sync.OnceValue(func() *structured.Schema {
	vocab := structured.NewObjectSchema().
		WithTitle("Vocabulary").
		WithPrimaryKey("word").
		AddProperty("word", structured.NewStringSchema().WithMinLength(1)).
		AddProperty("definition", structured.NewStringSchema()).
		AddRequired("word").
		WithAliases("definition", "meaning")

	return structured.NewObjectSchema().
		WithTitle("Story").
		WithWrappers("data", "result").
		AddProperty("title", structured.NewStringSchema().WithMinLength(1)).
		AddProperty("level", structured.NewEnumSchema(Levels...)).
		AddProperty("paragraphs", structured.NewArraySchema(structured.NewStringSchema().WithMinLength(1)).WithMinItems(1)).
		AddProperty("vocabulary", structured.NewArraySchema(vocab)).
		AddProperty("moral", structured.NewStringSchema()).
		AddRequired("title", "level", "paragraphs").
		WithAliases("vocabulary", "glossary", "words")
})

// =============================================================================
// 🔎 查找
// =============================================================================

var registry = map[string]func() *structured.Schema{
	"lesson": Schema,
	"story":  StorySchema,
}

// Lookup returns a registered schema by case-insensitive name.
func Lookup(name string) (*structured.Schema, error) {
	fn, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown schema %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return fn(), nil
}

// Names lists registered schema names.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
