// =============================================================================
// 📦 测试数据工厂 - 模型原始输出
// =============================================================================
// 覆盖 lesson / story schema 常见漂移形态的原始回复文本
// =============================================================================
package fixtures

import (
	"time"

	"github.com/BaSui01/lessonpipe/llm"
)

// =============================================================================
// 🎯 lesson 输出
// =============================================================================

// ValidLesson 完全符合 lesson schema 的输出
const ValidLesson = `{"title":"Greetings","level":"beginner","summary":"Say hello in Spanish.",` +
	`"subLessons":[{"title":"Hola","content":"Use hola with anyone.",` +
	`"examples":[{"sentence":"Hola, Ana.","translation":"Hello, Ana."}]}],` +
	`"difficultyTags":["speaking"]}`

// FencedLesson 带前导说明与代码围栏，且包含信封、别名与大小写漂移
const FencedLesson = "Here is your lesson:\n```json\n" +
	`{"data":{"title":"Greetings","level":"Beginner","sections":[{"title":"Hola","body":"Say hola."}]}}` +
	"\n```"

// InvalidLevelLesson 结构完整但 level 不在枚举内，无法修复
const InvalidLevelLesson = `{"title":"Greetings","level":"expert","subLessons":[{"title":"Hola","content":"x"}]}`

// ProseOnly 不含任何 JSON
const ProseOnly = "I'm sorry, I can only describe the lesson in words: start with greetings."

// TruncatedLesson 输出在对象中途被截断
const TruncatedLesson = `{"title":"Greetings","level":"beginner","subLessons":[{"title":"Hola"`

// =============================================================================
// 📖 story 输出
// =============================================================================

// ValidStory 符合 story schema，词汇表使用 glossary 与 meaning 别名
const ValidStory = `{"title":"The Lost Cat","level":"intermediate",` +
	`"paragraphs":["Mia lost her cat.","She found it in the garden."],` +
	`"glossary":[{"word":"garden","meaning":"an area with plants"}]}`

// =============================================================================
// 🔧 RawResponse 工厂
// =============================================================================

// Response 以固定元数据包装原始文本
func Response(text string) *llm.RawResponse {
	return &llm.RawResponse{
		Text:         text,
		Provider:     "mock",
		Model:        "mock-model",
		FinishReason: "stop",
		Usage: llm.Usage{
			PromptTokens:     10,
			CompletionTokens: 20,
			TotalTokens:      30,
		},
		Latency:  10 * time.Millisecond,
		Attempts: 1,
	}
}
