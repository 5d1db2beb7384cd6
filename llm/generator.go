package llm

import (
	"context"
	"time"
)

// Params 模型参数
type Params struct {
	Model           string  `json:"model,omitempty"`
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"max_output_tokens,omitempty"`
}

// GenerateRequest 单次生成请求
type GenerateRequest struct {
	// Prompt 用户提示词
	Prompt string `json:"prompt"`
	// System 可选的系统指令
	System string `json:"system,omitempty"`
	// SchemaName 结构化输出的名称（OpenAI json_schema 需要）
	SchemaName string `json:"schema_name,omitempty"`
	// Schema 以 JSON Schema 表示的期望输出结构，为空时不启用 schema 约束
	Schema map[string]any `json:"schema,omitempty"`
	// Params 模型参数
	Params Params `json:"params"`
}

// Usage token 用量
type Usage struct {
	PromptTokens     int  `json:"prompt_tokens"`
	CompletionTokens int  `json:"completion_tokens"`
	TotalTokens      int  `json:"total_tokens"`
	Estimated        bool `json:"estimated,omitempty"`
}

// RawResponse 模型返回的原始文本及调用元数据
type RawResponse struct {
	Text         string        `json:"text"`
	Provider     string        `json:"provider"`
	Model        string        `json:"model"`
	FinishReason string        `json:"finish_reason,omitempty"`
	Usage        Usage         `json:"usage"`
	Latency      time.Duration `json:"latency"`
	Attempts     int           `json:"attempts"`
}

// Generator 生成调用接口
// 实现必须返回 *types.Error 分类后的错误
type Generator interface {
	Name() string
	Generate(ctx context.Context, req *GenerateRequest) (*RawResponse, error)
}

// GeneratorFunc 适配普通函数为 Generator
type GeneratorFunc func(ctx context.Context, req *GenerateRequest) (*RawResponse, error)

// Name 实现 Generator
func (f GeneratorFunc) Name() string { return "func" }

// Generate 实现 Generator
func (f GeneratorFunc) Generate(ctx context.Context, req *GenerateRequest) (*RawResponse, error) {
	return f(ctx, req)
}
