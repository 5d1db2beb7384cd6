package gemini

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BaSui01/lessonpipe/internal/tlsutil"
	"github.com/BaSui01/lessonpipe/llm"
	"github.com/BaSui01/lessonpipe/llm/providers"
	"github.com/BaSui01/lessonpipe/llm/retry"
	"github.com/BaSui01/lessonpipe/types"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// Config Gemini 生成器配置
type Config struct {
	APIKey  string
	BaseURL string // 为空时使用 SDK 默认地址
	Model   string
	Timeout time.Duration
}

// Provider 基于 google.golang.org/genai 的 Gemini 生成器
// 1. 使用 responseMimeType=application/json 请求 JSON 输出
// 2. 有 schema 时附带 responseSchema 做 schema 引导生成
// 3. genai.APIError 按 HTTP 状态码归类
type Provider struct {
	cfg    Config
	client *genai.Client
	logger *zap.Logger
}

// New 创建 Gemini 生成器
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: tlsutil.SecureHTTPClient(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Provider{
		cfg:    cfg,
		client: client,
		logger: logger.With(zap.String("component", "gemini")),
	}, nil
}

var _ llm.Generator = (*Provider)(nil)

func (p *Provider) Name() string { return "gemini" }

// Generate 调用 generateContent
func (p *Provider) Generate(ctx context.Context, req *llm.GenerateRequest) (*llm.RawResponse, error) {
	start := time.Now()
	model := providers.ChooseModel(req, p.cfg.Model)

	temp := float32(req.Params.Temperature)
	genCfg := &genai.GenerateContentConfig{
		Temperature:      &temp,
		ResponseMIMEType: "application/json",
	}
	if req.Params.MaxOutputTokens > 0 {
		genCfg.MaxOutputTokens = int32(req.Params.MaxOutputTokens)
	}
	if req.System != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Schema != nil {
		genCfg.ResponseSchema = toSchema(req.Schema)
	}

	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, genCfg)
	if err != nil {
		return nil, p.mapError(err)
	}

	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return nil, types.NewError(types.ErrContentFiltered,
				fmt.Sprintf("prompt blocked: %s", resp.PromptFeedback.BlockReason)).WithProvider(p.Name())
		}
		return nil, types.NewError(types.ErrUpstreamError, "response has no candidates").
			WithRetryable(true).WithProvider(p.Name())
	}

	finish := string(resp.Candidates[0].FinishReason)
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return nil, types.NewError(types.ErrContentFiltered, "response blocked by safety filter").
			WithProvider(p.Name())
	}

	out := &llm.RawResponse{
		Text:         resp.Text(),
		Provider:     p.Name(),
		Model:        model,
		FinishReason: finish,
		Latency:      time.Since(start),
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if u := resp.UsageMetadata; u != nil && u.TotalTokenCount > 0 {
		out.Usage = llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	} else {
		out.Usage = providers.EstimateUsage(model, req, out.Text)
	}

	p.logger.Debug("generateContent completed",
		zap.String("model", out.Model),
		zap.String("finish_reason", finish),
		zap.Int("total_tokens", out.Usage.TotalTokens),
		zap.Duration("latency", out.Latency),
	)
	return out, nil
}

// mapError 归类 SDK 错误
func (p *Provider) mapError(err error) *types.Error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return providers.MapHTTPError(apiErr.Code, apiErr.Message, p.Name()).WithCause(err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return providers.MapHTTPError(apiErrPtr.Code, apiErrPtr.Message, p.Name()).WithCause(err)
	}
	return retry.Classify(err).WithProvider(p.Name())
}

// =============================================================================
// JSON Schema → genai.Schema
// =============================================================================

// toSchema 将 JSON Schema 子集转换为 genai.Schema
// 支持 type/properties/required/items/enum/description/min*/max*
func toSchema(m map[string]any) *genai.Schema {
	if m == nil {
		return nil
	}
	s := &genai.Schema{}

	if t, ok := m["type"].(string); ok {
		s.Type = genai.Type(strings.ToUpper(t))
	}
	if d, ok := m["description"].(string); ok {
		s.Description = d
	}
	s.Enum = toStrings(m["enum"])
	s.Required = toStrings(m["required"])

	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if sub, ok := raw.(map[string]any); ok {
				s.Properties[name] = toSchema(sub)
			}
		}
		s.PropertyOrdering = propertyOrder(m, props)
	}
	if items, ok := m["items"].(map[string]any); ok {
		s.Items = toSchema(items)
	}

	s.MinItems = toInt64(m["minItems"])
	s.MaxItems = toInt64(m["maxItems"])
	s.MinLength = toInt64(m["minLength"])
	s.MaxLength = toInt64(m["maxLength"])
	s.Minimum = toFloat64(m["minimum"])
	s.Maximum = toFloat64(m["maximum"])
	return s
}

// propertyOrder 优先使用显式的 propertyOrdering，否则按键名排序
func propertyOrder(m map[string]any, props map[string]any) []string {
	if order := toStrings(m["propertyOrdering"]); len(order) > 0 {
		return order
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func toStrings(v any) []string {
	switch vv := v.(type) {
	case []string:
		return append([]string(nil), vv...)
	case []any:
		out := make([]string, 0, len(vv))
		for _, x := range vv {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func toInt64(v any) *int64 {
	var n int64
	switch vv := v.(type) {
	case int:
		n = int64(vv)
	case int64:
		n = vv
	case float64:
		n = int64(vv)
	default:
		return nil
	}
	return &n
}

func toFloat64(v any) *float64 {
	var f float64
	switch vv := v.(type) {
	case int:
		f = float64(vv)
	case int64:
		f = float64(vv)
	case float64:
		f = vv
	default:
		return nil
	}
	return &f
}
