// =============================================================================
// lessonpipe OpenAI-Compatible Generator
// =============================================================================
// Chat-completions generator for any OpenAI-compatible endpoint (OpenAI,
// DeepSeek, Qwen, local gateways). Requests JSON output through
// response_format; json_schema when a schema is supplied, json_object otherwise.
// =============================================================================

package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/lessonpipe/internal/tlsutil"
	"github.com/BaSui01/lessonpipe/llm"
	"github.com/BaSui01/lessonpipe/llm/providers"
	"github.com/BaSui01/lessonpipe/llm/retry"
	"github.com/BaSui01/lessonpipe/types"
	"go.uber.org/zap"
)

// Config holds the configuration for an OpenAI-compatible generator.
type Config struct {
	// ProviderName is the identifier reported in errors and logs. Defaults to "openai".
	ProviderName string

	// APIKey is the bearer token.
	APIKey string

	// BaseURL is the API root (e.g., "https://api.openai.com").
	BaseURL string

	// DefaultModel is used when the request does not name a model.
	DefaultModel string

	// Timeout is the HTTP client timeout. Defaults to 60s if zero.
	Timeout time.Duration

	// EndpointPath is the chat completions endpoint path. Defaults to "/v1/chat/completions".
	EndpointPath string

	// StrictSchema sets json_schema.strict. Strict mode rejects optional
	// properties on most providers, so it is off by default.
	StrictSchema bool
}

// Provider is an llm.Generator for OpenAI-compatible chat completions.
type Provider struct {
	Cfg    Config
	Client *http.Client
	Logger *zap.Logger
}

// New creates a new OpenAI-compatible generator with the given config.
func New(cfg Config, logger *zap.Logger) *Provider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if cfg.ProviderName == "" {
		cfg.ProviderName = "openai"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/v1/chat/completions"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		Cfg:    cfg,
		Client: tlsutil.SecureHTTPClient(timeout),
		Logger: logger.With(zap.String("component", "openaicompat"), zap.String("provider", cfg.ProviderName)),
	}
}

var _ llm.Generator = (*Provider)(nil)

// Name returns the provider name.
func (p *Provider) Name() string { return p.Cfg.ProviderName }

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaFormat struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
	Strict bool           `json:"strict"`
}

type responseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *jsonSchemaFormat `json:"json_schema,omitempty"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      chatMessage `json:"message"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage,omitempty"`
}

// ---------------------------------------------------------------------------
// Generate
// ---------------------------------------------------------------------------

func (p *Provider) buildBody(req *llm.GenerateRequest) chatRequest {
	msgs := make([]chatMessage, 0, 2)
	if req.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: req.Prompt})

	body := chatRequest{
		Model:       providers.ChooseModel(req, p.Cfg.DefaultModel),
		Messages:    msgs,
		MaxTokens:   req.Params.MaxOutputTokens,
		Temperature: req.Params.Temperature,
	}
	if req.Schema != nil {
		name := req.SchemaName
		if name == "" {
			name = "response"
		}
		body.ResponseFormat = &responseFormat{
			Type:       "json_schema",
			JSONSchema: &jsonSchemaFormat{Name: name, Schema: req.Schema, Strict: p.Cfg.StrictSchema},
		}
	} else {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return body
}

// Generate performs a single non-streaming chat completion.
func (p *Provider) Generate(ctx context.Context, req *llm.GenerateRequest) (*llm.RawResponse, error) {
	start := time.Now()
	body := p.buildBody(req)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "failed to marshal request").
			WithCause(err).WithProvider(p.Name())
	}

	endpoint := strings.TrimRight(p.Cfg.BaseURL, "/") + p.Cfg.EndpointPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "failed to create request").
			WithCause(err).WithProvider(p.Name())
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.Cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return nil, retry.Classify(err).WithProvider(p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}

	var oaResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaResp); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, fmt.Sprintf("invalid response body: %v", err)).
			WithHTTPStatus(http.StatusBadGateway).WithRetryable(true).WithProvider(p.Name())
	}
	if len(oaResp.Choices) == 0 {
		return nil, types.NewError(types.ErrUpstreamError, "response has no choices").
			WithHTTPStatus(http.StatusBadGateway).WithRetryable(true).WithProvider(p.Name())
	}

	choice := oaResp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return nil, types.NewError(types.ErrContentFiltered, "response blocked by content filter").
			WithProvider(p.Name())
	}

	model := oaResp.Model
	if model == "" {
		model = body.Model
	}
	out := &llm.RawResponse{
		Text:         choice.Message.Content,
		Provider:     p.Name(),
		Model:        model,
		FinishReason: choice.FinishReason,
		Latency:      time.Since(start),
	}
	if oaResp.Usage != nil {
		out.Usage = llm.Usage{
			PromptTokens:     oaResp.Usage.PromptTokens,
			CompletionTokens: oaResp.Usage.CompletionTokens,
			TotalTokens:      oaResp.Usage.TotalTokens,
		}
	} else {
		out.Usage = providers.EstimateUsage(model, req, out.Text)
	}

	p.Logger.Debug("completion received",
		zap.String("model", model),
		zap.String("finish_reason", choice.FinishReason),
		zap.Int("total_tokens", out.Usage.TotalTokens),
		zap.Duration("latency", out.Latency),
	)
	return out, nil
}
