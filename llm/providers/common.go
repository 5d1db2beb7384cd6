package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/BaSui01/lessonpipe/llm"
	"github.com/BaSui01/lessonpipe/llm/tokenizer"
	"github.com/BaSui01/lessonpipe/types"
)

// MapHTTPError 将 HTTP 状态码映射为带有合适重试标记的 types.Error
// 这是所有提供者使用的通用错误映射函数
func MapHTTPError(status int, msg string, provider string) *types.Error {
	e := &types.Error{Message: msg, HTTPStatus: status, Provider: provider}
	switch status {
	case http.StatusUnauthorized:
		e.Code = types.ErrUnauthorized
	case http.StatusForbidden:
		e.Code = types.ErrForbidden
	case http.StatusNotFound:
		e.Code = types.ErrModelNotFound
	case http.StatusTooManyRequests:
		// 账单额度耗尽与速率限制共用 429，前者重试无意义
		if isBillingMessage(msg) {
			e.Code = types.ErrQuotaExceeded
		} else {
			e.Code = types.ErrRateLimited
			e.Retryable = true
		}
	case http.StatusBadRequest:
		if isQuotaMessage(msg) {
			e.Code = types.ErrQuotaExceeded
		} else {
			e.Code = types.ErrInvalidRequest
		}
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		e.Code = types.ErrUpstreamTimeout
		e.Retryable = true
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		e.Code = types.ErrServiceUnavailable
		e.Retryable = true
	case 529: // Model overloaded (used by some providers)
		e.Code = types.ErrModelOverloaded
		e.Retryable = true
	default:
		e.Code = types.ErrUpstreamError
		e.Retryable = status >= 500
	}
	return e
}

func isQuotaMessage(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "quota") || isBillingMessage(msg)
}

func isBillingMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "credit") || strings.Contains(lower, "billing")
}

// ReadErrorMessage 读取响应体中的错误消息
// 尝试解析 JSON 错误响应，失败则回退到原始文本
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return "failed to read error response"
	}

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Status  string `json:"status"`
		} `json:"error"`
	}

	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		kind := errResp.Error.Type
		if kind == "" {
			kind = errResp.Error.Status
		}
		if kind != "" {
			return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, kind)
		}
		return errResp.Error.Message
	}

	return strings.TrimSpace(string(data))
}

// EstimateUsage 在上游未返回用量时按模型估算 token 数
func EstimateUsage(model string, req *llm.GenerateRequest, text string) llm.Usage {
	counter := tokenizer.ForModel(model)
	prompt := tokenizer.CountOrEstimate(counter, req.System) + tokenizer.CountOrEstimate(counter, req.Prompt)
	completion := tokenizer.CountOrEstimate(counter, text)
	return llm.Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
		Estimated:        true,
	}
}

// ChooseModel 请求中的模型优先，其次是配置的默认模型
func ChooseModel(req *llm.GenerateRequest, defaultModel string) string {
	if req != nil && req.Params.Model != "" {
		return req.Params.Model
	}
	return defaultModel
}
