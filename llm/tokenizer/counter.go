package tokenizer

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Counter 计数接口
type Counter interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// Name 返回计数器名称.
	Name() string
}

// ForModel 按模型名称选择计数器
func ForModel(model string) Counter {
	for _, p := range tiktokenPrefixes {
		if strings.HasPrefix(model, p.prefix) {
			return NewTiktokenCounter(p.encoding)
		}
	}
	return NewEstimator()
}

// CountOrEstimate 计数失败时回退到估算器
func CountOrEstimate(c Counter, text string) int {
	n, err := c.CountTokens(text)
	if err != nil {
		n, _ = NewEstimator().CountTokens(text)
	}
	return n
}

// tiktokenPrefixes 模型前缀到 tiktoken 编码，按匹配优先级排列
var tiktokenPrefixes = []struct {
	prefix   string
	encoding string
}{
	{"gpt-4o", "o200k_base"},
	{"gpt-4.1", "o200k_base"},
	{"o1", "o200k_base"},
	{"o3", "o200k_base"},
	{"gpt-4", "cl100k_base"},
	{"gpt-3.5-turbo", "cl100k_base"},
}

// =============================================================================
// tiktoken
// =============================================================================

// TiktokenCounter 基于 tiktoken 的精确计数
type TiktokenCounter struct {
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
}

// NewTiktokenCounter 创建计数器，编码在首次使用时加载
func NewTiktokenCounter(encoding string) *TiktokenCounter {
	return &TiktokenCounter{encoding: encoding}
}

// init 延迟初始化编码（首次使用时可能下载 BPE 数据）
func (t *TiktokenCounter) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *TiktokenCounter) CountTokens(text string) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

func (t *TiktokenCounter) Name() string {
	return "tiktoken[" + t.encoding + "]"
}

// =============================================================================
// 估算器
// =============================================================================

// Estimator 字符数估算器
// 汉字与假名约 1.5 字符/token，其他字符约 4 字符/token
type Estimator struct{}

// NewEstimator 创建估算器
func NewEstimator() *Estimator { return &Estimator{} }

func (Estimator) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}

	total := utf8.RuneCountInString(text)
	wide := 0
	for _, r := range text {
		if isWide(r) {
			wide++
		}
	}

	estimated := int(float64(wide)/1.5 + float64(total-wide)/4.0)
	if estimated == 0 {
		estimated = 1
	}
	return estimated, nil
}

func (Estimator) Name() string { return "estimator" }

// isWide 判断是否为汉字、假名或全角字符
func isWide(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) || // CJK Unified Ideographs
		(r >= 0x3400 && r <= 0x4DBF) || // CJK Extension A
		(r >= 0x3040 && r <= 0x30FF) || // Hiragana + Katakana
		(r >= 0xF900 && r <= 0xFAFF) || // CJK Compatibility Ideographs
		(r >= 0x3000 && r <= 0x303F) || // CJK Symbols and Punctuation
		(r >= 0xFF00 && r <= 0xFFEF) // Halfwidth and Fullwidth Forms
}
