package structured

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultSnippetChars is how many characters of the raw text an
// ExtractionError keeps from each end.
const DefaultSnippetChars = 200

// Extraction strategy names, in evaluation order.
const (
	StrategyDirect   = "direct"
	StrategyBalanced = "balanced"
	StrategyFence    = "fence"
)

// ExtractResult is a JSON document isolated from raw model text.
type ExtractResult struct {
	JSON     string `json:"json"`
	Strategy string `json:"strategy"`
	Node     *Node  `json:"-"`
}

// ExtractionError reports that no parseable JSON document was found.
type ExtractionError struct {
	Head   string `json:"head"`
	Tail   string `json:"tail"`
	Length int    `json:"length"`
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	return fmt.Sprintf("no JSON document found in %d characters of model output", e.Length)
}

// strategy is one extraction attempt. ok is false when it does not apply or fails.
type strategy struct {
	name string
	fn   func(text string) (string, *Node, bool)
}

// Extractor isolates a single JSON document from surrounding prose and
// code-fence markers.
type Extractor struct {
	SnippetChars int
	strategies   []strategy
}

// NewExtractor creates an Extractor with the default strategy order:
// direct, balanced, fence.
func NewExtractor(snippetChars int) *Extractor {
	if snippetChars <= 0 {
		snippetChars = DefaultSnippetChars
	}
	return &Extractor{
		SnippetChars: snippetChars,
		strategies: []strategy{
			{StrategyDirect, extractDirect},
			{StrategyBalanced, extractBalanced},
			{StrategyFence, extractFence},
		},
	}
}

// Extract returns the first successful strategy's document.
func (e *Extractor) Extract(text string) (*ExtractResult, error) {
	strategies := e.strategies
	if len(strategies) == 0 {
		strategies = NewExtractor(e.SnippetChars).strategies
	}
	for _, s := range strategies {
		if raw, node, ok := s.fn(text); ok {
			return &ExtractResult{JSON: raw, Strategy: s.name, Node: node}, nil
		}
	}
	return nil, e.extractionError(text)
}

func (e *Extractor) extractionError(text string) *ExtractionError {
	n := e.SnippetChars
	if n <= 0 {
		n = DefaultSnippetChars
	}
	return &ExtractionError{
		Head:   headRunes(text, n),
		Tail:   tailRunes(text, n),
		Length: utf8.RuneCountInString(text),
	}
}

// extractDirect parses the whole trimmed text.
func extractDirect(text string) (string, *Node, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", nil, false
	}
	node, err := Parse([]byte(trimmed))
	if err != nil {
		return "", nil, false
	}
	return trimmed, node, true
}

// extractBalanced parses the substring from the first '{' to its matching '}'.
func extractBalanced(text string) (string, *Node, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", nil, false
	}
	end := matchBrace(text, start)
	if end < 0 {
		return "", nil, false
	}
	candidate := text[start : end+1]
	node, err := Parse([]byte(candidate))
	if err != nil {
		return "", nil, false
	}
	return candidate, node, true
}

// matchBrace returns the index of the '}' closing the '{' at start, ignoring
// braces inside string literals, or -1.
func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// extractFence strips the first ``` fence (and its language tag) and retries
// the direct and balanced strategies on the fence body.
func extractFence(text string) (string, *Node, bool) {
	body, ok := fenceBody(text)
	if !ok {
		return "", nil, false
	}
	if raw, node, ok := extractDirect(body); ok {
		return raw, node, true
	}
	return extractBalanced(body)
}

func fenceBody(text string) (string, bool) {
	const marker = "```"
	open := strings.Index(text, marker)
	if open < 0 {
		return "", false
	}
	rest := text[open+len(marker):]
	// language tag runs to the end of the opening line
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		tag := strings.TrimSpace(rest[:nl])
		if !strings.ContainsAny(tag, "{[") {
			rest = rest[nl+1:]
		}
	}
	if closeIdx := strings.Index(rest, marker); closeIdx >= 0 {
		rest = rest[:closeIdx]
	}
	return rest, true
}

func headRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func tailRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[len(r)-n:])
}
