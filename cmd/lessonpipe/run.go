package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/BaSui01/lessonpipe/lesson"
	"github.com/BaSui01/lessonpipe/llm"
	"github.com/BaSui01/lessonpipe/llm/tokenizer"
	"github.com/BaSui01/lessonpipe/structured"
	"github.com/BaSui01/lessonpipe/types"
)

// =============================================================================
// ▶️ run 命令
// =============================================================================

func runGenerate(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	schemaName := fs.String("schema", "lesson", "Output schema")
	prompt := fs.String("prompt", "", "Prompt text")
	promptFile := fs.String("prompt-file", "", "Read the prompt from a file")
	system := fs.String("system", "", "Extra system instruction")
	model := fs.String("model", "", "Override the configured model")
	outPath := fs.String("out", "", "Write the record to a file")

	env, err := parseWithConfig(fs, args)
	if err != nil {
		return err
	}

	text, err := readPrompt(*prompt, *promptFile, os.Stdin)
	if err != nil {
		return err
	}
	schema, err := lesson.Lookup(*schemaName)
	if err != nil {
		return newUsageError("%v", err)
	}

	a, err := newApp(ctx, env.cfg, env.logger)
	if err != nil {
		return err
	}
	defer a.close()

	params := defaultParams(env.cfg.LLM)
	if *model != "" {
		params.Model = *model
	}
	env.logger.Debug("prompt prepared",
		zap.String("schema", *schemaName),
		zap.Int("prompt_tokens_estimate", tokenizer.CountOrEstimate(tokenizer.ForModel(params.Model), text)),
	)

	res, err := a.pipeline.Run(ctx, &structured.Request{
		Prompt: text,
		System: *system,
		Schema: schema,
		Params: params,
	})
	if err != nil {
		return err
	}

	env.logger.Info("record generated",
		zap.String("run_id", res.RunID),
		zap.String("strategy", res.Strategy),
		zap.Int("attempts", res.Attempts),
		zap.Int("normalization_steps", len(res.Steps)),
		zap.Int("total_tokens", res.Usage.TotalTokens),
	)

	var out bytes.Buffer
	if err := gojson.Indent(&out, res.Record.JSON(), "", "  "); err != nil {
		return fmt.Errorf("failed to format record: %w", err)
	}
	out.WriteByte('\n')
	return writeOutput(*outPath, stdout, out.Bytes())
}

// readPrompt 从 --prompt 或 --prompt-file 读取提示词，"-" 表示 stdin
func readPrompt(prompt, path string, stdin io.Reader) (string, error) {
	switch {
	case prompt != "" && path != "":
		return "", newUsageError("--prompt and --prompt-file are mutually exclusive")
	case prompt != "":
		return prompt, nil
	case path == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read prompt from stdin: %w", err)
		}
		return nonEmptyPrompt(string(b))
	case path != "":
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read prompt file: %w", err)
		}
		return nonEmptyPrompt(string(b))
	default:
		return "", newUsageError("one of --prompt or --prompt-file is required")
	}
}

func nonEmptyPrompt(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", newUsageError("prompt is empty")
	}
	return s, nil
}

func writeOutput(path string, stdout io.Writer, data []byte) error {
	if path == "" {
		_, err := stdout.Write(data)
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// =============================================================================
// 📦 batch 命令
// =============================================================================

// batchItem 批量输入中的一项
type batchItem struct {
	Prompt string `json:"prompt" yaml:"prompt"`
	System string `json:"system,omitempty" yaml:"system,omitempty"`
	Schema string `json:"schema,omitempty" yaml:"schema,omitempty"`
	Model  string `json:"model,omitempty" yaml:"model,omitempty"`
}

// batchLine 批量输出的一行
type batchLine struct {
	Index    int               `json:"index"`
	RunID    string            `json:"run_id,omitempty"`
	OK       bool              `json:"ok"`
	Record   gojson.RawMessage `json:"record,omitempty"`
	Attempts int               `json:"attempts,omitempty"`
	Kind     string            `json:"failure_kind,omitempty"`
	Message  string            `json:"message,omitempty"`
}

func runBatch(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	input := fs.String("input", "", "JSONL or YAML input file")
	concurrency := fs.Int("concurrency", 0, "Parallel runs")
	outPath := fs.String("out", "", "Write JSONL results to a file")

	env, err := parseWithConfig(fs, args)
	if err != nil {
		return err
	}
	if *input == "" {
		return newUsageError("--input is required")
	}

	items, err := readBatchInput(*input)
	if err != nil {
		return err
	}
	reqs, err := batchRequests(items, defaultParams(env.cfg.LLM))
	if err != nil {
		return err
	}

	a, err := newApp(ctx, env.cfg, env.logger)
	if err != nil {
		return err
	}
	defer a.close()

	n := *concurrency
	if n <= 0 {
		n = env.cfg.Pipeline.MaxConcurrency
	}
	results := structured.RunBatch(ctx, a.pipeline, reqs, n)

	var buf bytes.Buffer
	enc := gojson.NewEncoder(&buf)
	for _, r := range results {
		if err := enc.Encode(toBatchLine(r)); err != nil {
			return fmt.Errorf("failed to encode result %d: %w", r.Index, err)
		}
	}
	if err := writeOutput(*outPath, stdout, buf.Bytes()); err != nil {
		return err
	}

	sum := structured.Summarize(results)
	fmt.Fprintf(stderr, "batch finished: %d total, %d succeeded", sum.Total, sum.Succeeded)
	for _, kind := range []types.FailureKind{types.FailureTransport, types.FailureExtraction, types.FailureValidation} {
		if c := sum.Failed[kind]; c > 0 {
			fmt.Fprintf(stderr, ", %d %s", c, kind)
		}
	}
	fmt.Fprintln(stderr)

	env.logger.Info("batch finished",
		zap.Int("total", sum.Total),
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("concurrency", n),
	)
	return nil
}

func toBatchLine(r structured.BatchResult) batchLine {
	line := batchLine{Index: r.Index}
	if r.Err == nil {
		line.OK = true
		line.RunID = r.Result.RunID
		line.Record = r.Result.Record.JSON()
		line.Attempts = r.Result.Attempts
		return line
	}
	if f, ok := types.AsFailure(r.Err); ok {
		line.RunID = f.RunID
		line.Kind = string(f.Kind)
		line.Message = f.UserMessage()
		return line
	}
	line.Message = types.UserFacingMessage
	return line
}

// readBatchInput 读取 .yaml/.yml 列表或 JSONL（空行与 # 注释行跳过）
func readBatchInput(path string) ([]batchItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch input: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var items []batchItem
		if err := yaml.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("failed to parse batch input: %w", err)
		}
		return items, nil
	}

	var items []batchItem
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var item batchItem
		if err := gojson.Unmarshal([]byte(line), &item); err != nil {
			return nil, fmt.Errorf("batch input line %d: %w", lineNo, err)
		}
		items = append(items, item)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read batch input: %w", err)
	}
	return items, nil
}

func batchRequests(items []batchItem, params llm.Params) ([]*structured.Request, error) {
	if len(items) == 0 {
		return nil, newUsageError("batch input has no prompts")
	}
	reqs := make([]*structured.Request, len(items))
	for i, item := range items {
		if strings.TrimSpace(item.Prompt) == "" {
			return nil, newUsageError("batch item %d has an empty prompt", i)
		}
		name := item.Schema
		if name == "" {
			name = "lesson"
		}
		schema, err := lesson.Lookup(name)
		if err != nil {
			return nil, newUsageError("batch item %d: %v", i, err)
		}
		p := params
		if item.Model != "" {
			p.Model = item.Model
		}
		reqs[i] = &structured.Request{Prompt: item.Prompt, System: item.System, Schema: schema, Params: p}
	}
	return reqs, nil
}
