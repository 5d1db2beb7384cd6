package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/lessonpipe/config"
	"github.com/BaSui01/lessonpipe/internal/metrics"
	"github.com/BaSui01/lessonpipe/lesson"
	"github.com/BaSui01/lessonpipe/llm"
	"github.com/BaSui01/lessonpipe/structured"
	"github.com/BaSui01/lessonpipe/testutil/fixtures"
	"github.com/BaSui01/lessonpipe/types"
)

// =============================================================================
// 🧪 测试辅助
// =============================================================================

// fakeChatServer 模拟 OpenAI 兼容接口；提示词包含 "broken" 时返回非法等级
func fakeChatServer(t *testing.T, failFirst int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n <= failFirst {
			http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
			return
		}
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := gojson.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		content := fixtures.FencedLesson
		for _, m := range req.Messages {
			if m.Role == "user" && strings.Contains(m.Content, "broken") {
				content = fixtures.InvalidLevelLesson
			}
		}
		resp := map[string]any{
			"id":    fmt.Sprintf("chatcmpl-%d", n),
			"model": "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": content},
			}},
			"usage": map[string]int{"prompt_tokens": 12, "completion_tokens": 30, "total_tokens": 42},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = gojson.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

// writeConfig 写出指向假服务器与临时诊断目录的配置文件
func writeConfig(t *testing.T, baseURL string) (path, traceDir string) {
	t.Helper()
	dir := t.TempDir()
	traceDir = filepath.Join(dir, "traces")
	cfg := fmt.Sprintf(`llm:
  provider: openai
  base_url: %s
  model: test-model
  timeout: 5s
retry:
  max_attempts: 1
  initial_delay: 1ms
  max_delay: 1ms
diagnostics:
  backends: [file]
  dir: %s
log:
  level: error
  output_paths: [stderr]
`, baseURL, traceDir)
	path = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path, traceDir
}

func runCLI(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = execute(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

// =============================================================================
// 🧪 命令分发
// =============================================================================

func TestExecute_Usage(t *testing.T) {
	code, _, stderr := runCLI(t)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "Usage:")

	code, _, stderr = runCLI(t, "serve")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "Unknown command: serve")

	code, stdout, _ := runCLI(t, "help")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "inspect")
}

func TestExecute_Version(t *testing.T) {
	code, stdout, _ := runCLI(t, "version")
	assert.Equal(t, exitOK, code)
	assert.True(t, strings.HasPrefix(stdout, "lessonpipe "))
	assert.Contains(t, stdout, "Git Commit: unknown")
}

func TestExitCode(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, exitOK, exitCode(nil, &buf))

	f := &types.Failure{Kind: types.FailureValidation, Message: "level: expected enum", RunID: "run-7"}
	buf.Reset()
	assert.Equal(t, exitFailure, exitCode(fmt.Errorf("wrapped: %w", f), &buf))
	assert.Equal(t, types.UserFacingMessage+" (diagnostic id: run-7)\n", buf.String())
	assert.NotContains(t, buf.String(), "level", "internals stay out of user output")

	buf.Reset()
	assert.Equal(t, exitUsage, exitCode(newUsageError("bad flag"), &buf))
	assert.Equal(t, exitError, exitCode(io.ErrUnexpectedEOF, &buf))
}

// =============================================================================
// 🧪 run
// =============================================================================

func TestRun_EndToEnd(t *testing.T) {
	srv, calls := fakeChatServer(t, 0)
	cfgPath, traceDir := writeConfig(t, srv.URL)

	code, stdout, stderr := runCLI(t, "run", "--config", cfgPath, "--prompt", "Spanish greetings")
	require.Equal(t, exitOK, code, stderr)
	assert.Equal(t, int32(1), calls.Load())

	var l lesson.Lesson
	require.NoError(t, gojson.Unmarshal([]byte(stdout), &l))
	assert.Equal(t, "Greetings", l.Title)
	assert.Equal(t, lesson.LevelBeginner, l.Level)
	require.Len(t, l.SubLessons, 1)
	assert.Equal(t, "Say hola.", l.SubLessons[0].Content)

	entries, err := os.ReadDir(traceDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// inspect 读回同一次运行
	code, stdout, stderr = runCLI(t, "inspect", "--config", cfgPath, "--list", "5")
	require.Equal(t, exitOK, code, stderr)
	runID := strings.TrimSpace(stdout)
	require.NotEmpty(t, runID)

	code, stdout, stderr = runCLI(t, "inspect", "--config", cfgPath, "--run-id", runID, "--stage", "outcome")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, `"outcome": "succeeded"`)
	assert.Contains(t, stdout, `"stage": "outcome"`)
	assert.NotContains(t, stdout, `"stage": "raw_response"`)
}

func TestRun_FailureShowsOnlyDiagnosticID(t *testing.T) {
	srv, _ := fakeChatServer(t, 0)
	cfgPath, _ := writeConfig(t, srv.URL)

	code, stdout, stderr := runCLI(t, "run", "--config", cfgPath, "--prompt", "broken lesson please")
	assert.Equal(t, exitFailure, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, types.UserFacingMessage)
	assert.Contains(t, stderr, "diagnostic id: ")
	assert.NotContains(t, stderr, "expert")
}

func TestRun_OutFile(t *testing.T) {
	srv, _ := fakeChatServer(t, 0)
	cfgPath, _ := writeConfig(t, srv.URL)
	out := filepath.Join(t.TempDir(), "nested", "lesson.json")

	code, stdout, stderr := runCLI(t, "run", "--config", cfgPath, "--prompt", "x", "--out", out)
	require.Equal(t, exitOK, code, stderr)
	assert.Empty(t, stdout)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"title": "Greetings"`)
}

func TestRun_UsageErrors(t *testing.T) {
	srv, calls := fakeChatServer(t, 0)
	cfgPath, _ := writeConfig(t, srv.URL)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no prompt", []string{}, "one of --prompt or --prompt-file is required"},
		{"both prompts", []string{"--prompt", "a", "--prompt-file", "b"}, "mutually exclusive"},
		{"unknown schema", []string{"--prompt", "a", "--schema", "poem"}, `unknown schema "poem"`},
		{"unknown flag", []string{"--nope"}, "flag provided but not defined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"run", "--config", cfgPath}, tt.args...)
			code, _, stderr := runCLI(t, args...)
			assert.Equal(t, exitUsage, code)
			assert.Contains(t, stderr, tt.want)
		})
	}
	assert.Zero(t, calls.Load())
}

func TestReadPrompt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("  from file \n"), 0o644))

	got, err := readPrompt("", path, nil)
	require.NoError(t, err)
	assert.Equal(t, "from file", got)

	got, err = readPrompt("", "-", strings.NewReader("from stdin"))
	require.NoError(t, err)
	assert.Equal(t, "from stdin", got)

	_, err = readPrompt("", "-", strings.NewReader("   "))
	assert.ErrorContains(t, err, "prompt is empty")

	_, err = readPrompt("", filepath.Join(t.TempDir(), "missing.txt"), nil)
	assert.ErrorContains(t, err, "failed to read prompt file")
}

// =============================================================================
// 🧪 batch
// =============================================================================

func TestBatch_JSONL(t *testing.T) {
	srv, calls := fakeChatServer(t, 0)
	cfgPath, _ := writeConfig(t, srv.URL)

	input := filepath.Join(t.TempDir(), "prompts.jsonl")
	require.NoError(t, os.WriteFile(input, []byte(`{"prompt":"greetings"}
# comment lines are skipped

{"prompt":"broken one","schema":"lesson"}
{"prompt":"numbers","model":"other-model"}
`), 0o644))

	code, stdout, stderr := runCLI(t, "batch", "--config", cfgPath, "--input", input, "--concurrency", "2")
	require.Equal(t, exitOK, code, stderr)
	assert.Equal(t, int32(3), calls.Load())
	assert.Contains(t, stderr, "batch finished: 3 total, 2 succeeded, 1 validation")

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 3)
	var got []batchLine
	for _, line := range lines {
		var bl batchLine
		require.NoError(t, gojson.Unmarshal([]byte(line), &bl))
		got = append(got, bl)
	}
	for i, bl := range got {
		assert.Equal(t, i, bl.Index)
		assert.NotEmpty(t, bl.RunID)
	}
	assert.True(t, got[0].OK)
	assert.Contains(t, string(got[0].Record), `"title":"Greetings"`)
	assert.False(t, got[1].OK)
	assert.Equal(t, "validation", got[1].Kind)
	assert.Contains(t, got[1].Message, "diagnostic id: "+got[1].RunID)
	assert.Empty(t, got[1].Record)
	assert.True(t, got[2].OK)
}

func TestReadBatchInput_YAML(t *testing.T) {
	input := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(input, []byte(`- prompt: greetings
  schema: story
- prompt: numbers
  system: keep it short
`), 0o644))

	items, err := readBatchInput(input)
	require.NoError(t, err)
	assert.Equal(t, []batchItem{
		{Prompt: "greetings", Schema: "story"},
		{Prompt: "numbers", System: "keep it short"},
	}, items)

	reqs, err := batchRequests(items, llm.Params{Model: "m"})
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	story, _ := lesson.Lookup("story")
	assert.Same(t, story, reqs[0].Schema)
	assert.Equal(t, "m", reqs[1].Params.Model)
}

func TestBatchRequests_Errors(t *testing.T) {
	_, err := batchRequests(nil, llm.Params{})
	assert.ErrorContains(t, err, "no prompts")

	_, err = batchRequests([]batchItem{{Prompt: "ok"}, {Prompt: "  "}}, llm.Params{})
	assert.ErrorContains(t, err, "batch item 1 has an empty prompt")

	_, err = batchRequests([]batchItem{{Prompt: "ok", Schema: "poem"}}, llm.Params{})
	assert.ErrorContains(t, err, "batch item 0")
}

func TestReadBatchInput_BadLine(t *testing.T) {
	input := filepath.Join(t.TempDir(), "prompts.jsonl")
	require.NoError(t, os.WriteFile(input, []byte("{\"prompt\":\"a\"}\nnot json\n"), 0o644))
	_, err := readBatchInput(input)
	assert.ErrorContains(t, err, "batch input line 2")
}

// =============================================================================
// 🧪 inspect / migrate
// =============================================================================

func TestInspect_Errors(t *testing.T) {
	srv, _ := fakeChatServer(t, 0)
	cfgPath, _ := writeConfig(t, srv.URL)

	code, _, stderr := runCLI(t, "inspect", "--config", cfgPath)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "exactly one of")

	code, _, stderr = runCLI(t, "inspect", "--config", cfgPath, "--run-id", "../etc/passwd")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "invalid run id")

	code, _, stderr = runCLI(t, "inspect", "--config", cfgPath, "--run-id", "never-ran")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "no trace stored for run never-ran")

	code, _, stderr = runCLI(t, "inspect", "--config", cfgPath, "--outcomes")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "requires the database diagnostics backend")
}

func TestMigrate_Usage(t *testing.T) {
	code, _, stderr := runCLI(t, "migrate")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "Database Migration Commands")

	code, _, stderr = runCLI(t, "migrate", "sideways")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "unknown migrate subcommand: sideways")

	code, stdout, _ := runCLI(t, "migrate", "help")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "steps <n>")
}

func TestIntArg(t *testing.T) {
	n, err := intArg([]string{"-2"}, "steps")
	require.NoError(t, err)
	assert.Equal(t, -2, n)

	_, err = intArg(nil, "steps")
	assert.ErrorContains(t, err, "expected exactly one <steps> argument")
	_, err = intArg([]string{"x"}, "version")
	assert.ErrorContains(t, err, `invalid version "x"`)
}

func TestMigrate_SQLite(t *testing.T) {
	if testing.Short() {
		t.Skip("requires cgo sqlite3 driver")
	}
	url := "file:" + filepath.Join(t.TempDir(), "m.db") + "?mode=rwc"

	code, stdout, stderr := runCLI(t, "migrate", "up", "--db-type", "sqlite", "--db-url", url)
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "migrate up: done, schema version 1")

	code, stdout, stderr = runCLI(t, "migrate", "steps", "-1", "--db-type", "sqlite", "--db-url", url)
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "migrate steps -1: done, schema version 0")
}

// =============================================================================
// 🧪 装配
// =============================================================================

func TestBuildGenerator_RetriesRecorded(t *testing.T) {
	srv, calls := fakeChatServer(t, 1)

	cfg := config.DefaultConfig()
	cfg.LLM.Provider = "openai"
	cfg.LLM.BaseURL = srv.URL
	cfg.LLM.RateLimitRPS = 100
	cfg.Retry = config.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollectorWithRegistry("test", reg, zap.NewNop())
	gen, err := buildGenerator(context.Background(), cfg, collector, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "openai", gen.Name())

	resp, err := gen.Generate(context.Background(), &llm.GenerateRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Attempts)
	assert.Equal(t, int32(2), calls.Load())

	n, err := testutil.GatherAndCount(reg, "test_llm_retries_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBuildGenerator_Errors(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLM.Provider = "gemini"
	cfg.LLM.APIKey = ""
	_, err := buildGenerator(context.Background(), cfg, nil, zap.NewNop())
	assert.ErrorContains(t, err, "api key is required")

	cfg.LLM.Provider = "claude"
	_, err = buildGenerator(context.Background(), cfg, nil, zap.NewNop())
	assert.ErrorContains(t, err, "unsupported llm provider")
}

func TestApp_OpsEndpoints(t *testing.T) {
	srv, _ := fakeChatServer(t, 0)

	cfg := config.DefaultConfig()
	cfg.LLM.Provider = "openai"
	cfg.LLM.BaseURL = srv.URL
	cfg.Retry.MaxAttempts = 1
	cfg.Metrics.ListenAddr = "127.0.0.1:0"
	cfg.Diagnostics.Backends = []string{"memory", "database"}
	cfg.Database = config.DatabaseConfig{Driver: "sqlite", Name: ":memory:", MaxOpenConns: 1, MaxIdleConns: 1, AutoMigrate: true}

	a, err := newApp(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(a.close)
	require.NotNil(t, a.ops)

	schema, err := lesson.Lookup("lesson")
	require.NoError(t, err)
	_, err = a.pipeline.Run(context.Background(), &structured.Request{Prompt: "greetings", Schema: schema})
	require.NoError(t, err)

	base := "http://" + a.ops.Addr()
	resp, err := http.Get(base + "/readyz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"diagnostics"`)

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	text := string(body)
	assert.Contains(t, text, `lessonpipe_runs_total{outcome="succeeded"`)
	assert.Contains(t, text, `lessonpipe_db_connections_open{database="sqlite"}`)
	assert.Contains(t, text, "go_goroutines")
}

func TestLogOutputs(t *testing.T) {
	assert.Equal(t, []string{"stderr"}, logOutputs(nil))
	assert.Equal(t, []string{"stderr", "/var/log/lp.log"}, logOutputs([]string{"stdout", "/var/log/lp.log"}))
}
