package structured

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/lessonpipe/config"
	"github.com/BaSui01/lessonpipe/diagnostics"
	"github.com/BaSui01/lessonpipe/internal/metrics"
	"github.com/BaSui01/lessonpipe/llm"
	"github.com/BaSui01/lessonpipe/testutil/mocks"
	"github.com/BaSui01/lessonpipe/types"
)

const fencedLesson = "Here is the JSON:\n```json\n" +
	`{"lesson":{"title":"Greetings","level":"Beginner","subLessons":[{"title":"Hello"}]}}` +
	"\n```"

type pipelineHarness struct {
	gen   *mocks.MockGenerator
	store *diagnostics.MemoryStore
	reg   *prometheus.Registry
	spans *tracetest.SpanRecorder
	p     *Pipeline
}

func newHarness(t *testing.T, gen *mocks.MockGenerator, opts ...Option) *pipelineHarness {
	t.Helper()
	h := &pipelineHarness{
		gen:   gen,
		store: diagnostics.NewMemoryStore(),
		reg:   prometheus.NewRegistry(),
		spans: tracetest.NewSpanRecorder(),
	}
	logger := zaptest.NewLogger(t)
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(h.spans))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	base := []Option{
		WithLogger(logger),
		WithRecorder(diagnostics.NewRecorder(h.store, diagnostics.WithLogger(logger))),
		WithMetrics(metrics.NewCollectorWithRegistry("test", h.reg, logger)),
		WithTracerProvider(tp),
	}
	h.p = NewPipeline(gen, append(base, opts...)...)
	return h
}

func (h *pipelineHarness) trace(t *testing.T, runID string) *diagnostics.Trace {
	t.Helper()
	tr, err := h.store.Load(context.Background(), runID)
	require.NoError(t, err)
	return tr
}

func stages(tr *diagnostics.Trace) []diagnostics.Stage {
	out := make([]diagnostics.Stage, len(tr.Entries))
	for i, e := range tr.Entries {
		out[i] = e.Stage
	}
	return out
}

func lessonRequest() *Request {
	return &Request{
		Prompt: "Teach greetings",
		Schema: testLessonSchema(),
		Params: llm.Params{Model: "gemini-2.0-flash", Temperature: 0.2},
	}
}

func TestPipeline_EndToEndFencedSuccess(t *testing.T) {
	h := newHarness(t, mocks.NewMockGenerator().WithResponses(fencedLesson))

	res, err := h.p.Run(context.Background(), lessonRequest())
	require.NoError(t, err)

	assert.Equal(t, "beginner", res.Record.Map()["level"])
	assert.Equal(t, `{"title":"Greetings","level":"beginner","subLessons":[{"title":"Hello"}]}`, string(res.Record.JSON()))
	assert.Equal(t, StrategyBalanced, res.Strategy)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 30, res.Usage.TotalTokens)
	assert.Equal(t, "gemini-2.0-flash", res.Model)
	assert.Equal(t, []string{RuleEnvelopeUnwrap, RuleEnumCoerce}, stepRules(res.Steps))

	var decoded struct {
		Level string `json:"level"`
	}
	require.NoError(t, res.Decode(&decoded))
	assert.Equal(t, "beginner", decoded.Level)

	// 请求携带 schema 指令
	call, ok := h.gen.LastCall()
	require.True(t, ok)
	assert.Equal(t, "Teach greetings", call.Request.Prompt)
	assert.Equal(t, "Lesson", call.Request.SchemaName)
	assert.Contains(t, call.Request.System, "JSON Schema:")
	assert.NotNil(t, call.Request.Schema)

	tr := h.trace(t, res.RunID)
	assert.Equal(t, diagnostics.OutcomeSucceeded, tr.Outcome)
	assert.Equal(t, "Lesson", tr.Schema)
	assert.Equal(t, []diagnostics.Stage{
		diagnostics.StageRequest,
		diagnostics.StageRawResponse,
		diagnostics.StageExtraction,
		diagnostics.StageNormalizeSteps,
		diagnostics.StageNormalized,
		diagnostics.StageValidation,
		diagnostics.StageOutcome,
	}, stages(tr))
	assert.Equal(t, fencedLesson, tr.Stage(diagnostics.StageRawResponse)[0].Payload)

	n, err := testutil.GatherAndCount(h.reg, "test_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ended := h.spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "structured.Run", ended[0].Name())
	assert.Equal(t, codes.Ok, ended[0].Status().Code)
}

func TestPipeline_TerminalExtractionFailure(t *testing.T) {
	gen := mocks.NewMockGenerator().WithResponses(
		"I'm sorry, I can't produce that lesson right now.",
		"Still no JSON here, only prose.",
	)
	h := newHarness(t, gen)

	res, err := h.p.Run(context.Background(), lessonRequest())
	require.Error(t, err)
	assert.Nil(t, res)

	f, ok := types.AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, types.FailureExtraction, f.Kind)
	var ee *ExtractionError
	assert.ErrorAs(t, err, &ee)
	assert.NotContains(t, f.UserMessage(), "prose")
	assert.Contains(t, f.UserMessage(), f.RunID)

	// 恰好一次追加严格提示的重试
	calls := gen.Calls()
	require.Len(t, calls, 2)
	assert.NotContains(t, calls[0].Request.Prompt, StrictJSONAddendum)
	assert.Contains(t, calls[1].Request.Prompt, StrictJSONAddendum)
	assert.True(t, strings.HasPrefix(calls[1].Request.Prompt, "Teach greetings"))

	tr := h.trace(t, f.RunID)
	assert.Equal(t, string(types.FailureExtraction), tr.Outcome)
	raws := tr.Stage(diagnostics.StageRawResponse)
	require.Len(t, raws, 2)
	assert.Equal(t, "I'm sorry, I can't produce that lesson right now.", raws[0].Payload)
	assert.Equal(t, "Still no JSON here, only prose.", raws[1].Payload)
	assert.Len(t, tr.Stage(diagnostics.StageExtractionFailed), 2)
	assert.Len(t, tr.Stage(diagnostics.StageOutcome), 1)

	ended := h.spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
}

func TestPipeline_ExtractionRecoversOnReRequest(t *testing.T) {
	gen := mocks.NewMockGenerator().WithResponses("no json", `{"title":"T","level":"advanced","subLessons":[{"title":"a"}]}`)
	h := newHarness(t, gen)

	res, err := h.p.Run(context.Background(), lessonRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, StrategyDirect, res.Strategy)
	assert.Equal(t, 60, res.Usage.TotalTokens)
	assert.Len(t, h.trace(t, res.RunID).Stage(diagnostics.StageRawResponse), 2)
}

func TestPipeline_NoExtractionRetries(t *testing.T) {
	gen := mocks.NewMockGenerator().WithResponse("never json")
	h := newHarness(t, gen, WithExtractionRetries(0))

	_, err := h.p.Run(context.Background(), lessonRequest())
	f, ok := types.AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, types.FailureExtraction, f.Kind)
	assert.Equal(t, 1, gen.CallCount())
}

func TestPipeline_TransportFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code types.ErrorCode
	}{
		{"classified", types.NewError(types.ErrUnauthorized, "bad key").WithHTTPStatus(401), types.ErrUnauthorized},
		{"unclassified", errors.New("boom"), types.ErrInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := mocks.NewMockGenerator().WithError(tt.err)
			h := newHarness(t, gen)

			_, err := h.p.Run(context.Background(), lessonRequest())
			f, ok := types.AsFailure(err)
			require.True(t, ok)
			assert.Equal(t, types.FailureTransport, f.Kind)

			terr, ok := types.AsError(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, terr.Code)
			assert.Equal(t, 1, gen.CallCount(), "the pipeline does not retry transport errors itself")

			tr := h.trace(t, f.RunID)
			assert.Equal(t, []diagnostics.Stage{
				diagnostics.StageRequest,
				diagnostics.StageTransportError,
				diagnostics.StageOutcome,
			}, stages(tr))
			assert.Equal(t, string(types.FailureTransport), tr.Outcome)
		})
	}
}

func TestPipeline_ValidationFailure(t *testing.T) {
	gen := mocks.NewMockGenerator().WithResponses(`{"title":"T","level":"expert","subLessons":[{"title":"a"}],"extra":1}`)
	h := newHarness(t, gen)

	_, err := h.p.Run(context.Background(), lessonRequest())
	f, ok := types.AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, types.FailureValidation, f.Kind)
	require.Len(t, f.Issues, 2)
	assert.Equal(t, "level", f.Issues[0].Path)
	assert.Equal(t, IssueEnum, f.Issues[0].Code)
	assert.Equal(t, "extra", f.Issues[1].Path)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Issues, 2)
	assert.Equal(t, types.UserFacingMessage+" (diagnostic id: "+f.RunID+")", f.UserMessage())

	tr := h.trace(t, f.RunID)
	assert.Equal(t, string(types.FailureValidation), tr.Outcome)
	assert.Len(t, tr.Stage(diagnostics.StageValidation), 1)
}

func TestPipeline_ContextRunIDAndModel(t *testing.T) {
	gen := mocks.NewMockGenerator().WithResponses(`{"title":"T","level":"beginner","subLessons":[{"title":"a"}]}`)
	h := newHarness(t, gen)

	ctx := types.WithRunID(context.Background(), "lesson-run-1")
	ctx = types.WithLLMModel(ctx, "override-model")
	res, err := h.p.Run(ctx, lessonRequest())
	require.NoError(t, err)
	assert.Equal(t, "lesson-run-1", res.RunID)
	assert.Equal(t, "override-model", res.Model)

	call, _ := gen.LastCall()
	assert.Equal(t, "override-model", call.Request.Params.Model)
	h.trace(t, "lesson-run-1")
}

func TestPipeline_CanceledStillFlushes(t *testing.T) {
	gen := mocks.NewMockGenerator().WithResponse(fencedLesson)
	h := newHarness(t, gen, WithRunIDFunc(func() string { return "canceled-run" }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.p.Run(ctx, lessonRequest())

	f, ok := types.AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, types.FailureTransport, f.Kind)
	terr, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrCanceled, terr.Code)
	assert.Equal(t, 0, gen.CallCount())

	tr := h.trace(t, "canceled-run")
	assert.Equal(t, string(types.FailureTransport), tr.Outcome)
}

func TestPipeline_SchemaGuidedDisabled(t *testing.T) {
	gen := mocks.NewMockGenerator().WithResponses(fencedLesson)
	h := newHarness(t, gen, WithSchemaGuided(false))

	req := lessonRequest()
	req.System = "Write for adult learners."
	_, err := h.p.Run(context.Background(), req)
	require.NoError(t, err)

	call, _ := gen.LastCall()
	assert.Nil(t, call.Request.Schema)
	assert.True(t, strings.HasSuffix(call.Request.System, "\n\nWrite for adult learners."))
}

func TestPipeline_InvalidRequest(t *testing.T) {
	p := NewPipeline(mocks.NewMockGenerator())
	_, err := p.Run(context.Background(), nil)
	terr, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrInvalidRequest, terr.Code)

	_, err = p.Run(context.Background(), &Request{Prompt: "x"})
	assert.Error(t, err)
	_, isFailure := types.AsFailure(err)
	assert.False(t, isFailure)
}

func TestPipeline_NilResponseIsTransportFailure(t *testing.T) {
	gen := mocks.NewMockGenerator().WithGenerateFunc(func(context.Context, *llm.GenerateRequest) (*llm.RawResponse, error) {
		return nil, nil
	})
	_, err := NewPipeline(gen).Run(context.Background(), lessonRequest())
	f, ok := types.AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, types.FailureTransport, f.Kind)
}

func TestRunTyped(t *testing.T) {
	type lessonOut struct {
		Title      string `json:"title"`
		Level      string `json:"level"`
		SubLessons []struct {
			Title string `json:"title"`
		} `json:"subLessons"`
	}
	gen := mocks.NewMockGenerator().WithResponses(fencedLesson)
	out, res, err := RunTyped[lessonOut](context.Background(), NewPipeline(gen), lessonRequest())
	require.NoError(t, err)
	assert.Equal(t, "Greetings", out.Title)
	assert.Equal(t, "beginner", out.Level)
	require.Len(t, out.SubLessons, 1)
	assert.NotEmpty(t, res.RunID)
}

func TestPipeline_ConcurrentRunsShareNothing(t *testing.T) {
	gen := mocks.NewMockGenerator().WithResponse(fencedLesson)
	h := newHarness(t, gen)
	req := lessonRequest()

	var wg sync.WaitGroup
	ids := make([]string, 16)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := h.p.Run(context.Background(), req)
			if assert.NoError(t, err) {
				ids[i] = res.RunID
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate run id %s", id)
		seen[id] = true
	}
	assert.Equal(t, 16, h.store.Len())
	assert.Equal(t, "Lesson", req.Schema.Title, "request is not modified")
}

func configForTest() config.PipelineConfig {
	return config.PipelineConfig{ExtractionRetries: 0, Wrappers: []string{"envelope"}, SnippetChars: 50}
}

func TestWithConfig(t *testing.T) {
	gen := mocks.NewMockGenerator().WithResponses(`{"envelope":{"title":"T","level":"beginner","subLessons":[{"title":"a"}]}}`)
	p := NewPipeline(gen, WithConfig(configForTest()))
	res, err := p.Run(context.Background(), lessonRequest())
	require.NoError(t, err)
	assert.Equal(t, []string{RuleEnvelopeUnwrap}, stepRules(res.Steps))
	assert.Equal(t, 0, p.extractionRetries)
}

func TestState_Terminal(t *testing.T) {
	assert.True(t, StateSucceeded.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateValidating.Terminal())
}
