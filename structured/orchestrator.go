package structured

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/lessonpipe/config"
	"github.com/BaSui01/lessonpipe/diagnostics"
	"github.com/BaSui01/lessonpipe/internal/metrics"
	"github.com/BaSui01/lessonpipe/internal/telemetry"
	"github.com/BaSui01/lessonpipe/llm"
	"github.com/BaSui01/lessonpipe/llm/retry"
	"github.com/BaSui01/lessonpipe/types"
)

// State is a step of the generation state machine.
type State string

const (
	StateRequesting  State = "REQUESTING"
	StateExtracting  State = "EXTRACTING"
	StateNormalizing State = "NORMALIZING"
	StateValidating  State = "VALIDATING"
	StateSucceeded   State = "SUCCEEDED"
	StateFailed      State = "FAILED"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Request is one generation run. It is not modified by the pipeline.
type Request struct {
	// Prompt 用户提示词
	Prompt string
	// System 追加在 schema 指令之后的额外系统指令
	System string
	// Schema 期望的输出结构
	Schema *Schema
	// Params 模型参数；ctx 中的 types.WithLLMModel 优先
	Params llm.Params
}

// Result is the outcome of a successful run.
type Result struct {
	RunID    string
	Record   *Record
	Steps    []NormalizationStep
	Strategy string
	// Attempts counts generation requests issued, including the re-request
	// after an extraction failure.
	Attempts int
	Usage    llm.Usage
	Model    string
}

// Decode unmarshals the record into v.
func (r *Result) Decode(v any) error {
	return r.Record.Decode(v)
}

// =============================================================================
// ⚙️ Pipeline
// =============================================================================

// Pipeline drives REQUESTING → EXTRACTING → NORMALIZING → VALIDATING → SUCCEEDED | FAILED.
// A Pipeline holds no per-run state and is safe for concurrent use.
type Pipeline struct {
	gen               llm.Generator
	extractor         *Extractor
	normalizer        *Normalizer
	validator         *Validator
	recorder          *diagnostics.Recorder
	metrics           *metrics.Collector
	instruments       *telemetry.RunInstruments
	tracer            trace.Tracer
	logger            *zap.Logger
	extractionRetries int
	schemaGuided      bool
	newRunID          func() string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRecorder sets the diagnostics recorder.
func WithRecorder(rec *diagnostics.Recorder) Option {
	return func(p *Pipeline) {
		if rec != nil {
			p.recorder = rec
		}
	}
}

// WithMetrics sets the Prometheus collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(p *Pipeline) { p.metrics = c }
}

// WithRunInstruments sets the OTel run instruments.
func WithRunInstruments(ri *telemetry.RunInstruments) Option {
	return func(p *Pipeline) { p.instruments = ri }
}

// WithTracerProvider sets the tracer provider used for run spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Pipeline) { p.tracer = telemetry.Tracer(tp) }
}

// WithExtractor replaces the default extractor.
func WithExtractor(e *Extractor) Option {
	return func(p *Pipeline) {
		if e != nil {
			p.extractor = e
		}
	}
}

// WithNormalizer replaces the default normalizer.
func WithNormalizer(n *Normalizer) Option {
	return func(p *Pipeline) {
		if n != nil {
			p.normalizer = n
		}
	}
}

// WithExtractionRetries sets how many re-requests follow an extraction failure.
func WithExtractionRetries(n int) Option {
	return func(p *Pipeline) {
		if n >= 0 {
			p.extractionRetries = n
		}
	}
}

// WithSchemaGuided controls whether the JSON Schema is sent to the generator.
func WithSchemaGuided(enabled bool) Option {
	return func(p *Pipeline) { p.schemaGuided = enabled }
}

// WithRunIDFunc replaces the run id generator.
func WithRunIDFunc(fn func() string) Option {
	return func(p *Pipeline) {
		if fn != nil {
			p.newRunID = fn
		}
	}
}

// WithConfig applies pipeline configuration.
func WithConfig(cfg config.PipelineConfig) Option {
	return func(p *Pipeline) {
		p.extractor = NewExtractor(cfg.SnippetChars)
		p.normalizer = NewNormalizer(cfg.Wrappers...)
		if cfg.ExtractionRetries >= 0 {
			p.extractionRetries = cfg.ExtractionRetries
		}
	}
}

// NewPipeline creates a pipeline around a generator.
func NewPipeline(gen llm.Generator, opts ...Option) *Pipeline {
	p := &Pipeline{
		gen:               gen,
		extractor:         NewExtractor(DefaultSnippetChars),
		normalizer:        NewNormalizer(),
		validator:         NewValidator(),
		recorder:          diagnostics.NewRecorder(nil),
		tracer:            telemetry.Tracer(nil),
		logger:            zap.NewNop(),
		extractionRetries: 1,
		schemaGuided:      true,
		newRunID:          func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(zap.String("component", "structured_pipeline"))
	return p
}

// Run executes one generation run. On failure the error is a *types.Failure;
// a nil request or schema is reported as a *types.Error before any run starts.
// The diagnostic trace is flushed exactly once before Run returns.
func (p *Pipeline) Run(ctx context.Context, req *Request) (*Result, error) {
	if req == nil || req.Schema == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "request and schema are required")
	}

	runID, ok := types.RunID(ctx)
	if !ok {
		runID = p.newRunID()
	}
	schemaName := schemaLabel(req.Schema)

	ctx, span := p.tracer.Start(ctx, "structured.Run", trace.WithAttributes(
		attribute.String("lessonpipe.run_id", runID),
		attribute.String("lessonpipe.schema", schemaName),
	))
	defer span.End()

	r := &run{
		p:       p,
		req:     req,
		runID:   runID,
		schema:  schemaName,
		session: p.recorder.Start(runID),
		logger:  p.logger.With(zap.String("run_id", runID), zap.String("schema", schemaName)),
		span:    span,
		state:   StateRequesting,
		started: time.Now(),
	}
	r.session.SetSchema(schemaName)
	defer r.finish(ctx)

	r.loop(ctx)
	if r.failure != nil {
		return nil, r.failure
	}
	return r.result, nil
}

// RunTyped runs the pipeline and decodes the record into a new T.
func RunTyped[T any](ctx context.Context, p *Pipeline, req *Request) (*T, *Result, error) {
	res, err := p.Run(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	out, err := DecodeRecord[T](res.Record)
	if err != nil {
		return nil, res, err
	}
	return out, res, nil
}

// =============================================================================
// 🔁 单次运行
// =============================================================================

// run 单次运行的全部可变状态，只属于一个 goroutine
type run struct {
	p       *Pipeline
	req     *Request
	runID   string
	schema  string
	session *diagnostics.Session
	logger  *zap.Logger
	span    trace.Span

	state      State
	started    time.Time
	stateStart time.Time
	attempts   int

	resp     *llm.RawResponse
	usage    llm.Usage
	extract  *ExtractResult
	doc      *Node
	steps    []NormalizationStep
	result   *Result
	failure  *types.Failure
	finished bool
}

func (r *run) loop(ctx context.Context) {
	r.stateStart = time.Now()
	for !r.state.Terminal() {
		switch r.state {
		case StateRequesting:
			r.request(ctx)
		case StateExtracting:
			r.extractDoc()
		case StateNormalizing:
			r.normalize()
		case StateValidating:
			r.validate()
		default:
			r.fail(types.FailureTransport, fmt.Sprintf("unexpected state %s", r.state), nil)
		}
	}
}

// transition 记录状态耗时并切换状态
func (r *run) transition(to State) {
	from := r.state
	now := time.Now()
	r.p.metrics.RecordStage(strings.ToLower(string(from)), now.Sub(r.stateStart))
	r.p.metrics.RecordStateTransition(string(from), string(to))
	r.span.AddEvent("state", trace.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))
	r.logger.Debug("state transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Duration("elapsed", now.Sub(r.stateStart)),
	)
	r.state = to
	r.stateStart = now
}

func (r *run) request(ctx context.Context) {
	r.attempts++
	gr := r.buildRequest(ctx)

	r.session.Record(diagnostics.StageRequest, map[string]any{
		"attempt":     r.attempts,
		"model":       gr.Params.Model,
		"prompt":      gr.Prompt,
		"schema_name": gr.SchemaName,
	})

	if err := ctx.Err(); err != nil {
		r.failTransport(retry.Classify(err))
		return
	}

	start := time.Now()
	resp, err := r.p.gen.Generate(ctx, gr)
	if err == nil && resp == nil {
		err = types.NewError(types.ErrUpstreamError, "generator returned no response")
	}
	if err != nil {
		terr := retry.Classify(err)
		r.p.metrics.RecordLLMRequest(r.p.gen.Name(), gr.Params.Model, "error", time.Since(start), 0, 0)
		r.failTransport(terr)
		return
	}

	r.resp = resp
	r.usage.PromptTokens += resp.Usage.PromptTokens
	r.usage.CompletionTokens += resp.Usage.CompletionTokens
	r.usage.TotalTokens += resp.Usage.TotalTokens
	r.usage.Estimated = r.usage.Estimated || resp.Usage.Estimated

	latency := resp.Latency
	if latency == 0 {
		latency = time.Since(start)
	}
	r.p.metrics.RecordLLMRequest(resp.Provider, resp.Model, "success", latency, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	r.session.Record(diagnostics.StageRawResponse, resp.Text)
	r.logger.Debug("generation response received",
		zap.Int("attempt", r.attempts),
		zap.Int("transport_attempts", resp.Attempts),
		zap.String("model", resp.Model),
		zap.String("finish_reason", resp.FinishReason),
		zap.Int("chars", len(resp.Text)),
		zap.Duration("latency", latency),
	)
	r.transition(StateExtracting)
}

func (r *run) buildRequest(ctx context.Context) *llm.GenerateRequest {
	prompt := r.req.Prompt
	if r.attempts > 1 {
		prompt = withStrictAddendum(prompt)
	}
	system := BuildSystemPrompt(r.req.Schema)
	if r.req.System != "" {
		system = system + "\n\n" + r.req.System
	}
	params := r.req.Params
	if model, ok := types.LLMModel(ctx); ok {
		params.Model = model
	}
	gr := &llm.GenerateRequest{
		Prompt:     prompt,
		System:     system,
		SchemaName: r.schema,
		Params:     params,
	}
	if r.p.schemaGuided {
		gr.Schema = r.req.Schema.JSONSchema()
	}
	return gr
}

func (r *run) extractDoc() {
	res, err := r.p.extractor.Extract(r.resp.Text)
	if err != nil {
		var ee *ExtractionError
		if !errors.As(err, &ee) {
			ee = &ExtractionError{Length: len(r.resp.Text)}
		}
		r.p.metrics.RecordExtraction("none")
		r.session.Record(diagnostics.StageExtractionFailed, map[string]any{
			"attempt": r.attempts,
			"head":    ee.Head,
			"tail":    ee.Tail,
			"length":  ee.Length,
		})
		if r.attempts <= r.p.extractionRetries {
			r.logger.Warn("no JSON in model output, re-requesting",
				zap.Int("attempt", r.attempts),
				zap.Int("length", ee.Length),
			)
			r.transition(StateRequesting)
			return
		}
		r.fail(types.FailureExtraction,
			fmt.Sprintf("no JSON document found in model output after %d attempts", r.attempts), err)
		return
	}

	r.extract = res
	r.doc = res.Node
	r.p.metrics.RecordExtraction(res.Strategy)
	r.session.Record(diagnostics.StageExtraction, map[string]any{
		"attempt":  r.attempts,
		"strategy": res.Strategy,
	})
	r.transition(StateNormalizing)
}

func (r *run) normalize() {
	doc, steps := r.p.normalizer.Normalize(r.doc, r.req.Schema)
	r.doc = doc
	r.steps = steps
	for _, s := range steps {
		r.p.metrics.RecordNormalizationStep(s.Rule)
	}
	if len(steps) > 0 {
		r.session.Record(diagnostics.StageNormalizeSteps, steps)
		r.logger.Debug("document normalized", zap.Int("steps", len(steps)))
	}
	r.session.Record(diagnostics.StageNormalized, doc)
	r.transition(StateValidating)
}

func (r *run) validate() {
	vr := r.p.validator.Validate(r.doc, r.req.Schema)
	r.session.Record(diagnostics.StageValidation, map[string]any{
		"valid":  vr.Valid(),
		"issues": vr.Issues,
	})
	if !vr.Valid() {
		for _, is := range vr.Issues {
			r.p.metrics.RecordValidationIssue(is.Code)
		}
		f := r.newFailure(types.FailureValidation,
			fmt.Sprintf("document failed schema validation with %d issues", len(vr.Issues)), vr.Err())
		f.Issues = vr.Issues
		r.setFailure(f)
		return
	}

	r.result = &Result{
		RunID:    r.runID,
		Record:   vr.Record,
		Steps:    r.steps,
		Strategy: r.extract.Strategy,
		Attempts: r.attempts,
		Usage:    r.usage,
		Model:    r.resp.Model,
	}
	r.transition(StateSucceeded)
}

// =============================================================================
// 🏁 终态
// =============================================================================

func (r *run) failTransport(err *types.Error) {
	r.session.Record(diagnostics.StageTransportError, err)
	r.fail(types.FailureTransport, "generation request failed: "+err.Message, err)
}

func (r *run) fail(kind types.FailureKind, message string, cause error) {
	r.setFailure(r.newFailure(kind, message, cause))
}

func (r *run) newFailure(kind types.FailureKind, message string, cause error) *types.Failure {
	return &types.Failure{Kind: kind, Message: message, RunID: r.runID, Cause: cause}
}

func (r *run) setFailure(f *types.Failure) {
	r.failure = f
	r.transition(StateFailed)
}

// finish 记录终态、写入诊断并上报指标，只执行一次
func (r *run) finish(ctx context.Context) {
	if r.finished {
		return
	}
	r.finished = true

	elapsed := time.Since(r.started)
	outcome := diagnostics.OutcomeSucceeded
	summary := map[string]any{
		"state":      r.state,
		"attempts":   r.attempts,
		"elapsed_ms": elapsed.Milliseconds(),
	}
	if r.failure != nil {
		outcome = string(r.failure.Kind)
		summary["kind"] = r.failure.Kind
		summary["message"] = r.failure.Message
		if r.failure.Cause != nil {
			summary["cause"] = r.failure.Cause.Error()
		}
	}
	summary["outcome"] = outcome

	r.session.Record(diagnostics.StageOutcome, summary)
	r.session.SetOutcome(outcome)
	r.session.Flush(ctx)

	r.p.metrics.RecordRun(r.schema, outcome, elapsed)
	r.p.instruments.RecordRun(ctx, r.schema, outcome, elapsed, r.attempts)

	r.span.SetAttributes(
		attribute.String("lessonpipe.outcome", outcome),
		attribute.Int("lessonpipe.attempts", r.attempts),
	)
	if r.failure != nil {
		r.span.RecordError(r.failure)
		r.span.SetStatus(codes.Error, string(r.failure.Kind))
		r.logger.Warn("generation run failed",
			zap.String("kind", string(r.failure.Kind)),
			zap.String("message", r.failure.Message),
			zap.Int("issues", len(r.failure.Issues)),
			zap.Int("attempts", r.attempts),
			zap.Duration("elapsed", elapsed),
		)
		return
	}
	r.span.SetStatus(codes.Ok, "")
	r.logger.Info("generation run succeeded",
		zap.String("strategy", r.result.Strategy),
		zap.Int("normalization_steps", len(r.result.Steps)),
		zap.Int("attempts", r.attempts),
		zap.Duration("elapsed", elapsed),
	)
}

// schemaLabel 返回用于日志与指标的 schema 名称
func schemaLabel(s *Schema) string {
	if s.Title != "" {
		return s.Title
	}
	return "anonymous"
}
