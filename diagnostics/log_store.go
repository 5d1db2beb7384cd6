package diagnostics

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogStore emits each trace as one structured log line. Useful where the log
// pipeline already ships to a searchable backend.
type LogStore struct {
	logger *zap.Logger
	level  zapcore.Level
}

// NewLogStore creates a log-backed store writing at the given level.
func NewLogStore(logger *zap.Logger, level zapcore.Level) *LogStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogStore{
		logger: logger.With(zap.String("component", "diagnostics_trace")),
		level:  level,
	}
}

// Name implements Store.
func (s *LogStore) Name() string { return string(StoreTypeLog) }

// Save implements Store.
func (s *LogStore) Save(ctx context.Context, trace *Trace) error {
	ce := s.logger.Check(s.level, "diagnostic trace")
	if ce == nil {
		return nil
	}
	ce.Write(
		zap.String("run_id", trace.RunID),
		zap.String("schema", trace.Schema),
		zap.String("outcome", trace.Outcome),
		zap.Time("started_at", trace.StartedAt),
		zap.Duration("elapsed", trace.FinishedAt.Sub(trace.StartedAt)),
		zap.Array("entries", entryArray(trace.Entries)),
	)
	return nil
}

// entryArray 把 trace 条目编码为结构化数组
type entryArray []Entry

func (a entryArray) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for i := range a {
		if err := enc.AppendObject(logEntry(a[i])); err != nil {
			return err
		}
	}
	return nil
}

type logEntry Entry

func (e logEntry) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("stage", string(e.Stage))
	enc.AddTime("timestamp", e.Timestamp)
	enc.AddString("payload", e.Payload)
	if e.Truncated {
		enc.AddBool("truncated", true)
		enc.AddInt("size", e.Size)
	}
	return nil
}
