package diagnostics

import (
	"time"
	"unicode/utf8"

	gojson "github.com/goccy/go-json"
)

// Stage identifies the pipeline step that produced a trace entry.
type Stage string

const (
	StageRequest          Stage = "request"
	StageRawResponse      Stage = "raw_response"
	StageTransportError   Stage = "transport_error"
	StageExtraction       Stage = "extraction"
	StageExtractionFailed Stage = "extraction_failed"
	StageNormalized       Stage = "normalized"
	StageNormalizeSteps   Stage = "normalization_steps"
	StageValidation       Stage = "validation"
	StageOutcome          Stage = "outcome"
)

// Terminal outcomes written into Trace.Outcome.
const (
	OutcomeSucceeded  = "succeeded"
	OutcomeIncomplete = "incomplete"
)

// DefaultMaxPayloadBytes caps a single entry payload.
const DefaultMaxPayloadBytes = 4096

// Entry is one append-only record in a trace.
type Entry struct {
	Stage     Stage     `json:"stage" bson:"stage"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	Payload   string    `json:"payload" bson:"payload"`
	Truncated bool      `json:"truncated,omitempty" bson:"truncated,omitempty"`
	// Size is the payload length in bytes before truncation.
	Size int `json:"size" bson:"size"`
}

// Trace is the diagnostic artifact of a single generation run.
type Trace struct {
	RunID      string    `json:"run_id" bson:"_id"`
	Schema     string    `json:"schema,omitempty" bson:"schema,omitempty"`
	Outcome    string    `json:"outcome" bson:"outcome"`
	StartedAt  time.Time `json:"started_at" bson:"started_at"`
	FinishedAt time.Time `json:"finished_at" bson:"finished_at"`
	Entries    []Entry   `json:"entries" bson:"entries"`
}

// Stage returns the entries recorded for the given stage in order.
func (t *Trace) Stage(stage Stage) []Entry {
	var out []Entry
	for _, e := range t.Entries {
		if e.Stage == stage {
			out = append(out, e)
		}
	}
	return out
}

// Clone returns a copy that shares no slices with t.
func (t *Trace) Clone() *Trace {
	c := *t
	c.Entries = append([]Entry(nil), t.Entries...)
	return &c
}

// snapshot 将任意值序列化为字符串，字符串与字节切片按原样保存
func snapshot(payload any) string {
	switch v := payload.(type) {
	case nil:
		return "null"
	case string:
		return v
	case []byte:
		return string(v)
	case error:
		return v.Error()
	default:
		b, err := gojson.Marshal(v)
		if err != nil {
			return "<unserializable: " + err.Error() + ">"
		}
		return string(b)
	}
}

// truncate 在 UTF-8 边界处截断
func truncate(s string, max int) (string, bool) {
	if max <= 0 || len(s) <= max {
		return s, false
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut], true
}
