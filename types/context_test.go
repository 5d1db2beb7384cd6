package types

import (
	"context"
	"testing"
)

func TestContextHelpers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	if _, ok := RunID(ctx); ok {
		t.Fatalf("expected no run id on empty context")
	}

	ctx = WithTraceID(ctx, "t1")
	if got, ok := TraceID(ctx); !ok || got != "t1" {
		t.Fatalf("TraceID mismatch: %v %v", got, ok)
	}

	ctx = WithRunID(ctx, "run")
	if got, ok := RunID(ctx); !ok || got != "run" {
		t.Fatalf("RunID mismatch: %v %v", got, ok)
	}

	ctx = WithLLMModel(ctx, "gemini-2.0-flash")
	if got, ok := LLMModel(ctx); !ok || got != "gemini-2.0-flash" {
		t.Fatalf("LLMModel mismatch: %v %v", got, ok)
	}

	ctx = WithRunID(ctx, "")
	if _, ok := RunID(ctx); ok {
		t.Fatalf("empty run id must be reported as absent")
	}
}
