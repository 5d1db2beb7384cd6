package structured

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/BaSui01/lessonpipe/llm/retry"
	"github.com/BaSui01/lessonpipe/types"
)

// DefaultBatchConcurrency is used when RunBatch gets a non-positive limit.
const DefaultBatchConcurrency = 4

// BatchResult is the outcome of one request of a batch, at the request's index.
type BatchResult struct {
	Index  int
	Result *Result
	Err    error
}

// RunBatch runs independent requests with at most maxConcurrency in flight.
// Results keep request order. A failed run does not stop the others; once
// ctx is done no new runs start and the remaining slots carry a canceled
// transport failure.
func RunBatch(ctx context.Context, p *Pipeline, reqs []*Request, maxConcurrency int) []BatchResult {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultBatchConcurrency
	}
	results := make([]BatchResult, len(reqs))
	sem := semaphore.NewWeighted(int64(maxConcurrency))
	var g errgroup.Group

	for i, req := range reqs {
		results[i].Index = i
		if err := sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(reqs); j++ {
				results[j] = BatchResult{Index: j, Err: canceledFailure(err)}
			}
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			res, err := p.Run(ctx, req)
			results[i].Result = res
			results[i].Err = err
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// canceledFailure 未启动的请求
func canceledFailure(cause error) *types.Failure {
	return &types.Failure{
		Kind:    types.FailureTransport,
		Message: "batch canceled before the run started",
		Cause:   retry.Classify(cause),
	}
}

// BatchSummary counts batch outcomes by failure kind.
type BatchSummary struct {
	Total     int                       `json:"total"`
	Succeeded int                       `json:"succeeded"`
	Failed    map[types.FailureKind]int `json:"failed,omitempty"`
}

// Summarize tallies a batch.
func Summarize(results []BatchResult) BatchSummary {
	s := BatchSummary{Total: len(results), Failed: make(map[types.FailureKind]int)}
	for _, r := range results {
		if r.Err == nil {
			s.Succeeded++
			continue
		}
		if f, ok := types.AsFailure(r.Err); ok {
			s.Failed[f.Kind]++
		} else {
			s.Failed[types.FailureTransport]++
		}
	}
	return s
}
