package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Common errors
var (
	ErrNotFound     = errors.New("trace not found")
	ErrInvalidRunID = errors.New("invalid run id")
)

// Store persists finished traces.
type Store interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	Save(ctx context.Context, trace *Trace) error
}

// Loader is implemented by stores that can read traces back.
type Loader interface {
	Load(ctx context.Context, runID string) (*Trace, error)
}

// Lister is implemented by stores that can enumerate recent run ids,
// most recent first.
type Lister interface {
	List(ctx context.Context, limit int) ([]string, error)
}

// Pinger is implemented by stores backed by a remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreType represents the type of storage backend
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeFile   StoreType = "file"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeGorm   StoreType = "database"
	StoreTypeMongo  StoreType = "mongo"
	StoreTypeLog    StoreType = "log"
)

const maxRunIDLength = 64

// ValidateRunID rejects ids that cannot be used as file names or keys.
func ValidateRunID(runID string) error {
	if runID == "" {
		return fmt.Errorf("%w: empty", ErrInvalidRunID)
	}
	if len(runID) > maxRunIDLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidRunID, maxRunIDLength)
	}
	if runID == "." || runID == ".." || strings.ContainsAny(runID, `/\:*?"<>|`) {
		return fmt.Errorf("%w: %q", ErrInvalidRunID, runID)
	}
	for _, r := range runID {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: control character", ErrInvalidRunID)
		}
	}
	return nil
}

// =============================================================================
// 🔀 扇出写入
// =============================================================================

// fanOut 并发写入所有后端，单个后端失败不影响其他后端
func fanOut(ctx context.Context, stores []Store, trace *Trace, observe func(Store, time.Duration, error)) error {
	errs := make([]error, len(stores))
	var wg sync.WaitGroup
	for i, s := range stores {
		wg.Add(1)
		go func(i int, s Store) {
			defer wg.Done()
			start := time.Now()
			err := s.Save(ctx, trace)
			if observe != nil {
				observe(s, time.Since(start), err)
			}
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", s.Name(), err)
			}
		}(i, s)
	}
	wg.Wait()
	return errors.Join(errs...)
}
