package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gojson "github.com/goccy/go-json"
)

const traceFileExt = ".json"

// FileStore writes one JSON document per run to <dir>/<run-id>.json.
// Suitable for single-node deployments and local debugging.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("diagnostics directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create diagnostics dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Name implements Store.
func (s *FileStore) Name() string { return string(StoreTypeFile) }

// Dir returns the base directory.
func (s *FileStore) Dir() string { return s.dir }

// Path returns the file path a run id maps to.
func (s *FileStore) Path(runID string) string {
	return filepath.Join(s.dir, runID+traceFileExt)
}

// Save implements Store. The write goes through a temp file and rename so
// readers never observe a partial document.
func (s *FileStore) Save(ctx context.Context, trace *Trace) error {
	if err := ValidateRunID(trace.RunID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := gojson.MarshalIndent(trace, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal trace: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, trace.RunID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write trace: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path(trace.RunID)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename trace file: %w", err)
	}
	return nil
}

// Load implements Loader.
func (s *FileStore) Load(ctx context.Context, runID string) (*Trace, error) {
	if err := ValidateRunID(runID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(runID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	var t Trace
	if err := gojson.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to decode trace %s: %w", runID, err)
	}
	return &t, nil
}

// List implements Lister, ordering by modification time.
func (s *FileStore) List(ctx context.Context, limit int) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read diagnostics dir: %w", err)
	}

	type item struct {
		id    string
		mtime int64
	}
	items := make([]item, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, traceFileExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		items = append(items, item{id: strings.TrimSuffix(name, traceFileExt), mtime: info.ModTime().UnixNano()})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].mtime != items[j].mtime {
			return items[i].mtime > items[j].mtime
		}
		return items[i].id < items[j].id
	})

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.id
	}
	return ids, nil
}
