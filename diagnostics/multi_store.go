package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// MultiStore fans a trace out to several stores. Reads go to the first
// store that has the trace.
type MultiStore struct {
	stores  []Store
	closers []io.Closer
}

// NewMultiStore combines stores; nil entries are skipped.
func NewMultiStore(stores ...Store) *MultiStore {
	m := &MultiStore{}
	for _, s := range stores {
		if s != nil {
			m.stores = append(m.stores, s)
		}
	}
	return m
}

// Stores returns the wrapped stores.
func (m *MultiStore) Stores() []Store {
	return append([]Store(nil), m.stores...)
}

// Ping checks every store that implements Pinger.
func (m *MultiStore) Ping(ctx context.Context) error {
	var errs []error
	for _, s := range m.stores {
		p, ok := s.(Pinger)
		if !ok {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Name implements Store.
func (m *MultiStore) Name() string {
	names := make([]string, len(m.stores))
	for i, s := range m.stores {
		names[i] = s.Name()
	}
	return "multi(" + strings.Join(names, ",") + ")"
}

// Save implements Store. Every store is attempted; errors are joined.
func (m *MultiStore) Save(ctx context.Context, trace *Trace) error {
	return fanOut(ctx, m.stores, trace, nil)
}

// Load implements Loader.
func (m *MultiStore) Load(ctx context.Context, runID string) (*Trace, error) {
	var errs []error
	for _, s := range m.stores {
		l, ok := s.(Loader)
		if !ok {
			continue
		}
		t, err := l.Load(ctx, runID)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, ErrNotFound
}

// List implements Lister using the first store that can list.
func (m *MultiStore) List(ctx context.Context, limit int) ([]string, error) {
	for _, s := range m.stores {
		if l, ok := s.(Lister); ok {
			return l.List(ctx, limit)
		}
	}
	return nil, errors.New("no configured diagnostics store supports listing")
}

// addCloser 登记随 MultiStore 一起释放的底层连接
func (m *MultiStore) addCloser(c io.Closer) {
	m.closers = append(m.closers, c)
}

// Close closes every store that holds resources, then the shared
// connections registered by Open.
func (m *MultiStore) Close() error {
	var errs []error
	for _, s := range m.stores {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	for _, c := range m.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
