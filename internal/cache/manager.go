package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"vx-continuous/internal/series"
)

// SeriesStore is an optional second cache layer that survives process
// restarts. It must round-trip a ContinuousSeries losslessly.
type SeriesStore interface {
	GetSeries(ctx context.Context, fingerprint string) (*series.ContinuousSeries, bool, error)
	SaveSeries(ctx context.Context, fingerprint string, s *series.ContinuousSeries) error
}

// BuildFunc produces a series when no cached entry exists.
type BuildFunc func(ctx context.Context) (*series.ContinuousSeries, error)

// BuildError wraps a failure raised inside GetOrBuild. Failed builds are
// never cached, so an identical request retries once the data is fixed.
type BuildError struct {
	Fingerprint string
	Err         error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("cache: build failed for fingerprint %.12s: %v", e.Fingerprint, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// Manager memoizes series builds by fingerprint. Entries are immutable once
// stored; concurrent requests for the same fingerprint share a single
// in-flight build. The manager is an injectable component with an explicit
// lifecycle, not a hidden singleton.
type Manager struct {
	mu     sync.RWMutex
	mem    map[string]*series.ContinuousSeries
	store  SeriesStore
	group  singleflight.Group
	logger zerolog.Logger
}

// NewManager constructs a Manager. store may be nil for memory-only caching.
func NewManager(store SeriesStore, logger zerolog.Logger) *Manager {
	return &Manager{
		mem:    make(map[string]*series.ContinuousSeries),
		store:  store,
		logger: logger.With().Str("component", "cache").Logger(),
	}
}

// GetOrBuild returns the cached series for fingerprint, or invokes build
// exactly once per cache lifetime, stores the result, and returns it. A
// second concurrent request for the same fingerprint waits for the in-flight
// build rather than duplicating it.
func (m *Manager) GetOrBuild(ctx context.Context, fingerprint string, build BuildFunc) (*series.ContinuousSeries, error) {
	if s, ok := m.lookup(fingerprint); ok {
		return s, nil
	}

	v, err, _ := m.group.Do(fingerprint, func() (interface{}, error) {
		if s, ok := m.lookup(fingerprint); ok {
			return s, nil
		}

		if m.store != nil {
			s, ok, storeErr := m.store.GetSeries(ctx, fingerprint)
			if storeErr != nil {
				m.logger.Warn().Err(storeErr).Str("fingerprint", fingerprint).
					Msg("persistent cache lookup failed; rebuilding")
			} else if ok {
				m.remember(fingerprint, s)
				return s, nil
			}
		}

		s, buildErr := build(ctx)
		if buildErr != nil {
			return nil, buildErr
		}

		m.remember(fingerprint, s)
		if m.store != nil {
			if saveErr := m.store.SaveSeries(ctx, fingerprint, s); saveErr != nil {
				m.logger.Error().Err(saveErr).Str("fingerprint", fingerprint).
					Msg("failed to persist built series")
			}
		}
		return s, nil
	})
	if err != nil {
		return nil, &BuildError{Fingerprint: fingerprint, Err: err}
	}
	return v.(*series.ContinuousSeries), nil
}

// Flush drops the in-memory layer. Persistent entries are untouched.
func (m *Manager) Flush() {
	m.mu.Lock()
	m.mem = make(map[string]*series.ContinuousSeries)
	m.mu.Unlock()
}

// Len reports the number of in-memory entries.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.mem)
}

func (m *Manager) lookup(fingerprint string) (*series.ContinuousSeries, bool) {
	m.mu.RLock()
	s, ok := m.mem[fingerprint]
	m.mu.RUnlock()
	return s, ok
}

func (m *Manager) remember(fingerprint string, s *series.ContinuousSeries) {
	m.mu.Lock()
	m.mem[fingerprint] = s
	m.mu.Unlock()
}
