package categorization

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/FACorreiaa/split-budget/internal/domain/category"
)

// Confidence reported for each way a category can be found.
const (
	ConfidenceWholeWord = 1.0
	ConfidenceSubstring = 0.9
	ConfidenceSearch    = 0.7
	// ConfidenceFuzzy is scaled by the fuzzy score.
	ConfidenceFuzzy = 0.6

	fuzzyThreshold = 75
	searchLimit    = 5
)

// CategoryLister loads the categories of a user.
type CategoryLister interface {
	List(ctx context.Context, userID uuid.UUID) ([]*category.Category, error)
}

type matchers struct {
	engine *Engine
	search *SearchIndex
	fuzzy  *FuzzyMatcher

	// refs is raised under Service.mu; a retired set is closed once idle
	refs      atomic.Int32
	retired   atomic.Bool
	closeOnce sync.Once
}

func (m *matchers) close() {
	m.closeOnce.Do(func() {
		if m.search != nil {
			_ = m.search.Close()
		}
	})
}

func (m *matchers) release() {
	if m.refs.Add(-1) == 0 && m.retired.Load() {
		m.close()
	}
}

// retire must be called with Service.mu held.
func (m *matchers) retire() {
	m.retired.Store(true)
	if m.refs.Load() == 0 {
		m.close()
	}
}

// Service categorizes descriptions with per-user matchers built from the
// user's categories and cached until Invalidate.
type Service struct {
	categories CategoryLister
	logger     *slog.Logger

	mu         sync.RWMutex
	cache      map[uuid.UUID]*matchers
	generation map[uuid.UUID]uint64
	group      singleflight.Group
}

func NewService(categories CategoryLister, logger *slog.Logger) *Service {
	return &Service{
		categories: categories,
		logger:     logger,
		cache:      make(map[uuid.UUID]*matchers),
		generation: make(map[uuid.UUID]uint64),
	}
}

// Categorize picks a category for a transaction. Only categories whose
// kind matches the sign of amountCents are eligible. A nil id with zero
// confidence means no category was found.
func (s *Service) Categorize(ctx context.Context, userID uuid.UUID, description string, amountCents int64) (*uuid.UUID, float64, error) {
	kind, ok := KindFor(amountCents)
	if !ok {
		return nil, 0, nil
	}

	m, err := s.acquire(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	defer m.release()

	if match := m.engine.Match(description, kind); match != nil {
		id := match.CategoryID
		if match.WholeWord {
			return &id, ConfidenceWholeWord, nil
		}
		return &id, ConfidenceSubstring, nil
	}

	cleaned := stripNoise(description)

	hits, err := m.search.Search(cleaned, kind, searchLimit)
	if err != nil {
		s.logger.Warn("categorization search failed", slog.String("user_id", userID.String()), slog.Any("error", err))
	} else if len(hits) > 0 {
		id := hits[0].CategoryID
		return &id, ConfidenceSearch, nil
	}

	if res := m.fuzzy.Match(cleaned, kind, fuzzyThreshold); res != nil {
		id := res.CategoryID
		return &id, ConfidenceFuzzy * float64(res.Score) / 100, nil
	}
	return nil, 0, nil
}

// Invalidate drops the cached matchers of a user. Matchers still in use
// by a Categorize call are closed when that call returns.
func (s *Service) Invalidate(userID uuid.UUID) {
	s.mu.Lock()
	if m, ok := s.cache[userID]; ok {
		delete(s.cache, userID)
		m.retire()
	}
	s.generation[userID]++
	s.mu.Unlock()

	s.group.Forget(userID.String())
}

// Close releases every cached search index.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.cache {
		delete(s.cache, id)
		m.retire()
	}
}

// acquire returns the cached matchers of a user, building them on a miss.
// The caller must release them.
func (s *Service) acquire(ctx context.Context, userID uuid.UUID) (*matchers, error) {
	for {
		s.mu.RLock()
		m, ok := s.cache[userID]
		if ok {
			m.refs.Add(1)
		}
		gen := s.generation[userID]
		s.mu.RUnlock()
		if ok {
			return m, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		_, err, _ := s.group.Do(userID.String(), func() (any, error) {
			built, err := s.build(ctx, userID)
			if err != nil {
				return nil, err
			}

			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.cache[userID]; ok || s.generation[userID] != gen {
				// stale or already cached, the next lookup decides
				built.close()
				return nil, nil
			}
			s.cache[userID] = built
			return nil, nil
		})
		if err != nil {
			return nil, err
		}
	}
}

func (s *Service) build(ctx context.Context, userID uuid.UUID) (*matchers, error) {
	cs, err := s.categories.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	rules := RulesFromCategories(cs)

	search, err := NewSearchIndex()
	if err != nil {
		return nil, err
	}
	if err := search.IndexRules(rules); err != nil {
		_ = search.Close()
		return nil, err
	}

	s.logger.Debug("categorization rules loaded",
		slog.String("user_id", userID.String()),
		slog.Int("categories", len(cs)),
		slog.Int("rules", len(rules)),
	)
	return &matchers{
		engine: NewEngine(rules),
		search: search,
		fuzzy:  NewFuzzyMatcher(rules),
	}, nil
}
