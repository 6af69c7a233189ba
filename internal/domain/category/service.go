package category

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/split-budget/internal/common"
)

// Recomputer rebuilds monthly summaries from a month onwards.
type Recomputer interface {
	RecomputeFrom(ctx context.Context, userID uuid.UUID, year int, month time.Month) error
}

// CacheInvalidator drops cached categorization state for a user.
type CacheInvalidator interface {
	Invalidate(userID uuid.UUID)
}

// Service implements category CRUD.
type Service struct {
	repo        Repository
	recomputer  Recomputer
	invalidator CacheInvalidator
	logger      *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// WithRecomputer sets the summary recomputer used after changes that move money between buckets.
func (s *Service) WithRecomputer(r Recomputer) *Service {
	s.recomputer = r
	return s
}

// WithInvalidator sets the categorization cache to clear on every change.
func (s *Service) WithInvalidator(inv CacheInvalidator) *Service {
	s.invalidator = inv
	return s
}

func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]*Category, error) {
	cs, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cs == nil {
		cs = []*Category{}
	}
	return cs, nil
}

func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*Category, error) {
	return s.repo.Get(ctx, userID, id)
}

func (s *Service) Create(ctx context.Context, userID uuid.UUID, in Input) (*Category, error) {
	c, err := in.normalize()
	if err != nil {
		return nil, err
	}
	c.UserID = userID

	created, err := s.repo.Create(ctx, c)
	if err != nil {
		return nil, err
	}
	s.invalidate(userID)
	return created, nil
}

// Update replaces the category's fields. Changing the kind of a category
// that already has transactions is rejected; changing its bucket recomputes
// the affected summaries.
func (s *Service) Update(ctx context.Context, userID, id uuid.UUID, in Input) (*Category, error) {
	next, err := in.normalize()
	if err != nil {
		return nil, err
	}

	current, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	earliest, err := s.repo.EarliestTransaction(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if earliest != nil && current.Kind != next.Kind {
		return nil, common.Invalid("kind", "cannot change the kind of a category that has transactions")
	}

	next.ID = id
	next.UserID = userID
	updated, err := s.repo.Update(ctx, next)
	if err != nil {
		return nil, err
	}
	s.invalidate(userID)

	if earliest != nil && !sameBucket(current, updated) {
		s.recompute(ctx, userID, *earliest)
	}
	return updated, nil
}

// Delete removes the category. Its transactions become uncategorized and
// the months they fall in are recomputed.
func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	earliest, err := s.repo.EarliestTransaction(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.invalidate(userID)

	if earliest != nil {
		s.recompute(ctx, userID, *earliest)
	}
	return nil
}

// SeedDefaults creates the starter categories for a user.
func (s *Service) SeedDefaults(ctx context.Context, userID uuid.UUID) error {
	defaults, err := Defaults()
	if err != nil {
		return err
	}

	n, err := s.repo.CreateMany(ctx, userID, defaults)
	if err != nil {
		return err
	}
	s.invalidate(userID)

	s.logger.DebugContext(ctx, "seeded default categories",
		slog.String("user_id", userID.String()),
		slog.Int("created", n),
	)
	return nil
}

// recompute logs failures; the category change itself is already stored.
func (s *Service) recompute(ctx context.Context, userID uuid.UUID, from time.Time) {
	if s.recomputer == nil {
		return
	}
	if err := s.recomputer.RecomputeFrom(ctx, userID, from.Year(), from.Month()); err != nil {
		s.logger.ErrorContext(ctx, "failed to recompute summaries",
			slog.String("user_id", userID.String()),
			slog.String("from", from.Format("2006-01")),
			slog.Any("error", err),
		)
	}
}

func (s *Service) invalidate(userID uuid.UUID) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(userID)
	}
}

func sameBucket(a, b *Category) bool {
	if a.Bucket == nil || b.Bucket == nil {
		return a.Bucket == nil && b.Bucket == nil
	}
	return *a.Bucket == *b.Bucket
}
