package budget

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Recomputer rebuilds a user's monthly summaries after the rule changes.
type Recomputer interface {
	RecomputeAll(ctx context.Context, userID uuid.UUID) error
}

// Service manages budget rules and allocations.
type Service struct {
	repo       Repository
	recomputer Recomputer
	logger     *slog.Logger
}

// NewService creates a new budget service
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// WithRecomputer sets the summary recomputer triggered by UpdateRule.
func (s *Service) WithRecomputer(r Recomputer) *Service {
	s.recomputer = r
	return s
}

// GetRule returns the user's rule, falling back to the default split.
func (s *Service) GetRule(ctx context.Context, userID uuid.UUID) (*Rule, error) {
	return s.repo.GetRule(ctx, userID)
}

// UpdateRule validates and stores the rule, then recomputes the user's
// summaries since their targets depend on it.
func (s *Service) UpdateRule(ctx context.Context, userID uuid.UUID, rule Rule) (*Rule, error) {
	rule.UserID = userID
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	current, err := s.repo.GetRule(ctx, userID)
	if err != nil {
		return nil, err
	}
	rule.Currency = current.Currency

	saved, err := s.repo.UpsertRule(ctx, &rule)
	if err != nil {
		return nil, err
	}

	if s.recomputer != nil {
		if err := s.recomputer.RecomputeAll(ctx, userID); err != nil {
			s.logger.ErrorContext(ctx, "failed to recompute summaries after rule change",
				slog.String("user_id", userID.String()),
				slog.Any("error", err),
			)
		}
	}

	s.logger.InfoContext(ctx, "budget rule updated",
		slog.String("user_id", userID.String()),
		slog.Any("percentages", saved.Percentages()),
	)
	return saved, nil
}

// Allocation splits an income amount with the user's rule.
func (s *Service) Allocation(ctx context.Context, userID uuid.UUID, incomeCents int64) (Allocation, error) {
	rule, err := s.repo.GetRule(ctx, userID)
	if err != nil {
		return Allocation{}, err
	}
	return Allocate(rule, incomeCents)
}
