package category

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/split-budget/internal/common"
)

// MockRepository keeps categories in memory.
type MockRepository struct {
	categories map[uuid.UUID]*Category
	earliest   map[uuid.UUID]time.Time
}

func newMockRepository() *MockRepository {
	return &MockRepository{categories: map[uuid.UUID]*Category{}, earliest: map[uuid.UUID]time.Time{}}
}

func (m *MockRepository) List(_ context.Context, userID uuid.UUID) ([]*Category, error) {
	var out []*Category
	for _, c := range m.categories {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MockRepository) Get(_ context.Context, userID, id uuid.UUID) (*Category, error) {
	c, ok := m.categories[id]
	if !ok || c.UserID != userID {
		return nil, ErrCategoryNotFound
	}
	return c, nil
}

func (m *MockRepository) Create(_ context.Context, c *Category) (*Category, error) {
	for _, existing := range m.categories {
		if existing.UserID == c.UserID && strings.EqualFold(existing.Name, c.Name) {
			return nil, ErrDuplicateName
		}
	}
	created := *c
	created.ID = uuid.New()
	m.categories[created.ID] = &created
	return &created, nil
}

func (m *MockRepository) CreateMany(ctx context.Context, userID uuid.UUID, cs []*Category) (int, error) {
	n := 0
	for _, c := range cs {
		c.UserID = userID
		if _, err := m.Create(ctx, c); err == nil {
			n++
		}
	}
	return n, nil
}

func (m *MockRepository) Update(_ context.Context, c *Category) (*Category, error) {
	if _, ok := m.categories[c.ID]; !ok {
		return nil, ErrCategoryNotFound
	}
	updated := *c
	m.categories[c.ID] = &updated
	return &updated, nil
}

func (m *MockRepository) Delete(_ context.Context, userID, id uuid.UUID) error {
	c, ok := m.categories[id]
	if !ok || c.UserID != userID {
		return ErrCategoryNotFound
	}
	delete(m.categories, id)
	return nil
}

func (m *MockRepository) EarliestTransaction(_ context.Context, _, id uuid.UUID) (*time.Time, error) {
	if t, ok := m.earliest[id]; ok {
		return &t, nil
	}
	return nil, nil
}

type recomputeCall struct {
	year  int
	month time.Month
}

type mockRecomputer struct {
	calls []recomputeCall
	err   error
}

func (m *mockRecomputer) RecomputeFrom(_ context.Context, _ uuid.UUID, year int, month time.Month) error {
	m.calls = append(m.calls, recomputeCall{year, month})
	return m.err
}

type mockInvalidator struct{ count int }

func (m *mockInvalidator) Invalidate(uuid.UUID) { m.count++ }

func newTestService() (*Service, *MockRepository, *mockRecomputer, *mockInvalidator) {
	repo := newMockRepository()
	rec := &mockRecomputer{}
	inv := &mockInvalidator{}
	svc := NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithRecomputer(rec).
		WithInvalidator(inv)
	return svc, repo, rec, inv
}

func TestService_CreateAndDuplicate(t *testing.T) {
	svc, _, _, inv := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	c, err := svc.Create(ctx, userID, Input{Name: "Rent", Kind: "expense", Bucket: "needs"})
	require.NoError(t, err)
	assert.Equal(t, userID, c.UserID)
	assert.Equal(t, 1, inv.count)

	_, err = svc.Create(ctx, userID, Input{Name: "RENT", Kind: "expense", Bucket: "needs"})
	assert.ErrorIs(t, err, common.ErrConflict)

	_, err = svc.Create(ctx, uuid.New(), Input{Name: "Rent", Kind: "expense", Bucket: "needs"})
	assert.NoError(t, err, "names are unique per user only")
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("bucket change recomputes from earliest transaction", func(t *testing.T) {
		svc, repo, rec, _ := newTestService()
		c, err := svc.Create(ctx, userID, Input{Name: "Gym", Kind: "expense", Bucket: "wants"})
		require.NoError(t, err)
		repo.earliest[c.ID] = time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)

		_, err = svc.Update(ctx, userID, c.ID, Input{Name: "Gym", Kind: "expense", Bucket: "needs"})
		require.NoError(t, err)
		assert.Equal(t, []recomputeCall{{2024, time.March}}, rec.calls)
	})

	t.Run("rename does not recompute", func(t *testing.T) {
		svc, repo, rec, _ := newTestService()
		c, err := svc.Create(ctx, userID, Input{Name: "Gym", Kind: "expense", Bucket: "wants"})
		require.NoError(t, err)
		repo.earliest[c.ID] = time.Now()

		updated, err := svc.Update(ctx, userID, c.ID, Input{Name: "Fitness", Kind: "expense", Bucket: "wants"})
		require.NoError(t, err)
		assert.Equal(t, "Fitness", updated.Name)
		assert.Empty(t, rec.calls)
	})

	t.Run("kind change with transactions rejected", func(t *testing.T) {
		svc, repo, _, _ := newTestService()
		c, err := svc.Create(ctx, userID, Input{Name: "Bonus", Kind: "income"})
		require.NoError(t, err)
		repo.earliest[c.ID] = time.Now()

		_, err = svc.Update(ctx, userID, c.ID, Input{Name: "Bonus", Kind: "expense", Bucket: "wants"})
		assert.ErrorIs(t, err, common.ErrInvalidInput)
	})

	t.Run("other user's category", func(t *testing.T) {
		svc, _, _, _ := newTestService()
		c, err := svc.Create(ctx, userID, Input{Name: "Mine", Kind: "income"})
		require.NoError(t, err)

		_, err = svc.Update(ctx, uuid.New(), c.ID, Input{Name: "Stolen", Kind: "income"})
		assert.ErrorIs(t, err, common.ErrNotFound)
	})
}

func TestService_Delete(t *testing.T) {
	svc, repo, rec, _ := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	c, err := svc.Create(ctx, userID, Input{Name: "Old", Kind: "expense", Bucket: "wants"})
	require.NoError(t, err)
	repo.earliest[c.ID] = time.Date(2023, time.December, 31, 0, 0, 0, 0, time.UTC)

	require.NoError(t, svc.Delete(ctx, userID, c.ID))
	assert.Equal(t, []recomputeCall{{2023, time.December}}, rec.calls)

	assert.ErrorIs(t, svc.Delete(ctx, userID, c.ID), common.ErrNotFound)
}

func TestService_SeedDefaults(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, svc.SeedDefaults(ctx, userID))
	first, err := svc.List(ctx, userID)
	require.NoError(t, err)

	defaults, err := Defaults()
	require.NoError(t, err)
	assert.Len(t, first, len(defaults))

	require.NoError(t, svc.SeedDefaults(ctx, userID))
	second, err := svc.List(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, second, len(first), "seeding twice must not duplicate")
}

func TestService_RecomputeFailureDoesNotFailWrites(t *testing.T) {
	svc, repo, rec, _ := newTestService()
	rec.err = errors.New("db hiccup")
	ctx := context.Background()
	userID := uuid.New()

	c, err := svc.Create(ctx, userID, Input{Name: "Gym", Kind: "expense", Bucket: "wants"})
	require.NoError(t, err)
	repo.earliest[c.ID] = time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)

	updated, err := svc.Update(ctx, userID, c.ID, Input{Name: "Gym", Kind: "expense", Bucket: "needs"})
	require.NoError(t, err)
	require.NotNil(t, updated.Bucket)
	assert.Equal(t, "needs", string(*updated.Bucket))

	require.NoError(t, svc.Delete(ctx, userID, c.ID))
	assert.Len(t, rec.calls, 2)
	_, err = svc.Get(ctx, userID, c.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}
