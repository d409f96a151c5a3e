package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/rakeshshah18/philanzel-sub001/pkg/errors"
	"github.com/rakeshshah18/philanzel-sub001/services/review/internal/domain"
	"github.com/rakeshshah18/philanzel-sub001/services/review/internal/repository"
)

func newSection(heading string, order int, at time.Time) *domain.ReviewSection {
	return domain.NewReviewSection(domain.CreateSectionInput{
		Heading:           heading,
		Description:       "Reviews",
		WriteReviewButton: domain.WriteReviewButtonInput{URL: "https://example.com/review"},
		DisplayOrder:      order,
	}, at)
}

func TestCreateAndGet_CopiesDocuments(t *testing.T) {
	repo := NewReviewSectionRepository()
	ctx := context.Background()
	s := newSection("Clients", 0, time.Now())

	require.NoError(t, repo.Create(ctx, s))
	assert.Equal(t, int64(1), s.Sequence)

	s.Heading = "mutated after create"
	got, err := repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "Clients", got.Heading)

	got.Reviews = append(got.Reviews, domain.Review{ID: "x"})
	again, err := repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Reviews)
}

func TestCreate_Duplicate(t *testing.T) {
	repo := NewReviewSectionRepository()
	s := newSection("Clients", 0, time.Now())
	require.NoError(t, repo.Create(context.Background(), s))

	err := repo.Create(context.Background(), s)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
}

func TestGetByID_NotFound(t *testing.T) {
	repo := NewReviewSectionRepository()

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestList_OrderFilterPage(t *testing.T) {
	repo := NewReviewSectionRepository()
	ctx := context.Background()
	at := time.Now()
	inputs := []*domain.ReviewSection{
		newSection("C", 1, at),
		newSection("A", 0, at),
		newSection("B", 0, at),
		newSection("Off", 0, at.Add(-time.Hour)),
	}
	inputs[3].IsActive = false
	for _, s := range inputs {
		require.NoError(t, repo.Create(ctx, s))
	}

	active, total, err := repo.List(ctx, repository.ReviewSectionFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"A", "B", "C"}, headings(active))

	page, total, err := repo.List(ctx, repository.ReviewSectionFilter{Page: 1, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Equal(t, []string{"Off", "A"}, headings(page))
}

func headings(sections []domain.ReviewSection) []string {
	out := make([]string, len(sections))
	for i, s := range sections {
		out[i] = s.Heading
	}
	return out
}

func TestSaveIfVersion_CompareAndSwap(t *testing.T) {
	repo := NewReviewSectionRepository()
	ctx := context.Background()
	s := newSection("Clients", 0, time.Now())
	require.NoError(t, repo.Create(ctx, s))

	next := s.Clone()
	next.Version = 2
	next.Sequence = 0
	ok, err := repo.SaveIfVersion(ctx, next, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.SaveIfVersion(ctx, next, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, int64(1), got.Sequence)

	ok, err = repo.SaveIfVersion(ctx, newSection("ghost", 0, time.Now()), 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveIfVersion_OneWinnerPerVersion(t *testing.T) {
	repo := NewReviewSectionRepository()
	ctx := context.Background()
	s := newSection("Clients", 0, time.Now())
	require.NoError(t, repo.Create(ctx, s))

	const writers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next := s.Clone()
			next.Version = 2
			ok, err := repo.SaveIfVersion(ctx, next, 1)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}
