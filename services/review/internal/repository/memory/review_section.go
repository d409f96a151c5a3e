// Package memory keeps review sections in process memory. It backs tests and
// single-instance local runs (REVIEW_STORAGE_DRIVER=memory).
package memory

import (
	"context"
	"sync"

	apperrors "github.com/rakeshshah18/philanzel-sub001/pkg/errors"
	"github.com/rakeshshah18/philanzel-sub001/pkg/pagination"
	"github.com/rakeshshah18/philanzel-sub001/services/review/internal/domain"
	"github.com/rakeshshah18/philanzel-sub001/services/review/internal/repository"
)

// ReviewSectionRepository implements repository.ReviewSectionRepository.
// Documents are copied on the way in and out.
type ReviewSectionRepository struct {
	mu       sync.RWMutex
	sections map[string]*domain.ReviewSection
	seq      int64
}

// NewReviewSectionRepository creates an empty store.
func NewReviewSectionRepository() *ReviewSectionRepository {
	return &ReviewSectionRepository{sections: make(map[string]*domain.ReviewSection)}
}

func (r *ReviewSectionRepository) Create(_ context.Context, s *domain.ReviewSection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sections[s.ID]; ok {
		return apperrors.AlreadyExists("review section", "id", s.ID)
	}
	r.seq++
	s.Sequence = r.seq
	r.sections[s.ID] = s.Clone()
	return nil
}

func (r *ReviewSectionRepository) GetByID(_ context.Context, id string) (*domain.ReviewSection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sections[id]
	if !ok {
		return nil, apperrors.NotFound("review section", id)
	}
	return s.Clone(), nil
}

func (r *ReviewSectionRepository) List(ctx context.Context, filter repository.ReviewSectionFilter) ([]domain.ReviewSection, int, error) {
	all, _ := r.ListAll(ctx)

	sections := all[:0]
	for _, s := range all {
		if filter.ActiveOnly && !s.IsActive {
			continue
		}
		sections = append(sections, s)
	}
	domain.SortSections(sections)

	total := len(sections)
	if filter.PerPage > 0 {
		start, end := pagination.New(filter.Page, filter.PerPage).Bounds(total)
		sections = sections[start:end]
	}
	return sections, total, nil
}

func (r *ReviewSectionRepository) ListAll(_ context.Context) ([]domain.ReviewSection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sections := make([]domain.ReviewSection, 0, len(r.sections))
	for _, s := range r.sections {
		sections = append(sections, *s.Clone())
	}
	return sections, nil
}

func (r *ReviewSectionRepository) SaveIfVersion(_ context.Context, s *domain.ReviewSection, expected int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.sections[s.ID]
	if !ok || stored.Version != expected {
		return false, nil
	}
	next := s.Clone()
	next.Sequence = stored.Sequence
	r.sections[s.ID] = next
	return true, nil
}
