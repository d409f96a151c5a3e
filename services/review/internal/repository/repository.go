package repository

import (
	"context"

	"github.com/rakeshshah18/philanzel-sub001/services/review/internal/domain"
)

// ReviewSectionFilter defines filter criteria for listing sections.
type ReviewSectionFilter struct {
	ActiveOnly bool
	Page       int
	PerPage    int
}

// ReviewSectionRepository defines the persistence operations for review
// sections. Sections are stored and loaded whole, reviews included.
type ReviewSectionRepository interface {
	// Create inserts a new section and assigns its Sequence.
	Create(ctx context.Context, section *domain.ReviewSection) error

	// GetByID retrieves a section. It returns apperrors.ErrNotFound (wrapped)
	// when no section has the id.
	GetByID(ctx context.Context, id string) (*domain.ReviewSection, error)

	// List returns one page of sections ordered by display order, then
	// creation order, along with the total count. PerPage <= 0 returns all.
	List(ctx context.Context, filter ReviewSectionFilter) ([]domain.ReviewSection, int, error)

	// ListAll returns every stored section.
	ListAll(ctx context.Context) ([]domain.ReviewSection, error)

	// SaveIfVersion replaces the stored section only if its stored version
	// equals expected, storing section.Version (expected+1). It returns false
	// without error when no section with that id and version is stored.
	SaveIfVersion(ctx context.Context, section *domain.ReviewSection, expected int64) (bool, error)
}
