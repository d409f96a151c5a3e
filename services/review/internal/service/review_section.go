package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/rakeshshah18/philanzel-sub001/pkg/errors"
	"github.com/rakeshshah18/philanzel-sub001/services/review/internal/domain"
	"github.com/rakeshshah18/philanzel-sub001/services/review/internal/event"
	"github.com/rakeshshah18/philanzel-sub001/services/review/internal/repository"
)

// DefaultMaxAttempts bounds how often a retryable write re-reads and
// re-applies itself after losing a version race.
const DefaultMaxAttempts = 3

// Option configures a ReviewSectionService.
type Option func(*ReviewSectionService)

// WithMaxAttempts sets the attempt budget for retryable writes.
func WithMaxAttempts(n int) Option {
	return func(s *ReviewSectionService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *ReviewSectionService) { s.now = now }
}

// WriteOption adjusts a single write.
type WriteOption func(*writeOptions)

type writeOptions struct {
	ifVersion *int64
}

// IfVersion makes the write fail with a conflict unless the stored section
// is still at version v. Such writes are never retried.
func IfVersion(v int64) WriteOption {
	return func(o *writeOptions) { o.ifVersion = &v }
}

// ListSectionsFilter selects sections for the admin listing.
type ListSectionsFilter struct {
	ActiveOnly bool
	Page       int
	PerPage    int
}

// ReviewSectionService owns every read and write of review sections and
// keeps each section's aggregate in step with its reviews.
type ReviewSectionService struct {
	repo        repository.ReviewSectionRepository
	producer    *event.Producer
	logger      *slog.Logger
	maxAttempts int
	now         func() time.Time
}

// NewReviewSectionService creates a new review section service.
func NewReviewSectionService(repo repository.ReviewSectionRepository, producer *event.Producer, logger *slog.Logger, opts ...Option) *ReviewSectionService {
	s := &ReviewSectionService{
		repo:        repo,
		producer:    producer,
		logger:      logger,
		maxAttempts: DefaultMaxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSection validates and stores a new section with no reviews.
func (s *ReviewSectionService) CreateSection(ctx context.Context, input domain.CreateSectionInput) (*domain.ReviewSection, error) {
	section := domain.NewReviewSection(input, s.now())
	if err := section.Validate(); err != nil {
		MutationsTotal.WithLabelValues(event.OpCreateSection, outcomeRejected).Inc()
		return nil, err
	}

	if err := s.repo.Create(ctx, section); err != nil {
		MutationsTotal.WithLabelValues(event.OpCreateSection, outcomeFailed).Inc()
		return nil, storeError("create review section", err)
	}
	MutationsTotal.WithLabelValues(event.OpCreateSection, outcomeCommitted).Inc()

	if err := s.producer.PublishSectionCreated(ctx, section); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish review_section.created event",
			slog.String("section_id", section.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "review section created",
		slog.String("section_id", section.ID),
		slog.String("heading", section.Heading),
		slog.Int("display_order", section.DisplayOrder),
	)

	return section, nil
}

// GetSection returns the full section, hidden reviews included.
func (s *ReviewSectionService) GetSection(ctx context.Context, id string) (*domain.ReviewSection, error) {
	section, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, storeError("get review section", err)
	}
	return section, nil
}

// ListSections returns one page of sections for the admin console.
func (s *ReviewSectionService) ListSections(ctx context.Context, filter ListSectionsFilter) ([]domain.ReviewSection, int, error) {
	sections, total, err := s.repo.List(ctx, repository.ReviewSectionFilter{
		ActiveOnly: filter.ActiveOnly,
		Page:       filter.Page,
		PerPage:    filter.PerPage,
	})
	if err != nil {
		return nil, 0, storeError("list review sections", err)
	}
	return sections, total, nil
}

// GetActiveSections returns the active sections in display order.
func (s *ReviewSectionService) GetActiveSections(ctx context.Context) ([]domain.ReviewSection, error) {
	sections, _, err := s.repo.List(ctx, repository.ReviewSectionFilter{ActiveOnly: true})
	if err != nil {
		return nil, storeError("list active review sections", err)
	}
	return sections, nil
}

// GetVisibleReviews returns a section's visible reviews in list order.
func (s *ReviewSectionService) GetVisibleReviews(ctx context.Context, sectionID string) ([]domain.Review, error) {
	section, err := s.repo.GetByID(ctx, sectionID)
	if err != nil {
		return nil, storeError("get review section", err)
	}
	return section.VisibleReviews(), nil
}

// AddReview appends a review to the section.
func (s *ReviewSectionService) AddReview(ctx context.Context, sectionID string, input domain.ReviewInput, opts ...WriteOption) (*domain.ReviewSection, error) {
	review := domain.NewReview(input, s.now())
	if err := review.Validate(); err != nil {
		MutationsTotal.WithLabelValues(event.OpAddReview, outcomeRejected).Inc()
		return nil, err
	}

	return s.mutate(ctx, sectionID, event.OpAddReview, true, opts, func(section *domain.ReviewSection) error {
		section.Reviews = append(section.Reviews, review)
		return nil
	})
}

// UpdateReview merges patch into the addressed review.
func (s *ReviewSectionService) UpdateReview(ctx context.Context, sectionID string, ref domain.ReviewRef, patch domain.ReviewPatch, opts ...WriteOption) (*domain.ReviewSection, error) {
	return s.mutate(ctx, sectionID, event.OpUpdateReview, !ref.ByIndex(), opts, func(section *domain.ReviewSection) error {
		i, err := findReview(section, ref)
		if err != nil {
			return err
		}
		section.Reviews[i].Apply(patch)
		return section.Reviews[i].Validate()
	})
}

// DeleteReview removes the addressed review. Later reviews move up one place.
func (s *ReviewSectionService) DeleteReview(ctx context.Context, sectionID string, ref domain.ReviewRef, opts ...WriteOption) (*domain.ReviewSection, error) {
	return s.mutate(ctx, sectionID, event.OpDeleteReview, !ref.ByIndex(), opts, func(section *domain.ReviewSection) error {
		i, err := findReview(section, ref)
		if err != nil {
			return err
		}
		section.DeleteReview(i)
		return nil
	})
}

// SetReviewVisibility shows or hides the addressed review.
func (s *ReviewSectionService) SetReviewVisibility(ctx context.Context, sectionID string, ref domain.ReviewRef, visible bool, opts ...WriteOption) (*domain.ReviewSection, error) {
	return s.mutate(ctx, sectionID, event.OpSetReviewVisibility, !ref.ByIndex(), opts, func(section *domain.ReviewSection) error {
		i, err := findReview(section, ref)
		if err != nil {
			return err
		}
		section.Reviews[i].IsVisible = visible
		return nil
	})
}

// ReplaceReviews swaps the whole review list. The list is the caller's edit
// of an earlier read, so a lost race is reported instead of retried.
func (s *ReviewSectionService) ReplaceReviews(ctx context.Context, sectionID string, inputs []domain.ReviewInput, opts ...WriteOption) (*domain.ReviewSection, error) {
	return s.mutate(ctx, sectionID, event.OpReplaceReviews, false, opts, func(section *domain.ReviewSection) error {
		section.ReplaceReviews(inputs, s.now())
		return nil
	})
}

// UpdateSectionMeta patches the non-review fields. Reviews and the aggregate
// are left as they are.
func (s *ReviewSectionService) UpdateSectionMeta(ctx context.Context, sectionID string, patch domain.UpdateSectionMetaInput, opts ...WriteOption) (*domain.ReviewSection, error) {
	return s.mutate(ctx, sectionID, event.OpUpdateSectionMeta, true, opts, func(section *domain.ReviewSection) error {
		section.ApplyMeta(patch)
		return nil
	})
}

// RecalculateAll recomputes the aggregate of every stored section and
// writes back those that drifted. Sections whose content is invalid are
// logged and skipped. Storage failures abort the pass.
func (s *ReviewSectionService) RecalculateAll(ctx context.Context) (domain.RecalculateSummary, error) {
	var summary domain.RecalculateSummary

	sections, err := s.repo.ListAll(ctx)
	if err != nil {
		return summary, storeError("list review sections", err)
	}

	for i := range sections {
		summary.Scanned++
		result, err := s.recalculate(ctx, &sections[i])
		if err != nil {
			return summary, err
		}
		RecalculatedSections.WithLabelValues(result).Inc()
		switch result {
		case "corrected":
			summary.Corrected++
		case "unchanged":
			summary.Unchanged++
		default:
			summary.Skipped++
		}
	}

	if err := s.producer.PublishRecalculated(ctx, summary); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish review_section.recalculated event",
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "review section aggregates recalculated",
		slog.Int("scanned", summary.Scanned),
		slog.Int("corrected", summary.Corrected),
		slog.Int("unchanged", summary.Unchanged),
		slog.Int("skipped", summary.Skipped),
	)

	return summary, nil
}

// recalculate repairs one section, re-reading it if a writer got there
// first. It returns "corrected", "unchanged" or "skipped".
func (s *ReviewSectionService) recalculate(ctx context.Context, current *domain.ReviewSection) (string, error) {
	for attempt := 1; ; attempt++ {
		next := current.Clone()
		if !next.Recompute() {
			return "unchanged", nil
		}
		if err := next.Validate(); err != nil {
			s.logger.WarnContext(ctx, "skipping invalid review section during recalculation",
				slog.String("section_id", current.ID),
				slog.String("error", err.Error()),
			)
			return "skipped", nil
		}

		expected := current.Version
		next.Version = expected + 1
		next.UpdatedAt = s.now()

		ok, err := s.repo.SaveIfVersion(ctx, next, expected)
		if err != nil {
			return "", storeError("save review section", err)
		}
		if ok {
			s.committed(ctx, event.OpRecalculate, next, current.Aggregate())
			return "corrected", nil
		}

		VersionConflicts.WithLabelValues(event.OpRecalculate).Inc()
		if attempt >= s.maxAttempts {
			s.logger.WarnContext(ctx, "skipping contended review section during recalculation",
				slog.String("section_id", current.ID),
			)
			return "skipped", nil
		}
		current, err = s.repo.GetByID(ctx, current.ID)
		if err != nil {
			if apperrors.IsNotFound(err) {
				return "skipped", nil
			}
			return "", storeError("get review section", err)
		}
	}
}

// mutate runs one read-modify-write cycle: read the stored section, apply
// edit to a copy, recompute the aggregate, validate, then save guarded by
// the version that was read. A lost race is retried only when retryable is
// set and no IfVersion precondition was given.
func (s *ReviewSectionService) mutate(ctx context.Context, sectionID, op string, retryable bool, opts []WriteOption, edit func(*domain.ReviewSection) error) (*domain.ReviewSection, error) {
	var o writeOptions
	for _, opt := range opts {
		opt(&o)
	}
	attempts := 1
	if retryable && o.ifVersion == nil {
		attempts = s.maxAttempts
	}

	for attempt := 1; ; attempt++ {
		current, err := s.repo.GetByID(ctx, sectionID)
		if err != nil {
			MutationsTotal.WithLabelValues(op, outcomeFailed).Inc()
			return nil, storeError("get review section", err)
		}
		if o.ifVersion != nil && current.Version != *o.ifVersion {
			MutationsTotal.WithLabelValues(op, outcomeConflict).Inc()
			return nil, apperrors.Conflict(fmt.Sprintf(
				"review section %s is at version %d, not %d; reload and retry", sectionID, current.Version, *o.ifVersion))
		}

		next := current.Clone()
		if err := edit(next); err != nil {
			MutationsTotal.WithLabelValues(op, outcomeRejected).Inc()
			return nil, err
		}
		next.Recompute()
		if err := next.Validate(); err != nil {
			MutationsTotal.WithLabelValues(op, outcomeRejected).Inc()
			return nil, err
		}

		expected := current.Version
		next.Version = expected + 1
		next.UpdatedAt = s.now()

		ok, err := s.repo.SaveIfVersion(ctx, next, expected)
		if err != nil {
			MutationsTotal.WithLabelValues(op, outcomeFailed).Inc()
			return nil, storeError("save review section", err)
		}
		if ok {
			s.committed(ctx, op, next, current.Aggregate())
			return next, nil
		}

		VersionConflicts.WithLabelValues(op).Inc()
		if attempt >= attempts {
			MutationsTotal.WithLabelValues(op, outcomeConflict).Inc()
			return nil, apperrors.Conflict("review section was modified concurrently, reload and retry")
		}
		s.logger.WarnContext(ctx, "review section version conflict, retrying",
			slog.String("section_id", sectionID),
			slog.String("operation", op),
			slog.Int64("expected_version", expected),
			slog.Int("attempt", attempt),
		)
	}
}

// committed records, logs and publishes a successful write.
func (s *ReviewSectionService) committed(ctx context.Context, op string, section *domain.ReviewSection, before domain.Aggregate) {
	MutationsTotal.WithLabelValues(op, outcomeCommitted).Inc()

	if err := s.producer.PublishSectionUpdated(ctx, op, section); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish review_section.updated event",
			slog.String("section_id", section.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "review section updated",
		slog.String("section_id", section.ID),
		slog.String("operation", op),
		slog.Int64("version", section.Version),
		slog.Int("reviews", len(section.Reviews)),
		slog.Float64("average_rating", section.AverageRating),
		slog.Int("total_review_count", section.TotalReviewCount),
		slog.Float64("previous_average_rating", before.AverageRating),
	)
}

func findReview(section *domain.ReviewSection, ref domain.ReviewRef) (int, error) {
	i := section.ReviewIndex(ref)
	if i < 0 {
		return -1, apperrors.NotFound("review", ref.String())
	}
	return i, nil
}

// storeError passes typed errors (not found, already exists) through and
// reports anything else as a persistence failure.
func storeError(op string, err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.Persistence(fmt.Errorf("%s: %w", op, err))
}
