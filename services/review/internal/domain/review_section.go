package domain

import (
	"cmp"
	"slices"
	"time"

	apperrors "github.com/rakeshshah18/philanzel-sub001/pkg/errors"
	"github.com/rakeshshah18/philanzel-sub001/pkg/validator"
)

// ReviewProvider is the platform a section's reviews are collected from.
type ReviewProvider string

const (
	ProviderGoogle     ReviewProvider = "Google"
	ProviderFacebook   ReviewProvider = "Facebook"
	ProviderTrustpilot ReviewProvider = "Trustpilot"
	ProviderYelp       ReviewProvider = "Yelp"
	ProviderCustom     ReviewProvider = "Custom"
)

// DefaultWriteReviewText is the button label used when none is given.
const DefaultWriteReviewText = "Write Review"

// WriteReviewButton is the call to action rendered under a section.
type WriteReviewButton struct {
	Text      string `json:"text" bson:"text" validate:"max=50"`
	URL       string `json:"url" bson:"url" validate:"required"`
	IsEnabled bool   `json:"isEnabled" bson:"isEnabled"`
}

// Review is a single review embedded in a section. It has no identity
// outside its section.
type Review struct {
	ID                 string    `json:"id" bson:"id" validate:"required"`
	UserName           string    `json:"userName" bson:"userName" validate:"required,max=100"`
	UserProfilePhoto   string    `json:"userProfilePhoto,omitempty" bson:"userProfilePhoto,omitempty"`
	ReviewProviderLogo string    `json:"reviewProviderLogo" bson:"reviewProviderLogo" validate:"required"`
	Rating             int       `json:"rating" bson:"rating" validate:"gte=1,lte=5"`
	ReviewText         string    `json:"reviewText" bson:"reviewText" validate:"required,min=10,max=1000"`
	ReviewDate         time.Time `json:"reviewDate" bson:"reviewDate" validate:"required"`
	IsVerified         bool      `json:"isVerified" bson:"isVerified"`
	IsVisible          bool      `json:"isVisible" bson:"isVisible"`
}

// ReviewSection is the aggregate root. AverageRating and TotalReviewCount
// are derived from Reviews and only ever set by Recompute.
type ReviewSection struct {
	ID                string            `json:"id" bson:"_id"`
	Heading           string            `json:"heading" bson:"heading" validate:"required,max=100"`
	Description       string            `json:"description" bson:"description" validate:"required,max=500"`
	ReviewProvider    ReviewProvider    `json:"reviewProvider" bson:"reviewProvider" validate:"oneof=Google Facebook Trustpilot Yelp Custom"`
	WriteReviewButton WriteReviewButton `json:"writeReviewButton" bson:"writeReviewButton"`
	Reviews           []Review          `json:"reviews" bson:"reviews" validate:"dive"`
	AverageRating     float64           `json:"averageRating" bson:"averageRating" validate:"gte=0,lte=5"`
	TotalReviewCount  int               `json:"totalReviewCount" bson:"totalReviewCount" validate:"gte=0"`
	IsActive          bool              `json:"isActive" bson:"isActive"`
	DisplayOrder      int               `json:"displayOrder" bson:"displayOrder"`
	Version           int64             `json:"version" bson:"version"`
	CreatedAt         time.Time         `json:"createdAt" bson:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt" bson:"updatedAt"`

	// Sequence is the store insertion order, assigned by the repository on
	// Create. It breaks ties between sections created at the same instant.
	Sequence int64 `json:"-" bson:"seq"`
}

// Aggregate returns the stored derived fields.
func (s *ReviewSection) Aggregate() Aggregate {
	return Aggregate{AverageRating: s.AverageRating, TotalReviewCount: s.TotalReviewCount}
}

// Recompute derives the aggregate from the current reviews and stores it.
// It reports whether the stored values changed.
func (s *ReviewSection) Recompute() bool {
	agg := RecomputeAggregate(s.Reviews)
	changed := agg != s.Aggregate()
	s.AverageRating = agg.AverageRating
	s.TotalReviewCount = agg.TotalReviewCount
	return changed
}

// VisibleReviews returns the visible reviews in list order.
func (s *ReviewSection) VisibleReviews() []Review {
	visible := make([]Review, 0, len(s.Reviews))
	for _, r := range s.Reviews {
		if r.IsVisible {
			visible = append(visible, r)
		}
	}
	return visible
}

// ReviewIndex resolves ref against the current list. It returns -1 when the
// review does not exist.
func (s *ReviewSection) ReviewIndex(ref ReviewRef) int {
	if ref.ByIndex() {
		if ref.Index < len(s.Reviews) {
			return ref.Index
		}
		return -1
	}
	return slices.IndexFunc(s.Reviews, func(r Review) bool { return r.ID == ref.ID })
}

// Validate checks every field constraint of the section and its reviews.
// Failures come back as a VALIDATION_ERROR keyed by JSON field path.
func (s *ReviewSection) Validate() error {
	return validationError(validator.Validate(s))
}

// Validate checks a single review. Field paths are relative to the review.
func (r *Review) Validate() error {
	return validationError(validator.Validate(r))
}

func validationError(err error) error {
	if err == nil {
		return nil
	}
	if verr, ok := err.(*validator.ValidationError); ok {
		return apperrors.ValidationFailed(verr.Fields())
	}
	return apperrors.InvalidInput(err.Error())
}

// Clone returns a deep copy.
func (s *ReviewSection) Clone() *ReviewSection {
	c := *s
	if s.Reviews != nil {
		c.Reviews = slices.Clone(s.Reviews)
	}
	return &c
}

// PublicView returns a copy that carries only the visible reviews.
func (s *ReviewSection) PublicView() *ReviewSection {
	c := *s
	c.Reviews = s.VisibleReviews()
	return &c
}

// SortSections orders sections by DisplayOrder, then creation time, then
// store insertion order.
func SortSections(sections []ReviewSection) {
	slices.SortStableFunc(sections, func(a, b ReviewSection) int {
		if c := cmp.Compare(a.DisplayOrder, b.DisplayOrder); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Sequence, b.Sequence)
	})
}
