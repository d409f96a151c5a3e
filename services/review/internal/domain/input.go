package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// The input types below carry only client-settable fields. Derived fields,
// timestamps and versions have no place in them, so a payload that sends
// averageRating or totalReviewCount is simply not read.

// WriteReviewButtonInput is the button part of a create request.
type WriteReviewButtonInput struct {
	Text      string `json:"text"`
	URL       string `json:"url"`
	IsEnabled *bool  `json:"isEnabled"`
}

// CreateSectionInput holds the fields for a new section.
type CreateSectionInput struct {
	Heading           string                 `json:"heading"`
	Description       string                 `json:"description"`
	ReviewProvider    ReviewProvider         `json:"reviewProvider"`
	WriteReviewButton WriteReviewButtonInput `json:"writeReviewButton"`
	IsActive          *bool                  `json:"isActive"`
	DisplayOrder      int                    `json:"displayOrder"`
}

// WriteReviewButtonPatch is a partial button update.
type WriteReviewButtonPatch struct {
	Text      *string `json:"text"`
	URL       *string `json:"url"`
	IsEnabled *bool   `json:"isEnabled"`
}

// UpdateSectionMetaInput is a partial update of the non-review fields.
// Nil fields are left alone.
type UpdateSectionMetaInput struct {
	Heading           *string                 `json:"heading"`
	Description       *string                 `json:"description"`
	ReviewProvider    *ReviewProvider         `json:"reviewProvider"`
	WriteReviewButton *WriteReviewButtonPatch `json:"writeReviewButton"`
	IsActive          *bool                   `json:"isActive"`
	DisplayOrder      *int                    `json:"displayOrder"`
}

// ReviewInput holds the fields of a new review. ID is only read by a bulk
// replace, where it keeps an existing review's identity and date.
type ReviewInput struct {
	ID                 string `json:"id,omitempty"`
	UserName           string `json:"userName"`
	UserProfilePhoto   string `json:"userProfilePhoto"`
	ReviewProviderLogo string `json:"reviewProviderLogo"`
	Rating             int    `json:"rating"`
	ReviewText         string `json:"reviewText"`
	IsVerified         bool   `json:"isVerified"`
	IsVisible          *bool  `json:"isVisible"`
}

// ReviewPatch is a partial review update. Nil fields are left alone.
type ReviewPatch struct {
	UserName           *string `json:"userName"`
	UserProfilePhoto   *string `json:"userProfilePhoto"`
	ReviewProviderLogo *string `json:"reviewProviderLogo"`
	Rating             *int    `json:"rating"`
	ReviewText         *string `json:"reviewText"`
	IsVerified         *bool   `json:"isVerified"`
	IsVisible          *bool   `json:"isVisible"`
}

// NewReviewSection builds a section from input with defaults applied and an
// empty review list. The result still has to pass Validate.
func NewReviewSection(in CreateSectionInput, now time.Time) *ReviewSection {
	provider := in.ReviewProvider
	if provider == "" {
		provider = ProviderGoogle
	}
	s := &ReviewSection{
		ID:             uuid.New().String(),
		Heading:        strings.TrimSpace(in.Heading),
		Description:    strings.TrimSpace(in.Description),
		ReviewProvider: provider,
		WriteReviewButton: WriteReviewButton{
			Text:      buttonText(in.WriteReviewButton.Text),
			URL:       strings.TrimSpace(in.WriteReviewButton.URL),
			IsEnabled: boolOr(in.WriteReviewButton.IsEnabled, true),
		},
		Reviews:      []Review{},
		IsActive:     boolOr(in.IsActive, true),
		DisplayOrder: in.DisplayOrder,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.Recompute()
	return s
}

// NewReview builds a review with a fresh id, dated now.
func NewReview(in ReviewInput, now time.Time) Review {
	return Review{
		ID:                 uuid.New().String(),
		UserName:           strings.TrimSpace(in.UserName),
		UserProfilePhoto:   strings.TrimSpace(in.UserProfilePhoto),
		ReviewProviderLogo: strings.TrimSpace(in.ReviewProviderLogo),
		Rating:             in.Rating,
		ReviewText:         strings.TrimSpace(in.ReviewText),
		ReviewDate:         now,
		IsVerified:         in.IsVerified,
		IsVisible:          boolOr(in.IsVisible, true),
	}
}

// ApplyMeta applies a meta patch. Reviews and the aggregate are untouched.
func (s *ReviewSection) ApplyMeta(p UpdateSectionMetaInput) {
	if p.Heading != nil {
		s.Heading = strings.TrimSpace(*p.Heading)
	}
	if p.Description != nil {
		s.Description = strings.TrimSpace(*p.Description)
	}
	if p.ReviewProvider != nil {
		s.ReviewProvider = *p.ReviewProvider
	}
	if b := p.WriteReviewButton; b != nil {
		if b.Text != nil {
			s.WriteReviewButton.Text = buttonText(*b.Text)
		}
		if b.URL != nil {
			s.WriteReviewButton.URL = strings.TrimSpace(*b.URL)
		}
		if b.IsEnabled != nil {
			s.WriteReviewButton.IsEnabled = *b.IsEnabled
		}
	}
	if p.IsActive != nil {
		s.IsActive = *p.IsActive
	}
	if p.DisplayOrder != nil {
		s.DisplayOrder = *p.DisplayOrder
	}
}

// Apply merges a patch into the review. ID and ReviewDate never change.
func (r *Review) Apply(p ReviewPatch) {
	if p.UserName != nil {
		r.UserName = strings.TrimSpace(*p.UserName)
	}
	if p.UserProfilePhoto != nil {
		r.UserProfilePhoto = strings.TrimSpace(*p.UserProfilePhoto)
	}
	if p.ReviewProviderLogo != nil {
		r.ReviewProviderLogo = strings.TrimSpace(*p.ReviewProviderLogo)
	}
	if p.Rating != nil {
		r.Rating = *p.Rating
	}
	if p.ReviewText != nil {
		r.ReviewText = strings.TrimSpace(*p.ReviewText)
	}
	if p.IsVerified != nil {
		r.IsVerified = *p.IsVerified
	}
	if p.IsVisible != nil {
		r.IsVisible = *p.IsVisible
	}
}

// ReplaceReviews swaps the whole list for inputs, in order. An input whose
// ID names a review already in the list keeps that id and review date; any
// other input becomes a new review.
func (s *ReviewSection) ReplaceReviews(inputs []ReviewInput, now time.Time) {
	existing := make(map[string]time.Time, len(s.Reviews))
	for _, r := range s.Reviews {
		existing[r.ID] = r.ReviewDate
	}

	reviews := make([]Review, 0, len(inputs))
	for _, in := range inputs {
		r := NewReview(in, now)
		if date, ok := existing[in.ID]; ok {
			r.ID = in.ID
			r.ReviewDate = date
			// an id may be claimed once
			delete(existing, in.ID)
		}
		reviews = append(reviews, r)
	}
	s.Reviews = reviews
}

// DeleteReview removes the review at index i, shifting later ones down.
func (s *ReviewSection) DeleteReview(i int) {
	s.Reviews = append(s.Reviews[:i:i], s.Reviews[i+1:]...)
}

func buttonText(text string) string {
	if t := strings.TrimSpace(text); t != "" {
		return t
	}
	return DefaultWriteReviewText
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
