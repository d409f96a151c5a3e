package domain

import (
	"strconv"

	"github.com/google/uuid"

	apperrors "github.com/rakeshshah18/philanzel-sub001/pkg/errors"
)

// ReviewRef addresses a review inside a section, either by its stable id or
// by its position in the list. Positions shift when an earlier review is
// deleted, so an index is only meaningful against the version it was read
// from.
type ReviewRef struct {
	ID    string
	Index int

	byIndex bool
}

// ReviewByID addresses a review by stable id.
func ReviewByID(id string) ReviewRef {
	return ReviewRef{ID: id}
}

// ReviewAt addresses a review by list position.
func ReviewAt(index int) ReviewRef {
	return ReviewRef{Index: index, byIndex: true}
}

// ParseReviewRef reads a path segment: a non-negative integer is an index,
// a UUID is an id.
func ParseReviewRef(s string) (ReviewRef, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return ReviewRef{}, apperrors.InvalidInput("review index must not be negative")
		}
		return ReviewAt(n), nil
	}
	if _, err := uuid.Parse(s); err != nil {
		return ReviewRef{}, apperrors.InvalidInput("review reference must be an index or a UUID")
	}
	return ReviewByID(s), nil
}

func (r ReviewRef) ByIndex() bool { return r.byIndex }

func (r ReviewRef) String() string {
	if r.byIndex {
		return strconv.Itoa(r.Index)
	}
	return r.ID
}
