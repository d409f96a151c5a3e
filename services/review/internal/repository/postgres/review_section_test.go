package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rakeshshah18/philanzel-sub001/pkg/database"
	apperrors "github.com/rakeshshah18/philanzel-sub001/pkg/errors"
	"github.com/rakeshshah18/philanzel-sub001/services/review/internal/domain"
	"github.com/rakeshshah18/philanzel-sub001/services/review/internal/repository"
)

// ─────────────────────────────────────────────────────────────────────────────
// helpers
// ─────────────────────────────────────────────────────────────────────────────

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

var now = time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)

var sectionCols = []string{
	"id", "heading", "description", "review_provider", "write_review_button", "reviews",
	"average_rating", "total_review_count", "is_active", "display_order", "version", "seq",
	"created_at", "updated_at",
}

func sampleSection() domain.ReviewSection {
	return domain.ReviewSection{
		ID:             "5b7e2f9c-3a41-4d7e-9d7a-1f0c2b3a4d5e",
		Heading:        "Client reviews",
		Description:    "What investors say about us",
		ReviewProvider: domain.ProviderGoogle,
		WriteReviewButton: domain.WriteReviewButton{
			Text:      domain.DefaultWriteReviewText,
			URL:       "https://g.page/r/philanzel/review",
			IsEnabled: true,
		},
		Reviews: []domain.Review{{
			ID:                 "9d1f0e2c-8b7a-4c6d-a5e4-3f2b1c0d9e8f",
			UserName:           "Ravi",
			ReviewProviderLogo: "/uploads/google.png",
			Rating:             4,
			ReviewText:         "Patient and thorough advisors.",
			ReviewDate:         now,
			IsVisible:          true,
		}},
		AverageRating:    4,
		TotalReviewCount: 1,
		IsActive:         true,
		Version:          3,
		Sequence:         11,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func sectionRow(s domain.ReviewSection, extra ...any) []any {
	button, _ := json.Marshal(s.WriteReviewButton)
	reviews, _ := json.Marshal(s.Reviews)
	row := []any{
		s.ID, s.Heading, s.Description, s.ReviewProvider, button, reviews,
		s.AverageRating, s.TotalReviewCount, s.IsActive, s.DisplayOrder, s.Version, s.Sequence,
		s.CreatedAt, s.UpdatedAt,
	}
	return append(row, extra...)
}

// ─────────────────────────────────────────────────────────────────────────────
// migrations
// ─────────────────────────────────────────────────────────────────────────────

func TestMigrations_Embedded(t *testing.T) {
	names, err := fs.Glob(Migrations(), "*.up.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"000001_create_review_sections.up.sql",
		"000002_review_sections_aggregate_consistency.up.sql",
	}, names)

	body, err := fs.ReadFile(Migrations(), names[0])
	require.NoError(t, err)
	assert.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS review_sections")
}

// ─────────────────────────────────────────────────────────────────────────────
// Create
// ─────────────────────────────────────────────────────────────────────────────

func TestCreate_AssignsSequence(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewSectionRepository(mock)
	s := sampleSection()
	s.Sequence = 0

	mock.ExpectQuery("INSERT INTO review_sections").
		WithArgs(
			s.ID, s.Heading, s.Description, s.ReviewProvider, pgxmock.AnyArg(), pgxmock.AnyArg(),
			s.AverageRating, s.TotalReviewCount, s.IsActive, s.DisplayOrder, s.Version,
			s.CreatedAt, s.UpdatedAt,
		).
		WillReturnRows(pgxmock.NewRows([]string{"seq"}).AddRow(int64(42)))

	err := repo.Create(context.Background(), &s)

	require.NoError(t, err)
	assert.Equal(t, int64(42), s.Sequence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DBError(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewSectionRepository(mock)
	s := sampleSection()

	mock.ExpectQuery("INSERT INTO review_sections").
		WithArgs(anyArgs(13)...).
		WillReturnError(errors.New("connection refused"))

	err := repo.Create(context.Background(), &s)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert review section")
	assert.Contains(t, err.Error(), "connection refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ─────────────────────────────────────────────────────────────────────────────
// GetByID
// ─────────────────────────────────────────────────────────────────────────────

func TestGetByID_Found(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewSectionRepository(mock)
	s := sampleSection()

	mock.ExpectQuery("SELECT .+ FROM review_sections WHERE id").
		WithArgs(s.ID).
		WillReturnRows(pgxmock.NewRows(sectionCols).AddRow(sectionRow(s)...))

	got, err := repo.GetByID(context.Background(), s.ID)

	require.NoError(t, err)
	assert.Equal(t, s.Heading, got.Heading)
	assert.Equal(t, s.WriteReviewButton, got.WriteReviewButton)
	require.Len(t, got.Reviews, 1)
	assert.Equal(t, s.Reviews[0].ID, got.Reviews[0].ID)
	assert.Equal(t, 4, got.Reviews[0].Rating)
	assert.Equal(t, int64(3), got.Version)
	assert.Equal(t, int64(11), got.Sequence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID_NotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewSectionRepository(mock)

	mock.ExpectQuery("SELECT .+ FROM review_sections WHERE id").
		WithArgs("missing-id").
		WillReturnError(pgx.ErrNoRows)

	got, err := repo.GetByID(context.Background(), "missing-id")

	assert.Nil(t, got)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID_CorruptReviews(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewSectionRepository(mock)
	s := sampleSection()
	row := sectionRow(s)
	row[5] = []byte(`{"not":"a list"}`)

	mock.ExpectQuery("SELECT .+ FROM review_sections WHERE id").
		WithArgs(s.ID).
		WillReturnRows(pgxmock.NewRows(sectionCols).AddRow(row...))

	_, err := repo.GetByID(context.Background(), s.ID)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal reviews")
}

// ─────────────────────────────────────────────────────────────────────────────
// List
// ─────────────────────────────────────────────────────────────────────────────

func TestList_ActivePage(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewSectionRepository(mock)
	s := sampleSection()

	cols := append(append([]string{}, sectionCols...), "total_count")
	mock.ExpectQuery("SELECT .+ FROM review_sections WHERE is_active ORDER BY display_order .+ LIMIT").
		WithArgs(10, 10).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(sectionRow(s, 11)...))

	sections, total, err := repo.List(context.Background(), repository.ReviewSectionFilter{
		ActiveOnly: true,
		Page:       2,
		PerPage:    10,
	})

	require.NoError(t, err)
	assert.Equal(t, 11, total)
	require.Len(t, sections, 1)
	assert.Equal(t, s.ID, sections[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAll_NoLimit(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewSectionRepository(mock)
	a, b := sampleSection(), sampleSection()
	b.ID = "0c9b8a7d-6e5f-4a3b-2c1d-0e9f8a7b6c5d"
	b.IsActive = false

	cols := append(append([]string{}, sectionCols...), "total_count")
	mock.ExpectQuery("SELECT .+ FROM review_sections ORDER BY").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(sectionRow(a, 2)...).
			AddRow(sectionRow(b, 2)...))

	sections, err := repo.ListAll(context.Background())

	require.NoError(t, err)
	require.Len(t, sections, 2)
	assert.False(t, sections[1].IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestList_Empty(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewSectionRepository(mock)

	cols := append(append([]string{}, sectionCols...), "total_count")
	mock.ExpectQuery("SELECT .+ FROM review_sections").
		WillReturnRows(pgxmock.NewRows(cols))

	sections, total, err := repo.List(context.Background(), repository.ReviewSectionFilter{})

	require.NoError(t, err)
	assert.NotNil(t, sections)
	assert.Empty(t, sections)
	assert.Equal(t, 0, total)
}

// ─────────────────────────────────────────────────────────────────────────────
// SaveIfVersion
// ─────────────────────────────────────────────────────────────────────────────

func TestSaveIfVersion_Applied(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewSectionRepository(mock)
	s := sampleSection()
	s.Version = 4

	mock.ExpectExec("UPDATE review_sections .+ WHERE id = \\$1 AND version = \\$2").
		WithArgs(
			s.ID, int64(3), s.Heading, s.Description, s.ReviewProvider, pgxmock.AnyArg(), pgxmock.AnyArg(),
			s.AverageRating, s.TotalReviewCount, s.IsActive, s.DisplayOrder, int64(4), s.UpdatedAt,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := repo.SaveIfVersion(context.Background(), &s, 3)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveIfVersion_StaleVersion(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewSectionRepository(mock)
	s := sampleSection()
	s.Version = 4

	mock.ExpectExec("UPDATE review_sections").
		WithArgs(anyArgs(13)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := repo.SaveIfVersion(context.Background(), &s, 3)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveIfVersion_DBError(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewSectionRepository(mock)
	s := sampleSection()

	mock.ExpectExec("UPDATE review_sections").
		WithArgs(anyArgs(13)...).
		WillReturnError(errors.New("server closed the connection"))

	ok, err := repo.SaveIfVersion(context.Background(), &s, 3)

	require.Error(t, err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "update review section")
	assert.Contains(t, err.Error(), "server closed the connection")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveIfVersion_StoresReviewsAsJSONArray(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewSectionRepository(mock)
	s := sampleSection()
	s.Reviews = nil

	mock.ExpectExec("UPDATE review_sections").
		WithArgs(
			s.ID, int64(2), s.Heading, s.Description, s.ReviewProvider, pgxmock.AnyArg(), []byte("[]"),
			s.AverageRating, s.TotalReviewCount, s.IsActive, s.DisplayOrder, s.Version, s.UpdatedAt,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := repo.SaveIfVersion(context.Background(), &s, 2)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// anyArgs matches n arguments of any value.
func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}
