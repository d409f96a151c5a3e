package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/rakeshshah18/philanzel-sub001/pkg/database"
	apperrors "github.com/rakeshshah18/philanzel-sub001/pkg/errors"
	"github.com/rakeshshah18/philanzel-sub001/services/review/internal/domain"
	"github.com/rakeshshah18/philanzel-sub001/services/review/internal/repository"
)

//go:embed migrations/*.up.sql
var migrationFiles embed.FS

// Migrations returns the schema migrations for database.RunMigrations.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

const sectionColumns = `id, heading, description, review_provider, write_review_button, reviews,
		average_rating, total_review_count, is_active, display_order, version, seq, created_at, updated_at`

// ReviewSectionRepository implements repository.ReviewSectionRepository
// using PostgreSQL. Reviews and the button are stored as JSONB.
type ReviewSectionRepository struct {
	pool database.DBTX
}

// NewReviewSectionRepository creates a new PostgreSQL-backed repository.
func NewReviewSectionRepository(pool database.DBTX) *ReviewSectionRepository {
	return &ReviewSectionRepository{pool: pool}
}

// Create inserts a new section and reads back its sequence number.
func (r *ReviewSectionRepository) Create(ctx context.Context, s *domain.ReviewSection) (err error) {
	button, reviews, err := marshalDocument(s)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO review_sections (id, heading, description, review_provider, write_review_button, reviews,
			average_rating, total_review_count, is_active, display_order, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING seq`

	ctx, end := database.TraceQuery(ctx, "CreateReviewSection", query)
	defer func() { end(err) }()

	err = r.pool.QueryRow(ctx, query,
		s.ID,
		s.Heading,
		s.Description,
		s.ReviewProvider,
		button,
		reviews,
		s.AverageRating,
		s.TotalReviewCount,
		s.IsActive,
		s.DisplayOrder,
		s.Version,
		s.CreatedAt,
		s.UpdatedAt,
	).Scan(&s.Sequence)
	if err != nil {
		return fmt.Errorf("insert review section: %w", err)
	}

	return nil
}

// GetByID retrieves a section by its ID.
func (r *ReviewSectionRepository) GetByID(ctx context.Context, id string) (_ *domain.ReviewSection, err error) {
	query := `SELECT ` + sectionColumns + `
		FROM review_sections
		WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetReviewSection", query)
	defer func() { end(err) }()

	s, err := scanSection(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("review section", id)
		}
		return nil, fmt.Errorf("get review section: %w", err)
	}

	return s, nil
}

// List returns a page of sections in display order along with the total count.
func (r *ReviewSectionRepository) List(ctx context.Context, filter repository.ReviewSectionFilter) (_ []domain.ReviewSection, _ int, err error) {
	var (
		qb   strings.Builder
		args []any
	)

	qb.WriteString(`SELECT ` + sectionColumns + `, count(*) OVER() AS total_count
		FROM review_sections`)
	if filter.ActiveOnly {
		qb.WriteString(` WHERE is_active`)
	}
	qb.WriteString(` ORDER BY display_order ASC, created_at ASC, seq ASC`)

	if filter.PerPage > 0 {
		offset := 0
		if filter.Page > 1 {
			offset = (filter.Page - 1) * filter.PerPage
		}
		args = append(args, filter.PerPage, offset)
		qb.WriteString(` LIMIT $1 OFFSET $2`)
	}

	query := qb.String()
	ctx, end := database.TraceQuery(ctx, "ListReviewSections", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list review sections: %w", err)
	}
	defer rows.Close()

	var (
		sections   = []domain.ReviewSection{}
		totalCount int
	)
	for rows.Next() {
		s, err := scanSection(rows, &totalCount)
		if err != nil {
			return nil, 0, fmt.Errorf("scan review section row: %w", err)
		}
		sections = append(sections, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate review section rows: %w", err)
	}

	return sections, totalCount, nil
}

// ListAll returns every stored section.
func (r *ReviewSectionRepository) ListAll(ctx context.Context) ([]domain.ReviewSection, error) {
	sections, _, err := r.List(ctx, repository.ReviewSectionFilter{})
	return sections, err
}

// SaveIfVersion rewrites the whole row guarded by the stored version.
func (r *ReviewSectionRepository) SaveIfVersion(ctx context.Context, s *domain.ReviewSection, expected int64) (_ bool, err error) {
	button, reviews, err := marshalDocument(s)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE review_sections
		SET heading = $3, description = $4, review_provider = $5, write_review_button = $6, reviews = $7,
			average_rating = $8, total_review_count = $9, is_active = $10, display_order = $11,
			version = $12, updated_at = $13
		WHERE id = $1 AND version = $2`

	ctx, end := database.TraceQuery(ctx, "SaveReviewSection", query)
	defer func() { end(err) }()

	tag, err := r.pool.Exec(ctx, query,
		s.ID,
		expected,
		s.Heading,
		s.Description,
		s.ReviewProvider,
		button,
		reviews,
		s.AverageRating,
		s.TotalReviewCount,
		s.IsActive,
		s.DisplayOrder,
		s.Version,
		s.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("update review section: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

func marshalDocument(s *domain.ReviewSection) (button, reviews []byte, err error) {
	button, err = json.Marshal(s.WriteReviewButton)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal write review button: %w", err)
	}
	list := s.Reviews
	if list == nil {
		list = []domain.Review{}
	}
	reviews, err = json.Marshal(list)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal reviews: %w", err)
	}
	return button, reviews, nil
}

// scanSection reads one row in sectionColumns order; extra destinations are
// appended after the section columns.
func scanSection(row pgx.Row, extra ...any) (*domain.ReviewSection, error) {
	var (
		s       domain.ReviewSection
		button  []byte
		reviews []byte
	)

	dest := []any{
		&s.ID,
		&s.Heading,
		&s.Description,
		&s.ReviewProvider,
		&button,
		&reviews,
		&s.AverageRating,
		&s.TotalReviewCount,
		&s.IsActive,
		&s.DisplayOrder,
		&s.Version,
		&s.Sequence,
		&s.CreatedAt,
		&s.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(button, &s.WriteReviewButton); err != nil {
		return nil, fmt.Errorf("unmarshal write review button: %w", err)
	}
	if err := json.Unmarshal(reviews, &s.Reviews); err != nil {
		return nil, fmt.Errorf("unmarshal reviews: %w", err)
	}
	if s.Reviews == nil {
		s.Reviews = []domain.Review{}
	}

	return &s, nil
}
