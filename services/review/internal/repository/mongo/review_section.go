package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rakeshshah18/philanzel-sub001/pkg/database"
	apperrors "github.com/rakeshshah18/philanzel-sub001/pkg/errors"
	"github.com/rakeshshah18/philanzel-sub001/services/review/internal/domain"
	"github.com/rakeshshah18/philanzel-sub001/services/review/internal/repository"
)

const (
	sectionsCollection = "review_sections"
	countersCollection = "counters"
	sequenceName       = "review_sections"
)

var displayOrder = bson.D{
	{Key: "displayOrder", Value: 1},
	{Key: "createdAt", Value: 1},
	{Key: "seq", Value: 1},
}

// ReviewSectionRepository implements repository.ReviewSectionRepository
// using MongoDB. A section is one document with its reviews embedded.
type ReviewSectionRepository struct {
	sections *mongo.Collection
	counters *mongo.Collection
}

// NewReviewSectionRepository creates a new MongoDB-backed repository.
func NewReviewSectionRepository(db *mongo.Database) *ReviewSectionRepository {
	return &ReviewSectionRepository{
		sections: db.Collection(sectionsCollection),
		counters: db.Collection(countersCollection),
	}
}

// EnsureIndexes creates the listing indexes. It is safe to call on every
// startup.
func (r *ReviewSectionRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.sections.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    displayOrder,
			Options: options.Index().SetName("idx_display_order"),
		},
		{
			Keys:    bson.D{{Key: "isActive", Value: 1}, {Key: "displayOrder", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("idx_active_display_order"),
		},
	})
	if err != nil {
		return fmt.Errorf("create review section indexes: %w", err)
	}
	return nil
}

// Create takes the next sequence number and inserts the section.
func (r *ReviewSectionRepository) Create(ctx context.Context, s *domain.ReviewSection) (err error) {
	ctx, end := database.TraceCommand(ctx, database.SystemMongo, "CreateReviewSection", "insert "+sectionsCollection)
	defer func() { end(err) }()

	seq, err := r.nextSequence(ctx)
	if err != nil {
		return err
	}

	doc := *s
	doc.Sequence = seq
	if _, err := r.sections.InsertOne(ctx, &doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.AlreadyExists("review section", "id", s.ID)
		}
		return fmt.Errorf("insert review section: %w", err)
	}

	s.Sequence = seq
	return nil
}

func (r *ReviewSectionRepository) nextSequence(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": sequenceName},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next review section sequence: %w", err)
	}
	return counter.Seq, nil
}

// GetByID retrieves a section by its ID.
func (r *ReviewSectionRepository) GetByID(ctx context.Context, id string) (_ *domain.ReviewSection, err error) {
	ctx, end := database.TraceCommand(ctx, database.SystemMongo, "GetReviewSection", "find "+sectionsCollection)
	defer func() { end(err) }()

	var s domain.ReviewSection
	if err := r.sections.FindOne(ctx, bson.M{"_id": id}).Decode(&s); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.NotFound("review section", id)
		}
		return nil, fmt.Errorf("find review section: %w", err)
	}
	if s.Reviews == nil {
		s.Reviews = []domain.Review{}
	}
	return &s, nil
}

// List returns a page of sections in display order along with the total count.
func (r *ReviewSectionRepository) List(ctx context.Context, filter repository.ReviewSectionFilter) (_ []domain.ReviewSection, _ int, err error) {
	ctx, end := database.TraceCommand(ctx, database.SystemMongo, "ListReviewSections", "find "+sectionsCollection)
	defer func() { end(err) }()

	query := bson.M{}
	if filter.ActiveOnly {
		query["isActive"] = true
	}

	total, err := r.sections.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count review sections: %w", err)
	}

	opts := options.Find().SetSort(displayOrder)
	if filter.PerPage > 0 {
		page := max(filter.Page, 1)
		opts.SetSkip(int64((page - 1) * filter.PerPage)).SetLimit(int64(filter.PerPage))
	}

	cursor, err := r.sections.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("find review sections: %w", err)
	}
	sections := []domain.ReviewSection{}
	if err := cursor.All(ctx, &sections); err != nil {
		return nil, 0, fmt.Errorf("decode review sections: %w", err)
	}
	for i := range sections {
		if sections[i].Reviews == nil {
			sections[i].Reviews = []domain.Review{}
		}
	}

	return sections, int(total), nil
}

// ListAll returns every stored section.
func (r *ReviewSectionRepository) ListAll(ctx context.Context) ([]domain.ReviewSection, error) {
	sections, _, err := r.List(ctx, repository.ReviewSectionFilter{})
	return sections, err
}

// SaveIfVersion replaces the document only when _id and version both match.
func (r *ReviewSectionRepository) SaveIfVersion(ctx context.Context, s *domain.ReviewSection, expected int64) (_ bool, err error) {
	ctx, end := database.TraceCommand(ctx, database.SystemMongo, "SaveReviewSection", "replace "+sectionsCollection)
	defer func() { end(err) }()

	res, err := r.sections.ReplaceOne(ctx, bson.M{"_id": s.ID, "version": expected}, s)
	if err != nil {
		return false, fmt.Errorf("replace review section: %w", err)
	}
	return res.MatchedCount == 1, nil
}
