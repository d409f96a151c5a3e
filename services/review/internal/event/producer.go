package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/rakeshshah18/philanzel-sub001/pkg/kafka"
	"github.com/rakeshshah18/philanzel-sub001/pkg/logger"
	"github.com/rakeshshah18/philanzel-sub001/services/review/internal/domain"
)

// Aggregate type for review section events.
const AggregateTypeReviewSection = "review_section"

// Source identifier for events originating from the review service.
const SourceReviewService = "review-service"

// Kafka topics for review section events.
var (
	TopicSectionCreated       = pkgkafka.Topic(AggregateTypeReviewSection, "created")
	TopicSectionUpdated       = pkgkafka.Topic(AggregateTypeReviewSection, "updated")
	TopicSectionsRecalculated = pkgkafka.Topic(AggregateTypeReviewSection, "recalculated")
	TopicRecalculateRequested = pkgkafka.Topic(AggregateTypeReviewSection, "recalculate_requested")
)

// Operation names carried in SectionChangedData.
const (
	OpCreateSection       = "create_section"
	OpUpdateSectionMeta   = "update_section_meta"
	OpAddReview           = "add_review"
	OpUpdateReview        = "update_review"
	OpDeleteReview        = "delete_review"
	OpSetReviewVisibility = "set_review_visibility"
	OpReplaceReviews      = "replace_reviews"
	OpRecalculate         = "recalculate"
)

// SectionChangedData is the payload of created and updated events.
type SectionChangedData struct {
	ID               string  `json:"id"`
	Operation        string  `json:"operation"`
	Version          int64   `json:"version"`
	AverageRating    float64 `json:"averageRating"`
	TotalReviewCount int     `json:"totalReviewCount"`
	ReviewCount      int     `json:"reviewCount"`
	IsActive         bool    `json:"isActive"`
}

// Producer publishes review section events.
type Producer struct {
	publisher pkgkafka.Publisher
	logger    *slog.Logger
}

// NewProducer creates a new event producer for the review service.
func NewProducer(publisher pkgkafka.Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		publisher: publisher,
		logger:    logger,
	}
}

// PublishSectionCreated publishes a review_section.created event.
func (p *Producer) PublishSectionCreated(ctx context.Context, s *domain.ReviewSection) error {
	return p.publishChange(ctx, TopicSectionCreated, OpCreateSection, s)
}

// PublishSectionUpdated publishes a review_section.updated event naming the
// operation that produced the new version.
func (p *Producer) PublishSectionUpdated(ctx context.Context, operation string, s *domain.ReviewSection) error {
	return p.publishChange(ctx, TopicSectionUpdated, operation, s)
}

// PublishRecalculated publishes the summary of a repair pass.
func (p *Producer) PublishRecalculated(ctx context.Context, summary domain.RecalculateSummary) error {
	evt, err := pkgkafka.NewEvent(TopicSectionsRecalculated, "all", AggregateTypeReviewSection, SourceReviewService, summary)
	if err != nil {
		return fmt.Errorf("create review_section.recalculated event: %w", err)
	}
	return p.publish(ctx, TopicSectionsRecalculated, evt)
}

func (p *Producer) publishChange(ctx context.Context, topic, operation string, s *domain.ReviewSection) error {
	evt, err := pkgkafka.NewEvent(topic, s.ID, AggregateTypeReviewSection, SourceReviewService, SectionChangedData{
		ID:               s.ID,
		Operation:        operation,
		Version:          s.Version,
		AverageRating:    s.AverageRating,
		TotalReviewCount: s.TotalReviewCount,
		ReviewCount:      len(s.Reviews),
		IsActive:         s.IsActive,
	})
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	return p.publish(ctx, topic, evt)
}

func (p *Producer) publish(ctx context.Context, topic string, evt *pkgkafka.Event) error {
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		evt.WithCorrelationID(id)
	}
	if actor := logger.UserIDFromContext(ctx); actor != "" {
		evt.WithMetadata("actor", actor)
	}
	if err := p.publisher.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("event_id", evt.EventID),
		slog.String("aggregate_id", evt.AggregateID),
	)
	return nil
}
