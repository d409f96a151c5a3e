package event

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgkafka "github.com/rakeshshah18/philanzel-sub001/pkg/kafka"
	"github.com/rakeshshah18/philanzel-sub001/pkg/logger"
	"github.com/rakeshshah18/philanzel-sub001/services/review/internal/domain"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type published struct {
	topic string
	event *pkgkafka.Event
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, evt *pkgkafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, published{topic: topic, event: evt})
	return nil
}

func sampleSection() *domain.ReviewSection {
	now := time.Now().UTC()
	s := domain.NewReviewSection(domain.CreateSectionInput{
		Heading:           "Reviews",
		Description:       "From Google",
		WriteReviewButton: domain.WriteReviewButtonInput{URL: "https://g.page/r/x/review"},
	}, now)
	s.Reviews = []domain.Review{
		domain.NewReview(domain.ReviewInput{UserName: "A", ReviewProviderLogo: "/g.png", Rating: 5, ReviewText: "Great advice overall"}, now),
		domain.NewReview(domain.ReviewInput{UserName: "B", ReviewProviderLogo: "/g.png", Rating: 2, ReviewText: "Slow to respond"}, now),
	}
	s.Reviews[1].IsVisible = false
	s.Recompute()
	return s
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "philanzel.review_section.created", TopicSectionCreated)
	assert.Equal(t, "philanzel.review_section.updated", TopicSectionUpdated)
	assert.Equal(t, "philanzel.review_section.recalculated", TopicSectionsRecalculated)
	assert.Equal(t, "philanzel.review_section.recalculate_requested", TopicRecalculateRequested)
}

func TestPublishSectionUpdated_Payload(t *testing.T) {
	pub := &recordingPublisher{}
	p := NewProducer(pub, newTestLogger())
	s := sampleSection()
	ctx := logger.WithCorrelationID(context.Background(), "corr-1")
	ctx = logger.WithUserID(ctx, "admin-7")

	require.NoError(t, p.PublishSectionUpdated(ctx, OpDeleteReview, s))

	require.Len(t, pub.events, 1)
	got := pub.events[0]
	assert.Equal(t, TopicSectionUpdated, got.topic)
	assert.Equal(t, TopicSectionUpdated, got.event.EventType)
	assert.Equal(t, s.ID, got.event.AggregateID)
	assert.Equal(t, AggregateTypeReviewSection, got.event.AggregateType)
	assert.Equal(t, SourceReviewService, got.event.Source)
	assert.Equal(t, "corr-1", got.event.CorrelationID)
	assert.Equal(t, map[string]string{"actor": "admin-7"}, got.event.Metadata)

	var data SectionChangedData
	require.NoError(t, got.event.UnmarshalData(&data))
	assert.Equal(t, SectionChangedData{
		ID:               s.ID,
		Operation:        OpDeleteReview,
		Version:          1,
		AverageRating:    5,
		TotalReviewCount: 1,
		ReviewCount:      2,
		IsActive:         true,
	}, data)
}

func TestPublishSectionCreated_Error(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	p := NewProducer(pub, newTestLogger())

	err := p.PublishSectionCreated(context.Background(), sampleSection())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish philanzel.review_section.created event")
}

func TestPublishRecalculated(t *testing.T) {
	pub := &recordingPublisher{}
	p := NewProducer(pub, newTestLogger())
	summary := domain.RecalculateSummary{Scanned: 4, Corrected: 1, Unchanged: 2, Skipped: 1}

	require.NoError(t, p.PublishRecalculated(context.Background(), summary))

	require.Len(t, pub.events, 1)
	assert.Empty(t, pub.events[0].event.Metadata)
	var got domain.RecalculateSummary
	require.NoError(t, pub.events[0].event.UnmarshalData(&got))
	assert.Equal(t, summary, got)
}

// --- Recalculation handler ---

type fakeRecalculator struct {
	calls int
	err   error
	corr  string
}

func (f *fakeRecalculator) RecalculateAll(ctx context.Context) (domain.RecalculateSummary, error) {
	f.calls++
	f.corr = logger.CorrelationIDFromContext(ctx)
	return domain.RecalculateSummary{Scanned: 1, Unchanged: 1}, f.err
}

func TestRecalculationHandler(t *testing.T) {
	rec := &fakeRecalculator{}
	h := NewRecalculationHandler(rec, newTestLogger())

	evt, err := pkgkafka.NewEvent(TopicRecalculateRequested, "all", AggregateTypeReviewSection, "admin-console", nil)
	require.NoError(t, err)
	evt.WithCorrelationID("corr-7")

	require.NoError(t, h(context.Background(), evt))
	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, "corr-7", rec.corr)
}

func TestRecalculationHandler_WithReason(t *testing.T) {
	rec := &fakeRecalculator{}
	h := NewRecalculationHandler(rec, newTestLogger())

	evt, err := pkgkafka.NewEvent(TopicRecalculateRequested, "all", AggregateTypeReviewSection, "admin-console",
		RecalculateRequestedData{Reason: "backfill after import"})
	require.NoError(t, err)

	require.NoError(t, h(context.Background(), evt))
	assert.Equal(t, 1, rec.calls)
}

func TestRecalculationHandler_MalformedPayload(t *testing.T) {
	rec := &fakeRecalculator{}
	h := NewRecalculationHandler(rec, newTestLogger())

	evt, err := pkgkafka.NewEvent(TopicRecalculateRequested, "all", AggregateTypeReviewSection, "admin-console", nil)
	require.NoError(t, err)
	evt.Data = []byte(`"not an object"`)

	err = h(context.Background(), evt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode recalculate request")
	assert.Zero(t, rec.calls)
}

func TestRecalculationHandler_IgnoresOtherEvents(t *testing.T) {
	rec := &fakeRecalculator{}
	h := NewRecalculationHandler(rec, newTestLogger())

	evt, err := pkgkafka.NewEvent(TopicSectionUpdated, "x", AggregateTypeReviewSection, SourceReviewService, nil)
	require.NoError(t, err)

	require.NoError(t, h(context.Background(), evt))
	assert.Zero(t, rec.calls)
}

func TestRecalculationHandler_PropagatesFailure(t *testing.T) {
	rec := &fakeRecalculator{err: errors.New("store unavailable")}
	h := NewRecalculationHandler(rec, newTestLogger())

	evt, err := pkgkafka.NewEvent(TopicRecalculateRequested, "all", AggregateTypeReviewSection, "admin-console", nil)
	require.NoError(t, err)

	err = h(context.Background(), evt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recalculate review sections")
}

func TestRecalculationHandler_IdempotentWrapper(t *testing.T) {
	rec := &fakeRecalculator{}
	store := pkgkafka.NewMemoryIdempotencyStore(time.Hour)
	h := pkgkafka.IdempotentHandler(store, NewRecalculationHandler(rec, newTestLogger()), newTestLogger())

	evt, err := pkgkafka.NewEvent(TopicRecalculateRequested, "all", AggregateTypeReviewSection, "admin-console", nil)
	require.NoError(t, err)

	require.NoError(t, h(context.Background(), evt))
	require.NoError(t, h(context.Background(), evt))
	assert.Equal(t, 1, rec.calls)
}
