package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rakeshshah18/philanzel-sub001/pkg/database"
	apperrors "github.com/rakeshshah18/philanzel-sub001/pkg/errors"
	"github.com/rakeshshah18/philanzel-sub001/pkg/pagination"
	"github.com/rakeshshah18/philanzel-sub001/services/review/internal/domain"
	"github.com/rakeshshah18/philanzel-sub001/services/review/internal/repository"
)

const (
	keyPrefix = "review_section:"
	indexKey  = "review_sections:index"
	seqKey    = "review_sections:seq"
)

var errStale = errors.New("stale version")

// document is the stored form of a section. The sequence number is not part
// of the wire JSON so it is carried alongside.
type document struct {
	*domain.ReviewSection
	Seq int64 `json:"seq"`
}

// ReviewSectionRepository implements repository.ReviewSectionRepository
// using Redis. Each section is one JSON string; a sorted set scored by
// insertion sequence indexes them.
type ReviewSectionRepository struct {
	client *redis.Client
}

// NewReviewSectionRepository creates a new Redis-backed repository.
func NewReviewSectionRepository(client *redis.Client) *ReviewSectionRepository {
	return &ReviewSectionRepository{client: client}
}

// Create stores a new section and adds it to the index. The document and
// its index entry are written in one MULTI/EXEC under a WATCH on the key.
func (r *ReviewSectionRepository) Create(ctx context.Context, s *domain.ReviewSection) (err error) {
	key := keyPrefix + s.ID
	ctx, end := database.TraceCommand(ctx, database.SystemRedis, "CreateReviewSection", "SET "+key)
	defer func() { end(err) }()

	seq, err := r.client.Incr(ctx, seqKey).Result()
	if err != nil {
		return fmt.Errorf("redis incr section sequence: %w", err)
	}

	data, err := json.Marshal(document{ReviewSection: s, Seq: seq})
	if err != nil {
		return fmt.Errorf("marshal review section: %w", err)
	}

	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("redis check review section: %w", err)
		}
		if n > 0 {
			return apperrors.AlreadyExists("review section", "id", s.ID)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(seq), Member: s.ID})
			return nil
		})
		return err
	}

	err = r.client.Watch(ctx, txf, key)
	var appErr *apperrors.AppError
	switch {
	case err == nil:
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, redis.TxFailedErr):
		return apperrors.AlreadyExists("review section", "id", s.ID)
	default:
		return fmt.Errorf("redis create review section: %w", err)
	}

	s.Sequence = seq
	return nil
}

// GetByID retrieves a section by its ID.
func (r *ReviewSectionRepository) GetByID(ctx context.Context, id string) (_ *domain.ReviewSection, err error) {
	key := keyPrefix + id
	ctx, end := database.TraceCommand(ctx, database.SystemRedis, "GetReviewSection", "GET "+key)
	defer func() { end(err) }()

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("review section", id)
		}
		return nil, fmt.Errorf("redis get review section: %w", err)
	}

	return decode(data)
}

// List loads the indexed sections, orders them and cuts out one page.
func (r *ReviewSectionRepository) List(ctx context.Context, filter repository.ReviewSectionFilter) ([]domain.ReviewSection, int, error) {
	all, err := r.ListAll(ctx)
	if err != nil {
		return nil, 0, err
	}

	sections := all[:0]
	for _, s := range all {
		if filter.ActiveOnly && !s.IsActive {
			continue
		}
		sections = append(sections, s)
	}
	domain.SortSections(sections)

	total := len(sections)
	if filter.PerPage > 0 {
		start, end := pagination.New(filter.Page, filter.PerPage).Bounds(total)
		sections = sections[start:end]
	}
	return sections, total, nil
}

// ListAll returns every indexed section in insertion order.
func (r *ReviewSectionRepository) ListAll(ctx context.Context) (_ []domain.ReviewSection, err error) {
	ctx, end := database.TraceCommand(ctx, database.SystemRedis, "ListReviewSections", "ZRANGE "+indexKey)
	defer func() { end(err) }()

	ids, err := r.client.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list review section ids: %w", err)
	}
	sections := make([]domain.ReviewSection, 0, len(ids))
	if len(ids) == 0 {
		return sections, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyPrefix + id
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get review sections: %w", err)
	}

	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// indexed but deleted out of band
			continue
		}
		s, err := decode([]byte(raw))
		if err != nil {
			return nil, err
		}
		sections = append(sections, *s)
	}
	return sections, nil
}

// SaveIfVersion replaces the stored document inside a WATCH transaction. A
// concurrent write to the key aborts the transaction and reports false.
func (r *ReviewSectionRepository) SaveIfVersion(ctx context.Context, s *domain.ReviewSection, expected int64) (_ bool, err error) {
	key := keyPrefix + s.ID
	ctx, end := database.TraceCommand(ctx, database.SystemRedis, "SaveReviewSection", "WATCH "+key)
	defer func() { end(err) }()

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return errStale
			}
			return fmt.Errorf("redis get review section: %w", err)
		}
		stored, err := decode(data)
		if err != nil {
			return err
		}
		if stored.Version != expected {
			return errStale
		}

		next, err := json.Marshal(document{ReviewSection: s, Seq: stored.Sequence})
		if err != nil {
			return fmt.Errorf("marshal review section: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		return err
	}

	err = r.client.Watch(ctx, txf, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errStale), errors.Is(err, redis.TxFailedErr):
		return false, nil
	default:
		return false, fmt.Errorf("redis save review section: %w", err)
	}
}

func decode(data []byte) (*domain.ReviewSection, error) {
	doc := document{ReviewSection: &domain.ReviewSection{}}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal review section: %w", err)
	}
	doc.ReviewSection.Sequence = doc.Seq
	if doc.Reviews == nil {
		doc.Reviews = []domain.Review{}
	}
	return doc.ReviewSection, nil
}
