package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/rakeshshah18/philanzel-sub001/pkg/kafka"
	"github.com/rakeshshah18/philanzel-sub001/pkg/logger"
	"github.com/rakeshshah18/philanzel-sub001/services/review/internal/domain"
)

// Recalculator runs the aggregate repair pass.
type Recalculator interface {
	RecalculateAll(ctx context.Context) (domain.RecalculateSummary, error)
}

// RecalculateRequestedData is the optional payload of a recalculation
// request.
type RecalculateRequestedData struct {
	Reason string `json:"reason,omitempty"`
}

// NewRecalculationHandler returns a consumer handler for
// review_section.recalculate_requested events. Events of any other type are
// acknowledged and ignored.
func NewRecalculationHandler(r Recalculator, log *slog.Logger) pkgkafka.Handler {
	return func(ctx context.Context, evt *pkgkafka.Event) error {
		if evt.EventType != TopicRecalculateRequested {
			log.DebugContext(ctx, "ignoring event", slog.String("event_type", evt.EventType))
			return nil
		}
		if evt.CorrelationID != "" {
			ctx = logger.WithCorrelationID(ctx, evt.CorrelationID)
		}

		var req RecalculateRequestedData
		if len(evt.Data) > 0 {
			if err := evt.UnmarshalData(&req); err != nil {
				return fmt.Errorf("decode recalculate request: %w", err)
			}
		}

		summary, err := r.RecalculateAll(ctx)
		if err != nil {
			return fmt.Errorf("recalculate review sections: %w", err)
		}

		log.InfoContext(ctx, "recalculation request handled",
			slog.String("event_id", evt.EventID),
			slog.String("source", evt.Source),
			slog.String("reason", req.Reason),
			slog.Int("corrected", summary.Corrected),
			slog.Int("skipped", summary.Skipped),
		)
		return nil
	}
}
