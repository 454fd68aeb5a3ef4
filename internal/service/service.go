package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vendra/activity-service/internal/domain"
	"github.com/vendra/activity-service/internal/logger"
	"github.com/vendra/activity-service/internal/metrics"
	"github.com/vendra/activity-service/pkg/tracker"
)

type IngestService struct {
	repo  domain.ActivityRepository
	cache domain.CacheRepository

	idempotencyTTL time.Duration
	maxBatchEvents int
}

func NewIngestService(repo domain.ActivityRepository, cache domain.CacheRepository, idempotencyTTL time.Duration, maxBatchEvents int) *IngestService {
	if maxBatchEvents <= 0 {
		maxBatchEvents = 100
	}
	return &IngestService{
		repo:           repo,
		cache:          cache,
		idempotencyTTL: idempotencyTTL,
		maxBatchEvents: maxBatchEvents,
	}
}

type BatchResult struct {
	Accepted int
	Rejected int
}

// IngestBatch validates and stores one client batch. Individual malformed
// events are rejected without failing the batch; weights are recomputed from
// the type table, never taken from the wire.
func (s *IngestService) IngestBatch(ctx context.Context, traceID, idempotencyKey, userID string, batch tracker.Batch) (BatchResult, error) {
	if len(batch.Events) == 0 {
		return BatchResult{}, domain.ErrBatchEmpty
	}
	if len(batch.Events) > s.maxBatchEvents {
		return BatchResult{}, domain.ErrBatchTooLarge
	}

	if s.cache != nil && idempotencyKey != "" {
		seen, err := s.cache.CheckAndMark(ctx, idempotencyKey, s.idempotencyTTL)
		if err != nil {
			// fail open: a redis hiccup must not lose activity data
			logger.WithCtx(ctx).Warn().Err(err).Msg("batch idempotency check failed")
		} else if seen {
			metrics.RecordDuplicateBatch()
			return BatchResult{}, domain.ErrDuplicateBatch
		}
	}

	now := time.Now().UTC()
	records := make([]domain.ActivityRecord, 0, len(batch.Events))
	rejected := 0
	for _, se := range batch.Events {
		rec, err := recordFromEvent(userID, se.Event, now)
		if err != nil {
			rejected++
			metrics.RecordEventRejected(string(se.Event.Type))
			logger.WithCtx(ctx).Debug().Err(err).Str("event_id", se.Event.EventID).Msg("event rejected")
			continue
		}
		records = append(records, rec)
	}

	res := BatchResult{Accepted: len(records), Rejected: rejected}
	if len(records) == 0 {
		return res, nil
	}

	if err := s.repo.StoreBatch(ctx, traceID, userID, records); err != nil {
		return BatchResult{}, fmt.Errorf("store batch: %w", err)
	}
	metrics.RecordBatchIngested(len(records))
	return res, nil
}

func (s *IngestService) ListMyActivities(ctx context.Context, userID string, limit int, cursor *domain.KeysetCursor) ([]domain.ActivityRecord, *domain.KeysetCursor, error) {
	return s.repo.ListUserActivities(ctx, userID, limit, cursor)
}

// GetPreferences aggregates weighted category scores over the given lookback
// window.
func (s *IngestService) GetPreferences(ctx context.Context, userID string, window time.Duration) ([]domain.CategoryScore, error) {
	since := time.Now().UTC().Add(-window)
	return s.repo.GetPreferenceScores(ctx, userID, since)
}

func recordFromEvent(userID string, e tracker.Event, receivedAt time.Time) (domain.ActivityRecord, error) {
	if err := e.Validate(); err != nil {
		return domain.ActivityRecord{}, err
	}

	var extra []byte
	if len(e.Extra) > 0 {
		b, err := json.Marshal(e.Extra)
		if err == nil {
			extra = b
		}
	}

	return domain.ActivityRecord{
		ID:         uuid.New(),
		UserID:     userID,
		EventID:    e.EventID,
		Type:       string(e.Type),
		OccurredAt: time.UnixMilli(e.Timestamp).UTC(),
		Weight:     e.Type.Weight(),

		ProductID:      e.ProductID,
		ShopID:         e.ShopID,
		ProductName:    e.ProductName,
		Category:       e.Category,
		Subcategory:    e.Subcategory,
		Subsubcategory: e.Subsubcategory,
		Brand:          e.Brand,
		Price:          e.Price,
		SearchQuery:    e.SearchQuery,
		Source:         e.Source,
		Quantity:       e.Quantity,
		TotalValue:     e.TotalValue,

		Extra:      extra,
		ReceivedAt: receivedAt,
	}, nil
}
