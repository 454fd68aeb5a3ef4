package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBatchEmpty     = errors.New("batch contains no events")
	ErrBatchTooLarge  = errors.New("batch exceeds event limit")
	ErrDuplicateBatch = errors.New("batch already ingested")

	ErrCacheMiss = errors.New("cache miss")
)

// ActivityRecord is one ingested event as stored. Weight is recomputed from
// the event type at ingest time; the client-sent value is never trusted.
type ActivityRecord struct {
	ID     uuid.UUID
	UserID string

	EventID    string
	Type       string
	OccurredAt time.Time
	Weight     int

	ProductID      string
	ShopID         string
	ProductName    string
	Category       string
	Subcategory    string
	Subsubcategory string
	Brand          string
	Price          float64
	SearchQuery    string
	Source         string
	Quantity       int
	TotalValue     float64

	// Extra is the raw auxiliary context map, stored as JSON.
	Extra []byte

	ReceivedAt time.Time
}

type KeysetCursor struct {
	OccurredAt time.Time
	ID         uuid.UUID
}

// CategoryScore is the weighted preference aggregate per category.
type CategoryScore struct {
	Category string
	Score    int64
	Events   int64
}

// ActivityRepository persists ingested batches and serves reads. StoreBatch
// writes the records and the relay outbox row in one transaction.
type ActivityRepository interface {
	StoreBatch(ctx context.Context, traceID, userID string, records []ActivityRecord) error

	ListUserActivities(ctx context.Context, userID string, limit int, cursor *KeysetCursor) ([]ActivityRecord, *KeysetCursor, error)
	GetPreferenceScores(ctx context.Context, userID string, since time.Time) ([]CategoryScore, error)
}

type CacheRepository interface {
	// CheckAndMark atomically marks a batch key as seen and reports whether
	// it was already present.
	CheckAndMark(ctx context.Context, key string, ttl time.Duration) (bool, error)

	AllowRequest(ctx context.Context, ip string, limit int, window time.Duration) (bool, error)
}
