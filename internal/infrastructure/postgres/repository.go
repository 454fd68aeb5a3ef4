package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vendra/activity-service/internal/domain"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureSchema creates the tables when they are missing. Production deploys
// run migrations out of band; this keeps local and test setups one-command.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS activity_events (
			id              UUID PRIMARY KEY,
			user_id         TEXT NOT NULL,
			event_id        TEXT NOT NULL,
			event_type      TEXT NOT NULL,
			occurred_at     TIMESTAMPTZ NOT NULL,
			weight          INT NOT NULL,
			product_id      TEXT NOT NULL DEFAULT '',
			shop_id         TEXT NOT NULL DEFAULT '',
			product_name    TEXT NOT NULL DEFAULT '',
			category        TEXT NOT NULL DEFAULT '',
			subcategory     TEXT NOT NULL DEFAULT '',
			subsubcategory  TEXT NOT NULL DEFAULT '',
			brand           TEXT NOT NULL DEFAULT '',
			price           DOUBLE PRECISION NOT NULL DEFAULT 0,
			search_query    TEXT NOT NULL DEFAULT '',
			source          TEXT NOT NULL DEFAULT '',
			quantity        INT NOT NULL DEFAULT 0,
			total_value     DOUBLE PRECISION NOT NULL DEFAULT 0,
			extra           JSONB,
			received_at     TIMESTAMPTZ NOT NULL,
			UNIQUE (user_id, event_id)
		);

		CREATE INDEX IF NOT EXISTS idx_activity_events_user_occurred
			ON activity_events (user_id, occurred_at DESC, id DESC);

		CREATE TABLE IF NOT EXISTS activity_outbox (
			id            BIGSERIAL PRIMARY KEY,
			message_id    UUID NOT NULL,
			trace_id      TEXT NOT NULL DEFAULT '',
			routing_key   TEXT NOT NULL,
			payload       JSONB NOT NULL,
			occurred_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			status        TEXT NOT NULL DEFAULT 'pending',
			attempt       INT NOT NULL DEFAULT 0,
			next_retry_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_error    TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_activity_outbox_pending
			ON activity_outbox (next_retry_at) WHERE status = 'pending';
	`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// StoreBatch writes the accepted events and one outbox row per distinct event
// type in the same transaction. Events replayed from a client snapshot collide
// on (user_id, event_id) and are skipped silently.
func (r *Repository) StoreBatch(ctx context.Context, traceID, userID string, records []domain.ActivityRecord) error {
	traceID = strings.TrimSpace(traceID)
	if len(records) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	perType := make(map[string]int)
	for _, rec := range records {
		tag, err := tx.Exec(ctx, `
			INSERT INTO activity_events (
				id, user_id, event_id, event_type, occurred_at, weight,
				product_id, shop_id, product_name,
				category, subcategory, subsubcategory, brand, price,
				search_query, source, quantity, total_value,
				extra, received_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
			ON CONFLICT (user_id, event_id) DO NOTHING
		`,
			rec.ID, rec.UserID, rec.EventID, rec.Type, rec.OccurredAt, rec.Weight,
			rec.ProductID, rec.ShopID, rec.ProductName,
			rec.Category, rec.Subcategory, rec.Subsubcategory, rec.Brand, rec.Price,
			rec.SearchQuery, rec.Source, rec.Quantity, rec.TotalValue,
			rec.Extra, rec.ReceivedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() > 0 {
			perType[rec.Type]++
		}
	}

	for eventType, count := range perType {
		payload, _ := json.Marshal(map[string]any{
			"user_id":     userID,
			"event_type":  eventType,
			"event_count": count,
			"trace_id":    traceID,
			"producer":    "activity-service",
		})
		_, err = tx.Exec(ctx, `
			INSERT INTO activity_outbox (message_id, trace_id, routing_key, payload, occurred_at, status)
			VALUES ($1, $2, $3, $4, NOW(), 'pending')
		`, uuid.New(), traceID, "activity.recorded."+strings.ToLower(eventType), payload)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}

// /me/activities : ORDER BY occurred_at DESC, id DESC
// cursor means "start after this item" in DESC order -> WHERE (occurred_at, id) < (cursor.occurred_at, cursor.id)
func (r *Repository) ListUserActivities(ctx context.Context, userID string, limit int, cursor *domain.KeysetCursor) ([]domain.ActivityRecord, *domain.KeysetCursor, error) {
	limit = clampLimit(limit)
	args := []any{userID}
	where := "WHERE user_id = $1"
	argN := 2

	if cursor != nil {
		where += fmt.Sprintf(" AND (occurred_at, id) < ($%d, $%d)", argN, argN+1)
		args = append(args, cursor.OccurredAt, cursor.ID)
		argN += 2
	}

	q := fmt.Sprintf(`
		SELECT id, user_id, event_id, event_type, occurred_at, weight,
		       product_id, shop_id, product_name,
		       category, subcategory, subsubcategory, brand, price,
		       search_query, source, quantity, total_value,
		       extra, received_at
		FROM activity_events
		%s
		ORDER BY occurred_at DESC, id DESC
		LIMIT %d
	`, where, limit+1)

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var out []domain.ActivityRecord
	for rows.Next() {
		var rec domain.ActivityRecord
		if err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.EventID, &rec.Type, &rec.OccurredAt, &rec.Weight,
			&rec.ProductID, &rec.ShopID, &rec.ProductName,
			&rec.Category, &rec.Subcategory, &rec.Subsubcategory, &rec.Brand, &rec.Price,
			&rec.SearchQuery, &rec.Source, &rec.Quantity, &rec.TotalValue,
			&rec.Extra, &rec.ReceivedAt,
		); err != nil {
			return nil, nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.KeysetCursor
	if len(out) > limit {
		last := out[limit-1]
		next = &domain.KeysetCursor{OccurredAt: last.OccurredAt, ID: last.ID}
		out = out[:limit]
	}
	return out, next, nil
}

// GetPreferenceScores sums stored weights per category since the given time.
// Events without a category (searches) are excluded.
func (r *Repository) GetPreferenceScores(ctx context.Context, userID string, since time.Time) ([]domain.CategoryScore, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT category, SUM(weight)::bigint, COUNT(*)::bigint
		FROM activity_events
		WHERE user_id = $1 AND occurred_at >= $2 AND category <> ''
		GROUP BY category
		ORDER BY SUM(weight) DESC, category ASC
	`, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CategoryScore
	for rows.Next() {
		var cs domain.CategoryScore
		if err := rows.Scan(&cs.Category, &cs.Score, &cs.Events); err != nil {
			return nil, err
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}
