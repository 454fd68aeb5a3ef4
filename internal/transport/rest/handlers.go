package rest

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/render"
	"github.com/vendra/activity-service/internal/domain"
	appCtx "github.com/vendra/activity-service/internal/pkg/context"
	"github.com/vendra/activity-service/internal/service"
	"github.com/vendra/activity-service/internal/transport/rest/response"
	"github.com/vendra/activity-service/pkg/tracker"
)

const defaultPreferenceWindow = 30 * 24 * time.Hour

type Handler struct {
	svc *service.IngestService
}

func NewHandler(svc *service.IngestService) *Handler {
	return &Handler{svc: svc}
}

// IngestBatch accepts one batch of client activity events.
func (h *Handler) IngestBatch(w http.ResponseWriter, r *http.Request) {
	auth, ok := GetAuth(r.Context())
	if !ok {
		fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
		return
	}

	var batch tracker.Batch
	if err := render.DecodeJSON(r.Body, &batch); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
		return
	}

	traceID := appCtx.GetRequestID(r.Context())
	if traceID == "" {
		traceID = "no-request-id"
	}

	// X-Idempotency-Key is optional: clients retry delivery with fresh keys
	// per attempt, and the store dedupes on event ids regardless.
	idempotencyKey := r.Header.Get("X-Idempotency-Key")
	if idempotencyKey == "" {
		idempotencyKey = r.Header.Get("Idempotency-Key") // legacy fallback
	}

	res, err := h.svc.IngestBatch(r.Context(), traceID, idempotencyKey, auth.UserID, batch)
	if err != nil {
		handleErr(w, r, err)
		return
	}

	response.Data(w, http.StatusAccepted, map[string]int{
		"accepted": res.Accepted,
		"rejected": res.Rejected,
	})
}

func (h *Handler) MeActivities(w http.ResponseWriter, r *http.Request) {
	auth, ok := GetAuth(r.Context())
	if !ok {
		fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
		return
	}

	limit := parseLimit(r.URL.Query().Get("limit"))
	cur, err := decodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid cursor", nil)
		return
	}

	items, next, err := h.svc.ListMyActivities(r.Context(), auth.UserID, limit, cur)
	if err != nil {
		handleErr(w, r, err)
		return
	}

	out := make([]activityItem, 0, len(items))
	for _, rec := range items {
		out = append(out, toActivityItem(rec))
	}

	response.Data(w, http.StatusOK, map[string]any{
		"items":       out,
		"next_cursor": encodeCursor(next),
	})
}

func (h *Handler) MePreferences(w http.ResponseWriter, r *http.Request) {
	auth, ok := GetAuth(r.Context())
	if !ok {
		fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
		return
	}

	window := defaultPreferenceWindow
	if s := strings.TrimSpace(r.URL.Query().Get("window")); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			fail(w, r, http.StatusBadRequest, "request.invalid", "invalid window", map[string]string{
				"window": "must be a positive duration, e.g. 720h",
			})
			return
		}
		window = d
	}

	scores, err := h.svc.GetPreferences(r.Context(), auth.UserID, window)
	if err != nil {
		handleErr(w, r, err)
		return
	}

	out := make([]map[string]any, 0, len(scores))
	for _, s := range scores {
		out = append(out, map[string]any{
			"category": s.Category,
			"score":    s.Score,
			"events":   s.Events,
		})
	}

	response.Data(w, http.StatusOK, map[string]any{
		"window":     window.String(),
		"categories": out,
	})
}

type activityItem struct {
	ID          string    `json:"id"`
	EventID     string    `json:"event_id"`
	Type        string    `json:"type"`
	OccurredAt  time.Time `json:"occurred_at"`
	Weight      int       `json:"weight"`
	ProductID   string    `json:"product_id,omitempty"`
	ShopID      string    `json:"shop_id,omitempty"`
	ProductName string    `json:"product_name,omitempty"`
	Category    string    `json:"category,omitempty"`
	Brand       string    `json:"brand,omitempty"`
	Price       float64   `json:"price,omitempty"`
	SearchQuery string    `json:"search_query,omitempty"`
	Quantity    int       `json:"quantity,omitempty"`
	TotalValue  float64   `json:"total_value,omitempty"`
}

func toActivityItem(rec domain.ActivityRecord) activityItem {
	return activityItem{
		ID:          rec.ID.String(),
		EventID:     rec.EventID,
		Type:        rec.Type,
		OccurredAt:  rec.OccurredAt,
		Weight:      rec.Weight,
		ProductID:   rec.ProductID,
		ShopID:      rec.ShopID,
		ProductName: rec.ProductName,
		Category:    rec.Category,
		Brand:       rec.Brand,
		Price:       rec.Price,
		SearchQuery: rec.SearchQuery,
		Quantity:    rec.Quantity,
		TotalValue:  rec.TotalValue,
	}
}

func handleErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrBatchEmpty):
		fail(w, r, http.StatusBadRequest, "batch.empty", err.Error(), nil)
		return
	case errors.Is(err, domain.ErrBatchTooLarge):
		fail(w, r, http.StatusRequestEntityTooLarge, "batch.too_large", err.Error(), nil)
		return
	case errors.Is(err, domain.ErrDuplicateBatch):
		// the batch was already stored; the client can drop its copy
		fail(w, r, http.StatusConflict, "batch.duplicate", err.Error(), nil)
		return

	default:
		// Do not leak internal details by default.
		fail(w, r, http.StatusInternalServerError, "internal", "internal error", nil)
		return
	}
}

func fail(w http.ResponseWriter, r *http.Request, status int, code, message string, meta map[string]string) {
	reqID := appCtx.GetRequestID(r.Context())
	if reqID == "" {
		reqID = "no-request-id"
	}
	response.Fail(w, status, code, message, meta, reqID)
}

func parseLimit(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 20
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 20
	}
	if n < 1 {
		return 1
	}
	if n > 100 {
		return 100
	}
	return n
}
