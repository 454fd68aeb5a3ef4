package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/vendra/activity-service/internal/domain"
	"github.com/vendra/activity-service/internal/security"
	"github.com/vendra/activity-service/internal/service"
	"github.com/vendra/activity-service/internal/transport/rest/response"
)

type fakeVerifier struct {
	claims security.TokenClaims
	err    error
}

func (f fakeVerifier) VerifyAccessToken(token string) (security.TokenClaims, error) {
	return f.claims, f.err
}

type fakeCache struct {
	allow bool
	seen  map[string]bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{allow: true, seen: map[string]bool{}}
}

func (c *fakeCache) CheckAndMark(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if c.seen[key] {
		return true, nil
	}
	c.seen[key] = true
	return false, nil
}

func (c *fakeCache) AllowRequest(ctx context.Context, ip string, limit int, window time.Duration) (bool, error) {
	return c.allow, nil
}

type fakeRepo struct {
	storeFn func(ctx context.Context, traceID, userID string, records []domain.ActivityRecord) error
	listFn  func(ctx context.Context, userID string, limit int, cursor *domain.KeysetCursor) ([]domain.ActivityRecord, *domain.KeysetCursor, error)
	prefsFn func(ctx context.Context, userID string, since time.Time) ([]domain.CategoryScore, error)
}

func (r *fakeRepo) StoreBatch(ctx context.Context, traceID, userID string, records []domain.ActivityRecord) error {
	if r.storeFn == nil {
		return errors.New("not implemented")
	}
	return r.storeFn(ctx, traceID, userID, records)
}

func (r *fakeRepo) ListUserActivities(ctx context.Context, userID string, limit int, cursor *domain.KeysetCursor) ([]domain.ActivityRecord, *domain.KeysetCursor, error) {
	if r.listFn == nil {
		return nil, nil, errors.New("not implemented")
	}
	return r.listFn(ctx, userID, limit, cursor)
}

func (r *fakeRepo) GetPreferenceScores(ctx context.Context, userID string, since time.Time) ([]domain.CategoryScore, error) {
	if r.prefsFn == nil {
		return nil, errors.New("not implemented")
	}
	return r.prefsFn(ctx, userID, since)
}

func newTestRouter(repo domain.ActivityRepository, cache *fakeCache, claims security.TokenClaims) http.Handler {
	svc := service.NewIngestService(repo, cache, time.Minute, 100)
	h := NewHandler(svc)
	return NewRouter(RouterDeps{
		Cache:            cache,
		Handler:          h,
		Verifier:         fakeVerifier{claims: claims},
		JWTIssuer:        claims.Issuer,
		RateLimitEnabled: true,
		RateLimit:        100,
		RateLimitWindow:  time.Minute,
	})
}

func shopperClaims(userID string) security.TokenClaims {
	return security.TokenClaims{
		UserID: userID,
		Role:   "shopper",
		Issuer: "storefront-auth",
	}
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder) response.Envelope {
	t.Helper()
	var env response.Envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	return env
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) response.ErrorBody {
	t.Helper()
	var errBody response.ErrorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &errBody))
	return errBody
}

const validBatch = `{
	"events": [
		{"eventId":"CLICK-p1-1-1","type":"CLICK","timestamp":1700000000000,"productId":"p1","weight":1},
		{"eventId":"VIEW-p2-2-2","type":"VIEW","timestamp":1700000000001,"productId":"p2","weight":2}
	],
	"clientTimestamp": 1700000000002
}`

func TestNewRouter_PanicsOnNilDeps(t *testing.T) {
	cache := newFakeCache()
	svc := service.NewIngestService(&fakeRepo{}, cache, time.Minute, 100)
	h := NewHandler(svc)

	require.Panics(t, func() {
		_ = NewRouter(RouterDeps{Cache: cache, Handler: nil, Verifier: fakeVerifier{}, JWTIssuer: "x"})
	})
	require.Panics(t, func() {
		_ = NewRouter(RouterDeps{Cache: cache, Handler: h, Verifier: nil, JWTIssuer: "x"})
	})
}

func TestRouter_Ingest_Unauthorized_401(t *testing.T) {
	r := newTestRouter(&fakeRepo{}, newFakeCache(), shopperClaims("u1"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/activities", bytes.NewBufferString(validBatch))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRouter_Ingest_WrongIssuer_401(t *testing.T) {
	claims := shopperClaims("u1")
	claims.Issuer = "someone-else"
	svc := service.NewIngestService(&fakeRepo{}, newFakeCache(), time.Minute, 100)
	r := NewRouter(RouterDeps{
		Cache:     newFakeCache(),
		Handler:   NewHandler(svc),
		Verifier:  fakeVerifier{claims: claims},
		JWTIssuer: "storefront-auth",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/activities", bytes.NewBufferString(validBatch))
	req.Header.Set("Authorization", "Bearer ok")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRouter_Ingest_InvalidJSON_400(t *testing.T) {
	r := newTestRouter(&fakeRepo{}, newFakeCache(), shopperClaims("u1"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/activities", bytes.NewBufferString("{bad"))
	req.Header.Set("Authorization", "Bearer ok")
	req.Header.Set("X-Request-Id", "rid-1")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	errBody := decodeError(t, rr)
	require.Equal(t, "request.invalid", errBody.Error.Code)
	require.Equal(t, "rid-1", errBody.Error.RequestID)
}

func TestRouter_Ingest_Success_202(t *testing.T) {
	var gotUser string
	var gotCount int
	repo := &fakeRepo{
		storeFn: func(ctx context.Context, traceID, userID string, records []domain.ActivityRecord) error {
			gotUser = userID
			gotCount = len(records)
			return nil
		},
	}
	r := newTestRouter(repo, newFakeCache(), shopperClaims("u1"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/activities", bytes.NewBufferString(validBatch))
	req.Header.Set("Authorization", "Bearer ok")
	req.Header.Set("X-Idempotency-Key", "key-1")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Equal(t, "u1", gotUser)
	require.Equal(t, 2, gotCount)

	env := decodeData(t, rr)
	m := env.Data.(map[string]any)
	require.EqualValues(t, 2, m["accepted"])
	require.EqualValues(t, 0, m["rejected"])
}

func TestRouter_Ingest_DuplicateKey_409(t *testing.T) {
	repo := &fakeRepo{
		storeFn: func(ctx context.Context, traceID, userID string, records []domain.ActivityRecord) error {
			return nil
		},
	}
	cache := newFakeCache()
	r := newTestRouter(repo, cache, shopperClaims("u1"))

	for i, want := range []int{http.StatusAccepted, http.StatusConflict} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/activities", bytes.NewBufferString(validBatch))
		req.Header.Set("Authorization", "Bearer ok")
		req.Header.Set("X-Idempotency-Key", "same-key")
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		require.Equal(t, want, rr.Code, "request %d", i)
	}
}

func TestRouter_Ingest_EmptyBatch_400(t *testing.T) {
	r := newTestRouter(&fakeRepo{}, newFakeCache(), shopperClaims("u1"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/activities", bytes.NewBufferString(`{"events":[],"clientTimestamp":1}`))
	req.Header.Set("Authorization", "Bearer ok")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	errBody := decodeError(t, rr)
	require.Equal(t, "batch.empty", errBody.Error.Code)
}

func TestRouter_MeActivities_Success_200(t *testing.T) {
	now := time.Now().UTC()
	next := &domain.KeysetCursor{OccurredAt: now, ID: uuid.New()}
	repo := &fakeRepo{
		listFn: func(ctx context.Context, userID string, limit int, cursor *domain.KeysetCursor) ([]domain.ActivityRecord, *domain.KeysetCursor, error) {
			require.Equal(t, "u1", userID)
			return []domain.ActivityRecord{{
				ID:         uuid.New(),
				UserID:     userID,
				EventID:    "CLICK-p1-1-1",
				Type:       "CLICK",
				OccurredAt: now,
				Weight:     1,
				ProductID:  "p1",
			}}, next, nil
		},
	}
	r := newTestRouter(repo, newFakeCache(), shopperClaims("u1"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me/activities", nil)
	req.Header.Set("Authorization", "Bearer ok")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	env := decodeData(t, rr)
	m := env.Data.(map[string]any)
	require.NotEmpty(t, m["next_cursor"])
	items := m["items"].([]any)
	require.Len(t, items, 1)
	first := items[0].(map[string]any)
	require.Equal(t, "CLICK", first["type"])
	require.EqualValues(t, 1, first["weight"])
}

func TestRouter_MeActivities_BadCursor_400(t *testing.T) {
	r := newTestRouter(&fakeRepo{}, newFakeCache(), shopperClaims("u1"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me/activities?cursor=!!!notb64", nil)
	req.Header.Set("Authorization", "Bearer ok")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	errBody := decodeError(t, rr)
	require.Equal(t, "request.invalid", errBody.Error.Code)
}

func TestRouter_MePreferences_Success_200(t *testing.T) {
	repo := &fakeRepo{
		prefsFn: func(ctx context.Context, userID string, since time.Time) ([]domain.CategoryScore, error) {
			return []domain.CategoryScore{
				{Category: "shoes", Score: 17, Events: 5},
				{Category: "bags", Score: 3, Events: 1},
			}, nil
		},
	}
	r := newTestRouter(repo, newFakeCache(), shopperClaims("u1"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me/preferences?window=168h", nil)
	req.Header.Set("Authorization", "Bearer ok")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	env := decodeData(t, rr)
	m := env.Data.(map[string]any)
	require.Equal(t, "168h0m0s", m["window"])
	cats := m["categories"].([]any)
	require.Len(t, cats, 2)
}

func TestRouter_MePreferences_BadWindow_400(t *testing.T) {
	r := newTestRouter(&fakeRepo{}, newFakeCache(), shopperClaims("u1"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me/preferences?window=tomorrow", nil)
	req.Header.Set("Authorization", "Bearer ok")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouter_RateLimit_429(t *testing.T) {
	cache := newFakeCache()
	cache.allow = false
	r := newTestRouter(&fakeRepo{}, cache, shopperClaims("u1"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me/activities", nil)
	req.Header.Set("Authorization", "Bearer ok")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestRouter_Healthz_NoAuth_200(t *testing.T) {
	r := newTestRouter(&fakeRepo{}, newFakeCache(), shopperClaims("u1"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
}

func TestRouter_SecurityHeaders_PresentOnOK(t *testing.T) {
	repo := &fakeRepo{
		listFn: func(ctx context.Context, userID string, limit int, cursor *domain.KeysetCursor) ([]domain.ActivityRecord, *domain.KeysetCursor, error) {
			return []domain.ActivityRecord{}, nil, nil
		},
	}
	r := newTestRouter(repo, newFakeCache(), shopperClaims("u1"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me/activities", nil)
	req.Header.Set("Authorization", "Bearer ok")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	require.Contains(t, rr.Header().Get("Content-Security-Policy"), "default-src")
}

func TestCursorRoundTrip(t *testing.T) {
	c := &domain.KeysetCursor{OccurredAt: time.Now().UTC(), ID: uuid.New()}
	got, err := decodeCursor(encodeCursor(c))
	require.NoError(t, err)
	require.True(t, c.OccurredAt.Equal(got.OccurredAt))
	require.Equal(t, c.ID, got.ID)
}
