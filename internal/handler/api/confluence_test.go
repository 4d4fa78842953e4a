package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"Confluence/internal/domain/models"
	"Confluence/internal/service/publisher"
	"Confluence/internal/usecase"
	"Confluence/pkg/cache"
	"Confluence/pkg/queue"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type stubLive struct {
	params usecase.AnalyzeParams
	err    error
}

func (s *stubLive) Run(_ context.Context, p usecase.AnalyzeParams) (*models.AnalysisResult, error) {
	s.params = p
	if s.err != nil {
		return nil, s.err
	}
	return &models.AnalysisResult{
		Symbol:          p.Symbol,
		ConfluenceScore: 74,
		Components:      map[string]float64{"technical": 74},
		Timestamp:       time.Unix(1700000000, 0),
	}, nil
}

type stubQueue struct {
	dup  bool
	err  error
	last usecase.RefreshRequest
}

func (q *stubQueue) Enqueue(context.Context, string, any) (string, error) { return "", nil }

func (q *stubQueue) EnqueueUnique(_ context.Context, msgType, key string, payload any) (string, error) {
	if q.dup {
		return "", queue.ErrDuplicate
	}
	if q.err != nil {
		return "", q.err
	}
	q.last = payload.(usecase.RefreshRequest)
	return "job-" + key, nil
}

type stubHistory struct {
	limit int
	err   error
}

func (s *stubHistory) Init(context.Context) error { return nil }

func (s *stubHistory) AppendScores(context.Context, []models.ScoreRecord) error { return nil }

func (s *stubHistory) History(_ context.Context, symbol string, limit int) ([]models.ScoreRecord, error) {
	s.limit = limit
	if s.err != nil {
		return nil, s.err
	}
	return []models.ScoreRecord{
		{Symbol: symbol, Score: 61, Timestamp: time.Unix(1700000100, 0)},
		{Symbol: symbol, Score: 58, Timestamp: time.Unix(1700000000, 0)},
	}, nil
}

func (s *stubHistory) Health(context.Context) error { return nil }

func (s *stubHistory) Close() error { return nil }

func newTestServer(t *testing.T, opts ...HandlerOption) (*echo.Echo, *publisher.Service) {
	t.Helper()
	store := cache.NewMemoryCache()
	t.Cleanup(func() { _ = store.Close() })
	pub := publisher.New(store)

	e := echo.New()
	NewConfluenceHandler(nil, pub, opts...).RegisterRoutes(e)
	return e, pub
}

func do(t *testing.T, e *echo.Echo, method, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestBreakdown_NotFoundThenPublished(t *testing.T) {
	e, pub := newTestServer(t)

	rec, _ := do(t, e, http.MethodGet, "/api/confluence/BTCUSDT/breakdown")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.True(t, pub.Publish(context.Background(), "BTCUSDT", &models.AnalysisResult{
		ConfluenceScore: 82, Components: map[string]float64{"rsi_fast": 90},
	}))

	rec, env := do(t, e, http.MethodGet, "/api/confluence/btcusdt/breakdown")
	require.Equal(t, http.StatusOK, rec.Code)
	var b models.Breakdown
	require.NoError(t, json.Unmarshal(env.Data, &b))
	assert.Equal(t, "BTCUSDT", b.Symbol)
	assert.Equal(t, models.SentimentBullish, b.Sentiment)
	assert.Equal(t, 90.0, b.Components["technical"])

	rec, env = do(t, e, http.MethodGet, "/api/confluence/BTCUSDT/score")
	require.Equal(t, http.StatusOK, rec.Code)
	var s models.ScoreSummary
	require.NoError(t, json.Unmarshal(env.Data, &s))
	assert.Equal(t, 82.0, s.Score)
}

func TestBreakdown_InvalidSymbol(t *testing.T) {
	e, _ := newTestServer(t)
	rec, env := do(t, e, http.MethodGet, "/api/confluence/B-T/breakdown")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, http.StatusBadRequest, env.Status)
}

func TestAnalyze(t *testing.T) {
	live := &stubLive{}
	e, _ := newTestServer(t, WithAnalyzer(live, nil))

	rec, env := do(t, e, http.MethodGet, "/api/confluence/analyze?symbol=ethusdt")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ETHUSDT", live.params.Symbol)
	assert.True(t, live.params.UseCache)

	var res models.AnalysisResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 74.0, res.ConfluenceScore)

	do(t, e, http.MethodGet, "/api/confluence/analyze?symbol=ETHUSDT&cache=false")
	assert.False(t, live.params.UseCache)

	rec, _ = do(t, e, http.MethodGet, "/api/confluence/analyze?symbol=ETHUSDT&cache=maybe")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, e, http.MethodGet, "/api/confluence/analyze")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyze_PublishAndErrors(t *testing.T) {
	store := cache.NewMemoryCache()
	t.Cleanup(func() { _ = store.Close() })
	pub := publisher.New(store)
	live := &stubLive{}
	e := echo.New()
	NewConfluenceHandler(nil, pub, WithAnalyzer(live, pub)).RegisterRoutes(e)

	rec, _ := do(t, e, http.MethodGet, "/api/confluence/analyze?symbol=SOLUSDT&publish=true")
	require.Equal(t, http.StatusOK, rec.Code)
	_, err := pub.Breakdown(context.Background(), "SOLUSDT")
	assert.NoError(t, err)

	live.err = errors.New("boom")
	rec, _ = do(t, e, http.MethodGet, "/api/confluence/analyze?symbol=SOLUSDT")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAnalyze_Disabled(t *testing.T) {
	e, _ := newTestServer(t)
	rec, _ := do(t, e, http.MethodGet, "/api/confluence/analyze?symbol=BTCUSDT")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRefresh(t *testing.T) {
	q := &stubQueue{}
	e, _ := newTestServer(t, WithQueue(q))

	rec, env := do(t, e, http.MethodPost, "/api/confluence/bnbusdt/refresh")
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp models.RefreshResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, "job-BNBUSDT", resp.JobID)
	assert.Equal(t, "BNBUSDT", q.last.Symbol)
	assert.True(t, q.last.Invalidate)

	q.dup = true
	rec, _ = do(t, e, http.MethodPost, "/api/confluence/BNBUSDT/refresh")
	assert.Equal(t, http.StatusConflict, rec.Code)

	q.dup, q.err = false, errors.New("redis down")
	rec, _ = do(t, e, http.MethodPost, "/api/confluence/BNBUSDT/refresh")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHistory(t *testing.T) {
	hist := &stubHistory{}
	e, _ := newTestServer(t, WithHistoryStore(hist))

	rec, env := do(t, e, http.MethodGet, "/api/confluence/BTCUSDT/history")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100, hist.limit)

	var list struct {
		Rows  []models.ScoreRecord `json:"rows"`
		Total int64                `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, int64(2), list.Total)

	do(t, e, http.MethodGet, "/api/confluence/BTCUSDT/history?limit=5")
	assert.Equal(t, 5, hist.limit)

	rec, _ = do(t, e, http.MethodGet, "/api/confluence/BTCUSDT/history?limit=5000")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, e, http.MethodGet, "/api/confluence/BTCUSDT/history?since=yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, env = do(t, e, http.MethodGet, "/api/confluence/BTCUSDT/history?since=1700000050")
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, int64(1), list.Total)
	assert.Equal(t, 61.0, list.Rows[0].Score)
}

func TestHealth(t *testing.T) {
	e, _ := newTestServer(t, WithHealthCheck("redis", func(context.Context) error { return nil }))
	rec, _ := do(t, e, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	e, _ = newTestServer(t,
		WithHealthCheck("redis", func(context.Context) error { return nil }),
		WithHealthCheck("clickhouse", func(context.Context) error { return errors.New("dial tcp: refused") }))
	rec, env := do(t, e, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var h healthResponse
	require.NoError(t, json.Unmarshal(env.Data, &h))
	assert.Equal(t, "degraded", h.Status)
	assert.Equal(t, "ok", h.Checks["redis"])
}

type denyAfter struct{ n int }

func (d *denyAfter) Allow(string) bool {
	d.n--
	return d.n >= 0
}

func TestRateLimit_OnlyWorkEndpoints(t *testing.T) {
	e, pub := newTestServer(t, WithAnalyzer(&stubLive{}, nil), WithRateLimiter(&denyAfter{n: 1}))
	require.True(t, pub.Publish(context.Background(), "BTCUSDT", &models.AnalysisResult{ConfluenceScore: 50}))

	rec, _ := do(t, e, http.MethodGet, "/api/confluence/analyze?symbol=BTCUSDT")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env := do(t, e, http.MethodGet, "/api/confluence/analyze?symbol=BTCUSDT")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, http.StatusTooManyRequests, env.Status)

	rec, _ = do(t, e, http.MethodGet, "/api/confluence/BTCUSDT/breakdown")
	assert.Equal(t, http.StatusOK, rec.Code)
}
