package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"runcoach/internal/core"
	"runcoach/internal/types"
)

// --- Helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRouter(register func(chi.Router)) http.Handler {
	r := chi.NewRouter()
	r.Route("/v1", register)
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, rdr))
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var env struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Data
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env core.APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.NotEmpty(t, env.Error.Code, "error response without a code: %s", rec.Body.String())
	return env.Error.Code
}

// --- Mocks ---

type mockSyncService struct {
	mock.Mock
}

func (m *mockSyncService) Start(ctx context.Context, selector string) (string, error) {
	args := m.Called(ctx, selector)
	return args.String(0), args.Error(1)
}

func (m *mockSyncService) Sync(ctx context.Context, selector string) types.SyncResult {
	return m.Called(ctx, selector).Get(0).(types.SyncResult)
}

func (m *mockSyncService) Last() *types.SyncResult {
	res, _ := m.Called().Get(0).(*types.SyncResult)
	return res
}

func (m *mockSyncService) Running() bool {
	return m.Called().Bool(0)
}

type mockActivityReader struct {
	mock.Mock
}

func (m *mockActivityReader) ListRecent(ctx context.Context, limit int) ([]types.Activity, error) {
	args := m.Called(ctx, limit)
	res, _ := args.Get(0).([]types.Activity)
	return res, args.Error(1)
}

func (m *mockActivityReader) Detail(ctx context.Context, id int64) (*types.Activity, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*types.Activity)
	return res, args.Error(1)
}

type mockStatsReader struct {
	mock.Mock
}

func (m *mockStatsReader) Overview(ctx context.Context, now time.Time) ([]types.PeriodStats, error) {
	args := m.Called(ctx, now)
	res, _ := args.Get(0).([]types.PeriodStats)
	return res, args.Error(1)
}

func (m *mockStatsReader) Period(ctx context.Context, period string, now time.Time) (*types.PeriodStats, error) {
	args := m.Called(ctx, period, now)
	res, _ := args.Get(0).(*types.PeriodStats)
	return res, args.Error(1)
}

type mockGoalStore struct {
	mock.Mock
}

func (m *mockGoalStore) Latest(ctx context.Context) (*types.Goal, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).(*types.Goal)
	return res, args.Error(1)
}

func (m *mockGoalStore) Save(ctx context.Context, narrative string) (*types.Goal, error) {
	args := m.Called(ctx, narrative)
	res, _ := args.Get(0).(*types.Goal)
	return res, args.Error(1)
}
