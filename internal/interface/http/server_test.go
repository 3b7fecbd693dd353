package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolhub/schoolhub/internal/application/store"
	"github.com/schoolhub/schoolhub/internal/domain/billing"
	"github.com/schoolhub/schoolhub/internal/domain/calendar"
	"github.com/schoolhub/schoolhub/internal/domain/dashboard"
	"github.com/schoolhub/schoolhub/internal/domain/finance"
	"github.com/schoolhub/schoolhub/internal/domain/staff"
	"github.com/schoolhub/schoolhub/internal/domain/student"
	badgerstore "github.com/schoolhub/schoolhub/internal/infrastructure/persistence/badger"
	"github.com/schoolhub/schoolhub/internal/infrastructure/scheduler"
	"github.com/schoolhub/schoolhub/internal/interface/http/handlers"
	"github.com/schoolhub/schoolhub/pkg/logger"
	"github.com/schoolhub/schoolhub/pkg/timeutil"
)

// mid-March: January, February and March are due.
var march = time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *ResponseMeta   `json:"meta"`
}

type testServer struct {
	t       *testing.T
	handler http.Handler
	store   *store.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	backend, err := badgerstore.Open(badgerstore.Config{InMemory: true}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	st, err := store.New(backend,
		store.WithLogger(logger.Nop()),
		store.WithClassifier(billing.NewClassifier(billing.DefaultCalendar(), timeutil.NewFixedClock(march))),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close(context.Background()) })
	require.NoError(t, st.Load(context.Background()))

	srv := NewServer(DefaultConfig(), Dependencies{Store: st, Logger: logger.Nop()})
	return &testServer{t: t, handler: srv.Handler(), store: st}
}

func (ts *testServer) do(method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	ts.t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(ts.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(ts.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestHealth_WithoutChecker(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
}

func TestHealth_UnhealthyCheckIs503(t *testing.T) {
	checker := handlers.NewCompositeHealthChecker("test")
	checker.AddCheck("database", func(context.Context) error { return assert.AnError })

	srv := NewServer(DefaultConfig(), Dependencies{Logger: logger.Nop(), HealthChecker: checker})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCreateStudent_DerivesFinancialStatus(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(http.MethodPost, "/api/v1/students", map[string]any{
		"id":              "s1",
		"name":            "Ana Souza",
		"email":           "ana@example.com",
		"financialStatus": "late",
		"paidMonths":      []string{"January", "February", "March"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	got := decode[student.Student](t, env)
	assert.Equal(t, "s1", got.ID)
	assert.Equal(t, student.FinancialPaid, got.FinancialStatus)
	assert.Equal(t, student.EnrollmentActive, got.Status)

	rec, env = ts.do(http.MethodGet, "/api/v1/students", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]student.Student](t, env), 1)
	assert.Equal(t, 1, env.Meta.TotalCount)
}

func TestCreateStudent_AssignsID(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(http.MethodPost, "/api/v1/students", map[string]any{"name": "Bruno"})
	require.Equal(t, http.StatusCreated, rec.Code)
	got := decode[student.Student](t, env)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, student.FinancialPending, got.FinancialStatus)
}

func TestCreateStudent_ValidationFailure(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(http.MethodPost, "/api/v1/students", map[string]any{
		"email":  "not-an-email",
		"status": "graduated",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "validation_failed", env.Error.Code)
	assert.Equal(t, "required", env.Error.Fields["name"])
	assert.Equal(t, "email", env.Error.Fields["email"])
	assert.Contains(t, env.Error.Fields["status"], "oneof")
	assert.Empty(t, ts.store.Students())
}

func TestCreateStudent_MalformedBody(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(http.MethodPost, "/api/v1/students", `{"name": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid_body", env.Error.Code)
}

func TestUpdateStudent(t *testing.T) {
	ts := newTestServer(t)
	ts.do(http.MethodPost, "/api/v1/students", map[string]any{"id": "s1", "name": "Ana"})

	rec, env := ts.do(http.MethodPut, "/api/v1/students/s1", map[string]any{
		"name":       "Ana Maria",
		"paidMonths": []string{"January"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[student.Student](t, env)
	assert.Equal(t, "Ana Maria", got.Name)
	assert.Equal(t, student.FinancialLate, got.FinancialStatus)

	rec, _ = ts.do(http.MethodPut, "/api/v1/students/ghost", map[string]any{"name": "Nobody"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = ts.do(http.MethodGet, "/api/v1/students/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateTransaction_ReconcilesStudent(t *testing.T) {
	ts := newTestServer(t)
	ts.do(http.MethodPost, "/api/v1/students", map[string]any{
		"id":         "s1",
		"name":       "Ana",
		"paidMonths": []string{"January", "February"},
	})

	rec, env := ts.do(http.MethodPost, "/api/v1/transactions", map[string]any{
		"description": "Tuition March",
		"amount":      "500",
		"type":        "income",
		"status":      "completed",
		"studentId":   "s1",
		"paidMonths":  []string{"March"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tx := decode[finance.Transaction](t, env)
	assert.NotEmpty(t, tx.ID)
	assert.False(t, tx.Date.IsZero())

	_, env = ts.do(http.MethodGet, "/api/v1/students/s1", nil)
	s1 := decode[student.Student](t, env)
	assert.Equal(t, []string{"January", "February", "March"}, s1.PaidMonths)
	assert.Equal(t, student.FinancialPaid, s1.FinancialStatus)

	_, env = ts.do(http.MethodGet, "/api/v1/dashboard", nil)
	dash := decode[DashboardResponse](t, env)
	assert.Equal(t, "500", dash.KPIs.TotalRevenue.String())
	assert.Equal(t, 1, dash.KPIs.TotalStudents)
	assert.False(t, dash.Loading)

	_, env = ts.do(http.MethodGet, "/api/v1/students/s1/transactions", nil)
	assert.Len(t, decode[[]finance.Transaction](t, env), 1)

	_, env = ts.do(http.MethodGet, "/api/v1/transactions?studentId=nobody", nil)
	assert.Empty(t, decode[[]finance.Transaction](t, env))
}

func TestCreateTransaction_RejectsNegativeAmount(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(http.MethodPost, "/api/v1/transactions", map[string]any{
		"description": "Refund",
		"amount":      "-10",
		"type":        "expense",
		"status":      "completed",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "gte=0", env.Error.Fields["amount"])
}

func TestEvents_Lifecycle(t *testing.T) {
	ts := newTestServer(t)
	start := time.Date(2026, time.April, 10, 13, 0, 0, 0, time.UTC)

	rec, env := ts.do(http.MethodPost, "/api/v1/events", map[string]any{
		"id":    "e1",
		"title": "Parents meeting",
		"start": start,
		"end":   start.Add(2 * time.Hour),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 2*time.Hour, decode[calendar.Event](t, env).Duration())

	rec, env = ts.do(http.MethodPut, "/api/v1/events/e1", map[string]any{
		"title": "Parents meeting (moved)",
		"start": start.Add(24 * time.Hour),
		"end":   start.Add(26 * time.Hour),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Parents meeting (moved)", decode[calendar.Event](t, env).Title)

	rec, _ = ts.do(http.MethodDelete, "/api/v1/events/e1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, _ = ts.do(http.MethodDelete, "/api/v1/events/e1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEvents_EndBeforeStart(t *testing.T) {
	ts := newTestServer(t)
	start := time.Date(2026, time.April, 10, 13, 0, 0, 0, time.UTC)

	rec, env := ts.do(http.MethodPost, "/api/v1/events", map[string]any{
		"title": "Backwards",
		"start": start,
		"end":   start.Add(-time.Hour),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Error.Fields["end"], "gtefield")
}

func TestEmployees_CreateAndUpdate(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(http.MethodPost, "/api/v1/employees", map[string]any{
		"id":         "emp1",
		"name":       "Carla",
		"role":       "Math teacher",
		"department": "teaching",
		"salary":     map[string]any{"base": "4200.50", "currency": "BRL"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	emp := decode[staff.Employee](t, env)
	assert.Equal(t, staff.StatusActive, emp.Status)
	assert.Equal(t, "4200.5", emp.Salary.Base.String())

	rec, env = ts.do(http.MethodPut, "/api/v1/employees/emp1", map[string]any{
		"name":       "Carla",
		"role":       "Coordinator",
		"department": "coordination",
		"status":     "vacation",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, staff.StatusVacation, decode[staff.Employee](t, env).Status)

	rec, env = ts.do(http.MethodPost, "/api/v1/employees", map[string]any{
		"name":       "Dan",
		"role":       "Janitor",
		"department": "cleaning",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Error.Fields["department"], "oneof")
}

func TestRefresh_ReloadsPersistedState(t *testing.T) {
	ts := newTestServer(t)
	ts.do(http.MethodPost, "/api/v1/students", map[string]any{"id": "s1", "name": "Ana"})
	ts.do(http.MethodPost, "/api/v1/students", map[string]any{"id": "s2", "name": "Bia"})

	rec, env := ts.do(http.MethodPost, "/api/v1/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[RefreshResponse](t, env)
	assert.Equal(t, 2, got.Students)
	assert.Equal(t, 2, got.KPIs.TotalStudents)

	students := ts.store.Students()
	require.Len(t, students, 2)
	assert.Equal(t, "s2", students[0].ID)
}

func TestMissingStore_RecoversTo500(t *testing.T) {
	srv := NewServer(DefaultConfig(), Dependencies{Logger: logger.Nop()})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMiddleware_RequestIDAndCORS(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/students", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCreateStudent_KnownIDReplaces(t *testing.T) {
	ts := newTestServer(t)

	rec, _ := ts.do(http.MethodPost, "/api/v1/students", map[string]any{"id": "s1", "name": "First"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec, env := ts.do(http.MethodPost, "/api/v1/students", map[string]any{"id": "s1", "name": "Second"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Second", decode[student.Student](t, env).Name)

	_, env = ts.do(http.MethodGet, "/api/v1/students", nil)
	assert.Len(t, decode[[]student.Student](t, env), 1)

	rec, env = ts.do(http.MethodPost, "/api/v1/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[RefreshResponse](t, env).Students)
	stored, ok := ts.store.Student("s1")
	require.True(t, ok)
	assert.Equal(t, "Second", stored.Name)
}

type cachedKPIs struct {
	snap dashboard.Snapshot
	err  error
}

func (c cachedKPIs) Latest(context.Context) (dashboard.Snapshot, error) { return c.snap, c.err }

func newLoadingServer(t *testing.T, deps Dependencies) http.Handler {
	t.Helper()
	backend, err := badgerstore.Open(badgerstore.Config{InMemory: true}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	st, err := store.New(backend, store.WithLogger(logger.Nop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close(context.Background()) })

	deps.Store = st
	deps.Logger = logger.Nop()
	return NewServer(DefaultConfig(), deps).Handler()
}

func getDashboard(t *testing.T, h http.Handler) DashboardResponse {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return decode[DashboardResponse](t, env)
}

func TestDashboard_ServesCachedKPIsWhileLoading(t *testing.T) {
	computed := march.Add(-time.Hour)
	h := newLoadingServer(t, Dependencies{CachedKPIs: cachedKPIs{snap: dashboard.Snapshot{
		KPIs:       dashboard.KPIs{TotalStudents: 7, DelinquencyRate: 14.3},
		ComputedAt: computed,
	}}})

	got := getDashboard(t, h)
	assert.True(t, got.Loading)
	assert.True(t, got.Cached)
	assert.Equal(t, 7, got.KPIs.TotalStudents)
	require.NotNil(t, got.ComputedAt)
	assert.True(t, computed.Equal(*got.ComputedAt))
}

func TestDashboard_CacheMissFallsBackToStore(t *testing.T) {
	h := newLoadingServer(t, Dependencies{CachedKPIs: cachedKPIs{err: assert.AnError}})

	got := getDashboard(t, h)
	assert.True(t, got.Loading)
	assert.False(t, got.Cached)
	assert.Equal(t, 0, got.KPIs.TotalStudents)
}

type jobFunc func(ctx context.Context) error

func (f jobFunc) Name() string                  { return "noop" }
func (f jobFunc) Description() string           { return "does nothing" }
func (f jobFunc) Run(ctx context.Context) error { return f(ctx) }

func TestJobs_ListAndRun(t *testing.T) {
	sched := scheduler.New(scheduler.Config{Logger: logger.Nop()})
	runs := 0
	require.NoError(t, sched.Register(jobFunc(func(context.Context) error {
		runs++
		return nil
	}), scheduler.NewIntervalSchedule(time.Hour)))

	h := newLoadingServer(t, Dependencies{Jobs: sched})
	call := func(method, path string) (*httptest.ResponseRecorder, envelope) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
		var env envelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
		return rec, env
	}

	rec, env := call(http.MethodPost, "/api/v1/jobs/noop/run")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[JobResultResponse](t, env).Success)
	assert.Equal(t, 1, runs)

	rec, env = call(http.MethodGet, "/api/v1/jobs")
	require.Equal(t, http.StatusOK, rec.Code)
	jobs := decode[[]JobResponse](t, env)
	require.Len(t, jobs, 1)
	assert.Equal(t, "@every 1h0m0s", jobs[0].Schedule)
	assert.Equal(t, int64(1), jobs[0].RunCount)
	require.NotNil(t, jobs[0].LastRun)
	assert.True(t, jobs[0].LastRun.Success)

	rec, _ = call(http.MethodPost, "/api/v1/jobs/missing/run")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
