package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/schoolhub/schoolhub/internal/application/store"
	"github.com/schoolhub/schoolhub/internal/domain/dashboard"
	"github.com/schoolhub/schoolhub/internal/infrastructure/scheduler"
	"github.com/schoolhub/schoolhub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & DASHBOARD
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "healthy",
			"uptime": s.Uptime().String(),
		})
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// DashboardResponse is GET /dashboard. While the store is loading the KPIs
// come from the cache, if one is configured, and Cached is set.
type DashboardResponse struct {
	KPIs       dashboard.KPIs   `json:"kpis"`
	Loading    bool             `json:"loading"`
	Cached     bool             `json:"cached,omitempty"`
	ComputedAt *time.Time       `json:"computedAt,omitempty"`
	Writes     store.WriteStats `json:"writes"`
}

const cachedKPITimeout = 500 * time.Millisecond

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	st := store.FromContext(r.Context())
	resp := DashboardResponse{
		KPIs:    st.KPIs(),
		Loading: st.Loading(),
		Writes:  st.WriteStats(),
	}

	if resp.Loading && s.deps.CachedKPIs != nil {
		ctx, cancel := context.WithTimeout(r.Context(), cachedKPITimeout)
		snap, err := s.deps.CachedKPIs.Latest(ctx)
		cancel()
		if err == nil {
			resp.KPIs = snap.KPIs
			resp.Cached = true
			resp.ComputedAt = &snap.ComputedAt
		} else {
			s.logger.Debug("no cached KPIs while loading", logger.Err(err))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// RefreshResponse summarizes what a reload produced.
type RefreshResponse struct {
	Students     int            `json:"students"`
	Transactions int            `json:"transactions"`
	Events       int            `json:"events"`
	Employees    int            `json:"employees"`
	KPIs         dashboard.KPIs `json:"kpis"`
	Duration     string         `json:"duration"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	st := store.FromContext(r.Context())

	start := time.Now()
	if err := st.Refresh(r.Context()); err != nil {
		s.logger.Warn("refresh abandoned",
			logger.Err(err),
			logger.RequestID(getRequestID(r.Context())),
		)
		writeJSONError(w, http.StatusServiceUnavailable, "refresh_abandoned", "Refresh did not complete")
		return
	}

	snap := st.Snapshot()
	writeJSON(w, http.StatusOK, RefreshResponse{
		Students:     len(snap.Students),
		Transactions: len(snap.Transactions),
		Events:       len(snap.Events),
		Employees:    len(snap.Employees),
		KPIs:         snap.KPIs,
		Duration:     time.Since(start).Round(time.Millisecond).String(),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	st := store.FromContext(r.Context())
	students := st.Students()
	writeList(w, students, len(students), st.Loading())
}

func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	found, ok := store.FromContext(r.Context()).Student(r.PathValue("id"))
	if !ok {
		writeNotFound(w, "student")
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleStudentTransactions(w http.ResponseWriter, r *http.Request) {
	st := store.FromContext(r.Context())
	id := r.PathValue("id")
	if _, ok := st.Student(id); !ok {
		writeNotFound(w, "student")
		return
	}
	txs := st.TransactionsForStudent(id)
	writeList(w, txs, len(txs), st.Loading())
}

func (s *Server) handleCreateStudent(w http.ResponseWriter, r *http.Request) {
	var req StudentRequest
	if !s.bind(w, r, &req) {
		return
	}
	created := store.FromContext(r.Context()).AddStudent(r.Context(), req.toDomain())
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateStudent(w http.ResponseWriter, r *http.Request) {
	var req StudentRequest
	if !s.bind(w, r, &req) {
		return
	}
	req.ID = r.PathValue("id")

	st := store.FromContext(r.Context())
	if !st.UpdateStudent(r.Context(), req.toDomain()) {
		writeNotFound(w, "student")
		return
	}
	updated, _ := st.Student(req.ID)
	writeJSON(w, http.StatusOK, updated)
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSACTIONS
// ══════════════════════════════════════════════════════════════════════════════

// handleListTransactions serves GET /transactions, optionally narrowed with
// ?studentId=.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	st := store.FromContext(r.Context())
	txs := st.Transactions()
	if id := r.URL.Query().Get("studentId"); id != "" {
		txs = st.TransactionsForStudent(id)
	}
	writeList(w, txs, len(txs), st.Loading())
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if !s.bind(w, r, &req) {
		return
	}
	created := store.FromContext(r.Context()).AddTransaction(r.Context(), req.toDomain(time.Now()))
	writeJSON(w, http.StatusCreated, created)
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENTS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	st := store.FromContext(r.Context())
	events := st.Events()
	writeList(w, events, len(events), st.Loading())
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	found, ok := store.FromContext(r.Context()).Event(r.PathValue("id"))
	if !ok {
		writeNotFound(w, "event")
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if !s.bind(w, r, &req) {
		return
	}
	created := store.FromContext(r.Context()).AddEvent(r.Context(), req.toDomain())
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if !s.bind(w, r, &req) {
		return
	}
	req.ID = r.PathValue("id")

	st := store.FromContext(r.Context())
	if !st.UpdateEvent(r.Context(), req.toDomain()) {
		writeNotFound(w, "event")
		return
	}
	updated, _ := st.Event(req.ID)
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	if !store.FromContext(r.Context()).DeleteEvent(r.Context(), r.PathValue("id")) {
		writeNotFound(w, "event")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ══════════════════════════════════════════════════════════════════════════════
// EMPLOYEES
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	st := store.FromContext(r.Context())
	employees := st.Employees()
	writeList(w, employees, len(employees), st.Loading())
}

func (s *Server) handleGetEmployee(w http.ResponseWriter, r *http.Request) {
	found, ok := store.FromContext(r.Context()).Employee(r.PathValue("id"))
	if !ok {
		writeNotFound(w, "employee")
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleCreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req EmployeeRequest
	if !s.bind(w, r, &req) {
		return
	}
	created := store.FromContext(r.Context()).AddEmployee(r.Context(), req.toDomain())
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateEmployee(w http.ResponseWriter, r *http.Request) {
	var req EmployeeRequest
	if !s.bind(w, r, &req) {
		return
	}
	req.ID = r.PathValue("id")

	st := store.FromContext(r.Context())
	if !st.UpdateEmployee(r.Context(), req.toDomain()) {
		writeNotFound(w, "employee")
		return
	}
	updated, _ := st.Employee(req.ID)
	writeJSON(w, http.StatusOK, updated)
}

// ══════════════════════════════════════════════════════════════════════════════
// JOBS
// ══════════════════════════════════════════════════════════════════════════════

// JobResponse describes a scheduled job.
type JobResponse struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Schedule    string             `json:"schedule"`
	NextRun     time.Time          `json:"nextRun"`
	Running     bool               `json:"running"`
	RunCount    int64              `json:"runCount"`
	FailCount   int64              `json:"failCount"`
	LastRun     *JobResultResponse `json:"lastRun,omitempty"`
}

// JobResultResponse is the outcome of one run.
type JobResultResponse struct {
	StartedAt time.Time `json:"startedAt"`
	Duration  string    `json:"duration"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

func toJobResult(r scheduler.JobResult) *JobResultResponse {
	out := &JobResultResponse{
		StartedAt: r.StartedAt,
		Duration:  r.Duration.Round(time.Millisecond).String(),
		Success:   r.Success,
	}
	if r.Error != nil {
		out.Error = r.Error.Error()
	}
	return out
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	infos := s.deps.Jobs.ListJobs()
	jobs := make([]JobResponse, 0, len(infos))
	for _, info := range infos {
		job := JobResponse{
			Name:        info.Name,
			Description: info.Description,
			Schedule:    info.Schedule,
			NextRun:     info.NextRun,
			Running:     info.Running,
			RunCount:    info.RunCount,
			FailCount:   info.FailCount,
		}
		if info.LastResult != nil {
			job.LastRun = toJobResult(*info.LastResult)
		}
		jobs = append(jobs, job)
	}
	writeList(w, jobs, len(jobs), false)
}

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	result, err := s.deps.Jobs.RunNow(r.Context(), name)
	switch {
	case errors.Is(err, scheduler.ErrJobNotFound):
		writeNotFound(w, "job")
	case errors.Is(err, scheduler.ErrJobRunning):
		writeJSONError(w, http.StatusConflict, "job_running", "Job is already running")
	case err != nil:
		s.logger.Warn("manual job run failed",
			logger.String("job", name),
			logger.Err(err),
			logger.RequestID(getRequestID(r.Context())),
		)
		writeJSONError(w, http.StatusInternalServerError, "job_failed", err.Error())
	default:
		writeJSON(w, http.StatusOK, toJobResult(result))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// bind decodes and validates the body, writing a 400 on failure.
func (s *Server) bind(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := decodeAndValidate(r, dst)
	if err == nil {
		return true
	}

	if errors.Is(err, errBadBody) {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return false
	}
	if fields := validationFields(err); fields != nil {
		writeAPIError(w, http.StatusBadRequest, &APIError{
			Code:    "validation_failed",
			Message: "Request validation failed",
			Fields:  fields,
		})
		return false
	}

	s.logger.Error("request validation error", logger.Err(err), logger.String("path", r.URL.Path))
	writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
	return false
}

func writeList(w http.ResponseWriter, data any, total int, loading bool) {
	writeJSONWithMeta(w, http.StatusOK, data, &ResponseMeta{TotalCount: total, Loading: loading})
}

func writeNotFound(w http.ResponseWriter, entity string) {
	writeJSONError(w, http.StatusNotFound, "not_found", entity+" not found")
}
