package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BrandonDHaskell/rollcall/internal/rollcall/geo"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/ledger"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/qr"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/service"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/store"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/types"
)

// GateConfig configures the QR envelope and proximity check that runs in
// front of the decision engine, and the codes the admin API issues.
type GateConfig struct {
	Classroom     types.LatLng
	MaxDistanceKm float64
	QRTTL         time.Duration
	// RequireQR rejects submissions that carry no code.
	RequireQR bool
}

// AdminConfig enables the /v1/admin routes when Secret is set.
type AdminConfig struct {
	Secret string
	Issuer string
}

type Dependencies struct {
	Logger      *slog.Logger
	Addr        string
	Attendance  *service.AttendanceService
	Roster      *service.RosterService
	Cleanup     *service.CleanupJobs
	Maintenance *service.MaintenanceService
	Events      store.DecisionEventStore
	Gate        GateConfig
	Admin       AdminConfig
	// Now defaults to time.Now.
	Now func() time.Time
}

type Server struct {
	httpServer  *http.Server
	logger      *slog.Logger
	attendance  *service.AttendanceService
	roster      *service.RosterService
	cleanup     *service.CleanupJobs
	maintenance *service.MaintenanceService
	events      store.DecisionEventStore
	gate        GateConfig
	admin       AdminConfig
	now         func() time.Time
}

func NewServer(d Dependencies) *Server {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Gate.MaxDistanceKm <= 0 {
		d.Gate.MaxDistanceKm = geo.DefaultMaxDistanceKm
	}

	s := &Server{
		logger:      d.Logger.With("component", "http"),
		attendance:  d.Attendance,
		roster:      d.Roster,
		cleanup:     d.Cleanup,
		maintenance: d.Maintenance,
		events:      d.Events,
		gate:        d.Gate,
		admin:       d.Admin,
		now:         d.Now,
	}

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/v1/attendance", s.handleSubmit)
	r.Get("/v1/students", s.handleStudents)

	if s.admin.Secret != "" {
		r.Route("/v1/admin", func(r chi.Router) {
			r.Use(adminMiddleware(s.admin))
			r.Post("/qr", s.handleIssueQR)
			r.Post("/cleanup-jobs", s.handleStartCleanup)
			r.Post("/cleanup-jobs/{id}/process", s.handleProcessCleanup)
			r.Get("/cleanup-jobs/{id}", s.handleCleanupStatus)
			r.Post("/devices/clear", s.handleClearDevice)
			r.Get("/decisions", s.handleDecisions)
		})
	}
	return r
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ── Attendance ───────────────────────────────────────────────────────────────

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req types.SubmissionRequest
	if err := readBody(r, &req); err != nil {
		respond(w, r, http.StatusBadRequest, types.Reject(types.ReasonInvalidInput, "invalid request body"))
		return
	}
	// The address the request came from wins over anything the client sent.
	req.ClientIP = clientIP(r)

	if resp, ok := s.checkGate(req); !ok {
		respond(w, r, statusFor(resp), resp)
		return
	}

	resp, err := s.attendance.Submit(r.Context(), req)
	if err != nil {
		s.logger.Error("submission failed", "student_id", req.StudentID, "error", err)
	}
	respond(w, r, statusFor(resp), resp)
}

// checkGate validates the QR envelope and the student's distance from the
// classroom it names.
func (s *Server) checkGate(req types.SubmissionRequest) (types.SubmissionResponse, bool) {
	now := s.now()
	gate := qr.Gate{MaxDistanceKm: s.gate.MaxDistanceKm, Required: s.gate.RequireQR}
	if err := gate.Verify(now, req.QR, req.Week, req.Location); err != nil {
		resp := types.Reject(qr.Reason(err), err.Error())
		resp.ServerTime = now.UTC().Format(time.RFC3339Nano)
		s.logger.Info("submission rejected at gate", "student_id", req.StudentID, "reason", resp.Reason)
		return resp, false
	}
	return types.SubmissionResponse{}, true
}

func (s *Server) handleStudents(w http.ResponseWriter, r *http.Request) {
	students, err := s.roster.Students(r.Context())
	if err != nil {
		s.logger.Error("roster read failed", "error", err)
		writeStoreError(w, err)
		return
	}
	if students == nil {
		students = []types.Student{}
	}
	respond(w, r, http.StatusOK, map[string]any{"students": students})
}

// ── Admin ────────────────────────────────────────────────────────────────────

type issueQRRequest struct {
	Week       int           `json:"week"`
	Classroom  *types.LatLng `json:"classroom,omitempty"`
	TTLSeconds int           `json:"ttl_seconds,omitempty"`
}

func (s *Server) handleIssueQR(w http.ResponseWriter, r *http.Request) {
	var req issueQRRequest
	if err := readBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_body", "invalid request body")
		return
	}
	if req.Week < types.MinWeek || req.Week > types.MaxWeek {
		writeError(w, http.StatusBadRequest, string(types.ReasonInvalidWeek), "week is outside the semester")
		return
	}
	classroom := s.gate.Classroom
	if req.Classroom != nil {
		classroom = *req.Classroom
	}
	ttl := s.gate.QRTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	p := qr.Issue(s.now(), classroom, req.Week, ttl)
	code, err := qr.Encode(p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	respond(w, r, http.StatusOK, map[string]any{"qr": code, "payload": p})
}

type startCleanupRequest struct {
	Week int `json:"week"`
}

type jobView struct {
	ID        string  `json:"id"`
	Week      int     `json:"week"`
	Status    string  `json:"status"`
	Processed int     `json:"processed"`
	Total     int     `json:"total"`
	Progress  float64 `json:"progress"`
	Completed bool    `json:"completed"`
	Error     string  `json:"error,omitempty"`
}

func viewJob(j store.CleanupJob) jobView {
	v := jobView{
		ID:        j.ID,
		Week:      j.Week,
		Status:    string(j.Status),
		Processed: j.Processed,
		Total:     j.Total(),
		Progress:  1,
		Completed: j.Status == store.JobCompleted,
		Error:     j.Error,
	}
	if v.Total > 0 {
		v.Progress = float64(j.Processed) / float64(v.Total)
	}
	return v
}

func (s *Server) handleStartCleanup(w http.ResponseWriter, r *http.Request) {
	var req startCleanupRequest
	if err := readBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_body", "invalid request body")
		return
	}
	job, err := s.cleanup.Start(r.Context(), req.Week)
	if err != nil {
		s.writeJobError(w, err)
		return
	}
	respond(w, r, http.StatusCreated, viewJob(job))
}

func (s *Server) handleProcessCleanup(w http.ResponseWriter, r *http.Request) {
	job, err := s.cleanup.ProcessBatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeJobError(w, err)
		return
	}
	respond(w, r, http.StatusOK, viewJob(job))
}

func (s *Server) handleCleanupStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.cleanup.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeJobError(w, err)
		return
	}
	respond(w, r, http.StatusOK, viewJob(job))
}

func (s *Server) writeJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidWeek):
		writeError(w, http.StatusBadRequest, string(types.ReasonInvalidWeek), "week is outside the semester")
	case errors.Is(err, service.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job_not_found", "no such cleanup job")
	case errors.Is(err, service.ErrJobExpired):
		writeError(w, http.StatusGone, "job_expired", "cleanup job expired")
	case errors.Is(err, service.ErrJobFinished):
		writeError(w, http.StatusConflict, "job_finished", "cleanup job already finished")
	default:
		s.logger.Error("cleanup job error", "error", err)
		writeStoreError(w, err)
	}
}

type clearDeviceRequest struct {
	Fingerprint string `json:"fingerprint"`
}

func (s *Server) handleClearDevice(w http.ResponseWriter, r *http.Request) {
	var req clearDeviceRequest
	if err := readBody(r, &req); err != nil || req.Fingerprint == "" {
		writeError(w, http.StatusBadRequest, "bad_body", "fingerprint is required")
		return
	}
	cleared, err := s.maintenance.ClearDevice(r.Context(), req.Fingerprint)
	if err != nil {
		s.logger.Error("device clear failed", "error", err)
		writeStoreError(w, err)
		return
	}
	s.logger.Info("device clear requested", "admin", adminSubject(r.Context()), "cleared", cleared)
	respond(w, r, http.StatusOK, map[string]bool{"cleared": cleared})
}

const (
	defaultDecisionLimit = 50
	maxDecisionLimit     = 500
)

type decisionView struct {
	StudentID         string    `json:"student_id"`
	Week              int       `json:"week"`
	ClientIP          string    `json:"client_ip"`
	FingerprintPrefix string    `json:"fingerprint_prefix"`
	Accepted          bool      `json:"accepted"`
	AlreadyAttended   bool      `json:"already_attended,omitempty"`
	Reason            string    `json:"reason,omitempty"`
	BlockedStudentID  string    `json:"blocked_student_id,omitempty"`
	Fallback          bool      `json:"fallback,omitempty"`
	DecidedAt         time.Time `json:"decided_at"`
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	limit := defaultDecisionLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "bad_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, maxDecisionLimit)
	}

	recs, err := s.events.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("decision log read failed", "error", err)
		writeStoreError(w, err)
		return
	}
	out := make([]decisionView, 0, len(recs))
	for _, e := range recs {
		out = append(out, decisionView(e))
	}
	respond(w, r, http.StatusOK, map[string]any{"decisions": out})
}

// ── Status mapping ───────────────────────────────────────────────────────────

// statusFor maps a submission outcome onto an HTTP status. The body is the
// response either way.
func statusFor(resp types.SubmissionResponse) int {
	if resp.Accepted {
		return http.StatusOK
	}
	switch resp.Reason {
	case types.ReasonStudentNotFound:
		return http.StatusNotFound
	case types.ReasonDeviceBelongsToAnotherStudent,
		types.ReasonUnauthorizedDevice,
		types.ReasonDeviceAlreadyUsedToday,
		types.ReasonLocationOutOfRange:
		return http.StatusForbidden
	case types.ReasonTransientStoreError:
		return http.StatusServiceUnavailable
	case types.ReasonInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, ledger.ErrTransientStore) {
		writeError(w, http.StatusServiceUnavailable, string(types.ReasonTransientStoreError), "store is busy, please try again later")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
}
