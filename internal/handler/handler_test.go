package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/prepscuola/simulazioni-backend/internal/middleware"
	"github.com/prepscuola/simulazioni-backend/internal/model"
	"github.com/prepscuola/simulazioni-backend/internal/response"
	"github.com/prepscuola/simulazioni-backend/internal/service"
	"github.com/prepscuola/simulazioni-backend/internal/session"
	"github.com/prepscuola/simulazioni-backend/internal/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

// envelope mirrors response.Response with a raw data field.
type envelope struct {
	Data       json.RawMessage      `json:"data"`
	Error      *response.ErrorBody  `json:"error"`
	Pagination *response.Pagination `json:"pagination"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return env
}

// asUser injects claims the way RequireAuth would.
func asUser(id uuid.UUID, role model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &service.Claims{UserID: id, Role: role, Name: "Test"})
		c.Next()
	}
}

func do(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   response.ErrCode
	}{
		{service.ErrUnauthenticated, http.StatusUnauthorized, response.ErrUnauthenticated},
		{fmt.Errorf("resolve: %w", service.ErrForbidden), http.StatusForbidden, response.ErrForbidden},
		{fmt.Errorf("get: %w", service.ErrNotFound), http.StatusNotFound, response.ErrNotFound},
		{service.ErrNotPublished, http.StatusConflict, response.ErrSimulationNotPublished},
		{service.ErrNotDraft, http.StatusConflict, response.ErrSimulationNotDraft},
		{service.ErrWindowNotOpen, http.StatusForbidden, response.ErrWindowNotOpen},
		{service.ErrWindowClosed, http.StatusForbidden, response.ErrWindowClosed},
		{service.ErrNotScheduled, http.StatusNotFound, response.ErrNotScheduled},
		{service.ErrSweepRunning, http.StatusConflict, response.ErrSweepRunning},
		{service.ErrConflict, http.StatusConflict, response.ErrConflict},
		{fmt.Errorf("%w: empty body", service.ErrValidation), http.StatusBadRequest, response.ErrValidation},
		{service.ErrTransient, http.StatusServiceUnavailable, response.ErrServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError, response.ErrInternal},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, code := classify(tt.err)
			if status != tt.wantStatus || code != tt.wantCode {
				t.Fatalf("classify = %d %s, want %d %s", status, code, tt.wantStatus, tt.wantCode)
			}
		})
	}
}

// ─── Cron ───────────────────────────────────────────────────────────

type stubSweeper struct {
	dryRuns []bool
	err     error
}

func (s *stubSweeper) CloseSimulations(_ context.Context, dryRun bool) (*service.CloseSimulationsReport, error) {
	s.dryRuns = append(s.dryRuns, dryRun)
	if s.err != nil {
		return nil, s.err
	}
	return &service.CloseSimulationsReport{DryRun: dryRun, TotalClosed: 2}, nil
}

func (s *stubSweeper) ExpireContracts(_ context.Context, dryRun bool) (*service.ExpireContractsReport, error) {
	s.dryRuns = append(s.dryRuns, dryRun)
	if s.err != nil {
		return nil, s.err
	}
	return &service.ExpireContractsReport{DryRun: dryRun, TotalExpired: 1, DeactivatedUsers: 1}, nil
}

func TestCronHandlerDryRun(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		body       string
		wantStatus int
		wantDryRun []bool
	}{
		{"empty body runs for real", "/cron/close-simulations", "", http.StatusOK, []bool{false}},
		{"body dry run", "/cron/close-simulations", `{"dry_run":true}`, http.StatusOK, []bool{true}},
		{"camel case body", "/cron/close-simulations", `{"dryRun":true}`, http.StatusOK, []bool{true}},
		{"explicit real run", "/cron/close-simulations", `{"dryRun":false}`, http.StatusOK, []bool{false}},
		{"query dry run", "/cron/expire-contracts?dry_run=true", "", http.StatusOK, []bool{true}},
		{"bad query", "/cron/expire-contracts?dry_run=maybe", "", http.StatusBadRequest, nil},
		{"bad body", "/cron/close-simulations", `{"dry_run":`, http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sweeps := &stubSweeper{}
			h := NewCronHandler(sweeps, testLog)
			r := gin.New()
			r.POST("/cron/close-simulations", h.CloseSimulations)
			r.POST("/cron/expire-contracts", h.ExpireContracts)

			w := do(r, http.MethodPost, tt.target, tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if fmt.Sprint(sweeps.dryRuns) != fmt.Sprint(tt.wantDryRun) {
				t.Fatalf("dry runs = %v, want %v", sweeps.dryRuns, tt.wantDryRun)
			}
		})
	}
}

func TestCronHandlerChunkedBody(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantDryRun []bool
	}{
		{"empty", "", http.StatusOK, []bool{false}},
		{"whitespace only", " \n", http.StatusOK, []bool{false}},
		{"dry run", `{"dryRun":true}`, http.StatusOK, []bool{true}},
		{"truncated", `{"dryRun":`, http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sweeps := &stubSweeper{}
			r := gin.New()
			r.POST("/cron/close-simulations", NewCronHandler(sweeps, testLog).CloseSimulations)

			req := httptest.NewRequest(http.MethodPost, "/cron/close-simulations", strings.NewReader(tt.body))
			req.ContentLength = -1
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if fmt.Sprint(sweeps.dryRuns) != fmt.Sprint(tt.wantDryRun) {
				t.Fatalf("dry runs = %v, want %v", sweeps.dryRuns, tt.wantDryRun)
			}
		})
	}
}

func TestCronHandlerReportsOverlap(t *testing.T) {
	h := NewCronHandler(&stubSweeper{err: fmt.Errorf("lock: %w", service.ErrSweepRunning)}, testLog)
	r := gin.New()
	r.POST("/cron/close-simulations", h.CloseSimulations)

	w := do(r, http.MethodPost, "/cron/close-simulations", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	if env := decode(t, w); env.Error == nil || env.Error.Code != response.ErrSweepRunning {
		t.Fatalf("error = %+v", env.Error)
	}
}

// ─── Results ────────────────────────────────────────────────────────

type stubResults struct {
	submitted *model.SubmitSimulationRequest
	err       error
}

func (s *stubResults) Submit(_ context.Context, p *model.Principal, simulationID uuid.UUID, req *model.SubmitSimulationRequest) (*model.Result, error) {
	s.submitted = req
	if s.err != nil {
		return nil, s.err
	}
	return &model.Result{ID: uuid.New(), SimulationID: simulationID, StudentID: p.UserID, AttemptID: req.AttemptID, Attempt: 1}, nil
}

func (s *stubResults) Get(context.Context, *model.Principal, uuid.UUID) (*model.Result, error) {
	return nil, service.ErrNotFound
}

func (s *stubResults) ListBySimulation(context.Context, *model.Principal, uuid.UUID) ([]model.Result, error) {
	return nil, nil
}

func (s *stubResults) Review(context.Context, *model.Principal, uuid.UUID, *model.ReviewResultRequest) (*model.Result, error) {
	return nil, s.err
}

type stubLeaderboard struct{ limit int }

func (s *stubLeaderboard) Get(_ context.Context, _ *model.Principal, _ uuid.UUID, limit int) (*service.LeaderboardView, error) {
	s.limit = limit
	return &service.LeaderboardView{}, nil
}

func TestSubmitSimulation(t *testing.T) {
	studentID, simID := uuid.New(), uuid.New()
	attempt := uuid.New()

	tests := []struct {
		name       string
		path       string
		body       string
		err        error
		wantStatus int
		wantCode   response.ErrCode
	}{
		{"ok", "/simulations/" + simID.String() + "/submit",
			fmt.Sprintf(`{"attempt_id":%q,"duration_seconds":600,"answers":[]}`, attempt), nil, http.StatusOK, ""},
		{"bad id", "/simulations/nope/submit", `{}`, nil, http.StatusBadRequest, response.ErrInvalidID},
		{"missing attempt id", "/simulations/" + simID.String() + "/submit",
			`{"duration_seconds":600,"answers":[]}`, nil, http.StatusBadRequest, response.ErrValidation},
		{"window closed", "/simulations/" + simID.String() + "/submit",
			fmt.Sprintf(`{"attempt_id":%q,"answers":[]}`, attempt), service.ErrWindowClosed, http.StatusForbidden, response.ErrWindowClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := &stubResults{err: tt.err}
			h := NewResultHandler(results, &stubLeaderboard{})
			r := gin.New()
			r.POST("/simulations/:id/submit", asUser(studentID, model.RoleStudent), h.SubmitSimulation)

			w := do(r, http.MethodPost, tt.path, tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			env := decode(t, w)
			if tt.wantCode != "" {
				if env.Error == nil || env.Error.Code != tt.wantCode {
					t.Fatalf("error = %+v, want %s", env.Error, tt.wantCode)
				}
				return
			}
			var data struct {
				Result model.Result `json:"result"`
			}
			if err := json.Unmarshal(env.Data, &data); err != nil {
				t.Fatal(err)
			}
			if data.Result.AttemptID != attempt || results.submitted.DurationSeconds != 600 {
				t.Fatalf("result = %+v, request = %+v", data.Result, results.submitted)
			}
		})
	}
}

func TestGetLeaderboardClampsLimit(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", defaultLeaderboardLimit},
		{"?limit=5", 5},
		{"?limit=0", defaultLeaderboardLimit},
		{"?limit=-3", defaultLeaderboardLimit},
		{"?limit=abc", defaultLeaderboardLimit},
		{"?limit=5000", maxLeaderboardLimit},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			lb := &stubLeaderboard{}
			h := NewResultHandler(&stubResults{}, lb)
			r := gin.New()
			r.GET("/simulations/:id/leaderboard", asUser(uuid.New(), model.RoleStudent), h.GetLeaderboard)

			w := do(r, http.MethodGet, "/simulations/"+uuid.NewString()+"/leaderboard"+tt.query, "")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			if lb.limit != tt.want {
				t.Fatalf("limit = %d, want %d", lb.limit, tt.want)
			}
		})
	}
}

// ─── Sessions, messages, calendar ───────────────────────────────────

type stubSessions struct {
	snap *session.Snapshot
	err  error
}

func (s *stubSessions) Start(context.Context, *model.Principal, uuid.UUID) (*session.Snapshot, error) {
	return s.snap, s.err
}

func (s *stubSessions) Current(context.Context, *model.Principal, uuid.UUID) (*session.Snapshot, error) {
	return s.snap, s.err
}

func TestGetSessionWithoutAttempt(t *testing.T) {
	h := NewSessionHandler(&stubSessions{err: fmt.Errorf("load snapshot: %w", service.ErrNotFound)})
	r := gin.New()
	r.GET("/simulations/:id/session", asUser(uuid.New(), model.RoleStudent), h.GetSession)

	w := do(r, http.MethodGet, "/simulations/"+uuid.NewString()+"/session", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	if env := decode(t, w); env.Error.Code != response.ErrNoActiveSession {
		t.Fatalf("code = %s", env.Error.Code)
	}
}

func TestStartSessionRendersState(t *testing.T) {
	snap := newTestSnapshot(t, uuid.New(), uuid.New())
	h := NewSessionHandler(&stubSessions{snap: snap})
	r := gin.New()
	r.POST("/simulations/:id/start", asUser(snap.StudentID, model.RoleStudent), h.StartSession)

	w := do(r, http.MethodPost, "/simulations/"+snap.SimulationID.String()+"/start", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	var data struct {
		Session struct {
			AttemptID uuid.UUID `json:"attempt_id"`
			View      struct {
				RemainingSeconds int `json:"remaining_seconds"`
			} `json:"view"`
		} `json:"session"`
	}
	if err := json.Unmarshal(decode(t, w).Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Session.AttemptID != snap.AttemptID || data.Session.View.RemainingSeconds != 60 {
		t.Fatalf("session = %+v", data.Session)
	}
}

type stubMessages struct{ after *time.Time }

func (s *stubMessages) Post(_ context.Context, p *model.Principal, simulationID uuid.UUID, req *model.PostMessageRequest) (*model.Message, error) {
	return &model.Message{ID: uuid.New(), SimulationID: simulationID, SenderID: p.UserID, Body: req.Body}, nil
}

func (s *stubMessages) List(_ context.Context, _ *model.Principal, _ uuid.UUID, after *time.Time) ([]model.Message, error) {
	s.after = after
	return []model.Message{}, nil
}

func TestListMessagesCursor(t *testing.T) {
	msgs := &stubMessages{}
	h := NewMessageHandler(msgs)
	r := gin.New()
	r.GET("/simulations/:id/messages", asUser(uuid.New(), model.RoleStudent), h.ListMessages)
	r.POST("/simulations/:id/messages", asUser(uuid.New(), model.RoleStudent), h.PostMessage)
	base := "/simulations/" + uuid.NewString() + "/messages"

	if w := do(r, http.MethodGet, base+"?after=2026-03-01T10:00:00.5Z", ""); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if msgs.after == nil || msgs.after.Nanosecond() != 500000000 {
		t.Fatalf("after = %v", msgs.after)
	}
	if w := do(r, http.MethodGet, base+"?after=yesterday", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad cursor status = %d", w.Code)
	}
	if w := do(r, http.MethodPost, base, `{"body":""}`); w.Code != http.StatusBadRequest {
		t.Fatalf("empty body status = %d", w.Code)
	}
	if w := do(r, http.MethodPost, base, `{"body":"Buongiorno"}`); w.Code != http.StatusCreated {
		t.Fatalf("post status = %d", w.Code)
	}
}

type stubCalendar struct{ err error }

func (s stubCalendar) Export(context.Context, *model.Principal, uuid.UUID) (string, error) {
	return "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n", s.err
}

func TestExportCalendar(t *testing.T) {
	r := gin.New()
	r.GET("/ok/:id", asUser(uuid.New(), model.RoleStudent), NewCalendarHandler(stubCalendar{}).ExportCalendar)
	r.GET("/none/:id", asUser(uuid.New(), model.RoleStudent), NewCalendarHandler(stubCalendar{err: service.ErrNotScheduled}).ExportCalendar)

	w := do(r, http.MethodGet, "/ok/"+uuid.NewString(), "")
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Header().Get("Content-Type"), "text/calendar") {
		t.Fatalf("got %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	if !strings.HasPrefix(w.Body.String(), "BEGIN:VCALENDAR") {
		t.Fatalf("body = %q", w.Body.String())
	}
	if w := do(r, http.MethodGet, "/none/"+uuid.NewString(), ""); w.Code != http.StatusNotFound {
		t.Fatalf("unscheduled status = %d", w.Code)
	}
}

// ─── Simulations ────────────────────────────────────────────────────

type stubSimulations struct {
	SimulationManager
	status model.SimulationStatus
}

func (s *stubSimulations) List(_ context.Context, _ *model.Principal, status model.SimulationStatus, page, perPage int) ([]model.Simulation, *response.Pagination, error) {
	s.status = status
	return []model.Simulation{}, &response.Pagination{Page: page, PerPage: perPage}, nil
}

func TestListSimulationsStatusFilter(t *testing.T) {
	tests := []struct {
		query      string
		wantStatus int
		wantFilter model.SimulationStatus
	}{
		{"", http.StatusOK, ""},
		{"?status=published", http.StatusOK, model.SimulationStatusPublished},
		{"?status=bogus", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			sims := &stubSimulations{}
			r := gin.New()
			r.GET("/admin/simulations", asUser(uuid.New(), model.RoleAdmin), NewSimulationHandler(sims).ListSimulations)

			w := do(r, http.MethodGet, "/admin/simulations"+tt.query, "")
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if sims.status != tt.wantFilter {
				t.Fatalf("filter = %q, want %q", sims.status, tt.wantFilter)
			}
		})
	}
}
