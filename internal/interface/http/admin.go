package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/okiru-neo/okiru-bot/internal/application/command"
	"github.com/okiru-neo/okiru-bot/internal/domain/shared"
	"github.com/okiru-neo/okiru-bot/internal/infrastructure/scheduler"
	"github.com/okiru-neo/okiru-bot/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN API
// Operator surface of a running serve process. The process owns the group
// state, so manual sweeps and job control go through it rather than through a
// second process opening the same store.
// ══════════════════════════════════════════════════════════════════════════════

// Sweeper runs the daily sweep against the in-process state.
type Sweeper interface {
	Handle(ctx context.Context, cmd command.RunSweepCommand) (*command.SweepReport, error)
}

// JobController exposes the scheduler to operators.
type JobController interface {
	ListJobs() []scheduler.JobInfo
	GetJobInfo(name string) (*scheduler.JobInfo, error)
	GetHistory(limit int) []scheduler.JobResult
	GetMetrics() *scheduler.SchedulerMetrics
	RunNow(ctx context.Context, name string) (*scheduler.JobResult, error)
	EnableJob(name string) error
	DisableJob(name string) error
}

// StatusSource contributes one section to GET /api/admin/status.
type StatusSource func(ctx context.Context) any

// historyLimit bounds the job history returned by the admin API.
const historyLimit = 20

// ─────────────────────────────────────────────────────────────────────────────
// DTOs
// ─────────────────────────────────────────────────────────────────────────────

// SweepRequest is the body of POST /api/admin/sweep.
type SweepRequest struct {
	// At overrides the evaluation instant. Nil means now.
	At *time.Time `json:"at,omitempty"`
}

// GroupSweepDTO is one group's sweep outcome.
type GroupSweepDTO struct {
	GroupID        string   `json:"group_id"`
	Outcome        string   `json:"outcome"`
	Streak         int      `json:"streak"`
	PreviousStreak int      `json:"previous_streak"`
	BestStreak     int      `json:"best_streak"`
	Failed         []string `json:"failed,omitempty"`
	Exempt         []string `json:"exempt,omitempty"`
	Notified       bool     `json:"notified"`
	NotifyError    string   `json:"notify_error,omitempty"`
}

// SweepResponse summarizes a sweep run.
type SweepResponse struct {
	RunID          string          `json:"run_id"`
	Trigger        string          `json:"trigger"`
	EvaluatedAt    time.Time       `json:"evaluated_at"`
	Duration       string          `json:"duration"`
	Groups         int             `json:"groups"`
	Skipped        int             `json:"skipped"`
	AllSuccess     int             `json:"all_success"`
	SomeFailed     int             `json:"some_failed"`
	NotifyFailures int             `json:"notify_failures"`
	SaveFailures   int             `json:"save_failures"`
	Results        []GroupSweepDTO `json:"results"`
}

func newSweepResponse(r *command.SweepReport) SweepResponse {
	resp := SweepResponse{
		RunID:          r.RunID,
		Trigger:        r.Trigger,
		EvaluatedAt:    r.EvaluatedAt,
		Duration:       r.CompletedAt.Sub(r.StartedAt).String(),
		Groups:         r.Groups,
		Skipped:        r.Skipped,
		AllSuccess:     r.AllSuccess,
		SomeFailed:     r.SomeFailed,
		NotifyFailures: r.NotifyFailures,
		SaveFailures:   r.SaveFailures,
		Results:        make([]GroupSweepDTO, 0, len(r.Results)),
	}
	for _, res := range r.Results {
		dto := GroupSweepDTO{
			GroupID:        res.Outcome.GroupID.String(),
			Outcome:        string(res.Outcome.Kind),
			Streak:         res.Outcome.Streak,
			PreviousStreak: res.Outcome.PreviousStreak,
			BestStreak:     res.Outcome.BestStreak,
			Failed:         res.Outcome.FailedNames,
			Exempt:         res.Outcome.ExemptNames,
			Notified:       res.Notified,
		}
		if res.NotifyError != nil {
			dto.NotifyError = res.NotifyError.Error()
		}
		resp.Results = append(resp.Results, dto)
	}
	return resp
}

// JobResultDTO is one job execution.
type JobResultDTO struct {
	Job         string    `json:"job"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Duration    string    `json:"duration"`
	Success     bool      `json:"success"`
	Manual      bool      `json:"manual"`
	Error       string    `json:"error,omitempty"`
}

func newJobResultDTO(r scheduler.JobResult) JobResultDTO {
	dto := JobResultDTO{
		Job:         r.JobName,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		Duration:    r.Duration.String(),
		Success:     r.Success,
		Manual:      r.Manual,
	}
	if r.Error != nil {
		dto.Error = r.Error.Error()
	}
	return dto
}

// JobDTO describes a registered job.
type JobDTO struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Enabled     bool          `json:"enabled"`
	Running     bool          `json:"running"`
	Schedule    string        `json:"schedule"`
	LastRun     time.Time     `json:"last_run,omitzero"`
	NextRun     time.Time     `json:"next_run,omitzero"`
	RunCount    int64         `json:"run_count"`
	FailCount   int64         `json:"fail_count"`
	SkipCount   int64         `json:"skip_count"`
	LastResult  *JobResultDTO `json:"last_result,omitempty"`
}

func newJobDTO(info scheduler.JobInfo) JobDTO {
	dto := JobDTO{
		Name:        info.Name,
		Description: info.Description,
		Enabled:     info.Enabled,
		Running:     info.Running,
		Schedule:    info.Schedule,
		LastRun:     info.LastRun,
		NextRun:     info.NextRun,
		RunCount:    info.RunCount,
		FailCount:   info.FailCount,
		SkipCount:   info.SkipCount,
	}
	if info.LastResult != nil {
		last := newJobResultDTO(*info.LastResult)
		dto.LastResult = &last
	}
	return dto
}

// JobDetailDTO is a job with its recent runs.
type JobDetailDTO struct {
	JobDTO
	History []JobResultDTO `json:"history"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Routes
// ─────────────────────────────────────────────────────────────────────────────

// setupAdminRoutes registers /api/admin/*. Without a token nothing is registered.
func (s *Server) setupAdminRoutes() {
	if s.config.AdminToken == "" {
		return
	}
	s.adminRoute("GET /api/admin/status", s.handleAdminStatus)
	if s.deps.Sweep != nil {
		s.adminRoute("POST /api/admin/sweep", s.handleAdminSweep)
	}
	if s.deps.Jobs != nil {
		s.adminRoute("GET /api/admin/jobs", s.handleListJobs)
		s.adminRoute("GET /api/admin/jobs/{name}", s.handleGetJob)
		s.adminRoute("POST /api/admin/jobs/{name}/{action}", s.handleJobAction)
	}
}

func (s *Server) adminRoute(pattern string, fn http.HandlerFunc) {
	s.router.Handle(pattern, handlers.BearerAuthMiddleware(s.config.AdminToken, s.logger)(fn))
}

// handleAdminSweep runs a sweep in this process and returns its report.
func (s *Server) handleAdminSweep(w http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", "Body must be JSON like {\"at\":\"2024-03-15T12:00:00+09:00\"}")
		return
	}

	cmd := command.RunSweepCommand{Trigger: "api"}
	if req.At != nil {
		cmd.At = *req.At
	}

	// The sweep outlives a dropped client connection.
	report, err := s.deps.Sweep.Handle(context.WithoutCancel(r.Context()), cmd)
	if err != nil {
		if errors.Is(err, shared.ErrSweepInProgress) {
			writeJSONError(w, r, http.StatusConflict, "sweep_in_progress", "Another sweep is running")
			return
		}
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newSweepResponse(report))
}

// handleAdminStatus reports scheduler metrics plus every registered source.
func (s *Server) handleAdminStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"uptime": s.Uptime().Round(time.Second).String(),
	}
	if s.deps.Jobs != nil {
		status["scheduler"] = s.deps.Jobs.GetMetrics().Snapshot()
	}
	for name, source := range s.deps.Status {
		status[name] = source(r.Context())
	}
	writeJSON(w, r, http.StatusOK, status)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	infos := s.deps.Jobs.ListJobs()
	jobs := make([]JobDTO, 0, len(infos))
	for _, info := range infos {
		jobs = append(jobs, newJobDTO(info))
	}
	writeJSON(w, r, http.StatusOK, jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	info, err := s.deps.Jobs.GetJobInfo(name)
	if err != nil {
		s.writeJobError(w, r, err)
		return
	}

	detail := JobDetailDTO{JobDTO: newJobDTO(*info), History: []JobResultDTO{}}
	for _, res := range s.deps.Jobs.GetHistory(0) {
		if res.JobName == name {
			detail.History = append(detail.History, newJobResultDTO(res))
		}
	}
	if n := len(detail.History); n > historyLimit {
		detail.History = detail.History[n-historyLimit:]
	}
	writeJSON(w, r, http.StatusOK, detail)
}

// handleJobAction handles run, enable and disable.
func (s *Server) handleJobAction(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	switch action := r.PathValue("action"); action {
	case "run":
		result, err := s.deps.Jobs.RunNow(context.WithoutCancel(r.Context()), name)
		if result == nil {
			s.writeJobError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, newJobResultDTO(*result))

	case "enable", "disable":
		toggle := s.deps.Jobs.EnableJob
		if action == "disable" {
			toggle = s.deps.Jobs.DisableJob
		}
		if err := toggle(name); err != nil {
			s.writeJobError(w, r, err)
			return
		}
		info, err := s.deps.Jobs.GetJobInfo(name)
		if err != nil {
			s.writeJobError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, newJobDTO(*info))

	default:
		writeJSONError(w, r, http.StatusNotFound, "unknown_action", "Action must be run, enable or disable")
	}
}

func (s *Server) writeJobError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, scheduler.ErrJobNotFound) {
		writeJSONError(w, r, http.StatusNotFound, "job_not_found", err.Error())
		return
	}
	s.writeDomainError(w, r, err)
}
