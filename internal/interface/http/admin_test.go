package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okiru-neo/okiru-bot/internal/application/command"
	"github.com/okiru-neo/okiru-bot/internal/application/state"
	"github.com/okiru-neo/okiru-bot/internal/domain/attendance"
	"github.com/okiru-neo/okiru-bot/internal/domain/shared"
	"github.com/okiru-neo/okiru-bot/internal/infrastructure/persistence/memory"
	"github.com/okiru-neo/okiru-bot/internal/infrastructure/scheduler"
	"github.com/okiru-neo/okiru-bot/pkg/timeutil"
)

const adminToken = "adm1n"

func jst(day, hour, minute int) time.Time {
	return time.Date(2024, time.March, day, hour, minute, 0, 0, timeutil.TokyoTZ)
}

type countingNotifier struct{ sent atomic.Int32 }

func (n *countingNotifier) Notify(context.Context, shared.GroupID, attendance.Notification) error {
	n.sent.Add(1)
	return nil
}

type sweepFunc func(ctx context.Context, cmd command.RunSweepCommand) (*command.SweepReport, error)

func (f sweepFunc) Handle(ctx context.Context, cmd command.RunSweepCommand) (*command.SweepReport, error) {
	return f(ctx, cmd)
}

type namedJob struct {
	name string
	runs atomic.Int32
	err  error
}

func (j *namedJob) Name() string        { return j.name }
func (j *namedJob) Description() string { return "test job " + j.name }
func (j *namedJob) Run(context.Context) error {
	j.runs.Add(1)
	return j.err
}

func newAdminServer(t *testing.T, deps Dependencies) *Server {
	t.Helper()
	deps.Logger = quietLogger()
	cfg := DefaultConfig()
	cfg.AdminToken = adminToken
	return NewServer(cfg, deps)
}

func adminRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	req.Header.Set("Authorization", "Bearer "+adminToken)
	return req
}

// serveProcess is the in-memory half of a deployment: one registry over a
// store, with the handlers a serve process wires to it.
type serveProcess struct {
	clock    *timeutil.FixedClock
	repo     *memory.GroupRepository
	registry *state.Registry
	notifier *countingNotifier
	setTime  *command.SetWakeupTimeHandler
	report   *command.ReportWakeupHandler
	sweep    *command.RunSweepHandler
}

func newServeProcess(t *testing.T) *serveProcess {
	t.Helper()
	p := &serveProcess{
		clock:    timeutil.NewFixedClock(jst(14, 21, 0)),
		repo:     memory.NewGroupRepository(),
		notifier: &countingNotifier{},
	}
	p.registry = state.NewRegistry(p.repo, timeutil.DefaultCalendar(), quietLogger())
	require.NoError(t, p.registry.Load(context.Background()))
	p.setTime = command.NewSetWakeupTimeHandler(p.registry, p.clock, quietLogger())
	p.report = command.NewReportWakeupHandler(p.registry, p.clock, quietLogger())
	p.sweep = command.NewRunSweepHandler(p.registry, p.notifier, p.clock, nil, quietLogger(),
		command.DefaultRunSweepHandlerConfig())
	return p
}

func (p *serveProcess) actor(user string) state.Actor {
	return state.Actor{GroupID: "group-1", UserID: shared.UserID(user), DisplayName: user}
}

func (p *serveProcess) pledge(t *testing.T, user string, hour int) {
	t.Helper()
	_, err := p.setTime.Handle(context.Background(), command.SetWakeupTimeCommand{Actor: p.actor(user), Hour: hour})
	require.NoError(t, err)
}

func TestAdminClient_SweepResultSurvivesLaterServeWrites(t *testing.T) {
	p := newServeProcess(t)
	p.pledge(t, "taro", 7)
	p.clock.Set(jst(15, 6, 50))
	_, err := p.report.Handle(context.Background(), command.ReportWakeupCommand{Actor: p.actor("taro")})
	require.NoError(t, err)

	s := newAdminServer(t, Dependencies{Sweep: p.sweep})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	p.clock.Set(jst(15, 12, 0))
	client := NewAdminClient(ts.URL, adminToken, ts.Client())
	report, err := client.Sweep(context.Background(), jst(15, 12, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Groups)
	assert.Equal(t, 1, report.AllSuccess)
	assert.Equal(t, "api", report.Trigger)
	require.Len(t, report.Results, 1)
	assert.Equal(t, "group-1", report.Results[0].GroupID)
	assert.Equal(t, 1, report.Results[0].Streak)
	assert.True(t, report.Results[0].Notified)
	assert.EqualValues(t, 1, p.notifier.sent.Load())

	stored, ok := p.repo.Get("group-1")
	require.True(t, ok)
	assert.Equal(t, 1, stored.CurrentStreak)

	// A later write from the same process saves the swept state, not a stale copy.
	p.clock.Set(jst(15, 13, 0))
	p.pledge(t, "jiro", 7)

	stored, ok = p.repo.Get("group-1")
	require.True(t, ok)
	assert.Equal(t, 1, stored.CurrentStreak)
	assert.Len(t, stored.Members, 2)

	snap, ok := p.registry.Snapshot("group-1")
	require.True(t, ok)
	assert.Equal(t, 1, snap.CurrentStreak)
	assert.EqualValues(t, 1, p.notifier.sent.Load())
}

func TestAdminClient_SweepInProgress(t *testing.T) {
	busy := sweepFunc(func(context.Context, command.RunSweepCommand) (*command.SweepReport, error) {
		return nil, shared.ErrSweepInProgress
	})
	s := newAdminServer(t, Dependencies{Sweep: busy})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	_, err := NewAdminClient(ts.URL, adminToken, ts.Client()).Sweep(context.Background(), time.Time{})
	assert.ErrorIs(t, err, shared.ErrSweepInProgress)
}

func TestAdminClient_WrongToken(t *testing.T) {
	s := newAdminServer(t, Dependencies{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	_, err := NewAdminClient(ts.URL, "nope", ts.Client()).Status(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestAdminClient_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := NewAdminClient(url, adminToken, nil).Status(context.Background())
	assert.True(t, shared.IsRetryable(err))
}

func TestServer_AdminSweep(t *testing.T) {
	var got command.RunSweepCommand
	sweeper := sweepFunc(func(_ context.Context, cmd command.RunSweepCommand) (*command.SweepReport, error) {
		got = cmd
		return &command.SweepReport{RunID: "run-1", Trigger: cmd.Trigger, Groups: 2, SomeFailed: 1}, nil
	})
	s := newAdminServer(t, Dependencies{Sweep: sweeper})

	rec, body := do(t, s, adminRequest(http.MethodPost, "/api/admin/sweep", `{"at":"2024-03-15T12:00:00+09:00"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Success)
	assert.Equal(t, "api", got.Trigger)
	assert.True(t, got.At.Equal(jst(15, 12, 0)))

	data := body.Data.(map[string]any)
	assert.Equal(t, "run-1", data["run_id"])
	assert.EqualValues(t, 2, data["groups"])

	rec, _ = do(t, s, adminRequest(http.MethodPost, "/api/admin/sweep", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, got.At.IsZero())

	rec, body = do(t, s, adminRequest(http.MethodPost, "/api/admin/sweep", `{"at":"tomorrow"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", body.Error.Code)
}

func TestServer_AdminSweepErrors(t *testing.T) {
	sweeper := sweepFunc(func(context.Context, command.RunSweepCommand) (*command.SweepReport, error) {
		return nil, shared.ErrSweepInProgress
	})
	s := newAdminServer(t, Dependencies{Sweep: sweeper})

	rec, body := do(t, s, adminRequest(http.MethodPost, "/api/admin/sweep", ""))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "sweep_in_progress", body.Error.Code)
}

func TestServer_AdminAuth(t *testing.T) {
	s := newAdminServer(t, Dependencies{Sweep: sweepFunc(func(context.Context, command.RunSweepCommand) (*command.SweepReport, error) {
		t.Fatal("sweep must not run without a token")
		return nil, nil
	})})

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong token", "Bearer wrong"},
		{"wrong scheme", "Basic " + adminToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/admin/sweep", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec, body := do(t, s, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
			assert.False(t, body.Success)
			require.NotNil(t, body.Error)
			assert.Equal(t, "unauthorized", body.Error.Code)
		})
	}
}

func TestServer_AdminDisabledWithoutToken(t *testing.T) {
	s := newTestServer(t, Dependencies{
		Sweep: sweepFunc(func(context.Context, command.RunSweepCommand) (*command.SweepReport, error) {
			t.Fatal("admin API must be disabled")
			return nil, nil
		}),
	})

	rec, _ := do(t, s, adminRequest(http.MethodPost, "/api/admin/sweep", ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = do(t, s, adminRequest(http.MethodGet, "/api/admin/status", ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_AdminJobs(t *testing.T) {
	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{Logger: quietLogger()})
	ok := &namedJob{name: "flush_dirty_groups"}
	failing := &namedJob{name: "daily_sweep", err: errors.New("telegram down")}
	require.NoError(t, sched.Register(ok, scheduler.NewIntervalSchedule(time.Hour)))
	require.NoError(t, sched.Register(failing, scheduler.NewIntervalSchedule(time.Hour)))

	s := newAdminServer(t, Dependencies{Jobs: sched})

	rec, body := do(t, s, adminRequest(http.MethodGet, "/api/admin/jobs", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	jobs := body.Data.([]any)
	require.Len(t, jobs, 2)
	assert.Equal(t, "daily_sweep", jobs[0].(map[string]any)["name"])

	rec, body = do(t, s, adminRequest(http.MethodPost, "/api/admin/jobs/daily_sweep/run", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	run := body.Data.(map[string]any)
	assert.Equal(t, false, run["success"])
	assert.Equal(t, true, run["manual"])
	assert.Equal(t, "telegram down", run["error"])
	assert.EqualValues(t, 1, failing.runs.Load())

	rec, body = do(t, s, adminRequest(http.MethodGet, "/api/admin/jobs/daily_sweep", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	detail := body.Data.(map[string]any)
	assert.Len(t, detail["history"], 1)
	assert.NotNil(t, detail["last_result"])

	rec, body = do(t, s, adminRequest(http.MethodPost, "/api/admin/jobs/flush_dirty_groups/disable", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body.Data.(map[string]any)["enabled"])

	rec, body = do(t, s, adminRequest(http.MethodPost, "/api/admin/jobs/flush_dirty_groups/enable", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body.Data.(map[string]any)["enabled"])

	rec, body = do(t, s, adminRequest(http.MethodGet, "/api/admin/jobs/nope", ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "job_not_found", body.Error.Code)

	rec, body = do(t, s, adminRequest(http.MethodPost, "/api/admin/jobs/nope/run", ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "job_not_found", body.Error.Code)

	rec, body = do(t, s, adminRequest(http.MethodPost, "/api/admin/jobs/daily_sweep/restart", ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "unknown_action", body.Error.Code)
}

func TestServer_AdminStatus(t *testing.T) {
	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{Logger: quietLogger()})
	job := &namedJob{name: "daily_sweep"}
	require.NoError(t, sched.Register(job, scheduler.NewIntervalSchedule(time.Hour)))
	_, err := sched.RunNow(context.Background(), "daily_sweep")
	require.NoError(t, err)

	s := newAdminServer(t, Dependencies{
		Jobs: sched,
		Status: map[string]StatusSource{
			"state": func(context.Context) any { return map[string]int{"groups": 3, "dirty": 1} },
		},
	})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	status, err := NewAdminClient(ts.URL, adminToken, ts.Client()).Status(context.Background())
	require.NoError(t, err)
	assert.Contains(t, status, "uptime")
	assert.EqualValues(t, 1, status["scheduler"].(map[string]any)["TotalExecutions"])
	assert.EqualValues(t, 3, status["state"].(map[string]any)["groups"])
	assert.EqualValues(t, 1, status["state"].(map[string]any)["dirty"])
}
