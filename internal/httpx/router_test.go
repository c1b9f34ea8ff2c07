package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/neevjustin/sales-portal/internal/engine"
	"github.com/neevjustin/sales-portal/internal/facts"
	"github.com/neevjustin/sales-portal/internal/metrics"
	"github.com/neevjustin/sales-portal/internal/rules"
	"github.com/neevjustin/sales-portal/internal/scores"
)

type syncTriggers struct {
	eng   *engine.Engine
	calls []string
}

func (s *syncTriggers) ActivityLogged(ctx context.Context, employeeID, campaign int64) (engine.Summary, error) {
	s.calls = append(s.calls, "logged")
	return s.eng.RecomputeIncremental(ctx, employeeID, campaign)
}

func (s *syncTriggers) ActivityDeleted(ctx context.Context, employeeID, campaign int64) (engine.Summary, error) {
	s.calls = append(s.calls, "deleted")
	return s.eng.RecomputeIncremental(ctx, employeeID, campaign)
}

func (s *syncTriggers) Manual(ctx context.Context, campaign int64) (engine.Summary, error) {
	s.calls = append(s.calls, "manual")
	return s.eng.RecomputeFull(ctx, campaign)
}

func newServer(t *testing.T) (*httptest.Server, *syncTriggers) {
	t.Helper()
	fs, err := facts.Open(filepath.Join(t.TempDir(), "facts.sqlite"))
	if err != nil {
		t.Fatalf("open facts: %v", err)
	}
	t.Cleanup(func() { _ = fs.Close() })
	org := &facts.Org{
		BusinessUnits: []facts.BusinessUnit{{ID: 1, Name: "North"}},
		Teams:         []facts.TeamRecord{{ID: 10, CampaignID: 1, UnitID: 1, Code: "T10"}},
		Employees: []facts.EmployeeRecord{
			{ID: 100, Code: "E100", TeamID: 10},
			{ID: 101, Code: "E101", TeamID: 10},
		},
		ActivityTypes: []string{"MNP", "SIM Sales"},
		Targets: []facts.Target{
			{CampaignID: 1, Level: facts.LevelTeam, EntityID: 10, ActivityType: "MNP", Value: 10},
		},
	}
	if _, err := fs.Import(context.Background(), org); err != nil {
		t.Fatalf("import: %v", err)
	}
	store := scores.NewMemoryStore()
	rec := metrics.NewRecorder()
	eng, err := engine.New(fs, store, rules.Default(), engine.Options{Metrics: rec})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	trig := &syncTriggers{eng: eng}
	log := slog.New(slog.NewJSONHandler(io.Discard, nil))
	srv := httptest.NewServer(NewRouter(log, Deps{
		Activities: fs,
		Triggers:   trig,
		Scores:     store,
		Rules:      eng.Rules,
		Metrics:    rec.Handler(),
	}))
	t.Cleanup(srv.Close)
	return srv, trig
}

func postActivity(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/activities", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestPostActivityScoresEmployee(t *testing.T) {
	srv, trig := newServer(t)
	resp := postActivity(t, srv, `{"campaign_id":1,"employee_id":100,"activity_type":"MNP","customer_mobile":"9000000001"}`)
	if resp.StatusCode != 201 {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d: %s", resp.StatusCode, b)
	}
	var out activityResponse
	decode(t, resp, &out)
	if out.Total != 30 {
		t.Fatalf("employee total = %v, want 30", out.Total)
	}
	if out.Activity.TeamID != 10 {
		t.Fatalf("team = %d, want 10", out.Activity.TeamID)
	}
	if len(trig.calls) != 1 || trig.calls[0] != "logged" {
		t.Fatalf("trigger calls = %v", trig.calls)
	}

	dup := postActivity(t, srv, `{"campaign_id":1,"employee_id":101,"activity_type":"MNP","customer_mobile":"9000000001"}`)
	dup.Body.Close()
	if dup.StatusCode != 409 {
		t.Fatalf("duplicate status = %d, want 409", dup.StatusCode)
	}

	missing := postActivity(t, srv, `{"campaign_id":1,"employee_id":999,"activity_type":"MNP","customer_mobile":"9000000002"}`)
	missing.Body.Close()
	if missing.StatusCode != 404 {
		t.Fatalf("unknown employee status = %d, want 404", missing.StatusCode)
	}

	bad := postActivity(t, srv, `{"campaign_id":1,"employee":100}`)
	bad.Body.Close()
	if bad.StatusCode != 400 {
		t.Fatalf("unknown field status = %d, want 400", bad.StatusCode)
	}
}

func TestDeleteActivityRescores(t *testing.T) {
	srv, trig := newServer(t)
	var out activityResponse
	decode(t, postActivity(t, srv, `{"campaign_id":1,"employee_id":100,"activity_type":"MNP","customer_mobile":"9000000001"}`), &out)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/activities/"+jsonInt(out.Activity.ID), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := trig.calls[len(trig.calls)-1]; got != "deleted" {
		t.Fatalf("last trigger = %s", got)
	}

	var sc struct {
		Total float64      `json:"total"`
		Rows  []scores.Row `json:"rows"`
	}
	getResp, err := http.Get(srv.URL + "/api/scores/1/employee/100")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	decode(t, getResp, &sc)
	if sc.Total != 0 || len(sc.Rows) != 0 {
		t.Fatalf("scores after delete = %+v", sc)
	}

	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/api/activities/"+jsonInt(out.Activity.ID), nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Fatalf("second delete status = %d, want 404", resp.StatusCode)
	}
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestManualRecomputeAndLeaderboard(t *testing.T) {
	srv, _ := newServer(t)
	postActivity(t, srv, `{"campaign_id":1,"employee_id":100,"activity_type":"MNP","customer_mobile":"9000000001"}`).Body.Close()
	postActivity(t, srv, `{"campaign_id":1,"employee_id":101,"activity_type":"SIM Sales","customer_mobile":"9000000002"}`).Body.Close()
	postActivity(t, srv, `{"campaign_id":1,"employee_id":101,"activity_type":"MNP","customer_mobile":"9000000003"}`).Body.Close()

	resp, err := http.Post(srv.URL+"/api/admin/recompute/1", "application/json", bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	var sum engine.Summary
	decode(t, resp, &sum)
	if sum.TeamRows != 7 {
		t.Fatalf("team rows = %d, want 7", sum.TeamRows)
	}

	var board struct {
		Standings []scores.Standing `json:"standings"`
	}
	lb, err := http.Get(srv.URL + "/api/leaderboard/1/individual")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	decode(t, lb, &board)
	if len(board.Standings) != 2 || board.Standings[0].EntityID != 101 || board.Standings[0].Points != 50 {
		t.Fatalf("standings = %+v", board.Standings)
	}

	lb, err = http.Get(srv.URL + "/api/leaderboard/1/employee?limit=1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	decode(t, lb, &board)
	if len(board.Standings) != 1 {
		t.Fatalf("limited standings = %+v", board.Standings)
	}

	bad, err := http.Get(srv.URL + "/api/leaderboard/1/galaxy")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	bad.Body.Close()
	if bad.StatusCode != 400 {
		t.Fatalf("bad level status = %d", bad.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newServer(t)
	postActivity(t, srv, `{"campaign_id":1,"employee_id":100,"activity_type":"MNP","customer_mobile":"9000000001"}`).Body.Close()
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `salesportal_recomputes_total{mode="incremental",result="ok"} 1`) {
		t.Fatalf("metrics missing incremental counter:\n%s", body)
	}
}

type brokenActivities struct{ err error }

func (b brokenActivities) LogActivity(context.Context, *rules.RuleSet, facts.NewActivity) (*facts.Activity, error) {
	return nil, b.err
}

func (b brokenActivities) DeleteActivity(context.Context, int64) (*facts.Activity, error) {
	return nil, b.err
}

func TestActivityErrorsMapToStatus(t *testing.T) {
	srv, _ := newServer(t)
	resp := postActivity(t, srv, `{"campaign_id":1,"employee_id":100,"activity_type":"MNP","customer_mobile":"  "}`)
	resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Fatalf("blank mobile status = %d, want 400", resp.StatusCode)
	}

	log := slog.New(slog.NewJSONHandler(io.Discard, nil))
	broken := httptest.NewServer(NewRouter(log, Deps{
		Activities: brokenActivities{err: errors.New("begin activity: database is locked")},
		Rules:      rules.Default,
	}))
	defer broken.Close()

	resp = postActivity(t, broken, `{"campaign_id":1,"employee_id":100,"activity_type":"MNP","customer_mobile":"9000000009"}`)
	resp.Body.Close()
	if resp.StatusCode != 500 {
		t.Fatalf("store failure on log status = %d, want 500", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodDelete, broken.URL+"/api/activities/5", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	del, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	del.Body.Close()
	if del.StatusCode != 500 {
		t.Fatalf("store failure on delete status = %d, want 500", del.StatusCode)
	}
}
