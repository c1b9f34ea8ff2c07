package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/neevjustin/sales-portal/internal/engine"
	"github.com/neevjustin/sales-portal/internal/facts"
	"github.com/neevjustin/sales-portal/internal/rules"
	"github.com/neevjustin/sales-portal/internal/scores"
)

// Activities is the fact-store write surface.
type Activities interface {
	LogActivity(ctx context.Context, rs *rules.RuleSet, in facts.NewActivity) (*facts.Activity, error)
	DeleteActivity(ctx context.Context, id int64) (*facts.Activity, error)
}

// Triggers starts recomputes in response to requests.
type Triggers interface {
	ActivityLogged(ctx context.Context, employeeID, campaign int64) (engine.Summary, error)
	ActivityDeleted(ctx context.Context, employeeID, campaign int64) (engine.Summary, error)
	Manual(ctx context.Context, campaign int64) (engine.Summary, error)
}

// Deps are the collaborators behind the routes.
type Deps struct {
	Activities Activities
	Triggers   Triggers
	Scores     scores.Store
	Rules      func() *rules.RuleSet
	Metrics    http.Handler
}

type activityResponse struct {
	Activity *facts.Activity `json:"activity"`
	Total    float64         `json:"employee_total"`
	Summary  engine.Summary  `json:"recompute"`
}

// NewRouter builds the HTTP surface.
func NewRouter(log *slog.Logger, d Deps) http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(Logger(log))
	mux.Use(middleware.Recoverer)

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
	if d.Metrics != nil {
		mux.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	mux.Route("/api", func(api chi.Router) {
		api.Post("/activities", func(w http.ResponseWriter, r *http.Request) {
			var in facts.NewActivity
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&in); err != nil {
				http.Error(w, "bad activity: "+err.Error(), 400)
				return
			}
			a, err := d.Activities.LogActivity(r.Context(), d.Rules(), in)
			if err != nil {
				http.Error(w, err.Error(), statusFor(err))
				return
			}
			sum, err := d.Triggers.ActivityLogged(r.Context(), a.EmployeeID, a.CampaignID)
			if err != nil {
				log.Error("incremental recompute failed", "rid", middleware.GetReqID(r.Context()), "err", err)
				http.Error(w, err.Error(), 500)
				return
			}
			total, err := d.Scores.Total(r.Context(), a.CampaignID, scores.Employee, a.EmployeeID)
			if err != nil {
				http.Error(w, err.Error(), 500)
				return
			}
			writeJSONStatus(w, 201, activityResponse{Activity: a, Total: total, Summary: sum})
		})

		api.Delete("/activities/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, ok := intParam(w, r, "id")
			if !ok {
				return
			}
			a, err := d.Activities.DeleteActivity(r.Context(), id)
			if err != nil {
				http.Error(w, err.Error(), statusFor(err))
				return
			}
			sum, err := d.Triggers.ActivityDeleted(r.Context(), a.EmployeeID, a.CampaignID)
			if err != nil {
				http.Error(w, err.Error(), 500)
				return
			}
			writeJSON(w, map[string]any{"deleted": a, "recompute": sum})
		})

		api.Post("/admin/recompute/{campaign}", func(w http.ResponseWriter, r *http.Request) {
			campaign, ok := intParam(w, r, "campaign")
			if !ok {
				return
			}
			sum, err := d.Triggers.Manual(r.Context(), campaign)
			if err != nil {
				http.Error(w, err.Error(), 500)
				return
			}
			writeJSON(w, sum)
		})

		api.Get("/leaderboard/{campaign}/{level}", func(w http.ResponseWriter, r *http.Request) {
			campaign, ok := intParam(w, r, "campaign")
			if !ok {
				return
			}
			et, err := scores.ParseEntityType(chi.URLParam(r, "level"))
			if err != nil {
				http.Error(w, err.Error(), 400)
				return
			}
			ranking, err := d.Scores.Ranking(r.Context(), campaign, et)
			if err != nil {
				http.Error(w, err.Error(), 500)
				return
			}
			if limit := r.URL.Query().Get("limit"); limit != "" {
				n, err := strconv.Atoi(limit)
				if err != nil || n < 0 {
					http.Error(w, "bad limit", 400)
					return
				}
				if n < len(ranking) {
					ranking = ranking[:n]
				}
			}
			writeJSON(w, map[string]any{"campaign": campaign, "level": et, "standings": ranking})
		})

		api.Get("/scores/{campaign}/{level}/{id}", func(w http.ResponseWriter, r *http.Request) {
			campaign, ok := intParam(w, r, "campaign")
			if !ok {
				return
			}
			id, ok := intParam(w, r, "id")
			if !ok {
				return
			}
			et, err := scores.ParseEntityType(chi.URLParam(r, "level"))
			if err != nil {
				http.Error(w, err.Error(), 400)
				return
			}
			rows, err := d.Scores.Rows(r.Context(), campaign, et, id)
			if err != nil {
				http.Error(w, err.Error(), 500)
				return
			}
			var total float64
			for _, row := range rows {
				total += row.Points
			}
			if rows == nil {
				rows = []scores.Row{}
			}
			writeJSON(w, map[string]any{"entity_type": et, "entity_id": id, "total": total, "rows": rows})
		})
	})

	return mux
}

func intParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || v <= 0 {
		http.Error(w, "bad "+name, 400)
		return 0, false
	}
	return v, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, facts.ErrNotFound):
		return 404
	case errors.Is(err, facts.ErrDuplicateActivity), errors.Is(err, facts.ErrInvalidTransition):
		return 409
	case errors.Is(err, facts.ErrInvalid):
		return 400
	default:
		return 500
	}
}

func writeJSON(w http.ResponseWriter, v any) { writeJSONStatus(w, 200, v) }

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	enc.Encode(v)
}
