package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"agriscore/core"
	"agriscore/engine"
)

const maxBodyBytes = 1 << 16

type activityRequest struct {
	ActivityType string `json:"activity_type" validate:"required,max=64"`
	Description  string `json:"description" validate:"max=500"`
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status": "healthy",
		"time":   a.now().UTC(),
		"checks": map[string]string{"storage": "ok"},
	}
	code := http.StatusOK
	if err := a.svc.Ping(r.Context()); err != nil {
		code = http.StatusServiceUnavailable
		status["status"] = "unhealthy"
		status["checks"] = map[string]string{"storage": "failed"}
	}
	writeJSON(w, code, status)
}

func (a *api) logMyActivity(w http.ResponseWriter, r *http.Request) {
	user, _ := Caller(r.Context())
	a.logActivity(w, r, user)
}

func (a *api) logUserActivity(w http.ResponseWriter, r *http.Request) {
	a.logActivity(w, r, core.UserID(chi.URLParam(r, "id")))
}

func (a *api) logActivity(w http.ResponseWriter, r *http.Request, user core.UserID) {
	var req activityRequest
	if !a.decode(w, r, &req) {
		return
	}
	res, err := a.svc.LogActivity(r.Context(), user, core.ActivityType(req.ActivityType), req.Description)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "malformed JSON body", err.Error())
		return false
	}
	if err := a.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[jsonName(fe.Field())] = fe.Tag()
			}
			writeError(w, r, http.StatusBadRequest, "invalid_request", "request validation failed", fields)
			return false
		}
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return false
	}
	return true
}

func jsonName(field string) string {
	switch field {
	case "ActivityType":
		return "activity_type"
	case "Description":
		return "description"
	}
	return field
}

func (a *api) myScore(w http.ResponseWriter, r *http.Request) {
	user, _ := Caller(r.Context())
	a.writeScore(w, r, user)
}

func (a *api) userScore(w http.ResponseWriter, r *http.Request) {
	a.writeScore(w, r, core.UserID(chi.URLParam(r, "id")))
}

func (a *api) writeScore(w http.ResponseWriter, r *http.Request, user core.UserID) {
	rec, err := a.svc.GetMyScore(r.Context(), user)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *api) myRank(w http.ResponseWriter, r *http.Request) {
	user, _ := Caller(r.Context())
	a.writeRank(w, r, user)
}

func (a *api) userRank(w http.ResponseWriter, r *http.Request) {
	a.writeRank(w, r, core.UserID(chi.URLParam(r, "id")))
}

func (a *api) writeRank(w http.ResponseWriter, r *http.Request, user core.UserID) {
	res, err := a.svc.GetMyRank(r.Context(), user)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) leaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_limit", "limit must be an integer", nil)
			return
		}
		limit = n
	}
	period, err := engine.ParsePeriod(q.Get("period"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	entries, err := a.svc.GetLeaderboard(r.Context(), limit, period)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"period":  period,
		"entries": entries,
	})
}

func (a *api) badgeCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.BadgeCatalog())
}

func (a *api) levelCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.LevelCatalog())
}

func (a *api) achievementCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.AchievementCatalog())
}

func (a *api) activityCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.ActivityPoints())
}

func (a *api) engagement(w http.ResponseWriter, r *http.Request) {
	limit := 5
	if raw := r.URL.Query().Get("top"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, a.metrics.Snapshot(a.now().In(a.svc.Location()), limit))
}
