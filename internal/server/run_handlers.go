package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/sharpescan/internal/config"
	"github.com/aristath/sharpescan/internal/domain"
	"github.com/aristath/sharpescan/internal/modules/reporting"
	"github.com/aristath/sharpescan/internal/modules/runs"
)

const (
	defaultTopResults = 100
	maxTopResults     = 10000
	defaultListLimit  = 50
)

// RunHandlers serves the run API.
type RunHandlers struct {
	svc *runs.Service
	log zerolog.Logger
}

// NewRunHandlers creates run handlers backed by svc.
func NewRunHandlers(svc *runs.Service, log zerolog.Logger) *RunHandlers {
	return &RunHandlers{
		svc: svc,
		log: log.With().Str("handler", "runs").Logger(),
	}
}

// ResultView is one combination result as served over HTTP.
type ResultView struct {
	Rank    int       `json:"rank"`
	Line    int       `json:"line"`
	Tickers []string  `json:"tickers"`
	Weights []float64 `json:"weights"`
	Sharpe  float64   `json:"sharpe"`
	Text    string    `json:"text"`
}

// HandleCreate handles POST /api/runs. The body is a profile; omitted fields
// take their default values.
func (h *RunHandlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	profile := config.DefaultProfile()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&profile); err != nil {
		writeError(w, h.log, http.StatusBadRequest, fmt.Sprintf("invalid profile: %v", err))
		return
	}

	if err := profile.ValidateDataPaths(); err != nil {
		writeError(w, h.log, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.svc.Start(profile)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidParameter) {
			writeError(w, h.log, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error().Err(err).Msg("Failed to start run")
		writeError(w, h.log, http.StatusInternalServerError, "failed to start run")
		return
	}

	writeJSON(w, h.log, http.StatusAccepted, map[string]string{"id": id})
}

// HandleList handles GET /api/runs?limit=N.
func (h *RunHandlers) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", defaultListLimit)
	if err != nil {
		writeError(w, h.log, http.StatusBadRequest, err.Error())
		return
	}

	list, err := h.svc.Repository().List(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		writeError(w, h.log, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if list == nil {
		list = []runs.Run{}
	}
	writeJSON(w, h.log, http.StatusOK, list)
}

// HandleGet handles GET /api/runs/{id}.
func (h *RunHandlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, h.log, http.StatusOK, run)
}

// HandleDelete handles DELETE /api/runs/{id}. Active runs must be cancelled first.
func (h *RunHandlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.svc.Active(id) {
		writeError(w, h.log, http.StatusConflict, "run is still active; cancel it first")
		return
	}
	if err := h.svc.Repository().Delete(id); err != nil {
		if runs.IsNotFound(err) {
			writeError(w, h.log, http.StatusNotFound, err.Error())
			return
		}
		h.log.Error().Err(err).Str("run_id", id).Msg("Failed to delete run")
		writeError(w, h.log, http.StatusInternalServerError, "failed to delete run")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCancel handles POST /api/runs/{id}/cancel.
func (h *RunHandlers) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.svc.Cancel(id) {
		writeError(w, h.log, http.StatusNotFound, "no active run "+id)
		return
	}
	writeJSON(w, h.log, http.StatusAccepted, map[string]string{"id": id, "status": "cancelling"})
}

// HandleResults handles GET /api/runs/{id}/results?top=N.
func (h *RunHandlers) HandleResults(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	top, err := intQuery(r, "top", defaultTopResults)
	if err != nil || top < 1 || top > maxTopResults {
		writeError(w, h.log, http.StatusBadRequest, fmt.Sprintf("top must be between 1 and %d", maxTopResults))
		return
	}

	results, err := h.svc.Repository().TopResults(run.ID, top)
	if err != nil {
		h.log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to load results")
		writeError(w, h.log, http.StatusInternalServerError, "failed to load results")
		return
	}

	views := make([]ResultView, 0, len(results))
	for _, res := range results {
		tickers, err := res.Combination.Tickers(run.Tickers)
		if err != nil {
			writeError(w, h.log, http.StatusInternalServerError, err.Error())
			return
		}
		text, err := reporting.FormatLine(res, run.Tickers)
		if err != nil {
			writeError(w, h.log, http.StatusInternalServerError, err.Error())
			return
		}
		views = append(views, ResultView{
			Rank:    res.Rank,
			Line:    res.Rank + 1,
			Tickers: tickers,
			Weights: res.BestWeights,
			Sharpe:  res.BestSharpe,
			Text:    text,
		})
	}
	writeJSON(w, h.log, http.StatusOK, views)
}

// HandleResultsCSV handles GET /api/runs/{id}/results.csv, the full result
// file in enumeration order.
func (h *RunHandlers) HandleResultsCSV(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	results, err := h.svc.Repository().Results(run.ID)
	if err != nil {
		h.log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to load results")
		writeError(w, h.log, http.StatusInternalServerError, "failed to load results")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", reporting.PortfoliosFile))
	w.WriteHeader(http.StatusOK)
	if err := reporting.WriteResults(w, results, run.Tickers); err != nil {
		h.log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to write results")
	}
}

func (h *RunHandlers) loadRun(w http.ResponseWriter, r *http.Request) (*runs.Run, bool) {
	id := chi.URLParam(r, "id")
	run, err := h.svc.Repository().Get(id)
	if err != nil {
		if runs.IsNotFound(err) {
			writeError(w, h.log, http.StatusNotFound, err.Error())
			return nil, false
		}
		h.log.Error().Err(err).Str("run_id", id).Msg("Failed to load run")
		writeError(w, h.log, http.StatusInternalServerError, "failed to load run")
		return nil, false
	}
	return run, true
}

func intQuery(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return v, nil
}
