package api

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/ethpandaops/minibench/pkg/aggregate"
	"github.com/ethpandaops/minibench/pkg/ledger"
	"github.com/go-chi/chi/v5"
)

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

type runsResponse struct {
	Count int                    `json:"count"`
	Runs  []ledger.ExperimentRun `json:"runs"`
}

type seriesResponse struct {
	Key    aggregate.KeyField   `json:"key"`
	Value  aggregate.ValueField `json:"value"`
	Points []aggregate.Series   `json:"points"`
}

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRuns returns the ledger rows in insertion order, optionally
// filtered by ?experiment=.
func (s *server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, ok := s.loadRuns(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, runsResponse{Count: len(runs), Runs: runs})
}

// handleExperiments returns the sorted distinct experiment names.
func (s *server) handleExperiments(w http.ResponseWriter, r *http.Request) {
	runs, ok := s.loadRuns(w, r)
	if !ok {
		return
	}

	names := make([]string, 0, len(runs))
	for _, run := range runs {
		names = append(names, run.ExperimentName)
	}

	slices.Sort(names)

	writeJSON(w, http.StatusOK, map[string][]string{
		"experiments": slices.Compact(names),
	})
}

// handleSeries groups runs by ?key= and averages ?value=.
func (s *server) handleSeries(w http.ResponseWriter, r *http.Request) {
	key, err := aggregate.ParseKeyField(r.URL.Query().Get("key"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	value, err := aggregate.ParseValueField(r.URL.Query().Get("value"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	runs, ok := s.loadRuns(w, r)
	if !ok {
		return
	}

	points, err := aggregate.GroupBy(runs, key, value)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{err.Error()})

		return
	}

	writeJSON(w, http.StatusOK, seriesResponse{Key: key, Value: value, Points: points})
}

// handlePresetSeries computes every preset, or the one named in the path.
func (s *server) handlePresetSeries(w http.ResponseWriter, r *http.Request) {
	var only *aggregate.Preset

	if name := chi.URLParam(r, "name"); name != "" {
		p, err := aggregate.LookupPreset(name)
		if err != nil {
			writeJSON(w, http.StatusNotFound, errorResponse{err.Error()})

			return
		}

		only = &p
	}

	runs, ok := s.loadRuns(w, r)
	if !ok {
		return
	}

	if only != nil {
		points, err := aggregate.GroupBy(runs, only.Key, only.Value)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResponse{err.Error()})

			return
		}

		writeJSON(w, http.StatusOK, aggregate.PresetSeries{Preset: *only, Points: points})

		return
	}

	series, err := aggregate.ComputePresets(runs)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{err.Error()})

		return
	}

	writeJSON(w, http.StatusOK, series)
}

// loadRuns fetches runs from the source and applies the ?experiment=
// filter. It writes the error response itself and reports whether the
// caller should continue.
func (s *server) loadRuns(w http.ResponseWriter, r *http.Request) ([]ledger.ExperimentRun, bool) {
	runs, err := s.runs.Runs(r.Context())
	if err != nil {
		s.log.WithError(err).Warn("Failed to load runs")

		msg := "loading runs failed"
		if ledger.IsSchemaError(err) {
			msg = err.Error()
		}

		writeJSON(w, http.StatusInternalServerError, errorResponse{msg})

		return nil, false
	}

	return aggregate.FilterByExperiment(runs, r.URL.Query().Get("experiment")), true
}
