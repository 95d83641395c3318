package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ugandapathways/pathways/pkg/controller"
	"github.com/ugandapathways/pathways/pkg/log"
	"github.com/ugandapathways/pathways/pkg/scenario"
	"github.com/ugandapathways/pathways/pkg/storage"
	"github.com/ugandapathways/pathways/pkg/timeseries"
	"github.com/ugandapathways/pathways/pkg/types"
)

// maxRunRange is the longest time range accepted when listing runs.
const maxRunRange = 366 * 24 * time.Hour

type scenarioInfo struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Year        int                `json:"year"`
	Defaults    map[string]float64 `json:"defaults"`
	Buses       []string           `json:"buses"`
}

func (s *Server) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	out := make([]scenarioInfo, 0, len(s.scenarios))
	for _, name := range s.scenarios.Names() {
		sc := s.scenarios[name]
		out = append(out, scenarioInfo{
			Name:        sc.Name(),
			Description: sc.Description(),
			Year:        sc.Year(),
			Defaults:    sc.Defaults(),
			Buses:       sc.Buses(),
		})
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, out)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.URL.Query().Get("scenario")
	if name == "" {
		writeJSONError(w, "scenario is required", http.StatusBadRequest)
		return
	}
	start, end, err := parseTimeRange(r)
	if err != nil {
		writeJSONError(w, "invalid time range: "+err.Error(), http.StatusBadRequest)
		return
	}

	runs, err := s.storage.ListRuns(ctx, name, start, end)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list runs", slog.String("scenario", name), slog.Any("error", err))
		writeJSONError(w, "failed to list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []types.Run{}
	}
	w.Header().Set("Cache-Control", "private, max-age=60")
	writeJSON(w, runs)
}

func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.URL.Query().Get("scenario")
	if name == "" {
		writeJSONError(w, "scenario is required", http.StatusBadRequest)
		return
	}

	run, err := s.storage.GetLatestRun(ctx, name)
	if errors.Is(err, storage.ErrRunNotFound) {
		writeJSONError(w, "no runs for scenario", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get latest run", slog.String("scenario", name), slog.Any("error", err))
		writeJSONError(w, "failed to get latest run", http.StatusInternalServerError)
		return
	}
	writeJSON(w, run)
}

type startRunRequest struct {
	Scenario  string             `json:"scenario"`
	Params    map[string]float64 `json:"params"`
	Timesteps int                `json:"timesteps"`
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req startRunRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	sc, err := s.scenarios.Scenario(req.Scenario)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Timesteps < 0 {
		writeJSONError(w, "timesteps must not be negative", http.StatusBadRequest)
		return
	}
	params, err := sc.Defaults().With(req.Params)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	data, err := s.loadData()
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to load time series", slog.String("path", s.dataPath), slog.Any("error", err))
		writeJSONError(w, "failed to load time series", http.StatusInternalServerError)
		return
	}

	log.Ctx(ctx).InfoContext(ctx, "starting run", slog.String("scenario", sc.Name()), slog.String("email", getEmail(r)))

	s.runMu.Lock()
	defer s.runMu.Unlock()
	run, err := s.controller.Run(ctx, controller.RunRequest{
		Scenario: &scenario.Selection{Scenario: sc, Params: params, MaxTimesteps: req.Timesteps},
		Data:     data,
		Params:   params,
	})
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "run failed", slog.String("scenario", sc.Name()), slog.Any("error", err))
		writeJSONError(w, "run failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, run)
}

func (s *Server) loadData() (*timeseries.Table, error) {
	s.dataOnce.Do(func() {
		if s.data != nil {
			return
		}
		s.data, s.dataErr = timeseries.ReadFile(s.dataPath)
	})
	return s.data, s.dataErr
}

func parseTimeRange(r *http.Request) (time.Time, time.Time, error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if startStr == "" || endStr == "" {
		// default to the last 30 days
		end := time.Now()
		start := end.Add(-30 * 24 * time.Hour)
		return start, end, nil
	}

	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start time: %w", err)
	}

	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end time: %w", err)
	}

	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("start time must be before end time")
	}

	if end.Sub(start) > maxRunRange {
		return time.Time{}, time.Time{}, fmt.Errorf("time range cannot exceed 366 days")
	}

	return start, end, nil
}
