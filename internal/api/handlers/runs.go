package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/wonny/ashare-rotation/internal/audit"
	"github.com/wonny/ashare-rotation/internal/backtest"
	"github.com/wonny/ashare-rotation/internal/contracts"
	"github.com/wonny/ashare-rotation/internal/strategyconfig"
	"github.com/wonny/ashare-rotation/pkg/logger"
)

// RunHandler submits backtests and serves stored runs
// ⭐ SSOT: 백테스트 실행 API 핸들러는 이 구조체에서만
type RunHandler struct {
	store    contracts.DataStore
	runs     audit.RunStore
	analyzer *audit.Analyzer
	hub      *Hub
	logger   *logger.Logger

	// 요청과 무관하게 서버 수명 동안 실행
	ctx context.Context
	wg  sync.WaitGroup
	now func() time.Time
}

// NewRunHandler creates a new run handler. Submitted runs live until ctx is cancelled.
func NewRunHandler(ctx context.Context, store contracts.DataStore, runs audit.RunStore, hub *Hub, log *logger.Logger) *RunHandler {
	return &RunHandler{
		store:    store,
		runs:     runs,
		analyzer: audit.NewAnalyzer(runs, log),
		hub:      hub,
		logger:   log,
		ctx:      ctx,
		now:      time.Now,
	}
}

// Wait blocks until every submitted run has been stored
func (h *RunHandler) Wait() {
	h.wg.Wait()
}

// SubmitRequest selects a preset or an inline YAML strategy plus overrides
type SubmitRequest struct {
	Preset    string                   `json:"preset,omitempty"`
	YAML      string                   `json:"yaml,omitempty"`
	Overrides strategyconfig.Overrides `json:"overrides"`
}

// Submit validates the strategy and starts the run in the background
// POST /api/backtests
func (h *RunHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg, err := req.strategy()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	hash, err := strategyconfig.Hash(cfg)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to hash strategy")
		return
	}
	btCfg, err := strategyconfig.ToBacktest(cfg)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	run := audit.NewRun(btCfg, hash, h.now())
	log := h.logger.WithRun(run.ID.String(), btCfg.Strategy)

	engine, err := backtest.NewEngine(btCfg, h.store, log, backtest.WithObserver(func(rec contracts.PeriodRecord) {
		h.hub.Publish(run.ID, Event{Type: EventPeriod, RunID: run.ID, Period: &rec})
	}))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	run.Status = audit.RunRunning
	if err := h.runs.SaveRun(r.Context(), run); err != nil {
		log.WithError(err).Error("Failed to register run")
		respondError(w, http.StatusInternalServerError, "failed to register run")
		return
	}
	h.hub.Open(run.ID)

	h.wg.Add(1)
	go h.execute(engine, *run, log)

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"run_id": run.ID,
		"status": run.Status,
	})
}

func (req SubmitRequest) strategy() (*strategyconfig.Config, error) {
	var cfg *strategyconfig.Config
	var err error
	if req.YAML != "" {
		cfg, err = strategyconfig.Parse([]byte(req.YAML))
	} else {
		cfg, err = strategyconfig.Preset(req.Preset)
	}
	if err != nil {
		return nil, err
	}
	if err := req.Overrides.Apply(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (h *RunHandler) execute(engine *backtest.Engine, run audit.Run, log *logger.Logger) {
	defer h.wg.Done()
	defer h.hub.Close(run.ID)

	result, err := engine.Run(h.ctx)
	run.Finish(result, err, h.now())
	if err != nil {
		log.WithError(err).Warn("Backtest did not complete")
	}

	// 서버 종료 중에도 최종 상태는 저장
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(h.ctx), 30*time.Second)
	defer cancel()
	if err := h.runs.SaveRun(saveCtx, &run); err != nil {
		log.WithError(err).Error("Failed to store run")
	}

	summary := run.Summary
	h.hub.Publish(run.ID, Event{Type: EventDone, RunID: run.ID, Status: run.Status, Summary: &summary, Error: run.Error})
}

// List returns recent runs
// GET /api/runs?limit=20
func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	infos, err := h.runs.ListRuns(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		h.logger.WithError(err).Error("Failed to list runs")
		respondError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  infos,
		"count": len(infos),
	})
}

// Get returns the run without its series
// GET /api/runs/{id}
func (h *RunHandler) Get(w http.ResponseWriter, r *http.Request) {
	run, ok := h.load(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"run":          run.Info(),
		"parameters":   run.Parameters,
		"liquidation":  run.Liquidation,
		"degradations": run.Degradations,
		"error":        run.Error,
	})
}

// NAV returns the NAV series
// GET /api/runs/{id}/nav
func (h *RunHandler) NAV(w http.ResponseWriter, r *http.Request) {
	run, ok := h.load(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": run.ID,
		"nav":    run.NAV,
	})
}

// Periods returns the per-period records
// GET /api/runs/{id}/periods
func (h *RunHandler) Periods(w http.ResponseWriter, r *http.Request) {
	run, ok := h.load(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":  run.ID,
		"periods": run.Periods,
	})
}

// Performance returns the calendar breakdown
// GET /api/runs/{id}/performance
func (h *RunHandler) Performance(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid run id")
		return
	}
	report, err := h.analyzer.Analyze(r.Context(), id)
	if errors.Is(err, audit.ErrRunNotFound) {
		respondError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (h *RunHandler) load(w http.ResponseWriter, r *http.Request) (*audit.Run, bool) {
	id, ok := runID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid run id")
		return nil, false
	}
	run, err := h.runs.GetRun(r.Context(), id)
	if errors.Is(err, audit.ErrRunNotFound) {
		respondError(w, http.StatusNotFound, "run not found")
		return nil, false
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to load run")
		respondError(w, http.StatusInternalServerError, "Failed to load run")
		return nil, false
	}
	return run, true
}
