package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/ashare-rotation/internal/backtest"
	"github.com/wonny/ashare-rotation/internal/contracts"
	"github.com/wonny/ashare-rotation/internal/strategyconfig"
	"github.com/wonny/ashare-rotation/pkg/logger"
)

// DataHandler handles store-facing API endpoints
// ⭐ SSOT: 데이터 API 핸들러는 이 구조체에서만
type DataHandler struct {
	store       contracts.DataStore
	qualityGate contracts.QualityGate
	logger      *logger.Logger
}

// NewDataHandler creates a new data handler
func NewDataHandler(store contracts.DataStore, qualityGate contracts.QualityGate, log *logger.Logger) *DataHandler {
	return &DataHandler{
		store:       store,
		qualityGate: qualityGate,
		logger:      log,
	}
}

// dateParam parses ?date=YYYY-MM-DD, today when absent
func dateParam(r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return contracts.Day(time.Now()), true
	}
	date, err := time.Parse(contracts.DateLayout, raw)
	return date, err == nil
}

// GetQuality checks store coverage on a date
// GET /api/data/quality?date=2024-05-31
func (h *DataHandler) GetQuality(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	snapshot, err := h.qualityGate.Check(r.Context(), date)
	if err != nil {
		h.logger.WithError(err).Error("Failed to check data quality")
		respondError(w, http.StatusInternalServerError, "Failed to check data quality")
		return
	}
	respondJSON(w, http.StatusOK, snapshot)
}

// GetSelection runs a preset's selection on a date
// GET /api/selections/{strategy}?date=2024-05-31
func (h *DataHandler) GetSelection(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	cfg, err := strategyconfig.Preset(mux.Vars(r)["strategy"])
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	btCfg, err := strategyconfig.ToBacktest(cfg)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	engine, err := backtest.NewEngine(btCfg, h.store, h.logger)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	decision, err := engine.Decide(r.Context(), date)
	if err != nil {
		h.logger.WithError(err).Error("Failed to decide selection")
		respondError(w, http.StatusInternalServerError, "Failed to decide selection")
		return
	}
	respondJSON(w, http.StatusOK, decision)
}
