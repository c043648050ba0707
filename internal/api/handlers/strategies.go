package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/ashare-rotation/internal/strategyconfig"
	"github.com/wonny/ashare-rotation/pkg/logger"
)

// StrategyHandler serves the built-in strategy presets
type StrategyHandler struct {
	logger *logger.Logger
}

// NewStrategyHandler creates a new strategy handler
func NewStrategyHandler(log *logger.Logger) *StrategyHandler {
	return &StrategyHandler{logger: log}
}

// StrategyItem is one preset with its content hash
type StrategyItem struct {
	Name     string                   `json:"name"`
	Hash     string                   `json:"hash"`
	Config   *strategyconfig.Config   `json:"config"`
	Warnings []strategyconfig.Warning `json:"warnings,omitempty"`
}

// List returns every preset
// GET /api/strategies
func (h *StrategyHandler) List(w http.ResponseWriter, r *http.Request) {
	items := make([]StrategyItem, 0)
	for _, name := range strategyconfig.PresetNames() {
		item, err := presetItem(name)
		if err != nil {
			h.logger.WithError(err).WithField("preset", name).Error("Failed to load preset")
			respondError(w, http.StatusInternalServerError, "Failed to load presets")
			return
		}
		items = append(items, *item)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"strategies": items,
		"count":      len(items),
	})
}

// Get returns one preset
// GET /api/strategies/{name}
func (h *StrategyHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := presetItem(mux.Vars(r)["name"])
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func presetItem(name string) (*StrategyItem, error) {
	cfg, err := strategyconfig.Preset(name)
	if err != nil {
		return nil, err
	}
	hash, err := strategyconfig.Hash(cfg)
	if err != nil {
		return nil, err
	}
	return &StrategyItem{Name: name, Hash: hash, Config: cfg, Warnings: strategyconfig.Warn(cfg)}, nil
}
