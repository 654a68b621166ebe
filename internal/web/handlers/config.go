package handlers

import (
	"net/http"

	"github.com/kozaktomas/class-attendance/internal/config"
	"github.com/kozaktomas/class-attendance/internal/database"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
	}
}

// ConfigResponse represents the effective attendance settings
type ConfigResponse struct {
	Threshold         float64              `json:"threshold"`
	Workers           int                  `json:"workers"`
	QualityThresholds config.QualityConfig `json:"quality_thresholds"`
	DuplicateDistance float64              `json:"duplicate_distance"`
	DatabaseReady     bool                 `json:"database_ready"`
	AuthRequired      bool                 `json:"auth_required"`
}

// Get returns the effective configuration
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	a := h.config.Attendance
	respondJSON(w, http.StatusOK, ConfigResponse{
		Threshold:         a.Threshold,
		Workers:           a.Workers,
		QualityThresholds: a.Quality,
		DuplicateDistance: a.Enroll.DuplicateDistance,
		DatabaseReady:     database.IsInitialized(),
		AuthRequired:      h.config.Web.APIToken != "",
	})
}
