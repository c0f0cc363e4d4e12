// Package api serves the admin HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rewired-gh/pricewatch/internal/control"
	"github.com/rewired-gh/pricewatch/internal/logger"
	"github.com/rewired-gh/pricewatch/internal/models"
	"github.com/rewired-gh/pricewatch/internal/settings"
	"github.com/rewired-gh/pricewatch/internal/storage"
)

const (
	defaultAlertLimit = 20
	maxAlertLimit     = 500
)

// Controller executes operator commands.
type Controller interface {
	Status() control.Status
	Set(p settings.Patch) (models.WatchConfig, error)
	Test(ctx context.Context) (models.AlertEvent, error)
}

// AlertLog lists logged alerts.
type AlertLog interface {
	RecentAlerts(limit int) ([]storage.AlertRecord, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	ctl    Controller
	alerts AlertLog
}

// NewHandler creates a new Handler. alerts may be nil.
func NewHandler(ctl Controller, alerts AlertLog) *Handler {
	return &Handler{
		ctl:    ctl,
		alerts: alerts,
	}
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// GetStatus handles GET /status
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.ctl.Status())
}

// UpdateConfig handles PATCH /config. The body is a JSON object of field names to
// strings or numbers; null disables a threshold.
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	fields, err := fieldStrings(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	patch, err := settings.ParseFields(fields)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := h.ctl.Set(patch); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, control.ErrEmptyPatch) || errors.Is(err, settings.ErrInvalidConfig) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}

	respondJSON(w, http.StatusOK, h.ctl.Status())
}

// SendTest handles POST /test
func (h *Handler) SendTest(w http.ResponseWriter, r *http.Request) {
	event, err := h.ctl.Test(r.Context())
	if err != nil {
		logger.Warn("Test alert failed: %v", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	respondJSON(w, http.StatusOK, event)
}

// GetAlerts handles GET /alerts?limit=n
func (h *Handler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	if h.alerts == nil {
		http.Error(w, "alert log disabled", http.StatusNotFound)
		return
	}

	limit := defaultAlertLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxAlertLimit)
	}

	records, err := h.alerts.RecentAlerts(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, records)
}

func fieldStrings(body map[string]any) (map[string]string, error) {
	fields := make(map[string]string, len(body))
	for k, v := range body {
		switch val := v.(type) {
		case string:
			fields[k] = val
		case json.Number:
			fields[k] = val.String()
		case nil:
			fields[k] = "off"
		default:
			return nil, fmt.Errorf("field %s must be a string or number", k)
		}
	}
	return fields, nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Debug("Failed to write response: %v", err)
	}
}
