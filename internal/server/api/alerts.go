// Package api provides the HTTP handlers for the alert history.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ayusman/catwatch/internal/store"
)

// List limits.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// SnapshotPrefix is the URL prefix snapshots are served under.
const SnapshotPrefix = "/snapshots/"

// AlertHandler handles HTTP requests for alert resources.
type AlertHandler struct {
	store *store.Store
}

// NewAlertHandler creates a new AlertHandler with the given store.
func NewAlertHandler(s *store.Store) *AlertHandler {
	return &AlertHandler{store: s}
}

// ServeHTTP routes /api/alerts and /api/alerts/{id}. The history is
// written by the detection loop only, so every route is read-only.
func (h *AlertHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/alerts")
	path = strings.TrimPrefix(path, "/")

	if path == "" {
		h.list(w, r)
		return
	}
	h.get(w, r, path)
}

type alertResponse struct {
	ID             string  `json:"id"`
	Seq            int     `json:"seq"`
	Detector       string  `json:"detector"`
	Candidates     int     `json:"candidates"`
	BestConfidence float64 `json:"best_confidence"`
	SnapshotURL    string  `json:"snapshot_url,omitempty"`
	SnapshotError  string  `json:"snapshot_error,omitempty"`
	FiredAt        string  `json:"fired_at"`
}

type listAlertsResponse struct {
	Alerts []alertResponse `json:"alerts"`
	Total  int             `json:"total"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// toResponse converts a store.Alert to an alertResponse.
func toResponse(a *store.Alert) alertResponse {
	resp := alertResponse{
		ID:             a.ID,
		Seq:            a.Seq,
		Detector:       a.Detector,
		Candidates:     a.Candidates,
		BestConfidence: a.BestConfidence,
		SnapshotError:  a.SnapshotError,
		FiredAt:        a.FiredAt.UTC().Format(time.RFC3339),
	}
	if a.SnapshotPath != "" {
		resp.SnapshotURL = SnapshotPrefix + filepath.Base(a.SnapshotPath)
	}
	return resp
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// list handles GET /api/alerts?limit=N, newest first.
func (h *AlertHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, MaxLimit)
	}

	alerts, err := h.store.Alerts().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list alerts")
		return
	}

	total, err := h.store.Alerts().Count()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count alerts")
		return
	}

	response := listAlertsResponse{
		Alerts: make([]alertResponse, 0, len(alerts)),
		Total:  total,
	}
	for i := range alerts {
		response.Alerts = append(response.Alerts, toResponse(&alerts[i]))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/alerts/{id}.
func (h *AlertHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	a, err := h.store.Alerts().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Alert not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get alert")
		return
	}

	writeJSON(w, http.StatusOK, toResponse(a))
}
