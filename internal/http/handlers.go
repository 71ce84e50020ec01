package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/daymate-service/internal/auth"
	"github.com/kjstillabower/daymate-service/internal/client"
	"github.com/kjstillabower/daymate-service/internal/lifecycle"
	"github.com/kjstillabower/daymate-service/internal/models"
	"github.com/kjstillabower/daymate-service/internal/observability"
	"github.com/kjstillabower/daymate-service/internal/service"
	"github.com/kjstillabower/daymate-service/internal/validation"
)

const maxBodyBytes = 1 << 20

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	plans            *service.PlanService
	auth             auth.Authenticator
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(plans *service.PlanService, authenticator auth.Authenticator, logger *zap.Logger) *Handler {
	return &Handler{
		plans:  plans,
		auth:   authenticator,
		logger: logger,
	}
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if lifecycle.IsShuttingDown() {
		status, code = "shutting-down", http.StatusServiceUnavailable
	}

	h.healthStatusMu.Lock()
	if prev := h.healthStatusPrev; prev != "" && prev != status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", status))
	}
	h.healthStatusPrev = status
	h.healthStatusMu.Unlock()

	writeJSON(w, code, map[string]string{"status": status})
}

// GetWeather handles GET /api/weather?lat=&lon=. The provider body is passed
// through unchanged.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	coords, err := coordinatesFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", err.Error())
		return
	}
	snapshot, err := h.plans.Weather(r.Context(), coords)
	if err != nil {
		writeProviderError(w, r, err, "Unable to fetch weather data")
		return
	}
	writeRawJSON(w, http.StatusOK, snapshot.Raw)
}

// GetNews handles GET /api/news?lat=&lon=. The place name is resolved first
// and the provider body is passed through unchanged.
func (h *Handler) GetNews(w http.ResponseWriter, r *http.Request) {
	coords, err := coordinatesFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", err.Error())
		return
	}
	digest, _, err := h.plans.News(r.Context(), coords)
	if err != nil {
		writeProviderError(w, r, err, "Unable to fetch news")
		return
	}
	writeRawJSON(w, http.StatusOK, digest.Raw)
}

type planRequestBody struct {
	Lat          *float64               `json:"lat" validate:"required,gte=-90,lte=90"`
	Lon          *float64               `json:"lon" validate:"required,gte=-180,lte=180"`
	LocationName string                 `json:"location_name"`
	Preferences  map[string]interface{} `json:"preferences"`
}

// PostPlan handles POST /api/plan. Identity is optional; authenticated plans
// are saved to the caller's history.
func (h *Handler) PostPlan(w http.ResponseWriter, r *http.Request) {
	var body planRequestBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "request body must be a JSON object with lat and lon")
		return
	}
	if err := validation.Struct(body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	coords, err := validation.ValidateCoordinates(*body.Lat, *body.Lon)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", err.Error())
		return
	}

	req := service.PlanRequest{
		Coordinates:  coords,
		Preferences:  models.Preferences(body.Preferences),
		LocationName: body.LocationName,
	}
	if id := h.auth.CurrentUserOrNull(r); id != nil {
		req.OwnerID = id.UserID
	}

	result, err := h.plans.Generate(r.Context(), req)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "PLAN_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type historyEntry struct {
	ID           string      `json:"id"`
	LocationName string      `json:"location_name"`
	CreatedAt    string      `json:"created_at"`
	Plan         models.Plan `json:"plan"`
}

type historyResponse struct {
	Plans []historyEntry `json:"plans"`
	Count int            `json:"count"`
}

// GetPlanHistory handles GET /api/plan/history. Requires identity.
func (h *Handler) GetPlanHistory(w http.ResponseWriter, r *http.Request) {
	id, err := h.auth.CurrentUserOrFail(r)
	if err != nil {
		msg := "Invalid token"
		if errors.Is(err, auth.ErrMissingToken) {
			msg = "Missing authorization token"
		}
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", msg)
		return
	}

	recs, err := h.plans.History(r.Context(), id.UserID)
	if err != nil {
		observability.LoggerFromContext(r.Context()).Error("history lookup failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "HISTORY_FAILED", err.Error())
		return
	}
	resp := historyResponse{Plans: make([]historyEntry, 0, len(recs)), Count: len(recs)}
	for _, rec := range recs {
		resp.Plans = append(resp.Plans, historyEntry{
			ID:           rec.ID,
			LocationName: rec.LocationName,
			CreatedAt:    rec.CreatedAt.UTC().Format(time.RFC3339Nano),
			Plan:         rec.Plan,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func coordinatesFromQuery(r *http.Request) (models.Coordinates, error) {
	q := r.URL.Query()
	return validation.ParseCoordinates(q.Get("lat"), q.Get("lon"))
}

// writeJSON writes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRawJSON(w http.ResponseWriter, status int, body json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeError writes the standard error envelope with the request's correlation ID.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationIDFromContext(r.Context()),
		},
	})
}

// writeProviderError maps client errors for the passthrough endpoints:
// missing configuration is a 500 naming the problem, anything else a generic 502.
func writeProviderError(w http.ResponseWriter, r *http.Request, err error, message string) {
	logger := observability.LoggerFromContext(r.Context())
	if client.IsConfigurationError(err) {
		logger.Error("provider not configured", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "CONFIGURATION_ERROR", err.Error())
		return
	}
	logger.Debug("upstream error", zap.Error(err), zap.String("category", string(client.CategorizeError(err))))
	writeError(w, r, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", message)
}
