// Package api exposes HTTP handlers for the wellness activity service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"example.com/wellness/internal/auth"
	"example.com/wellness/internal/catalog"
	"example.com/wellness/internal/domain"
	"example.com/wellness/internal/persistence"
)

const (
	defaultListLimit   = 20
	maxListLimit       = 100
	defaultRecentLimit = 10
	maxRecentLimit     = 50
	maxBodyBytes       = 1 << 16
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
	catalog *catalog.Catalog
	logger  zerolog.Logger
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, c *catalog.Catalog) *Handler {
	return &Handler{
		service: service,
		catalog: c,
		logger:  log.With().Str("component", "api").Logger(),
	}
}

// RegisterRoutes wires endpoints to the router.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", healthz).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/activities", h.createActivity).Methods(http.MethodPost)
	v1.HandleFunc("/activities", h.listActivities).Methods(http.MethodGet)
	v1.HandleFunc("/activities/stats", h.activityStats).Methods(http.MethodGet)
	v1.HandleFunc("/activities/{id}", h.getActivity).Methods(http.MethodGet)
	v1.HandleFunc("/catalog", h.listCatalog).Methods(http.MethodGet)

	// mux resolves fallbacks on the router that owns the route, so both need them.
	for _, router := range []*mux.Router{r, v1} {
		router.NotFoundHandler = http.HandlerFunc(routeNotFound)
		router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	}
}

func routeNotFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, "not_found", "route not found")
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) createActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	var req LogActivityRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	record, err := h.service.LogActivity(r.Context(), domain.LogActivityInput{
		UserID:          claims.Subject,
		Type:            req.Type,
		Name:            req.Name,
		Slug:            req.Slug,
		DurationSeconds: req.DurationSeconds,
		CompletedAt:     req.CompletedAt,
	})
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		h.serverError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, ActivityResponse{Success: true, Activity: toActivityView(*record)})
}

func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesRead)
	if !ok {
		return
	}

	record, err := h.service.GetActivity(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, domain.ErrActivityNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "activity not found")
			return
		}
		h.serverError(w, r, err)
		return
	}
	// Unreadable records are reported as missing so IDs cannot be probed.
	if !claims.CanRead(record.UserID) {
		writeError(w, http.StatusNotFound, "not_found", "activity not found")
		return
	}

	writeJSON(w, http.StatusOK, ActivityResponse{Success: true, Activity: toActivityView(*record)})
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesRead)
	if !ok {
		return
	}
	userID, ok := targetUser(w, r, claims)
	if !ok {
		return
	}

	limit := boundedInt(r.URL.Query().Get("limit"), defaultListLimit, maxListLimit)

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	records, next, err := h.service.ListActivities(r.Context(), userID, cursor, limit)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ListActivitiesResponse{
		Success:    true,
		Activities: toActivityViews(records),
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) activityStats(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesRead)
	if !ok {
		return
	}
	userID, ok := targetUser(w, r, claims)
	if !ok {
		return
	}

	recent := boundedInt(r.URL.Query().Get("recent"), defaultRecentLimit, maxRecentLimit)

	overview, err := h.service.GetStats(r.Context(), userID, recent)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, StatsResponse{
		Success:    true,
		Activities: toActivityViews(overview.Recent),
		Stats:      overview.Stats,
	})
}

func (h *Handler) listCatalog(w http.ResponseWriter, r *http.Request) {
	var filter domain.ActivityType
	if raw := r.URL.Query().Get("type"); raw != "" {
		parsed, ok := domain.ParseActivityType(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "validation_failed", "unknown activity type")
			return
		}
		filter = parsed
	}
	writeJSON(w, http.StatusOK, CatalogResponse{Success: true, Items: h.catalog.List(filter)})
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "server_error", "internal error")
}

// requireScope returns the caller's claims when they carry scope. activities:write implies activities:read.
func requireScope(w http.ResponseWriter, r *http.Request, scope string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if claims.HasScope(scope) || (scope == auth.ScopeActivitiesRead && claims.HasScope(auth.ScopeActivitiesWrite)) {
		return claims, true
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
	return nil, false
}

// targetUser resolves the user_id query parameter, defaulting to the caller, and enforces read access.
func targetUser(w http.ResponseWriter, r *http.Request, claims *auth.Claims) (string, bool) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		userID = claims.Subject
	}
	if !claims.CanRead(userID) {
		writeError(w, http.StatusForbidden, "forbidden", "not allowed to read this user's activities")
		return "", false
	}
	return userID, true
}

// boundedInt parses a positive integer, falling back to def when absent or invalid and clamping to ceiling.
func boundedInt(raw string, def, ceiling int) int {
	if raw == "" {
		return def
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return def
	}
	if parsed > ceiling {
		return ceiling
	}
	return parsed
}

// LogActivityRequest is the payload for POST /v1/activities.
type LogActivityRequest struct {
	Type            string `json:"type"`
	Name            string `json:"name"`
	Slug            string `json:"slug"`
	DurationSeconds int    `json:"durationSeconds"`
	CompletedAt     string `json:"completedAt,omitempty"`
}

// ActivityView is the wire shape of an activity record.
type ActivityView struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId"`
	Type            string    `json:"type"`
	Name            string    `json:"name"`
	Slug            string    `json:"slug"`
	DurationSeconds int       `json:"durationSeconds"`
	CompletedAt     time.Time `json:"completedAt"`
	CreatedAt       time.Time `json:"createdAt"`
}

// ActivityResponse wraps a single activity.
type ActivityResponse struct {
	Success  bool         `json:"success"`
	Activity ActivityView `json:"activity"`
}

// ListActivitiesResponse packages one page of results.
type ListActivitiesResponse struct {
	Success    bool           `json:"success"`
	Activities []ActivityView `json:"activities"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

// StatsResponse pairs the most recent activities with stats over the full history.
type StatsResponse struct {
	Success    bool                 `json:"success"`
	Activities []ActivityView       `json:"activities"`
	Stats      domain.ActivityStats `json:"stats"`
}

// CatalogResponse lists activity variants.
type CatalogResponse struct {
	Success bool              `json:"success"`
	Items   []catalog.Variant `json:"items"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Type    string `json:"type"`
	Detail  string `json:"detail"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, errorResponse{Type: code, Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

func toActivityView(rec domain.ActivityRecord) ActivityView {
	return ActivityView{
		ID:              rec.ID,
		UserID:          rec.UserID,
		Type:            string(rec.Type),
		Name:            rec.Name,
		Slug:            rec.Slug,
		DurationSeconds: rec.DurationSeconds,
		CompletedAt:     rec.CompletedAt,
		CreatedAt:       rec.CreatedAt,
	}
}

func toActivityViews(records []domain.ActivityRecord) []ActivityView {
	views := make([]ActivityView, 0, len(records))
	for _, rec := range records {
		views = append(views, toActivityView(rec))
	}
	return views
}
