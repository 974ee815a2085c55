package audit

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/pariksha-io/pariksha/pkg/apperr"
	"github.com/pariksha-io/pariksha/pkg/httputil"
)

// defaultSearchLimit caps unpaginated queries
const defaultSearchLimit = 100

// Handlers provides HTTP handlers for the audit log API. Access control is
// applied where the routes are mounted.
type Handlers struct {
	store Store
}

// NewHandlers creates new audit handlers
func NewHandlers(store Store) *Handlers {
	return &Handlers{
		store: store,
	}
}

// RegisterRoutes registers audit log routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/audit/events", h.ListEvents).Methods("GET")
	router.HandleFunc("/audit/events/{id}", h.GetEvent).Methods("GET")
	router.HandleFunc("/audit/export", h.ExportEvents).Methods("GET")
	router.HandleFunc("/audit/stats", h.GetStats).Methods("GET")
}

// ListEvents handles GET /audit/events
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	filter := parseFilter(r)

	events, err := h.store.Search(r.Context(), filter)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"events": events,
		"count":  len(events),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// GetEvent handles GET /audit/events/{id}
func (h *Handlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	events, err := h.store.Search(r.Context(), SearchFilter{ID: &id, Limit: 1})
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	if len(events) == 0 {
		httputil.WriteAppError(w, apperr.NotFoundf("audit event %d not found", id))
		return
	}

	httputil.WriteSuccess(w, events[0])
}

// ExportEvents handles GET /audit/export
func (h *Handlers) ExportEvents(w http.ResponseWriter, r *http.Request) {
	filter := parseFilter(r)

	format := ExportFormat(httputil.ParseQueryString(r, "format", string(ExportFormatJSON)))

	events, err := h.store.Search(r.Context(), filter)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	data, err := Export(events, format)
	if err != nil {
		httputil.WriteAppError(w, apperr.Validationf("unsupported export format: %s", format))
		return
	}

	switch format {
	case ExportFormatCSV:
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=audit-logs.csv")
	case ExportFormatNDJSON:
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Content-Disposition", "attachment; filename=audit-logs.ndjson")
	default:
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", "attachment; filename=audit-logs.json")
	}

	w.Write(data)
}

// GetStats handles GET /audit/stats
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	var startTime, endTime *time.Time

	if t, err := httputil.ParseQueryTime(r, "start_time"); err == nil && !t.IsZero() {
		startTime = &t
	}
	if t, err := httputil.ParseQueryTime(r, "end_time"); err == nil && !t.IsZero() {
		endTime = &t
	}

	stats, err := h.store.GetStats(r.Context(), startTime, endTime)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	httputil.WriteSuccess(w, stats)
}

// parseFilter parses a search filter from query parameters. Unparseable
// values are ignored rather than rejected.
func parseFilter(r *http.Request) SearchFilter {
	query := r.URL.Query()
	filter := SearchFilter{}

	if t, err := httputil.ParseQueryTime(r, "start_time"); err == nil && !t.IsZero() {
		filter.StartTime = &t
	}
	if t, err := httputil.ParseQueryTime(r, "end_time"); err == nil && !t.IsZero() {
		filter.EndTime = &t
	}

	if actorIDStr := query.Get("actor_id"); actorIDStr != "" {
		if actorID, err := uuid.Parse(actorIDStr); err == nil {
			filter.ActorID = &actorID
		}
	}

	filter.ActorEmail = query.Get("actor_email")

	if eventTypesStr := query.Get("event_types"); eventTypesStr != "" {
		for _, etStr := range strings.Split(eventTypesStr, ",") {
			if etStr = strings.TrimSpace(etStr); etStr != "" {
				filter.EventTypes = append(filter.EventTypes, EventType(etStr))
			}
		}
	}

	if statusStr := query.Get("status"); statusStr != "" {
		status := EventStatus(statusStr)
		filter.Status = &status
	}

	filter.ResourceType = ResourceType(query.Get("resource_type"))
	filter.ResourceID = query.Get("resource_id")
	filter.IPAddress = query.Get("ip_address")

	filter.Limit = defaultSearchLimit
	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset > 0 {
			filter.Offset = offset
		}
	}

	return filter
}
