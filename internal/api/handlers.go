package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clintariac/frontdesk/internal/desk"
	"github.com/clintariac/frontdesk/internal/model"
)

// Handler holds the API handler state.
type Handler struct {
	mgr *desk.Manager
}

// Routes mounts the dashboard API.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/v1/healthz", h.Health)

	r.Route("/v1/users", func(r chi.Router) {
		r.Get("/{id}", h.GetUser)
		r.Put("/{id}", h.PutUser)
	})

	r.Route("/v1/tickets", func(r chi.Router) {
		r.Get("/", h.ListAwaiting)
		r.Get("/{id}", h.GetTicket)
		r.Put("/{id}", h.PutTicket)
		r.Delete("/{id}", h.DeleteTicket)
	})

	r.Get("/v1/reservations", h.ListReservations)
	r.Get("/v1/availability/next", h.NextAvailability)
	r.Get("/v1/availability/check", h.CheckAvailability)

	r.Post("/v1/task/start", h.StartTask)
	r.Post("/v1/task/stop", h.StopTask)
}

// Health handles GET /v1/healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"task_running": h.mgr.TaskRunning(),
	})
}

// GetUser handles GET /v1/users/{id}.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	u, ok := h.mgr.GetUser(id)
	if !ok {
		writeError(w, http.StatusNotFound, "user_not_found", "user not found")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// PutUser handles PUT /v1/users/{id}: upsert a patient record.
func (h *Handler) PutUser(w http.ResponseWriter, r *http.Request) {
	var u model.User
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid JSON body")
		return
	}
	u.ID = chi.URLParam(r, "id")

	if err := h.mgr.SetUser(u); err != nil {
		h.writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// ListAwaiting handles GET /v1/tickets: the awaiting queue, oldest first.
func (h *Handler) ListAwaiting(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tickets": h.mgr.AwaitingTickets(),
	})
}

// GetTicket handles GET /v1/tickets/{id}.
func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, ok := h.mgr.GetTicket(id)
	if !ok {
		writeError(w, http.StatusNotFound, "ticket_not_found", "ticket not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// PutTicket handles PUT /v1/tickets/{id}: upsert a ticket. Supplying a
// booking confirms the appointment; omitting it re-opens the ticket.
func (h *Handler) PutTicket(w http.ResponseWriter, r *http.Request) {
	var t model.Ticket
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid JSON body")
		return
	}
	t.ID = chi.URLParam(r, "id")

	if err := h.mgr.SetTicket(t); err != nil {
		h.writeManagerError(w, err)
		return
	}
	stored, _ := h.mgr.GetTicket(t.ID)
	writeJSON(w, http.StatusOK, stored)
}

// DeleteTicket handles DELETE /v1/tickets/{id}. Deleting an absent ticket
// succeeds with no effect.
func (h *Handler) DeleteTicket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.mgr.DeleteTicket(id); err != nil {
		h.writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// ListReservations handles GET /v1/reservations?date=YYYY-MM-DD.
func (h *Handler) ListReservations(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing_date", "date query parameter is required")
		return
	}
	date, err := time.ParseInLocation("2006-01-02", raw, time.Local)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":         raw,
		"reservations": h.mgr.ReservationsForDate(date),
	})
}

// NextAvailability handles GET /v1/availability/next.
func (h *Handler) NextAvailability(w http.ResponseWriter, r *http.Request) {
	slot, err := h.mgr.FirstAvailableReservation()
	if err != nil {
		if errors.Is(err, desk.ErrNoAvailability) {
			writeError(w, http.StatusConflict, "no_availability", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slot": slot})
}

// CheckAvailability handles GET /v1/availability/check?at=RFC3339.
func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("at")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing_at", "at query parameter is required")
		return
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_at", "at must be an RFC3339 timestamp")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"at":    at,
		"valid": h.mgr.IsValidReservation(at),
	})
}

// StartTask handles POST /v1/task/start: resume background polling after an
// editing session ends.
func (h *Handler) StartTask(w http.ResponseWriter, r *http.Request) {
	h.mgr.StartTask()
	writeJSON(w, http.StatusOK, map[string]any{"task_running": h.mgr.TaskRunning()})
}

// StopTask handles POST /v1/task/stop: pause polling while the operator
// edits a selected ticket, so the background merge cannot shift it.
func (h *Handler) StopTask(w http.ResponseWriter, r *http.Request) {
	h.mgr.StopTask()
	writeJSON(w, http.StatusOK, map[string]any{"task_running": h.mgr.TaskRunning()})
}

// writeManagerError maps engine outcomes to HTTP statuses. Conflicts and
// unknown references are ordinary results; storage failures are 500s.
func (h *Handler) writeManagerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, desk.ErrBookingConflict):
		writeError(w, http.StatusConflict, "booking_conflict", err.Error())
	case errors.Is(err, desk.ErrUnknownUser):
		writeError(w, http.StatusUnprocessableEntity, "unknown_user", err.Error())
	case errors.Is(err, desk.ErrNotLoaded):
		writeError(w, http.StatusServiceUnavailable, "not_loaded", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "storage_error", err.Error())
	}
}
