package booking

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"

	"booking-api/internal/auth"
	"booking-api/internal/observability"
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// problem is an RFC 7807 body.
type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.repo.List(r.Context())
	if err != nil {
		observability.CaptureError("booking.list", err)
		writeError(w, http.StatusInternalServerError, "failed to list bookings")
		return
	}

	writeJSON(w, http.StatusOK, bookings)
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	b, err := h.repo.Get(r.Context(), id)
	if err != nil {
		h.writeRepoError(w, "booking.get", id, err, "failed to get booking")
		return
	}

	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	input, ok := parseInput(w, r)
	if !ok {
		return
	}

	if input.BookedBy == "" {
		if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
			input.BookedBy = claims.Name
		}
	}

	b, err := h.repo.Create(r.Context(), input)
	if err != nil {
		observability.CaptureError("booking.create", err)
		writeError(w, http.StatusInternalServerError, "failed to create booking")
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/bookings/%d", b.ID))
	writeJSON(w, http.StatusCreated, b)
}

func (h *Handler) UpdateBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	input, ok := parseInput(w, r)
	if !ok {
		return
	}

	b, err := h.repo.Update(r.Context(), id, input)
	if err != nil {
		h.writeRepoError(w, "booking.update", id, err, "failed to update booking")
		return
	}

	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) DeleteBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	b, err := h.repo.Delete(r.Context(), id)
	if err != nil {
		h.writeRepoError(w, "booking.delete", id, err, "failed to delete booking")
		return
	}

	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) writeRepoError(w http.ResponseWriter, operation string, id int, err error, message string) {
	if errors.Is(err, ErrNotFound) {
		writeNotFound(w, id)
		return
	}
	observability.CaptureError(operation, err)
	writeError(w, http.StatusInternalServerError, message)
}

func parseID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return 0, false
	}
	return id, true
}

func parseInput(w http.ResponseWriter, r *http.Request) (Input, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var input Input
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return Input{}, false
	}

	input.FacilityDescription = strings.TrimSpace(input.FacilityDescription)
	input.BookedBy = strings.TrimSpace(input.BookedBy)
	input.BookingStatus = strings.TrimSpace(input.BookingStatus)

	if err := input.Validate(); err != nil {
		var fieldErrs validation.Errors
		if errors.As(err, &fieldErrs) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"errors": fieldErrs})
			return Input{}, false
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return Input{}, false
	}

	return input, true
}

func writeNotFound(w http.ResponseWriter, id int) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusNotFound)
	_ = json.NewEncoder(w).Encode(problem{
		Type:   "https://tools.ietf.org/html/rfc9110#section-15.5.5",
		Title:  "Not Found",
		Status: http.StatusNotFound,
		Detail: fmt.Sprintf("Booking with Id %d is not found.", id),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
