package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/libreserve/apiserver/internal/services"
	"github.com/libreserve/apiserver/internal/store"
	"github.com/libreserve/apiserver/types"
)

// ReservationHandler provides HTTP handlers for the reservation lifecycle.
type ReservationHandler struct {
	reservationService *services.ReservationService
}

// NewReservationHandler constructs a handler with the provided service.
func NewReservationHandler(reservationService *services.ReservationService) *ReservationHandler {
	return &ReservationHandler{reservationService: reservationService}
}

// ReservationRouter registers reservation routes on the given router.
// Every route requires authentication.
func ReservationRouter(r chi.Router, reservationService *services.ReservationService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewReservationHandler(reservationService)

	r.Use(authMiddleware)
	r.Post("/", handler.CreateReservation)
	r.Get("/", handler.SearchReservations)
	r.Get("/my-reservations", handler.MyReservations)
	r.Get("/book/{bookID}", handler.BookReservations)
	r.Route("/{reservationID}", func(r chi.Router) {
		r.Get("/", handler.GetReservation)
		r.Put("/complete", handler.CompleteReservation)
		r.Put("/cancel", handler.CancelReservation)
	})
}

type CreateReservationRequest struct {
	BookID int `json:"bookId"`
}

// ReservationCopies reports the book's copy counts after a reservation
// mutation.
type ReservationCopies struct {
	AvailableCopies int `json:"availableCopies"`
	TotalCopies     int `json:"totalCopies"`
}

// ReservationResponse pairs a reservation with the book's copy counts.
type ReservationResponse struct {
	Reservation types.Reservation `json:"reservation"`
	Book        ReservationCopies `json:"book"`
}

// ReservationListResponse is the paginated list response payload.
type ReservationListResponse struct {
	Reservations []types.Reservation `json:"reservations"`
	Pagination   Pagination          `json:"pagination"`
}

// CreateReservation claims one copy of the requested book for the caller.
// The copy claim is a single conditional update against the book record, so
// concurrent requests for the last copy cannot both succeed.
func (h *ReservationHandler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.BookID < 1 {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}

	reservation, book, err := h.reservationService.Reserve(r.Context(), claims.UserID, req.BookID)
	if err != nil {
		if errors.Is(err, store.ErrNotAvailable) {
			writeError(w, http.StatusBadRequest, "book is not available for reservation")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create reservation")
		return
	}

	writeData(w, http.StatusCreated, ReservationResponse{
		Reservation: reservation,
		Book: ReservationCopies{
			AvailableCopies: book.AvailableCopies,
			TotalCopies:     book.TotalCopies,
		},
	})
}

// MyReservations lists the caller's reservations, optionally filtered by
// status.
func (h *ReservationHandler) MyReservations(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	h.listReservations(w, r, store.ReservationFilter{UserID: claims.UserID})
}

// BookReservations lists the reservation history of one book.
func (h *ReservationHandler) BookReservations(w http.ResponseWriter, r *http.Request) {
	bookID, err := parseIDParam(r, "bookID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.listReservations(w, r, store.ReservationFilter{BookID: bookID})
}

// SearchReservations lists reservations matching the query-string filter.
func (h *ReservationHandler) SearchReservations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ReservationFilter{}

	if raw := strings.TrimSpace(q.Get("userId")); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id < 1 {
			writeError(w, http.StatusBadRequest, "invalid userId")
			return
		}
		filter.UserID = id
	}
	if raw := strings.TrimSpace(q.Get("bookId")); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id < 1 {
			writeError(w, http.StatusBadRequest, "invalid bookId")
			return
		}
		filter.BookID = id
	}
	if raw := strings.TrimSpace(q.Get("startDate")); raw != "" {
		from, err := parseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid startDate")
			return
		}
		filter.From = &from
	}
	if raw := strings.TrimSpace(q.Get("endDate")); raw != "" {
		until, err := parseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid endDate")
			return
		}
		filter.Until = &until
	}

	h.listReservations(w, r, filter)
}

func (h *ReservationHandler) listReservations(w http.ResponseWriter, r *http.Request, filter store.ReservationFilter) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status := types.ReservationStatus(raw)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		filter.Status = status
	}

	reservations, total, err := h.reservationService.Search(r.Context(), filter, offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch reservations")
		return
	}

	writeData(w, http.StatusOK, ReservationListResponse{
		Reservations: reservations,
		Pagination:   newPagination(total, page, limit),
	})
}

// GetReservation returns a single reservation to its owner or to a holder
// of modify_users.
func (h *ReservationHandler) GetReservation(w http.ResponseWriter, r *http.Request) {
	reservation, ok := h.authorizedReservation(w, r)
	if !ok {
		return
	}

	writeData(w, http.StatusOK, reservation)
}

// CompleteReservation transitions an active reservation to completed and
// returns the copy to the book's pool.
func (h *ReservationHandler) CompleteReservation(w http.ResponseWriter, r *http.Request) {
	reservation, ok := h.authorizedReservation(w, r)
	if !ok {
		return
	}

	completed, err := h.reservationService.Complete(r.Context(), reservation.ID)
	if err != nil {
		h.writeTransitionError(w, err)
		return
	}

	writeData(w, http.StatusOK, completed)
}

// CancelReservation transitions an active reservation to cancelled and
// returns the copy to the book's pool.
func (h *ReservationHandler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	reservation, ok := h.authorizedReservation(w, r)
	if !ok {
		return
	}

	cancelled, err := h.reservationService.Cancel(r.Context(), reservation.ID)
	if err != nil {
		h.writeTransitionError(w, err)
		return
	}

	writeData(w, http.StatusOK, cancelled)
}

// authorizedReservation loads the reservation named in the URL and checks
// that the caller owns it or holds modify_users. On failure the response
// has already been written and ok is false.
func (h *ReservationHandler) authorizedReservation(w http.ResponseWriter, r *http.Request) (types.Reservation, bool) {
	claims, err := claimsFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return types.Reservation{}, false
	}

	id, err := parseIDParam(r, "reservationID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return types.Reservation{}, false
	}

	reservation, err := h.reservationService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "reservation not found")
			return types.Reservation{}, false
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch reservation")
		return types.Reservation{}, false
	}

	if reservation.UserID != claims.UserID && !claims.Permissions.Has(types.PermissionModifyUsers) {
		writeError(w, http.StatusForbidden, "not authorized to access this reservation")
		return types.Reservation{}, false
	}

	return reservation, true
}

func (h *ReservationHandler) writeTransitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "reservation not found")
	case errors.Is(err, store.ErrNotActive):
		writeError(w, http.StatusBadRequest, "reservation is not active")
	default:
		writeError(w, http.StatusInternalServerError, "failed to update reservation")
	}
}
