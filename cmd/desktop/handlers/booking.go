package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/smarttourjo/core/internal/booking"
	apperrors "github.com/smarttourjo/core/internal/errors"
)

// BookingHandler drives the booking wizard.
type BookingHandler struct {
	store *booking.Store
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(store *booking.Store) *BookingHandler {
	return &BookingHandler{store: store}
}

// GetState handles GET /booking
func (h *BookingHandler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.State())
}

// Reset handles DELETE /booking
func (h *BookingHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.store.ResetBooking()
	writeJSON(w, http.StatusOK, h.store.State())
}

// SetStep handles PUT /booking/step with {"step": n}. Out of range steps are clamped.
func (h *BookingHandler) SetStep(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Step int `json:"step"`
	}
	if err := decodeBody(r, &request); err != nil {
		writeError(w, err)
		return
	}
	h.store.SetCurrentStep(request.Step)
	writeJSON(w, http.StatusOK, map[string]int{"currentStep": h.store.CurrentStep()})
}

// NextStep handles POST /booking/next. It refuses to leave an incomplete step.
func (h *BookingHandler) NextStep(w http.ResponseWriter, r *http.Request) {
	if !h.store.CanProceed() {
		writeError(w, apperrors.New(apperrors.ErrValidation, "current step is incomplete"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"currentStep": h.store.NextStep()})
}

// PreviousStep handles POST /booking/previous
func (h *BookingHandler) PreviousStep(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"currentStep": h.store.PreviousStep()})
}

// CanProceed handles GET /booking/can-proceed?step=n (current step when omitted).
func (h *BookingHandler) CanProceed(w http.ResponseWriter, r *http.Request) {
	step := h.store.CurrentStep()
	if s := r.URL.Query().Get("step"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, apperrors.New(apperrors.ErrInvalid, "step must be an integer"))
			return
		}
		step = n
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"step":       step,
		"canProceed": h.store.CanProceedFromStep(step),
	})
}

// SetTrip handles PUT /booking/trip
func (h *BookingHandler) SetTrip(w http.ResponseWriter, r *http.Request) {
	var trip booking.TripDetails
	if err := decodeBody(r, &trip); err != nil {
		writeError(w, err)
		return
	}
	h.store.SetTripDetails(trip)
	writeJSON(w, http.StatusOK, h.store.State())
}

// UpdateOptions handles PATCH /booking/options
func (h *BookingHandler) UpdateOptions(w http.ResponseWriter, r *http.Request) {
	var update booking.OptionsUpdate
	if err := decodeBody(r, &update); err != nil {
		writeError(w, err)
		return
	}
	if update.NumberOfGuests != nil && *update.NumberOfGuests < 0 {
		writeError(w, apperrors.New(apperrors.ErrInvalid, "numberOfGuests must not be negative"))
		return
	}
	writeJSON(w, http.StatusOK, h.store.UpdateBookingOptions(update))
}

// AddGuest handles POST /booking/guests
func (h *BookingHandler) AddGuest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, h.store.AddGuest())
}

// UpdateGuest handles PATCH /booking/guests/{id}
func (h *BookingHandler) UpdateGuest(w http.ResponseWriter, r *http.Request) {
	id, err := guestID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var update booking.GuestUpdate
	if err := decodeBody(r, &update); err != nil {
		writeError(w, err)
		return
	}
	if !h.store.UpdateGuest(id, update) {
		writeError(w, apperrors.New(apperrors.ErrNotFound, "guest not found"))
		return
	}
	writeJSON(w, http.StatusOK, h.store.State().GuestList)
}

// RemoveGuest handles DELETE /booking/guests/{id}. The primary guest cannot be removed.
func (h *BookingHandler) RemoveGuest(w http.ResponseWriter, r *http.Request) {
	id, err := guestID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if !h.store.RemoveGuest(id) {
		writeError(w, apperrors.New(apperrors.ErrNotFound, "guest not found or primary"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdatePayment handles PATCH /booking/payment
func (h *BookingHandler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	var update booking.PaymentUpdate
	if err := decodeBody(r, &update); err != nil {
		writeError(w, err)
		return
	}
	h.store.UpdatePaymentInfo(update)
	w.WriteHeader(http.StatusNoContent)
}

// Confirm handles POST /booking/confirm and issues the booking reference.
func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	for step := booking.StepTripSelection; step < booking.StepConfirmation; step++ {
		if !h.store.CanProceedFromStep(step) {
			writeError(w, apperrors.New(apperrors.ErrValidation, "step "+strconv.Itoa(step)+" is incomplete"))
			return
		}
	}
	h.store.GenerateBookingReference()
	h.store.SetCurrentStep(booking.StepConfirmation)
	writeJSON(w, http.StatusOK, h.store.State().Confirmation)
}

func guestID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		return 0, apperrors.New(apperrors.ErrInvalid, "guest id must be an integer")
	}
	return id, nil
}
