// Package booking holds the state of the multi-step trip booking wizard.
//
// The wizard has four linear steps. Moving between steps never discards
// entered data; CanProceedFromStep gates forward navigation.
package booking

import (
	"sync"
	"time"

	"github.com/smarttourjo/core/internal/uuid"
)

// Wizard steps.
const (
	StepTripSelection = 1
	StepGuestInfo     = 2
	StepPayment       = 3
	StepConfirmation  = 4

	TotalSteps = StepConfirmation
)

// Confirmation statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
)

// ReferencePrefix starts every booking reference.
const ReferencePrefix = "STJ"

// DefaultNationality is preset for new guests and billing addresses.
const DefaultNationality = "Jordan"

// TripDetails describes the trip being booked.
type TripDetails struct {
	ID          string   `json:"id,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Image       string   `json:"image"`
	Price       float64  `json:"price"`
	Duration    string   `json:"duration"`
	Difficulty  string   `json:"difficulty"`
	Highlights  []string `json:"highlights"`
	Match       int      `json:"match"`
}

// BookingOptions are the choices made on the trip selection step.
type BookingOptions struct {
	SelectedDate   string  `json:"selectedDate,omitempty" validate:"required"`
	NumberOfGuests int     `json:"numberOfGuests" validate:"gt=0"`
	TotalPrice     float64 `json:"totalPrice"`
}

// Guest is one traveller. The primary guest is the booking contact.
type Guest struct {
	ID          int    `json:"id"`
	IsPrimary   bool   `json:"isPrimary"`
	FirstName   string `json:"firstName" validate:"required"`
	LastName    string `json:"lastName" validate:"required"`
	Email       string `json:"email" validate:"required"`
	Phone       string `json:"phone" validate:"required"`
	DateOfBirth string `json:"dateOfBirth"`
	Nationality string `json:"nationality"`
}

// Address is the card billing address.
type Address struct {
	Country    string `json:"country"`
	City       string `json:"city"`
	Address    string `json:"address"`
	PostalCode string `json:"postalCode"`
}

// PaymentInfo is the card form. No payment is processed.
type PaymentInfo struct {
	CardholderName string  `json:"cardholderName" validate:"required"`
	CardNumber     string  `json:"cardNumber" validate:"required"`
	ExpiryMonth    string  `json:"expiryMonth" validate:"required"`
	ExpiryYear     string  `json:"expiryYear" validate:"required"`
	CVC            string  `json:"cvc" validate:"required"`
	BillingAddress Address `json:"billingAddress"`
}

// Confirmation is set once the booking reference is generated.
type Confirmation struct {
	BookingReference string     `json:"bookingReference"`
	ConfirmationDate *time.Time `json:"confirmationDate"`
	Status           string     `json:"status"`
}

// State is a snapshot of the wizard.
type State struct {
	CurrentStep    int            `json:"currentStep"`
	TotalSteps     int            `json:"totalSteps"`
	TripDetails    TripDetails    `json:"tripDetails"`
	BookingOptions BookingOptions `json:"bookingOptions"`
	GuestList      []Guest        `json:"guestList"`
	PaymentInfo    PaymentInfo    `json:"paymentInfo"`
	Confirmation   Confirmation   `json:"bookingConfirmation"`
}

// OptionsUpdate changes the set fields of BookingOptions.
type OptionsUpdate struct {
	SelectedDate   *string `json:"selectedDate,omitempty"`
	NumberOfGuests *int    `json:"numberOfGuests,omitempty"`
}

// GuestUpdate changes the set fields of a Guest.
type GuestUpdate struct {
	FirstName   *string `json:"firstName,omitempty"`
	LastName    *string `json:"lastName,omitempty"`
	Email       *string `json:"email,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	DateOfBirth *string `json:"dateOfBirth,omitempty"`
	Nationality *string `json:"nationality,omitempty"`
}

// PaymentUpdate changes the set fields of PaymentInfo.
type PaymentUpdate struct {
	CardholderName *string  `json:"cardholderName,omitempty"`
	CardNumber     *string  `json:"cardNumber,omitempty"`
	ExpiryMonth    *string  `json:"expiryMonth,omitempty"`
	ExpiryYear     *string  `json:"expiryYear,omitempty"`
	CVC            *string  `json:"cvc,omitempty"`
	BillingAddress *Address `json:"billingAddress,omitempty"`
}

func newGuest(id int, primary bool) Guest {
	return Guest{ID: id, IsPrimary: primary, Nationality: DefaultNationality}
}

func initialState() State {
	return State{
		CurrentStep:    StepTripSelection,
		TotalSteps:     TotalSteps,
		TripDetails:    TripDetails{Highlights: []string{}},
		BookingOptions: BookingOptions{NumberOfGuests: 1},
		GuestList:      []Guest{newGuest(1, true)},
		PaymentInfo:    PaymentInfo{BillingAddress: Address{Country: DefaultNationality}},
		Confirmation:   Confirmation{Status: StatusPending},
	}
}

// Store is the booking wizard state. It is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	state State
	now   func() time.Time
}

// NewStore returns a Store holding the initial state.
func NewStore() *Store {
	return &Store{state: initialState(), now: time.Now}
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.state
	st.GuestList = append([]Guest(nil), s.state.GuestList...)
	st.TripDetails.Highlights = append([]string{}, s.state.TripDetails.Highlights...)
	if d := s.state.Confirmation.ConfirmationDate; d != nil {
		t := *d
		st.Confirmation.ConfirmationDate = &t
	}
	return st
}

// CurrentStep returns the active step.
func (s *Store) CurrentStep() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.CurrentStep
}

// SetCurrentStep moves to step, clamped to the valid range.
func (s *Store) SetCurrentStep(step int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.CurrentStep = clampStep(step)
}

// NextStep advances one step, stopping at the last.
func (s *Store) NextStep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.CurrentStep = clampStep(s.state.CurrentStep + 1)
	return s.state.CurrentStep
}

// PreviousStep goes back one step, stopping at the first.
func (s *Store) PreviousStep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.CurrentStep = clampStep(s.state.CurrentStep - 1)
	return s.state.CurrentStep
}

func clampStep(step int) int {
	if step < StepTripSelection {
		return StepTripSelection
	}
	if step > TotalSteps {
		return TotalSteps
	}
	return step
}

// SetTripDetails selects a trip and resets the booking options.
func (s *Store) SetTripDetails(trip TripDetails) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if trip.Highlights == nil {
		trip.Highlights = []string{}
	}
	s.state.TripDetails = trip
	s.state.BookingOptions = BookingOptions{NumberOfGuests: 1, TotalPrice: trip.Price}
}

// UpdateBookingOptions applies u and recomputes the total price as
// guests times the trip price.
func (s *Store) UpdateBookingOptions(u OptionsUpdate) BookingOptions {
	s.mu.Lock()
	defer s.mu.Unlock()

	opts := &s.state.BookingOptions
	if u.SelectedDate != nil {
		opts.SelectedDate = *u.SelectedDate
	}
	if u.NumberOfGuests != nil && *u.NumberOfGuests != 0 {
		opts.NumberOfGuests = *u.NumberOfGuests
	}
	opts.TotalPrice = float64(opts.NumberOfGuests) * s.state.TripDetails.Price
	return *opts
}

// AddGuest appends an empty guest and returns it.
func (s *Store) AddGuest() Guest {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := 0
	for _, g := range s.state.GuestList {
		if g.ID > id {
			id = g.ID
		}
	}
	g := newGuest(id+1, false)
	s.state.GuestList = append(s.state.GuestList, g)
	return g
}

// UpdateGuest applies u to the guest with id. It reports whether the guest exists.
func (s *Store) UpdateGuest(id int, u GuestUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.state.GuestList {
		g := &s.state.GuestList[i]
		if g.ID != id {
			continue
		}
		setString(&g.FirstName, u.FirstName)
		setString(&g.LastName, u.LastName)
		setString(&g.Email, u.Email)
		setString(&g.Phone, u.Phone)
		setString(&g.DateOfBirth, u.DateOfBirth)
		setString(&g.Nationality, u.Nationality)
		return true
	}
	return false
}

// RemoveGuest removes a non-primary guest. The primary guest always stays.
func (s *Store) RemoveGuest(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, g := range s.state.GuestList {
		if g.ID == id && !g.IsPrimary {
			s.state.GuestList = append(s.state.GuestList[:i], s.state.GuestList[i+1:]...)
			return true
		}
	}
	return false
}

// UpdatePaymentInfo applies u to the card form.
func (s *Store) UpdatePaymentInfo(u PaymentUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := &s.state.PaymentInfo
	setString(&p.CardholderName, u.CardholderName)
	setString(&p.CardNumber, u.CardNumber)
	setString(&p.ExpiryMonth, u.ExpiryMonth)
	setString(&p.ExpiryYear, u.ExpiryYear)
	setString(&p.CVC, u.CVC)
	if u.BillingAddress != nil {
		p.BillingAddress = *u.BillingAddress
	}
}

// GenerateBookingReference creates an STJ-XXXXXX reference and confirms the booking.
func (s *Store) GenerateBookingReference() string {
	ref := ReferencePrefix + "-" + uuid.ShortCode(6)

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.state.Confirmation = Confirmation{
		BookingReference: ref,
		ConfirmationDate: &now,
		Status:           StatusConfirmed,
	}
	return ref
}

// ResetBooking restores the initial state.
func (s *Store) ResetBooking() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = initialState()
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
