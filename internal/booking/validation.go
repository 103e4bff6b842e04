package booking

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// CanProceedFromStep reports whether the data of step is complete enough to
// move forward. Steps without requirements always pass.
func (s *Store) CanProceedFromStep(step int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch step {
	case StepTripSelection:
		return validate.Struct(s.state.BookingOptions) == nil
	case StepGuestInfo:
		for _, g := range s.state.GuestList {
			if g.IsPrimary {
				return validate.Struct(g) == nil
			}
		}
		return false
	case StepPayment:
		return validate.Struct(s.state.PaymentInfo) == nil
	default:
		return true
	}
}

// CanProceed reports whether the current step can be left forward.
func (s *Store) CanProceed() bool {
	return s.CanProceedFromStep(s.CurrentStep())
}
