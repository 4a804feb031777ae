package booking

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

type Booking struct {
	ID                  int       `json:"bookingID"`
	FacilityDescription string    `json:"facilityDescription"`
	BookingDateFrom     time.Time `json:"bookingDateFrom"`
	BookingDateTo       time.Time `json:"bookingDateTo"`
	BookedBy            string    `json:"bookedBy"`
	BookingStatus       string    `json:"bookingStatus"`
}

// Input is the writable part of a booking. Any bookingID in the body is
// ignored; the path decides which row is written.
type Input struct {
	ID                  int       `json:"bookingID"`
	FacilityDescription string    `json:"facilityDescription"`
	BookingDateFrom     time.Time `json:"bookingDateFrom"`
	BookingDateTo       time.Time `json:"bookingDateTo"`
	BookedBy            string    `json:"bookedBy"`
	BookingStatus       string    `json:"bookingStatus"`
}

func (in Input) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.FacilityDescription, validation.Length(0, 1000)),
		validation.Field(&in.BookingDateFrom, validation.Required),
		validation.Field(&in.BookingDateTo,
			validation.Required,
			validation.By(notBefore(in.BookingDateFrom)),
		),
		validation.Field(&in.BookedBy, validation.Length(0, 256)),
		validation.Field(&in.BookingStatus, validation.Length(0, 64)),
	)
}

func notBefore(from time.Time) validation.RuleFunc {
	return func(value any) error {
		to, _ := value.(time.Time)
		if !from.IsZero() && to.Before(from) {
			return errors.New("must not be before bookingDateFrom")
		}
		return nil
	}
}
