package booking

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusRejected   Status = "rejected"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// transitions lists every allowed lifecycle edge. Statuses without an entry are terminal.
var transitions = map[Status][]Status{
	StatusPending:    {StatusAccepted, StatusCancelled},
	StatusAccepted:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

// Statuses returns all known statuses in lifecycle order.
func Statuses() []Status {
	return []Status{StatusPending, StatusAccepted, StatusRejected, StatusInProgress, StatusCompleted, StatusCancelled}
}

func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	return st, st.Valid()
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Ongoing reports whether a booking in s shows up in the ongoing rides list.
func (s Status) Ongoing() bool {
	return s == StatusAccepted || s == StatusInProgress
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Booking is a single ride requested by a company. VendorID stays nil until a vendor accepts.
type Booking struct {
	ID                  uuid.UUID  `db:"id" json:"id"`
	CompanyID           uuid.UUID  `db:"company_id" json:"companyId"`
	VendorID            *uuid.UUID `db:"vendor_id" json:"vendorId"`
	PickupLocation      string     `db:"pickup_location" json:"pickupLocation"`
	DropoffLocation     string     `db:"dropoff_location" json:"dropoffLocation"`
	PickupTime          time.Time  `db:"pickup_time" json:"pickupTime"`
	PassengerCount      int        `db:"passenger_count" json:"passengerCount"`
	PassengerName       *string    `db:"passenger_name" json:"passengerName,omitempty"`
	PassengerPhone      *string    `db:"passenger_phone" json:"passengerPhone,omitempty"`
	VehicleType         *string    `db:"vehicle_type" json:"vehicleType,omitempty"`
	SpecialRequirements *string    `db:"special_requirements" json:"specialRequirements,omitempty"`
	Status              Status     `db:"status" json:"status"`
	Price               *float64   `db:"price" json:"price,omitempty"`
	CurrentLocation     *string    `db:"current_location" json:"currentLocation,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updatedAt"`
}

// AssignedTo reports whether vendorID is the vendor fulfilling the booking.
func (b Booking) AssignedTo(vendorID uuid.UUID) bool {
	return b.VendorID != nil && *b.VendorID == vendorID
}
