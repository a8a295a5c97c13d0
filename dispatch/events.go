package dispatch

import (
	"time"

	"github.com/google/uuid"

	"github.com/semanticallynull/ridemarket-backend/booking"
)

// Event is an outbound notification delivered to a connected session.
type Event interface {
	EventName() string
}

const (
	EventNewBookingRequest          = "new_booking_request"
	EventBookingRequestCreated      = "booking_request_created"
	EventBookingRequestError        = "booking_request_error"
	EventBookingStatusUpdate        = "booking_status_update"
	EventBookingRequestAccepted     = "booking_request_accepted"
	EventBookingRequestRejected     = "booking_request_rejected"
	EventBookingAcceptanceConfirmed = "booking_acceptance_confirmed"
	EventBookingRequestWithdrawn    = "booking_request_withdrawn"
	EventRideStatusUpdated          = "ride_status_updated"
	EventRideStatusError            = "ride_status_error"
	EventPendingRidesUpdated        = "pending_rides_updated"
	EventOngoingRidesUpdated        = "ongoing_rides_updated"
	EventRideLocationUpdated        = "ride_location_updated"
)

// Actions carried by the list-changed events.
const (
	ActionAdded   = "added"
	ActionRemoved = "removed"
	ActionUpdated = "updated"
)

// Reasons carried by BookingRequestWithdrawn.
const (
	WithdrawExpired   = "expired"
	WithdrawCancelled = "cancelled"
)

type NewBookingRequest struct {
	RequestID string    `json:"requestId"`
	BookingID uuid.UUID `json:"bookingId"`
	CompanyID uuid.UUID `json:"companyId"`
	RideDetails
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

func (NewBookingRequest) EventName() string { return EventNewBookingRequest }

type BookingRequestCreated struct {
	RequestID     string    `json:"requestId"`
	BookingID     uuid.UUID `json:"bookingId"`
	Status        string    `json:"status"`
	SentToVendors int       `json:"sentToVendors"`
	TotalPartners int       `json:"totalPartners"`
	Message       string    `json:"message"`
}

func (BookingRequestCreated) EventName() string { return EventBookingRequestCreated }

type BookingRequestError struct {
	RequestID string     `json:"requestId,omitempty"`
	BookingID *uuid.UUID `json:"bookingId,omitempty"`
	Code      string     `json:"code"`
	Error     string     `json:"error"`
}

func (BookingRequestError) EventName() string { return EventBookingRequestError }

type BookingStatusUpdate struct {
	RequestID string          `json:"requestId"`
	BookingID uuid.UUID       `json:"bookingId"`
	Status    booking.Status  `json:"status"`
	VendorID  uuid.UUID       `json:"vendorId"`
	Booking   booking.Booking `json:"booking"`
}

func (BookingStatusUpdate) EventName() string { return EventBookingStatusUpdate }

type BookingRequestAccepted struct {
	RequestID  string    `json:"requestId"`
	BookingID  uuid.UUID `json:"bookingId"`
	AcceptedBy uuid.UUID `json:"acceptedBy"`
	Status     string    `json:"status"`
}

func (BookingRequestAccepted) EventName() string { return EventBookingRequestAccepted }

type BookingRequestRejected struct {
	RequestID string    `json:"requestId"`
	VendorID  uuid.UUID `json:"vendorId"`
}

func (BookingRequestRejected) EventName() string { return EventBookingRequestRejected }

type BookingAcceptanceConfirmed struct {
	RequestID string          `json:"requestId"`
	BookingID uuid.UUID       `json:"bookingId"`
	Message   string          `json:"message"`
	Booking   booking.Booking `json:"booking"`
}

func (BookingAcceptanceConfirmed) EventName() string { return EventBookingAcceptanceConfirmed }

type BookingRequestWithdrawn struct {
	RequestID string    `json:"requestId"`
	BookingID uuid.UUID `json:"bookingId"`
	Reason    string    `json:"reason"`
}

func (BookingRequestWithdrawn) EventName() string { return EventBookingRequestWithdrawn }

type RideStatusUpdated struct {
	BookingID uuid.UUID       `json:"bookingId"`
	OldStatus booking.Status  `json:"oldStatus"`
	NewStatus booking.Status  `json:"newStatus"`
	UpdatedBy uuid.UUID       `json:"updatedBy"`
	Location  *string         `json:"location,omitempty"`
	Booking   booking.Booking `json:"booking"`
}

func (RideStatusUpdated) EventName() string { return EventRideStatusUpdated }

type RideStatusError struct {
	BookingID uuid.UUID `json:"bookingId"`
	Code      string    `json:"code"`
	Error     string    `json:"error"`
}

func (RideStatusError) EventName() string { return EventRideStatusError }

// RidesListChange is the payload of both list-changed events.
type RidesListChange struct {
	Action    string          `json:"action"`
	BookingID uuid.UUID       `json:"bookingId"`
	OldStatus booking.Status  `json:"oldStatus,omitempty"`
	NewStatus booking.Status  `json:"newStatus"`
	Booking   booking.Booking `json:"booking"`
}

type PendingRidesUpdated struct{ RidesListChange }

func (PendingRidesUpdated) EventName() string { return EventPendingRidesUpdated }

type OngoingRidesUpdated struct{ RidesListChange }

func (OngoingRidesUpdated) EventName() string { return EventOngoingRidesUpdated }

type RideLocationUpdated struct {
	BookingID uuid.UUID `json:"bookingId"`
	VendorID  uuid.UUID `json:"vendorId"`
	Location  string    `json:"location"`
	Timestamp time.Time `json:"timestamp"`
}

func (RideLocationUpdated) EventName() string { return EventRideLocationUpdated }

// BookingEvent is the lifecycle record published to the domain event bus.
type BookingEvent struct {
	Type       string         `json:"type"`
	RequestID  string         `json:"requestId,omitempty"`
	BookingID  uuid.UUID      `json:"bookingId"`
	CompanyID  uuid.UUID      `json:"companyId"`
	VendorID   *uuid.UUID     `json:"vendorId,omitempty"`
	Status     booking.Status `json:"status"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// RoutingKey returns the event bus routing key for a booking entering status.
func RoutingKey(status booking.Status) string {
	switch status {
	case booking.StatusPending:
		return "booking.requested"
	case booking.StatusAccepted:
		return "booking.accepted"
	case booking.StatusInProgress:
		return "booking.started"
	case booking.StatusCompleted:
		return "booking.completed"
	case booking.StatusCancelled:
		return "booking.cancelled"
	}
	return "booking.event"
}
