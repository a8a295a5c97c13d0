package ws

import (
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/semanticallynull/ridemarket-backend/booking"
	"github.com/semanticallynull/ridemarket-backend/dispatch"
	"github.com/semanticallynull/ridemarket-backend/user"
)

// Inbound event names.
const (
	TypeCreateBookingRequest     = "create_booking_request"
	TypeAcceptBookingRequest     = "accept_booking_request"
	TypeRejectBookingRequest     = "reject_booking_request"
	TypeUpdateRideStatus         = "update_ride_status"
	TypeUpdateRideLocation       = "update_ride_location"
	TypeCreatePartnership        = "create_partnership"
	TypeGetUserOngoingRides      = "get_user_ongoing_rides"
	TypeGetUserCurrentPartners   = "get_user_current_partners"
	TypeGetUserAvailablePartners = "get_user_available_partners"
)

var inboundTypes = map[string]struct{}{
	TypeCreateBookingRequest:     {},
	TypeAcceptBookingRequest:     {},
	TypeRejectBookingRequest:     {},
	TypeUpdateRideStatus:         {},
	TypeUpdateRideLocation:       {},
	TypeCreatePartnership:        {},
	TypeGetUserOngoingRides:      {},
	TypeGetUserCurrentPartners:   {},
	TypeGetUserAvailablePartners: {},
}

func knownType(t string) bool {
	_, ok := inboundTypes[t]
	return ok
}

// envelope is the frame shape in both directions.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// CreateBookingRequest may omit companyId; it then defaults to the sending session's company.
type CreateBookingRequest struct {
	CompanyID uuid.UUID `json:"companyId"`
	dispatch.RideDetails
}

func (m CreateBookingRequest) validate() error {
	return m.RideDetails.Validate()
}

// OfferReply carries both accept_booking_request and reject_booking_request.
type OfferReply struct {
	RequestID string    `json:"requestId"`
	VendorID  uuid.UUID `json:"vendorId"`
}

func (m OfferReply) validate() error {
	if strings.TrimSpace(m.RequestID) == "" {
		return &dispatch.ValidationError{Field: "requestId", Msg: "is required"}
	}
	return nil
}

type UpdateRideStatus struct {
	BookingID uuid.UUID      `json:"bookingId"`
	NewStatus booking.Status `json:"newStatus"`
	VendorID  uuid.UUID      `json:"vendorId"`
	ActorID   uuid.UUID      `json:"actorId"`
	Location  *string        `json:"location,omitempty"`
}

func (m UpdateRideStatus) validate() error {
	switch {
	case m.BookingID == uuid.Nil:
		return &dispatch.ValidationError{Field: "bookingId", Msg: "is required"}
	case !m.NewStatus.Valid():
		return &dispatch.ValidationError{Field: "newStatus", Msg: "unknown status"}
	}
	return nil
}

// actor is whoever the payload names as driving the change; VendorID wins over ActorID.
func (m UpdateRideStatus) actor() uuid.UUID {
	if m.VendorID != uuid.Nil {
		return m.VendorID
	}
	return m.ActorID
}

type UpdateRideLocation struct {
	BookingID uuid.UUID `json:"bookingId"`
	VendorID  uuid.UUID `json:"vendorId"`
	Location  string    `json:"location"`
}

func (m UpdateRideLocation) validate() error {
	switch {
	case m.BookingID == uuid.Nil:
		return &dispatch.ValidationError{Field: "bookingId", Msg: "is required"}
	case strings.TrimSpace(m.Location) == "":
		return &dispatch.ValidationError{Field: "location", Msg: "is required"}
	}
	return nil
}

type CreatePartnership struct {
	CompanyID   uuid.UUID `json:"companyId"`
	VendorID    uuid.UUID `json:"vendorId"`
	RequesterID uuid.UUID `json:"requesterId"`
}

func (m CreatePartnership) validate() error {
	switch {
	case m.CompanyID == uuid.Nil:
		return &dispatch.ValidationError{Field: "companyId", Msg: "is required"}
	case m.VendorID == uuid.Nil:
		return &dispatch.ValidationError{Field: "vendorId", Msg: "is required"}
	}
	return nil
}

// UserQuery carries the three get_user_* requests. Empty fields default to the session's actor.
type UserQuery struct {
	UserID   uuid.UUID  `json:"userId"`
	UserType *user.Type `json:"userType,omitempty"`
}

func (m UserQuery) validate() error {
	return nil
}

type inbound interface {
	validate() error
}

// decode parses data into T and validates it. Any failure is a ValidationError.
func decode[T inbound](data []byte) (T, error) {
	var m T
	if len(data) == 0 {
		return m, &dispatch.ValidationError{Field: "data", Msg: "is required"}
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, &dispatch.ValidationError{Field: "data", Msg: "malformed payload: " + err.Error()}
	}
	if err := m.validate(); err != nil {
		return m, err
	}
	return m, nil
}
