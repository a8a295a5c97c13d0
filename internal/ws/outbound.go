package ws

import (
	"time"

	"github.com/google/uuid"

	"github.com/semanticallynull/ridemarket-backend/booking"
	"github.com/semanticallynull/ridemarket-backend/partnership"
	"github.com/semanticallynull/ridemarket-backend/user"
)

const (
	EventSessionRegistered          = "session_registered"
	EventPartnershipCreated         = "partnership_created"
	EventPartnershipCreationSuccess = "partnership_creation_success"
	EventPartnershipCreationError   = "partnership_creation_error"
	EventUserOngoingRides           = "user_ongoing_rides"
	EventUserCurrentPartners        = "user_current_partners"
	EventUserAvailablePartners      = "user_available_partners"
	EventError                      = "error"
)

type SessionRegistered struct {
	SessionID   string    `json:"sessionId"`
	ActorType   user.Type `json:"actorType"`
	ActorID     uuid.UUID `json:"actorId"`
	ConnectedAt time.Time `json:"connectedAt"`
}

func (SessionRegistered) EventName() string { return EventSessionRegistered }

type PartnershipCreated struct {
	Partnership partnership.Partnership `json:"partnership"`
	Message     string                  `json:"message"`
}

func (PartnershipCreated) EventName() string { return EventPartnershipCreated }

type PartnershipCreationSuccess struct {
	Partnership partnership.Partnership `json:"partnership"`
}

func (PartnershipCreationSuccess) EventName() string { return EventPartnershipCreationSuccess }

type PartnershipCreationError struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func (PartnershipCreationError) EventName() string { return EventPartnershipCreationError }

type UserOngoingRides struct {
	UserID       uuid.UUID         `json:"userId"`
	OngoingRides []booking.Booking `json:"ongoingRides"`
	Count        int               `json:"count"`
}

func (UserOngoingRides) EventName() string { return EventUserOngoingRides }

type UserCurrentPartners struct {
	UserID       uuid.UUID                 `json:"userId"`
	Partnerships []partnership.Partnership `json:"partnerships"`
	Count        int                       `json:"count"`
}

func (UserCurrentPartners) EventName() string { return EventUserCurrentPartners }

type UserAvailablePartners struct {
	UserID            uuid.UUID   `json:"userId"`
	AvailablePartners []user.User `json:"availablePartners"`
	Count             int         `json:"count"`
	PartnerType       string      `json:"partnerType"`
}

func (UserAvailablePartners) EventName() string { return EventUserAvailablePartners }

// UserQueryError answers a failed get_user_* request as <reply event>_error.
type UserQueryError struct {
	reply  string
	UserID uuid.UUID `json:"userId"`
	Code   string    `json:"code"`
	Error  string    `json:"error"`
}

func (e UserQueryError) EventName() string { return e.reply + "_error" }

// ErrorEvent reports a frame the server could not route.
type ErrorEvent struct {
	Type  string `json:"type,omitempty"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

func (ErrorEvent) EventName() string { return EventError }
