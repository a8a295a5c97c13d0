package ws

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/semanticallynull/ridemarket-backend/booking"
	"github.com/semanticallynull/ridemarket-backend/dispatch"
	"github.com/semanticallynull/ridemarket-backend/partnership"
	"github.com/semanticallynull/ridemarket-backend/session"
	"github.com/semanticallynull/ridemarket-backend/user"
)

type Dispatcher interface {
	Submit(ctx context.Context, companyID uuid.UUID, details dispatch.RideDetails) (dispatch.SubmitResult, error)
	Accept(ctx context.Context, requestID string, vendorID uuid.UUID) (dispatch.AcceptResult, error)
	Reject(ctx context.Context, requestID string, vendorID uuid.UUID) error
	Transition(ctx context.Context, bookingID uuid.UUID, to booking.Status, actorID uuid.UUID, location *string) (booking.Booking, error)
	UpdateLocation(ctx context.Context, bookingID, vendorID uuid.UUID, location string) (booking.Booking, error)
	OnConnect(ctx context.Context, s session.Session) int
}

type Partners interface {
	Connect(ctx context.Context, companyID, vendorID uuid.UUID) (partnership.Partnership, error)
	CurrentPartnerships(ctx context.Context, u user.User) ([]partnership.Partnership, error)
	AvailablePartners(ctx context.Context, u user.User) ([]user.User, error)
}

type Rides interface {
	OngoingForCompany(ctx context.Context, companyID uuid.UUID) ([]booking.Booking, error)
	OngoingForVendor(ctx context.Context, vendorID uuid.UUID) ([]booking.Booking, error)
}

type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (user.User, error)
}

// Notifier is satisfied by *Hub.
type Notifier interface {
	Send(sessionID string, ev dispatch.Event)
}

var errActorMismatch = errors.New("does not match the connected session")

// Router turns inbound frames into dispatcher and partnership calls. Failures are answered on
// the sending session only.
type Router struct {
	dispatcher Dispatcher
	partners   Partners
	rides      Rides
	users      Users
	sessions   *session.Registry
	notifier   Notifier
	logger     *slog.Logger
}

func NewRouter(d Dispatcher, partners Partners, rides Rides, users Users, sessions *session.Registry, notifier Notifier, logger *slog.Logger) *Router {
	return &Router{
		dispatcher: d,
		partners:   partners,
		rides:      rides,
		users:      users,
		sessions:   sessions,
		notifier:   notifier,
		logger:     logger,
	}
}

func (r *Router) OnConnect(ctx context.Context, s session.Session) {
	if n := r.dispatcher.OnConnect(ctx, s); n > 0 {
		r.logger.InfoContext(ctx, "replayed open booking requests", "session_id", s.ID, "count", n)
	}
}

func (r *Router) OnMessage(ctx context.Context, s session.Session, msgType string, data []byte) {
	switch msgType {
	case TypeCreateBookingRequest:
		r.createBookingRequest(ctx, s, data)
	case TypeAcceptBookingRequest:
		r.acceptBookingRequest(ctx, s, data)
	case TypeRejectBookingRequest:
		r.rejectBookingRequest(ctx, s, data)
	case TypeUpdateRideStatus:
		r.updateRideStatus(ctx, s, data)
	case TypeUpdateRideLocation:
		r.updateRideLocation(ctx, s, data)
	case TypeCreatePartnership:
		r.createPartnership(ctx, s, data)
	case TypeGetUserOngoingRides:
		r.userOngoingRides(ctx, s, data)
	case TypeGetUserCurrentPartners:
		r.userCurrentPartners(ctx, s, data)
	case TypeGetUserAvailablePartners:
		r.userAvailablePartners(ctx, s, data)
	default:
		r.notifier.Send(s.ID, ErrorEvent{Type: msgType, Code: "VALIDATION_ERROR", Error: "unknown event type"})
	}
}

// bindActor checks that id names the session's own actor of type t, filling it in when empty.
func bindActor(s session.Session, t user.Type, field string, id uuid.UUID) (uuid.UUID, error) {
	if s.ActorType != t {
		return uuid.Nil, &dispatch.ValidationError{Field: field, Msg: "only a " + t.String() + " may send this event"}
	}
	if id == uuid.Nil {
		return s.ActorID, nil
	}
	if id != s.ActorID {
		return uuid.Nil, &dispatch.ValidationError{Field: field, Msg: errActorMismatch.Error()}
	}
	return id, nil
}

func (r *Router) createBookingRequest(ctx context.Context, s session.Session, data []byte) {
	m, err := decode[CreateBookingRequest](data)
	if err == nil {
		m.CompanyID, err = bindActor(s, user.Company, "companyId", m.CompanyID)
	}
	if err == nil {
		_, err = r.dispatcher.Submit(ctx, m.CompanyID, m.RideDetails)
	}
	if err != nil {
		r.logger.WarnContext(ctx, "failed to create booking request", "session_id", s.ID, "error", err)
		r.notifier.Send(s.ID, dispatch.BookingRequestError{Code: dispatch.ErrorCode(err), Error: err.Error()})
	}
}

func (r *Router) acceptBookingRequest(ctx context.Context, s session.Session, data []byte) {
	m, err := decode[OfferReply](data)
	if err == nil {
		m.VendorID, err = bindActor(s, user.Vendor, "vendorId", m.VendorID)
	}
	if err == nil {
		_, err = r.dispatcher.Accept(ctx, m.RequestID, m.VendorID)
	}
	if err != nil {
		r.logger.InfoContext(ctx, "booking request not accepted", "session_id", s.ID, "request_id", m.RequestID, "error", err)
		r.notifier.Send(s.ID, dispatch.BookingRequestError{RequestID: m.RequestID, Code: dispatch.ErrorCode(err), Error: err.Error()})
	}
}

func (r *Router) rejectBookingRequest(ctx context.Context, s session.Session, data []byte) {
	m, err := decode[OfferReply](data)
	if err == nil {
		m.VendorID, err = bindActor(s, user.Vendor, "vendorId", m.VendorID)
	}
	if err == nil {
		err = r.dispatcher.Reject(ctx, m.RequestID, m.VendorID)
	}
	if err != nil {
		r.notifier.Send(s.ID, dispatch.BookingRequestError{RequestID: m.RequestID, Code: dispatch.ErrorCode(err), Error: err.Error()})
	}
}

func (r *Router) updateRideStatus(ctx context.Context, s session.Session, data []byte) {
	m, err := decode[UpdateRideStatus](data)
	var actorID uuid.UUID
	if err == nil {
		field := "vendorId"
		if m.VendorID == uuid.Nil {
			field = "actorId"
		}
		actorID, err = bindActor(s, s.ActorType, field, m.actor())
	}
	if err == nil {
		_, err = r.dispatcher.Transition(ctx, m.BookingID, m.NewStatus, actorID, m.Location)
	}
	if err != nil {
		r.logger.InfoContext(ctx, "ride status not updated", "session_id", s.ID, "booking_id", m.BookingID, "error", err)
		r.notifier.Send(s.ID, dispatch.RideStatusError{BookingID: m.BookingID, Code: dispatch.ErrorCode(err), Error: err.Error()})
	}
}

func (r *Router) updateRideLocation(ctx context.Context, s session.Session, data []byte) {
	m, err := decode[UpdateRideLocation](data)
	if err == nil {
		m.VendorID, err = bindActor(s, user.Vendor, "vendorId", m.VendorID)
	}
	if err == nil {
		_, err = r.dispatcher.UpdateLocation(ctx, m.BookingID, m.VendorID, m.Location)
	}
	if err != nil {
		r.notifier.Send(s.ID, dispatch.RideStatusError{BookingID: m.BookingID, Code: dispatch.ErrorCode(err), Error: err.Error()})
	}
}

func (r *Router) createPartnership(ctx context.Context, s session.Session, data []byte) {
	m, err := decode[CreatePartnership](data)
	if err == nil {
		own := m.CompanyID
		if s.ActorType == user.Vendor {
			own = m.VendorID
		}
		if own != s.ActorID {
			err = &dispatch.ValidationError{Field: s.ActorType.String() + "Id", Msg: errActorMismatch.Error()}
		}
	}
	var p partnership.Partnership
	if err == nil {
		p, err = r.partners.Connect(ctx, m.CompanyID, m.VendorID)
	}
	if err != nil {
		r.logger.WarnContext(ctx, "failed to create partnership", "session_id", s.ID, "error", err)
		r.notifier.Send(s.ID, PartnershipCreationError{Code: partnershipErrorCode(err), Error: err.Error()})
		return
	}

	for _, id := range r.sessions.FindSessions(user.Company, p.CompanyID) {
		r.notifier.Send(id, PartnershipCreated{Partnership: p, Message: "New vendor partnership established"})
	}
	for _, id := range r.sessions.FindSessions(user.Vendor, p.VendorID) {
		r.notifier.Send(id, PartnershipCreated{Partnership: p, Message: "New company partnership established"})
	}
	r.notifier.Send(s.ID, PartnershipCreationSuccess{Partnership: p})
}

func partnershipErrorCode(err error) string {
	switch {
	case errors.Is(err, partnership.ErrAlreadyExists):
		return "ALREADY_EXISTS"
	case errors.Is(err, partnership.ErrInvalidPair):
		return "VALIDATION_ERROR"
	case errors.Is(err, user.ErrNotFound):
		return "NOT_FOUND"
	}
	if code := dispatch.ErrorCode(err); code != "INTERNAL" {
		return code
	}
	return "PERSISTENCE_ERROR"
}

// queryUser resolves the actor a get_user_* request is about. Sessions may only ask about
// themselves.
func (r *Router) queryUser(ctx context.Context, s session.Session, data []byte) (user.User, error) {
	m := UserQuery{}
	if len(data) > 0 {
		var err error
		if m, err = decode[UserQuery](data); err != nil {
			return user.User{}, err
		}
	}
	if m.UserType != nil && *m.UserType != s.ActorType {
		return user.User{}, &dispatch.ValidationError{Field: "userType", Msg: errActorMismatch.Error()}
	}
	id, err := bindActor(s, s.ActorType, "userId", m.UserID)
	if err != nil {
		return user.User{}, err
	}
	u, err := r.users.GetByID(ctx, id)
	if errors.Is(err, user.ErrNotFound) {
		return user.User{}, &dispatch.ValidationError{Field: "userId", Msg: "unknown user"}
	}
	if err != nil {
		return user.User{}, &dispatch.PersistenceError{Op: "load user", Err: err}
	}
	return u, nil
}

func (r *Router) queryFailed(ctx context.Context, s session.Session, reply string, err error) {
	r.logger.WarnContext(ctx, "failed to answer user query", "session_id", s.ID, "query", reply, "error", err)
	r.notifier.Send(s.ID, UserQueryError{reply: reply, UserID: s.ActorID, Code: dispatch.ErrorCode(err), Error: err.Error()})
}

func (r *Router) userOngoingRides(ctx context.Context, s session.Session, data []byte) {
	u, err := r.queryUser(ctx, s, data)
	if err != nil {
		r.queryFailed(ctx, s, EventUserOngoingRides, err)
		return
	}

	var rides []booking.Booking
	if u.Type == user.Company {
		rides, err = r.rides.OngoingForCompany(ctx, u.ID)
	} else {
		rides, err = r.rides.OngoingForVendor(ctx, u.ID)
	}
	if err != nil {
		r.queryFailed(ctx, s, EventUserOngoingRides, &dispatch.PersistenceError{Op: "list ongoing rides", Err: err})
		return
	}
	r.notifier.Send(s.ID, UserOngoingRides{UserID: u.ID, OngoingRides: rides, Count: len(rides)})
}

func (r *Router) userCurrentPartners(ctx context.Context, s session.Session, data []byte) {
	u, err := r.queryUser(ctx, s, data)
	if err != nil {
		r.queryFailed(ctx, s, EventUserCurrentPartners, err)
		return
	}

	ps, err := r.partners.CurrentPartnerships(ctx, u)
	if err != nil {
		r.queryFailed(ctx, s, EventUserCurrentPartners, &dispatch.PersistenceError{Op: "list partnerships", Err: err})
		return
	}
	r.notifier.Send(s.ID, UserCurrentPartners{UserID: u.ID, Partnerships: ps, Count: len(ps)})
}

func (r *Router) userAvailablePartners(ctx context.Context, s session.Session, data []byte) {
	u, err := r.queryUser(ctx, s, data)
	if err != nil {
		r.queryFailed(ctx, s, EventUserAvailablePartners, err)
		return
	}

	available, err := r.partners.AvailablePartners(ctx, u)
	if err != nil {
		r.queryFailed(ctx, s, EventUserAvailablePartners, &dispatch.PersistenceError{Op: "list available partners", Err: err})
		return
	}
	partnerType := "companies"
	if u.Type == user.Company {
		partnerType = "vendors"
	}
	r.notifier.Send(s.ID, UserAvailablePartners{
		UserID:            u.ID,
		AvailablePartners: available,
		Count:             len(available),
		PartnerType:       partnerType,
	})
}
