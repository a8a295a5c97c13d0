// Package dispatch coordinates booking requests between companies and their partner vendors.
//
// A Dispatcher persists new bookings, fans each request out to the connected partner vendors as
// an in-memory offer, resolves competing acceptances so that at most one vendor wins, and drives
// the ride lifecycle afterwards. Every state change is followed by notifications to the sessions
// of the actors involved.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/semanticallynull/ridemarket-backend/booking"
	"github.com/semanticallynull/ridemarket-backend/partnership"
	"github.com/semanticallynull/ridemarket-backend/session"
	"github.com/semanticallynull/ridemarket-backend/user"
)

type BookingStore interface {
	Create(ctx context.Context, b *booking.Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (booking.Booking, error)
	Assign(ctx context.Context, id, vendorID uuid.UUID) (booking.Booking, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to booking.Status, location *string) (booking.Booking, error)
	UpdateLocation(ctx context.Context, id, vendorID uuid.UUID, location string) (booking.Booking, error)
}

type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (user.User, error)
}

type PartnerResolver interface {
	ActiveVendorPartners(ctx context.Context, companyID uuid.UUID) (partnership.Set, error)
	ActiveCompanyPartners(ctx context.Context, vendorID uuid.UUID) (partnership.Set, error)
}

// Notifier delivers an event to one session. Delivery is best effort: a session that cannot
// take the event simply misses it.
type Notifier interface {
	Send(sessionID string, ev Event)
}

// Recorder keeps an external ledger of dispatched and resolved offers.
type Recorder interface {
	RecordDispatch(ctx context.Context, o Offer) error
	// RecordTarget notes a vendor that joined an offer after dispatch.
	RecordTarget(ctx context.Context, requestID string, vendorID uuid.UUID) error
	RecordResolution(ctx context.Context, o Offer) error
}

// Publisher emits booking lifecycle events to a message bus.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, v any) error
}

type Dispatcher struct {
	bookings  BookingStore
	users     UserStore
	partners  PartnerResolver
	sessions  *session.Registry
	notifier  Notifier
	recorder  Recorder
	publisher Publisher
	logger    *slog.Logger
	tracer    trace.Tracer

	offers   *offerStore
	offerTTL time.Duration
	now      func() time.Time
}

type Option func(*Dispatcher)

// WithOfferTTL sets how long an offer stays open. Zero keeps offers open until resolved.
func WithOfferTTL(ttl time.Duration) Option {
	return func(d *Dispatcher) { d.offerTTL = ttl }
}

func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

func WithPublisher(p Publisher) Option {
	return func(d *Dispatcher) { d.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func New(
	bookings BookingStore,
	users UserStore,
	partners PartnerResolver,
	sessions *session.Registry,
	notifier Notifier,
	logger *slog.Logger,
	opts ...Option,
) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		bookings: bookings,
		users:    users,
		partners: partners,
		sessions: sessions,
		notifier: notifier,
		logger:   logger,
		tracer:   otel.Tracer("github.com/semanticallynull/ridemarket-backend/dispatch"),
		offers:   newOfferStore(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Offer returns a snapshot of the offer with the given request id.
func (d *Dispatcher) Offer(requestID string) (Offer, bool) {
	return d.offers.get(requestID)
}

// PendingOffers returns the number of offers still waiting for a vendor.
func (d *Dispatcher) PendingOffers() int {
	return d.offers.pendingCount()
}

// notifyActor sends ev to every session of the actor and returns how many sessions it reached.
func (d *Dispatcher) notifyActor(t user.Type, id uuid.UUID, ev Event) int {
	ids := d.sessions.FindSessions(t, id)
	for _, sid := range ids {
		d.notifier.Send(sid, ev)
	}
	return len(ids)
}

func (d *Dispatcher) notifyVendors(vendors partnership.Set, ev Event) {
	for _, id := range vendors.Slice() {
		d.notifyActor(user.Vendor, id, ev)
	}
}

// notifyBooking sends ev to the requesting company and, once assigned, the fulfilling vendor.
func (d *Dispatcher) notifyBooking(b booking.Booking, ev Event) {
	d.notifyActor(user.Company, b.CompanyID, ev)
	if b.VendorID != nil {
		d.notifyActor(user.Vendor, *b.VendorID, ev)
	}
}

// notifyLists emits the list-changed events for a booking that moved from old to b.Status.
// The pending list is shared by the company and all of its partner vendors; the ongoing list
// only concerns the company and the assigned vendor.
func (d *Dispatcher) notifyLists(ctx context.Context, old booking.Status, b booking.Booking) {
	if old == booking.StatusPending || b.Status == booking.StatusPending {
		action := ActionAdded
		if old == booking.StatusPending {
			action = ActionRemoved
		}
		ev := PendingRidesUpdated{RidesListChange{
			Action: action, BookingID: b.ID, OldStatus: old, NewStatus: b.Status, Booking: b,
		}}
		d.notifyActor(user.Company, b.CompanyID, ev)
		vendors, err := d.partners.ActiveVendorPartners(ctx, b.CompanyID)
		if err != nil {
			d.logger.ErrorContext(ctx, "failed to load partner vendors for pending list update",
				"booking_id", b.ID, "error", err)
		}
		d.notifyVendors(vendors, ev)
	}

	if old.Ongoing() || b.Status.Ongoing() {
		action := ActionUpdated
		switch {
		case !old.Ongoing():
			action = ActionAdded
		case !b.Status.Ongoing():
			action = ActionRemoved
		}
		d.notifyBooking(b, OngoingRidesUpdated{RidesListChange{
			Action: action, BookingID: b.ID, OldStatus: old, NewStatus: b.Status, Booking: b,
		}})
	}
}

// publish hands a lifecycle event to the bus. Failures are logged and otherwise ignored.
func (d *Dispatcher) publish(ctx context.Context, requestID string, b booking.Booking) {
	if d.publisher == nil {
		return
	}
	ev := BookingEvent{
		Type:       RoutingKey(b.Status),
		RequestID:  requestID,
		BookingID:  b.ID,
		CompanyID:  b.CompanyID,
		VendorID:   b.VendorID,
		Status:     b.Status,
		OccurredAt: d.now().UTC(),
	}
	if err := d.publisher.Publish(ctx, ev.Type, ev); err != nil {
		d.logger.WarnContext(ctx, "failed to publish booking event",
			"booking_id", b.ID, "routing_key", ev.Type, "error", err)
	}
}

func (d *Dispatcher) recordDispatch(ctx context.Context, o Offer) {
	if d.recorder == nil {
		return
	}
	if err := d.recorder.RecordDispatch(ctx, o); err != nil {
		d.logger.WarnContext(ctx, "failed to record dispatch", "request_id", o.RequestID, "error", err)
	}
}

func (d *Dispatcher) recordTarget(ctx context.Context, requestID string, vendorID uuid.UUID) {
	if d.recorder == nil {
		return
	}
	if err := d.recorder.RecordTarget(ctx, requestID, vendorID); err != nil {
		d.logger.WarnContext(ctx, "failed to record late target",
			"request_id", requestID, "vendor_id", vendorID, "error", err)
	}
}

func (d *Dispatcher) recordResolution(ctx context.Context, o Offer) {
	if d.recorder == nil {
		return
	}
	if err := d.recorder.RecordResolution(ctx, o); err != nil {
		d.logger.WarnContext(ctx, "failed to record resolution", "request_id", o.RequestID, "error", err)
	}
}
