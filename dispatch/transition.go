package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/semanticallynull/ridemarket-backend/booking"
	"github.com/semanticallynull/ridemarket-backend/user"
)

// Transition moves a booking to status to on behalf of actorID.
//
// Moves into in_progress and completed must come from the assigned vendor. Cancellation may come
// from the requesting company or the assigned vendor. Accepting a pending booking goes through
// its open offer when there is one, so it competes with every other vendor on equal terms.
// Nothing is written and nobody is notified when an error is returned.
func (d *Dispatcher) Transition(ctx context.Context, bookingID uuid.UUID, to booking.Status, actorID uuid.UUID, location *string) (booking.Booking, error) {
	ctx, span := d.tracer.Start(ctx, "dispatch.Transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.id", bookingID.String()),
		attribute.String("booking.status", string(to)),
	)

	b, err := d.transition(ctx, bookingID, to, actorID, location)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return booking.Booking{}, err
	}
	return b, nil
}

func (d *Dispatcher) transition(ctx context.Context, bookingID uuid.UUID, to booking.Status, actorID uuid.UUID, location *string) (booking.Booking, error) {
	if bookingID == uuid.Nil {
		return booking.Booking{}, invalid("bookingId", "is required")
	}
	if !to.Valid() {
		return booking.Booking{}, invalid("newStatus", fmt.Sprintf("unknown status %q", to))
	}

	current, err := d.bookings.GetByID(ctx, bookingID)
	if errors.Is(err, booking.ErrNotFound) {
		return booking.Booking{}, ErrBookingNotFound
	}
	if err != nil {
		return booking.Booking{}, persistence("load booking", err)
	}
	if !booking.CanTransition(current.Status, to) {
		return booking.Booking{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current.Status, to)
	}

	if to == booking.StatusAccepted {
		return d.acceptPending(ctx, current, actorID)
	}

	switch to {
	case booking.StatusCancelled:
		if current.CompanyID != actorID && !current.AssignedTo(actorID) {
			return booking.Booking{}, ErrNotAssigned
		}
	default:
		if !current.AssignedTo(actorID) {
			return booking.Booking{}, ErrNotAssigned
		}
	}

	var loc *string
	if to == booking.StatusInProgress && location != nil && strings.TrimSpace(*location) != "" {
		loc = location
	}

	updated, err := d.bookings.UpdateStatus(ctx, bookingID, current.Status, to, loc)
	switch {
	case errors.Is(err, booking.ErrConflict):
		return booking.Booking{}, fmt.Errorf("%w: booking changed concurrently", ErrInvalidTransition)
	case errors.Is(err, booking.ErrNotFound):
		return booking.Booking{}, ErrBookingNotFound
	case err != nil:
		return booking.Booking{}, persistence("update booking status", err)
	}
	transitionsTotal.WithLabelValues(string(current.Status), string(to)).Inc()

	requestID := ""
	if current.Status == booking.StatusPending {
		requestID = d.withdraw(ctx, bookingID, WithdrawCancelled)
	}

	d.notifyStatus(current.Status, updated, actorID, loc)
	d.notifyLists(ctx, current.Status, updated)
	d.publish(ctx, requestID, updated)

	d.logger.InfoContext(ctx, "ride status updated",
		"booking_id", bookingID, "old_status", current.Status, "new_status", to, "actor_id", actorID)
	return updated, nil
}

// acceptPending assigns a pending booking to vendorID. An open offer is resolved through
// Accept; without one the vendor must be an active partner of the company.
func (d *Dispatcher) acceptPending(ctx context.Context, current booking.Booking, vendorID uuid.UUID) (booking.Booking, error) {
	if o, ok := d.offers.byBooking(current.ID, d.now()); ok {
		res, err := d.Accept(ctx, o.RequestID, vendorID)
		if err != nil {
			return booking.Booking{}, err
		}
		transitionsTotal.WithLabelValues(string(booking.StatusPending), string(booking.StatusAccepted)).Inc()
		d.notifyStatus(booking.StatusPending, res.Booking, vendorID, nil)
		return res.Booking, nil
	}

	partners, err := d.partners.ActiveVendorPartners(ctx, current.CompanyID)
	if err != nil {
		return booking.Booking{}, persistence("load partner vendors", err)
	}
	if !partners.Has(vendorID) {
		return booking.Booking{}, ErrNotPartner
	}
	// An offer past its expiry is closed first so its targets hear about it.
	d.Sweep(ctx)
	updated, err := d.bookings.Assign(ctx, current.ID, vendorID)
	switch {
	case errors.Is(err, booking.ErrConflict):
		return booking.Booking{}, fmt.Errorf("%w: booking already taken", ErrInvalidTransition)
	case errors.Is(err, booking.ErrNotFound):
		return booking.Booking{}, ErrBookingNotFound
	case err != nil:
		return booking.Booking{}, persistence("assign booking", err)
	}
	transitionsTotal.WithLabelValues(string(booking.StatusPending), string(booking.StatusAccepted)).Inc()

	d.notifyStatus(booking.StatusPending, updated, vendorID, nil)
	d.notifyLists(ctx, booking.StatusPending, updated)
	d.publish(ctx, "", updated)
	d.logger.InfoContext(ctx, "pending booking picked up without offer",
		"booking_id", updated.ID, "vendor_id", vendorID)
	return updated, nil
}

func (d *Dispatcher) notifyStatus(old booking.Status, b booking.Booking, actorID uuid.UUID, location *string) {
	d.notifyBooking(b, RideStatusUpdated{
		BookingID: b.ID,
		OldStatus: old,
		NewStatus: b.Status,
		UpdatedBy: actorID,
		Location:  location,
		Booking:   b,
	})
}

// withdraw closes the open offer of a booking, expired or not, tells its target vendors and
// returns the request id, or "" when there was no open offer.
func (d *Dispatcher) withdraw(ctx context.Context, bookingID uuid.UUID, reason string) string {
	o, ok := d.offers.byBooking(bookingID, time.Time{})
	if !ok {
		return ""
	}
	if _, ok := d.offers.remove(o.RequestID); !ok {
		return ""
	}
	pendingOffers.Set(float64(d.offers.pendingCount()))
	d.notifyVendors(o.Targets, BookingRequestWithdrawn{
		RequestID: o.RequestID,
		BookingID: o.BookingID,
		Reason:    reason,
	})
	d.logger.InfoContext(ctx, "booking request withdrawn", "request_id", o.RequestID, "reason", reason)
	return o.RequestID
}

// UpdateLocation records the live position of an ongoing ride and forwards it to the company.
// Only the assigned vendor may report it.
func (d *Dispatcher) UpdateLocation(ctx context.Context, bookingID, vendorID uuid.UUID, location string) (booking.Booking, error) {
	if bookingID == uuid.Nil {
		return booking.Booking{}, invalid("bookingId", "is required")
	}
	if strings.TrimSpace(location) == "" {
		return booking.Booking{}, invalid("location", "is required")
	}

	current, err := d.bookings.GetByID(ctx, bookingID)
	if errors.Is(err, booking.ErrNotFound) {
		return booking.Booking{}, ErrBookingNotFound
	}
	if err != nil {
		return booking.Booking{}, persistence("load booking", err)
	}
	if !current.AssignedTo(vendorID) {
		return booking.Booking{}, ErrNotAssigned
	}
	if !current.Status.Ongoing() {
		return booking.Booking{}, fmt.Errorf("%w: ride is %s", ErrInvalidTransition, current.Status)
	}

	updated, err := d.bookings.UpdateLocation(ctx, bookingID, vendorID, location)
	switch {
	case errors.Is(err, booking.ErrConflict):
		return booking.Booking{}, fmt.Errorf("%w: ride is no longer ongoing", ErrInvalidTransition)
	case errors.Is(err, booking.ErrNotFound):
		return booking.Booking{}, ErrBookingNotFound
	case err != nil:
		return booking.Booking{}, persistence("update location", err)
	}

	d.notifyActor(user.Company, updated.CompanyID, RideLocationUpdated{
		BookingID: updated.ID,
		VendorID:  vendorID,
		Location:  location,
		Timestamp: d.now().UTC(),
	})
	return updated, nil
}
