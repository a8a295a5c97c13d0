package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/semanticallynull/ridemarket-backend/booking"
	"github.com/semanticallynull/ridemarket-backend/user"
)

type AcceptResult struct {
	RequestID string
	BookingID uuid.UUID
	Booking   booking.Booking
}

// Accept resolves the offer in favour of vendorID. Of any number of concurrent calls for the
// same request exactly one succeeds; the others get ErrOfferAlreadyResolved without touching
// the store.
func (d *Dispatcher) Accept(ctx context.Context, requestID string, vendorID uuid.UUID) (AcceptResult, error) {
	ctx, span := d.tracer.Start(ctx, "dispatch.Accept")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.id", requestID),
		attribute.String("vendor.id", vendorID.String()),
	)

	res, err := d.accept(ctx, requestID, vendorID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		acceptancesTotal.WithLabelValues(ErrorCode(err)).Inc()
		return AcceptResult{}, err
	}
	acceptancesTotal.WithLabelValues("OK").Inc()
	return res, nil
}

func (d *Dispatcher) accept(ctx context.Context, requestID string, vendorID uuid.UUID) (AcceptResult, error) {
	if requestID == "" {
		return AcceptResult{}, invalid("requestId", "is required")
	}
	if vendorID == uuid.Nil {
		return AcceptResult{}, invalid("vendorId", "is required")
	}

	o, ok := d.offers.get(requestID)
	if !ok {
		return AcceptResult{}, ErrOfferNotFound
	}
	if o.Status == OfferPending && !o.Targets.Has(vendorID) {
		partners, err := d.partners.ActiveVendorPartners(ctx, o.CompanyID)
		if err != nil {
			return AcceptResult{}, persistence("load partner vendors", err)
		}
		if !partners.Has(vendorID) {
			return AcceptResult{}, ErrNotPartner
		}
	}

	claimed, err := d.offers.claim(requestID, vendorID, d.now())
	if err != nil {
		return AcceptResult{}, err
	}

	b, err := d.bookings.Assign(ctx, claimed.BookingID, vendorID)
	switch {
	case errors.Is(err, booking.ErrConflict):
		// The booking left pending outside the offer, usually a cancel racing the claim.
		if _, ok := d.offers.remove(requestID); ok {
			pendingOffers.Set(float64(d.offers.pendingCount()))
			d.notifyVendors(claimed.Targets, BookingRequestWithdrawn{
				RequestID: requestID,
				BookingID: claimed.BookingID,
				Reason:    WithdrawCancelled,
			})
			d.logger.InfoContext(ctx, "booking request withdrawn", "request_id", requestID,
				"booking_id", claimed.BookingID, "reason", WithdrawCancelled)
		}
		return AcceptResult{}, fmt.Errorf("%w: booking no longer pending", ErrInvalidTransition)
	case errors.Is(err, booking.ErrNotFound):
		d.offers.remove(requestID)
		pendingOffers.Set(float64(d.offers.pendingCount()))
		return AcceptResult{}, ErrBookingNotFound
	case err != nil:
		d.offers.release(requestID, vendorID)
		d.logger.ErrorContext(ctx, "failed to assign booking, offer reopened",
			"request_id", requestID, "booking_id", claimed.BookingID, "vendor_id", vendorID, "error", err)
		return AcceptResult{}, persistence("assign booking", err)
	}
	pendingOffers.Set(float64(d.offers.pendingCount()))

	d.notifyActor(user.Company, b.CompanyID, BookingStatusUpdate{
		RequestID: requestID,
		BookingID: b.ID,
		Status:    b.Status,
		VendorID:  vendorID,
		Booking:   b,
	})
	gone := BookingRequestAccepted{
		RequestID:  requestID,
		BookingID:  b.ID,
		AcceptedBy: vendorID,
		Status:     string(b.Status),
	}
	for _, id := range claimed.Targets.Slice() {
		if id != vendorID {
			d.notifyActor(user.Vendor, id, gone)
		}
	}
	d.notifyActor(user.Vendor, vendorID, BookingAcceptanceConfirmed{
		RequestID: requestID,
		BookingID: b.ID,
		Message:   "Booking accepted",
		Booking:   b,
	})
	d.notifyLists(ctx, booking.StatusPending, b)
	d.recordResolution(ctx, claimed)
	d.publish(ctx, requestID, b)

	d.logger.InfoContext(ctx, "booking request accepted",
		"request_id", requestID, "booking_id", b.ID, "vendor_id", vendorID)
	return AcceptResult{RequestID: requestID, BookingID: b.ID, Booking: b}, nil
}

// Reject acknowledges a vendor declining an offer. The offer stays open for everyone else.
func (d *Dispatcher) Reject(ctx context.Context, requestID string, vendorID uuid.UUID) error {
	if requestID == "" {
		return invalid("requestId", "is required")
	}
	if vendorID == uuid.Nil {
		return invalid("vendorId", "is required")
	}
	if _, ok := d.offers.get(requestID); !ok {
		return ErrOfferNotFound
	}
	d.notifyActor(user.Vendor, vendorID, BookingRequestRejected{RequestID: requestID, VendorID: vendorID})
	d.logger.InfoContext(ctx, "booking request rejected", "request_id", requestID, "vendor_id", vendorID)
	return nil
}
