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
	"github.com/semanticallynull/ridemarket-backend/partnership"
	"github.com/semanticallynull/ridemarket-backend/user"
)

// RideDetails is what a company asks for when it submits a booking request.
type RideDetails struct {
	PickupLocation  string    `json:"pickupLocation"`
	Destination     string    `json:"destination"`
	ScheduledTime   time.Time `json:"scheduledTime"`
	PassengerCount  int       `json:"passengerCount,omitempty"`
	PassengerName   string    `json:"passengerName,omitempty"`
	PassengerPhone  string    `json:"passengerPhone,omitempty"`
	VehicleType     string    `json:"vehicleType,omitempty"`
	SpecialRequests string    `json:"specialRequests,omitempty"`
	EstimatedFare   *float64  `json:"estimatedFare,omitempty"`
}

func (r RideDetails) Validate() error {
	switch {
	case strings.TrimSpace(r.PickupLocation) == "":
		return invalid("pickupLocation", "is required")
	case strings.TrimSpace(r.Destination) == "":
		return invalid("destination", "is required")
	case r.ScheduledTime.IsZero():
		return invalid("scheduledTime", "is required")
	case r.PassengerCount < 0:
		return invalid("passengerCount", "must not be negative")
	case r.EstimatedFare != nil && *r.EstimatedFare < 0:
		return invalid("estimatedFare", "must not be negative")
	}
	return nil
}

func (r RideDetails) booking(companyID uuid.UUID) booking.Booking {
	passengers := r.PassengerCount
	if passengers == 0 {
		passengers = 1
	}
	return booking.Booking{
		CompanyID:           companyID,
		PickupLocation:      r.PickupLocation,
		DropoffLocation:     r.Destination,
		PickupTime:          r.ScheduledTime,
		PassengerCount:      passengers,
		PassengerName:       optional(r.PassengerName),
		PassengerPhone:      optional(r.PassengerPhone),
		VehicleType:         optional(r.VehicleType),
		SpecialRequirements: optional(r.SpecialRequests),
		Price:               r.EstimatedFare,
		Status:              booking.StatusPending,
	}
}

func optional(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

type SubmitResult struct {
	RequestID         string    `json:"requestId"`
	BookingID         uuid.UUID `json:"bookingId"`
	SentToVendorCount int       `json:"sentToVendors"`
	TotalPartners     int       `json:"totalPartners"`
}

// Submit persists a new pending booking for companyID and offers it to every partner vendor
// that is connected right now.
//
// A company without connected partners still gets its booking and an open offer; it is told
// that no partner is available and the count in the result is zero. Any returned error means
// nothing was dispatched.
func (d *Dispatcher) Submit(ctx context.Context, companyID uuid.UUID, details RideDetails) (SubmitResult, error) {
	ctx, span := d.tracer.Start(ctx, "dispatch.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("company.id", companyID.String()))

	res, err := d.submit(ctx, companyID, details)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		submissionsTotal.WithLabelValues(ErrorCode(err)).Inc()
		return SubmitResult{}, err
	}
	submissionsTotal.WithLabelValues("OK").Inc()
	span.SetAttributes(
		attribute.String("request.id", res.RequestID),
		attribute.Int("dispatch.sent", res.SentToVendorCount),
	)
	return res, nil
}

func (d *Dispatcher) submit(ctx context.Context, companyID uuid.UUID, details RideDetails) (SubmitResult, error) {
	if companyID == uuid.Nil {
		return SubmitResult{}, invalid("companyId", "is required")
	}
	if err := details.Validate(); err != nil {
		return SubmitResult{}, err
	}
	company, err := d.users.GetByID(ctx, companyID)
	if errors.Is(err, user.ErrNotFound) {
		return SubmitResult{}, invalid("companyId", "unknown company")
	}
	if err != nil {
		return SubmitResult{}, persistence("load company", err)
	}
	if company.Type != user.Company {
		return SubmitResult{}, invalid("companyId", "is not a company")
	}

	b := details.booking(companyID)
	if err := d.bookings.Create(ctx, &b); err != nil {
		return SubmitResult{}, persistence("create booking", err)
	}

	partners, err := d.partners.ActiveVendorPartners(ctx, companyID)
	if err != nil {
		// The booking stays pending and can still be picked up from the pending list.
		d.logger.ErrorContext(ctx, "failed to resolve partner vendors", "booking_id", b.ID, "error", err)
		partners = partnership.NewSet()
	}
	targets := partnership.NewSet()
	for id := range partners {
		if d.sessions.IsConnected(user.Vendor, id) {
			targets.Add(id)
		}
	}

	now := d.now()
	o := Offer{
		RequestID: "req_" + uuid.NewString(),
		BookingID: b.ID,
		CompanyID: companyID,
		Details:   details,
		Targets:   targets,
		Status:    OfferPending,
		CreatedAt: now,
	}
	if d.offerTTL > 0 {
		o.ExpiresAt = now.Add(d.offerTTL)
	}
	d.offers.put(o)
	pendingOffers.Set(float64(d.offers.pendingCount()))

	offer := d.offerEvent(o)
	for _, id := range targets.Slice() {
		deliveriesTotal.Add(float64(d.notifyActor(user.Vendor, id, offer)))
	}
	offersDispatched.Inc()

	res := SubmitResult{
		RequestID:         o.RequestID,
		BookingID:         b.ID,
		SentToVendorCount: len(targets),
		TotalPartners:     len(partners),
	}

	if len(targets) == 0 {
		msg := ErrNoPartnersAvailable.Error()
		if len(partners) > 0 {
			msg = fmt.Sprintf("none of your %d partner vendors is online; the request stays open", len(partners))
		}
		d.notifyActor(user.Company, companyID, BookingRequestError{
			RequestID: o.RequestID,
			BookingID: &b.ID,
			Code:      ErrorCode(ErrNoPartnersAvailable),
			Error:     msg,
		})
	} else {
		d.notifyActor(user.Company, companyID, BookingRequestCreated{
			RequestID:     o.RequestID,
			BookingID:     b.ID,
			Status:        string(booking.StatusPending),
			SentToVendors: res.SentToVendorCount,
			TotalPartners: res.TotalPartners,
			Message:       fmt.Sprintf("Booking request sent to %d available vendors", res.SentToVendorCount),
		})
	}

	d.notifyLists(ctx, "", b)
	d.recordDispatch(ctx, o)
	d.publish(ctx, o.RequestID, b)

	d.logger.InfoContext(ctx, "dispatched booking request",
		"request_id", o.RequestID, "booking_id", b.ID, "company_id", companyID,
		"sent_to_vendors", res.SentToVendorCount, "total_partners", res.TotalPartners)
	return res, nil
}

func (d *Dispatcher) offerEvent(o Offer) NewBookingRequest {
	ev := NewBookingRequest{
		RequestID:   o.RequestID,
		BookingID:   o.BookingID,
		CompanyID:   o.CompanyID,
		RideDetails: o.Details,
		Status:      string(OfferPending),
		CreatedAt:   o.CreatedAt,
	}
	if !o.ExpiresAt.IsZero() {
		exp := o.ExpiresAt
		ev.ExpiresAt = &exp
	}
	return ev
}
