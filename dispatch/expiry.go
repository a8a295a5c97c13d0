package dispatch

import (
	"context"
	"time"

	"github.com/semanticallynull/ridemarket-backend/session"
	"github.com/semanticallynull/ridemarket-backend/user"
)

// Sweep closes every offer past its expiry and tells the company and the target vendors.
// The bookings themselves stay pending. It returns the number of offers closed.
func (d *Dispatcher) Sweep(ctx context.Context) int {
	expired := d.offers.sweep(d.now())
	if len(expired) == 0 {
		return 0
	}
	pendingOffers.Set(float64(d.offers.pendingCount()))
	offersExpired.Add(float64(len(expired)))

	for _, o := range expired {
		ev := BookingRequestWithdrawn{RequestID: o.RequestID, BookingID: o.BookingID, Reason: WithdrawExpired}
		d.notifyActor(user.Company, o.CompanyID, ev)
		d.notifyVendors(o.Targets, ev)
		d.logger.InfoContext(ctx, "booking request expired",
			"request_id", o.RequestID, "booking_id", o.BookingID, "company_id", o.CompanyID)
	}
	return len(expired)
}

// Run sweeps expired offers every interval until ctx is done.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Sweep(ctx)
		}
	}
}

// OnConnect replays the open offers of partner companies to a vendor session that just
// registered, and adds the vendor to their targets. It returns the number of offers replayed.
func (d *Dispatcher) OnConnect(ctx context.Context, s session.Session) int {
	if s.ActorType != user.Vendor {
		return 0
	}
	companies, err := d.partners.ActiveCompanyPartners(ctx, s.ActorID)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to load partner companies for replay",
			"vendor_id", s.ActorID, "error", err)
		return 0
	}
	if len(companies) == 0 {
		return 0
	}

	replayed := 0
	for _, candidate := range d.offers.pendingFor(companies, d.now()) {
		// The offer may have been accepted or withdrawn since the snapshot.
		o, added, ok := d.offers.join(candidate.RequestID, s.ActorID, d.now())
		if !ok {
			continue
		}
		if added {
			d.recordTarget(ctx, o.RequestID, s.ActorID)
		}
		d.notifier.Send(s.ID, d.offerEvent(o))
		deliveriesTotal.Inc()
		replayed++
	}
	if replayed > 0 {
		d.logger.InfoContext(ctx, "replayed open booking requests",
			"session_id", s.ID, "vendor_id", s.ActorID, "count", replayed)
	}
	return replayed
}
