package dispatch

import (
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/semanticallynull/ridemarket-backend/partnership"
)

type OfferStatus string

const (
	OfferPending  OfferStatus = "pending"
	OfferResolved OfferStatus = "resolved"
)

// resolvedRetention is how long a resolved offer is kept so late acceptances are answered with
// ErrOfferAlreadyResolved instead of ErrOfferNotFound.
const resolvedRetention = 10 * time.Minute

// Offer is an in-flight booking request broadcast to vendor sessions. It is never persisted.
type Offer struct {
	RequestID  string
	BookingID  uuid.UUID
	CompanyID  uuid.UUID
	Details    RideDetails
	Targets    partnership.Set
	Status     OfferStatus
	ResolvedBy *uuid.UUID
	CreatedAt  time.Time
	ResolvedAt time.Time
	// ExpiresAt is zero when offers never expire.
	ExpiresAt time.Time
}

func (o Offer) expired(now time.Time) bool {
	return !o.ExpiresAt.IsZero() && now.After(o.ExpiresAt)
}

func (o Offer) clone() Offer {
	o.Targets = maps.Clone(o.Targets)
	if o.ResolvedBy != nil {
		v := *o.ResolvedBy
		o.ResolvedBy = &v
	}
	return o
}

// offerStore holds every offer of the process. A single mutex guards the map: the check-then-set
// in claim must not interleave with another claim for the same request, and contention is low.
type offerStore struct {
	mu     sync.Mutex
	offers map[string]*Offer
}

func newOfferStore() *offerStore {
	return &offerStore{offers: make(map[string]*Offer)}
}

func (s *offerStore) put(o Offer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := o.clone()
	s.offers[o.RequestID] = &c
}

func (s *offerStore) get(requestID string) (Offer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[requestID]
	if !ok {
		return Offer{}, false
	}
	return o.clone(), true
}

// byBooking returns the pending offer for a booking that is still live at now. A zero now
// also matches offers past their expiry that the sweeper has not closed yet.
func (s *offerStore) byBooking(bookingID uuid.UUID, now time.Time) (Offer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.offers {
		if o.BookingID == bookingID && o.Status == OfferPending && !o.expired(now) {
			return o.clone(), true
		}
	}
	return Offer{}, false
}

// claim marks a pending offer resolved by vendorID. The status check and the write happen
// under one lock so exactly one caller wins.
func (s *offerStore) claim(requestID string, vendorID uuid.UUID, now time.Time) (Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[requestID]
	if !ok || (o.Status == OfferPending && o.expired(now)) {
		return Offer{}, ErrOfferNotFound
	}
	if o.Status != OfferPending {
		return Offer{}, ErrOfferAlreadyResolved
	}
	o.Status = OfferResolved
	o.ResolvedBy = &vendorID
	o.ResolvedAt = now
	return o.clone(), nil
}

// release reverts a claim made by vendorID, so another vendor may still accept.
func (s *offerStore) release(requestID string, vendorID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[requestID]
	if !ok || o.Status != OfferResolved || o.ResolvedBy == nil || *o.ResolvedBy != vendorID {
		return
	}
	o.Status = OfferPending
	o.ResolvedBy = nil
	o.ResolvedAt = time.Time{}
}

func (s *offerStore) remove(requestID string) (Offer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[requestID]
	if !ok {
		return Offer{}, false
	}
	delete(s.offers, requestID)
	return *o, true
}

// join adds vendorID to the targets of a live pending offer and returns a snapshot of it. ok is
// false when the offer is gone, resolved or expired; added is false when the vendor was already
// a target.
func (s *offerStore) join(requestID string, vendorID uuid.UUID, now time.Time) (o Offer, added, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, found := s.offers[requestID]
	if !found || cur.Status != OfferPending || cur.expired(now) {
		return Offer{}, false, false
	}
	if !cur.Targets.Has(vendorID) {
		cur.Targets.Add(vendorID)
		added = true
	}
	return cur.clone(), added, true
}

// pendingFor returns the live pending offers of the given companies.
func (s *offerStore) pendingFor(companies partnership.Set, now time.Time) []Offer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Offer
	for _, o := range s.offers {
		if o.Status == OfferPending && !o.expired(now) && companies.Has(o.CompanyID) {
			out = append(out, o.clone())
		}
	}
	return out
}

// sweep drops expired pending offers and resolved offers past retention. Only the expired
// pending offers are returned, since those are the ones parties must hear about.
func (s *offerStore) sweep(now time.Time) []Offer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []Offer
	for id, o := range s.offers {
		switch {
		case o.Status == OfferPending && o.expired(now):
			expired = append(expired, *o)
			delete(s.offers, id)
		case o.Status == OfferResolved && now.Sub(o.ResolvedAt) > resolvedRetention:
			delete(s.offers, id)
		}
	}
	return expired
}

func (s *offerStore) pendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, o := range s.offers {
		if o.Status == OfferPending {
			n++
		}
	}
	return n
}
