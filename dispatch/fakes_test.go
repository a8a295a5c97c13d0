package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/semanticallynull/ridemarket-backend/booking"
	"github.com/semanticallynull/ridemarket-backend/partnership"
	"github.com/semanticallynull/ridemarket-backend/session"
	"github.com/semanticallynull/ridemarket-backend/user"
)

// fakeBookings mimics the conditional updates of booking.Repository in memory.
type fakeBookings struct {
	mu        sync.Mutex
	rows      map[uuid.UUID]booking.Booking
	createErr error
	assignErr error
	updateErr error
	assigns   int
}

func newFakeBookings() *fakeBookings {
	return &fakeBookings{rows: make(map[uuid.UUID]booking.Booking)}
}

func (f *fakeBookings) Create(_ context.Context, b *booking.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.Status = booking.StatusPending
	b.VendorID = nil
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	f.rows[b.ID] = *b
	return nil
}

func (f *fakeBookings) GetByID(_ context.Context, id uuid.UUID) (booking.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.rows[id]
	if !ok {
		return booking.Booking{}, booking.ErrNotFound
	}
	return b, nil
}

func (f *fakeBookings) Assign(_ context.Context, id, vendorID uuid.UUID) (booking.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assigns++
	if f.assignErr != nil {
		return booking.Booking{}, f.assignErr
	}
	b, ok := f.rows[id]
	if !ok {
		return booking.Booking{}, booking.ErrNotFound
	}
	if b.Status != booking.StatusPending || b.VendorID != nil {
		return booking.Booking{}, booking.ErrConflict
	}
	b.VendorID = &vendorID
	b.Status = booking.StatusAccepted
	b.UpdatedAt = time.Now()
	f.rows[id] = b
	return b, nil
}

func (f *fakeBookings) UpdateStatus(_ context.Context, id uuid.UUID, from, to booking.Status, location *string) (booking.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return booking.Booking{}, f.updateErr
	}
	b, ok := f.rows[id]
	if !ok {
		return booking.Booking{}, booking.ErrNotFound
	}
	if b.Status != from {
		return booking.Booking{}, booking.ErrConflict
	}
	b.Status = to
	if location != nil {
		b.CurrentLocation = location
	}
	b.UpdatedAt = time.Now()
	f.rows[id] = b
	return b, nil
}

func (f *fakeBookings) UpdateLocation(_ context.Context, id, vendorID uuid.UUID, location string) (booking.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.rows[id]
	if !ok {
		return booking.Booking{}, booking.ErrNotFound
	}
	if !b.AssignedTo(vendorID) || !b.Status.Ongoing() {
		return booking.Booking{}, booking.ErrConflict
	}
	b.CurrentLocation = &location
	f.rows[id] = b
	return b, nil
}

// seed stores a booking in the given state and returns it.
func (f *fakeBookings) seed(companyID uuid.UUID, vendorID *uuid.UUID, status booking.Status) booking.Booking {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := booking.Booking{
		ID:              uuid.New(),
		CompanyID:       companyID,
		VendorID:        vendorID,
		PickupLocation:  "1 Main St",
		DropoffLocation: "Airport",
		PickupTime:      time.Now().Add(time.Hour),
		PassengerCount:  1,
		Status:          status,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	f.rows[b.ID] = b
	return b
}

func (f *fakeBookings) get(id uuid.UUID) booking.Booking {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id]
}

func (f *fakeBookings) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]user.User
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

type fakePartners struct {
	mu    sync.Mutex
	pairs map[uuid.UUID]partnership.Set
	err   error
}

func (f *fakePartners) ActiveVendorPartners(_ context.Context, companyID uuid.UUID) (partnership.Set, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := partnership.NewSet()
	for id := range f.pairs[companyID] {
		out.Add(id)
	}
	return out, nil
}

func (f *fakePartners) ActiveCompanyPartners(_ context.Context, vendorID uuid.UUID) (partnership.Set, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := partnership.NewSet()
	for companyID, vendors := range f.pairs {
		if vendors.Has(vendorID) {
			out.Add(companyID)
		}
	}
	return out, nil
}

type sent struct {
	SessionID string
	Event     Event
}

// recordingNotifier captures every event handed to a session.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recordingNotifier) Send(sessionID string, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{SessionID: sessionID, Event: ev})
}

// events returns what sessionID received, optionally filtered by event name.
func (r *recordingNotifier) events(sessionID string, names ...string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, s := range r.sent {
		if s.SessionID != sessionID {
			continue
		}
		if len(names) == 0 {
			out = append(out, s.Event)
			continue
		}
		for _, n := range names {
			if s.Event.EventName() == n {
				out = append(out, s.Event)
				break
			}
		}
	}
	return out
}

func (r *recordingNotifier) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

type fakeRecorder struct {
	mu         sync.Mutex
	dispatched []string
	targets    []string
	resolved   []string
}

func (f *fakeRecorder) RecordDispatch(_ context.Context, o Offer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatched = append(f.dispatched, o.RequestID)
	return nil
}

func (f *fakeRecorder) RecordTarget(_ context.Context, requestID string, vendorID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, requestID+"/"+vendorID.String())
	return nil
}

func (f *fakeRecorder) RecordResolution(_ context.Context, o Offer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, o.RequestID)
	return nil
}

type fakePublisher struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakePublisher) Publish(_ context.Context, routingKey string, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, routingKey)
	return nil
}

type fixture struct {
	d         *Dispatcher
	bookings  *fakeBookings
	users     *fakeUsers
	partners  *fakePartners
	sessions  *session.Registry
	notifier  *recordingNotifier
	recorder  *fakeRecorder
	publisher *fakePublisher
	clock     *testClock
	nextSess  int
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		bookings:  newFakeBookings(),
		users:     &fakeUsers{users: make(map[uuid.UUID]user.User)},
		partners:  &fakePartners{pairs: make(map[uuid.UUID]partnership.Set)},
		sessions:  session.NewRegistry(),
		notifier:  &recordingNotifier{},
		recorder:  &fakeRecorder{},
		publisher: &fakePublisher{},
		clock:     &testClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{
		WithClock(f.clock.Now),
		WithRecorder(f.recorder),
		WithPublisher(f.publisher),
	}, opts...)
	f.d = New(f.bookings, f.users, f.partners, f.sessions, f.notifier, logger, opts...)
	return f
}

func (f *fixture) addUser(t user.Type) uuid.UUID {
	f.users.mu.Lock()
	defer f.users.mu.Unlock()
	id := uuid.New()
	name := fmt.Sprintf("%s-%s", t, id.String()[:8])
	u := user.User{ID: id, Email: name + "@example.com", Type: t}
	if t == user.Company {
		u.CompanyName = &name
	} else {
		u.VendorName = &name
	}
	f.users.users[id] = u
	return id
}

func (f *fixture) company() uuid.UUID { return f.addUser(user.Company) }
func (f *fixture) vendor() uuid.UUID  { return f.addUser(user.Vendor) }

func (f *fixture) partner(companyID uuid.UUID, vendorIDs ...uuid.UUID) {
	f.partners.mu.Lock()
	defer f.partners.mu.Unlock()
	set, ok := f.partners.pairs[companyID]
	if !ok {
		set = partnership.NewSet()
		f.partners.pairs[companyID] = set
	}
	for _, id := range vendorIDs {
		set.Add(id)
	}
}

// connect registers a new session for the actor and returns its id.
func (f *fixture) connect(t user.Type, id uuid.UUID) string {
	f.nextSess++
	sid := fmt.Sprintf("sess-%d", f.nextSess)
	f.sessions.Register(sid, t, id)
	return sid
}

func rideDetails() RideDetails {
	fare := 42.5
	return RideDetails{
		PickupLocation: "1 Main St",
		Destination:    "Airport Terminal 2",
		ScheduledTime:  time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
		PassengerCount: 2,
		PassengerName:  "Ada",
		EstimatedFare:  &fare,
	}
}
