package booking

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrNotFound = errors.New("booking not found")
	// ErrConflict is returned when a conditional update finds the booking in a different state
	// than the caller expected.
	ErrConflict = errors.New("booking state changed")
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// GetByID fetches a single booking by its ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Booking, error) {
	var b Booking
	err := r.db.GetContext(ctx, &b, getByIDQuery, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Booking{}, ErrNotFound
	}
	return b, err
}

const getByIDQuery = `SELECT * FROM bookings WHERE id = $1`

// Create inserts a new pending booking without a vendor.
func (r *Repository) Create(ctx context.Context, b *Booking) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.PassengerCount == 0 {
		b.PassengerCount = 1
	}
	return r.db.GetContext(ctx, b, createQuery,
		b.ID, b.CompanyID, b.PickupLocation, b.DropoffLocation, b.PickupTime, b.PassengerCount,
		b.PassengerName, b.PassengerPhone, b.VehicleType, b.SpecialRequirements, b.Price)
}

const createQuery = `
INSERT INTO bookings (id, company_id, vendor_id, pickup_location, dropoff_location, pickup_time, passenger_count,
                      passenger_name, passenger_phone, vehicle_type, special_requirements, status, price,
                      created_at, updated_at)
VALUES ($1, $2, NULL, $3, $4, $5, $6, $7, $8, $9, $10, 'pending', $11, now(), now())
RETURNING *
`

// Assign hands a pending, unassigned booking to vendorID and moves it to accepted.
// It returns ErrConflict when the booking is no longer pending or already has a vendor.
func (r *Repository) Assign(ctx context.Context, id, vendorID uuid.UUID) (Booking, error) {
	var b Booking
	err := r.db.GetContext(ctx, &b, assignQuery, id, vendorID)
	if errors.Is(err, sql.ErrNoRows) {
		return Booking{}, r.missOrConflict(ctx, id)
	}
	return b, err
}

const assignQuery = `
UPDATE bookings SET vendor_id = $2, status = 'accepted', updated_at = now()
WHERE id = $1 AND status = 'pending' AND vendor_id IS NULL
RETURNING *
`

// UpdateStatus moves a booking from one status to another. The location, when non-nil,
// replaces current_location. It returns ErrConflict when the booking is no longer in from.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, location *string) (Booking, error) {
	var b Booking
	err := r.db.GetContext(ctx, &b, updateStatusQuery, id, from, to, location)
	if errors.Is(err, sql.ErrNoRows) {
		return Booking{}, r.missOrConflict(ctx, id)
	}
	return b, err
}

const updateStatusQuery = `
UPDATE bookings SET status = $3, updated_at = now(), current_location = COALESCE($4, current_location)
WHERE id = $1 AND status = $2
RETURNING *
`

// UpdateLocation records the live location reported by the assigned vendor of an ongoing ride.
func (r *Repository) UpdateLocation(ctx context.Context, id, vendorID uuid.UUID, location string) (Booking, error) {
	var b Booking
	err := r.db.GetContext(ctx, &b, updateLocationQuery, id, vendorID, location)
	if errors.Is(err, sql.ErrNoRows) {
		return Booking{}, r.missOrConflict(ctx, id)
	}
	return b, err
}

const updateLocationQuery = `
UPDATE bookings SET current_location = $3, updated_at = now()
WHERE id = $1 AND vendor_id = $2 AND status IN ('accepted', 'in_progress')
RETURNING *
`

func (r *Repository) missOrConflict(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := r.db.GetContext(ctx, &exists, existsQuery, id)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

const existsQuery = `SELECT EXISTS (SELECT 1 FROM bookings WHERE id = $1)`

// ListByCompany returns the most recent bookings requested by a company.
func (r *Repository) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]Booking, error) {
	bookings := []Booking{}
	err := r.db.SelectContext(ctx, &bookings, listByCompanyQuery, companyID)
	return bookings, err
}

const listByCompanyQuery = `SELECT * FROM bookings WHERE company_id = $1 ORDER BY created_at DESC LIMIT 100`

// ListByVendor returns the most recent bookings fulfilled by a vendor.
func (r *Repository) ListByVendor(ctx context.Context, vendorID uuid.UUID) ([]Booking, error) {
	bookings := []Booking{}
	err := r.db.SelectContext(ctx, &bookings, listByVendorQuery, vendorID)
	return bookings, err
}

const listByVendorQuery = `SELECT * FROM bookings WHERE vendor_id = $1 ORDER BY created_at DESC LIMIT 100`

// OngoingForCompany returns accepted and in-progress rides requested by a company.
func (r *Repository) OngoingForCompany(ctx context.Context, companyID uuid.UUID) ([]Booking, error) {
	bookings := []Booking{}
	err := r.db.SelectContext(ctx, &bookings, ongoingForCompanyQuery, companyID)
	return bookings, err
}

const ongoingForCompanyQuery = `
SELECT * FROM bookings
WHERE company_id = $1 AND status IN ('accepted', 'in_progress')
ORDER BY created_at DESC
LIMIT 50
`

// OngoingForVendor returns accepted and in-progress rides fulfilled by a vendor.
func (r *Repository) OngoingForVendor(ctx context.Context, vendorID uuid.UUID) ([]Booking, error) {
	bookings := []Booking{}
	err := r.db.SelectContext(ctx, &bookings, ongoingForVendorQuery, vendorID)
	return bookings, err
}

const ongoingForVendorQuery = `
SELECT * FROM bookings
WHERE vendor_id = $1 AND status IN ('accepted', 'in_progress')
ORDER BY created_at DESC
LIMIT 50
`

// PendingForVendor returns unassigned pending bookings of every company the vendor actively
// partners with.
func (r *Repository) PendingForVendor(ctx context.Context, vendorID uuid.UUID) ([]Booking, error) {
	bookings := []Booking{}
	err := r.db.SelectContext(ctx, &bookings, pendingForVendorQuery, vendorID)
	return bookings, err
}

const pendingForVendorQuery = `
SELECT bk.* FROM bookings bk
JOIN partnerships p ON p.company_id = bk.company_id
WHERE p.vendor_id = $1
  AND p.status = 'active'
  AND bk.status = 'pending'
  AND bk.vendor_id IS NULL
ORDER BY bk.created_at DESC
`
