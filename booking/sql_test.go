package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRepository(sqlx.NewDb(db, "pgx")), mock
}

var bookingColumns = []string{
	"id", "company_id", "vendor_id", "pickup_location", "dropoff_location", "pickup_time",
	"passenger_count", "status", "current_location", "created_at", "updated_at",
}

func bookingRow(id, companyID uuid.UUID, vendorID any, status Status) *sqlmock.Rows {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(bookingColumns).AddRow(
		id.String(), companyID.String(), vendorID, "1 Main St", "Airport", now.Add(time.Hour),
		1, string(status), nil, now, now,
	)
}

func TestRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := uuid.New()

	mock.ExpectQuery("SELECT \\* FROM bookings WHERE id").
		WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows(bookingColumns))

	_, err := repo.GetByID(context.Background(), id)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepository_Create_DefaultsPassengerCount(t *testing.T) {
	repo, mock := newMockRepository(t)
	companyID := uuid.New()

	mock.ExpectQuery("INSERT INTO bookings").
		WithArgs(sqlmock.AnyArg(), companyID.String(), "1 Main St", "Airport", sqlmock.AnyArg(), 1,
			nil, nil, nil, nil, nil).
		WillReturnRows(bookingRow(uuid.New(), companyID, nil, StatusPending))

	b := &Booking{
		CompanyID:       companyID,
		PickupLocation:  "1 Main St",
		DropoffLocation: "Airport",
		PickupTime:      time.Now().Add(time.Hour),
	}
	if err := repo.Create(context.Background(), b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Status != StatusPending || b.VendorID != nil {
		t.Errorf("expected an unassigned pending booking, got %s / %v", b.Status, b.VendorID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepository_Assign(t *testing.T) {
	repo, mock := newMockRepository(t)
	id, companyID, vendorID := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectQuery("UPDATE bookings SET vendor_id").
		WithArgs(id.String(), vendorID.String()).
		WillReturnRows(bookingRow(id, companyID, vendorID.String(), StatusAccepted))

	b, err := repo.Assign(context.Background(), id, vendorID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !b.AssignedTo(vendorID) || b.Status != StatusAccepted {
		t.Errorf("expected booking accepted by %s, got %+v", vendorID, b)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepository_Assign_Conflict(t *testing.T) {
	repo, mock := newMockRepository(t)
	id, vendorID := uuid.New(), uuid.New()

	mock.ExpectQuery("UPDATE bookings SET vendor_id").
		WithArgs(id.String(), vendorID.String()).
		WillReturnRows(sqlmock.NewRows(bookingColumns))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := repo.Assign(context.Background(), id, vendorID)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepository_UpdateStatus_Missing(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := uuid.New()

	mock.ExpectQuery("UPDATE bookings SET status").
		WithArgs(id.String(), "accepted", "in_progress", nil).
		WillReturnRows(sqlmock.NewRows(bookingColumns))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := repo.UpdateStatus(context.Background(), id, StatusAccepted, StatusInProgress, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepository_OngoingForVendor(t *testing.T) {
	repo, mock := newMockRepository(t)
	vendorID, companyID := uuid.New(), uuid.New()

	rows := bookingRow(uuid.New(), companyID, vendorID.String(), StatusAccepted)
	rows.AddRow(uuid.New().String(), companyID.String(), vendorID.String(), "2 High St", "Station",
		time.Now(), 3, string(StatusInProgress), "Bridge Rd", time.Now(), time.Now())
	mock.ExpectQuery("WHERE vendor_id = \\$1 AND status IN").
		WithArgs(vendorID.String()).
		WillReturnRows(rows)

	got, err := repo.OngoingForVendor(context.Background(), vendorID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 bookings, got %d", len(got))
	}
	for _, b := range got {
		if !b.Status.Ongoing() {
			t.Errorf("unexpected status %s", b.Status)
		}
	}
	if got[1].CurrentLocation == nil || *got[1].CurrentLocation != "Bridge Rd" {
		t.Errorf("expected current location to be scanned, got %v", got[1].CurrentLocation)
	}
}
