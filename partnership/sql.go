package partnership

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

var ErrAlreadyExists = errors.New("partnership already exists")

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{
		db: db,
	}
}

// Create inserts an active partnership. A duplicate (company, vendor) pair yields ErrAlreadyExists.
func (r *Repository) Create(ctx context.Context, companyID, vendorID uuid.UUID) (Partnership, error) {
	var p Partnership
	err := r.db.GetContext(ctx, &p, createQuery, uuid.New(), companyID, vendorID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Partnership{}, ErrAlreadyExists
		}
		return Partnership{}, err
	}
	return p, nil
}

const createQuery = `
INSERT INTO partnerships (id, company_id, vendor_id, status, created_at)
VALUES ($1, $2, $3, 'active', now())
RETURNING *
`

func (r *Repository) ActiveByCompany(ctx context.Context, companyID uuid.UUID) ([]Partnership, error) {
	partnerships := []Partnership{}
	err := r.db.SelectContext(ctx, &partnerships, activeByCompanyQuery, companyID)
	return partnerships, err
}

const activeByCompanyQuery = `
SELECT * FROM partnerships WHERE company_id = $1 AND status = 'active' ORDER BY created_at ASC
`

func (r *Repository) ActiveByVendor(ctx context.Context, vendorID uuid.UUID) ([]Partnership, error) {
	partnerships := []Partnership{}
	err := r.db.SelectContext(ctx, &partnerships, activeByVendorQuery, vendorID)
	return partnerships, err
}

const activeByVendorQuery = `
SELECT * FROM partnerships WHERE vendor_id = $1 AND status = 'active' ORDER BY created_at ASC
`

// ActiveVendorIDs returns the vendors actively partnered with a company.
func (r *Repository) ActiveVendorIDs(ctx context.Context, companyID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids, activeVendorIDsQuery, companyID)
	return ids, err
}

const activeVendorIDsQuery = `SELECT vendor_id FROM partnerships WHERE company_id = $1 AND status = 'active'`

// ActiveCompanyIDs returns the companies actively partnered with a vendor.
func (r *Repository) ActiveCompanyIDs(ctx context.Context, vendorID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids, activeCompanyIDsQuery, vendorID)
	return ids, err
}

const activeCompanyIDsQuery = `SELECT company_id FROM partnerships WHERE vendor_id = $1 AND status = 'active'`
