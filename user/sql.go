package user

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

var (
	ErrNotFound      = errors.New("user not found")
	ErrEmailTaken    = errors.New("email already registered")
	ErrInvalidFields = errors.New("invalid user fields")
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (User, error) {
	var u User
	err := r.db.GetContext(ctx, &u, getByIDQuery, id)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

const getByIDQuery = `SELECT * FROM users WHERE id = $1`

// ListByType returns every user of the given type ordered by display name.
func (r *Repository) ListByType(ctx context.Context, t Type) ([]User, error) {
	query := listCompaniesQuery
	if t == Vendor {
		query = listVendorsQuery
	}
	users := []User{}
	err := r.db.SelectContext(ctx, &users, query)
	return users, err
}

const listCompaniesQuery = `SELECT * FROM users WHERE user_type = 'company' ORDER BY company_name ASC`

const listVendorsQuery = `SELECT * FROM users WHERE user_type = 'vendor' ORDER BY vendor_name ASC`

// Create inserts u and fills in the generated columns.
func (r *Repository) Create(ctx context.Context, u *User) error {
	u.Email = strings.TrimSpace(u.Email)
	if u.Email == "" {
		return ErrInvalidFields
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}

	err := r.db.GetContext(ctx, u, createQuery,
		u.ID, u.Email, u.Type, u.CompanyName, u.VendorName, u.Phone, u.Address)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

const createQuery = `
INSERT INTO users (id, email, user_type, company_name, vendor_name, phone, address, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
RETURNING *
`
