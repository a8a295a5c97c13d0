package partnership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/semanticallynull/ridemarket-backend/user"
)

var ErrInvalidPair = errors.New("partnership requires one company and one vendor")

// Store is the persistence the Resolver reads and writes partnerships through.
type Store interface {
	Create(ctx context.Context, companyID, vendorID uuid.UUID) (Partnership, error)
	ActiveByCompany(ctx context.Context, companyID uuid.UUID) ([]Partnership, error)
	ActiveByVendor(ctx context.Context, vendorID uuid.UUID) ([]Partnership, error)
	ActiveVendorIDs(ctx context.Context, companyID uuid.UUID) ([]uuid.UUID, error)
	ActiveCompanyIDs(ctx context.Context, vendorID uuid.UUID) ([]uuid.UUID, error)
}

type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (user.User, error)
	ListByType(ctx context.Context, t user.Type) ([]user.User, error)
}

// Resolver answers which actors may exchange booking requests.
type Resolver struct {
	store  Store
	users  Users
	logger *slog.Logger
}

func NewResolver(store Store, users Users, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, users: users, logger: logger}
}

func (r *Resolver) ActiveVendorPartners(ctx context.Context, companyID uuid.UUID) (Set, error) {
	ids, err := r.store.ActiveVendorIDs(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return NewSet(ids...), nil
}

func (r *Resolver) ActiveCompanyPartners(ctx context.Context, vendorID uuid.UUID) (Set, error) {
	ids, err := r.store.ActiveCompanyIDs(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	return NewSet(ids...), nil
}

// AvailableVendorPartners returns every vendor the company is not yet actively partnered with.
func (r *Resolver) AvailableVendorPartners(ctx context.Context, companyID uuid.UUID) ([]user.User, error) {
	partners, err := r.ActiveVendorPartners(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return r.without(ctx, user.Vendor, partners)
}

// AvailableCompanyPartners returns every company the vendor is not yet actively partnered with.
func (r *Resolver) AvailableCompanyPartners(ctx context.Context, vendorID uuid.UUID) ([]user.User, error) {
	partners, err := r.ActiveCompanyPartners(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	return r.without(ctx, user.Company, partners)
}

func (r *Resolver) without(ctx context.Context, t user.Type, exclude Set) ([]user.User, error) {
	all, err := r.users.ListByType(ctx, t)
	if err != nil {
		return nil, err
	}
	available := make([]user.User, 0, len(all))
	for _, u := range all {
		if !exclude.Has(u.ID) {
			available = append(available, u)
		}
	}
	return available, nil
}

// CurrentPartnerships returns the active partnerships of u from its own side.
func (r *Resolver) CurrentPartnerships(ctx context.Context, u user.User) ([]Partnership, error) {
	if u.Type == user.Company {
		return r.store.ActiveByCompany(ctx, u.ID)
	}
	return r.store.ActiveByVendor(ctx, u.ID)
}

// AvailablePartners returns the counterparts u could still partner with.
func (r *Resolver) AvailablePartners(ctx context.Context, u user.User) ([]user.User, error) {
	if u.Type == user.Company {
		return r.AvailableVendorPartners(ctx, u.ID)
	}
	return r.AvailableCompanyPartners(ctx, u.ID)
}

// Connect creates an active partnership after checking both sides have the right type.
func (r *Resolver) Connect(ctx context.Context, companyID, vendorID uuid.UUID) (Partnership, error) {
	company, err := r.users.GetByID(ctx, companyID)
	if err != nil {
		return Partnership{}, fmt.Errorf("company %s: %w", companyID, err)
	}
	vendor, err := r.users.GetByID(ctx, vendorID)
	if err != nil {
		return Partnership{}, fmt.Errorf("vendor %s: %w", vendorID, err)
	}
	if company.Type != user.Company || vendor.Type != user.Vendor {
		return Partnership{}, ErrInvalidPair
	}
	return r.store.Create(ctx, companyID, vendorID)
}

// Bootstrap partners a newly registered actor with every existing counterpart actor.
// Pairs that already exist are skipped. It returns the number of partnerships created.
func (r *Resolver) Bootstrap(ctx context.Context, u user.User) (int, error) {
	counterparts, err := r.users.ListByType(ctx, u.Type.Counterpart())
	if err != nil {
		return 0, err
	}

	created := 0
	for _, other := range counterparts {
		companyID, vendorID := u.ID, other.ID
		if u.Type == user.Vendor {
			companyID, vendorID = other.ID, u.ID
		}
		_, err := r.store.Create(ctx, companyID, vendorID)
		if errors.Is(err, ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("partner %s with %s: %w", u.ID, other.ID, err)
		}
		created++
	}

	r.logger.InfoContext(ctx, "bootstrapped partnerships",
		"user_id", u.ID, "user_type", u.Type.String(), "created", created)
	return created, nil
}
