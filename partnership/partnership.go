// Package partnership links companies to the vendors allowed to receive their booking requests.
package partnership

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Partnership is unique per (CompanyID, VendorID).
type Partnership struct {
	ID        uuid.UUID `db:"id" json:"id"`
	CompanyID uuid.UUID `db:"company_id" json:"companyId"`
	VendorID  uuid.UUID `db:"vendor_id" json:"vendorId"`
	Status    Status    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Set is a set of actor identifiers.
type Set map[uuid.UUID]struct{}

func NewSet(ids ...uuid.UUID) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s Set) Has(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

func (s Set) Add(id uuid.UUID) {
	s[id] = struct{}{}
}

// Slice returns the members in a stable order.
func (s Set) Slice() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return slices.Compare(a[:], b[:])
	})
	return ids
}
