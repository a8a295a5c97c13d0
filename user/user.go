// Package user holds the actors of the marketplace: companies that request rides and vendors
// that fulfil them.
package user

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

type Type int

const (
	Company Type = iota
	Vendor
)

var typeNames = [...]string{"company", "vendor"}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return "unknown"
	}
	return typeNames[t]
}

// Counterpart returns the actor type on the other side of a partnership.
func (t Type) Counterpart() Type {
	if t == Company {
		return Vendor
	}
	return Company
}

// ParseType parses the wire and database representation of an actor type.
func ParseType(s string) (Type, error) {
	switch s {
	case "company":
		return Company, nil
	case "vendor":
		return Vendor, nil
	}
	return 0, fmt.Errorf("invalid user type %q", s)
}

func (t Type) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Type) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t *Type) Scan(i any) error {
	switch v := i.(type) {
	case string:
		parsed, err := ParseType(v)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	case []byte:
		return t.Scan(string(v))
	}
	return fmt.Errorf("cannot scan %T into user.Type", i)
}

func (t Type) Value() (driver.Value, error) {
	return t.String(), nil
}

// User is a company or vendor account. Only the name matching Type is set.
type User struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Email       string    `db:"email" json:"email"`
	Type        Type      `db:"user_type" json:"userType"`
	CompanyName *string   `db:"company_name" json:"companyName,omitempty"`
	VendorName  *string   `db:"vendor_name" json:"vendorName,omitempty"`
	Phone       *string   `db:"phone" json:"phone,omitempty"`
	Address     *string   `db:"address" json:"address,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// DisplayName is the company or vendor name, falling back to the email address.
func (u User) DisplayName() string {
	if u.Type == Company && u.CompanyName != nil {
		return *u.CompanyName
	}
	if u.Type == Vendor && u.VendorName != nil {
		return *u.VendorName
	}
	return u.Email
}
