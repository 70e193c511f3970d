package entity

import "time"

// CustomType is an admin-approved, optionally time-bounded addition to the
// donation-purpose menu.
type CustomType struct {
	Description string     `json:"description" bson:"description"`
	AddedBy     string     `json:"added_by" bson:"added_by"`
	ApprovedBy  string     `json:"approved_by" bson:"approved_by"`
	ApprovedOn  time.Time  `json:"approved_on" bson:"approved_on"`
	Expires     *time.Time `json:"expires,omitempty" bson:"expires,omitempty"`
}

// Active reports whether the type should appear on the menu: approved and
// not yet expired. A nil expiry never expires.
func (c CustomType) Active(now time.Time) bool {
	if c.ApprovedOn.IsZero() {
		return false
	}
	return c.Expires == nil || c.Expires.After(now)
}

// Expired reports whether a set expiry has passed.
func (c CustomType) Expired(now time.Time) bool {
	return c.Expires != nil && c.Expires.Before(now)
}
