package model

import "time"

// User is the entitlement projection of the platform user record. This
// service only reads it and writes the premium fields; everything else is
// owned by the user-management subsystem.
type User struct {
	ID    string
	Email string

	Premium       bool
	ExpireDate    *time.Time // nil until first activation
	PaymentStatus string
	PaymentDate   *time.Time
}

// PremiumNow evaluates the entitlement lazily: a premium flag with a past
// expiry reads as not premium. Callers that observe the downgrade persist
// it; there is no background sweep for plan expiry.
func (u *User) PremiumNow(now time.Time) bool {
	if !u.Premium {
		return false
	}
	if u.ExpireDate != nil && u.ExpireDate.Before(now) {
		return false
	}
	return true
}
