package domain

import "time"

// OTPTTL is how long a one-time password stays valid after creation.
const OTPTTL = 10 * time.Minute

// OTP is a short-lived numeric code proving email ownership. Several rows may
// coexist per email; only the most recently created one counts.
type OTP struct {
	ID        int64
	Email     string
	Code      string
	CreatedAt time.Time
}

// Expired reports whether the code has outlived its ten minute window.
func (o OTP) Expired(now time.Time) bool {
	return now.Sub(o.CreatedAt) > OTPTTL
}
