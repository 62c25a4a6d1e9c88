package models

import "time"

// Challenge is a one-time code gating a single handoff phase of a
// reservation. Check-in and check-out are independent instances with
// their own expiry and attempt budget.
type Challenge struct {
	ReservationID     string     `json:"reservation_id"`
	Phase             string     `json:"phase"` // check_in, check_out
	Code              string     `json:"code"`
	IssuedAt          time.Time  `json:"issued_at"`
	ExpiresAt         time.Time  `json:"expires_at"`
	ConsumedAt        *time.Time `json:"consumed_at,omitempty"`
	AttemptsRemaining int        `json:"attempts_remaining"`
}

// Pending reports whether the challenge still awaits verification.
func (c *Challenge) Pending(now time.Time) bool {
	return c.ConsumedAt == nil && c.AttemptsRemaining > 0 && now.Before(c.ExpiresAt)
}
