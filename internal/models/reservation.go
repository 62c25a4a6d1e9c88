package models

import "time"

type Reservation struct {
	ID               string     `json:"id"`
	SpaceID          string     `json:"space_id"`
	BuyerID          string     `json:"buyer_id"`
	ProviderID       string     `json:"provider_id,omitempty"`
	VehicleRef       string     `json:"vehicle_ref,omitempty"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          time.Time  `json:"end_time"`
	Status           string     `json:"status"` // pending, accepted, rejected, confirmed, active, completed, cancelled
	PaymentStatus    string     `json:"payment_status"`
	PriceCents       int64      `json:"price_cents"`
	DiscountPercent  int        `json:"discount_percent"`
	RefundPercent    int        `json:"refund_percent,omitempty"`
	HoldToken        string     `json:"hold_token,omitempty"`
	SessionStartedAt *time.Time `json:"session_started_at,omitempty"`
	Comment          string     `json:"comment,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	Version          int64      `json:"version"`
}

// IsTerminal reports whether the reservation can no longer change.
func (r *Reservation) IsTerminal() bool {
	switch r.Status {
	case StatusRejected, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// EffectiveStatus возвращает статус для отображения. Активная сессия,
// вышедшая за пределы окна, считается просроченной только при чтении:
// в хранилище она остается active до подтверждения кода выезда.
func (r *Reservation) EffectiveStatus(now time.Time) string {
	if r.Status == StatusActive && now.After(r.EndTime) {
		return StatusOverdue
	}
	return r.Status
}

// Key identifies the reservation in client-side caches and event topics.
func (r *Reservation) Key() string {
	return "reservation:" + r.ID
}

// RecordVersion exposes the monotonic version for stale-write detection.
func (r *Reservation) RecordVersion() int64 {
	return r.Version
}
