package models

import "time"

type ParkingSpace struct {
	ID              string    `json:"id" yaml:"id"`
	Name            string    `json:"name" yaml:"name"`
	TotalSpots      int64     `json:"total_spots" yaml:"total_spots"`
	AvailableSpots  int64     `json:"available_spots" yaml:"available_spots"`
	IsOnline        bool      `json:"is_online" yaml:"is_online"`
	HourlyRateCents int64     `json:"hourly_rate_cents" yaml:"hourly_rate_cents"`
	DiscountPercent int       `json:"discount_percent" yaml:"discount_percent"`
	UpdatedAt       time.Time `json:"updated_at" yaml:"-"`
	Version         int64     `json:"version" yaml:"-"`
}

func (s *ParkingSpace) Key() string {
	return "space:" + s.ID
}

func (s *ParkingSpace) RecordVersion() int64 {
	return s.Version
}

// Hold является квитанцией на один занятый слот. Повторный возврат
// по той же квитанции ничего не меняет.
type Hold struct {
	Token         string     `json:"token"`
	SpaceID       string     `json:"space_id"`
	ReservationID string     `json:"reservation_id"`
	Released      bool       `json:"released"`
	CreatedAt     time.Time  `json:"created_at"`
	ReleasedAt    *time.Time `json:"released_at,omitempty"`
}
