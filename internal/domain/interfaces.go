package domain

import (
	"context"
	"time"

	"stoyanka/internal/models"
)

type Repository interface {
	GetReservation(ctx context.Context, id string) (*models.Reservation, error)
	CreateReservation(ctx context.Context, r *models.Reservation) error
	UpdateReservationWithVersion(ctx context.Context, r *models.Reservation) error
	GetReservationsByBuyer(ctx context.Context, buyerID string) ([]*models.Reservation, error)
	GetReservationsByProvider(ctx context.Context, providerID string) ([]*models.Reservation, error)
	GetReservationsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Reservation, error)
	GetStalePending(ctx context.Context, before time.Time) ([]*models.Reservation, error)

	GetSpace(ctx context.Context, id string) (*models.ParkingSpace, error)
	GetSpaces(ctx context.Context) ([]*models.ParkingSpace, error)
	UpsertSpace(ctx context.Context, s *models.ParkingSpace) error
	ReserveSpot(ctx context.Context, spaceID string, hold *models.Hold) error
	ReleaseHold(ctx context.Context, token string) (bool, error)
	SetSpaceOnline(ctx context.Context, spaceID string, online bool) (bool, error)
}

// ChallengeRepository stores at most one challenge per (reservation, phase).
type ChallengeRepository interface {
	GetChallenge(ctx context.Context, reservationID, phase string) (*models.Challenge, error)
	PutChallenge(ctx context.Context, ch *models.Challenge) error
	DeleteChallenge(ctx context.Context, reservationID, phase string) error
}

type EventPublisher interface {
	PublishReservationChanged(r *models.Reservation)
	PublishInventoryChanged(s *models.ParkingSpace)
}

// Fetcher is the read side a reconciling client polls against.
type Fetcher interface {
	FetchReservation(ctx context.Context, id string) (*models.Reservation, error)
	FetchSpace(ctx context.Context, id string) (*models.ParkingSpace, error)
}
