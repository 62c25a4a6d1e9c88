package worker

import (
	"context"
	"testing"
	"time"

	"stoyanka/internal/database"
	"stoyanka/internal/events"
	"stoyanka/internal/ledger"
	"stoyanka/internal/lifecycle"
	"stoyanka/internal/models"
	"stoyanka/internal/otp"
	"stoyanka/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper_ExpiresStalePending(t *testing.T) {
	logger := zerolog.Nop()

	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, db.UpsertSpace(ctx, &models.ParkingSpace{
		ID: "lot-1", Name: "Test Lot", TotalSpots: 2, IsOnline: true, HourlyRateCents: 10000,
	}))

	bus := events.NewBus()
	led := ledger.New(db, bus, &logger)
	otpSvc := otp.NewService(repository.NewMemoryChallengeRepository(), time.Minute, time.Minute, 5, &logger)
	coord := lifecycle.NewCoordinator(db, led, otpSvc, bus, &logger)

	// Окно уже началось, решения продавца нет
	r, err := coord.CreateReservation(ctx, lifecycle.CreateRequest{
		SpaceID:   "lot-1",
		BuyerID:   "buyer-1",
		StartTime: time.Now().Add(-time.Hour),
		EndTime:   time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	sweeper := NewSweeper(coord, 20*time.Millisecond, &logger)
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		sweeper.Run(runCtx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := coord.GetReservation(ctx, r.ID)
		require.NoError(t, err)
		if got.Status == models.StatusRejected {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	got, err := coord.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, got.Status)

	// Слот вернулся в оборот
	s, err := db.GetSpace(ctx, "lot-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), s.AvailableSpots)
}
