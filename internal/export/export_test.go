package export

import (
	"context"
	"testing"
	"time"

	"stoyanka/internal/database"
	"stoyanka/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestReservations_WritesWorkbook(t *testing.T) {
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, db.UpsertSpace(ctx, &models.ParkingSpace{
		ID: "lot-1", Name: "Test Lot", TotalSpots: 5, IsOnline: true, HourlyRateCents: 10000,
	}))

	start := time.Date(2025, 7, 10, 10, 0, 0, 0, time.UTC)
	r := &models.Reservation{
		ID:            uuid.NewString(),
		SpaceID:       "lot-1",
		BuyerID:       "buyer-1",
		StartTime:     start,
		EndTime:       start.Add(2 * time.Hour),
		Status:        models.StatusCompleted,
		PaymentStatus: models.PaymentPaid,
		PriceCents:    20000,
		RefundPercent: 0,
		Comment:       "ok",
	}
	require.NoError(t, db.CreateReservation(ctx, r))

	exporter := New(db, t.TempDir(), &logger)
	path, err := exporter.Reservations(ctx, start.AddDate(0, 0, -1), start.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.FileExists(t, path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	// Заголовок и одна строка данных
	id, err := f.GetCellValue("Reservations", "A3")
	require.NoError(t, err)
	assert.Equal(t, r.ID, id)

	status, err := f.GetCellValue("Reservations", "G3")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, status)

	price, err := f.GetCellValue("Reservations", "I3")
	require.NoError(t, err)
	assert.Equal(t, "200", price)
}

func TestReservations_EmptyPeriod(t *testing.T) {
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	defer db.Close()

	exporter := New(db, t.TempDir(), &logger)
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	path, err := exporter.Reservations(context.Background(), from, from.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.FileExists(t, path)
}
