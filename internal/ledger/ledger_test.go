package ledger

import (
	"context"
	"testing"

	"stoyanka/internal/database"
	"stoyanka/internal/events"
	"stoyanka/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLedger(t *testing.T) (*Ledger, *events.Bus, *database.DB) {
	t.Helper()
	logger := zerolog.Nop()

	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.UpsertSpace(context.Background(), &models.ParkingSpace{
		ID: "lot-1", Name: "Test Lot", TotalSpots: 2, IsOnline: true, HourlyRateCents: 10000,
	}))

	bus := events.NewBus()
	return New(db, bus, &logger), bus, db
}

func TestReserve_PublishesInventoryEvent(t *testing.T) {
	led, bus, _ := setupLedger(t)
	ctx := context.Background()

	sub := bus.Subscribe(events.SpaceTopic("lot-1"), 4)
	defer sub.Cancel()

	token, err := led.Reserve(ctx, "lot-1", "res-1")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	evt := <-sub.C
	assert.Equal(t, events.EventInventoryChanged, evt.Type)

	space, err := led.GetSpace(ctx, "lot-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), space.AvailableSpots)
}

func TestReserve_OutOfStockPassesThrough(t *testing.T) {
	led, _, _ := setupLedger(t)
	ctx := context.Background()

	_, err := led.Reserve(ctx, "lot-1", "res-1")
	require.NoError(t, err)
	_, err = led.Reserve(ctx, "lot-1", "res-2")
	require.NoError(t, err)

	_, err = led.Reserve(ctx, "lot-1", "res-3")
	assert.ErrorIs(t, err, database.ErrOutOfStock)
}

func TestRelease_Idempotent(t *testing.T) {
	led, _, _ := setupLedger(t)
	ctx := context.Background()

	token, err := led.Reserve(ctx, "lot-1", "res-1")
	require.NoError(t, err)

	require.NoError(t, led.Release(ctx, "lot-1", token))
	require.NoError(t, led.Release(ctx, "lot-1", token))

	space, err := led.GetSpace(ctx, "lot-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), space.AvailableSpots)

	// Пустой токен — no-op, а не ошибка
	assert.NoError(t, led.Release(ctx, "lot-1", ""))
}

func TestSetOnline_PublishesOnlyOnChange(t *testing.T) {
	led, bus, _ := setupLedger(t)
	ctx := context.Background()

	sub := bus.Subscribe(events.SpaceTopic("lot-1"), 4)
	defer sub.Cancel()

	space, err := led.SetOnline(ctx, "lot-1", false)
	require.NoError(t, err)
	assert.False(t, space.IsOnline)

	evt := <-sub.C
	assert.Equal(t, events.EventInventoryChanged, evt.Type)

	// Повтор без изменения не порождает событие
	_, err = led.SetOnline(ctx, "lot-1", false)
	require.NoError(t, err)

	select {
	case <-sub.C:
		t.Fatal("no event expected when the flag did not change")
	default:
	}
}
