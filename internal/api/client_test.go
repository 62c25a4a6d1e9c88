package api

import (
	"context"
	"testing"
	"time"

	"stoyanka/internal/database"
	"stoyanka/internal/models"
	"stoyanka/internal/reconcile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_FetchReservation(t *testing.T) {
	f := setupServer(t)
	r := f.createReservation(t)

	client := NewClient(f.ts.URL, "secret", "extra")

	got, err := client.FetchReservation(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, int64(1), got.Version)

	_, err = client.FetchReservation(context.Background(), "missing")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestClient_FetchSpace(t *testing.T) {
	f := setupServer(t)

	client := NewClient(f.ts.URL, "secret", "extra")

	got, err := client.FetchSpace(context.Background(), "lot-1")
	require.NoError(t, err)
	assert.Equal(t, "lot-1", got.ID)
	assert.Equal(t, int64(2), got.TotalSpots)
}

func TestClient_Unauthorized(t *testing.T) {
	f := setupServer(t)

	client := NewClient(f.ts.URL, "wrong", "wrong")
	_, err := client.FetchSpace(context.Background(), "lot-1")
	assert.Error(t, err)
}

// Полный путь клиента: движок согласования поверх HTTP-клиента видит
// переход, выполненный на сервере.
func TestClient_FeedsReconcileEngine(t *testing.T) {
	f := setupServer(t)
	r := f.createReservation(t)
	ctx := context.Background()

	client := NewClient(f.ts.URL, "secret", "extra")
	engine := reconcile.NewEngine(client, f.bus, time.Hour, 15*time.Minute, nil)
	defer engine.Close()

	require.NoError(t, engine.WatchReservation(ctx, r.ID))

	view, ok := engine.GetReservation(r.ID)
	require.True(t, ok)
	assert.Equal(t, models.StatusPending, view.Status)

	// Сервер принимает заявку; push-событие доводит локальный снимок
	_, err := f.coord.Accept(ctx, r.ID, "provider-1")
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if v, ok := engine.GetReservation(r.ID); ok && v.Status == models.StatusAccepted {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("engine did not converge to the accepted snapshot")
}
