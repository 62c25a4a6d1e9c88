package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"stoyanka/internal/models"
)

const reservationColumns = `id, space_id, buyer_id, COALESCE(provider_id, ''), COALESCE(vehicle_ref, ''),
	start_time, end_time, status, payment_status, price_cents, discount_percent,
	refund_percent, COALESCE(hold_token, ''), session_started_at, COALESCE(comment, ''),
	created_at, updated_at, version`

func (db *DB) CreateReservation(ctx context.Context, r *models.Reservation) error {
	query := `INSERT INTO reservations (
				id, space_id, buyer_id, provider_id, vehicle_ref, start_time, end_time,
				status, payment_status, price_cents, discount_percent, refund_percent,
				hold_token, session_started_at, comment, created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	_, err := db.ExecContext(ctx, query,
		r.ID,
		r.SpaceID,
		r.BuyerID,
		nullable(r.ProviderID),
		nullable(r.VehicleRef),
		r.StartTime,
		r.EndTime,
		r.Status,
		r.PaymentStatus,
		r.PriceCents,
		r.DiscountPercent,
		r.RefundPercent,
		nullable(r.HoldToken),
		r.SessionStartedAt,
		nullable(r.Comment),
		now,
		now,
		1,
	)
	if err != nil {
		return fmt.Errorf("failed to create reservation: %w", err)
	}

	r.CreatedAt = now
	r.UpdatedAt = now
	r.Version = 1
	return nil
}

func (db *DB) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	r, err := scanReservation(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return r, nil
}

// UpdateReservationWithVersion записывает снимок брони по принципу
// compare-and-set: запись проходит только если версия в базе совпадает
// с r.Version. При успехе версия в r увеличивается.
func (db *DB) UpdateReservationWithVersion(ctx context.Context, r *models.Reservation) error {
	query := `UPDATE reservations SET
				provider_id = ?, status = ?, payment_status = ?, refund_percent = ?,
				session_started_at = ?, comment = ?, version = version + 1, updated_at = ?
			  WHERE id = ? AND version = ?`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		nullable(r.ProviderID),
		r.Status,
		r.PaymentStatus,
		r.RefundPercent,
		r.SessionStartedAt,
		nullable(r.Comment),
		now,
		r.ID,
		r.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update reservation: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		var exists int
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reservations WHERE id = ?`, r.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check reservation existence: %w", err)
		}
		if exists == 0 {
			return ErrNotFound
		}
		return ErrStaleWrite
	}

	r.Version++
	r.UpdatedAt = now
	return nil
}

func (db *DB) GetReservationsByBuyer(ctx context.Context, buyerID string) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE buyer_id = ? ORDER BY start_time DESC`
	return db.queryReservations(ctx, query, buyerID)
}

func (db *DB) GetReservationsByProvider(ctx context.Context, providerID string) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE provider_id = ? ORDER BY start_time DESC`
	return db.queryReservations(ctx, query, providerID)
}

func (db *DB) GetReservationsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
	          WHERE start_time >= ? AND start_time <= ? ORDER BY start_time ASC`
	return db.queryReservations(ctx, query, start, end)
}

// GetStalePending возвращает заявки pending, окно которых началось, а
// решение продавца так и не пришло.
func (db *DB) GetStalePending(ctx context.Context, before time.Time) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
	          WHERE status = ? AND start_time < ? ORDER BY start_time ASC`
	return db.queryReservations(ctx, query, models.StatusPending, before)
}

func (db *DB) queryReservations(ctx context.Context, query string, args ...any) ([]*models.Reservation, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer rows.Close()

	var reservations []*models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, r)
	}
	return reservations, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*models.Reservation, error) {
	r := &models.Reservation{}
	var sessionStartedAt sql.NullTime
	err := row.Scan(
		&r.ID, &r.SpaceID, &r.BuyerID, &r.ProviderID, &r.VehicleRef,
		&r.StartTime, &r.EndTime, &r.Status, &r.PaymentStatus, &r.PriceCents,
		&r.DiscountPercent, &r.RefundPercent, &r.HoldToken, &sessionStartedAt,
		&r.Comment, &r.CreatedAt, &r.UpdatedAt, &r.Version,
	)
	if err != nil {
		return nil, err
	}
	if sessionStartedAt.Valid {
		r.SessionStartedAt = &sessionStartedAt.Time
	}
	return r, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
