package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"stoyanka/internal/models"
)

func (db *DB) UpsertSpace(ctx context.Context, s *models.ParkingSpace) error {
	if s.AvailableSpots == 0 && s.TotalSpots > 0 {
		s.AvailableSpots = s.TotalSpots
	}
	query := `
        INSERT INTO spaces (id, name, total_spots, available_spots, is_online, hourly_rate_cents, discount_percent, updated_at, version)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)
        ON CONFLICT(id) DO UPDATE SET
            name = excluded.name,
            total_spots = excluded.total_spots,
            hourly_rate_cents = excluded.hourly_rate_cents,
            discount_percent = excluded.discount_percent,
            updated_at = excluded.updated_at
    `
	_, err := db.ExecContext(ctx, query,
		s.ID, s.Name, s.TotalSpots, s.AvailableSpots, s.IsOnline,
		s.HourlyRateCents, s.DiscountPercent, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert space: %w", err)
	}
	return nil
}

func (db *DB) GetSpace(ctx context.Context, id string) (*models.ParkingSpace, error) {
	query := `SELECT id, name, total_spots, available_spots, is_online, hourly_rate_cents,
	                 discount_percent, updated_at, version
              FROM spaces WHERE id = ?`

	var s models.ParkingSpace
	err := db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.Name, &s.TotalSpots, &s.AvailableSpots, &s.IsOnline,
		&s.HourlyRateCents, &s.DiscountPercent, &s.UpdatedAt, &s.Version,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get space: %w", err)
	}
	return &s, nil
}

func (db *DB) GetSpaces(ctx context.Context) ([]*models.ParkingSpace, error) {
	query := `SELECT id, name, total_spots, available_spots, is_online, hourly_rate_cents,
	                 discount_percent, updated_at, version
              FROM spaces ORDER BY id`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get spaces: %w", err)
	}
	defer rows.Close()

	var spaces []*models.ParkingSpace
	for rows.Next() {
		s := &models.ParkingSpace{}
		err := rows.Scan(
			&s.ID, &s.Name, &s.TotalSpots, &s.AvailableSpots, &s.IsOnline,
			&s.HourlyRateCents, &s.DiscountPercent, &s.UpdatedAt, &s.Version,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan space: %w", err)
		}
		spaces = append(spaces, s)
	}
	return spaces, rows.Err()
}

// ReserveSpot атомарно списывает один слот и создает квитанцию.
// Условие available_spots > 0 внутри одного UPDATE гарантирует, что из
// двух конкурентных вызовов за последний слот выигрывает ровно один.
func (db *DB) ReserveSpot(ctx context.Context, spaceID string, hold *models.Hold) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	result, err := tx.ExecContext(ctx,
		`UPDATE spaces SET available_spots = available_spots - 1, version = version + 1, updated_at = ?
		 WHERE id = ? AND available_spots > 0`,
		now, spaceID,
	)
	if err != nil {
		return fmt.Errorf("failed to decrement spots: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM spaces WHERE id = ?`, spaceID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check space existence: %w", err)
		}
		if exists == 0 {
			return ErrNotFound
		}
		return ErrOutOfStock
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO holds (token, space_id, reservation_id, released, created_at) VALUES (?, ?, ?, 0, ?)`,
		hold.Token, spaceID, hold.ReservationID, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert hold: %w", err)
	}

	hold.SpaceID = spaceID
	hold.CreatedAt = now
	return tx.Commit()
}

// ReleaseHold возвращает слот по квитанции. Возврат срабатывает не более
// одного раза: повторный вызов с тем же токеном ничего не меняет.
// Возвращает true, если слот действительно был возвращен.
func (db *DB) ReleaseHold(ctx context.Context, token string) (bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	result, err := tx.ExecContext(ctx,
		`UPDATE holds SET released = 1, released_at = ? WHERE token = ? AND released = 0`,
		now, token,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark hold released: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM holds WHERE token = ?`, token).Scan(&exists); err != nil {
			return false, fmt.Errorf("failed to check hold existence: %w", err)
		}
		if exists == 0 {
			return false, ErrNotFound
		}
		// Уже возвращен ранее
		return false, tx.Commit()
	}

	var spaceID string
	if err := tx.QueryRowContext(ctx, `SELECT space_id FROM holds WHERE token = ?`, token).Scan(&spaceID); err != nil {
		return false, fmt.Errorf("failed to read hold space: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE spaces SET available_spots = available_spots + 1, version = version + 1, updated_at = ?
		 WHERE id = ? AND available_spots < total_spots`,
		now, spaceID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to increment spots: %w", err)
	}

	return true, tx.Commit()
}

// SetSpaceOnline переключает видимость без изменения счетчиков.
// Возвращает true, если значение действительно изменилось.
func (db *DB) SetSpaceOnline(ctx context.Context, spaceID string, online bool) (bool, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE spaces SET is_online = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND is_online != ?`,
		online, time.Now(), spaceID, online,
	)
	if err != nil {
		return false, fmt.Errorf("failed to set space online: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		var exists int
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM spaces WHERE id = ?`, spaceID).Scan(&exists); err != nil {
			return false, fmt.Errorf("failed to check space existence: %w", err)
		}
		if exists == 0 {
			return false, ErrNotFound
		}
		return false, nil
	}
	return true, nil
}

func (db *DB) GetHold(ctx context.Context, token string) (*models.Hold, error) {
	query := `SELECT token, space_id, COALESCE(reservation_id, ''), released, created_at, released_at
              FROM holds WHERE token = ?`

	var h models.Hold
	var releasedAt sql.NullTime
	err := db.QueryRowContext(ctx, query, token).Scan(
		&h.Token, &h.SpaceID, &h.ReservationID, &h.Released, &h.CreatedAt, &releasedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hold: %w", err)
	}
	if releasedAt.Valid {
		h.ReleasedAt = &releasedAt.Time
	}
	return &h, nil
}
