package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	*sql.DB
	log zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	// Создаем директорию для БД, если её нет
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite допускает одного писателя; одно соединение исключает
	// SQLITE_BUSY при конкурентных захватах слотов.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	var dbLogger zerolog.Logger
	if logger != nil {
		dbLogger = logger.With().Str("component", "database").Logger()
	}
	dbLogger.Info().Str("path", path).Msg("database initialized")

	return &DB{DB: db, log: dbLogger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		// Таблица парковок: счетчик свободных слотов принадлежит только леджеру
		`CREATE TABLE IF NOT EXISTS spaces (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            total_spots INTEGER NOT NULL,
            available_spots INTEGER NOT NULL,
            is_online BOOLEAN NOT NULL DEFAULT 1,
            hourly_rate_cents INTEGER NOT NULL DEFAULT 0,
            discount_percent INTEGER NOT NULL DEFAULT 0,
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            version INTEGER NOT NULL DEFAULT 1,
            CHECK (available_spots >= 0),
            CHECK (available_spots <= total_spots)
        )`,
		// Таблица бронирований
		`CREATE TABLE IF NOT EXISTS reservations (
            id TEXT PRIMARY KEY,
            space_id TEXT NOT NULL REFERENCES spaces(id),
            buyer_id TEXT NOT NULL,
            provider_id TEXT,
            vehicle_ref TEXT,
            start_time DATETIME NOT NULL,
            end_time DATETIME NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            payment_status TEXT NOT NULL DEFAULT 'unpaid',
            price_cents INTEGER NOT NULL DEFAULT 0,
            discount_percent INTEGER NOT NULL DEFAULT 0,
            refund_percent INTEGER NOT NULL DEFAULT 0,
            hold_token TEXT,
            session_started_at DATETIME,
            comment TEXT,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            version INTEGER NOT NULL DEFAULT 1,
            CHECK (end_time > start_time)
        )`,
		// Квитанции на занятые слоты; released гарантирует идемпотентный возврат
		`CREATE TABLE IF NOT EXISTS holds (
            token TEXT PRIMARY KEY,
            space_id TEXT NOT NULL REFERENCES spaces(id),
            reservation_id TEXT,
            released BOOLEAN NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            released_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_reservations_space_id ON reservations(space_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_buyer_id ON reservations(buyer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_provider_id ON reservations(provider_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_status ON reservations(status)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_start_time ON reservations(start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_holds_space_id ON holds(space_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) PingContext(ctx context.Context) error {
	return db.DB.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.DB.Close()
}
