package database

import "errors"

var (
	// ErrOutOfStock свободных слотов не осталось
	ErrOutOfStock = errors.New("no available spots")

	// ErrStaleWrite версия записи изменилась между чтением и записью
	ErrStaleWrite = errors.New("stale write: version conflict")

	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("record not found")
)
