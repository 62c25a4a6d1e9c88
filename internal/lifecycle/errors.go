package lifecycle

import "errors"

var (
	// ErrInvalidTransition переход не разрешен из текущего статуса
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrPaymentRequired заезд до оплаты невозможен
	ErrPaymentRequired = errors.New("payment required")

	// ErrInvalidWindow окно бронирования некорректно
	ErrInvalidWindow = errors.New("invalid booking window")
)
