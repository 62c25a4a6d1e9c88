package models

const (
	StatusPending   = "pending"
	StatusAccepted  = "accepted"
	StatusRejected  = "rejected"
	StatusConfirmed = "confirmed"
	StatusActive    = "active"
	StatusOverdue   = "overdue"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

const (
	PaymentUnpaid  = "unpaid"
	PaymentPending = "pending"
	PaymentPaid    = "paid"
)

const (
	PhaseCheckIn  = "check_in"
	PhaseCheckOut = "check_out"
)

const (
	// OtpCodeLength длина числового кода подтверждения
	OtpCodeLength = 6

	// DefaultOtpAttempts количество попыток ввода кода
	DefaultOtpAttempts = 5

	// DefaultCheckInOtpTTL время жизни кода заезда в минутах
	DefaultCheckInOtpTTL = 30

	// DefaultCheckOutOtpTTL время жизни кода выезда в минутах
	DefaultCheckOutOtpTTL = 15

	// DefaultPollInterval интервал опроса сервера клиентом в секундах
	DefaultPollInterval = 3

	// DefaultEndingSoonWindow окно предупреждения перед концом сессии в минутах
	DefaultEndingSoonWindow = 15

	// DefaultSweepInterval интервал проверки просроченных заявок в минутах
	DefaultSweepInterval = 5

	// EventBufferSize размер буфера подписки на события
	EventBufferSize = 64
)
