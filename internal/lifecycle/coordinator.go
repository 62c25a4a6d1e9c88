package lifecycle

import (
	"context"
	"fmt"
	"time"

	"stoyanka/internal/domain"
	"stoyanka/internal/ledger"
	"stoyanka/internal/metrics"
	"stoyanka/internal/models"
	"stoyanka/internal/otp"
	"stoyanka/internal/refund"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Coordinator владеет статусом брони и всеми разрешенными переходами.
// Переходы одной брони сериализуются блокировкой по id; версия записи
// проверяется при каждой записи (compare-and-set).
type Coordinator struct {
	repo   domain.Repository
	ledger *ledger.Ledger
	otp    *otp.Service
	bus    domain.EventPublisher
	logger zerolog.Logger
	locks  *reservationLocks
	now    func() time.Time
}

func NewCoordinator(repo domain.Repository, led *ledger.Ledger, otpSvc *otp.Service, bus domain.EventPublisher, logger *zerolog.Logger) *Coordinator {
	var l zerolog.Logger
	if logger != nil {
		l = logger.With().Str("component", "lifecycle").Logger()
	}
	return &Coordinator{
		repo:   repo,
		ledger: led,
		otp:    otpSvc,
		bus:    bus,
		logger: l,
		locks:  newReservationLocks(),
		now:    time.Now,
	}
}

// CreateRequest описывает запрос покупателя на бронь одного слота.
type CreateRequest struct {
	SpaceID    string
	BuyerID    string
	VehicleRef string
	StartTime  time.Time
	EndTime    time.Time
	Comment    string
}

// CreateReservation атомарно удерживает слот и создает заявку pending.
// Цена и скидка фиксируются из текущего предложения площадки и дальше
// не меняются. При нехватке мест возвращается database.ErrOutOfStock.
func (c *Coordinator) CreateReservation(ctx context.Context, req CreateRequest) (*models.Reservation, error) {
	if !req.EndTime.After(req.StartTime) {
		return nil, fmt.Errorf("%w: end_time must be after start_time", ErrInvalidWindow)
	}
	if req.EndTime.Before(c.now()) {
		return nil, fmt.Errorf("%w: window is entirely in the past", ErrInvalidWindow)
	}

	space, err := c.repo.GetSpace(ctx, req.SpaceID)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	holdToken, err := c.ledger.Reserve(ctx, req.SpaceID, id)
	if err != nil {
		return nil, err
	}

	r := &models.Reservation{
		ID:              id,
		SpaceID:         req.SpaceID,
		BuyerID:         req.BuyerID,
		VehicleRef:      req.VehicleRef,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		Status:          models.StatusPending,
		PaymentStatus:   models.PaymentUnpaid,
		PriceCents:      priceFor(space, req.StartTime, req.EndTime),
		DiscountPercent: space.DiscountPercent,
		HoldToken:       holdToken,
		Comment:         req.Comment,
	}

	if err := c.repo.CreateReservation(ctx, r); err != nil {
		// Компенсируем удержание, чтобы слот не завис
		if relErr := c.ledger.Release(ctx, req.SpaceID, holdToken); relErr != nil {
			c.logger.Error().Err(relErr).Str("hold_token", holdToken).Msg("compensating release failed")
		}
		return nil, err
	}

	metrics.IncTransition(models.StatusPending)
	c.bus.PublishReservationChanged(r)
	c.logger.Info().
		Str("reservation_id", r.ID).
		Str("space_id", r.SpaceID).
		Str("buyer_id", r.BuyerID).
		Msg("reservation created")
	return r, nil
}

// Accept переводит pending в accepted и выпускает код заезда.
func (c *Coordinator) Accept(ctx context.Context, reservationID, providerID string) (*models.Reservation, error) {
	unlock := c.locks.lock(reservationID)
	defer unlock()

	r, err := c.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if r.Status != models.StatusPending {
		return nil, fmt.Errorf("%w: cannot accept from %s", ErrInvalidTransition, r.Status)
	}

	r.Status = models.StatusAccepted
	r.ProviderID = providerID
	if err := c.commit(ctx, r); err != nil {
		return nil, err
	}

	if _, err := c.otp.Issue(ctx, r.ID, models.PhaseCheckIn); err != nil {
		c.logger.Error().Err(err).Str("reservation_id", r.ID).Msg("check-in otp issue failed")
	}
	return r, nil
}

// Reject переводит pending в rejected и возвращает слот.
func (c *Coordinator) Reject(ctx context.Context, reservationID, providerID, reason string) (*models.Reservation, error) {
	unlock := c.locks.lock(reservationID)
	defer unlock()

	r, err := c.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if r.Status != models.StatusPending {
		return nil, fmt.Errorf("%w: cannot reject from %s", ErrInvalidTransition, r.Status)
	}

	r.Status = models.StatusRejected
	r.ProviderID = providerID
	if reason != "" {
		r.Comment = reason
	}
	return c.finalize(ctx, r)
}

// Cancel отменяет бронь по инициативе покупателя. Процент возврата
// считается от времени до начала; менее чем за час отмена запрещена и
// статус не меняется.
func (c *Coordinator) Cancel(ctx context.Context, reservationID, reason string) (*models.Reservation, error) {
	unlock := c.locks.lock(reservationID)
	defer unlock()

	r, err := c.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if r.IsTerminal() {
		return nil, fmt.Errorf("%w: cannot cancel from %s", ErrInvalidTransition, r.Status)
	}

	percent, err := refund.Percent(c.now(), r.StartTime)
	if err != nil {
		return nil, err
	}

	r.Status = models.StatusCancelled
	r.RefundPercent = percent
	if reason != "" {
		r.Comment = reason
	}
	return c.finalize(ctx, r)
}

// MarkPaid фиксирует завершение оплаты, о котором сообщает внешний
// платежный компонент, и переводит accepted в confirmed (ожидание заезда).
func (c *Coordinator) MarkPaid(ctx context.Context, reservationID string) (*models.Reservation, error) {
	unlock := c.locks.lock(reservationID)
	defer unlock()

	r, err := c.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if r.Status != models.StatusAccepted {
		return nil, fmt.Errorf("%w: cannot mark paid from %s", ErrInvalidTransition, r.Status)
	}

	r.Status = models.StatusConfirmed
	r.PaymentStatus = models.PaymentPaid
	if err := c.commit(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// VerifyCheckIn проверяет первый код. Успех запускает сессию: статус
// active, таймер считается с момента подтверждения, а не с начала окна,
// и сразу выпускается код выезда.
func (c *Coordinator) VerifyCheckIn(ctx context.Context, reservationID, code string) (*models.Reservation, error) {
	unlock := c.locks.lock(reservationID)
	defer unlock()

	r, err := c.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	switch r.Status {
	case models.StatusConfirmed:
		// ok
	case models.StatusAccepted:
		return nil, ErrPaymentRequired
	default:
		return nil, fmt.Errorf("%w: cannot check in from %s", ErrInvalidTransition, r.Status)
	}

	if err := c.otp.Verify(ctx, reservationID, models.PhaseCheckIn, code); err != nil {
		return nil, err
	}

	now := c.now()
	r.Status = models.StatusActive
	r.SessionStartedAt = &now
	if err := c.commit(ctx, r); err != nil {
		return nil, err
	}

	if _, err := c.otp.Issue(ctx, r.ID, models.PhaseCheckOut); err != nil {
		c.logger.Error().Err(err).Str("reservation_id", r.ID).Msg("check-out otp issue failed")
	}
	return r, nil
}

// VerifyCheckOut проверяет второй код и завершает сессию. Просроченная
// active-бронь остается active до этого момента: поздняя легитимная
// верификация не должна гоняться с таймером.
func (c *Coordinator) VerifyCheckOut(ctx context.Context, reservationID, code string) (*models.Reservation, error) {
	unlock := c.locks.lock(reservationID)
	defer unlock()

	r, err := c.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if r.Status != models.StatusActive {
		return nil, fmt.Errorf("%w: cannot check out from %s", ErrInvalidTransition, r.Status)
	}

	if err := c.otp.Verify(ctx, reservationID, models.PhaseCheckOut, code); err != nil {
		return nil, err
	}

	r.Status = models.StatusCompleted
	return c.finalize(ctx, r)
}

// VerifyOtp направляет проверку кода в нужную фазу.
func (c *Coordinator) VerifyOtp(ctx context.Context, reservationID, phase, code string) (*models.Reservation, error) {
	switch phase {
	case models.PhaseCheckIn:
		return c.VerifyCheckIn(ctx, reservationID, code)
	case models.PhaseCheckOut:
		return c.VerifyCheckOut(ctx, reservationID, code)
	default:
		return nil, fmt.Errorf("%w: unknown phase %q", ErrInvalidTransition, phase)
	}
}

// ReissueOtp выпускает новый код взамен истекшего или исчерпанного.
// Доступно только выдающей стороне; новый код гасит прежний.
func (c *Coordinator) ReissueOtp(ctx context.Context, reservationID, phase string) (*models.Challenge, error) {
	unlock := c.locks.lock(reservationID)
	defer unlock()

	r, err := c.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	switch phase {
	case models.PhaseCheckIn:
		if r.Status != models.StatusAccepted && r.Status != models.StatusConfirmed {
			return nil, fmt.Errorf("%w: check-in code is not expected in %s", ErrInvalidTransition, r.Status)
		}
	case models.PhaseCheckOut:
		if r.Status != models.StatusActive {
			return nil, fmt.Errorf("%w: check-out code is not expected in %s", ErrInvalidTransition, r.Status)
		}
	default:
		return nil, fmt.Errorf("%w: unknown phase %q", ErrInvalidTransition, phase)
	}

	return c.otp.Issue(ctx, reservationID, phase)
}

// ExpirePending авто-отклоняет pending-заявки, окно которых началось без
// решения продавца. Просроченные active-сессии намеренно не трогаем.
func (c *Coordinator) ExpirePending(ctx context.Context) (int, error) {
	stale, err := c.repo.GetStalePending(ctx, c.now())
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, candidate := range stale {
		unlock := c.locks.lock(candidate.ID)
		r, err := c.repo.GetReservation(ctx, candidate.ID)
		if err != nil || r.Status != models.StatusPending {
			unlock()
			continue
		}
		r.Status = models.StatusRejected
		r.Comment = "expired: no provider decision before window start"
		if _, err := c.finalize(ctx, r); err != nil {
			c.logger.Error().Err(err).Str("reservation_id", r.ID).Msg("expire pending failed")
		} else {
			expired++
		}
		unlock()
	}
	return expired, nil
}

func (c *Coordinator) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	return c.repo.GetReservation(ctx, id)
}

func (c *Coordinator) GetReservationsByBuyer(ctx context.Context, buyerID string) ([]*models.Reservation, error) {
	return c.repo.GetReservationsByBuyer(ctx, buyerID)
}

func (c *Coordinator) GetReservationsByProvider(ctx context.Context, providerID string) ([]*models.Reservation, error) {
	return c.repo.GetReservationsByProvider(ctx, providerID)
}

// commit записывает снимок с проверкой версии и публикует событие.
func (c *Coordinator) commit(ctx context.Context, r *models.Reservation) error {
	if err := c.repo.UpdateReservationWithVersion(ctx, r); err != nil {
		return err
	}
	metrics.IncTransition(r.Status)
	c.bus.PublishReservationChanged(r)
	c.logger.Info().
		Str("reservation_id", r.ID).
		Str("status", r.Status).
		Int64("version", r.Version).
		Msg("reservation transitioned")
	return nil
}

// finalize фиксирует терминальный статус: запись, возврат слота,
// аннулирование кодов, событие.
func (c *Coordinator) finalize(ctx context.Context, r *models.Reservation) (*models.Reservation, error) {
	if err := c.commit(ctx, r); err != nil {
		return nil, err
	}

	if err := c.ledger.Release(ctx, r.SpaceID, r.HoldToken); err != nil {
		c.logger.Error().Err(err).
			Str("reservation_id", r.ID).
			Str("hold_token", r.HoldToken).
			Msg("slot release failed")
	}
	c.otp.Void(ctx, r.ID)
	return r, nil
}

// priceFor считает цену слота: почасовой тариф за округленное вверх
// число часов с учетом текущей скидки площадки.
func priceFor(space *models.ParkingSpace, start, end time.Time) int64 {
	hours := int64(end.Sub(start).Hours())
	if end.Sub(start)%time.Hour != 0 {
		hours++
	}
	if hours < 1 {
		hours = 1
	}
	gross := hours * space.HourlyRateCents
	return gross * int64(100-space.DiscountPercent) / 100
}
