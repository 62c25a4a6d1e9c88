package reconcile

import (
	"time"

	"stoyanka/internal/models"
)

// Tier classifies a reservation for countdown display.
type Tier string

const (
	// TierNone статус без обратного отсчета
	TierNone Tier = "none"
	// TierUpcoming оплачено, сессия еще не началась; цель — начало окна
	TierUpcoming Tier = "upcoming"
	// TierRunning сессия идет, до конца далеко
	TierRunning Tier = "running"
	// TierEndingSoon сессия идет, конец внутри окна предупреждения
	TierEndingSoon Tier = "ending_soon"
	// TierOverdue сессия идет, окно уже закончилось
	TierOverdue Tier = "overdue"
)

// Classify возвращает остаток времени и уровень предупреждения как
// чистую функцию от (now, снимок брони). Никаких накопителей: после
// паузы клиента пересчет от тех же таймстемпов дает тот же результат.
func Classify(now time.Time, r *models.Reservation, endingSoonWindow time.Duration) (time.Duration, Tier) {
	if r == nil {
		return 0, TierNone
	}
	if endingSoonWindow <= 0 {
		endingSoonWindow = time.Duration(models.DefaultEndingSoonWindow) * time.Minute
	}

	switch r.Status {
	case models.StatusConfirmed:
		return r.StartTime.Sub(now), TierUpcoming
	case models.StatusActive:
		remaining := r.EndTime.Sub(now)
		switch {
		case remaining <= 0:
			return remaining, TierOverdue
		case remaining <= endingSoonWindow:
			return remaining, TierEndingSoon
		default:
			return remaining, TierRunning
		}
	default:
		return 0, TierNone
	}
}
