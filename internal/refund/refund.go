package refund

import (
	"errors"
	"time"
)

// ErrCancellationWindowClosed отмена запрещена менее чем за час до начала
var ErrCancellationWindowClosed = errors.New("cancellation window closed")

// Percent возвращает процент возврата при отмене в момент now брони,
// начинающейся в start. Чистая функция от двух моментов времени:
//
//	> 3 часов до начала  — 60%
//	(2, 3] часа          — 40%
//	(1, 2] часа          — 10%
//	<= 1 часа            — отмена не допускается
func Percent(now, start time.Time) (int, error) {
	lead := start.Sub(now)

	switch {
	case lead > 3*time.Hour:
		return 60, nil
	case lead > 2*time.Hour:
		return 40, nil
	case lead > time.Hour:
		return 10, nil
	default:
		return 0, ErrCancellationWindowClosed
	}
}
