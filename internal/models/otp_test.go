package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChallengePending(t *testing.T) {
	now := time.Now()
	ch := Challenge{
		Phase:             PhaseCheckIn,
		Code:              "482913",
		IssuedAt:          now,
		ExpiresAt:         now.Add(30 * time.Minute),
		AttemptsRemaining: 5,
	}
	assert.True(t, ch.Pending(now))

	// Истекший, исчерпанный или погашенный вызов не ожидает проверки
	assert.False(t, ch.Pending(now.Add(31*time.Minute)))

	exhausted := ch
	exhausted.AttemptsRemaining = 0
	assert.False(t, exhausted.Pending(now))

	consumed := ch
	consumed.ConsumedAt = &now
	assert.False(t, consumed.Pending(now))
}
