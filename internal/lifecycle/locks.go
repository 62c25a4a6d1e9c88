package lifecycle

import "sync"

// reservationLocks serializes transitions per reservation id. Different
// reservations transition independently.
type reservationLocks struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func newReservationLocks() *reservationLocks {
	return &reservationLocks{locks: make(map[string]*entry)}
}

// lock acquires the per-id mutex and returns its unlock func.
func (l *reservationLocks) lock(id string) func() {
	l.mu.Lock()
	e, ok := l.locks[id]
	if !ok {
		e = &entry{}
		l.locks[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
