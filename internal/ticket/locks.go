package ticket

import "sync"

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Locks hands out a mutex per ticket ID so that all processing for one
// ticket runs serially while unrelated tickets proceed in parallel.
// Entries are reference counted and removed once the last holder unlocks,
// so the registry never grows past the number of in-flight tickets.
type Locks struct {
	mu      sync.Mutex
	entries map[int64]*lockEntry
}

func NewLocks() *Locks {
	return &Locks{entries: make(map[int64]*lockEntry)}
}

// Lock acquires the mutex for the given ticket and returns the matching
// unlock function.
func (l *Locks) Lock(ticketID int64) (unlock func()) {
	l.mu.Lock()
	e, ok := l.entries[ticketID]
	if !ok {
		e = &lockEntry{}
		l.entries[ticketID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, ticketID)
		}
		l.mu.Unlock()
	}
}
