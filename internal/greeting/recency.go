package greeting

import (
	"container/list"
	"sync"
	"time"
)

// recencyMap remembers which conversations were greeted recently. Entries
// expire after the TTL, and the map evicts the oldest entry once maxSize is
// reached, so memory stays bounded no matter how many contacts write in.
type recencyMap struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	order   *list.List
	index   map[string]*list.Element
	now     func() time.Time
}

type recencyEntry struct {
	key string
	at  time.Time
}

func newRecencyMap(ttl time.Duration, maxSize int) *recencyMap {
	return &recencyMap{
		ttl:     ttl,
		maxSize: maxSize,
		order:   list.New(),
		index:   make(map[string]*list.Element),
		now:     time.Now,
	}
}

// Touch marks key as greeted now. It returns true when the key was already
// present and unexpired, meaning the caller should skip the greeting.
func (m *recencyMap) Touch(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.pruneLocked(now)

	if el, ok := m.index[key]; ok {
		el.Value.(*recencyEntry).at = now
		m.order.MoveToBack(el)
		return true
	}

	for m.order.Len() >= m.maxSize {
		m.evictOldestLocked()
	}
	m.index[key] = m.order.PushBack(&recencyEntry{key: key, at: now})
	return false
}

func (m *recencyMap) pruneLocked(now time.Time) {
	for {
		front := m.order.Front()
		if front == nil {
			return
		}
		e := front.Value.(*recencyEntry)
		if now.Sub(e.at) < m.ttl {
			return
		}
		m.evictOldestLocked()
	}
}

func (m *recencyMap) evictOldestLocked() {
	front := m.order.Front()
	if front == nil {
		return
	}
	e := m.order.Remove(front).(*recencyEntry)
	delete(m.index, e.key)
}
