package provenance

import (
	"fmt"
	"sync"
)

// lockSet hands out one mutex per entity key. Entries are reference counted
// and dropped when the last holder releases, so the map stays small.
// The zero value is ready to use.
type lockSet struct {
	mu    sync.Mutex
	locks map[string]*entityLock
}

type entityLock struct {
	mu   sync.Mutex
	refs int
}

func (s *lockSet) lock(key string) (unlock func()) {
	s.mu.Lock()
	if s.locks == nil {
		s.locks = make(map[string]*entityLock)
	}
	l, ok := s.locks[key]
	if !ok {
		l = &entityLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

func batchKey(id BatchID) string     { return fmt.Sprintf("batch:%d", id) }
func productKey(id ProductID) string { return fmt.Sprintf("product:%d", id) }
