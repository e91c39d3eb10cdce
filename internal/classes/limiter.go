package classes

import "sync"

// studentLocks serialises lifecycle calls for one student inside this process.
// Two API instances can still race; the database is the source of truth.
// An entry lives only while someone holds or waits for it.
type studentLocks struct {
	mu   sync.Mutex
	byID map[int64]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newStudentLocks() *studentLocks {
	return &studentLocks{byID: make(map[int64]*lockEntry)}
}

func (l *studentLocks) lock(studentID int64) func() {
	l.mu.Lock()
	e, ok := l.byID[studentID]
	if !ok {
		e = &lockEntry{}
		l.byID[studentID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			l.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(l.byID, studentID)
			}
			l.mu.Unlock()
		})
	}
}

// size is the number of students with a live entry.
func (l *studentLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byID)
}
