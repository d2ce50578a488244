// Package keylock provides mutual exclusion scoped to a key.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Pool hands out one mutex per key. Mutexes are dropped once no goroutine holds or waits on them,
// so the pool stays proportional to the number of keys in use.
type Pool struct {
	mu    sync.Mutex
	locks map[int64]*entry
}

// New creates an empty pool.
func New() *Pool {
	return &Pool{locks: make(map[int64]*entry)}
}

// Lock blocks until the key's mutex is held and returns the function that releases it.
func (p *Pool) Lock(key int64) (unlock func()) {
	p.mu.Lock()
	e, ok := p.locks[key]
	if !ok {
		e = &entry{}
		p.locks[key] = e
	}
	e.refs++
	p.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()

			p.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(p.locks, key)
			}
			p.mu.Unlock()
		})
	}
}

// Len returns the number of keys currently held or awaited.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.locks)
}
