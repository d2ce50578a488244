// Package mailbox runs jobs sequentially per key, in the order they were posted.
//
// Each key with pending work has exactly one worker goroutine; it exits once the key's
// queue is empty. Jobs for different keys run concurrently.
package mailbox

import (
	"context"
	"sync"
)

// Mailbox is a set of per-key FIFO job queues.
type Mailbox struct {
	// OnPanic, if set, is called with the recovered value when a job panics.
	// The worker keeps draining the key's queue afterwards.
	OnPanic func(key int64, v any)

	mu     sync.Mutex
	queues map[int64][]func()
	wg     sync.WaitGroup
	closed bool
}

// New creates an empty mailbox.
func New() *Mailbox {
	return &Mailbox{queues: make(map[int64][]func())}
}

// Post appends job to the key's queue. It returns false once the mailbox is closed.
func (m *Mailbox) Post(key int64, job func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}

	q, active := m.queues[key]
	m.queues[key] = append(q, job)
	if !active {
		m.wg.Add(1)
		go m.drain(key)
	}
	return true
}

// Pending returns the number of queued jobs that have not started yet.
func (m *Mailbox) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, q := range m.queues {
		n += len(q)
	}
	return n
}

// Close stops accepting jobs and waits until queued jobs finish or ctx is done.
func (m *Mailbox) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Mailbox) drain(key int64) {
	defer m.wg.Done()

	for {
		m.mu.Lock()
		q := m.queues[key]
		if len(q) == 0 {
			delete(m.queues, key)
			m.mu.Unlock()
			return
		}
		job := q[0]
		q[0] = nil
		m.queues[key] = q[1:]
		m.mu.Unlock()

		m.run(key, job)
	}
}

func (m *Mailbox) run(key int64, job func()) {
	defer func() {
		if v := recover(); v != nil && m.OnPanic != nil {
			m.OnPanic(key, v)
		}
	}()
	job()
}
