package keylock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPool_SerializesSameKey(t *testing.T) {
	p := New()

	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := p.Lock(7)
			defer unlock()
			v := counter
			counter = v + 1
		}()
	}
	wg.Wait()

	assert.Equal(t, 200, counter)
	assert.Equal(t, 0, p.Len(), "idle keys must be released")
}

func TestPool_IndependentKeys(t *testing.T) {
	p := New()

	unlockA := p.Lock(1)
	done := make(chan struct{})
	go func() {
		unlock := p.Lock(2)
		unlock()
		close(done)
	}()
	<-done
	unlockA()
}

func TestPool_UnlockTwiceIsSafe(t *testing.T) {
	p := New()
	unlock := p.Lock(3)
	unlock()
	unlock()
	assert.Equal(t, 0, p.Len())
}
