package mailbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailbox_PreservesOrderPerKey(t *testing.T) {
	m := New()

	var (
		mu  sync.Mutex
		got = map[int64][]int{}
	)
	for i := 0; i < 500; i++ {
		i := i
		key := int64(i % 3)
		require.True(t, m.Post(key, func() {
			mu.Lock()
			got[key] = append(got[key], i)
			mu.Unlock()
		}))
	}
	require.NoError(t, m.Close(context.Background()))

	total := 0
	for key, seq := range got {
		total += len(seq)
		for j := 1; j < len(seq); j++ {
			assert.Less(t, seq[j-1], seq[j], "key %d out of order", key)
		}
	}
	assert.Equal(t, 500, total)
	assert.Equal(t, 0, m.Pending())
}

func TestMailbox_SameKeyNeverOverlaps(t *testing.T) {
	m := New()

	var (
		mu      sync.Mutex
		running int
		overlap bool
	)
	for i := 0; i < 50; i++ {
		m.Post(1, func() {
			mu.Lock()
			running++
			if running > 1 {
				overlap = true
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
		})
	}
	require.NoError(t, m.Close(context.Background()))
	assert.False(t, overlap)
}

func TestMailbox_PanicDoesNotStopQueue(t *testing.T) {
	m := New()

	var panics []any
	m.OnPanic = func(key int64, v any) { panics = append(panics, v) }

	ran := false
	m.Post(4, func() { panic("boom") })
	m.Post(4, func() { ran = true })
	require.NoError(t, m.Close(context.Background()))

	assert.True(t, ran)
	assert.Equal(t, []any{"boom"}, panics)
}

func TestMailbox_RejectsAfterClose(t *testing.T) {
	m := New()
	require.NoError(t, m.Close(context.Background()))
	assert.False(t, m.Post(1, func() {}))
}

func TestMailbox_CloseHonoursContext(t *testing.T) {
	m := New()
	release := make(chan struct{})
	m.Post(1, func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Close(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, m.Close(context.Background()))
}
