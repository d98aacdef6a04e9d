package state

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for value")
	}
	var zero T
	return zero
}

func TestGetSetUpdate(t *testing.T) {
	v := NewValue(1)
	assert.Equal(t, 1, v.Get())

	v.Set(2)
	assert.Equal(t, 2, v.Get())

	got := v.Update(func(n int) int { return n * 10 })
	assert.Equal(t, 20, got)
	assert.Equal(t, 20, v.Get())
}

func TestWatchReceivesCurrentThenChanges(t *testing.T) {
	v := NewValue("a")
	ch, cancel := v.Watch()
	defer cancel()

	assert.Equal(t, "a", receive(t, ch))
	v.Set("b")
	assert.Equal(t, "b", receive(t, ch))
}

func TestWatchConflates(t *testing.T) {
	v := NewValue(0)
	ch, cancel := v.Watch()
	defer cancel()

	for i := 1; i <= 100; i++ {
		v.Set(i)
	}
	assert.Equal(t, 100, receive(t, ch))

	select {
	case n := <-ch:
		t.Fatalf("unexpected extra value %d", n)
	default:
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	v := NewValue(0)
	ch, cancel := v.Watch()
	assert.Equal(t, 1, v.Watchers())

	cancel()
	cancel()
	assert.Equal(t, 0, v.Watchers())

	<-ch // initial value still buffered
	_, ok := <-ch
	assert.False(t, ok)

	v.Set(1)
}

func TestConcurrentWriters(t *testing.T) {
	v := NewValue(0)
	_, cancel := v.Watch()
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v.Update(func(n int) int { return n + 1 })
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, v.Get())
}
