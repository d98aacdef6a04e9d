// Package state provides observable values: one writer publishes whole
// values and any number of readers get the latest one or watch for changes.
package state

import "sync"

// Value holds a T and notifies watchers when it changes. Watchers are
// conflated: a slow watcher skips intermediate values and sees the latest.
type Value[T any] struct {
	mu       sync.RWMutex
	current  T
	watchers map[int]chan T
	nextID   int
}

// NewValue creates a value holding initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{current: initial, watchers: make(map[int]chan T)}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current
}

// Set publishes next. It never blocks on watchers.
func (v *Value[T]) Set(next T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.current = next
	v.notify(next)
}

// Update applies fn to the current value and publishes the result atomically.
func (v *Value[T]) Update(fn func(T) T) T {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.current = fn(v.current)
	v.notify(v.current)
	return v.current
}

// notify is called with v.mu held.
func (v *Value[T]) notify(next T) {
	for _, ch := range v.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- next
	}
}

// Watch returns a channel that first yields the current value and then every
// later value, conflated. The returned cancel func closes the channel and
// may be called more than once.
func (v *Value[T]) Watch() (<-chan T, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := v.nextID
	v.nextID++
	ch := make(chan T, 1)
	ch <- v.current
	v.watchers[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			delete(v.watchers, id)
			close(ch)
		})
	}
	return ch, cancel
}

// Watchers returns the number of active watchers.
func (v *Value[T]) Watchers() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.watchers)
}
