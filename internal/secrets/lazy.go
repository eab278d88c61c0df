package secrets

import "sync"

// lazy constructs a client on first use and memoizes the outcome, including a
// failed outcome. Once construction has failed, every later get returns the
// same error without trying again until reset is called.
type lazy[T any] struct {
	mu     sync.Mutex
	newFn  func() (T, error)
	client T
	err    error
	done   bool
}

func newLazy[T any](newFn func() (T, error)) *lazy[T] {
	return &lazy[T]{newFn: newFn}
}

func (l *lazy[T]) get() (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.done {
		l.client, l.err = l.newFn()
		l.done = true
	}
	return l.client, l.err
}

func (l *lazy[T]) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	var zero T
	l.client = zero
	l.err = nil
	l.done = false
}
