package logging

import "sync"

// lifetime scopes the resources owned by one subscription. Cleanups run in
// reverse registration order, exactly once, when the lifetime is released.
type lifetime struct {
	once     sync.Once
	mu       sync.Mutex
	released bool
	cleanups []func()
}

// onRelease registers fn to run at release. If the lifetime is already
// released fn runs immediately.
func (l *lifetime) onRelease(fn func()) {
	l.mu.Lock()
	if !l.released {
		l.cleanups = append(l.cleanups, fn)
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()
	fn()
}

// release reports whether this call was the one that released the lifetime.
func (l *lifetime) release() bool {
	first := false
	l.once.Do(func() {
		first = true
		l.mu.Lock()
		l.released = true
		cleanups := l.cleanups
		l.cleanups = nil
		l.mu.Unlock()
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	})
	return first
}
