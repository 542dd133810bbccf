// ABOUTME: Thread-safe failed-attempt limiter with a fixed window per key, measured from the first failure
// ABOUTME: Guards credential forms against guessing; oldest keys are evicted at capacity

package throttle

import (
	"container/list"
	"sync"
	"time"
)

// entry tracks failures for one key since the start of its window.
type entry struct {
	start    time.Time
	failures int
	element  *list.Element
}

// Limiter counts failures per key and blocks a key once it reaches
// maxFailures within window. Keys are kept in touch order so the least
// recently touched one is evicted in O(1) when the limiter is full.
type Limiter struct {
	mu          sync.Mutex
	entries     map[string]*entry
	order       *list.List // keys, least recently touched at front
	window      time.Duration
	maxFailures int
	maxKeys     int
	now         func() time.Time
	done        chan struct{}
	closed      bool
}

// New creates a limiter. A background goroutine drops expired windows.
func New(window time.Duration, maxFailures, maxKeys int) *Limiter {
	l := &Limiter{
		entries:     make(map[string]*entry),
		order:       list.New(),
		window:      window,
		maxFailures: maxFailures,
		maxKeys:     maxKeys,
		now:         time.Now,
		done:        make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// Allow reports whether key may make another attempt.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok || l.expired(e) {
		return true
	}
	return e.failures < l.maxFailures
}

// Fail records a failed attempt for key and returns the failures in the current window.
func (l *Limiter) Fail(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.entries[key]; ok {
		if l.expired(e) {
			e.start = l.now()
			e.failures = 0
		}
		e.failures++
		l.order.MoveToBack(e.element)
		return e.failures
	}

	if len(l.entries) >= l.maxKeys {
		l.evictOldest()
	}

	l.entries[key] = &entry{
		start:    l.now(),
		failures: 1,
		element:  l.order.PushBack(key),
	}
	return 1
}

// Reset forgets key, typically after a successful attempt.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.entries[key]; ok {
		l.order.Remove(e.element)
		delete(l.entries, key)
	}
}

// expired must be called with mu held.
func (l *Limiter) expired(e *entry) bool {
	return l.now().Sub(e.start) >= l.window
}

// evictOldest must be called with mu held.
func (l *Limiter) evictOldest() {
	front := l.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	l.order.Remove(front)
	delete(l.entries, key)
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.runCleanup()
		case <-l.done:
			return
		}
	}
}

// runCleanup removes every key whose window has passed.
func (l *Limiter) runCleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, e := range l.entries {
		if l.expired(e) {
			l.order.Remove(e.element)
			delete(l.entries, key)
		}
	}
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (l *Limiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.closed {
		close(l.done)
		l.closed = true
	}
}
