package admin

import (
	"sync"
	"sync/atomic"
)

// Streams is a Sink that hands pushes to the listeners attached to each
// transaction.
type Streams struct {
	mu        sync.RWMutex
	listeners map[string]map[chan []byte]struct{}
	buffer    int
	dropped   atomic.Uint64
}

// NewStreams creates a Streams whose listeners buffer up to buffer messages.
func NewStreams(buffer int) *Streams {
	if buffer < 1 {
		buffer = 1
	}
	return &Streams{
		listeners: make(map[string]map[chan []byte]struct{}),
		buffer:    buffer,
	}
}

// Attach registers a listener for txid. The returned func detaches it and
// closes the channel; it is safe to call more than once.
func (s *Streams) Attach(txid string) (<-chan []byte, func()) {
	ch := make(chan []byte, s.buffer)

	s.mu.Lock()
	set, ok := s.listeners[txid]
	if !ok {
		set = make(map[chan []byte]struct{})
		s.listeners[txid] = set
	}
	set[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(set, ch)
			if len(set) == 0 {
				delete(s.listeners, txid)
			}
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Deliver hands payload to every listener of txid without blocking. A
// listener whose buffer is full misses the message.
func (s *Streams) Deliver(txid string, payload []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := s.listeners[txid]
	if len(set) == 0 {
		return ErrNoListener
	}
	for ch := range set {
		select {
		case ch <- payload:
		default:
			s.dropped.Add(1)
		}
	}
	return nil
}

// Listeners returns the number of attached listeners.
func (s *Streams) Listeners() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, set := range s.listeners {
		n += len(set)
	}
	return n
}

// Dropped returns how many messages full listeners have missed.
func (s *Streams) Dropped() uint64 {
	return s.dropped.Load()
}
