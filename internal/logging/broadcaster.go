package logging

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperboria-dev/cjdns/internal/level"
)

const (
	DefaultMaxSubscriptions = 64
	DefaultFileNameCount    = 32

	// retiredIDCount bounds the memory of removed stream ids that are
	// refused when drawing a new one.
	retiredIDCount = 256
)

// Transport delivers a message to the caller behind a transaction id.
type Transport interface {
	SendMessage(msg any, txid string) error
}

// Observer is told about subscription lifecycle changes. It is called
// outside the broadcaster lock.
type Observer interface {
	Subscribed(info SubscriptionInfo)
	Unsubscribed(info SubscriptionInfo)
}

// Config holds broadcaster configuration. Zero values select the defaults.
type Config struct {
	MaxSubscriptions int
	FileNameCount    int
	Levels           *level.Table
	Now              func() time.Time
	Observer         Observer
	// Logger must not feed back into the broadcaster.
	Logger *slog.Logger
}

// Broadcaster fans log events out to the subscriptions that match them.
type Broadcaster struct {
	mu      sync.Mutex
	subs    []*Subscription
	files   *fileInterner
	retired []StreamID
	closed  bool
	// active mirrors len(subs) so Emit can skip the lock when it is zero.
	active atomic.Int32

	maxSubs   int
	levels    *level.Table
	transport Transport
	observer  Observer
	fmt       formatter
	logger    *slog.Logger
}

// NewBroadcaster creates a broadcaster delivering through t.
func NewBroadcaster(t Transport, cfg Config) *Broadcaster {
	if cfg.MaxSubscriptions <= 0 {
		cfg.MaxSubscriptions = DefaultMaxSubscriptions
	}
	if cfg.FileNameCount <= 0 {
		cfg.FileNameCount = DefaultFileNameCount
	}
	if cfg.Levels == nil {
		cfg.Levels = level.DefaultTable()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	b := &Broadcaster{
		subs:      make([]*Subscription, 0, cfg.MaxSubscriptions),
		files:     newFileInterner(cfg.FileNameCount),
		maxSubs:   cfg.MaxSubscriptions,
		levels:    cfg.Levels,
		transport: t,
		observer:  cfg.Observer,
		logger:    cfg.Logger.With("component", "adminlog"),
	}
	b.fmt.now = cfg.Now
	return b
}

// Active reports whether any subscription exists. Log front ends use it to
// skip building messages nobody will receive.
func (b *Broadcaster) Active() bool {
	return b.active.Load() > 0
}

type delivery struct {
	streamID StreamID
	txid     string
}

// Emit is the logging entry point. It never fails the caller: delivery
// errors are logged and dropped.
//
// Emit itself does not allocate while the table is empty, but boxing args
// for the call does. Hot call sites that pass args should check Active first:
//
//	if b.Active() {
//		b.Emit(level.Debug, file, line, "peer %s sent %d bytes", peer, n)
//	}
func (b *Broadcaster) Emit(lvl level.Level, file string, line int, template string, args ...any) {
	if b.active.Load() == 0 {
		return
	}

	var buf [8]delivery
	targets := buf[:0]

	b.mu.Lock()
	for _, sub := range b.subs {
		if sub.matches(b.files, lvl, file, line) {
			targets = append(targets, delivery{streamID: sub.streamID, txid: sub.txid})
		}
	}
	b.mu.Unlock()

	if len(targets) == 0 {
		return
	}

	rec := b.fmt.format(lvl, file, line, template, args)
	for _, t := range targets {
		if err := b.transport.SendMessage(&Push{StreamID: t.streamID, Record: rec}, t.txid); err != nil {
			b.logger.Debug("log delivery failed", "stream_id", t.streamID.String(), "error", err)
		}
	}
}

// Len returns the number of active subscriptions.
func (b *Broadcaster) Len() int {
	return int(b.active.Load())
}

// Subscriptions returns a snapshot of the active subscriptions.
func (b *Broadcaster) Subscriptions() []SubscriptionInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]SubscriptionInfo, len(b.subs))
	for i, sub := range b.subs {
		out[i] = sub.info()
	}
	return out
}

// Stats describes the broadcaster's occupancy.
type Stats struct {
	Subscriptions    int    `json:"subscriptions"`
	MaxSubscriptions int    `json:"max_subscriptions"`
	FileNames        int    `json:"file_names"`
	FileNameCapacity int    `json:"file_name_capacity"`
	Formatted        uint64 `json:"records_formatted"`
}

func (b *Broadcaster) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{
		Subscriptions:    len(b.subs),
		MaxSubscriptions: b.maxSubs,
		FileNames:        b.files.len(),
		FileNameCapacity: b.files.capacity(),
		Formatted:        b.fmt.count.Load(),
	}
}

// Close releases every remaining subscription. Later subscribe calls fail
// with ErrClosed.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	removed := make([]SubscriptionInfo, 0, len(b.subs))
	for _, sub := range b.subs {
		removed = append(removed, sub.info())
		sub.life.release()
	}
	clear(b.subs)
	b.subs = b.subs[:0]
	b.active.Store(0)
	b.mu.Unlock()

	for _, info := range removed {
		b.notifyUnsubscribed(info)
	}
	b.logger.Info("log subscriptions closed", "released", len(removed))
	return nil
}

// add appends sub to the table. The caller holds b.mu.
func (b *Broadcaster) add(sub *Subscription) {
	b.subs = append(b.subs, sub)
	b.active.Store(int32(len(b.subs)))
}

// remove drops the subscription with id from the table and releases it. The
// caller holds b.mu.
func (b *Broadcaster) remove(id StreamID) (*Subscription, bool) {
	for i, sub := range b.subs {
		if sub.streamID != id {
			continue
		}
		last := len(b.subs) - 1
		b.subs[i] = b.subs[last]
		b.subs[last] = nil
		b.subs = b.subs[:last]
		b.active.Store(int32(len(b.subs)))

		b.retire(id)
		sub.life.release()
		return sub, true
	}
	return nil, false
}

func (b *Broadcaster) retire(id StreamID) {
	if len(b.retired) == retiredIDCount {
		copy(b.retired, b.retired[1:])
		b.retired = b.retired[:retiredIDCount-1]
	}
	b.retired = append(b.retired, id)
}

// inUse reports whether id is active or recently retired. The caller holds b.mu.
func (b *Broadcaster) inUse(id StreamID) bool {
	for _, sub := range b.subs {
		if sub.streamID == id {
			return true
		}
	}
	for _, r := range b.retired {
		if r == id {
			return true
		}
	}
	return false
}

func (b *Broadcaster) notifySubscribed(info SubscriptionInfo) {
	if b.observer != nil {
		b.observer.Subscribed(info)
	}
}

func (b *Broadcaster) notifyUnsubscribed(info SubscriptionInfo) {
	if b.observer != nil {
		b.observer.Unsubscribed(info)
	}
}
