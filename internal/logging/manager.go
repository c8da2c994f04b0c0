package logging

import (
	"fmt"
	"strings"

	"github.com/hyperboria-dev/cjdns/internal/level"
)

// SubscribeRequest holds the optional filters of a subscribe call. Nil
// fields were not supplied.
type SubscribeRequest struct {
	Level *string
	File  *string
	Line  *int64
}

// Subscribe validates req and registers a new subscription delivering to
// txid. Nothing changes when it returns an error.
func (b *Broadcaster) Subscribe(req SubscribeRequest, txid string) (StreamID, error) {
	lvl := b.levels.Lowest()
	if req.Level != nil {
		if lvl = b.levels.Parse(*req.Level); lvl == level.Invalid {
			return 0, &levelError{valid: b.levels.Names()}
		}
	}
	line := 0
	if req.Line != nil {
		if *req.Line < 1 || *req.Line > int64(maxLine) {
			return 0, ErrInvalidLine
		}
		line = int(*req.Line)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0, ErrClosed
	}
	if len(b.subs) >= b.maxSubs {
		b.mu.Unlock()
		return 0, ErrMaxSubscriptions
	}

	id, err := b.newStreamID()
	if err != nil {
		b.mu.Unlock()
		return 0, err
	}

	sub := &Subscription{
		level:    lvl,
		line:     line,
		txid:     strings.Clone(txid),
		streamID: id,
	}
	if req.File != nil {
		if f := b.files.lookup(*req.File); f != nil {
			b.files.acquire(f)
			sub.file = fileMatcher{kind: fileInterned, ref: f}
		} else {
			sub.file = fileMatcher{kind: fileCopy, copy: strings.Clone(*req.File)}
		}
	}
	sub.life.onRelease(func() {
		if sub.file.kind == fileInterned {
			b.files.release(sub.file.ref)
		}
	})
	b.add(sub)
	info := sub.info()
	b.mu.Unlock()

	b.logger.Info("log subscription added",
		"stream_id", id.String(),
		"level", lvl.String(),
		"file", info.File,
		"line", line,
	)
	b.notifySubscribed(info)
	return id, nil
}

// maxLine keeps line numbers within 31 bits.
const maxLine = 1<<31 - 1

// newStreamID draws a random id that is neither active nor recently
// removed. The caller holds b.mu.
func (b *Broadcaster) newStreamID() (StreamID, error) {
	for {
		id, err := randomStreamID()
		if err != nil {
			return 0, err
		}
		if !b.inUse(id) {
			return id, nil
		}
	}
}

// Unsubscribe removes the subscription named by its hexadecimal stream id.
func (b *Broadcaster) Unsubscribe(streamIDHex string) error {
	id, err := ParseStreamID(streamIDHex)
	if err != nil {
		return err
	}

	b.mu.Lock()
	sub, ok := b.remove(id)
	var info SubscriptionInfo
	if ok {
		info = sub.info()
	}
	b.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchSubscription, streamIDHex)
	}
	b.logger.Info("log subscription removed", "stream_id", streamIDHex)
	b.notifyUnsubscribed(info)
	return nil
}
