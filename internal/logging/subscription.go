package logging

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/hyperboria-dev/cjdns/internal/level"
)

// StreamID identifies a subscription to its owner. It is exchanged as 16
// hexadecimal characters.
type StreamID uint64

const streamIDHexLen = 16

func (id StreamID) String() string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(id))
	return hex.EncodeToString(b[:])
}

// MarshalJSON encodes the id as a JSON number, the form pushed records carry.
func (id StreamID) MarshalJSON() ([]byte, error) {
	return strconv.AppendUint(nil, uint64(id), 10), nil
}

// ParseStreamID decodes the hexadecimal form produced by String.
func ParseStreamID(s string) (StreamID, error) {
	if len(s) != streamIDHexLen {
		return 0, ErrInvalidStreamID
	}
	var b [8]byte
	if n, err := hex.Decode(b[:], []byte(s)); err != nil || n != len(b) {
		return 0, ErrInvalidStreamID
	}
	return StreamID(binary.BigEndian.Uint64(b[:])), nil
}

func randomStreamID() (StreamID, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random stream id: %w", err)
	}
	return StreamID(binary.BigEndian.Uint64(b[:])), nil
}

type fileMatchKind uint8

const (
	// fileAny matches every file.
	fileAny fileMatchKind = iota
	// fileCopy holds an owned copy compared byte-wise.
	fileCopy
	// fileInterned holds a canonical pool entry.
	fileInterned
)

// fileMatcher is the file filter of a subscription. It moves from fileCopy to
// fileInterned at most once and never back.
type fileMatcher struct {
	kind fileMatchKind
	copy string
	ref  *fileName
}

func (m *fileMatcher) name() string {
	switch m.kind {
	case fileCopy:
		return m.copy
	case fileInterned:
		return m.ref.name
	default:
		return ""
	}
}

// Subscription is one operator's live filter over emitted log events.
type Subscription struct {
	level    level.Level
	file     fileMatcher
	line     int
	txid     string
	streamID StreamID
	life     lifetime
}

// SubscriptionInfo is a read-only snapshot of a Subscription.
type SubscriptionInfo struct {
	StreamID StreamID
	Level    level.Level
	File     string
	Line     int
	TxID     string
}

func (s *Subscription) info() SubscriptionInfo {
	return SubscriptionInfo{
		StreamID: s.streamID,
		Level:    s.level,
		File:     s.file.name(),
		Line:     s.line,
		TxID:     s.txid,
	}
}
