package logging

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hyperboria-dev/cjdns/internal/level"
)

// Record is one formatted log event. It is built once per event and shared,
// read-only, by every subscriber the event reaches.
type Record struct {
	Time    int64  `json:"time"`
	Level   string `json:"level"`
	File    string `json:"file"`
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// Push is what a subscriber receives: the shared record tagged with the
// subscriber's own stream.
type Push struct {
	StreamID StreamID `json:"streamId"`
	*Record
}

// formatter builds Records. Timestamps never go backwards even if the clock does.
type formatter struct {
	now   func() time.Time
	last  atomic.Int64
	count atomic.Uint64
}

func (f *formatter) format(lvl level.Level, file string, line int, template string, args []any) *Record {
	f.count.Add(1)
	return &Record{
		Time:    f.timestamp(),
		Level:   lvl.String(),
		File:    file,
		Line:    line,
		Message: expand(template, args),
	}
}

func (f *formatter) timestamp() int64 {
	now := f.now().Unix()
	for {
		last := f.last.Load()
		if now <= last {
			return last
		}
		if f.last.CompareAndSwap(last, now) {
			return now
		}
	}
}

// expand substitutes args into template. A template that does not fit its
// arguments is returned as is.
func expand(template string, args []any) string {
	if len(args) == 0 {
		return template
	}
	msg := fmt.Sprintf(template, args...)
	if strings.Contains(msg, "%!") && !strings.Contains(template, "%!") {
		return template
	}
	return msg
}
