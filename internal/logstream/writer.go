package logstream

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/hyperboria-dev/cjdns/internal/level"
)

// WriterHandler writes one plain line per record:
//
//	<epoch seconds> <LEVEL> <file base name>:<line> <message> [key=value ...]
//
// Records without a source location show "-:0".
type WriterHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Leveler
	prefix string
	group  string
}

// NewWriterHandler writes records at or above lvl to w. A nil lvl means INFO.
func NewWriterHandler(w io.Writer, lvl slog.Leveler) *WriterHandler {
	if lvl == nil {
		lvl = slog.LevelInfo
	}
	return &WriterHandler{mu: &sync.Mutex{}, w: w, level: lvl}
}

func (h *WriterHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *WriterHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(r.Time.Unix(), 10))
	b.WriteByte(' ')
	b.WriteString(level.FromSlog(r.Level).String())
	b.WriteByte(' ')
	if file, line := source(r.PC); file != "" {
		b.WriteString(filepath.Base(file))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(line))
	} else {
		b.WriteString("-:0")
	}
	b.WriteByte(' ')
	b.WriteString(strings.TrimSuffix(r.Message, "\n"))
	b.WriteString(h.prefix)
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(&b, h.group, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *WriterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	b.WriteString(h.prefix)
	for _, a := range attrs {
		appendAttr(&b, h.group, a)
	}
	clone := *h
	clone.prefix = b.String()
	return &clone
}

func (h *WriterHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	if clone.group != "" {
		clone.group += "." + name
	} else {
		clone.group = name
	}
	return &clone
}
