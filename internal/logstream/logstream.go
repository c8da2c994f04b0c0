// Package logstream connects the daemon's slog output to the admin log
// subscriptions.
//
// Handler wraps the handler that writes the daemon's own log and hands every
// record to an Emitter along with the caller's source file and line. Loggers
// used on the delivery path (the broadcaster, the admin layer, the sinks)
// must be built on the wrapped handler, not on Handler, or a failing delivery
// would log into itself.
package logstream

import (
	"context"
	"log/slog"
	"runtime"
	"strings"

	"github.com/hyperboria-dev/cjdns/internal/level"
)

// Emitter receives log events. *logging.Broadcaster implements it.
type Emitter interface {
	Active() bool
	Emit(lvl level.Level, file string, line int, template string, args ...any)
}

type Handler struct {
	handler slog.Handler
	emitter Emitter
	// prefix holds attrs added with WithAttrs, pre-rendered.
	prefix string
	group  string
}

func NewHandler(handler slog.Handler, emitter Emitter) *Handler {
	return &Handler{handler: handler, emitter: emitter}
}

// Enabled also admits records the wrapped handler would drop while somebody
// is subscribed, since subscriptions pick their own level.
func (h *Handler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.handler.Enabled(ctx, l) || h.emitter.Active()
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if h.emitter.Active() {
		file, line := source(r.PC)
		h.emitter.Emit(level.FromSlog(r.Level), file, line, h.message(r))
	}
	if !h.handler.Enabled(ctx, r.Level) {
		return nil
	}
	return h.handler.Handle(ctx, r)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	b.WriteString(h.prefix)
	for _, a := range attrs {
		appendAttr(&b, h.group, a)
	}
	return &Handler{
		handler: h.handler.WithAttrs(attrs),
		emitter: h.emitter,
		prefix:  b.String(),
		group:   h.group,
	}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &Handler{
		handler: h.handler.WithGroup(name),
		emitter: h.emitter,
		prefix:  h.prefix,
		group:   group,
	}
}

// message renders r as "msg key=value ...".
func (h *Handler) message(r slog.Record) string {
	if h.prefix == "" && r.NumAttrs() == 0 {
		return r.Message
	}
	var b strings.Builder
	b.WriteString(r.Message)
	b.WriteString(h.prefix)
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(&b, h.group, a)
		return true
	})
	return b.String()
}

func appendAttr(b *strings.Builder, group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	switch {
	case key == "":
		key = group
	case group != "":
		key = group + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			appendAttr(b, key, ga)
		}
		return
	}
	b.WriteByte(' ')
	b.WriteString(key)
	b.WriteByte('=')
	b.WriteString(a.Value.String())
}

// source returns the file and line of pc. Frames of one call site share the
// file string, so subscriptions compare it cheaply.
func source(pc uintptr) (string, int) {
	if pc == 0 {
		return "", 0
	}
	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	return frame.File, frame.Line
}
