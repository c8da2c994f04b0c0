// Package level is the severity table shared by the daemon's loggers and the
// admin log subscriptions. Levels are totally ordered; a larger value is more
// severe.
package level

import (
	"fmt"
	"log/slog"
	"strings"
)

type Level int

const (
	Invalid Level = iota - 1
	Keys
	Debug
	Info
	Warn
	Error
	Critical
)

var names = [...]string{
	Keys:     "KEYS",
	Debug:    "DEBUG",
	Info:     "INFO",
	Warn:     "WARN",
	Error:    "ERROR",
	Critical: "CRITICAL",
}

// All lists every known level from least to most severe.
var All = []Level{Keys, Debug, Info, Warn, Error, Critical}

func (l Level) String() string {
	if l < Keys || l > Critical {
		return "INVALID"
	}
	return names[l]
}

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	return l >= Keys && l <= Critical
}

// Slog maps l onto the slog scale. KEYS sits below slog's DEBUG and CRITICAL
// above its ERROR.
func (l Level) Slog() slog.Level {
	switch l {
	case Keys:
		return slog.LevelDebug - 4
	case Debug:
		return slog.LevelDebug
	case Info:
		return slog.LevelInfo
	case Warn:
		return slog.LevelWarn
	case Error:
		return slog.LevelError
	default:
		return slog.LevelError + 4
	}
}

// FromSlog is the inverse of Slog; levels between the named slog levels round down.
func FromSlog(l slog.Level) Level {
	switch {
	case l < slog.LevelDebug:
		return Keys
	case l < slog.LevelInfo:
		return Debug
	case l < slog.LevelWarn:
		return Info
	case l < slog.LevelError:
		return Warn
	case l < slog.LevelError+4:
		return Error
	default:
		return Critical
	}
}

// Table is the set of levels a deployment accepts by name. CRITICAL is always
// part of it.
type Table struct {
	levels []Level
}

// DefaultTable accepts every known level.
func DefaultTable() *Table {
	return &Table{levels: All}
}

// NewTable builds a table from level names. Unknown names are an error;
// duplicates are ignored and the table is kept in severity order.
func NewTable(enabled []string) (*Table, error) {
	seen := make(map[Level]bool, len(All))
	for _, n := range enabled {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		l := parse(n)
		if l == Invalid {
			return nil, fmt.Errorf("unknown log level %q", n)
		}
		seen[l] = true
	}
	seen[Critical] = true

	t := &Table{}
	for _, l := range All {
		if seen[l] {
			t.levels = append(t.levels, l)
		}
	}
	return t, nil
}

// Parse resolves a level name, case-insensitively. Names outside the table
// resolve to Invalid.
func (t *Table) Parse(name string) Level {
	l := parse(name)
	if l == Invalid || !t.Enabled(l) {
		return Invalid
	}
	return l
}

// Enabled reports whether l is part of the table.
func (t *Table) Enabled(l Level) bool {
	for _, e := range t.levels {
		if e == l {
			return true
		}
	}
	return false
}

// Lowest returns the most verbose level in the table.
func (t *Table) Lowest() Level {
	return t.levels[0]
}

// Names returns the level names in severity order.
func (t *Table) Names() []string {
	out := make([]string, len(t.levels))
	for i, l := range t.levels {
		out[i] = l.String()
	}
	return out
}

func parse(name string) Level {
	for _, l := range All {
		if strings.EqualFold(name, names[l]) {
			return l
		}
	}
	return Invalid
}
