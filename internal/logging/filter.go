package logging

import "github.com/hyperboria-dev/cjdns/internal/level"

// matches reports whether an event passes s. The file filter is checked
// first and short-circuits. The first byte-equal file match promotes s to a
// pooled entry so later events compare by reference. The caller holds the
// broadcaster lock.
func (s *Subscription) matches(files *fileInterner, lvl level.Level, file string, line int) bool {
	switch s.file.kind {
	case fileInterned:
		// Identical backing bytes make this a pointer comparison for call
		// sites that share their file string.
		if s.file.ref.name != file {
			return false
		}
	case fileCopy:
		if s.file.copy != file {
			return false
		}
		if f := files.intern(file); f != nil {
			files.acquire(f)
			s.file = fileMatcher{kind: fileInterned, ref: f}
		}
	}

	if lvl < s.level {
		return false
	}
	if s.line != 0 && line != s.line {
		return false
	}
	return true
}
