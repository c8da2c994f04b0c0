package logging

// fileName is a canonical source-file identifier. Two subscriptions that hold
// the same *fileName refer to the same file and compare by pointer.
type fileName struct {
	name string
	// refs counts live subscriptions holding this entry; a referenced entry
	// is never replaced.
	refs int
}

// fileInterner is a bounded pool of file identifiers. Replacement is FIFO
// over the slots, skipping entries that live subscriptions still reference.
// The caller serializes access.
type fileInterner struct {
	slots []*fileName
	next  int
}

func newFileInterner(capacity int) *fileInterner {
	if capacity < 1 {
		capacity = 1
	}
	return &fileInterner{slots: make([]*fileName, capacity)}
}

// lookup returns the canonical entry for name, or nil if it is not pooled.
func (in *fileInterner) lookup(name string) *fileName {
	for _, f := range in.slots {
		if f != nil && f.name == name {
			return f
		}
	}
	return nil
}

// intern returns the canonical entry for name, pooling it if needed. The
// stored string is name itself, so an identifier that is already shared (a
// call site's file) keeps sharing its backing bytes. It returns nil when every
// slot is held by a live subscription.
func (in *fileInterner) intern(name string) *fileName {
	if f := in.lookup(name); f != nil {
		return f
	}
	n := len(in.slots)
	for i := 0; i < n; i++ {
		slot := (in.next + i) % n
		if cur := in.slots[slot]; cur == nil || cur.refs == 0 {
			f := &fileName{name: name}
			in.slots[slot] = f
			in.next = (slot + 1) % n
			return f
		}
	}
	return nil
}

func (in *fileInterner) acquire(f *fileName) {
	f.refs++
}

func (in *fileInterner) release(f *fileName) {
	if f.refs > 0 {
		f.refs--
	}
}

// len returns the number of occupied slots.
func (in *fileInterner) len() int {
	n := 0
	for _, f := range in.slots {
		if f != nil {
			n++
		}
	}
	return n
}

func (in *fileInterner) capacity() int {
	return len(in.slots)
}
