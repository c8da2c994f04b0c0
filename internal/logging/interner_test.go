package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInternReturnsExistingEntry(t *testing.T) {
	in := newFileInterner(4)

	a := in.intern("a.c")
	require.NotNil(t, a)
	assert.Same(t, a, in.intern("a.c"))
	assert.Same(t, a, in.lookup("a.c"))
	assert.Nil(t, in.lookup("b.c"))
	assert.Equal(t, 1, in.len())
}

func TestInternKeepsCallerString(t *testing.T) {
	in := newFileInterner(4)
	name := "src/net/iface.c"
	f := in.intern(name)
	assert.Equal(t, name, f.name)
}

func TestInternReplacesOldestUnreferencedEntry(t *testing.T) {
	in := newFileInterner(3)
	a := in.intern("a.c")
	b := in.intern("b.c")
	c := in.intern("c.c")
	in.acquire(a)

	// a.c is live, so b.c is the oldest replaceable entry.
	d := in.intern("d.c")
	require.NotNil(t, d)
	assert.Nil(t, in.lookup("b.c"))
	assert.Same(t, a, in.lookup("a.c"))
	assert.Same(t, c, in.lookup("c.c"))
	assert.NotSame(t, b, d)

	// Next in line is c.c.
	e := in.intern("e.c")
	require.NotNil(t, e)
	assert.Nil(t, in.lookup("c.c"))
	assert.Equal(t, 3, in.len())
}

func TestInternNeverReplacesLiveEntries(t *testing.T) {
	in := newFileInterner(2)
	a := in.intern("a.c")
	b := in.intern("b.c")
	in.acquire(a)
	in.acquire(b)

	assert.Nil(t, in.intern("c.c"))
	assert.Same(t, a, in.lookup("a.c"))
	assert.Same(t, b, in.lookup("b.c"))

	in.release(b)
	c := in.intern("c.c")
	require.NotNil(t, c)
	assert.Nil(t, in.lookup("b.c"))
	assert.Same(t, a, in.lookup("a.c"))
}

func TestInternReleaseDoesNotGoNegative(t *testing.T) {
	in := newFileInterner(1)
	a := in.intern("a.c")
	in.release(a)
	assert.Equal(t, 0, a.refs)
}

func TestInternerMinimumCapacity(t *testing.T) {
	in := newFileInterner(0)
	assert.Equal(t, 1, in.capacity())
	assert.NotNil(t, in.intern("a.c"))
}
