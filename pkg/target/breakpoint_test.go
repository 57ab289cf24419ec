package target

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitzhangjie/bgdb/pkg/arch"
)

// wordMem word addressed memory, every address holds its own word
type wordMem map[uint64]uint64

func (m wordMem) readWord(addr uint64) (uint64, error) {
	w, ok := m[addr]
	if !ok {
		return 0, errors.New("unmapped")
	}
	return w, nil
}

func (m wordMem) writeWord(addr, word uint64) error {
	if _, ok := m[addr]; !ok {
		return errors.New("unmapped")
	}
	m[addr] = word
	return nil
}

func TestBreakpointTableSequence(t *testing.T) {
	mem := wordMem{0x10: 0x1111, 0x20: 0x2222, 0x30: 0x3333}
	tbl := NewBreakpointTable(arch.AMD64)

	for i, addr := range []uint64{0x30, 0x10, 0x20} {
		bp, err := tbl.Insert(mem, addr)
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), bp.ID)
		assert.Equal(t, uint64(0xcc), mem[addr]&0xff)
	}

	bp, ok := tbl.Find(2)
	require.True(t, ok)
	assert.Equal(t, uint64(0x10), bp.Addr)
	_, ok = tbl.Find(4)
	assert.False(t, ok)

	_, err := tbl.Insert(mem, 0x40)
	require.Error(t, err)
	next, err := tbl.Insert(wordMem{0x50: 0}, 0x50)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), next.ID, "failed inserts must not consume ids")
}

func TestBreakpointTablePatch(t *testing.T) {
	mem := wordMem{0x10: 0x1122334455667788}
	tbl := NewBreakpointTable(arch.AMD64)

	bp, err := tbl.Insert(mem, 0x10)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x11223344556677cc), mem[0x10])
	assert.Equal(t, uint64(0x1122334455667788), bp.Orig)
	assert.True(t, bp.Enabled)

	got, err := tbl.Restore(mem, 0x10)
	require.NoError(t, err)
	assert.Same(t, bp, got)
	assert.Equal(t, uint64(0x1122334455667788), mem[0x10])
	assert.False(t, bp.Enabled)
	assert.Equal(t, uint64(1), bp.Hits)

	// a disarmed breakpoint can't fire
	_, err = tbl.Restore(mem, 0x10)
	assert.True(t, errors.Is(err, ErrUnknownTrap))
}

func TestBreakpointTableShadow(t *testing.T) {
	mem := wordMem{0x10: 0x1122334455667788, 0x13: 0x0102030405060708}
	tbl := NewBreakpointTable(arch.AMD64)

	_, err := tbl.Insert(mem, 0x10)
	require.NoError(t, err)
	_, err = tbl.Insert(mem, 0x13)
	require.NoError(t, err)

	// 0x13 is the fourth byte of the word at 0x10
	raw := uint64(0x11223344cc6677cc)
	assert.Equal(t, uint64(0x1122334408667788), tbl.Shadow(0x10, raw))

	// disarmed breakpoints are not shadowed
	_, err = tbl.Restore(mem, 0x13)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x11223344cc667788), tbl.Shadow(0x10, raw))

	// breakpoints outside the word are ignored
	assert.Equal(t, raw, tbl.Shadow(0x20, raw))
}

func TestBreakpointTableClear(t *testing.T) {
	mem := wordMem{0x10: 0x88, 0x20: 0x99}
	tbl := NewBreakpointTable(arch.AMD64)

	a, err := tbl.Insert(mem, 0x10)
	require.NoError(t, err)
	b, err := tbl.Insert(mem, 0x20)
	require.NoError(t, err)
	_, err = tbl.Restore(mem, 0x20)
	require.NoError(t, err)

	_, err = tbl.Clear(mem, a.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x88), mem[0x10])

	// already disarmed, memory is not touched again
	mem[0x20] = 0x77
	_, err = tbl.Clear(mem, b.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x77), mem[0x20])
	assert.Empty(t, tbl.List())

	_, err = tbl.Clear(mem, a.ID)
	assert.Equal(t, ErrBreakpointNotExisted, err)

	// ids keep growing after a clear
	c, err := tbl.Insert(mem, 0x10)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), c.ID)
}
