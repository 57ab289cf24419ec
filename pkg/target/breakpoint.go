package target

import (
	"sort"

	"go.uber.org/atomic"

	"github.com/hitzhangjie/bgdb/pkg/arch"
)

// Breakpoint 断点信息
//
// Addr, Orig and ID never change once planted. A hit disarms the breakpoint,
// the entry stays in the table until it's cleared and can be re-armed.
type Breakpoint struct {
	ID       uint64 // 断点编号, 1-based in insertion order
	Addr     uint64 // 断点地址
	Orig     uint64 // 原内存数据, the whole word read before patching
	Function string // function the address was resolved from, if any
	Enabled  bool   // trap instruction is currently patched in
	Hits     uint64 // how many times the trap fired
}

// Breakpoints 所有的断点信息
type Breakpoints []*Breakpoint

// Len 返回长度
func (b Breakpoints) Len() int {
	return len(b)
}

// Less 检查b[i]是否小于b[j]
func (b Breakpoints) Less(i, j int) bool {
	return b[i].ID < b[j].ID
}

// Swap 交换b[i]和b[j]
func (b Breakpoints) Swap(i, j int) {
	b[i], b[j] = b[j], b[i]
}

// memory word granularity access to a stopped tracee
type memory interface {
	readWord(addr uint64) (uint64, error)
	writeWord(addr, word uint64) error
}

// BreakpointTable planted breakpoints keyed by patched address
type BreakpointTable struct {
	arch   *arch.Arch
	seqNo  *atomic.Uint64
	byAddr map[uint64]*Breakpoint
}

// NewBreakpointTable create an empty table for tracees of architecture a
func NewBreakpointTable(a *arch.Arch) *BreakpointTable {
	return &BreakpointTable{
		arch:   a,
		seqNo:  atomic.NewUint64(0),
		byAddr: map[uint64]*Breakpoint{},
	}
}

// Get return the breakpoint planted at addr
func (t *BreakpointTable) Get(addr uint64) (*Breakpoint, bool) {
	bp, ok := t.byAddr[addr]
	return bp, ok
}

// Find return the breakpoint numbered id
func (t *BreakpointTable) Find(id uint64) (*Breakpoint, bool) {
	for _, bp := range t.byAddr {
		if bp.ID == id {
			return bp, true
		}
	}
	return nil, false
}

// List return all breakpoints ordered by id
func (t *BreakpointTable) List() Breakpoints {
	bps := make(Breakpoints, 0, len(t.byAddr))
	for _, bp := range t.byAddr {
		bps = append(bps, bp)
	}
	sort.Sort(bps)
	return bps
}

// Insert patch the trap instruction in at addr.
//
// An armed breakpoint at addr is left untouched and ErrDuplicateBreakpoint
// returned, so its original word is never lost. A disarmed one is re-armed and
// keeps its id.
func (t *BreakpointTable) Insert(mem memory, addr uint64) (*Breakpoint, error) {
	bp, ok := t.byAddr[addr]
	if ok && bp.Enabled {
		return nil, &ConsistencyError{Addr: addr, Err: ErrDuplicateBreakpoint}
	}

	orig, err := mem.readWord(addr)
	if err != nil {
		return nil, err
	}
	if err = mem.writeWord(addr, t.arch.Patch(orig)); err != nil {
		return nil, err
	}

	if ok {
		bp.Orig = orig
		bp.Enabled = true
		return bp, nil
	}

	bp = &Breakpoint{
		ID:      t.seqNo.Add(1),
		Addr:    addr,
		Orig:    orig,
		Enabled: true,
	}
	t.byAddr[addr] = bp
	return bp, nil
}

// Restore put the original bytes back at addr after its trap fired.
func (t *BreakpointTable) Restore(mem memory, addr uint64) (*Breakpoint, error) {
	bp, ok := t.byAddr[addr]
	if !ok || !bp.Enabled {
		return nil, &ConsistencyError{Addr: addr, Err: ErrUnknownTrap}
	}
	if err := t.unpatch(mem, bp); err != nil {
		return nil, err
	}
	bp.Hits++
	return bp, nil
}

// Clear remove breakpoint id, unpatching it first if armed.
func (t *BreakpointTable) Clear(mem memory, id uint64) (*Breakpoint, error) {
	bp, ok := t.Find(id)
	if !ok {
		return nil, ErrBreakpointNotExisted
	}
	if bp.Enabled {
		if err := t.unpatch(mem, bp); err != nil {
			return nil, err
		}
	}
	delete(t.byAddr, bp.Addr)
	return bp, nil
}

// unpatch only the trap bytes are replaced, a neighbour breakpoint patched
// into the same word stays armed
func (t *BreakpointTable) unpatch(mem memory, bp *Breakpoint) error {
	cur, err := mem.readWord(bp.Addr)
	if err != nil {
		return err
	}
	if err = mem.writeWord(bp.Addr, t.arch.Unpatch(cur, bp.Orig)); err != nil {
		return err
	}
	bp.Enabled = false
	return nil
}

// Shadow return word, read at addr, as it was before any armed breakpoint
// inside it was patched in. Assumes little endian words.
func (t *BreakpointTable) Shadow(addr, word uint64) uint64 {
	size := uint64(t.arch.PtrSize())
	for _, bp := range t.byAddr {
		if !bp.Enabled || bp.Addr < addr || bp.Addr >= addr+size {
			continue
		}
		off := bp.Addr - addr
		for i := uint64(0); i < t.arch.TrapWidth() && off+i < size; i++ {
			shift := 8 * (off + i)
			orig := (bp.Orig >> (8 * i)) & 0xff
			word = word&^(0xff<<shift) | orig<<shift
		}
	}
	return word
}
