// Package symbol maps function names to code addresses, and addresses back to
// the debugging information entries covering them.
package symbol

import (
	"debug/dwarf"
	"debug/elf"
	"errors"
	"fmt"
)

var (
	// ErrNoDebugInfo the binary carries no DWARF
	ErrNoDebugInfo = errors.New("no debug info")
	// ErrSymbolNotFound no subprogram has the requested name
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrNoEntryAddress a matching subprogram has no DW_AT_low_pc
	ErrNoEntryAddress = errors.New("no entry address")
	// ErrNoEntryForPC no entry covers the requested pc
	ErrNoEntryForPC = errors.New("no entry covers pc")
	// ErrMalformedDebugInfo the DWARF can't be decoded
	ErrMalformedDebugInfo = errors.New("malformed debug info")
)

// EntryReader yields DIEs of all compilation units in unit order, each unit
// in depth-first pre-order, a zero Tag closes a sibling list. *dwarf.Reader
// satisfies it.
type EntryReader interface {
	Next() (*dwarf.Entry, error)
	SkipChildren()
}

// BinaryInfo read only view over the debug info of one executable
type BinaryInfo struct {
	Path string

	newReader func() EntryReader
}

// Analyze Analyze executable `execFile` and return the binary info.
//
// An ELF without .debug_info is not an error, lookups on the result fail
// with ErrNoDebugInfo.
func Analyze(execFile string) (*BinaryInfo, error) {
	file, err := elf.Open(execFile)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if file.Section(".debug_info") == nil && file.Section(".zdebug_info") == nil {
		return &BinaryInfo{Path: execFile}, nil
	}

	dwarfData, err := file.DWARF()
	if err != nil {
		return nil, fmt.Errorf("parse dwarf: %w: %v", ErrMalformedDebugInfo, err)
	}
	bi := FromDWARF(dwarfData)
	bi.Path = execFile
	return bi, nil
}

// FromDWARF build binary info over already loaded debug info
func FromDWARF(data *dwarf.Data) *BinaryInfo {
	return New(func() EntryReader {
		return data.Reader()
	})
}

// New build binary info over any DIE source, every lookup calls newReader
// for a fresh traversal.
func New(newReader func() EntryReader) *BinaryInfo {
	return &BinaryInfo{newReader: newReader}
}

// HasDebugInfo reports whether lookups can succeed at all
func (bi *BinaryInfo) HasDebugInfo() bool {
	return bi != nil && bi.newReader != nil
}

// ResolveFunction return the entry address of the function named name.
//
// The first DW_TAG_subprogram definition whose DW_AT_name equals name wins,
// units are visited in declaration order, entries in pre-order. Duplicate
// names (static functions in several units) therefore resolve to the first
// unit the toolchain emitted.
func (bi *BinaryInfo) ResolveFunction(name string) (uint64, error) {
	if !bi.HasDebugInfo() {
		return 0, ErrNoDebugInfo
	}

	rd := bi.newReader()
	for {
		entry, err := rd.Next()
		if err != nil {
			return 0, fmt.Errorf("read debug info: %w: %v", ErrMalformedDebugInfo, err)
		}
		if entry == nil {
			break
		}
		if entry.Tag != dwarf.TagSubprogram || isDeclaration(entry) {
			continue
		}
		if v, _ := entry.Val(dwarf.AttrName).(string); v != name {
			continue
		}
		pc, ok := lowPC(entry)
		if !ok {
			return 0, fmt.Errorf("function %s: %w", name, ErrNoEntryAddress)
		}
		return pc, nil
	}
	return 0, fmt.Errorf("function %s: %w", name, ErrSymbolNotFound)
}

// ResolvePC return the innermost entry whose [low_pc, high_pc) contains pc.
func (bi *BinaryInfo) ResolvePC(pc uint64) (*dwarf.Entry, error) {
	return bi.innermost(pc, func(*dwarf.Entry) bool { return true })
}

// PCToFunction returns the innermost function whose range covers pc
func (bi *BinaryInfo) PCToFunction(pc uint64) (*Function, error) {
	entry, err := bi.innermost(pc, func(e *dwarf.Entry) bool {
		return e.Tag == dwarf.TagSubprogram
	})
	if err != nil {
		return nil, err
	}
	fn := &Function{}
	fn.parseFrom(entry)
	return fn, nil
}

func (bi *BinaryInfo) innermost(pc uint64, accept func(*dwarf.Entry) bool) (*dwarf.Entry, error) {
	if !bi.HasDebugInfo() {
		return nil, ErrNoDebugInfo
	}

	var (
		rd        = bi.newReader()
		depth     = 0
		best      *dwarf.Entry
		bestDepth = -1
	)
	for {
		entry, err := rd.Next()
		if err != nil {
			return nil, fmt.Errorf("read debug info: %w: %v", ErrMalformedDebugInfo, err)
		}
		if entry == nil {
			break
		}
		if entry.Tag == 0 {
			depth--
			continue
		}

		low, high, ok := pcRange(entry)
		if ok && (pc < low || pc >= high) {
			// nothing below an entry can cover what the entry itself doesn't
			if entry.Children {
				rd.SkipChildren()
			}
			continue
		}
		if ok && depth > bestDepth && accept(entry) {
			best, bestDepth = entry, depth
		}
		if entry.Children {
			depth++
		}
	}

	if best == nil {
		return nil, fmt.Errorf("pc %#x: %w", pc, ErrNoEntryForPC)
	}
	return best, nil
}

// Functions list all function definitions that have an entry address
func (bi *BinaryInfo) Functions() ([]*Function, error) {
	if !bi.HasDebugInfo() {
		return nil, ErrNoDebugInfo
	}

	var fns []*Function
	rd := bi.newReader()
	for {
		entry, err := rd.Next()
		if err != nil {
			return nil, fmt.Errorf("read debug info: %w: %v", ErrMalformedDebugInfo, err)
		}
		if entry == nil {
			break
		}
		if entry.Tag != dwarf.TagSubprogram || isDeclaration(entry) {
			continue
		}
		if _, ok := lowPC(entry); !ok {
			continue
		}
		fn := &Function{}
		fn.parseFrom(entry)
		if fn.Name != "" {
			fns = append(fns, fn)
		}
	}
	return fns, nil
}
