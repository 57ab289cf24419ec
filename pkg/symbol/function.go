package symbol

import (
	"debug/dwarf"
	"fmt"
)

// Function function
//
// see DWARFv4 3.3 subroutine and entry point entries
type Function struct {
	Name   string
	LowPC  uint64 // entry address
	HighPC uint64 // first address past the end, 0 if unknown

	entry *dwarf.Entry
}

// Entry the DIE this function was parsed from
func (f *Function) Entry() *dwarf.Entry {
	return f.entry
}

func (f *Function) String() string {
	return fmt.Sprintf("%s [%#x, %#x)", f.Name, f.LowPC, f.HighPC)
}

// parseFrom only name and pc range are needed here
func (f *Function) parseFrom(entry *dwarf.Entry) {
	f.entry = entry
	if name, ok := entry.Val(dwarf.AttrName).(string); ok {
		f.Name = name
	}
	f.LowPC, f.HighPC, _ = pcRange(entry)
}

// lowPC return DW_AT_low_pc of entry
func lowPC(entry *dwarf.Entry) (uint64, bool) {
	field := entry.AttrField(dwarf.AttrLowpc)
	if field == nil {
		return 0, false
	}
	v, ok := field.Val.(uint64)
	return v, ok
}

// pcRange return [low, high) of entry.
//
// DW_AT_high_pc of class address is the end address itself, of class constant
// it is an offset from DW_AT_low_pc (DWARFv4 2.17.2). Both are normalized to an
// absolute address one past the last instruction.
func pcRange(entry *dwarf.Entry) (low, high uint64, ok bool) {
	low, ok = lowPC(entry)
	if !ok {
		return 0, 0, false
	}

	field := entry.AttrField(dwarf.AttrHighpc)
	if field == nil {
		return low, 0, false
	}

	switch field.Class {
	case dwarf.ClassAddress:
		v, isAddr := field.Val.(uint64)
		if !isAddr {
			return low, 0, false
		}
		high = v
	case dwarf.ClassConstant:
		v, isConst := field.Val.(int64)
		if !isConst || v < 0 {
			return low, 0, false
		}
		high = low + uint64(v)
	default:
		return low, 0, false
	}

	if high <= low {
		return low, 0, false
	}
	return low, high, true
}

func isDeclaration(entry *dwarf.Entry) bool {
	v, _ := entry.Val(dwarf.AttrDeclaration).(bool)
	return v
}
