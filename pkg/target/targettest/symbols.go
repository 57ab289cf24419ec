package targettest

import (
	"debug/dwarf"

	"github.com/hitzhangjie/bgdb/pkg/symbol"
)

// Func a function definition in the fake debug info
type Func struct {
	Name string
	Low  uint64
	Size int64
}

// BinaryInfo debug info of a single compile unit defining fns, in order
func BinaryInfo(fns ...Func) *symbol.BinaryInfo {
	entries := []*dwarf.Entry{{
		Tag:      dwarf.TagCompileUnit,
		Children: len(fns) != 0,
		Field: []dwarf.Field{
			{Attr: dwarf.AttrName, Val: "main.c", Class: dwarf.ClassString},
		},
	}}
	for _, fn := range fns {
		entries = append(entries, &dwarf.Entry{
			Tag: dwarf.TagSubprogram,
			Field: []dwarf.Field{
				{Attr: dwarf.AttrName, Val: fn.Name, Class: dwarf.ClassString},
				{Attr: dwarf.AttrLowpc, Val: fn.Low, Class: dwarf.ClassAddress},
				{Attr: dwarf.AttrHighpc, Val: fn.Size, Class: dwarf.ClassConstant},
			},
		})
	}
	if len(fns) != 0 {
		entries = append(entries, &dwarf.Entry{})
	}

	return symbol.New(func() symbol.EntryReader {
		return &entryReader{entries: entries}
	})
}

// entryReader replays entries, only a unit has children
type entryReader struct {
	entries []*dwarf.Entry
	pos     int
}

func (r *entryReader) Next() (*dwarf.Entry, error) {
	if r.pos >= len(r.entries) {
		return nil, nil
	}
	r.pos++
	return r.entries[r.pos-1], nil
}

func (r *entryReader) SkipChildren() {
	if r.pos == 1 && r.entries[0].Children {
		r.pos = len(r.entries)
	}
}
