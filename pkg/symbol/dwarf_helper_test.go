package symbol

import (
	"debug/dwarf"
)

// node a DIE with children, flattened into the stream an EntryReader yields
type node struct {
	entry    *dwarf.Entry
	children []*node
}

func die(entry *dwarf.Entry, children ...*node) *node {
	return &node{entry: entry, children: children}
}

func flatten(nodes ...*node) []*dwarf.Entry {
	var out []*dwarf.Entry
	for _, n := range nodes {
		n.entry.Children = len(n.children) != 0
		out = append(out, n.entry)
		if n.entry.Children {
			out = append(out, flatten(n.children...)...)
			out = append(out, &dwarf.Entry{})
		}
	}
	return out
}

// sliceReader mimics dwarf.Reader over a flattened DIE stream
type sliceReader struct {
	entries []*dwarf.Entry
	pos     int
}

func (r *sliceReader) Next() (*dwarf.Entry, error) {
	if r.pos >= len(r.entries) {
		return nil, nil
	}
	e := r.entries[r.pos]
	r.pos++
	return e, nil
}

func (r *sliceReader) SkipChildren() {
	if r.pos == 0 || !r.entries[r.pos-1].Children {
		return
	}
	for depth := 1; depth > 0 && r.pos < len(r.entries); r.pos++ {
		e := r.entries[r.pos]
		if e.Tag == 0 {
			depth--
		} else if e.Children {
			depth++
		}
	}
}

func newTestInfo(units ...*node) *BinaryInfo {
	entries := flatten(units...)
	return New(func() EntryReader {
		return &sliceReader{entries: entries}
	})
}

func compileUnit(name string) *dwarf.Entry {
	return &dwarf.Entry{
		Tag: dwarf.TagCompileUnit,
		Field: []dwarf.Field{
			{Attr: dwarf.AttrName, Val: name, Class: dwarf.ClassString},
		},
	}
}

// subprogram with DW_AT_high_pc encoded as an offset from low
func subprogram(name string, low uint64, size int64) *dwarf.Entry {
	return &dwarf.Entry{
		Tag: dwarf.TagSubprogram,
		Field: []dwarf.Field{
			{Attr: dwarf.AttrName, Val: name, Class: dwarf.ClassString},
			{Attr: dwarf.AttrLowpc, Val: low, Class: dwarf.ClassAddress},
			{Attr: dwarf.AttrHighpc, Val: size, Class: dwarf.ClassConstant},
		},
	}
}

// subprogramAbs with DW_AT_high_pc encoded as an address
func subprogramAbs(name string, low, high uint64) *dwarf.Entry {
	return &dwarf.Entry{
		Tag: dwarf.TagSubprogram,
		Field: []dwarf.Field{
			{Attr: dwarf.AttrName, Val: name, Class: dwarf.ClassString},
			{Attr: dwarf.AttrLowpc, Val: low, Class: dwarf.ClassAddress},
			{Attr: dwarf.AttrHighpc, Val: high, Class: dwarf.ClassAddress},
		},
	}
}

func lexicalBlock(low uint64, size int64) *dwarf.Entry {
	return &dwarf.Entry{
		Tag: dwarf.TagLexDwarfBlock,
		Field: []dwarf.Field{
			{Attr: dwarf.AttrLowpc, Val: low, Class: dwarf.ClassAddress},
			{Attr: dwarf.AttrHighpc, Val: size, Class: dwarf.ClassConstant},
		},
	}
}

func variable(name string) *dwarf.Entry {
	return &dwarf.Entry{
		Tag: dwarf.TagVariable,
		Field: []dwarf.Field{
			{Attr: dwarf.AttrName, Val: name, Class: dwarf.ClassString},
		},
	}
}
