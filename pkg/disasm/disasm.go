// Package disasm renders the instruction at a program counter as one line of text.
package disasm

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// Syntax assembly syntax
type Syntax string

const (
	Intel Syntax = "intel"
	GNU   Syntax = "gnu"
	Go    Syntax = "go"
)

// ParseSyntax validate syntax name s
func ParseSyntax(s string) (Syntax, error) {
	switch Syntax(s) {
	case Intel, GNU, Go:
		return Syntax(s), nil
	default:
		return "", fmt.Errorf("invalid asm syntax: %s, supported: intel, gnu, go", s)
	}
}

// Disassembler decodes the first instruction in a buffer
type Disassembler struct {
	Bits   int // 32 or 64
	Syntax Syntax
}

// Instruction decode the first instruction of little endian buf located at pc.
//
// A buffer that doesn't start with a valid instruction is rendered as
// "(bad)", like objdump does, rather than failing the stop display.
func (d Disassembler) Instruction(buf []byte, pc uint64) string {
	text, _ := d.Decode(buf, pc)
	return text
}

// Decode decode the first instruction of buf, and return its text and length.
// An invalid instruction is "(bad)" and one byte long.
func (d Disassembler) Decode(buf []byte, pc uint64) (string, int) {
	inst, err := x86asm.Decode(buf, d.Bits)
	if err != nil {
		return "(bad)", 1
	}

	switch d.Syntax {
	case GNU:
		return x86asm.GNUSyntax(inst, pc, nil), inst.Len
	case Go:
		return x86asm.GoSyntax(inst, pc, nil), inst.Len
	default:
		return x86asm.IntelSyntax(inst, pc, nil), inst.Len
	}
}
