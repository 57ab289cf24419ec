// Package arch describes the target CPU families bgdb knows how to patch.
//
// An Arch is picked once at startup and passed to whoever needs word size,
// trap encoding or the disassembler mode, so nothing below reads runtime.GOARCH.
package arch

import (
	"encoding/binary"
	"fmt"
)

// Arch target architecture parameters
type Arch struct {
	Name      string           // GOARCH style name
	Bits      int              // pointer width in bits, also the disassembler mode
	TrapInstr []byte           // software breakpoint instruction
	LowMask   uint64           // keeps the bytes of a word not covered by TrapInstr
	Order     binary.ByteOrder // memory byte order
}

var (
	// AMD64 x86-64
	AMD64 = &Arch{
		Name:      "amd64",
		Bits:      64,
		TrapInstr: []byte{0xCC},
		LowMask:   0xffff_ffff_ffff_ff00,
		Order:     binary.LittleEndian,
	}

	// I386 32-bit x86
	I386 = &Arch{
		Name:      "386",
		Bits:      32,
		TrapInstr: []byte{0xCC},
		LowMask:   0xffff_ff00,
		Order:     binary.LittleEndian,
	}
)

// Select return the Arch for GOARCH name
func Select(goarch string) (*Arch, error) {
	switch goarch {
	case AMD64.Name:
		return AMD64, nil
	case I386.Name:
		return I386, nil
	default:
		return nil, fmt.Errorf("unsupported architecture: %s", goarch)
	}
}

// PtrSize pointer width in bytes, this is also the ptrace word size.
func (a *Arch) PtrSize() int {
	return a.Bits / 8
}

// TrapWidth how far the PC has moved past the patched address when the trap fires.
func (a *Arch) TrapWidth() uint64 {
	return uint64(len(a.TrapInstr))
}

// WordMask keeps the valid bits of a word.
func (a *Arch) WordMask() uint64 {
	if a.Bits == 64 {
		return ^uint64(0)
	}
	return uint64(1)<<uint(a.Bits) - 1
}

// trapBits the trap instruction packed into the low bytes of a word
func (a *Arch) trapBits() uint64 {
	var v uint64
	for i, b := range a.TrapInstr {
		v |= uint64(b) << (8 * uint(i))
	}
	return v
}

// Patch splice the trap instruction into the low bytes of word.
func (a *Arch) Patch(word uint64) uint64 {
	return (word & a.LowMask) | a.trapBits()
}

// Unpatch put the low bytes of orig back into word, leaving the rest of word alone.
func (a *Arch) Unpatch(word, orig uint64) uint64 {
	return (word & a.LowMask) | (orig &^ a.LowMask & a.WordMask())
}

// DecodeWord decode a word from buf, buf must hold at least PtrSize bytes.
func (a *Arch) DecodeWord(buf []byte) uint64 {
	if a.Bits == 64 {
		return a.Order.Uint64(buf)
	}
	return uint64(a.Order.Uint32(buf))
}

// EncodeWord encode the low PtrSize bytes of word into buf.
func (a *Arch) EncodeWord(buf []byte, word uint64) {
	if a.Bits == 64 {
		a.Order.PutUint64(buf, word)
		return
	}
	a.Order.PutUint32(buf, uint32(word))
}
