package bytecode

import (
	"fmt"
	"io"
)

// Dump writes a human-readable instruction listing, the Go-native stand-in
// for the Rust source's debug_print_program: one line per instruction, pc
// first, non-zero fields after.
func (p *Program) Dump(w io.Writer) {
	for pc, instr := range p.Instructions {
		fmt.Fprintf(w, "%4d  %-20s next=%d", pc, instr.Op, instr.Next)
		if instr.IfEnd != 0 {
			fmt.Fprintf(w, " ifend=%d", instr.IfEnd)
		}
		if instr.Table != 0 {
			fmt.Fprintf(w, " table=%d", instr.Table)
		}
		if instr.Buf != 0 {
			fmt.Fprintf(w, " buf=%d", instr.Buf)
		}
		if instr.Offsets != 0 {
			fmt.Fprintf(w, " offsets=%d", instr.Offsets)
		}
		if instr.Large {
			fmt.Fprintf(w, " large")
		}
		if instr.Width != 0 {
			fmt.Fprintf(w, " width=%d", instr.Width)
		}
		if instr.Panic != "" {
			fmt.Fprintf(w, " panic=%q", instr.Panic)
		}
		fmt.Fprintln(w)
	}
}
