// Package interp drives a compiled bytecode.Program against an
// event.Source, writing typed columnar output into a Buffers.
package interp

import (
	omap "github.com/wk8/go-ordered-map/v2"

	"github.com/vultix/serde-arrow/bytecode"
)

// Buffers holds the interpreter's output: one growable slice per buffer
// slot the compiler allocated. Integer and float width classes (u8/u16/
// u32/u64) are stored as raw bit patterns, the same "typed slot counter"
// model the compiler's BufferCounts uses, so a signed, unsigned, and
// floating-point field of the same width share one physical array kind;
// vendor adapters reinterpret the bits according to the field's DataType.
type Buffers struct {
	U1  [][]bool
	U8  [][]uint8
	U16 [][]uint16
	U32 [][]uint32
	U64 [][]uint64

	U32Offsets [][]uint32
	U64Offsets [][]uint64

	// Utf8Data/LargeUtf8Data hold the concatenated raw bytes for string
	// buffers, indexed the same way as U32Offsets/U64Offsets; slots that
	// back a List/LargeList/Map's item-count offsets rather than string
	// bytes are simply left unused.
	Utf8Data      [][]byte
	LargeUtf8Data [][]byte

	Dictionaries []*omap.OrderedMap[string, int]

	// NumRows is the number of top-level values the source yielded.
	NumRows int
}

func NewBuffers(counts bytecode.BufferCounts) *Buffers {
	b := &Buffers{
		U1:            make([][]bool, counts.U1),
		U8:            make([][]uint8, counts.U8),
		U16:           make([][]uint16, counts.U16),
		U32:           make([][]uint32, counts.U32),
		U64:           make([][]uint64, counts.U64),
		U32Offsets:    make([][]uint32, counts.U32Offsets),
		U64Offsets:    make([][]uint64, counts.U64Offsets),
		Utf8Data:      make([][]byte, counts.U32Offsets),
		LargeUtf8Data: make([][]byte, counts.U64Offsets),
		Dictionaries:  make([]*omap.OrderedMap[string, int], counts.Dictionaries),
	}
	for i := range b.U32Offsets {
		b.U32Offsets[i] = []uint32{0}
	}
	for i := range b.U64Offsets {
		b.U64Offsets[i] = []uint64{0}
	}
	for i := range b.Dictionaries {
		b.Dictionaries[i] = omap.New[string, int]()
	}
	return b
}

// Len reports the row count of buffer slot idx in the u1 class, or 0 when
// idx is out of range.
func (b *Buffers) Len(idx int) int {
	if idx < 0 || idx >= len(b.U1) {
		return 0
	}
	return len(b.U1[idx])
}
