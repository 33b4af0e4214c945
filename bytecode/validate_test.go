package bytecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// baseProgram returns a freshly compiled, valid Program exercising every
// structure table except LargeLists, for tests to mutate into a negative
// fixture.
func baseProgram(t *testing.T) *Program {
	t.Helper()
	p, err := Compile(representativeSchema(), CompilationOptions{})
	require.NoError(t, err)
	return p
}

func firstOp(p *Program, op Op) int {
	for pc, instr := range p.Instructions {
		if instr.Op == op {
			return pc
		}
	}
	return -1
}

func TestValidate_AcceptsAFreshlyCompiledProgram(t *testing.T) {
	require.NoError(t, Validate(baseProgram(t)))
}

func TestValidate_RejectsEmptyProgram(t *testing.T) {
	err := Validate(&Program{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCompile)
}

func TestValidate_RejectsNonSelfLoopingFinalInstruction(t *testing.T) {
	p := baseProgram(t)
	last := len(p.Instructions) - 1
	p.Instructions[last].Next = last - 1
	require.Error(t, Validate(p))
}

func TestValidate_RejectsOutOfRangeNext(t *testing.T) {
	p := baseProgram(t)
	pc := firstOp(p, OpOuterSequenceStart)
	require.GreaterOrEqual(t, pc, 0)
	p.Instructions[pc].Next = len(p.Instructions) + 5
	require.Error(t, Validate(p))
}

// TestValidate_RejectsDirectUnionEndCycle is bytecode's #7 (linker cycle
// guard): a pre-link program where some instruction's Next targets a
// UnionEnd instruction directly must be rejected, not followed into a loop.
func TestValidate_RejectsDirectUnionEndCycle(t *testing.T) {
	p := baseProgram(t)
	unionEndPC := firstOp(p, OpUnionEnd)
	require.GreaterOrEqual(t, unionEndPC, 0)
	seqStartPC := firstOp(p, OpOuterSequenceStart)
	p.Instructions[seqStartPC].Next = unionEndPC
	err := Validate(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UnionEnd")
}

func TestValidate_RejectsOutOfRangeIfEnd(t *testing.T) {
	p := baseProgram(t)
	pc := firstOp(p, OpOuterRecordField)
	require.GreaterOrEqual(t, pc, 0)
	p.Instructions[pc].IfEnd = len(p.Instructions) + 1
	require.Error(t, Validate(p))
}

func TestValidate_RejectsOutOfRangeIfNone(t *testing.T) {
	p := baseProgram(t)
	pc := firstOp(p, OpOptionMarker)
	require.GreaterOrEqual(t, pc, 0)
	p.Instructions[pc].IfNone = -7
	require.Error(t, Validate(p))
}

func TestValidate_RejectsOutOfRangeUnionTableOnVariant(t *testing.T) {
	p := baseProgram(t)
	pc := firstOp(p, OpVariant)
	require.GreaterOrEqual(t, pc, 0)
	p.Instructions[pc].Table = len(p.Unions) + 3
	require.Error(t, Validate(p))
}

func TestValidate_RejectsUnionVariantJumpPCOutOfRange(t *testing.T) {
	p := baseProgram(t)
	require.NotEmpty(t, p.Unions)
	p.Unions[0].Variants[0].JumpPC = len(p.Instructions) + 1
	require.Error(t, Validate(p))
}

func TestValidate_RejectsOutOfRangeStructTable(t *testing.T) {
	p := baseProgram(t)
	pc := firstOp(p, OpOuterRecordEnd)
	require.GreaterOrEqual(t, pc, 0)
	p.Instructions[pc].Table = len(p.Structs) + 2
	require.Error(t, Validate(p))
}

func TestValidate_RejectsStructFieldJumpPCOutOfRange(t *testing.T) {
	p := baseProgram(t)
	require.NotEmpty(t, p.Structs)
	p.Structs[0].Fields[0].JumpPC = len(p.Instructions) + 1
	require.Error(t, Validate(p))
}

func TestValidate_RejectsStructFieldNullIdxOutOfRange(t *testing.T) {
	p := baseProgram(t)
	tableIdx := -1
	fieldIdx := -1
	for ti, sd := range p.Structs {
		for fi, fd := range sd.Fields {
			if fd.NullIdx >= 0 {
				tableIdx, fieldIdx = ti, fi
			}
		}
	}
	require.GreaterOrEqual(t, tableIdx, 0, "expected a nullable field in the outer record")
	p.Structs[tableIdx].Fields[fieldIdx].NullIdx = len(p.Nulls) + 1
	require.Error(t, Validate(p))
}

func TestValidate_RejectsListItemPCNotPointingAtListItem(t *testing.T) {
	p := baseProgram(t)
	require.NotEmpty(t, p.Lists)
	p.Lists[0].ItemPC = firstOp(p, OpOuterSequenceStart)
	require.Error(t, Validate(p))
}

func TestValidate_RejectsListOffsetBufferMismatch(t *testing.T) {
	p := baseProgram(t)
	require.NotEmpty(t, p.Lists)
	p.Lists[0].OffsetBuffer = p.Lists[0].OffsetBuffer + 1
	require.Error(t, Validate(p))
}

func TestValidate_RejectsListReturnPCDisagreeingWithItemIfEnd(t *testing.T) {
	p := baseProgram(t)
	require.NotEmpty(t, p.Lists)
	// Append a second, decoy ListEnd instruction (plus a fresh self-looping
	// ProgramEnd so the final-instruction invariant still holds) and point
	// the table at it instead of the one the item instruction's own IfEnd
	// actually names, so only the item_pc/return_pc agreement check fires.
	p.Instructions = append(p.Instructions, Instruction{Op: OpListEnd})
	decoyEndPC := len(p.Instructions) - 1
	p.Instructions = append(p.Instructions, Instruction{Op: OpProgramEnd})
	finalPC := len(p.Instructions) - 1
	p.Instructions[finalPC].Next = finalPC
	p.Lists[0].ReturnPC = decoyEndPC
	require.Error(t, Validate(p))
}

func TestValidate_RejectsMapKeyPCNotPointingAtMapItem(t *testing.T) {
	p := baseProgram(t)
	require.NotEmpty(t, p.Maps)
	p.Maps[0].KeyPC = firstOp(p, OpOuterSequenceStart)
	require.Error(t, Validate(p))
}

func TestValidate_RejectsArrayMappingNullabilityMismatch(t *testing.T) {
	p := baseProgram(t)
	nullableChildIdx := -1
	for i, c := range p.Mapping.Children {
		if c.Field.Nullable {
			nullableChildIdx = i
		}
	}
	require.GreaterOrEqual(t, nullableChildIdx, 0, "expected a nullable outer-record field")
	p.Mapping.Children[nullableChildIdx].Validity = -1
	require.Error(t, Validate(p))
}

func TestValidate_RejectsStructTableNameDisagreement(t *testing.T) {
	p := baseProgram(t)
	outer := p.Mapping.Table
	require.GreaterOrEqual(t, outer, 0)
	p.Structs[outer].Fields[0].Name = p.Structs[outer].Fields[0].Name + "_renamed"
	require.Error(t, Validate(p))
}

func TestValidate_RejectsUnionTableNameDisagreement(t *testing.T) {
	p := baseProgram(t)
	require.NotEmpty(t, p.Unions)
	p.Unions[0].Variants[0].Name = p.Unions[0].Variants[0].Name + "_renamed"
	require.Error(t, Validate(p))
}
