package bytecode

import "github.com/vultix/serde-arrow/schema"

// Validate checks structural invariants of a compiled Program: every jump
// target is in range, every struct/union/list/map table reference
// resolves and agrees with the instructions it describes, every
// ArrayMapping's nullability matches its field's, and the program's final
// instruction is ProgramEnd looping on itself (the interpreter's halt
// condition).
func Validate(p *Program) error {
	n := len(p.Instructions)
	if n == 0 {
		return compileErr("empty program")
	}
	last := p.Instructions[n-1]
	if last.Op != OpProgramEnd || last.Next != n-1 {
		return compileErr("final instruction must be ProgramEnd looping on itself")
	}

	inBounds := func(pc int) bool { return pc >= 0 && pc < n }

	for pc, instr := range p.Instructions {
		switch instr.Op {
		case OpProgramEnd:
			continue
		case OpPanic:
			continue
		}
		if !inBounds(instr.Next) {
			return compileErr("instruction %d (%s) has out-of-range Next %d", pc, instr.Op, instr.Next)
		}
		if p.Instructions[instr.Next].Op == OpUnionEnd {
			return compileErr("instruction %d (%s) targets a UnionEnd instruction directly", pc, instr.Op)
		}
		switch instr.Op {
		case OpOuterSequenceItem, OpListItem, OpLargeListItem, OpMapItem, OpStructField, OpStructItem, OpOuterRecordField:
			if !inBounds(instr.IfEnd) {
				return compileErr("instruction %d (%s) has out-of-range IfEnd %d", pc, instr.Op, instr.IfEnd)
			}
		case OpOptionMarker:
			if !inBounds(instr.IfNone) {
				return compileErr("instruction %d (%s) has out-of-range IfNone %d", pc, instr.Op, instr.IfNone)
			}
		case OpVariant:
			if instr.Table < 0 || instr.Table >= len(p.Unions) {
				return compileErr("instruction %d (Variant) has out-of-range union table %d", pc, instr.Table)
			}
			for _, v := range p.Unions[instr.Table].Variants {
				if !inBounds(v.JumpPC) {
					return compileErr("union variant %q has out-of-range jump pc %d", v.Name, v.JumpPC)
				}
			}
		case OpStructStart, OpOuterRecordStart:
			if instr.Table >= 0 && instr.Table >= len(p.Structs) {
				return compileErr("instruction %d (%s) has out-of-range struct table %d", pc, instr.Op, instr.Table)
			}
		case OpStructEnd, OpStructField, OpStructItem, OpOuterRecordEnd, OpOuterRecordField:
			if instr.Table < 0 || instr.Table >= len(p.Structs) {
				return compileErr("instruction %d (%s) has out-of-range struct table %d", pc, instr.Op, instr.Table)
			}
			for _, fd := range p.Structs[instr.Table].Fields {
				if !inBounds(fd.JumpPC) {
					return compileErr("struct field %q has out-of-range jump pc %d", fd.Name, fd.JumpPC)
				}
				if fd.NullIdx >= len(p.Nulls) {
					return compileErr("struct field %q has out-of-range null definition %d", fd.Name, fd.NullIdx)
				}
			}
		}
	}

	for _, ld := range p.Lists {
		if err := validateContainerDef(p, ld.ItemPC, ld.ReturnPC, OpListItem, OpListEnd); err != nil {
			return err
		}
		if p.Instructions[ld.ItemPC].Offsets != ld.OffsetBuffer {
			return compileErr("list table entry's offset_buffer %d disagrees with its item instruction", ld.OffsetBuffer)
		}
	}
	for _, ld := range p.LargeLists {
		if err := validateContainerDef(p, ld.ItemPC, ld.ReturnPC, OpLargeListItem, OpLargeListEnd); err != nil {
			return err
		}
		if p.Instructions[ld.ItemPC].Offsets != ld.OffsetBuffer {
			return compileErr("large list table entry's offset_buffer %d disagrees with its item instruction", ld.OffsetBuffer)
		}
	}
	for _, md := range p.Maps {
		if err := validateContainerDef(p, md.KeyPC, md.ReturnPC, OpMapItem, OpMapEnd); err != nil {
			return err
		}
	}

	return validateMapping(p, p.Mapping)
}

// validateContainerDef checks that itemPC/returnPC name the matching
// Item/End instructions and that the Item instruction's own IfEnd (the
// runtime source of truth) agrees with the table's recorded return_pc.
func validateContainerDef(p *Program, itemPC, returnPC int, itemOp, endOp Op) error {
	n := len(p.Instructions)
	if itemPC < 0 || itemPC >= n || p.Instructions[itemPC].Op != itemOp {
		return compileErr("structure table entry has invalid item_pc %d for %s", itemPC, itemOp)
	}
	if returnPC < 0 || returnPC >= n || p.Instructions[returnPC].Op != endOp {
		return compileErr("structure table entry has invalid return_pc %d for %s", returnPC, endOp)
	}
	if p.Instructions[itemPC].IfEnd != returnPC {
		return compileErr("item_pc %d does not jump to its recorded return_pc %d on end", itemPC, returnPC)
	}
	return nil
}

// validateMapping walks a compiled ArrayMapping tree, checking that its
// nullability agrees with its field's Nullable flag and, for Struct and
// Union fields, that the corresponding structure table's field/variant
// names agree with the mapping's children in order.
func validateMapping(p *Program, am ArrayMapping) error {
	if am.Field.Nullable != (am.Validity != -1) {
		return compileErr("array mapping for %q has Nullable=%v but Validity=%d", am.Field.Name, am.Field.Nullable, am.Validity)
	}

	switch am.Field.DataType {
	case schema.Struct:
		if am.Field.Strategy != schema.TupleAsStruct {
			if am.Table < 0 || am.Table >= len(p.Structs) {
				return compileErr("struct %q has out-of-range table index %d", am.Field.Name, am.Table)
			}
			fields := p.Structs[am.Table].Fields
			if len(fields) != len(am.Children) {
				return compileErr("struct %q field table has %d entries but mapping has %d children", am.Field.Name, len(fields), len(am.Children))
			}
			for i, fd := range fields {
				if fd.Name != am.Children[i].Field.Name {
					return compileErr("struct %q field %d: table name %q disagrees with mapping child name %q", am.Field.Name, i, fd.Name, am.Children[i].Field.Name)
				}
			}
		}
	case schema.Union:
		if am.Table < 0 || am.Table >= len(p.Unions) {
			return compileErr("union %q has out-of-range table index %d", am.Field.Name, am.Table)
		}
		variants := p.Unions[am.Table].Variants
		if len(variants) != len(am.Children) {
			return compileErr("union %q variant table has %d entries but mapping has %d children", am.Field.Name, len(variants), len(am.Children))
		}
		for i, v := range variants {
			if v.Name != am.Children[i].Field.Name {
				return compileErr("union %q variant %d: table name %q disagrees with mapping child name %q", am.Field.Name, i, v.Name, am.Children[i].Field.Name)
			}
		}
	}

	for _, c := range am.Children {
		if err := validateMapping(p, c); err != nil {
			return err
		}
	}
	return nil
}
