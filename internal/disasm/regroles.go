package disasm

import "sort"

// unknownRegRank places any register name outside the 16 canonical GPR64
// registers after all of them. x86asm has no unified register-class
// enumeration the way an MCRegisterInfo table does, so names outside the
// GPR64 set keep the order they were first observed in, which is stable
// but not a true cross-class canonical order — acceptable because every
// loop_register candidate and every spec scenario is a GPR64 name.
const unknownRegRank = 1 << 30

func regRank(name string) int {
	if r, ok := gpr64Rank[name]; ok {
		return r
	}
	return unknownRegRank
}

func regReads(lists ...[]Operand) []string {
	var names []string
	for _, ops := range lists {
		for _, op := range ops {
			switch op.Kind {
			case OperandRegister:
				if op.RegisterName != "" {
					names = append(names, op.RegisterName)
				}
			case OperandAddress:
				for _, nm := range []string{op.Address.Base, op.Address.Index, op.Address.Segment} {
					if nm != "" {
						names = append(names, nm)
					}
				}
			}
		}
	}
	return names
}

func regWrites(lists ...[]Operand) []string {
	var names []string
	for _, ops := range lists {
		for _, op := range ops {
			if op.Kind == OperandRegister && op.RegisterName != "" {
				names = append(names, op.RegisterName)
			}
		}
	}
	return names
}

// UsedRegisters returns the registers read by any instruction before
// being written by a preceding instruction in the block, in canonical
// enumeration order. Purely-written registers are excluded. This is the
// set the harness must pre-initialize.
func UsedRegisters(insns []DecodedInstruction) []string {
	defined := make(map[string]bool)
	seen := make(map[string]bool)
	var used []string

	for _, inst := range insns {
		for _, nm := range regReads(inst.InputOperands, inst.ImplicitInputOperands) {
			folded := FoldGPR64Name(nm)
			if !defined[folded] && !seen[folded] {
				seen[folded] = true
				used = append(used, folded)
			}
		}
		for _, nm := range regWrites(inst.OutputOperands, inst.ImplicitOutputOperands) {
			defined[FoldGPR64Name(nm)] = true
		}
	}

	sort.SliceStable(used, func(i, j int) bool { return regRank(used[i]) < regRank(used[j]) })
	return used
}

// LoopRegister picks a general-purpose register that is neither read nor
// written anywhere in the block, safe for a repeater to use as a
// decrement counter. Ties break toward the lowest-numbered candidate in
// the canonical GPR64 enumeration. Returns ("", false) if no such
// register exists.
func LoopRegister(insns []DecodedInstruction) (string, bool) {
	touched := make(map[string]bool)
	for _, inst := range insns {
		all := [][]Operand{inst.InputOperands, inst.OutputOperands, inst.ImplicitInputOperands, inst.ImplicitOutputOperands}
		for _, nm := range regReads(all...) {
			touched[FoldGPR64Name(nm)] = true
		}
		for _, nm := range regWrites(all...) {
			touched[FoldGPR64Name(nm)] = true
		}
	}
	for _, r := range GPR64 {
		name := r.String()
		if !touched[name] {
			return name, true
		}
	}
	return "", false
}
