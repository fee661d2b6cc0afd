package disasm

import "golang.org/x/arch/x86/x86asm"

// opSpec classifies how an opcode's explicit arguments and any implicit
// registers participate in the instruction's data flow. x86asm decodes
// operand syntax but not def/use roles, so this table bridges that gap
// the way an LLVM MCInstrInfo def-count would.
type opSpec struct {
	numDefs      int          // leading Args[] positions that are writes
	rmwMem       bool         // an operand (Reg or Mem) at a def position is also read
	addrOnly     bool         // a Mem operand never dereferences memory (LEA, address-only NOP)
	implicitUses []x86asm.Reg
	implicitDefs []x86asm.Reg
}

var rsp = []x86asm.Reg{x86asm.RSP}

var opTable = map[x86asm.Op]opSpec{
	// Compares and tests never write their explicit operands.
	x86asm.CMP:  {numDefs: 0},
	x86asm.TEST: {numDefs: 0},
	x86asm.BT:   {numDefs: 0},
	x86asm.PTEST: {numDefs: 0},
	x86asm.UCOMISD: {numDefs: 0},
	x86asm.UCOMISS: {numDefs: 0},
	x86asm.COMISD:  {numDefs: 0},
	x86asm.COMISS:  {numDefs: 0},

	// Control flow: targets are Rel/Mem, never register defs.
	x86asm.JMP: {numDefs: 0}, x86asm.LJMP: {numDefs: 0},
	x86asm.JA: {numDefs: 0}, x86asm.JAE: {numDefs: 0}, x86asm.JB: {numDefs: 0}, x86asm.JBE: {numDefs: 0},
	x86asm.JE: {numDefs: 0}, x86asm.JG: {numDefs: 0}, x86asm.JGE: {numDefs: 0}, x86asm.JL: {numDefs: 0},
	x86asm.JLE: {numDefs: 0}, x86asm.JNE: {numDefs: 0}, x86asm.JNO: {numDefs: 0}, x86asm.JNP: {numDefs: 0},
	x86asm.JNS: {numDefs: 0}, x86asm.JO: {numDefs: 0}, x86asm.JP: {numDefs: 0}, x86asm.JS: {numDefs: 0},
	x86asm.JCXZ: {numDefs: 0}, x86asm.JECXZ: {numDefs: 0}, x86asm.JRCXZ: {numDefs: 0},
	x86asm.LOOP: {numDefs: 0, implicitUses: []x86asm.Reg{x86asm.RCX}, implicitDefs: []x86asm.Reg{x86asm.RCX}},
	x86asm.LOOPE: {numDefs: 0, implicitUses: []x86asm.Reg{x86asm.RCX}, implicitDefs: []x86asm.Reg{x86asm.RCX}},
	x86asm.LOOPNE: {numDefs: 0, implicitUses: []x86asm.Reg{x86asm.RCX}, implicitDefs: []x86asm.Reg{x86asm.RCX}},
	x86asm.NOP: {numDefs: 0, addrOnly: true},

	x86asm.CALL:  {numDefs: 0, implicitUses: rsp, implicitDefs: rsp},
	x86asm.LCALL: {numDefs: 0, implicitUses: rsp, implicitDefs: rsp},
	x86asm.RET:   {numDefs: 0, implicitUses: rsp, implicitDefs: rsp},
	x86asm.LRET:  {numDefs: 0, implicitUses: rsp, implicitDefs: rsp},

	x86asm.PUSH: {numDefs: 0, implicitUses: rsp, implicitDefs: rsp},
	x86asm.POP:  {numDefs: 1, implicitUses: rsp, implicitDefs: rsp},
	x86asm.LEAVE: {numDefs: 0,
		implicitUses: []x86asm.Reg{x86asm.RBP},
		implicitDefs: []x86asm.Reg{x86asm.RBP, x86asm.RSP}},

	x86asm.LEA: {numDefs: 1, addrOnly: true},

	x86asm.MUL: {numDefs: 0,
		implicitUses: []x86asm.Reg{x86asm.RAX},
		implicitDefs: []x86asm.Reg{x86asm.RAX, x86asm.RDX}},
	x86asm.IMUL: {numDefs: 1}, // 2/3-operand forms; 1-operand form handled as a special case in classify
	x86asm.DIV: {numDefs: 0,
		implicitUses: []x86asm.Reg{x86asm.RAX, x86asm.RDX},
		implicitDefs: []x86asm.Reg{x86asm.RAX, x86asm.RDX}},
	x86asm.IDIV: {numDefs: 0,
		implicitUses: []x86asm.Reg{x86asm.RAX, x86asm.RDX},
		implicitDefs: []x86asm.Reg{x86asm.RAX, x86asm.RDX}},

	x86asm.CBW:  {numDefs: 0, implicitUses: []x86asm.Reg{x86asm.RAX}, implicitDefs: []x86asm.Reg{x86asm.RAX}},
	x86asm.CWDE: {numDefs: 0, implicitUses: []x86asm.Reg{x86asm.RAX}, implicitDefs: []x86asm.Reg{x86asm.RAX}},
	x86asm.CDQE: {numDefs: 0, implicitUses: []x86asm.Reg{x86asm.RAX}, implicitDefs: []x86asm.Reg{x86asm.RAX}},
	x86asm.CWD:  {numDefs: 0, implicitUses: []x86asm.Reg{x86asm.RAX}, implicitDefs: []x86asm.Reg{x86asm.RDX}},
	x86asm.CDQ:  {numDefs: 0, implicitUses: []x86asm.Reg{x86asm.RAX}, implicitDefs: []x86asm.Reg{x86asm.RDX}},
	x86asm.CQO:  {numDefs: 0, implicitUses: []x86asm.Reg{x86asm.RAX}, implicitDefs: []x86asm.Reg{x86asm.RDX}},

	x86asm.XCHG:    {numDefs: 2, rmwMem: true},
	x86asm.CMPXCHG: {numDefs: 1, rmwMem: true, implicitUses: []x86asm.Reg{x86asm.RAX}},
	x86asm.XADD:    {numDefs: 2, rmwMem: true},

	x86asm.SHLD: {numDefs: 1, rmwMem: true},
	x86asm.SHRD: {numDefs: 1, rmwMem: true},
	x86asm.BTC:  {numDefs: 1, rmwMem: true},
	x86asm.BTR:  {numDefs: 1, rmwMem: true},
	x86asm.BTS:  {numDefs: 1, rmwMem: true},
}

// rmwArith are ALU ops whose first operand, register or memory, is both
// read (for the operation) and written (the result).
var rmwArith = map[x86asm.Op]bool{
	x86asm.ADD: true, x86asm.SUB: true, x86asm.ADC: true, x86asm.SBB: true,
	x86asm.AND: true, x86asm.OR: true, x86asm.XOR: true,
	x86asm.SHL: true, x86asm.SHR: true, x86asm.SAR: true,
	x86asm.ROL: true, x86asm.ROR: true, x86asm.RCL: true, x86asm.RCR: true,
	x86asm.INC: true, x86asm.DEC: true, x86asm.NEG: true, x86asm.NOT: true,
}

func init() {
	for op := range rmwArith {
		opTable[op] = opSpec{numDefs: 1, rmwMem: true}
	}
}

// classify returns the opSpec for op, falling back to a conservative
// "first argument is the destination" default for anything not named
// above. This default matches most of the remaining SSE/AVX surface,
// whose two-operand forms follow the same Intel dst,src order as the GPR
// instructions already tabulated.
func classify(op x86asm.Op, numArgs int) opSpec {
	if spec, ok := opTable[op]; ok {
		if op == x86asm.IMUL && numArgs == 1 {
			// One-operand IMUL: implicit RAX:RDX <- RAX * src.
			return opSpec{numDefs: 0,
				implicitUses: []x86asm.Reg{x86asm.RAX},
				implicitDefs: []x86asm.Reg{x86asm.RAX, x86asm.RDX}}
		}
		return spec
	}
	if numArgs >= 1 {
		return opSpec{numDefs: 1}
	}
	return opSpec{numDefs: 0}
}
