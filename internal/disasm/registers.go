// Package disasm decodes x86-64 basic blocks and derives register roles.
package disasm

import "golang.org/x/arch/x86/x86asm"

// GPR64 is the canonical enumeration order used for register-role
// derivation and loop-register tie-breaking: lowest-numbered candidate
// wins, where "numbered" means position in this list.
var GPR64 = []x86asm.Reg{
	x86asm.RAX, x86asm.RCX, x86asm.RDX, x86asm.RBX,
	x86asm.RSP, x86asm.RBP, x86asm.RSI, x86asm.RDI,
	x86asm.R8, x86asm.R9, x86asm.R10, x86asm.R11,
	x86asm.R12, x86asm.R13, x86asm.R14, x86asm.R15,
}

// gpr64Of maps every general-purpose sub-register (8/16/32/64-bit) to its
// 64-bit name. Only the GPR class folds this way; every other register
// class (segment, x87, MMX, XMM, control, debug) passes through unchanged.
// This mirrors getSuperRegister's GR64-only restriction, as opposed to
// getSuperRegisterAllClasses which folds unconditionally.
var gpr64Of = map[x86asm.Reg]x86asm.Reg{
	x86asm.AL: x86asm.RAX, x86asm.AH: x86asm.RAX, x86asm.AX: x86asm.RAX, x86asm.EAX: x86asm.RAX, x86asm.RAX: x86asm.RAX,
	x86asm.CL: x86asm.RCX, x86asm.CH: x86asm.RCX, x86asm.CX: x86asm.RCX, x86asm.ECX: x86asm.RCX, x86asm.RCX: x86asm.RCX,
	x86asm.DL: x86asm.RDX, x86asm.DH: x86asm.RDX, x86asm.DX: x86asm.RDX, x86asm.EDX: x86asm.RDX, x86asm.RDX: x86asm.RDX,
	x86asm.BL: x86asm.RBX, x86asm.BH: x86asm.RBX, x86asm.BX: x86asm.RBX, x86asm.EBX: x86asm.RBX, x86asm.RBX: x86asm.RBX,
	x86asm.SPB: x86asm.RSP, x86asm.SP: x86asm.RSP, x86asm.ESP: x86asm.RSP, x86asm.RSP: x86asm.RSP,
	x86asm.BPB: x86asm.RBP, x86asm.BP: x86asm.RBP, x86asm.EBP: x86asm.RBP, x86asm.RBP: x86asm.RBP,
	x86asm.SIB: x86asm.RSI, x86asm.SI: x86asm.RSI, x86asm.ESI: x86asm.RSI, x86asm.RSI: x86asm.RSI,
	x86asm.DIB: x86asm.RDI, x86asm.DI: x86asm.RDI, x86asm.EDI: x86asm.RDI, x86asm.RDI: x86asm.RDI,
	x86asm.R8B: x86asm.R8, x86asm.R8W: x86asm.R8, x86asm.R8L: x86asm.R8, x86asm.R8: x86asm.R8,
	x86asm.R9B: x86asm.R9, x86asm.R9W: x86asm.R9, x86asm.R9L: x86asm.R9, x86asm.R9: x86asm.R9,
	x86asm.R10B: x86asm.R10, x86asm.R10W: x86asm.R10, x86asm.R10L: x86asm.R10, x86asm.R10: x86asm.R10,
	x86asm.R11B: x86asm.R11, x86asm.R11W: x86asm.R11, x86asm.R11L: x86asm.R11, x86asm.R11: x86asm.R11,
	x86asm.R12B: x86asm.R12, x86asm.R12W: x86asm.R12, x86asm.R12L: x86asm.R12, x86asm.R12: x86asm.R12,
	x86asm.R13B: x86asm.R13, x86asm.R13W: x86asm.R13, x86asm.R13L: x86asm.R13, x86asm.R13: x86asm.R13,
	x86asm.R14B: x86asm.R14, x86asm.R14W: x86asm.R14, x86asm.R14L: x86asm.R14, x86asm.R14: x86asm.R14,
	x86asm.R15B: x86asm.R15, x86asm.R15W: x86asm.R15, x86asm.R15L: x86asm.R15, x86asm.R15: x86asm.R15,
}

// FoldGPR64 returns r's 64-bit GPR name if r is a GPR sub-register,
// otherwise returns r unchanged.
func FoldGPR64(r x86asm.Reg) x86asm.Reg {
	if super, ok := gpr64Of[r]; ok {
		return super
	}
	return r
}

// IsGPR64 reports whether r is one of the 16 canonical 64-bit GPRs.
func IsGPR64(r x86asm.Reg) bool {
	for _, g := range GPR64 {
		if g == r {
			return true
		}
	}
	return false
}

// RegName returns the canonical uppercase name of r, or "" for the zero
// (absent) register.
func RegName(r x86asm.Reg) string {
	if r == 0 {
		return ""
	}
	return r.String()
}

// gpr64Names folds a GPR sub-register name to its 64-bit name, keyed by
// x86asm's own String() spelling so role analysis can operate on the
// Operand.RegisterName strings the Disassembly Façade produces.
var gpr64Names = func() map[string]string {
	m := make(map[string]string, len(gpr64Of))
	for r, super := range gpr64Of {
		m[r.String()] = super.String()
	}
	return m
}()

// FoldGPR64Name folds a GPR sub-register name to its 64-bit name; any
// other register class name passes through unchanged.
func FoldGPR64Name(name string) string {
	if super, ok := gpr64Names[name]; ok {
		return super
	}
	return name
}

// gpr64Rank gives the canonical enumeration position of each of the 16
// GPR64 names, used both for used_registers ordering and loop_register
// tie-breaking.
var gpr64Rank = func() map[string]int {
	m := make(map[string]int, len(GPR64))
	for i, r := range GPR64 {
		m[r.String()] = i
	}
	return m
}()
