package disasm

import (
	"errors"
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// DisassemblyError reports a byte span that x86asm could not decode.
// The orchestrator treats this as input rejection, not a retry.
type DisassemblyError struct {
	Offset int
	Err    error
}

func (e *DisassemblyError) Error() string {
	return fmt.Sprintf("disasm: byte offset %d: %v", e.Offset, e.Err)
}

func (e *DisassemblyError) Unwrap() error { return e.Err }

// DecodedInstruction is one decoded machine instruction. Immutable once
// produced.
type DecodedInstruction struct {
	Mnemonic               string
	Prefixes               []string
	InputOperands          []Operand
	OutputOperands         []Operand
	ImplicitInputOperands  []Operand
	ImplicitOutputOperands []Operand
	AssemblyText           string
	Raw                    []byte
	Offset                 int
}

// Decode disassembles a basic block's raw bytes into decoded instructions
// in program order. Fails closed on the first undecodable byte span.
func Decode(data []byte) ([]DecodedInstruction, error) {
	var insts []DecodedInstruction
	aliasSeq := uint32(0)
	offset := 0
	for offset < len(data) {
		inst, err := x86asm.Decode(data[offset:], 64)
		if err != nil {
			return nil, &DisassemblyError{Offset: offset, Err: err}
		}
		if inst.Len <= 0 {
			return nil, &DisassemblyError{Offset: offset, Err: errors.New("zero-length decode")}
		}
		if inst.Op == 0 {
			// x86asm reports truncated or invalid bytes as a bare prefix
			// pseudo-instruction with no opcode and a nil error.
			return nil, &DisassemblyError{Offset: offset, Err: errors.New("undecodable instruction")}
		}

		in, outp, impIn, impOut := operandsOf(inst, &aliasSeq)
		raw := make([]byte, inst.Len)
		copy(raw, data[offset:offset+inst.Len])

		insts = append(insts, DecodedInstruction{
			Mnemonic:               inst.Op.String(),
			Prefixes:               prefixStrings(inst.Prefix),
			InputOperands:          in,
			OutputOperands:         outp,
			ImplicitInputOperands:  impIn,
			ImplicitOutputOperands: impOut,
			AssemblyText:           x86asm.GNUSyntax(inst, 0, nil),
			Raw:                    raw,
			Offset:                 offset,
		})
		offset += inst.Len
	}
	return insts, nil
}

// operandsOf classifies a decoded instruction's explicit arguments into
// input/output operand lists and attaches the opcode's implicit register
// uses/defs. A Mem argument produces an Address operand for its addressing
// components and, unless the opcode is address-only (LEA and friends), a
// paired Memory operand carrying a fresh alias group for the dereferenced
// cell — read-modify-write forms (e.g. "add [rax], 1") emit that Memory
// operand into both the input and output lists under the same alias id.
// The same rmwMem flag applies to a register destination: "add rcx, 1"
// both reads and writes RCX, so it goes into input and output alike.
func operandsOf(inst x86asm.Inst, aliasSeq *uint32) (input, output, implicitIn, implicitOut []Operand) {
	numArgs := 0
	for _, a := range inst.Args {
		if a == nil {
			break
		}
		numArgs++
	}
	spec := classify(inst.Op, numArgs)

	for i := 0; i < numArgs; i++ {
		isDef := i < spec.numDefs
		switch a := inst.Args[i].(type) {
		case x86asm.Reg:
			op := RegisterOperand(RegName(a))
			if isDef {
				output = append(output, op)
				if spec.rmwMem {
					input = append(input, op)
				}
			} else {
				input = append(input, op)
			}
		case x86asm.Imm:
			input = append(input, ImmediateOperand(int64(a)))
		case x86asm.Rel:
			input = append(input, ImmediateOperand(int64(a)))
		case x86asm.Mem:
			input = append(input, AddressOperand(AddressExpr{
				Base:         RegName(a.Base),
				Index:        RegName(a.Index),
				Segment:      RegName(a.Segment),
				Displacement: a.Disp,
				Scale:        a.Scale,
			}))
			if !spec.addrOnly {
				*aliasSeq++
				mem := MemoryOperand(*aliasSeq)
				if isDef {
					output = append(output, mem)
					if spec.rmwMem {
						input = append(input, mem)
					}
				} else {
					input = append(input, mem)
				}
			}
		}
	}

	for _, r := range spec.implicitUses {
		implicitIn = append(implicitIn, RegisterOperand(RegName(r)))
	}
	for _, r := range spec.implicitDefs {
		implicitOut = append(implicitOut, RegisterOperand(RegName(r)))
	}
	return
}

func prefixStrings(p x86asm.Prefixes) []string {
	var names []string
	for _, pr := range p {
		if pr == 0 {
			break
		}
		names = append(names, pr.String())
	}
	return names
}
