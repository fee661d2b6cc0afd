package disasm

// OperandKind discriminates the Operand tagged union.
type OperandKind int

const (
	OperandUnknown OperandKind = iota
	OperandRegister
	OperandImmediate
	OperandFpImmediate
	OperandAddress
	OperandMemory
)

func (k OperandKind) String() string {
	switch k {
	case OperandRegister:
		return "Register"
	case OperandImmediate:
		return "Immediate"
	case OperandFpImmediate:
		return "FpImmediate"
	case OperandAddress:
		return "Address"
	case OperandMemory:
		return "Memory"
	default:
		return "Unknown"
	}
}

// AddressExpr describes an addressing-mode expression: Segment:[Base+Scale*Index+Disp].
// An empty register name means "absent".
type AddressExpr struct {
	Base        string
	Index       string
	Segment     string
	Displacement int64
	Scale       uint8
}

// Operand is the tagged variant consumed by the Register Role Analyzer and
// the Graph Builder. Exactly one of the typed fields is meaningful,
// selected by Kind.
type Operand struct {
	Kind         OperandKind
	RegisterName string
	Immediate    int64
	FpImmediate  float64
	Address      AddressExpr
	AliasGroupID uint32
}

// RegisterOperand constructs a Register operand.
func RegisterOperand(name string) Operand {
	return Operand{Kind: OperandRegister, RegisterName: name}
}

// ImmediateOperand constructs an Immediate operand.
func ImmediateOperand(v int64) Operand {
	return Operand{Kind: OperandImmediate, Immediate: v}
}

// AddressOperand constructs an Address operand.
func AddressOperand(expr AddressExpr) Operand {
	return Operand{Kind: OperandAddress, Address: expr}
}

// MemoryOperand constructs a Memory operand for the given alias group.
func MemoryOperand(aliasGroupID uint32) Operand {
	return Operand{Kind: OperandMemory, AliasGroupID: aliasGroupID}
}
