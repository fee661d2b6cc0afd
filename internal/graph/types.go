package graph

// NodeType classifies a node in the batched block graph.
type NodeType int

const (
	NodeInstruction NodeType = iota
	NodeRegister
	NodeImmediate
	NodeFpImmediate
	NodeAddressOperand
	NodeMemoryOperand
	NodePrefix
)

func (t NodeType) String() string {
	switch t {
	case NodeInstruction:
		return "Instruction"
	case NodeRegister:
		return "Register"
	case NodeImmediate:
		return "Immediate"
	case NodeFpImmediate:
		return "FpImmediate"
	case NodeAddressOperand:
		return "AddressOperand"
	case NodeMemoryOperand:
		return "MemoryOperand"
	case NodePrefix:
		return "Prefix"
	default:
		return "Unknown"
	}
}

// EdgeType classifies a directed edge in the batched block graph.
type EdgeType int

const (
	EdgeStructuralDependency EdgeType = iota
	EdgeInputOperands
	EdgeOutputOperands
	EdgeAddressBaseRegister
	EdgeAddressIndexRegister
	EdgeAddressSegmentRegister
	EdgeAddressDisplacement
	EdgeReverseStructuralDependency
	EdgeInstructionPrefix
)

func (t EdgeType) String() string {
	switch t {
	case EdgeStructuralDependency:
		return "StructuralDependency"
	case EdgeInputOperands:
		return "InputOperands"
	case EdgeOutputOperands:
		return "OutputOperands"
	case EdgeAddressBaseRegister:
		return "AddressBaseRegister"
	case EdgeAddressIndexRegister:
		return "AddressIndexRegister"
	case EdgeAddressSegmentRegister:
		return "AddressSegmentRegister"
	case EdgeAddressDisplacement:
		return "AddressDisplacement"
	case EdgeReverseStructuralDependency:
		return "ReverseStructuralDependency"
	case EdgeInstructionPrefix:
		return "InstructionPrefix"
	default:
		return "Unknown"
	}
}
