package graph

import (
	"fmt"

	"bbannotate/internal/disasm"
)

// InvariantViolation is a fatal programmer bug: an edge endpoint out of
// range, or a rollback that would have to grow an accumulator. The
// builder panics with this type rather than returning it, matching the
// source's CHECK-style contract for conditions that should never occur
// given a correctly-implemented caller.
type InvariantViolation struct {
	Msg string
}

func (e *InvariantViolation) Error() string { return "graph: invariant violation: " + e.Msg }

// Config holds the construction-time inputs for a BlockGraph: the token
// vocabulary, the names of the four distinguished tokens, and the
// out-of-vocabulary policy.
type Config struct {
	Vocabulary       *Vocabulary
	ImmediateToken   string
	FpImmediateToken string
	AddressToken     string
	MemoryToken      string
	OOV              OOVPolicy
}

// BlockGraph accumulates a batched heterogeneous multigraph over a
// sequence of basic blocks. Not safe for concurrent mutation.
type BlockGraph struct {
	vocab *Vocabulary
	oov   OOVPolicy

	immediateTok   TokenIndex
	fpImmediateTok TokenIndex
	addressTok     TokenIndex
	memoryTok      TokenIndex
	replacementTok TokenIndex

	nodeTypes    []NodeType
	nodeFeatures []TokenIndex

	edgeSenders   []NodeIndex
	edgeReceivers []NodeIndex
	edgeTypes     []EdgeType

	numNodesPerBlock []int
	numEdgesPerBlock []int
	globalFeatures   [][]int

	registerNodes   map[string]NodeIndex
	aliasGroupNodes map[uint32]NodeIndex

	lastOOV string // diagnostic: last out-of-vocabulary name seen, for graph-dump
}

// New constructs a BlockGraph. Failure to find any of the four
// distinguished tokens, or the replacement token when the OOV policy
// requires one, is a fatal construction error.
func New(cfg Config) (*BlockGraph, error) {
	if cfg.Vocabulary == nil {
		return nil, &VocabularyError{Msg: "nil vocabulary"}
	}
	g := &BlockGraph{
		vocab:           cfg.Vocabulary,
		oov:             cfg.OOV,
		registerNodes:   make(map[string]NodeIndex),
		aliasGroupNodes: make(map[uint32]NodeIndex),
	}

	var ok bool
	if g.immediateTok, ok = cfg.Vocabulary.Lookup(cfg.ImmediateToken); !ok {
		return nil, &VocabularyError{Msg: fmt.Sprintf("immediate token %q not found", cfg.ImmediateToken)}
	}
	if g.fpImmediateTok, ok = cfg.Vocabulary.Lookup(cfg.FpImmediateToken); !ok {
		return nil, &VocabularyError{Msg: fmt.Sprintf("fp_immediate token %q not found", cfg.FpImmediateToken)}
	}
	if g.addressTok, ok = cfg.Vocabulary.Lookup(cfg.AddressToken); !ok {
		return nil, &VocabularyError{Msg: fmt.Sprintf("address token %q not found", cfg.AddressToken)}
	}
	if g.memoryTok, ok = cfg.Vocabulary.Lookup(cfg.MemoryToken); !ok {
		return nil, &VocabularyError{Msg: fmt.Sprintf("memory token %q not found", cfg.MemoryToken)}
	}
	if cfg.OOV.Behavior == OOVReplaceToken {
		if g.replacementTok, ok = cfg.Vocabulary.Lookup(cfg.OOV.ReplacementToken); !ok {
			return nil, &VocabularyError{Msg: fmt.Sprintf("replacement token %q not found", cfg.OOV.ReplacementToken)}
		}
	}
	return g, nil
}

// Vocabulary returns the graph's vocabulary.
func (g *BlockGraph) Vocabulary() *Vocabulary { return g.vocab }

// NumNodes, NumEdges, NumBlocks report current accumulator sizes.
func (g *BlockGraph) NumNodes() int  { return len(g.nodeTypes) }
func (g *BlockGraph) NumEdges() int  { return len(g.edgeTypes) }
func (g *BlockGraph) NumBlocks() int { return len(g.numNodesPerBlock) }

// LastOOVToken returns the most recent out-of-vocabulary name observed,
// for diagnostics. Empty if none has been seen.
func (g *BlockGraph) LastOOVToken() string { return g.lastOOV }

type snapshot struct {
	nodeLen, edgeLen, blockLen, globalLen int
}

func (g *BlockGraph) snapshot() snapshot {
	return snapshot{
		nodeLen:   len(g.nodeTypes),
		edgeLen:   len(g.edgeTypes),
		blockLen:  len(g.numNodesPerBlock),
		globalLen: len(g.globalFeatures),
	}
}

func mustNotShrink(cur, snap int, what string) {
	if cur < snap {
		panic(&InvariantViolation{Msg: fmt.Sprintf("rollback would grow %s: current %d < snapshot %d", what, cur, snap)})
	}
}

func (g *BlockGraph) rollback(s snapshot) {
	mustNotShrink(len(g.nodeTypes), s.nodeLen, "node_types")
	mustNotShrink(len(g.edgeTypes), s.edgeLen, "edge_types")
	mustNotShrink(len(g.numNodesPerBlock), s.blockLen, "num_nodes_per_block")
	mustNotShrink(len(g.globalFeatures), s.globalLen, "global_features")

	g.nodeTypes = g.nodeTypes[:s.nodeLen]
	g.nodeFeatures = g.nodeFeatures[:s.nodeLen]
	g.edgeSenders = g.edgeSenders[:s.edgeLen]
	g.edgeReceivers = g.edgeReceivers[:s.edgeLen]
	g.edgeTypes = g.edgeTypes[:s.edgeLen]
	g.numNodesPerBlock = g.numNodesPerBlock[:s.blockLen]
	g.numEdgesPerBlock = g.numEdgesPerBlock[:s.blockLen]
	g.globalFeatures = g.globalFeatures[:s.globalLen]
}

// tokenOrOOV resolves name against the vocabulary, applying the OOV
// policy on a miss. ok is false only under OOVReturnError.
func (g *BlockGraph) tokenOrOOV(name string) (TokenIndex, bool) {
	if idx, found := g.vocab.Lookup(name); found {
		return idx, true
	}
	g.lastOOV = name
	if g.oov.Behavior == OOVReplaceToken {
		return g.replacementTok, true
	}
	return 0, false
}

func (g *BlockGraph) addNode(nt NodeType, tok TokenIndex) NodeIndex {
	idx := NodeIndex(len(g.nodeTypes))
	g.nodeTypes = append(g.nodeTypes, nt)
	g.nodeFeatures = append(g.nodeFeatures, tok)
	return idx
}

func (g *BlockGraph) addEdge(et EdgeType, sender, receiver NodeIndex) {
	n := NodeIndex(len(g.nodeTypes))
	if sender < 0 || sender >= n || receiver < 0 || receiver >= n {
		panic(&InvariantViolation{Msg: fmt.Sprintf("edge endpoint out of range: sender=%d receiver=%d len=%d", sender, receiver, n)})
	}
	g.edgeSenders = append(g.edgeSenders, sender)
	g.edgeReceivers = append(g.edgeReceivers, receiver)
	g.edgeTypes = append(g.edgeTypes, et)
}

// resolveRegisterNode finds the last-writer node for name, or creates a
// fresh Register node if none has been seen yet in the current block.
func (g *BlockGraph) resolveRegisterNode(name string) (NodeIndex, bool) {
	if idx, exists := g.registerNodes[name]; exists {
		return idx, true
	}
	tok, ok := g.tokenOrOOV(name)
	if !ok {
		return 0, false
	}
	idx := g.addNode(NodeRegister, tok)
	g.registerNodes[name] = idx
	return idx, true
}

func (g *BlockGraph) addInputOperand(op disasm.Operand, instNode NodeIndex) bool {
	switch op.Kind {
	case disasm.OperandRegister:
		idx, ok := g.resolveRegisterNode(op.RegisterName)
		if !ok {
			return false
		}
		g.addEdge(EdgeInputOperands, idx, instNode)

	case disasm.OperandImmediate:
		idx := g.addNode(NodeImmediate, g.immediateTok)
		g.addEdge(EdgeInputOperands, idx, instNode)

	case disasm.OperandFpImmediate:
		idx := g.addNode(NodeFpImmediate, g.fpImmediateTok)
		g.addEdge(EdgeInputOperands, idx, instNode)

	case disasm.OperandAddress:
		addrNode := g.addNode(NodeAddressOperand, g.addressTok)
		if op.Address.Base != "" {
			ridx, ok := g.resolveRegisterNode(op.Address.Base)
			if !ok {
				return false
			}
			g.addEdge(EdgeAddressBaseRegister, ridx, addrNode)
		}
		if op.Address.Index != "" {
			ridx, ok := g.resolveRegisterNode(op.Address.Index)
			if !ok {
				return false
			}
			g.addEdge(EdgeAddressIndexRegister, ridx, addrNode)
		}
		if op.Address.Segment != "" {
			ridx, ok := g.resolveRegisterNode(op.Address.Segment)
			if !ok {
				return false
			}
			g.addEdge(EdgeAddressSegmentRegister, ridx, addrNode)
		}
		if op.Address.Displacement != 0 {
			immNode := g.addNode(NodeImmediate, g.immediateTok)
			g.addEdge(EdgeAddressDisplacement, immNode, addrNode)
		}
		// Scale is intentionally dropped.
		g.addEdge(EdgeInputOperands, addrNode, instNode)

	case disasm.OperandMemory:
		idx, exists := g.aliasGroupNodes[op.AliasGroupID]
		if !exists {
			idx = g.addNode(NodeMemoryOperand, g.memoryTok)
			g.aliasGroupNodes[op.AliasGroupID] = idx
		}
		g.addEdge(EdgeInputOperands, idx, instNode)

	default:
		panic(&InvariantViolation{Msg: "unknown input operand kind"})
	}
	return true
}

func (g *BlockGraph) addOutputOperand(op disasm.Operand, instNode NodeIndex) bool {
	switch op.Kind {
	case disasm.OperandRegister:
		tok, ok := g.tokenOrOOV(op.RegisterName)
		if !ok {
			return false
		}
		idx := g.addNode(NodeRegister, tok)
		g.addEdge(EdgeOutputOperands, instNode, idx)
		g.registerNodes[op.RegisterName] = idx

	case disasm.OperandMemory:
		idx := g.addNode(NodeMemoryOperand, g.memoryTok)
		g.addEdge(EdgeOutputOperands, instNode, idx)
		g.aliasGroupNodes[op.AliasGroupID] = idx

	case disasm.OperandImmediate, disasm.OperandFpImmediate, disasm.OperandAddress:
		panic(&InvariantViolation{Msg: fmt.Sprintf("operand kind %v cannot be a write", op.Kind)})

	default:
		panic(&InvariantViolation{Msg: "unknown output operand kind"})
	}
	return true
}

// AddBlock appends one basic block's instructions to the graph, atomically.
// On any out-of-vocabulary abort under OOVReturnError, every accumulator is
// restored to its pre-call size and AddBlock returns false.
func (g *BlockGraph) AddBlock(insns []disasm.DecodedInstruction) bool {
	snap := g.snapshot()
	g.registerNodes = make(map[string]NodeIndex)
	g.aliasGroupNodes = make(map[uint32]NodeIndex)

	prevNodeLen := len(g.nodeTypes)
	prevEdgeLen := len(g.edgeTypes)

	var prevInstNode NodeIndex = -1
	ok := true

walk:
	for _, inst := range insns {
		instTok, usable := g.tokenOrOOV(inst.Mnemonic)
		if !usable {
			ok = false
			break walk
		}
		instNode := g.addNode(NodeInstruction, instTok)

		for _, pfx := range inst.Prefixes {
			pfxTok, pok := g.tokenOrOOV(pfx)
			if !pok {
				ok = false
				break walk
			}
			pfxNode := g.addNode(NodePrefix, pfxTok)
			g.addEdge(EdgeInstructionPrefix, pfxNode, instNode)
		}

		if prevInstNode >= 0 {
			g.addEdge(EdgeStructuralDependency, prevInstNode, instNode)
		}

		for _, op := range inst.InputOperands {
			if !g.addInputOperand(op, instNode) {
				ok = false
				break walk
			}
		}
		for _, op := range inst.ImplicitInputOperands {
			if !g.addInputOperand(op, instNode) {
				ok = false
				break walk
			}
		}
		for _, op := range inst.OutputOperands {
			if !g.addOutputOperand(op, instNode) {
				ok = false
				break walk
			}
		}
		for _, op := range inst.ImplicitOutputOperands {
			if !g.addOutputOperand(op, instNode) {
				ok = false
				break walk
			}
		}

		prevInstNode = instNode
	}

	if !ok {
		g.rollback(snap)
		return false
	}

	gf := make([]int, g.vocab.Len())
	for _, tok := range g.nodeFeatures[prevNodeLen:] {
		gf[tok]++
	}
	g.globalFeatures = append(g.globalFeatures, gf)
	g.numNodesPerBlock = append(g.numNodesPerBlock, len(g.nodeTypes)-prevNodeLen)
	g.numEdgesPerBlock = append(g.numEdgesPerBlock, len(g.edgeTypes)-prevEdgeLen)
	return true
}

// EdgeFeatures returns the integer codes of edge_types, in edge order.
func (g *BlockGraph) EdgeFeatures() []int {
	out := make([]int, len(g.edgeTypes))
	for i, et := range g.edgeTypes {
		out[i] = int(et)
	}
	return out
}

// InstructionNodeMask returns a boolean array, true at i iff node i is an
// Instruction node.
func (g *BlockGraph) InstructionNodeMask() []bool {
	out := make([]bool, len(g.nodeTypes))
	for i, nt := range g.nodeTypes {
		out[i] = nt == NodeInstruction
	}
	return out
}

// DeltaBlockIndex returns, for each Instruction node in global index
// order, the zero-based block index it belongs to.
func (g *BlockGraph) DeltaBlockIndex() []int {
	var out []int
	block := -1
	remaining := 0
	for _, nt := range g.nodeTypes {
		for remaining == 0 && block+1 < len(g.numNodesPerBlock) {
			block++
			remaining = g.numNodesPerBlock[block]
		}
		if nt == NodeInstruction {
			out = append(out, block)
		}
		remaining--
	}
	return out
}

// Reset clears every accumulator to empty, preserving the vocabulary and
// configuration.
func (g *BlockGraph) Reset() {
	g.nodeTypes = nil
	g.nodeFeatures = nil
	g.edgeSenders = nil
	g.edgeReceivers = nil
	g.edgeTypes = nil
	g.numNodesPerBlock = nil
	g.numEdgesPerBlock = nil
	g.globalFeatures = nil
	g.registerNodes = make(map[string]NodeIndex)
	g.aliasGroupNodes = make(map[uint32]NodeIndex)
}

// DebugString dumps every accumulator, matching the source's ostream
// dump layout: one "name = [v1 v2 ...]" line per field.
func (g *BlockGraph) DebugString() string {
	s := ""
	s += dumpInts("node_types", intsFromNodeTypes(g.nodeTypes))
	s += dumpInts("node_features", intsFromTokens(g.nodeFeatures))
	s += dumpInts("edge_senders", intsFromNodeIndices(g.edgeSenders))
	s += dumpInts("edge_receivers", intsFromNodeIndices(g.edgeReceivers))
	s += dumpInts("edge_types", intsFromEdgeTypes(g.edgeTypes))
	s += dumpInts("num_nodes_per_block", g.numNodesPerBlock)
	s += dumpInts("num_edges_per_block", g.numEdgesPerBlock)
	for i, gf := range g.globalFeatures {
		s += dumpInts(fmt.Sprintf("global_features[%d]", i), gf)
	}
	s += dumpBools("instruction_node_mask", g.InstructionNodeMask())
	s += dumpInts("delta_block_index", g.DeltaBlockIndex())
	return s
}

func dumpInts(name string, v []int) string {
	return fmt.Sprintf("%s = %v\n", name, v)
}

func dumpBools(name string, v []bool) string {
	return fmt.Sprintf("%s = %v\n", name, v)
}

func intsFromNodeTypes(v []NodeType) []int {
	out := make([]int, len(v))
	for i, x := range v {
		out[i] = int(x)
	}
	return out
}

func intsFromEdgeTypes(v []EdgeType) []int {
	out := make([]int, len(v))
	for i, x := range v {
		out[i] = int(x)
	}
	return out
}

func intsFromTokens(v []TokenIndex) []int {
	out := make([]int, len(v))
	for i, x := range v {
		out[i] = int(x)
	}
	return out
}

func intsFromNodeIndices(v []NodeIndex) []int {
	out := make([]int, len(v))
	for i, x := range v {
		out[i] = int(x)
	}
	return out
}
