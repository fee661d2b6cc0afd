package graph

import (
	"testing"

	"bbannotate/internal/disasm"
)

func baseVocab(t *testing.T, extra ...string) *Vocabulary {
	t.Helper()
	tokens := append([]string{"immediate", "fp_immediate", "address", "memory", "_UNK_", "RAX", "RCX"}, extra...)
	v, err := NewVocabulary(tokens)
	if err != nil {
		t.Fatalf("NewVocabulary: %v", err)
	}
	return v
}

func baseConfig(v *Vocabulary, oov OOVPolicy) Config {
	return Config{
		Vocabulary:       v,
		ImmediateToken:   "immediate",
		FpImmediateToken: "fp_immediate",
		AddressToken:     "address",
		MemoryToken:      "memory",
		OOV:              oov,
	}
}

func movInst(dst, src string) disasm.DecodedInstruction {
	return disasm.DecodedInstruction{
		Mnemonic:       "MOV",
		OutputOperands: []disasm.Operand{disasm.RegisterOperand(dst)},
		InputOperands:  []disasm.Operand{disasm.RegisterOperand(src)},
	}
}

func TestAddBlockInvariants(t *testing.T) {
	v := baseVocab(t, "MOV")
	g, err := New(baseConfig(v, OOVPolicy{Behavior: OOVReturnError}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if !g.AddBlock([]disasm.DecodedInstruction{movInst("RAX", "RCX")}) {
		t.Fatal("AddBlock returned false unexpectedly")
	}

	if g.NumNodes() != len(g.nodeFeatures) {
		t.Errorf("node_types/node_features length mismatch")
	}
	if len(g.edgeSenders) != len(g.edgeReceivers) || len(g.edgeSenders) != len(g.edgeTypes) {
		t.Errorf("edge array length mismatch")
	}
	sum := 0
	for _, n := range g.numNodesPerBlock {
		sum += n
	}
	if sum != g.NumNodes() {
		t.Errorf("sum(num_nodes_per_block) = %d, want %d", sum, g.NumNodes())
	}
	for _, gf := range g.globalFeatures {
		total := 0
		for _, c := range gf {
			total += c
		}
		if total != g.numNodesPerBlock[0] {
			t.Errorf("sum(global_features[0]) = %d, want %d", total, g.numNodesPerBlock[0])
		}
	}
	for i := range g.edgeSenders {
		if int(g.edgeSenders[i]) < 0 || int(g.edgeSenders[i]) >= g.NumNodes() {
			t.Errorf("edge_senders[%d] = %d out of range", i, g.edgeSenders[i])
		}
		if int(g.edgeReceivers[i]) < 0 || int(g.edgeReceivers[i]) >= g.NumNodes() {
			t.Errorf("edge_receivers[%d] = %d out of range", i, g.edgeReceivers[i])
		}
	}
}

func TestAddBlockOOVReturnErrorRollsBack(t *testing.T) {
	v := baseVocab(t, "MOV") // "JUNK" deliberately absent
	g, err := New(baseConfig(v, OOVPolicy{Behavior: OOVReturnError}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	nodesBefore, edgesBefore := g.NumNodes(), g.NumEdges()
	blocksBefore := g.NumBlocks()

	ok := g.AddBlock([]disasm.DecodedInstruction{{Mnemonic: "JUNK"}})
	if ok {
		t.Fatal("AddBlock should have failed on an out-of-vocabulary mnemonic")
	}
	if g.NumNodes() != nodesBefore || g.NumEdges() != edgesBefore || g.NumBlocks() != blocksBefore {
		t.Fatalf("rollback did not restore state: nodes=%d edges=%d blocks=%d", g.NumNodes(), g.NumEdges(), g.NumBlocks())
	}
}

func TestAddBlockOOVReplaceToken(t *testing.T) {
	v := baseVocab(t, "MOV")
	g, err := New(baseConfig(v, OOVPolicy{Behavior: OOVReplaceToken, ReplacementToken: "_UNK_"}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if !g.AddBlock([]disasm.DecodedInstruction{{Mnemonic: "JUNK"}}) {
		t.Fatal("AddBlock should succeed under OOVReplaceToken")
	}
	unkTok, _ := v.Lookup("_UNK_")
	if g.nodeFeatures[0] != unkTok {
		t.Errorf("instruction node_features = %d, want replacement token %d", g.nodeFeatures[0], unkTok)
	}
}

func TestTwoBlocksResetRegisterScratch(t *testing.T) {
	v := baseVocab(t, "MOV")
	g, err := New(baseConfig(v, OOVPolicy{Behavior: OOVReturnError}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Block A reads RAX.
	readRAX := disasm.DecodedInstruction{
		Mnemonic:      "MOV",
		InputOperands: []disasm.Operand{disasm.RegisterOperand("RAX")},
	}
	if !g.AddBlock([]disasm.DecodedInstruction{readRAX}) {
		t.Fatal("block A failed")
	}
	nodesAfterA := g.NumNodes()

	// Block B writes then reads RAX; it must add a fresh Register node,
	// not reuse block A's.
	writeThenRead := []disasm.DecodedInstruction{
		{Mnemonic: "MOV", OutputOperands: []disasm.Operand{disasm.RegisterOperand("RAX")}},
		{Mnemonic: "MOV", InputOperands: []disasm.Operand{disasm.RegisterOperand("RAX")}},
	}
	if !g.AddBlock(writeThenRead) {
		t.Fatal("block B failed")
	}
	if g.NumNodes() <= nodesAfterA {
		t.Fatalf("block B added no new nodes")
	}
	// B's nodes: MOV at nodesAfterA, its RAX output at nodesAfterA+1, MOV
	// at nodesAfterA+2. The second MOV's read of RAX must come from B's
	// own Register node, not from block A's.
	last := g.NumEdges() - 1
	if g.edgeTypes[last] != EdgeInputOperands || g.edgeReceivers[last] != NodeIndex(nodesAfterA+2) {
		t.Fatalf("last edge = type %v %d->%d, want InputOperands into node %d",
			g.edgeTypes[last], g.edgeSenders[last], g.edgeReceivers[last], nodesAfterA+2)
	}
	if g.edgeSenders[last] != NodeIndex(nodesAfterA+1) || g.nodeTypes[nodesAfterA+1] != NodeRegister {
		t.Fatalf("RAX read resolved to node %d, want block B's Register node %d", g.edgeSenders[last], nodesAfterA+1)
	}
}

func TestResetThenReplayIsDeterministic(t *testing.T) {
	v := baseVocab(t, "MOV")
	insns := []disasm.DecodedInstruction{movInst("RAX", "RCX")}

	g, err := New(baseConfig(v, OOVPolicy{Behavior: OOVReturnError}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	g.AddBlock(insns)
	first := g.DebugString()

	g.Reset()
	g.AddBlock(insns)
	second := g.DebugString()

	if first != second {
		t.Fatalf("reset+replay diverged:\n%s\nvs\n%s", first, second)
	}
}

func TestDeltaBlockIndexNonDecreasing(t *testing.T) {
	v := baseVocab(t, "MOV")
	g, err := New(baseConfig(v, OOVPolicy{Behavior: OOVReturnError}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	g.AddBlock([]disasm.DecodedInstruction{movInst("RAX", "RCX")})
	g.AddBlock([]disasm.DecodedInstruction{movInst("RCX", "RAX"), movInst("RAX", "RCX")})

	idx := g.DeltaBlockIndex()
	for i := 1; i < len(idx); i++ {
		if idx[i] < idx[i-1] {
			t.Fatalf("delta_block_index not non-decreasing at %d: %v", i, idx)
		}
	}
	if len(idx) == 0 || idx[len(idx)-1] != g.NumBlocks()-1 {
		t.Fatalf("delta_block_index last value = %v, want %d", idx, g.NumBlocks()-1)
	}
}
