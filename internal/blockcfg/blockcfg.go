// Package blockcfg renders a basic block as a degenerate single-node CFG
// for debugging graph-dump output, reusing the same lattice/render
// machinery the broader disassembly tooling draws call graphs with.
package blockcfg

import (
	"fmt"

	"github.com/zboralski/lattice"
	"github.com/zboralski/lattice/render"

	"bbannotate/internal/disasm"
)

// Build constructs a one-block lattice.FuncCFG for a straight-line
// instruction sequence, with one CallSite per instruction carrying its
// assembly text. There is no real control flow to render — a basic block
// by definition has none — so this exists purely to get a human-readable
// DOT view of instruction order and operand text out of the same renderer
// the rest of the tooling already uses.
func Build(name string, insns []disasm.DecodedInstruction) *lattice.FuncCFG {
	block := &lattice.BasicBlock{
		ID:    0,
		Start: 0,
		End:   len(insns),
		Term:  true,
	}
	for i, inst := range insns {
		text := inst.AssemblyText
		if text == "" {
			text = inst.Mnemonic
		}
		block.Calls = append(block.Calls, lattice.CallSite{
			Offset: i,
			Callee: fmt.Sprintf("%q", text),
		})
	}
	return &lattice.FuncCFG{Name: name, Blocks: []*lattice.BasicBlock{block}}
}

// DOT renders a single block's debug CFG to a DOT graph string.
func DOT(name string, insns []disasm.DecodedInstruction) string {
	g := &lattice.CFGGraph{Funcs: []*lattice.FuncCFG{Build(name, insns)}}
	return render.DOTCFG(g, name)
}
