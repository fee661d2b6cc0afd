package blockcfg

import (
	"strings"
	"testing"

	"bbannotate/internal/disasm"
)

func TestBuildOneBlockPerSequence(t *testing.T) {
	insns := []disasm.DecodedInstruction{
		{Mnemonic: "NOP", AssemblyText: "nop"},
		{Mnemonic: "RET", AssemblyText: "ret"},
	}
	cfg := Build("block0", insns)
	if len(cfg.Blocks) != 1 {
		t.Fatalf("len(Blocks) = %d, want 1", len(cfg.Blocks))
	}
	if len(cfg.Blocks[0].Calls) != len(insns) {
		t.Fatalf("len(Calls) = %d, want %d", len(cfg.Blocks[0].Calls), len(insns))
	}
}

func TestDOTContainsFuncName(t *testing.T) {
	insns := []disasm.DecodedInstruction{{Mnemonic: "NOP", AssemblyText: "nop"}}
	dot := DOT("block0", insns)
	if !strings.Contains(dot, "block0") {
		t.Errorf("DOT output missing function name:\n%s", dot)
	}
}
