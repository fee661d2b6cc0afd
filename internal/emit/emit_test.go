package emit

import (
	"encoding/json"
	"strings"
	"testing"

	"bbannotate/internal/addrfinder"
	"bbannotate/internal/annotate"
	"bbannotate/internal/disasm"
)

func TestFormatASMNopOnly(t *testing.T) {
	b := annotate.AnnotatedBlock{
		Instructions: []disasm.DecodedInstruction{{Mnemonic: "NOP", AssemblyText: "nop"}},
		LoopRegister: "RAX",
		Hex:          "90",
	}
	text := FormatASM(b)
	if !strings.Contains(text, "# LLVM-EXEGESIS-LOOP-REGISTER RAX") {
		t.Errorf("missing loop-register directive:\n%s", text)
	}
	if !strings.Contains(text, "nop") {
		t.Errorf("missing assembly line:\n%s", text)
	}
	if strings.Contains(text, "MEM-DEF") || strings.Contains(text, "MEM-MAP") {
		t.Errorf("unexpected memory directive with no accessed blocks:\n%s", text)
	}
}

func TestFormatASMMemoryDirectives(t *testing.T) {
	b := annotate.AnnotatedBlock{
		AccessedAddrs: addrfinder.AccessedAddrs{
			BlockSize:      4096,
			AccessedBlocks: []uint64{0x12345000},
		},
		UsedRegisters: []string{"RBX"},
		Instructions:  []disasm.DecodedInstruction{{AssemblyText: "mov rax, [rbx]"}},
	}
	text := FormatASM(b)
	if !strings.Contains(text, "# LLVM-EXEGESIS-DEFREG RBX 12345600") {
		t.Errorf("missing/wrong register directive:\n%s", text)
	}
	if !strings.Contains(text, "# LLVM-EXEGESIS-MEM-DEF MEM 4096 00000008") {
		t.Errorf("missing/wrong mem-def directive:\n%s", text)
	}
	if !strings.Contains(text, "# LLVM-EXEGESIS-MEM-MAP MEM 305418240") {
		t.Errorf("missing/wrong mem-map directive:\n%s", text)
	}
}

func TestFormatASMUsesFastFinderInitialRegValue(t *testing.T) {
	b := annotate.AnnotatedBlock{
		AccessedAddrs: addrfinder.AccessedAddrs{
			InitialRegs: map[string]uint64{"RBX": 0xdeadbeef},
		},
		UsedRegisters: []string{"RBX"},
	}
	text := FormatASM(b)
	if !strings.Contains(text, "# LLVM-EXEGESIS-DEFREG RBX deadbeef") {
		t.Errorf("did not use fast-finder initial value:\n%s", text)
	}
}

func TestToJSONBlockRegisterValueIgnoresFastFinderObservation(t *testing.T) {
	b := annotate.AnnotatedBlock{
		AccessedAddrs: addrfinder.AccessedAddrs{
			InitialRegs: map[string]uint64{"RBX": 0xdeadbeef},
		},
		UsedRegisters: []string{"RBX"},
	}
	raw, err := json.Marshal(toJSONBlock(b))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded struct {
		RegisterDefinitions []struct {
			Register string
			Value    uint64
		}
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(decoded.RegisterDefinitions) != 1 || decoded.RegisterDefinitions[0].Value != kInitialRegVal {
		t.Errorf("RegisterDefinitions = %+v, want Value %d (kInitialRegVal), not the fast-finder observation",
			decoded.RegisterDefinitions, kInitialRegVal)
	}
}

func TestToJSONBlockEmptyMemoryFieldsMarshalAsEmptyArrays(t *testing.T) {
	raw, err := json.Marshal(toJSONBlock(annotate.AnnotatedBlock{}))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	text := string(raw)
	if !strings.Contains(text, `"MemoryDefinitions":[]`) {
		t.Errorf("MemoryDefinitions did not marshal as []:\n%s", text)
	}
	if !strings.Contains(text, `"MemoryMappings":[]`) {
		t.Errorf("MemoryMappings did not marshal as []:\n%s", text)
	}
}

func TestJSONBatchWriterFlushesAtBatchSize(t *testing.T) {
	dir := t.TempDir()
	w := &JSONBatchWriter{Dir: dir, BlocksPerFile: 2}

	b := annotate.AnnotatedBlock{Hex: "90"}
	if err := w.Add(b); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if w.nextFileIndex != 0 {
		t.Fatalf("flushed early: nextFileIndex = %d", w.nextFileIndex)
	}
	if err := w.Add(b); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if w.nextFileIndex != 1 {
		t.Fatalf("did not flush at batch size: nextFileIndex = %d", w.nextFileIndex)
	}
}

func TestJSONBatchWriterFlushesPartialBatchOnFlush(t *testing.T) {
	dir := t.TempDir()
	w := &JSONBatchWriter{Dir: dir, BlocksPerFile: 10}
	w.Add(annotate.AnnotatedBlock{Hex: "90"})

	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if w.nextFileIndex != 1 {
		t.Fatalf("Flush did not write the partial batch: nextFileIndex = %d", w.nextFileIndex)
	}
}

func TestCompositeEmitterNilWritersAreNoop(t *testing.T) {
	c := &CompositeEmitter{}
	if err := c.Emit(annotate.AnnotatedBlock{}); err != nil {
		t.Fatalf("Emit with nil writers: %v", err)
	}
	if err := c.Flush(); err != nil {
		t.Fatalf("Flush with nil writers: %v", err)
	}
}
