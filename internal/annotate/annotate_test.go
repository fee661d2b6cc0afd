package annotate

import (
	"strings"
	"testing"
)

func hexBytes(t *testing.T, s string) []byte {
	t.Helper()
	b := make([]byte, len(s)/2)
	for i := range b {
		hi := fromHexDigit(s[2*i])
		lo := fromHexDigit(s[2*i+1])
		b[i] = hi<<4 | lo
	}
	return b
}

func fromHexDigit(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}

func TestAnnotateNopPicksRAXAsLoopRegister(t *testing.T) {
	b, err := Annotate(hexBytes(t, "90"), "90", nil)
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if len(b.UsedRegisters) != 0 {
		t.Errorf("UsedRegisters = %v, want empty", b.UsedRegisters)
	}
	if b.LoopRegister != "RAX" {
		t.Errorf("LoopRegister = %q, want RAX", b.LoopRegister)
	}
}

func TestAnnotateAddCmpUsedRegisters(t *testing.T) {
	b, err := Annotate(hexBytes(t, "4883c1014883fa40"), "4883c1014883fa40", nil)
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	want := []string{"RCX", "RDX"}
	if len(b.UsedRegisters) != len(want) {
		t.Fatalf("UsedRegisters = %v, want %v", b.UsedRegisters, want)
	}
	for i, r := range want {
		if b.UsedRegisters[i] != r {
			t.Errorf("UsedRegisters[%d] = %s, want %s", i, b.UsedRegisters[i], r)
		}
	}
	if b.LoopRegister != "RAX" {
		t.Errorf("LoopRegister = %q, want RAX", b.LoopRegister)
	}
}

type fakeEmitter struct {
	blocks []AnnotatedBlock
}

func (e *fakeEmitter) Emit(b AnnotatedBlock) error {
	e.blocks = append(e.blocks, b)
	return nil
}

func (e *fakeEmitter) Flush() error { return nil }

func TestRunDoesNotSkipBlockWithLoopRegister(t *testing.T) {
	// With SkipNoLoopRegister enabled, a block that has a free loop
	// register (nop leaves every GPR free) is NOT skipped and reaches the
	// emitter exactly once.
	cfg := Config{SkipNoLoopRegister: true, ReportProgressEvery: 0}
	em := &fakeEmitter{}
	input := "90,1.0\n"

	if err := Run(strings.NewReader(input), cfg, nil, em, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(em.blocks) != 1 {
		t.Fatalf("emitted %d blocks, want 1", len(em.blocks))
	}
}

func TestRunFailsClosedOnBadHex(t *testing.T) {
	cfg := Config{SkipNoLoopRegister: true}
	em := &fakeEmitter{}
	input := "zz,1.0\n"

	err := Run(strings.NewReader(input), cfg, nil, em, nil)
	if err == nil {
		t.Fatal("Run should have failed on invalid hex")
	}
}

func TestRunRejectsLineWithoutComma(t *testing.T) {
	cfg := Config{SkipNoLoopRegister: true}
	em := &fakeEmitter{}
	input := "90\n"

	err := Run(strings.NewReader(input), cfg, nil, em, nil)
	if err == nil {
		t.Fatal("Run should have failed on a line without a comma")
	}
}

func TestRunRejectsEmptyLine(t *testing.T) {
	cfg := Config{SkipNoLoopRegister: true}
	em := &fakeEmitter{}
	input := "90,1.0\n\n90,1.0\n"

	err := Run(strings.NewReader(input), cfg, nil, em, nil)
	if err == nil {
		t.Fatal("Run should have failed on an empty line")
	}
}

func TestRunRespectsMaxBBCount(t *testing.T) {
	cfg := Config{SkipNoLoopRegister: true, MaxBBCount: 1}
	em := &fakeEmitter{}
	input := "90,1.0\n90,1.0\n90,1.0\n"

	if err := Run(strings.NewReader(input), cfg, nil, em, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(em.blocks) != 1 {
		t.Fatalf("emitted %d blocks, want 1 (MaxBBCount)", len(em.blocks))
	}
}
