package addrfinder

import (
	"io"
	"testing"
)

func TestAddBlockDedupesAndPreservesOrder(t *testing.T) {
	var a AccessedAddrs
	a.addBlock(0x2000)
	a.addBlock(0x1000)
	a.addBlock(0x2000)

	want := []uint64{0x2000, 0x1000}
	if len(a.AccessedBlocks) != len(want) {
		t.Fatalf("AccessedBlocks = %v, want %v", a.AccessedBlocks, want)
	}
	for i, v := range want {
		if a.AccessedBlocks[i] != v {
			t.Errorf("AccessedBlocks[%d] = %#x, want %#x", i, a.AccessedBlocks[i], v)
		}
	}
}

func TestAlignDown(t *testing.T) {
	cases := []struct{ addr, align, want uint64 }{
		{0x1234, 0x1000, 0x1000},
		{0x1000, 0x1000, 0x1000},
		{0xFFF, 0x1000, 0},
	}
	for _, c := range cases {
		if got := alignDown(c.addr, c.align); got != c.want {
			t.Errorf("alignDown(%#x, %#x) = %#x, want %#x", c.addr, c.align, got, c.want)
		}
	}
}

func TestFinderErrorUnwrap(t *testing.T) {
	inner := errString("boom")
	e := &FinderError{Kind: KindFatalFault, Err: inner}
	if e.Unwrap() != inner {
		t.Errorf("Unwrap() did not return the wrapped error")
	}
	if e.Error() == "" {
		t.Errorf("Error() returned empty string")
	}
}

type errString string

func (e errString) Error() string { return string(e) }

func TestGPRPrologueSkipsStackPointer(t *testing.T) {
	code := gprPrologue(kInitialRegVal)

	// Every entry is a 10-byte mov r64, imm64: REX prefix, opcode, 8-byte
	// immediate. RSP is skipped, so 15 of the 16 GPRs are covered.
	const instrLen = 10
	wantRegs := 15
	if len(code) != wantRegs*instrLen {
		t.Fatalf("len(code) = %d, want %d", len(code), wantRegs*instrLen)
	}

	for i := 0; i < wantRegs; i++ {
		off := i * instrLen
		rex := code[off]
		if rex != 0x48 && rex != 0x49 {
			t.Errorf("instruction %d: REX byte = %#x, want 0x48 or 0x49", i, rex)
		}
		opcode := code[off+1]
		if opcode < 0xB8 || opcode > 0xBF {
			t.Errorf("instruction %d: opcode = %#x, want 0xB8-0xBF", i, opcode)
		}
		imm := leUint64(code[off+2 : off+10])
		if imm != kInitialRegVal {
			t.Errorf("instruction %d: immediate = %#x, want %#x", i, imm, kInitialRegVal)
		}
	}

	// RSP is encoding index 4: REX.B=0 (0x48), opcode 0xBC. Confirm that
	// exact byte pair never shows up as a standalone mov-rsp instruction.
	for i := 0; i+1 < len(code); i++ {
		if code[i] == 0x48 && code[i+1] == 0xBC {
			t.Errorf("found a mov rsp, imm64 encoding at byte %d; RSP must be left untouched", i)
		}
	}
}

func TestChildRequestRoundTrip(t *testing.T) {
	var buf fakeBuffer
	req := childRequest{
		CodeLocation: 0x2b0000000000,
		BlockSize:    PageSize,
		MappedAddrs:  []uint64{0x1000, 0x3000},
		Block:        []byte{0x90, 0x90, 0xC3},
	}
	if err := writeChildRequest(&buf, req); err != nil {
		t.Fatalf("writeChildRequest: %v", err)
	}

	got, err := readChildRequest(&buf)
	if err != nil {
		t.Fatalf("readChildRequest: %v", err)
	}
	if got.CodeLocation != req.CodeLocation || got.BlockSize != req.BlockSize {
		t.Errorf("scalar fields mismatch: got %+v, want %+v", got, req)
	}
	if len(got.MappedAddrs) != len(req.MappedAddrs) {
		t.Fatalf("MappedAddrs length = %d, want %d", len(got.MappedAddrs), len(req.MappedAddrs))
	}
	for i := range req.MappedAddrs {
		if got.MappedAddrs[i] != req.MappedAddrs[i] {
			t.Errorf("MappedAddrs[%d] = %#x, want %#x", i, got.MappedAddrs[i], req.MappedAddrs[i])
		}
	}
	if string(got.Block) != string(req.Block) {
		t.Errorf("Block = %v, want %v", got.Block, req.Block)
	}
}

type fakeBuffer struct {
	data []byte
}

func (b *fakeBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *fakeBuffer) Read(p []byte) (int, error) {
	if len(b.data) == 0 {
		return 0, io.EOF
	}
	n := copy(p, b.data)
	b.data = b.data[n:]
	return n, nil
}
