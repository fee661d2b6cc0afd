package addrfinder

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ChildEnvVar, when set to "1" in the process environment, tells main to
// call RunChild instead of the normal command dispatch. The finder sets it
// on the copy of itself it re-executes as the traced child.
const ChildEnvVar = "BBANNOTATE_ADDRFINDER_CHILD"

// childRequestFD and childReplyFD are the pipe ends the parent hands down
// via os/exec's ExtraFiles, landing at these fixed descriptor numbers in
// the child (3 is the first slot after stdin/stdout/stderr).
const (
	childRequestFD = 3
	childReplyFD   = 4
)

// epilogueTrap is appended after every candidate block. It raises SIGTRAP,
// which the parent uses to tell "block ran to completion" apart from a
// genuine SIGSEGV/SIGBUS fault.
var epilogueTrap = []byte{0xCC} // int3

func writeChildRequest(w io.Writer, req childRequest) error {
	var hdr [8 * 3]byte
	binary.LittleEndian.PutUint64(hdr[0:8], req.CodeLocation)
	binary.LittleEndian.PutUint64(hdr[8:16], req.BlockSize)
	binary.LittleEndian.PutUint64(hdr[16:24], uint64(len(req.MappedAddrs)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	for _, addr := range req.MappedAddrs {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], addr)
		if _, err := w.Write(b[:]); err != nil {
			return err
		}
	}
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(req.Block)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(req.Block)
	return err
}

func readChildRequest(r io.Reader) (childRequest, error) {
	var hdr [8 * 3]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return childRequest{}, err
	}
	req := childRequest{
		CodeLocation: binary.LittleEndian.Uint64(hdr[0:8]),
		BlockSize:    binary.LittleEndian.Uint64(hdr[8:16]),
	}
	numAddrs := binary.LittleEndian.Uint64(hdr[16:24])
	req.MappedAddrs = make([]uint64, numAddrs)
	for i := range req.MappedAddrs {
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return childRequest{}, err
		}
		req.MappedAddrs[i] = binary.LittleEndian.Uint64(b[:])
	}
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return childRequest{}, err
	}
	req.Block = make([]byte, binary.LittleEndian.Uint64(lenBuf[:]))
	if _, err := io.ReadFull(r, req.Block); err != nil {
		return childRequest{}, err
	}
	return req, nil
}

// childRequest is what the parent sends the traced child over the request
// pipe: the raw block, addresses to pre-map (from earlier faults), and the
// address the code itself should be mapped at.
type childRequest struct {
	CodeLocation uint64
	BlockSize    uint64
	MappedAddrs  []uint64
	Block        []byte
}

// RunChild is the entry point for the re-executed, ptrace(PTRACE_TRACEME)'d
// copy of the process. It never returns: it maps the requested memory,
// jumps into the candidate block, and lets whatever the block does happen
// under the parent's supervision. Callers reach it only via ChildEnvVar.
func RunChild() {
	reqFile := os.NewFile(uintptr(childRequestFD), "addrfinder-request")
	replyFile := os.NewFile(uintptr(childReplyFD), "addrfinder-reply")

	req, err := readChildRequest(reqFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "addrfinder child: reading request: %v\n", err)
		os.Exit(1)
	}

	for _, addr := range req.MappedAddrs {
		if err := mapFixedAnon(addr, req.BlockSize); err != nil {
			fmt.Fprintf(os.Stderr, "addrfinder child: mapping %#x: %v\n", addr, err)
			os.Exit(1)
		}
	}

	prologue := gprPrologue(kInitialRegVal)
	code := make([]byte, 0, len(prologue)+len(req.Block)+len(epilogueTrap))
	code = append(code, prologue...)
	code = append(code, req.Block...)
	code = append(code, epilogueTrap...)

	codeLocation := req.CodeLocation
	if codeLocation == 0 {
		codeLocation = defaultCodeLocation
	}

	mem, err := mmapAt(codeLocation, len(code), unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		fmt.Fprintf(os.Stderr, "addrfinder child: mmap code: %v\n", err)
		os.Exit(1)
	}
	copy(mem, code)
	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		fmt.Fprintf(os.Stderr, "addrfinder child: mprotect code: %v\n", err)
		os.Exit(1)
	}

	mappedAt := uint64(uintptr(unsafe.Pointer(&mem[0])))
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], mappedAt)
	if _, err := replyFile.Write(b[:]); err != nil {
		fmt.Fprintf(os.Stderr, "addrfinder child: writing reply: %v\n", err)
		os.Exit(1)
	}
	replyFile.Close()

	jumpInto(mem)

	// jumpInto never returns for a well-formed block; this is only reached
	// if the epilogue trap somehow failed to stop us.
	os.Exit(1)
}

// jumpInto calls into a page of executable memory as if it were a niladic
// Go function. A func value is itself a pointer to a word holding the
// entry address, so building that one-word indirection by hand and
// reinterpreting it as a func() is the same trick minimal Go JIT shims use
// to run hand-assembled machine code without cgo. This never returns for
// a well-formed block: execution either faults or reaches the epilogue
// trap, both of which stop the process under ptrace rather than returning
// control to this call.
func jumpInto(code []byte) {
	entry := uintptr(unsafe.Pointer(&code[0]))
	fn := *(*func())(unsafe.Pointer(&entry))
	fn()
}

func mapFixedAnon(addr, size uint64) error {
	mem, err := mmapAt(addr, int(size), unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_FIXED)
	if err != nil {
		return err
	}
	fillInitialMemVal(mem)
	return nil
}

// fillInitialMemVal tiles kInitialMemVal across mem, little-endian, so a
// block that chains a second dereference off a discovered page's content
// sees the same poison pattern the exegesis benchmark runner initializes
// its memory definitions with, rather than a zero-filled anonymous page.
func fillInitialMemVal(mem []byte) {
	var pattern [4]byte
	binary.LittleEndian.PutUint32(pattern[:], kInitialMemVal)
	for i := range mem {
		mem[i] = pattern[i%4]
	}
}

// mmapAt is unix.Mmap's uncommon sibling: the convenience wrapper always
// passes a null address hint, but the child needs to place the code buffer
// and remapped fault pages at addresses the parent already told it about.
func mmapAt(addr uint64, length, prot, flags int) ([]byte, error) {
	r0, _, errno := unix.Syscall6(unix.SYS_MMAP, uintptr(addr), uintptr(length),
		uintptr(prot), uintptr(flags), ^uintptr(0), 0)
	if errno != 0 {
		return nil, errno
	}
	var b []byte
	sh := (*sliceHeader)(unsafe.Pointer(&b))
	sh.Data = r0
	sh.Len = length
	sh.Cap = length
	return b, nil
}

type sliceHeader struct {
	Data uintptr
	Len  int
	Cap  int
}
