package addrfinder

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// defaultCodeLocation is where a candidate block's machine code is mapped
// absent any earlier discovery telling the child otherwise. It sits in the
// middle of a large, normally-unused range, so that RIP-relative addresses
// the block computes are likely to land on unmapped pages instead of
// aliasing the child's own code or stack.
const defaultCodeLocation = 0x2b0000000000

// gpr64Order lists fifteen of the sixteen 64-bit general-purpose registers
// by their x86-64 encoding numbers, the same order gprPrologue walks to
// build the mov-immediate sequence. RSP is skipped: overwriting it before the block
// runs would make the trampoline itself crash before the block ever
// executes.
var gpr64Order = []int{0, 1, 2, 3 /* RSP omitted */, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}

// gprPrologue returns machine code that loads val into every
// general-purpose register except RSP, so a block that dereferences a
// register as a pointer does so predictably and, if the address is
// unmapped, faults instead of silently reading the trampoline's own state.
func gprPrologue(val uint64) []byte {
	var code []byte
	for _, r := range gpr64Order {
		rex := byte(0x48)
		if r >= 8 {
			rex = 0x49
		}
		code = append(code, rex, 0xB8+byte(r&7))
		for i := 0; i < 8; i++ {
			code = append(code, byte(val>>(8*uint(i))))
		}
	}
	return code
}

// sigfaultInfo mirrors the head of Linux's siginfo_t for the SIGSEGV/SIGBUS
// case: signo/errno/code, then the faulting address as the first field of
// the union. golang.org/x/sys/unix's Siginfo leaves that union opaque, so
// this package reads it directly with the known glibc layout.
type sigfaultInfo struct {
	Signo, Errno, Code, _ int32
	Addr                  uint64
}

func ptraceGetSiginfo(pid int) (sigfaultInfo, error) {
	var info sigfaultInfo
	_, _, errno := unix.Syscall6(unix.SYS_PTRACE, unix.PTRACE_GETSIGINFO,
		uintptr(pid), 0, uintptr(unsafe.Pointer(&info)), 0, 0)
	if errno != 0 {
		return sigfaultInfo{}, errno
	}
	return info, nil
}

// FastFinder discovers a block's accessed addresses by running it once
// under ptrace and recording the first page it faults on. It never
// discovers more than one accessed page per call; callers that need the
// complete set for a multi-page block should prefer ExegesisFinder.
type FastFinder struct {
	// SelfPath overrides the executable re-exec'd to host the traced
	// child. Defaults to /proc/self/exe.
	SelfPath string
}

func (f *FastFinder) selfPath() string {
	if f.SelfPath != "" {
		return f.SelfPath
	}
	return "/proc/self/exe"
}

// Find implements Finder.
func (f *FastFinder) Find(block []byte) (AccessedAddrs, error) {
	addrs := AccessedAddrs{BlockSize: PageSize}
	if err := f.run(block, &addrs); err != nil {
		return AccessedAddrs{}, err
	}
	return addrs, nil
}

func (f *FastFinder) run(block []byte, addrs *AccessedAddrs) error {
	reqR, reqW, err := os.Pipe()
	if err != nil {
		return &FinderError{Kind: KindFatalFault, Err: fmt.Errorf("pipe: %w", err)}
	}
	replyR, replyW, err := os.Pipe()
	if err != nil {
		return &FinderError{Kind: KindFatalFault, Err: fmt.Errorf("pipe: %w", err)}
	}

	cmd := exec.Command(f.selfPath())
	cmd.Env = append(os.Environ(), ChildEnvVar+"=1")
	cmd.ExtraFiles = []*os.File{reqR, replyW}
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Ptrace: true}

	if err := cmd.Start(); err != nil {
		reqR.Close()
		reqW.Close()
		replyR.Close()
		replyW.Close()
		return &FinderError{Kind: KindFatalFault, Err: fmt.Errorf("starting traced child: %w", err)}
	}
	reqR.Close()
	replyW.Close()
	defer replyR.Close()

	req := childRequest{
		BlockSize:   addrs.BlockSize,
		MappedAddrs: append([]uint64(nil), addrs.AccessedBlocks...),
		Block:       block,
	}
	writeErr := writeChildRequest(reqW, req)
	reqW.Close()
	if writeErr != nil {
		_ = cmd.Process.Kill()
		cmd.Wait()
		return &FinderError{Kind: KindFatalFault, Err: fmt.Errorf("writing request to child: %w", writeErr)}
	}

	pid := cmd.Process.Pid

	var ws unix.WaitStatus
	if _, err := unix.Wait4(pid, &ws, 0, nil); err != nil {
		return &FinderError{Kind: KindFatalFault, Err: fmt.Errorf("waiting for initial stop: %w", err)}
	}
	if !ws.Stopped() {
		cmd.Wait()
		return &FinderError{Kind: KindFatalFault, Err: fmt.Errorf("child terminated before initial stop: %v", ws)}
	}

	if err := unix.PtraceCont(pid, 0); err != nil {
		f.killAndReap(pid, cmd)
		return &FinderError{Kind: KindFatalFault, Err: fmt.Errorf("PTRACE_CONT: %w", err)}
	}

	if _, err := unix.Wait4(pid, &ws, 0, nil); err != nil {
		return &FinderError{Kind: KindFatalFault, Err: fmt.Errorf("waiting for block outcome: %w", err)}
	}

	result := f.classify(pid, ws, addrs)

	f.killAndReap(pid, cmd)

	if result != nil {
		return result
	}

	var codeLoc [8]byte
	if _, err := replyR.Read(codeLoc[:]); err == nil {
		addrs.CodeLocation = leUint64(codeLoc[:])
	}
	addrs.InitialRegs = initialRegSnapshot()
	return nil
}

func (f *FastFinder) classify(pid int, ws unix.WaitStatus, addrs *AccessedAddrs) error {
	if !ws.Stopped() {
		return &FinderError{Kind: KindFatalFault, Err: fmt.Errorf("child terminated unexpectedly: %v", ws)}
	}
	sig := ws.StopSignal()
	switch sig {
	case unix.SIGTRAP:
		// The block ran to completion and hit the epilogue trap without
		// touching unmapped memory.
		return nil
	case unix.SIGSEGV, unix.SIGBUS:
		info, err := ptraceGetSiginfo(pid)
		if err != nil {
			return &FinderError{Kind: KindFatalFault, Err: fmt.Errorf("PTRACE_GETSIGINFO: %w", err)}
		}
		if info.Addr == 0 {
			return &FinderError{Kind: KindFatalFault, Err: fmt.Errorf("fault at address 0")}
		}
		page := alignDown(info.Addr, addrs.BlockSize)
		addrs.addBlock(page)
		return nil
	default:
		return &FinderError{Kind: KindFatalFault, Err: fmt.Errorf("child stopped with unexpected signal: %v", sig)}
	}
}

func (f *FastFinder) killAndReap(pid int, cmd *exec.Cmd) {
	// Killing outright rather than detaching avoids the child resuming and
	// re-raising the very SIGSEGV/SIGBUS we already recorded, which some
	// terminals would otherwise report as noise.
	unix.Kill(pid, unix.SIGKILL)
	cmd.Wait()
}

func initialRegSnapshot() map[string]uint64 {
	names := []string{"RAX", "RCX", "RDX", "RBX", "RBP", "RSI", "RDI",
		"R8", "R9", "R10", "R11", "R12", "R13", "R14", "R15"}
	regs := make(map[string]uint64, len(names))
	for _, n := range names {
		regs[n] = kInitialRegVal
	}
	return regs
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
