// Package annotate composes disassembly, register-role analysis, and
// accessed-address discovery into per-block annotations, and orchestrates
// that work across an input stream of basic blocks.
package annotate

import (
	"bbannotate/internal/addrfinder"
	"bbannotate/internal/disasm"
)

// AnnotatedBlock is the complete set of facts the emitters need to turn a
// raw basic block into a harness-runnable snippet.
type AnnotatedBlock struct {
	AccessedAddrs addrfinder.AccessedAddrs
	Instructions  []disasm.DecodedInstruction
	UsedRegisters []string
	LoopRegister  string // "" means none
	Hex           string
}

// FinderKind selects which accessed-address strategy the orchestrator
// runs for each block.
type FinderKind string

const (
	FinderExegesis FinderKind = "exegesis"
	FinderFast     FinderKind = "fast"
	FinderNone     FinderKind = "none"
)

// Config holds the run's options. It mirrors the orchestrator's external
// configuration surface one-to-one; the CLI layer is responsible for
// parsing flags into this shape.
type Config struct {
	BHiveCSV                string
	ASMOutputDir            string
	JSONOutputDir           string
	AnnotatorImplementation FinderKind
	BlocksPerJSONFile       int
	MaxBBCount              int
	ReportProgressEvery     int
	SkipNoLoopRegister      bool
}

// Annotate runs disassembly, register-role analysis, and the configured
// finder over one block's raw bytes.
func Annotate(raw []byte, hex string, finder addrfinder.Finder) (AnnotatedBlock, error) {
	insns, err := disasm.Decode(raw)
	if err != nil {
		return AnnotatedBlock{}, err
	}

	used := disasm.UsedRegisters(insns)
	loop, _ := disasm.LoopRegister(insns)

	var addrs addrfinder.AccessedAddrs
	if finder != nil {
		addrs, err = finder.Find(raw)
		if err != nil {
			return AnnotatedBlock{}, err
		}
	} else {
		addrs = addrfinder.AccessedAddrs{BlockSize: addrfinder.PageSize}
	}

	return AnnotatedBlock{
		AccessedAddrs: addrs,
		Instructions:  insns,
		UsedRegisters: used,
		LoopRegister:  loop,
		Hex:           hex,
	}, nil
}
