package annotate

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"bbannotate/internal/addrfinder"
	"bbannotate/internal/diag"
)

// Emitter is the sink side of the orchestrator: whatever wants to persist
// each surviving AnnotatedBlock. cmd/bbannotate wires this to the ASM and
// JSON writers in internal/emit; tests can substitute a recording stub.
type Emitter interface {
	Emit(AnnotatedBlock) error
	Flush() error
}

// Progress is called every ReportProgressEvery blocks, and once more at
// end-of-run, with the number of blocks processed so far and the running
// skip count.
type Progress func(processed, skipped int)

// Run reads bhive-style CSV rows from r, annotates each block, applies the
// skip policy, and emits survivors through emitter. It returns the first
// fatal error encountered, classified per the run's exit-code policy: a
// parse, disassembly, or finder failure on any line is fatal to the whole
// run, matching the rationale that silently dropping such blocks would
// skew downstream datasets.
func Run(r io.Reader, cfg Config, finder addrfinder.Finder, emitter Emitter, progress Progress) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	lineNum := 0
	processed := 0
	skipped := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" {
			return &diag.Failure{Kind: diag.KindInputParse, HexLine: lineNum, HexPrefix: line,
				Err: fmt.Errorf("empty line")}
		}

		hexField, ok := firstCSVField(line)
		if !ok {
			return &diag.Failure{Kind: diag.KindInputParse, HexLine: lineNum, HexPrefix: line,
				Err: fmt.Errorf("line has no comma-separated fields")}
		}

		raw, err := hex.DecodeString(hexField)
		if err != nil {
			return &diag.Failure{Kind: diag.KindInputParse, HexLine: lineNum, HexPrefix: hexField,
				Err: fmt.Errorf("invalid hex: %w", err)}
		}

		block, err := Annotate(raw, hexField, finder)
		if err != nil {
			kind := diag.KindDisassembly
			if _, isFinderErr := err.(*addrfinder.FinderError); isFinderErr {
				kind = diag.KindFinder
			}
			return &diag.Failure{Kind: kind, HexLine: lineNum, HexPrefix: hexField, Err: err}
		}

		if block.LoopRegister == "" && cfg.SkipNoLoopRegister {
			skipped++
			continue
		}

		if err := emitter.Emit(block); err != nil {
			return &diag.Failure{Kind: diag.KindEmitterIO, HexLine: lineNum, HexPrefix: hexField, Err: err}
		}

		processed++
		if progress != nil && cfg.ReportProgressEvery > 0 && processed%cfg.ReportProgressEvery == 0 {
			progress(processed, skipped)
		}
		if cfg.MaxBBCount > 0 && processed >= cfg.MaxBBCount {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return &diag.Failure{Kind: diag.KindInputParse, HexLine: lineNum, Err: fmt.Errorf("reading csv: %w", err)}
	}

	if err := emitter.Flush(); err != nil {
		return &diag.Failure{Kind: diag.KindEmitterIO, HexLine: lineNum, Err: err}
	}

	if progress != nil {
		progress(processed, skipped)
	}
	return nil
}

func firstCSVField(line string) (string, bool) {
	idx := strings.IndexByte(line, ',')
	if idx < 0 {
		return "", false
	}
	return line[:idx], true
}

// OpenOutput opens path for reading, wrapping os.Open's error in the
// config-error kind the run's top-level dispatch treats as exit code 1.
func OpenOutput(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("annotate: opening %s: %w", path, err)
	}
	return f, nil
}
