// Package emit serializes AnnotatedBlock values to the two on-disk formats
// a measurement harness consumes: per-block ASM-with-directives files and
// batched JSON bundles.
package emit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"bbannotate/internal/annotate"
)

// kInitialMemVal is the 32-bit fill pattern for a finder's discovered
// memory regions; kept here too since the ASM/JSON text format embeds it
// directly rather than deriving it from the finder.
const kInitialMemVal uint32 = 0x00000008

// kInitialMemValBitWidth sets the minimum hex digit width the memory
// initial-value string is padded to; the harness infers the bit width
// a region was defined with from the string's length.
const kInitialMemValBitWidth = 32

// kInitialRegVal mirrors addrfinder.kInitialRegVal; duplicated rather than
// imported so this package doesn't need to special-case register classes
// the finder never touches (XMM and friends always use this default).
const kInitialRegVal uint64 = 0x12345600

// ASMWriter writes one ".test" file per block under a fixed directory,
// numbered sequentially by the order Write is called.
type ASMWriter struct {
	Dir     string
	counter int
}

// Write serializes one block's directives and assembly text and returns
// the path it was written to.
func (w *ASMWriter) Write(b annotate.AnnotatedBlock) (string, error) {
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return "", fmt.Errorf("emit: mkdir %s: %w", w.Dir, err)
	}
	path := filepath.Join(w.Dir, fmt.Sprintf("%d.test", w.counter))
	w.counter++

	text := FormatASM(b)
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("emit: write %s: %w", path, err)
	}
	return path, nil
}

// FormatASM renders one block's directive comments and assembly lines.
func FormatASM(b annotate.AnnotatedBlock) string {
	initial := registerDefValues(b)

	var out string
	for _, reg := range b.UsedRegisters {
		out += fmt.Sprintf("# LLVM-EXEGESIS-DEFREG %s %x\n", reg, initial[reg])
	}
	if len(b.AccessedAddrs.AccessedBlocks) > 0 {
		out += fmt.Sprintf("# LLVM-EXEGESIS-MEM-DEF MEM %d %s\n",
			b.AccessedAddrs.BlockSize, memInitialHex())
		for _, addr := range b.AccessedAddrs.AccessedBlocks {
			out += fmt.Sprintf("# LLVM-EXEGESIS-MEM-MAP MEM %d\n", addr)
		}
	}
	if b.LoopRegister != "" {
		out += fmt.Sprintf("# LLVM-EXEGESIS-LOOP-REGISTER %s\n", b.LoopRegister)
	}
	for _, inst := range b.Instructions {
		out += inst.AssemblyText + "\n"
	}
	return out
}

// registerDefValues picks, for each used register, the fast finder's
// observed initial value if one exists, falling back to kInitialRegVal.
func registerDefValues(b annotate.AnnotatedBlock) map[string]uint64 {
	vals := make(map[string]uint64, len(b.UsedRegisters))
	for _, reg := range b.UsedRegisters {
		if v, ok := b.AccessedAddrs.InitialRegs[reg]; ok {
			vals[reg] = v
		} else {
			vals[reg] = kInitialRegVal
		}
	}
	return vals
}

func memInitialHex() string {
	s := fmt.Sprintf("%x", kInitialMemVal)
	minDigits := kInitialMemValBitWidth / 4
	for len(s) < minDigits {
		s = "0" + s
	}
	return s
}

// jsonRegisterDefinition and friends mirror the wire format a measurement
// harness expects, in the field names and casing it expects them in.
type jsonRegisterDefinition struct {
	Register string `json:"Register"`
	Value    uint64 `json:"Value"`
}

type jsonMemoryDefinition struct {
	Name  string `json:"Name"`
	Size  uint64 `json:"Size"`
	Value uint32 `json:"Value"`
}

type jsonMemoryMapping struct {
	Value   string `json:"Value"`
	Address uint64 `json:"Address"`
}

type jsonBlock struct {
	RegisterDefinitions []jsonRegisterDefinition `json:"RegisterDefinitions"`
	LoopRegister        *string                  `json:"LoopRegister"`
	MemoryDefinitions   []jsonMemoryDefinition    `json:"MemoryDefinitions"`
	MemoryMappings      []jsonMemoryMapping       `json:"MemoryMappings"`
	Hex                 string                    `json:"Hex"`
}

func toJSONBlock(b annotate.AnnotatedBlock) jsonBlock {
	// JSON always emits kInitialRegVal, unlike the ASM format's per-register
	// DEFREG directives, which prefer the fast finder's observed value.
	defs := make([]jsonRegisterDefinition, 0, len(b.UsedRegisters))
	for _, reg := range b.UsedRegisters {
		defs = append(defs, jsonRegisterDefinition{Register: reg, Value: kInitialRegVal})
	}

	var loop *string
	if b.LoopRegister != "" {
		l := b.LoopRegister
		loop = &l
	}

	memDefs := make([]jsonMemoryDefinition, 0)
	memMaps := make([]jsonMemoryMapping, 0)
	if len(b.AccessedAddrs.AccessedBlocks) > 0 {
		memDefs = []jsonMemoryDefinition{{
			Name:  "MEM",
			Size:  b.AccessedAddrs.BlockSize,
			Value: kInitialMemVal,
		}}
		for _, addr := range b.AccessedAddrs.AccessedBlocks {
			memMaps = append(memMaps, jsonMemoryMapping{Value: "MEM", Address: addr})
		}
	}

	return jsonBlock{
		RegisterDefinitions: defs,
		LoopRegister:        loop,
		MemoryDefinitions:   memDefs,
		MemoryMappings:      memMaps,
		Hex:                 b.Hex,
	}
}

// JSONBatchWriter accumulates blocks into fixed-size batches and flushes
// each to a sequentially numbered "<n>.json" file.
type JSONBatchWriter struct {
	Dir           string
	BlocksPerFile int
	batch         []jsonBlock
	nextFileIndex int
}

// Add appends one block to the current batch, flushing it if it has
// reached BlocksPerFile.
func (w *JSONBatchWriter) Add(b annotate.AnnotatedBlock) error {
	w.batch = append(w.batch, toJSONBlock(b))
	if len(w.batch) >= w.BlocksPerFile {
		return w.flush()
	}
	return nil
}

// Flush writes out any partial batch. Call once at end-of-input; a no-op
// if the batch is empty.
func (w *JSONBatchWriter) Flush() error {
	if len(w.batch) == 0 {
		return nil
	}
	return w.flush()
}

// CompositeEmitter satisfies annotate.Emitter, fanning each block out to
// whichever of the ASM and JSON writers are configured. Either may be nil
// to disable that output, matching the orchestrator's "empty directory
// disables this output" configuration rule.
type CompositeEmitter struct {
	ASM  *ASMWriter
	JSON *JSONBatchWriter
}

func (c *CompositeEmitter) Emit(b annotate.AnnotatedBlock) error {
	if c.ASM != nil {
		if _, err := c.ASM.Write(b); err != nil {
			return err
		}
	}
	if c.JSON != nil {
		if err := c.JSON.Add(b); err != nil {
			return err
		}
	}
	return nil
}

func (c *CompositeEmitter) Flush() error {
	if c.JSON != nil {
		return c.JSON.Flush()
	}
	return nil
}

func (w *JSONBatchWriter) flush() error {
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return fmt.Errorf("emit: mkdir %s: %w", w.Dir, err)
	}
	path := filepath.Join(w.Dir, fmt.Sprintf("%d.json", w.nextFileIndex))
	w.nextFileIndex++

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("emit: create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(w.batch); err != nil {
		return fmt.Errorf("emit: encode %s: %w", path, err)
	}
	w.batch = w.batch[:0]
	return nil
}
