package main

import (
	"flag"
	"fmt"
	"os"

	"bbannotate/internal/addrfinder"
	"bbannotate/internal/annotate"
	"bbannotate/internal/diag"
	"bbannotate/internal/emit"
)

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	bhiveCSV := fs.String("bhive_csv", "", "input CSV path (required)")
	asmOutputDir := fs.String("asm_output_dir", "", "ASM output directory (empty disables ASM emission)")
	jsonOutputDir := fs.String("json_output_dir", "", "JSON output directory (empty disables JSON emission)")
	annotatorImpl := fs.String("annotator_implementation", "fast", "exegesis | fast | none")
	blocksPerJSONFile := fs.Int("blocks_per_json_file", 1000, "blocks per JSON batch file")
	maxBBCount := fs.Int("max_bb_count", 0, "maximum blocks to process (0 = unlimited)")
	reportProgressEvery := fs.Int("report_progress_every", 0, "progress report cadence (0 = disabled)")
	skipNoLoopRegister := fs.Bool("skip_no_loop_register", true, "skip blocks with no free loop register")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *bhiveCSV == "" {
		return fmt.Errorf("bbannotate run: --bhive_csv is required")
	}

	cfg := annotate.Config{
		BHiveCSV:                *bhiveCSV,
		ASMOutputDir:            *asmOutputDir,
		JSONOutputDir:           *jsonOutputDir,
		AnnotatorImplementation: annotate.FinderKind(*annotatorImpl),
		BlocksPerJSONFile:       *blocksPerJSONFile,
		MaxBBCount:              *maxBBCount,
		ReportProgressEvery:     *reportProgressEvery,
		SkipNoLoopRegister:      *skipNoLoopRegister,
	}
	switch cfg.AnnotatorImplementation {
	case annotate.FinderExegesis, annotate.FinderFast, annotate.FinderNone:
	default:
		return fmt.Errorf("bbannotate run: --annotator_implementation must be exegesis, fast, or none, got %q", *annotatorImpl)
	}
	if cfg.BlocksPerJSONFile <= 0 {
		return fmt.Errorf("bbannotate run: --blocks_per_json_file must be > 0")
	}

	f, err := annotate.OpenOutput(cfg.BHiveCSV)
	if err != nil {
		return err
	}
	defer f.Close()

	var finder addrfinder.Finder
	switch cfg.AnnotatorImplementation {
	case annotate.FinderFast:
		finder = &addrfinder.FastFinder{}
	case annotate.FinderExegesis:
		finder = &addrfinder.ExegesisFinder{}
	case annotate.FinderNone:
		finder = nil
	}

	emitter := &emit.CompositeEmitter{}
	if cfg.ASMOutputDir != "" {
		emitter.ASM = &emit.ASMWriter{Dir: cfg.ASMOutputDir}
	}
	if cfg.JSONOutputDir != "" {
		emitter.JSON = &emit.JSONBatchWriter{Dir: cfg.JSONOutputDir, BlocksPerFile: cfg.BlocksPerJSONFile}
	}

	progress := func(processed, skipped int) {
		fmt.Fprintf(os.Stderr, "bbannotate: processed %d blocks, skipped %d (no loop register)\n", processed, skipped)
	}

	if err := annotate.Run(f, cfg, finder, emitter, progress); err != nil {
		if _, ok := err.(*diag.Failure); ok {
			return err
		}
		return &diag.Failure{Kind: diag.KindConfig, Err: err}
	}
	return nil
}
