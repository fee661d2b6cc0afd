package main

import (
	"bufio"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"bbannotate/internal/blockcfg"
	"bbannotate/internal/diag"
	"bbannotate/internal/disasm"
	"bbannotate/internal/graph"
)

func cmdGraphDump(args []string) error {
	fs := flag.NewFlagSet("graph-dump", flag.ContinueOnError)
	hexBlocks := fs.String("hex", "", "comma-separated hex-encoded basic blocks")
	vocabPath := fs.String("vocab", "", "vocabulary file, one token per line (required)")
	oov := fs.String("oov", "return-error", `"return-error" or "replace:<token>"`)
	immediateTok := fs.String("immediate_token", "immediate", "vocabulary token for Immediate nodes")
	fpImmediateTok := fs.String("fp_immediate_token", "fp_immediate", "vocabulary token for FpImmediate nodes")
	addressTok := fs.String("address_token", "address", "vocabulary token for AddressOperand nodes")
	memoryTok := fs.String("memory_token", "memory", "vocabulary token for MemoryOperand nodes")
	dotDir := fs.String("dot", "", "if set, write a per-block debug CFG .dot file to this directory")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *vocabPath == "" {
		return fmt.Errorf("bbannotate graph-dump: --vocab is required")
	}
	if *hexBlocks == "" {
		return fmt.Errorf("bbannotate graph-dump: --hex is required")
	}

	tokens, err := readVocabFile(*vocabPath)
	if err != nil {
		return err
	}
	vocab, err := graph.NewVocabulary(tokens)
	if err != nil {
		return &diag.Failure{Kind: diag.KindVocabulary, Err: err}
	}

	policy, err := parseOOVPolicy(*oov)
	if err != nil {
		return err
	}

	g, err := graph.New(graph.Config{
		Vocabulary:       vocab,
		ImmediateToken:   *immediateTok,
		FpImmediateToken: *fpImmediateTok,
		AddressToken:     *addressTok,
		MemoryToken:      *memoryTok,
		OOV:              policy,
	})
	if err != nil {
		return &diag.Failure{Kind: diag.KindVocabulary, Err: err}
	}

	blocks := strings.Split(*hexBlocks, ",")
	for i, h := range blocks {
		raw, err := hex.DecodeString(strings.TrimSpace(h))
		if err != nil {
			return &diag.Failure{Kind: diag.KindInputParse, HexLine: i, HexPrefix: h, Err: err}
		}
		insns, err := disasm.Decode(raw)
		if err != nil {
			return &diag.Failure{Kind: diag.KindDisassembly, HexLine: i, HexPrefix: h, Err: err}
		}
		if !g.AddBlock(insns) {
			return &diag.Failure{Kind: diag.KindOOV, HexLine: i, HexPrefix: h,
				Err: fmt.Errorf("out-of-vocabulary token under ReturnError policy")}
		}

		if *dotDir != "" {
			name := fmt.Sprintf("block%d", i)
			if err := os.MkdirAll(*dotDir, 0755); err != nil {
				return &diag.Failure{Kind: diag.KindEmitterIO, Err: err}
			}
			dotPath := filepath.Join(*dotDir, name+".dot")
			if err := os.WriteFile(dotPath, []byte(blockcfg.DOT(name, insns)), 0644); err != nil {
				return &diag.Failure{Kind: diag.KindEmitterIO, Err: err}
			}
		}
	}

	fmt.Println(g.DebugString())
	return nil
}

func readVocabFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &diag.Failure{Kind: diag.KindConfig, Err: err}
	}
	defer f.Close()

	var tokens []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		tokens = append(tokens, line)
	}
	if err := sc.Err(); err != nil {
		return nil, &diag.Failure{Kind: diag.KindConfig, Err: err}
	}
	return tokens, nil
}

func parseOOVPolicy(s string) (graph.OOVPolicy, error) {
	if s == "return-error" {
		return graph.OOVPolicy{Behavior: graph.OOVReturnError}, nil
	}
	if strings.HasPrefix(s, "replace:") {
		tok := strings.TrimPrefix(s, "replace:")
		if tok == "" {
			return graph.OOVPolicy{}, fmt.Errorf("bbannotate graph-dump: --oov replace: requires a token name")
		}
		return graph.OOVPolicy{Behavior: graph.OOVReplaceToken, ReplacementToken: tok}, nil
	}
	return graph.OOVPolicy{}, fmt.Errorf(`bbannotate graph-dump: --oov must be "return-error" or "replace:<token>", got %q`, s)
}
