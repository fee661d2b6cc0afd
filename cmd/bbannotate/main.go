// Command bbannotate converts bhive-style basic-block CSVs into harness
// annotation files and batched graph-neural-network training tensors.
package main

import (
	"fmt"
	"os"

	"bbannotate/internal/addrfinder"
	"bbannotate/internal/diag"
)

// exitCodeFor maps a failure to its prescribed process exit code. Errors
// that never got classified into a diag.Failure (flag parsing, missing
// required flags) are treated as configuration errors.
func exitCodeFor(err error) int {
	var f *diag.Failure
	if castErr, ok := err.(*diag.Failure); ok {
		f = castErr
		return f.Kind.ExitCode()
	}
	return 1
}

func main() {
	// Re-executed copies of this binary used by the address finders never
	// reach normal argument dispatch: they read their job off a pipe and
	// run a block under ptrace supervision until they fault or trap.
	if os.Getenv(addrfinder.ChildEnvVar) == "1" {
		addrfinder.RunChild()
		return
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = cmdRun(os.Args[2:])
	case "graph-dump":
		err = cmdGraphDump(os.Args[2:])
	case "help", "-h", "--help":
		usage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `bbannotate — basic-block annotation and graph export

Usage:
  bbannotate run --bhive_csv <path> [--asm_output_dir <dir>] [--json_output_dir <dir>]
                 [--annotator_implementation exegesis|fast|none]
                 [--blocks_per_json_file <n>] [--max_bb_count <n>]
                 [--report_progress_every <n>] [--skip_no_loop_register]

  bbannotate graph-dump --hex <comma-separated hex blocks> --vocab <path>
                        [--oov return-error|replace:<token>] [--dot <dir>]

  bbannotate help
`)
}
