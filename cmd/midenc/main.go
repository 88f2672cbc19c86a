// midenc compiles Go source files to stack-machine assembly.
//
// Usage:
//
//	midenc [-config midenc.toml] [-o output.masm] file1.go [file2.go ...]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/greenhat/miden-ir/driver"
	"github.com/greenhat/miden-ir/frontend/gossa"
	"github.com/greenhat/miden-ir/hir"
)

func main() {
	output := flag.String("o", "", "output .masm file (default: first input basename + .masm)")
	configPath := flag.String("config", "", "TOML configuration file")
	verbose := flag.Int("v", 0, "log verbosity")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "usage: midenc [-config midenc.toml] [-o output.masm] file1.go [file2.go ...]\n")
		os.Exit(1)
	}
	commonlog.Configure(*verbose, nil)

	cfg := driver.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = driver.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "midenc: %v\n", err)
			os.Exit(1)
		}
	}

	var filenames []string
	var sources [][]byte
	for _, inputFile := range flag.Args() {
		src, err := os.ReadFile(inputFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "midenc: %v\n", err)
			os.Exit(1)
		}
		filenames = append(filenames, filepath.Base(inputFile))
		sources = append(sources, src)
	}

	if *output == "" {
		base := filepath.Base(flag.Arg(0))
		*output = strings.TrimSuffix(base, ".go") + ".masm"
	}

	name := strings.TrimSuffix(filepath.Base(*output), ".masm")
	mod := hir.NewModule(name)
	if err := gossa.TranslateFiles(mod, filenames, sources); err != nil {
		fmt.Fprintf(os.Stderr, "midenc: %v\n", err)
		os.Exit(1)
	}

	res, err := driver.CompileModule(context.Background(), mod, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "midenc: %v\n", err)
		os.Exit(1)
	}
	for _, fe := range res.Errors {
		fmt.Fprintf(os.Stderr, "midenc: %v\n", fe)
	}

	if err := os.WriteFile(*output, []byte(res.Module.String()), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "midenc: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("midenc: %s → %s (%d functions, %d failed)\n",
		flag.Arg(0), *output, len(res.Module.Funcs), len(res.Errors))
	if !res.Ok() {
		os.Exit(1)
	}
}
