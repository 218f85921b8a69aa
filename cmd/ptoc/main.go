package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/ChaoWao/pto-isa/compiler"
)

func main() {
	var (
		validate = flag.Bool("validate", true, "Validate graph structure")
		verbose  = flag.Bool("v", false, "Verbose output")
		version  = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *version {
		fmt.Println("ptoc - PTO-ISA task-graph compiler v1.0.0")
		fmt.Println("Built with Go 1.22.2")
		return
	}

	args := flag.Args()
	if len(args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <src.ptg> <out.ptb>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	srcFile, outFile := args[0], args[1]
	opts := compiler.CompileOptions{
		ValidateGraph: *validate,
		Verbose:       *verbose,
	}

	if err := compiler.CompileWithOptions(srcFile, outFile, opts); err != nil {
		log.Fatalf("compilation failed: %v", err)
	}

	fmt.Printf("Successfully compiled %s -> %s\n", srcFile, outFile)
}
