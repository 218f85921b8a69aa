// Package compiler transforms a human-readable task-graph DSL into the
// bit-exact binary TaskGraph format the runtime loads.
//
// Compilation pipeline:
//  1. Parse .ptg DSL text into a model.TaskGraph via AddTask/AddEdge
//  2. Validate DAG structure (acyclic, in-range dependents)
//  3. Emit the binary .ptb format via model.TaskGraph.Serialize
//
// DSL directives:
//
//	task <func_id> <cube|vector> <func_name>   - append a task, id = line order
//	edge <u> <v>                                - v depends on u
//	iterate <var> <start> <end> { ... }         - expand a block, substituting <var>
package compiler

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ChaoWao/pto-isa/core"
	"github.com/ChaoWao/pto-isa/model"
)

// Compile reads a .ptg DSL source file and writes its compiled .ptb binary
// form.
func Compile(src, out string) error {
	return CompileWithOptions(src, out, DefaultOptions())
}

// CompileOptions configures the compilation process.
type CompileOptions struct {
	ValidateGraph bool // check for cycles and out-of-range dependents
	Verbose       bool // print progress to stdout
}

// DefaultOptions provides sensible compilation defaults.
func DefaultOptions() CompileOptions {
	return CompileOptions{ValidateGraph: true}
}

// CompileWithOptions parses src, optionally validates the resulting graph,
// and writes out's binary wire format.
func CompileWithOptions(src, out string, opts CompileOptions) error {
	if opts.Verbose {
		fmt.Printf("Compiling %s -> %s\n", src, out)
	}

	text, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read source: %w", err)
	}

	g, err := parseSpec(text)
	if err != nil {
		return fmt.Errorf("parse error: %w", err)
	}

	if opts.Verbose {
		fmt.Printf("Parsed %d tasks\n", g.NumTasks())
	}

	if opts.ValidateGraph {
		if err := g.Validate(); err != nil {
			return fmt.Errorf("validation error: %w", err)
		}
		if opts.Verbose {
			fmt.Println("Graph validation passed")
		}
	}

	data, err := g.Serialize()
	if err != nil {
		return fmt.Errorf("serialize error: %w", err)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if opts.Verbose {
		fmt.Printf("Successfully compiled to %s\n", out)
	}
	return nil
}

// --- DSL parser with support for task, edge, and iterate blocks ---

// parseSpec parses the DSL and returns a TaskGraph or an error on invalid
// syntax.
func parseSpec(src []byte) (*model.TaskGraph, error) {
	lines := strings.Split(string(src), "\n")
	g := model.NewTaskGraph()
	parser := &dslParser{graph: g}

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var err error
		i, err = parser.parseLine(lines, i)
		if err != nil {
			return nil, fmt.Errorf("line %d: %v", i+1, err)
		}
	}
	return g, nil
}

// dslParser holds parsing state across the directives of one source file.
type dslParser struct {
	graph *model.TaskGraph
}

// parseLine processes a single line and returns the next line index.
func (p *dslParser) parseLine(lines []string, idx int) (int, error) {
	line := strings.TrimSpace(lines[idx])
	fields := strings.Fields(line)

	switch fields[0] {
	case "iterate":
		return p.parseIterateBlock(lines, idx, fields)
	default:
		return idx, p.processSimpleLine(line, fields)
	}
}

// parseIterateBlock handles iterate constructs: `iterate i 0 7 {` ... `}`.
func (p *dslParser) parseIterateBlock(lines []string, idx int, fields []string) (int, error) {
	if len(fields) < 4 {
		return idx, fmt.Errorf("invalid iterate spec: %s", strings.Join(fields, " "))
	}

	varName, start, end, err := parseIterateParams(fields)
	if err != nil {
		return idx, err
	}

	blockStart := idx
	if !strings.HasSuffix(strings.Join(fields, " "), "{") {
		blockStart++
		for blockStart < len(lines) && strings.TrimSpace(lines[blockStart]) == "" {
			blockStart++
		}
		if blockStart >= len(lines) || strings.TrimSpace(lines[blockStart]) != "{" {
			return idx, fmt.Errorf("missing '{' after iterate")
		}
	}

	block, blockEnd, err := collectBlockLines(lines, blockStart)
	if err != nil {
		return idx, err
	}

	if err := p.expandIterateBlock(block, varName, start, end); err != nil {
		return idx, err
	}
	return blockEnd, nil
}

// processSimpleLine handles task and edge directives.
func (p *dslParser) processSimpleLine(line string, fields []string) error {
	switch fields[0] {
	case "task":
		return p.parseTaskLine(fields)
	case "edge":
		return p.parseEdgeLine(fields)
	default:
		return fmt.Errorf("unknown directive: %s", fields[0])
	}
}

// parseTaskLine parses `task <func_id> <cube|vector> <func_name>`.
func (p *dslParser) parseTaskLine(fields []string) error {
	if len(fields) < 4 {
		return fmt.Errorf("invalid task spec: needs func_id, core_kind, func_name")
	}
	funcID, err := strconv.Atoi(fields[1])
	if err != nil {
		return fmt.Errorf("invalid func_id %q: %v", fields[1], err)
	}
	kind, err := parseCoreKind(fields[2])
	if err != nil {
		return err
	}
	_, err = p.graph.AddTask(int32(funcID), kind, fields[3], 0, nil)
	return err
}

// parseEdgeLine parses `edge <u> <v>`, meaning v depends on u.
func (p *dslParser) parseEdgeLine(fields []string) error {
	if len(fields) < 3 {
		return fmt.Errorf("invalid edge spec: needs u and v")
	}
	u, err := strconv.Atoi(fields[1])
	if err != nil {
		return fmt.Errorf("invalid edge source %q: %v", fields[1], err)
	}
	v, err := strconv.Atoi(fields[2])
	if err != nil {
		return fmt.Errorf("invalid edge target %q: %v", fields[2], err)
	}
	return p.graph.AddEdge(int32(u), int32(v))
}

// parseCoreKind maps a DSL token to core.CoreKind.
func parseCoreKind(token string) (core.CoreKind, error) {
	switch strings.ToLower(token) {
	case "cube":
		return core.Cube, nil
	case "vector", "vec":
		return core.Vector, nil
	default:
		return 0, fmt.Errorf("unknown core kind %q", token)
	}
}

// parseIterateParams extracts iterate parameters.
func parseIterateParams(fields []string) (varName string, start, end int, err error) {
	varName = fields[1]
	start, err = strconv.Atoi(fields[2])
	if err != nil {
		return "", 0, 0, fmt.Errorf("invalid iterate start %q: %v", fields[2], err)
	}
	end, err = strconv.Atoi(fields[3])
	if err != nil {
		return "", 0, 0, fmt.Errorf("invalid iterate end %q: %v", fields[3], err)
	}
	return varName, start, end, nil
}

// collectBlockLines gathers lines within braces.
func collectBlockLines(lines []string, startIdx int) ([]string, int, error) {
	var block []string
	i := startIdx + 1

	for i < len(lines) {
		line := strings.TrimSpace(lines[i])
		if line == "}" {
			return block, i, nil
		}
		if line != "" && !strings.HasPrefix(line, "#") {
			block = append(block, line)
		}
		i++
	}
	return nil, i, fmt.Errorf("unterminated iterate block")
}

// expandIterateBlock processes iterate expansion.
func (p *dslParser) expandIterateBlock(block []string, varName string, start, end int) error {
	for v := start; v <= end; v++ {
		for _, line := range block {
			expanded := expandVariable(line, varName, v)
			fields := strings.Fields(expanded)
			if err := p.processSimpleLine(expanded, fields); err != nil {
				return fmt.Errorf("iterate expansion error: %v", err)
			}
		}
	}
	return nil
}

// expandVariable replaces varName with value wherever it appears as a
// whole field in line.
func expandVariable(line, varName string, value int) string {
	fields := strings.Fields(line)
	for i, field := range fields {
		if field == varName {
			fields[i] = strconv.Itoa(value)
		}
	}
	return strings.Join(fields, " ")
}
