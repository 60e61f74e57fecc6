// Command moss is the CLI driver for the language core: it lexes and
// parses source text (collaborators outside the core), then dispatches
// to the typechecker, bytecode compiler, stack VM, or tree-walking
// interp depending on subcommand. This binary carries no independent
// design weight of its own — it exists only to make spec.md §6's
// subcommands runnable end to end, the way funxy's cmd/funxy/main.go
// is a thin subcommand-dispatch wrapper around its own core packages.
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/aldezex/moon/internal/ast"
	"github.com/aldezex/moon/internal/astprint"
	"github.com/aldezex/moon/internal/bytecode"
	"github.com/aldezex/moon/internal/cliconfig"
	"github.com/aldezex/moon/internal/compiler"
	"github.com/aldezex/moon/internal/diagnose"
	"github.com/aldezex/moon/internal/interp"
	"github.com/aldezex/moon/internal/lexer"
	"github.com/aldezex/moon/internal/modcache"
	"github.com/aldezex/moon/internal/parser"
	"github.com/aldezex/moon/internal/span"
	"github.com/aldezex/moon/internal/typecheck"
	"github.com/aldezex/moon/internal/vm"
)

const usage = `moss - execution core CLI

Usage:
  moss run <file>      lex, parse, check, execute with the tree-walking interp
  moss check <file>    lex, parse, check, print the inferred program type
  moss ast <file>      lex, parse, pretty-print the AST
  moss vm <file>       lex, parse, check, compile, execute in the stack VM
  moss disasm <file>   as vm, but print the function table and instruction listing
  moss help            show this message

"-" as <file> reads source from stdin.
Exit codes: 0 success, 1 pipeline error, 2 CLI misuse.
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Print(usage)
		return 2
	}

	switch args[0] {
	case "help", "-h", "--help":
		fmt.Print(usage)
		return 0
	}

	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "moss: missing <file> argument")
		fmt.Print(usage)
		return 2
	}

	path := args[1]
	src, err := readSource(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "moss: %v\n", err)
		return 1
	}
	source := diagnose.Source{Path: displayPath(path), Text: src}

	// moss.yaml is loaded once per invocation and honored uniformly by
	// every subcommand: its color setting governs every reportErr call
	// below, and its cache settings govern vm/disasm's compileCached.
	cfg, err := cliconfig.Load(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "moss: %v\n", err)
		return 1
	}

	switch args[0] {
	case "run":
		return cmdRun(source, cfg)
	case "check":
		return cmdCheck(source, cfg)
	case "ast":
		return cmdAst(source, cfg)
	case "vm":
		return cmdVm(source, cfg)
	case "disasm":
		return cmdDisasm(source, cfg)
	default:
		fmt.Fprintf(os.Stderr, "moss: unknown subcommand %q\n", args[0])
		fmt.Print(usage)
		return 2
	}
}

func displayPath(path string) string {
	if path == "-" {
		return "<stdin>"
	}
	return path
}

func readSource(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

func parseProgram(source diagnose.Source, cfg *cliconfig.Config) (*ast.Program, bool) {
	prog, err := parser.Parse(source.Text)
	if err != nil {
		reportErr(source, cfg, err)
		return nil, false
	}
	return prog, true
}

// reportErr renders any of the pipeline's {Message, Span} error types
// against source, honoring cfg.Color (see internal/cliconfig), and
// falling back to a bare message if the concrete type isn't one we
// know how to extract a span from.
func reportErr(source diagnose.Source, cfg *cliconfig.Config, err error) {
	sp, msg, ok := extractSpan(err)
	if !ok {
		fmt.Fprintf(os.Stderr, "moss: %v\n", err)
		return
	}
	fmt.Fprint(os.Stderr, source.RenderSpanColor(sp, msg, cfg.Color))
	fmt.Fprintln(os.Stderr)
}

// extractSpan type-switches over every pipeline stage's {Message, Span}
// error struct, since none of them share an interface beyond error.
func extractSpan(err error) (span.Span, string, bool) {
	switch e := err.(type) {
	case *lexer.Error:
		return e.Span, e.Message, true
	case *parser.Error:
		return e.Span, e.Message, true
	case *typecheck.Error:
		return e.Span, e.Message, true
	case *compiler.Error:
		return e.Span, e.Message, true
	case *vm.Error:
		return e.Span, e.Message, true
	case *interp.Error:
		return e.Span, e.Message, true
	default:
		return span.Span{}, "", false
	}
}

func cmdCheck(source diagnose.Source, cfg *cliconfig.Config) int {
	prog, ok := parseProgram(source, cfg)
	if !ok {
		return 1
	}
	ty, err := typecheck.CheckProgram(prog)
	if err != nil {
		reportErr(source, cfg, err)
		return 1
	}
	fmt.Println(ty.String())
	return 0
}

func cmdAst(source diagnose.Source, cfg *cliconfig.Config) int {
	prog, ok := parseProgram(source, cfg)
	if !ok {
		return 1
	}
	fmt.Print(astprint.Program(prog))
	return 0
}

func cmdRun(source diagnose.Source, cfg *cliconfig.Config) int {
	prog, ok := parseProgram(source, cfg)
	if !ok {
		return 1
	}
	if _, err := typecheck.CheckProgram(prog); err != nil {
		reportErr(source, cfg, err)
		return 1
	}

	runID := uuid.NewString()
	start := time.Now()
	val, err := interp.Run(prog)
	if err != nil {
		reportErr(source, cfg, err)
		return 1
	}
	log.Printf("run_id=%s backend=interp duration=%s", runID, time.Since(start))
	if !val.IsUnit() {
		fmt.Println(val.Inspect())
	}
	return 0
}

func checkAndCompile(source diagnose.Source, cfg *cliconfig.Config) (*bytecode.Module, bool) {
	prog, ok := parseProgram(source, cfg)
	if !ok {
		return nil, false
	}
	if _, err := typecheck.CheckProgram(prog); err != nil {
		reportErr(source, cfg, err)
		return nil, false
	}
	module, err := compiler.Compile(prog)
	if err != nil {
		reportErr(source, cfg, err)
		return nil, false
	}
	return module, true
}

// compileCached wraps checkAndCompile with the optional sqlite-backed
// module cache: a cache hit skips typecheck+compile entirely, keyed on
// the sha256 of the source text. A cache miss falls back to compiling
// fresh and storing the result; when the cache is disabled or fails to
// open, the module is compiled fresh and nothing is stored. Neither
// path changes the returned module's semantics.
func compileCached(source diagnose.Source, cfg *cliconfig.Config) (*bytecode.Module, bool) {
	if !cfg.UseCache {
		return checkAndCompile(source, cfg)
	}

	dir := cfg.CacheDir
	if dir == "" {
		dir = "."
	}
	cachePath := dir + "/moss-modcache.sqlite"
	cache, err := modcache.Open(cachePath)
	if err != nil {
		log.Printf("modcache unavailable (%v); compiling without cache", err)
		return checkAndCompile(source, cfg)
	}
	defer cache.Close()

	key := modcache.HashSource(source.Text)
	if entry, ok, err := cache.Get(key); err == nil && ok {
		log.Printf("modcache hit entry_id=%s key=%s", entry.EntryID, key)
		return entry.Module, true
	}

	module, ok := checkAndCompile(source, cfg)
	if !ok {
		return nil, false
	}
	if entryID, err := cache.Put(key, module); err == nil {
		log.Printf("modcache store entry_id=%s key=%s", entryID, key)
	}
	return module, true
}

func cmdVm(source diagnose.Source, cfg *cliconfig.Config) int {
	module, ok := compileCached(source, cfg)
	if !ok {
		return 1
	}

	runID := uuid.NewString()
	start := time.Now()
	machine := vm.New(module)
	val, err := machine.Run()
	duration := time.Since(start)
	if err != nil {
		reportErr(source, cfg, err)
		return 1
	}

	stats := machine.Heap().Stats()
	log.Printf("run_id=%s backend=vm duration=%s gc_live=%d gc_freed=%d",
		runID, duration, stats.LiveObjects, stats.FreedObjects)

	if !val.IsUnit() {
		fmt.Println(val.Inspect())
	}
	return 0
}

func cmdDisasm(source diagnose.Source, cfg *cliconfig.Config) int {
	module, ok := compileCached(source, cfg)
	if !ok {
		return 1
	}
	fmt.Print(bytecode.Disassemble(module, source.LineCol))
	return 0
}
