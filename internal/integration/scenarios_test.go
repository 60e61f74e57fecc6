package integration

import (
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/tools/txtar"

	"github.com/aldezex/moon/internal/compiler"
	"github.com/aldezex/moon/internal/interp"
	"github.com/aldezex/moon/internal/parser"
	"github.com/aldezex/moon/internal/typecheck"
	"github.com/aldezex/moon/internal/vm"
)

// scenario is one testdata/*.txtar fixture: a `source` file plus either
// an `expect` section (the Inspect()'d result) or an `error` section
// (a substring the runtime error's Error() text must contain).
type scenario struct {
	name   string
	source string
	expect string
	errSub string
}

func loadScenarios(t *testing.T) []scenario {
	t.Helper()
	paths, err := filepath.Glob("testdata/*.txtar")
	if err != nil {
		t.Fatalf("globbing testdata: %v", err)
	}
	if len(paths) == 0 {
		t.Fatal("no scenario fixtures found")
	}

	var scenarios []scenario
	for _, p := range paths {
		ar, err := txtar.ParseFile(p)
		if err != nil {
			t.Fatalf("parsing %s: %v", p, err)
		}
		s := scenario{name: strings.TrimSuffix(filepath.Base(p), ".txtar")}
		for _, f := range ar.Files {
			switch f.Name {
			case "source":
				s.source = string(f.Data)
			case "expect":
				s.expect = strings.TrimSpace(string(f.Data))
			case "error":
				s.errSub = strings.TrimSpace(string(f.Data))
			}
		}
		if s.source == "" {
			t.Fatalf("%s: missing source section", p)
		}
		if s.expect == "" && s.errSub == "" {
			t.Fatalf("%s: must have either an expect or an error section", p)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios
}

// TestScenarioFixtures drives every testdata/*.txtar fixture through
// typecheck -> compile -> run, checking either the rendered result or
// that a runtime error's message contains the expected substring.
func TestScenarioFixtures(t *testing.T) {
	for _, s := range loadScenarios(t) {
		s := s
		t.Run(s.name, func(t *testing.T) {
			prog, err := parser.Parse(s.source)
			if err != nil {
				t.Fatalf("parse error: %v", err)
			}
			if _, err := typecheck.CheckProgram(prog); err != nil {
				t.Fatalf("typecheck error: %v", err)
			}
			module, err := compiler.Compile(prog)
			if err != nil {
				t.Fatalf("compile error: %v", err)
			}
			val, runErr := vm.Run(module)

			if s.errSub != "" {
				if runErr == nil {
					t.Fatalf("expected a runtime error containing %q, got value %s", s.errSub, val.Inspect())
				}
				if !strings.Contains(runErr.Error(), s.errSub) {
					t.Fatalf("error %q does not contain %q", runErr.Error(), s.errSub)
				}
				return
			}

			if runErr != nil {
				t.Fatalf("unexpected runtime error: %v", runErr)
			}
			if got := val.Inspect(); got != s.expect {
				t.Fatalf("got %s, want %s", got, s.expect)
			}
		})
	}
}

// TestCrossCheckOracle is the spec's quantified invariant: for every
// program the typechecker accepts and that doesn't hit a runtime-only
// failure, the VM and the tree-walking interp must agree.
func TestCrossCheckOracle(t *testing.T) {
	for _, s := range loadScenarios(t) {
		if s.errSub != "" {
			continue // runtime-only failures are excluded by the invariant
		}
		s := s
		t.Run(s.name, func(t *testing.T) {
			prog, err := parser.Parse(s.source)
			if err != nil {
				t.Fatalf("parse error: %v", err)
			}
			if _, err := typecheck.CheckProgram(prog); err != nil {
				t.Fatalf("typecheck error: %v", err)
			}

			module, err := compiler.Compile(prog)
			if err != nil {
				t.Fatalf("compile error: %v", err)
			}
			vmVal, err := vm.Run(module)
			if err != nil {
				t.Fatalf("vm error: %v", err)
			}

			interpVal, err := interp.Run(prog)
			if err != nil {
				t.Fatalf("interp error: %v", err)
			}

			if vmVal.Inspect() != interpVal.Inspect() {
				t.Fatalf("vm and interp disagree: vm=%s interp=%s", vmVal.Inspect(), interpVal.Inspect())
			}
		})
	}
}
