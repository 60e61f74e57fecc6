package compiler

import "sort"

// funcCtx tracks, for the function currently being compiled, which
// names are lexically visible (its own nested block scopes, plus —
// for a closure — the set of names available from the enclosing
// capture). It never holds values: only the compiler's static view of
// what's in scope, used to decide what an anonymous function literal
// must capture.
type funcCtx struct {
	scopes      []map[string]bool
	closureEnv  map[string]bool
}

func newMainCtx() *funcCtx {
	return &funcCtx{}
}

func newFunctionCtx(params []string, closureEnv []string) *funcCtx {
	ctx := &funcCtx{
		scopes:     []map[string]bool{{}},
		closureEnv: make(map[string]bool, len(closureEnv)),
	}
	for _, name := range closureEnv {
		ctx.closureEnv[name] = true
	}
	for _, p := range params {
		ctx.defineLocal(p)
	}
	return ctx
}

func (c *funcCtx) pushScope() {
	c.scopes = append(c.scopes, map[string]bool{})
}

func (c *funcCtx) popScope() {
	c.scopes = c.scopes[:len(c.scopes)-1]
}

func (c *funcCtx) defineLocal(name string) {
	if n := len(c.scopes); n > 0 {
		c.scopes[n-1][name] = true
	}
}

// visibleNames is the union of every currently-open scope plus the
// closure environment, emitted in a stable sorted order so two
// structurally identical closures capture identically.
func (c *funcCtx) visibleNames() []string {
	set := make(map[string]bool, len(c.closureEnv))
	for name := range c.closureEnv {
		set[name] = true
	}
	for _, scope := range c.scopes {
		for name := range scope {
			set[name] = true
		}
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
