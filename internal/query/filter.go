// Package query filters overlay entries with expr-lang expressions.
//
// An expression is evaluated once per entry against an environment
// exposing the entry's id, kind, canonical keys, and tag map, e.g.
//
//	tags.owner == "alice"
//	kind == "element" && "sparx||EAID-1" in keys
//	len(tags) == 0
package query

import (
	"fmt"

	exprlang "github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/pwa-modeller/overlay/internal/overlay"
)

// Filter is a compiled entry predicate.
type Filter struct {
	source  string
	program *vm.Program
}

// Compile builds a filter from an expression. Compilation errors are
// user errors (bad expression text) and reported as such.
func Compile(expression string) (*Filter, error) {
	if expression == "" {
		return nil, fmt.Errorf("filter expression must not be empty")
	}
	// DisableBuiltin stops the expr builtin keys() from shadowing the
	// "keys" environment variable during compilation.
	program, err := exprlang.Compile(expression, exprlang.AsBool(), exprlang.AllowUndefinedVariables(), exprlang.DisableBuiltin("keys"))
	if err != nil {
		return nil, fmt.Errorf("compiling filter %q: %w", expression, err)
	}
	return &Filter{source: expression, program: program}, nil
}

// Match reports whether the entry satisfies the filter. Evaluation
// errors (e.g. a type mismatch against this entry's tag values) count
// as non-matches rather than failing the whole listing.
func (f *Filter) Match(entry *overlay.Entry) bool {
	result, err := exprlang.Run(f.program, environment(entry))
	if err != nil {
		return false
	}
	matched, ok := result.(bool)
	return ok && matched
}

// Apply returns the entries satisfying the filter, preserving order.
func (f *Filter) Apply(entries []overlay.Entry) []overlay.Entry {
	out := make([]overlay.Entry, 0, len(entries))
	for i := range entries {
		if f.Match(&entries[i]) {
			out = append(out, entries[i])
		}
	}
	return out
}

// String returns the original expression text.
func (f *Filter) String() string { return f.source }

func environment(entry *overlay.Entry) map[string]any {
	tags := map[string]any(entry.Tags)
	if tags == nil {
		tags = map[string]any{}
	}
	return map[string]any{
		"id":   entry.EntryID,
		"kind": string(entry.Target.Kind),
		"keys": entry.Keys(),
		"tags": tags,
	}
}
