// Package filter selects archive entries with CEL expressions, for example
//
//	kind == "file" && !path.endsWith(".log") && size < 10 * 1024 * 1024
//
// Available variables: path, name, kind, size, mode, mtime, link_target and depth.
package filter

import (
	"fmt"

	"github.com/archconv/archconv/internal/engine"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"
)

// Filter is a compiled CEL predicate over entries.
type Filter struct {
	expr    string
	program cel.Program
}

var _ engine.EntryFilter = (*Filter)(nil)

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("path", cel.StringType),
		cel.Variable("name", cel.StringType),
		cel.Variable("kind", cel.StringType),
		cel.Variable("size", cel.IntType),
		cel.Variable("mode", cel.IntType),
		cel.Variable("mtime", cel.TimestampType),
		cel.Variable("link_target", cel.StringType),
		cel.Variable("depth", cel.IntType),
		ext.Strings(),
	)
}

// New compiles expr. The expression must evaluate to a bool.
func New(expr string) (*Filter, error) {
	env, err := newEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile filter %q: %w", expr, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("filter %q must evaluate to bool, got %s", expr, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build filter program: %w", err)
	}

	return &Filter{expr: expr, program: program}, nil
}

// Match reports whether the entry is selected. Evaluation errors are returned as-is and
// abort the transcode.
func (f *Filter) Match(entry *engine.Entry) (bool, error) {
	out, _, err := f.program.Eval(map[string]any{
		"path":        entry.Path.String(),
		"name":        entry.Path.Base(),
		"kind":        entry.Kind.String(),
		"size":        entry.Size,
		"mode":        int64(entry.Perm() & engine.ModePermMask),
		"mtime":       entry.ModTime,
		"link_target": entry.LinkTarget,
		"depth":       int64(len(entry.Path)),
	})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate filter %q on %s: %w", f.expr, entry.Path, err)
	}

	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter %q returned %T, want bool", f.expr, out.Value())
	}
	return matched, nil
}

func (f *Filter) String() string {
	return f.expr
}
