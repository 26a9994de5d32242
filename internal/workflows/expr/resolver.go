// Package expr implements the `${{ ... }}` expression language from
// spec.md §4.1: a restricted, side-effect-free evaluator over an
// immutable context. It is built on go.starlark.net — already the
// teacher's own dependency and pattern for exactly this purpose
// (internal/workflows/runtime/starlark_eval.go,
// internal/workflows/runtime/transform_executor.go) — because Starlark
// natively covers almost the entire required grammar (booleans,
// comparisons, arithmetic, and the literal `X if C else Y` ternary
// syntax) and is sandboxed by construction, satisfying the "guard
// strictly against reflection or arbitrary code execution" requirement
// without a hand-rolled parser.
package expr

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// fragmentPattern matches one `${{ ... }}` fragment, non-greedy so that
// a string with multiple fragments splits correctly.
var fragmentPattern = regexp.MustCompile(`\$\{\{\s*(.*?)\s*\}\}`)

// Scope is the root name set spec.md §4.1 allows: inputs, steps, item,
// index, env. item/index are only meaningful inside a loop body; the
// resolver predeclares them only when HasItem/HasIndex are set, so a
// reference to `item` outside a loop fails as an unresolved root name
// exactly like any other typo would.
type Scope struct {
	Inputs  map[string]any
	Steps   map[string]any
	Env     map[string]string
	Item    any
	HasItem bool
	Index   int
	HasIndex bool
}

// defaultMaxExecutionSteps is used when NewResolver is called with a
// non-positive maxSteps, matching config.defaults()'s own
// starlark_max_execution_steps default.
const defaultMaxExecutionSteps = 100000

// Resolver evaluates `${{ ... }}` fragments against a Scope.
type Resolver struct {
	maxExecutionSteps int64
}

// NewResolver builds a Resolver whose evaluations are capped at
// maxSteps Starlark execution steps (internal/config's
// starlark_max_execution_steps). A non-positive maxSteps falls back to
// defaultMaxExecutionSteps.
func NewResolver(maxSteps int64) *Resolver {
	if maxSteps <= 0 {
		maxSteps = defaultMaxExecutionSteps
	}
	return &Resolver{maxExecutionSteps: maxSteps}
}

// ResolveString implements spec.md §4.1's whole-string rule: if s is
// entirely one fragment, the result keeps EXPR's native type;
// otherwise every fragment is stringified and concatenated with the
// surrounding literal text.
func (r *Resolver) ResolveString(s string, scope Scope) (any, error) {
	matches := fragmentPattern.FindAllStringSubmatchIndex(s, -1)
	if matches == nil {
		return s, nil
	}

	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		exprStr := s[matches[0][2]:matches[0][3]]
		return r.Evaluate(exprStr, scope)
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		exprStr := s[m[2]:m[3]]
		v, err := r.Evaluate(exprStr, scope)
		if err != nil {
			return nil, err
		}
		b.WriteString(stringify(v))
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String(), nil
}

// ResolveMap resolves every string value in m (recursively through
// nested maps/slices), leaving non-string, non-fragment values as-is.
func (r *Resolver) ResolveMap(m map[string]any, scope Scope) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		rv, err := r.resolveValue(v, scope)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = rv
	}
	return out, nil
}

func (r *Resolver) resolveValue(v any, scope Scope) (any, error) {
	switch t := v.(type) {
	case string:
		return r.ResolveString(t, scope)
	case map[string]any:
		return r.ResolveMap(t, scope)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			rv, err := r.resolveValue(e, scope)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}

// Evaluate parses and evaluates a single EXPR (without the `${{ }}`
// delimiters) and returns its native Go value.
func (r *Resolver) Evaluate(exprStr string, scope Scope) (any, error) {
	expr, err := syntax.ParseExpr("expr", exprStr, 0)
	if err != nil {
		return nil, &ExpressionSyntaxError{Expression: exprStr, Column: syntaxErrorColumn(err), Cause: err}
	}

	if err := guardWhitelist(expr); err != nil {
		return nil, err
	}

	predeclared, err := rootPredeclared(scope)
	if err != nil {
		return nil, err
	}

	thread := &starlark.Thread{Name: "maverick-expr"}
	thread.SetMaxExecutionSteps(uint64(r.maxExecutionSteps))

	val, err := starlark.EvalExprOptions(&syntax.FileOptions{}, thread, expr, predeclared)
	if err != nil {
		return nil, classifyEvalError(exprStr, err)
	}

	return fromStarlark(val)
}

// availableRootNames is reported on a ReferenceResolutionError: the root
// scope names plus the callable whitelist, i.e. every bare identifier
// guardWhitelist will accept.
var availableRootNames = []string{"bool", "empty", "env", "get", "inputs", "int", "len", "item", "index", "steps", "str"}

// whitelistedRoots and whitelistedCalls are the only bare identifiers
// guardWhitelist allows through to evaluation.
var whitelistedRoots = map[string]bool{
	"inputs": true,
	"steps":  true,
	"env":    true,
	"item":   true,
	"index":  true,
}

var whitelistedCalls = map[string]bool{
	"len":   true,
	"get":   true,
	"empty": true,
	"bool":  true,
	"str":   true,
	"int":   true,
}

// literalIdents are Starlark's True/False/None, which the language
// resolves as Universe identifiers rather than a distinct literal token
// kind. spec.md §4.1's grammar lists true/false/null as literals, so
// these three are allowed through even though they are Idents, same as
// any other language's boolean/null keyword.
var literalIdents = map[string]bool{
	"True":  true,
	"False": true,
	"None":  true,
}

// guardWhitelist walks the parsed expression tree and rejects anything
// outside spec.md §4.1's exhaustive grammar before the expression ever
// reaches starlark.EvalExprOptions. This exists because Starlark's name
// resolution falls back from the supplied predeclared dict to the
// package-level starlark.Universe, which still carries print, range,
// list, dict, type, getattr, and the rest of the standard built-ins;
// rootPredeclared alone does not stop an expression from naming them.
// Every syntax.Expr variant the grammar supports is handled explicitly;
// anything else (list/dict/set literals, comprehensions, lambdas,
// string formatting) is rejected by the default case, since none of
// them appear in §4.1's grammar.
func guardWhitelist(e syntax.Expr) error {
	switch x := e.(type) {
	case nil:
		return nil
	case *syntax.Ident:
		if whitelistedRoots[x.Name] || whitelistedCalls[x.Name] || literalIdents[x.Name] {
			return nil
		}
		return &ReferenceResolutionError{Path: x.Name, Available: availableRootNames}
	case *syntax.Literal:
		return nil
	case *syntax.ParenExpr:
		return guardWhitelist(x.X)
	case *syntax.UnaryExpr:
		return guardWhitelist(x.X)
	case *syntax.BinaryExpr:
		if err := guardWhitelist(x.X); err != nil {
			return err
		}
		return guardWhitelist(x.Y)
	case *syntax.DotExpr:
		// x.Name is the attribute being accessed, not a free reference;
		// AttrMap.Attr enforces attribute existence at eval time.
		return guardWhitelist(x.X)
	case *syntax.IndexExpr:
		if err := guardWhitelist(x.X); err != nil {
			return err
		}
		return guardWhitelist(x.Y)
	case *syntax.SliceExpr:
		if err := guardWhitelist(x.X); err != nil {
			return err
		}
		if err := guardWhitelist(x.Lo); err != nil {
			return err
		}
		if err := guardWhitelist(x.Hi); err != nil {
			return err
		}
		return guardWhitelist(x.Step)
	case *syntax.CondExpr:
		if err := guardWhitelist(x.Cond); err != nil {
			return err
		}
		if err := guardWhitelist(x.True); err != nil {
			return err
		}
		return guardWhitelist(x.False)
	case *syntax.CallExpr:
		fn, ok := x.Fn.(*syntax.Ident)
		if !ok || !whitelistedCalls[fn.Name] {
			name := "<call>"
			if ok {
				name = fn.Name
			}
			return &ReferenceResolutionError{Path: name, Available: availableRootNames}
		}
		for _, a := range x.Args {
			if err := guardWhitelist(a); err != nil {
				return err
			}
		}
		return nil
	default:
		return &ReferenceResolutionError{Path: fmt.Sprintf("<unsupported expression %T>", e), Available: availableRootNames}
	}
}

func rootPredeclared(scope Scope) (starlark.StringDict, error) {
	inputs, err := toStarlark(scope.Inputs, "inputs")
	if err != nil {
		return nil, err
	}
	steps, err := toStarlark(scope.Steps, "steps")
	if err != nil {
		return nil, err
	}
	env := make(map[string]any, len(scope.Env))
	for k, v := range scope.Env {
		env[k] = v
	}
	envVal, err := toStarlark(env, "env")
	if err != nil {
		return nil, err
	}

	dict := starlark.StringDict{
		"inputs": inputs,
		"steps":  steps,
		"env":    envVal,
		"len":    starlark.NewBuiltin("len", builtinLen),
		"get":    starlark.NewBuiltin("get", builtinGet),
		"empty":  starlark.NewBuiltin("empty", builtinEmpty),
		"bool":   starlark.NewBuiltin("bool", builtinBool),
		"str":    starlark.NewBuiltin("str", builtinStr),
		"int":    starlark.NewBuiltin("int", builtinInt),
	}
	if scope.HasItem {
		itemVal, err := toStarlark(scope.Item, "item")
		if err != nil {
			return nil, err
		}
		dict["item"] = itemVal
	}
	if scope.HasIndex {
		dict["index"] = starlark.MakeInt(scope.Index)
	}
	return dict, nil
}

// refErrorMarker lets classifyEvalError recover a *ReferenceResolutionError
// that AttrMap.Attr/Get raised, after go.starlark.net has wrapped it into
// an *starlark.EvalError whose Error() string embeds the cause's message
// rather than preserving the value itself.
const refErrorMarker = "unresolved reference "

func classifyEvalError(exprStr string, err error) error {
	msg := err.Error()
	if idx := strings.Index(msg, refErrorMarker); idx >= 0 {
		return parseRefErrorMessage(msg[idx:])
	}
	if strings.Contains(msg, "undefined:") || strings.Contains(msg, "not defined") {
		name := msg
		if i := strings.Index(msg, "undefined:"); i >= 0 {
			name = strings.TrimSpace(msg[i+len("undefined:"):])
		}
		return &ReferenceResolutionError{Path: name, Available: []string{"inputs", "steps", "item", "index", "env"}}
	}
	return &ExpressionEvaluationError{Expression: exprStr, Cause: err}
}

// parseRefErrorMessage re-extracts the path and the available names from
// a *ReferenceResolutionError's own Error() rendering
// (`unresolved reference "path" (available: [...])`), since the starlark
// EvalError boundary loses the typed value.
func parseRefErrorMessage(msg string) *ReferenceResolutionError {
	rest := strings.TrimPrefix(msg, refErrorMarker)
	path := rest
	if i := strings.Index(rest, `"`); i == 0 {
		if j := strings.Index(rest[1:], `"`); j >= 0 {
			path = rest[1 : j+1]
			rest = rest[j+2:]
		}
	}
	var available []string
	const availableMarker = "(available: ["
	if i := strings.Index(rest, availableMarker); i >= 0 {
		list := rest[i+len(availableMarker):]
		if j := strings.Index(list, "]"); j >= 0 {
			available = strings.Fields(list[:j])
		}
	}
	return &ReferenceResolutionError{Path: path, Available: available}
}

func syntaxErrorColumn(err error) int {
	if se, ok := err.(syntax.Error); ok {
		return se.Pos.Col
	}
	return 0
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", t)
	}
}

// sortedKeys is used by AttrMap/AttrDict for ReferenceResolutionError's
// Available field.
func sortedKeys(m map[string]starlark.Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
