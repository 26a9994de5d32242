package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_Evaluate_DottedAndSubscript(t *testing.T) {
	r := NewResolver(0)
	scope := Scope{
		Inputs: map[string]any{"foo": map[string]any{"bar": "baz"}},
		Steps:  map[string]any{"load": map[string]any{"output": map[string]any{"files": []any{"a", "b"}}}},
	}

	v, err := r.Evaluate("inputs.foo.bar", scope)
	require.NoError(t, err)
	assert.Equal(t, "baz", v)

	v, err = r.Evaluate(`steps.load.output.files`, scope)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, v)
}

func TestResolver_Evaluate_Deterministic(t *testing.T) {
	r := NewResolver(0)
	scope := Scope{Inputs: map[string]any{"n": int64(3)}}

	a, err := r.Evaluate("inputs.n * 2 + 1 if inputs.n > 0 else 0", scope)
	require.NoError(t, err)
	b, err := r.Evaluate("inputs.n * 2 + 1 if inputs.n > 0 else 0", scope)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestResolver_Evaluate_ReferenceResolutionError(t *testing.T) {
	r := NewResolver(0)
	scope := Scope{Steps: map[string]any{"load": map[string]any{"output": "x"}}}

	_, err := r.Evaluate("steps.missing.output", scope)
	require.Error(t, err)

	var refErr *ReferenceResolutionError
	require.ErrorAs(t, err, &refErr)
	assert.Contains(t, refErr.Error(), "missing")
	assert.Contains(t, refErr.Error(), "load")
}

func TestResolver_Evaluate_SyntaxError(t *testing.T) {
	r := NewResolver(0)

	_, err := r.Evaluate("inputs.foo +", Scope{})
	require.Error(t, err)

	var syntaxErr *ExpressionSyntaxError
	require.ErrorAs(t, err, &syntaxErr)
}

func TestResolver_Evaluate_DivisionByZero(t *testing.T) {
	r := NewResolver(0)

	_, err := r.Evaluate("1 / 0", Scope{})
	require.Error(t, err)

	var evalErr *ExpressionEvaluationError
	require.ErrorAs(t, err, &evalErr)
}

func TestResolver_Evaluate_ItemIndexOnlyInLoop(t *testing.T) {
	r := NewResolver(0)

	_, err := r.Evaluate("item", Scope{})
	require.Error(t, err)
	var refErr *ReferenceResolutionError
	require.ErrorAs(t, err, &refErr)

	v, err := r.Evaluate("item", Scope{Item: "x", HasItem: true})
	require.NoError(t, err)
	assert.Equal(t, "x", v)
}

func TestResolver_Evaluate_WhitelistedBuiltins(t *testing.T) {
	r := NewResolver(0)
	scope := Scope{Inputs: map[string]any{"items": []any{"a", "b", "c"}, "empty_str": ""}}

	v, err := r.Evaluate("len(inputs.items)", scope)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	v, err = r.Evaluate("empty(inputs.empty_str)", scope)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = r.Evaluate(`str(inputs.items)`, scope)
	require.NoError(t, err)
	assert.IsType(t, "", v)
}

// guardWhitelist closes the gap where Starlark's name resolution falls
// back from the predeclared dict to the package-level starlark.Universe,
// which still carries builtins like print, range, list, dict, type,
// getattr, and dir. Every one of those must be rejected as an unresolved
// reference rather than reaching EvalExprOptions.
func TestResolver_Evaluate_RejectsUniverseBuiltins(t *testing.T) {
	r := NewResolver(0)
	disallowed := []string{
		`print("x")`,
		`range(3)`,
		`list(inputs.items)`,
		`dict()`,
		`type(inputs.items)`,
		`getattr(inputs, "items")`,
		`hasattr(inputs, "items")`,
		`dir(inputs)`,
		`sorted(inputs.items)`,
		`fail("boom")`,
	}
	scope := Scope{Inputs: map[string]any{"items": []any{1, 2}}}

	for _, expr := range disallowed {
		_, err := r.Evaluate(expr, scope)
		require.Errorf(t, err, "expected %q to be rejected", expr)
		var refErr *ReferenceResolutionError
		assert.ErrorAsf(t, err, &refErr, "expected %q to fail as a ReferenceResolutionError, got %T: %v", expr, err, err)
	}
}

func TestResolver_Evaluate_RejectsNonWhitelistLiterals(t *testing.T) {
	r := NewResolver(0)

	_, err := r.Evaluate("[1, 2, 3]", Scope{})
	require.Error(t, err)

	_, err = r.Evaluate("{'a': 1}", Scope{})
	require.Error(t, err)

	_, err = r.Evaluate("lambda x: x", Scope{})
	require.Error(t, err)
}

// True, False, and None are Idents in Starlark's grammar, not Literal
// tokens, so guardWhitelist must special-case them to keep spec.md
// §4.1's true/false/null literals usable.
func TestResolver_Evaluate_BooleanAndNullLiterals(t *testing.T) {
	r := NewResolver(0)

	v, err := r.Evaluate("True", Scope{})
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = r.Evaluate("False", Scope{})
	require.NoError(t, err)
	assert.Equal(t, false, v)

	v, err = r.Evaluate("None", Scope{})
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = r.Evaluate("inputs.n if inputs.n != None else 0", Scope{Inputs: map[string]any{"n": int64(7)}})
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)
}

func TestResolver_ResolveString_WholeFragmentKeepsNativeType(t *testing.T) {
	r := NewResolver(0)
	scope := Scope{Inputs: map[string]any{"n": int64(5)}}

	v, err := r.ResolveString("${{ inputs.n }}", scope)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)
}

func TestResolver_ResolveString_MixedFragmentsConcatenate(t *testing.T) {
	r := NewResolver(0)
	scope := Scope{Inputs: map[string]any{"n": int64(5)}}

	v, err := r.ResolveString("count=${{ inputs.n }} done", scope)
	require.NoError(t, err)
	assert.Equal(t, "count=5 done", v)
}
