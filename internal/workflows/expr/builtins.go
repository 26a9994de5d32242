package expr

import (
	"fmt"
	"strconv"
	"strings"

	"go.starlark.net/starlark"
)

// This file implements spec.md §4.1's exhaustive function whitelist:
// len, get, empty, bool, str, int. rootPredeclared in resolver.go never
// registers anything beyond these six plus the root scope names, but
// Starlark's name resolution still falls back to the package-level
// starlark.Universe (print, range, list, dict, type, getattr, and the
// rest) when a name misses the predeclared dict. guardWhitelist in
// resolver.go closes that gap by rejecting any identifier or call
// outside this whitelist before the expression reaches
// starlark.EvalExprOptions, so Universe's fallback is never consulted
// for a disallowed name.

func builtinLen(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) != 1 || len(kwargs) != 0 {
		return nil, fmt.Errorf("len: expected exactly 1 argument")
	}
	n, err := sizeOf(args[0])
	if err != nil {
		return nil, err
	}
	return starlark.MakeInt(n), nil
}

func sizeOf(v starlark.Value) (int, error) {
	switch t := v.(type) {
	case starlark.String:
		return t.Len(), nil
	case starlark.Tuple:
		return t.Len(), nil
	case *starlark.List:
		return t.Len(), nil
	case *starlark.Dict:
		return t.Len(), nil
	case *AttrMap:
		return len(t.values), nil
	default:
		return 0, fmt.Errorf("len: unsupported type %s", v.Type())
	}
}

func builtinGet(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var mapping, key, def starlark.Value = nil, nil, starlark.None
	if err := starlark.UnpackArgs("get", args, kwargs, "mapping", &mapping, "key", &key, "default?", &def); err != nil {
		return nil, err
	}
	switch m := mapping.(type) {
	case *AttrMap:
		if v, found, _ := m.Get(key); found {
			return v, nil
		}
		return def, nil
	case *starlark.Dict:
		if v, found, err := m.Get(key); err == nil && found {
			return v, nil
		}
		return def, nil
	default:
		return nil, fmt.Errorf("get: first argument must be a map, got %s", mapping.Type())
	}
}

func builtinEmpty(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) != 1 || len(kwargs) != 0 {
		return nil, fmt.Errorf("empty: expected exactly 1 argument")
	}
	v := args[0]
	switch t := v.(type) {
	case starlark.NoneType:
		return starlark.True, nil
	case starlark.String:
		return starlark.Bool(t.Len() == 0), nil
	case starlark.Tuple:
		return starlark.Bool(t.Len() == 0), nil
	case *starlark.List:
		return starlark.Bool(t.Len() == 0), nil
	case *starlark.Dict:
		return starlark.Bool(t.Len() == 0), nil
	case *AttrMap:
		return starlark.Bool(len(t.values) == 0), nil
	default:
		return starlark.Bool(!v.Truth()), nil
	}
}

func builtinBool(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) != 1 || len(kwargs) != 0 {
		return nil, fmt.Errorf("bool: expected exactly 1 argument")
	}
	return starlark.Bool(args[0].Truth()), nil
}

func builtinStr(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) != 1 || len(kwargs) != 0 {
		return nil, fmt.Errorf("str: expected exactly 1 argument")
	}
	if s, ok := args[0].(starlark.String); ok {
		return s, nil
	}
	gv, err := fromStarlark(args[0])
	if err != nil {
		return nil, err
	}
	return starlark.String(stringify(gv)), nil
}

func builtinInt(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) != 1 || len(kwargs) != 0 {
		return nil, fmt.Errorf("int: expected exactly 1 argument")
	}
	switch t := args[0].(type) {
	case starlark.Int:
		return t, nil
	case starlark.Float:
		return starlark.MakeInt(int(t)), nil
	case starlark.String:
		i, err := strconv.ParseInt(strings.TrimSpace(string(t)), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("int: cannot convert %q: %w", string(t), err)
		}
		return starlark.MakeInt64(i), nil
	case starlark.Bool:
		if t {
			return starlark.MakeInt(1), nil
		}
		return starlark.MakeInt(0), nil
	default:
		return nil, fmt.Errorf("int: unsupported type %s", args[0].Type())
	}
}
