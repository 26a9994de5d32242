package expr

import (
	"fmt"

	"go.starlark.net/starlark"
)

// AttrMap wraps a Go map as a starlark.Value supporting both dotted
// attribute access (`inputs.foo`) and subscript (`inputs["foo"]`),
// grounded on the teacher's AttrDict
// (internal/workflows/runtime/starlark_eval.go), which exists for
// exactly this reason — plain *starlark.Dict has no attribute
// protocol. AttrMap additionally tracks its own dotted path so a
// missing attribute or key can raise a *ReferenceResolutionError
// naming the full path and the sibling names actually present, per
// spec.md §4.1 — the teacher's version settles for Starlark's generic
// "has no .attr" message.
type AttrMap struct {
	path   string
	values map[string]starlark.Value
}

var (
	_ starlark.Value    = (*AttrMap)(nil)
	_ starlark.HasAttrs = (*AttrMap)(nil)
	_ starlark.Mapping  = (*AttrMap)(nil)
	_ starlark.Iterable = (*AttrMap)(nil)
)

func (m *AttrMap) String() string {
	return fmt.Sprintf("<%s>", m.path)
}
func (m *AttrMap) Type() string          { return "map" }
func (m *AttrMap) Freeze()               {}
func (m *AttrMap) Truth() starlark.Bool  { return starlark.Bool(len(m.values) > 0) }
func (m *AttrMap) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: map") }

func (m *AttrMap) Attr(name string) (starlark.Value, error) {
	if v, ok := m.values[name]; ok {
		return v, nil
	}
	return nil, &ReferenceResolutionError{Path: joinPath(m.path, name), Available: sortedKeys(m.values)}
}

func (m *AttrMap) AttrNames() []string { return sortedKeys(m.values) }

func (m *AttrMap) Get(key starlark.Value) (starlark.Value, bool, error) {
	ks, ok := key.(starlark.String)
	if !ok {
		return nil, false, fmt.Errorf("map indices must be strings, got %s", key.Type())
	}
	name := string(ks)
	if v, ok := m.values[name]; ok {
		return v, true, nil
	}
	return nil, false, &ReferenceResolutionError{Path: joinPath(m.path, name), Available: sortedKeys(m.values)}
}

func (m *AttrMap) Iterate() starlark.Iterator {
	keys := sortedKeys(m.values)
	return &attrMapIterator{m: m, keys: keys}
}

type attrMapIterator struct {
	m    *AttrMap
	keys []string
	i    int
}

func (it *attrMapIterator) Next(p *starlark.Value) bool {
	if it.i >= len(it.keys) {
		return false
	}
	*p = starlark.String(it.keys[it.i])
	it.i++
	return true
}
func (it *attrMapIterator) Done() {}

func joinPath(base, name string) string {
	if base == "" {
		return name
	}
	return base + "." + name
}

// toStarlark recursively converts a native Go value (as produced by a
// YAML/JSON unmarshal or assembled by the runtime) into a starlark.Value,
// wrapping every map in an AttrMap so dotted access and subscript both
// resolve, and reporting unsupported Go types as evaluation errors
// rather than panicking.
func toStarlark(v any, path string) (starlark.Value, error) {
	switch t := v.(type) {
	case nil:
		return starlark.None, nil
	case starlark.Value:
		return t, nil
	case string:
		return starlark.String(t), nil
	case bool:
		return starlark.Bool(t), nil
	case int:
		return starlark.MakeInt(t), nil
	case int64:
		return starlark.MakeInt64(t), nil
	case float64:
		return starlark.Float(t), nil
	case map[string]any:
		values := make(map[string]starlark.Value, len(t))
		for k, v := range t {
			cv, err := toStarlark(v, joinPath(path, k))
			if err != nil {
				return nil, err
			}
			values[k] = cv
		}
		return &AttrMap{path: path, values: values}, nil
	case map[string]string:
		values := make(map[string]starlark.Value, len(t))
		for k, v := range t {
			values[k] = starlark.String(v)
		}
		return &AttrMap{path: path, values: values}, nil
	case []any:
		elems := make([]starlark.Value, len(t))
		for i, e := range t {
			cv, err := toStarlark(e, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			elems[i] = cv
		}
		return starlark.Tuple(elems), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T at %q", v, path)
	}
}

// fromStarlark converts an evaluated starlark.Value back to a native Go
// value for storage on StepResult.Output / WorkflowContext.
func fromStarlark(v starlark.Value) (any, error) {
	switch t := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(t), nil
	case starlark.String:
		return string(t), nil
	case starlark.Int:
		if i, ok := t.Int64(); ok {
			return i, nil
		}
		return t.String(), nil
	case starlark.Float:
		return float64(t), nil
	case *AttrMap:
		out := make(map[string]any, len(t.values))
		for k, fv := range t.values {
			cv, err := fromStarlark(fv)
			if err != nil {
				return nil, err
			}
			out[k] = cv
		}
		return out, nil
	case *starlark.Dict:
		out := make(map[string]any, t.Len())
		for _, item := range t.Items() {
			k, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("unsupported dict key type %s", item[0].Type())
			}
			cv, err := fromStarlark(item[1])
			if err != nil {
				return nil, err
			}
			out[string(k)] = cv
		}
		return out, nil
	case starlark.Tuple:
		out := make([]any, len(t))
		for i, e := range t {
			cv, err := fromStarlark(e)
			if err != nil {
				return nil, err
			}
			out[i] = cv
		}
		return out, nil
	case *starlark.List:
		out := make([]any, t.Len())
		for i := 0; i < t.Len(); i++ {
			cv, err := fromStarlark(t.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = cv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported starlark value type %s", v.Type())
	}
}
