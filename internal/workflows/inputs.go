package workflows

import (
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

// jsonSchemaType maps an InputType to the draft-4 "type" keyword
// gojsonschema expects; enum is expressed as a oneOf-free "enum"
// constraint over Choices rather than its own JSON Schema type.
func (t InputType) jsonSchemaType() string {
	switch t {
	case InputString, InputEnum:
		return "string"
	case InputInteger:
		return "integer"
	case InputBoolean:
		return "boolean"
	case InputNumber:
		return "number"
	case InputArray:
		return "array"
	case InputObject:
		return "object"
	default:
		return "string"
	}
}

// schema builds the draft-4 JSON Schema document this InputDef implies,
// grounded on spec.md §2's InputDef shape: a type constraint, plus an
// enum constraint when Choices is set.
func (d InputDef) schema() map[string]any {
	s := map[string]any{"type": d.Type.jsonSchemaType()}
	if len(d.Choices) > 0 {
		s["enum"] = d.Choices
	}
	return s
}

// BindInputs validates the caller-supplied values against the
// workflow's declared InputDef map and returns the bound map: declared
// defaults fill in any input the caller omitted, then every value
// (caller-supplied or defaulted) is checked against its InputDef's
// type and choices via gojsonschema in place of a hand-rolled per-type
// switch. Workflow inputs are the only values schema-checked this way;
// agent and generator inputs and outputs are not schema-validated.
func BindInputs(defs map[string]InputDef, provided map[string]any) (map[string]any, error) {
	bound := make(map[string]any, len(defs))
	for name, def := range defs {
		value, ok := provided[name]
		if !ok {
			if def.Required {
				return nil, fmt.Errorf("missing required input %q", name)
			}
			value = def.Default
		}
		if value == nil {
			bound[name] = nil
			continue
		}
		if err := validateInputValue(name, def, value); err != nil {
			return nil, err
		}
		bound[name] = value
	}

	var unknown []string
	for name := range provided {
		if _, declared := defs[name]; !declared {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("undeclared input(s): %v", unknown)
	}

	return bound, nil
}

func validateInputValue(name string, def InputDef, value any) error {
	schemaLoader := gojsonschema.NewGoLoader(def.schema())
	docLoader := gojsonschema.NewGoLoader(value)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("input %q: building schema: %w", name, err)
	}
	if !result.Valid() {
		return fmt.Errorf("input %q: %s", name, result.Errors()[0].String())
	}
	return nil
}
