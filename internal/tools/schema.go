package tools

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Kind is the closed set of schema node shapes spec section 4.3 renders.
type Kind string

const (
	KindString       Kind = "string"
	KindNumber       Kind = "number"
	KindBoolean      Kind = "boolean"
	KindNull         Kind = "null"
	KindObject       Kind = "object"
	KindArray        Kind = "array"
	KindTuple        Kind = "tuple"
	KindUnion        Kind = "union"
	KindIntersection Kind = "intersection"
	KindRecord       Kind = "record"
	KindLiteral      Kind = "literal"
	KindEnum         Kind = "enum"
)

// Schema is a structural, JSON-schema-shaped node. It supports the
// primitives, enum/union/object/array/tuple/nullable/optional/record/
// intersection/default variants named in spec section 3.1, with
// descriptions preserved on every node.
type Schema struct {
	Kind        Kind
	Description string

	// object
	Properties map[string]*Schema
	Required   []string

	// array / tuple element(s)
	Items    *Schema   // array
	Elements []*Schema // tuple

	// union / intersection
	Variants []*Schema

	// record
	KeySchema   *Schema
	ValueSchema *Schema

	// literal
	LiteralValue any

	// enum
	EnumValues []any

	// modifiers
	Optional bool
	Nullable bool
	HasDefault bool
	Default  any
}

// Render implements the documentation renderer described in spec section
// 4.3: a plain recursive function over the schema's variant, deterministic
// given equal input (spec section 8's schema-rendering-stability property).
func (s *Schema) Render() string {
	if s == nil {
		return "any"
	}
	body := s.renderBody()
	if s.Nullable {
		body = body + " | null"
	}
	if s.Optional {
		body = body + "?"
	}
	if s.HasDefault {
		body = fmt.Sprintf("%s (default)", body)
	}
	return body
}

func (s *Schema) renderBody() string {
	switch s.Kind {
	case KindString, KindNumber, KindBoolean, KindNull:
		return withDescription(string(s.Kind), s.Description)
	case KindObject:
		return withDescription(s.renderObject(), s.Description)
	case KindArray:
		return withDescription(fmt.Sprintf("[%s]", s.Items.Render()), s.Description)
	case KindTuple:
		parts := make([]string, len(s.Elements))
		for i, e := range s.Elements {
			parts[i] = e.Render()
		}
		return withDescription(fmt.Sprintf("[%s]", strings.Join(parts, ", ")), s.Description)
	case KindUnion:
		return withDescription(joinVariants(s.Variants, " | "), s.Description)
	case KindIntersection:
		return withDescription(joinVariants(s.Variants, " & "), s.Description)
	case KindRecord:
		return withDescription(fmt.Sprintf("{ [key: %s]: %s }", s.KeySchema.Render(), s.ValueSchema.Render()), s.Description)
	case KindLiteral:
		data, _ := json.Marshal(s.LiteralValue)
		return withDescription(string(data), s.Description)
	case KindEnum:
		parts := make([]string, len(s.EnumValues))
		for i, v := range s.EnumValues {
			data, _ := json.Marshal(v)
			parts[i] = string(data)
		}
		return withDescription(fmt.Sprintf("enum(%s)", strings.Join(parts, ", ")), s.Description)
	default:
		return "any"
	}
}

func (s *Schema) renderObject() string {
	keys := make([]string, 0, len(s.Properties))
	for k := range s.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, s.Properties[k].Render()))
	}
	return fmt.Sprintf("{ %s }", strings.Join(parts, "; "))
}

func joinVariants(variants []*Schema, sep string) string {
	parts := make([]string, len(variants))
	for i, v := range variants {
		parts[i] = v.Render()
	}
	return strings.Join(parts, sep)
}

func withDescription(rendered, description string) string {
	if description == "" {
		return rendered
	}
	return fmt.Sprintf("%s <%s>", rendered, description)
}

// ToJSONSchema lowers a Schema to a plain map, the shape the
// santhosh-tekuri/jsonschema compiler expects, for real structural
// validation of tool input/output at the Tool Wrapper boundary.
func (s *Schema) ToJSONSchema() map[string]any {
	if s == nil {
		return map[string]any{}
	}

	var out map[string]any
	switch s.Kind {
	case KindString:
		out = map[string]any{"type": "string"}
	case KindNumber:
		out = map[string]any{"type": "number"}
	case KindBoolean:
		out = map[string]any{"type": "boolean"}
	case KindNull:
		out = map[string]any{"type": "null"}
	case KindObject:
		props := map[string]any{}
		for k, v := range s.Properties {
			props[k] = v.ToJSONSchema()
		}
		out = map[string]any{
			"type":       "object",
			"properties": props,
		}
		if len(s.Required) > 0 {
			out["required"] = s.Required
		}
	case KindArray:
		out = map[string]any{"type": "array", "items": s.Items.ToJSONSchema()}
	case KindTuple:
		items := make([]any, len(s.Elements))
		for i, e := range s.Elements {
			items[i] = e.ToJSONSchema()
		}
		out = map[string]any{"type": "array", "prefixItems": items, "minItems": len(items), "maxItems": len(items)}
	case KindUnion:
		variants := make([]any, len(s.Variants))
		for i, v := range s.Variants {
			variants[i] = v.ToJSONSchema()
		}
		out = map[string]any{"anyOf": variants}
	case KindIntersection:
		variants := make([]any, len(s.Variants))
		for i, v := range s.Variants {
			variants[i] = v.ToJSONSchema()
		}
		out = map[string]any{"allOf": variants}
	case KindRecord:
		out = map[string]any{
			"type":                 "object",
			"additionalProperties": s.ValueSchema.ToJSONSchema(),
		}
	case KindLiteral:
		out = map[string]any{"const": s.LiteralValue}
	case KindEnum:
		out = map[string]any{"enum": s.EnumValues}
	default:
		out = map[string]any{}
	}

	if s.Description != "" {
		out["description"] = s.Description
	}
	if s.HasDefault {
		out["default"] = s.Default
	}
	if s.Nullable {
		out = map[string]any{"anyOf": []any{out, map[string]any{"type": "null"}}}
	}
	return out
}
