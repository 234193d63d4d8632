package tools

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestRenderPrimitives(t *testing.T) {
	assert.Equal(t, "string", (&Schema{Kind: KindString}).Render())
	assert.Equal(t, "number <count>", (&Schema{Kind: KindNumber, Description: "count"}).Render())
}

func TestRenderObject(t *testing.T) {
	s := &Schema{
		Kind: KindObject,
		Properties: map[string]*Schema{
			"b": {Kind: KindNumber},
			"a": {Kind: KindString},
		},
	}
	assert.Equal(t, "{ a: string; b: number }", s.Render())
}

func TestRenderArrayAndTuple(t *testing.T) {
	arr := &Schema{Kind: KindArray, Items: &Schema{Kind: KindString}}
	assert.Equal(t, "[string]", arr.Render())

	tuple := &Schema{Kind: KindTuple, Elements: []*Schema{{Kind: KindString}, {Kind: KindNumber}}}
	assert.Equal(t, "[string, number]", tuple.Render())
}

func TestRenderUnionIntersection(t *testing.T) {
	union := &Schema{Kind: KindUnion, Variants: []*Schema{{Kind: KindString}, {Kind: KindNumber}}}
	assert.Equal(t, "string | number", union.Render())

	inter := &Schema{Kind: KindIntersection, Variants: []*Schema{{Kind: KindString}, {Kind: KindNumber}}}
	assert.Equal(t, "string & number", inter.Render())
}

func TestRenderRecord(t *testing.T) {
	rec := &Schema{Kind: KindRecord, KeySchema: &Schema{Kind: KindString}, ValueSchema: &Schema{Kind: KindNumber}}
	assert.Equal(t, "{ [key: string]: number }", rec.Render())
}

func TestRenderModifiers(t *testing.T) {
	opt := &Schema{Kind: KindString, Optional: true}
	assert.Equal(t, "string?", opt.Render())

	nullable := &Schema{Kind: KindString, Nullable: true}
	assert.Equal(t, "string | null", nullable.Render())

	withDefault := &Schema{Kind: KindNumber, HasDefault: true, Default: 5}
	assert.Equal(t, "number (default)", withDefault.Render())
}

func TestRenderLiteralAndEnum(t *testing.T) {
	lit := &Schema{Kind: KindLiteral, LiteralValue: "ok"}
	assert.Equal(t, `"ok"`, lit.Render())

	enum := &Schema{Kind: KindEnum, EnumValues: []any{"a", "b"}}
	assert.Equal(t, `enum("a", "b")`, enum.Render())
}

func TestRenderIsDeterministic(t *testing.T) {
	s1 := &Schema{Kind: KindObject, Properties: map[string]*Schema{
		"x": {Kind: KindString}, "y": {Kind: KindNumber},
	}}
	s2 := &Schema{Kind: KindObject, Properties: map[string]*Schema{
		"y": {Kind: KindNumber}, "x": {Kind: KindString},
	}}
	assert.Equal(t, s1.Render(), s2.Render(), "equal schemas must render to byte-equal strings regardless of map iteration order")
}

func TestToJSONSchemaRequiredField(t *testing.T) {
	s := &Schema{
		Kind:       KindObject,
		Properties: map[string]*Schema{"path": {Kind: KindString}},
		Required:   []string{"path"},
	}
	doc := s.ToJSONSchema()
	assert.Equal(t, "object", doc["type"])
	assert.Equal(t, []string{"path"}, doc["required"])
}

func TestToJSONSchemaNestedArrayOfObjects(t *testing.T) {
	s := &Schema{
		Kind: KindArray,
		Items: &Schema{
			Kind:       KindObject,
			Properties: map[string]*Schema{"id": {Kind: KindString}},
			Required:   []string{"id"},
		},
	}
	want := map[string]any{
		"type": "array",
		"items": map[string]any{
			"type":       "object",
			"properties": map[string]any{"id": map[string]any{"type": "string"}},
			"required":   []string{"id"},
		},
	}
	if diff := cmp.Diff(want, s.ToJSONSchema()); diff != "" {
		t.Errorf("ToJSONSchema mismatch (-want +got):\n%s", diff)
	}
}
