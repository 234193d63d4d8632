package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

// compiledSchema caches a jsonschema.Schema compiled from a tools.Schema's
// JSON-schema-lowered form, keyed by the tool's full name and direction
// ("input"/"output") so Validate can be called per guest call without
// recompiling every time.
type compiledSchema struct {
	*jsonschema.Schema
}

func compile(name string, s *Schema) (*compiledSchema, error) {
	if s == nil {
		return nil, nil
	}

	doc := s.ToJSONSchema()
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInputSchema, err)
	}

	c := jsonschema.NewCompiler()
	url := "schema://" + name
	if err := c.AddResource(url, bytesReader(raw)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInputSchema, err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInputSchema, err)
	}
	return &compiledSchema{compiled}, nil
}

// Validate checks a decoded JSON-like value (map[string]any, []any,
// primitives) against the compiled schema.
func (c *compiledSchema) Validate(value any) error {
	if c == nil {
		return nil
	}
	return c.Schema.Validate(value)
}
