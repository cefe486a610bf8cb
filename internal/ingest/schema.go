package ingest

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

const schemaURL = "https://seqsentry.dev/schema/sessions-v1.schema.json"

//go:embed session.schema.json
var sessionSchema []byte

// ErrInvalidInput is returned when a document does not match the session schema.
var ErrInvalidInput = errors.New("invalid session input")

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	if err := compiler.AddResource(schemaURL, bytes.NewReader(sessionSchema)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
})

// Schema returns the embedded session JSON Schema document.
func Schema() []byte {
	out := make([]byte, len(sessionSchema))
	copy(out, sessionSchema)
	return out
}

// ValidateJSON checks a JSON document against the session schema.
func ValidateJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var instance any
	if err := dec.Decode(&instance); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return validate(instance)
}

// ValidateYAML checks a YAML document against the session schema. Mapping
// keys are rendered as strings the way JSON object keys would be.
func ValidateYAML(data []byte) error {
	var instance any
	if err := yaml.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if instance == nil {
		return nil
	}
	return validate(normalizeYAML(instance))
}

func validate(instance any) error {
	schema, err := compileSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// normalizeYAML converts yaml.v3 decoded values into the types the schema
// validator understands.
func normalizeYAML(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = normalizeYAML(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[fmt.Sprint(k)] = normalizeYAML(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = normalizeYAML(e)
		}
		return out
	case int:
		return json.Number(fmt.Sprint(v))
	case int64:
		return json.Number(fmt.Sprint(v))
	case uint64:
		return json.Number(fmt.Sprint(v))
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		return v
	}
}
