package llm

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaFor derives a tool input schema from a Go struct type. Field names,
// json tags and jsonschema tags all apply, so tool authors describe inputs
// once as ordinary structs.
func SchemaFor(v any) (Schema, error) {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	reflected := reflector.Reflect(v)

	raw, err := json.Marshal(reflected)
	if err != nil {
		return Schema{}, fmt.Errorf("reflect schema: %w", err)
	}
	var generic struct {
		Type       string         `json:"type"`
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return Schema{}, fmt.Errorf("reflect schema: %w", err)
	}

	schema := Schema{
		Type:       generic.Type,
		Properties: generic.Properties,
		Required:   generic.Required,
	}
	if schema.Type == "" {
		schema.Type = "object"
	}
	return schema, nil
}

// MustSchemaFor is SchemaFor for statically known types, panicking on
// reflection failure.
func MustSchemaFor(v any) Schema {
	schema, err := SchemaFor(v)
	if err != nil {
		panic(err)
	}
	return schema
}
