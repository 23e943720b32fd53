package tools

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// InputSchema reflects a typed input struct into its JSON Schema. Schemas
// are generated once at catalog build so tool inputs stay compile-time
// checked while the provider still receives plain JSON Schema.
func InputSchema(v any) (json.RawMessage, error) {
	reflector := &jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}
	schema := reflector.Reflect(v)
	schema.Version = "" // providers reject $schema in tool parameters

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema for %T: %w", v, err)
	}
	return raw, nil
}

// MustInputSchema is InputSchema for static catalog construction; reflection
// failures here are programming errors.
func MustInputSchema(v any) json.RawMessage {
	raw, err := InputSchema(v)
	if err != nil {
		panic(err)
	}
	return raw
}
