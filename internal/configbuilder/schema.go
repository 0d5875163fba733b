package configbuilder

import (
	"bytes"
	_ "embed"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed config.schema.json
var configSchemaJSON []byte

var configSchema *jsonschema.Schema

func init() {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("config.schema.json", bytes.NewReader(configSchemaJSON)); err != nil {
		panic(fmt.Sprintf("configbuilder: invalid embedded schema: %v", err))
	}
	schema, err := compiler.Compile("config.schema.json")
	if err != nil {
		panic(fmt.Sprintf("configbuilder: schema compile failed: %v", err))
	}
	configSchema = schema
}

// Validate checks a raw (pre-camelCase) config object against the pinned
// JSON Schema using github.com/santhosh-tekuri/jsonschema/v5 for
// request-shape validation.
func Validate(obj map[string]any) error {
	if err := configSchema.Validate(obj); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
