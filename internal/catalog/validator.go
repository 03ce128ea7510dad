package catalog

import (
	"encoding/json"
	"fmt"
	"strings"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema/accelerator-v1.json
var acceleratorSchemaJSON string

type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()

	if err := compiler.AddResource("accelerator-v1.json",
		strings.NewReader(acceleratorSchemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile("accelerator-v1.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

// Validate checks a JSON or YAML document against the descriptor schema
// and returns it as canonical JSON.
func (v *Validator) Validate(data []byte) ([]byte, error) {
	var doc interface{}
	if json.Valid(data) {
		doc = json.RawMessage(data)
	} else if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid descriptor: %w", err)
	}

	// Round trip through JSON so the schema sees JSON types only.
	canonical, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("descriptor is not representable as JSON: %w", err)
	}
	var generic interface{}
	if err := json.Unmarshal(canonical, &generic); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if err := v.schema.Validate(generic); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	return canonical, nil
}
