package amd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ModuleDocumentSchemaURL identifies the module document schema.
const ModuleDocumentSchemaURL = "https://github.com/GoCodeAlone/amd/schemas/module-document.json"

// ModuleDocumentSchema is the JSON Schema every decoded module document
// must satisfy, whatever its source format.
const ModuleDocumentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "title": "AMD module document",
  "type": "object",
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "imports": {
      "type": "array",
      "items": {"type": "string", "minLength": 1}
    },
    "module": true
  },
  "required": ["module"],
  "additionalProperties": false
}`

var documentSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(ModuleDocumentSchema))
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(ModuleDocumentSchemaURL, doc); err != nil {
		return nil, err
	}
	return compiler.Compile(ModuleDocumentSchemaURL)
})

// ValidateModuleDocument checks the generic form of one decoded document,
// as produced by a YAML, JSON or TOML decoder, against ModuleDocumentSchema.
func ValidateModuleDocument(raw any) error {
	schema, err := documentSchema()
	if err != nil {
		return fmt.Errorf("failed to compile module document schema: %w", err)
	}

	// Round trip through JSON so the validator sees json.Number values and
	// string keys whatever decoder produced raw.
	data, err := json.Marshal(normalizeValue(raw))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	v, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	return nil
}
