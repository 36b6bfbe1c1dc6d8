package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/coreagent/runtime/agent/core"
)

// SchemaCache compiles each ToolDefinition.Parameters schema once (spec.md
// §4.2 step 2), keyed by tool name, and reuses the compiled *jsonschema.Schema
// for every subsequent call. Grounded on goa-ai's use of the same module for
// tool-input validation.
type SchemaCache struct {
	mu       sync.Mutex
	compiled map[string]*jsonschema.Schema
}

// NewSchemaCache builds an empty cache.
func NewSchemaCache() *SchemaCache {
	return &SchemaCache{compiled: map[string]*jsonschema.Schema{}}
}

// Validate compiles (on first use) and runs def.Parameters against input,
// returning a human-readable error list joined into a single error when
// validation fails. Tools with a CustomFormat (freeform grammar, e.g.
// apply_patch) skip JSON Schema validation entirely — their input is not a
// JSON Schema document.
func (c *SchemaCache) Validate(def core.ToolDefinition, input json.RawMessage) error {
	if def.CustomFormat != nil {
		return nil
	}
	if len(def.Parameters) == 0 {
		return nil
	}

	schema, err := c.compile(def.Name, def.Parameters)
	if err != nil {
		return fmt.Errorf("tool %s: invalid schema: %w", def.Name, err)
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(input))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("tool %s: input is not valid JSON: %w", def.Name, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("tool %s: input validation failed: %w", def.Name, err)
	}
	return nil
}

func (c *SchemaCache) compile(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.compiled[name]; ok {
		return s, nil
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	const resourceURI = "mem://tool-schema"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceURI, doc); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile(resourceURI)
	if err != nil {
		return nil, err
	}
	c.compiled[name] = schema
	return schema, nil
}
