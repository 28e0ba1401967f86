package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/hiveerrors"
)

// registrationSchemaJSON is the JSON Schema for the §6.2 agent-registration
// payload: type is required and restricted to the four known kinds, a
// missing or unknown type, or a non-object payload, all fail validation
// exactly as §6.2 specifies.
const registrationSchemaJSON = `{
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": { "enum": ["worker", "coordinator", "specialist", "learner"] },
    "name": { "type": "string" },
    "tag": { "type": "string" }
  }
}`

var registrationSchema = mustCompileSchema("agent_registration.json", registrationSchemaJSON)

func mustCompileSchema(name, rawJSON string) *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(rawJSON))
	if err != nil {
		panic(fmt.Sprintf("agent: invalid embedded schema %s: %s", name, err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, doc); err != nil {
		panic(fmt.Sprintf("agent: add schema resource %s: %s", name, err))
	}
	schema, err := c.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("agent: compile schema %s: %s", name, err))
	}
	return schema
}

func schemaValidationError(err error) error {
	field := "payload"
	reason := err.Error()
	if ve, ok := err.(*jsonschema.ValidationError); ok {
		leaf := ve
		for len(leaf.Causes) > 0 {
			leaf = leaf.Causes[0]
		}
		if len(leaf.InstanceLocation) > 0 {
			field = strings.Join(leaf.InstanceLocation, ".")
		}
		reason = leaf.Error()
	}
	return &hiveerrors.ValidationError{Field: field, Reason: reason}
}

// ValidateRegisterPayload checks a raw agent-registration JSON payload
// (§6.2) against the compiled schema.
func ValidateRegisterPayload(raw []byte) error {
	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return &hiveerrors.ValidationError{Field: "payload", Reason: "invalid JSON: " + err.Error()}
	}
	if err := registrationSchema.Validate(parsed); err != nil {
		return schemaValidationError(err)
	}
	return nil
}

// DecodeRegisterPayload validates raw against the §6.2 schema and, on
// success, decodes it into a RegisterConfig ready for (*Registry).Register.
func DecodeRegisterPayload(raw []byte) (RegisterConfig, error) {
	if err := ValidateRegisterPayload(raw); err != nil {
		return RegisterConfig{}, err
	}
	var cfg RegisterConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return RegisterConfig{}, &hiveerrors.ValidationError{Field: "payload", Reason: err.Error()}
	}
	return cfg, nil
}

// RegisterFromJSON validates and decodes a raw §6.2 registration payload
// and registers the resulting agent.
func (r *Registry) RegisterFromJSON(ctx context.Context, raw []byte) (Agent, error) {
	cfg, err := DecodeRegisterPayload(raw)
	if err != nil {
		return Agent{}, err
	}
	return r.Register(ctx, cfg)
}
