package coordinator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/hiveerrors"
)

// taskSubmissionSchemaJSON is the JSON Schema for the §6.1 task-submission
// payload. It only enforces that the payload is an object and that each
// present field has the right JSON type; the priority-defaulting and
// capability-skipping leniency §6.1 documents belongs to Create and
// sanitizeCapabilities, not the schema — a schema strict enough to reject
// an unknown priority string would contradict the "defaults to Medium,
// never rejected" rule.
const taskSubmissionSchemaJSON = `{
  "type": "object",
  "properties": {
    "type": { "type": "string" },
    "title": { "type": "string" },
    "description": { "type": "string" },
    "priority": { "type": "string" },
    "required_capabilities": {
      "type": "array",
      "items": { "type": "object" }
    }
  }
}`

var taskSubmissionSchema = mustCompileSchema("task_submission.json", taskSubmissionSchemaJSON)

func mustCompileSchema(name, rawJSON string) *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(rawJSON))
	if err != nil {
		panic(fmt.Sprintf("coordinator: invalid embedded schema %s: %s", name, err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, doc); err != nil {
		panic(fmt.Sprintf("coordinator: add schema resource %s: %s", name, err))
	}
	schema, err := c.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("coordinator: compile schema %s: %s", name, err))
	}
	return schema
}

// schemaValidationError converts a jsonschema validation failure into the
// substrate's *hiveerrors.ValidationError, taking Field from the deepest
// failing instance location and Reason from its message.
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

// ValidateTaskPayload checks a raw task-submission JSON payload (§6.1)
// against the compiled schema. A non-object payload or a wrongly-typed
// field produces a *hiveerrors.ValidationError; an unknown priority string
// or a malformed capability entry does not, since those are handled
// leniently further down the pipeline.
func ValidateTaskPayload(raw []byte) error {
	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return &hiveerrors.ValidationError{Field: "payload", Reason: "invalid JSON: " + err.Error()}
	}
	if err := taskSubmissionSchema.Validate(parsed); err != nil {
		return schemaValidationError(err)
	}
	return nil
}

// DecodeTaskPayload validates raw against the §6.1 schema and, on success,
// decodes it into a TaskConfig ready for (*Distributor).Create.
func DecodeTaskPayload(raw []byte) (TaskConfig, error) {
	if err := ValidateTaskPayload(raw); err != nil {
		return TaskConfig{}, err
	}
	var cfg TaskConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return TaskConfig{}, &hiveerrors.ValidationError{Field: "payload", Reason: err.Error()}
	}
	return cfg, nil
}

// CreateFromJSON validates and decodes a raw §6.1 task-submission payload
// and submits it, returning the new task's id.
func (d *Distributor) CreateFromJSON(raw []byte) (string, error) {
	cfg, err := DecodeTaskPayload(raw)
	if err != nil {
		return "", err
	}
	return d.Create(cfg), nil
}
