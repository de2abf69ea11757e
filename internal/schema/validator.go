package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/sourceplane/cfdcase/internal/validate"
)

//go:embed case.schema.yaml
var caseSchemaYAML []byte

//go:embed plan.schema.yaml
var planSchemaYAML []byte

// Validator handles JSON schema validation of case and plan documents
type Validator struct {
	caseSchema *jsonschema.Schema
	planSchema *jsonschema.Schema
}

// NewValidator compiles the embedded schemas
func NewValidator() (*Validator, error) {
	v := &Validator{}

	caseSchema, err := compile("case.schema.json", caseSchemaYAML)
	if err != nil {
		return nil, fmt.Errorf("failed to load case schema: %w", err)
	}
	v.caseSchema = caseSchema

	planSchema, err := compile("plan.schema.json", planSchemaYAML)
	if err != nil {
		return nil, fmt.Errorf("failed to load plan schema: %w", err)
	}
	v.planSchema = planSchema

	return v, nil
}

// ValidateCase validates a decoded case document. Schema violations are
// reported as *validate.ValidationError.
func (v *Validator) ValidateCase(doc interface{}) error {
	if v.caseSchema == nil {
		return fmt.Errorf("case schema not loaded")
	}
	return check(v.caseSchema, doc)
}

// ValidatePlan validates a plan document
func (v *Validator) ValidatePlan(doc interface{}) error {
	if v.planSchema == nil {
		return fmt.Errorf("plan schema not loaded")
	}
	return check(v.planSchema, doc)
}

// compile loads and compiles a schema document (JSON or YAML)
func compile(url string, data []byte) (*jsonschema.Schema, error) {
	// Parse YAML to interface{} (supports both YAML and JSON)
	var schemaData interface{}
	if err := yaml.Unmarshal(data, &schemaData); err != nil {
		return nil, fmt.Errorf("failed to parse schema file: %w", err)
	}

	// Convert to JSON for schema compiler
	jsonData, err := json.Marshal(schemaData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(jsonData)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return schema, nil
}

func check(schema *jsonschema.Schema, doc interface{}) error {
	instance, err := toJSON(doc)
	if err != nil {
		return err
	}
	err = schema.Validate(instance)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return fmt.Errorf("failed to validate document: %w", err)
	}

	r := &validate.Report{}
	seen := map[string]bool{}
	for _, leaf := range leaves(verr) {
		field := FieldPath(leaf.InstanceLocation)
		key := field + "\x00" + leaf.Message
		if seen[key] {
			continue
		}
		seen[key] = true
		r.Add(field, "%s", leaf.Message)
	}
	return r.Err()
}

// toJSON converts a decoded YAML value into the plain JSON value model the
// schema validator expects
func toJSON(doc interface{}) (interface{}, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to convert document to JSON: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out interface{}
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to convert document to JSON: %w", err)
	}
	return out, nil
}

func leaves(e *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(e.Causes) == 0 {
		return []*jsonschema.ValidationError{e}
	}
	var out []*jsonschema.ValidationError
	for _, c := range e.Causes {
		out = append(out, leaves(c)...)
	}
	return out
}

// FieldPath turns a JSON pointer such as /materials/0/density into the
// field notation used by case violations, materials[0].density
func FieldPath(pointer string) string {
	var sb strings.Builder
	for _, part := range strings.Split(strings.TrimPrefix(pointer, "/"), "/") {
		if part == "" {
			continue
		}
		part = strings.ReplaceAll(strings.ReplaceAll(part, "~1", "/"), "~0", "~")
		if _, err := strconv.Atoi(part); err == nil {
			sb.WriteString("[" + part + "]")
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(part)
	}
	return sb.String()
}
