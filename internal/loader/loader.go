package loader

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/sourceplane/cfdcase/internal/model"
	"github.com/sourceplane/cfdcase/internal/normalize"
	"github.com/sourceplane/cfdcase/internal/schema"
)

var validator = sync.OnceValues(schema.NewValidator)

// LoadCase loads, schema-validates and normalizes a case YAML file. A
// relative surface file is resolved against the directory of path.
func LoadCase(path string) (model.CaseConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.CaseConfig{}, fmt.Errorf("failed to read case file: %w", err)
	}
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return model.CaseConfig{}, fmt.Errorf("failed to resolve case file directory: %w", err)
	}
	return DecodeCase(data, dir)
}

// DecodeCase parses a case document (YAML or JSON). Schema violations are
// returned as *validate.ValidationError.
func DecodeCase(data []byte, baseDir string) (model.CaseConfig, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return model.CaseConfig{}, fmt.Errorf("failed to parse case YAML: %w", err)
	}
	if doc == nil {
		return model.CaseConfig{}, fmt.Errorf("case document is empty")
	}

	v, err := validator()
	if err != nil {
		return model.CaseConfig{}, err
	}
	if err := v.ValidateCase(doc); err != nil {
		return model.CaseConfig{}, err
	}

	var cfg model.CaseConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return model.CaseConfig{}, fmt.Errorf("failed to decode case: %w", err)
	}

	return normalize.Case(cfg, baseDir)
}

// LoadPlan loads a plan YAML or JSON file and validates it against the
// plan schema
func LoadPlan(path string) (*model.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse plan YAML: %w", err)
	}
	v, err := validator()
	if err != nil {
		return nil, err
	}
	if err := v.ValidatePlan(doc); err != nil {
		return nil, fmt.Errorf("invalid plan %s: %w", path, err)
	}

	var plan model.Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to decode plan: %w", err)
	}

	// stages run in order, so a dependency must come earlier
	seen := map[model.Stage]bool{}
	for i, st := range plan.Stages {
		for _, dep := range st.DependsOn {
			if !seen[dep] {
				return nil, fmt.Errorf("invalid plan %s: stages[%d] depends on %q, which does not run before it", path, i, dep)
			}
		}
		seen[st.Stage] = true
	}
	return &plan, nil
}
