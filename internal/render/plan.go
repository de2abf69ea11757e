package render

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sourceplane/cfdcase/internal/model"
)

// Renderer serializes stage plans
type Renderer struct{}

// NewRenderer creates a new renderer
func NewRenderer() *Renderer {
	return &Renderer{}
}

// RenderJSON renders plan as JSON
func (r *Renderer) RenderJSON(plan *model.Plan) ([]byte, error) {
	return json.MarshalIndent(plan, "", "  ")
}

// RenderYAML renders plan as YAML
func (r *Renderer) RenderYAML(plan *model.Plan) ([]byte, error) {
	return yaml.Marshal(plan)
}

// Render renders plan in the named format ("json" or "yaml")
func (r *Renderer) Render(plan *model.Plan, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "json", "":
		return r.RenderJSON(plan)
	case "yaml", "yml":
		return r.RenderYAML(plan)
	}
	return nil, fmt.Errorf("unknown plan format %q", format)
}

// WritePlan writes plan to file (JSON or YAML based on extension)
func (r *Renderer) WritePlan(plan *model.Plan, path string) error {
	var data []byte
	var err error

	// Ensure directory exists
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Determine format from extension
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		data, err = r.RenderYAML(plan)
	default:
		data, err = r.RenderJSON(plan)
	}
	if err != nil {
		return fmt.Errorf("failed to render plan: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write plan to %s: %w", path, err)
	}

	return nil
}

// DebugDump outputs debug information about the plan
func (r *Renderer) DebugDump(plan *model.Plan) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Plan: %s\n", plan.Metadata.Name)
	fmt.Fprintf(&sb, "Case: %s\n", plan.Spec.CaseDir)
	fmt.Fprintf(&sb, "Backend: %s, application: %s\n", plan.Spec.Backend, plan.Spec.Application)
	fmt.Fprintf(&sb, "Stages: %d\n\n", len(plan.Stages))

	for _, st := range plan.Stages {
		fmt.Fprintf(&sb, "Stage: %s\n", st.Stage)
		fmt.Fprintf(&sb, "  Tool: %s\n", st.Tool)
		fmt.Fprintf(&sb, "  Command: %s\n", strings.TrimSpace(st.Executable+" "+strings.Join(st.Args, " ")))
		fmt.Fprintf(&sb, "  Dir: %s\n", st.Dir)
		if len(st.Env) > 0 {
			fmt.Fprintf(&sb, "  Env: %v\n", st.Env)
		}
		if len(st.Requires) > 0 {
			fmt.Fprintf(&sb, "  Requires: %v\n", st.Requires)
		}
		fmt.Fprintf(&sb, "  Files: %d\n", len(st.Files))
		fmt.Fprintf(&sb, "  DependsOn: %v\n", st.DependsOn)
		sb.WriteString("\n")
	}

	return sb.String()
}
