package planner

import (
	"fmt"
	"path/filepath"

	"github.com/sourceplane/cfdcase/internal/casewriter"
	"github.com/sourceplane/cfdcase/internal/mesher"
	"github.com/sourceplane/cfdcase/internal/model"
	"github.com/sourceplane/cfdcase/internal/progress"
	"github.com/sourceplane/cfdcase/internal/runner"
	"github.com/sourceplane/cfdcase/internal/solver"
)

const (
	apiVersion = "cfdcase.sourceplane.io/v1"
	planKind   = "Plan"
)

// Step is one executable stage of a run
type Step struct {
	Stage model.Stage
	// Tool names the stage's log file, log.<Tool>
	Tool         string
	Command      runner.Command
	NewExtractor func() progress.Extractor
	DependsOn    []model.Stage
}

// StagePlanner binds each stage of a case to its executable and arguments
type StagePlanner struct {
	executables map[string]string
}

// NewStagePlanner creates a planner. executables maps a tool name to the
// executable to run; a missing or empty entry means a PATH lookup.
func NewStagePlanner(executables map[string]string) *StagePlanner {
	return &StagePlanner{executables: executables}
}

// Resolve returns the executable for tool
func (sp *StagePlanner) Resolve(tool string) string {
	if path := sp.executables[tool]; path != "" {
		return path
	}
	return tool
}

// Steps returns the stage steps of cfg in execution order. Every command
// runs from caseDir.
func (sp *StagePlanner) Steps(cfg model.CaseConfig, caseDir string) ([]Step, error) {
	backend, err := mesher.For(cfg.Mesh.Backend)
	if err != nil {
		return nil, err
	}

	meshCmd := backend.Command(sp.Resolve)
	meshCmd.Dir = caseDir
	solveCmd := solver.Command(cfg, sp.Resolve)
	solveCmd.Dir = caseDir

	steps := map[model.Stage]*Step{
		model.StageMesh: {
			Stage:        model.StageMesh,
			Tool:         backend.Tool(),
			Command:      meshCmd,
			NewExtractor: backend.NewExtractor,
		},
		model.StageSolve: {
			Stage:        model.StageSolve,
			Tool:         solver.Application(cfg.Physics),
			Command:      solveCmd,
			NewExtractor: func() progress.Extractor { return solver.NewExtractor(cfg) },
			DependsOn:    []model.Stage{model.StageMesh},
		},
	}

	graph := NewStageGraph(steps)
	if err := graph.DetectCycles(); err != nil {
		return nil, err
	}
	order, err := graph.TopologicalSort()
	if err != nil {
		return nil, err
	}

	out := make([]Step, 0, len(order))
	for _, stage := range order {
		out = append(out, *steps[stage])
	}
	return out, nil
}

// Plan builds the execution-ready stage plan of cfg, including the files each
// stage writes
func (sp *StagePlanner) Plan(cfg model.CaseConfig, caseDir string) (*model.Plan, error) {
	abs, err := filepath.Abs(caseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve case directory: %w", err)
	}
	steps, err := sp.Steps(cfg, abs)
	if err != nil {
		return nil, err
	}

	plan := &model.Plan{
		APIVersion: apiVersion,
		Kind:       planKind,
		Metadata:   model.Metadata{Name: cfg.Name},
		Spec: model.PlanSpec{
			CaseDir:     abs,
			Backend:     cfg.Mesh.Backend,
			Application: solver.Application(cfg.Physics),
			SurfaceFile: cfg.Mesh.SurfaceFile,
		},
	}

	for _, step := range steps {
		docs, err := casewriter.Documents(cfg, step.Stage)
		if err != nil {
			return nil, fmt.Errorf("failed to plan %s stage: %w", step.Stage, err)
		}
		files := make([]string, 0, len(docs)+1)
		for _, d := range docs {
			files = append(files, d.Path)
		}
		if step.Stage == model.StageMesh && cfg.Mesh.SurfaceFile != "" {
			files = append(files, mesher.SurfacePath(cfg))
		}

		plan.Stages = append(plan.Stages, model.PlanStage{
			Stage:      step.Stage,
			Tool:       step.Tool,
			Executable: step.Command.Executable,
			Args:       step.Command.Args,
			Env:        step.Command.Env,
			Requires:   step.Command.Requires,
			Dir:        step.Command.Dir,
			Subtree:    step.Stage.Subtree(),
			Files:      files,
			DependsOn:  step.DependsOn,
		})
	}
	return plan, nil
}
