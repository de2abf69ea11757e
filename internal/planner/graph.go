package planner

import (
	"fmt"
	"slices"

	"github.com/sourceplane/cfdcase/internal/model"
)

// StageGraph represents the DAG of stage steps with cycle detection and topological sorting
type StageGraph struct {
	steps map[model.Stage]*Step
}

// NewStageGraph creates a new stage graph from steps
func NewStageGraph(steps map[model.Stage]*Step) *StageGraph {
	return &StageGraph{
		steps: steps,
	}
}

// DetectCycles performs cycle detection on the stage dependency graph using DFS
func (g *StageGraph) DetectCycles() error {
	visited := make(map[model.Stage]bool)
	recStack := make(map[model.Stage]bool)

	for _, stage := range g.ordered() {
		if !visited[stage] {
			if g.hasCycleDFS(stage, visited, recStack) {
				return fmt.Errorf("cycle detected in stage dependencies")
			}
		}
	}

	return nil
}

// hasCycleDFS performs DFS cycle detection from a given node
func (g *StageGraph) hasCycleDFS(node model.Stage, visited, recStack map[model.Stage]bool) bool {
	visited[node] = true
	recStack[node] = true

	step, exists := g.steps[node]
	if !exists {
		return false
	}

	for _, dep := range step.DependsOn {
		if !visited[dep] {
			if g.hasCycleDFS(dep, visited, recStack) {
				return true
			}
		} else if recStack[dep] {
			return true
		}
	}

	recStack[node] = false
	return false
}

// TopologicalSort orders stages with Kahn's algorithm. Stages that become
// ready together keep the order of model.Stages.
func (g *StageGraph) TopologicalSort() ([]model.Stage, error) {
	dependents := make(map[model.Stage][]model.Stage)
	inDegree := make(map[model.Stage]int)

	for stage := range g.steps {
		inDegree[stage] = 0
	}

	for _, stage := range g.ordered() {
		for _, dep := range g.steps[stage].DependsOn {
			if _, ok := g.steps[dep]; !ok {
				return nil, fmt.Errorf("stage %s depends on unknown stage %s", stage, dep)
			}
			dependents[dep] = append(dependents[dep], stage)
			inDegree[stage]++
		}
	}

	queue := make([]model.Stage, 0)
	for _, stage := range g.ordered() {
		if inDegree[stage] == 0 {
			queue = append(queue, stage)
		}
	}

	sorted := make([]model.Stage, 0, len(g.steps))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		sorted = append(sorted, current)

		for _, dependent := range dependents[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(sorted) != len(g.steps) {
		return nil, fmt.Errorf("failed to topologically sort: possible cycle detected")
	}

	return sorted, nil
}

// ordered lists the graph's stages in model.Stages order, unknown stages last
func (g *StageGraph) ordered() []model.Stage {
	out := make([]model.Stage, 0, len(g.steps))
	seen := make(map[model.Stage]bool)
	for _, stage := range model.Stages {
		if _, ok := g.steps[stage]; ok {
			out = append(out, stage)
			seen[stage] = true
		}
	}
	var rest []model.Stage
	for stage := range g.steps {
		if !seen[stage] {
			rest = append(rest, stage)
		}
	}
	slices.Sort(rest)
	return append(out, rest...)
}
