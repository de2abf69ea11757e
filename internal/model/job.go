package model

// Stage is one ordered step of a pipeline run
type Stage string

const (
	StageMesh  Stage = "mesh"
	StageSolve Stage = "solve"
)

// Stages lists the pipeline stages in execution order
var Stages = []Stage{StageMesh, StageSolve}

// Subtree returns the directory under the case root owned by the stage
func (s Stage) Subtree() string {
	switch s {
	case StageMesh:
		return "mesh"
	case StageSolve:
		return "solver"
	}
	return string(s)
}

// Valid reports whether s is a known stage
func (s Stage) Valid() bool {
	return s == StageMesh || s == StageSolve
}

// JobState is the lifecycle state of one external-process invocation
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobStopping  JobState = "stopping"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// Terminal reports whether no further transition can happen
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// RunState is the aggregate state of a pipeline run
type RunState string

const (
	RunPending   RunState = "pending"
	RunRunning   RunState = "running"
	RunStopping  RunState = "stopping"
	RunCompleted RunState = "completed"
	RunFailed    RunState = "failed"
	RunCancelled RunState = "cancelled"
)

// Terminal reports whether the run has finished
func (s RunState) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}
