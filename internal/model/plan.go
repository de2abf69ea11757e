package model

// Metadata holds standard object metadata
type Metadata struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Plan is the execution-ready stage sequence of one case
type Plan struct {
	APIVersion string      `yaml:"apiVersion" json:"apiVersion"`
	Kind       string      `yaml:"kind" json:"kind"`
	Metadata   Metadata    `yaml:"metadata" json:"metadata"`
	Spec       PlanSpec    `yaml:"spec" json:"spec"`
	Stages     []PlanStage `yaml:"stages" json:"stages"`
}

// PlanSpec holds case-wide information about the plan
type PlanSpec struct {
	CaseDir     string      `yaml:"caseDir" json:"caseDir"`
	Backend     MeshBackend `yaml:"backend" json:"backend"`
	Application string      `yaml:"application" json:"application"`
	SurfaceFile string      `yaml:"surfaceFile,omitempty" json:"surfaceFile,omitempty"`
}

// PlanStage is one executable step of the plan
type PlanStage struct {
	Stage      Stage    `yaml:"stage" json:"stage"`
	Tool       string   `yaml:"tool" json:"tool"`
	Executable string   `yaml:"executable" json:"executable"`
	Args       []string `yaml:"args" json:"args"`
	Env        []string `yaml:"env,omitempty" json:"env,omitempty"`
	Requires   []string `yaml:"requires,omitempty" json:"requires,omitempty"`
	Dir        string   `yaml:"dir" json:"dir"`
	Subtree    string   `yaml:"subtree" json:"subtree"`
	Files      []string `yaml:"files,omitempty" json:"files,omitempty"`
	DependsOn  []Stage  `yaml:"dependsOn,omitempty" json:"dependsOn,omitempty"`
}
