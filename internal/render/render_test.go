package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sourceplane/cfdcase/internal/casewriter"
	"github.com/sourceplane/cfdcase/internal/model"
	"github.com/sourceplane/cfdcase/internal/pipeline"
	"github.com/sourceplane/cfdcase/internal/progress"
	"github.com/sourceplane/cfdcase/internal/validate"
)

func testPlan() *model.Plan {
	return &model.Plan{
		APIVersion: "cfdcase.sourceplane.io/v1",
		Kind:       "Plan",
		Metadata:   model.Metadata{Name: "duct"},
		Spec:       model.PlanSpec{CaseDir: "/cases/duct", Backend: model.BackendCfMesh, Application: "simpleFoam"},
		Stages: []model.PlanStage{
			{
				Stage:      model.StageMesh,
				Tool:       "cartesianMesh",
				Executable: "cartesianMesh",
				Args:       []string{"-case", "mesh"},
				Dir:        "/cases/duct",
				Subtree:    "mesh",
				Files:      []string{"system/meshDict", "system/controlDict"},
			},
			{
				Stage:      model.StageSolve,
				Tool:       "simpleFoam",
				Executable: "simpleFoam",
				Args:       []string{"-case", "solver"},
				Dir:        "/cases/duct",
				Subtree:    "solver",
				Files:      []string{"0/U"},
				DependsOn:  []model.Stage{model.StageMesh},
			},
		},
	}
}

func TestRenderer_Formats(t *testing.T) {
	r := NewRenderer()
	plan := testPlan()

	data, err := r.Render(plan, "json")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"apiVersion": "cfdcase.sourceplane.io/v1"`)
	assert.Contains(t, string(data), `"dependsOn": [`)

	data, err = r.Render(plan, "yaml")
	require.NoError(t, err)
	var decoded model.Plan
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, *plan, decoded)

	_, err = r.Render(plan, "toml")
	assert.EqualError(t, err, `unknown plan format "toml"`)
}

func TestRenderer_WritePlan(t *testing.T) {
	r := NewRenderer()
	dir := t.TempDir()

	path := filepath.Join(dir, "out", "plan.yaml")
	require.NoError(t, r.WritePlan(testPlan(), path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "apiVersion: cfdcase.sourceplane.io/v1\n"))

	path = filepath.Join(dir, "plan.json")
	require.NoError(t, r.WritePlan(testPlan(), path))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "{\n"))
}

func TestRenderer_DebugDump(t *testing.T) {
	out := NewRenderer().DebugDump(testPlan())
	assert.Contains(t, out, "Plan: duct\n")
	assert.Contains(t, out, "Stages: 2\n")
	assert.Contains(t, out, "  Command: cartesianMesh -case mesh\n")
	assert.Contains(t, out, "  DependsOn: [mesh]\n")
}

func TestPlanViewer_ViewDAG(t *testing.T) {
	out := NewPlanViewer(testPlan()).ViewDAG()
	assert.Equal(t, `duct [cfmesh → simpleFoam]
├─ mesh (mesh/)
│  ├─ run: cartesianMesh -case mesh
│  ├─ system/controlDict
│  └─ system/meshDict
└─ solve (solver/)
   ├─ run: simpleFoam -case solver
   ├─ (depends on) mesh
   └─ 0/U
`+rule+"Summary: 2 stages, 3 files\n", out)

	assert.Equal(t, "No stages in plan", NewPlanViewer(&model.Plan{}).ViewDAG())
}

func TestViewCaseDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "system"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "system", "controlDict"), make([]byte, 1500), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "system", "meshDict"), make([]byte, 500), 0o644))

	out := ViewCaseDirectory(&casewriter.CaseDirectory{
		Root:    filepath.Dir(root),
		Stage:   model.StageMesh,
		Subtree: root,
		Files:   []string{"system/controlDict", "system/meshDict", "constant/missing"},
	})
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "mesh → "+root, lines[0])
	assert.Contains(t, lines[1], "1.5 kB")
	assert.Contains(t, lines[2], "500 B")
	assert.True(t, strings.HasPrefix(lines[3], "└─ constant/missing"))
	assert.True(t, strings.HasSuffix(lines[3], "-"))
	assert.Equal(t, "Summary: 3 files, 2.0 kB", lines[5])
}

func TestViewSnapshot(t *testing.T) {
	frac := 0.5
	code := 1
	start := time.Now().Add(-time.Minute)
	out := ViewSnapshot(pipeline.Snapshot{
		RunID:   "r1",
		CaseDir: "/cases/duct",
		State:   model.RunFailed,
		Jobs: []pipeline.JobSnapshot{
			{
				Stage:        model.StageMesh,
				State:        model.JobCompleted,
				StartedAt:    start,
				FinishedAt:   start.Add(20 * time.Second),
				LastProgress: &progress.Event{Kind: progress.Progress, Fraction: &frac},
			},
			{
				Stage:    model.StageSolve,
				State:    model.JobFailed,
				ExitCode: &code,
				Error: &pipeline.ErrorPayload{
					Kind:       pipeline.KindValidation,
					Message:    "invalid case",
					Violations: []validate.Violation{{Field: "boundaries[1].patch", Message: "patch \"outlet\" not found in mesh"}},
				},
			},
		},
	})

	assert.Contains(t, out, "Run r1 [failed]\n")
	assert.Contains(t, out, "├─ mesh completed (started 1 minute ago, 20s)\n")
	assert.Contains(t, out, "│  progress 50%\n")
	assert.Contains(t, out, "└─ solve failed\n")
	assert.Contains(t, out, "   error (validation): invalid case\n")
	assert.Contains(t, out, "boundaries[1].patch")
}
