package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceplane/cfdcase/internal/model"
	"github.com/sourceplane/cfdcase/internal/validate"
)

const ductYAML = `name: duct
physics:
  turbulence: kOmegaSST
materials:
  - name: air
    density: 1.2
    dynamicViscosity: 1.8e-5
initial:
  velocity: [10, 0, 0]
  turbulentIntensity: 0.05
  lengthScale: 0.01
boundaries:
  - patch: inlet
    type: inlet
    velocity: [10, 0, 0]
  - patch: outlet
    type: outlet
  - patch: walls
    type: wall
mesh:
  backend: cfmesh
  baseCellSize: 0.01
  surfaceFile: geometry/duct.stl
  patches: [inlet, outlet, walls]
solver:
  endTime: 200
`

func fields(t *testing.T, err error) []string {
	t.Helper()
	var verr *validate.ValidationError
	require.ErrorAs(t, err, &verr)
	out := make([]string, 0, len(verr.Violations))
	for _, v := range verr.Violations {
		out = append(out, v.Field)
	}
	return out
}

func TestLoadCase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "case.yaml")
	require.NoError(t, os.WriteFile(path, []byte(ductYAML), 0o644))

	cfg, err := LoadCase(path)
	require.NoError(t, err)

	assert.Equal(t, "duct", cfg.Name)
	assert.Equal(t, model.Steady, cfg.Physics.Time)
	assert.Equal(t, model.KOmegaSST, cfg.Physics.Turbulence)
	assert.Equal(t, model.Vector{10, 0, 0}, cfg.Initial.Velocity)
	require.Len(t, cfg.Boundaries, 3)
	assert.Equal(t, "inlet", cfg.Boundaries[0].Name)
	assert.Equal(t, model.SubtypeVelocity, cfg.Boundaries[0].Subtype)
	assert.Equal(t, model.SubtypeNoSlip, cfg.Boundaries[2].Subtype)
	assert.Equal(t, model.BackendCfMesh, cfg.Mesh.Backend)
	assert.Equal(t, filepath.Join(dir, "geometry", "duct.stl"), cfg.Mesh.SurfaceFile)
	assert.Equal(t, 200.0, cfg.Solver.WriteInterval)
}

func TestDecodeCase_JSON(t *testing.T) {
	cfg, err := DecodeCase([]byte(`{"name": "box", "materials": [{"name": "water", "density": 998, "dynamicViscosity": 0.001}],
  "boundaries": [{"patch": "inlet", "type": "inlet", "velocity": [1, 0, 0]}],
  "mesh": {"backend": "blockmesh", "baseCellSize": 0.1}}`), "")
	require.NoError(t, err)
	assert.Equal(t, "box", cfg.Name)
	assert.Equal(t, model.BackendBlockMesh, cfg.Mesh.Backend)
}

func TestDecodeCase_SchemaViolations(t *testing.T) {
	doc := `name: duct
physics:
  turbulence: kOmega
materials:
  - name: air
    density: 0
    dynamicViscosity: 1.8e-5
boundaries:
  - patch: inlet
    type: inlet
    velocity: [10, 0]
mesh:
  backend: cfmesh
  baseCellSize: 0.01
`
	_, err := DecodeCase([]byte(doc), "")
	got := fields(t, err)
	assert.Contains(t, got, "physics.turbulence")
	assert.Contains(t, got, "materials[0].density")
	assert.Contains(t, got, "boundaries[0].velocity")
}

func TestDecodeCase_UnknownField(t *testing.T) {
	doc := ductYAML + "extra: true\n"
	_, err := DecodeCase([]byte(doc), "")
	var verr *validate.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), "extra")
}

func TestDecodeCase_Malformed(t *testing.T) {
	_, err := DecodeCase([]byte("name: [unclosed"), "")
	assert.ErrorContains(t, err, "failed to parse case YAML")

	_, err = DecodeCase([]byte(""), "")
	assert.ErrorContains(t, err, "case document is empty")
}

func TestLoadPlan(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`apiVersion: cfdcase.sourceplane.io/v1
kind: Plan
metadata:
  name: duct
spec:
  caseDir: /cases/duct
  backend: blockmesh
  application: simpleFoam
stages:
  - stage: mesh
    tool: blockMesh
    executable: blockMesh
    args: [-case, mesh]
    dir: /cases/duct
    subtree: mesh
`), 0o644))

	plan, err := LoadPlan(good)
	require.NoError(t, err)
	assert.Equal(t, "Plan", plan.Kind)
	require.Len(t, plan.Stages, 1)
	assert.Equal(t, model.StageMesh, plan.Stages[0].Stage)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("kind: Job\n"), 0o644))
	_, err = LoadPlan(bad)
	assert.ErrorContains(t, err, "invalid plan")
}

func TestLoadPlan_DependencyOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`apiVersion: cfdcase.sourceplane.io/v1
kind: Plan
metadata:
  name: duct
spec:
  caseDir: /cases/duct
  backend: blockmesh
  application: simpleFoam
stages:
  - stage: solve
    tool: simpleFoam
    executable: simpleFoam
    args: [-case, solver]
    dir: /cases/duct
    subtree: solver
    dependsOn: [mesh]
  - stage: mesh
    tool: blockMesh
    executable: blockMesh
    args: [-case, mesh]
    dir: /cases/duct
    subtree: mesh
`), 0o644))

	_, err := LoadPlan(path)
	assert.ErrorContains(t, err, `stages[0] depends on "mesh"`)
}
