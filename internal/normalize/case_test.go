package normalize

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceplane/cfdcase/internal/model"
)

func TestCase_Defaults(t *testing.T) {
	in := model.CaseConfig{
		Name:    "  duct ",
		Initial: model.InitialValues{TurbulentIntensity: 0.05, LengthScale: 0.01},
		Boundaries: []model.BoundaryCondition{
			{Patch: "inlet", Type: model.BoundaryInlet, Velocity: model.Vector{1, 0, 0}},
			{Patch: "outlet", Type: model.BoundaryOutlet},
			{Name: "sides", Patch: "walls", Type: model.BoundaryWall, Subtype: model.SubtypeSlip},
			{Patch: "far", Type: model.BoundaryOpen},
			{Patch: "sym", Type: model.BoundarySymmetry},
		},
		Mesh: model.MeshSpec{
			SurfaceFile:        "geometry/duct.stl",
			BoundaryLayers:     []model.BoundaryLayer{{Patch: "walls", NumLayers: 3}},
			DynamicRefinements: []model.DynamicRefinement{{Field: "U"}},
		},
		Solver: model.SolverControls{EndTime: 500},
	}

	out, err := Case(in, "/cases")
	require.NoError(t, err)

	assert.Equal(t, "duct", out.Name)
	assert.Equal(t, model.Steady, out.Physics.Time)
	assert.Equal(t, model.Incompressible, out.Physics.Flow)
	assert.Equal(t, model.Laminar, out.Physics.Turbulence)
	assert.Zero(t, out.Initial.Pressure)

	assert.Equal(t, "inlet", out.Boundaries[0].Name)
	assert.Equal(t, model.SubtypeVelocity, out.Boundaries[0].Subtype)
	assert.Equal(t, 0.05, out.Boundaries[0].TurbulentIntensity)
	assert.Equal(t, 0.01, out.Boundaries[0].LengthScale)
	assert.Equal(t, model.SubtypeStaticPressure, out.Boundaries[1].Subtype)
	assert.Equal(t, "sides", out.Boundaries[2].Name)
	assert.Equal(t, model.SubtypeSlip, out.Boundaries[2].Subtype)
	assert.Equal(t, model.SubtypeFarField, out.Boundaries[3].Subtype)
	assert.Empty(t, out.Boundaries[4].Subtype)

	assert.Equal(t, filepath.Join("/cases", "geometry", "duct.stl"), out.Mesh.SurfaceFile)
	assert.Equal(t, 1.2, out.Mesh.BoundaryLayers[0].ExpansionRatio)
	assert.Equal(t, 1, out.Mesh.DynamicRefinements[0].RefineInterval)
	assert.Equal(t, 200000, out.Mesh.DynamicRefinements[0].MaxCells)
	assert.Equal(t, 500.0, out.Solver.WriteInterval)

	// the input is left alone
	assert.Empty(t, in.Boundaries[0].Name)
	assert.Zero(t, in.Mesh.BoundaryLayers[0].ExpansionRatio)
}

func TestCase_CompressibleInitialState(t *testing.T) {
	out, err := Case(model.CaseConfig{
		Name:    "nozzle",
		Physics: model.PhysicsSettings{Flow: model.Compressible},
		Initial: model.InitialValues{Temperature: 350},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, 101325.0, out.Initial.Pressure)
	assert.Equal(t, 350.0, out.Initial.Temperature)
}

func TestCase_KeepsAbsoluteSurface(t *testing.T) {
	out, err := Case(model.CaseConfig{
		Name: "duct",
		Mesh: model.MeshSpec{SurfaceFile: "/data/duct.stl"},
	}, "/cases")
	require.NoError(t, err)
	assert.Equal(t, "/data/duct.stl", out.Mesh.SurfaceFile)
}
