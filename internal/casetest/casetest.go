// Package casetest builds known-good case configurations for tests.
package casetest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sourceplane/cfdcase/internal/model"
)

// Surface writes a small ASCII STL file into a temp dir and returns its path
func Surface(t testing.TB) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "duct.stl")
	data := "solid inlet\nendsolid inlet\nsolid outlet\nendsolid outlet\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("failed to write surface: %v", err)
	}
	return path
}

// Base returns a steady incompressible duct case without a mesh spec
func Base() model.CaseConfig {
	return model.CaseConfig{
		Name: "duct",
		Physics: model.PhysicsSettings{
			Time:       model.Steady,
			Flow:       model.Incompressible,
			Turbulence: model.KOmegaSST,
		},
		Materials: []model.FluidMaterial{
			{Name: "air", Density: 1.2, DynamicViscosity: 1.8e-05, MolarMass: 28.96, Cp: 1005, Prandtl: 0.71},
		},
		Initial: model.InitialValues{
			Velocity:           model.Vector{10, 0, 0},
			TurbulentIntensity: 0.05,
			LengthScale:        0.01,
		},
		Boundaries: []model.BoundaryCondition{
			{Name: "inlet", Patch: "inlet", Type: model.BoundaryInlet, Subtype: model.SubtypeVelocity, Velocity: model.Vector{10, 0, 0}, TurbulentIntensity: 0.05, LengthScale: 0.01},
			{Name: "outlet", Patch: "outlet", Type: model.BoundaryOutlet, Subtype: model.SubtypeStaticPressure},
		},
		Solver: model.SolverControls{
			EndTime:              100,
			WriteInterval:        50,
			ConvergenceTolerance: 1e-04,
		},
	}
}

// CfMesh returns a valid case meshed by cartesianMesh from surface
func CfMesh(surface string) model.CaseConfig {
	cfg := Base()
	cfg.Mesh = model.MeshSpec{
		Backend:      model.BackendCfMesh,
		BaseCellSize: 0.01,
		SurfaceFile:  surface,
		Patches:      []string{"inlet", "outlet"},
		Refinements: []model.Refinement{
			{Name: "nearInlet", Kind: model.RefineSurface, Patches: []string{"inlet"}, CellSize: 0.005},
		},
	}
	return cfg
}

// Snappy returns a valid case meshed by snappyHexMesh from surface
func Snappy(surface string) model.CaseConfig {
	cfg := Base()
	cfg.Mesh = model.MeshSpec{
		Backend:      model.BackendSnappy,
		BaseCellSize: 0.01,
		SurfaceFile:  surface,
		Patches:      []string{"inlet", "outlet"},
		Domain: &model.Domain{
			Min:   model.Vector{-1, -1, -1},
			Max:   model.Vector{1, 1, 1},
			Faces: [6]string{"farField", "farField", "farField", "farField", "farField", "farField"},
		},
		Refinements: []model.Refinement{
			{Name: "surface", Kind: model.RefineSurface, Patches: []string{"inlet", "outlet"}, Level: 2},
		},
	}
	cfg.Boundaries = append(cfg.Boundaries, model.BoundaryCondition{
		Name: "farField", Patch: "farField", Type: model.BoundaryWall, Subtype: model.SubtypeSlip,
	})
	return cfg
}

// BlockMesh returns a valid channel case meshed by blockMesh
func BlockMesh() model.CaseConfig {
	cfg := Base()
	cfg.Mesh = model.MeshSpec{
		Backend:      model.BackendBlockMesh,
		BaseCellSize: 0.05,
		Domain: &model.Domain{
			Min:   model.Vector{0, 0, 0},
			Max:   model.Vector{1, 0.1, 0.1},
			Faces: [6]string{"inlet", "outlet", "walls", "walls", "walls", "walls"},
		},
	}
	cfg.Boundaries = append(cfg.Boundaries, model.BoundaryCondition{
		Name: "walls", Patch: "walls", Type: model.BoundaryWall, Subtype: model.SubtypeNoSlip,
	})
	return cfg
}
