package normalize

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sourceplane/cfdcase/internal/model"
)

const (
	defaultPressure       = 101325.0
	defaultTemperature    = 293.15
	defaultExpansionRatio = 1.2
	defaultMaxCells       = 200000
)

var defaultSubtypes = map[model.BoundaryType]model.BoundarySubtype{
	model.BoundaryWall:   model.SubtypeNoSlip,
	model.BoundaryInlet:  model.SubtypeVelocity,
	model.BoundaryOutlet: model.SubtypeStaticPressure,
	model.BoundaryOpen:   model.SubtypeFarField,
}

// Case fills the defaults of a decoded case document and returns the
// canonical copy. A relative surface file is resolved against baseDir.
func Case(cfg model.CaseConfig, baseDir string) (model.CaseConfig, error) {
	cfg.Name = strings.TrimSpace(cfg.Name)

	// Physics defaults
	if cfg.Physics.Time == "" {
		cfg.Physics.Time = model.Steady
	}
	if cfg.Physics.Flow == "" {
		cfg.Physics.Flow = model.Incompressible
	}
	if cfg.Physics.Turbulence == "" {
		cfg.Physics.Turbulence = model.Laminar
	}
	if cfg.Physics.Flow == model.Compressible {
		if cfg.Initial.Pressure == 0 {
			cfg.Initial.Pressure = defaultPressure
		}
		if cfg.Initial.Temperature == 0 {
			cfg.Initial.Temperature = defaultTemperature
		}
	}

	// Boundaries are copied so the caller's slice is never touched
	cfg.Boundaries = append([]model.BoundaryCondition(nil), cfg.Boundaries...)
	for i := range cfg.Boundaries {
		bc := &cfg.Boundaries[i]
		if bc.Name == "" {
			bc.Name = bc.Patch
		}
		if bc.Subtype == "" {
			bc.Subtype = defaultSubtypes[bc.Type]
		}
		if bc.Type == model.BoundaryInlet {
			if bc.TurbulentIntensity == 0 {
				bc.TurbulentIntensity = cfg.Initial.TurbulentIntensity
			}
			if bc.LengthScale == 0 {
				bc.LengthScale = cfg.Initial.LengthScale
			}
		}
	}

	// Mesh
	if cfg.Mesh.SurfaceFile != "" && !filepath.IsAbs(cfg.Mesh.SurfaceFile) && baseDir != "" {
		abs, err := filepath.Abs(filepath.Join(baseDir, cfg.Mesh.SurfaceFile))
		if err != nil {
			return cfg, fmt.Errorf("failed to resolve surface file: %w", err)
		}
		cfg.Mesh.SurfaceFile = abs
	}
	cfg.Mesh.BoundaryLayers = append([]model.BoundaryLayer(nil), cfg.Mesh.BoundaryLayers...)
	for i := range cfg.Mesh.BoundaryLayers {
		if cfg.Mesh.BoundaryLayers[i].ExpansionRatio == 0 {
			cfg.Mesh.BoundaryLayers[i].ExpansionRatio = defaultExpansionRatio
		}
	}
	cfg.Mesh.DynamicRefinements = append([]model.DynamicRefinement(nil), cfg.Mesh.DynamicRefinements...)
	for i := range cfg.Mesh.DynamicRefinements {
		dr := &cfg.Mesh.DynamicRefinements[i]
		if dr.RefineInterval == 0 {
			dr.RefineInterval = 1
		}
		if dr.MaxCells == 0 {
			dr.MaxCells = defaultMaxCells
		}
	}

	// Solver: write once at the end unless told otherwise
	if cfg.Solver.WriteInterval == 0 {
		cfg.Solver.WriteInterval = cfg.Solver.EndTime
	}

	return cfg, nil
}
