// Package validate checks a CaseConfig against its invariants and reports
// every violation at once.
package validate

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sourceplane/cfdcase/internal/model"
)

// Violation is one broken invariant, addressed by its field path
type Violation struct {
	Field   string `json:"field" yaml:"field"`
	Message string `json:"message" yaml:"message"`
}

func (v Violation) String() string {
	if v.Field == "" {
		return v.Message
	}
	return v.Field + ": " + v.Message
}

// ValidationError lists every violation found in a case
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 1 {
		return "invalid case: " + e.Violations[0].String()
	}
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("invalid case: %d violations: %s", len(e.Violations), strings.Join(parts, "; "))
}

// Report accumulates violations
type Report struct {
	violations []Violation
}

// Add records a violation
func (r *Report) Add(field, format string, args ...interface{}) {
	r.violations = append(r.violations, Violation{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Violations returns the recorded violations in the order they were added
func (r *Report) Violations() []Violation {
	return r.violations
}

// Err returns a *ValidationError, or nil when nothing was recorded
func (r *Report) Err() error {
	if len(r.violations) == 0 {
		return nil
	}
	return &ValidationError{Violations: append([]Violation(nil), r.violations...)}
}

// Rule is an extra check run after the built-in ones
type Rule func(cfg model.CaseConfig, r *Report)

// Case runs all invariant checks plus the given rules
func Case(cfg model.CaseConfig, rules ...Rule) error {
	r := &Report{}
	if strings.TrimSpace(cfg.Name) == "" {
		r.Add("name", "is required")
	}
	checkPhysics(cfg, r)
	checkMaterials(cfg, r)
	checkBoundaries(cfg, r)
	checkZones(cfg, r)
	checkMesh(cfg, r)
	checkSolver(cfg, r)
	checkReporting(cfg, r)
	checkScalarTransport(cfg, r)
	for _, rule := range rules {
		rule(cfg, r)
	}
	return r.Err()
}

func checkPhysics(cfg model.CaseConfig, r *Report) {
	p := cfg.Physics
	switch p.Time {
	case model.Steady, model.Transient:
	default:
		r.Add("physics.time", "unknown time scheme %q", p.Time)
	}
	switch p.Flow {
	case model.Incompressible, model.Compressible:
	default:
		r.Add("physics.flow", "unknown flow regime %q", p.Flow)
	}
	switch p.Turbulence {
	case model.Laminar, model.KEpsilon, model.KOmegaSST, model.SpalartAllmaras:
	default:
		r.Add("physics.turbulence", "unknown turbulence model %q", p.Turbulence)
	}
	if !p.Gravity.IsZero() && p.Flow != model.Compressible {
		r.Add("physics.gravity", "buoyancy requires compressible flow")
	}

	names := map[string]bool{}
	for i, z := range p.RotatingZones {
		field := fmt.Sprintf("physics.rotatingZones[%d]", i)
		if z.Name == "" {
			r.Add(field+".name", "is required")
		} else if names[z.Name] {
			r.Add(field+".name", "duplicate rotating zone %q", z.Name)
		}
		names[z.Name] = true
		if z.CellZone == "" {
			r.Add(field+".cellZone", "is required")
		}
		if z.Axis.IsZero() {
			r.Add(field+".axis", "must be non-zero")
		}
		for j, patch := range z.NonRotatingPatches {
			if !slices.Contains(cfg.Mesh.PatchNames(), patch) {
				r.Add(fmt.Sprintf("%s.nonRotatingPatches[%d]", field, j), "patch %q does not exist in the mesh", patch)
			}
		}
	}
}

func checkMaterials(cfg model.CaseConfig, r *Report) {
	if len(cfg.Materials) == 0 {
		r.Add("materials", "at least one fluid material is required")
		return
	}
	for i, m := range cfg.Materials {
		field := fmt.Sprintf("materials[%d]", i)
		if m.Name == "" {
			r.Add(field+".name", "is required")
		}
		if m.Density <= 0 {
			r.Add(field+".density", "must be positive")
		}
		if m.DynamicViscosity <= 0 {
			r.Add(field+".dynamicViscosity", "must be positive")
		}
		if i == 0 && cfg.Physics.Flow == model.Compressible {
			if m.MolarMass <= 0 {
				r.Add(field+".molarMass", "must be positive for compressible flow")
			}
			if m.Cp <= 0 {
				r.Add(field+".cp", "must be positive for compressible flow")
			}
			if m.Prandtl <= 0 {
				r.Add(field+".prandtl", "must be positive for compressible flow")
			}
		}
	}
}

var legalSubtypes = map[model.BoundaryType][]model.BoundarySubtype{
	model.BoundaryWall:     {model.SubtypeNoSlip, model.SubtypeSlip},
	model.BoundaryInlet:    {model.SubtypeVelocity, model.SubtypeTotalPressure},
	model.BoundaryOutlet:   {model.SubtypeStaticPressure},
	model.BoundaryOpen:     {model.SubtypeFarField, model.SubtypeTotalPressure, model.SubtypeStaticPressure},
	model.BoundarySymmetry: {},
}

func checkBoundaries(cfg model.CaseConfig, r *Report) {
	if len(cfg.Boundaries) == 0 {
		r.Add("boundaries", "at least one boundary condition is required")
		return
	}
	patches := cfg.Mesh.PatchNames()
	names := map[string]bool{}
	used := map[string]string{}
	for i, bc := range cfg.Boundaries {
		field := fmt.Sprintf("boundaries[%d]", i)
		if bc.Name == "" {
			r.Add(field+".name", "is required")
		} else if names[bc.Name] {
			r.Add(field+".name", "duplicate boundary condition %q", bc.Name)
		}
		names[bc.Name] = true

		switch {
		case bc.Patch == "":
			r.Add(field+".patch", "is required")
		case !slices.Contains(patches, bc.Patch):
			r.Add(field+".patch", "patch %q does not exist in the mesh", bc.Patch)
		case used[bc.Patch] != "":
			r.Add(field+".patch", "patch %q is already bound to %q", bc.Patch, used[bc.Patch])
		default:
			used[bc.Patch] = bc.Name
		}

		subtypes, ok := legalSubtypes[bc.Type]
		if !ok {
			r.Add(field+".type", "unknown boundary type %q", bc.Type)
			continue
		}
		if bc.Subtype != "" && !slices.Contains(subtypes, bc.Subtype) {
			r.Add(field+".subtype", "subtype %q is not valid for %s boundaries", bc.Subtype, bc.Type)
		}
		if bc.Type == model.BoundaryInlet && bc.Subtype == model.SubtypeVelocity && bc.Velocity.IsZero() {
			r.Add(field+".velocity", "velocity inlet needs a non-zero velocity")
		}
	}
}

func checkZones(cfg model.CaseConfig, r *Report) {
	names := map[string]bool{}
	for i, z := range cfg.Zones {
		field := fmt.Sprintf("zones[%d]", i)
		if z.Name == "" {
			r.Add(field+".name", "is required")
		} else if names[z.Name] {
			r.Add(field+".name", "duplicate zone %q", z.Name)
		}
		names[z.Name] = true

		if z.Region.Empty() {
			r.Add(field+".region", "must select a non-empty box or a cellZone")
		}
		switch z.Kind {
		case model.ZonePorous:
			if z.Darcy.IsZero() && z.Forchheimer.IsZero() {
				r.Add(field, "porous zone needs Darcy or Forchheimer coefficients")
			}
		case model.ZoneInitialization:
			if z.Velocity == nil && z.Pressure == nil && z.Temperature == nil {
				r.Add(field, "initialization zone sets no value")
			}
			if z.Temperature != nil && cfg.Physics.Flow != model.Compressible {
				r.Add(field+".temperature", "temperature requires compressible flow")
			}
		default:
			r.Add(field+".kind", "unknown zone kind %q", z.Kind)
		}
	}
}

func checkMesh(cfg model.CaseConfig, r *Report) {
	m := cfg.Mesh
	if !slices.Contains(model.MeshBackends, m.Backend) {
		r.Add("mesh.backend", "unknown mesh backend %q", m.Backend)
	}
	if m.BaseCellSize <= 0 {
		r.Add("mesh.baseCellSize", "must be positive")
	}
	if d := m.Domain; d != nil {
		for i := 0; i < 3; i++ {
			if d.Max[i] <= d.Min[i] {
				r.Add("mesh.domain", "max must exceed min on every axis")
				break
			}
		}
	}
	seen := map[string]bool{}
	for i, p := range m.Patches {
		if p == "" {
			r.Add(fmt.Sprintf("mesh.patches[%d]", i), "is empty")
		} else if seen[p] {
			r.Add(fmt.Sprintf("mesh.patches[%d]", i), "duplicate patch %q", p)
		}
		seen[p] = true
	}
	for i, l := range m.BoundaryLayers {
		field := fmt.Sprintf("mesh.boundaryLayers[%d]", i)
		if !slices.Contains(m.PatchNames(), l.Patch) {
			r.Add(field+".patch", "patch %q does not exist in the mesh", l.Patch)
		}
		if l.NumLayers < 1 {
			r.Add(field+".numLayers", "must be at least 1")
		}
		if l.ExpansionRatio < 1 {
			r.Add(field+".expansionRatio", "must be at least 1")
		}
	}
	for i, dr := range m.DynamicRefinements {
		field := fmt.Sprintf("mesh.dynamicRefinements[%d]", i)
		if cfg.Physics.Time != model.Transient {
			r.Add(field, "dynamic refinement requires transient physics")
		}
		if dr.Field == "" {
			r.Add(field+".field", "is required")
		}
		if dr.UpperLevel <= dr.LowerLevel {
			r.Add(field+".upperLevel", "must exceed lowerLevel")
		}
		if dr.MaxRefinement < 1 {
			r.Add(field+".maxRefinement", "must be at least 1")
		}
	}
}

func checkSolver(cfg model.CaseConfig, r *Report) {
	s := cfg.Solver
	if s.EndTime <= 0 {
		r.Add("solver.endTime", "must be positive")
	}
	if s.WriteInterval <= 0 {
		r.Add("solver.writeInterval", "must be positive")
	}
	if cfg.Physics.Time == model.Transient && s.TimeStep <= 0 {
		r.Add("solver.timeStep", "must be positive for transient physics")
	}
	if s.ConvergenceTolerance < 0 {
		r.Add("solver.convergenceTolerance", "must not be negative")
	}
}

func checkReporting(cfg model.CaseConfig, r *Report) {
	patches := cfg.Mesh.PatchNames()
	names := map[string]bool{}
	for i, f := range cfg.Reporting {
		field := fmt.Sprintf("reporting[%d]", i)
		if f.Name == "" {
			r.Add(field+".name", "is required")
		} else if names[f.Name] {
			r.Add(field+".name", "duplicate function %q", f.Name)
		}
		names[f.Name] = true

		switch f.Kind {
		case model.FunctionForces, model.FunctionForceCoeffs:
			if len(f.Patches) == 0 {
				r.Add(field+".patches", "at least one patch is required")
			}
			for j, p := range f.Patches {
				if !slices.Contains(patches, p) {
					r.Add(fmt.Sprintf("%s.patches[%d]", field, j), "patch %q does not exist in the mesh", p)
				}
			}
			if f.Kind == model.FunctionForceCoeffs {
				if f.RefVelocity <= 0 {
					r.Add(field+".refVelocity", "must be positive")
				}
				if f.RefLength <= 0 {
					r.Add(field+".refLength", "must be positive")
				}
				if f.RefArea <= 0 {
					r.Add(field+".refArea", "must be positive")
				}
			}
		case model.FunctionProbes:
			if len(f.Points) == 0 {
				r.Add(field+".points", "at least one probe point is required")
			}
			if len(f.Fields) == 0 {
				r.Add(field+".fields", "at least one field is required")
			}
		default:
			r.Add(field+".kind", "unknown function kind %q", f.Kind)
		}
	}
}

func checkScalarTransport(cfg model.CaseConfig, r *Report) {
	names := map[string]bool{}
	for i, s := range cfg.ScalarTransport {
		field := fmt.Sprintf("scalarTransport[%d]", i)
		if s.Name == "" {
			r.Add(field+".name", "is required")
		} else if names[s.Name] {
			r.Add(field+".name", "duplicate function %q", s.Name)
		}
		names[s.Name] = true
		if s.Field == "" {
			r.Add(field+".field", "is required")
		}
		if s.Diffusivity < 0 {
			r.Add(field+".diffusivity", "must not be negative")
		}
		if s.InjectionPoint != nil && s.InjectionRate <= 0 {
			r.Add(field+".injectionRate", "must be positive when an injection point is set")
		}
	}
}
