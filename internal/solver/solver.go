// Package solver selects the solver application for a case and writes the
// dictionaries of the solve stage.
package solver

import (
	"fmt"
	"math"

	"github.com/sourceplane/cfdcase/internal/foam"
	"github.com/sourceplane/cfdcase/internal/model"
	"github.com/sourceplane/cfdcase/internal/progress"
	"github.com/sourceplane/cfdcase/internal/runner"
	"github.com/sourceplane/cfdcase/internal/validate"
)

// Resolver maps a tool name to the executable to run
type Resolver func(tool string) string

const subtree = "solver"

// Application returns the solver application for the physics model
func Application(p model.PhysicsSettings) string {
	steady := p.Time == model.Steady
	switch {
	case p.Flow == model.Compressible && !p.Gravity.IsZero():
		if steady {
			return "buoyantSimpleFoam"
		}
		return "buoyantPimpleFoam"
	case p.Flow == model.Compressible:
		if steady {
			return "rhoSimpleFoam"
		}
		return "rhoPimpleFoam"
	case steady:
		return "simpleFoam"
	}
	return "pimpleFoam"
}

// Command returns the invocation of the solve stage, relative to the case
// root. Cases with initialization zones run setFields first from a script.
func Command(cfg model.CaseConfig, resolve Resolver) runner.Command {
	app := resolve(Application(cfg.Physics))
	if !hasInitZones(cfg) {
		return runner.Command{Executable: app, Args: []string{"-case", subtree}}
	}
	setFields := resolve("setFields")
	return runner.Command{
		Executable: resolve("sh"),
		Args:       []string{subtree + "/Allrun"},
		Env:        []string{"SET_FIELDS=" + setFields, "SOLVER=" + app},
		Requires:   []string{setFields, app},
	}
}

const allrun = `#!/bin/sh
"${SET_FIELDS:-setFields}" -case solver > solver/log.setFields 2>&1 || { cat solver/log.setFields; exit 1; }
exec "${SOLVER}" -case solver
`

// NewExtractor returns a fresh progress extractor for one solve job
func NewExtractor(cfg model.CaseConfig) progress.Extractor {
	return progress.NewSolverExtractor(EndTime(cfg.Solver, cfg.Physics))
}

// Documents returns the files of the solve sub-tree
func Documents(cfg model.CaseConfig) ([]foam.Document, error) {
	fluid, ok := cfg.WorkingFluid()
	if !ok {
		return nil, fmt.Errorf("case has no working fluid")
	}
	s := newSetup(cfg, fluid)

	docs := s.fields()
	docs = append(docs, s.constant()...)
	docs = append(docs, foam.Document{Path: "constant/polyMesh", Link: "../../mesh/constant/polyMesh"})
	system, err := s.system()
	if err != nil {
		return nil, err
	}
	docs = append(docs, system...)
	if hasInitZones(cfg) {
		docs = append(docs, foam.Document{Path: "Allrun", Data: []byte(allrun), Executable: true})
	}
	return docs, nil
}

// Rule checks what the solve stage needs beyond the base invariants
func Rule(cfg model.CaseConfig, r *validate.Report) {
	for i, z := range cfg.Zones {
		if z.Kind == model.ZonePorous && z.Region.CellZone == "" {
			r.Add(fmt.Sprintf("zones[%d].region", i), "porous zones must select a cellZone")
		}
	}
	if cfg.Physics.Flow == model.Compressible {
		if cfg.Initial.Pressure <= 0 {
			r.Add("initial.pressure", "compressible cases need an absolute initial pressure")
		}
		if cfg.Initial.Temperature <= 0 {
			r.Add("initial.temperature", "compressible cases need an initial temperature")
		}
	}
	if len(cfg.Mesh.DynamicRefinements) > 1 {
		r.Add("mesh.dynamicRefinements", "at most one dynamic refinement is supported")
	}
	reserved := map[string]bool{}
	for _, f := range newSetup(cfg, model.FluidMaterial{}).fieldNames() {
		reserved[f] = true
	}
	for i, st := range cfg.ScalarTransport {
		if reserved[st.Field] {
			r.Add(fmt.Sprintf("scalarTransport[%d].field", i), "field %q is already solved for", st.Field)
		}
	}
	for i, f := range cfg.Reporting {
		if f.Kind == model.FunctionForceCoeffs && (f.LiftDirection.IsZero() || f.DragDirection.IsZero()) {
			r.Add(fmt.Sprintf("reporting[%d]", i), "force coefficients need lift and drag directions")
		}
	}
}

func hasInitZones(cfg model.CaseConfig) bool {
	for _, z := range cfg.Zones {
		if z.Kind == model.ZoneInitialization {
			return true
		}
	}
	return false
}

// setup holds the values derived once from the case
type setup struct {
	cfg          model.CaseConfig
	fluid        model.FluidMaterial
	compressible bool
	buoyant      bool
	steady       bool
}

func newSetup(cfg model.CaseConfig, fluid model.FluidMaterial) setup {
	return setup{
		cfg:          cfg,
		fluid:        fluid,
		compressible: cfg.Physics.Flow == model.Compressible,
		buoyant:      cfg.Physics.Flow == model.Compressible && !cfg.Physics.Gravity.IsZero(),
		steady:       cfg.Physics.Time == model.Steady,
	}
}

// pressureField is the field the pressure boundary conditions act on
func (s setup) pressureField() string {
	if s.buoyant {
		return "p_rgh"
	}
	return "p"
}

// pressure converts a gauge or absolute pressure in Pa into the units of
// the solved pressure field
func (s setup) pressure(pa float64) float64 {
	if s.compressible || s.fluid.Density == 0 {
		return pa
	}
	return pa / s.fluid.Density
}

func (s setup) turbulenceFields() []string {
	switch s.cfg.Physics.Turbulence {
	case model.KEpsilon:
		return []string{"k", "epsilon", "nut"}
	case model.KOmegaSST:
		return []string{"k", "omega", "nut"}
	case model.SpalartAllmaras:
		return []string{"nuTilda", "nut"}
	}
	return nil
}

func (s setup) fieldNames() []string {
	names := []string{"U", "p"}
	if s.buoyant {
		names = append(names, "p_rgh")
	}
	if s.compressible {
		names = append(names, "T")
	}
	names = append(names, s.turbulenceFields()...)
	if s.compressible && s.cfg.Physics.Turbulence != model.Laminar {
		names = append(names, "alphat")
	}
	return names
}

const cmu = 0.09

// turbulence values for a speed, intensity and length scale
type turbulence struct {
	k, epsilon, omega, nuTilda float64
}

func turbulenceValues(speed, intensity, length float64) turbulence {
	if intensity <= 0 {
		intensity = 0.05
	}
	if length <= 0 {
		length = 0.1
	}
	k := 1.5 * math.Pow(speed*intensity, 2)
	if k < 1e-10 {
		k = 1e-10
	}
	return turbulence{
		k:       k,
		epsilon: math.Pow(cmu, 0.75) * math.Pow(k, 1.5) / length,
		omega:   math.Sqrt(k) / (math.Pow(cmu, 0.25) * length),
		nuTilda: math.Sqrt(1.5) * speed * intensity * length,
	}
}

func magnitude(v model.Vector) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

func toFoam(v model.Vector) foam.Vector {
	return foam.Vector{v[0], v[1], v[2]}
}

func dictDoc(dir, object string, body *foam.Dict) foam.Document {
	return foam.Document{
		Path: dir + "/" + object,
		File: &foam.File{Class: "dictionary", Location: dir, Object: object, Body: body},
	}
}
