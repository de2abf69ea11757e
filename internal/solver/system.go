package solver

import (
	"fmt"
	"strings"

	"github.com/sourceplane/cfdcase/internal/foam"
	"github.com/sourceplane/cfdcase/internal/model"
)

// EndTime is the end time the solver runs to. Steady iteration counts are
// capped by MaxIterations.
func EndTime(c model.SolverControls, p model.PhysicsSettings) float64 {
	if p.Time == model.Steady && c.MaxIterations > 0 && float64(c.MaxIterations) < c.EndTime {
		return float64(c.MaxIterations)
	}
	return c.EndTime
}

func (s setup) system() ([]foam.Document, error) {
	control, err := s.controlDict()
	if err != nil {
		return nil, err
	}
	docs := []foam.Document{
		dictDoc("system", "controlDict", control),
		dictDoc("system", "fvSchemes", s.fvSchemes()),
		dictDoc("system", "fvSolution", s.fvSolution()),
	}
	if hasInitZones(s.cfg) {
		dict, err := s.setFields()
		if err != nil {
			return nil, err
		}
		docs = append(docs, dictDoc("system", "setFieldsDict", dict))
	}
	return docs, nil
}

func (s setup) controlDict() (*foam.Dict, error) {
	c := s.cfg.Solver
	deltaT, writeControl := 1.0, "timeStep"
	if !s.steady {
		deltaT, writeControl = c.TimeStep, "adjustableRunTime"
	}
	body := foam.NewDict().
		Set("application", foam.Word(Application(s.cfg.Physics))).
		Set("startFrom", foam.Word("latestTime")).
		Set("startTime", 0).
		Set("stopAt", foam.Word("endTime")).
		Set("endTime", EndTime(c, s.cfg.Physics)).
		Set("deltaT", deltaT).
		Set("writeControl", foam.Word(writeControl)).
		Set("writeInterval", c.WriteInterval).
		Set("purgeWrite", 0).
		Set("writeFormat", foam.Word("ascii")).
		Set("writePrecision", 8).
		Set("writeCompression", foam.Word("off")).
		Set("timeFormat", foam.Word("general")).
		Set("timePrecision", 6).
		Set("runTimeModifiable", true)

	functions, err := s.functions()
	if err != nil {
		return nil, err
	}
	if functions.Len() > 0 {
		body.Set("functions", functions)
	}
	return body, nil
}

func words(names []string) foam.List {
	list := foam.List{}
	for _, n := range names {
		list = append(list, foam.Word(n))
	}
	return list
}

// density sets how force functions obtain rho
func (s setup) density(d *foam.Dict) *foam.Dict {
	if s.compressible {
		return d.Set("rho", foam.Word("rho"))
	}
	return d.Set("rho", foam.Word("rhoInf")).Set("rhoInf", s.fluid.Density)
}

func (s setup) functions() (*foam.Dict, error) {
	body := foam.NewDict()
	for _, f := range s.cfg.Reporting {
		fn := body.Sub(f.Name)
		switch f.Kind {
		case model.FunctionForces:
			fn.Set("type", foam.Word("forces")).
				Set("libs", foam.List{foam.Quoted("libforces.so")}).
				Set("writeControl", foam.Word("timeStep")).
				Set("writeInterval", 1).
				Set("patches", words(f.Patches))
			s.density(fn).Set("CofR", toFoam(f.CentreOfRot))
		case model.FunctionForceCoeffs:
			fn.Set("type", foam.Word("forceCoeffs")).
				Set("libs", foam.List{foam.Quoted("libforces.so")}).
				Set("writeControl", foam.Word("timeStep")).
				Set("writeInterval", 1).
				Set("patches", words(f.Patches))
			s.density(fn).
				Set("liftDir", toFoam(f.LiftDirection)).
				Set("dragDir", toFoam(f.DragDirection)).
				Set("CofR", toFoam(f.CentreOfRot)).
				Set("pitchAxis", toFoam(cross(f.DragDirection, f.LiftDirection))).
				Set("magUInf", f.RefVelocity).
				Set("lRef", f.RefLength).
				Set("Aref", f.RefArea)
		case model.FunctionProbes:
			points := foam.List{}
			for _, p := range f.Points {
				points = append(points, toFoam(p))
			}
			fn.Set("type", foam.Word("probes")).
				Set("libs", foam.List{foam.Quoted("libsampling.so")}).
				Set("writeControl", foam.Word("timeStep")).
				Set("writeInterval", 1).
				Set("fields", words(f.Fields)).
				Set("probeLocations", points)
		default:
			return nil, fmt.Errorf("reporting function %s: unknown kind %q", f.Name, f.Kind)
		}
	}

	for _, st := range s.cfg.ScalarTransport {
		fn := body.Sub(st.Name).
			Set("type", foam.Word("scalarTransport")).
			Set("libs", foam.List{foam.Quoted("libsolverFunctionObjects.so")}).
			Set("field", foam.Word(st.Field)).
			Set("D", st.Diffusivity).
			Set("resetOnStartUp", false)
		if st.InjectionPoint == nil {
			continue
		}
		fn.Sub("fvOptions").Sub("injection").
			Set("type", foam.Word("semiImplicitSource")).
			Set("timeStart", st.StartTime).
			Set("duration", 1e15).
			Set("selectionMode", foam.Word("points")).
			Set("points", foam.List{toFoam(*st.InjectionPoint)}).
			Set("volumeMode", foam.Word("absolute")).
			Sub("injectionRateSuSp").
			Set(st.Field, foam.List{st.InjectionRate, 0})
	}
	return body, nil
}

func cross(a, b model.Vector) model.Vector {
	return model.Vector{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

// transported lists the fields solved with the segregated smooth solver
func (s setup) transported() []string {
	names := []string{"U"}
	if s.compressible {
		names = append(names, "h")
	}
	for _, f := range s.turbulenceFields() {
		if f != "nut" {
			names = append(names, f)
		}
	}
	for _, st := range s.cfg.ScalarTransport {
		names = append(names, st.Field)
	}
	return names
}

func (s setup) fvSchemes() *foam.Dict {
	ddt, bounded := "Euler", ""
	if s.steady {
		ddt, bounded = "steadyState", "bounded "
	}
	body := foam.NewDict()
	body.Sub("ddtSchemes").Set("default", foam.Word(ddt))
	body.Sub("gradSchemes").
		Set("default", foam.Raw("Gauss linear")).
		Set("grad(U)", foam.Raw("cellLimited Gauss linear 1"))

	div := body.Sub("divSchemes").
		Set("default", foam.Raw("Gauss linear")).
		Set("div(phi,U)", foam.Raw(bounded+"Gauss linearUpwind grad(U)"))
	for _, f := range s.transported()[1:] {
		div.Set("div(phi,"+f+")", foam.Raw(bounded+"Gauss upwind"))
	}
	if s.compressible {
		div.Set("div(phi,K)", foam.Raw(bounded+"Gauss linear")).
			Set("div(((rho*nuEff)*dev2(T(grad(U)))))", foam.Raw("Gauss linear"))
	} else {
		div.Set("div((nuEff*dev2(T(grad(U)))))", foam.Raw("Gauss linear"))
	}

	body.Sub("laplacianSchemes").Set("default", foam.Raw("Gauss linear corrected"))
	body.Sub("interpolationSchemes").Set("default", foam.Word("linear"))
	body.Sub("snGradSchemes").Set("default", foam.Word("corrected"))
	if s.cfg.Physics.Turbulence != model.Laminar {
		body.Sub("wallDist").Set("method", foam.Word("meshWave"))
	}
	return body
}

// fixesPressure reports whether some boundary pins the pressure level
func (s setup) fixesPressure() bool {
	for _, bc := range s.cfg.Boundaries {
		switch kindOf(bc) {
		case pressureInlet, pressureOutlet, farField:
			return true
		}
	}
	return false
}

func (s setup) fvSolution() *foam.Dict {
	p := s.pressureField()
	group := `"(` + strings.Join(s.transported(), "|") + `)"`

	body := foam.NewDict()
	solvers := body.Sub("solvers")
	solvers.Sub(p).
		Set("solver", foam.Word("GAMG")).
		Set("smoother", foam.Word("GaussSeidel")).
		Set("tolerance", 1e-06).
		Set("relTol", 0.1)
	solvers.Sub(group).
		Set("solver", foam.Word("smoothSolver")).
		Set("smoother", foam.Word("symGaussSeidel")).
		Set("tolerance", 1e-06).
		Set("relTol", 0.1)
	if !s.steady {
		solvers.Sub(p+"Final").Set("$"+p, nil).Set("relTol", 0)
		solvers.Sub(`"(` + strings.Join(s.transported(), "|") + `)Final"`).Set("$U", nil).Set("relTol", 0)
		if s.compressible {
			solvers.Sub(`"rho.*"`).Set("solver", foam.Word("diagonal"))
		}
	}

	algorithm := "PIMPLE"
	if s.steady {
		algorithm = "SIMPLE"
	}
	control := body.Sub(algorithm).Set("nNonOrthogonalCorrectors", 0)
	if !s.steady {
		outer := s.cfg.Solver.MaxIterations
		if outer <= 0 {
			outer = 1
		}
		control.Set("nOuterCorrectors", outer).Set("nCorrectors", 2)
	} else if !s.compressible {
		control.Set("consistent", foam.Word("yes"))
	}
	if !s.fixesPressure() {
		control.Set("pRefCell", 0).Set("pRefValue", 0)
	}
	if tol := s.cfg.Solver.ConvergenceTolerance; s.steady && tol > 0 {
		residuals := control.Sub("residualControl").Set(p, tol).Set("U", tol)
		if others := s.transported()[1:]; len(others) > 0 {
			residuals.Set(`"(`+strings.Join(others, "|")+`)"`, tol)
		}
	}

	if s.steady {
		relax := body.Sub("relaxationFactors")
		relax.Sub("fields").Set(p, 0.3)
		relax.Sub("equations").Set("U", 0.7).Set(`".*"`, 0.7)
	}
	return body
}

// setFields writes the initialization zones. Defaults are the initial
// values of every field some zone overrides.
func (s setup) setFields() (*foam.Dict, error) {
	var velocity, pressure, temperature bool
	for _, z := range s.cfg.Zones {
		if z.Kind != model.ZoneInitialization {
			continue
		}
		velocity = velocity || z.Velocity != nil
		pressure = pressure || z.Pressure != nil
		temperature = temperature || (z.Temperature != nil && s.compressible)
	}

	initial := s.cfg.Initial
	var defaults foam.List
	if velocity {
		defaults = append(defaults, s.vectorValue("U", initial.Velocity))
	}
	if pressure {
		defaults = append(defaults, s.scalarValue(s.pressureField(), s.pressure(initial.Pressure)))
	}
	if temperature {
		defaults = append(defaults, s.scalarValue("T", initial.Temperature))
	}

	var regions foam.List
	for _, z := range s.cfg.Zones {
		if z.Kind != model.ZoneInitialization {
			continue
		}
		var values foam.List
		if z.Velocity != nil {
			values = append(values, s.vectorValue("U", *z.Velocity))
		}
		if z.Pressure != nil {
			values = append(values, s.scalarValue(s.pressureField(), s.pressure(*z.Pressure)))
		}
		if z.Temperature != nil && s.compressible {
			values = append(values, s.scalarValue("T", *z.Temperature))
		}

		switch {
		case z.Region.CellZone != "":
			regions = append(regions, foam.Keyed{Key: "zoneToCell", Dict: foam.NewDict().
				Set("zone", foam.Word(z.Region.CellZone)).
				Set("fieldValues", values)})
		case z.Region.IsBox():
			box := vectorText(*z.Region.Min) + " " + vectorText(*z.Region.Max)
			regions = append(regions, foam.Keyed{Key: "boxToCell", Dict: foam.NewDict().
				Set("box", foam.Raw(box)).
				Set("fieldValues", values)})
		default:
			return nil, fmt.Errorf("zone %s: region selects no cells", z.Name)
		}
	}

	return foam.NewDict().
		Set("defaultFieldValues", defaults).
		Set("regions", regions), nil
}

func (s setup) vectorValue(field string, v model.Vector) foam.Raw {
	return foam.Raw("volVectorFieldValue " + field + " " + vectorText(v))
}

func (s setup) scalarValue(field string, v float64) foam.Raw {
	return foam.Raw("volScalarFieldValue " + field + " " + foam.FormatScalar(v))
}
