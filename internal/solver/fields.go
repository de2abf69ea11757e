package solver

import (
	"github.com/sourceplane/cfdcase/internal/foam"
	"github.com/sourceplane/cfdcase/internal/model"
)

// patchKind is the flow role of a boundary condition after defaults
type patchKind int

const (
	noSlipWall patchKind = iota
	slipWall
	velocityInlet
	pressureInlet
	pressureOutlet
	farField
	symmetryPlane
)

func kindOf(bc model.BoundaryCondition) patchKind {
	switch bc.Type {
	case model.BoundaryWall:
		if bc.Subtype == model.SubtypeSlip {
			return slipWall
		}
		return noSlipWall
	case model.BoundaryInlet:
		if bc.Subtype == model.SubtypeTotalPressure {
			return pressureInlet
		}
		return velocityInlet
	case model.BoundaryOutlet:
		return pressureOutlet
	case model.BoundaryOpen:
		switch bc.Subtype {
		case model.SubtypeTotalPressure:
			return pressureInlet
		case model.SubtypeStaticPressure:
			return pressureOutlet
		}
		return farField
	}
	return symmetryPlane
}

func isWall(k patchKind) bool {
	return k == noSlipWall || k == slipWall
}

func typed(t string) *foam.Dict {
	return foam.NewDict().Set("type", foam.Word(t))
}

func fixedValue(v interface{}) *foam.Dict {
	return typed("fixedValue").Set("value", foam.Uniform{Value: v})
}

func inletOutlet(v interface{}) *foam.Dict {
	return typed("inletOutlet").
		Set("inletValue", foam.Uniform{Value: v}).
		Set("value", foam.Uniform{Value: v})
}

func withValue(t string, v interface{}) *foam.Dict {
	return typed(t).Set("value", foam.Uniform{Value: v})
}

// fallbackPatch matches every patch that has no boundary condition; those
// are treated as no-slip walls
const fallbackPatch = `".*"`

// field builds one 0/ file. patch returns the entry of a condition; wall is
// used for unbound patches.
func (s setup) field(name, class string, dims foam.Dimensions, internal interface{}, patch func(model.BoundaryCondition) *foam.Dict, wall *foam.Dict) foam.Document {
	boundary := foam.NewDict()
	for _, bc := range s.cfg.Boundaries {
		boundary.Set(bc.Patch, patch(bc))
	}
	boundary.Set(fallbackPatch, wall)

	body := foam.NewDict().
		Set("dimensions", dims).
		Set("internalField", foam.Uniform{Value: internal}).
		Set("boundaryField", boundary)
	return foam.Document{
		Path: "0/" + name,
		File: &foam.File{Class: class, Location: "0", Object: name, Body: body},
	}
}

// fields returns the initial-condition files in a fixed order
func (s setup) fields() []foam.Document {
	initial := s.cfg.Initial
	docs := []foam.Document{s.velocity()}
	docs = append(docs, s.pressureFields()...)
	if s.compressible {
		docs = append(docs, s.temperature())
	}

	internal := turbulenceValues(magnitude(initial.Velocity), initial.TurbulentIntensity, initial.LengthScale)
	for _, name := range s.turbulenceFields() {
		docs = append(docs, s.turbulenceField(name, internal))
	}
	if s.compressible && s.cfg.Physics.Turbulence != model.Laminar {
		docs = append(docs, s.field("alphat", "volScalarField", foam.DimDynViscosity, 0.0,
			func(bc model.BoundaryCondition) *foam.Dict {
				switch k := kindOf(bc); {
				case isWall(k):
					return withValue("compressible::alphatWallFunction", 0.0).Set("Prt", 0.85)
				case k == symmetryPlane:
					return typed("symmetry")
				}
				return withValue("calculated", 0.0)
			},
			withValue("compressible::alphatWallFunction", 0.0).Set("Prt", 0.85)))
	}
	for _, st := range s.cfg.ScalarTransport {
		docs = append(docs, s.scalarField(st.Field))
	}
	return docs
}

func (s setup) velocity() foam.Document {
	return s.field("U", "volVectorField", foam.DimVelocity, toFoam(s.cfg.Initial.Velocity),
		func(bc model.BoundaryCondition) *foam.Dict {
			zero := foam.Vector{}
			switch kindOf(bc) {
			case noSlipWall:
				return typed("noSlip")
			case slipWall:
				return typed("slip")
			case velocityInlet:
				return fixedValue(toFoam(bc.Velocity))
			case pressureInlet:
				return withValue("pressureInletOutletVelocity", zero)
			case pressureOutlet:
				return inletOutlet(zero)
			case farField:
				return typed("freestreamVelocity").
					Set("freestreamValue", foam.Uniform{Value: toFoam(bc.Velocity)}).
					Set("value", foam.Uniform{Value: toFoam(bc.Velocity)})
			}
			return typed("symmetry")
		},
		typed("noSlip"))
}

func (s setup) pressureFields() []foam.Document {
	dims := foam.DimKinematicP
	if s.compressible {
		dims = foam.DimPressure
	}
	p0 := s.pressure(s.cfg.Initial.Pressure)

	solved := s.field(s.pressureField(), "volScalarField", dims, p0,
		func(bc model.BoundaryCondition) *foam.Dict {
			p := s.pressure(bc.Pressure)
			switch k := kindOf(bc); {
			case isWall(k) || k == velocityInlet:
				if s.buoyant {
					return withValue("fixedFluxPressure", p0)
				}
				return typed("zeroGradient")
			case k == pressureInlet:
				return typed("totalPressure").
					Set("p0", foam.Uniform{Value: p}).
					Set("value", foam.Uniform{Value: p})
			case k == pressureOutlet:
				return fixedValue(p)
			case k == farField:
				return typed("freestreamPressure").
					Set("freestreamValue", foam.Uniform{Value: p}).
					Set("value", foam.Uniform{Value: p})
			}
			return typed("symmetry")
		},
		s.pressureWall(p0))

	if !s.buoyant {
		return []foam.Document{solved}
	}
	// p follows p_rgh when buoyancy is on
	derived := s.field("p", "volScalarField", dims, p0,
		func(bc model.BoundaryCondition) *foam.Dict {
			if kindOf(bc) == symmetryPlane {
				return typed("symmetry")
			}
			return withValue("calculated", p0)
		},
		withValue("calculated", p0))
	return []foam.Document{derived, solved}
}

func (s setup) pressureWall(p0 float64) *foam.Dict {
	if s.buoyant {
		return withValue("fixedFluxPressure", p0)
	}
	return typed("zeroGradient")
}

func (s setup) temperature() foam.Document {
	t0 := s.cfg.Initial.Temperature
	return s.field("T", "volScalarField", foam.DimTemperature, t0,
		func(bc model.BoundaryCondition) *foam.Dict {
			t := bc.Temperature
			if t <= 0 {
				t = t0
			}
			switch k := kindOf(bc); {
			case isWall(k):
				if bc.Temperature > 0 {
					return fixedValue(bc.Temperature)
				}
				return typed("zeroGradient")
			case k == velocityInlet || k == pressureInlet:
				return fixedValue(t)
			case k == pressureOutlet || k == farField:
				return inletOutlet(t)
			}
			return typed("symmetry")
		},
		typed("zeroGradient"))
}

var turbulenceDims = map[string]foam.Dimensions{
	"k":       foam.DimTurbEnergy,
	"epsilon": foam.DimDissipation,
	"omega":   foam.DimFrequency,
	"nuTilda": foam.DimKinViscosity,
	"nut":     foam.DimKinViscosity,
}

func (t turbulence) get(name string) float64 {
	switch name {
	case "k":
		return t.k
	case "epsilon":
		return t.epsilon
	case "omega":
		return t.omega
	case "nuTilda":
		return t.nuTilda
	}
	return 0
}

func (s setup) turbulenceWall(name string, internal turbulence) *foam.Dict {
	switch name {
	case "k":
		return withValue("kqRWallFunction", internal.k)
	case "epsilon":
		return withValue("epsilonWallFunction", internal.epsilon)
	case "omega":
		return withValue("omegaWallFunction", internal.omega)
	case "nuTilda":
		return fixedValue(0.0)
	}
	// nut
	if s.cfg.Physics.Turbulence == model.SpalartAllmaras {
		return withValue("nutUSpaldingWallFunction", 0.0)
	}
	return withValue("nutkWallFunction", 0.0)
}

func (s setup) turbulenceField(name string, internal turbulence) foam.Document {
	initial := s.cfg.Initial
	wall := s.turbulenceWall(name, internal)
	return s.field(name, "volScalarField", turbulenceDims[name], internal.get(name),
		func(bc model.BoundaryCondition) *foam.Dict {
			k := kindOf(bc)
			switch {
			case isWall(k):
				return wall
			case k == symmetryPlane:
				return typed("symmetry")
			case name == "nut":
				return withValue("calculated", 0.0)
			}

			speed := magnitude(initial.Velocity)
			if k == velocityInlet || k == farField {
				speed = magnitude(bc.Velocity)
			}
			intensity, length := bc.TurbulentIntensity, bc.LengthScale
			if intensity <= 0 {
				intensity = initial.TurbulentIntensity
			}
			if length <= 0 {
				length = initial.LengthScale
			}
			v := turbulenceValues(speed, intensity, length).get(name)
			if k == velocityInlet {
				return fixedValue(v)
			}
			return inletOutlet(v)
		},
		wall)
}

func (s setup) scalarField(name string) foam.Document {
	return s.field(name, "volScalarField", foam.Dimless, 0.0,
		func(bc model.BoundaryCondition) *foam.Dict {
			switch k := kindOf(bc); {
			case k == velocityInlet || k == pressureInlet:
				return fixedValue(0.0)
			case k == pressureOutlet || k == farField:
				return inletOutlet(0.0)
			case k == symmetryPlane:
				return typed("symmetry")
			}
			return typed("zeroGradient")
		},
		typed("zeroGradient"))
}
