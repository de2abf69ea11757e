package solver

import (
	"math"

	"github.com/sourceplane/cfdcase/internal/foam"
	"github.com/sourceplane/cfdcase/internal/model"
)

// constant returns the constant/ dictionaries of the solve sub-tree
func (s setup) constant() []foam.Document {
	var docs []foam.Document
	if s.compressible {
		docs = append(docs, dictDoc("constant", "thermophysicalProperties", s.thermophysical()))
	} else {
		docs = append(docs, dictDoc("constant", "transportProperties", foam.NewDict().
			Set("transportModel", foam.Word("Newtonian")).
			Set("nu", foam.Dimensioned{Dims: foam.DimKinViscosity, Value: s.fluid.KinematicViscosity()})))
	}
	docs = append(docs, dictDoc("constant", "momentumTransport", s.momentumTransport()))

	if s.buoyant {
		body := foam.NewDict().
			Set("dimensions", foam.DimAcceleration).
			Set("value", toFoam(s.cfg.Physics.Gravity))
		docs = append(docs, foam.Document{
			Path: "constant/g",
			File: &foam.File{Class: "uniformDimensionedVectorField", Location: "constant", Object: "g", Body: body},
		})
	}
	if len(s.cfg.Physics.RotatingZones) > 0 {
		docs = append(docs, dictDoc("constant", "MRFProperties", s.mrf()))
	}
	if options := s.porosity(); options.Len() > 0 {
		docs = append(docs, dictDoc("constant", "fvOptions", options))
	}
	if len(s.cfg.Mesh.DynamicRefinements) > 0 {
		docs = append(docs, dictDoc("constant", "dynamicMeshDict", s.dynamicMesh()))
	}
	return docs
}

func (s setup) thermophysical() *foam.Dict {
	thermo := "hePsiThermo"
	if s.buoyant {
		thermo = "heRhoThermo"
	}
	body := foam.NewDict()
	body.Sub("thermoType").
		Set("type", foam.Word(thermo)).
		Set("mixture", foam.Word("pureMixture")).
		Set("transport", foam.Word("const")).
		Set("thermo", foam.Word("hConst")).
		Set("equationOfState", foam.Word("perfectGas")).
		Set("specie", foam.Word("specie")).
		Set("energy", foam.Word("sensibleEnthalpy"))

	mixture := body.Sub("mixture")
	mixture.Sub("specie").Set("molWeight", s.fluid.MolarMass)
	mixture.Sub("thermodynamics").
		Set("Cp", s.fluid.Cp).
		Set("Hf", 0)
	mixture.Sub("transport").
		Set("mu", s.fluid.DynamicViscosity).
		Set("Pr", s.fluid.Prandtl)
	return body
}

func (s setup) momentumTransport() *foam.Dict {
	turb := s.cfg.Physics.Turbulence
	if turb == model.Laminar || turb == "" {
		return foam.NewDict().Set("simulationType", foam.Word("laminar"))
	}
	body := foam.NewDict().Set("simulationType", foam.Word("RAS"))
	body.Sub("RAS").
		Set("model", foam.Word(turb)).
		Set("turbulence", foam.Word("on")).
		Set("printCoeffs", foam.Word("on"))
	return body
}

// mrf writes one entry per rotating zone; omega is in rad/s
func (s setup) mrf() *foam.Dict {
	body := foam.NewDict()
	for _, z := range s.cfg.Physics.RotatingZones {
		patches := foam.List{}
		for _, p := range z.NonRotatingPatches {
			patches = append(patches, foam.Word(p))
		}
		body.Sub(z.Name).
			Set("cellZone", foam.Word(z.CellZone)).
			Set("active", foam.Word("yes")).
			Set("nonRotatingPatches", patches).
			Set("origin", toFoam(z.Origin)).
			Set("axis", toFoam(z.Axis)).
			Set("omega", z.RPM*2*math.Pi/60)
	}
	return body
}

func (s setup) porosity() *foam.Dict {
	body := foam.NewDict()
	for _, z := range s.cfg.Zones {
		if z.Kind != model.ZonePorous {
			continue
		}
		coeffs := foam.NewDict().
			Set("selectionMode", foam.Word("cellZone")).
			Set("cellZone", foam.Word(z.Region.CellZone)).
			Set("type", foam.Word("DarcyForchheimer"))
		// the coefficients are dimensioned vectors
		df := coeffs.Sub("DarcyForchheimerCoeffs").
			Set("d", foam.Raw("[0 -2 0 0 0 0 0] "+vectorText(z.Darcy))).
			Set("f", foam.Raw("[0 -1 0 0 0 0 0] "+vectorText(z.Forchheimer)))
		df.Sub("coordinateSystem").
			Set("type", foam.Word("cartesian")).
			Set("origin", foam.Vector{}).
			Sub("coordinateRotation").
			Set("type", foam.Word("axesRotation")).
			Set("e1", foam.Vector{1, 0, 0}).
			Set("e2", foam.Vector{0, 1, 0})

		body.Sub(z.Name).
			Set("type", foam.Word("explicitPorositySource")).
			Set("explicitPorositySourceCoeffs", coeffs)
	}
	return body
}

func vectorText(v model.Vector) string {
	return "(" + foam.FormatScalar(v[0]) + " " + foam.FormatScalar(v[1]) + " " + foam.FormatScalar(v[2]) + ")"
}

func (s setup) dynamicMesh() *foam.Dict {
	r := s.cfg.Mesh.DynamicRefinements[0]
	interval := r.RefineInterval
	if interval <= 0 {
		interval = 1
	}
	maxCells := r.MaxCells
	if maxCells <= 0 {
		maxCells = 2000000
	}
	return foam.NewDict().
		Set("dynamicFvMesh", foam.Word("dynamicRefineFvMesh")).
		Set("refineInterval", interval).
		Set("field", foam.Word(r.Field)).
		Set("lowerRefineLevel", r.LowerLevel).
		Set("upperRefineLevel", r.UpperLevel).
		Set("unrefineLevel", 10).
		Set("nBufferLayers", 1).
		Set("maxRefinement", r.MaxRefinement).
		Set("maxCells", maxCells).
		Set("correctFluxes", foam.List{foam.List{foam.Word("phi"), foam.Word("none")}}).
		Set("dumpLevel", true)
}
