package model

// CaseConfig is the finalized, read-only description of one analysis.
// It is handed to the pipeline by value and never mutated during a run.
type CaseConfig struct {
	Name            string                    `yaml:"name" json:"name"`
	Physics         PhysicsSettings           `yaml:"physics" json:"physics"`
	Materials       []FluidMaterial           `yaml:"materials" json:"materials"`
	Initial         InitialValues             `yaml:"initial" json:"initial"`
	Boundaries      []BoundaryCondition       `yaml:"boundaries" json:"boundaries"`
	Zones           []Zone                    `yaml:"zones" json:"zones"`
	Mesh            MeshSpec                  `yaml:"mesh" json:"mesh"`
	Solver          SolverControls            `yaml:"solver" json:"solver"`
	Reporting       []ReportingFunction       `yaml:"reporting" json:"reporting"`
	ScalarTransport []ScalarTransportFunction `yaml:"scalarTransport" json:"scalarTransport"`
}

// Vector is a 3-component value (velocity, position, direction)
type Vector [3]float64

// IsZero reports whether all components are zero
func (v Vector) IsZero() bool {
	return v[0] == 0 && v[1] == 0 && v[2] == 0
}

type TimeScheme string

const (
	Steady    TimeScheme = "steady"
	Transient TimeScheme = "transient"
)

type FlowRegime string

const (
	Incompressible FlowRegime = "incompressible"
	Compressible   FlowRegime = "compressible"
)

type TurbulenceModel string

const (
	Laminar         TurbulenceModel = "laminar"
	KEpsilon        TurbulenceModel = "kEpsilon"
	KOmegaSST       TurbulenceModel = "kOmegaSST"
	SpalartAllmaras TurbulenceModel = "SpalartAllmaras"
)

// PhysicsSettings selects the physical model of the case
type PhysicsSettings struct {
	Time          TimeScheme      `yaml:"time" json:"time"`
	Flow          FlowRegime      `yaml:"flow" json:"flow"`
	Turbulence    TurbulenceModel `yaml:"turbulence" json:"turbulence"`
	Gravity       Vector          `yaml:"gravity" json:"gravity"`
	RotatingZones []RotatingZone  `yaml:"rotatingZones" json:"rotatingZones"`
}

// RotatingZone is a multiple-reference-frame region
type RotatingZone struct {
	Name               string   `yaml:"name" json:"name"`
	CellZone           string   `yaml:"cellZone" json:"cellZone"`
	Origin             Vector   `yaml:"origin" json:"origin"`
	Axis               Vector   `yaml:"axis" json:"axis"`
	RPM                float64  `yaml:"rpm" json:"rpm"`
	NonRotatingPatches []string `yaml:"nonRotatingPatches" json:"nonRotatingPatches"`
}

// FluidMaterial holds fluid properties in SI units. The first entry of
// CaseConfig.Materials is the working fluid.
type FluidMaterial struct {
	Name             string  `yaml:"name" json:"name"`
	Density          float64 `yaml:"density" json:"density"`
	DynamicViscosity float64 `yaml:"dynamicViscosity" json:"dynamicViscosity"`
	MolarMass        float64 `yaml:"molarMass" json:"molarMass"`
	Cp               float64 `yaml:"cp" json:"cp"`
	Prandtl          float64 `yaml:"prandtl" json:"prandtl"`
}

// KinematicViscosity returns mu/rho
func (m FluidMaterial) KinematicViscosity() float64 {
	if m.Density == 0 {
		return 0
	}
	return m.DynamicViscosity / m.Density
}

// InitialValues are the internal-field values of the solve stage
type InitialValues struct {
	Velocity           Vector  `yaml:"velocity" json:"velocity"`
	Pressure           float64 `yaml:"pressure" json:"pressure"`
	Temperature        float64 `yaml:"temperature" json:"temperature"`
	TurbulentIntensity float64 `yaml:"turbulentIntensity" json:"turbulentIntensity"`
	LengthScale        float64 `yaml:"lengthScale" json:"lengthScale"`
}

type BoundaryType string

const (
	BoundaryWall     BoundaryType = "wall"
	BoundaryInlet    BoundaryType = "inlet"
	BoundaryOutlet   BoundaryType = "outlet"
	BoundaryOpen     BoundaryType = "open"
	BoundarySymmetry BoundaryType = "symmetry"
)

type BoundarySubtype string

const (
	SubtypeNoSlip         BoundarySubtype = "noSlip"
	SubtypeSlip           BoundarySubtype = "slip"
	SubtypeVelocity       BoundarySubtype = "velocity"
	SubtypeTotalPressure  BoundarySubtype = "totalPressure"
	SubtypeStaticPressure BoundarySubtype = "staticPressure"
	SubtypeFarField       BoundarySubtype = "farField"
)

// BoundaryCondition binds flow conditions to one named mesh patch
type BoundaryCondition struct {
	Name               string          `yaml:"name" json:"name"`
	Patch              string          `yaml:"patch" json:"patch"`
	Type               BoundaryType    `yaml:"type" json:"type"`
	Subtype            BoundarySubtype `yaml:"subtype" json:"subtype"`
	Velocity           Vector          `yaml:"velocity" json:"velocity"`
	Pressure           float64         `yaml:"pressure" json:"pressure"`
	Temperature        float64         `yaml:"temperature" json:"temperature"`
	TurbulentIntensity float64         `yaml:"turbulentIntensity" json:"turbulentIntensity"`
	LengthScale        float64         `yaml:"lengthScale" json:"lengthScale"`
}

type ZoneKind string

const (
	ZonePorous         ZoneKind = "porous"
	ZoneInitialization ZoneKind = "initialization"
)

// Region selects cells either by an axis-aligned box or by a named cellZone
type Region struct {
	CellZone string  `yaml:"cellZone,omitempty" json:"cellZone,omitempty"`
	Min      *Vector `yaml:"min,omitempty" json:"min,omitempty"`
	Max      *Vector `yaml:"max,omitempty" json:"max,omitempty"`
}

// IsBox reports whether the region is given as a box
func (r Region) IsBox() bool {
	return r.Min != nil && r.Max != nil
}

// Empty reports whether the region selects nothing
func (r Region) Empty() bool {
	if r.CellZone != "" {
		return false
	}
	if !r.IsBox() {
		return true
	}
	for i := 0; i < 3; i++ {
		if r.Max[i] <= r.Min[i] {
			return true
		}
	}
	return false
}

// Zone is a porous or initialization region of the domain
type Zone struct {
	Name   string   `yaml:"name" json:"name"`
	Kind   ZoneKind `yaml:"kind" json:"kind"`
	Region Region   `yaml:"region" json:"region"`

	// porous
	Darcy       Vector `yaml:"darcy" json:"darcy"`
	Forchheimer Vector `yaml:"forchheimer" json:"forchheimer"`

	// initialization
	Velocity    *Vector  `yaml:"velocity,omitempty" json:"velocity,omitempty"`
	Pressure    *float64 `yaml:"pressure,omitempty" json:"pressure,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
}

// SolverControls are run-control parameters of the solve stage
type SolverControls struct {
	EndTime              float64 `yaml:"endTime" json:"endTime"`
	TimeStep             float64 `yaml:"timeStep" json:"timeStep"`
	WriteInterval        float64 `yaml:"writeInterval" json:"writeInterval"`
	MaxIterations        int     `yaml:"maxIterations" json:"maxIterations"`
	ConvergenceTolerance float64 `yaml:"convergenceTolerance" json:"convergenceTolerance"`
}

type FunctionKind string

const (
	FunctionForces      FunctionKind = "forces"
	FunctionForceCoeffs FunctionKind = "forceCoeffs"
	FunctionProbes      FunctionKind = "probes"
)

// ReportingFunction is a run-time post-processing function object
type ReportingFunction struct {
	Name          string       `yaml:"name" json:"name"`
	Kind          FunctionKind `yaml:"kind" json:"kind"`
	Patches       []string     `yaml:"patches" json:"patches"`
	CentreOfRot   Vector       `yaml:"centreOfRotation" json:"centreOfRotation"`
	LiftDirection Vector       `yaml:"liftDirection" json:"liftDirection"`
	DragDirection Vector       `yaml:"dragDirection" json:"dragDirection"`
	RefVelocity   float64      `yaml:"refVelocity" json:"refVelocity"`
	RefLength     float64      `yaml:"refLength" json:"refLength"`
	RefArea       float64      `yaml:"refArea" json:"refArea"`
	Points        []Vector     `yaml:"points" json:"points"`
	Fields        []string     `yaml:"fields" json:"fields"`
}

// ScalarTransportFunction adds a passive scalar field to the solve stage
type ScalarTransportFunction struct {
	Name           string  `yaml:"name" json:"name"`
	Field          string  `yaml:"field" json:"field"`
	Diffusivity    float64 `yaml:"diffusivity" json:"diffusivity"`
	InjectionPoint *Vector `yaml:"injectionPoint,omitempty" json:"injectionPoint,omitempty"`
	InjectionRate  float64 `yaml:"injectionRate" json:"injectionRate"`
	StartTime      float64 `yaml:"startTime" json:"startTime"`
}

// WorkingFluid returns the first material, or false when none is defined
func (c CaseConfig) WorkingFluid() (FluidMaterial, bool) {
	if len(c.Materials) == 0 {
		return FluidMaterial{}, false
	}
	return c.Materials[0], true
}
