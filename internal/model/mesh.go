package model

// MeshBackend selects one of the interchangeable mesh generators
type MeshBackend string

const (
	BackendCfMesh    MeshBackend = "cfmesh"
	BackendSnappy    MeshBackend = "snappy"
	BackendBlockMesh MeshBackend = "blockmesh"
)

// MeshBackends lists the supported backends in a stable order
var MeshBackends = []MeshBackend{BackendCfMesh, BackendSnappy, BackendBlockMesh}

// MeshSpec describes how the mesh stage builds the computational mesh
type MeshSpec struct {
	Backend            MeshBackend         `yaml:"backend" json:"backend"`
	BaseCellSize       float64             `yaml:"baseCellSize" json:"baseCellSize"`
	SurfaceFile        string              `yaml:"surfaceFile" json:"surfaceFile"`
	Patches            []string            `yaml:"patches" json:"patches"`
	Domain             *Domain             `yaml:"domain,omitempty" json:"domain,omitempty"`
	LocationInMesh     *Vector             `yaml:"locationInMesh,omitempty" json:"locationInMesh,omitempty"`
	Refinements        []Refinement        `yaml:"refinements" json:"refinements"`
	BoundaryLayers     []BoundaryLayer     `yaml:"boundaryLayers" json:"boundaryLayers"`
	DynamicRefinements []DynamicRefinement `yaml:"dynamicRefinements" json:"dynamicRefinements"`
}

// Domain is the axis-aligned background box. Faces name the patch of each
// box face in the order xMin, xMax, yMin, yMax, zMin, zMax.
type Domain struct {
	Min   Vector    `yaml:"min" json:"min"`
	Max   Vector    `yaml:"max" json:"max"`
	Faces [6]string `yaml:"faces" json:"faces"`
}

// DomainFaceNames are the box face labels in Domain.Faces order
var DomainFaceNames = [6]string{"xMin", "xMax", "yMin", "yMax", "zMin", "zMax"}

// PatchNames returns the patch names the built mesh will carry. blockmesh
// meshes carry only the domain faces; snappy meshes carry the surface
// patches plus the faces of the background box.
func (m MeshSpec) PatchNames() []string {
	seen := make(map[string]bool)
	var names []string
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		names = append(names, name)
	}
	if m.Backend != BackendBlockMesh {
		for _, p := range m.Patches {
			add(p)
		}
	}
	if m.Domain != nil && m.Backend != BackendCfMesh {
		for _, face := range m.Domain.Faces {
			add(face)
		}
	}
	return names
}

type RefinementKind string

const (
	RefineSurface RefinementKind = "surface"
	RefineVolume  RefinementKind = "volume"
)

// Refinement is a local mesh refinement record. Which of CellSize or Level
// is legal depends on the backend.
type Refinement struct {
	Name     string         `yaml:"name" json:"name"`
	Kind     RefinementKind `yaml:"kind" json:"kind"`
	Patches  []string       `yaml:"patches" json:"patches"`
	Region   Region         `yaml:"region" json:"region"`
	CellSize float64        `yaml:"cellSize" json:"cellSize"`
	Level    int            `yaml:"level" json:"level"`
}

// BoundaryLayer is a prismatic layer specification on one patch
type BoundaryLayer struct {
	Patch          string  `yaml:"patch" json:"patch"`
	NumLayers      int     `yaml:"numLayers" json:"numLayers"`
	ExpansionRatio float64 `yaml:"expansionRatio" json:"expansionRatio"`
	FirstThickness float64 `yaml:"firstThickness" json:"firstThickness"`
}

// DynamicRefinement drives run-time adaptive refinement on a field
type DynamicRefinement struct {
	Field          string  `yaml:"field" json:"field"`
	LowerLevel     float64 `yaml:"lowerLevel" json:"lowerLevel"`
	UpperLevel     float64 `yaml:"upperLevel" json:"upperLevel"`
	MaxRefinement  int     `yaml:"maxRefinement" json:"maxRefinement"`
	RefineInterval int     `yaml:"refineInterval" json:"refineInterval"`
	MaxCells       int     `yaml:"maxCells" json:"maxCells"`
}
