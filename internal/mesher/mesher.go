// Package mesher holds the closed set of mesh generation backends. Each
// backend writes its own dictionaries, knows its command line and progress
// markers, and checks which refinement records it accepts.
package mesher

import (
	"fmt"
	"math"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sourceplane/cfdcase/internal/foam"
	"github.com/sourceplane/cfdcase/internal/model"
	"github.com/sourceplane/cfdcase/internal/progress"
	"github.com/sourceplane/cfdcase/internal/runner"
	"github.com/sourceplane/cfdcase/internal/validate"
)

// Resolver maps a tool name to the executable to run. Returning the name
// itself means a PATH lookup.
type Resolver func(tool string) string

// Backend is one mesh generator
type Backend interface {
	Name() model.MeshBackend
	// Tool is the default executable name of the generator
	Tool() string
	// Documents returns the files of the mesh sub-tree
	Documents(cfg model.CaseConfig) ([]foam.Document, error)
	// Command returns the invocation, relative to the case root
	Command(resolve Resolver) runner.Command
	NewExtractor() progress.Extractor
	Validate(cfg model.CaseConfig, r *validate.Report)
}

var backends = map[model.MeshBackend]Backend{
	model.BackendCfMesh:    cfMesh{},
	model.BackendSnappy:    snappy{},
	model.BackendBlockMesh: blockMesh{},
}

// For returns the backend selected by name
func For(name model.MeshBackend) (Backend, error) {
	b, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("unknown mesh backend %q", name)
	}
	return b, nil
}

// Rule checks the mesh spec against the rules of its backend
func Rule(cfg model.CaseConfig, r *validate.Report) {
	b, ok := backends[cfg.Mesh.Backend]
	if !ok {
		// reported by the base checks
		return
	}
	b.Validate(cfg, r)
}

// SurfacePath is where the surface file lives inside the mesh sub-tree
func SurfacePath(cfg model.CaseConfig) string {
	if cfg.Mesh.SurfaceFile == "" {
		return ""
	}
	return filepath.ToSlash(filepath.Join("constant", "triSurface", filepath.Base(cfg.Mesh.SurfaceFile)))
}

const subtree = "mesh"

func caseArgs(extra ...string) []string {
	return append([]string{"-case", subtree}, extra...)
}

// stageDocuments returns the run-control files every mesh sub-tree carries
func stageDocuments(tool string) []foam.Document {
	control := foam.NewDict().
		Set("application", foam.Word(tool)).
		Set("startFrom", foam.Word("latestTime")).
		Set("startTime", 0).
		Set("stopAt", foam.Word("endTime")).
		Set("endTime", 1).
		Set("deltaT", 1).
		Set("writeControl", foam.Word("timeStep")).
		Set("writeInterval", 1).
		Set("writeFormat", foam.Word("ascii")).
		Set("writePrecision", 10).
		Set("runTimeModifiable", false)

	schemes := foam.NewDict()
	for _, key := range []string{"ddtSchemes", "gradSchemes", "divSchemes", "laplacianSchemes", "interpolationSchemes", "snGradSchemes"} {
		schemes.Sub(key)
	}
	schemes.Sub("gradSchemes").Set("default", foam.Raw("Gauss linear"))
	schemes.Sub("interpolationSchemes").Set("default", foam.Word("linear"))
	schemes.Sub("snGradSchemes").Set("default", foam.Word("corrected"))

	return []foam.Document{
		dictDoc("system", "controlDict", control),
		dictDoc("system", "fvSchemes", schemes),
		dictDoc("system", "fvSolution", foam.NewDict()),
	}
}

func dictDoc(dir, object string, body *foam.Dict) foam.Document {
	return foam.Document{
		Path: dir + "/" + object,
		File: &foam.File{Class: "dictionary", Location: dir, Object: object, Body: body},
	}
}

func toFoam(v model.Vector) foam.Vector {
	return foam.Vector{v[0], v[1], v[2]}
}

// cellCount is the number of base cells spanning length
func cellCount(length, cellSize float64) int {
	n := int(math.Ceil(length/cellSize - 1e-9))
	if n < 1 {
		return 1
	}
	return n
}

// hex vertex indices of each domain face, outward normals, in
// model.DomainFaceNames order
var boxFaces = [6][4]int{
	{0, 4, 7, 3},
	{2, 6, 5, 1},
	{1, 5, 4, 0},
	{3, 7, 6, 2},
	{0, 3, 2, 1},
	{4, 5, 6, 7},
}

// blockMeshDict meshes the domain box with cubes of the base cell size
func blockMeshDict(cfg model.CaseConfig) *foam.Dict {
	d := cfg.Mesh.Domain
	lo, hi := d.Min, d.Max
	vertices := foam.List{
		foam.Vector{lo[0], lo[1], lo[2]},
		foam.Vector{hi[0], lo[1], lo[2]},
		foam.Vector{hi[0], hi[1], lo[2]},
		foam.Vector{lo[0], hi[1], lo[2]},
		foam.Vector{lo[0], lo[1], hi[2]},
		foam.Vector{hi[0], lo[1], hi[2]},
		foam.Vector{hi[0], hi[1], hi[2]},
		foam.Vector{lo[0], hi[1], hi[2]},
	}
	size := cfg.Mesh.BaseCellSize
	block := fmt.Sprintf("hex (0 1 2 3 4 5 6 7) (%d %d %d) simpleGrading (1 1 1)",
		cellCount(hi[0]-lo[0], size), cellCount(hi[1]-lo[1], size), cellCount(hi[2]-lo[2], size))

	var order []string
	faces := map[string]foam.List{}
	for i, name := range d.Faces {
		if _, ok := faces[name]; !ok {
			order = append(order, name)
		}
		f := boxFaces[i]
		faces[name] = append(faces[name], foam.List{f[0], f[1], f[2], f[3]})
	}
	boundary := make(foam.List, 0, len(order))
	for _, name := range order {
		patch := foam.NewDict().
			Set("type", foam.Word(patchType(cfg, name))).
			Set("faces", faces[name])
		boundary = append(boundary, foam.Keyed{Key: name, Dict: patch})
	}

	return foam.NewDict().
		Set("convertToMeters", 1).
		Set("vertices", vertices).
		Set("blocks", foam.List{foam.Raw(block)}).
		Set("edges", foam.List{}).
		Set("boundary", boundary).
		Set("mergePatchPairs", foam.List{})
}

// patchType derives the mesh patch type from the condition bound to it
func patchType(cfg model.CaseConfig, patch string) string {
	for _, bc := range cfg.Boundaries {
		if bc.Patch != patch {
			continue
		}
		switch bc.Type {
		case model.BoundaryWall:
			return "wall"
		case model.BoundarySymmetry:
			return "symmetry"
		}
	}
	return "patch"
}

// checkDomain reports a missing or incomplete domain box
func checkDomain(cfg model.CaseConfig, r *validate.Report, needFaces bool) {
	d := cfg.Mesh.Domain
	if d == nil {
		r.Add("mesh.domain", "%s meshing requires a domain box", cfg.Mesh.Backend)
		return
	}
	if !needFaces {
		return
	}
	var missing []string
	for i, face := range d.Faces {
		if face == "" {
			missing = append(missing, model.DomainFaceNames[i])
		}
	}
	if len(missing) > 0 {
		r.Add("mesh.domain.faces", "patch names missing for %s", strings.Join(missing, ", "))
	}
}

// checkSurface reports a missing surface file or patch list
func checkSurface(cfg model.CaseConfig, r *validate.Report) {
	if cfg.Mesh.SurfaceFile == "" {
		r.Add("mesh.surfaceFile", "%s meshing requires a surface file", cfg.Mesh.Backend)
	}
	if len(cfg.Mesh.Patches) == 0 {
		r.Add("mesh.patches", "at least one surface patch is required")
	}
}

// checkRefinements applies the shape rules shared by the surface meshers;
// useLevel selects level-based (true) or cell-size-based (false) records
func checkRefinements(cfg model.CaseConfig, r *validate.Report, useLevel bool) {
	names := map[string]bool{}
	for i, ref := range cfg.Mesh.Refinements {
		field := fmt.Sprintf("mesh.refinements[%d]", i)
		if ref.Name == "" {
			r.Add(field+".name", "is required")
		} else if names[ref.Name] {
			r.Add(field+".name", "duplicate refinement %q", ref.Name)
		}
		names[ref.Name] = true

		if useLevel {
			if ref.Level < 1 {
				r.Add(field+".level", "%s refinements need a level of at least 1", cfg.Mesh.Backend)
			}
			if ref.CellSize != 0 {
				r.Add(field+".cellSize", "%s refinements take a level, not a cell size", cfg.Mesh.Backend)
			}
		} else {
			if ref.CellSize <= 0 {
				r.Add(field+".cellSize", "%s refinements need a positive cell size", cfg.Mesh.Backend)
			}
			if ref.Level != 0 {
				r.Add(field+".level", "%s refinements take a cell size, not a level", cfg.Mesh.Backend)
			}
		}

		switch ref.Kind {
		case model.RefineSurface:
			for j, p := range ref.Patches {
				if !slices.Contains(cfg.Mesh.Patches, p) {
					r.Add(fmt.Sprintf("%s.patches[%d]", field, j), "surface patch %q does not exist", p)
				}
			}
		case model.RefineVolume:
			if !ref.Region.IsBox() || ref.Region.Empty() {
				r.Add(field+".region", "volume refinement needs a non-empty box")
			}
		default:
			r.Add(field+".kind", "unknown refinement kind %q", ref.Kind)
		}
	}
}
