package mesher

import (
	"fmt"

	"github.com/sourceplane/cfdcase/internal/foam"
	"github.com/sourceplane/cfdcase/internal/model"
	"github.com/sourceplane/cfdcase/internal/progress"
	"github.com/sourceplane/cfdcase/internal/runner"
	"github.com/sourceplane/cfdcase/internal/validate"
)

// cfMesh drives cartesianMesh, which builds a polyhedral mesh straight from
// the surface
type cfMesh struct{}

func (cfMesh) Name() model.MeshBackend { return model.BackendCfMesh }

func (cfMesh) Tool() string { return "cartesianMesh" }

func (b cfMesh) Command(resolve Resolver) runner.Command {
	return runner.Command{Executable: resolve(b.Tool()), Args: caseArgs()}
}

func (cfMesh) NewExtractor() progress.Extractor {
	return progress.NewMeshExtractor(progress.CfMeshPhases)
}

func (b cfMesh) Documents(cfg model.CaseConfig) ([]foam.Document, error) {
	m := cfg.Mesh
	dict := foam.NewDict().
		Set("surfaceFile", foam.Quoted(SurfacePath(cfg))).
		Set("maxCellSize", m.BaseCellSize)

	for _, ref := range m.Refinements {
		switch ref.Kind {
		case model.RefineSurface:
			local := dict.Sub("localRefinement")
			for _, patch := range ref.Patches {
				local.Sub(patch).Set("cellSize", ref.CellSize)
			}
		case model.RefineVolume:
			if !ref.Region.IsBox() {
				return nil, fmt.Errorf("refinement %s: volume refinement needs a box", ref.Name)
			}
			lo, hi := *ref.Region.Min, *ref.Region.Max
			dict.Sub("objectRefinements").Sub(ref.Name).
				Set("type", foam.Word("box")).
				Set("cellSize", ref.CellSize).
				Set("centre", foam.Vector{(lo[0] + hi[0]) / 2, (lo[1] + hi[1]) / 2, (lo[2] + hi[2]) / 2}).
				Set("lengthX", hi[0]-lo[0]).
				Set("lengthY", hi[1]-lo[1]).
				Set("lengthZ", hi[2]-lo[2])
		}
	}

	for _, layer := range m.BoundaryLayers {
		patch := dict.Sub("boundaryLayers").Sub("patchBoundaryLayers").Sub(layer.Patch).
			Set("nLayers", layer.NumLayers).
			Set("thicknessRatio", layer.ExpansionRatio)
		if layer.FirstThickness > 0 {
			patch.Set("maxFirstLayerThickness", layer.FirstThickness)
		}
		patch.Set("allowDiscontinuity", 0)
	}

	docs := stageDocuments(b.Tool())
	return append(docs, dictDoc("system", "meshDict", dict)), nil
}

func (cfMesh) Validate(cfg model.CaseConfig, r *validate.Report) {
	checkSurface(cfg, r)
	checkRefinements(cfg, r, false)
	if len(cfg.Mesh.DynamicRefinements) > 0 {
		r.Add("mesh.dynamicRefinements", "cfmesh builds polyhedral meshes, which cannot be refined at run time")
	}
}
