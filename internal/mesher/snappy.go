package mesher

import (
	"fmt"
	"path"
	"strings"

	"github.com/sourceplane/cfdcase/internal/foam"
	"github.com/sourceplane/cfdcase/internal/model"
	"github.com/sourceplane/cfdcase/internal/progress"
	"github.com/sourceplane/cfdcase/internal/runner"
	"github.com/sourceplane/cfdcase/internal/validate"
)

// snappy builds a background box with blockMesh and then snaps it to the
// surface with snappyHexMesh. Both run from one generated script so the
// stage stays a single process. blockMesh writes to its own log so its End
// line does not finish the stage early.
type snappy struct{}

const allmesh = `#!/bin/sh
set -e
echo "Creating block mesh"
"${BLOCK_MESH:-blockMesh}" -case mesh > mesh/log.blockMesh 2>&1 || { cat mesh/log.blockMesh; exit 1; }
"${SNAPPY_HEX_MESH:-snappyHexMesh}" -case mesh -overwrite
`

func (snappy) Name() model.MeshBackend { return model.BackendSnappy }

func (snappy) Tool() string { return "snappyHexMesh" }

func (b snappy) Command(resolve Resolver) runner.Command {
	blockMesh := resolve("blockMesh")
	snappyHexMesh := resolve(b.Tool())
	return runner.Command{
		Executable: resolve("sh"),
		Args:       []string{subtree + "/Allmesh"},
		Env:        []string{"BLOCK_MESH=" + blockMesh, "SNAPPY_HEX_MESH=" + snappyHexMesh},
		Requires:   []string{blockMesh, snappyHexMesh},
	}
}

func (snappy) NewExtractor() progress.Extractor {
	return progress.NewMeshExtractor(progress.SnappyPhases)
}

func (b snappy) Documents(cfg model.CaseConfig) ([]foam.Document, error) {
	m := cfg.Mesh
	if m.Domain == nil {
		return nil, fmt.Errorf("snappy meshing requires a domain box")
	}
	surface := path.Base(SurfacePath(cfg))
	geomName := strings.TrimSuffix(surface, path.Ext(surface))

	geometry := foam.NewDict()
	regions := geometry.Sub(surface).
		Set("type", foam.Word("triSurfaceMesh")).
		Set("name", foam.Word(geomName)).
		Sub("regions")
	for _, patch := range m.Patches {
		regions.Sub(patch).Set("name", foam.Word(patch))
	}

	surfaceLevels := foam.NewDict()
	surfaceRef := surfaceLevels.Sub(geomName).Set("level", foam.List{0, 0})
	refRegions := foam.NewDict()
	for _, ref := range m.Refinements {
		switch ref.Kind {
		case model.RefineSurface:
			if len(ref.Patches) == 0 {
				surfaceRef.Set("level", foam.List{ref.Level, ref.Level})
				continue
			}
			for _, patch := range ref.Patches {
				surfaceRef.Sub("regions").Sub(patch).Set("level", foam.List{ref.Level, ref.Level})
			}
		case model.RefineVolume:
			if !ref.Region.IsBox() {
				return nil, fmt.Errorf("refinement %s: volume refinement needs a box", ref.Name)
			}
			geometry.Sub(ref.Name).
				Set("type", foam.Word("searchableBox")).
				Set("min", toFoam(*ref.Region.Min)).
				Set("max", toFoam(*ref.Region.Max))
			refRegions.Sub(ref.Name).
				Set("mode", foam.Word("inside")).
				Set("levels", foam.List{foam.List{1e15, ref.Level}})
		}
	}

	castellated := foam.NewDict().
		Set("maxLocalCells", 1000000).
		Set("maxGlobalCells", 20000000).
		Set("minRefinementCells", 10).
		Set("maxLoadUnbalance", 0.1).
		Set("nCellsBetweenLevels", 3).
		Set("features", foam.List{}).
		Set("refinementSurfaces", surfaceLevels).
		Set("resolveFeatureAngle", 30).
		Set("refinementRegions", refRegions).
		Set("locationInMesh", locationInMesh(m)).
		Set("allowFreeStandingZoneFaces", true)

	snap := foam.NewDict().
		Set("nSmoothPatch", 3).
		Set("tolerance", 2).
		Set("nSolveIter", 30).
		Set("nRelaxIter", 5).
		Set("nFeatureSnapIter", 10).
		Set("implicitFeatureSnap", true).
		Set("explicitFeatureSnap", false)

	layers := foam.NewDict().Set("relativeSizes", false)
	layerPatches := layers.Sub("layers")
	expansion, firstThickness := 1.2, 0.0
	for i, layer := range m.BoundaryLayers {
		layerPatches.Sub(layer.Patch).Set("nSurfaceLayers", layer.NumLayers)
		if i == 0 {
			expansion, firstThickness = layer.ExpansionRatio, layer.FirstThickness
		}
	}
	if firstThickness <= 0 {
		firstThickness = m.BaseCellSize / 10
	}
	layers.
		Set("expansionRatio", expansion).
		Set("firstLayerThickness", firstThickness).
		Set("minThickness", firstThickness/10).
		Set("nGrow", 0).
		Set("featureAngle", 60).
		Set("nRelaxIter", 3).
		Set("nSmoothSurfaceNormals", 1).
		Set("nSmoothNormals", 3).
		Set("nSmoothThickness", 10).
		Set("maxFaceThicknessRatio", 0.5).
		Set("maxThicknessToMedialRatio", 0.3).
		Set("minMedialAxisAngle", 90).
		Set("nBufferCellsNoExtrude", 0).
		Set("nLayerIter", 50)

	quality := foam.NewDict().
		Set("maxNonOrtho", 65).
		Set("maxBoundarySkewness", 20).
		Set("maxInternalSkewness", 4).
		Set("maxConcave", 80).
		Set("minVol", 1e-13).
		Set("minTetQuality", 1e-15).
		Set("minArea", -1).
		Set("minTwist", 0.02).
		Set("minDeterminant", 0.001).
		Set("minFaceWeight", 0.05).
		Set("minVolRatio", 0.01).
		Set("minTriangleTwist", -1).
		Set("nSmoothScale", 4).
		Set("errorReduction", 0.75)

	dict := foam.NewDict().
		Set("castellatedMesh", true).
		Set("snap", true).
		Set("addLayers", len(m.BoundaryLayers) > 0).
		Set("geometry", geometry).
		Set("castellatedMeshControls", castellated).
		Set("snapControls", snap).
		Set("addLayersControls", layers).
		Set("meshQualityControls", quality).
		Set("mergeTolerance", 1e-06)

	docs := stageDocuments(b.Tool())
	docs = append(docs,
		dictDoc("system", "blockMeshDict", blockMeshDict(cfg)),
		dictDoc("system", "snappyHexMeshDict", dict),
		foam.Document{Path: "Allmesh", Data: []byte(allmesh), Executable: true},
	)
	return docs, nil
}

// locationInMesh is the configured seed point, or a point just inside the
// lower corner of the domain
func locationInMesh(m model.MeshSpec) foam.Vector {
	if m.LocationInMesh != nil {
		return toFoam(*m.LocationInMesh)
	}
	d := m.Domain
	var v foam.Vector
	for i := 0; i < 3; i++ {
		v[i] = d.Min[i] + 0.01*(d.Max[i]-d.Min[i])
	}
	return v
}

func (snappy) Validate(cfg model.CaseConfig, r *validate.Report) {
	checkSurface(cfg, r)
	checkDomain(cfg, r, true)
	checkRefinements(cfg, r, true)
}
