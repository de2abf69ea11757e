package mesher

import (
	"fmt"

	"github.com/sourceplane/cfdcase/internal/foam"
	"github.com/sourceplane/cfdcase/internal/model"
	"github.com/sourceplane/cfdcase/internal/progress"
	"github.com/sourceplane/cfdcase/internal/runner"
	"github.com/sourceplane/cfdcase/internal/validate"
)

// blockMesh meshes the domain box alone; the box faces are the patches
type blockMesh struct{}

func (blockMesh) Name() model.MeshBackend { return model.BackendBlockMesh }

func (blockMesh) Tool() string { return "blockMesh" }

func (b blockMesh) Command(resolve Resolver) runner.Command {
	return runner.Command{Executable: resolve(b.Tool()), Args: caseArgs()}
}

func (blockMesh) NewExtractor() progress.Extractor {
	return progress.NewMeshExtractor(progress.BlockMeshPhases)
}

func (b blockMesh) Documents(cfg model.CaseConfig) ([]foam.Document, error) {
	if cfg.Mesh.Domain == nil {
		return nil, fmt.Errorf("blockmesh meshing requires a domain box")
	}
	docs := stageDocuments(b.Tool())
	return append(docs, dictDoc("system", "blockMeshDict", blockMeshDict(cfg))), nil
}

func (blockMesh) Validate(cfg model.CaseConfig, r *validate.Report) {
	checkDomain(cfg, r, true)
	if len(cfg.Mesh.Refinements) > 0 {
		r.Add("mesh.refinements", "blockmesh does not support local refinement")
	}
	if len(cfg.Mesh.BoundaryLayers) > 0 {
		r.Add("mesh.boundaryLayers", "blockmesh does not support boundary layers")
	}
}
