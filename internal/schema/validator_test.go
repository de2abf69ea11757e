package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceplane/cfdcase/internal/model"
	"github.com/sourceplane/cfdcase/internal/validate"
)

func TestFieldPath(t *testing.T) {
	tests := map[string]string{
		"":                          "",
		"/name":                     "name",
		"/materials/0/density":      "materials[0].density",
		"/reporting/1/points/2":     "reporting[1].points[2]",
		"/mesh/domain/faces":        "mesh.domain.faces",
		"/physics/rotatingZones/0/": "physics.rotatingZones[0]",
	}
	for pointer, want := range tests {
		assert.Equal(t, want, FieldPath(pointer), pointer)
	}
}

func TestValidateCase(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	doc := map[string]interface{}{
		"name":       "duct",
		"materials":  []interface{}{map[string]interface{}{"name": "air", "density": 1.2, "dynamicViscosity": 1.8e-5}},
		"boundaries": []interface{}{map[string]interface{}{"patch": "inlet", "type": "inlet"}},
		"mesh":       map[string]interface{}{"backend": "cfmesh", "baseCellSize": 0.01},
	}
	require.NoError(t, v.ValidateCase(doc))

	doc["mesh"] = map[string]interface{}{"backend": "gmsh", "baseCellSize": 0.01}
	err = v.ValidateCase(doc)
	var verr *validate.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Violations, 1)
	assert.Equal(t, "mesh.backend", verr.Violations[0].Field)
}

func TestValidatePlan(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	plan := &model.Plan{
		APIVersion: "cfdcase.sourceplane.io/v1",
		Kind:       "Plan",
		Metadata:   model.Metadata{Name: "duct"},
		Spec:       model.PlanSpec{CaseDir: "/cases/duct", Backend: model.BackendSnappy, Application: "simpleFoam"},
		Stages: []model.PlanStage{{
			Stage:      model.StageMesh,
			Tool:       "snappyHexMesh",
			Executable: "sh",
			Args:       []string{"mesh/Allmesh"},
			Env:        []string{"BLOCK_MESH=blockMesh"},
			Dir:        "/cases/duct",
			Subtree:    "mesh",
		}},
	}
	require.NoError(t, v.ValidatePlan(plan))

	plan.Stages[0].Env = []string{"lower=case"}
	assert.Error(t, v.ValidatePlan(plan))
}
