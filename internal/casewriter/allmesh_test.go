//go:build !windows

package casewriter

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceplane/cfdcase/internal/casetest"
	"github.com/sourceplane/cfdcase/internal/model"
	"github.com/sourceplane/cfdcase/internal/progress"
	"github.com/sourceplane/cfdcase/internal/runner"
)

func fakeTool(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestAllmesh_FinishesAfterSnappyHexMesh(t *testing.T) {
	root := t.TempDir()
	_, err := Write(casetest.Snappy(casetest.Surface(t)), model.StageMesh, root)
	require.NoError(t, err)

	blockMesh := fakeTool(t, "blockMesh", `echo "Exec   : blockMesh -case mesh"; echo "Creating block mesh topology"; echo End`)
	snappyHexMesh := fakeTool(t, "snappyHexMesh", `echo "Exec   : snappyHexMesh -case mesh -overwrite"; echo "Refinement phase"; echo "Morphing phase"; echo End`)

	p, err := runner.Launch(context.Background(), runner.Command{
		Executable: "sh",
		Args:       []string{"mesh/Allmesh"},
		Dir:        root,
		Env:        []string{"BLOCK_MESH=" + blockMesh, "SNAPPY_HEX_MESH=" + snappyHexMesh},
	})
	require.NoError(t, err)
	defer p.Close()

	x := progress.NewMeshExtractor(progress.SnappyPhases)
	var events []progress.Event
	timeout := time.After(10 * time.Second)
	for done := false; !done; {
		select {
		case l, ok := <-p.Output():
			if !ok {
				done = true
				break
			}
			if ev, ok := x.Feed(l.Text); ok {
				events = append(events, ev)
			}
		case <-timeout:
			t.Fatal("Allmesh did not finish")
		}
	}
	require.True(t, p.Wait().Success())

	require.NotEmpty(t, events)
	for _, ev := range events[:len(events)-1] {
		assert.NotEqual(t, progress.Finished, ev.Kind)
	}
	last := events[len(events)-1]
	assert.Equal(t, progress.Finished, last.Kind)
	assert.True(t, last.Success)

	logged, err := os.ReadFile(filepath.Join(root, "mesh", "log.blockMesh"))
	require.NoError(t, err)
	assert.Contains(t, string(logged), "Creating block mesh topology")
}
