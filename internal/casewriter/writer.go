// Package casewriter turns a case configuration into the on-disk sub-tree of
// one pipeline stage. A stage sub-tree is replaced as a whole: it is written
// into a temporary sibling directory first and swapped in only when every
// file has been written.
package casewriter

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sourceplane/cfdcase/internal/foam"
	"github.com/sourceplane/cfdcase/internal/mesher"
	"github.com/sourceplane/cfdcase/internal/model"
	"github.com/sourceplane/cfdcase/internal/solver"
	"github.com/sourceplane/cfdcase/internal/validate"
)

// CaseDirectory describes a written stage sub-tree
type CaseDirectory struct {
	Root    string
	Stage   model.Stage
	Subtree string
	// Files are relative to Subtree, in write order
	Files []string
}

// WriteError is an I/O failure while writing a stage. The previous sub-tree,
// if any, is left in place.
type WriteError struct {
	Stage model.Stage
	Path  string
	Err   error
}

func (e *WriteError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("failed to write %s stage: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("failed to write %s stage at %s: %v", e.Stage, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Validate checks every invariant of the case, including the rules of the
// selected mesh backend and of the solve stage
func Validate(cfg model.CaseConfig) error {
	return validate.Case(cfg, mesher.Rule, solver.Rule)
}

// Documents returns the files of one stage sub-tree in write order
func Documents(cfg model.CaseConfig, stage model.Stage) ([]foam.Document, error) {
	switch stage {
	case model.StageMesh:
		backend, err := mesher.For(cfg.Mesh.Backend)
		if err != nil {
			return nil, err
		}
		return backend.Documents(cfg)
	case model.StageSolve:
		return solver.Documents(cfg)
	}
	return nil, fmt.Errorf("unknown stage %q", stage)
}

// Writer writes stage sub-trees
type Writer struct {
	logger    *slog.Logger
	writeFile func(name string, data []byte, perm os.FileMode) error
	rename    func(from, to string) error
}

// NewWriter creates a writer that logs to logger
func NewWriter(logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		logger:    logger,
		writeFile: os.WriteFile,
		rename:    os.Rename,
	}
}

// Write validates cfg and writes the sub-tree of stage under targetDir
func Write(cfg model.CaseConfig, stage model.Stage, targetDir string) (*CaseDirectory, error) {
	return NewWriter(nil).Write(cfg, stage, targetDir)
}

// Write validates cfg and writes the sub-tree of stage under targetDir.
// Validation failures are returned as *validate.ValidationError before any
// file is touched; I/O failures as *WriteError.
func (w *Writer) Write(cfg model.CaseConfig, stage model.Stage, targetDir string) (*CaseDirectory, error) {
	if !stage.Valid() {
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	docs, err := Documents(cfg, stage)
	if err != nil {
		return nil, &WriteError{Stage: stage, Err: err}
	}

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return nil, &WriteError{Stage: stage, Path: targetDir, Err: err}
	}
	subtree := stage.Subtree()
	tmp, err := os.MkdirTemp(targetDir, "."+subtree+"-")
	if err != nil {
		return nil, &WriteError{Stage: stage, Path: targetDir, Err: err}
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(tmp)
		}
	}()

	files := make([]string, 0, len(docs)+1)
	for _, doc := range docs {
		if err := w.writeDocument(tmp, doc); err != nil {
			return nil, &WriteError{Stage: stage, Path: doc.Path, Err: err}
		}
		files = append(files, doc.Path)
	}
	if stage == model.StageMesh && cfg.Mesh.SurfaceFile != "" {
		rel := mesher.SurfacePath(cfg)
		if err := w.copySurface(cfg.Mesh.SurfaceFile, filepath.Join(tmp, filepath.FromSlash(rel))); err != nil {
			return nil, &WriteError{Stage: stage, Path: rel, Err: err}
		}
		files = append(files, rel)
	}

	final := filepath.Join(targetDir, subtree)
	if err := w.swap(tmp, final); err != nil {
		return nil, &WriteError{Stage: stage, Path: final, Err: err}
	}
	committed = true

	w.logger.Debug("stage written", "stage", stage, "dir", final, "files", len(files))
	return &CaseDirectory{Root: targetDir, Stage: stage, Subtree: final, Files: files}, nil
}

func (w *Writer) writeDocument(root string, doc foam.Document) error {
	path := filepath.Join(root, filepath.FromSlash(doc.Path))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if doc.Link != "" {
		return os.Symlink(doc.Link, path)
	}
	data, err := doc.Bytes()
	if err != nil {
		return err
	}
	perm := os.FileMode(0o644)
	if doc.Executable {
		perm = 0o755
	}
	return w.writeFile(path, data, perm)
}

func (w *Writer) copySurface(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read surface file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return w.writeFile(dst, data, 0o644)
}

// swap moves tmp to final. An existing final is moved aside first and
// restored if the move fails.
func (w *Writer) swap(tmp, final string) error {
	aside := ""
	if _, err := os.Lstat(final); err == nil {
		aside = tmp + ".old"
		if err := w.rename(final, aside); err != nil {
			return fmt.Errorf("failed to move previous sub-tree aside: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if err := w.rename(tmp, final); err != nil {
		if aside != "" {
			if rerr := w.rename(aside, final); rerr != nil {
				w.logger.Error("failed to restore previous sub-tree", "dir", final, "error", rerr)
			}
		}
		return fmt.Errorf("failed to move sub-tree into place: %w", err)
	}
	if aside != "" {
		if err := os.RemoveAll(aside); err != nil {
			w.logger.Warn("failed to remove previous sub-tree", "dir", aside, "error", err)
		}
	}
	return nil
}

// MeshPatches returns the patch names of the mesh built under root. ok is
// false when the mesh has no boundary file yet.
func MeshPatches(root string) (patches []string, ok bool, err error) {
	path := filepath.Join(root, model.StageMesh.Subtree(), "constant", "polyMesh", "boundary")
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read mesh boundary: %w", err)
	}
	patches, err = foam.BoundaryPatchNames(data)
	if err != nil {
		return nil, false, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return patches, true, nil
}

// MissingPatches returns the patches bound by boundary conditions that the
// built mesh does not carry
func MissingPatches(cfg model.CaseConfig, meshPatches []string) []string {
	have := make(map[string]bool, len(meshPatches))
	for _, p := range meshPatches {
		have[p] = true
	}
	var missing []string
	for _, bc := range cfg.Boundaries {
		if !have[bc.Patch] {
			missing = append(missing, bc.Patch)
		}
	}
	return missing
}
