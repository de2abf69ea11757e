package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sourceplane/cfdcase/internal/casewriter"
	"github.com/sourceplane/cfdcase/internal/loader"
	"github.com/sourceplane/cfdcase/internal/model"
	"github.com/sourceplane/cfdcase/internal/render"
)

var writeCmd = &cobra.Command{
	Use:   "write",
	Short: "Write the case directory of one stage without running it",
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeStage()
	},
}

func registerWriteCommand(root *cobra.Command) {
	root.AddCommand(writeCmd)

	writeCmd.Flags().StringVarP(&caseFile, "file", "f", "case.yaml", "Case file path")
	writeCmd.Flags().StringVarP(&caseDir, "dir", "d", "", "Case directory (defaults to the case name)")
	writeCmd.Flags().StringVarP(&stageName, "stage", "s", "mesh", "Stage to write (mesh/solve)")
}

func writeStage() error {
	stage := model.Stage(stageName)
	if !stage.Valid() {
		return fmt.Errorf("unknown stage %q", stageName)
	}

	fmt.Println("□ Loading case...")
	cfg, err := loader.LoadCase(caseFile)
	if err != nil {
		return err
	}

	dir := caseDirOrDefault(cfg.Name)
	fmt.Printf("□ Writing %s stage into %s...\n", stage, dir)
	cd, err := casewriter.NewWriter(logger).Write(cfg, stage, dir)
	if err != nil {
		return err
	}

	fmt.Printf("✓ Wrote %d files\n\n", len(cd.Files))
	fmt.Print(render.ViewCaseDirectory(cd))
	return nil
}
