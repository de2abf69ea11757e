package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sourceplane/cfdcase/internal/casewriter"
	"github.com/sourceplane/cfdcase/internal/loader"
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Print a case after defaults are applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		return debugCase()
	},
}

func registerDebugCommand(root *cobra.Command) {
	root.AddCommand(debugCmd)

	debugCmd.Flags().StringVarP(&caseFile, "file", "f", "case.yaml", "Case file path")
	debugCmd.Flags().StringVarP(&caseDir, "dir", "d", "", "Case directory whose mesh patches are checked")
}

func debugCase() error {
	fmt.Println("□ Loading and normalizing...")
	cfg, err := loader.LoadCase(caseFile)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal case: %w", err)
	}
	fmt.Println("\n" + string(data))

	fmt.Printf("Patches: %v\n", cfg.Mesh.PatchNames())
	if caseDir == "" {
		return nil
	}

	patches, ok, err := casewriter.MeshPatches(caseDir)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("Mesh: not generated yet")
		return nil
	}
	fmt.Printf("Mesh patches: %v\n", patches)
	if missing := casewriter.MissingPatches(cfg, patches); len(missing) > 0 {
		fmt.Printf("Missing in mesh: %v\n", missing)
	}
	return nil
}
