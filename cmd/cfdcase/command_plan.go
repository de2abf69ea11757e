package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sourceplane/cfdcase/internal/casewriter"
	"github.com/sourceplane/cfdcase/internal/loader"
	"github.com/sourceplane/cfdcase/internal/render"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Generate the stage plan of a case",
	RunE: func(cmd *cobra.Command, args []string) error {
		return generatePlan()
	},
}

func registerPlanCommand(root *cobra.Command) {
	root.AddCommand(planCmd)

	planCmd.Flags().StringVarP(&caseFile, "file", "f", "case.yaml", "Case file path")
	planCmd.Flags().StringVarP(&caseDir, "dir", "d", "", "Case directory (defaults to the case name)")
	planCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output plan file path (json or yaml by extension)")
	planCmd.Flags().StringVar(&outputFormat, "format", "json", "Format for printing the plan without --output (json/yaml)")
	planCmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug output")
	planCmd.Flags().StringVarP(&viewPlan, "view", "v", "", "View plan (dag)")
}

func generatePlan() error {
	fmt.Println("□ Loading case...")
	cfg, err := loader.LoadCase(caseFile)
	if err != nil {
		return err
	}

	fmt.Println("□ Validating case...")
	if err := casewriter.Validate(cfg); err != nil {
		return err
	}

	fmt.Println("□ Resolving stages...")
	plan, err := newPlanner().Plan(cfg, caseDirOrDefault(cfg.Name))
	if err != nil {
		return fmt.Errorf("failed to plan stages: %w", err)
	}

	renderer := render.NewRenderer()
	if debugMode {
		fmt.Println("\n" + renderer.DebugDump(plan))
	}

	if outputFile != "" {
		if err := renderer.WritePlan(plan, outputFile); err != nil {
			return fmt.Errorf("failed to write plan: %w", err)
		}
		fmt.Printf("✓ Plan generated with %d stages\n", len(plan.Stages))
		fmt.Printf("✓ Saved to: %s\n", outputFile)
	} else if viewPlan == "" {
		data, err := renderer.Render(plan, outputFormat)
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	}

	if viewPlan != "" {
		fmt.Println("\n" + render.NewPlanViewer(plan).ViewDAG())
	}
	return nil
}
