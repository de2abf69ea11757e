package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sourceplane/cfdcase/internal/casewriter"
	"github.com/sourceplane/cfdcase/internal/loader"
	"github.com/sourceplane/cfdcase/internal/render"
)

var validatePlanFile string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a case description or a generated plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		if validatePlanFile != "" {
			return validatePlan()
		}
		return validateCase()
	},
}

func registerValidateCommand(root *cobra.Command) {
	root.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&caseFile, "file", "f", "case.yaml", "Case file path")
	validateCmd.Flags().StringVarP(&validatePlanFile, "plan", "p", "", "Validate a plan file (json or yaml) instead of a case")
	validateCmd.Flags().StringVarP(&viewPlan, "view", "v", "", "View the validated plan (dag)")
}

func validateCase() error {
	fmt.Println("□ Loading case...")
	cfg, err := loader.LoadCase(caseFile)
	if err != nil {
		return err
	}
	fmt.Println("✓ Case matches the schema")

	fmt.Println("□ Checking case invariants...")
	if err := casewriter.Validate(cfg); err != nil {
		return err
	}

	fmt.Println("✓ All validation passed")
	return nil
}

func validatePlan() error {
	fmt.Println("□ Loading plan...")
	plan, err := loader.LoadPlan(validatePlanFile)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Plan is valid (%d stages)\n", len(plan.Stages))

	if viewPlan != "" {
		fmt.Println("\n" + render.NewPlanViewer(plan).ViewDAG())
	}
	return nil
}
