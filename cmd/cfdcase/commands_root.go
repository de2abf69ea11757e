package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sourceplane/cfdcase/internal/config"
	"github.com/sourceplane/cfdcase/internal/logging"
	"github.com/sourceplane/cfdcase/internal/planner"
	"github.com/sourceplane/cfdcase/internal/validate"
)

var (
	configFile   string
	logLevel     string
	logFormat    string
	caseFile     string
	caseDir      string
	outputFile   string
	outputFormat string
	debugMode    bool
	viewPlan     string
	stageName    string
	longFormat   bool
	showProgress bool
)

var (
	appConfig *config.Config
	logger    *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "cfdcase",
	Short:         "CFD case preparation: case description → mesh and solver runs",
	Long:          "cfdcase turns a declarative CFD case into OpenFOAM case directories, runs the mesher and solver and reports their progress",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			cfg.Log.Format = logFormat
		}
		appConfig = cfg
		logger = logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (defaults to $CFDCASE_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug/info/warn/error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text/json)")

	registerValidateCommand(rootCmd)
	registerWriteCommand(rootCmd)
	registerPlanCommand(rootCmd)
	registerRunCommand(rootCmd)
	registerServeCommand(rootCmd)
	registerDebugCommand(rootCmd)
	registerBackendsCommand(rootCmd)
}

// Execute runs the root command and prints the error, with one line per
// violation for invalid cases
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printError(err)
	}
	return err
}

func printError(err error) {
	var verr *validate.ValidationError
	if errors.As(err, &verr) {
		fmt.Fprintf(os.Stderr, "✗ Case is invalid (%d violations):\n", len(verr.Violations))
		for _, v := range verr.Violations {
			fmt.Fprintf(os.Stderr, "  - %s\n", v)
		}
		return
	}
	fmt.Fprintf(os.Stderr, "✗ %v\n", err)
}

func newPlanner() *planner.StagePlanner {
	return planner.NewStagePlanner(appConfig.Executables)
}

// caseDirOrDefault returns the --dir flag or the case name
func caseDirOrDefault(name string) string {
	if caseDir != "" {
		return caseDir
	}
	return name
}
