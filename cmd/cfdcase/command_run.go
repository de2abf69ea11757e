package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sourceplane/cfdcase/internal/loader"
	"github.com/sourceplane/cfdcase/internal/model"
	"github.com/sourceplane/cfdcase/internal/pipeline"
	"github.com/sourceplane/cfdcase/internal/progress"
	"github.com/sourceplane/cfdcase/internal/render"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Write a case and run the mesher and solver",
	Long:  "Write the mesh and solver sub-trees of a case and run each stage in order. Interrupt once to stop the active stage.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCase()
	},
}

func registerRunCommand(root *cobra.Command) {
	root.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&caseFile, "file", "f", "case.yaml", "Case file path")
	runCmd.Flags().StringVarP(&caseDir, "dir", "d", "", "Case directory (defaults to the case name)")
	runCmd.Flags().BoolVarP(&showProgress, "progress", "p", false, "Print every progress record")
}

func newController() *pipeline.Controller {
	return pipeline.NewController(pipeline.Options{
		Executables:  appConfig.Executables,
		GraceTimeout: appConfig.GraceTimeout,
		OutputTail:   appConfig.OutputTail,
		Logger:       logger,
	})
}

func runCase() error {
	fmt.Println("□ Loading case...")
	cfg, err := loader.LoadCase(caseFile)
	if err != nil {
		return err
	}

	ctrl := newController()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), appConfig.GraceTimeout+5*time.Second)
		defer cancel()
		_ = ctrl.Shutdown(ctx)
	}()

	id, err := ctrl.RequestRun(cfg, caseDirOrDefault(cfg.Name))
	if err != nil {
		return err
	}
	fmt.Printf("□ Run %s started\n", id)

	events, cancel, err := ctrl.Subscribe(id)
	if err != nil {
		return err
	}
	defer cancel()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	interrupted := sigCtx.Done()

loop:
	for {
		select {
		case <-interrupted:
			fmt.Println("□ Stopping...")
			if err := ctrl.RequestStop(id); err != nil {
				return err
			}
			interrupted = nil
		case ev, ok := <-events:
			if !ok {
				break loop
			}
			printEvent(ev)
		}
	}

	snap, err := ctrl.Wait(context.Background(), id)
	if err != nil {
		return err
	}
	fmt.Println("\n" + render.ViewSnapshot(snap))

	if snap.State != model.RunCompleted {
		return fmt.Errorf("run %s %s", id, snap.State)
	}
	fmt.Println("✓ Run complete")
	return nil
}

func printEvent(ev pipeline.Event) {
	switch ev.Type {
	case pipeline.EventState:
		mark := "□"
		if ev.JobState == model.JobCompleted {
			mark = "✓"
		} else if ev.JobState == model.JobFailed {
			mark = "✗"
		}
		fmt.Printf("%s %s %s\n", mark, ev.Stage, ev.JobState)
	case pipeline.EventProgress:
		if ev.Progress == nil {
			return
		}
		if showProgress || ev.Progress.Kind != progress.Progress {
			fmt.Printf("  %s: %s\n", ev.Stage, ev.Progress)
		}
	case pipeline.EventError:
		if ev.Error == nil {
			return
		}
		fmt.Printf("✗ %s: %s\n", ev.Stage, ev.Error.Message)
		for _, line := range ev.Error.OutputTail {
			fmt.Printf("    | %s\n", line)
		}
	}
}
