package render

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sourceplane/cfdcase/internal/casewriter"
	"github.com/sourceplane/cfdcase/internal/model"
	"github.com/sourceplane/cfdcase/internal/pipeline"
)

const rule = "═══════════════════════════════════════════════════════════\n"

// PlanViewer provides human-readable visualization of a stage plan
type PlanViewer struct {
	plan *model.Plan
}

// NewPlanViewer creates a new plan viewer
func NewPlanViewer(plan *model.Plan) *PlanViewer {
	return &PlanViewer{plan: plan}
}

// ViewDAG returns a tree view of the stages, their commands and files
func (pv *PlanViewer) ViewDAG() string {
	if len(pv.plan.Stages) == 0 {
		return "No stages in plan"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s [%s → %s]\n", pv.plan.Metadata.Name, pv.plan.Spec.Backend, pv.plan.Spec.Application)

	files := 0
	for i, st := range pv.plan.Stages {
		isLastStage := i == len(pv.plan.Stages)-1
		stagePrefix := "├─ "
		connector := "│  "
		if isLastStage {
			stagePrefix = "└─ "
			connector = "   "
		}
		fmt.Fprintf(&sb, "%s%s (%s/)\n", stagePrefix, st.Stage, st.Subtree)

		// Truncate long commands for readability
		cmd := strings.TrimSpace(st.Executable + " " + strings.Join(st.Args, " "))
		if len(cmd) > 60 {
			cmd = cmd[:57] + "..."
		}
		fmt.Fprintf(&sb, "%s├─ run: %s\n", connector, cmd)
		for _, dep := range st.DependsOn {
			fmt.Fprintf(&sb, "%s├─ (depends on) %s\n", connector, dep)
		}

		sorted := append([]string(nil), st.Files...)
		sort.Strings(sorted)
		for j, f := range sorted {
			filePrefix := "├─ "
			if j == len(sorted)-1 {
				filePrefix = "└─ "
			}
			fmt.Fprintf(&sb, "%s%s%s\n", connector, filePrefix, f)
		}
		files += len(st.Files)
	}

	sb.WriteString(rule)
	fmt.Fprintf(&sb, "Summary: %d stages, %d files\n", len(pv.plan.Stages), files)
	return sb.String()
}

// ViewCaseDirectory lists a written stage sub-tree with file sizes
func ViewCaseDirectory(cd *casewriter.CaseDirectory) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s → %s\n", cd.Stage, cd.Subtree)

	var total uint64
	for i, f := range cd.Files {
		prefix := "├─ "
		if i == len(cd.Files)-1 {
			prefix = "└─ "
		}
		size := "-"
		if info, err := os.Lstat(filepath.Join(cd.Subtree, filepath.FromSlash(f))); err == nil && info.Mode().IsRegular() {
			size = humanize.Bytes(uint64(info.Size()))
			total += uint64(info.Size())
		} else if err == nil && info.Mode()&os.ModeSymlink != 0 {
			size = "link"
		}
		fmt.Fprintf(&sb, "%s%-40s %8s\n", prefix, f, size)
	}
	sb.WriteString(rule)
	fmt.Fprintf(&sb, "Summary: %d files, %s\n", len(cd.Files), humanize.Bytes(total))
	return sb.String()
}

// ViewSnapshot summarizes the state of a run
func ViewSnapshot(snap pipeline.Snapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Run %s [%s]\n", snap.RunID, snap.State)
	fmt.Fprintf(&sb, "Case: %s\n", snap.CaseDir)

	for i, j := range snap.Jobs {
		prefix := "├─ "
		connector := "│  "
		if i == len(snap.Jobs)-1 {
			prefix = "└─ "
			connector = "   "
		}
		line := fmt.Sprintf("%s%s %s", prefix, j.Stage, j.State)
		if !j.StartedAt.IsZero() {
			end := j.FinishedAt
			if end.IsZero() {
				end = time.Now()
			}
			line += fmt.Sprintf(" (started %s, %s)", humanize.Time(j.StartedAt), end.Sub(j.StartedAt).Round(time.Second))
		}
		sb.WriteString(line + "\n")
		if j.LastProgress != nil {
			fmt.Fprintf(&sb, "%s  %s\n", connector, j.LastProgress)
		}
		if j.Error != nil {
			fmt.Fprintf(&sb, "%s  error (%s): %s\n", connector, j.Error.Kind, j.Error.Message)
			for _, v := range j.Error.Violations {
				fmt.Fprintf(&sb, "%s    %s\n", connector, v)
			}
		}
	}
	return sb.String()
}
