// Package progress turns raw mesher and solver output into a small closed
// set of normalized events.
package progress

import (
	"fmt"
	"sort"
	"strings"
)

// Kind identifies the event type
type Kind string

const (
	Started       Kind = "started"
	StageChanged  Kind = "stageChanged"
	Progress      Kind = "progress"
	Warning       Kind = "warning"
	ErrorDetected Kind = "errorDetected"
	Finished      Kind = "finished"
)

// Event is one normalized signal derived from a line of output
type Event struct {
	Kind      Kind               `json:"kind" yaml:"kind"`
	Phase     string             `json:"phase,omitempty" yaml:"phase,omitempty"`
	Fraction  *float64           `json:"fraction,omitempty" yaml:"fraction,omitempty"`
	Iteration int                `json:"iteration,omitempty" yaml:"iteration,omitempty"`
	Time      float64            `json:"time,omitempty" yaml:"time,omitempty"`
	Residuals map[string]float64 `json:"residuals,omitempty" yaml:"residuals,omitempty"`
	Text      string             `json:"text,omitempty" yaml:"text,omitempty"`
	Success   bool               `json:"success,omitempty" yaml:"success,omitempty"`
}

func (e Event) String() string {
	switch e.Kind {
	case StageChanged:
		return "stage " + e.Phase
	case Progress:
		var parts []string
		if e.Fraction != nil {
			parts = append(parts, fmt.Sprintf("%.0f%%", *e.Fraction*100))
		}
		if e.Iteration > 0 {
			parts = append(parts, fmt.Sprintf("iteration %d", e.Iteration))
		}
		if e.Residuals != nil {
			fields := make([]string, 0, len(e.Residuals))
			for f := range e.Residuals {
				fields = append(fields, f)
			}
			sort.Strings(fields)
			for _, f := range fields {
				parts = append(parts, fmt.Sprintf("%s=%.3g", f, e.Residuals[f]))
			}
		}
		return "progress " + strings.Join(parts, " ")
	case Warning, ErrorDetected:
		return string(e.Kind) + ": " + e.Text
	case Finished:
		if e.Success {
			return "finished"
		}
		return "finished with failure"
	}
	return string(e.Kind)
}

// Extractor consumes output lines in arrival order. Instances keep state
// for one job and must not be shared between jobs.
type Extractor interface {
	Feed(line string) (Event, bool)
	// RequiresFinish reports whether a clean exit without a Finished event
	// counts as a failure.
	RequiresFinish() bool
}

func fraction(v float64) *float64 {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return &v
}
