package progress

import (
	"regexp"
	"strconv"
)

var (
	timePattern      = regexp.MustCompile(`^Time = ([-+0-9.eE]+)`)
	residualPattern  = regexp.MustCompile(`Solving for (\w+), Initial residual = ([-+0-9.eE]+)`)
	execTimePattern  = regexp.MustCompile(`^ExecutionTime = `)
	convergedPattern = regexp.MustCompile(`(SIMPLE|PIMPLE) solution converged`)
)

var solverPhases = []Phase{
	{regexp.MustCompile(`^Create mesh for time`), "reading mesh"},
	{regexp.MustCompile(`^Starting time loop`), "time loop"},
}

// SolverExtractor tracks time steps and initial residuals of a solver run
type SolverExtractor struct {
	common
	endTime   float64
	phase     string
	iteration int
	time      float64
	residuals map[string]float64
	fraction  float64
}

// NewSolverExtractor creates an extractor; endTime scales the reported fraction
func NewSolverExtractor(endTime float64) *SolverExtractor {
	return &SolverExtractor{endTime: endTime, fraction: -1}
}

// Feed classifies one output line
func (x *SolverExtractor) Feed(line string) (Event, bool) {
	if ev, ok := x.markers(line); ok {
		return ev, true
	}
	if x.errorBlock(line) {
		return Event{}, false
	}
	if convergedPattern.MatchString(line) {
		return x.finish(true)
	}
	if name, ok := matchPhase(solverPhases, line); ok && name != x.phase {
		x.phase = name
		return Event{Kind: StageChanged, Phase: name}, true
	}

	if m := timePattern.FindStringSubmatch(line); m != nil {
		if t, err := strconv.ParseFloat(m[1], 64); err == nil {
			x.iteration++
			x.time = t
			x.residuals = map[string]float64{}
		}
		return Event{}, false
	}
	if m := residualPattern.FindStringSubmatch(line); m != nil {
		if x.residuals == nil {
			return Event{}, false
		}
		// first solve of a field in a time step carries its initial residual
		if _, seen := x.residuals[m[1]]; !seen {
			if r, err := strconv.ParseFloat(m[2], 64); err == nil {
				x.residuals[m[1]] = r
			}
		}
		return Event{}, false
	}
	if execTimePattern.MatchString(line) && x.iteration > 0 {
		ev := Event{Kind: Progress, Phase: x.phase, Iteration: x.iteration, Time: x.time, Residuals: x.residuals}
		if x.endTime > 0 {
			if f := x.time / x.endTime; f > x.fraction {
				x.fraction = f
				ev.Fraction = fraction(f)
			}
		}
		x.residuals = map[string]float64{}
		return ev, true
	}
	return Event{}, false
}

// RequiresFinish is true: a solver that exits 0 without printing its
// final marker did not reach its end time
func (x *SolverExtractor) RequiresFinish() bool {
	return true
}
