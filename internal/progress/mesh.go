package progress

import "regexp"

// MeshExtractor follows a mesher through its phase table and reports
// percentages printed on their own lines.
type MeshExtractor struct {
	common
	phases   []Phase
	phase    string
	fraction float64
}

// NewMeshExtractor creates an extractor for one mesher run
func NewMeshExtractor(phases []Phase) *MeshExtractor {
	return &MeshExtractor{phases: phases, fraction: -1}
}

// Feed classifies one output line
func (x *MeshExtractor) Feed(line string) (Event, bool) {
	if ev, ok := x.markers(line); ok {
		return ev, true
	}
	if x.errorBlock(line) {
		return Event{}, false
	}
	if name, ok := matchPhase(x.phases, line); ok && name != x.phase {
		x.phase = name
		return Event{Kind: StageChanged, Phase: name}, true
	}
	if f, ok := parsePercent(line); ok {
		// fractions only move forward
		if f <= x.fraction {
			return Event{}, false
		}
		x.fraction = f
		return Event{Kind: Progress, Phase: x.phase, Fraction: fraction(f)}, true
	}
	return Event{}, false
}

// RequiresFinish is false: meshers are judged by exit code and error markers
func (x *MeshExtractor) RequiresFinish() bool {
	return false
}

// CfMeshPhases is the phase table of cartesianMesh
var CfMeshPhases = []Phase{
	{regexp.MustCompile(`(?i)^\s*(creating polymesh from octree|generating initial mesh)`), "initial mesh"},
	{regexp.MustCompile(`(?i)^\s*(generating|refining|creating) (the )?octree`), "octree"},
	{regexp.MustCompile(`(?i)^\s*(mapping (the )?mesh to (the )?(geometry|surface)|surface mapping)`), "surface mapping"},
	{regexp.MustCompile(`(?i)^\s*(optimi[sz]ing (the )?mesh|mesh optimi[sz]ation)`), "optimisation"},
	{regexp.MustCompile(`(?i)^\s*(adding|generating|extruding) (the )?boundary layers?`), "boundary layers"},
	{regexp.MustCompile(`(?i)^\s*writing (the )?mesh`), "writing mesh"},
}

// SnappyPhases is the phase table of blockMesh followed by snappyHexMesh
var SnappyPhases = []Phase{
	{regexp.MustCompile(`^Creating block mesh`), "background mesh"},
	{regexp.MustCompile(`^Refinement phase`), "refinement"},
	{regexp.MustCompile(`^Morphing phase|^Snapping`), "snapping"},
	{regexp.MustCompile(`^Shrinking and layer addition phase|^Layer addition`), "layer addition"},
	{regexp.MustCompile(`^Writing mesh to time|^Mesh refined in`), "writing mesh"},
}

// BlockMeshPhases is the phase table of blockMesh
var BlockMeshPhases = []Phase{
	{regexp.MustCompile(`^Creating block mesh`), "creating block mesh"},
	{regexp.MustCompile(`^Creating polyMesh from blockMesh`), "creating polyMesh"},
	{regexp.MustCompile(`^Writing polyMesh`), "writing polyMesh"},
}
