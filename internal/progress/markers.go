package progress

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	fatalPattern   = regexp.MustCompile(`FOAM FATAL (IO )?ERROR|Floating point exception|Segmentation fault|Aborted \(core dumped\)`)
	warningPattern = regexp.MustCompile(`FOAM Warning`)
	endPattern     = regexp.MustCompile(`^\s*End\s*$`)
	execPattern    = regexp.MustCompile(`^\s*Exec\s*:`)
	exitingPattern = regexp.MustCompile(`FOAM (exiting|aborting)`)
	percentPattern = regexp.MustCompile(`^\s*(\d{1,3}(?:\.\d+)?)\s*%`)
)

// common holds the markers every OpenFOAM-family tool prints
type common struct {
	started  bool
	finished bool
	inError  bool
}

// markers classifies the shared markers, most specific first
func (c *common) markers(line string) (Event, bool) {
	if fatalPattern.MatchString(line) {
		c.inError = true
		return Event{Kind: ErrorDetected, Text: strings.TrimSpace(line)}, true
	}
	if endPattern.MatchString(line) {
		return c.finish(true)
	}
	if warningPattern.MatchString(line) {
		return Event{Kind: Warning, Text: strings.TrimSpace(line)}, true
	}
	if !c.started && execPattern.MatchString(line) {
		c.started = true
		return Event{Kind: Started, Text: strings.TrimSpace(line)}, true
	}
	return Event{}, false
}

// errorBlock reports whether line belongs to the body of a fatal error
// message. The block ends at a blank line or the FOAM exiting banner.
func (c *common) errorBlock(line string) bool {
	if !c.inError {
		return false
	}
	if strings.TrimSpace(line) == "" || exitingPattern.MatchString(line) {
		c.inError = false
	}
	return true
}

func (c *common) finish(success bool) (Event, bool) {
	if c.finished {
		return Event{}, false
	}
	c.finished = true
	return Event{Kind: Finished, Success: success}, true
}

// Phase maps an output pattern to a named phase
type Phase struct {
	Pattern *regexp.Regexp
	Name    string
}

func matchPhase(phases []Phase, line string) (string, bool) {
	for _, p := range phases {
		if p.Pattern.MatchString(line) {
			return p.Name, true
		}
	}
	return "", false
}

func parsePercent(line string) (float64, bool) {
	m := percentPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v > 100 {
		return 0, false
	}
	return v / 100, true
}
