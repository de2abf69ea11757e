package pipeline

// ring keeps the last n output lines of a job
type ring struct {
	lines []string
	next  int
	full  bool
}

func newRing(n int) *ring {
	if n <= 0 {
		n = 1
	}
	return &ring{lines: make([]string, n)}
}

func (r *ring) add(line string) {
	r.lines[r.next] = line
	r.next = (r.next + 1) % len(r.lines)
	if r.next == 0 {
		r.full = true
	}
}

// tail returns the kept lines, oldest first
func (r *ring) tail() []string {
	if !r.full {
		return append([]string(nil), r.lines[:r.next]...)
	}
	out := make([]string, 0, len(r.lines))
	out = append(out, r.lines[r.next:]...)
	return append(out, r.lines[:r.next]...)
}
