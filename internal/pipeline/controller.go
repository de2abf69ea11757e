// Package pipeline runs the stages of a case as a state machine. Every run
// has one control loop goroutine; stop requests, output lines and process
// exits are queued to it and handled in arrival order.
package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sourceplane/cfdcase/internal/casewriter"
	"github.com/sourceplane/cfdcase/internal/logging"
	"github.com/sourceplane/cfdcase/internal/model"
	"github.com/sourceplane/cfdcase/internal/planner"
	"github.com/sourceplane/cfdcase/internal/progress"
	"github.com/sourceplane/cfdcase/internal/runner"
	"github.com/sourceplane/cfdcase/internal/validate"
)

const (
	DefaultGraceTimeout = 10 * time.Second
	DefaultOutputTail   = 200
)

// Process is a supervised stage process
type Process interface {
	Pid() int
	Output() <-chan runner.Line
	Wait() runner.ExitStatus
	Stop(grace time.Duration)
	Close()
}

// Launcher starts stage processes
type Launcher interface {
	Launch(ctx context.Context, c runner.Command) (Process, error)
}

// ProcessLauncher launches local processes
type ProcessLauncher struct{}

func (ProcessLauncher) Launch(ctx context.Context, c runner.Command) (Process, error) {
	p, err := runner.Launch(ctx, c)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Options configure a Controller
type Options struct {
	Launcher Launcher
	// Executables maps a tool name to the executable to run; a missing or
	// empty entry means a PATH lookup of the tool name
	Executables  map[string]string
	GraceTimeout time.Duration
	OutputTail   int
	Logger       *slog.Logger
	Metrics      *Metrics
}

// Controller owns every pipeline run
type Controller struct {
	opts    Options
	planner *planner.StagePlanner
	writer  *casewriter.Writer
	logger  *slog.Logger

	mu     sync.Mutex
	runs   map[string]*run
	closed bool
	wg     sync.WaitGroup
}

// NewController creates a controller; zero options get defaults
func NewController(opts Options) *Controller {
	if opts.Launcher == nil {
		opts.Launcher = ProcessLauncher{}
	}
	if opts.GraceTimeout <= 0 {
		opts.GraceTimeout = DefaultGraceTimeout
	}
	if opts.OutputTail <= 0 {
		opts.OutputTail = DefaultOutputTail
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Controller{
		opts:    opts,
		planner: planner.NewStagePlanner(opts.Executables),
		writer:  casewriter.NewWriter(opts.Logger),
		logger:  opts.Logger,
		runs:    make(map[string]*run),
	}
}

// JobSnapshot is the observable state of one job
type JobSnapshot struct {
	Stage        model.Stage     `json:"stage"`
	State        model.JobState  `json:"state"`
	Command      string          `json:"command"`
	Pid          int             `json:"pid,omitempty"`
	LastProgress *progress.Event `json:"lastProgress,omitempty"`
	ExitCode     *int            `json:"exitCode,omitempty"`
	Error        *ErrorPayload   `json:"error,omitempty"`
	OutputTail   []string        `json:"outputTail,omitempty"`
	StartedAt    time.Time       `json:"startedAt,omitempty"`
	FinishedAt   time.Time       `json:"finishedAt,omitempty"`
}

// Snapshot is the observable state of a run. Stage, JobState and
// LastProgress describe the active job, or the last one once the run ended.
type Snapshot struct {
	RunID        string          `json:"runId"`
	CaseDir      string          `json:"caseDir"`
	State        model.RunState  `json:"state"`
	Stage        model.Stage     `json:"stage"`
	JobState     model.JobState  `json:"jobState"`
	LastProgress *progress.Event `json:"lastProgress,omitempty"`
	Jobs         []JobSnapshot   `json:"jobs"`
}

type job struct {
	step      planner.Step
	state     model.JobState
	proc      Process
	extractor progress.Extractor
	output    *ring
	logFile   *os.File
	log       *bufio.Writer
	logBroken bool

	last         *progress.Event
	pendingError string
	finished     *bool
	exit         *runner.ExitStatus
	err          *ErrorPayload
	started      time.Time
	ended        time.Time
}

type run struct {
	id     string
	cfg    model.CaseConfig
	dir    string
	logger *slog.Logger

	// owned by the control loop
	jobs        []*job
	current     int
	state       model.RunState
	stopping    bool
	outstanding int

	stopRequested atomic.Bool
	inbox         *mailbox[message]
	events        *bus
	done          chan struct{}

	mu   sync.Mutex
	snap Snapshot
}

type message interface{}

type (
	startMsg    struct{}
	stopMsg     struct{}
	launchedMsg struct {
		index   int
		proc    Process
		logFile *os.File
		warning string
		err     error
	}
	lineMsg struct {
		index int
		line  runner.Line
	}
	exitMsg struct {
		index  int
		status runner.ExitStatus
	}
)

// RequestRun validates cfg and starts a run writing into dir. Validation
// errors are returned at once as *validate.ValidationError; everything
// later is reported through the run's state and events.
func (c *Controller) RequestRun(cfg model.CaseConfig, dir string) (string, error) {
	if err := casewriter.Validate(cfg); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve case directory: %w", err)
	}
	steps, err := c.planner.Steps(cfg, abs)
	if err != nil {
		return "", fmt.Errorf("failed to plan run: %w", err)
	}

	id := uuid.NewString()
	r := &run{
		id:     id,
		cfg:    cfg,
		dir:    abs,
		logger: c.logger.With("run_id", id),
		state:  model.RunPending,
		inbox:  newMailbox[message](),
		events: newBus(),
		done:   make(chan struct{}),
	}
	for _, step := range steps {
		r.jobs = append(r.jobs, &job{
			step:      step,
			state:     model.JobPending,
			extractor: step.NewExtractor(),
			output:    newRing(c.opts.OutputTail),
		})
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrShutdown
	}
	c.runs[id] = r
	c.wg.Add(1)
	c.mu.Unlock()

	if m := c.opts.Metrics; m != nil {
		m.RunsStarted.Inc()
		m.RunsActive.Inc()
	}
	r.logger.Info("run requested", "dir", abs, "backend", cfg.Mesh.Backend)
	r.publishState(r.jobs[0])
	r.updateSnapshot()

	go c.loop(r)
	r.inbox.push(startMsg{})
	return id, nil
}

// RequestStop asks the run to stop. It returns at once; stopping a finished
// or already stopping run is a no-op.
func (c *Controller) RequestStop(runID string) error {
	r, err := c.lookup(runID)
	if err != nil {
		return err
	}
	r.stopRequested.Store(true)
	r.inbox.push(stopMsg{})
	return nil
}

// QueryState returns the latest snapshot of a run
func (c *Controller) QueryState(runID string) (Snapshot, error) {
	r, err := c.lookup(runID)
	if err != nil {
		return Snapshot{}, err
	}
	return r.snapshot(), nil
}

// Subscribe returns the run's event stream. The first event is the latest
// one published; the channel is closed when the run ends or cancel is
// called.
func (c *Controller) Subscribe(runID string) (<-chan Event, func(), error) {
	r, err := c.lookup(runID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := r.events.subscribe()
	return ch, cancel, nil
}

// Wait blocks until the run is terminal and its processes are reaped
func (c *Controller) Wait(ctx context.Context, runID string) (Snapshot, error) {
	r, err := c.lookup(runID)
	if err != nil {
		return Snapshot{}, err
	}
	select {
	case <-r.done:
		return r.snapshot(), nil
	case <-ctx.Done():
		return r.snapshot(), ctx.Err()
	}
}

// Runs returns the ids of all known runs
func (c *Controller) Runs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.runs))
	for id := range c.runs {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown stops every run and waits for their processes to be reaped
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	runs := make([]*run, 0, len(c.runs))
	for _, r := range c.runs {
		runs = append(runs, r)
	}
	c.mu.Unlock()

	for _, r := range runs {
		r.stopRequested.Store(true)
		r.inbox.push(stopMsg{})
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to stop all runs: %w", ctx.Err())
	}
}

func (c *Controller) lookup(runID string) (*run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return r, nil
}

func (c *Controller) loop(r *run) {
	defer c.wg.Done()
	defer close(r.done)

	for {
		msg, ok := r.inbox.pop()
		if !ok {
			break
		}
		c.handle(r, msg)
		r.updateSnapshot()
		if r.state.Terminal() && r.outstanding == 0 {
			break
		}
	}
	r.inbox.close()
	r.events.close()
	r.logger.Info("run finished", "state", r.state)
}

func (c *Controller) handle(r *run, msg message) {
	switch m := msg.(type) {
	case startMsg:
		c.startStage(r, 0)
	case stopMsg:
		c.handleStop(r)
	case launchedMsg:
		c.handleLaunched(r, m)
	case lineMsg:
		c.handleLine(r, m)
	case exitMsg:
		c.handleExit(r, m)
	}
}

func (c *Controller) startStage(r *run, index int) {
	r.current = index
	j := r.jobs[index]
	r.logger.Info("stage starting", "stage", j.step.Stage, "command", j.step.Command.String())
	r.publishState(j)
	r.outstanding++
	go c.prepare(r, index)
}

// prepare writes the stage sub-tree and launches its process off the
// control loop, then reports back with a launchedMsg
func (c *Controller) prepare(r *run, index int) {
	step := r.jobs[index].step
	msg := launchedMsg{index: index}
	defer func() {
		if !r.inbox.push(msg) {
			if msg.proc != nil {
				msg.proc.Close()
			}
			if msg.logFile != nil {
				msg.logFile.Close()
			}
		}
	}()

	if step.Stage == model.StageSolve {
		patches, ok, err := casewriter.MeshPatches(r.dir)
		switch {
		case err != nil:
			msg.warning = err.Error()
		case !ok:
			msg.warning = "mesh boundary file not found; patch names not checked"
		default:
			if err := checkPatches(r.cfg, patches); err != nil {
				msg.err = err
				return
			}
		}
	}

	if _, err := c.writer.Write(r.cfg, step.Stage, r.dir); err != nil {
		msg.err = err
		return
	}
	if r.stopRequested.Load() {
		return
	}

	logPath := filepath.Join(r.dir, step.Stage.Subtree(), "log."+step.Tool)
	logFile, err := os.Create(logPath)
	if err != nil {
		msg.err = &casewriter.WriteError{Stage: step.Stage, Path: logPath, Err: err}
		return
	}

	ctx := logging.WithLogger(context.Background(), r.logger.With("stage", step.Stage))
	proc, err := c.opts.Launcher.Launch(ctx, step.Command)
	if err != nil {
		logFile.Close()
		msg.err = err
		return
	}
	msg.proc = proc
	msg.logFile = logFile
}

func checkPatches(cfg model.CaseConfig, meshPatches []string) error {
	missing := casewriter.MissingPatches(cfg, meshPatches)
	if len(missing) == 0 {
		return nil
	}
	r := &validate.Report{}
	for i, bc := range cfg.Boundaries {
		for _, p := range missing {
			if bc.Patch == p {
				r.Add(fmt.Sprintf("boundaries[%d].patch", i), "patch %q not found in the built mesh", p)
				break
			}
		}
	}
	return r.Err()
}

func (c *Controller) handleLaunched(r *run, m launchedMsg) {
	r.outstanding--
	j := r.jobs[m.index]
	if m.warning != "" {
		r.publishProgress(j, progress.Event{Kind: progress.Warning, Text: m.warning})
	}

	if m.err != nil || m.proc == nil {
		if j.state == model.JobPending && r.stopRequested.Load() {
			// the stop overtook the launch
			r.stopping = true
			r.state = model.RunStopping
			c.setJobState(r, j, model.JobStopping)
		}
		if j.state == model.JobStopping {
			var payload *ErrorPayload
			if m.err != nil {
				payload = newPayload(m.err, nil)
			}
			c.finishJob(r, m.index, model.JobCancelled, payload)
			return
		}
		r.logger.Error("stage failed to start", "stage", j.step.Stage, "error", m.err)
		c.finishJob(r, m.index, model.JobFailed, newPayload(m.err, nil))
		return
	}

	j.proc = m.proc
	j.logFile = m.logFile
	j.log = bufio.NewWriter(m.logFile)
	j.started = time.Now()
	r.outstanding++
	go c.pump(r, m.index, m.proc)

	if j.state == model.JobStopping {
		m.proc.Stop(c.opts.GraceTimeout)
		return
	}
	if r.state == model.RunPending {
		r.state = model.RunRunning
	}
	r.logger.Info("stage running", "stage", j.step.Stage, "pid", m.proc.Pid())
	c.setJobState(r, j, model.JobRunning)
}

// pump forwards a process's output and exit status to the control loop
func (c *Controller) pump(r *run, index int, proc Process) {
	for line := range proc.Output() {
		r.inbox.push(lineMsg{index: index, line: line})
	}
	r.inbox.push(exitMsg{index: index, status: proc.Wait()})
}

func (c *Controller) handleLine(r *run, m lineMsg) {
	j := r.jobs[m.index]
	stage := j.step.Stage
	if m.line.Err != nil {
		text := fmt.Sprintf("%s stream lost: %v", m.line.Stream, m.line.Err)
		j.output.add(text)
		r.logger.Warn("output stream lost", "stage", stage, "error", m.line.Err)
		r.publishProgress(j, progress.Event{Kind: progress.Warning, Text: text})
		return
	}

	j.output.add(m.line.Text)
	r.writeLog(j, m.line.Text)
	if met := c.opts.Metrics; met != nil {
		met.OutputLines.WithLabelValues(string(stage)).Inc()
	}

	ev, ok := j.extractor.Feed(m.line.Text)
	if !ok {
		return
	}
	switch ev.Kind {
	case progress.ErrorDetected:
		j.pendingError = ev.Text
	case progress.StageChanged:
		// a new phase marker after the error block means the tool carried
		// on; a percentage alone never does
		if j.pendingError != "" {
			r.logger.Info("stage recovered from error marker", "stage", stage, "marker", j.pendingError)
			j.pendingError = ""
		}
	case progress.Finished:
		success := ev.Success
		j.finished = &success
	}
	if met := c.opts.Metrics; met != nil {
		met.Events.WithLabelValues(string(stage), string(ev.Kind)).Inc()
	}
	r.publishProgress(j, ev)
}

func (c *Controller) handleExit(r *run, m exitMsg) {
	r.outstanding--
	j := r.jobs[m.index]
	status := m.status
	j.exit = &status
	j.ended = time.Now()
	r.closeLog(j)
	j.proc.Close()

	marker, ok := completion(j, status)
	r.logger.Info("stage exited", "stage", j.step.Stage, "status", status.String(), "completed", ok)

	if j.state == model.JobStopping {
		// last exit status wins
		if ok {
			c.finishJob(r, m.index, model.JobCompleted, nil)
			return
		}
		c.finishJob(r, m.index, model.JobCancelled, nil)
		return
	}
	if !ok {
		failure := &ProcessFailure{Stage: j.step.Stage, Exit: status, Marker: marker}
		c.finishJob(r, m.index, model.JobFailed, newPayload(failure, j.output.tail()))
		return
	}
	c.finishJob(r, m.index, model.JobCompleted, nil)
}

func (r *run) writeLog(j *job, text string) {
	if j.log == nil || j.logBroken {
		return
	}
	_, err := j.log.WriteString(text)
	if err == nil {
		err = j.log.WriteByte('\n')
	}
	r.logWriteFailed(j, err)
}

func (r *run) closeLog(j *job) {
	if j.log == nil {
		return
	}
	if !j.logBroken {
		r.logWriteFailed(j, j.log.Flush())
	}
	if j.logFile != nil {
		j.logFile.Close()
	}
	j.log = nil
}

// logWriteFailed warns once per job; the stage keeps running without its log
func (r *run) logWriteFailed(j *job, err error) {
	if err == nil || j.logBroken {
		return
	}
	j.logBroken = true
	r.logger.Warn("stage log write failed", "stage", j.step.Stage, "error", err)
}

// completion decides whether an exited job completed. marker explains a
// clean exit that still counts as a failure.
func completion(j *job, status runner.ExitStatus) (marker string, ok bool) {
	switch {
	case !status.Success():
		return j.pendingError, false
	case j.pendingError != "":
		return j.pendingError, false
	case j.finished != nil && !*j.finished:
		return "process reported an unsuccessful finish", false
	case j.finished == nil && j.extractor.RequiresFinish():
		return "process exited without a completion marker", false
	}
	return "", true
}

func (c *Controller) handleStop(r *run) {
	if r.state.Terminal() || r.stopping {
		return
	}
	r.stopping = true
	r.state = model.RunStopping
	j := r.jobs[r.current]
	r.logger.Info("stop requested", "stage", j.step.Stage, "job_state", j.state)

	switch j.state {
	case model.JobPending:
		// the launch is still in flight; handleLaunched stops it
		c.setJobState(r, j, model.JobStopping)
	case model.JobRunning:
		c.setJobState(r, j, model.JobStopping)
		j.proc.Stop(c.opts.GraceTimeout)
	}
}

func (c *Controller) setJobState(r *run, j *job, state model.JobState) {
	j.state = state
	r.publishState(j)
}

// finishJob moves the job to a terminal state and advances or halts the run
func (c *Controller) finishJob(r *run, index int, state model.JobState, payload *ErrorPayload) {
	j := r.jobs[index]
	j.err = payload
	if j.ended.IsZero() {
		j.ended = time.Now()
	}
	if met := c.opts.Metrics; met != nil {
		met.JobsFinished.WithLabelValues(string(j.step.Stage), string(state)).Inc()
		if !j.started.IsZero() {
			met.JobDuration.WithLabelValues(string(j.step.Stage), string(state)).Observe(j.ended.Sub(j.started).Seconds())
		}
	}

	next := index + 1
	switch {
	case state == model.JobCompleted && next < len(r.jobs) && !r.stopping:
		c.setJobState(r, j, state)
		c.startStage(r, next)
		return
	case state == model.JobCompleted && next == len(r.jobs):
		r.state = model.RunCompleted
	case state == model.JobFailed:
		r.state = model.RunFailed
	default:
		r.state = model.RunCancelled
	}

	c.setJobState(r, j, state)
	if payload != nil {
		r.logger.Error("stage failed", "stage", j.step.Stage, "kind", payload.Kind, "error", payload.Message)
		r.events.publish(Event{
			RunID:    r.id,
			Type:     EventError,
			Stage:    j.step.Stage,
			JobState: state,
			RunState: r.state,
			Error:    payload,
		})
	}
	for _, later := range r.jobs[next:] {
		if !later.state.Terminal() {
			c.setJobState(r, later, model.JobCancelled)
		}
	}
	if met := c.opts.Metrics; met != nil {
		met.RunsFinished.WithLabelValues(string(r.state)).Inc()
		met.RunsActive.Dec()
	}
}

func (r *run) publishState(j *job) {
	r.events.publish(Event{
		RunID:    r.id,
		Type:     EventState,
		Stage:    j.step.Stage,
		JobState: j.state,
		RunState: r.state,
	})
}

func (r *run) publishProgress(j *job, ev progress.Event) {
	j.last = &ev
	r.events.publish(Event{
		RunID:    r.id,
		Type:     EventProgress,
		Stage:    j.step.Stage,
		JobState: j.state,
		RunState: r.state,
		Progress: &ev,
	})
}

// updateSnapshot copies the loop-owned state for QueryState
func (r *run) updateSnapshot() {
	active := r.jobs[r.current]
	snap := Snapshot{
		RunID:        r.id,
		CaseDir:      r.dir,
		State:        r.state,
		Stage:        active.step.Stage,
		JobState:     active.state,
		LastProgress: active.last,
		Jobs:         make([]JobSnapshot, len(r.jobs)),
	}
	for i, j := range r.jobs {
		js := JobSnapshot{
			Stage:        j.step.Stage,
			State:        j.state,
			Command:      j.step.Command.String(),
			LastProgress: j.last,
			Error:        j.err,
			OutputTail:   j.output.tail(),
			StartedAt:    j.started,
			FinishedAt:   j.ended,
		}
		if j.proc != nil {
			js.Pid = j.proc.Pid()
		}
		if j.exit != nil {
			code := j.exit.Code
			js.ExitCode = &code
		}
		snap.Jobs[i] = js
	}
	r.mu.Lock()
	r.snap = snap
	r.mu.Unlock()
}

func (r *run) snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap
}

// IsNotFound reports whether err means an unknown run id
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}
