package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceplane/cfdcase/internal/casetest"
	"github.com/sourceplane/cfdcase/internal/logging"
	"github.com/sourceplane/cfdcase/internal/model"
	"github.com/sourceplane/cfdcase/internal/progress"
	"github.com/sourceplane/cfdcase/internal/runner"
	"github.com/sourceplane/cfdcase/internal/validate"
)

// script describes what a fake process prints and how it ends
type script struct {
	lines []string
	code  int
	// hang keeps the process alive until it is stopped
	hang bool
	// cleanStop makes a hanging process exit 0 when it is stopped
	cleanStop bool
	// streamErr is delivered after the lines as a lost stderr stream
	streamErr error
	err       error
}

type fakeProcess struct {
	pid    int
	out    chan runner.Line
	done   chan struct{}
	status runner.ExitStatus
	once   sync.Once
	stops  atomic.Int32
	closed atomic.Bool
	// stopStatus is the exit status reported after Stop
	stopStatus runner.ExitStatus
}

func newFakeProcess(pid int, s script) *fakeProcess {
	p := &fakeProcess{
		pid:        pid,
		out:        make(chan runner.Line, len(s.lines)+1),
		done:       make(chan struct{}),
		stopStatus: runner.ExitStatus{Code: -1, Signal: "terminated"},
	}
	if s.cleanStop {
		p.stopStatus = runner.ExitStatus{Code: 0}
	}
	for _, l := range s.lines {
		p.out <- runner.Line{Text: l, Stream: runner.Stdout}
	}
	if s.streamErr != nil {
		p.out <- runner.Line{Stream: runner.Stderr, Err: s.streamErr}
	}
	if !s.hang {
		p.status = runner.ExitStatus{Code: s.code}
		close(p.out)
		close(p.done)
	}
	return p
}

func (p *fakeProcess) Pid() int                   { return p.pid }
func (p *fakeProcess) Output() <-chan runner.Line { return p.out }

func (p *fakeProcess) Wait() runner.ExitStatus {
	<-p.done
	return p.status
}

func (p *fakeProcess) Stop(time.Duration) {
	p.stops.Add(1)
	p.once.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}
		p.status = p.stopStatus
		close(p.out)
		close(p.done)
	})
}

func (p *fakeProcess) Close() { p.closed.Store(true) }

// fakeLauncher hands out one scripted process per launch, in order
type fakeLauncher struct {
	mu       sync.Mutex
	scripts  []script
	commands []runner.Command
	procs    []*fakeProcess
	// gate, when set, holds every launch until it is closed
	gate     chan struct{}
	onLaunch func(c runner.Command)
}

func (l *fakeLauncher) Launch(_ context.Context, c runner.Command) (Process, error) {
	if l.gate != nil {
		<-l.gate
	}
	if l.onLaunch != nil {
		l.onLaunch(c)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	i := len(l.commands)
	l.commands = append(l.commands, c)
	if i >= len(l.scripts) {
		return nil, &runner.LaunchError{Executable: c.Executable, Err: errors.New("no script")}
	}
	s := l.scripts[i]
	if s.err != nil {
		return nil, s.err
	}
	p := newFakeProcess(1000+i, s)
	l.procs = append(l.procs, p)
	return p, nil
}

func (l *fakeLauncher) launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.commands)
}

func (l *fakeLauncher) proc(i int) *fakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i >= len(l.procs) {
		return nil
	}
	return l.procs[i]
}

var (
	meshOK   = []string{"Exec : blockMesh -case mesh", "Creating block mesh topology", "Writing polyMesh", "End"}
	solverOK = []string{
		"Exec : simpleFoam -case solver",
		"Create mesh for time = 0",
		"Starting time loop",
		"Time = 1",
		"smoothSolver:  Solving for Ux, Initial residual = 1, Final residual = 0.01, No Iterations 2",
		"ExecutionTime = 0.1 s  ClockTime = 0 s",
		"End",
	}
)

func newTestController(t *testing.T, l *fakeLauncher) *Controller {
	t.Helper()
	c := NewController(Options{
		Launcher:     l,
		GraceTimeout: 100 * time.Millisecond,
		Logger:       logging.Discard(),
		Metrics:      NewMetrics(prometheus.NewRegistry()),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Shutdown(ctx)
	})
	return c
}

func wait(t *testing.T, c *Controller, id string) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := c.Wait(ctx, id)
	require.NoError(t, err)
	return snap
}

// collect drains a subscription until the run ends
func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("event stream did not close")
			return events
		}
	}
}

func jobStates(events []Event, stage model.Stage) []model.JobState {
	var out []model.JobState
	for _, ev := range events {
		if ev.Type != EventState || ev.Stage != stage {
			continue
		}
		if len(out) > 0 && out[len(out)-1] == ev.JobState {
			continue
		}
		out = append(out, ev.JobState)
	}
	return out
}

func TestController_RunCompletes(t *testing.T) {
	root := t.TempDir()
	l := &fakeLauncher{
		scripts: []script{{lines: meshOK}, {lines: solverOK}},
		gate:    make(chan struct{}),
	}
	c := newTestController(t, l)

	id, err := c.RequestRun(casetest.BlockMesh(), root)
	require.NoError(t, err)
	ch, cancel, err := c.Subscribe(id)
	require.NoError(t, err)
	defer cancel()
	close(l.gate)

	snap := wait(t, c, id)
	assert.Equal(t, model.RunCompleted, snap.State)
	require.Len(t, snap.Jobs, 2)
	assert.Equal(t, model.JobCompleted, snap.Jobs[0].State)
	assert.Equal(t, model.JobCompleted, snap.Jobs[1].State)
	assert.Equal(t, model.StageSolve, snap.Stage)
	require.NotNil(t, snap.Jobs[1].LastProgress)
	assert.Equal(t, progress.Finished, snap.Jobs[1].LastProgress.Kind)

	require.Len(t, l.commands, 2)
	assert.Equal(t, "blockMesh -case mesh", l.commands[0].String())
	assert.Equal(t, "simpleFoam -case solver", l.commands[1].String())
	assert.Equal(t, root, l.commands[0].Dir)

	assert.FileExists(t, filepath.Join(root, "mesh", "system", "blockMeshDict"))
	assert.FileExists(t, filepath.Join(root, "solver", "system", "controlDict"))
	logged, err := os.ReadFile(filepath.Join(root, "solver", "log.simpleFoam"))
	require.NoError(t, err)
	assert.Contains(t, string(logged), "Starting time loop\n")

	events := collect(t, ch)
	require.NotEmpty(t, events)
	for i := 1; i < len(events); i++ {
		assert.Equal(t, events[i-1].Seq+1, events[i].Seq)
	}
	last := events[len(events)-1]
	assert.Equal(t, model.RunCompleted, last.RunState)
	assert.Equal(t, []model.JobState{model.JobPending, model.JobRunning, model.JobCompleted}, jobStates(events, model.StageSolve))

	assert.True(t, l.proc(0).closed.Load())
	assert.True(t, l.proc(1).closed.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(c.opts.Metrics.RunsStarted))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.opts.Metrics.RunsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.opts.Metrics.RunsFinished.WithLabelValues("completed")))
}

func TestController_ErrorMarkerFailsCleanExit(t *testing.T) {
	root := t.TempDir()
	lines := []string{
		"Exec : blockMesh -case mesh",
		"--> FOAM FATAL ERROR: cannot find file \"system/blockMeshDict\"",
		"End",
	}
	l := &fakeLauncher{scripts: []script{{lines: lines, code: 0}, {lines: solverOK}}}
	c := newTestController(t, l)

	id, err := c.RequestRun(casetest.BlockMesh(), root)
	require.NoError(t, err)
	snap := wait(t, c, id)

	assert.Equal(t, model.RunFailed, snap.State)
	assert.Equal(t, model.JobFailed, snap.Jobs[0].State)
	assert.Equal(t, model.JobCancelled, snap.Jobs[1].State)
	require.NotNil(t, snap.Jobs[0].Error)
	assert.Equal(t, KindProcess, snap.Jobs[0].Error.Kind)
	assert.Contains(t, snap.Jobs[0].Error.Message, "FOAM FATAL ERROR")
	assert.Equal(t, lines, snap.Jobs[0].Error.OutputTail)
	require.NotNil(t, snap.Jobs[0].ExitCode)
	assert.Equal(t, 0, *snap.Jobs[0].ExitCode)

	assert.Equal(t, 1, l.launches())
	assert.FileExists(t, filepath.Join(root, "mesh", "system", "blockMeshDict"))
	assert.NoDirExists(t, filepath.Join(root, "solver"))
}

func TestController_FatalBlockWithCleanExitFails(t *testing.T) {
	root := t.TempDir()
	lines := []string{
		"Exec : cartesianMesh -case mesh",
		"Creating polyMesh from octree",
		"--> FOAM FATAL ERROR:",
		"    Cannot generate boundary layers for patch outlet",
		"    100% of faces are invalid",
		"",
		"    From function boundaryLayers::addLayerForPatch",
		"FOAM exiting",
	}
	l := &fakeLauncher{scripts: []script{{lines: lines, code: 0}, {lines: solverOK}}}
	c := newTestController(t, l)

	id, err := c.RequestRun(casetest.CfMesh(casetest.Surface(t)), root)
	require.NoError(t, err)
	ch, cancel, err := c.Subscribe(id)
	require.NoError(t, err)
	defer cancel()
	snap := wait(t, c, id)

	assert.Equal(t, model.RunFailed, snap.State)
	assert.Equal(t, model.JobFailed, snap.Jobs[0].State)
	assert.Equal(t, model.JobCancelled, snap.Jobs[1].State)
	require.NotNil(t, snap.Jobs[0].Error)
	assert.Contains(t, snap.Jobs[0].Error.Message, "FOAM FATAL ERROR")
	assert.Equal(t, 1, l.launches())
	assert.NoDirExists(t, filepath.Join(root, "solver"))

	for _, ev := range collect(t, ch) {
		if ev.Type != EventProgress {
			continue
		}
		assert.NotEqual(t, progress.Progress, ev.Progress.Kind)
		if ev.Progress.Kind == progress.StageChanged {
			assert.NotEqual(t, "boundary layers", ev.Progress.Phase)
		}
	}
}

func TestController_PercentageDoesNotRecoverErrorMarker(t *testing.T) {
	lines := []string{
		"Exec : cartesianMesh -case mesh",
		"--> FOAM FATAL ERROR: surface is not closed",
		"",
		"100%",
	}
	l := &fakeLauncher{scripts: []script{{lines: lines}, {lines: solverOK}}}
	c := newTestController(t, l)

	id, err := c.RequestRun(casetest.CfMesh(casetest.Surface(t)), t.TempDir())
	require.NoError(t, err)
	snap := wait(t, c, id)
	assert.Equal(t, model.RunFailed, snap.State)
	assert.Equal(t, model.JobFailed, snap.Jobs[0].State)
}

func TestController_RecoveredErrorMarker(t *testing.T) {
	lines := []string{
		"FOAM FATAL ERROR: retrying",
		"",
		"Creating block mesh topology",
		"End",
	}
	l := &fakeLauncher{scripts: []script{{lines: lines}, {lines: solverOK}}}
	c := newTestController(t, l)

	id, err := c.RequestRun(casetest.BlockMesh(), t.TempDir())
	require.NoError(t, err)
	snap := wait(t, c, id)
	assert.Equal(t, model.RunCompleted, snap.State)
}

func TestController_NonZeroExit(t *testing.T) {
	l := &fakeLauncher{scripts: []script{{lines: []string{"Exec : blockMesh"}, code: 1}}}
	c := newTestController(t, l)

	id, err := c.RequestRun(casetest.BlockMesh(), t.TempDir())
	require.NoError(t, err)
	snap := wait(t, c, id)

	assert.Equal(t, model.RunFailed, snap.State)
	require.NotNil(t, snap.Jobs[0].Error)
	assert.Contains(t, snap.Jobs[0].Error.Message, "exit code 1")
	assert.Equal(t, model.JobCancelled, snap.Jobs[1].State)
}

func TestController_SolverWithoutFinishMarker(t *testing.T) {
	l := &fakeLauncher{scripts: []script{{lines: meshOK}, {lines: solverOK[:6]}}}
	c := newTestController(t, l)

	id, err := c.RequestRun(casetest.BlockMesh(), t.TempDir())
	require.NoError(t, err)
	snap := wait(t, c, id)

	assert.Equal(t, model.RunFailed, snap.State)
	assert.Equal(t, model.JobCompleted, snap.Jobs[0].State)
	assert.Equal(t, model.JobFailed, snap.Jobs[1].State)
	assert.Contains(t, snap.Jobs[1].Error.Message, "without a completion marker")
}

func TestController_LaunchFailure(t *testing.T) {
	launchErr := &runner.LaunchError{Executable: "blockMesh", Err: errors.New("binary not found")}
	l := &fakeLauncher{scripts: []script{{err: launchErr}}}
	c := newTestController(t, l)

	id, err := c.RequestRun(casetest.BlockMesh(), t.TempDir())
	require.NoError(t, err)
	snap := wait(t, c, id)

	assert.Equal(t, model.RunFailed, snap.State)
	require.NotNil(t, snap.Jobs[0].Error)
	assert.Equal(t, KindLaunch, snap.Jobs[0].Error.Kind)
	assert.Equal(t, model.JobCancelled, snap.Jobs[1].State)
}

func TestController_ValidationIsSynchronous(t *testing.T) {
	root := t.TempDir()
	cfg := casetest.BlockMesh()
	cfg.Materials = nil
	l := &fakeLauncher{}
	c := newTestController(t, l)

	_, err := c.RequestRun(cfg, root)
	var verr *validate.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.NotEmpty(t, verr.Violations)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 0, l.launches())
}

func TestController_MissingMeshPatches(t *testing.T) {
	root := t.TempDir()
	l := &fakeLauncher{
		scripts: []script{{lines: meshOK}, {lines: solverOK}},
		onLaunch: func(c runner.Command) {
			if c.Executable != "blockMesh" {
				return
			}
			dir := filepath.Join(c.Dir, "mesh", "constant", "polyMesh")
			_ = os.MkdirAll(dir, 0o755)
			_ = os.WriteFile(filepath.Join(dir, "boundary"), []byte("1\n(\n    inlet\n    {\n        type patch;\n    }\n)\n"), 0o644)
		},
	}
	c := newTestController(t, l)

	id, err := c.RequestRun(casetest.BlockMesh(), root)
	require.NoError(t, err)
	snap := wait(t, c, id)

	assert.Equal(t, model.RunFailed, snap.State)
	assert.Equal(t, model.JobFailed, snap.Jobs[1].State)
	require.NotNil(t, snap.Jobs[1].Error)
	assert.Equal(t, KindValidation, snap.Jobs[1].Error.Kind)
	fields := make([]string, 0, len(snap.Jobs[1].Error.Violations))
	for _, v := range snap.Jobs[1].Error.Violations {
		fields = append(fields, v.Field)
	}
	assert.Equal(t, []string{"boundaries[1].patch", "boundaries[2].patch"}, fields)
	assert.Equal(t, 1, l.launches())
	assert.NoDirExists(t, filepath.Join(root, "solver"))
}

func TestController_StopBeforeOutput(t *testing.T) {
	root := t.TempDir()
	l := &fakeLauncher{
		scripts: []script{{hang: true}, {lines: solverOK}},
		gate:    make(chan struct{}),
	}
	c := newTestController(t, l)

	id, err := c.RequestRun(casetest.BlockMesh(), root)
	require.NoError(t, err)
	ch, cancel, err := c.Subscribe(id)
	require.NoError(t, err)
	defer cancel()
	require.NoError(t, c.RequestStop(id))

	require.Eventually(t, func() bool {
		snap, err := c.QueryState(id)
		return err == nil && (snap.Jobs[0].State == model.JobStopping || snap.Jobs[0].State == model.JobCancelled)
	}, 5*time.Second, 5*time.Millisecond)
	close(l.gate)

	snap := wait(t, c, id)
	assert.Equal(t, model.RunCancelled, snap.State)
	assert.Equal(t, model.JobCancelled, snap.Jobs[0].State)
	assert.Equal(t, model.JobCancelled, snap.Jobs[1].State)

	states := jobStates(collect(t, ch), model.StageMesh)
	assert.Equal(t, []model.JobState{model.JobPending, model.JobStopping, model.JobCancelled}, states)
	assert.NoDirExists(t, filepath.Join(root, "solver"))
	if p := l.proc(0); p != nil {
		assert.True(t, p.closed.Load())
	}
}

func TestController_StopIsIdempotent(t *testing.T) {
	root := t.TempDir()
	l := &fakeLauncher{scripts: []script{{lines: []string{"Exec : blockMesh -case mesh"}, hang: true}}}
	c := newTestController(t, l)

	id, err := c.RequestRun(casetest.BlockMesh(), root)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		snap, err := c.QueryState(id)
		return err == nil && snap.JobState == model.JobRunning
	}, 5*time.Second, 5*time.Millisecond)

	ch, cancel, err := c.Subscribe(id)
	require.NoError(t, err)
	defer cancel()
	for i := 0; i < 3; i++ {
		require.NoError(t, c.RequestStop(id))
	}

	snap := wait(t, c, id)
	assert.Equal(t, model.RunCancelled, snap.State)
	assert.Equal(t, model.JobCancelled, snap.Jobs[0].State)

	cancelled := 0
	for _, ev := range collect(t, ch) {
		if ev.Type == EventState && ev.Stage == model.StageMesh && ev.JobState == model.JobCancelled {
			cancelled++
		}
	}
	assert.Equal(t, 1, cancelled)
	assert.Equal(t, int32(1), l.proc(0).stops.Load())

	// stopping a finished run is a no-op
	require.NoError(t, c.RequestStop(id))
	after, err := c.QueryState(id)
	require.NoError(t, err)
	assert.Equal(t, snap.State, after.State)
}

func TestController_ReapsAfterStop(t *testing.T) {
	root := t.TempDir()
	l := &fakeLauncher{scripts: []script{{lines: []string{"Exec : blockMesh -case mesh"}, hang: true}}}
	c := newTestController(t, l)

	id, err := c.RequestRun(casetest.BlockMesh(), root)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		snap, _ := c.QueryState(id)
		return snap.JobState == model.JobRunning
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, c.RequestStop(id))
	snap := wait(t, c, id)

	p := l.proc(0)
	select {
	case <-p.done:
	default:
		t.Fatal("process not reaped")
	}
	assert.True(t, p.closed.Load())
	require.NotNil(t, snap.Jobs[0].ExitCode)
	assert.Equal(t, -1, *snap.Jobs[0].ExitCode)

	logged, err := os.ReadFile(filepath.Join(root, "mesh", "log.blockMesh"))
	require.NoError(t, err)
	assert.Equal(t, "Exec : blockMesh -case mesh\n", string(logged))
}

func TestController_CleanExitWhileStopping(t *testing.T) {
	root := t.TempDir()
	l := &fakeLauncher{scripts: []script{{lines: []string{"Exec : blockMesh -case mesh"}, hang: true, cleanStop: true}, {lines: solverOK}}}
	c := newTestController(t, l)

	id, err := c.RequestRun(casetest.BlockMesh(), root)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		snap, _ := c.QueryState(id)
		return snap.JobState == model.JobRunning
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, c.RequestStop(id))
	snap := wait(t, c, id)

	// the mesher finished its work before it saw the signal
	assert.Equal(t, model.RunCancelled, snap.State)
	assert.Equal(t, model.JobCompleted, snap.Jobs[0].State)
	assert.Nil(t, snap.Jobs[0].Error)
	assert.Equal(t, model.JobCancelled, snap.Jobs[1].State)
	require.NotNil(t, snap.Jobs[0].ExitCode)
	assert.Equal(t, 0, *snap.Jobs[0].ExitCode)
	assert.Equal(t, 1, l.launches())
	assert.NoDirExists(t, filepath.Join(root, "solver"))
}

func TestController_LostStreamWarnsAndReaps(t *testing.T) {
	l := &fakeLauncher{
		scripts: []script{{lines: meshOK, streamErr: errors.New("read |0: file already closed")}, {lines: solverOK}},
		gate:    make(chan struct{}),
	}
	c := newTestController(t, l)

	id, err := c.RequestRun(casetest.BlockMesh(), t.TempDir())
	require.NoError(t, err)
	ch, cancel, err := c.Subscribe(id)
	require.NoError(t, err)
	defer cancel()
	close(l.gate)

	snap := wait(t, c, id)
	assert.Equal(t, model.RunCompleted, snap.State)
	assert.True(t, l.proc(0).closed.Load())

	var warnings []string
	for _, ev := range collect(t, ch) {
		if ev.Type == EventProgress && ev.Stage == model.StageMesh && ev.Progress.Kind == progress.Warning {
			warnings = append(warnings, ev.Progress.Text)
		}
	}
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "stderr stream lost")
	assert.Contains(t, warnings[0], "file already closed")
}

type failingWriter struct{ writes int }

func (w *failingWriter) Write([]byte) (int, error) {
	w.writes++
	return 0, errors.New("no space left on device")
}

func TestRun_LogWriteFailureWarnsOnce(t *testing.T) {
	var buf bytes.Buffer
	r := &run{logger: logging.New("info", "text", &buf)}
	w := &failingWriter{}
	j := &job{log: bufio.NewWriterSize(w, 16)}
	j.step.Stage = model.StageMesh

	for i := 0; i < 5; i++ {
		r.writeLog(j, "Creating block mesh topology")
	}
	r.closeLog(j)

	assert.True(t, j.logBroken)
	assert.Nil(t, j.log)
	assert.Equal(t, 1, w.writes)
	assert.Equal(t, 1, strings.Count(buf.String(), "stage log write failed"))
	assert.Contains(t, buf.String(), "no space left on device")
}

func TestController_Shutdown(t *testing.T) {
	l := &fakeLauncher{scripts: []script{{hang: true}}}
	c := newTestController(t, l)

	id, err := c.RequestRun(casetest.BlockMesh(), t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Shutdown(ctx))

	snap, err := c.QueryState(id)
	require.NoError(t, err)
	assert.Equal(t, model.RunCancelled, snap.State)

	_, err = c.RequestRun(casetest.BlockMesh(), t.TempDir())
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestController_UnknownRun(t *testing.T) {
	c := newTestController(t, &fakeLauncher{})

	_, err := c.QueryState("nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.True(t, IsNotFound(c.RequestStop("nope")))
	_, _, err = c.Subscribe("nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
