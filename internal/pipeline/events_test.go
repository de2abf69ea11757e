package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceplane/cfdcase/internal/casewriter"
	"github.com/sourceplane/cfdcase/internal/model"
	"github.com/sourceplane/cfdcase/internal/runner"
	"github.com/sourceplane/cfdcase/internal/validate"
)

func TestMailbox_FIFOAndClose(t *testing.T) {
	m := newMailbox[int]()
	for i := 0; i < 5; i++ {
		require.True(t, m.push(i))
	}
	m.close()
	assert.False(t, m.push(99))

	var got []int
	for {
		v, ok := m.pop()
		if !ok {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestMailbox_PopBlocksUntilPush(t *testing.T) {
	m := newMailbox[string]()
	got := make(chan string)
	go func() {
		v, _ := m.pop()
		got <- v
	}()

	select {
	case <-got:
		t.Fatal("pop returned before push")
	case <-time.After(20 * time.Millisecond):
	}
	m.push("line")
	assert.Equal(t, "line", <-got)
}

func TestRing_KeepsLastLines(t *testing.T) {
	r := newRing(3)
	assert.Empty(t, r.tail())

	r.add("a")
	r.add("b")
	assert.Equal(t, []string{"a", "b"}, r.tail())

	r.add("c")
	r.add("d")
	r.add("e")
	assert.Equal(t, []string{"c", "d", "e"}, r.tail())
}

func TestBus_SubscribeReplaysLatest(t *testing.T) {
	b := newBus()
	b.publish(Event{Type: EventState, JobState: model.JobPending})
	b.publish(Event{Type: EventState, JobState: model.JobRunning})

	ch, cancel := b.subscribe()
	defer cancel()
	first := <-ch
	assert.Equal(t, uint64(2), first.Seq)
	assert.Equal(t, model.JobRunning, first.JobState)

	b.publish(Event{Type: EventState, JobState: model.JobCompleted})
	b.close()

	next := <-ch
	assert.Equal(t, uint64(3), next.Seq)
	assert.False(t, next.Time.IsZero())
	_, ok := <-ch
	assert.False(t, ok)
}

func TestBus_CancelClosesChannel(t *testing.T) {
	b := newBus()
	ch, cancel := b.subscribe()
	cancel()
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
	b.publish(Event{Type: EventState})
}

func TestBus_SubscribeAfterClose(t *testing.T) {
	b := newBus()
	b.publish(Event{Type: EventState, RunState: model.RunCompleted})
	b.close()

	ch, cancel := b.subscribe()
	defer cancel()
	ev, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, model.RunCompleted, ev.RunState)
	_, ok = <-ch
	assert.False(t, ok)
}

func TestNewPayload(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"validation", &validate.ValidationError{Violations: []validate.Violation{{Field: "materials", Message: "is required"}}}, KindValidation},
		{"write", &casewriter.WriteError{Stage: model.StageMesh, Path: "system/controlDict", Err: errors.New("disk full")}, KindWrite},
		{"launch", &runner.LaunchError{Executable: "blockMesh", Err: errors.New("not found")}, KindLaunch},
		{"process", &ProcessFailure{Stage: model.StageSolve, Exit: runner.ExitStatus{Code: 1}}, KindProcess},
		{"other", errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPayload(tt.err, []string{"last line"})
			assert.Equal(t, tt.kind, p.Kind)
			assert.Equal(t, tt.err.Error(), p.Message)
			assert.Equal(t, []string{"last line"}, p.OutputTail)
		})
	}

	p := newPayload(&validate.ValidationError{Violations: []validate.Violation{{Field: "materials"}}}, nil)
	assert.Len(t, p.Violations, 1)
}

func TestProcessFailure_Error(t *testing.T) {
	err := &ProcessFailure{Stage: model.StageMesh, Exit: runner.ExitStatus{}, Marker: "FOAM FATAL ERROR"}
	assert.Equal(t, "mesh stage failed (exit code 0): FOAM FATAL ERROR", err.Error())

	err = &ProcessFailure{Stage: model.StageSolve, Exit: runner.ExitStatus{Code: -1, Signal: "killed"}}
	assert.Equal(t, "solve stage failed: killed by killed", err.Error())
}
