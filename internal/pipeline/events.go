package pipeline

import (
	"sync"
	"time"

	"github.com/sourceplane/cfdcase/internal/model"
	"github.com/sourceplane/cfdcase/internal/progress"
)

// EventType tells what an Event carries
type EventType string

const (
	// EventState is a job or run state transition
	EventState EventType = "state"
	// EventProgress carries a progress record extracted from output
	EventProgress EventType = "progress"
	// EventError carries the error payload of a failed job
	EventError EventType = "error"
)

// Event is one entry of a run's event stream. Seq increases by one per
// event of the run.
type Event struct {
	RunID    string          `json:"runId"`
	Seq      uint64          `json:"seq"`
	Time     time.Time       `json:"time"`
	Type     EventType       `json:"type"`
	Stage    model.Stage     `json:"stage,omitempty"`
	JobState model.JobState  `json:"jobState,omitempty"`
	RunState model.RunState  `json:"runState"`
	Progress *progress.Event `json:"progress,omitempty"`
	Error    *ErrorPayload   `json:"error,omitempty"`
}

// bus fans the events of one run out to its subscribers. Each subscriber
// has its own unbounded queue so a slow reader never stalls the run.
type bus struct {
	mu     sync.Mutex
	seq    uint64
	subs   map[int]*subscriber
	nextID int
	closed bool
	last   Event
}

type subscriber struct {
	queue *mailbox[Event]
	out   chan Event
	done  chan struct{}
	once  sync.Once
}

func newBus() *bus {
	return &bus{subs: make(map[int]*subscriber)}
}

// publish stamps ev with the next sequence number and queues it for every
// subscriber
func (b *bus) publish(ev Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	ev.Seq = b.seq
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.last = ev
	for _, s := range b.subs {
		s.queue.push(ev)
	}
	return ev
}

// subscribe returns a channel that first receives the latest event and
// then every later one; it is closed when the run ends or cancel is called
func (b *bus) subscribe() (<-chan Event, func()) {
	s := &subscriber{
		queue: newMailbox[Event](),
		out:   make(chan Event),
		done:  make(chan struct{}),
	}
	b.mu.Lock()
	if b.last.Seq > 0 {
		s.queue.push(b.last)
	}
	id := b.nextID
	b.nextID++
	if b.closed {
		s.queue.close()
	} else {
		b.subs[id] = s
	}
	b.mu.Unlock()

	go s.forward()
	cancel := func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		s.stop()
	}
	return s.out, cancel
}

// close ends every subscription once its queued events are delivered
func (b *bus) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, s := range b.subs {
		s.queue.close()
		delete(b.subs, id)
	}
}

func (s *subscriber) forward() {
	defer close(s.out)
	for {
		ev, ok := s.queue.pop()
		if !ok {
			return
		}
		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() {
		close(s.done)
		s.queue.close()
	})
}
