package engine

import (
	"sync"

	"github.com/emirpasic/gods/queues/arrayqueue"

	"github.com/vk/graphflow/internal/graph"
)

// task is one dispatched unit of work: a vertex id plus the program
// instance stored for it at schedule time.
type task[V, E any] struct {
	id   graph.VertexID
	prog Program[V, E]
}

// scheduler maintains the active set: the vertex ids pending an
// invocation. It is the sole arbiter of dispatch and enforces two
// invariants the rest of the engine builds on:
//
//   - dedup: an id is queued at most once; re-scheduling a pending id
//     replaces its stored program (last write wins) without re-queueing;
//   - per-vertex exclusion: an id is never handed to a worker while a
//     prior invocation for it is still running. A schedule request that
//     arrives mid-run is stashed and re-queued when the invocation
//     completes, so a vertex program may mutate its own vertex and
//     incident edges without further synchronization.
type scheduler[V, E any] struct {
	mu   sync.Mutex
	cond *sync.Cond

	queue   *arrayqueue.Queue // of graph.VertexID, each at most once
	pending map[graph.VertexID]Program[V, E]
	running map[graph.VertexID]struct{}
	stashed map[graph.VertexID]Program[V, E] // scheduled while running

	paused bool // aggregation barrier in progress
	closed bool
}

func newScheduler[V, E any]() *scheduler[V, E] {
	s := &scheduler[V, E]{
		queue:   arrayqueue.New(),
		pending: make(map[graph.VertexID]Program[V, E]),
		running: make(map[graph.VertexID]struct{}),
		stashed: make(map[graph.VertexID]Program[V, E]),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// schedule marks id active with prog. Duplicate requests before the
// vertex runs are merged; requests while it runs are deferred until the
// invocation completes.
func (s *scheduler[V, E]) schedule(id graph.VertexID, prog Program[V, E]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, ok := s.running[id]; ok {
		s.stashed[id] = prog
		return
	}
	if _, ok := s.pending[id]; ok {
		s.pending[id] = prog
		return
	}
	s.pending[id] = prog
	s.queue.Enqueue(id)
	s.cond.Broadcast()
}

// popReady blocks until a vertex is dispatchable, then moves it to the
// running state and returns it. Returns ok=false once the scheduler is
// closed. Never returns an id that is currently running, and never
// returns while the scheduler is paused for an aggregation barrier.
func (s *scheduler[V, E]) popReady() (task[V, E], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.closed && (s.paused || s.queue.Empty()) {
		s.cond.Wait()
	}
	if s.closed {
		return task[V, E]{}, false
	}
	v, _ := s.queue.Dequeue()
	id := v.(graph.VertexID)
	prog := s.pending[id]
	delete(s.pending, id)
	s.running[id] = struct{}{}
	return task[V, E]{id: id, prog: prog}, true
}

// done returns id to the idle state. If a schedule request arrived while
// the invocation ran it is re-queued now, unless requeue is false, which
// the engine uses to drop re-schedule requests from a failed invocation.
func (s *scheduler[V, E]) done(id graph.VertexID, requeue bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, id)
	prog, ok := s.stashed[id]
	if !ok {
		return
	}
	delete(s.stashed, id)
	if requeue && !s.closed {
		s.pending[id] = prog
		s.queue.Enqueue(id)
		s.cond.Broadcast()
	}
}

// quiescent reports that no work is queued or in flight. Since stashed
// requests only exist for running vertices, a quiescent scheduler can
// receive new work only from an external schedule call.
func (s *scheduler[V, E]) quiescent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Empty() && len(s.running) == 0
}

func (s *scheduler[V, E]) inFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

func (s *scheduler[V, E]) pendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Size()
}

// pause stops dispatch. In-flight invocations continue; callers wait for
// them to drain before relying on the barrier.
func (s *scheduler[V, E]) pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

// resume reopens dispatch after a barrier.
func (s *scheduler[V, E]) resume() {
	s.mu.Lock()
	s.paused = false
	s.cond.Broadcast()
	s.mu.Unlock()
}

// close wakes all blocked workers and makes further pops fail.
func (s *scheduler[V, E]) close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
}
