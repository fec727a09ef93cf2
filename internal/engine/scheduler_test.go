package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/graphflow/internal/graph"
)

type testV struct{ n int }
type testE struct{ w float64 }

func noopProgram(tag int) Program[testV, testE] {
	return UpdateFunc[testV, testE](func(ctx *Context[testV, testE]) error {
		_ = tag
		return nil
	})
}

func TestScheduleDedup(t *testing.T) {
	s := newScheduler[testV, testE]()
	id := graph.VertexID(3)

	s.schedule(id, noopProgram(1))
	s.schedule(id, noopProgram(2))
	s.schedule(id, noopProgram(3))
	assert.Equal(t, 1, s.pendingCount())

	tk, ok := s.popReady()
	require.True(t, ok)
	assert.Equal(t, id, tk.id)
	assert.True(t, s.queue.Empty())
}

func TestScheduleLastWriteWinsPayload(t *testing.T) {
	s := newScheduler[int, int]()
	id := graph.VertexID(0)

	first := UpdateFunc[int, int](func(*Context[int, int]) error { return nil })
	var ran bool
	second := UpdateFunc[int, int](func(*Context[int, int]) error { ran = true; return nil })

	s.schedule(id, first)
	s.schedule(id, second)

	tk, ok := s.popReady()
	require.True(t, ok)
	require.NoError(t, tk.prog.Update(nil))
	assert.True(t, ran, "the program stored last must be the one dispatched")
}

func TestScheduleWhileRunningDefersUntilDone(t *testing.T) {
	s := newScheduler[testV, testE]()
	id := graph.VertexID(1)

	s.schedule(id, noopProgram(1))
	_, ok := s.popReady()
	require.True(t, ok)

	// Re-scheduling mid-run must not enqueue: the vertex is running.
	s.schedule(id, noopProgram(2))
	assert.Equal(t, 0, s.pendingCount())
	assert.Equal(t, 1, s.inFlight())

	s.done(id, true)
	assert.Equal(t, 1, s.pendingCount())
	assert.Equal(t, 0, s.inFlight())

	tk, ok := s.popReady()
	require.True(t, ok)
	assert.Equal(t, id, tk.id)
}

func TestDoneDropsRescheduleOnFailure(t *testing.T) {
	s := newScheduler[testV, testE]()
	id := graph.VertexID(1)

	s.schedule(id, noopProgram(1))
	_, ok := s.popReady()
	require.True(t, ok)
	s.schedule(id, noopProgram(2))

	s.done(id, false)
	assert.Equal(t, 0, s.pendingCount())
	assert.True(t, s.quiescent())
}

func TestQuiescent(t *testing.T) {
	s := newScheduler[testV, testE]()
	assert.True(t, s.quiescent())

	s.schedule(graph.VertexID(0), noopProgram(0))
	assert.False(t, s.quiescent())

	tk, _ := s.popReady()
	assert.False(t, s.quiescent(), "a running vertex is in-flight work")

	s.done(tk.id, true)
	assert.True(t, s.quiescent())
}

func TestCloseUnblocksPop(t *testing.T) {
	s := newScheduler[testV, testE]()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := s.popReady()
			assert.False(t, ok)
		}()
	}
	s.close()
	wg.Wait()

	// Scheduling after close is a no-op.
	s.schedule(graph.VertexID(0), noopProgram(0))
	assert.Equal(t, 0, s.pendingCount())
}

func TestPauseBlocksDispatch(t *testing.T) {
	s := newScheduler[testV, testE]()
	s.schedule(graph.VertexID(0), noopProgram(0))
	s.pause()

	popped := make(chan graph.VertexID, 1)
	go func() {
		tk, ok := s.popReady()
		if ok {
			popped <- tk.id
		}
	}()

	select {
	case id := <-popped:
		t.Fatalf("popReady returned vertex %d while paused", id)
	default:
	}

	s.resume()
	assert.Equal(t, graph.VertexID(0), <-popped)
}

// TestSchedulerConcurrentDedup hammers schedule for a small id space from
// many goroutines and verifies every pop observes the dedup invariant:
// an id handed out is not handed out again before done returns it.
func TestSchedulerConcurrentDedup(t *testing.T) {
	s := newScheduler[testV, testE]()
	const ids = 8
	const writers = 16

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				s.schedule(graph.VertexID(i%ids), noopProgram(w))
			}
		}(w)
	}

	var mu sync.Mutex
	active := make(map[graph.VertexID]bool)
	var consumers sync.WaitGroup
	stop := make(chan struct{})
	for c := 0; c < 4; c++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				tk, ok := s.popReady()
				if !ok {
					return
				}
				mu.Lock()
				if active[tk.id] {
					t.Errorf("vertex %d dispatched twice concurrently", tk.id)
				}
				active[tk.id] = true
				mu.Unlock()

				mu.Lock()
				active[tk.id] = false
				mu.Unlock()
				s.done(tk.id, true)
			}
		}()
	}

	wg.Wait()
	s.close()
	close(stop)
	consumers.Wait()
}
