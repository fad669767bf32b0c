// Package runloop provides the serial execution context that owns a
// mediator's state. Every message handler, timer callback and delegate
// completion is posted to a Loop and runs to completion before the next
// task starts.
package runloop

import "sync"

// Loop executes posted tasks one at a time in posting order.
type Loop interface {
	// Post enqueues fn. It reports false when the loop has stopped and fn
	// will never run.
	Post(fn func()) bool
}

// Serial runs tasks on a dedicated goroutine.
type Serial struct {
	mu      sync.Mutex
	queue   []func()
	stopped bool

	wake   chan struct{}
	stopCh chan struct{}
	done   chan struct{}
}

// NewSerial starts a loop goroutine.
func NewSerial() *Serial {
	s := &Serial{
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Serial) Post(fn func()) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, fn)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// Stop rejects further posts, lets the task in progress finish and
// discards the rest. It must not be called from a task.
func (s *Serial) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.stopped = true
	s.queue = nil
	s.mu.Unlock()

	close(s.stopCh)
	<-s.done
}

// Sync blocks until every task posted before it has run. It reports false
// if the loop stopped first.
func (s *Serial) Sync() bool {
	ran := make(chan struct{})
	if !s.Post(func() { close(ran) }) {
		return false
	}
	select {
	case <-ran:
		return true
	case <-s.done:
		return false
	}
}

func (s *Serial) run() {
	defer close(s.done)
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.wake:
		}
		for {
			s.mu.Lock()
			if s.stopped || len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			fn := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.mu.Unlock()
			fn()
		}
	}
}

// Manual queues tasks until the owner drains them with RunUntilIdle. It
// lets tests interleave bus delivery, timer firing and task execution in a
// fixed order.
type Manual struct {
	mu      sync.Mutex
	queue   []func()
	stopped bool
}

// NewManual returns an empty Manual loop.
func NewManual() *Manual { return &Manual{} }

func (m *Manual) Post(fn func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return false
	}
	m.queue = append(m.queue, fn)
	return true
}

// Len returns the number of queued tasks.
func (m *Manual) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// RunOne runs the oldest queued task and reports whether there was one.
func (m *Manual) RunOne() bool {
	m.mu.Lock()
	if len(m.queue) == 0 {
		m.mu.Unlock()
		return false
	}
	fn := m.queue[0]
	m.queue[0] = nil
	m.queue = m.queue[1:]
	m.mu.Unlock()
	fn()
	return true
}

// RunUntilIdle runs tasks, including ones posted meanwhile, until the
// queue is empty and returns how many ran.
func (m *Manual) RunUntilIdle() int {
	n := 0
	for m.RunOne() {
		n++
	}
	return n
}

// Stop discards queued tasks and rejects further posts.
func (m *Manual) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	m.queue = nil
}
