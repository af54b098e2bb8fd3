// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock

import (
	"container/heap"
	"sync"
	"time"
)

// ioTimer is a one-shot timer owned by an I/O thread.
type ioTimer struct {
	when  time.Time
	fn    func()
	index int
}

type timerHeap []*ioTimer

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].when.Before(h[j].when) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x interface{}) {
	tm := x.(*ioTimer)
	tm.index = len(*h)
	*h = append(*h, tm)
}

func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	tm := old[n-1]
	old[n-1] = nil
	tm.index = -1
	*h = old[:n-1]
	return tm
}

// ioThread runs the sessions and engines assigned to it. Every callback
// posted to the thread, and every timer it fires, runs on its goroutine,
// one at a time.
type ioThread struct {
	id  int
	log *Logger

	mu    sync.Mutex
	tasks []func()
	wake  chan struct{}

	// owned by the loop goroutine
	timers timerHeap

	quit chan struct{}
	done chan struct{}
}

func newIOThread(id int, log *Logger) *ioThread {
	io := &ioThread{
		id:   id,
		log:  log,
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go io.run()
	return io
}

// post schedules fn on the thread. It never blocks.
func (io *ioThread) post(fn func()) {
	io.mu.Lock()
	io.tasks = append(io.tasks, fn)
	io.mu.Unlock()

	select {
	case io.wake <- struct{}{}:
	default:
	}
}

// addTimer arms a timer calling fn after d. It must be called from the
// thread itself.
func (io *ioThread) addTimer(d time.Duration, fn func()) *ioTimer {
	tm := &ioTimer{when: time.Now().Add(d), fn: fn}
	heap.Push(&io.timers, tm)
	return tm
}

// cancelTimer disarms tm. It must be called from the thread itself.
func (io *ioThread) cancelTimer(tm *ioTimer) {
	if tm == nil || tm.index < 0 {
		return
	}
	heap.Remove(&io.timers, tm.index)
}

func (io *ioThread) run() {
	defer close(io.done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		next := io.fireTimers()
		var tc <-chan time.Time
		if !next.IsZero() {
			timer.Reset(time.Until(next))
			tc = timer.C
		}

		select {
		case <-io.wake:
		case <-tc:
		case <-io.quit:
			io.runTasks()
			return
		}
		timer.Stop()
		io.runTasks()
	}
}

// fireTimers runs the expired timers and returns the next deadline.
func (io *ioThread) fireTimers() time.Time {
	for len(io.timers) > 0 {
		tm := io.timers[0]
		if time.Now().Before(tm.when) {
			return tm.when
		}
		heap.Pop(&io.timers)
		tm.fn()
		io.runTasks()
	}
	return time.Time{}
}

func (io *ioThread) runTasks() {
	for {
		io.mu.Lock()
		tasks := io.tasks
		io.tasks = nil
		io.mu.Unlock()
		if len(tasks) == 0 {
			return
		}
		for _, fn := range tasks {
			fn()
		}
	}
}

// stop terminates the thread once its queued tasks have run.
func (io *ioThread) stop() {
	close(io.quit)
	<-io.done
}
