// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock

import (
	"sync"

	"github.com/destiny/zsock/zmtp"
)

// pipeSink receives the events of one pipe end. Sinks are always invoked
// without any pipe lock held and must not block.
type pipeSink interface {
	readActivated(p *pipe)
	writeActivated(p *pipe)
	hiccuped(p *pipe)
	pipeTerminated(p *pipe)
}

// pipeDir is the queue of messages written by one end of a pipe pair.
type pipeDir struct {
	q   *Queue
	hwm int
	lwm int
}

func (d *pipeDir) setHWM(hwm int) {
	d.hwm = hwm
	d.lwm = (hwm + 1) / 2
}

func (d *pipeDir) full() bool {
	return d.hwm > 0 && d.q.Len() >= d.hwm
}

// pipePair connects two pipe ends. Each end writes to its own direction
// and reads from the other one.
type pipePair struct {
	mu   sync.Mutex
	dirs [2]pipeDir
	ends [2]*pipe
}

// pipe is one end of a pipe pair, owned by a socket or a session.
type pipe struct {
	pair *pipePair
	side int
	sink pipeSink

	// guarded by pair.mu
	done      bool // terminated locally or delimiter read
	closing   bool // terminate called on this end
	readWait  bool
	writeWait bool

	// set before the end is handed to its owner
	endpoint   string
	peerID     []byte
	props      zmtp.Metadata
	disconnect *Msg
	hiccupMsg  *Msg

	// owner state
	id        []byte
	routingID uint32
	data      interface{}
}

// newPipePair creates a pair whose first end may queue hwm0 messages
// toward the second one, and the second end hwm1 messages toward the first.
func newPipePair(hwm0, hwm1 int) (*pipe, *pipe) {
	pr := &pipePair{}
	pr.dirs[0] = pipeDir{q: NewQueue()}
	pr.dirs[1] = pipeDir{q: NewQueue()}
	pr.dirs[0].setHWM(hwm0)
	pr.dirs[1].setHWM(hwm1)
	a := &pipe{pair: pr, side: 0}
	b := &pipe{pair: pr, side: 1}
	pr.ends = [2]*pipe{a, b}
	return a, b
}

// pipeHWM returns the queue bound of a pipe crossing two sockets.
func pipeHWM(snd, rcv int) int {
	if snd == 0 || rcv == 0 {
		return 0
	}
	return snd + rcv
}

func (p *pipe) peer() *pipe { return p.pair.ends[1-p.side] }

func (p *pipe) out() *pipeDir { return &p.pair.dirs[p.side] }
func (p *pipe) in() *pipeDir  { return &p.pair.dirs[1-p.side] }

// setOutHWM changes the bound of the messages written by this end.
func (p *pipe) setOutHWM(hwm int) {
	p.pair.mu.Lock()
	p.out().setHWM(hwm)
	p.pair.mu.Unlock()
}

// write queues msg toward the peer. It returns false when the pipe is at
// its high-water mark or when either end has terminated.
func (p *pipe) write(msg Msg) bool {
	pr := p.pair
	pr.mu.Lock()
	peer := p.peer()
	if p.done || peer.done {
		pr.mu.Unlock()
		return false
	}
	out := p.out()
	if out.full() {
		p.writeWait = true
		pr.mu.Unlock()
		return false
	}
	out.q.Push(msg)
	sink := peer.wakeReader()
	pr.mu.Unlock()

	if sink != nil {
		sink.readActivated(peer)
	}
	return true
}

// wakeReader clears the read wait flag and returns the sink to notify, if
// any. It is called with pair.mu held.
func (p *pipe) wakeReader() pipeSink {
	if !p.readWait {
		return nil
	}
	p.readWait = false
	return p.sink
}

// setSink hands the end to its owner.
func (p *pipe) setSink(sink pipeSink) {
	p.pair.mu.Lock()
	p.sink = sink
	p.pair.mu.Unlock()
}

// checkWrite reports whether a write would succeed.
func (p *pipe) checkWrite() bool {
	pr := p.pair
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if p.done || p.peer().done {
		return false
	}
	if p.out().full() {
		p.writeWait = true
		return false
	}
	return true
}

// alive reports whether both ends are still running.
func (p *pipe) alive() bool {
	p.pair.mu.Lock()
	defer p.pair.mu.Unlock()
	return !p.done && !p.peer().done
}

// read dequeues the next message. Reading the delimiter marks the end as
// terminated and notifies the sink.
func (p *pipe) read() (Msg, bool) {
	pr := p.pair
	pr.mu.Lock()
	if p.done {
		pr.mu.Unlock()
		return Msg{}, false
	}
	in := p.in()
	msg, ok := in.q.Peek()
	if !ok {
		p.readWait = true
		pr.mu.Unlock()
		return Msg{}, false
	}
	in.q.Pop()
	if msg.Type == delimMsg {
		p.done = true
		p.out().q.Init()
		pr.mu.Unlock()
		p.sink.pipeTerminated(p)
		return Msg{}, false
	}

	peer := p.peer()
	var sink pipeSink
	if peer.writeWait && !peer.done && in.q.Len() <= in.lwm {
		peer.writeWait = false
		sink = peer.sink
	}
	pr.mu.Unlock()

	if sink != nil {
		sink.writeActivated(peer)
	}
	return msg, true
}

// checkRead reports whether a message is available. A delimiter at the
// head of the queue is consumed.
func (p *pipe) checkRead() bool {
	pr := p.pair
	pr.mu.Lock()
	if p.done {
		pr.mu.Unlock()
		return false
	}
	in := p.in()
	msg, ok := in.q.Peek()
	if !ok {
		p.readWait = true
		pr.mu.Unlock()
		return false
	}
	if msg.Type == delimMsg {
		in.q.Pop()
		p.done = true
		p.out().q.Init()
		pr.mu.Unlock()
		p.sink.pipeTerminated(p)
		return false
	}
	pr.mu.Unlock()
	return true
}

// terminate closes this end. With delay, messages already written stay
// readable by the peer, otherwise they are dropped. The peer receives its
// disconnect message, if any, then the delimiter.
// The owner of this end is not notified.
func (p *pipe) terminate(delay bool) {
	pr := p.pair
	pr.mu.Lock()
	if p.done {
		pr.mu.Unlock()
		return
	}
	p.done = true
	p.closing = true

	out := p.out()
	if !delay {
		out.q.Init()
	}
	peer := p.peer()
	notify := !peer.done
	if notify {
		if peer.disconnect != nil {
			out.q.Push(*peer.disconnect)
		}
		out.q.Push(Msg{Type: delimMsg})
	}
	p.in().q.Init()
	peer.readWait = false
	sink := peer.sink
	pr.mu.Unlock()

	if notify && sink != nil {
		sink.readActivated(peer)
	}
}

// hiccup tells the socket owning the peer end that the connection behind
// this end was lost and will be re-established. Messages the peer queued
// toward the connection are dropped when drop is set.
func (p *pipe) hiccup(drop bool) {
	pr := p.pair
	pr.mu.Lock()
	peer := p.peer()
	if p.done || peer.done {
		pr.mu.Unlock()
		return
	}
	unblock := false
	if drop {
		p.in().q.Init()
		unblock = peer.writeWait
		peer.writeWait = false
	}
	var wake pipeSink
	if m := peer.hiccupMsg; m != nil {
		p.out().q.Push(*m)
		wake = peer.wakeReader()
	}
	sink := peer.sink
	pr.mu.Unlock()

	if sink == nil {
		return
	}
	if wake != nil {
		sink.readActivated(peer)
	}
	if unblock {
		sink.writeActivated(peer)
	}
	sink.hiccuped(peer)
}

// pushHello queues msg toward the peer, ignoring the high-water mark.
func (p *pipe) pushHello(msg Msg) {
	pr := p.pair
	pr.mu.Lock()
	if p.done || p.peer().done {
		pr.mu.Unlock()
		return
	}
	p.out().q.Push(msg)
	peer := p.peer()
	sink := peer.wakeReader()
	pr.mu.Unlock()

	if sink != nil {
		sink.readActivated(peer)
	}
}

// drain discards every message queued toward this end.
func (p *pipe) drain() {
	for {
		if _, ok := p.read(); !ok {
			return
		}
	}
}
