// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock

// NewRep returns a new REP ZeroMQ socket.
// The returned socket value is initially unbound.
func NewRep(zctx *Context, opts ...Option) (Socket, error) {
	return newSocket(zctx, Rep, opts...)
}

// repStrategy fair-queues requests and routes each reply back through
// the envelope of its request.
type repStrategy struct {
	noHooks
	s  *socketBase
	fq fairQueue

	replying  bool
	replyPipe *pipe
	envelope  [][]byte
}

func (rep *repStrategy) attachPipe(p *pipe) { rep.fq.add(p) }

func (rep *repStrategy) pipeTerminated(p *pipe) {
	rep.fq.remove(p)
	if rep.replyPipe == p {
		rep.replyPipe = nil
	}
}

func (rep *repStrategy) readActivated(p *pipe) { rep.fq.activate(p) }
func (rep *repStrategy) writeActivated(*pipe)  {}

func (rep *repStrategy) recv() (Msg, error) {
	if rep.replying {
		return Msg{}, ErrFSM
	}
	for {
		msg, p, err := rep.fq.recvPipe()
		if err != nil {
			return msg, err
		}
		i := 0
		for i < len(msg.Frames) && len(msg.Frames[i]) != 0 {
			i++
		}
		if i >= len(msg.Frames)-1 {
			// no delimiter or no body: not a request
			continue
		}
		rep.envelope = msg.Frames[:i+1]
		rep.replyPipe = p
		rep.replying = true
		msg.Frames = msg.Frames[i+1:]
		return msg, nil
	}
}

func (rep *repStrategy) send(msg Msg) error {
	if !rep.replying {
		return ErrFSM
	}
	frames := make([][]byte, 0, len(rep.envelope)+len(msg.Frames))
	frames = append(frames, rep.envelope...)
	frames = append(frames, msg.Frames...)
	if p := rep.replyPipe; p != nil {
		// a reply to a peer at its high-water mark is dropped
		p.write(Msg{Frames: frames})
	}
	rep.replying = false
	rep.replyPipe = nil
	rep.envelope = nil
	return nil
}

func (rep *repStrategy) hasIn() bool  { return !rep.replying && rep.fq.hasIn() }
func (rep *repStrategy) hasOut() bool { return rep.replying }
