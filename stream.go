// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock

// NewStream returns a new STREAM socket, exchanging raw bytes with TCP
// peers that do not speak ZMTP.
// The returned socket value is initially unbound.
//
// Messages are made of the peer's identity followed by the data. When
// STREAM_NOTIFY is set (the default), an empty data frame is received
// when a peer connects and when it disconnects. Sending an empty data
// frame closes the connection to the peer.
func NewStream(zctx *Context, opts ...Option) (Socket, error) {
	return newSocket(zctx, Stream, opts...)
}

type streamStrategy struct {
	noHooks
	s   *socketBase
	fq  fairQueue
	out map[string]*pipe
	ids routingIDs
}

func newStreamStrategy(s *socketBase) *streamStrategy {
	return &streamStrategy{
		s:   s,
		out: make(map[string]*pipe),
		ids: newRoutingIDs(),
	}
}

func (st *streamStrategy) attachPipe(p *pipe) {
	id := p.peerID
	if _, dup := st.out[string(id)]; len(id) == 0 || dup {
		id = st.ids.generate()
	}
	p.id = id
	st.out[string(id)] = p
	st.fq.add(p)
}

func (st *streamStrategy) pipeTerminated(p *pipe) {
	st.fq.remove(p)
	if cur, ok := st.out[string(p.id)]; ok && cur == p {
		delete(st.out, string(p.id))
	}
}

func (st *streamStrategy) readActivated(p *pipe) { st.fq.activate(p) }
func (st *streamStrategy) writeActivated(*pipe)  {}

func (st *streamStrategy) recv() (Msg, error) {
	msg, p, err := st.fq.recvPipe()
	if err != nil {
		return msg, err
	}
	frames := make([][]byte, 0, len(msg.Frames)+1)
	frames = append(frames, p.id)
	msg.Frames = append(frames, msg.Frames...)
	return msg, nil
}

func (st *streamStrategy) send(msg Msg) error {
	if len(msg.Frames) < 2 {
		return ErrFSM
	}
	p, ok := st.out[string(msg.Frames[0])]
	if !ok {
		return ErrHostUnreachable
	}
	data := msg.Frames[1:]
	if len(data) == 1 && len(data[0]) == 0 {
		st.s.terminatePipe(p, true)
		return nil
	}
	if !p.write(Msg{Frames: data}) {
		if !p.alive() {
			return ErrHostUnreachable
		}
		return ErrAgain
	}
	return nil
}

func (st *streamStrategy) hasIn() bool  { return st.fq.hasIn() }
func (st *streamStrategy) hasOut() bool { return true }
