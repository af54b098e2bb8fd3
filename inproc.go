// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock

import (
	"fmt"

	"github.com/destiny/zsock/zmtp"
)

// inprocBinding is a socket bound to an inproc endpoint, with the options
// it had when it was bound.
type inprocBinding struct {
	sock *socketBase
	opts socketOptions
}

// inprocPending is a connection to an inproc endpoint nobody bound yet.
// The connecting socket already owns its end of the pipe.
type inprocPending struct {
	sock     *socketBase
	opts     socketOptions
	endpoint string
	cEnd     *pipe
	bEnd     *pipe
}

func msgOpt(frame []byte) *Msg {
	if frame == nil {
		return nil
	}
	msg := NewMsg(frame)
	return &msg
}

func inprocMetadata(typ SocketType, opts *socketOptions) zmtp.Metadata {
	return opts.localMetadata(typ)
}

// bindInproc binds s to name and completes the pending connections to
// it. It is called with s.mu held.
func (ctx *Context) bindInproc(name string, s *socketBase) error {
	ctx.mu.Lock()
	if _, dup := ctx.inproc[name]; dup {
		ctx.mu.Unlock()
		return fmt.Errorf("zsock: inproc endpoint %q: %w", name, ErrAddrInUse)
	}
	b := &inprocBinding{sock: s, opts: s.opts.clone()}
	ctx.inproc[name] = b
	pending := ctx.pending[name]
	delete(ctx.pending, name)
	ctx.mu.Unlock()

	for _, pc := range pending {
		pc.cEnd.setOutHWM(pipeHWM(pc.opts.sndhwm, b.opts.rcvhwm))
		pc.bEnd.setOutHWM(pipeHWM(b.opts.sndhwm, pc.opts.rcvhwm))
		pc.bEnd.peerID = pc.opts.id
		pc.bEnd.props = inprocMetadata(pc.sock.typ, &pc.opts)
		pc.bEnd.disconnect = msgOpt(b.opts.disconnectMsg)
		if b.opts.helloMsg != nil {
			pc.bEnd.pushHello(NewMsg(b.opts.helloMsg))
		}
		s.attach(pc.bEnd)
	}
	return nil
}

func (ctx *Context) unbindInproc(name string, s *socketBase) {
	ctx.mu.Lock()
	if b, ok := ctx.inproc[name]; ok && b.sock == s {
		delete(ctx.inproc, name)
	}
	ctx.mu.Unlock()
}

// dropPending forgets the pending inproc connections of a closed socket.
func (ctx *Context) dropPending(s *socketBase) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	for name, list := range ctx.pending {
		kept := list[:0]
		for _, pc := range list {
			if pc.sock != s {
				kept = append(kept, pc)
			}
		}
		if len(kept) == 0 {
			delete(ctx.pending, name)
			continue
		}
		ctx.pending[name] = kept
	}
}

// connectInproc connects s to the inproc endpoint name and attaches the
// socket's end of the new pipe. It is called with s.mu held.
func (ctx *Context) connectInproc(s *socketBase, name, endpoint string) *pipe {
	ctx.mu.Lock()
	b, bound := ctx.inproc[name]
	var cEnd, bEnd *pipe
	if bound {
		cEnd, bEnd = newPipePair(
			pipeHWM(s.opts.sndhwm, b.opts.rcvhwm),
			pipeHWM(b.opts.sndhwm, s.opts.rcvhwm),
		)
		cEnd.endpoint, bEnd.endpoint = endpoint, endpoint
	} else {
		cEnd, bEnd = newPipePair(s.opts.sndhwm, s.opts.rcvhwm)
		cEnd.endpoint, bEnd.endpoint = endpoint, endpoint
		ctx.pending[name] = append(ctx.pending[name], &inprocPending{
			sock:     s,
			opts:     s.opts.clone(),
			endpoint: endpoint,
			cEnd:     cEnd,
			bEnd:     bEnd,
		})
	}
	ctx.mu.Unlock()

	cEnd.peerID = s.opts.connectRID
	cEnd.disconnect = msgOpt(s.opts.disconnectMsg)
	if bound {
		if cEnd.peerID == nil {
			cEnd.peerID = b.opts.id
		}
		cEnd.props = inprocMetadata(b.sock.typ, &b.opts)
		bEnd.peerID = s.opts.id
		bEnd.props = inprocMetadata(s.typ, &s.opts)
		bEnd.disconnect = msgOpt(b.opts.disconnectMsg)
		if b.opts.helloMsg != nil {
			bEnd.pushHello(NewMsg(b.opts.helloMsg))
		}
	}
	if s.opts.helloMsg != nil {
		cEnd.pushHello(NewMsg(s.opts.helloMsg))
	}

	s.attach(cEnd)
	if bound {
		b.sock.postAttach(bEnd)
	}
	return cEnd
}

// hasZAP reports whether a ZAP handler is bound.
func (ctx *Context) hasZAP() bool {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	_, ok := ctx.inproc[zmtp.ZAPEndpoint]
	return ok
}

// zapPipe connects sink to the ZAP handler and returns its pipe end.
func (ctx *Context) zapPipe(sink pipeSink) (*pipe, error) {
	ctx.mu.Lock()
	b, ok := ctx.inproc[zmtp.ZAPEndpoint]
	ctx.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("zsock: no ZAP handler bound at inproc://%s", zmtp.ZAPEndpoint)
	}

	p, hp := newPipePair(0, 0)
	p.setSink(sink)
	hp.endpoint = "inproc://" + zmtp.ZAPEndpoint
	hp.props = zmtp.Metadata{zmtp.PropSocketType: string(Dealer)}
	b.sock.postAttach(hp)
	return p, nil
}
