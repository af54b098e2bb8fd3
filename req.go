// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock

import (
	"bytes"
	"encoding/binary"
)

// NewReq returns a new REQ ZeroMQ socket.
// The returned socket value is initially unbound.
func NewReq(zctx *Context, opts ...Option) (Socket, error) {
	return newSocket(zctx, Req, opts...)
}

// reqStrategy sends requests round-robin and only accepts the reply to
// the last one, from the peer it was sent to.
type reqStrategy struct {
	noHooks
	s  *socketBase
	lb loadBalancer
	fq fairQueue

	receiving bool
	replyPipe *pipe
	reqID     uint32
}

func (req *reqStrategy) attachPipe(p *pipe) {
	req.lb.add(p)
	req.fq.add(p)
}

func (req *reqStrategy) pipeTerminated(p *pipe) {
	req.lb.remove(p)
	req.fq.remove(p)
	if req.replyPipe == p {
		req.replyPipe = nil
	}
}

func (req *reqStrategy) readActivated(p *pipe)  { req.fq.activate(p) }
func (req *reqStrategy) writeActivated(p *pipe) { req.lb.activate(p) }

func (req *reqStrategy) send(msg Msg) error {
	if req.receiving && !req.s.opts.reqRelaxed {
		return ErrFSM
	}

	frames := make([][]byte, 0, len(msg.Frames)+2)
	id := req.reqID + 1
	if req.s.opts.reqCorrelate {
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], id)
		frames = append(frames, buf[:])
	}
	frames = append(frames, []byte{})
	frames = append(frames, msg.Frames...)

	p, err := req.lb.sendPipe(Msg{Frames: frames})
	if err != nil {
		return err
	}
	req.reqID = id
	req.replyPipe = p
	req.receiving = true
	return nil
}

func (req *reqStrategy) recv() (Msg, error) {
	if !req.receiving {
		return Msg{}, ErrFSM
	}
	for {
		msg, p, err := req.fq.recvPipe()
		if err != nil {
			return msg, err
		}
		if p != req.replyPipe {
			continue
		}
		body, ok := req.unwrap(msg.Frames)
		if !ok {
			continue
		}
		req.receiving = false
		req.replyPipe = nil
		msg.Frames = body
		return msg, nil
	}
}

// unwrap strips the envelope of a reply, checking it matches the
// outstanding request.
func (req *reqStrategy) unwrap(frames [][]byte) ([][]byte, bool) {
	if req.s.opts.reqCorrelate {
		var want [4]byte
		binary.BigEndian.PutUint32(want[:], req.reqID)
		if len(frames) < 1 || !bytes.Equal(frames[0], want[:]) {
			return nil, false
		}
		frames = frames[1:]
	}
	if len(frames) < 2 || len(frames[0]) != 0 {
		return nil, false
	}
	return frames[1:], true
}

func (req *reqStrategy) hasIn() bool {
	return req.receiving && req.fq.hasIn()
}

func (req *reqStrategy) hasOut() bool {
	if req.receiving && !req.s.opts.reqRelaxed {
		return false
	}
	return req.lb.hasOut()
}
