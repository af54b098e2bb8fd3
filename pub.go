// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock

// NewPub returns a new PUB ZeroMQ socket.
// The returned socket value is initially unbound.
func NewPub(zctx *Context, opts ...Option) (Socket, error) {
	return newSocket(zctx, Pub, opts...)
}

// NewXPub returns a new XPUB ZeroMQ socket.
// The returned socket value is initially unbound.
func NewXPub(zctx *Context, opts ...Option) (Socket, error) {
	return newSocket(zctx, XPub, opts...)
}

// isSubscription reports whether a message received by a publisher is a
// subscribe (1) or unsubscribe (0) request.
func isSubscription(msg Msg) (subscribe, ok bool) {
	if len(msg.Frames) != 1 || len(msg.Frames[0]) == 0 {
		return false, false
	}
	switch msg.Frames[0][0] {
	case 1:
		return true, true
	case 0:
		return false, true
	}
	return false, false
}

// xpubStrategy distributes messages to the peers subscribed to their
// first frame. Peers at their high-water mark miss the message.
//
// XPUB sockets also hand the subscriptions, and any other message sent by
// their peers, to the application.
type xpubStrategy struct {
	noHooks
	s      *socketBase
	x      bool
	pipes  []*pipe
	subs   *trie // union of the peers' subscriptions
	queued []Msg
}

func newXPubStrategy(s *socketBase, x bool) *xpubStrategy {
	return &xpubStrategy{s: s, x: x, subs: newTrie()}
}

func pipeSubs(p *pipe) *trie {
	return p.data.(*trie)
}

func (xp *xpubStrategy) attachPipe(p *pipe) {
	p.data = newTrie()
	xp.pipes = append(xp.pipes, p)
}

func (xp *xpubStrategy) pipeTerminated(p *pipe) {
	for i, v := range xp.pipes {
		if v == p {
			xp.pipes = append(xp.pipes[:i], xp.pipes[i+1:]...)
			break
		}
	}
	pipeSubs(p).walk(func(topic []byte, _ int) {
		if xp.subs.rm(topic) && xp.x {
			xp.queued = append(xp.queued, NewMsg(append([]byte{0}, topic...)))
		}
	})
}

func (xp *xpubStrategy) readActivated(p *pipe) {
	for {
		msg, ok := p.read()
		if !ok {
			return
		}
		subscribe, isSub := isSubscription(msg)
		if !isSub {
			if xp.x {
				msg.props = p.props
				xp.queued = append(xp.queued, msg)
			}
			continue
		}

		topic := msg.Frames[0][1:]
		forward := false
		if subscribe {
			if pipeSubs(p).add(topic) {
				forward = xp.subs.add(topic)
			}
			forward = forward || xp.s.opts.xpubVerbose
		} else if pipeSubs(p).rm(topic) {
			forward = xp.subs.rm(topic)
		}
		if forward && xp.x {
			msg.props = p.props
			xp.queued = append(xp.queued, msg)
		}
	}
}

func (xp *xpubStrategy) writeActivated(*pipe) {}

func (xp *xpubStrategy) matching(msg Msg) []*pipe {
	var topic []byte
	if len(msg.Frames) > 0 {
		topic = msg.Frames[0]
	}
	var out []*pipe
	for _, p := range xp.pipes {
		if pipeSubs(p).match(topic) {
			out = append(out, p)
		}
	}
	return out
}

func (xp *xpubStrategy) send(msg Msg) error {
	pipes := xp.matching(msg)
	if xp.x && xp.s.opts.xpubNoDrop {
		for _, p := range pipes {
			if !p.checkWrite() && p.alive() {
				return ErrAgain
			}
		}
	}
	for _, p := range pipes {
		p.write(msg)
	}
	return nil
}

func (xp *xpubStrategy) recv() (Msg, error) {
	if !xp.x {
		return Msg{}, ErrNotSupported
	}
	if len(xp.queued) == 0 {
		return Msg{}, ErrAgain
	}
	msg := xp.queued[0]
	xp.queued[0] = Msg{}
	xp.queued = xp.queued[1:]
	return msg, nil
}

func (xp *xpubStrategy) hasIn() bool { return len(xp.queued) > 0 }

func (xp *xpubStrategy) hasOut() bool {
	if !xp.x || !xp.s.opts.xpubNoDrop {
		return true
	}
	for _, p := range xp.pipes {
		if !p.checkWrite() && p.alive() {
			return false
		}
	}
	return true
}
