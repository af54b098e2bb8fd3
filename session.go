// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock

import (
	"context"
	"net"
	"time"

	"github.com/destiny/zsock/transport"
	"github.com/destiny/zsock/zmtp"
)

// session owns one connection of a socket and its successors: it dials
// (and redials) connect endpoints, runs an engine per connection and binds
// it to the session end of a pipe.
//
// Apart from its immutable fields, a session is only touched from its
// I/O thread.
type session struct {
	sock     *socketBase
	io       *ioThread
	opts     socketOptions
	log      *Logger
	endpoint string
	connect  bool

	// connect side
	trans transport.Transport
	addr  string

	// bind side
	listener *listener

	pipe   *pipe // session end
	eager  bool  // pipe created before any connection
	eng    *engine
	zap    *pipe
	ivl    time.Duration
	retry  *ioTimer
	linger *ioTimer
	cancel context.CancelFunc

	terminating bool
	draining    bool // terminating once the socket's messages are sent
	finished    bool

	disconnected bool // guarded by sock.mu
}

func newSession(s *socketBase, opts socketOptions, endpoint string, connect bool) *session {
	return &session{
		sock:     s,
		io:       s.zctx.chooseIO(),
		opts:     opts,
		log:      s.log.With("endpoint", endpoint),
		endpoint: endpoint,
		connect:  connect,
		ivl:      opts.reconnectIVL,
	}
}

// newPipe creates the pipe between the session and its socket and returns
// the socket end. props are the peer's properties, when already known.
func (sess *session) newPipe(props zmtp.Metadata) *pipe {
	sockEnd, sessEnd := newPipePair(sess.opts.sndhwm, sess.opts.rcvhwm)
	sockEnd.endpoint = sess.endpoint
	sockEnd.props = props
	switch {
	case sess.connect && sess.opts.connectRID != nil:
		sockEnd.peerID = sess.opts.connectRID
	case props != nil:
		if id, ok := props.Get(zmtp.PropIdentity); ok && id != "" {
			sockEnd.peerID = []byte(id)
		}
	}
	if sess.sock.typ == Stream {
		if sess.opts.streamNotify {
			sockEnd.disconnect = &Msg{Frames: [][]byte{{}}}
		}
	} else {
		sockEnd.disconnect = msgOpt(sess.opts.disconnectMsg)
		sockEnd.hiccupMsg = msgOpt(sess.opts.hiccupMsg)
	}
	sessEnd.setSink(sess)
	sess.pipe = sessEnd
	if sess.eng == nil {
		sess.eager = true
	}
	return sockEnd
}

func (sess *session) event(ev EventType, value uint32) {
	sess.sock.event(ev, value, sess.endpoint)
}

// start begins connecting. It runs on the I/O thread.
func (sess *session) start() {
	if sess.stopped() {
		return
	}
	sess.dial()
}

func (sess *session) dial() {
	ctx, cancel := context.WithCancel(context.Background())
	sess.cancel = cancel
	sess.event(EventConnectDelayed, 0)
	go func() {
		var dialer net.Dialer
		conn, err := sess.trans.Dial(ctx, &dialer, sess.addr)
		sess.io.post(func() { sess.dialed(conn, err) })
	}()
}

func (sess *session) dialed(conn net.Conn, err error) {
	if sess.cancel != nil {
		sess.cancel()
		sess.cancel = nil
	}
	if sess.stopped() {
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		sess.log.Debug("could not dial %s: %v", sess.endpoint, err)
		sess.reconnect()
		return
	}
	sess.event(EventConnected, 0)
	sess.attachConn(conn)
}

// reconnect arms the retry timer, doubling the interval up to its maximum.
func (sess *session) reconnect() {
	if sess.opts.reconnectIVL < 0 {
		sess.finish()
		return
	}
	ivl := sess.ivl
	if max := sess.opts.reconnectIVLMax; max > 0 {
		next := ivl * 2
		if next > max {
			next = max
		}
		sess.ivl = next
	}
	sess.event(EventConnectRetried, uint32(ivl/time.Millisecond))
	sess.retry = sess.io.addTimer(ivl, func() {
		sess.retry = nil
		if !sess.stopped() {
			sess.dial()
		}
	})
}

// attachConn runs an engine over an established connection.
func (sess *session) attachConn(conn net.Conn) {
	if sess.stopped() {
		conn.Close()
		return
	}
	if sess.opts.tos != 0 {
		if err := (transport.Options{TOS: sess.opts.tos}).Apply(conn); err != nil {
			sess.log.Warn("could not set TOS on %s: %v", sess.endpoint, err)
		}
	}
	sess.eng = newEngine(sess, conn)
	sess.eng.start()
}

// engineReady is called once the handshake of eng succeeded.
func (sess *session) engineReady(eng *engine, props zmtp.Metadata) {
	if sess.eng != eng {
		return
	}
	sess.ivl = sess.opts.reconnectIVL
	switch {
	case sess.pipe == nil:
		sockEnd := sess.newPipe(props)
		sess.sock.postAttach(sockEnd)
	case sess.eager && sess.opts.connectRID == nil:
		// the socket end was attached before the peer was known
		sess.sock.postIdentity(sess.pipe.peer(), props)
	}
}

// engineError is called once eng failed and closed its connection.
func (sess *session) engineError(eng *engine, err error) {
	if sess.eng != eng {
		return
	}
	sess.eng = nil
	sess.closeZAP()
	sess.log.Debug("connection on %s lost: %v", sess.endpoint, err)

	if !sess.connect || (sess.terminating && !sess.draining) {
		sess.finish()
		return
	}
	if p := sess.pipe; p != nil && !sess.draining {
		if sess.eager && sess.sock.typ != Stream {
			p.hiccup(true)
		} else {
			sess.pipe = nil
			p.terminate(true)
		}
	}
	sess.reconnect()
}

// engineClosed is called once eng flushed its output after the pipe was
// terminated.
func (sess *session) engineClosed(eng *engine) {
	if sess.eng != eng {
		return
	}
	sess.eng = nil
	sess.finish()
}

// pipeSink

func (sess *session) readActivated(*pipe)  { sess.io.post(sess.onPipeRead) }
func (sess *session) writeActivated(*pipe) { sess.io.post(sess.onPipeWrite) }
func (sess *session) hiccuped(*pipe)       {}
func (sess *session) pipeTerminated(p *pipe) {
	sess.io.post(func() { sess.onPipeTerm(p) })
}

func (sess *session) onPipeRead() {
	switch {
	case sess.eng != nil && sess.eng.active():
		sess.eng.pump()
	case sess.pipe != nil:
		sess.pipe.checkRead()
	}
}

func (sess *session) onPipeWrite() {
	if sess.eng != nil {
		sess.eng.resumeInput()
	}
}

func (sess *session) onPipeTerm(p *pipe) {
	if sess.pipe != p {
		return
	}
	sess.pipe = nil
	if sess.eng != nil {
		sess.eng.closeAfterFlush()
		return
	}
	sess.finish()
}

// terminate stops the session. Pending outbound messages are flushed for
// at most linger, or forever if linger is negative. A connect session
// keeps dialing until they are.
func (sess *session) terminate(linger time.Duration) {
	sess.io.post(func() { sess.doTerminate(linger) })
}

func (sess *session) doTerminate(linger time.Duration) {
	if sess.terminating || sess.finished {
		return
	}
	sess.terminating = true

	if linger == 0 || sess.pipe == nil || (sess.eng == nil && !sess.connect) {
		sess.finish()
		return
	}
	sess.draining = true
	if linger > 0 {
		sess.linger = sess.io.addTimer(linger, func() {
			sess.linger = nil
			sess.finish()
		})
	}
	// the session ends once the delimiter is read from the pipe
	if sess.eng != nil && sess.eng.active() {
		sess.eng.pump()
	} else {
		sess.pipe.checkRead()
	}
}

// stopped reports whether the session must not open new connections.
func (sess *session) stopped() bool {
	return sess.finished || (sess.terminating && !sess.draining)
}

func (sess *session) stopConnecting() {
	if sess.cancel != nil {
		sess.cancel()
		sess.cancel = nil
	}
	sess.io.cancelTimer(sess.retry)
	sess.retry = nil
}

// finish releases everything the session owns and reports it done to the
// socket. It is idempotent.
func (sess *session) finish() {
	if sess.finished {
		return
	}
	sess.finished = true
	sess.terminating = true
	sess.stopConnecting()
	sess.io.cancelTimer(sess.linger)
	sess.linger = nil

	if eng := sess.eng; eng != nil {
		sess.eng = nil
		eng.close()
	}
	sess.closeZAP()
	// messages received from the peer stay readable by the socket
	if p := sess.pipe; p != nil {
		sess.pipe = nil
		p.terminate(true)
	}
	sess.sock.sessionDone(sess)
}

// zapSink routes the events of the ZAP pipe to its session.
type zapSink struct{ sess *session }

func (z zapSink) readActivated(*pipe)  { z.sess.io.post(z.sess.onZAPRead) }
func (z zapSink) writeActivated(*pipe) {}
func (z zapSink) hiccuped(*pipe)       {}
func (z zapSink) pipeTerminated(*pipe) {}

// zapRequest sends req to the context's ZAP handler.
func (sess *session) zapRequest(req *zmtp.ZAPRequest) error {
	if sess.zap == nil {
		p, err := sess.sock.zctx.zapPipe(zapSink{sess})
		if err != nil {
			return err
		}
		sess.zap = p
	}
	frames := append([][]byte{{}}, req.Frames()...)
	if !sess.zap.write(NewMsgFrom(frames...)) {
		return ErrHostUnreachable
	}
	sess.zap.checkRead()
	return nil
}

func (sess *session) onZAPRead() {
	for sess.zap != nil {
		msg, ok := sess.zap.read()
		if !ok {
			return
		}
		frames := msg.Frames
		for len(frames) > 0 {
			empty := len(frames[0]) == 0
			frames = frames[1:]
			if empty {
				break
			}
		}
		rep, err := zmtp.ParseZAPReply(frames)
		if sess.eng != nil {
			sess.eng.zapReply(rep, err)
		}
	}
}

func (sess *session) closeZAP() {
	if sess.zap != nil {
		sess.zap.terminate(false)
		sess.zap = nil
	}
}

var _ pipeSink = (*session)(nil)
