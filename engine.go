// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/destiny/zsock/zmtp"
)

const (
	readBufferSize   = 8192
	maxPendingOutput = 64 * 1024
)

var (
	errHandshakeTimeout = errors.New("zsock: handshake timed out")
	errHeartbeatTimeout = errors.New("zsock: heartbeat timed out")
	errHeartbeatTTL     = errors.New("zsock: peer heartbeat TTL expired")
)

type engineState int

const (
	engGreeting engineState = iota
	engHandshake
	engActive
	engClosing
	engClosed
)

// engine runs the ZMTP protocol over one connection: greeting, security
// handshake, then message framing between the connection and the
// session's pipe.
//
// The engine state machine runs on the session's I/O thread. A reader
// goroutine feeds it input chunks, one at a time, and waits to be resumed
// before reading more; a writer goroutine performs the vectored writes.
type engine struct {
	sess *session
	io   *ioThread
	conn net.Conn
	opts *socketOptions
	log  *Logger
	typ  SocketType
	raw  bool

	state      engineState
	handshaken bool
	sec        zmtp.Security
	mech       zmtp.Mechanism
	greet      []byte
	v31        bool
	dec        *zmtp.Decoder
	enc        *zmtp.Encoder
	peerAddr   string
	props      zmtp.Metadata
	zapMD      zmtp.Metadata

	in      []byte
	paused  bool
	parts   [][]byte
	stalled *Msg

	writing bool
	failErr error // reported once the pending output is written

	handshakeTimer *ioTimer
	hbTimer        *ioTimer
	hbTimeoutTimer *ioTimer
	hbTTLTimer     *ioTimer

	wch    chan net.Buffers
	resume chan struct{}
	done   chan struct{}
}

func newEngine(sess *session, conn net.Conn) *engine {
	eng := &engine{
		sess:   sess,
		io:     sess.io,
		conn:   conn,
		opts:   &sess.opts,
		log:    sess.log,
		typ:    sess.sock.typ,
		raw:    sess.sock.typ == Stream,
		wch:    make(chan net.Buffers, 1),
		resume: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	eng.peerAddr = conn.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(eng.peerAddr); err == nil {
		eng.peerAddr = host
	}
	if eng.raw {
		eng.dec = zmtp.NewRawDecoder()
		eng.enc = zmtp.NewRawEncoder()
	} else {
		eng.dec = zmtp.NewDecoder(sess.opts.maxMsgSize)
		eng.enc = zmtp.NewEncoder()
	}
	return eng
}

// start sends the greeting and starts the I/O goroutines.
func (eng *engine) start() {
	go eng.readLoop()
	go eng.writeLoop()

	if eng.raw {
		eng.props = zmtp.Metadata{zmtp.PropPeerAddress: eng.peerAddr}
		eng.state = engActive
		eng.handshaken = true
		eng.sess.engineReady(eng, eng.props)
		if eng.opts.streamNotify {
			eng.deliver(Msg{Frames: [][]byte{{}}})
		}
		eng.pump()
		return
	}

	sec, err := eng.opts.security()
	if err != nil {
		eng.fail(err)
		return
	}
	mech, err := sec.NewMechanism(zmtp.Config{
		Metadata:  eng.opts.localMetadata(eng.typ),
		ZAP:       eng.sess.sock.zctx.hasZAP(),
		ZAPDomain: eng.opts.zapDomain,
		Address:   eng.peerAddr,
	})
	if err != nil {
		eng.fail(err)
		return
	}
	eng.sec = sec
	eng.mech = mech

	greeting, err := zmtp.NewGreeting(sec.Type(), sec.AsServer()).Marshal()
	if err != nil {
		eng.fail(err)
		return
	}
	eng.enc.EncodeRaw(greeting)
	eng.flush()

	if ivl := eng.opts.handshakeIVL; ivl > 0 {
		eng.handshakeTimer = eng.io.addTimer(ivl, func() {
			eng.handshakeTimer = nil
			eng.fail(errHandshakeTimeout)
		})
	}
}

func (eng *engine) active() bool { return eng.state == engActive }

func (eng *engine) readLoop() {
	buf := make([]byte, readBufferSize)
	for {
		n, err := eng.conn.Read(buf)
		if n > 0 {
			data := buf[:n]
			eng.io.post(func() { eng.onInput(data) })
			select {
			case <-eng.resume:
			case <-eng.done:
				return
			}
		}
		if err != nil {
			eng.io.post(func() { eng.onReadError(err) })
			return
		}
	}
}

func (eng *engine) writeLoop() {
	for bufs := range eng.wch {
		_, err := bufs.WriteTo(eng.conn)
		eng.io.post(func() { eng.onWritten(err) })
		if err != nil {
			return
		}
	}
}

func (eng *engine) onInput(data []byte) {
	if eng.state == engClosed {
		return
	}
	eng.paused = true
	eng.in = data
	eng.processInput()
}

// processInput consumes the pending input chunk until it is exhausted or
// the pipe is full, then lets the reader go on.
func (eng *engine) processInput() {
	for len(eng.in) > 0 && eng.stalled == nil {
		switch eng.state {
		case engGreeting:
			eng.readGreeting()
		case engHandshake, engActive:
			n, f, ok, err := eng.dec.Decode(eng.in)
			eng.in = eng.in[n:]
			if err != nil {
				eng.fail(err)
				return
			}
			if !ok {
				continue
			}
			if eng.state == engHandshake {
				eng.onHandshakeFrame(f)
			} else {
				eng.onFrame(f)
			}
		default:
			eng.in = nil
		}
		if eng.state == engClosed {
			return
		}
	}
	if eng.stalled != nil {
		return
	}
	eng.in = nil
	if eng.paused {
		eng.paused = false
		eng.resume <- struct{}{}
	}
}

func (eng *engine) readGreeting() {
	need := zmtp.GreetingSize - len(eng.greet)
	if need > len(eng.in) {
		need = len(eng.in)
	}
	eng.greet = append(eng.greet, eng.in[:need]...)
	eng.in = eng.in[need:]
	if err := zmtp.CheckSignature(eng.greet); err != nil {
		eng.fail(err)
		return
	}
	if len(eng.greet) < zmtp.GreetingSize {
		return
	}

	g, err := zmtp.ParseGreeting(eng.greet)
	if err != nil {
		eng.fail(err)
		return
	}
	if g.Mechanism != eng.sec.Type() {
		eng.fail(zmtp.Protocolf("%v: peer announced %q, expected %q", zmtp.ErrMechanism, g.Mechanism, eng.sec.Type()))
		return
	}
	eng.v31 = g.Supports31()
	eng.state = engHandshake
	eng.nextHandshake()
}

// nextHandshake sends what the mechanism has to say, forwards its ZAP
// request and completes the handshake once it is ready.
func (eng *engine) nextHandshake() {
	for {
		cmd, err := eng.mech.NextHandshakeCommand()
		if errors.Is(err, zmtp.ErrAgain) {
			break
		}
		if err != nil {
			eng.abort(err)
			return
		}
		if err := eng.encodeCmd(cmd); err != nil {
			eng.fail(err)
			return
		}
	}
	if req := eng.mech.ZAPRequest(); req != nil {
		if err := eng.sess.zapRequest(req); err != nil {
			eng.abort(&zmtp.AuthError{Status: 500, Reason: err.Error()})
			return
		}
	}
	eng.flush()

	switch eng.mech.Status() {
	case zmtp.Ready:
		eng.handshakeDone()
	case zmtp.Failed:
		eng.abort(zmtp.Protocolf("%s handshake failed", eng.sec.Type()))
	}
}

func (eng *engine) onHandshakeFrame(f zmtp.Frame) {
	if !f.IsCommand() {
		eng.abort(zmtp.Protocolf("message frame received during handshake"))
		return
	}
	cmd, err := zmtp.ParseCmd(f.Body)
	if err != nil {
		eng.abort(err)
		return
	}
	if err := eng.mech.ProcessHandshakeCommand(cmd); err != nil {
		eng.abort(err)
		return
	}
	eng.nextHandshake()
}

// zapReply feeds the ZAP handler's verdict to the mechanism.
func (eng *engine) zapReply(rep zmtp.ZAPReply, err error) {
	if eng.state != engHandshake {
		return
	}
	if err != nil {
		eng.abort(&zmtp.AuthError{Status: 500, Reason: err.Error()})
		return
	}
	if err := eng.mech.ProcessZAPReply(rep); err != nil {
		eng.abort(err)
		return
	}
	eng.zapMD = rep.Metadata
	eng.nextHandshake()
}

// abort sends the ERROR command the mechanism may have queued, then fails
// the connection with err.
func (eng *engine) abort(err error) {
	if eng.state >= engClosing {
		return
	}
	for {
		cmd, cerr := eng.mech.NextHandshakeCommand()
		if cerr != nil {
			break
		}
		if eng.encodeCmd(cmd) != nil {
			break
		}
	}
	eng.state = engClosing
	eng.failErr = err
	eng.in = nil
	eng.flush()
	if !eng.writing {
		eng.fail(err)
	}
}

func (eng *engine) handshakeDone() {
	eng.io.cancelTimer(eng.handshakeTimer)
	eng.handshakeTimer = nil

	props := make(zmtp.Metadata)
	for k, v := range eng.zapMD {
		props[zmtp.CanonicalName(k)] = v
	}
	for k, v := range eng.mech.PeerMetadata() {
		props[zmtp.CanonicalName(k)] = v
	}
	peerType, _ := props.Get(zmtp.PropSocketType)
	if !eng.typ.IsCompatible(SocketType(strings.ToUpper(peerType))) {
		eng.fail(zmtp.Protocolf("socket type %s is not compatible with %q", eng.typ, peerType))
		return
	}
	if uid := eng.mech.UserID(); uid != "" {
		props[zmtp.PropUserID] = uid
	}
	props[zmtp.PropPeerAddress] = eng.peerAddr
	eng.props = props

	eng.state = engActive
	eng.handshaken = true
	eng.log.Debug("handshake with %s succeeded (%s)", eng.peerAddr, eng.sec.Type())
	eng.sess.event(EventHandshakeSucceeded, 0)
	eng.startHeartbeat()

	if hello := eng.opts.helloMsg; hello != nil {
		if err := eng.encodeMsg(NewMsg(hello)); err != nil {
			eng.fail(err)
			return
		}
	}
	eng.sess.engineReady(eng, props)
	eng.pump()
}

// onFrame handles a frame received once the handshake is done.
func (eng *engine) onFrame(f zmtp.Frame) {
	if eng.raw {
		// raw chunks carry no framing; the stream socket adds the peer id
		eng.deliver(Msg{Frames: [][]byte{f.Body}})
		return
	}
	f, err := eng.mech.Decode(f)
	if err != nil {
		eng.fail(err)
		return
	}
	eng.heard()

	if f.IsCommand() {
		eng.onCommand(f.Body)
		return
	}
	eng.parts = append(eng.parts, f.Body)
	if f.More() {
		if eng.typ.singlePart() && eng.typ != Dish {
			eng.fail(zmtp.Protocolf("multipart message received by %s socket", eng.typ))
		}
		return
	}
	msg := Msg{Frames: eng.parts}
	eng.parts = nil
	if eng.typ == Dish {
		if len(msg.Frames) != 2 {
			eng.fail(zmtp.Protocolf("DISH message with %d frames", len(msg.Frames)))
			return
		}
		msg = Msg{Frames: msg.Frames[1:], Group: string(msg.Frames[0])}
	}
	eng.deliver(msg)
}

func (eng *engine) onCommand(body []byte) {
	cmd, err := zmtp.ParseCmd(body)
	if err != nil {
		eng.fail(err)
		return
	}
	switch cmd.Name {
	case zmtp.CmdPing:
		ttl, ctx, err := zmtp.ParsePing(cmd.Body)
		if err != nil {
			eng.fail(err)
			return
		}
		if ttl > 0 {
			eng.io.cancelTimer(eng.hbTTLTimer)
			eng.hbTTLTimer = eng.io.addTimer(time.Duration(ttl)*100*time.Millisecond, func() {
				eng.hbTTLTimer = nil
				eng.fail(errHeartbeatTTL)
			})
		}
		if err := eng.encodeCmd(zmtp.Cmd{Name: zmtp.CmdPong, Body: ctx}); err != nil {
			eng.fail(err)
			return
		}
		eng.flush()
	case zmtp.CmdPong:
	case zmtp.CmdError:
		eng.fail(zmtp.PeerError(cmd.Body))
	case zmtp.CmdSubscribe:
		eng.deliver(NewMsg(append([]byte{1}, cmd.Body...)))
	case zmtp.CmdCancel:
		eng.deliver(NewMsg(append([]byte{0}, cmd.Body...)))
	case zmtp.CmdJoin, zmtp.CmdLeave:
		eng.deliver(newCmdMsg(cmd.Name, cmd.Body))
	default:
		eng.log.Debug("ignoring %s command from %s", cmd.Name, eng.peerAddr)
	}
}

// deliver writes msg to the pipe. The engine stalls when the pipe is full
// until the socket reads from it.
func (eng *engine) deliver(msg Msg) {
	p := eng.sess.pipe
	if p == nil {
		return
	}
	msg.props = eng.props
	if !p.write(msg) && p.alive() {
		eng.stalled = &msg
	}
}

// resumeInput retries the stalled message and processes the rest of the
// input.
func (eng *engine) resumeInput() {
	if eng.state != engActive || eng.stalled == nil {
		return
	}
	if p := eng.sess.pipe; p != nil {
		if !p.write(*eng.stalled) && p.alive() {
			return
		}
	}
	eng.stalled = nil
	eng.processInput()
}

// pump moves messages from the pipe to the connection.
func (eng *engine) pump() {
	if eng.state != engActive {
		return
	}
	p := eng.sess.pipe
	for p != nil && eng.enc.Len() < maxPendingOutput {
		msg, ok := p.read()
		if !ok {
			break
		}
		if err := eng.encodeMsg(msg); err != nil {
			eng.fail(err)
			return
		}
	}
	eng.flush()
}

func (eng *engine) encodeMsg(msg Msg) error {
	if msg.isCmd() {
		return eng.encodeCmd(msg.cmd())
	}
	if eng.raw {
		for _, frame := range msg.Frames {
			eng.enc.Encode(zmtp.Frame{Body: frame})
		}
		return nil
	}
	frames := msg.Frames
	if eng.typ == Radio {
		frames = [][]byte{[]byte(msg.Group), frames[0]}
	}
	for i, frame := range frames {
		var flags zmtp.Flag
		if i < len(frames)-1 {
			flags = zmtp.FlagMore
		}
		f, err := eng.mech.Encode(zmtp.Frame{Flags: flags, Body: frame})
		if err != nil {
			return err
		}
		eng.enc.Encode(f)
	}
	return nil
}

func (eng *engine) encodeCmd(cmd zmtp.Cmd) error {
	f, err := zmtp.CommandFrame(cmd)
	if err != nil {
		return err
	}
	if eng.handshaken {
		f, err = eng.mech.Encode(f)
		if err != nil {
			return err
		}
	}
	eng.enc.Encode(f)
	return nil
}

// flush hands the encoded output to the writer, unless a write is in
// flight.
func (eng *engine) flush() {
	if eng.state == engClosed || eng.writing || eng.enc.Len() == 0 {
		return
	}
	eng.writing = true
	eng.wch <- eng.enc.Flush()
}

func (eng *engine) onWritten(err error) {
	eng.writing = false
	if eng.state == engClosed {
		return
	}
	if err != nil {
		eng.fail(err)
		return
	}
	eng.flush()
	if eng.writing {
		return
	}
	switch {
	case eng.failErr != nil:
		eng.fail(eng.failErr)
	case eng.state == engClosing:
		eng.close()
		eng.sess.engineClosed(eng)
	case eng.state == engActive:
		eng.pump()
	}
}

func (eng *engine) onReadError(err error) {
	switch {
	case eng.state == engClosed:
	case eng.failErr != nil:
		eng.fail(eng.failErr)
	case eng.state == engClosing:
		eng.close()
		eng.sess.engineClosed(eng)
	default:
		eng.fail(err)
	}
}

// closeAfterFlush closes the connection once the pending output is
// written.
func (eng *engine) closeAfterFlush() {
	if eng.state >= engClosing {
		return
	}
	eng.state = engClosing
	eng.in = nil
	eng.flush()
	if !eng.writing {
		eng.close()
		eng.sess.engineClosed(eng)
	}
}

func (eng *engine) startHeartbeat() {
	if eng.opts.hbIVL <= 0 || !eng.v31 {
		return
	}
	eng.hbTimer = eng.io.addTimer(eng.opts.hbIVL, eng.sendPing)
}

func (eng *engine) sendPing() {
	eng.hbTimer = nil
	if eng.state != engActive {
		return
	}
	if err := eng.encodeCmd(zmtp.PingCmd(eng.opts.heartbeatTTL(), eng.opts.hbCtx)); err != nil {
		eng.fail(err)
		return
	}
	eng.flush()
	if eng.hbTimeoutTimer == nil {
		eng.hbTimeoutTimer = eng.io.addTimer(eng.opts.heartbeatTimeout(), func() {
			eng.hbTimeoutTimer = nil
			eng.fail(errHeartbeatTimeout)
		})
	}
	eng.hbTimer = eng.io.addTimer(eng.opts.hbIVL, eng.sendPing)
}

// heard is called on any frame received from the peer.
func (eng *engine) heard() {
	eng.io.cancelTimer(eng.hbTimeoutTimer)
	eng.hbTimeoutTimer = nil
	eng.io.cancelTimer(eng.hbTTLTimer)
	eng.hbTTLTimer = nil
}

// close releases the connection. The session is not notified.
func (eng *engine) close() {
	if eng.state == engClosed {
		return
	}
	eng.state = engClosed
	for _, tm := range []*ioTimer{eng.handshakeTimer, eng.hbTimer, eng.hbTimeoutTimer, eng.hbTTLTimer} {
		eng.io.cancelTimer(tm)
	}
	eng.handshakeTimer, eng.hbTimer, eng.hbTimeoutTimer, eng.hbTTLTimer = nil, nil, nil, nil
	eng.in = nil
	eng.stalled = nil
	close(eng.done)
	close(eng.wch)
	eng.conn.Close()
}

// fail closes the connection, reports err on the monitor and hands the
// session over to its error handling.
func (eng *engine) fail(err error) {
	if eng.state == engClosed {
		return
	}
	eng.close()

	if !eng.handshaken {
		var (
			auth  *zmtp.AuthError
			proto *zmtp.ProtocolError
		)
		switch {
		case errors.As(err, &auth):
			eng.sess.event(EventHandshakeFailedAuth, uint32(auth.Status))
		case errors.As(err, &proto) || isWireError(err):
			eng.sess.event(EventHandshakeFailedProtocol, 0)
		default:
			eng.sess.event(EventHandshakeFailedNoDetail, 0)
		}
		eng.log.Debug("handshake with %s failed: %v", eng.peerAddr, err)
	} else if isWireError(err) {
		eng.log.Warn("protocol error from %s: %v", eng.peerAddr, err)
	}
	eng.sess.event(EventDisconnected, 0)
	eng.sess.engineError(eng, fmt.Errorf("zsock: connection to %s: %w", eng.peerAddr, err))
}

// isWireError reports whether err is a malformed input error.
func isWireError(err error) bool {
	for _, target := range []error{
		zmtp.ErrGreeting, zmtp.ErrBadFrame, zmtp.ErrBadCmd,
		zmtp.ErrMsgSize, zmtp.ErrOverflow, zmtp.ErrMechanism,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	var proto *zmtp.ProtocolError
	return errors.As(err, &proto)
}
