// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/destiny/zsock/zmtp"
)

// signal is a broadcast condition: wait returns a channel closed by the
// next notify.
type signal struct {
	mu       sync.Mutex
	ch       chan struct{}
	watchers map[chan struct{}]struct{}
}

func newSignal() *signal {
	return &signal{
		ch:       make(chan struct{}),
		watchers: make(map[chan struct{}]struct{}),
	}
}

func (sig *signal) wait() <-chan struct{} {
	sig.mu.Lock()
	defer sig.mu.Unlock()
	return sig.ch
}

func (sig *signal) notify() {
	sig.mu.Lock()
	close(sig.ch)
	sig.ch = make(chan struct{})
	for w := range sig.watchers {
		select {
		case w <- struct{}{}:
		default:
		}
	}
	sig.mu.Unlock()
}

// watch registers a buffered channel poked on every notify.
func (sig *signal) watch(w chan struct{}) {
	sig.mu.Lock()
	sig.watchers[w] = struct{}{}
	sig.mu.Unlock()
}

func (sig *signal) unwatch(w chan struct{}) {
	sig.mu.Lock()
	delete(sig.watchers, w)
	sig.mu.Unlock()
}

type pipeEventKind int

const (
	evAttach pipeEventKind = iota
	evRead
	evWrite
	evHiccup
	evTerm
	evIdentity
)

// pipeEvent is a pipe notification waiting for the socket to process it.
type pipeEvent struct {
	kind  pipeEventKind
	p     *pipe
	props zmtp.Metadata // evIdentity
}

// socketBase implements the Socket interface common to all socket types.
// The routing policy of each type is delegated to its strategy.
//
// Pipe notifications are queued by any goroutine and processed by the
// goroutine calling into the socket, under s.mu.
type socketBase struct {
	zctx *Context
	typ  SocketType
	log  *Logger
	sig  *signal

	mu           sync.Mutex
	opts         socketOptions
	strategy     strategy
	closed       bool
	pipes        map[*pipe]struct{}
	listeners    []*listener
	sessions     map[*session]struct{}
	inprocEPs    []string
	lastEndpoint string
	reap         sync.WaitGroup

	cmdMu sync.Mutex
	cmds  []pipeEvent
	dead  bool

	monMu sync.Mutex
	mon   *monitor
}

func newSocketBase(zctx *Context, typ SocketType, opts ...Option) (*socketBase, error) {
	if zctx == nil {
		return nil, fmt.Errorf("zsock: nil context")
	}
	s := &socketBase{
		zctx:     zctx,
		typ:      typ,
		sig:      newSignal(),
		opts:     defaultOptions(zctx.defaultLinger()),
		pipes:    make(map[*pipe]struct{}),
		sessions: make(map[*session]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.opts.log == nil {
		s.opts.log = zctx.log
	}
	s.log = s.opts.log.With("socket", string(typ))

	st, err := newStrategy(s)
	if err != nil {
		return nil, err
	}
	s.strategy = st

	if err := zctx.register(s); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *socketBase) base() *socketBase { return s }

// pipeSink

func (s *socketBase) readActivated(p *pipe)  { s.post(evRead, p) }
func (s *socketBase) writeActivated(p *pipe) { s.post(evWrite, p) }
func (s *socketBase) hiccuped(p *pipe)       { s.post(evHiccup, p) }
func (s *socketBase) pipeTerminated(p *pipe) { s.post(evTerm, p) }

func (s *socketBase) post(kind pipeEventKind, p *pipe) {
	s.postEvent(pipeEvent{kind: kind, p: p})
}

// postIdentity hands the properties of a peer to the socket once the
// connection behind an already attached pipe is established.
func (s *socketBase) postIdentity(p *pipe, props zmtp.Metadata) {
	s.postEvent(pipeEvent{kind: evIdentity, p: p, props: props})
}

func (s *socketBase) postEvent(ev pipeEvent) {
	s.cmdMu.Lock()
	if s.dead {
		s.cmdMu.Unlock()
		return
	}
	s.cmds = append(s.cmds, ev)
	s.cmdMu.Unlock()
	s.sig.notify()
}

// postAttach hands a new pipe end to the socket. The end is terminated
// when the socket is already closed.
func (s *socketBase) postAttach(p *pipe) {
	p.setSink(s)
	s.cmdMu.Lock()
	if s.dead {
		s.cmdMu.Unlock()
		p.terminate(false)
		return
	}
	s.cmds = append(s.cmds, pipeEvent{kind: evAttach, p: p})
	s.cmdMu.Unlock()
	s.sig.notify()
}

// processCommands applies the queued pipe notifications. It is called
// with s.mu held.
func (s *socketBase) processCommands() {
	for {
		s.cmdMu.Lock()
		cmds := s.cmds
		s.cmds = nil
		s.cmdMu.Unlock()
		if len(cmds) == 0 {
			return
		}

		for _, ev := range cmds {
			if ev.kind == evAttach {
				s.attach(ev.p)
				continue
			}
			if _, ok := s.pipes[ev.p]; !ok {
				continue
			}
			switch ev.kind {
			case evRead:
				if ev.p.checkRead() {
					s.strategy.readActivated(ev.p)
				}
			case evWrite:
				s.strategy.writeActivated(ev.p)
			case evHiccup:
				s.strategy.hiccuped(ev.p)
			case evTerm:
				s.detach(ev.p)
			case evIdentity:
				s.identify(ev.p, ev.props)
			}
		}
	}
}

func (s *socketBase) attach(p *pipe) {
	p.setSink(s)
	s.pipes[p] = struct{}{}
	s.strategy.attachPipe(p)
	if _, ok := s.pipes[p]; ok && p.checkRead() {
		s.strategy.readActivated(p)
	}
}

func (s *socketBase) detach(p *pipe) {
	if _, ok := s.pipes[p]; !ok {
		return
	}
	delete(s.pipes, p)
	s.strategy.pipeTerminated(p)
}

// identify records the properties of the peer of p, and lets the strategy
// route p by the identity the peer announced.
func (s *socketBase) identify(p *pipe, props zmtp.Metadata) {
	p.props = props
	p.peerID = nil
	if id, ok := props.Get(zmtp.PropIdentity); ok && id != "" {
		p.peerID = []byte(id)
	}
	if r, ok := s.strategy.(reidentifier); ok {
		r.reidentify(p)
	}
}

// terminatePipe closes a pipe on the socket's own initiative.
func (s *socketBase) terminatePipe(p *pipe, delay bool) {
	p.terminate(delay)
	s.detach(p)
}

// wait runs op until it stops reporting ErrAgain, blocking in between as
// allowed by flags, the send or receive timeout and ctx.
func (s *socketBase) wait(ctx context.Context, flags Flag, sending bool, op func() error) error {
	var timeout <-chan time.Time
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return ErrClosed
		}
		if s.zctx.terminated() {
			s.mu.Unlock()
			return ErrTerminated
		}
		ch := s.sig.wait()
		s.processCommands()
		err := op()
		d := s.opts.rcvtimeo
		if sending {
			d = s.opts.sndtimeo
		}
		s.mu.Unlock()

		if !errors.Is(err, ErrAgain) {
			return err
		}
		if flags&DontWait != 0 || d == 0 {
			return ErrAgain
		}
		if d > 0 && timeout == nil {
			tm := time.NewTimer(d)
			defer tm.Stop()
			timeout = tm.C
		}

		select {
		case <-ch:
		case <-timeout:
			return ErrAgain
		case <-ctx.Done():
			return ErrCanceled
		case <-s.zctx.term:
			return ErrTerminated
		}
	}
}

// Close closes the open Socket. Pending outbound messages are flushed in
// the background as per the linger option.
func (s *socketBase) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true

	s.cmdMu.Lock()
	s.dead = true
	cmds := s.cmds
	s.cmds = nil
	s.cmdMu.Unlock()
	for _, ev := range cmds {
		if ev.kind == evAttach {
			ev.p.terminate(false)
		}
	}

	linger := s.opts.linger
	listeners := s.listeners
	s.listeners = nil
	for _, l := range listeners {
		l.close()
	}
	for _, name := range s.inprocEPs {
		s.zctx.unbindInproc(name, s)
	}
	s.inprocEPs = nil
	s.zctx.dropPending(s)

	for sess := range s.sessions {
		sess.terminate(linger)
	}
	for p := range s.pipes {
		p.terminate(linger != 0)
	}
	s.pipes = make(map[*pipe]struct{})
	s.mu.Unlock()

	s.sig.notify()
	for _, l := range listeners {
		<-l.done
		s.event(EventClosed, 0, l.endpoint)
	}
	s.stopMonitor()

	go func() {
		s.reap.Wait()
		s.zctx.reaped(s)
	}()
	return nil
}

// Send puts the message on the outbound send queue.
// Send blocks until the message can be queued or the send timeout expires.
func (s *socketBase) Send(msg Msg) error {
	return s.send(context.Background(), msg, 0)
}

// SendFlags is Send with flags, e.g. DontWait.
func (s *socketBase) SendFlags(msg Msg, flags Flag) error {
	return s.send(context.Background(), msg, flags)
}

// SendContext is Send, aborted with ErrCanceled when ctx is done.
func (s *socketBase) SendContext(ctx context.Context, msg Msg) error {
	return s.send(ctx, msg, 0)
}

func (s *socketBase) send(ctx context.Context, msg Msg, flags Flag) error {
	if msg.Type != UsrMsg {
		return fmt.Errorf("zsock: invalid message type %d", msg.Type)
	}
	switch {
	case s.typ.singlePart() && len(msg.Frames) != 1:
		return ErrMultipart
	case len(msg.Frames) == 0:
		return errEmptyMsg
	}
	msg.props = nil
	msg.err = nil
	return s.wait(ctx, flags, true, func() error {
		return s.strategy.send(msg)
	})
}

// Recv receives a complete message.
func (s *socketBase) Recv() (Msg, error) {
	return s.recv(context.Background(), 0)
}

// RecvFlags is Recv with flags, e.g. DontWait.
func (s *socketBase) RecvFlags(flags Flag) (Msg, error) {
	return s.recv(context.Background(), flags)
}

// RecvContext is Recv, aborted with ErrCanceled when ctx is done.
func (s *socketBase) RecvContext(ctx context.Context) (Msg, error) {
	return s.recv(ctx, 0)
}

func (s *socketBase) recv(ctx context.Context, flags Flag) (Msg, error) {
	var msg Msg
	err := s.wait(ctx, flags, false, func() error {
		var err error
		msg, err = s.strategy.recv()
		return err
	})
	if err != nil {
		msg.err = err
	}
	return msg, err
}

// Listen connects a local endpoint to the Socket.
func (s *socketBase) Listen(endpoint string) error {
	network, addr, err := splitAddr(endpoint)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if network == "inproc" {
		if err := s.zctx.bindInproc(addr, s); err != nil {
			s.event(EventBindFailed, 0, endpoint)
			return err
		}
		s.inprocEPs = append(s.inprocEPs, addr)
		s.lastEndpoint = endpoint
		s.event(EventListening, 0, endpoint)
		return nil
	}

	trans, _ := drivers.get(network)
	ln, err := trans.Listen(context.Background(), addr)
	if err != nil {
		s.event(EventBindFailed, errno(err), endpoint)
		if errors.Is(err, syscall.EADDRINUSE) {
			return fmt.Errorf("zsock: could not listen to %q: %w (%w)", endpoint, ErrAddrInUse, err)
		}
		return fmt.Errorf("zsock: could not listen to %q: %w", endpoint, err)
	}

	l := newListener(s, endpoint, trans.Endpoint(network, ln), ln)
	s.listeners = append(s.listeners, l)
	s.lastEndpoint = l.endpoint
	s.log.Debug("listening on %s", l.endpoint)
	s.event(EventListening, 0, l.endpoint)
	go l.accept()
	return nil
}

// accepted starts a session for a connection accepted by l.
func (s *socketBase) accepted(l *listener, conn net.Conn) {
	s.mu.Lock()
	if s.closed || l.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	sess := newSession(s, s.opts.clone(), l.endpoint, false)
	sess.listener = l
	s.addSession(sess)
	s.mu.Unlock()

	s.event(EventAccepted, 0, l.endpoint)
	sess.io.post(func() { sess.attachConn(conn) })
}

// Dial connects a remote endpoint to the Socket.
// Connection happens in the background, and is retried as per the
// reconnection interval.
func (s *socketBase) Dial(endpoint string) error {
	_, err := s.connect(endpoint, false)
	return err
}

// ConnectPeer dials endpoint and returns the routing id of the peer to
// send messages to. Only PEER sockets support it.
func (s *socketBase) ConnectPeer(endpoint string) (uint32, error) {
	if s.typ != Peer {
		return 0, ErrNotSupported
	}
	p, err := s.connect(endpoint, true)
	if err != nil {
		return 0, err
	}
	return p.routingID, nil
}

func (s *socketBase) connect(endpoint string, force bool) (*pipe, error) {
	network, addr, err := splitAddr(endpoint)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	s.processCommands()

	if network == "inproc" {
		p := s.zctx.connectInproc(s, addr, endpoint)
		s.lastEndpoint = endpoint
		return p, nil
	}

	trans, _ := drivers.get(network)
	sess := newSession(s, s.opts.clone(), endpoint, true)
	sess.trans = trans
	sess.addr = addr

	var p *pipe
	if force || (!s.opts.immediate && s.typ != Stream) {
		p = sess.newPipe(nil)
		s.attach(p)
	}
	s.addSession(sess)
	s.lastEndpoint = endpoint
	sess.io.post(sess.start)
	return p, nil
}

// addSession is called with s.mu held.
func (s *socketBase) addSession(sess *session) {
	s.sessions[sess] = struct{}{}
	s.reap.Add(1)
}

// sessionDone is called by a session once it released its resources.
func (s *socketBase) sessionDone(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
	s.reap.Done()
}

// Unbind stops listening on endpoint and closes the connections accepted
// from it.
func (s *socketBase) Unbind(endpoint string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}

	if name := strings.TrimPrefix(endpoint, "inproc://"); name != endpoint {
		idx := -1
		for i, ep := range s.inprocEPs {
			if ep == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			s.mu.Unlock()
			return fmt.Errorf("zsock: endpoint %q not bound: %w", endpoint, ErrInvalidEndpoint)
		}
		s.inprocEPs = append(s.inprocEPs[:idx], s.inprocEPs[idx+1:]...)
		s.zctx.unbindInproc(name, s)
		s.terminateEndpointPipes(endpoint)
		s.mu.Unlock()
		s.event(EventClosed, 0, endpoint)
		return nil
	}

	idx := -1
	for i, l := range s.listeners {
		if l.spec == endpoint || l.endpoint == endpoint {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("zsock: endpoint %q not bound: %w", endpoint, ErrInvalidEndpoint)
	}
	l := s.listeners[idx]
	s.listeners = append(s.listeners[:idx], s.listeners[idx+1:]...)
	l.close()
	for sess := range s.sessions {
		if sess.listener == l && !sess.disconnected {
			sess.disconnected = true
			sess.terminate(s.opts.linger)
		}
	}
	s.terminateEndpointPipes(l.endpoint)
	s.mu.Unlock()

	<-l.done
	s.event(EventClosed, 0, l.endpoint)
	return nil
}

// Disconnect closes the connection to a dialed endpoint.
func (s *socketBase) Disconnect(endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.processCommands()

	found := false
	for sess := range s.sessions {
		if sess.connect && sess.endpoint == endpoint && !sess.disconnected {
			sess.disconnected = true
			sess.terminate(s.opts.linger)
			found = true
		}
	}
	if s.terminateEndpointPipes(endpoint) {
		found = true
	}
	if !found {
		return fmt.Errorf("zsock: endpoint %q not connected: %w", endpoint, ErrInvalidEndpoint)
	}
	return nil
}

func (s *socketBase) terminateEndpointPipes(endpoint string) bool {
	found := false
	for p := range s.pipes {
		if p.endpoint == endpoint {
			s.terminatePipe(p, s.opts.linger != 0)
			found = true
		}
	}
	return found
}

// Type returns the type of this Socket (PUB, SUB, ...)
func (s *socketBase) Type() SocketType {
	return s.typ
}

// Addr returns the listener's address.
// Addr returns nil if the socket isn't a listener.
func (s *socketBase) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.listeners) == 0 {
		return nil
	}
	return s.listeners[0].ln.Addr()
}

// GetOption is used to retrieve an option for a socket.
func (s *socketBase) GetOption(name string) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch name {
	case OptionLastEndpoint:
		return s.lastEndpoint, nil
	case OptionType:
		return s.typ, nil
	case OptionEvents:
		if s.closed {
			return nil, ErrClosed
		}
		return s.events(), nil
	}
	return s.opts.get(name)
}

// SetOption is used to set an option for a socket.
func (s *socketBase) SetOption(name string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.processCommands()
	if handled, err := s.strategy.setOption(name, value); handled {
		return err
	}
	return s.opts.set(name, value)
}

// events returns the poll events ready on the socket. It is called with
// s.mu held.
func (s *socketBase) events() PollEvent {
	s.processCommands()
	var ev PollEvent
	if s.strategy.hasIn() {
		ev |= PollIn
	}
	if s.strategy.hasOut() {
		ev |= PollOut
	}
	return ev
}

// splitAddr returns the triplet (network, addr, error)
func splitAddr(v string) (network, addr string, err error) {
	ep := strings.SplitN(v, "://", 2)
	if len(ep) != 2 || ep[1] == "" {
		return "", "", fmt.Errorf("zsock: invalid address %q: %w", v, ErrInvalidEndpoint)
	}
	network = ep[0]
	if network == "inproc" {
		return network, ep[1], nil
	}

	trans, ok := drivers.get(network)
	if !ok {
		return "", "", UnknownTransportError{Name: network}
	}

	addr, err = trans.Addr(ep[1])
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrInvalidEndpoint, err)
	}
	return network, addr, nil
}

func errno(err error) uint32 {
	var en syscall.Errno
	if errors.As(err, &en) {
		return uint32(en)
	}
	return 0
}

var (
	_ Socket   = (*socketBase)(nil)
	_ pipeSink = (*socketBase)(nil)
)
