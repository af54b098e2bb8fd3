// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock

import (
	"fmt"
	"time"

	"github.com/destiny/zsock/security/curve"
	"github.com/destiny/zsock/security/null"
	"github.com/destiny/zsock/security/plain"
	"github.com/destiny/zsock/zmtp"
)

const (
	defaultHWM          = 1000
	defaultHandshakeIVL = 30 * time.Second
	defaultReconnectIVL = 100 * time.Millisecond

	// maxHeartbeatTTL is the largest TTL a PING can carry.
	maxHeartbeatTTL = time.Duration(0xffff) * 100 * time.Millisecond
)

// Option configures some aspect of a ZeroMQ socket.
// (e.g. SocketIdentity, Security, ...)
type Option func(s *socketBase)

// WithID configures a ZeroMQ socket identity.
func WithID(id SocketIdentity) Option {
	return func(s *socketBase) {
		s.opts.id = id
	}
}

// WithSecurity configures a ZeroMQ socket to use the given security mechanism.
// If the security mechanims is nil, the mechanism is derived from the
// PLAIN_* and CURVE_* options, NULL by default.
func WithSecurity(sec zmtp.Security) Option {
	return func(s *socketBase) {
		s.opts.sec = sec
	}
}

// WithTimeout sets the timeout value for Send and Recv.
// A negative value blocks forever.
func WithTimeout(timeout time.Duration) Option {
	return func(s *socketBase) {
		s.opts.sndtimeo = timeout
		s.opts.rcvtimeo = timeout
	}
}

// WithLogger sets a dedicated Logger for the socket.
func WithLogger(log *Logger) Option {
	return func(s *socketBase) {
		s.opts.log = log
	}
}

// WithHeartbeatIVL sets the interval between sending ZMTP heartbeats (PING commands).
// If this option is set and is greater than 0, then a PING ZMTP command will be sent
// every heartbeatIVL. Per RFC 37/ZMTP 3.1.
func WithHeartbeatIVL(heartbeatIVL time.Duration) Option {
	return func(s *socketBase) {
		s.opts.hbIVL = heartbeatIVL
	}
}

// WithHeartbeatTTL sets the timeout on the remote peer for ZMTP heartbeats.
// If this option is greater than 0, the remote side shall time out the connection
// if it does not receive any more traffic within the TTL period.
// TTL is carried in deciseconds (1/10th second) with max value 6553.5 seconds.
func WithHeartbeatTTL(heartbeatTTL time.Duration) Option {
	return func(s *socketBase) {
		if heartbeatTTL > maxHeartbeatTTL {
			heartbeatTTL = maxHeartbeatTTL
		}
		s.opts.hbTTL = heartbeatTTL
	}
}

// WithHeartbeatTimeout sets how long to wait before timing-out a connection
// after sending a PING ZMTP command and not receiving any traffic.
// It defaults to the heartbeat interval.
func WithHeartbeatTimeout(heartbeatTimeout time.Duration) Option {
	return func(s *socketBase) {
		s.opts.hbTimeout = heartbeatTimeout
	}
}

// WithLinger sets how long pending outbound messages are kept when the
// socket is closed. A negative value waits forever.
func WithLinger(linger time.Duration) Option {
	return func(s *socketBase) {
		s.opts.linger = linger
	}
}

// WithHWM sets both the send and the receive high-water marks.
// 0 means no limit.
func WithHWM(hwm int) Option {
	return func(s *socketBase) {
		s.opts.sndhwm = hwm
		s.opts.rcvhwm = hwm
	}
}

// WithImmediate restricts message queueing to completed connections.
func WithImmediate(immediate bool) Option {
	return func(s *socketBase) {
		s.opts.immediate = immediate
	}
}

// WithReconnectIVL sets the initial reconnection interval, and the
// maximum the interval doubles up to when max > 0.
// A negative ivl disables reconnection.
func WithReconnectIVL(ivl, max time.Duration) Option {
	return func(s *socketBase) {
		s.opts.reconnectIVL = ivl
		s.opts.reconnectIVLMax = max
	}
}

// WithHelloMsg sets the message sent to every new peer.
func WithHelloMsg(msg []byte) Option {
	return func(s *socketBase) {
		s.opts.helloMsg = msg
	}
}

// WithDisconnectMsg sets the message received when a peer disconnects.
func WithDisconnectMsg(msg []byte) Option {
	return func(s *socketBase) {
		s.opts.disconnectMsg = msg
	}
}

// WithHiccupMsg sets the message received when a connection to a dialed
// peer is lost and about to be retried.
func WithHiccupMsg(msg []byte) Option {
	return func(s *socketBase) {
		s.opts.hiccupMsg = msg
	}
}

// WithMetadata adds application properties announced to peers during the
// handshake. Names must start with "X-".
func WithMetadata(md zmtp.Metadata) Option {
	return func(s *socketBase) {
		if s.opts.metadata == nil {
			s.opts.metadata = make(zmtp.Metadata, len(md))
		}
		for k, v := range md {
			s.opts.metadata[zmtp.CanonicalName(k)] = v
		}
	}
}

const (
	OptionSubscribe   = "SUBSCRIBE"
	OptionUnsubscribe = "UNSUBSCRIBE"
	OptionHWM         = "HWM"
	OptionSndHWM      = "SNDHWM"
	OptionRcvHWM      = "RCVHWM"
	OptionLinger      = "LINGER"
	OptionSndTimeo    = "SNDTIMEO"
	OptionRcvTimeo    = "RCVTIMEO"
	OptionIdentity    = "IDENTITY"
	OptionRoutingID   = "ROUTING_ID"
	OptionConnectRID  = "CONNECT_ROUTING_ID"

	// ZMTP 3.1 Heartbeat Options (RFC 37)
	OptionHeartbeatIVL     = "ZMQ_HEARTBEAT_IVL"     // Interval between PING commands
	OptionHeartbeatTTL     = "ZMQ_HEARTBEAT_TTL"     // Timeout for remote peer (max 6553.5s)
	OptionHeartbeatTimeout = "ZMQ_HEARTBEAT_TIMEOUT" // Local timeout after sending PING
	OptionHeartbeatContext = "HEARTBEAT_CONTEXT"

	OptionHandshakeIVL    = "HANDSHAKE_IVL"
	OptionRouterMandatory = "ROUTER_MANDATORY"
	OptionRouterHandover  = "ROUTER_HANDOVER"
	OptionReqRelaxed      = "REQ_RELAXED"
	OptionReqCorrelate    = "REQ_CORRELATE"
	OptionXPubVerbose     = "XPUB_VERBOSE"
	OptionXPubNoDrop      = "XPUB_NODROP"
	OptionImmediate       = "IMMEDIATE"
	OptionReconnectIVL    = "RECONNECT_IVL"
	OptionReconnectIVLMax = "RECONNECT_IVL_MAX"
	OptionMaxMsgSize      = "MAXMSGSIZE"
	OptionTOS             = "TOS"
	OptionHelloMsg        = "HELLO_MSG"
	OptionDisconnectMsg   = "DISCONNECT_MSG"
	OptionHiccupMsg       = "HICCUP_MSG"
	OptionStreamNotify    = "STREAM_NOTIFY"

	OptionPlainServer    = "PLAIN_SERVER"
	OptionPlainUsername  = "PLAIN_USERNAME"
	OptionPlainPassword  = "PLAIN_PASSWORD"
	OptionCurveServer    = "CURVE_SERVER"
	OptionCurvePublic    = "CURVE_PUBLICKEY"
	OptionCurveSecret    = "CURVE_SECRETKEY"
	OptionCurveServerKey = "CURVE_SERVERKEY"
	OptionZAPDomain      = "ZAP_DOMAIN"

	OptionJoin  = "JOIN"
	OptionLeave = "LEAVE"

	// read-only
	OptionLastEndpoint = "LAST_ENDPOINT"
	OptionType         = "TYPE"
	OptionEvents       = "EVENTS"
)

// socketOptions holds the configuration of a socket. Sessions work on a
// copy taken when they are created.
type socketOptions struct {
	sndhwm int
	rcvhwm int

	linger   time.Duration
	sndtimeo time.Duration
	rcvtimeo time.Duration

	id         SocketIdentity
	connectRID []byte
	metadata   zmtp.Metadata

	sec            zmtp.Security
	plainServer    bool
	plainUser      string
	plainPass      string
	curveServer    bool
	curvePublic    *[curve.KeySize]byte
	curveSecret    *[curve.KeySize]byte
	curveServerKey *[curve.KeySize]byte
	zapDomain      string

	hbIVL     time.Duration
	hbTTL     time.Duration
	hbTimeout time.Duration
	hbCtx     []byte

	handshakeIVL    time.Duration
	reconnectIVL    time.Duration
	reconnectIVLMax time.Duration
	immediate       bool
	maxMsgSize      int64
	tos             int

	helloMsg      []byte
	disconnectMsg []byte
	hiccupMsg     []byte

	routerMandatory bool
	routerHandover  bool
	reqRelaxed      bool
	reqCorrelate    bool
	xpubVerbose     bool
	xpubNoDrop      bool
	streamNotify    bool

	log *Logger
}

func defaultOptions(linger time.Duration) socketOptions {
	return socketOptions{
		sndhwm:       defaultHWM,
		rcvhwm:       defaultHWM,
		linger:       linger,
		sndtimeo:     -1,
		rcvtimeo:     -1,
		handshakeIVL: defaultHandshakeIVL,
		reconnectIVL: defaultReconnectIVL,
		maxMsgSize:   -1,
		streamNotify: true,
	}
}

// security returns the mechanism new connections negotiate.
func (o *socketOptions) security() (zmtp.Security, error) {
	switch {
	case o.sec != nil:
		return o.sec, nil
	case o.curveServer:
		if o.curveSecret == nil {
			return nil, fmt.Errorf("zsock: CURVE server needs %s: %w", OptionCurveSecret, ErrBadProperty)
		}
		kp, err := curve.NewKeyPairFromSecret(*o.curveSecret)
		if err != nil {
			return nil, fmt.Errorf("zsock: invalid CURVE secret key: %w", err)
		}
		return curve.NewServerSecurity(kp), nil
	case o.curveServerKey != nil:
		if o.curveSecret == nil {
			return nil, fmt.Errorf("zsock: CURVE client needs %s: %w", OptionCurveSecret, ErrBadProperty)
		}
		kp, err := curve.NewKeyPairFromSecret(*o.curveSecret)
		if err != nil {
			return nil, fmt.Errorf("zsock: invalid CURVE secret key: %w", err)
		}
		if o.curvePublic != nil && *o.curvePublic != kp.Public {
			return nil, fmt.Errorf("zsock: CURVE public key does not match secret key: %w", ErrBadProperty)
		}
		return curve.NewClientSecurity(kp, *o.curveServerKey), nil
	case o.plainServer:
		return plain.ServerSecurity(), nil
	case o.plainUser != "" || o.plainPass != "":
		return plain.Security(o.plainUser, o.plainPass), nil
	}
	return null.Security(), nil
}

// localMetadata returns the properties announced during the handshake.
func (o *socketOptions) localMetadata(typ SocketType) zmtp.Metadata {
	md := zmtp.Metadata{zmtp.PropSocketType: string(typ)}
	if len(o.id) > 0 {
		md[zmtp.PropIdentity] = string(o.id)
	}
	for k, v := range o.metadata {
		md[k] = v
	}
	return md
}

func (o *socketOptions) heartbeatTimeout() time.Duration {
	if o.hbTimeout > 0 {
		return o.hbTimeout
	}
	return o.hbIVL
}

func (o *socketOptions) heartbeatTTL() uint16 {
	return uint16(o.hbTTL / (100 * time.Millisecond))
}

func (o *socketOptions) clone() socketOptions {
	c := *o
	if o.metadata != nil {
		c.metadata = make(zmtp.Metadata, len(o.metadata))
		for k, v := range o.metadata {
			c.metadata[k] = v
		}
	}
	return c
}

// set applies a string-keyed option. Options handled by the socket
// type are dispatched before.
func (o *socketOptions) set(name string, value interface{}) error {
	var err error
	switch name {
	case OptionHWM:
		var v int
		if v, err = toInt(value); err == nil && v >= 0 {
			o.sndhwm, o.rcvhwm = v, v
		}
	case OptionSndHWM:
		o.sndhwm, err = toCount(value)
	case OptionRcvHWM:
		o.rcvhwm, err = toCount(value)
	case OptionLinger:
		o.linger, err = toDuration(value)
	case OptionSndTimeo:
		o.sndtimeo, err = toDuration(value)
	case OptionRcvTimeo:
		o.rcvtimeo, err = toDuration(value)
	case OptionIdentity, OptionRoutingID:
		var id []byte
		if id, err = toBytes(value); err == nil {
			if len(id) > 255 || (len(id) > 0 && id[0] == 0) {
				return fmt.Errorf("zsock: invalid routing id %q: %w", id, ErrBadProperty)
			}
			o.id = SocketIdentity(id)
		}
	case OptionConnectRID:
		var id []byte
		if id, err = toBytes(value); err == nil {
			if len(id) == 0 || len(id) > 255 {
				return fmt.Errorf("zsock: invalid connect routing id %q: %w", id, ErrBadProperty)
			}
			o.connectRID = id
		}
	case OptionHeartbeatIVL:
		o.hbIVL, err = toDuration(value)
	case OptionHeartbeatTTL:
		var d time.Duration
		if d, err = toDuration(value); err == nil {
			if d > maxHeartbeatTTL {
				return fmt.Errorf("zsock: heartbeat TTL exceeds maximum of %v: %w", maxHeartbeatTTL, ErrBadProperty)
			}
			o.hbTTL = d
		}
	case OptionHeartbeatTimeout:
		o.hbTimeout, err = toDuration(value)
	case OptionHeartbeatContext:
		var ctx []byte
		if ctx, err = toBytes(value); err == nil {
			if len(ctx) > zmtp.MaxPingContext {
				return fmt.Errorf("zsock: heartbeat context too long: %w", ErrBadProperty)
			}
			o.hbCtx = ctx
		}
	case OptionHandshakeIVL:
		o.handshakeIVL, err = toDuration(value)
	case OptionRouterMandatory:
		o.routerMandatory, err = toBool(value)
	case OptionRouterHandover:
		o.routerHandover, err = toBool(value)
	case OptionReqRelaxed:
		o.reqRelaxed, err = toBool(value)
	case OptionReqCorrelate:
		o.reqCorrelate, err = toBool(value)
	case OptionXPubVerbose:
		o.xpubVerbose, err = toBool(value)
	case OptionXPubNoDrop:
		o.xpubNoDrop, err = toBool(value)
	case OptionImmediate:
		o.immediate, err = toBool(value)
	case OptionStreamNotify:
		o.streamNotify, err = toBool(value)
	case OptionReconnectIVL:
		o.reconnectIVL, err = toDuration(value)
	case OptionReconnectIVLMax:
		o.reconnectIVLMax, err = toDuration(value)
	case OptionMaxMsgSize:
		var v int
		if v, err = toInt(value); err == nil {
			o.maxMsgSize = int64(v)
		}
	case OptionTOS:
		o.tos, err = toInt(value)
	case OptionHelloMsg:
		o.helloMsg, err = toBytes(value)
	case OptionDisconnectMsg:
		o.disconnectMsg, err = toBytes(value)
	case OptionHiccupMsg:
		o.hiccupMsg, err = toBytes(value)
	case OptionPlainServer:
		o.plainServer, err = toBool(value)
	case OptionPlainUsername:
		var v []byte
		if v, err = toBytes(value); err == nil {
			o.plainUser = string(v)
		}
	case OptionPlainPassword:
		var v []byte
		if v, err = toBytes(value); err == nil {
			o.plainPass = string(v)
		}
	case OptionCurveServer:
		o.curveServer, err = toBool(value)
	case OptionCurvePublic:
		o.curvePublic, err = toKey(value)
	case OptionCurveSecret:
		o.curveSecret, err = toKey(value)
	case OptionCurveServerKey:
		o.curveServerKey, err = toKey(value)
	case OptionZAPDomain:
		var v []byte
		if v, err = toBytes(value); err == nil {
			o.zapDomain = string(v)
		}
	default:
		return fmt.Errorf("zsock: unknown option %q: %w", name, ErrBadProperty)
	}
	if err != nil {
		return fmt.Errorf("zsock: invalid value %v for option %q: %w", value, name, err)
	}
	return nil
}

// get returns a string-keyed option.
func (o *socketOptions) get(name string) (interface{}, error) {
	switch name {
	case OptionHWM, OptionSndHWM:
		return o.sndhwm, nil
	case OptionRcvHWM:
		return o.rcvhwm, nil
	case OptionLinger:
		return o.linger, nil
	case OptionSndTimeo:
		return o.sndtimeo, nil
	case OptionRcvTimeo:
		return o.rcvtimeo, nil
	case OptionIdentity, OptionRoutingID:
		return []byte(o.id), nil
	case OptionHeartbeatIVL:
		return o.hbIVL, nil
	case OptionHeartbeatTTL:
		return o.hbTTL, nil
	case OptionHeartbeatTimeout:
		return o.hbTimeout, nil
	case OptionHeartbeatContext:
		return o.hbCtx, nil
	case OptionHandshakeIVL:
		return o.handshakeIVL, nil
	case OptionRouterMandatory:
		return o.routerMandatory, nil
	case OptionRouterHandover:
		return o.routerHandover, nil
	case OptionReqRelaxed:
		return o.reqRelaxed, nil
	case OptionReqCorrelate:
		return o.reqCorrelate, nil
	case OptionXPubVerbose:
		return o.xpubVerbose, nil
	case OptionXPubNoDrop:
		return o.xpubNoDrop, nil
	case OptionImmediate:
		return o.immediate, nil
	case OptionStreamNotify:
		return o.streamNotify, nil
	case OptionReconnectIVL:
		return o.reconnectIVL, nil
	case OptionReconnectIVLMax:
		return o.reconnectIVLMax, nil
	case OptionMaxMsgSize:
		return int(o.maxMsgSize), nil
	case OptionTOS:
		return o.tos, nil
	case OptionPlainServer:
		return o.plainServer, nil
	case OptionPlainUsername:
		return o.plainUser, nil
	case OptionPlainPassword:
		return o.plainPass, nil
	case OptionCurveServer:
		return o.curveServer, nil
	case OptionZAPDomain:
		return o.zapDomain, nil
	case OptionHelloMsg:
		return o.helloMsg, nil
	case OptionDisconnectMsg:
		return o.disconnectMsg, nil
	case OptionHiccupMsg:
		return o.hiccupMsg, nil
	}
	return nil, fmt.Errorf("zsock: unknown option %q: %w", name, ErrBadProperty)
}

func toInt(v interface{}) (int, error) {
	switch v := v.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint32:
		return int(v), nil
	}
	return 0, ErrBadProperty
}

func toCount(v interface{}) (int, error) {
	n, err := toInt(v)
	if err == nil && n < 0 {
		err = ErrBadProperty
	}
	return n, err
}

// toDuration accepts a time.Duration or a number of milliseconds.
func toDuration(v interface{}) (time.Duration, error) {
	if d, ok := v.(time.Duration); ok {
		return d, nil
	}
	ms, err := toInt(v)
	if err != nil {
		return 0, err
	}
	if ms < 0 {
		return -1, nil
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func toBool(v interface{}) (bool, error) {
	switch v := v.(type) {
	case bool:
		return v, nil
	case int:
		return v != 0, nil
	}
	return false, ErrBadProperty
}

func toBytes(v interface{}) ([]byte, error) {
	switch v := v.(type) {
	case []byte:
		return append([]byte(nil), v...), nil
	case string:
		return []byte(v), nil
	case SocketIdentity:
		return append([]byte(nil), v...), nil
	}
	return nil, ErrBadProperty
}

// toKey accepts a CURVE key as 32 raw bytes or 40 Z85 characters.
func toKey(v interface{}) (*[curve.KeySize]byte, error) {
	if k, ok := v.([curve.KeySize]byte); ok {
		return &k, nil
	}
	raw, err := toBytes(v)
	if err != nil {
		return nil, err
	}
	k, err := curve.KeyFromBytes(raw)
	if err != nil {
		return nil, err
	}
	return &k, nil
}
