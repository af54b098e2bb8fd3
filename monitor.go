// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// EventType identifies a socket monitoring event. Values follow the
// libzmq ZMQ_EVENT_* constants so event masks can be shared.
type EventType uint16

const (
	EventConnected               EventType = 0x0001
	EventConnectDelayed          EventType = 0x0002
	EventConnectRetried          EventType = 0x0004
	EventListening               EventType = 0x0008
	EventBindFailed              EventType = 0x0010
	EventAccepted                EventType = 0x0020
	EventAcceptFailed            EventType = 0x0040
	EventClosed                  EventType = 0x0080
	EventCloseFailed             EventType = 0x0100
	EventDisconnected            EventType = 0x0200
	EventMonitorStopped          EventType = 0x0400
	EventHandshakeFailedNoDetail EventType = 0x0800
	EventHandshakeSucceeded      EventType = 0x1000
	EventHandshakeFailedProtocol EventType = 0x2000
	EventHandshakeFailedAuth     EventType = 0x4000

	EventAll EventType = 0xffff
)

var eventNames = []struct {
	ev   EventType
	name string
}{
	{EventConnected, "CONNECTED"},
	{EventConnectDelayed, "CONNECT_DELAYED"},
	{EventConnectRetried, "CONNECT_RETRIED"},
	{EventListening, "LISTENING"},
	{EventBindFailed, "BIND_FAILED"},
	{EventAccepted, "ACCEPTED"},
	{EventAcceptFailed, "ACCEPT_FAILED"},
	{EventClosed, "CLOSED"},
	{EventCloseFailed, "CLOSE_FAILED"},
	{EventDisconnected, "DISCONNECTED"},
	{EventMonitorStopped, "MONITOR_STOPPED"},
	{EventHandshakeFailedNoDetail, "HANDSHAKE_FAILED_NO_DETAIL"},
	{EventHandshakeSucceeded, "HANDSHAKE_SUCCEEDED"},
	{EventHandshakeFailedProtocol, "HANDSHAKE_FAILED_PROTOCOL"},
	{EventHandshakeFailedAuth, "HANDSHAKE_FAILED_AUTH"},
}

func (ev EventType) String() string {
	var names []string
	for _, v := range eventNames {
		if ev&v.ev != 0 {
			names = append(names, v.name)
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("EventType(0x%x)", uint16(ev))
	}
	return strings.Join(names, "|")
}

// Event is a monitoring event. Value is the errno of failures, the
// reconnection interval in milliseconds for CONNECT_RETRIED and the ZAP
// status code for HANDSHAKE_FAILED_AUTH.
type Event struct {
	Type     EventType
	Value    uint32
	Endpoint string
}

// Msg encodes the event as sent on the monitor endpoint: a 6-byte frame
// holding the event and its value (little endian), then the endpoint.
func (ev Event) Msg() Msg {
	head := make([]byte, 6)
	binary.LittleEndian.PutUint16(head[:2], uint16(ev.Type))
	binary.LittleEndian.PutUint32(head[2:], ev.Value)
	return NewMsgFrom(head, []byte(ev.Endpoint))
}

// ParseEvent decodes a message received from a monitor endpoint.
func ParseEvent(msg Msg) (Event, error) {
	if len(msg.Frames) != 2 || len(msg.Frames[0]) != 6 {
		return Event{}, fmt.Errorf("zsock: invalid monitor event %v", msg)
	}
	return Event{
		Type:     EventType(binary.LittleEndian.Uint16(msg.Frames[0][:2])),
		Value:    binary.LittleEndian.Uint32(msg.Frames[0][2:]),
		Endpoint: string(msg.Frames[1]),
	}, nil
}

// monitor publishes the events of a socket on a PAIR socket bound to an
// inproc endpoint.
type monitor struct {
	pair   *socketBase
	events EventType
}

// Monitor publishes the events selected by the events mask on the inproc
// endpoint, where a PAIR socket may connect to receive them. Events are
// dropped while nobody is connected or the receiver lags behind.
// An empty endpoint stops monitoring.
func (s *socketBase) Monitor(endpoint string, events EventType) error {
	if endpoint != "" && !strings.HasPrefix(endpoint, "inproc://") {
		return fmt.Errorf("zsock: monitor endpoint %q must be inproc: %w", endpoint, ErrInvalidEndpoint)
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	s.stopMonitor()
	if endpoint == "" {
		return nil
	}

	pair, err := newSocketBase(s.zctx, Pair, WithLinger(-1), WithLogger(s.log))
	if err != nil {
		return err
	}
	if err := pair.Listen(endpoint); err != nil {
		pair.Close()
		return err
	}
	s.monMu.Lock()
	s.mon = &monitor{pair: pair, events: events}
	s.monMu.Unlock()
	return nil
}

// event publishes an event to the monitor, if any. It never blocks.
func (s *socketBase) event(ev EventType, value uint32, endpoint string) {
	s.monMu.Lock()
	defer s.monMu.Unlock()
	m := s.mon
	if m == nil || m.events&ev == 0 {
		return
	}
	msg := Event{Type: ev, Value: value, Endpoint: endpoint}.Msg()
	if err := m.pair.SendFlags(msg, DontWait); err != nil {
		s.log.Trace("dropped %s event: %v", ev, err)
	}
}

func (s *socketBase) stopMonitor() {
	s.monMu.Lock()
	m := s.mon
	s.mon = nil
	s.monMu.Unlock()
	if m == nil {
		return
	}
	if m.events&EventMonitorStopped != 0 {
		m.pair.SendFlags(Event{Type: EventMonitorStopped}.Msg(), DontWait)
	}
	m.pair.Close()
}
