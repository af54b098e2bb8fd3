// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock

import (
	"bytes"
	"fmt"

	"github.com/destiny/zsock/zmtp"
)

type MsgType byte

const (
	UsrMsg MsgType = 0
	CmdMsg MsgType = 1

	// delimMsg terminates a pipe direction. It never leaves a pipe.
	delimMsg MsgType = 0xff
)

// Msg is a ZMTP message, possibly composed of multiple frames.
//
// A Msg always travels as a whole: its frames are delivered contiguously.
type Msg struct {
	Frames [][]byte
	Type   MsgType

	// RoutingID identifies the peer of SERVER and PEER sockets.
	RoutingID uint32
	// Group is the RADIO/DISH group of the message.
	Group string

	props zmtp.Metadata
	err   error
}

func NewMsg(frame []byte) Msg {
	return Msg{Frames: [][]byte{frame}}
}

func NewMsgFrom(frames ...[]byte) Msg {
	return Msg{Frames: frames}
}

func NewMsgString(frame string) Msg {
	return NewMsg([]byte(frame))
}

func NewMsgFromString(frames []string) Msg {
	msg := Msg{Frames: make([][]byte, len(frames))}
	for i, frame := range frames {
		msg.Frames[i] = append(msg.Frames[i], []byte(frame)...)
	}
	return msg
}

// newCmdMsg returns a message carrying a ZMTP command through a pipe.
func newCmdMsg(name string, body []byte) Msg {
	return Msg{Type: CmdMsg, Frames: [][]byte{[]byte(name), body}}
}

func (msg Msg) isCmd() bool {
	return msg.Type == CmdMsg
}

func (msg Msg) cmd() zmtp.Cmd {
	cmd := zmtp.Cmd{Name: string(msg.Frames[0])}
	if len(msg.Frames) > 1 {
		cmd.Body = msg.Frames[1]
	}
	return cmd
}

func (msg Msg) Err() error {
	return msg.err
}

// Property returns a metadata property of the connection the message was
// received from: Socket-Type, Identity, User-Id, Peer-Address or any
// application property announced by the peer.
func (msg Msg) Property(name string) (string, bool) {
	return msg.props.Get(name)
}

// Bytes returns the concatenated content of all its frames.
func (msg Msg) Bytes() []byte {
	buf := make([]byte, 0, msg.size())
	for _, frame := range msg.Frames {
		buf = append(buf, frame...)
	}
	return buf
}

func (msg Msg) size() int {
	n := 0
	for _, frame := range msg.Frames {
		n += len(frame)
	}
	return n
}

func (msg Msg) String() string {
	buf := new(bytes.Buffer)
	buf.WriteString("Msg{Frames:{")
	for i, frame := range msg.Frames {
		if i > 0 {
			buf.WriteString(", ")
		}
		fmt.Fprintf(buf, "%q", frame)
	}
	buf.WriteString("}}")
	return buf.String()
}

// Clone returns a deep copy of msg.
func (msg Msg) Clone() Msg {
	o := msg
	o.Frames = make([][]byte, len(msg.Frames))
	for i, frame := range msg.Frames {
		o.Frames[i] = make([]byte, len(frame))
		copy(o.Frames[i], frame)
	}
	return o
}

// Flag modifies the behaviour of Send and Recv.
type Flag int

const (
	// DontWait makes Send and Recv return ErrAgain instead of blocking.
	DontWait Flag = 1 << iota
)
