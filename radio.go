// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock

import (
	"fmt"
	"sort"

	"github.com/destiny/zsock/zmtp"
)

// maxGroupSize is the longest RADIO/DISH group name.
const maxGroupSize = 255

func checkGroup(group string) error {
	if len(group) > maxGroupSize {
		return fmt.Errorf("zsock: group %q longer than %d bytes: %w", group, maxGroupSize, ErrBadProperty)
	}
	return nil
}

// NewRadio returns a new RADIO ZeroMQ socket.
// The returned socket value is initially unbound.
//
// Messages are published to the group set in their Group field.
func NewRadio(zctx *Context, opts ...Option) (Socket, error) {
	return newSocket(zctx, Radio, opts...)
}

// NewDish returns a new DISH ZeroMQ socket.
// The returned socket value is initially unbound.
//
// Groups are joined and left with the JOIN and LEAVE options.
func NewDish(zctx *Context, opts ...Option) (Socket, error) {
	return newSocket(zctx, Dish, opts...)
}

// radioStrategy sends each message to the peers that joined its group.
// Peers at their high-water mark miss the message.
type radioStrategy struct {
	noHooks
	s      *socketBase
	groups map[string]map[*pipe]struct{}
}

func newRadioStrategy(s *socketBase) *radioStrategy {
	return &radioStrategy{s: s, groups: make(map[string]map[*pipe]struct{})}
}

func (r *radioStrategy) attachPipe(*pipe) {}

func (r *radioStrategy) pipeTerminated(p *pipe) {
	for group, members := range r.groups {
		delete(members, p)
		if len(members) == 0 {
			delete(r.groups, group)
		}
	}
}

func (r *radioStrategy) readActivated(p *pipe) {
	for {
		msg, ok := p.read()
		if !ok {
			return
		}
		if !msg.isCmd() {
			continue
		}
		cmd := msg.cmd()
		group := string(cmd.Body)
		switch cmd.Name {
		case zmtp.CmdJoin:
			members, ok := r.groups[group]
			if !ok {
				members = make(map[*pipe]struct{})
				r.groups[group] = members
			}
			members[p] = struct{}{}
		case zmtp.CmdLeave:
			if members, ok := r.groups[group]; ok {
				delete(members, p)
				if len(members) == 0 {
					delete(r.groups, group)
				}
			}
		}
	}
}

func (r *radioStrategy) writeActivated(*pipe) {}

func (r *radioStrategy) send(msg Msg) error {
	if err := checkGroup(msg.Group); err != nil {
		return err
	}
	for p := range r.groups[msg.Group] {
		p.write(msg)
	}
	return nil
}

func (r *radioStrategy) recv() (Msg, error) { return Msg{}, ErrNotSupported }
func (r *radioStrategy) hasIn() bool        { return false }
func (r *radioStrategy) hasOut() bool       { return true }

// dishStrategy fair-queues the messages of the groups it joined, and
// sends its groups to every peer, again after a reconnection.
type dishStrategy struct {
	s      *socketBase
	fq     fairQueue
	groups map[string]struct{}
	next   *Msg // matching message read ahead by hasIn
}

func newDishStrategy(s *socketBase) *dishStrategy {
	return &dishStrategy{s: s, groups: make(map[string]struct{})}
}

func (d *dishStrategy) attachPipe(p *pipe) {
	d.fq.add(p)
	d.sendGroups(p)
}

func (d *dishStrategy) pipeTerminated(p *pipe) { d.fq.remove(p) }
func (d *dishStrategy) readActivated(p *pipe)  { d.fq.activate(p) }
func (d *dishStrategy) writeActivated(*pipe)   {}
func (d *dishStrategy) hiccuped(p *pipe)       { d.sendGroups(p) }

func (d *dishStrategy) sendGroups(p *pipe) {
	groups := make([]string, 0, len(d.groups))
	for group := range d.groups {
		groups = append(groups, group)
	}
	sort.Strings(groups)
	for _, group := range groups {
		p.write(newCmdMsg(zmtp.CmdJoin, []byte(group)))
	}
}

func (d *dishStrategy) setOption(name string, value interface{}) (bool, error) {
	if name != OptionJoin && name != OptionLeave {
		return false, nil
	}
	v, err := toBytes(value)
	if err != nil {
		return true, fmt.Errorf("zsock: invalid %s value: %w", name, err)
	}
	group := string(v)
	if err := checkGroup(group); err != nil {
		return true, err
	}

	_, joined := d.groups[group]
	cmd := zmtp.CmdJoin
	switch {
	case name == OptionJoin && joined:
		return true, fmt.Errorf("zsock: group %q already joined: %w", group, ErrBadProperty)
	case name == OptionJoin:
		d.groups[group] = struct{}{}
	case !joined:
		return true, fmt.Errorf("zsock: group %q not joined: %w", group, ErrBadProperty)
	default:
		delete(d.groups, group)
		cmd = zmtp.CmdLeave
	}
	msg := newCmdMsg(cmd, []byte(group))
	for _, p := range d.fq.pipes {
		p.write(msg)
	}
	return true, nil
}

func (d *dishStrategy) send(Msg) error { return ErrNotSupported }

func (d *dishStrategy) recv() (Msg, error) {
	if msg := d.next; msg != nil {
		d.next = nil
		return *msg, nil
	}
	for {
		msg, err := d.fq.recv()
		if err != nil {
			return msg, err
		}
		if _, ok := d.groups[msg.Group]; ok {
			return msg, nil
		}
	}
}

func (d *dishStrategy) hasIn() bool {
	if d.next != nil {
		return true
	}
	msg, err := d.recv()
	if err != nil {
		return false
	}
	d.next = &msg
	return true
}

func (d *dishStrategy) hasOut() bool { return false }
