// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zmtp

import (
	"encoding/binary"
	"net"

	"github.com/pkg/errors"
)

// Flag is the first octet of a ZMTP frame.
type Flag byte

const (
	FlagMore    Flag = 0x1
	FlagLong    Flag = 0x2
	FlagCommand Flag = 0x4

	flagMask = FlagMore | FlagLong | FlagCommand
)

func (fl Flag) HasMore() bool   { return fl&FlagMore == FlagMore }
func (fl Flag) IsLong() bool    { return fl&FlagLong == FlagLong }
func (fl Flag) IsCommand() bool { return fl&FlagCommand == FlagCommand }

// Frame is a single ZMTP frame.
type Frame struct {
	Flags Flag
	Body  []byte
}

func (f Frame) More() bool      { return f.Flags.HasMore() }
func (f Frame) IsCommand() bool { return f.Flags.IsCommand() }

// CommandFrame wraps cmd into a command frame.
func CommandFrame(cmd Cmd) (Frame, error) {
	body, err := cmd.Marshal()
	if err != nil {
		return Frame{}, err
	}
	return Frame{Flags: FlagCommand, Body: body}, nil
}

// AppendHeader appends the flags and length octets of a frame carrying
// size bytes to dst. The long flag is set as needed.
func AppendHeader(dst []byte, flags Flag, size int) []byte {
	flags &^= FlagLong
	if size > 255 {
		var buf [9]byte
		buf[0] = byte(flags | FlagLong)
		binary.BigEndian.PutUint64(buf[1:], uint64(size))
		return append(dst, buf[:]...)
	}
	return append(dst, byte(flags), byte(size))
}

// ZeroCopyThreshold is the payload size from which the encoder references
// the caller's buffer instead of copying it into its batch buffer.
const ZeroCopyThreshold = 1024

// Encoder batches outbound frames into net.Buffers ready for a vectored
// write. Small frames are coalesced; large payloads are referenced as is,
// so they must not be mutated until the buffers have been written.
type Encoder struct {
	raw  bool
	bufs net.Buffers
	cur  []byte
	size int
}

// NewEncoder returns a ZMTP framing encoder.
func NewEncoder() *Encoder { return &Encoder{} }

// NewRawEncoder returns an encoder that writes payloads verbatim, without
// any framing.
func NewRawEncoder() *Encoder { return &Encoder{raw: true} }

// Encode queues f.
func (enc *Encoder) Encode(f Frame) {
	n := len(f.Body)
	if !enc.raw {
		before := len(enc.cur)
		enc.cur = AppendHeader(enc.cur, f.Flags, n)
		enc.size += len(enc.cur) - before
	}
	if n == 0 {
		return
	}
	enc.size += n
	if n >= ZeroCopyThreshold {
		if len(enc.cur) > 0 {
			enc.bufs = append(enc.bufs, enc.cur)
			enc.cur = nil
		}
		enc.bufs = append(enc.bufs, f.Body)
		return
	}
	enc.cur = append(enc.cur, f.Body...)
}

// EncodeRaw queues p verbatim, bypassing framing. It is used for the
// greeting.
func (enc *Encoder) EncodeRaw(p []byte) {
	enc.cur = append(enc.cur, p...)
	enc.size += len(p)
}

// Len returns the number of bytes queued.
func (enc *Encoder) Len() int { return enc.size }

// Flush hands over the queued buffers and resets the encoder.
func (enc *Encoder) Flush() net.Buffers {
	if len(enc.cur) > 0 {
		enc.bufs = append(enc.bufs, enc.cur)
		enc.cur = nil
	}
	out := enc.bufs
	enc.bufs = nil
	enc.size = 0
	return out
}

// Encode returns the wire representation of a frame as a single buffer.
func Encode(f Frame) []byte {
	buf := AppendHeader(make([]byte, 0, 9+len(f.Body)), f.Flags, len(f.Body))
	return append(buf, f.Body...)
}

type decoderState int

const (
	decodeFlags decoderState = iota
	decodeShortLen
	decodeLongLen
	decodeBody
)

// Decoder is a resumable ZMTP frame decoder. It may be fed arbitrarily
// small chunks of input and keeps its position across calls.
type Decoder struct {
	maxMsgSize int64
	raw        bool

	state decoderState
	flags Flag
	lbuf  [8]byte
	ln    int
	body  []byte
	bn    int
}

// NewDecoder returns a framing decoder rejecting frames larger than
// maxMsgSize bytes. A maxMsgSize <= 0 means no limit.
func NewDecoder(maxMsgSize int64) *Decoder {
	return &Decoder{maxMsgSize: maxMsgSize}
}

// NewRawDecoder returns a decoder turning every chunk of input into one
// frame.
func NewRawDecoder() *Decoder { return &Decoder{raw: true} }

// Decode consumes bytes from p until one frame is complete or p is
// exhausted. It returns the number of bytes consumed and ok=true when f
// holds a complete frame. Callers loop on the remaining input.
func (dec *Decoder) Decode(p []byte) (n int, f Frame, ok bool, err error) {
	if dec.raw {
		if len(p) == 0 {
			return 0, f, false, nil
		}
		body := make([]byte, len(p))
		copy(body, p)
		return len(p), Frame{Body: body}, true, nil
	}

	for n < len(p) {
		switch dec.state {
		case decodeFlags:
			fl := Flag(p[n])
			n++
			if fl&^flagMask != 0 {
				return n, f, false, errors.Wrapf(ErrBadFrame, "reserved flag bits set (0x%02x)", byte(fl))
			}
			dec.flags = fl
			dec.ln = 0
			if fl.IsLong() {
				dec.state = decodeLongLen
			} else {
				dec.state = decodeShortLen
			}

		case decodeShortLen:
			size := uint64(p[n])
			n++
			if err := dec.start(size); err != nil {
				return n, f, false, err
			}
			if size == 0 {
				return n, dec.frame(), true, nil
			}

		case decodeLongLen:
			c := copy(dec.lbuf[dec.ln:], p[n:])
			dec.ln += c
			n += c
			if dec.ln < len(dec.lbuf) {
				continue
			}
			size := binary.BigEndian.Uint64(dec.lbuf[:])
			if err := dec.start(size); err != nil {
				return n, f, false, err
			}
			if size == 0 {
				return n, dec.frame(), true, nil
			}

		case decodeBody:
			c := copy(dec.body[dec.bn:], p[n:])
			dec.bn += c
			n += c
			if dec.bn == len(dec.body) {
				return n, dec.frame(), true, nil
			}
		}
	}
	return n, f, false, nil
}

func (dec *Decoder) start(size uint64) error {
	if size > uint64(maxInt64) || size > uint64(maxInt) {
		return errors.Wrapf(ErrOverflow, "frame size %d", size)
	}
	if dec.maxMsgSize > 0 && int64(size) > dec.maxMsgSize {
		return errors.Wrapf(ErrMsgSize, "frame size %d > %d", size, dec.maxMsgSize)
	}
	dec.body = make([]byte, int(size))
	dec.bn = 0
	dec.state = decodeBody
	return nil
}

func (dec *Decoder) frame() Frame {
	f := Frame{Flags: dec.flags &^ FlagLong, Body: dec.body}
	if f.Body == nil {
		f.Body = []byte{}
	}
	dec.body = nil
	dec.bn = 0
	dec.state = decodeFlags
	return f
}
