// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package z85 provides ZeroMQ Base-85 Encoding as specified by:
// https://rfc.zeromq.org/spec/32/Z85/
package z85

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidLength = errors.New("z85: invalid input length")
	ErrInvalidChar   = errors.New("z85: invalid character")
)

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ.-:+=^!/*?&<>()[]{}@%$#"

var decodeMap [256]byte

func init() {
	for i := range decodeMap {
		decodeMap[i] = 0xff
	}
	for i := 0; i < len(alphabet); i++ {
		decodeMap[alphabet[i]] = byte(i)
	}
}

// EncodedLen returns the length of the Z85 encoding of n source bytes.
func EncodedLen(n int) int { return n / 4 * 5 }

// DecodedLen returns the length of the data decoded from n Z85 characters.
func DecodedLen(n int) int { return n / 5 * 4 }

// Encode encodes src into dst, which must hold EncodedLen(len(src)) bytes.
// len(src) must be a multiple of 4.
func Encode(dst, src []byte) (int, error) {
	if len(src)%4 != 0 {
		return 0, fmt.Errorf("%w: %d is not a multiple of 4", ErrInvalidLength, len(src))
	}
	if len(dst) < EncodedLen(len(src)) {
		return 0, fmt.Errorf("%w: short destination buffer", ErrInvalidLength)
	}

	n := 0
	for i := 0; i < len(src); i += 4 {
		v := uint32(src[i])<<24 | uint32(src[i+1])<<16 | uint32(src[i+2])<<8 | uint32(src[i+3])
		for j := 4; j >= 0; j-- {
			dst[n+j] = alphabet[v%85]
			v /= 85
		}
		n += 5
	}
	return n, nil
}

// EncodeToString returns the Z85 encoding of src.
func EncodeToString(src []byte) (string, error) {
	dst := make([]byte, EncodedLen(len(src)))
	if _, err := Encode(dst, src); err != nil {
		return "", err
	}
	return string(dst), nil
}

// Decode decodes src into dst, which must hold DecodedLen(len(src)) bytes.
// len(src) must be a multiple of 5.
func Decode(dst, src []byte) (int, error) {
	if len(src)%5 != 0 {
		return 0, fmt.Errorf("%w: %d is not a multiple of 5", ErrInvalidLength, len(src))
	}
	if len(dst) < DecodedLen(len(src)) {
		return 0, fmt.Errorf("%w: short destination buffer", ErrInvalidLength)
	}

	n := 0
	for i := 0; i < len(src); i += 5 {
		var v uint64
		for j := 0; j < 5; j++ {
			c := decodeMap[src[i+j]]
			if c == 0xff {
				return n, fmt.Errorf("%w: %q at offset %d", ErrInvalidChar, src[i+j], i+j)
			}
			v = v*85 + uint64(c)
		}
		if v > 0xffffffff {
			return n, fmt.Errorf("%w: group at offset %d overflows", ErrInvalidChar, i)
		}
		dst[n] = byte(v >> 24)
		dst[n+1] = byte(v >> 16)
		dst[n+2] = byte(v >> 8)
		dst[n+3] = byte(v)
		n += 4
	}
	return n, nil
}

// DecodeString returns the bytes represented by the Z85 string s.
func DecodeString(s string) ([]byte, error) {
	dst := make([]byte, DecodedLen(len(s)))
	n, err := Decode(dst, []byte(s))
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}
