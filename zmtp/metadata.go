// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zmtp

import (
	"bytes"
	"encoding/binary"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Well-known metadata properties.
const (
	PropSocketType  = "Socket-Type"
	PropIdentity    = "Identity"
	PropUserID      = "User-Id"
	PropPeerAddress = "Peer-Address"
)

// CanonicalName returns the canonical spelling of a property name.
// Property names are case-insensitive on the wire.
func CanonicalName(name string) string {
	return cases.Title(language.Und).String(name)
}

// Metadata is describing a connection's metadata information.
type Metadata map[string]string

// Get returns the value of the property name, whatever its case.
func (md Metadata) Get(name string) (string, bool) {
	v, ok := md[CanonicalName(name)]
	return v, ok
}

// MarshalZMTP marshals Metadata to ZMTP encoded data.
// Properties are written in name order.
func (md Metadata) MarshalZMTP() ([]byte, error) {
	buf := new(bytes.Buffer)
	keys := make([]string, 0, len(md))
	seen := make(map[string]struct{}, len(md))

	for k := range md {
		if len(k) == 0 {
			return nil, errEmptyMDKey
		}
		if len(k) > 255 {
			return nil, errors.Wrapf(ErrOverflow, "metadata key %q", k)
		}
		key := strings.ToLower(k)
		if _, dup := seen[key]; dup {
			return nil, errors.Wrapf(errDupMDKey, "key %q", k)
		}
		seen[key] = struct{}{}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		prop := Property{K: k, V: md[k]}
		raw := make([]byte, prop.size())
		if _, err := prop.Read(raw); err != nil && err != io.EOF {
			return nil, err
		}
		buf.Write(raw)
	}
	return buf.Bytes(), nil
}

// UnmarshalZMTP unmarshals Metadata from a ZMTP encoded data.
func (md *Metadata) UnmarshalZMTP(p []byte) error {
	if *md == nil {
		*md = make(Metadata)
	}
	i := 0
	for i < len(p) {
		var kv Property
		n, err := kv.Write(p[i:])
		if err != nil {
			return err
		}
		i += n
		(*md)[kv.K] = kv.V
	}
	return nil
}

// Property describes a connection metadata's entry.
// The on-wire respresentation of Property is specified by:
//
//	https://rfc.zeromq.org/spec:23/ZMTP/
type Property struct {
	K string
	V string
}

func (prop Property) size() int { return 1 + len(prop.K) + 4 + len(prop.V) }

// Read writes the wire form of the property into data.
func (prop Property) Read(data []byte) (n int, err error) {
	klen := len(prop.K)
	vlen := len(prop.V)
	if len(data) < prop.size() {
		return 0, io.ErrShortBuffer
	}

	name := CanonicalName(prop.K)
	if len(name) != klen {
		name = prop.K
	}
	data[n] = byte(klen)
	n++
	n += copy(data[n:n+klen], name)
	binary.BigEndian.PutUint32(data[n:n+4], uint32(vlen))
	n += 4
	n += copy(data[n:n+vlen], prop.V)
	return n, io.EOF
}

// Write decodes one property from data.
func (prop *Property) Write(data []byte) (n int, err error) {
	if len(data) < 1 {
		return 0, io.ErrUnexpectedEOF
	}
	klen := int(data[n])
	n++
	if klen == 0 {
		return n, errEmptyMDKey
	}
	if n+klen+4 > len(data) {
		return n, io.ErrUnexpectedEOF
	}

	prop.K = CanonicalName(string(data[n : n+klen]))
	n += klen

	v := binary.BigEndian.Uint32(data[n : n+4])
	n += 4
	if uint64(v) > uint64(maxInt) {
		return n, ErrOverflow
	}

	vlen := int(v)
	if n+vlen > len(data) {
		return n, io.ErrUnexpectedEOF
	}

	prop.V = string(data[n : n+vlen])
	n += vlen
	return n, nil
}
