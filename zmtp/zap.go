// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zmtp

import (
	"strconv"

	"github.com/pkg/errors"
)

// ZAP constants as per https://rfc.zeromq.org/spec:27/ZAP/
const (
	ZAPVersion  = "1.0"
	ZAPEndpoint = "zeromq.zap.01"
)

// ZAP status codes.
const (
	ZAPStatusOK        = "200"
	ZAPStatusTempError = "300"
	ZAPStatusFailure   = "400"
	ZAPStatusInternal  = "500"
)

// ZAPRequest asks a ZAP handler to authorize a peer.
type ZAPRequest struct {
	RequestID   []byte
	Domain      string
	Address     string
	Identity    []byte
	Mechanism   string
	Credentials [][]byte
}

// Frames returns the request frames, without the leading empty delimiter.
func (req ZAPRequest) Frames() [][]byte {
	frames := [][]byte{
		[]byte(ZAPVersion),
		req.RequestID,
		[]byte(req.Domain),
		[]byte(req.Address),
		req.Identity,
		[]byte(req.Mechanism),
	}
	return append(frames, req.Credentials...)
}

// ParseZAPRequest decodes request frames, without the leading empty
// delimiter.
func ParseZAPRequest(frames [][]byte) (ZAPRequest, error) {
	var req ZAPRequest
	if len(frames) < 6 {
		return req, errors.Errorf("zmtp: ZAP request with %d frames", len(frames))
	}
	if string(frames[0]) != ZAPVersion {
		return req, errors.Errorf("zmtp: invalid ZAP version %q", frames[0])
	}
	req.RequestID = frames[1]
	req.Domain = string(frames[2])
	req.Address = string(frames[3])
	req.Identity = frames[4]
	req.Mechanism = string(frames[5])
	req.Credentials = frames[6:]
	return req, nil
}

// ZAPReply is the verdict of a ZAP handler.
type ZAPReply struct {
	RequestID  []byte
	StatusCode string
	StatusText string
	UserID     string
	Metadata   Metadata
}

// Frames returns the reply frames, without the leading empty delimiter.
func (rep ZAPReply) Frames() ([][]byte, error) {
	var md []byte
	if len(rep.Metadata) > 0 {
		var err error
		md, err = rep.Metadata.MarshalZMTP()
		if err != nil {
			return nil, err
		}
	}
	return [][]byte{
		[]byte(ZAPVersion),
		rep.RequestID,
		[]byte(rep.StatusCode),
		[]byte(rep.StatusText),
		[]byte(rep.UserID),
		md,
	}, nil
}

// Status returns the numeric status code.
func (rep ZAPReply) Status() int {
	v, err := strconv.Atoi(rep.StatusCode)
	if err != nil {
		return 500
	}
	return v
}

// ParseZAPReply decodes reply frames, without the leading empty delimiter.
func ParseZAPReply(frames [][]byte) (ZAPReply, error) {
	var rep ZAPReply
	if len(frames) != 6 {
		return rep, errors.Errorf("zmtp: ZAP reply with %d frames", len(frames))
	}
	if string(frames[0]) != ZAPVersion {
		return rep, errors.Errorf("zmtp: invalid ZAP version %q", frames[0])
	}
	code := string(frames[2])
	switch code {
	case ZAPStatusOK, ZAPStatusTempError, ZAPStatusFailure, ZAPStatusInternal:
	default:
		return rep, errors.Errorf("zmtp: invalid ZAP status code %q", code)
	}
	rep.RequestID = frames[1]
	rep.StatusCode = code
	rep.StatusText = string(frames[3])
	rep.UserID = string(frames[4])
	if len(frames[5]) > 0 {
		if err := rep.Metadata.UnmarshalZMTP(frames[5]); err != nil {
			return rep, errors.Wrapf(err, "zmtp: invalid ZAP metadata")
		}
	}
	return rep, nil
}

// StatusError turns a ZAP reply into the error a mechanism reports to its
// engine. It returns nil for a 200 reply.
func (rep ZAPReply) StatusError() error {
	if rep.StatusCode == ZAPStatusOK {
		return nil
	}
	return &AuthError{Status: rep.Status(), Reason: rep.StatusText}
}
