// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command curve-client sends one request to a CURVE server.
package main

import (
	"encoding/hex"
	"flag"
	"log"
	"time"

	"github.com/destiny/zsock"
	"github.com/destiny/zsock/security/curve"
)

func main() {
	addr := flag.String("addr", "tcp://127.0.0.1:5555", "server endpoint")
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatalf("usage: curve-client [-addr endpoint] <server public key, hex or Z85>")
	}
	serverKey, err := parseKey(flag.Arg(0))
	if err != nil {
		log.Fatalf("invalid server key: %+v", err)
	}

	clientKeys, err := curve.GenerateKeyPair()
	if err != nil {
		log.Fatalf("could not generate client keys: %+v", err)
	}
	pub, err := clientKeys.PublicKeyZ85()
	if err != nil {
		log.Fatalf("could not encode client key: %+v", err)
	}
	log.Printf("client key %s", pub)

	zctx := zsock.NewContext(zsock.WithBlockyTerm(false))
	defer zctx.Term()

	req, err := zsock.NewReq(zctx,
		zsock.WithSecurity(curve.NewClientSecurity(clientKeys, serverKey)),
		zsock.WithTimeout(5*time.Second),
	)
	if err != nil {
		log.Fatalf("could not create REQ socket: %+v", err)
	}
	defer req.Close()

	if err := req.Dial(*addr); err != nil {
		log.Fatalf("could not dial %s: %+v", *addr, err)
	}
	if err := req.Send(zsock.NewMsgString("Hello from CURVE client!")); err != nil {
		log.Fatalf("could not send request: %+v", err)
	}
	reply, err := req.Recv()
	if err != nil {
		log.Fatalf("could not receive reply: %+v", err)
	}
	log.Printf("reply: %s", reply.Frames[0])
}

// parseKey accepts a key as 64 hex digits or 40 Z85 characters.
func parseKey(s string) ([curve.KeySize]byte, error) {
	if len(s) == 2*curve.KeySize {
		raw, err := hex.DecodeString(s)
		if err != nil {
			return [curve.KeySize]byte{}, err
		}
		return curve.KeyFromBytes(raw)
	}
	return curve.KeyFromBytes([]byte(s))
}
