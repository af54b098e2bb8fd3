// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command hwclient sends ten requests to hwserver.
package main

import (
	"flag"
	"log"

	"github.com/destiny/zsock"
)

func main() {
	addr := flag.String("addr", "tcp://127.0.0.1:5555", "server endpoint")
	flag.Parse()

	zctx := zsock.NewContext(zsock.WithBlockyTerm(false))
	defer zctx.Term()

	req, err := zsock.NewReq(zctx)
	if err != nil {
		log.Fatalf("could not create REQ socket: %+v", err)
	}
	defer req.Close()

	if err := req.Dial(*addr); err != nil {
		log.Fatalf("could not dial %s: %+v", *addr, err)
	}

	for i := 0; i < 10; i++ {
		if err := req.Send(zsock.NewMsgString("Hello")); err != nil {
			log.Fatalf("could not send request: %+v", err)
		}
		reply, err := req.Recv()
		if err != nil {
			log.Fatalf("could not receive reply: %+v", err)
		}
		log.Printf("reply %d: %s", i, reply.Frames[0])
	}
}
