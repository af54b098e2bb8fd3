// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command hwserver is the hello world REP server.
package main

import (
	"flag"
	"log"
	"time"

	"github.com/destiny/zsock"
)

func main() {
	addr := flag.String("addr", "tcp://*:5555", "endpoint to listen on")
	flag.Parse()

	zctx := zsock.NewContext()
	defer zctx.Term()

	rep, err := zsock.NewRep(zctx)
	if err != nil {
		log.Fatalf("could not create REP socket: %+v", err)
	}
	defer rep.Close()

	if err := rep.Listen(*addr); err != nil {
		log.Fatalf("could not listen on %s: %+v", *addr, err)
	}

	for {
		msg, err := rep.Recv()
		if err != nil {
			log.Fatalf("could not receive request: %+v", err)
		}
		log.Printf("received %s", msg.Frames[0])

		time.Sleep(time.Second)

		if err := rep.Send(zsock.NewMsgString("World")); err != nil {
			log.Fatalf("could not send reply: %+v", err)
		}
	}
}
