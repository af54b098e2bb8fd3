// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command curve-server is a REP server accepting CURVE clients. Every
// client key is checked by a ZAP handler running in the same context.
package main

import (
	"flag"
	"log"

	"github.com/destiny/zsock"
	"github.com/destiny/zsock/security/curve"
	"github.com/destiny/zsock/z85"
	"github.com/destiny/zsock/zmtp"
)

func main() {
	addr := flag.String("addr", "tcp://*:5555", "endpoint to listen on")
	allow := flag.String("allow", "", "Z85 public key of the only client allowed (empty allows all)")
	flag.Parse()

	serverKeys, err := curve.GenerateKeyPair()
	if err != nil {
		log.Fatalf("could not generate server keys: %+v", err)
	}
	pub, err := serverKeys.PublicKeyZ85()
	if err != nil {
		log.Fatalf("could not encode server key: %+v", err)
	}

	zctx := zsock.NewContext(zsock.WithContextLogger(zsock.DefaultLogger))
	defer zctx.Term()

	if err := runZAP(zctx, *allow); err != nil {
		log.Fatalf("could not start ZAP handler: %+v", err)
	}

	rep, err := zsock.NewRep(zctx, zsock.WithSecurity(curve.NewServerSecurity(serverKeys)))
	if err != nil {
		log.Fatalf("could not create REP socket: %+v", err)
	}
	defer rep.Close()

	if err := rep.Listen(*addr); err != nil {
		log.Fatalf("could not listen on %s: %+v", *addr, err)
	}
	log.Printf("listening on %s, server key %s", *addr, pub)

	for {
		msg, err := rep.Recv()
		if err != nil {
			log.Fatalf("could not receive request: %+v", err)
		}
		user, _ := msg.Property(zmtp.PropUserID)
		log.Printf("request from %s: %s", user, msg.Frames[0])

		if err := rep.Send(zsock.NewMsgString("Hello from CURVE server!")); err != nil {
			log.Fatalf("could not send reply: %+v", err)
		}
	}
}

// runZAP answers the ZAP requests of zctx. Clients are identified by
// their Z85 public key.
func runZAP(zctx *zsock.Context, allow string) error {
	handler, err := zsock.NewRouter(zctx, zsock.WithLinger(0))
	if err != nil {
		return err
	}
	if err := handler.Listen("inproc://" + zmtp.ZAPEndpoint); err != nil {
		handler.Close()
		return err
	}

	go func() {
		defer handler.Close()
		for {
			msg, err := handler.Recv()
			if err != nil {
				return
			}
			if len(msg.Frames) < 3 {
				continue
			}
			req, err := zmtp.ParseZAPRequest(msg.Frames[2:])
			if err != nil {
				log.Printf("invalid ZAP request: %+v", err)
				continue
			}

			rep := zmtp.ZAPReply{RequestID: req.RequestID, StatusCode: zmtp.ZAPStatusOK, StatusText: "OK"}
			if len(req.Credentials) == 1 {
				rep.UserID, _ = z85.EncodeToString(req.Credentials[0])
			}
			if allow != "" && rep.UserID != allow {
				rep.StatusCode, rep.StatusText = zmtp.ZAPStatusFailure, "unknown client key"
				log.Printf("denied %s from %s", rep.UserID, req.Address)
			}

			frames, err := rep.Frames()
			if err != nil {
				log.Printf("could not encode ZAP reply: %+v", err)
				continue
			}
			if err := handler.Send(zsock.NewMsgFrom(append([][]byte{msg.Frames[0], {}}, frames...)...)); err != nil {
				return
			}
		}
	}()
	return nil
}
