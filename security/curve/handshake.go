// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package curve

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/destiny/zsock/zmtp"
)

// Nonce prefixes as per RFC 26.
const (
	prefixHello    = "CurveZMQHELLO---"
	prefixWelcome  = "WELCOME-"
	prefixInitiate = "CurveZMQINITIATE"
	prefixReady    = "CurveZMQREADY---"
	prefixMessageC = "CurveZMQMESSAGEC"
	prefixMessageS = "CurveZMQMESSAGES"
	prefixVouch    = "VOUCH---"
	prefixCookie   = "COOKIE--"
)

// Command body sizes, without the command name.
const (
	helloSize    = 2 + 72 + KeySize + 8 + 64 + BoxOverhead // 194
	welcomeSize  = 16 + KeySize + cookieSize + BoxOverhead // 160
	cookieSize   = 16 + 2*KeySize + BoxOverhead            // 96
	vouchSize    = 16 + 2*KeySize + BoxOverhead            // 96
	initiateMin  = cookieSize + 8 + KeySize + vouchSize + BoxOverhead
	readyMin     = 8 + BoxOverhead
	messageMin   = 8 + 8 + 1 + BoxOverhead
	messageToken = "\x07MESSAGE"
)

const (
	msgFlagMore    = 0x01
	msgFlagCommand = 0x02
)

type state int

const (
	sendHello state = iota
	waitWelcome
	sendInitiate
	waitReady

	waitHello
	sendWelcome
	waitInitiate
	waitZAP
	sendReady

	ready
	failed
)

type mechanism struct {
	server    bool
	keys      KeyPair
	serverKey [KeySize]byte
	cfg       zmtp.Config
	state     state

	// transient key pair of this side
	tpub, tsec [KeySize]byte
	// transient public key of the peer
	peerT [KeySize]byte
	// peer's long-term public key (server side only)
	peerLong [KeySize]byte

	cookie    []byte
	cookieKey [KeySize]byte
	shared    [KeySize]byte

	nonce     uint64
	peerNonce uint64

	sendPrefix string
	recvPrefix string

	errPending *zmtp.Cmd
	zapReq     *zmtp.ZAPRequest

	peer   zmtp.Metadata
	userID string
}

func shortNonce(prefix string, n uint64) *[NonceSize]byte {
	var nonce [NonceSize]byte
	copy(nonce[:], prefix)
	binary.BigEndian.PutUint64(nonce[16:], n)
	return &nonce
}

func longNonce(prefix string, suffix []byte) *[NonceSize]byte {
	var nonce [NonceSize]byte
	copy(nonce[:], prefix)
	copy(nonce[8:], suffix)
	return &nonce
}

func randomBytes(n int) ([]byte, error) {
	p := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, p); err != nil {
		return nil, errors.Wrap(err, "curve: could not read random bytes")
	}
	return p, nil
}

func (m *mechanism) nextNonce() uint64 {
	n := m.nonce
	m.nonce++
	return n
}

func (m *mechanism) checkPeerNonce(n uint64) error {
	if n <= m.peerNonce {
		return errors.Wrapf(ErrInvalidNonce, "nonce %d not above %d", n, m.peerNonce)
	}
	m.peerNonce = n
	return nil
}

func (m *mechanism) NextHandshakeCommand() (zmtp.Cmd, error) {
	if m.errPending != nil {
		cmd := *m.errPending
		m.errPending = nil
		return cmd, nil
	}

	var (
		cmd zmtp.Cmd
		err error
	)
	switch m.state {
	case sendHello:
		cmd, err = m.hello()
		m.state = waitWelcome
	case sendInitiate:
		cmd, err = m.initiate()
		m.state = waitReady
	case sendWelcome:
		cmd, err = m.welcome()
		m.state = waitInitiate
	case sendReady:
		cmd, err = m.ready()
		m.state = ready
	default:
		return cmd, zmtp.ErrAgain
	}
	if err != nil {
		m.state = failed
	}
	return cmd, err
}

func (m *mechanism) ProcessHandshakeCommand(cmd zmtp.Cmd) error {
	if cmd.Name == zmtp.CmdError && m.state != failed {
		m.state = failed
		return zmtp.PeerError(cmd.Body)
	}

	var err error
	switch {
	case m.state == waitWelcome && cmd.Name == zmtp.CmdWelcome:
		err = m.processWelcome(cmd.Body)
		m.state = sendInitiate
	case m.state == waitReady && cmd.Name == zmtp.CmdReady:
		err = m.processReady(cmd.Body)
		m.state = ready
	case m.state == waitHello && cmd.Name == zmtp.CmdHello:
		err = m.processHello(cmd.Body)
		m.state = sendWelcome
	case m.state == waitInitiate && cmd.Name == zmtp.CmdInitiate:
		err = m.processInitiate(cmd.Body)
		if err == nil && m.cfg.ZAP {
			m.zapReq = &zmtp.ZAPRequest{
				RequestID:   []byte("1"),
				Domain:      m.cfg.ZAPDomain,
				Address:     m.cfg.Address,
				Identity:    []byte(m.cfg.Metadata[zmtp.PropIdentity]),
				Mechanism:   zmtp.Curve,
				Credentials: [][]byte{append([]byte(nil), m.peerLong[:]...)},
			}
			m.state = waitZAP
		} else {
			m.state = sendReady
		}
	default:
		err = errors.Wrapf(ErrInvalidCommand, "unexpected %s command", cmd.Name)
	}
	if err != nil {
		m.state = failed
		return zmtp.Protocolf("security/curve: %v", err)
	}
	return nil
}

// hello = %d5 "HELLO" version padding hello-client hello-nonce hello-box
func (m *mechanism) hello() (zmtp.Cmd, error) {
	pub, sec, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return zmtp.Cmd{}, errors.Wrap(err, "curve: could not generate transient key")
	}
	m.tpub, m.tsec = *pub, *sec

	n := m.nextNonce()
	body := make([]byte, 0, helloSize)
	body = append(body, 1, 0)
	body = append(body, make([]byte, 72)...)
	body = append(body, m.tpub[:]...)
	body = append(body, shortNonce(prefixHello, n)[16:]...)
	body = box.Seal(body, make([]byte, 64), shortNonce(prefixHello, n), &m.serverKey, &m.tsec)
	return zmtp.Cmd{Name: zmtp.CmdHello, Body: body}, nil
}

func (m *mechanism) processHello(body []byte) error {
	if len(body) != helloSize {
		return errors.Wrapf(ErrInvalidCommand, "HELLO of %d bytes", len(body))
	}
	if body[0] != 1 || body[1] != 0 {
		return errors.Wrapf(ErrInvalidCommand, "unsupported CURVE version %d.%d", body[0], body[1])
	}
	copy(m.peerT[:], body[74:74+KeySize])
	n := binary.BigEndian.Uint64(body[106:114])
	if err := m.checkPeerNonce(n); err != nil {
		return err
	}
	plain, ok := box.Open(nil, body[114:], shortNonce(prefixHello, n), &m.peerT, &m.keys.Secret)
	if !ok || !bytes.Equal(plain, make([]byte, 64)) {
		return errors.Wrap(ErrDecryptionFailed, "HELLO box")
	}
	return nil
}

// welcome = %d7 "WELCOME" welcome-nonce welcome-box
func (m *mechanism) welcome() (zmtp.Cmd, error) {
	pub, sec, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return zmtp.Cmd{}, errors.Wrap(err, "curve: could not generate transient key")
	}
	m.tpub, m.tsec = *pub, *sec

	key, err := randomBytes(KeySize)
	if err != nil {
		return zmtp.Cmd{}, err
	}
	copy(m.cookieKey[:], key)

	cnonce, err := randomBytes(16)
	if err != nil {
		return zmtp.Cmd{}, err
	}
	plain := make([]byte, 0, 2*KeySize)
	plain = append(plain, m.peerT[:]...)
	plain = append(plain, m.tsec[:]...)
	cookie := append([]byte(nil), cnonce...)
	cookie = secretbox.Seal(cookie, plain, longNonce(prefixCookie, cnonce), &m.cookieKey)

	wnonce, err := randomBytes(16)
	if err != nil {
		return zmtp.Cmd{}, err
	}
	content := make([]byte, 0, KeySize+cookieSize)
	content = append(content, m.tpub[:]...)
	content = append(content, cookie...)

	body := append([]byte(nil), wnonce...)
	body = box.Seal(body, content, longNonce(prefixWelcome, wnonce), &m.peerT, &m.keys.Secret)
	return zmtp.Cmd{Name: zmtp.CmdWelcome, Body: body}, nil
}

func (m *mechanism) processWelcome(body []byte) error {
	if len(body) != welcomeSize {
		return errors.Wrapf(ErrInvalidCommand, "WELCOME of %d bytes", len(body))
	}
	plain, ok := box.Open(nil, body[16:], longNonce(prefixWelcome, body[:16]), &m.serverKey, &m.tsec)
	if !ok {
		return errors.Wrap(ErrDecryptionFailed, "WELCOME box")
	}
	copy(m.peerT[:], plain[:KeySize])
	m.cookie = append([]byte(nil), plain[KeySize:]...)
	box.Precompute(&m.shared, &m.peerT, &m.tsec)
	return nil
}

// initiate = %d8 "INITIATE" cookie initiate-nonce initiate-box
func (m *mechanism) initiate() (zmtp.Cmd, error) {
	vnonce, err := randomBytes(16)
	if err != nil {
		return zmtp.Cmd{}, err
	}
	vplain := make([]byte, 0, 2*KeySize)
	vplain = append(vplain, m.tpub[:]...)
	vplain = append(vplain, m.serverKey[:]...)
	vouch := append([]byte(nil), vnonce...)
	vouch = box.Seal(vouch, vplain, longNonce(prefixVouch, vnonce), &m.peerT, &m.keys.Secret)

	md, err := m.cfg.Metadata.MarshalZMTP()
	if err != nil {
		return zmtp.Cmd{}, errors.WithMessage(err, "curve: could not serialize metadata")
	}
	content := make([]byte, 0, KeySize+vouchSize+len(md))
	content = append(content, m.keys.Public[:]...)
	content = append(content, vouch...)
	content = append(content, md...)

	n := m.nextNonce()
	body := append([]byte(nil), m.cookie...)
	body = append(body, shortNonce(prefixInitiate, n)[16:]...)
	body = box.SealAfterPrecomputation(body, content, shortNonce(prefixInitiate, n), &m.shared)
	return zmtp.Cmd{Name: zmtp.CmdInitiate, Body: body}, nil
}

func (m *mechanism) processInitiate(body []byte) error {
	if len(body) < initiateMin {
		return errors.Wrapf(ErrInvalidCommand, "INITIATE of %d bytes", len(body))
	}

	cookie := body[:cookieSize]
	cplain, ok := secretbox.Open(nil, cookie[16:], longNonce(prefixCookie, cookie[:16]), &m.cookieKey)
	if !ok {
		return errors.Wrap(ErrDecryptionFailed, "INITIATE cookie")
	}
	if !bytes.Equal(cplain[:KeySize], m.peerT[:]) || !bytes.Equal(cplain[KeySize:], m.tsec[:]) {
		return errors.Wrap(ErrDecryptionFailed, "INITIATE cookie content")
	}
	// The cookie can only be used once.
	m.cookieKey = [KeySize]byte{}

	n := binary.BigEndian.Uint64(body[cookieSize : cookieSize+8])
	if err := m.checkPeerNonce(n); err != nil {
		return err
	}
	box.Precompute(&m.shared, &m.peerT, &m.tsec)
	plain, ok := box.OpenAfterPrecomputation(nil, body[cookieSize+8:], shortNonce(prefixInitiate, n), &m.shared)
	if !ok {
		return errors.Wrap(ErrDecryptionFailed, "INITIATE box")
	}

	copy(m.peerLong[:], plain[:KeySize])
	vouch := plain[KeySize : KeySize+vouchSize]
	vplain, ok := box.Open(nil, vouch[16:], longNonce(prefixVouch, vouch[:16]), &m.peerLong, &m.tsec)
	if !ok {
		return errors.Wrap(ErrDecryptionFailed, "INITIATE vouch")
	}
	if !bytes.Equal(vplain[:KeySize], m.peerT[:]) || !bytes.Equal(vplain[KeySize:], m.keys.Public[:]) {
		return errors.Wrap(ErrDecryptionFailed, "INITIATE vouch content")
	}

	var md zmtp.Metadata
	if err := md.UnmarshalZMTP(plain[KeySize+vouchSize:]); err != nil {
		return errors.WithMessage(err, "could not unmarshal peer metadata")
	}
	m.peer = md
	return nil
}

// ready = %d5 "READY" ready-nonce ready-box
func (m *mechanism) ready() (zmtp.Cmd, error) {
	md, err := m.cfg.Metadata.MarshalZMTP()
	if err != nil {
		return zmtp.Cmd{}, errors.WithMessage(err, "curve: could not serialize metadata")
	}
	n := m.nextNonce()
	body := append([]byte(nil), shortNonce(prefixReady, n)[16:]...)
	body = box.SealAfterPrecomputation(body, md, shortNonce(prefixReady, n), &m.shared)
	return zmtp.Cmd{Name: zmtp.CmdReady, Body: body}, nil
}

func (m *mechanism) processReady(body []byte) error {
	if len(body) < readyMin {
		return errors.Wrapf(ErrInvalidCommand, "READY of %d bytes", len(body))
	}
	n := binary.BigEndian.Uint64(body[:8])
	if err := m.checkPeerNonce(n); err != nil {
		return err
	}
	plain, ok := box.OpenAfterPrecomputation(nil, body[8:], shortNonce(prefixReady, n), &m.shared)
	if !ok {
		return errors.Wrap(ErrDecryptionFailed, "READY box")
	}
	var md zmtp.Metadata
	if err := md.UnmarshalZMTP(plain); err != nil {
		return errors.WithMessage(err, "could not unmarshal peer metadata")
	}
	m.peer = md
	return nil
}

func (m *mechanism) Status() zmtp.Status {
	switch m.state {
	case ready:
		return zmtp.Ready
	case failed:
		return zmtp.Failed
	}
	return zmtp.Handshaking
}

func (m *mechanism) ZAPRequest() *zmtp.ZAPRequest {
	req := m.zapReq
	m.zapReq = nil
	return req
}

func (m *mechanism) ProcessZAPReply(rep zmtp.ZAPReply) error {
	if m.state != waitZAP {
		m.state = failed
		return zmtp.Protocolf("security/curve: unexpected ZAP reply")
	}
	if err := rep.StatusError(); err != nil {
		cmd := zmtp.ErrorCmd(rep.StatusCode)
		m.errPending = &cmd
		m.state = failed
		return err
	}
	m.userID = rep.UserID
	m.state = sendReady
	return nil
}

// Encode boxes f into a MESSAGE.
// message = %d7 "MESSAGE" message-nonce message-box
func (m *mechanism) Encode(f zmtp.Frame) (zmtp.Frame, error) {
	var flags byte
	if f.More() {
		flags |= msgFlagMore
	}
	if f.IsCommand() {
		flags |= msgFlagCommand
	}
	plain := make([]byte, 0, 1+len(f.Body))
	plain = append(plain, flags)
	plain = append(plain, f.Body...)

	n := m.nextNonce()
	body := make([]byte, 0, messageMin+len(f.Body))
	body = append(body, messageToken...)
	body = append(body, shortNonce(m.sendPrefix, n)[16:]...)
	body = box.SealAfterPrecomputation(body, plain, shortNonce(m.sendPrefix, n), &m.shared)
	return zmtp.Frame{Body: body}, nil
}

// Decode opens a MESSAGE.
func (m *mechanism) Decode(f zmtp.Frame) (zmtp.Frame, error) {
	if len(f.Body) < messageMin || string(f.Body[:len(messageToken)]) != messageToken {
		return zmtp.Frame{}, zmtp.Protocolf("security/curve: invalid MESSAGE of %d bytes", len(f.Body))
	}
	raw := f.Body[len(messageToken):]
	n := binary.BigEndian.Uint64(raw[:8])
	if n <= m.peerNonce {
		return zmtp.Frame{}, zmtp.Protocolf("security/curve: %v: %d not above %d", ErrInvalidNonce, n, m.peerNonce)
	}
	plain, ok := box.OpenAfterPrecomputation(nil, raw[8:], shortNonce(m.recvPrefix, n), &m.shared)
	if !ok {
		return zmtp.Frame{}, zmtp.Protocolf("security/curve: %v", ErrDecryptionFailed)
	}
	m.peerNonce = n

	var out zmtp.Frame
	if plain[0]&msgFlagMore != 0 {
		out.Flags |= zmtp.FlagMore
	}
	if plain[0]&msgFlagCommand != 0 {
		out.Flags |= zmtp.FlagCommand
	}
	out.Body = plain[1:]
	return out, nil
}

func (m *mechanism) PeerMetadata() zmtp.Metadata { return m.peer }
func (m *mechanism) UserID() string              { return m.userID }

// PeerPublicKey returns the client's long-term public key, once INITIATE
// has been processed on the server side.
func (m *mechanism) PeerPublicKey() [KeySize]byte { return m.peerLong }

var (
	_ zmtp.Mechanism = (*mechanism)(nil)
)
