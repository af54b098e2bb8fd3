// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package curve provides the ZeroMQ CURVE security mechanism as specified by:
// https://rfc.zeromq.org/spec/25/ZMTP-CURVE/
// https://rfc.zeromq.org/spec/26/CURVEZMQ/
package curve

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/pkg/errors"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"

	"github.com/destiny/zsock/z85"
	"github.com/destiny/zsock/zmtp"
)

const (
	// KeySize is the size of a Curve25519 key.
	KeySize = 32
	// NonceSize is the size of a NaCl box nonce.
	NonceSize = 24
	// BoxOverhead is the NaCl box authentication overhead.
	BoxOverhead = box.Overhead
)

var (
	ErrInvalidKey       = errors.New("curve: invalid key")
	ErrDecryptionFailed = errors.New("curve: decryption failed")
	ErrInvalidCommand   = errors.New("curve: invalid command format")
	ErrInvalidNonce     = errors.New("curve: invalid nonce")
)

// KeyPair represents a Curve25519 key pair
type KeyPair struct {
	Public [KeySize]byte
	Secret [KeySize]byte
}

// GenerateKeyPair generates a new Curve25519 key pair
func GenerateKeyPair() (*KeyPair, error) {
	pub, sec, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "curve: failed to generate key pair")
	}
	return &KeyPair{Public: *pub, Secret: *sec}, nil
}

// NewKeyPair creates a key pair from existing keys
func NewKeyPair(public, secret [KeySize]byte) *KeyPair {
	return &KeyPair{Public: public, Secret: secret}
}

// NewKeyPairFromSecret derives the public half of a key pair from its
// secret half.
func NewKeyPairFromSecret(secret [KeySize]byte) (*KeyPair, error) {
	pub, err := curve25519.X25519(secret[:], curve25519.Basepoint)
	if err != nil {
		return nil, errors.Wrap(err, "curve: could not derive public key")
	}
	kp := &KeyPair{Secret: secret}
	copy(kp.Public[:], pub)
	return kp, nil
}

// NewKeyPairFromZ85 creates a key pair from Z85-encoded public and secret keys
func NewKeyPairFromZ85(publicZ85, secretZ85 string) (*KeyPair, error) {
	pub, err := KeyFromZ85(publicZ85)
	if err != nil {
		return nil, errors.WithMessage(err, "curve: invalid public key")
	}
	sec, err := KeyFromZ85(secretZ85)
	if err != nil {
		return nil, errors.WithMessage(err, "curve: invalid secret key")
	}
	return NewKeyPair(pub, sec), nil
}

// KeyFromZ85 decodes a 40 characters Z85 key.
func KeyFromZ85(s string) ([KeySize]byte, error) {
	var key [KeySize]byte
	if len(s) != z85.EncodedLen(KeySize) {
		return key, errors.Wrapf(ErrInvalidKey, "Z85 key of length %d", len(s))
	}
	raw, err := z85.DecodeString(s)
	if err != nil {
		return key, errors.Wrap(ErrInvalidKey, err.Error())
	}
	copy(key[:], raw)
	return key, nil
}

// KeyFromBytes accepts a key either as 32 raw bytes or as 40 Z85
// characters, as the CURVE socket options do.
func KeyFromBytes(p []byte) ([KeySize]byte, error) {
	var key [KeySize]byte
	switch len(p) {
	case KeySize:
		copy(key[:], p)
		return key, nil
	case z85.EncodedLen(KeySize):
		return KeyFromZ85(string(p))
	}
	return key, errors.Wrapf(ErrInvalidKey, "key of length %d", len(p))
}

// PublicKeyZ85 returns the public key encoded as Z85 string
func (kp *KeyPair) PublicKeyZ85() (string, error) {
	return z85.EncodeToString(kp.Public[:])
}

// SecretKeyZ85 returns the secret key encoded as Z85 string
func (kp *KeyPair) SecretKeyZ85() (string, error) {
	return z85.EncodeToString(kp.Secret[:])
}

// PublicKeyHex returns the public key encoded as hex string
func (kp *KeyPair) PublicKeyHex() string {
	return hex.EncodeToString(kp.Public[:])
}

// security implements the CURVE security mechanism.
type security struct {
	server    bool
	keys      KeyPair
	serverKey [KeySize]byte
}

// NewClientSecurity returns the client side of the CURVE mechanism. The
// client authenticates with its long-term key pair and must know the
// server's long-term public key.
func NewClientSecurity(clientKeys *KeyPair, serverPublicKey [KeySize]byte) zmtp.Security {
	return &security{keys: *clientKeys, serverKey: serverPublicKey}
}

// NewServerSecurity returns the server side of the CURVE mechanism.
func NewServerSecurity(serverKeys *KeyPair) zmtp.Security {
	return &security{server: true, keys: *serverKeys}
}

// Type returns the security mechanism type.
func (*security) Type() string { return zmtp.Curve }

// AsServer reports whether this is the server side.
func (sec *security) AsServer() bool { return sec.server }

// NewMechanism returns the per-connection CURVE handshake.
func (sec *security) NewMechanism(cfg zmtp.Config) (zmtp.Mechanism, error) {
	m := &mechanism{
		server:    sec.server,
		keys:      sec.keys,
		serverKey: sec.serverKey,
		cfg:       cfg,
		nonce:     1,
	}
	if sec.server {
		m.state = waitHello
		m.sendPrefix = prefixMessageS
		m.recvPrefix = prefixMessageC
	} else {
		m.state = sendHello
		m.sendPrefix = prefixMessageC
		m.recvPrefix = prefixMessageS
	}
	return m, nil
}

var (
	_ zmtp.Security = (*security)(nil)
)
