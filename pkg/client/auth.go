package client

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"

	merrors "github.com/mirada-dev/mirada/internal/errors"
)

// clientSaltSize is the size of the locally generated challenge salt.
const clientSaltSize = 32

// digestHash maps a challenge digest name to its HMAC hash constructor.
// Bare "hmac" is the legacy md5 spelling.
func digestHash(name string) (func() hash.Hash, bool) {
	switch name {
	case "hmac", "hmac+md5":
		return md5.New, true
	case "hmac+sha1":
		return sha1.New, true
	case "hmac+sha256":
		return sha256.New, true
	case "hmac+sha384":
		return sha512.New384, true
	case "hmac+sha512":
		return sha512.New, true
	default:
		return nil, false
	}
}

// Gendigest computes a challenge digest over password and salt. HMAC
// digests return lowercase hex; the xor digest returns raw bytes of
// len(salt) with the password tiled across them. An unsupported name is
// a handshake fault, never silently downgraded.
func Gendigest(name string, password, salt []byte) ([]byte, error) {
	if name == "xor" {
		if len(password) == 0 || len(salt) == 0 {
			return nil, merrors.New("E082").
				WithDetailf("xor digest requires non-empty operands (password %d bytes, salt %d bytes)", len(password), len(salt))
		}
		out := make([]byte, len(salt))
		for i := range salt {
			out[i] = salt[i] ^ password[i%len(password)]
		}
		return out, nil
	}

	h, ok := digestHash(name)
	if !ok {
		return nil, merrors.New("E082").WithDetailf("server requested digest %q", name)
	}
	mac := hmac.New(h, password)
	mac.Write(salt)
	return []byte(hex.EncodeToString(mac.Sum(nil))), nil
}

// newClientSalt returns a fresh random salt for one challenge round.
func newClientSalt() ([]byte, error) {
	salt := make([]byte, clientSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("client: salt generation: %w", err)
	}
	return salt, nil
}

// mixSalts combines the server and client salts with the negotiated salt
// digest. The xor variant is only allowed when the transport is secure
// (or explicitly overridden): it reveals both operands to a listener.
func mixSalts(saltDigest string, serverSalt, clientSalt []byte, secure, allowInsecure bool) ([]byte, error) {
	if len(serverSalt) == 0 {
		return nil, merrors.New("E081").WithDetail("server sent an empty challenge salt")
	}
	if saltDigest == "xor" && !secure && !allowInsecure {
		return nil, merrors.New("E083")
	}
	return Gendigest(saltDigest, clientSalt, serverSalt)
}
