package protocol

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"

	"golang.org/x/crypto/pbkdf2"
)

// Cipher defaults matching the peer's bootstrap values. The capability
// exchange may override any of them.
const (
	DefaultCipher     = "AES"
	DefaultCipherMode = "CBC"
	DefaultKeyHash    = "SHA1"
	DefaultKeySize    = 32
	DefaultIterations = 10_000
	DefaultPadding    = "PKCS#7"
	DefaultSalt       = "0000000000000000"
	DefaultIV         = "0000000000000000"
)

// Cipher errors. Key material mismatches cannot be recovered mid-stream,
// so all of these close the connection.
var (
	ErrUnsupportedCipher  = errors.New("protocol: unsupported cipher algorithm")
	ErrUnsupportedMode    = errors.New("protocol: unsupported cipher mode")
	ErrUnsupportedKeyHash = errors.New("protocol: unsupported key hash")
	ErrUnsupportedPadding = errors.New("protocol: unsupported padding")
	ErrBadIV              = errors.New("protocol: invalid initialization vector")
	ErrBadKeySize         = errors.New("protocol: invalid key size")
	ErrNotBlockAligned    = errors.New("protocol: ciphertext not block aligned")
)

// CipherCaps is the encryption bootstrap material exchanged during the
// hello handshake. One instance per direction; the two directions are
// negotiated once and never renegotiated.
type CipherCaps struct {
	Cipher     string // algorithm tag, e.g. "AES"
	Mode       string // block mode, e.g. "CBC"
	IV         string // initialization vector, one block
	KeySalt    []byte // salt fed to the key derivation function
	KeyHash    string // PRF hash name for key stretching
	KeySize    int    // derived key length in bytes
	Iterations int    // key stretching iterations
	Padding    string // padding scheme name
}

// DefaultCipherCaps returns bootstrap values with every field at its
// protocol default.
func DefaultCipherCaps() CipherCaps {
	return CipherCaps{
		Cipher:     DefaultCipher,
		Mode:       DefaultCipherMode,
		IV:         DefaultIV,
		KeySalt:    []byte(DefaultSalt),
		KeyHash:    DefaultKeyHash,
		KeySize:    DefaultKeySize,
		Iterations: DefaultIterations,
		Padding:    DefaultPadding,
	}
}

// keyHashNew maps a negotiated hash name to its constructor.
func keyHashNew(name string) (func() hash.Hash, error) {
	switch name {
	case "SHA1", "sha1", "":
		return sha1.New, nil
	case "SHA256", "sha256":
		return sha256.New, nil
	case "SHA384", "sha384":
		return sha512.New384, nil
	case "SHA512", "sha512":
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKeyHash, name)
	}
}

// DeriveKey stretches the shared secret into a cipher key using PBKDF2
// with the negotiated hash, salt and iteration count.
func DeriveKey(secret string, caps CipherCaps) ([]byte, error) {
	h, err := keyHashNew(caps.KeyHash)
	if err != nil {
		return nil, err
	}
	size := caps.KeySize
	if size == 0 {
		size = DefaultKeySize
	}
	if size != 16 && size != 24 && size != 32 {
		return nil, fmt.Errorf("%w: %d", ErrBadKeySize, size)
	}
	iterations := caps.Iterations
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return pbkdf2.Key([]byte(secret), caps.KeySalt, iterations, size, h), nil
}

// CipherState is one directional cipher stream: a CBC block mode seeded
// with the negotiated IV. CBC chaining makes it stateful, so each
// direction owns an independent instance and Update calls must stay in
// wire order.
type CipherState struct {
	mode      cipher.BlockMode
	blockSize int
}

// NewCipherState derives the key for one direction and seeds its CBC
// state. encrypt selects the outbound (encrypting) direction.
func NewCipherState(caps CipherCaps, secret string, encrypt bool) (*CipherState, error) {
	if caps.Cipher != "" && caps.Cipher != DefaultCipher {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCipher, caps.Cipher)
	}
	if caps.Mode != "" && caps.Mode != DefaultCipherMode {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMode, caps.Mode)
	}
	if caps.Padding != "" && caps.Padding != DefaultPadding {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPadding, caps.Padding)
	}

	key, err := DeriveKey(secret, caps)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("protocol: cipher init: %w", err)
	}
	iv := []byte(caps.IV)
	if len(iv) != block.BlockSize() {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadIV, len(iv))
	}

	var mode cipher.BlockMode
	if encrypt {
		mode = cipher.NewCBCEncrypter(block, iv)
	} else {
		mode = cipher.NewCBCDecrypter(block, iv)
	}
	return &CipherState{mode: mode, blockSize: block.BlockSize()}, nil
}

// BlockSize returns the cipher block size in bytes.
func (s *CipherState) BlockSize() int {
	return s.blockSize
}

// Update transforms the next chunk of the stream. The input length must be
// a block multiple; the input slice is left untouched.
func (s *CipherState) Update(data []byte) ([]byte, error) {
	if len(data)%s.blockSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrNotBlockAligned, len(data))
	}
	out := make([]byte, len(data))
	s.mode.CryptBlocks(out, data)
	return out, nil
}

// PaddedSize returns n rounded up to the next multiple of blockSize. An
// aligned n gains a full extra block, matching PKCS#7 on the peer.
func PaddedSize(n, blockSize int) int {
	return n + blockSize - n%blockSize
}

// Pad appends PKCS#7 padding: the pad value equals the number of pad
// bytes, and block-aligned input always gains one full block.
func Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+padding)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(padding)
	}
	return out
}

// Unpad strips the padding from a decrypted payload given the plaintext
// size declared in the frame header. The pad bytes themselves are never
// trusted.
func Unpad(data []byte, plainSize int) ([]byte, error) {
	if plainSize < 0 || plainSize > len(data) {
		return nil, fmt.Errorf("protocol: declared plaintext size %d outside payload of %d bytes", plainSize, len(data))
	}
	return data[:plainSize], nil
}
