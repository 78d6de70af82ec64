package client

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	merrors "github.com/mirada-dev/mirada/internal/errors"
	"github.com/mirada-dev/mirada/pkg/protocol"
)

// supportedEncodings lists the pixel encodings the paint pipeline can
// decode, in preference order.
var supportedEncodings = []string{"rgb32", "rgb24", "png", "jpeg", "webp", "scroll"}

// supportedDigests lists the challenge digests this client implements,
// strongest first.
var supportedDigests = []string{"hmac+sha512", "hmac+sha384", "hmac+sha256", "hmac+sha1", "hmac", "xor"}

// helloCaps builds the base capability record sent on every connection
// attempt. The record is an open map: servers ignore unknown keys.
func (c *Client) helloCaps() map[string]any {
	caps := map[string]any{
		"version":      Version,
		"uuid":         c.uuid,
		"client_type":  "mirada",
		"bencode":      true,
		"windows":      true,
		"encodings":    supportedEncodings,
		"digest":       supportedDigests,
		"salt-digest":  supportedDigests,
		"share":        false,
		"randr_notify": false,
	}
	if c.cfg.Username != "" {
		caps["username"] = c.cfg.Username
	}
	if c.cfg.SessionName != "" {
		caps["session-name"] = c.cfg.SessionName
	}
	if c.cfg.Encrypt {
		addCipherCaps(caps, c.cipherInCaps)
	}
	return caps
}

// addCipherCaps flattens a cipher bootstrap into the record. Each side
// advertises the parameters for its own inbound direction; the peer uses
// them for its outbound cipher.
func addCipherCaps(caps map[string]any, cc protocol.CipherCaps) {
	caps["cipher"] = cc.Cipher
	caps["cipher.mode"] = cc.Mode
	caps["cipher.iv"] = cc.IV
	caps["cipher.key_salt"] = cc.KeySalt
	caps["cipher.key_hash"] = cc.KeyHash
	caps["cipher.key_size"] = cc.KeySize
	caps["cipher.key_stretch_iterations"] = cc.Iterations
	caps["cipher.padding"] = cc.Padding
}

// parseServerCipher extracts the server's cipher bootstrap from its
// hello record. Returns false when the server did not enable encryption
// for its direction.
func parseServerCipher(caps map[string]any) (protocol.CipherCaps, bool) {
	name := capString(caps, "cipher", "")
	if name == "" {
		return protocol.CipherCaps{}, false
	}
	cc := protocol.DefaultCipherCaps()
	cc.Cipher = name
	cc.Mode = capString(caps, "cipher.mode", cc.Mode)
	cc.IV = capString(caps, "cipher.iv", cc.IV)
	if salt := capBytes(caps, "cipher.key_salt"); salt != nil {
		cc.KeySalt = salt
	}
	cc.KeyHash = capString(caps, "cipher.key_hash", cc.KeyHash)
	cc.KeySize = capInt(caps, "cipher.key_size", cc.KeySize)
	cc.Iterations = capInt(caps, "cipher.key_stretch_iterations", cc.Iterations)
	cc.Padding = capString(caps, "cipher.padding", cc.Padding)
	return cc, true
}

// newOutboundCipherCaps generates fresh bootstrap material for the
// client-to-server direction.
func newOutboundCipherCaps() (protocol.CipherCaps, error) {
	cc := protocol.DefaultCipherCaps()
	iv, err := newClientSalt()
	if err != nil {
		return cc, err
	}
	cc.IV = string(iv[:16])
	salt, err := newClientSalt()
	if err != nil {
		return cc, err
	}
	cc.KeySalt = salt
	return cc, nil
}

// parseVersion parses a dotted numeric version string. Non-numeric
// suffixes within a component ("3r2", "5.0-rc1") are truncated at the
// first non-digit; a component with no leading digits fails.
func parseVersion(s string) ([]int, error) {
	if s == "" {
		return nil, merrors.New("E080").WithDetail("server sent an empty version")
	}
	parts := strings.Split(s, ".")
	out := make([]int, 0, len(parts))
	for _, part := range parts {
		digits := part
		for i, r := range part {
			if r < '0' || r > '9' {
				digits = part[:i]
				break
			}
		}
		n, err := strconv.Atoi(digits)
		if err != nil {
			return nil, merrors.New("E080").WithDetailf("cannot parse server version %q", s)
		}
		out = append(out, n)
	}
	return out, nil
}

// versionAtLeast compares dotted versions component-wise; missing
// components count as zero.
func versionAtLeast(v, minimum []int) bool {
	n := max(len(v), len(minimum))
	for i := 0; i < n; i++ {
		var a, b int
		if i < len(v) {
			a = v[i]
		}
		if i < len(minimum) {
			b = minimum[i]
		}
		if a != b {
			return a > b
		}
	}
	return true
}

// checkServerVersion validates the version field of the server's hello.
// Unparsable or below-minimum versions are fatal: no retry can fix them.
func checkServerVersion(caps map[string]any, minimum string) (string, error) {
	raw := capString(caps, "version", "")
	v, err := parseVersion(raw)
	if err != nil {
		return raw, err
	}
	minV, err := parseVersion(minimum)
	if err != nil {
		return raw, err
	}
	if !versionAtLeast(v, minV) {
		return raw, merrors.New("E080").WithDetailf("server version %s is below the minimum %s", raw, minimum)
	}
	return raw, nil
}

// capability record accessors: the serializer yields []byte and int64,
// but locally built records carry native Go types.

func capString(caps map[string]any, key, def string) string {
	switch v := caps[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return def
	}
}

func capBytes(caps map[string]any, key string) []byte {
	switch v := caps[key].(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return nil
	}
}

func capInt(caps map[string]any, key string, def int) int {
	switch v := caps[key].(type) {
	case int64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

func capBool(caps map[string]any, key string, def bool) bool {
	switch v := caps[key].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case int:
		return v != 0
	default:
		return def
	}
}

// newUUID returns the stable per-client identity string.
func newUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
