package client

import (
	"testing"

	"github.com/mirada-dev/mirada/pkg/protocol"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{in: "6.0", want: []int{6, 0}},
		{in: "4.5.3", want: []int{4, 5, 3}},
		{in: "5", want: []int{5}},
		{in: "3r2.1", want: []int{3, 1}},
		{in: "", wantErr: true},
		{in: "beta", wantErr: true},
		{in: "1..2", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := parseVersion(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("parseVersion(%q) = %v, want error", tc.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseVersion(%q) error = %v", tc.in, err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("parseVersion(%q) = %v, want %v", tc.in, got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("parseVersion(%q) = %v, want %v", tc.in, got, tc.want)
				}
			}
		})
	}
}

func TestVersionAtLeast(t *testing.T) {
	tests := []struct {
		v, min string
		want   bool
	}{
		{"6.0", "4.0", true},
		{"4.0", "4.0", true},
		{"4.0.1", "4.0", true},
		{"4", "4.0", true},
		{"3.9", "4.0", false},
		{"4.0", "4.0.1", false},
		{"10.0", "9.9", true},
	}
	for _, tc := range tests {
		v, err := parseVersion(tc.v)
		if err != nil {
			t.Fatal(err)
		}
		minV, err := parseVersion(tc.min)
		if err != nil {
			t.Fatal(err)
		}
		if got := versionAtLeast(v, minV); got != tc.want {
			t.Errorf("versionAtLeast(%s, %s) = %v, want %v", tc.v, tc.min, got, tc.want)
		}
	}
}

func TestCheckServerVersion(t *testing.T) {
	caps := map[string]any{"version": []byte("6.1.2")}
	got, err := checkServerVersion(caps, "4.0")
	if err != nil {
		t.Fatalf("checkServerVersion() error = %v", err)
	}
	if got != "6.1.2" {
		t.Errorf("version = %q", got)
	}

	if _, err := checkServerVersion(map[string]any{"version": []byte("3.2")}, "4.0"); err == nil {
		t.Error("below-minimum version accepted")
	}
	if _, err := checkServerVersion(map[string]any{}, "4.0"); err == nil {
		t.Error("missing version accepted")
	}
}

func TestHelloCaps(t *testing.T) {
	c := New(&Config{ServerURI: "ws://x", Username: "ana", SessionName: "desk"}, Events{})
	caps := c.helloCaps()

	if capString(caps, "version", "") != Version {
		t.Errorf("version = %v", caps["version"])
	}
	if got := capString(caps, "uuid", ""); len(got) != 32 {
		t.Errorf("uuid = %q, want 32 chars", got)
	}
	if capString(caps, "username", "") != "ana" {
		t.Errorf("username = %v", caps["username"])
	}
	if _, ok := caps["cipher"]; ok {
		t.Error("cipher caps present without encryption")
	}
	encodings, ok := caps["encodings"].([]string)
	if !ok || len(encodings) == 0 {
		t.Fatalf("encodings = %v", caps["encodings"])
	}
}

func TestHelloCapsWithEncryption(t *testing.T) {
	c := New(&Config{ServerURI: "wss://x", Encrypt: true, Password: "pw"}, Events{})
	cc, err := newOutboundCipherCaps()
	if err != nil {
		t.Fatal(err)
	}
	c.cipherInCaps = cc
	caps := c.helloCaps()

	if capString(caps, "cipher", "") != "AES" {
		t.Errorf("cipher = %v", caps["cipher"])
	}
	if iv := capString(caps, "cipher.iv", ""); len(iv) != 16 {
		t.Errorf("iv length = %d, want 16", len(iv))
	}
	if salt := capBytes(caps, "cipher.key_salt"); len(salt) != clientSaltSize {
		t.Errorf("key salt length = %d", len(salt))
	}
}

func TestParseServerCipher(t *testing.T) {
	caps := map[string]any{
		"cipher":                        []byte("AES"),
		"cipher.mode":                   []byte("CBC"),
		"cipher.iv":                     []byte("abcdefghijklmnop"),
		"cipher.key_salt":               []byte("serversalt"),
		"cipher.key_hash":               []byte("SHA256"),
		"cipher.key_size":               int64(32),
		"cipher.key_stretch_iterations": int64(20000),
	}
	cc, ok := parseServerCipher(caps)
	if !ok {
		t.Fatal("cipher caps not detected")
	}
	if cc.IV != "abcdefghijklmnop" || cc.KeyHash != "SHA256" || cc.Iterations != 20000 {
		t.Errorf("parsed caps = %+v", cc)
	}

	if _, ok := parseServerCipher(map[string]any{"version": []byte("6.0")}); ok {
		t.Error("cipher detected in plain hello")
	}

	// Missing optional fields fall back to protocol defaults.
	cc, ok = parseServerCipher(map[string]any{"cipher": []byte("AES")})
	if !ok {
		t.Fatal("cipher caps not detected")
	}
	if cc.Mode != protocol.DefaultCipherMode || cc.Iterations != protocol.DefaultIterations {
		t.Errorf("defaults not applied: %+v", cc)
	}
}

func TestCapBool(t *testing.T) {
	caps := map[string]any{
		"native":  true,
		"wire":    int64(1),
		"cleared": int64(0),
	}
	if !capBool(caps, "native", false) {
		t.Error("native bool not read")
	}
	if !capBool(caps, "wire", false) {
		t.Error("wire integer 1 not truthy")
	}
	if capBool(caps, "cleared", true) {
		t.Error("wire integer 0 not falsy")
	}
	if !capBool(caps, "absent", true) {
		t.Error("absent key ignored the default")
	}
}
