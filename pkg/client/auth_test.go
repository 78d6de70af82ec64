package client

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	merrors "github.com/mirada-dev/mirada/internal/errors"
)

func TestGendigestHMAC(t *testing.T) {
	password := []byte("s3cret")
	salt := []byte("0123456789abcdef0123456789abcdef")

	got, err := Gendigest("hmac+sha256", password, salt)
	if err != nil {
		t.Fatalf("Gendigest() error = %v", err)
	}

	mac := hmac.New(sha256.New, password)
	mac.Write(salt)
	want := []byte(hex.EncodeToString(mac.Sum(nil)))

	if !bytes.Equal(got, want) {
		t.Errorf("Gendigest() = %s, want %s", got, want)
	}
	if len(got) != 64 {
		t.Errorf("hmac+sha256 digest length = %d, want 64 hex chars", len(got))
	}
}

func TestGendigestHMACLegacyName(t *testing.T) {
	// Bare "hmac" is md5: 32 hex chars.
	got, err := Gendigest("hmac", []byte("pw"), []byte("salt"))
	if err != nil {
		t.Fatalf("Gendigest() error = %v", err)
	}
	if len(got) != 32 {
		t.Errorf("hmac digest length = %d, want 32", len(got))
	}
	same, err := Gendigest("hmac+md5", []byte("pw"), []byte("salt"))
	if err != nil {
		t.Fatalf("Gendigest() error = %v", err)
	}
	if !bytes.Equal(got, same) {
		t.Error("hmac and hmac+md5 disagree")
	}
}

func TestGendigestXORTiling(t *testing.T) {
	// A short password tiles across the salt.
	password := []byte{0x01, 0x02}
	salt := []byte{0x10, 0x20, 0x30, 0x40, 0x50}

	got, err := Gendigest("xor", password, salt)
	if err != nil {
		t.Fatalf("Gendigest() error = %v", err)
	}
	want := []byte{0x11, 0x22, 0x31, 0x42, 0x51}
	if !bytes.Equal(got, want) {
		t.Errorf("xor digest = %x, want %x", got, want)
	}
}

func TestGendigestXOREmptyOperands(t *testing.T) {
	if _, err := Gendigest("xor", nil, []byte("salt")); err == nil {
		t.Error("empty password accepted")
	}
	if _, err := Gendigest("xor", []byte("pw"), nil); err == nil {
		t.Error("empty salt accepted")
	}
}

func TestGendigestUnsupported(t *testing.T) {
	for _, name := range []string{"", "md5", "sha256", "hmac+crc32", "des"} {
		if _, err := Gendigest(name, []byte("pw"), []byte("salt")); err == nil {
			t.Errorf("digest %q accepted", name)
		}
	}
}

func TestMixSaltsXORRequiresSecureTransport(t *testing.T) {
	server := []byte("serversaltserversalt")
	client := []byte("clientsaltclientsalt")

	_, err := mixSalts("xor", server, client, false, false)
	var me *merrors.MiradaError
	if !errors.As(err, &me) || me.Code != "E083" {
		t.Fatalf("insecure xor error = %v, want E083", err)
	}

	if _, err := mixSalts("xor", server, client, true, false); err != nil {
		t.Errorf("secure transport refused: %v", err)
	}
	if _, err := mixSalts("xor", server, client, false, true); err != nil {
		t.Errorf("explicit override refused: %v", err)
	}
}

func TestMixSaltsEmptyServerSalt(t *testing.T) {
	if _, err := mixSalts("hmac+sha256", nil, []byte("client"), true, false); err == nil {
		t.Error("empty server salt accepted")
	}
}

func TestNewClientSalt(t *testing.T) {
	a, err := newClientSalt()
	if err != nil {
		t.Fatalf("newClientSalt() error = %v", err)
	}
	b, err := newClientSalt()
	if err != nil {
		t.Fatalf("newClientSalt() error = %v", err)
	}
	if len(a) != clientSaltSize {
		t.Errorf("salt length = %d, want %d", len(a), clientSaltSize)
	}
	if bytes.Equal(a, b) {
		t.Error("two salts are identical")
	}
}
