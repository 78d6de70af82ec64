package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestNewRegisteredCode(t *testing.T) {
	err := New("E083")
	if err.Code != "E083" {
		t.Errorf("Code = %q, want E083", err.Code)
	}
	if err.Category != CategoryHandshake {
		t.Errorf("Category = %q, want %q", err.Category, CategoryHandshake)
	}
	if err.Message == "" || err.Detail == "" || err.DocURL == "" {
		t.Errorf("template fields not populated: %+v", err)
	}
	if got := err.Error(); !strings.HasPrefix(got, "E083: ") {
		t.Errorf("Error() = %q, want E083 prefix", got)
	}
}

func TestNewUnknownCode(t *testing.T) {
	err := New("E999")
	if err.Code != "E999" {
		t.Errorf("Code = %q", err.Code)
	}
	if err.Message != "Unknown error" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestNewf(t *testing.T) {
	err := Newf(CategoryPaint, "decode %s for window %d", "png", 3)
	if err.Category != CategoryPaint {
		t.Errorf("Category = %q", err.Category)
	}
	if err.Error() != "decode png for window 3" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := New("E001").Wrap(cause)

	if !stderrors.Is(err, cause) {
		t.Error("errors.Is did not find wrapped cause")
	}

	var me *MiradaError
	if !stderrors.As(error(err), &me) {
		t.Error("errors.As did not find MiradaError")
	}
}

func TestFromError(t *testing.T) {
	if FromError(nil, "E001") != nil {
		t.Error("FromError(nil) != nil")
	}

	orig := New("E060")
	if got := FromError(orig, "E001"); got != orig {
		t.Error("FromError did not pass through an existing MiradaError")
	}

	cause := stderrors.New("boom")
	got := FromError(cause, "E002")
	if got.Code != "E002" || !stderrors.Is(got, cause) {
		t.Errorf("FromError wrapped incorrectly: %+v", got)
	}
}

func TestFatalByCategory(t *testing.T) {
	tests := []struct {
		code  string
		fatal bool
	}{
		{"E020", true},  // frame
		{"E042", true},  // cipher
		{"E080", true},  // handshake
		{"E001", true},  // transport
		{"E060", false}, // serialization
		{"E101", false}, // paint
	}
	for _, tc := range tests {
		if got := New(tc.code).Fatal(); got != tc.fatal {
			t.Errorf("New(%s).Fatal() = %v, want %v", tc.code, got, tc.fatal)
		}
	}
}

func TestFormat(t *testing.T) {
	DisableColors()
	defer EnableColors()

	err := New("E083").
		WithSuggestion("Connect over wss:// instead").
		Wrap(stderrors.New("plain ws transport"))

	out := err.Format()
	for _, want := range []string{
		"ERROR E083:",
		"Hint: Connect over wss:// instead",
		"Cause: plain ws transport",
		"https://mirada.dev/docs/errors/E083",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q in:\n%s", want, out)
		}
	}
}

func TestFormatCompact(t *testing.T) {
	err := New("E081").Wrap(stderrors.New("bad password"))
	got := err.FormatCompact()
	if got != "E081: Authentication failed: bad password" {
		t.Errorf("FormatCompact() = %q", got)
	}
}

func TestFormatJSON(t *testing.T) {
	out := New("E120").FormatJSON()
	for _, want := range []string{`"code":"E120"`, `"category":"config"`} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatJSON() missing %q in %s", want, out)
		}
	}
}

func TestRegisterAndLookup(t *testing.T) {
	Register("X001", ErrorTemplate{
		Category: CategoryCLI,
		Message:  "test error",
	})
	defer delete(registry, "X001")

	tpl, ok := GetTemplate("X001")
	if !ok || tpl.Message != "test error" {
		t.Errorf("GetTemplate = %+v, %v", tpl, ok)
	}

	found := false
	for _, code := range GetAllCodes() {
		if code == "X001" {
			found = true
		}
	}
	if !found {
		t.Error("GetAllCodes missing registered code")
	}
}
