package internal

import (
	"strings"
	"testing"
)

// FuzzParseSessionID feeds arbitrary strings to the session id parser.
// Invalid inputs must return errors cleanly.
func FuzzParseSessionID(f *testing.F) {
	f.Add("")
	f.Add("abc")
	f.Add("!!!not-base64!!!")
	if sid, err := NewSessionID(); err == nil {
		f.Add(sid.String())
	}

	f.Fuzz(func(t *testing.T, input string) {
		sid, err := ParseSessionID(input)
		if err != nil {
			return
		}
		if sid.String() != input {
			t.Fatalf("round trip mismatch: %q -> %q", input, sid.String())
		}
	})
}

func TestRefreshTokensAreUniqueAndHashed(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		tok, err := NewRefreshToken()
		if err != nil {
			t.Fatalf("NewRefreshToken: %v", err)
		}
		if seen[tok] {
			t.Fatal("duplicate refresh token")
		}
		seen[tok] = true

		h := HashToken(tok)
		if len(h) != 64 || strings.Contains(h, tok) {
			t.Fatalf("unexpected hash %q", h)
		}
		if !EqualHashes(h, HashToken(tok)) {
			t.Fatal("hash must be deterministic")
		}
	}
}

func TestCodes(t *testing.T) {
	code, err := NewNumericCode(6)
	if err != nil {
		t.Fatalf("NewNumericCode: %v", err)
	}
	if len(code) != 6 || strings.Trim(code, "0123456789") != "" {
		t.Fatalf("unexpected numeric code %q", code)
	}
	if _, err := NewNumericCode(4); err == nil {
		t.Fatal("expected short numeric code to be rejected")
	}

	opaque, err := NewOpaqueCode(32)
	if err != nil {
		t.Fatalf("NewOpaqueCode: %v", err)
	}
	if len(opaque) != 32 {
		t.Fatalf("unexpected opaque length %d", len(opaque))
	}
}
