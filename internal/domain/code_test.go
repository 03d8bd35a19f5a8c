package domain

import "testing"

func TestRandomCodeFormat(t *testing.T) {
	for i := 0; i < 200; i++ {
		code := RandomCode()
		if !ValidCode(code) {
			t.Fatalf("generated invalid code %q", code)
		}
	}
}

func TestNormalizeCode(t *testing.T) {
	if got := NormalizeCode("  ab12cd "); got != "AB12CD" {
		t.Fatalf("expected AB12CD, got %q", got)
	}
	if ValidCode("ab12cd") || ValidCode("AB12C") || ValidCode("AB-2CD") {
		t.Fatalf("expected invalid codes to be rejected")
	}
}
