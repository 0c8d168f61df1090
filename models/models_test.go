package models

import "testing"

func TestFingerprintDeterminism(t *testing.T) {
	a := ComputeFingerprint("https://example.com", "auto", "raw", CurrentSchemaVersion)
	b := ComputeFingerprint("https://example.com", "auto", "raw", CurrentSchemaVersion)
	if a != b {
		t.Fatalf("fingerprint not deterministic: %s != %s", a, b)
	}
}

func TestFingerprintDistinguishesInputs(t *testing.T) {
	base := ComputeFingerprint("https://example.com", "auto", "raw", CurrentSchemaVersion)
	cases := []Fingerprint{
		ComputeFingerprint("https://example.org", "auto", "raw", CurrentSchemaVersion),
		ComputeFingerprint("https://example.com", "css", "raw", CurrentSchemaVersion),
		ComputeFingerprint("https://example.com", "auto", "headless", CurrentSchemaVersion),
		ComputeFingerprint("https://example.com", "auto", "raw", CurrentSchemaVersion+1),
	}
	for i, c := range cases {
		if c == base {
			t.Fatalf("case %d collided with base fingerprint", i)
		}
	}
}

func TestNormalizeURLSortsQueryAndLowercasesHost(t *testing.T) {
	got := NormalizeURL("HTTPS://Example.COM/path/?b=2&a=1")
	want := "https://example.com/path?a=1&b=2"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestClampHelpers(t *testing.T) {
	if ClampConfidence(-1) != 0 || ClampConfidence(2) != 1 || ClampConfidence(0.5) != 0.5 {
		t.Fatal("confidence clamp wrong")
	}
	if ClampQuality(-1) != 0 || ClampQuality(200) != 100 || ClampQuality(50) != 50 {
		t.Fatal("quality clamp wrong")
	}
}

func TestIdempotencyTokenExpiry(t *testing.T) {
	tok := IdempotencyToken{}
	if tok.Expired(tok.AcquiredAt) {
		t.Fatal("zero-value expiry should never report expired")
	}
}
