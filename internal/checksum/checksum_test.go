package checksum

import (
	"strings"
	"testing"
)

func TestFingerprint_Stable(t *testing.T) {
	a := Fingerprint("E=mc^2\n")
	b := Fingerprint("E=mc^2\n")
	if a != b {
		t.Fatalf("fingerprint not stable: %q vs %q", a, b)
	}
	if len(a) != FingerprintLen {
		t.Errorf("len = %d, want %d", len(a), FingerprintLen)
	}
}

func TestFingerprint_KnownValue(t *testing.T) {
	// sha256("") = e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855
	if got := Fingerprint(""); got != "e3b0c44298fc1c149afbf4c8" {
		t.Errorf("Fingerprint(\"\") = %q", got)
	}
}

func TestFingerprint_WhitespaceMatters(t *testing.T) {
	if Fingerprint("a+b") == Fingerprint("a + b") {
		t.Error("whitespace difference should change the fingerprint")
	}
	if Fingerprint("x\n") == Fingerprint("x") {
		t.Error("trailing newline should change the fingerprint")
	}
}

func TestFingerprint_IsPrefixOfSum(t *testing.T) {
	body := "\\int_0^1 x\\,dx"
	if !strings.HasPrefix(Sum([]byte(body)), Fingerprint(body)) {
		t.Error("fingerprint should be a prefix of the full digest")
	}
}

func TestArtifactSum_DiffersFromSum(t *testing.T) {
	data := []byte("<svg/>")
	if ArtifactSum(data) == Sum(data) {
		t.Error("artifact sum should use a different digest")
	}
	if len(ArtifactSum(data)) != 64 {
		t.Errorf("artifact sum len = %d, want 64", len(ArtifactSum(data)))
	}
}
