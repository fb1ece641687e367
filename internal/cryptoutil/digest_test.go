package cryptoutil

import (
	"strings"
	"testing"
)

func TestDigest_KnownVector(t *testing.T) {
	// sha256("")
	const want = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := Digest(nil); got != want {
		t.Fatalf("Digest(nil) = %s, want %s", got, want)
	}
}

func TestDigest_Lowercase64(t *testing.T) {
	got := Digest([]byte("users:\n  - username: alice\n"))
	if len(got) != 64 || got != strings.ToLower(got) {
		t.Fatalf("unexpected digest %q", got)
	}
}

func TestDigestEqual(t *testing.T) {
	a := Digest([]byte("a"))
	tests := []struct {
		x, y string
		want bool
	}{
		{a, a, true},
		{a, Digest([]byte("b")), false},
		{"", "", true},
		{a, "", false},
		{a, a[:12], false},
		{a, strings.ToUpper(a), false},
	}
	for _, tt := range tests {
		if got := DigestEqual(tt.x, tt.y); got != tt.want {
			t.Errorf("DigestEqual(%q, %q) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func FuzzDigestEqual(f *testing.F) {
	f.Add("abc", "abc")
	f.Add("abc", "abd")
	f.Fuzz(func(t *testing.T, a, b string) {
		if DigestEqual(a, b) != (a == b) {
			t.Fatalf("DigestEqual(%q, %q) disagrees with ==", a, b)
		}
	})
}
