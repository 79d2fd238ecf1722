package auth

import (
	"strings"
	"testing"
)

func TestGenerateToken(t *testing.T) {
	t.Run("raw token carries prefix and 64 hex chars", func(t *testing.T) {
		raw, hash, err := GenerateToken(DefaultTokenPrefix)
		if err != nil {
			t.Fatalf("GenerateToken() error: %v", err)
		}
		if !strings.HasPrefix(raw, DefaultTokenPrefix) {
			t.Errorf("raw = %q, want prefix %q", raw, DefaultTokenPrefix)
		}
		if got := len(raw) - len(DefaultTokenPrefix); got != 64 {
			t.Errorf("random part length = %d, want 64", got)
		}
		if hash == "" {
			t.Error("GenerateToken() returned empty hash")
		}
	})

	t.Run("hash is SHA-256 of raw", func(t *testing.T) {
		raw, hash, err := GenerateToken("x_")
		if err != nil {
			t.Fatalf("GenerateToken() error: %v", err)
		}
		if hash != HashToken(raw) {
			t.Error("hash does not match HashToken(raw)")
		}
		if len(hash) != 64 {
			t.Errorf("hash length = %d, want 64", len(hash))
		}
		if hash == raw {
			t.Error("hash must differ from raw token")
		}
	})

	t.Run("consecutive tokens differ", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 100; i++ {
			raw, _, err := GenerateToken(DefaultTokenPrefix)
			if err != nil {
				t.Fatalf("GenerateToken() error: %v", err)
			}
			if seen[raw] {
				t.Fatalf("duplicate token after %d iterations", i)
			}
			seen[raw] = true
		}
	})
}

func TestHashToken(t *testing.T) {
	// echo -n "abc" | sha256sum
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := HashToken("abc"); got != want {
		t.Errorf("HashToken(abc) = %s, want %s", got, want)
	}
	if HashToken("abc") != HashToken("abc") {
		t.Error("HashToken is not deterministic")
	}
	if HashToken("abc") == HashToken("abd") {
		t.Error("distinct inputs produced equal hashes")
	}
}

func TestWellFormedToken(t *testing.T) {
	raw, _, err := GenerateToken(DefaultTokenPrefix)
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}

	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"issued token", raw, true},
		{"empty", "", false},
		{"prefix only", DefaultTokenPrefix, false},
		{"wrong prefix", "rl_test_" + raw[len(DefaultTokenPrefix):], false},
		{"truncated", raw[:len(raw)-1], false},
		{"extended", raw + "0", false},
		{"all zero body", DefaultTokenPrefix + strings.Repeat("0", 64), true},
		{"uppercase hex", DefaultTokenPrefix + strings.Repeat("A", 64), false},
		{"non-hex character", raw[:len(raw)-1] + "z", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WellFormedToken(DefaultTokenPrefix, tt.raw); got != tt.want {
				t.Errorf("WellFormedToken(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{"valid", "Bearer rl_live_abc", "rl_live_abc", false},
		{"surrounding whitespace", "Bearer   rl_live_abc  ", "rl_live_abc", false},
		{"empty header", "", "", true},
		{"basic scheme", "Basic dXNlcjpwYXNz", "", true},
		{"lowercase scheme", "bearer rl_live_abc", "", true},
		{"empty token", "Bearer    ", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractBearerToken(tt.header)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractBearerToken() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExtractBearerToken() = %q, want %q", got, tt.want)
			}
		})
	}
}
