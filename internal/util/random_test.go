package util

import (
	"strings"
	"testing"
)

func TestGenerateRandomID(t *testing.T) {
	tests := []struct {
		name       string
		prefix     string
		hexLength  int
		wantPrefix string
		wantLength int // expected total length: prefix + hexLength
	}{
		{
			name:       "outbox ID format",
			prefix:     "outbox_",
			hexLength:  32,
			wantPrefix: "outbox_",
			wantLength: 39, // 7 + 32
		},
		{
			name:       "custom prefix",
			prefix:     "test_",
			hexLength:  16,
			wantPrefix: "test_",
			wantLength: 21, // 5 + 16
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateRandomID(tt.prefix, tt.hexLength)

			if !strings.HasPrefix(got, tt.wantPrefix) {
				t.Errorf("GenerateRandomID() = %v, want prefix %v", got, tt.wantPrefix)
			}

			if len(got) != tt.wantLength {
				t.Errorf("GenerateRandomID() length = %v, want %v", len(got), tt.wantLength)
			}

			// Check that the hex part is valid
			hexPart := got[len(tt.wantPrefix):]
			if !isValidHex(hexPart) {
				t.Errorf("GenerateRandomID() hex part = %v is not valid hex", hexPart)
			}
		})
	}
}

func TestGenerateRandomHex(t *testing.T) {
	tests := []struct {
		name   string
		length int
		want   int
	}{
		{"zero length", 0, 0},
		{"negative length", -1, 0},
		{"small length", 8, 8},
		{"medium length", 16, 16},
		{"large length", 64, 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateRandomHex(tt.length)

			if len(got) != tt.want {
				t.Errorf("GenerateRandomHex() length = %v, want %v", len(got), tt.want)
			}

			if tt.want > 0 && !isValidHex(got) {
				t.Errorf("GenerateRandomHex() = %v is not valid hex", got)
			}
		})
	}
}

func TestGenerateFromAlphabet(t *testing.T) {
	tests := []struct {
		name     string
		alphabet string
		length   int
		want     int
	}{
		{"zero length", "ABC", 0, 0},
		{"negative length", "ABC", -1, 0},
		{"empty alphabet", "", 8, 0},
		{"single char", "Z", 5, 5},
		{"restricted alphabet", "ABCDEFGHJKMNPQRSTUVWXYZ23456789", 32, 32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateFromAlphabet(tt.alphabet, tt.length)

			if len(got) != tt.want {
				t.Errorf("GenerateFromAlphabet() length = %v, want %v", len(got), tt.want)
			}

			for _, c := range got {
				if !strings.ContainsRune(tt.alphabet, c) {
					t.Errorf("GenerateFromAlphabet() = %v contains %q outside alphabet", got, c)
				}
			}
		})
	}
}

func TestRandomIntInRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		got := RandomIntInRange(2, 5)
		if got < 2 || got > 5 {
			t.Fatalf("RandomIntInRange(2, 5) = %d out of range", got)
		}
	}
	if got := RandomIntInRange(7, 3); got != 7 {
		t.Errorf("RandomIntInRange(7, 3) = %d, want 7", got)
	}
}

func TestGenerateCheckoutID(t *testing.T) {
	got := GenerateCheckoutID()

	if !strings.HasPrefix(got, "sim_") {
		t.Errorf("GenerateCheckoutID() = %v, want prefix sim_", got)
	}

	if len(got) != 20 { // "sim_" + 16 hex chars
		t.Errorf("GenerateCheckoutID() length = %v, want 20", len(got))
	}

	if !isValidHex(got[4:]) {
		t.Errorf("GenerateCheckoutID() hex part = %v is not valid hex", got[4:])
	}
}

func TestRandomIDUniqueness(t *testing.T) {
	const iterations = 1000
	seen := make(map[string]bool)

	for i := 0; i < iterations; i++ {
		id := GenerateRandomID("test_", 16)
		if seen[id] {
			t.Errorf("GenerateRandomID() generated duplicate: %v", id)
		}
		seen[id] = true
	}
}

func TestRandomHexUniqueness(t *testing.T) {
	const iterations = 1000
	seen := make(map[string]bool)

	for i := 0; i < iterations; i++ {
		hex := GenerateRandomHex(16)
		if seen[hex] {
			t.Errorf("GenerateRandomHex() generated duplicate: %v", hex)
		}
		seen[hex] = true
	}
}

// Helper function to validate hex strings
func isValidHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
