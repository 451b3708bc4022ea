package util

import "testing"

func TestGenerateContentID(t *testing.T) {
	tests := []struct {
		name  string
		a, b  string
		equal bool
	}{
		{name: "same content same id", a: "hello world", b: "hello world", equal: true},
		{name: "different content different id", a: "hello", b: "world", equal: false},
		{name: "whitespace matters", a: "hello", b: "hello ", equal: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idA := GenerateContentID([]byte(tt.a))
			idB := GenerateContentID([]byte(tt.b))
			if (idA == idB) != tt.equal {
				t.Errorf("GenerateContentID(%q) == GenerateContentID(%q) is %v, want %v", tt.a, tt.b, idA == idB, tt.equal)
			}
		})
	}
}

func TestGenerateContentIDIsHex(t *testing.T) {
	id := GenerateContentID([]byte("content"))
	if len(id) != 64 {
		t.Errorf("id length = %d, want 64 hex chars", len(id))
	}
	for _, c := range id {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			t.Fatalf("id contains non-hex character %q", c)
		}
	}
}
