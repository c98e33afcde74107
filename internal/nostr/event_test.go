package nostr

import (
	"errors"
	"strings"
	"testing"
)

func TestNewEventIDAcceptsHexAndNormalizesCase(t *testing.T) {
	raw := strings.Repeat("AB", 32)
	id, err := NewEventID(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.String() != strings.ToLower(raw) {
		t.Fatalf("expected lowercased id, got %q", id.String())
	}
}

func TestNewEventIDRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: "   "},
		{name: "too_short", raw: "abcd"},
		{name: "not_hex", raw: strings.Repeat("zz", 32)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewEventID(tc.raw); !errors.Is(err, ErrInvalidEventID) {
				t.Fatalf("expected ErrInvalidEventID, got %v", err)
			}
		})
	}
}

func TestNewPubkeyRejectsInvalidInput(t *testing.T) {
	if _, err := NewPubkey(""); !errors.Is(err, ErrInvalidPubkey) {
		t.Fatalf("expected ErrInvalidPubkey, got %v", err)
	}
	if _, err := NewPubkey(strings.Repeat("a", 63)); !errors.Is(err, ErrInvalidPubkey) {
		t.Fatalf("expected ErrInvalidPubkey for short key, got %v", err)
	}
	key, err := NewPubkey(strings.Repeat("a", 64))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.String() != strings.Repeat("a", 64) {
		t.Fatalf("unexpected key value %q", key.String())
	}
}
