package model

import "testing"

func TestBandOfBoundaries(t *testing.T) {
	cases := []struct {
		score int
		want  RelationshipLevel
	}{
		{-5, Stranger},
		{0, Stranger},
		{9, Stranger},
		{10, Acquaintance},
		{29, Acquaintance},
		{30, Familiar},
		{59, Familiar},
		{60, Friend},
		{99, Friend},
		{100, CloseFriend},
		{199, CloseFriend},
		{200, Confidant},
		{1000, Confidant},
	}
	for _, c := range cases {
		if got := BandOf(c.score); got != c.want {
			t.Errorf("BandOf(%d) = %q, want %q", c.score, got, c.want)
		}
	}
}

func TestDeriveUserIDIsDeterministic(t *testing.T) {
	a := DeriveUserID("alice")
	b := DeriveUserID("alice")
	if a != b {
		t.Fatalf("DeriveUserID not deterministic: %q != %q", a, b)
	}
	if DeriveUserID("bob") == a {
		t.Fatalf("DeriveUserID collided for different raw ids")
	}
	if len(a) != 32 {
		t.Fatalf("expected 32 hex chars (128 bits), got %d", len(a))
	}
}

func TestNewInternalIDUnique(t *testing.T) {
	a := NewInternalID()
	b := NewInternalID()
	if a == b {
		t.Fatalf("NewInternalID produced duplicate ids")
	}
	if len(a) != 32 {
		t.Fatalf("expected 32 hex chars, got %d", len(a))
	}
}
