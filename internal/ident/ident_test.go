package ident

import "testing"

func TestMessageIDsMonotonic(t *testing.T) {
	prev := NewMessageID()
	for i := 0; i < 1000; i++ {
		id := NewMessageID()
		if id <= prev {
			t.Fatalf("ids must be strictly increasing: %q then %q", prev, id)
		}
		prev = id
	}
}

func TestClientIDsUnique(t *testing.T) {
	a, b := NewClientID(), NewClientID()
	if a == b {
		t.Fatal("client ids should differ")
	}
}
