package ring

import (
	"errors"
	"testing"
)

func TestArbiterAcceptAndHold(t *testing.T) {
	a := NewArbiter(1, func(uint8, []byte) error { return nil })

	if a.Hold() {
		t.Error("fresh arbiter should not hold the token")
	}
	if a.Bearer() != -1 {
		t.Errorf("fresh bearer = %d, want -1", a.Bearer())
	}

	token := Message{Type: MsgTokenPass, Origin: 0, Dest: 1, Payload: []byte{1}}
	if err := a.Accept(token); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if !a.Hold() || a.Bearer() != 1 {
		t.Errorf("after accept: hold=%v bearer=%d, want true/1", a.Hold(), a.Bearer())
	}

	// A pass naming someone else updates the inference and drops the hold
	token.Payload = []byte{3}
	if err := a.Accept(token); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if a.Hold() || a.Bearer() != 3 {
		t.Errorf("after other accept: hold=%v bearer=%d, want false/3", a.Hold(), a.Bearer())
	}
}

func TestArbiterAcceptRejectsMalformed(t *testing.T) {
	a := NewArbiter(1, func(uint8, []byte) error { return nil })

	bad := []Message{
		{Type: MsgPlayCard, Payload: []byte{1}},
		{Type: MsgTokenPass, Payload: nil},
		{Type: MsgTokenPass, Payload: []byte{1, 2}},
		{Type: MsgTokenPass, Payload: []byte{4}},
	}
	for _, m := range bad {
		if err := a.Accept(m); !errors.Is(err, ErrBadToken) {
			t.Errorf("Accept(%+v) err = %v, want ErrBadToken", m, err)
		}
	}
	if a.Bearer() != -1 {
		t.Errorf("malformed frames changed bearer to %d", a.Bearer())
	}
}

func TestArbiterReleaseTo(t *testing.T) {
	var sentDest uint8
	var sentPayload []byte
	a := NewArbiter(2, func(dest uint8, payload []byte) error {
		sentDest = dest
		sentPayload = payload
		return nil
	})

	// Releasing without the token is a programming error
	if err := a.ReleaseTo(3); !errors.Is(err, ErrNotBearer) {
		t.Errorf("ReleaseTo without token err = %v, want ErrNotBearer", err)
	}

	a.Seize(2)
	if !a.Hold() {
		t.Fatal("Seize(self) should grant the hold")
	}
	if err := a.ReleaseTo(3); err != nil {
		t.Fatalf("ReleaseTo: %v", err)
	}
	if a.Hold() || a.Bearer() != 3 {
		t.Errorf("after release: hold=%v bearer=%d, want false/3", a.Hold(), a.Bearer())
	}
	if sentDest != 3 || len(sentPayload) != 1 || sentPayload[0] != 3 {
		t.Errorf("emitted dest=%d payload=%v, want unicast to 3 naming 3", sentDest, sentPayload)
	}
}
