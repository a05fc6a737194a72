package ring

import (
	"errors"
)

// ErrNotBearer is returned when a peer tries to release a token it does
// not hold. This is a programming error, not a protocol one: the state
// machine must never originate action messages without the token.
var ErrNotBearer = errors.New("token not held")

// ErrBadToken is returned for a TOKEN_PASS frame whose payload does not
// name a peer.
var ErrBadToken = errors.New("malformed token pass")

// Arbiter tracks which peer currently bears the ring token. Only the
// bearer may originate action messages; everyone else just forwards.
type Arbiter struct {
	self   uint8
	bearer int
	send   func(dest uint8, payload []byte) error
}

// NewArbiter creates an arbiter for peer self. send emits a TOKEN_PASS
// frame to the given destination; the caller supplies origin and sequence.
func NewArbiter(self uint8, send func(dest uint8, payload []byte) error) *Arbiter {
	return &Arbiter{self: self, bearer: -1, send: send}
}

// Hold reports whether the local peer bears the token.
func (a *Arbiter) Hold() bool {
	return a.bearer == int(a.self)
}

// Bearer returns the inferred bearer id, or -1 when unknown.
func (a *Arbiter) Bearer() int {
	return a.bearer
}

// Accept records the bearer named by a locally processed TOKEN_PASS frame.
func (a *Arbiter) Accept(m Message) error {
	if m.Type != MsgTokenPass || len(m.Payload) != 1 || m.Payload[0] > 3 {
		return ErrBadToken
	}
	a.bearer = int(m.Payload[0])
	return nil
}

// Seize marks id as bearer without emitting a frame. The coordinator uses
// this to self-assign at phase boundaries, and every peer uses it to
// record the coordinator repossessing the token when a trick completes.
func (a *Arbiter) Seize(id uint8) {
	a.bearer = int(id)
}

// ReleaseTo hands the token to peer id via a unicast TOKEN_PASS whose
// single payload byte names the new bearer.
func (a *Arbiter) ReleaseTo(id uint8) error {
	if !a.Hold() {
		return ErrNotBearer
	}
	a.bearer = int(id)
	return a.send(id, []byte{id})
}
