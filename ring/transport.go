package ring

import (
	"errors"
	"net"

	"go.uber.org/zap"
)

// Handler receives frames addressed to the local peer. lap is true when a
// frame this peer originated has completed its full ring traversal.
type Handler func(m Message, lap bool)

// Transport owns the peer's datagram socket and applies the ring rules:
// frames addressed to this peer (or broadcast) are handed to the handler,
// frames from other origins are forwarded byte-for-byte to the successor,
// and frames that return to their origin are consumed as lap-complete
// signals instead of circulating forever.
type Transport struct {
	self    uint8
	conn    net.PacketConn
	next    net.Addr
	handler Handler
	snoop   func(Message) bool
	log     *zap.Logger

	// Frames emitted while the receive loop is handling an inbound frame
	// are queued and transmitted only after that frame has been forwarded,
	// so reactions never overtake their trigger on the ring.
	inLoop  bool
	outbox  []Message
	closing bool

	lastSeen [4]frameKey
}

type frameKey struct {
	typ  MsgType
	seq  uint8
	seen bool
}

// NewTransport wraps an already-bound packet socket. next is the ring
// successor's address; every outbound frame goes there and nowhere else.
func NewTransport(self uint8, conn net.PacketConn, next net.Addr, h Handler, log *zap.Logger) *Transport {
	return &Transport{
		self:    self,
		conn:    conn,
		next:    next,
		handler: h,
		log:     log.With(zap.Uint8("peer", self)),
	}
}

// SetSnoop installs a predicate selecting frames to deliver locally even
// though they are addressed elsewhere. The coordinator uses this to
// observe PASS_CARDS traffic passing through it.
func (t *Transport) SetSnoop(f func(Message) bool) {
	t.snoop = f
}

// LocalAddr returns the bound socket address.
func (t *Transport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// Send transmits a frame to the successor. A frame addressed to this peer
// or to broadcast is delivered to the handler before it is transmitted, so
// the local state update always precedes the downstream ones.
func (t *Transport) Send(m Message) error {
	if t.inLoop {
		t.outbox = append(t.outbox, m)
		return nil
	}
	return t.transmit(m)
}

func (t *Transport) transmit(m Message) error {
	b, err := m.Encode()
	if err != nil {
		return err
	}
	if m.Dest == t.self || m.IsBroadcast() {
		t.handler(m, false)
	}
	t.log.Debug("send",
		zap.Stringer("type", m.Type),
		zap.Uint8("dest", m.Dest),
		zap.Uint8("seq", m.Seq))
	_, err = t.conn.WriteTo(b, t.next)
	return err
}

// Stop makes Run return after the frame currently being handled has been
// forwarded and all queued emissions have gone out. It must be called from
// the handler; use Close to interrupt a blocked Run from outside.
func (t *Transport) Stop() {
	t.closing = true
}

// Close releases the socket, interrupting a blocked Run.
func (t *Transport) Close() error {
	return t.conn.Close()
}

// Run reads frames until the socket closes. It is the peer's single event
// loop: the handler, forwarding, and queued emissions all execute here.
func (t *Transport) Run() {
	buf := make([]byte, 1024)
	for {
		n, _, err := t.conn.ReadFrom(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				t.log.Error("socket read failed", zap.Error(err))
			}
			return
		}

		m, err := Decode(buf[:n])
		if err != nil {
			t.log.Debug("dropping malformed frame", zap.Int("bytes", n), zap.Error(err))
			continue
		}
		if t.duplicate(m) {
			t.log.Debug("dropping duplicate frame",
				zap.Stringer("type", m.Type),
				zap.Uint8("origin", m.Origin),
				zap.Uint8("seq", m.Seq))
			continue
		}

		t.inLoop = true
		if m.Origin == t.self {
			// The frame completed a full lap; consume it here.
			t.handler(m, true)
		} else {
			if m.Dest == t.self || m.IsBroadcast() || (t.snoop != nil && t.snoop(m)) {
				t.handler(m, false)
			}
			if _, err := t.conn.WriteTo(buf[:n], t.next); err != nil {
				t.log.Error("forward failed", zap.Stringer("type", m.Type), zap.Error(err))
			}
		}
		t.drain()
		t.inLoop = false

		if t.closing {
			t.conn.Close()
			return
		}
	}
}

func (t *Transport) drain() {
	for len(t.outbox) > 0 {
		m := t.outbox[0]
		t.outbox = t.outbox[1:]
		if err := t.transmit(m); err != nil {
			t.log.Error("send failed", zap.Stringer("type", m.Type), zap.Error(err))
		}
	}
}

// duplicate implements process-once semantics: the ring consumes frames at
// their origin so repeats should not happen, but a frame whose (seq, type)
// equals the last one seen from the same origin is dropped without
// forwarding just in case. Only that most recent frame per origin is
// remembered; an older repeat is not detected.
func (t *Transport) duplicate(m Message) bool {
	k := &t.lastSeen[m.Origin&3]
	if k.seen && k.seq == m.Seq && k.typ == m.Type {
		return true
	}
	*k = frameKey{typ: m.Type, seq: m.Seq, seen: true}
	return false
}
