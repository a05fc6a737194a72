package ring

import (
	"net"
	"testing"
	"time"

	"go.uber.org/zap"
)

type event struct {
	peer uint8
	m    Message
	lap  bool
}

// testRing is a four-transport loopback ring plus an injection socket for
// feeding frames in from outside, the way a predecessor hop would.
type testRing struct {
	transports [4]*Transport
	events     chan event
	inject     net.PacketConn
}

func newTestRing(t *testing.T) *testRing {
	t.Helper()
	r := &testRing{events: make(chan event, 64)}

	var conns [4]net.PacketConn
	for i := range conns {
		conn, err := net.ListenPacket("udp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("binding peer %d: %v", i, err)
		}
		conns[i] = conn
	}

	for i := range r.transports {
		id := uint8(i)
		next := conns[(i+1)%4].LocalAddr()
		r.transports[i] = NewTransport(id, conns[i], next, func(m Message, lap bool) {
			r.events <- event{peer: id, m: m, lap: lap}
		}, zap.NewNop())
	}

	inject, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	r.inject = inject

	for _, tr := range r.transports {
		go tr.Run()
	}
	t.Cleanup(func() {
		inject.Close()
		for _, tr := range r.transports {
			tr.Close()
		}
	})
	return r
}

// feed writes a frame into the given transport as if its predecessor had
// forwarded it.
func (r *testRing) feed(t *testing.T, into int, m Message) {
	t.Helper()
	b, err := m.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.inject.WriteTo(b, r.transports[into].LocalAddr()); err != nil {
		t.Fatal(err)
	}
}

// collect reads exactly n events, failing the test on a stall.
func (r *testRing) collect(t *testing.T, n int) []event {
	t.Helper()
	out := make([]event, 0, n)
	for len(out) < n {
		select {
		case e := <-r.events:
			out = append(out, e)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d events", len(out), n)
		}
	}
	return out
}

// expectQuiet asserts that no further events arrive.
func (r *testRing) expectQuiet(t *testing.T) {
	t.Helper()
	select {
	case e := <-r.events:
		t.Fatalf("unexpected extra event: peer %d %s lap=%v", e.peer, e.m.Type, e.lap)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestBroadcastTraversal(t *testing.T) {
	r := newTestRing(t)

	// An origin-0 broadcast entering at peer 1 is delivered at peers 1-3
	// and consumed at peer 0 as exactly one lap-complete signal.
	m := Message{Type: MsgGameStart, Origin: 0, Dest: BroadcastID, Seq: 1}
	r.feed(t, 1, m)

	got := r.collect(t, 4)
	delivered := map[uint8]int{}
	laps := 0
	for _, e := range got {
		if e.m.Type != MsgGameStart || e.m.Seq != 1 {
			t.Errorf("wrong frame at peer %d: %+v", e.peer, e.m)
		}
		if e.lap {
			laps++
			if e.peer != 0 {
				t.Errorf("lap signal at peer %d, want origin 0", e.peer)
			}
		} else {
			delivered[e.peer]++
		}
	}
	if laps != 1 {
		t.Errorf("lap signals = %d, want 1", laps)
	}
	for peer := uint8(1); peer < 4; peer++ {
		if delivered[peer] != 1 {
			t.Errorf("peer %d deliveries = %d, want 1", peer, delivered[peer])
		}
	}
	r.expectQuiet(t)
}

func TestUnicastFiltering(t *testing.T) {
	r := newTestRing(t)

	m := Message{Type: MsgDealHand, Origin: 0, Dest: 2, Seq: 5, Payload: []byte{0x12}}
	r.feed(t, 1, m)

	// Only the addressee processes it; everyone else just forwards.
	got := r.collect(t, 2)
	for _, e := range got {
		switch {
		case e.lap && e.peer == 0:
		case !e.lap && e.peer == 2:
		default:
			t.Errorf("unexpected event: peer %d lap=%v", e.peer, e.lap)
		}
	}
	r.expectQuiet(t)
}

func TestSnoopDelivery(t *testing.T) {
	r := newTestRing(t)
	r.transports[0].SetSnoop(func(m Message) bool { return m.Type == MsgPassCards })

	m := Message{Type: MsgPassCards, Origin: 1, Dest: 3, Seq: 8, Payload: []byte{0x12, 0x15, 0x18}}
	r.feed(t, 2, m)

	// Addressee delivery, the snooped copy at peer 0, and the lap at 1.
	got := r.collect(t, 3)
	seen := map[string]bool{}
	for _, e := range got {
		switch {
		case !e.lap && e.peer == 3:
			seen["dest"] = true
		case !e.lap && e.peer == 0:
			seen["snoop"] = true
		case e.lap && e.peer == 1:
			seen["lap"] = true
		default:
			t.Errorf("unexpected event: peer %d lap=%v", e.peer, e.lap)
		}
	}
	for _, key := range []string{"dest", "snoop", "lap"} {
		if !seen[key] {
			t.Errorf("missing %s event", key)
		}
	}
	r.expectQuiet(t)
}

func TestDuplicateSuppression(t *testing.T) {
	r := newTestRing(t)

	// The same (origin, seq, type) frame twice into peer 1: the first
	// circulates, the second dies at the first hop without forwarding.
	m := Message{Type: MsgPlayCard, Origin: 0, Dest: BroadcastID, Seq: 3, Payload: []byte{0x12}}
	r.feed(t, 1, m)
	r.feed(t, 1, m)

	got := r.collect(t, 4)
	laps := 0
	for _, e := range got {
		if e.lap {
			laps++
		}
	}
	if laps != 1 {
		t.Errorf("lap signals = %d, want 1", laps)
	}
	r.expectQuiet(t)

	// A new sequence number flows again.
	m.Seq = 4
	r.feed(t, 1, m)
	r.collect(t, 4)
}

func TestMalformedFramesDropped(t *testing.T) {
	r := newTestRing(t)

	addr := r.transports[1].LocalAddr()
	garbage := [][]byte{
		{},
		{0x01, 0x00},
		{0xFF, 0x00, 0xFF, 0x00, 0x00},
		{0x06, 0x00, 0xFF, 0x00, 0x05, 0x12}, // declares 5 payload bytes, has 1
		{0x06, 0x04, 0xFF, 0x00, 0x01, 0x12}, // origin out of range
	}
	for _, g := range garbage {
		r.inject.WriteTo(g, addr)
	}
	r.expectQuiet(t)

	// The transport is still alive afterwards.
	good := Message{Type: MsgPlayCard, Origin: 0, Dest: BroadcastID, Seq: 9, Payload: []byte{0x12}}
	r.feed(t, 1, good)
	r.collect(t, 4)
}

func TestSendDefersDuringHandling(t *testing.T) {
	// A frame emitted while handling an inbound frame must hit the wire
	// after the inbound frame has been forwarded, never before.
	successor, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	local, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer successor.Close()

	var tr *Transport
	tr = NewTransport(1, local, successor.LocalAddr(), func(m Message, lap bool) {
		if m.Type == MsgGameStart {
			tr.Send(Message{Type: MsgPlayCard, Origin: 1, Dest: BroadcastID, Seq: 1, Payload: []byte{0x12}})
		}
	}, zap.NewNop())
	go tr.Run()
	defer tr.Close()

	trigger := Message{Type: MsgGameStart, Origin: 0, Dest: BroadcastID, Seq: 0}
	b, _ := trigger.Encode()
	inject, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer inject.Close()
	if _, err := inject.WriteTo(b, local.LocalAddr()); err != nil {
		t.Fatal(err)
	}

	read := func() Message {
		successor.SetReadDeadline(time.Now().Add(2 * time.Second))
		buf := make([]byte, 1024)
		n, _, err := successor.ReadFrom(buf)
		if err != nil {
			t.Fatalf("reading successor socket: %v", err)
		}
		m, err := Decode(buf[:n])
		if err != nil {
			t.Fatalf("decoding forwarded frame: %v", err)
		}
		return m
	}

	if first := read(); first.Type != MsgGameStart {
		t.Fatalf("first frame on the wire = %s, want GAME_START", first.Type)
	}
	if second := read(); second.Type != MsgPlayCard {
		t.Fatalf("second frame on the wire = %s, want PLAY_CARD", second.Type)
	}
}
