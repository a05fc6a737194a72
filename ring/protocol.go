package ring

import (
	"errors"
	"fmt"

	"github.com/herijooj/redetrab1/game"
)

// MsgType identifies a ring protocol message.
type MsgType byte

const (
	MsgTokenPass    MsgType = 0x01
	MsgGameStart    MsgType = 0x02
	MsgDealHand     MsgType = 0x03
	MsgStartPhase   MsgType = 0x04
	MsgPassCards    MsgType = 0x05
	MsgPlayCard     MsgType = 0x06
	MsgTrickSummary MsgType = 0x07
	MsgHandSummary  MsgType = 0x08
	MsgGameOver     MsgType = 0x09
)

func (t MsgType) String() string {
	switch t {
	case MsgTokenPass:
		return "TOKEN_PASS"
	case MsgGameStart:
		return "GAME_START"
	case MsgDealHand:
		return "DEAL_HAND"
	case MsgStartPhase:
		return "START_PHASE"
	case MsgPassCards:
		return "PASS_CARDS"
	case MsgPlayCard:
		return "PLAY_CARD"
	case MsgTrickSummary:
		return "TRICK_SUMMARY"
	case MsgHandSummary:
		return "HAND_SUMMARY"
	case MsgGameOver:
		return "GAME_OVER"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", byte(t))
	}
}

const (
	// HeaderSize is the fixed frame header length:
	// type, origin, destination, sequence, payload length.
	HeaderSize = 5

	// BroadcastID as a destination addresses every peer on the ring.
	BroadcastID = 0xFF

	// MaxPayload is the largest payload a one-byte length field can declare.
	MaxPayload = 255
)

// START_PHASE payload values.
const (
	PhasePass byte = 0
	PhasePlay byte = 1
)

// NoShooter in a HAND_SUMMARY payload means nobody shot the moon.
const NoShooter byte = 0xFF

var (
	ErrShortFrame     = errors.New("frame shorter than header")
	ErrLengthMismatch = errors.New("declared payload length disagrees with frame")
	ErrBadHeader      = errors.New("invalid header field")
	ErrBadPayload     = errors.New("malformed payload")
	ErrPayloadTooBig  = errors.New("payload exceeds 255 bytes")
)

// Message is one ring frame: a five-byte header plus up to 255 payload bytes.
type Message struct {
	Type    MsgType
	Origin  uint8
	Dest    uint8
	Seq     uint8
	Payload []byte
}

// IsBroadcast reports whether the frame is addressed to every peer.
func (m Message) IsBroadcast() bool {
	return m.Dest == BroadcastID
}

// Encode serializes the frame. All header fields are single unsigned bytes.
func (m Message) Encode() ([]byte, error) {
	if len(m.Payload) > MaxPayload {
		return nil, ErrPayloadTooBig
	}
	b := make([]byte, HeaderSize+len(m.Payload))
	b[0] = byte(m.Type)
	b[1] = m.Origin
	b[2] = m.Dest
	b[3] = m.Seq
	b[4] = byte(len(m.Payload))
	copy(b[HeaderSize:], m.Payload)
	return b, nil
}

// Decode parses and validates a frame. The declared payload length must
// match the remaining bytes exactly; the type must be a known message;
// origin must be a peer id and destination a peer id or broadcast.
func Decode(b []byte) (Message, error) {
	if len(b) < HeaderSize {
		return Message{}, ErrShortFrame
	}
	m := Message{
		Type:   MsgType(b[0]),
		Origin: b[1],
		Dest:   b[2],
		Seq:    b[3],
	}
	if m.Type < MsgTokenPass || m.Type > MsgGameOver {
		return Message{}, fmt.Errorf("%w: type 0x%02x", ErrBadHeader, b[0])
	}
	if m.Origin > 3 {
		return Message{}, fmt.Errorf("%w: origin %d", ErrBadHeader, m.Origin)
	}
	if m.Dest > 3 && m.Dest != BroadcastID {
		return Message{}, fmt.Errorf("%w: destination %d", ErrBadHeader, m.Dest)
	}
	if int(b[4]) != len(b)-HeaderSize {
		return Message{}, ErrLengthMismatch
	}
	m.Payload = make([]byte, b[4])
	copy(m.Payload, b[HeaderSize:])
	return m, nil
}

// EncodeStartPhase builds a START_PHASE payload. The direction byte is
// only present for the passing phase.
func EncodeStartPhase(phase byte, dir game.PassDirection) []byte {
	if phase == PhasePass {
		return []byte{PhasePass, byte(dir)}
	}
	return []byte{PhasePlay}
}

// ParseStartPhase splits a START_PHASE payload into phase and, for the
// passing phase, the pass direction.
func ParseStartPhase(p []byte) (byte, game.PassDirection, error) {
	if len(p) == 0 {
		return 0, 0, ErrBadPayload
	}
	switch p[0] {
	case PhasePass:
		if len(p) != 2 || p[1] > byte(game.PassNone) {
			return 0, 0, ErrBadPayload
		}
		return PhasePass, game.PassDirection(p[1]), nil
	case PhasePlay:
		if len(p) != 1 {
			return 0, 0, ErrBadPayload
		}
		return PhasePlay, 0, nil
	default:
		return 0, 0, ErrBadPayload
	}
}

// CardsPayload converts cards to their wire bytes (DEAL_HAND, PASS_CARDS).
func CardsPayload(cards []game.Card) []byte {
	b := make([]byte, len(cards))
	for i, c := range cards {
		b[i] = byte(c)
	}
	return b
}

// ParseCards converts a payload of card bytes back into cards, requiring
// exactly want cards, each a valid encoding.
func ParseCards(p []byte, want int) ([]game.Card, error) {
	if len(p) != want {
		return nil, ErrBadPayload
	}
	cards := make([]game.Card, want)
	for i, b := range p {
		c := game.Card(b)
		if !c.Valid() {
			return nil, fmt.Errorf("%w: card 0x%02x", ErrBadPayload, b)
		}
		cards[i] = c
	}
	return cards, nil
}

// TrickSummary is the TRICK_SUMMARY payload: the winner, the four plays in
// the temporal order they happened, and the trick's points.
type TrickSummary struct {
	Winner uint8
	Plays  [4]game.PlayedCard
	Points uint8
}

func (s TrickSummary) Encode() []byte {
	b := make([]byte, 0, 10)
	b = append(b, s.Winner)
	for _, pc := range s.Plays {
		b = append(b, byte(pc.Player), byte(pc.Card))
	}
	return append(b, s.Points)
}

func ParseTrickSummary(p []byte) (TrickSummary, error) {
	if len(p) != 10 {
		return TrickSummary{}, ErrBadPayload
	}
	s := TrickSummary{Winner: p[0], Points: p[9]}
	if s.Winner > 3 {
		return TrickSummary{}, ErrBadPayload
	}
	for i := 0; i < 4; i++ {
		player, card := p[1+2*i], game.Card(p[2+2*i])
		if player > 3 || !card.Valid() {
			return TrickSummary{}, ErrBadPayload
		}
		s.Plays[i] = game.PlayedCard{Player: int(player), Card: card}
	}
	return s, nil
}

// HandSummary is the HAND_SUMMARY payload: per-hand scores after any
// shoot-the-moon adjustment, cumulative scores, and the shooter id
// (NoShooter when nobody shot).
type HandSummary struct {
	HandScores  [4]uint8
	TotalScores [4]uint8
	Shooter     uint8
}

func (s HandSummary) Encode() []byte {
	b := make([]byte, 0, 9)
	b = append(b, s.HandScores[:]...)
	b = append(b, s.TotalScores[:]...)
	return append(b, s.Shooter)
}

func ParseHandSummary(p []byte) (HandSummary, error) {
	if len(p) != 9 {
		return HandSummary{}, ErrBadPayload
	}
	var s HandSummary
	copy(s.HandScores[:], p[0:4])
	copy(s.TotalScores[:], p[4:8])
	s.Shooter = p[8]
	if s.Shooter > 3 && s.Shooter != NoShooter {
		return HandSummary{}, ErrBadPayload
	}
	return s, nil
}

// GameOver is the GAME_OVER payload: the winner and the final totals.
type GameOver struct {
	Winner uint8
	Totals [4]uint8
}

func (g GameOver) Encode() []byte {
	b := make([]byte, 0, 5)
	b = append(b, g.Winner)
	return append(b, g.Totals[:]...)
}

func ParseGameOver(p []byte) (GameOver, error) {
	if len(p) != 5 {
		return GameOver{}, ErrBadPayload
	}
	g := GameOver{Winner: p[0]}
	if g.Winner > 3 {
		return GameOver{}, ErrBadPayload
	}
	copy(g.Totals[:], p[1:])
	return g, nil
}
