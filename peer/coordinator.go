package peer

import (
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/herijooj/redetrab1/game"
	"github.com/herijooj/redetrab1/ring"
)

// coordinator holds the extra bookkeeping P0 carries: the authoritative
// deal, the pass-phase barrier, and the pass-direction rotation. P0 knows
// every hand because it dealt them, and keeps that knowledge current by
// observing PASS_CARDS traffic on its way around the ring.
type coordinator struct {
	matchID     string
	dir         game.PassDirection
	hands       [4][]game.Card
	passOrigins [4]bool
	playStarted bool
}

func newCoordinator() *coordinator {
	return &coordinator{
		matchID: strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		dir:     game.PassLeft,
	}
}

// coordDeal runs when GAME_START completes its lap: every peer has seen
// the announcement, so the deal goes out, followed by the pass-phase
// announcement (and the play announcement at once when nobody passes).
func (p *Peer) coordDeal() {
	c := p.coord
	deck := game.NewDeck()
	deck.Shuffle()
	hands := deck.DealHands()
	for i := range hands {
		c.hands[i] = append([]game.Card(nil), hands[i]...)
	}
	c.passOrigins = [4]bool{}
	c.playStarted = false

	p.log.Info("dealing",
		zap.String("match", c.matchID),
		zap.Int("hand", p.handNum),
		zap.Stringer("direction", c.dir))
	for id := 0; id < 4; id++ {
		p.emit(ring.MsgDealHand, uint8(id), ring.CardsPayload(hands[id]))
	}

	p.emit(ring.MsgStartPhase, ring.BroadcastID, ring.EncodeStartPhase(ring.PhasePass, c.dir))
	if c.dir == game.PassNone {
		c.playStarted = true
		p.emit(ring.MsgStartPhase, ring.BroadcastID, ring.EncodeStartPhase(ring.PhasePlay, 0))
	}
}

// coordObservePass tracks one PASS_CARDS frame: the cards move between the
// coordinator's view of the hands, and the origin counts toward the
// barrier. Once all four origins have been seen the tricks phase opens.
func (p *Peer) coordObservePass(m ring.Message) {
	c := p.coord
	if m.Dest > 3 || c.passOrigins[m.Origin] {
		return
	}
	cards, err := ring.ParseCards(m.Payload, 3)
	if err != nil {
		p.log.Warn("ignoring malformed pass frame", zap.Uint8("from", m.Origin), zap.Error(err))
		return
	}

	c.passOrigins[m.Origin] = true
	for _, card := range cards {
		c.hands[m.Origin] = game.RemoveCard(c.hands[m.Origin], card)
	}
	c.hands[m.Dest] = append(c.hands[m.Dest], cards...)
	game.SortCards(c.hands[m.Dest])

	seen := 0
	for _, done := range c.passOrigins {
		if done {
			seen++
		}
	}
	p.log.Info("pass observed",
		zap.Uint8("from", m.Origin),
		zap.Uint8("to", m.Dest),
		zap.Int("count", seen))

	if seen == 4 && !c.playStarted {
		c.playStarted = true
		p.emit(ring.MsgStartPhase, ring.BroadcastID, ring.EncodeStartPhase(ring.PhasePlay, 0))
	}
}

// coordTwoClubsHolder locates who leads the first trick.
func (p *Peer) coordTwoClubsHolder() int {
	for id, hand := range p.coord.hands {
		if game.ContainsCard(hand, game.TwoOfClubs) {
			return id
		}
	}
	p.log.Error("two of clubs missing from every tracked hand")
	return 0
}

// coordResolveTrick runs when the fourth card lands: score the trick and
// broadcast the summary in the temporal order the cards were played.
func (p *Peer) coordResolveTrick() {
	winner := game.TrickWinner(p.trick)
	points := game.TrickPoints(p.trick)
	sum := ring.TrickSummary{Winner: uint8(winner), Points: uint8(points)}
	copy(sum.Plays[:], p.trick)
	p.emit(ring.MsgTrickSummary, ring.BroadcastID, sum.Encode())
}

// coordTrickSummaryLap re-issues the token to the trick winner once every
// peer has seen the summary. After the thirteenth trick there is no next
// lead; the hand summary is already on its way.
func (p *Peer) coordTrickSummaryLap(m ring.Message) {
	if p.trickNum >= 13 {
		return
	}
	sum, err := ring.ParseTrickSummary(m.Payload)
	if err != nil {
		p.log.Error("own trick summary unparseable", zap.Error(err))
		return
	}
	p.release(sum.Winner)
}

// coordHandSummary applies the shoot-the-moon adjustment and broadcasts
// the hand's outcome.
func (p *Peer) coordHandSummary() {
	adjusted, shooter := game.HandPoints(p.scoresHand)
	var hs ring.HandSummary
	for i := range adjusted {
		hs.HandScores[i] = clampByte(adjusted[i])
		hs.TotalScores[i] = clampByte(p.scoresTotal[i] + adjusted[i])
	}
	hs.Shooter = ring.NoShooter
	if shooter != game.NoShooter {
		hs.Shooter = uint8(shooter)
	}
	p.emit(ring.MsgHandSummary, ring.BroadcastID, hs.Encode())
}

// coordHandSummaryLap decides between the next hand and the end of the
// game once the summary has gone around.
func (p *Peer) coordHandSummaryLap() {
	over := false
	for _, total := range p.scoresTotal {
		if total >= p.scoreLimit {
			over = true
			break
		}
	}

	if over {
		winner := 0
		for i := 1; i < 4; i++ {
			if p.scoresTotal[i] < p.scoresTotal[winner] {
				winner = i
			}
		}
		g := ring.GameOver{Winner: uint8(winner)}
		for i, total := range p.scoresTotal {
			g.Totals[i] = clampByte(total)
		}
		p.log.Info("score limit reached",
			zap.String("match", p.coord.matchID),
			zap.Int("winner", winner))
		p.emit(ring.MsgGameOver, ring.BroadcastID, g.Encode())
		return
	}

	p.coord.dir = p.coord.dir.Next()
	p.emit(ring.MsgGameStart, ring.BroadcastID, nil)
}

func clampByte(v int) uint8 {
	if v > 255 {
		return 255
	}
	return uint8(v)
}
