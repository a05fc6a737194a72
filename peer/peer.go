package peer

import (
	"time"

	"go.uber.org/zap"

	"github.com/herijooj/redetrab1/game"
	"github.com/herijooj/redetrab1/ring"
)

// Phase is a peer's position in the hand lifecycle.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseDealing     Phase = "dealing"
	PhasePassing     Phase = "passing"
	PhasePassBarrier Phase = "passing_barrier"
	PhasePlaying     Phase = "playing"
	PhaseHandSummary Phase = "hand_summary"
	PhaseGameOver    Phase = "game_over"
)

// Sender transmits one frame to the ring successor, delivering it locally
// first when it is addressed to this peer or to broadcast.
type Sender interface {
	Send(ring.Message) error
}

// Peer runs the phase state machine for one ring node. All state mutation
// happens on the receive path: Handle is invoked by the transport's single
// event loop, so no field needs locking.
type Peer struct {
	id    int
	out   Sender
	stop  func()
	token *ring.Arbiter
	strat Strategy
	log   *zap.Logger

	scoreLimit int
	tokenDelay time.Duration

	seq uint8

	phase        Phase
	hand         []game.Card
	passDir      game.PassDirection
	heartsBroken bool
	trick        []game.PlayedCard
	scoresHand   [4]int
	scoresTotal  [4]int
	trickNum     int
	handNum      int

	// Pass-phase barrier bookkeeping.
	incomingPass []game.Card
	passedOwn    bool // our PASS_CARDS has been emitted
	ownPassLap   bool // ...and completed its ring traversal
	gotPass      bool // a PASS_CARDS addressed to us arrived
	barrierDone  bool
	pendingPlay  bool // START_PHASE(play) arrived before our barrier finished

	// mayAct is set when a TOKEN_PASS names this peer (or the coordinator
	// self-assigns). Bearing the token alone is not enough to act: the
	// coordinator repossesses it between tricks purely to authorize its
	// summary messages.
	mayAct bool

	coord    *coordinator // nil unless id == 0
	finished bool
}

// New builds a peer from its configuration. Call SetOutput before the
// first frame flows.
func New(cfg Config, strat Strategy, log *zap.Logger) *Peer {
	p := &Peer{
		id:         cfg.ID,
		strat:      strat,
		log:        log.With(zap.Int("peer", cfg.ID)),
		scoreLimit: cfg.ScoreLimit,
		tokenDelay: time.Duration(cfg.TokenDelayMS) * time.Millisecond,
		phase:      PhaseIdle,
	}
	p.token = ring.NewArbiter(uint8(cfg.ID), func(dest uint8, payload []byte) error {
		p.pause()
		p.emit(ring.MsgTokenPass, dest, payload)
		return nil
	})
	if cfg.ID == 0 {
		p.coord = newCoordinator()
	}
	return p
}

// SetOutput wires the peer to its transport. stop is invoked once the
// game is over and this peer has no more forwarding duties.
func (p *Peer) SetOutput(out Sender, stop func()) {
	p.out = out
	p.stop = stop
}

// Snoop is the transport predicate for coordinator traffic observation:
// P0 inspects every PASS_CARDS frame passing through it to track the
// barrier and the card transfers.
func (p *Peer) Snoop(m ring.Message) bool {
	return p.id == 0 && m.Type == ring.MsgPassCards
}

// Start kicks off the game. Only the coordinator has anything to do: it
// announces GAME_START and deals once the announcement completes its lap.
func (p *Peer) Start() {
	if p.id != 0 {
		return
	}
	p.log.Info("starting game",
		zap.String("match", p.coord.matchID),
		zap.Int("limit", p.scoreLimit))
	p.emit(ring.MsgGameStart, ring.BroadcastID, nil)
}

// Handle processes one locally delivered frame. It is the transport
// handler: lap marks a frame this peer originated returning after a full
// ring traversal.
func (p *Peer) Handle(m ring.Message, lap bool) {
	if lap {
		p.handleLap(m)
		p.act()
		return
	}

	switch m.Type {
	case ring.MsgTokenPass:
		p.onTokenPass(m)
	case ring.MsgGameStart:
		p.resetHand()
	case ring.MsgDealHand:
		p.onDealHand(m)
	case ring.MsgStartPhase:
		p.onStartPhase(m)
	case ring.MsgPassCards:
		p.onPassCards(m)
	case ring.MsgPlayCard:
		p.onPlayCard(m)
	case ring.MsgTrickSummary:
		p.onTrickSummary(m)
	case ring.MsgHandSummary:
		p.onHandSummary(m)
	case ring.MsgGameOver:
		p.onGameOver(m)
	}
	p.act()
}

func (p *Peer) handleLap(m ring.Message) {
	p.log.Debug("lap complete", zap.Stringer("type", m.Type), zap.Uint8("seq", m.Seq))
	switch m.Type {
	case ring.MsgPassCards:
		if p.id == 0 {
			p.coordObservePass(m)
		}
		p.ownPassLap = true
		p.updateBarrier()
	case ring.MsgGameStart:
		if p.id == 0 {
			p.coordDeal()
		}
	case ring.MsgTrickSummary:
		if p.id == 0 {
			p.coordTrickSummaryLap(m)
		}
	case ring.MsgHandSummary:
		if p.id == 0 {
			p.coordHandSummaryLap()
		}
	case ring.MsgGameOver:
		if p.id == 0 {
			p.finish()
		}
	}
}

func (p *Peer) onTokenPass(m ring.Message) {
	if err := p.token.Accept(m); err != nil {
		p.log.Debug("dropping bad token pass", zap.Error(err))
		return
	}
	if int(m.Payload[0]) == p.id {
		p.mayAct = true
		p.log.Debug("token received", zap.Uint8("from", m.Origin))
	} else {
		p.mayAct = false
	}
}

func (p *Peer) resetHand() {
	if p.phase == PhaseGameOver {
		return
	}
	p.handNum++
	p.hand = nil
	p.trick = nil
	p.heartsBroken = false
	p.trickNum = 0
	p.scoresHand = [4]int{}
	p.incomingPass = nil
	p.passedOwn = false
	p.ownPassLap = false
	p.gotPass = false
	p.barrierDone = false
	p.pendingPlay = false
	p.mayAct = false
	// The coordinator drives dealing and phase announcements, so the
	// token sits with it until the phase machinery hands it out.
	p.token.Seize(0)
	p.phase = PhaseDealing
	p.log.Info("hand starting", zap.Int("hand", p.handNum))
}

func (p *Peer) onDealHand(m ring.Message) {
	if int(m.Dest) != p.id {
		return
	}
	if p.phase != PhaseDealing {
		p.log.Warn("dropping out-of-phase deal", zap.String("phase", string(p.phase)))
		return
	}
	cards, err := ring.ParseCards(m.Payload, 13)
	if err != nil {
		p.log.Warn("dropping malformed deal", zap.Error(err))
		return
	}
	game.SortCards(cards)
	p.hand = cards
	p.log.Info("hand received", zap.String("cards", game.FormatCards(p.hand)))
}

func (p *Peer) onStartPhase(m ring.Message) {
	phase, dir, err := ring.ParseStartPhase(m.Payload)
	if err != nil {
		p.log.Warn("dropping malformed phase announcement", zap.Error(err))
		return
	}
	switch phase {
	case ring.PhasePass:
		if p.phase != PhaseDealing {
			p.log.Warn("dropping out-of-phase pass announcement", zap.String("phase", string(p.phase)))
			return
		}
		p.passDir = dir
		if dir == game.PassNone {
			p.phase = PhasePassBarrier
			p.barrierDone = true
			p.log.Info("no passing this hand")
			return
		}
		p.phase = PhasePassing
		p.log.Info("passing phase started", zap.Stringer("direction", dir))
		if p.id == 0 {
			// The coordinator opens the pass sweep by self-assignment;
			// no TOKEN_PASS goes on the wire.
			p.grantSelf()
		}
	case ring.PhasePlay:
		if p.phase != PhasePassing && p.phase != PhasePassBarrier {
			p.log.Warn("dropping out-of-phase play announcement", zap.String("phase", string(p.phase)))
			return
		}
		if p.barrierDone {
			p.startPlaying()
		} else {
			// Our own PASS_CARDS has not lapped yet; enter the tricks
			// phase as soon as it does.
			p.pendingPlay = true
		}
	}
}

func (p *Peer) onPassCards(m ring.Message) {
	if p.id == 0 {
		p.coordObservePass(m)
	}
	if int(m.Dest) != p.id {
		return
	}
	if p.phase != PhasePassing && p.phase != PhasePassBarrier {
		p.log.Warn("dropping out-of-phase pass", zap.String("phase", string(p.phase)))
		return
	}
	if p.gotPass {
		p.log.Warn("dropping repeated pass", zap.Uint8("from", m.Origin))
		return
	}
	cards, err := ring.ParseCards(m.Payload, 3)
	if err != nil {
		p.log.Warn("dropping malformed pass", zap.Error(err))
		return
	}
	p.incomingPass = cards
	p.gotPass = true
	p.log.Info("received passed cards",
		zap.Uint8("from", m.Origin),
		zap.String("cards", game.FormatCards(cards)))
	p.updateBarrier()
}

func (p *Peer) onPlayCard(m ring.Message) {
	if p.phase != PhasePlaying {
		p.log.Warn("dropping out-of-phase play",
			zap.Uint8("from", m.Origin), zap.String("phase", string(p.phase)))
		return
	}
	if len(m.Payload) != 1 || !game.Card(m.Payload[0]).Valid() {
		p.log.Warn("dropping malformed play", zap.Uint8("from", m.Origin))
		return
	}
	card := game.Card(m.Payload[0])
	if len(p.trick) >= 4 {
		p.log.Warn("dropping play onto full trick", zap.Uint8("from", m.Origin))
		return
	}
	for _, pc := range p.trick {
		if pc.Player == int(m.Origin) {
			p.log.Warn("dropping repeated play", zap.Uint8("from", m.Origin))
			return
		}
	}

	p.trick = append(p.trick, game.PlayedCard{Player: int(m.Origin), Card: card})
	if card.Suit() == game.Hearts && !p.heartsBroken {
		p.heartsBroken = true
		p.log.Info("hearts broken")
	}
	p.log.Info("card played",
		zap.Uint8("player", m.Origin),
		zap.Stringer("card", card),
		zap.Int("trick", p.trickNum+1))

	if len(p.trick) == 4 {
		// Trick complete: the coordinator repossesses the token so it may
		// emit the summary and re-issue the token to the winner.
		p.token.Seize(0)
		p.mayAct = false
		if p.id == 0 {
			p.coordResolveTrick()
		}
	}
}

func (p *Peer) onTrickSummary(m ring.Message) {
	sum, err := ring.ParseTrickSummary(m.Payload)
	if err != nil {
		p.log.Warn("dropping malformed trick summary", zap.Error(err))
		return
	}
	if p.phase != PhasePlaying {
		p.log.Warn("dropping out-of-phase trick summary", zap.String("phase", string(p.phase)))
		return
	}
	p.verifyTrick(sum)
	p.scoresHand[sum.Winner] += int(sum.Points)
	p.trick = nil
	p.trickNum++
	p.token.Seize(0)
	p.mayAct = false
	p.log.Info("trick resolved",
		zap.Int("trick", p.trickNum),
		zap.Uint8("winner", sum.Winner),
		zap.Uint8("points", sum.Points))

	if p.id == 0 && p.trickNum == 13 {
		p.coordHandSummary()
	}
}

// verifyTrick compares the coordinator's summary with the locally observed
// trick. Divergence is logged, never acted on: the coordinator is trusted.
func (p *Peer) verifyTrick(sum ring.TrickSummary) {
	if len(p.trick) != 4 {
		p.log.Warn("trick summary arrived before a full local trick", zap.Int("local", len(p.trick)))
		return
	}
	mismatch := int(sum.Winner) != game.TrickWinner(p.trick) ||
		int(sum.Points) != game.TrickPoints(p.trick)
	for i, pc := range p.trick {
		if sum.Plays[i] != pc {
			mismatch = true
		}
	}
	if mismatch {
		p.log.Warn("trick summary diverges from local view, trusting coordinator",
			zap.Uint8("winner", sum.Winner), zap.Uint8("points", sum.Points))
	}
}

func (p *Peer) onHandSummary(m ring.Message) {
	hs, err := ring.ParseHandSummary(m.Payload)
	if err != nil {
		p.log.Warn("dropping malformed hand summary", zap.Error(err))
		return
	}
	if p.phase != PhasePlaying {
		p.log.Warn("dropping out-of-phase hand summary", zap.String("phase", string(p.phase)))
		return
	}
	for i := range hs.HandScores {
		p.scoresHand[i] = int(hs.HandScores[i])
		p.scoresTotal[i] = int(hs.TotalScores[i])
	}
	p.phase = PhaseHandSummary
	p.log.Info("hand finished",
		zap.Int("hand", p.handNum),
		zap.Ints("handScores", p.scoresHand[:]),
		zap.Ints("totals", p.scoresTotal[:]))
	if hs.Shooter != ring.NoShooter {
		p.log.Info("shot the moon", zap.Uint8("player", hs.Shooter))
	}
}

func (p *Peer) onGameOver(m ring.Message) {
	g, err := ring.ParseGameOver(m.Payload)
	if err != nil {
		p.log.Warn("dropping malformed game over", zap.Error(err))
		return
	}
	p.phase = PhaseGameOver
	totals := make([]int, 4)
	for i, t := range g.Totals {
		totals[i] = int(t)
	}
	p.log.Info("game over", zap.Uint8("winner", g.Winner), zap.Ints("totals", totals))
	if p.id != 0 {
		// The coordinator waits for its broadcast to lap before stopping.
		p.finish()
	}
}

// act originates an action message if this peer was granted the token and
// the current phase calls for one. It is a no-op otherwise, so callers
// invoke it after every state change.
func (p *Peer) act() {
	if p.finished || !p.mayAct || !p.token.Hold() {
		return
	}
	switch p.phase {
	case PhasePassing, PhasePassBarrier:
		// A peer whose incoming pass arrived first is already in the
		// barrier but still owes its own pass.
		if !p.passedOwn && p.passDir != game.PassNone {
			p.passCards()
		}
	case PhasePlaying:
		if len(p.trick) < 4 && len(p.hand) > 0 {
			p.playCard()
		}
	}
}

func (p *Peer) passCards() {
	p.passedOwn = true
	p.mayAct = false
	target := game.PassTarget(p.id, p.passDir)

	choice := p.strat.ChoosePass(append([]game.Card(nil), p.hand...), p.passDir)
	if !validPass(p.hand, choice) {
		p.log.Warn("strategy returned an invalid pass, substituting lowest cards")
		choice = append([]game.Card(nil), p.hand[:3]...)
	}
	for _, c := range choice {
		p.hand = game.RemoveCard(p.hand, c)
	}

	p.log.Info("passing cards",
		zap.String("cards", game.FormatCards(choice)),
		zap.Int("to", target))
	p.emit(ring.MsgPassCards, uint8(target), ring.CardsPayload(choice))

	// The token sweeps 0→1→2→3 and stops; the coordinator's barrier takes
	// over from there.
	if p.id != 3 {
		p.release(uint8((p.id + 1) % 4))
	}
	p.updateBarrier()
}

func (p *Peer) playCard() {
	p.mayAct = false
	legal := game.LegalPlays(p.hand, p.trick, p.heartsBroken, p.trickNum == 0)
	if len(legal) == 0 {
		p.log.Error("no legal plays", zap.String("hand", game.FormatCards(p.hand)))
		return
	}

	choice := p.strat.ChoosePlay(
		append([]game.Card(nil), p.hand...), legal,
		append([]game.PlayedCard(nil), p.trick...), p.heartsBroken)
	if !game.ContainsCard(legal, choice) {
		p.log.Warn("strategy chose an illegal card, substituting",
			zap.Stringer("chosen", choice), zap.Stringer("substitute", legal[0]))
		choice = legal[0]
	}

	p.hand = game.RemoveCard(p.hand, choice)
	fourth := len(p.trick) == 3
	p.emit(ring.MsgPlayCard, ring.BroadcastID, []byte{byte(choice)})

	// The fourth player keeps quiet: the coordinator re-issues the token
	// to the trick winner once the summary has gone around.
	if !fourth {
		p.release(uint8((p.id + 1) % 4))
	}
}

// updateBarrier advances the pass-phase barrier. It completes once this
// peer has passed, its own PASS_CARDS lapped the ring, and the incoming
// pass arrived; only then are the buffered cards merged into the hand.
func (p *Peer) updateBarrier() {
	if p.phase != PhasePassing && p.phase != PhasePassBarrier {
		return
	}
	if p.passedOwn || p.gotPass {
		p.phase = PhasePassBarrier
	}
	if p.barrierDone || !p.passedOwn || !p.ownPassLap || !p.gotPass {
		return
	}
	p.barrierDone = true
	p.hand = append(p.hand, p.incomingPass...)
	game.SortCards(p.hand)
	p.log.Info("pass barrier complete", zap.String("hand", game.FormatCards(p.hand)))
	if p.pendingPlay {
		p.startPlaying()
	}
}

func (p *Peer) startPlaying() {
	if p.phase == PhasePlaying {
		return
	}
	p.phase = PhasePlaying
	p.pendingPlay = false
	if !p.mayAct {
		// Between phases the coordinator holds the token; do not clobber
		// a grant that already arrived for the first lead.
		p.token.Seize(0)
	}
	p.log.Info("tricks phase started")
	if p.id == 0 {
		p.release(uint8(p.coordTwoClubsHolder()))
	}
}

func (p *Peer) grantSelf() {
	p.token.Seize(uint8(p.id))
	p.mayAct = true
}

func (p *Peer) release(to uint8) {
	if err := p.token.ReleaseTo(to); err != nil {
		p.log.Error("token release failed", zap.Uint8("to", to), zap.Error(err))
	}
}

func (p *Peer) emit(t ring.MsgType, dest uint8, payload []byte) {
	m := ring.Message{
		Type:    t,
		Origin:  uint8(p.id),
		Dest:    dest,
		Seq:     p.nextSeq(),
		Payload: payload,
	}
	if p.out == nil {
		p.log.Error("no output wired", zap.Stringer("type", t))
		return
	}
	if err := p.out.Send(m); err != nil {
		p.log.Error("send failed", zap.Stringer("type", t), zap.Error(err))
	}
}

func (p *Peer) nextSeq() uint8 {
	s := p.seq
	p.seq++
	return s
}

func (p *Peer) pause() {
	if p.tokenDelay > 0 {
		time.Sleep(p.tokenDelay)
	}
}

func (p *Peer) finish() {
	if p.finished {
		return
	}
	p.finished = true
	p.log.Info("shutting down")
	if p.stop != nil {
		p.stop()
	}
}

func validPass(hand, choice []game.Card) bool {
	if len(choice) != 3 {
		return false
	}
	for i, c := range choice {
		if !game.ContainsCard(hand, c) {
			return false
		}
		for _, earlier := range choice[:i] {
			if earlier == c {
				return false
			}
		}
	}
	return true
}
