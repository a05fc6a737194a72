package game

// PassDirection selects who receives a player's three passed cards.
// The cycle across hands is left, right, across, none, then left again.
type PassDirection byte

const (
	PassLeft   PassDirection = 0
	PassRight  PassDirection = 1
	PassAcross PassDirection = 2
	PassNone   PassDirection = 3
)

func (d PassDirection) String() string {
	switch d {
	case PassLeft:
		return "left"
	case PassRight:
		return "right"
	case PassAcross:
		return "across"
	case PassNone:
		return "none"
	default:
		return "invalid"
	}
}

// Next returns the direction for the following hand.
func (d PassDirection) Next() PassDirection {
	return (d + 1) % 4
}

// PassTarget returns which peer receives cards passed by self in the given
// direction. The result is undefined for PassNone; -1 is returned.
func PassTarget(self int, d PassDirection) int {
	switch d {
	case PassLeft:
		return (self + 1) % 4
	case PassRight:
		return (self + 3) % 4
	case PassAcross:
		return (self + 2) % 4
	default:
		return -1
	}
}

// PlayedCard pairs a card with the player who played it.
type PlayedCard struct {
	Player int
	Card   Card
}

// LegalPlays returns every card in hand that may be played onto trick,
// sorted ascending. The rules, in order:
//   - The first trick of a hand must be led with 2♣.
//   - A non-empty trick must be followed in the lead suit when possible.
//   - On the first trick no heart and no Q♠ may be discarded, unless the
//     hand holds nothing else.
//   - Hearts may not be led until broken, unless the hand is all hearts.
func LegalPlays(hand []Card, trick []PlayedCard, heartsBroken, firstTrick bool) []Card {
	if len(hand) == 0 {
		return nil
	}

	legal := legalPlays(hand, trick, heartsBroken, firstTrick)
	SortCards(legal)
	return legal
}

func legalPlays(hand []Card, trick []PlayedCard, heartsBroken, firstTrick bool) []Card {
	if firstTrick {
		if len(trick) == 0 {
			// Whoever holds 2♣ leads it. The fallback branch only matters
			// if the hand somehow lacks 2♣; lead anything non-scoring.
			if ContainsCard(hand, TwoOfClubs) {
				return []Card{TwoOfClubs}
			}
			if safe := reject(hand, Card.IsPoint); len(safe) > 0 {
				return safe
			}
			return clone(hand)
		}

		lead := trick[0].Card.Suit()
		if follow := inSuit(hand, lead); len(follow) > 0 {
			return follow
		}
		// Void in the lead suit: no points on the first trick unless the
		// hand holds only points.
		if safe := reject(hand, Card.IsPoint); len(safe) > 0 {
			return safe
		}
		return clone(hand)
	}

	if len(trick) > 0 {
		lead := trick[0].Card.Suit()
		if follow := inSuit(hand, lead); len(follow) > 0 {
			return follow
		}
		return clone(hand)
	}

	// Leading: hearts stay in the hand until broken.
	if !heartsBroken {
		if nonHearts := reject(hand, func(c Card) bool { return c.Suit() == Hearts }); len(nonHearts) > 0 {
			return nonHearts
		}
	}
	return clone(hand)
}

// TrickWinner returns the player whose card wins the trick: the highest
// card in the suit that was led, with Ace ranking above King. Off-suit
// cards cannot win.
func TrickWinner(trick []PlayedCard) int {
	lead := trick[0].Card.Suit()
	winner := trick[0]
	for _, pc := range trick[1:] {
		if pc.Card.Suit() == lead && pc.Card.Rank().Strength() > winner.Card.Rank().Strength() {
			winner = pc
		}
	}
	return winner.Player
}

// TrickPoints returns the penalty points in a trick: one per heart and
// thirteen for the Queen of Spades.
func TrickPoints(trick []PlayedCard) int {
	points := 0
	for _, pc := range trick {
		switch {
		case pc.Card.Suit() == Hearts:
			points++
		case pc.Card == QueenOfSpades:
			points += 13
		}
	}
	return points
}

// NoShooter is returned by HandPoints when nobody shot the moon.
const NoShooter = -1

// HandPoints applies the shoot-the-moon adjustment to the raw per-hand
// scores: a player who collected all 26 points scores zero and everyone
// else scores 26. Otherwise the raw values are returned unchanged.
func HandPoints(raw [4]int) ([4]int, int) {
	shooter := NoShooter
	for id, points := range raw {
		if points == 26 {
			shooter = id
			break
		}
	}
	if shooter == NoShooter {
		return raw, NoShooter
	}

	adjusted := [4]int{26, 26, 26, 26}
	adjusted[shooter] = 0
	return adjusted, shooter
}

func clone(cards []Card) []Card {
	out := make([]Card, len(cards))
	copy(out, cards)
	return out
}

func inSuit(hand []Card, s Suit) []Card {
	var out []Card
	for _, c := range hand {
		if c.Suit() == s {
			out = append(out, c)
		}
	}
	return out
}

func reject(hand []Card, bad func(Card) bool) []Card {
	var out []Card
	for _, c := range hand {
		if !bad(c) {
			out = append(out, c)
		}
	}
	return out
}
