package peer

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/herijooj/redetrab1/game"
)

// Strategy chooses which cards to pass and which card to play. Results are
// untrusted: the peer replaces anything illegal with the lowest legal
// choice before it reaches the wire.
type Strategy interface {
	// ChoosePass picks three cards from hand to pass in the given direction.
	ChoosePass(hand []game.Card, dir game.PassDirection) []game.Card
	// ChoosePlay picks one card from legal to play onto the current trick.
	ChoosePlay(hand, legal []game.Card, trick []game.PlayedCard, heartsBroken bool) game.Card
}

// AutoStrategy plays without input: it sheds the Queen of Spades and high
// spades and hearts when passing, and otherwise plays low.
type AutoStrategy struct{}

func (AutoStrategy) ChoosePass(hand []game.Card, _ game.PassDirection) []game.Card {
	var pass []game.Card
	take := func(c game.Card) {
		if len(pass) < 3 && game.ContainsCard(hand, c) && !game.ContainsCard(pass, c) {
			pass = append(pass, c)
		}
	}

	// Q♠ first, then the spades that could capture it.
	take(game.QueenOfSpades)
	take(game.NewCard(game.King, game.Spades))
	take(game.NewCard(game.Ace, game.Spades))

	// Then high hearts.
	for _, r := range []game.Rank{game.King, game.Queen, game.Jack, game.Ace} {
		take(game.NewCard(r, game.Hearts))
	}

	// Fill with the strongest of whatever is left.
	rest := make([]game.Card, 0, len(hand))
	for _, c := range hand {
		if !game.ContainsCard(pass, c) {
			rest = append(rest, c)
		}
	}
	for len(pass) < 3 && len(rest) > 0 {
		best := 0
		for i, c := range rest {
			if c.Rank().Strength() > rest[best].Rank().Strength() {
				best = i
			}
		}
		pass = append(pass, rest[best])
		rest = append(rest[:best], rest[best+1:]...)
	}
	return pass
}

func (AutoStrategy) ChoosePlay(_, legal []game.Card, _ []game.PlayedCard, _ bool) game.Card {
	if len(legal) == 0 {
		return 0
	}
	// Stay out of trouble: always the weakest legal card.
	low := legal[0]
	for _, c := range legal[1:] {
		if c.Rank().Strength() < low.Rank().Strength() {
			low = c
		}
	}
	return low
}

// TerminalStrategy prompts a human on the terminal. Bad input simply
// returns an illegal choice and lets the peer's fallback take over.
type TerminalStrategy struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminalStrategy reads selections from in and writes prompts to out.
func NewTerminalStrategy(in io.Reader, out io.Writer) *TerminalStrategy {
	return &TerminalStrategy{in: bufio.NewReader(in), out: out}
}

func (t *TerminalStrategy) ChoosePass(hand []game.Card, dir game.PassDirection) []game.Card {
	fmt.Fprintf(t.out, "\nYour hand:\n")
	t.printCards(hand)
	fmt.Fprintf(t.out, "Pick 3 cards to pass %s (e.g. \"1 5 9\"): ", dir)

	indices := t.readIndices(3, len(hand))
	if indices == nil {
		return nil
	}
	pass := make([]game.Card, 0, 3)
	for _, i := range indices {
		pass = append(pass, hand[i])
	}
	return pass
}

func (t *TerminalStrategy) ChoosePlay(_, legal []game.Card, trick []game.PlayedCard, heartsBroken bool) game.Card {
	if len(trick) > 0 {
		played := make([]game.Card, len(trick))
		for i, pc := range trick {
			played[i] = pc.Card
		}
		fmt.Fprintf(t.out, "\nOn the table: %s\n", game.FormatCards(played))
	} else {
		fmt.Fprintf(t.out, "\nYou lead the trick")
		if heartsBroken {
			fmt.Fprintf(t.out, " (hearts are broken)")
		}
		fmt.Fprintln(t.out)
	}
	fmt.Fprintf(t.out, "Legal plays:\n")
	t.printCards(legal)
	fmt.Fprintf(t.out, "Pick a card: ")

	indices := t.readIndices(1, len(legal))
	if indices == nil {
		return 0
	}
	return legal[indices[0]]
}

func (t *TerminalStrategy) printCards(cards []game.Card) {
	for i, c := range cards {
		fmt.Fprintf(t.out, "  [%d] %s\n", i+1, c)
	}
}

// readIndices reads want distinct 1-based indices no larger than limit,
// returning nil on any malformed input.
func (t *TerminalStrategy) readIndices(want, limit int) []int {
	line, err := t.in.ReadString('\n')
	if err != nil {
		return nil
	}
	fields := strings.Fields(line)
	if len(fields) != want {
		return nil
	}
	indices := make([]int, 0, want)
	for _, f := range fields {
		var i int
		if _, err := fmt.Sscanf(f, "%d", &i); err != nil || i < 1 || i > limit {
			return nil
		}
		for _, seen := range indices {
			if seen == i-1 {
				return nil
			}
		}
		indices = append(indices, i-1)
	}
	return indices
}
