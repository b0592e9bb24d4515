package bracket

import (
	"errors"
	"math/bits"
	"sort"
)

var ErrInsufficientParticipants = errors.New("at least two participants are required to build a bracket")

// Pairing is one first round match. A nil side is a bye.
type Pairing struct {
	Home *int64
	Away *int64
}

func (p Pairing) IsBye() bool {
	return p.Home == nil || p.Away == nil
}

type Draw struct {
	Size int
	// Slots holds participant ids by seed index, padded with nil byes up to Size
	Slots    []*int64
	Pairings []Pairing
}

// Gets the nearest power of 2 while rounding up, so with input 5 it returns 8 and so on.
// Anything up to two players still needs a full match.
func BracketSize(count int) int {
	if count <= 2 {
		return 2
	}
	return 1 << bits.Len(uint(count-1))
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// SeedPairs returns the seed indices of every first round match for a bracket of
// the given size, ordered so that adjacent matches meet in the next round.
// Seed 0 meets the lowest seed, seed 1 the next lowest and so on.
func SeedPairs(bracketSize int) [][2]int {
	if bracketSize < 2 || !isPowerOfTwo(bracketSize) {
		return [][2]int{}
	}

	// Each seed s in a bracket of size k is followed by its opponent 2k-1-s once the bracket doubles
	order := []int{0}
	for len(order) < bracketSize {
		next := make([]int, 0, len(order)*2)
		currentCount := len(order) * 2

		for _, seed := range order {
			next = append(next, seed, (currentCount-1)-seed)
		}
		order = next
	}

	pairs := make([][2]int, 0, bracketSize/2)
	for i := 0; i < len(order); i += 2 {
		pairs = append(pairs, [2]int{order[i], order[i+1]})
	}

	return pairs
}

// NewDraw seeds entrants by descending score and pairs them for the first round.
// Entrants with equal scores keep the order they were given in.
func NewDraw(entrants []Participant) (*Draw, error) {
	if len(entrants) < 2 {
		return nil, ErrInsufficientParticipants
	}

	seeded := make([]Participant, len(entrants))
	copy(seeded, entrants)
	sort.SliceStable(seeded, func(i, j int) bool {
		return seeded[i].SeedScore() > seeded[j].SeedScore()
	})

	size := BracketSize(len(seeded))
	slots := make([]*int64, size)
	for i := range seeded {
		id := seeded[i].ID
		slots[i] = &id
	}

	seedPairs := SeedPairs(size)
	pairings := make([]Pairing, 0, len(seedPairs))
	for _, pair := range seedPairs {
		pairings = append(pairings, Pairing{Home: slots[pair[0]], Away: slots[pair[1]]})
	}

	return &Draw{
		Size:     size,
		Slots:    slots,
		Pairings: pairings,
	}, nil
}
