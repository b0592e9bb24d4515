package bracket

import (
	"errors"
	"fmt"
	"math/bits"
)

// NoNode marks a missing forward pointer inside a Topology.
const NoNode = -1

// MaxBracketSize keeps every losers bracket level below GrandFinalLevel.
const MaxBracketSize = 1 << 16

var (
	ErrInvalidBracketSize = fmt.Errorf("bracket size must be a power of two between 2 and %d", MaxBracketSize)
	ErrInvalidTopology    = errors.New("invalid bracket topology")
)

// Node is a match shell. Next and LoserNext are indices into Topology.Nodes.
type Node struct {
	Index    int
	Side     Side
	Round    int
	Position int
	Level    int

	Next      int
	LoserNext int
}

// Topology is the full match graph of a bracket, built with local indices only.
// Persisting it maps every index to a database id before wiring the pointers.
type Topology struct {
	Size       int
	Format     Format
	Nodes      []Node
	Winners    [][]int
	Losers     [][]int
	GrandFinal int
}

func BuildTopology(size int, format Format) (*Topology, error) {
	if size < 2 || size > MaxBracketSize || !isPowerOfTwo(size) {
		return nil, ErrInvalidBracketSize
	}
	if !format.Valid() {
		return nil, fmt.Errorf("unknown bracket format %q", format)
	}

	t := &Topology{Size: size, Format: format, GrandFinal: NoNode}

	winnersRounds := bits.TrailingZeros(uint(size))
	for r := 1; r <= winnersRounds; r++ {
		t.Winners = append(t.Winners, t.addRound(WinnersSide, r, size>>r))
	}
	for r := 0; r < winnersRounds-1; r++ {
		for i, idx := range t.Winners[r] {
			t.Nodes[idx].Next = t.Winners[r+1][i/2]
		}
	}

	// A single winners round has nobody to drop into a losers bracket
	if format == SingleElimination || winnersRounds == 1 {
		return t, t.Validate()
	}

	losersRounds := 2 * (winnersRounds - 1)
	for r := 1; r <= losersRounds; r++ {
		t.Losers = append(t.Losers, t.addRound(LosersSide, r, losersRoundSize(size, r)))
	}

	// Survivors either meet a dropout (same match count) or each other (half the matches)
	for r := 0; r < losersRounds-1; r++ {
		current, next := t.Losers[r], t.Losers[r+1]
		for i, idx := range current {
			if len(next) == len(current) {
				t.Nodes[idx].Next = next[i]
			} else {
				t.Nodes[idx].Next = next[i/2]
			}
		}
	}

	for i, idx := range t.Winners[0] {
		t.Nodes[idx].LoserNext = t.Losers[0][i/2]
	}
	for w := 2; w <= winnersRounds; w++ {
		dropouts := t.Losers[2*(w-1)-1]
		// Reversed so that players from the same half do not meet again straight away
		for i, idx := range t.Winners[w-1] {
			t.Nodes[idx].LoserNext = dropouts[len(dropouts)-1-i]
		}
	}

	t.GrandFinal = t.addNode(FinalsSide, 1, 0)
	t.Nodes[t.WinnersFinal()].Next = t.GrandFinal
	t.Nodes[t.LosersFinal()].Next = t.GrandFinal

	return t, t.Validate()
}

// losersRoundSize: odd rounds take N / 2^(r/2+2) matches, even rounds pair every
// survivor of the previous round with one winners bracket dropout.
func losersRoundSize(size, round int) int {
	if round%2 == 0 {
		return losersRoundSize(size, round-1)
	}
	n := size >> (round/2 + 2)
	if n < 1 {
		return 1
	}
	return n
}

func (t *Topology) addRound(side Side, round, count int) []int {
	indices := make([]int, 0, count)
	for i := 0; i < count; i++ {
		indices = append(indices, t.addNode(side, round, i))
	}
	return indices
}

func (t *Topology) addNode(side Side, round, position int) int {
	idx := len(t.Nodes)
	t.Nodes = append(t.Nodes, Node{
		Index:     idx,
		Side:      side,
		Round:     round,
		Position:  position,
		Level:     LevelFor(side, round),
		Next:      NoNode,
		LoserNext: NoNode,
	})
	return idx
}

func (t *Topology) FirstRound() []int {
	return t.Winners[0]
}

func (t *Topology) WinnersFinal() int {
	return t.Winners[len(t.Winners)-1][0]
}

func (t *Topology) LosersFinal() int {
	if len(t.Losers) == 0 {
		return NoNode
	}
	return t.Losers[len(t.Losers)-1][0]
}

// Terminal is the match whose winner takes the tournament.
func (t *Topology) Terminal() int {
	if t.GrandFinal != NoNode {
		return t.GrandFinal
	}
	return t.WinnersFinal()
}

// Validate checks that every pointer targets an existing node on a strictly higher
// level, which rules out cycles without walking the graph.
func (t *Topology) Validate() error {
	terminals := 0
	for _, n := range t.Nodes {
		for _, target := range []int{n.Next, n.LoserNext} {
			if target == NoNode {
				continue
			}
			if target < 0 || target >= len(t.Nodes) {
				return fmt.Errorf("%w: node %d points at unknown node %d", ErrInvalidTopology, n.Index, target)
			}
			if t.Nodes[target].Level <= n.Level {
				return fmt.Errorf("%w: node %d (level %d) points back to level %d", ErrInvalidTopology, n.Index, n.Level, t.Nodes[target].Level)
			}
		}
		if n.Next == NoNode {
			terminals++
		}
	}
	if terminals != 1 {
		return fmt.Errorf("%w: expected exactly one terminal match, found %d", ErrInvalidTopology, terminals)
	}
	return nil
}
