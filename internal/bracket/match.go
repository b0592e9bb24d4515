package bracket

type MatchState string

const (
	MatchNoParty MatchState = "NO_PARTY"
	MatchPlayed  MatchState = "PLAYED"
)

type ParticipantState string

const (
	ParticipantWon       ParticipantState = "WON"
	ParticipantLost      ParticipantState = "LOST"
	ParticipantNotPlayed ParticipantState = "NOT_PLAYED"
)

type Side string

const (
	WinnersSide Side = "winners"
	LosersSide  Side = "losers"
	FinalsSide  Side = "finals"
)

// Level stamps. Winners rounds use their round number, losers rounds are
// offset by LosersLevelOffset and the grand final sits above both.
const (
	LosersLevelOffset = 100
	GrandFinalLevel   = 201
)

func LevelFor(side Side, round int) int {
	switch side {
	case LosersSide:
		return LosersLevelOffset + round
	case FinalsSide:
		return GrandFinalLevel
	default:
		return round
	}
}

type Match struct {
	ID           int64      `db:"id" json:"id"`
	TournamentID int64      `db:"tournament_id" json:"tournament_id"`
	Level        int        `db:"level" json:"level"`
	Position     int        `db:"position" json:"position"`
	State        MatchState `db:"state" json:"state"`

	NextMatchID      *int64 `db:"next_match_id" json:"next_match_id"`
	LoserNextMatchID *int64 `db:"loser_next_match_id" json:"loser_next_match_id"`
}

func (m *Match) Side() Side {
	switch {
	case m.Level >= GrandFinalLevel:
		return FinalsSide
	case m.Level > LosersLevelOffset:
		return LosersSide
	default:
		return WinnersSide
	}
}

func (m *Match) Round() int {
	switch m.Side() {
	case FinalsSide:
		return 1
	case LosersSide:
		return m.Level - LosersLevelOffset
	default:
		return m.Level
	}
}

func (m *Match) IsDecided() bool {
	return m.State == MatchPlayed
}

// IsTerminal reports whether the winner of this match is the champion.
func (m *Match) IsTerminal() bool {
	return m.NextMatchID == nil
}

type MatchParticipant struct {
	MatchID       int64            `db:"match_id" json:"match_id"`
	ParticipantID int64            `db:"participant_id" json:"participant_id"`
	State         ParticipantState `db:"state" json:"state"`
	Score         *int64           `db:"score" json:"score"`
}

func (mp *MatchParticipant) Resolved() bool {
	return mp.State != ParticipantNotPlayed
}
