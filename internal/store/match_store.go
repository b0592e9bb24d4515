package store

import (
	"context"

	"github.com/AdamBeresnev/tourney/internal/bracket"
	"github.com/jmoiron/sqlx"
)

// MatchEntrant is a match participant together with the user that registered it.
type MatchEntrant struct {
	bracket.MatchParticipant
	UserID string `db:"user_id" json:"user_id"`
}

const entrantColumns = `mp.match_id, mp.participant_id, mp.state, mp.score, p.user_id
	FROM match_participants mp
	JOIN participants p ON p.id = mp.participant_id`

func (s *TournamentStore) InsertMatch(ctx context.Context, tx *sqlx.Tx, match *bracket.Match) error {
	query := tx.Rebind(`INSERT INTO matches (tournament_id, level, position, state)
		VALUES (?, ?, ?, ?) RETURNING id`)
	return tx.QueryRowxContext(ctx, query, match.TournamentID, match.Level, match.Position, match.State).Scan(&match.ID)
}

// LinkMatch sets both forward pointers of a match and returns the number of rows touched.
func (s *TournamentStore) LinkMatch(ctx context.Context, tx *sqlx.Tx, matchID int64, next, loserNext *int64) (int64, error) {
	return exec(ctx, tx, "UPDATE matches SET next_match_id = ?, loser_next_match_id = ? WHERE id = ?", next, loserNext, matchID)
}

func (s *TournamentStore) GetMatch(ctx context.Context, id int64) (*bracket.Match, error) {
	var match bracket.Match
	if err := get(ctx, s.db, &match, "SELECT * FROM matches WHERE id = ?", id); err != nil {
		return nil, err
	}
	return &match, nil
}

// LockMatch reads the match inside tx, holding a row lock on postgres.
func (s *TournamentStore) LockMatch(ctx context.Context, tx *sqlx.Tx, id int64) (*bracket.Match, error) {
	var match bracket.Match
	if err := get(ctx, tx, &match, forUpdate(tx, "SELECT * FROM matches WHERE id = ?"), id); err != nil {
		return nil, err
	}
	return &match, nil
}

func (s *TournamentStore) GetMatches(ctx context.Context, tournamentID int64) ([]bracket.Match, error) {
	matches := []bracket.Match{}
	err := selectAll(ctx, s.db, &matches, "SELECT * FROM matches WHERE tournament_id = ? ORDER BY level ASC, position ASC", tournamentID)
	return matches, err
}

func (s *TournamentStore) CountMatches(ctx context.Context, tx *sqlx.Tx, tournamentID int64) (int, error) {
	var count int
	err := get(ctx, tx, &count, "SELECT COUNT(*) FROM matches WHERE tournament_id = ?", tournamentID)
	return count, err
}

// GetFeeders returns every match that sends its winner or loser into matchID.
func (s *TournamentStore) GetFeeders(ctx context.Context, tx *sqlx.Tx, matchID int64) ([]bracket.Match, error) {
	feeders := []bracket.Match{}
	err := selectAll(ctx, tx, &feeders, "SELECT * FROM matches WHERE next_match_id = ? OR loser_next_match_id = ? ORDER BY level ASC, position ASC", matchID, matchID)
	return feeders, err
}

func (s *TournamentStore) SetMatchState(ctx context.Context, tx *sqlx.Tx, matchID int64, state bracket.MatchState) error {
	rows, err := exec(ctx, tx, "UPDATE matches SET state = ? WHERE id = ?", state, matchID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// AddMatchParticipant seats a participant in a match. It returns false when the
// participant already holds a seat there.
func (s *TournamentStore) AddMatchParticipant(ctx context.Context, tx *sqlx.Tx, matchID, participantID int64) (bool, error) {
	rows, err := exec(ctx, tx, `INSERT INTO match_participants (match_id, participant_id, state)
		VALUES (?, ?, ?)
		ON CONFLICT (match_id, participant_id) DO NOTHING`, matchID, participantID, bracket.ParticipantNotPlayed)
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (s *TournamentStore) UpdateMatchParticipant(ctx context.Context, tx *sqlx.Tx, mp *bracket.MatchParticipant) error {
	rows, err := exec(ctx, tx, "UPDATE match_participants SET state = ?, score = ? WHERE match_id = ? AND participant_id = ?",
		mp.State, mp.Score, mp.MatchID, mp.ParticipantID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *TournamentStore) GetMatchEntrants(ctx context.Context, matchID int64) ([]MatchEntrant, error) {
	return s.matchEntrants(ctx, s.db, matchID)
}

func (s *TournamentStore) GetMatchEntrantsTx(ctx context.Context, tx *sqlx.Tx, matchID int64) ([]MatchEntrant, error) {
	return s.matchEntrants(ctx, tx, matchID)
}

func (s *TournamentStore) matchEntrants(ctx context.Context, q queryer, matchID int64) ([]MatchEntrant, error) {
	entrants := []MatchEntrant{}
	err := selectAll(ctx, q, &entrants, "SELECT "+entrantColumns+" WHERE mp.match_id = ? ORDER BY mp.participant_id ASC", matchID)
	return entrants, err
}

// GetTournamentEntrants returns the seats of every match of a tournament.
func (s *TournamentStore) GetTournamentEntrants(ctx context.Context, tournamentID int64) ([]MatchEntrant, error) {
	entrants := []MatchEntrant{}
	err := selectAll(ctx, s.db, &entrants, "SELECT "+entrantColumns+`
		JOIN matches m ON m.id = mp.match_id
		WHERE m.tournament_id = ?
		ORDER BY mp.match_id ASC, mp.participant_id ASC`, tournamentID)
	return entrants, err
}
