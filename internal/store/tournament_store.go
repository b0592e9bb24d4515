package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AdamBeresnev/tourney/internal/bracket"
	"github.com/jmoiron/sqlx"
)

type TournamentStore struct {
	db *sqlx.DB
}

func NewTournamentStore(db *sqlx.DB) *TournamentStore {
	return &TournamentStore{db: db}
}

func (s *TournamentStore) CreateTournament(ctx context.Context, tx *sqlx.Tx, tournament *bracket.Tournament) error {
	query := tx.Rebind(`INSERT INTO tournaments (organizer_id, name, bracket_type, max_participants, application_deadline, brackets_generated, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	return tx.QueryRowxContext(ctx, query,
		tournament.OrganizerID,
		tournament.Name,
		tournament.Format,
		tournament.MaxParticipants,
		tournament.ApplicationDeadline,
		tournament.BracketsGenerated,
		tournament.CreatedAt,
	).Scan(&tournament.ID)
}

func (s *TournamentStore) GetTournament(ctx context.Context, id int64) (*bracket.Tournament, error) {
	var tournament bracket.Tournament
	if err := get(ctx, s.db, &tournament, "SELECT * FROM tournaments WHERE id = ?", id); err != nil {
		return nil, err
	}
	return &tournament, nil
}

func (s *TournamentStore) GetTournamentTx(ctx context.Context, tx *sqlx.Tx, id int64) (*bracket.Tournament, error) {
	var tournament bracket.Tournament
	if err := get(ctx, tx, &tournament, "SELECT * FROM tournaments WHERE id = ?", id); err != nil {
		return nil, err
	}
	return &tournament, nil
}

// LockTournament reads the tournament inside tx, holding a row lock on postgres.
func (s *TournamentStore) LockTournament(ctx context.Context, tx *sqlx.Tx, id int64) (*bracket.Tournament, error) {
	var tournament bracket.Tournament
	if err := get(ctx, tx, &tournament, forUpdate(tx, "SELECT * FROM tournaments WHERE id = ?"), id); err != nil {
		return nil, err
	}
	return &tournament, nil
}

// ListEligibleForGeneration returns tournaments whose registration closed at or before now,
// that have no bracket yet and at least two participants.
func (s *TournamentStore) ListEligibleForGeneration(ctx context.Context, now time.Time) ([]int64, error) {
	ids := []int64{}
	err := selectAll(ctx, s.db, &ids, `SELECT t.id FROM tournaments t
		WHERE t.brackets_generated = FALSE
			AND t.application_deadline IS NOT NULL
			AND t.application_deadline <= ?
			AND (SELECT COUNT(*) FROM participants p WHERE p.tournament_id = t.id) > 1
		ORDER BY t.id ASC`, now.UTC())
	return ids, err
}

// ClaimBracketGeneration flips the generated flag and reports whether this call was the one to flip it.
func (s *TournamentStore) ClaimBracketGeneration(ctx context.Context, tx *sqlx.Tx, tournamentID int64) (bool, error) {
	rows, err := exec(ctx, tx, "UPDATE tournaments SET brackets_generated = TRUE WHERE id = ? AND brackets_generated = FALSE", tournamentID)
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (s *TournamentStore) CreateParticipant(ctx context.Context, tx *sqlx.Tx, participant *bracket.Participant) error {
	query := tx.Rebind(`INSERT INTO participants (tournament_id, user_id, registration_ref, score, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (tournament_id, user_id) DO NOTHING
		RETURNING id`)
	err := tx.QueryRowxContext(ctx, query,
		participant.TournamentID,
		participant.UserID,
		participant.RegistrationRef,
		participant.Score,
		participant.CreatedAt,
	).Scan(&participant.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrConflict
	}
	return err
}

func (s *TournamentStore) CountParticipants(ctx context.Context, tx *sqlx.Tx, tournamentID int64) (int, error) {
	var count int
	err := get(ctx, tx, &count, "SELECT COUNT(*) FROM participants WHERE tournament_id = ?", tournamentID)
	return count, err
}

// GetParticipants returns participants in registration order.
func (s *TournamentStore) GetParticipants(ctx context.Context, tournamentID int64) ([]bracket.Participant, error) {
	return s.participants(ctx, s.db, tournamentID)
}

func (s *TournamentStore) GetParticipantsTx(ctx context.Context, tx *sqlx.Tx, tournamentID int64) ([]bracket.Participant, error) {
	return s.participants(ctx, tx, tournamentID)
}

func (s *TournamentStore) participants(ctx context.Context, q queryer, tournamentID int64) ([]bracket.Participant, error) {
	participants := []bracket.Participant{}
	err := selectAll(ctx, q, &participants, "SELECT * FROM participants WHERE tournament_id = ? ORDER BY id ASC", tournamentID)
	return participants, err
}

func (s *TournamentStore) GetParticipant(ctx context.Context, tx *sqlx.Tx, id int64) (*bracket.Participant, error) {
	var participant bracket.Participant
	if err := get(ctx, tx, &participant, "SELECT * FROM participants WHERE id = ?", id); err != nil {
		return nil, err
	}
	return &participant, nil
}

func (s *TournamentStore) SetParticipantScore(ctx context.Context, tx *sqlx.Tx, id int64, score *int64) error {
	rows, err := exec(ctx, tx, "UPDATE participants SET score = ? WHERE id = ?", score, id)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// AddParticipantScore adds delta to the running score, treating a missing score as zero.
func (s *TournamentStore) AddParticipantScore(ctx context.Context, tx *sqlx.Tx, id int64, delta int64) error {
	rows, err := exec(ctx, tx, "UPDATE participants SET score = COALESCE(score, 0) + ? WHERE id = ?", delta, id)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *TournamentStore) ResetScores(ctx context.Context, tx *sqlx.Tx, tournamentID int64) (int64, error) {
	rows, err := exec(ctx, tx, "UPDATE participants SET score = 0 WHERE tournament_id = ?", tournamentID)
	if err != nil {
		return 0, fmt.Errorf("reset scores: %w", err)
	}
	return rows, nil
}

// AddWinner records the champion. It returns false when the tournament already has one.
func (s *TournamentStore) AddWinner(ctx context.Context, tx *sqlx.Tx, tournamentID, participantID int64, at time.Time) (bool, error) {
	rows, err := exec(ctx, tx, `INSERT INTO tournament_winners (tournament_id, participant_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (tournament_id) DO NOTHING`, tournamentID, participantID, at.UTC())
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (s *TournamentStore) GetWinners(ctx context.Context, tournamentID int64) ([]bracket.Winner, error) {
	winners := []bracket.Winner{}
	err := selectAll(ctx, s.db, &winners, "SELECT * FROM tournament_winners WHERE tournament_id = ?", tournamentID)
	return winners, err
}
