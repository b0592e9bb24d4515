package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/AdamBeresnev/tourney/internal/bracket"
	"github.com/AdamBeresnev/tourney/internal/store"
	users "github.com/AdamBeresnev/tourney/internal/user"
	"github.com/google/uuid"
)

// Register signs the actor up for a tournament while its registration is open.
func (s *TournamentService) Register(ctx context.Context, actor *users.User, tournamentID int64) (*bracket.Participant, error) {
	if actor == nil || actor.ID == "" {
		return nil, ErrUnauthorized
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Locked so that concurrent registrations cannot overfill the tournament
	tournament, err := s.store.LockTournament(ctx, tx, tournamentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTournamentNotFound
	}
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if tournament.BracketsGenerated {
		return nil, ErrRegistrationClosed
	}
	if tournament.ApplicationDeadline != nil && !now.Before(*tournament.ApplicationDeadline) {
		return nil, ErrRegistrationClosed
	}

	if tournament.MaxParticipants > 0 {
		count, err := s.store.CountParticipants(ctx, tx, tournamentID)
		if err != nil {
			return nil, err
		}
		if count >= tournament.MaxParticipants {
			return nil, ErrTournamentFull
		}
	}

	participant := &bracket.Participant{
		TournamentID:    tournamentID,
		UserID:          actor.ID,
		RegistrationRef: uuid.NewString(),
		CreatedAt:       now,
	}
	err = s.store.CreateParticipant(ctx, tx, participant)
	if errors.Is(err, store.ErrConflict) {
		return nil, ErrAlreadyRegistered
	}
	if err != nil {
		return nil, fmt.Errorf("failed to register participant: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.logger.Info("participant registered", "tournament_id", tournamentID, "participant_id", participant.ID, "user_id", actor.ID)
	return participant, nil
}
