package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AdamBeresnev/tourney/internal/bracket"
	"github.com/AdamBeresnev/tourney/internal/events"
	"github.com/AdamBeresnev/tourney/internal/metrics"
	"github.com/AdamBeresnev/tourney/internal/store"
	users "github.com/AdamBeresnev/tourney/internal/user"
	"github.com/AdamBeresnev/tourney/internal/utils"
	"github.com/jmoiron/sqlx"
)

type MatchService struct {
	db        *sqlx.DB
	store     *store.TournamentStore
	logger    *slog.Logger
	metrics   *metrics.Recorder
	publisher events.Publisher
	now       func() time.Time
}

func NewMatchService(db *sqlx.DB, store *store.TournamentStore, logger *slog.Logger, m *metrics.Recorder, publisher events.Publisher) *MatchService {
	return &MatchService{
		db:        db,
		store:     store,
		logger:    logger,
		metrics:   m,
		publisher: publisher,
		now:       time.Now,
	}
}

type ReportInput struct {
	MatchID       int64
	ParticipantID int64
	Outcome       bracket.ParticipantState
	// Score keeps the previously reported score when nil
	Score *int64
}

type MatchDetail struct {
	Match        bracket.Match        `json:"match"`
	Participants []store.MatchEntrant `json:"participants"`
}

func (s *MatchService) GetMatch(ctx context.Context, matchID int64) (*MatchDetail, error) {
	match, err := s.store.GetMatch(ctx, matchID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, err
	}

	entrants, err := s.store.GetMatchEntrants(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants of match %d: %w", matchID, err)
	}

	return &MatchDetail{Match: *match, Participants: entrants}, nil
}

// ReportResult records one participant's outcome. Once every participant of the
// match has a result, the match is closed and the winner and losers move on.
func (s *MatchService) ReportResult(ctx context.Context, actor *users.User, in ReportInput) (*MatchDetail, error) {
	if actor == nil || actor.ID == "" {
		return nil, ErrUnauthorized
	}
	if in.Outcome != bracket.ParticipantWon && in.Outcome != bracket.ParticipantLost {
		return nil, ErrInvalidOutcome
	}
	if in.Score != nil && *in.Score < 0 {
		return nil, ErrInvalidScore
	}

	prog, changed, err := s.report(ctx, actor, in)
	if err != nil {
		s.metrics.MatchReport(metrics.ResultRejected)
		return nil, err
	}

	if !changed {
		s.metrics.MatchReport(metrics.ResultUnchanged)
	} else {
		s.metrics.MatchReport(metrics.ResultAccepted)
		s.logger.Info("match result reported",
			"tournament_id", prog.tournamentID,
			"match_id", in.MatchID,
			"participant_id", in.ParticipantID,
			"outcome", in.Outcome,
			"matches_decided", len(prog.decided),
		)
		prog.report(ctx, s.publisher)
	}

	return s.GetMatch(ctx, in.MatchID)
}

func (s *MatchService) report(ctx context.Context, actor *users.User, in ReportInput) (*progression, bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	match, err := s.store.LockMatch(ctx, tx, in.MatchID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, ErrMatchNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to lock match %d: %w", in.MatchID, err)
	}

	tournament, err := s.store.GetTournamentTx(ctx, tx, match.TournamentID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load tournament %d: %w", match.TournamentID, err)
	}

	entrants, err := s.store.GetMatchEntrantsTx(ctx, tx, match.ID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load participants of match %d: %w", match.ID, err)
	}

	if !canReport(actor, tournament, entrants) {
		return nil, false, ErrUnauthorized
	}

	var reported *store.MatchEntrant
	for i := range entrants {
		if entrants[i].ParticipantID == in.ParticipantID {
			reported = &entrants[i]
			break
		}
	}
	if reported == nil {
		return nil, false, ErrParticipantNotInMatch
	}

	score := in.Score
	if score == nil {
		score = reported.Score
	}
	repeat := reported.State == in.Outcome && utils.ValueOr(reported.Score, 0) == utils.ValueOr(score, 0)

	if match.IsDecided() {
		if repeat {
			return nil, false, nil
		}
		return nil, false, ErrMatchAlreadyDecided
	}

	prog := newProgression(tx, s.store, s.logger, s.metrics, match.TournamentID, s.now().UTC())

	ready, err := prog.feedersPlayed(ctx, match.ID)
	if err != nil {
		return nil, false, err
	}
	if !ready || len(entrants) < 2 {
		return nil, false, ErrMatchNotReady
	}

	if repeat {
		return nil, false, nil
	}

	update := reported.MatchParticipant
	update.State = in.Outcome
	update.Score = score
	if err := s.store.UpdateMatchParticipant(ctx, tx, &update); err != nil {
		return nil, false, fmt.Errorf("failed to record result: %w", err)
	}

	// The running score takes the difference so that corrections are not counted twice
	if delta := utils.ValueOr(score, 0) - utils.ValueOr(reported.Score, 0); delta != 0 {
		if err := s.store.AddParticipantScore(ctx, tx, in.ParticipantID, delta); err != nil {
			return nil, false, fmt.Errorf("failed to update score of participant %d: %w", in.ParticipantID, err)
		}
	}

	if _, err := prog.decide(ctx, match, metrics.DecidedPlayed); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit result for match %d: %w", match.ID, err)
	}
	return prog, true, nil
}

// canReport allows the organizer and anyone playing in the match.
func canReport(actor *users.User, tournament *bracket.Tournament, entrants []store.MatchEntrant) bool {
	if actor.Is(tournament.OrganizerID) {
		return true
	}
	for _, e := range entrants {
		if actor.Is(e.UserID) {
			return true
		}
	}
	return false
}
