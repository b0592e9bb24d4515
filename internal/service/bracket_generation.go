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

type BracketGeneration struct {
	db        *sqlx.DB
	store     *store.TournamentStore
	logger    *slog.Logger
	metrics   *metrics.Recorder
	publisher events.Publisher
	now       func() time.Time
}

func NewBracketGeneration(db *sqlx.DB, store *store.TournamentStore, logger *slog.Logger, m *metrics.Recorder, publisher events.Publisher) *BracketGeneration {
	return &BracketGeneration{
		db:        db,
		store:     store,
		logger:    logger,
		metrics:   m,
		publisher: publisher,
		now:       time.Now,
	}
}

// Generate is the organizer facing entry point. Unlike GenerateBracket it
// reports a tournament without enough participants as an error.
func (s *BracketGeneration) Generate(ctx context.Context, actor *users.User, tournamentID int64) error {
	if actor == nil {
		return ErrUnauthorized
	}

	tournament, err := s.store.GetTournament(ctx, tournamentID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrTournamentNotFound
	}
	if err != nil {
		return err
	}
	if !actor.Is(tournament.OrganizerID) {
		return ErrForbidden
	}

	generated, err := s.GenerateBracket(ctx, tournamentID)
	if err != nil {
		return err
	}
	if !generated {
		return bracket.ErrInsufficientParticipants
	}
	return nil
}

// GenerateBracket seeds the registered participants and writes the whole bracket
// in one transaction. It returns false without writing anything when fewer than
// two participants registered.
func (s *BracketGeneration) GenerateBracket(ctx context.Context, tournamentID int64) (bool, error) {
	started := s.now()

	generated, prog, err := s.generate(ctx, tournamentID)
	switch {
	case errors.Is(err, ErrBracketAlreadyGenerated):
		s.metrics.BracketGeneration(metrics.ResultAlreadyDone, 0)
		return false, err
	case err != nil:
		s.metrics.BracketGeneration(metrics.ResultFailed, 0)
		return false, err
	case !generated:
		s.metrics.BracketGeneration(metrics.ResultSkipped, 0)
		return false, nil
	}

	s.metrics.BracketGeneration(metrics.ResultGenerated, s.now().Sub(started))
	s.logger.Info("bracket generated", "tournament_id", tournamentID, "matches_decided", len(prog.decided))

	if err := s.publisher.Publish(ctx, events.Event{
		Type:         events.BracketGenerated,
		TournamentID: tournamentID,
		At:           prog.now,
	}); err != nil {
		s.logger.Warn("failed to publish event", "type", events.BracketGenerated, "tournament_id", tournamentID, "error", err)
	}
	prog.report(ctx, s.publisher)

	return true, nil
}

func (s *BracketGeneration) generate(ctx context.Context, tournamentID int64) (bool, *progression, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, nil, err
	}
	defer tx.Rollback()

	tournament, err := s.store.LockTournament(ctx, tx, tournamentID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil, ErrTournamentNotFound
	}
	if err != nil {
		return false, nil, fmt.Errorf("failed to load tournament %d: %w", tournamentID, err)
	}
	if tournament.BracketsGenerated {
		return false, nil, ErrBracketAlreadyGenerated
	}

	participants, err := s.store.GetParticipantsTx(ctx, tx, tournamentID)
	if err != nil {
		return false, nil, fmt.Errorf("failed to load participants: %w", err)
	}

	draw, err := bracket.NewDraw(participants)
	if errors.Is(err, bracket.ErrInsufficientParticipants) {
		s.logger.Warn("not enough participants to generate a bracket", "tournament_id", tournamentID, "participants", len(participants))
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}

	topology, err := bracket.BuildTopology(draw.Size, tournament.Format)
	if err != nil {
		return false, nil, fmt.Errorf("failed to build bracket for tournament %d: %w", tournamentID, err)
	}

	claimed, err := s.store.ClaimBracketGeneration(ctx, tx, tournamentID)
	if err != nil {
		return false, nil, fmt.Errorf("failed to mark tournament %d as generated: %w", tournamentID, err)
	}
	if !claimed {
		return false, nil, ErrBracketAlreadyGenerated
	}

	ids, err := s.writeTopology(ctx, tx, tournamentID, topology)
	if err != nil {
		return false, nil, err
	}

	firstRound := topology.FirstRound()
	for i, pairing := range draw.Pairings {
		matchID := ids[firstRound[i]]
		for _, participantID := range []*int64{pairing.Home, pairing.Away} {
			if participantID == nil {
				continue
			}
			added, err := s.store.AddMatchParticipant(ctx, tx, matchID, *participantID)
			if err != nil {
				return false, nil, fmt.Errorf("failed to seat participant %d: %w", *participantID, err)
			}
			if !added {
				return false, nil, s.mismatch(tournamentID, "participant seated twice", "participant_id", *participantID, "match_id", matchID)
			}
		}
	}

	if _, err := s.store.ResetScores(ctx, tx, tournamentID); err != nil {
		return false, nil, err
	}

	prog := newProgression(tx, s.store, s.logger, s.metrics, tournamentID, s.now().UTC())
	for _, idx := range firstRound {
		if err := prog.settle(ctx, ids[idx]); err != nil {
			return false, nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, nil, fmt.Errorf("failed to commit bracket for tournament %d: %w", tournamentID, err)
	}
	return true, prog, nil
}

// writeTopology inserts every match and then wires the forward pointers through
// the ids the database assigned. It returns the ids by topology index.
func (s *BracketGeneration) writeTopology(ctx context.Context, tx *sqlx.Tx, tournamentID int64, topology *bracket.Topology) ([]int64, error) {
	ids := make([]int64, len(topology.Nodes))
	for i, node := range topology.Nodes {
		match := bracket.Match{
			TournamentID: tournamentID,
			Level:        node.Level,
			Position:     node.Position,
			State:        bracket.MatchNoParty,
		}
		if err := s.store.InsertMatch(ctx, tx, &match); err != nil {
			return nil, fmt.Errorf("failed to insert match at level %d position %d: %w", node.Level, node.Position, err)
		}
		ids[i] = match.ID
	}

	count, err := s.store.CountMatches(ctx, tx, tournamentID)
	if err != nil {
		return nil, err
	}
	if count != len(topology.Nodes) {
		return nil, s.mismatch(tournamentID, "match count differs", "expected", len(topology.Nodes), "persisted", count)
	}

	idOf := func(idx int) *int64 {
		if idx == bracket.NoNode {
			return nil
		}
		return utils.Ptr(ids[idx])
	}

	for i, node := range topology.Nodes {
		rows, err := s.store.LinkMatch(ctx, tx, ids[i], idOf(node.Next), idOf(node.LoserNext))
		if err != nil {
			return nil, fmt.Errorf("failed to link match %d: %w", ids[i], err)
		}
		if rows != 1 {
			return nil, s.mismatch(tournamentID, "match link touched unexpected rows", "match_id", ids[i], "rows", rows)
		}
	}

	return ids, nil
}

func (s *BracketGeneration) mismatch(tournamentID int64, msg string, attrs ...any) error {
	s.logger.Error("bracket persistence mismatch: "+msg, append([]any{"tournament_id", tournamentID}, attrs...)...)
	s.metrics.ConsistencyViolation("persistence_mismatch")
	return fmt.Errorf("tournament %d: %s: %w", tournamentID, msg, ErrPersistenceMismatch)
}
