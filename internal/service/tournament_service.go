package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/AdamBeresnev/tourney/internal/bracket"
	"github.com/AdamBeresnev/tourney/internal/store"
	users "github.com/AdamBeresnev/tourney/internal/user"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"
)

type TournamentService struct {
	db     *sqlx.DB
	store  *store.TournamentStore
	logger *slog.Logger
	now    func() time.Time
}

func NewTournamentService(db *sqlx.DB, store *store.TournamentStore, logger *slog.Logger) *TournamentService {
	return &TournamentService{db: db, store: store, logger: logger, now: time.Now}
}

type TournamentInput struct {
	Name                string         `json:"name"`
	Format              bracket.Format `json:"bracket_type"`
	MaxParticipants     int            `json:"max_participants"`
	ApplicationDeadline *time.Time     `json:"application_deadline"`
}

func (s *TournamentService) CreateTournament(ctx context.Context, actor *users.User, in TournamentInput) (*bracket.Tournament, error) {
	if actor == nil || actor.ID == "" {
		return nil, ErrUnauthorized
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidTournament)
	}
	format := in.Format
	if format == "" {
		format = bracket.DoubleElimination
	}
	if !format.Valid() {
		return nil, fmt.Errorf("%w: unknown bracket type %q", ErrInvalidTournament, in.Format)
	}
	if in.MaxParticipants < 0 || in.MaxParticipants > bracket.MaxBracketSize {
		return nil, fmt.Errorf("%w: max participants must be between 0 and %d", ErrInvalidTournament, bracket.MaxBracketSize)
	}

	tournament := &bracket.Tournament{
		OrganizerID:     actor.ID,
		Name:            name,
		Format:          format,
		MaxParticipants: in.MaxParticipants,
		CreatedAt:       s.now().UTC(),
	}
	if in.ApplicationDeadline != nil {
		deadline := in.ApplicationDeadline.UTC()
		tournament.ApplicationDeadline = &deadline
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.store.CreateTournament(ctx, tx, tournament); err != nil {
		return nil, fmt.Errorf("failed to create tournament: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.logger.Info("tournament created", "tournament_id", tournament.ID, "organizer_id", tournament.OrganizerID, "format", tournament.Format)
	return tournament, nil
}

func (s *TournamentService) GetTournament(ctx context.Context, id int64) (*bracket.Tournament, error) {
	tournament, err := s.store.GetTournament(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTournamentNotFound
	}
	return tournament, err
}

func (s *TournamentService) GetParticipants(ctx context.Context, tournamentID int64) ([]bracket.Participant, error) {
	if _, err := s.GetTournament(ctx, tournamentID); err != nil {
		return nil, err
	}
	return s.store.GetParticipants(ctx, tournamentID)
}

// SetSeedingScore lets the organizer adjust the score a participant is seeded by.
// Scores are reset once the bracket exists, so this is closed after generation.
func (s *TournamentService) SetSeedingScore(ctx context.Context, actor *users.User, tournamentID, participantID int64, score *int64) (*bracket.Participant, error) {
	if actor == nil {
		return nil, ErrUnauthorized
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	tournament, err := s.store.LockTournament(ctx, tx, tournamentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTournamentNotFound
	}
	if err != nil {
		return nil, err
	}
	if !actor.Is(tournament.OrganizerID) {
		return nil, ErrForbidden
	}
	if tournament.BracketsGenerated {
		return nil, ErrBracketAlreadyGenerated
	}

	participant, err := s.store.GetParticipant(ctx, tx, participantID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && participant.TournamentID != tournamentID) {
		return nil, ErrParticipantNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := s.store.SetParticipantScore(ctx, tx, participantID, score); err != nil {
		return nil, err
	}
	participant.Score = score

	return participant, tx.Commit()
}

func (s *TournamentService) Winners(ctx context.Context, tournamentID int64) ([]bracket.Winner, error) {
	if _, err := s.GetTournament(ctx, tournamentID); err != nil {
		return nil, err
	}
	return s.store.GetWinners(ctx, tournamentID)
}

type BracketMatch struct {
	bracket.Match
	Participants []store.MatchEntrant `json:"participants"`
}

type BracketRound struct {
	Round   int            `json:"round"`
	Matches []BracketMatch `json:"matches"`
}

type BracketView struct {
	Tournament   *bracket.Tournament   `json:"tournament"`
	Participants []bracket.Participant `json:"participants"`
	Winners      []BracketRound        `json:"winners"`
	Losers       []BracketRound        `json:"losers"`
	Final        []BracketRound        `json:"final"`
	Champion     *int64                `json:"champion,omitempty"`
}

// Bracket loads the whole bracket of a tournament grouped by side and round.
func (s *TournamentService) Bracket(ctx context.Context, tournamentID int64) (*BracketView, error) {
	var (
		tournament   *bracket.Tournament
		participants []bracket.Participant
		matches      []bracket.Match
		entrants     []store.MatchEntrant
		winners      []bracket.Winner
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		tournament, err = s.GetTournament(gctx, tournamentID)
		return err
	})
	g.Go(func() (err error) {
		participants, err = s.store.GetParticipants(gctx, tournamentID)
		return err
	})
	g.Go(func() (err error) {
		matches, err = s.store.GetMatches(gctx, tournamentID)
		return err
	})
	g.Go(func() (err error) {
		entrants, err = s.store.GetTournamentEntrants(gctx, tournamentID)
		return err
	})
	g.Go(func() (err error) {
		winners, err = s.store.GetWinners(gctx, tournamentID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	view := groupBracket(matches, entrants)
	view.Tournament = tournament
	view.Participants = participants
	if len(winners) > 0 {
		view.Champion = &winners[0].ParticipantID
	}
	return view, nil
}

func groupBracket(matches []bracket.Match, entrants []store.MatchEntrant) *BracketView {
	seats := make(map[int64][]store.MatchEntrant)
	for _, e := range entrants {
		seats[e.MatchID] = append(seats[e.MatchID], e)
	}

	sides := map[bracket.Side]map[int][]BracketMatch{
		bracket.WinnersSide: {},
		bracket.LosersSide:  {},
		bracket.FinalsSide:  {},
	}
	for _, m := range matches {
		participants := seats[m.ID]
		if participants == nil {
			participants = []store.MatchEntrant{}
		}
		rounds := sides[m.Side()]
		rounds[m.Round()] = append(rounds[m.Round()], BracketMatch{Match: m, Participants: participants})
	}

	return &BracketView{
		Winners: sortRounds(sides[bracket.WinnersSide]),
		Losers:  sortRounds(sides[bracket.LosersSide]),
		Final:   sortRounds(sides[bracket.FinalsSide]),
	}
}

func sortRounds(rounds map[int][]BracketMatch) []BracketRound {
	roundNums := make([]int, 0, len(rounds))
	for r := range rounds {
		roundNums = append(roundNums, r)
	}
	sort.Ints(roundNums)

	out := make([]BracketRound, 0, len(roundNums))
	for _, r := range roundNums {
		matches := rounds[r]
		sort.Slice(matches, func(i, j int) bool {
			return matches[i].Position < matches[j].Position
		})
		out = append(out, BracketRound{Round: r, Matches: matches})
	}
	return out
}
