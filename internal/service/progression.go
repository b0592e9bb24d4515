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
	"github.com/AdamBeresnev/tourney/internal/utils"
	"github.com/jmoiron/sqlx"
)

type decision struct {
	MatchID int64
	Winner  *int64
	Kind    string
}

// progression moves participants forward through one tournament's bracket
// inside an open transaction. Outcomes are collected and only reported once
// the caller has committed.
type progression struct {
	tx           *sqlx.Tx
	store        *store.TournamentStore
	logger       *slog.Logger
	metrics      *metrics.Recorder
	tournamentID int64
	now          time.Time

	decided  []decision
	champion *int64
}

func newProgression(tx *sqlx.Tx, st *store.TournamentStore, logger *slog.Logger, m *metrics.Recorder, tournamentID int64, now time.Time) *progression {
	return &progression{
		tx:           tx,
		store:        st,
		logger:       logger,
		metrics:      m,
		tournamentID: tournamentID,
		now:          now,
	}
}

// feedersPlayed reports whether every match sending someone into matchID is over.
func (p *progression) feedersPlayed(ctx context.Context, matchID int64) (bool, error) {
	feeders, err := p.store.GetFeeders(ctx, p.tx, matchID)
	if err != nil {
		return false, fmt.Errorf("failed to load feeders of match %d: %w", matchID, err)
	}
	for _, f := range feeders {
		if !f.IsDecided() {
			return false, nil
		}
	}
	return true, nil
}

// decide closes the match once every participant has a result. It returns
// false while anyone is still NOT_PLAYED.
func (p *progression) decide(ctx context.Context, match *bracket.Match, kind string) (bool, error) {
	entrants, err := p.store.GetMatchEntrantsTx(ctx, p.tx, match.ID)
	if err != nil {
		return false, fmt.Errorf("failed to load participants of match %d: %w", match.ID, err)
	}

	var winners, losers []int64
	for _, e := range entrants {
		switch e.State {
		case bracket.ParticipantNotPlayed:
			return false, nil
		case bracket.ParticipantWon:
			winners = append(winners, e.ParticipantID)
		case bracket.ParticipantLost:
			losers = append(losers, e.ParticipantID)
		}
	}

	switch {
	case len(winners) > 1:
		return false, p.violation(ErrMultipleWinners, match, entrants)
	case len(winners) == 0:
		return false, p.violation(ErrNoWinner, match, entrants)
	}

	if err := p.store.SetMatchState(ctx, p.tx, match.ID, bracket.MatchPlayed); err != nil {
		return false, fmt.Errorf("failed to close match %d: %w", match.ID, err)
	}
	match.State = bracket.MatchPlayed

	winner := winners[0]
	if match.NextMatchID != nil {
		if err := p.seat(ctx, *match.NextMatchID, winner); err != nil {
			return false, err
		}
	} else {
		added, err := p.store.AddWinner(ctx, p.tx, p.tournamentID, winner, p.now)
		if err != nil {
			return false, fmt.Errorf("failed to record champion of tournament %d: %w", p.tournamentID, err)
		}
		if added {
			p.champion = utils.Ptr(winner)
		}
	}

	if match.LoserNextMatchID != nil {
		for _, loser := range losers {
			if err := p.seat(ctx, *match.LoserNextMatchID, loser); err != nil {
				return false, err
			}
		}
	}

	p.decided = append(p.decided, decision{MatchID: match.ID, Winner: utils.Ptr(winner), Kind: kind})
	return true, p.settleTargets(ctx, match)
}

// seat moves a participant into a later match. The target row is locked first so
// that concurrent transactions take their locks in the same level order.
func (p *progression) seat(ctx context.Context, matchID, participantID int64) error {
	if _, err := p.store.LockMatch(ctx, p.tx, matchID); err != nil {
		return fmt.Errorf("failed to lock match %d: %w", matchID, err)
	}
	if _, err := p.store.AddMatchParticipant(ctx, p.tx, matchID, participantID); err != nil {
		return fmt.Errorf("failed to seat participant %d in match %d: %w", participantID, matchID, err)
	}
	return nil
}

func (p *progression) settleTargets(ctx context.Context, match *bracket.Match) error {
	for _, target := range []*int64{match.NextMatchID, match.LoserNextMatchID} {
		if target == nil {
			continue
		}
		if err := p.settle(ctx, *target); err != nil {
			return err
		}
	}
	return nil
}

// settle closes a match nobody else can reach any more: all of its feeders are
// over and it holds at most one participant. A lone participant wins by bye,
// an empty match is closed without a result.
func (p *progression) settle(ctx context.Context, matchID int64) error {
	match, err := p.store.LockMatch(ctx, p.tx, matchID)
	if err != nil {
		return fmt.Errorf("failed to lock match %d: %w", matchID, err)
	}
	if match.IsDecided() {
		return nil
	}

	ready, err := p.feedersPlayed(ctx, matchID)
	if err != nil || !ready {
		return err
	}

	entrants, err := p.store.GetMatchEntrantsTx(ctx, p.tx, matchID)
	if err != nil {
		return fmt.Errorf("failed to load participants of match %d: %w", matchID, err)
	}

	switch len(entrants) {
	case 0:
		if err := p.store.SetMatchState(ctx, p.tx, matchID, bracket.MatchPlayed); err != nil {
			return fmt.Errorf("failed to close empty match %d: %w", matchID, err)
		}
		match.State = bracket.MatchPlayed
		p.decided = append(p.decided, decision{MatchID: matchID, Kind: metrics.DecidedEmpty})
		return p.settleTargets(ctx, match)
	case 1:
		lone := entrants[0].MatchParticipant
		lone.State = bracket.ParticipantWon
		if err := p.store.UpdateMatchParticipant(ctx, p.tx, &lone); err != nil {
			return fmt.Errorf("failed to award bye in match %d: %w", matchID, err)
		}
		_, err := p.decide(ctx, match, metrics.DecidedBye)
		return err
	default:
		return nil
	}
}

func (p *progression) violation(err error, match *bracket.Match, entrants []store.MatchEntrant) error {
	attrs := []any{
		"tournament_id", p.tournamentID,
		"match_id", match.ID,
		"level", match.Level,
		"position", match.Position,
	}
	for _, e := range entrants {
		attrs = append(attrs, slog.Group(fmt.Sprintf("participant_%d", e.ParticipantID),
			"state", e.State,
			"score", utils.ValueOr(e.Score, 0),
		))
	}
	p.logger.Error("bracket consistency violation: "+err.Error(), attrs...)

	kind := "no_winner"
	if errors.Is(err, ErrMultipleWinners) {
		kind = "multiple_winners"
	}
	p.metrics.ConsistencyViolation(kind)

	return fmt.Errorf("match %d: %w", match.ID, err)
}

// report records metrics and publishes events for a committed progression.
func (p *progression) report(ctx context.Context, publisher events.Publisher) {
	counts := map[string]int{}
	for _, d := range p.decided {
		counts[d.Kind]++
	}
	for kind, n := range counts {
		p.metrics.MatchesDecided(kind, n)
	}

	for _, d := range p.decided {
		if d.Winner == nil {
			continue
		}
		p.publish(ctx, publisher, events.Event{
			Type:          events.MatchDecided,
			TournamentID:  p.tournamentID,
			MatchID:       utils.Ptr(d.MatchID),
			ParticipantID: d.Winner,
			At:            p.now,
		})
	}

	if p.champion != nil {
		p.metrics.Champion()
		p.logger.Info("tournament finished", "tournament_id", p.tournamentID, "champion", *p.champion)
		p.publish(ctx, publisher, events.Event{
			Type:          events.TournamentChampion,
			TournamentID:  p.tournamentID,
			ParticipantID: p.champion,
			At:            p.now,
		})
	}
}

func (p *progression) publish(ctx context.Context, publisher events.Publisher, event events.Event) {
	if err := publisher.Publish(ctx, event); err != nil {
		p.logger.Warn("failed to publish event", "type", event.Type, "tournament_id", event.TournamentID, "error", err)
	}
}
