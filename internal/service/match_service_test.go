package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/AdamBeresnev/tourney/internal/bracket"
	"github.com/AdamBeresnev/tourney/internal/events"
	"github.com/AdamBeresnev/tourney/internal/store"
	users "github.com/AdamBeresnev/tourney/internal/user"
	"github.com/AdamBeresnev/tourney/internal/utils"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupFourPlayers generates a double elimination bracket where the first round
// is p0 vs p3 and p1 vs p2.
func setupFourPlayers(t *testing.T, env *testEnv) (*bracket.Tournament, []bracket.Participant) {
	t.Helper()

	tournament, p := env.createTournament(t, bracket.DoubleElimination, nil, nil, nil, nil)
	_, err := env.generation.GenerateBracket(context.Background(), tournament.ID)
	require.NoError(t, err)
	return tournament, p
}

func TestReportResultDecidesMatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tournament, p := setupFourPlayers(t, env)

	first, _ := env.matchAt(t, tournament.ID, 1, 0)

	detail, err := env.matches.ReportResult(ctx, player(0), ReportInput{
		MatchID:       first.ID,
		ParticipantID: p[0].ID,
		Outcome:       bracket.ParticipantWon,
	})
	require.NoError(t, err)
	assert.Equal(t, bracket.MatchNoParty, detail.Match.State)

	detail, err = env.matches.ReportResult(ctx, player(3), ReportInput{
		MatchID:       first.ID,
		ParticipantID: p[3].ID,
		Outcome:       bracket.ParticipantLost,
	})
	require.NoError(t, err)
	assert.Equal(t, bracket.MatchPlayed, detail.Match.State)

	_, winnersFinal := env.matchAt(t, tournament.ID, 2, 0)
	assert.Equal(t, []int64{p[0].ID}, entrantIDs(winnersFinal))

	_, losersFirst := env.matchAt(t, tournament.ID, 101, 0)
	assert.Equal(t, []int64{p[3].ID}, entrantIDs(losersFirst))

	decided := env.events.OfType(events.MatchDecided)
	require.Len(t, decided, 1)
	assert.Equal(t, first.ID, *decided[0].MatchID)
	assert.Equal(t, p[0].ID, *decided[0].ParticipantID)
}

func TestReportResultRejectsInvalidReports(t *testing.T) {
	env := newTestEnv(t)
	tournament, p := setupFourPlayers(t, env)
	first, _ := env.matchAt(t, tournament.ID, 1, 0)

	testCases := []struct {
		name        string
		actor       *users.User
		input       ReportInput
		expectedErr error
	}{
		{
			name:        "No actor",
			actor:       nil,
			input:       ReportInput{MatchID: first.ID, ParticipantID: p[0].ID, Outcome: bracket.ParticipantWon},
			expectedErr: ErrUnauthorized,
		},
		{
			name:        "Stranger",
			actor:       &users.User{ID: "stranger"},
			input:       ReportInput{MatchID: first.ID, ParticipantID: p[0].ID, Outcome: bracket.ParticipantWon},
			expectedErr: ErrUnauthorized,
		},
		{
			name:        "Player from another match",
			actor:       player(1),
			input:       ReportInput{MatchID: first.ID, ParticipantID: p[0].ID, Outcome: bracket.ParticipantWon},
			expectedErr: ErrUnauthorized,
		},
		{
			name:        "Outcome is not a result",
			actor:       organizer,
			input:       ReportInput{MatchID: first.ID, ParticipantID: p[0].ID, Outcome: bracket.ParticipantNotPlayed},
			expectedErr: ErrInvalidOutcome,
		},
		{
			name:        "Negative score",
			actor:       organizer,
			input:       ReportInput{MatchID: first.ID, ParticipantID: p[0].ID, Outcome: bracket.ParticipantWon, Score: utils.Ptr(int64(-1))},
			expectedErr: ErrInvalidScore,
		},
		{
			name:        "Participant plays elsewhere",
			actor:       organizer,
			input:       ReportInput{MatchID: first.ID, ParticipantID: p[1].ID, Outcome: bracket.ParticipantWon},
			expectedErr: ErrParticipantNotInMatch,
		},
		{
			name:        "Unknown match",
			actor:       organizer,
			input:       ReportInput{MatchID: 9999, ParticipantID: p[0].ID, Outcome: bracket.ParticipantWon},
			expectedErr: ErrMatchNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.matches.ReportResult(context.Background(), tc.actor, tc.input)
			assert.ErrorIs(t, err, tc.expectedErr)
		})
	}

	_, entrants := env.matchAt(t, tournament.ID, 1, 0)
	for _, e := range entrants {
		assert.Equal(t, bracket.ParticipantNotPlayed, e.State)
	}
}

func TestReportResultWaitsForFeeders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tournament, p := env.createTournament(t, bracket.DoubleElimination,
		utils.Ptr(int64(50)), utils.Ptr(int64(10)), utils.Ptr(int64(30)))
	_, err := env.generation.GenerateBracket(ctx, tournament.ID)
	require.NoError(t, err)

	// p0 got a bye into the winners final, but the other semi final is not played yet
	final, _ := env.matchAt(t, tournament.ID, 2, 0)
	_, err = env.matches.ReportResult(ctx, organizer, ReportInput{
		MatchID:       final.ID,
		ParticipantID: p[0].ID,
		Outcome:       bracket.ParticipantWon,
	})
	assert.ErrorIs(t, err, ErrMatchNotReady)
}

func TestReportResultOnDecidedMatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tournament, p := setupFourPlayers(t, env)
	first, _ := env.matchAt(t, tournament.ID, 1, 0)

	_, err := env.matches.ReportResult(ctx, organizer, ReportInput{MatchID: first.ID, ParticipantID: p[0].ID, Outcome: bracket.ParticipantWon, Score: utils.Ptr(int64(2))})
	require.NoError(t, err)
	_, err = env.matches.ReportResult(ctx, organizer, ReportInput{MatchID: first.ID, ParticipantID: p[3].ID, Outcome: bracket.ParticipantLost})
	require.NoError(t, err)

	// Repeating the same report changes nothing
	detail, err := env.matches.ReportResult(ctx, organizer, ReportInput{MatchID: first.ID, ParticipantID: p[0].ID, Outcome: bracket.ParticipantWon, Score: utils.Ptr(int64(2))})
	require.NoError(t, err)
	assert.Equal(t, bracket.MatchPlayed, detail.Match.State)

	_, err = env.matches.ReportResult(ctx, organizer, ReportInput{MatchID: first.ID, ParticipantID: p[0].ID, Outcome: bracket.ParticipantLost})
	assert.ErrorIs(t, err, ErrMatchAlreadyDecided)

	_, err = env.matches.ReportResult(ctx, organizer, ReportInput{MatchID: first.ID, ParticipantID: p[0].ID, Outcome: bracket.ParticipantWon, Score: utils.Ptr(int64(9))})
	assert.ErrorIs(t, err, ErrMatchAlreadyDecided)

	_, winnersFinal := env.matchAt(t, tournament.ID, 2, 0)
	assert.Equal(t, []int64{p[0].ID}, entrantIDs(winnersFinal))
	assert.Len(t, env.events.OfType(events.MatchDecided), 1)
}

func TestReportResultConsistencyViolations(t *testing.T) {
	testCases := []struct {
		name        string
		first       bracket.ParticipantState
		second      bracket.ParticipantState
		expectedErr error
		metric      string
	}{
		{
			name:        "Both won",
			first:       bracket.ParticipantWon,
			second:      bracket.ParticipantWon,
			expectedErr: ErrMultipleWinners,
			metric:      `tourney_consistency_violations_total{kind="multiple_winners"} 1`,
		},
		{
			name:        "Both lost",
			first:       bracket.ParticipantLost,
			second:      bracket.ParticipantLost,
			expectedErr: ErrNoWinner,
			metric:      `tourney_consistency_violations_total{kind="no_winner"} 1`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			tournament, p := setupFourPlayers(t, env)
			first, _ := env.matchAt(t, tournament.ID, 1, 0)

			_, err := env.matches.ReportResult(ctx, organizer, ReportInput{MatchID: first.ID, ParticipantID: p[0].ID, Outcome: tc.first})
			require.NoError(t, err)

			_, err = env.matches.ReportResult(ctx, organizer, ReportInput{MatchID: first.ID, ParticipantID: p[3].ID, Outcome: tc.second})
			assert.ErrorIs(t, err, tc.expectedErr)

			match, entrants := env.matchAt(t, tournament.ID, 1, 0)
			assert.Equal(t, bracket.MatchNoParty, match.State)
			for _, e := range entrants {
				if e.ParticipantID == p[3].ID {
					assert.Equal(t, bracket.ParticipantNotPlayed, e.State, "rejected report must be rolled back")
				}
			}

			_, winnersFinal := env.matchAt(t, tournament.ID, 2, 0)
			assert.Empty(t, winnersFinal)

			rec := httptest.NewRecorder()
			env.metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			assert.Contains(t, rec.Body.String(), tc.metric)
		})
	}
}

func TestReportResultAccumulatesScore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tournament, p := setupFourPlayers(t, env)
	first, _ := env.matchAt(t, tournament.ID, 1, 0)

	scoreOf := func(id int64) int64 {
		participants, err := env.store.GetParticipants(ctx, tournament.ID)
		require.NoError(t, err)
		for _, participant := range participants {
			if participant.ID == id {
				return utils.ValueOr(participant.Score, 0)
			}
		}
		t.Fatalf("participant %d not found", id)
		return 0
	}

	_, err := env.matches.ReportResult(ctx, organizer, ReportInput{MatchID: first.ID, ParticipantID: p[0].ID, Outcome: bracket.ParticipantWon, Score: utils.Ptr(int64(3))})
	require.NoError(t, err)
	assert.Equal(t, int64(3), scoreOf(p[0].ID))

	// A correction before the match is decided replaces the earlier score
	_, err = env.matches.ReportResult(ctx, organizer, ReportInput{MatchID: first.ID, ParticipantID: p[0].ID, Outcome: bracket.ParticipantWon, Score: utils.Ptr(int64(5))})
	require.NoError(t, err)
	assert.Equal(t, int64(5), scoreOf(p[0].ID))

	// Without a score the previous one is kept
	_, err = env.matches.ReportResult(ctx, organizer, ReportInput{MatchID: first.ID, ParticipantID: p[0].ID, Outcome: bracket.ParticipantWon})
	require.NoError(t, err)
	assert.Equal(t, int64(5), scoreOf(p[0].ID))

	_, err = env.matches.ReportResult(ctx, organizer, ReportInput{MatchID: first.ID, ParticipantID: p[3].ID, Outcome: bracket.ParticipantLost, Score: utils.Ptr(int64(1))})
	require.NoError(t, err)
	assert.Equal(t, int64(1), scoreOf(p[3].ID))

	// Scores from later matches add up
	_, err = env.matches.ReportResult(ctx, organizer, ReportInput{MatchID: first.ID, ParticipantID: p[3].ID, Outcome: bracket.ParticipantLost, Score: utils.Ptr(int64(1))})
	require.NoError(t, err)
	second, _ := env.matchAt(t, tournament.ID, 1, 1)
	_, err = env.matches.ReportResult(ctx, organizer, ReportInput{MatchID: second.ID, ParticipantID: p[1].ID, Outcome: bracket.ParticipantWon, Score: utils.Ptr(int64(4))})
	require.NoError(t, err)
	_, err = env.matches.ReportResult(ctx, organizer, ReportInput{MatchID: second.ID, ParticipantID: p[2].ID, Outcome: bracket.ParticipantLost})
	require.NoError(t, err)

	final, _ := env.matchAt(t, tournament.ID, 2, 0)
	_, err = env.matches.ReportResult(ctx, organizer, ReportInput{MatchID: final.ID, ParticipantID: p[0].ID, Outcome: bracket.ParticipantWon, Score: utils.Ptr(int64(2))})
	require.NoError(t, err)
	assert.Equal(t, int64(7), scoreOf(p[0].ID))
}

func TestReportResultConcurrentReports(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tournament, p := setupFourPlayers(t, env)
	first, _ := env.matchAt(t, tournament.ID, 1, 0)

	reports := []ReportInput{
		{MatchID: first.ID, ParticipantID: p[0].ID, Outcome: bracket.ParticipantWon},
		{MatchID: first.ID, ParticipantID: p[3].ID, Outcome: bracket.ParticipantLost},
	}

	var wg sync.WaitGroup
	errs := make([]error, len(reports))
	for i, in := range reports {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = env.matches.ReportResult(ctx, organizer, in)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	match, _ := env.matchAt(t, tournament.ID, 1, 0)
	assert.Equal(t, bracket.MatchPlayed, match.State)

	_, winnersFinal := env.matchAt(t, tournament.ID, 2, 0)
	assert.Equal(t, []int64{p[0].ID}, entrantIDs(winnersFinal))
	assert.Len(t, env.events.OfType(events.MatchDecided), 1)
}

// playOut reports random results until no playable match is left.
func playOut(t *testing.T, env *testEnv, faker *gofakeit.Faker, tournamentID int64) {
	t.Helper()
	ctx := context.Background()

	for played := 0; ; played++ {
		require.Less(t, played, 10000, "bracket never finished")

		matches, err := env.store.GetMatches(ctx, tournamentID)
		require.NoError(t, err)

		var next *bracket.Match
		var seats []store.MatchEntrant
		for i := range matches {
			if matches[i].IsDecided() {
				continue
			}
			seats, err = env.store.GetMatchEntrants(ctx, matches[i].ID)
			require.NoError(t, err)
			if len(seats) == 2 {
				next = &matches[i]
				break
			}
		}
		if next == nil {
			return
		}

		w := faker.Number(0, 1)
		_, err = env.matches.ReportResult(ctx, organizer, ReportInput{
			MatchID:       next.ID,
			ParticipantID: seats[w].ParticipantID,
			Outcome:       bracket.ParticipantWon,
			Score:         utils.Ptr(int64(faker.Number(1, 10))),
		})
		require.NoError(t, err)
		_, err = env.matches.ReportResult(ctx, organizer, ReportInput{
			MatchID:       next.ID,
			ParticipantID: seats[1-w].ParticipantID,
			Outcome:       bracket.ParticipantLost,
			Score:         utils.Ptr(int64(faker.Number(0, 10))),
		})
		require.NoError(t, err)
	}
}

func TestPlayThroughProducesOneChampion(t *testing.T) {
	testCases := []struct {
		format       bracket.Format
		participants int
	}{
		{format: bracket.SingleElimination, participants: 2},
		{format: bracket.SingleElimination, participants: 5},
		{format: bracket.SingleElimination, participants: 8},
		{format: bracket.DoubleElimination, participants: 2},
		{format: bracket.DoubleElimination, participants: 3},
		{format: bracket.DoubleElimination, participants: 4},
		{format: bracket.DoubleElimination, participants: 6},
		{format: bracket.DoubleElimination, participants: 9},
		{format: bracket.DoubleElimination, participants: 16},
	}

	faker := gofakeit.New(7)

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%s/%d", tc.format, tc.participants), func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()

			scores := make([]*int64, tc.participants)
			for i := range scores {
				scores[i] = utils.Ptr(int64(faker.Number(0, 100)))
			}
			tournament, _ := env.createTournament(t, tc.format, scores...)

			generated, err := env.generation.GenerateBracket(ctx, tournament.ID)
			require.NoError(t, err)
			require.True(t, generated)

			playOut(t, env, faker, tournament.ID)

			matches, err := env.store.GetMatches(ctx, tournament.ID)
			require.NoError(t, err)
			for _, m := range matches {
				assert.True(t, m.IsDecided(), "match %d at level %d was never closed", m.ID, m.Level)
			}

			winners, err := env.tournaments.Winners(ctx, tournament.ID)
			require.NoError(t, err)
			require.Len(t, winners, 1)
			champion := winners[0].ParticipantID

			champions := env.events.OfType(events.TournamentChampion)
			require.Len(t, champions, 1)
			assert.Equal(t, champion, *champions[0].ParticipantID)

			entrants, err := env.store.GetTournamentEntrants(ctx, tournament.ID)
			require.NoError(t, err)
			losses := map[int64]int{}
			for _, e := range entrants {
				if e.State == bracket.ParticipantLost {
					losses[e.ParticipantID]++
				}
			}

			// In double elimination only the grand final loser can leave with a single loss
			singleLossRunnersUp := 0
			participants, err := env.store.GetParticipants(ctx, tournament.ID)
			require.NoError(t, err)
			for _, participant := range participants {
				n := losses[participant.ID]
				if tc.format == bracket.SingleElimination || tc.participants == 2 {
					if participant.ID == champion {
						assert.Zero(t, n)
					} else {
						assert.Equal(t, 1, n)
					}
					continue
				}
				if participant.ID == champion {
					assert.LessOrEqual(t, n, 1)
					continue
				}
				assert.GreaterOrEqual(t, n, 1)
				assert.LessOrEqual(t, n, 2)
				if n == 1 {
					singleLossRunnersUp++
				}
			}
			assert.LessOrEqual(t, singleLossRunnersUp, 1)

			view, err := env.tournaments.Bracket(ctx, tournament.ID)
			require.NoError(t, err)
			require.NotNil(t, view.Champion)
			assert.Equal(t, champion, *view.Champion)
		})
	}
}
