package store

import (
	"context"
	"testing"
	"time"

	"github.com/AdamBeresnev/tourney/internal/bracket"
	"github.com/AdamBeresnev/tourney/migrations"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOrganizerID = "00000000-0000-0000-0000-000000000001"

// setupTestDB creates an in-memory SQLite database and applies migrations
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	database, err := sqlx.Connect("sqlite3", "file::memory:")
	require.NoError(t, err, "Failed to connect to in-memory DB")
	database.SetMaxOpenConns(1)

	_, err = database.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	driver, err := sqlite3.WithInstance(database.DB, &sqlite3.Config{})
	require.NoError(t, err, "Failed to create migrate driver instance")

	source, err := iofs.New(migrations.FS, "sqlite")
	require.NoError(t, err, "Failed to open embedded migrations")

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	require.NoError(t, err, "Failed to create migrate instance")

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		require.NoError(t, err, "Failed to apply migrations")
	}

	return database
}

func createTestTournament(t *testing.T, db *sqlx.DB, store *TournamentStore, deadline *time.Time) *bracket.Tournament {
	t.Helper()

	tournament := &bracket.Tournament{
		OrganizerID:         testOrganizerID,
		Name:                "Test Tournament",
		Format:              bracket.DoubleElimination,
		ApplicationDeadline: deadline,
		CreatedAt:           time.Now().UTC(),
	}

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	defer tx.Rollback()

	require.NoError(t, store.CreateTournament(context.Background(), tx, tournament))
	require.NoError(t, tx.Commit())

	return tournament
}

func registerTestParticipants(t *testing.T, db *sqlx.DB, store *TournamentStore, tournamentID int64, count int) []bracket.Participant {
	t.Helper()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	defer tx.Rollback()

	participants := make([]bracket.Participant, 0, count)
	for i := 0; i < count; i++ {
		p := bracket.Participant{
			TournamentID:    tournamentID,
			UserID:          uuid.NewString(),
			RegistrationRef: uuid.NewString(),
			CreatedAt:       time.Now().UTC(),
		}
		require.NoError(t, store.CreateParticipant(context.Background(), tx, &p))
		participants = append(participants, p)
	}
	require.NoError(t, tx.Commit())

	return participants
}

func TestCreateTournament(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := NewTournamentStore(db)
	deadline := time.Now().UTC().Add(time.Hour).Truncate(time.Second)

	tournament := createTestTournament(t, db, store, &deadline)
	assert.NotZero(t, tournament.ID)

	fetched, err := store.GetTournament(context.Background(), tournament.ID)
	require.NoError(t, err)

	assert.Equal(t, tournament.ID, fetched.ID)
	assert.Equal(t, testOrganizerID, fetched.OrganizerID)
	assert.Equal(t, bracket.DoubleElimination, fetched.Format)
	assert.False(t, fetched.BracketsGenerated)
	require.NotNil(t, fetched.ApplicationDeadline)
	assert.True(t, deadline.Equal(*fetched.ApplicationDeadline))
}

func TestGetTournamentNotFound(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	_, err := NewTournamentStore(db).GetTournament(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateParticipantRejectsDuplicates(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := NewTournamentStore(db)
	tournament := createTestTournament(t, db, store, nil)
	existing := registerTestParticipants(t, db, store, tournament.ID, 1)[0]

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	defer tx.Rollback()

	duplicate := bracket.Participant{
		TournamentID:    tournament.ID,
		UserID:          existing.UserID,
		RegistrationRef: uuid.NewString(),
		CreatedAt:       time.Now().UTC(),
	}
	err = store.CreateParticipant(context.Background(), tx, &duplicate)
	assert.ErrorIs(t, err, ErrConflict)

	count, err := store.CountParticipants(context.Background(), tx, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestListEligibleForGeneration(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := NewTournamentStore(db)
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	eligible := createTestTournament(t, db, store, &past)
	registerTestParticipants(t, db, store, eligible.ID, 3)

	notYetClosed := createTestTournament(t, db, store, &future)
	registerTestParticipants(t, db, store, notYetClosed.ID, 3)

	tooSmall := createTestTournament(t, db, store, &past)
	registerTestParticipants(t, db, store, tooSmall.ID, 1)

	noDeadline := createTestTournament(t, db, store, nil)
	registerTestParticipants(t, db, store, noDeadline.ID, 4)

	alreadyGenerated := createTestTournament(t, db, store, &past)
	registerTestParticipants(t, db, store, alreadyGenerated.ID, 2)
	_, err := db.Exec("UPDATE tournaments SET brackets_generated = TRUE WHERE id = ?", alreadyGenerated.ID)
	require.NoError(t, err)

	ids, err := store.ListEligibleForGeneration(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, []int64{eligible.ID}, ids)

	ids, err = store.ListEligibleForGeneration(context.Background(), future.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, []int64{eligible.ID, notYetClosed.ID}, ids)
}

func TestClaimBracketGenerationOnlyOnce(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := NewTournamentStore(db)
	tournament := createTestTournament(t, db, store, nil)
	ctx := context.Background()

	for i, expected := range []bool{true, false} {
		tx, err := db.BeginTxx(ctx, nil)
		require.NoError(t, err)

		claimed, err := store.ClaimBracketGeneration(ctx, tx, tournament.ID)
		require.NoError(t, err)
		assert.Equal(t, expected, claimed, "attempt %d", i+1)
		require.NoError(t, tx.Commit())
	}
}

func TestParticipantScores(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := NewTournamentStore(db)
	ctx := context.Background()
	tournament := createTestTournament(t, db, store, nil)
	participants := registerTestParticipants(t, db, store, tournament.ID, 2)

	tx, err := db.BeginTxx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()

	// NULL scores accumulate from zero
	require.NoError(t, store.AddParticipantScore(ctx, tx, participants[0].ID, 7))
	require.NoError(t, store.AddParticipantScore(ctx, tx, participants[0].ID, -2))

	score := int64(30)
	require.NoError(t, store.SetParticipantScore(ctx, tx, participants[1].ID, &score))

	fetched, err := store.GetParticipantsTx(ctx, tx, tournament.ID)
	require.NoError(t, err)
	require.Len(t, fetched, 2)
	assert.Equal(t, int64(5), *fetched[0].Score)
	assert.Equal(t, int64(30), *fetched[1].Score)

	rows, err := store.ResetScores(ctx, tx, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rows)

	fetched, err = store.GetParticipantsTx(ctx, tx, tournament.ID)
	require.NoError(t, err)
	for _, p := range fetched {
		assert.Equal(t, int64(0), *p.Score)
	}

	assert.ErrorIs(t, store.AddParticipantScore(ctx, tx, 999, 1), ErrNotFound)
}

func TestAddWinnerKeepsFirstChampion(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := NewTournamentStore(db)
	ctx := context.Background()
	tournament := createTestTournament(t, db, store, nil)
	participants := registerTestParticipants(t, db, store, tournament.ID, 2)

	tx, err := db.BeginTxx(ctx, nil)
	require.NoError(t, err)

	added, err := store.AddWinner(ctx, tx, tournament.ID, participants[0].ID, time.Now())
	require.NoError(t, err)
	assert.True(t, added)

	added, err = store.AddWinner(ctx, tx, tournament.ID, participants[1].ID, time.Now())
	require.NoError(t, err)
	assert.False(t, added)
	require.NoError(t, tx.Commit())

	winners, err := store.GetWinners(ctx, tournament.ID)
	require.NoError(t, err)
	require.Len(t, winners, 1)
	assert.Equal(t, participants[0].ID, winners[0].ParticipantID)
}
