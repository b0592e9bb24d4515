package bracket

import (
	"time"
)

type Format string

const (
	SingleElimination Format = "single"
	DoubleElimination Format = "double"
)

func (f Format) Valid() bool {
	return f == SingleElimination || f == DoubleElimination
}

type Tournament struct {
	ID                  int64      `db:"id" json:"id"`
	OrganizerID         string     `db:"organizer_id" json:"organizer_id"`
	Name                string     `db:"name" json:"name"`
	Format              Format     `db:"bracket_type" json:"bracket_type"`
	MaxParticipants     int        `db:"max_participants" json:"max_participants"`
	ApplicationDeadline *time.Time `db:"application_deadline" json:"application_deadline,omitempty"`
	BracketsGenerated   bool       `db:"brackets_generated" json:"brackets_generated"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
}

// Participant is a registration for one tournament. Score is the seeding input
// until the bracket exists and the running gameplay score afterwards.
type Participant struct {
	ID              int64     `db:"id" json:"id"`
	TournamentID    int64     `db:"tournament_id" json:"tournament_id"`
	UserID          string    `db:"user_id" json:"user_id"`
	RegistrationRef string    `db:"registration_ref" json:"registration_ref"`
	Score           *int64    `db:"score" json:"score"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// SeedScore treats a missing score as the lowest seed.
func (p Participant) SeedScore() int64 {
	if p.Score == nil {
		return 0
	}
	return *p.Score
}

type Winner struct {
	TournamentID  int64     `db:"tournament_id" json:"tournament_id"`
	ParticipantID int64     `db:"participant_id" json:"participant_id"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
