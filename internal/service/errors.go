package service

import "errors"

var (
	ErrTournamentNotFound  = errors.New("tournament not found")
	ErrMatchNotFound       = errors.New("match not found")
	ErrParticipantNotFound = errors.New("participant not found")

	// Validation
	ErrInvalidTournament     = errors.New("invalid tournament")
	ErrInvalidOutcome        = errors.New("status must be WON or LOST")
	ErrInvalidScore          = errors.New("score must not be negative")
	ErrParticipantNotInMatch = errors.New("participant does not play in this match")

	// Authorization
	ErrUnauthorized = errors.New("authentication required")
	ErrForbidden    = errors.New("operation not allowed for the current user")

	// Lifecycle conflicts
	ErrBracketAlreadyGenerated = errors.New("brackets already generated")
	ErrRegistrationClosed      = errors.New("tournament registration is closed")
	ErrTournamentFull          = errors.New("tournament registration is full")
	ErrAlreadyRegistered       = errors.New("user is already registered for this tournament")
	ErrMatchNotReady           = errors.New("match is still waiting for its participants")
	ErrMatchAlreadyDecided     = errors.New("match result already recorded")

	// Consistency violations. These abort the transaction and point at corrupted state.
	ErrMultipleWinners     = errors.New("match has more than one winner")
	ErrNoWinner            = errors.New("match has no winner")
	ErrPersistenceMismatch = errors.New("persisted bracket does not match the generated topology")
)
