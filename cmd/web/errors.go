package main

import (
	"errors"
	"net/http"

	"github.com/AdamBeresnev/tourney/internal/bracket"
	"github.com/AdamBeresnev/tourney/internal/httputil"
	"github.com/AdamBeresnev/tourney/internal/service"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrTournamentNotFound),
		errors.Is(err, service.ErrMatchNotFound),
		errors.Is(err, service.ErrParticipantNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidTournament),
		errors.Is(err, service.ErrInvalidOutcome),
		errors.Is(err, service.ErrInvalidScore),
		errors.Is(err, service.ErrParticipantNotInMatch),
		errors.Is(err, service.ErrBracketAlreadyGenerated),
		errors.Is(err, bracket.ErrInsufficientParticipants):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrRegistrationClosed),
		errors.Is(err, service.ErrTournamentFull),
		errors.Is(err, service.ErrAlreadyRegistered),
		errors.Is(err, service.ErrMatchNotReady),
		errors.Is(err, service.ErrMatchAlreadyDecided):
		return http.StatusConflict
	default:
		// ErrMultipleWinners and ErrNoWinner mean the stored bracket is inconsistent
		return http.StatusInternalServerError
	}
}

// writeServiceError maps a service error to a status and an {"error": ...} body.
func writeServiceError(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusInternalServerError:
		httputil.InternalServerError(w, msg, err)
	case http.StatusNotFound:
		httputil.NotFound(w, err.Error(), err)
	case http.StatusBadRequest:
		httputil.BadRequest(w, err.Error(), err)
	default:
		httputil.Error(w, status, err.Error())
	}
}
