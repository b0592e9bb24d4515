package main

import (
	"net/http"
	"strconv"

	"github.com/AdamBeresnev/tourney/internal/bracket"
	"github.com/AdamBeresnev/tourney/internal/httputil"
	"github.com/AdamBeresnev/tourney/internal/middleware"
	"github.com/AdamBeresnev/tourney/internal/service"
	"github.com/go-chi/chi/v5"
)

func idParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (app *application) healthz(w http.ResponseWriter, r *http.Request) {
	if err := app.db.PingContext(r.Context()); err != nil {
		httputil.Error(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (app *application) createTournament(w http.ResponseWriter, r *http.Request) {
	var in service.TournamentInput
	if err := httputil.DecodeJSON(w, r, &in); err != nil {
		httputil.BadRequest(w, "Invalid request body", err)
		return
	}

	tournament, err := app.tournaments.CreateTournament(r.Context(), middleware.GetAuthenticatedUser(r.Context()), in)
	if err != nil {
		writeServiceError(w, "Failed to create tournament", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, tournament)
}

func (app *application) getTournament(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		httputil.BadRequest(w, "Invalid tournament ID", nil)
		return
	}

	tournament, err := app.tournaments.GetTournament(r.Context(), id)
	if err != nil {
		writeServiceError(w, "Failed to get tournament", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tournament)
}

func (app *application) listParticipants(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		httputil.BadRequest(w, "Invalid tournament ID", nil)
		return
	}

	participants, err := app.tournaments.GetParticipants(r.Context(), id)
	if err != nil {
		writeServiceError(w, "Failed to get participants", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, participants)
}

func (app *application) register(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		httputil.BadRequest(w, "Invalid tournament ID", nil)
		return
	}

	participant, err := app.tournaments.Register(r.Context(), middleware.GetAuthenticatedUser(r.Context()), id)
	if err != nil {
		writeServiceError(w, "Failed to register", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, participant)
}

type seedingScoreRequest struct {
	Score *int64 `json:"score"`
}

func (app *application) setSeedingScore(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		httputil.BadRequest(w, "Invalid tournament ID", nil)
		return
	}
	participantID, ok := idParam(r, "pid")
	if !ok {
		httputil.BadRequest(w, "Invalid participant ID", nil)
		return
	}

	var req seedingScoreRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.BadRequest(w, "Invalid request body", err)
		return
	}

	participant, err := app.tournaments.SetSeedingScore(r.Context(), middleware.GetAuthenticatedUser(r.Context()), id, participantID, req.Score)
	if err != nil {
		writeServiceError(w, "Failed to set seeding score", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, participant)
}

func (app *application) generateBracket(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		httputil.BadRequest(w, "Invalid tournament ID", nil)
		return
	}

	if err := app.generation.Generate(r.Context(), middleware.GetAuthenticatedUser(r.Context()), id); err != nil {
		writeServiceError(w, "Failed to generate bracket", err)
		return
	}

	view, err := app.tournaments.Bracket(r.Context(), id)
	if err != nil {
		writeServiceError(w, "Failed to load bracket", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, view)
}

func (app *application) getBracket(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		httputil.BadRequest(w, "Invalid tournament ID", nil)
		return
	}

	view, err := app.tournaments.Bracket(r.Context(), id)
	if err != nil {
		writeServiceError(w, "Failed to load bracket", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (app *application) getWinners(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		httputil.BadRequest(w, "Invalid tournament ID", nil)
		return
	}

	winners, err := app.tournaments.Winners(r.Context(), id)
	if err != nil {
		writeServiceError(w, "Failed to get winners", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, winners)
}

func (app *application) getMatch(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		httputil.BadRequest(w, "Invalid match ID", nil)
		return
	}

	match, err := app.matches.GetMatch(r.Context(), id)
	if err != nil {
		writeServiceError(w, "Failed to get match", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, match)
}

type reportRequest struct {
	Participant int64                    `json:"participant"`
	Status      bracket.ParticipantState `json:"status"`
	Score       *int64                   `json:"score"`
}

func (app *application) reportResult(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		httputil.BadRequest(w, "Invalid match ID", nil)
		return
	}

	var req reportRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.BadRequest(w, "Invalid request body", err)
		return
	}

	match, err := app.matches.ReportResult(r.Context(), middleware.GetAuthenticatedUser(r.Context()), service.ReportInput{
		MatchID:       id,
		ParticipantID: req.Participant,
		Outcome:       req.Status,
		Score:         req.Score,
	})
	if err != nil {
		writeServiceError(w, "Failed to report result", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, match)
}
