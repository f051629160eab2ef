package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/markbates/goth/gothic"

	"github.com/knockout-app/knockout/internal/httputil"
	"github.com/knockout-app/knockout/internal/middleware"
	"github.com/knockout-app/knockout/internal/service"
	"github.com/knockout-app/knockout/internal/store"
)

func newRouter(database *sqlx.DB, sessionManager *scs.SessionManager) http.Handler {
	tournamentStore := store.NewTournamentStore(database)
	userStore := store.NewUserStore(database)

	tournamentService := service.NewTournamentService(database, tournamentStore)
	drawService := service.NewDrawService(database, tournamentStore)
	matchService := service.NewMatchService(database, tournamentStore)
	rosterService := service.NewRosterService(database, tournamentStore)
	userService := service.NewUserService(database, userStore)

	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(sessionManager.LoadAndSave)

	// Public read projections of the bracket.
	r.Get("/tournaments/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			httputil.BadRequest(w, "Invalid tournament ID", err)
			return
		}
		data, err := tournamentService.GetTournamentData(r.Context(), id)
		if err != nil {
			httputil.Error(w, err)
			return
		}
		httputil.JSON(w, http.StatusOK, data)
	})

	r.Get("/tournaments/{id}/stats", func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			httputil.BadRequest(w, "Invalid tournament ID", err)
			return
		}
		stats, err := tournamentService.Statistics(r.Context(), id)
		if err != nil {
			httputil.Error(w, err)
			return
		}
		httputil.JSON(w, http.StatusOK, stats)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(sessionManager, userStore))

		r.Get("/tournaments", func(w http.ResponseWriter, r *http.Request) {
			organizerID, _ := middleware.GetUserIDFromContext(r.Context())
			tournaments, err := tournamentService.GetTournamentsForOrganizer(r.Context(), organizerID)
			if err != nil {
				httputil.Error(w, err)
				return
			}
			httputil.JSON(w, http.StatusOK, tournaments)
		})

		r.Post("/tournaments", func(w http.ResponseWriter, r *http.Request) {
			var in struct {
				Name                string   `json:"name"`
				EntryFee            float64  `json:"entry_fee"`
				LateEntryFee        *float64 `json:"late_entry_fee"`
				RebuyFee            *float64 `json:"rebuy_fee"`
				OrganizerPercent    float64  `json:"organizer_percent"`
				ChampionPercent     float64  `json:"champion_percent"`
				RunnerUpPercent     float64  `json:"runner_up_percent"`
				ThirdPercent        float64  `json:"third_percent"`
				FourthPercent       float64  `json:"fourth_percent"`
				AllowLateEntry      bool     `json:"allow_late_entry"`
				LateEntryUntilRound int      `json:"late_entry_until_round"`
				AllowRebuy          bool     `json:"allow_rebuy"`
				RebuyUntilRound     int      `json:"rebuy_until_round"`
			}
			if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
				httputil.BadRequest(w, "Invalid request body", err)
				return
			}
			organizerID, _ := middleware.GetUserIDFromContext(r.Context())
			tournament, err := tournamentService.CreateTournament(r.Context(), organizerID, service.CreateTournamentInput{
				Name:                in.Name,
				EntryFee:            in.EntryFee,
				LateEntryFee:        in.LateEntryFee,
				RebuyFee:            in.RebuyFee,
				OrganizerPercent:    in.OrganizerPercent,
				ChampionPercent:     in.ChampionPercent,
				RunnerUpPercent:     in.RunnerUpPercent,
				ThirdPercent:        in.ThirdPercent,
				FourthPercent:       in.FourthPercent,
				AllowLateEntry:      in.AllowLateEntry,
				LateEntryUntilRound: in.LateEntryUntilRound,
				AllowRebuy:          in.AllowRebuy,
				RebuyUntilRound:     in.RebuyUntilRound,
			})
			if err != nil {
				httputil.Error(w, err)
				return
			}
			httputil.JSON(w, http.StatusCreated, tournament)
		})

		r.Post("/tournaments/{id}/players", func(w http.ResponseWriter, r *http.Request) {
			id, err := uuid.Parse(chi.URLParam(r, "id"))
			if err != nil {
				httputil.BadRequest(w, "Invalid tournament ID", err)
				return
			}
			var in struct {
				Names []string `json:"names"`
			}
			if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
				httputil.BadRequest(w, "Invalid request body", err)
				return
			}
			organizerID, _ := middleware.GetUserIDFromContext(r.Context())
			players, err := tournamentService.AddPlayers(r.Context(), id, organizerID, in.Names)
			if err != nil {
				httputil.Error(w, err)
				return
			}
			httputil.JSON(w, http.StatusCreated, players)
		})

		r.Post("/tournaments/{id}/draw", func(w http.ResponseWriter, r *http.Request) {
			id, err := uuid.Parse(chi.URLParam(r, "id"))
			if err != nil {
				httputil.BadRequest(w, "Invalid tournament ID", err)
				return
			}
			var in struct {
				PlayerIDs []uuid.UUID `json:"player_ids"`
			}
			if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
				httputil.BadRequest(w, "Invalid request body", err)
				return
			}
			organizerID, _ := middleware.GetUserIDFromContext(r.Context())
			result, err := drawService.GenerateDraw(r.Context(), id, organizerID, in.PlayerIDs)
			if err != nil {
				httputil.Error(w, err)
				return
			}
			httputil.JSON(w, http.StatusCreated, result)
		})

		r.Post("/tournaments/{id}/matches/{matchID}/result", func(w http.ResponseWriter, r *http.Request) {
			tournamentID, err := uuid.Parse(chi.URLParam(r, "id"))
			if err != nil {
				httputil.BadRequest(w, "Invalid tournament ID", err)
				return
			}
			matchID, err := uuid.Parse(chi.URLParam(r, "matchID"))
			if err != nil {
				httputil.BadRequest(w, "Invalid match ID", err)
				return
			}
			var in struct {
				WinnerID     uuid.UUID `json:"winner_id"`
				Player1Score *int      `json:"player1_score"`
				Player2Score *int      `json:"player2_score"`
			}
			if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
				httputil.BadRequest(w, "Invalid request body", err)
				return
			}
			organizerID, _ := middleware.GetUserIDFromContext(r.Context())
			outcome, err := matchService.RecordResult(r.Context(), tournamentID, matchID, organizerID, service.ResultInput{
				WinnerID:     in.WinnerID,
				Player1Score: in.Player1Score,
				Player2Score: in.Player2Score,
			})
			if err != nil {
				httputil.Error(w, err)
				return
			}
			httputil.JSON(w, http.StatusOK, outcome)
		})

		r.Post("/tournaments/{id}/late-entries", func(w http.ResponseWriter, r *http.Request) {
			id, err := uuid.Parse(chi.URLParam(r, "id"))
			if err != nil {
				httputil.BadRequest(w, "Invalid tournament ID", err)
				return
			}
			var in struct {
				Name  string `json:"name"`
				Force bool   `json:"force"`
			}
			if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
				httputil.BadRequest(w, "Invalid request body", err)
				return
			}
			organizerID, _ := middleware.GetUserIDFromContext(r.Context())
			player, err := rosterService.LateEntry(r.Context(), id, organizerID, in.Name, in.Force)
			if err != nil {
				httputil.Error(w, err)
				return
			}
			httputil.JSON(w, http.StatusCreated, player)
		})

		r.Post("/tournaments/{id}/rebuys", func(w http.ResponseWriter, r *http.Request) {
			id, err := uuid.Parse(chi.URLParam(r, "id"))
			if err != nil {
				httputil.BadRequest(w, "Invalid tournament ID", err)
				return
			}
			var in struct {
				PlayerID uuid.UUID `json:"player_id"`
			}
			if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
				httputil.BadRequest(w, "Invalid request body", err)
				return
			}
			organizerID, _ := middleware.GetUserIDFromContext(r.Context())
			if err := rosterService.Rebuy(r.Context(), id, organizerID, in.PlayerID); err != nil {
				httputil.Error(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.Post("/tournaments/{id}/undo", func(w http.ResponseWriter, r *http.Request) {
			id, err := uuid.Parse(chi.URLParam(r, "id"))
			if err != nil {
				httputil.BadRequest(w, "Invalid tournament ID", err)
				return
			}
			organizerID, _ := middleware.GetUserIDFromContext(r.Context())
			match, err := rosterService.UndoLastMatchResult(r.Context(), id, organizerID)
			if err != nil {
				httputil.Error(w, err)
				return
			}
			httputil.JSON(w, http.StatusOK, match)
		})
	})

	r.Get("/auth/{provider}", func(w http.ResponseWriter, r *http.Request) {
		provider := chi.URLParam(r, "provider")
		r = r.WithContext(context.WithValue(r.Context(), "provider", provider))

		gothic.BeginAuthHandler(w, r)
	})

	r.Get("/auth/{provider}/callback", func(w http.ResponseWriter, r *http.Request) {
		provider := chi.URLParam(r, "provider")
		r = r.WithContext(context.WithValue(r.Context(), "provider", provider))

		gothUser, err := gothic.CompleteUserAuth(w, r)
		if err != nil {
			httputil.BadRequest(w, "Authentication failure", err)
			return
		}

		user, err := userService.FindOrCreateUserByProvider(r.Context(), gothUser)
		if err != nil {
			httputil.InternalServerError(w, "Failed to find or create user", err)
			return
		}

		sessionManager.Put(r.Context(), "userID", user.ID.String())

		http.Redirect(w, r, "/", http.StatusFound)
	})

	r.Post("/auth/guest", func(w http.ResponseWriter, r *http.Request) {
		user, err := userService.EnsureGuestUser(r.Context())
		if err != nil {
			httputil.InternalServerError(w, "Failed to login as guest", err)
			return
		}

		sessionManager.Put(r.Context(), "userID", user.ID.String())
		httputil.JSON(w, http.StatusOK, user)
	})

	r.Post("/logout", func(w http.ResponseWriter, r *http.Request) {
		sessionManager.Destroy(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}
