// Package webserver exposes the operator-facing admin API: read and patch a
// guild's moderation configuration and inspect its statistics.
package webserver

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/infinitybotlist/eureka/jsonimpl"
	"github.com/infinitybotlist/eureka/zapchi"
	"go.uber.org/zap"

	"github.com/guardianbot/guardian/engine"
	"github.com/guardianbot/guardian/guildconfig"
	"github.com/guardianbot/guardian/keylock"
	"github.com/guardianbot/guardian/state"
)

type apiError struct {
	Message string `json:"message"`
}

type server struct {
	eng *engine.Engine
}

func CreateWebserver(eng *engine.Engine) *chi.Mux {
	s := &server{eng: eng}

	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer,
		middleware.RealIP,
		middleware.CleanPath,
		zapchi.Logger(state.Logger, "api"),
		middleware.Timeout(30*time.Second),
	)

	r.Get("/guilds/{guildId}/config", s.getConfig)
	r.Patch("/guilds/{guildId}/config", s.patchConfig)
	r.Get("/guilds/{guildId}/stats", s.getStats)

	return r
}

func (s *server) getConfig(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildId")

	writeJSON(w, http.StatusOK, s.eng.GetConfig(r.Context(), guildID))
}

// patchConfig merges the request body over the guild's current configuration
// under the per-guild lock, so a concurrent automated stats write cannot be
// lost. Clamping happens on save.
func (s *server) patchConfig(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildId")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))

	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Message: "failed to read request body"})
		return
	}

	// validate the patch against a scratch config before touching the
	// stored one, so a malformed body never reaches a save
	if err := jsonimpl.Unmarshal(body, guildconfig.Default()); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Message: "invalid config patch: " + err.Error()})
		return
	}

	cfg, err := s.eng.UpdateConfig(r.Context(), guildID, func(cfg *guildconfig.GuildConfig) {
		// validated above; merges over the current config
		_ = jsonimpl.Unmarshal(body, cfg)
	})

	if err != nil {
		status := http.StatusInternalServerError

		if errors.Is(err, keylock.ErrLockTimeout) {
			status = http.StatusConflict
		}

		writeJSON(w, status, apiError{Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

func (s *server) getStats(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildId")

	writeJSON(w, http.StatusOK, s.eng.GetConfig(r.Context(), guildID).Stats)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := jsonimpl.MarshalToWriter(w, v)

	if err != nil {
		state.Logger.Error("Failed to write response", zap.Error(err))
	}
}
