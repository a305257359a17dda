package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/servant-draft/internal/auth"
	"github.com/DoyleJ11/servant-draft/internal/balance"
	"github.com/DoyleJ11/servant-draft/internal/draft"
	"github.com/DoyleJ11/servant-draft/internal/recorder"
	"github.com/DoyleJ11/servant-draft/internal/roster"
	"github.com/DoyleJ11/servant-draft/internal/ws"
)

// History reads recorded matches.
type History interface {
	Recent(ctx context.Context, guildID string, limit int) ([]recorder.MatchRecord, error)
	Outcome(ctx context.Context, matchID string) (recorder.MatchOutcome, error)
}

type Deps struct {
	Orchestrator *draft.Orchestrator
	Balancer     *balance.Balancer
	// Roster and History are optional; their routes answer 501 without them.
	Roster  roster.Store
	History History
	// Secret signs bearer tokens. Empty leaves the API open.
	Secret  string
	Origins []string
	Log     *zap.Logger
}

func SetupRoutes(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	a := &api{Deps: d}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Log))
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthz", Healthz)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(d.Secret))
		r.Get("/ws", ws.Handler(d.Orchestrator, d.Log.Named("ws"), d.Origins...))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Get("/sessions", a.listSessions)
			r.Post("/sessions", a.startSession)
			r.Get("/sessions/{key}", a.getSession)
			r.Delete("/sessions/{key}", a.cancelSession)
			r.Post("/sessions/{key}/intents", a.postIntent)

			r.Post("/matches/{id}/outcome", a.recordOutcome)
			r.Get("/matches/{id}/outcome", a.getOutcome)
			r.Get("/guilds/{guild}/matches", a.recentMatches)
			r.Get("/guilds/{guild}/roster", a.listRoster)

			r.Post("/balance", a.previewBalance)

			// Operator routes
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireOperator)
				r.Post("/sessions/{key}/cleanup", a.cleanupSession)
				r.Put("/guilds/{guild}/balancer", a.tuneBalancer)
				r.Put("/guilds/{guild}/roster/{user}", a.upsertRosterPlayer)
			})
		})
	})
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Debug("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("elapsed", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
