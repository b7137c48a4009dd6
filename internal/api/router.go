package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/navigator/codebook/internal/progress"
	"github.com/navigator/codebook/internal/scenario"
	"github.com/navigator/codebook/internal/session"
	"github.com/navigator/codebook/internal/sse"
)

// Deps are the services the API is built on. Progress and Broker may be nil.
type Deps struct {
	Sessions    *session.Manager
	Progress    *progress.Manager
	Catalog     *scenario.Catalog
	Broker      *sse.Broker
	AuthEnabled bool
	Token       string
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(d Deps) chi.Router {
	h := NewHandler(d.Sessions, d.Progress, d.Catalog)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(d.AuthEnabled, d.Token))

	r.Get("/scenarios", h.ListScenarios)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.CreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Delete("/", h.DeleteSession)
			r.Post("/commands", h.RunCommand)
			r.Get("/history", h.History)
			r.Get("/complete", h.Complete)
			r.Post("/evidence/{filename}/download", h.DownloadEvidence)
			r.Post("/evidence/{filename}/unlock", h.UnlockEvidence)
			r.Post("/hints", h.RequestHint)
			r.Post("/reset", h.ResetSession)
			r.Post("/lock", h.LockSession(true))
			r.Post("/unlock", h.LockSession(false))
			r.Post("/tools/{tool}", h.LoadTool)
			r.Get("/ws", h.Terminal(d.Broker))
		})
	})

	r.Route("/progress", func(r chi.Router) {
		r.Post("/", h.CreateProgress)
		r.Post("/restore", h.Restore)
		r.Get("/leaderboard", h.Leaderboard)
		r.Get("/{user}", h.GetProgress)
		r.Delete("/{user}", h.DeleteProgress)
		r.Get("/{user}/recovery", h.RecoveryCode)
		r.Post("/{user}/modules/{module}/complete", h.CompleteModule)
	})

	// SSE endpoint (protected by same auth middleware).
	if d.Broker != nil {
		r.Get("/events", d.Broker.ServeHTTP)
	}

	return r
}
