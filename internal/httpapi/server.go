// Package httpapi is the HTTP/Duplex Gateway: a chi router exposing every
// endpoint in spec.md §6, mapping apperrors.Kind to HTTP status at this
// single boundary, grounded on the teacher's ai/cmd/server/main.go router
// wiring and the collab/voice services' websocket upgrade shape.
package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"peerprep/interview/internal/aiproxy"
	"peerprep/interview/internal/anticheat"
	"peerprep/interview/internal/config"
	"peerprep/interview/internal/eventbus"
	"peerprep/interview/internal/metrics"
	"peerprep/interview/internal/sandbox"
	"peerprep/interview/internal/statemachine"
	"peerprep/interview/internal/store"
	"peerprep/interview/internal/token"
	"peerprep/interview/internal/upload"
)

const sessionCookieName = "session"

// Server wires every component package into one chi.Mux.
type Server struct {
	cfg      *config.Config
	log      *zap.Logger
	store    *store.Store
	auth     *token.Authority
	sm       *statemachine.Machine
	hub      *eventbus.Hub
	ac       *anticheat.Engine
	ai       *aiproxy.Proxy
	sandbox  *sandbox.Evaluator // nil when Docker is unavailable; code-eval then fails ProviderUnavailable
	upload   *upload.Service
	upgrader websocket.Upgrader

	// nextQuestionInFlight guards the race spec.md §4.3 calls out by name:
	// "if two next-question requests race, the second is rejected with
	// already_in_flight unless the first has committed a question row."
	// Keyed by session id, held from before the AI Proxy call through the
	// AppendQuestion commit.
	nextQuestionInFlight sync.Map
}

func New(
	cfg *config.Config,
	log *zap.Logger,
	st *store.Store,
	auth *token.Authority,
	sm *statemachine.Machine,
	hub *eventbus.Hub,
	ac *anticheat.Engine,
	ai *aiproxy.Proxy,
	sb *sandbox.Evaluator,
	up *upload.Service,
) *Server {
	return &Server{
		cfg: cfg, log: log, store: st, auth: auth, sm: sm, hub: hub, ac: ac, ai: ai, sandbox: sb, upload: up,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Routes builds the chi.Mux, the same middleware stack as the teacher's
// ai/cmd/server/main.go (RequestID, RealIP, Logger, Recoverer, Timeout)
// plus the Prometheus middleware and CORS config generalized to this
// module's allowed-origins list.
func (s *Server) Routes() *chi.Mux { // exported on the process entrypoint via cmd/server
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer, middleware.Timeout(60*time.Second))
	r.Use(metrics.Middleware)

	r.Get("/metrics", metrics.Handler().ServeHTTP)

	r.Post("/auth/login", s.handleLogin)

	r.Route("/interview", func(r chi.Router) {
		r.Post("/sessions", s.handleCreateSession)

		r.Route("/{id}", func(r chi.Router) {
			r.Post("/token/acet", s.handleIssueACET)
			r.Post("/token/aipt", s.handleIssueAIPT)
			r.Post("/token/refresh", s.handleRefreshTokens)
			r.Post("/precheck", s.handlePrecheck)
			r.Post("/start", s.handleStart)
			r.Post("/next-question", s.handleNextQuestion)
			r.Post("/answer", s.handleAnswer)
			r.Post("/code-eval", s.handleCodeEval)
			r.Post("/anti-cheat", s.handleAntiCheat)
			r.Get("/anti-cheat/tail", s.handleAntiCheatTail)
			r.Post("/finalize", s.handleFinalize)
			r.Get("/summary", s.handleSummary)
			r.Get("/review", s.handleReview)
			r.Get("/state", s.handleState)
			r.Get("/stream", s.handleStream)
		})
	})

	r.Post("/media/upload", s.handleMediaUpload)

	return r
}
