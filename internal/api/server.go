// Package api provides the HTTP server for the escrow engine.
// Caller identity arrives in the X-Aaas-Identity header; authenticating it
// is the job of whatever fronts this server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aaas-network/aaas/internal/app/escrow"
	"github.com/aaas-network/aaas/internal/app/oracle"
	"github.com/aaas-network/aaas/internal/domain"
)

// IdentityHeader carries the already-authenticated caller identity.
const IdentityHeader = "X-Aaas-Identity"

// Ledger lists ledger history. Optional; enables the entries route.
type Ledger interface {
	Entries(ctx context.Context, account string, limit int) ([]domain.LedgerEntry, error)
}

// OracleStats reports oracle counters. Optional; enables the oracle route.
type OracleStats interface {
	Stats() oracle.Stats
}

// Server is the escrow HTTP API server.
type Server struct {
	engine         *escrow.Engine
	ledger         Ledger
	oracle         OracleStats
	hub            *EventHub
	logger         *slog.Logger
	metricsEnabled bool
	timeout        time.Duration
}

// NewServer creates a new API server.
func NewServer(engine *escrow.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:  engine,
		logger:  logger.With("component", "api"),
		timeout: 30 * time.Second,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetLedger enables GET /v1/accounts/{account}/entries.
func (s *Server) SetLedger(l Ledger) { s.ledger = l }

// SetOracle enables GET /v1/oracle.
func (s *Server) SetOracle(o OracleStats) { s.oracle = o }

// SetEventHub sets the live event SSE hub.
func (s *Server) SetEventHub(h *EventHub) { s.hub = h }

// SetTimeout bounds non-streaming requests.
func (s *Server) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"now":    s.engine.Now(),
		})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		// SSE stays outside the request timeout.
		if s.hub != nil {
			r.Get("/events", s.hub.HandleEventsSSE)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.timeout))

			r.Get("/registry", s.handleGetRegistry)
			r.Post("/registry", s.handleInitializeRegistry)

			r.Route("/challenges", func(r chi.Router) {
				r.Get("/", s.handleListChallenges)
				r.Post("/", s.handleCreateChallenge)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetChallenge)
					r.Post("/join", s.handleJoin)
					r.Post("/verifications", s.handleRecordVerification)
					r.Post("/votes", s.handleCastVote)
					r.Post("/claim", s.handleClaim)
					r.Get("/members", s.handleListMembers)
					r.Get("/members/{participant}", s.handleGetMember)
					r.Get("/voters/{voter}/progress", s.handleVotingProgress)
				})
			})

			r.Get("/profiles/{participant}", s.handleGetProfile)

			r.Route("/accounts/{account}", func(r chi.Router) {
				r.Get("/", s.handleGetBalance)
				r.Post("/deposit", s.handleDeposit)
				if s.ledger != nil {
					r.Get("/entries", s.handleListEntries)
				}
			})

			if s.oracle != nil {
				r.Get("/oracle", func(w http.ResponseWriter, r *http.Request) {
					writeJSON(w, http.StatusOK, s.oracle.Stats())
				})
			}
		})
	})

	return r
}

// ─── Responses ──────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    kind,
		},
	})
}

// statusFor maps a rejection category to an HTTP status.
func statusFor(cat domain.Category) int {
	switch cat {
	case domain.CategoryAuthorization:
		return http.StatusForbidden
	case domain.CategorySequencing:
		return http.StatusConflict
	case domain.CategoryValidation:
		return http.StatusBadRequest
	case domain.CategoryEligibility:
		return http.StatusUnprocessableEntity
	case domain.CategoryNotFound:
		return http.StatusNotFound
	case domain.CategoryCustody:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// writeEngineError maps an engine error to a response. Infrastructure
// failures are logged and reported without detail.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "request cancelled")
		return
	}
	cat := domain.CategoryOf(err)
	if cat == domain.CategoryNone {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	writeError(w, statusFor(cat), string(cat), err.Error())
}

// corsMiddleware adds CORS headers for browser clients.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+IdentityHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
