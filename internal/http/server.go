package http

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	applog "financas/internal/log"
	"financas/internal/middleware/ratelimit"
	"financas/internal/services"
)

// Server is the JSON API over the transaction and recurring transaction
// services. Summaries are cached; any write bumps the cache generation so
// stale totals are never served.
type Server struct {
	http.Server

	recurring    *services.RecurringService
	transactions *services.TransactionService

	limiter   *ratelimit.Limiter
	summaries *summaryCache

	shutdownOnce sync.Once
}

func NewServer(addr string, recurring *services.RecurringService, transactions *services.TransactionService, logger *applog.Logger) *Server {
	s := &Server{
		recurring:    recurring,
		transactions: transactions,
		limiter:      ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		summaries:    newSummaryCache(100, 5*time.Minute, 10*time.Minute),
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(applog.Middleware(logger, func(r *http.Request) string {
		return chimw.GetReqID(r.Context())
	}))
	r.Use(s.limiter.Middleware(clientIP, nil))

	r.Route("/api", func(r chi.Router) {
		r.Route("/recurring-transactions", func(r chi.Router) {
			r.Get("/", s.handleListRecurring)
			r.Post("/", s.handleCreateRecurring)
			r.Get("/{id}", s.handleGetRecurring)
			r.Put("/{id}/toggle", s.handleToggleRecurring)
			r.Delete("/{id}", s.handleDeleteRecurring)
		})
		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", s.handleListTransactions)
			r.Post("/", s.handleCreateTransaction)
			r.Get("/summary", s.handleSummary)
			r.Get("/{id}", s.handleGetTransaction)
			r.Delete("/{id}", s.handleDeleteTransaction)
		})
		r.Get("/metadata/enums", s.handleEnums)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.Server = http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.Server.Handler
}

func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		if s.summaries != nil {
			s.summaries.Stop()
		}
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i > 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
