// Package webhook provides the checkout-completion callback listener.
//
// The merchant of record reports fulfilment out-of-band; without this
// listener a fresh purchase stays invisible until the next sign-in or a
// manual refresh. Receiving the callback closes that staleness window by
// triggering the store's refresh operations.
package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Refresher is the slice of the store the listener drives.
type Refresher interface {
	RefreshEntitlements(ctx context.Context) error
	RefreshSubscriptionProfile(ctx context.Context) error
}

// Config represents listener configuration.
type Config struct {
	Addr  string
	Token string // Shared secret the payment provider sends back
}

// Server is the webhook listener.
type Server struct {
	token     string
	refresher Refresher
	srv       *http.Server
}

// payload is the provider's callback shape.
type payload struct {
	Event     string `json:"event"`
	UserID    string `json:"user_id"`
	Reference string `json:"reference"`
}

// New creates a webhook listener.
func New(cfg Config, refresher Refresher) *Server {
	s := &Server{
		token:     cfg.Token,
		refresher: refresher,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/hooks/checkout-completed", s.handleCheckoutCompleted)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.srv = &http.Server{
		Addr:    cfg.Addr,
		Handler: h2c.NewHandler(mux, &http2.Server{}),
	}
	return s
}

// Handler returns the HTTP handler, exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	zlog.Info().Msgf("webhook: listening on %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleCheckoutCompleted(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var p payload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if p.Event != "order.completed" {
		zlog.Debug().Msgf("webhook: ignoring event %q", p.Event)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	zlog.Info().Msgf("webhook: checkout completed: ref=%s", p.Reference)

	// Fire-and-forget: the provider's delivery must not block on our
	// refresh latency, and refresh errors keep last-known-good state.
	go func() {
		if err := s.refresher.RefreshEntitlements(context.Background()); err != nil {
			zlog.Warn().Msgf("webhook: entitlement refresh failed: %v", err)
		}
		if err := s.refresher.RefreshSubscriptionProfile(context.Background()); err != nil {
			zlog.Warn().Msgf("webhook: profile refresh failed: %v", err)
		}
	}()

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) authorized(r *http.Request) bool {
	if s.token == "" {
		return false
	}
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ") == s.token
	}
	return r.Header.Get("X-Webhook-Token") == s.token
}
