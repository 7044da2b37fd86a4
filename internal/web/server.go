// Package web exposes the administrative API: an authenticated on-demand
// poll trigger and the last run's statistics. The NGO platform's admin
// dashboard is the intended consumer.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/careconnect/mail-intake/internal/intake"
)

type Server struct {
	port   string
	bind   string
	server *http.Server
	auth   *AuthManager
	poller *intake.Poller
}

// NewServer wires the admin API around a poller. username/password are the
// configured admin credentials; empty credentials are refused.
func NewServer(port, bind, username, password string, poller *intake.Poller) (*Server, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("admin credentials are required (admin.username / admin.password)")
	}

	auth, err := NewAuthManager(username, password)
	if err != nil {
		return nil, fmt.Errorf("failed to set up auth: %w", err)
	}

	return &Server{
		port:   port,
		bind:   bind,
		auth:   auth,
		poller: poller,
	}, nil
}

func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)

	// Protected routes
	mux.Handle("/api/trigger", s.auth.RequireAuth(http.HandlerFunc(s.handleTrigger)))
	mux.Handle("/api/status", s.auth.RequireAuth(http.HandlerFunc(s.handleStatus)))

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.bind, s.port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // a trigger waits for the full poll run
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Admin API starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Admin API failed to start", "error", err)
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	slog.Info("Shutting down admin API")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}
