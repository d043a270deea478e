// Package http serves the household ledger web UI: login, registration,
// password reset and the expense pages. Sessions are cookie tokens
// resolved in memory; every service call receives the caller's session
// explicitly.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"kiadas/internal/accounts"
	"kiadas/internal/core"
	"kiadas/internal/email"
	"kiadas/internal/ledger"
	applog "kiadas/internal/log"
	appweb "kiadas/web"
)

const sessionCookieName = "session"

type Server struct {
	http.Server
	templates    *template.Template
	accounts     *accounts.Service
	ledger       *ledger.Service
	mailer       *email.Sender // nil when SMTP is unconfigured
	sessions     *sessionStore
	rateLimiter  *rateLimiter
	secureCookie bool

	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

// rateLimiter implements a simple in-memory rate limiter per client IP.
type rateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientInfo
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{clients: make(map[string]*clientInfo)}
}

// allow checks if a request from the given IP should be allowed.
// Returns false past 30 requests per minute.
func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]

	if !exists {
		rl.clients[clientIP] = &clientInfo{lastRequest: now, requests: 1}
		return true
	}

	// Reset counter if more than 1 minute has passed
	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	client.requests++
	client.lastRequest = now
	return client.requests <= 30
}

// cleanupStaleEntries removes client entries older than 10 minutes.
func (rl *rateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(addr string, acc *accounts.Service, led *ledger.Service, mailer *email.Sender, sessionTTL time.Duration, secureCookie bool) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		accounts:     acc,
		ledger:       led,
		mailer:       mailer,
		sessions:     newSessionStore(1000, sessionTTL),
		rateLimiter:  newRateLimiter(),
		secureCookie: secureCookie,
		stopCleanup:  make(chan struct{}),
	}

	go s.startCleanup()

	// Parse embedded templates at startup.
	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		slog.Warn("Failed parsing templates", "error", err)
	}
	s.templates = t

	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=3600, immutable")
			static.ServeHTTP(w, r)
		}))
	} else {
		slog.Warn("Failed to mount embedded static FS", "error", err)
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("GET /login", s.withSecurityHeaders(s.handleLoginPage))
	mux.HandleFunc("POST /login", s.withSecurityHeaders(s.handleLogin))
	mux.HandleFunc("POST /logout", s.withSecurityHeaders(s.handleLogout))
	mux.HandleFunc("GET /register", s.withSecurityHeaders(s.handleRegisterPage))
	mux.HandleFunc("POST /register", s.withSecurityHeaders(s.handleRegister))
	mux.HandleFunc("GET /reset", s.withSecurityHeaders(s.handleResetPage))
	mux.HandleFunc("POST /reset/request", s.withSecurityHeaders(s.handleResetRequest))
	mux.HandleFunc("POST /reset/confirm", s.withSecurityHeaders(s.handleResetConfirm))

	mux.HandleFunc("GET /{$}", s.withSecurityHeaders(s.handleDashboard))
	mux.HandleFunc("GET /expenses", s.withSecurityHeaders(s.handleExpenses))
	mux.HandleFunc("POST /expenses", s.withSecurityHeaders(s.handleCreateExpense))
	mux.HandleFunc("POST /expenses/{id}", s.withSecurityHeaders(s.handleUpdateExpense))
	mux.HandleFunc("POST /expenses/{id}/delete", s.withSecurityHeaders(s.handleDeleteExpense))

	return s
}

// startCleanup runs periodic cleanup of expired sessions and stale
// rate-limiter entries.
func (s *Server) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed := s.sessions.CleanExpired()
			if removed > 0 {
				slog.Debug("Session cleanup completed", "sessions_removed", removed)
			}
			s.rateLimiter.cleanupStaleEntries()
		case <-s.stopCleanup:
			return
		}
	}
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.stopCleanup != nil {
			close(s.stopCleanup)
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withSecurityHeaders adds security headers, rate limiting and request
// logging to responses.
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Extract client IP (considering proxies)
		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			applog.FieldRequestID, requestID,
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			applog.FieldClientIP, clientIP)

		// Rate limit mutating requests only
		if r.Method == http.MethodPost && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded",
				applog.FieldClientIP, clientIP,
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		slog.InfoContext(ctx, "Request completed",
			applog.FieldRequestID, requestID,
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			applog.FieldStatus, rw.statusCode,
			applog.FieldDuration, duration.Milliseconds(),
			applog.FieldClientIP, clientIP)
	}
}

type requestIDKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// sessionFromRequest resolves the session cookie; the zero Session is
// returned when the caller is not logged in.
func (s *Server) sessionFromRequest(r *http.Request) core.Session {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return core.Session{}
	}
	sess, ok := s.sessions.Get(cookie.Value)
	if !ok {
		return core.Session{}
	}
	return sess
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	if s.templates == nil {
		slog.ErrorContext(r.Context(), "Templates not loaded", applog.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		slog.ErrorContext(r.Context(), "Template execution failed", applog.FieldError, err, "template", name)
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}

// messageFor maps service errors to the messages shown in the UI.
func messageFor(err error) string {
	switch {
	case errors.Is(err, core.ErrDuplicateUsername):
		return "That username is already taken."
	case errors.Is(err, core.ErrDuplicateEmail):
		return "That email address is already registered."
	case errors.Is(err, core.ErrInvalidCredentials):
		return "Wrong username or password."
	case errors.Is(err, core.ErrUnknownUser):
		return "No account with that username."
	case errors.Is(err, core.ErrInvalidCode):
		return "That reset code is not valid."
	case errors.Is(err, core.ErrPasswordMismatch):
		return "The passwords do not match."
	case errors.Is(err, core.ErrEmptyField):
		return "Please fill in all fields."
	case errors.Is(err, core.ErrInvalidAmount):
		return "The amount is not a valid non-negative number."
	case errors.Is(err, core.ErrInvalidCategory):
		return "Unknown expense category."
	case errors.Is(err, core.ErrInvalidDate):
		return "The date must be in YYYY-MM-DD form."
	case errors.Is(err, core.ErrInvalidMonth):
		return "The month must be in YYYY-MM form."
	case errors.Is(err, core.ErrNotFound):
		return "That expense no longer exists."
	case errors.Is(err, core.ErrPermissionDenied):
		return "You are not allowed to do that."
	default:
		return "Something went wrong. Please try again."
	}
}
