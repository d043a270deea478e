package http

import (
	"log/slog"
	"net/http"

	"kiadas/internal/core"
)

// authPageData feeds the login, register and reset templates.
type authPageData struct {
	Error string
	Info  string
	// Code carries a freshly issued reset code when no mailer is
	// configured and the code must be shown on screen.
	Code string
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if s.sessionFromRequest(r).Active() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.render(w, r, "login.html", authPageData{})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	username := sanitizeInput(r.Form.Get("username"))
	password := r.Form.Get("password")

	sess, err := s.accounts.Login(r.Context(), username, password)
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		s.render(w, r, "login.html", authPageData{Error: messageFor(err)})
		return
	}

	token, err := s.sessions.Create(sess)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to create session", "error", err, "username", username)
		http.Error(w, "session error", http.StatusInternalServerError)
		return
	}

	s.setSessionCookie(w, token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		s.sessions.Delete(cookie.Value)
	}
	s.clearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "register.html", authPageData{})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	username := sanitizeInput(r.Form.Get("username"))
	email := sanitizeInput(r.Form.Get("email"))
	password := r.Form.Get("password")
	confirmPassword := r.Form.Get("confirm_password")

	if password != confirmPassword {
		w.WriteHeader(http.StatusUnprocessableEntity)
		s.render(w, r, "register.html", authPageData{Error: messageFor(core.ErrPasswordMismatch)})
		return
	}

	if err := s.accounts.Register(r.Context(), username, email, password); err != nil {
		w.WriteHeader(http.StatusUnprocessableEntity)
		s.render(w, r, "register.html", authPageData{Error: messageFor(err)})
		return
	}

	s.render(w, r, "login.html", authPageData{Info: "Account created. You can log in now."})
}

func (s *Server) handleResetPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "reset.html", authPageData{})
}

// handleResetRequest issues a reset code for the given username. When
// SMTP is configured the code is mailed; otherwise it is shown on the
// page, matching a household deployment without a mail account.
func (s *Server) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	username := sanitizeInput(r.Form.Get("username"))

	code, err := s.accounts.RequestReset(r.Context(), username)
	if err != nil {
		w.WriteHeader(http.StatusUnprocessableEntity)
		s.render(w, r, "reset.html", authPageData{Error: messageFor(err)})
		return
	}

	if s.mailer != nil {
		to, err := s.accounts.UserEmail(r.Context(), username)
		if err == nil && to != "" {
			if err := s.mailer.SendResetCode(to, username, code); err == nil {
				s.render(w, r, "reset.html", authPageData{Info: "A reset code was sent to your email address."})
				return
			}
			slog.ErrorContext(r.Context(), "Failed to send reset code email", "username", username)
		}
	}

	s.render(w, r, "reset.html", authPageData{
		Info: "Use this code to set a new password:",
		Code: code,
	})
}

func (s *Server) handleResetConfirm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	code := sanitizeInput(r.Form.Get("code"))
	newPassword := r.Form.Get("new_password")
	confirmPassword := r.Form.Get("confirm_password")

	if err := s.accounts.ConfirmReset(r.Context(), code, newPassword, confirmPassword); err != nil {
		w.WriteHeader(http.StatusUnprocessableEntity)
		s.render(w, r, "reset.html", authPageData{Error: messageFor(err)})
		return
	}

	s.render(w, r, "login.html", authPageData{Info: "Password changed. You can log in now."})
}
