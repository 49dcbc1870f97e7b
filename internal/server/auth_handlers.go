package server

import (
	"net/http"

	"github.com/rs/zerolog/hlog"
	"github.com/seanblong/folio/internal/auth"
)

const stateCookie = "oauth_state"

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, r, http.StatusOK, map[string]bool{"enabled": s.cfg.Auth.Enabled()})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	state := auth.GenerateState()

	// Store state in cookie for validation
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		Secure:   s.secure(r),
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, s.cfg.Auth.LoginURL(state), http.StatusTemporaryRedirect)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	c, err := r.Cookie(stateCookie)
	if err != nil || state == "" || c.Value != state {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	if code == "" {
		http.Error(w, "Missing code parameter", http.StatusBadRequest)
		return
	}

	logger := hlog.FromRequest(r)
	accessToken, err := s.cfg.Auth.ExchangeCode(r.Context(), code)
	if err != nil {
		logger.Warn().Err(err).Msg("oauth code exchange failed")
		http.Error(w, "Failed to exchange code for token", http.StatusInternalServerError)
		return
	}

	user, err := s.cfg.Auth.GithubUser(r.Context(), accessToken)
	if err != nil {
		logger.Warn().Err(err).Msg("github user lookup failed")
		http.Error(w, "Failed to get user info: "+err.Error(), http.StatusForbidden)
		return
	}

	token, err := s.cfg.Auth.GenerateJWT(user)
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(auth.TokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.secure(r),
		SameSite: http.SameSiteLaxMode,
	})
	logger.Info().Str("login", user.Login).Msg("user logged in")
	s.jsonResponse(w, r, http.StatusOK, auth.AuthResponse{User: *user, Token: token})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	tokenString := auth.TokenFromRequest(r)
	if tokenString == "" {
		http.Error(w, "No authentication token", http.StatusUnauthorized)
		return
	}
	user, err := s.cfg.Auth.ValidateJWT(tokenString)
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}
	s.jsonResponse(w, r, http.StatusOK, auth.AuthResponse{User: *user, Token: tokenString})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: auth.CookieName, Value: "", Path: "/", MaxAge: -1})
	w.WriteHeader(http.StatusOK)
}
