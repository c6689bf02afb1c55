package server

import (
	"net/http"

	"github.com/sixfold/sixfold/auth"
)

type credentialsRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	TOTPCode    string `json:"totp_code"`
}

type authResponse struct {
	User   *auth.User      `json:"user"`
	Tokens *auth.TokenPair `json:"tokens"`
}

// HandleSignup handles POST /api/auth/signup
func (s *Server) HandleSignup(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodPost) {
		return
	}

	var req credentialsRequest
	if readJSON(w, r, &req) != nil {
		return
	}

	user, tokens, err := s.authSvc.Signup(r.Context(), req.Email, req.Password, req.DisplayName,
		r.UserAgent(), r.RemoteAddr)
	if err != nil {
		handleError(w, s.logger, err, "failed to sign up")
		return
	}

	s.logger.Infow("User signed up", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, authResponse{User: user, Tokens: tokens})
}

// HandleLogin handles POST /api/auth/login. Accounts with 2FA enabled
// must supply totp_code.
func (s *Server) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodPost) {
		return
	}

	var req credentialsRequest
	if readJSON(w, r, &req) != nil {
		return
	}

	user, tokens, err := s.authSvc.Login(r.Context(), req.Email, req.Password, req.TOTPCode,
		r.UserAgent(), r.RemoteAddr)
	if err != nil {
		handleError(w, s.logger, err, "failed to log in")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{User: user, Tokens: tokens})
}

// HandleRefresh handles POST /api/auth/refresh. The refresh token rotates;
// the presented token is dead after a successful call.
func (s *Server) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodPost) {
		return
	}

	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if readJSON(w, r, &req) != nil {
		return
	}

	tokens, err := s.authSvc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		handleError(w, s.logger, err, "failed to refresh session")
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

// HandleLogout handles POST /api/auth/logout
func (s *Server) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodPost) {
		return
	}

	claims := auth.UserFromContext(r.Context())
	if err := s.authSvc.Logout(r.Context(), claims); err != nil {
		handleError(w, s.logger, err, "failed to log out")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// HandleMagicLinkRequest handles POST /api/auth/magic-link. Responds
// identically whether or not the email has an account.
func (s *Server) HandleMagicLinkRequest(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodPost) {
		return
	}

	var req struct {
		Email string `json:"email"`
	}
	if readJSON(w, r, &req) != nil {
		return
	}

	if err := s.authSvc.RequestMagicLink(r.Context(), req.Email); err != nil {
		handleError(w, s.logger, err, "failed to request magic link")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// HandleMagicLinkRedeem handles POST /api/auth/magic-link/redeem
func (s *Server) HandleMagicLinkRedeem(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodPost) {
		return
	}

	var req struct {
		Token string `json:"token"`
	}
	if readJSON(w, r, &req) != nil {
		return
	}

	user, tokens, err := s.authSvc.RedeemMagicLink(r.Context(), req.Token, r.UserAgent(), r.RemoteAddr)
	if err != nil {
		handleError(w, s.logger, err, "failed to redeem magic link")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{User: user, Tokens: tokens})
}

// HandleTOTPSetup handles POST /api/auth/2fa/setup. Returns the otpauth
// URL; 2FA is not enforced until the first code is verified.
func (s *Server) HandleTOTPSetup(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodPost) {
		return
	}

	claims := auth.UserFromContext(r.Context())
	setup, err := s.authSvc.SetupTOTP(r.Context(), claims.UserID)
	if err != nil {
		handleError(w, s.logger, err, "failed to set up 2FA")
		return
	}
	writeJSON(w, http.StatusOK, setup)
}

// HandleTOTPVerify handles POST /api/auth/2fa/verify
func (s *Server) HandleTOTPVerify(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodPost) {
		return
	}

	var req struct {
		Code string `json:"code"`
	}
	if readJSON(w, r, &req) != nil {
		return
	}

	claims := auth.UserFromContext(r.Context())
	if err := s.authSvc.VerifyTOTP(r.Context(), claims.UserID, req.Code); err != nil {
		handleError(w, s.logger, err, "failed to verify 2FA code")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

// HandleSessions handles GET /api/auth/sessions
func (s *Server) HandleSessions(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet) {
		return
	}

	claims := auth.UserFromContext(r.Context())
	sessions, err := s.authSvc.ListSessions(r.Context(), claims.UserID)
	if err != nil {
		handleError(w, s.logger, err, "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// HandleRevokeSession handles DELETE /api/auth/sessions/{sid}
func (s *Server) HandleRevokeSession(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodDelete) {
		return
	}

	claims := auth.UserFromContext(r.Context())
	sessionID := r.PathValue("sid")
	if err := s.authSvc.RevokeSession(r.Context(), claims.UserID, sessionID); err != nil {
		handleError(w, s.logger, err, "failed to revoke session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"revoked": sessionID})
}
