package mockapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"homesvc.app/client/internal/core/domain"
)

type subjectKey struct{}

func withSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

func subjectFrom(ctx context.Context) string {
	subject, _ := ctx.Value(subjectKey{}).(string)
	return subject
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.Credentials
	if !decode(w, r, &req) {
		return
	}

	identifier := req.Identifier
	if identifier == "" {
		identifier = req.Email
	}

	s.mu.Lock()
	account, ok := s.accounts[strings.ToLower(identifier)]
	if !ok || account.Password != req.Password {
		s.mu.Unlock()
		// The backend reports bad credentials in the envelope, not the status.
		writeFailure(w, http.StatusOK, "Invalid credentials")
		return
	}
	user := account.User
	pair := s.issueLocked(user.ID)
	s.mu.Unlock()

	writeSuccess(w, domain.AuthData{Token: pair, User: &user})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req domain.RefreshRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	delay, gate := s.refreshDelay, s.refreshGate
	failing := s.refreshFault > 0
	if failing {
		s.refreshFault--
	}
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if failing {
		writeFailure(w, http.StatusInternalServerError, "Refresh temporarily unavailable")
		return
	}

	s.mu.Lock()
	userID, ok := s.refreshTokens[req.RefreshToken]
	if !ok {
		s.mu.Unlock()
		writeFailure(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	delete(s.refreshTokens, req.RefreshToken)
	pair := s.issueLocked(userID)
	s.mu.Unlock()

	writeSuccess(w, domain.AuthData{Token: pair})
}

// handleExternalLogin treats the id token as the email of the external identity
func (s *Server) handleExternalLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.ExternalLoginRequest
	if !decode(w, r, &req) {
		return
	}
	if req.IDToken == "" || req.Provider == "" {
		writeFailure(w, http.StatusOK, "External login failed")
		return
	}

	email := strings.ToLower(req.IDToken)

	s.mu.Lock()
	account, ok := s.accounts[email]
	if !ok {
		role := req.Role
		if role == "" {
			role = "customer"
		}
		s.addAccount(Account{User: domain.User{
			ID:       uuid.NewString(),
			UserName: strings.Split(email, "@")[0],
			Email:    email,
			Type:     role,
		}})
		account = s.accounts[email]
	}
	user := account.User
	pair := s.issueLocked(user.ID)
	s.mu.Unlock()

	writeSuccess(w, domain.AuthData{Token: pair, User: &user})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req domain.ForgotPasswordRequest
	if !decode(w, r, &req) {
		return
	}
	s.issueOTP(w, req.Email)
}

func (s *Server) handleResendOTP(w http.ResponseWriter, r *http.Request) {
	var req domain.ResendOTPRequest
	if !decode(w, r, &req) {
		return
	}
	s.issueOTP(w, req.Email)
}

func (s *Server) issueOTP(w http.ResponseWriter, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[strings.ToLower(email)]; !ok {
		writeFailure(w, http.StatusOK, "User not found")
		return
	}
	s.otps[strings.ToLower(email)] = DefaultOTP
	writeSuccess(w, domain.Empty{})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req domain.ResetPasswordRequest
	if !decode(w, r, &req) {
		return
	}
	if req.NewPassword == "" || req.NewPassword != req.ConfirmPassword {
		writeFailure(w, http.StatusOK, "Passwords do not match")
		return
	}

	email := strings.ToLower(req.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[email]
	if !ok || s.otps[email] == "" || s.otps[email] != req.OTP {
		writeFailure(w, http.StatusOK, "Invalid or expired code")
		return
	}
	account.Password = req.NewPassword
	delete(s.otps, email)
	writeSuccess(w, domain.Empty{})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	user := s.userByIDLocked(subjectFrom(r.Context()))
	s.mu.Unlock()

	if user == nil {
		writeFailure(w, http.StatusNotFound, "User not found")
		return
	}
	writeSuccess(w, user)
}

func (s *Server) handleEcho(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, map[string]string{
		"method":  r.Method,
		"path":    r.URL.Path,
		"subject": subjectFrom(r.Context()),
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeFailure(w, http.StatusBadRequest, "Malformed request body")
		return false
	}
	return true
}

func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{
		"succeeded":  true,
		"data":       data,
		"message":    nil,
		"statusCode": http.StatusOK,
	})
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	code := status
	if code == http.StatusOK {
		code = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]any{
		"succeeded":  false,
		"data":       nil,
		"message":    message,
		"statusCode": code,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
