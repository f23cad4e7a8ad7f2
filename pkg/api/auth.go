package api

import (
	"context"
	"net/http"
	"strings"

	"cloudrive/pkg/auth"
	"cloudrive/pkg/fault"
	"cloudrive/pkg/types"

	"go.uber.org/zap"
)

type contextKey string

const userIDKey contextKey = "user_id"

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID    types.UserID `json:"id"`
	Email string       `json:"email"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		s.writeError(w, fault.New(fault.Invalid, "email and password are required"))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}

	user, err := s.store.CreateUser(r.Context(), req.Email, hash)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info("User registered", zap.String("email", user.Email))
	s.writeJSON(w, http.StatusCreated, userResponse{ID: user.ID, Email: user.Email})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	// A missing account and a wrong password read the same to a caller.
	user, hash, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil || !auth.VerifyPassword(req.Password, hash) {
		s.writeError(w, fault.New(fault.Unauthorized, "incorrect email or password"))
		return
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

// requireAuth resolves the bearer token to a live user and stores the
// user id on the request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			s.writeError(w, fault.New(fault.Unauthorized, "missing bearer token"))
			return
		}

		userID, err := s.tokens.Verify(token)
		if err != nil {
			s.writeError(w, err)
			return
		}

		if _, err := s.store.GetUser(r.Context(), userID); err != nil {
			s.writeError(w, fault.New(fault.Unauthorized, "token refers to an unknown user"))
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestUser(r *http.Request) types.UserID {
	id, _ := r.Context().Value(userIDKey).(types.UserID)
	return id
}
