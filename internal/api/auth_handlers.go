package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"sonil/dashboard/internal/session"
	"sonil/dashboard/internal/upstream"
)

type userView struct {
	Username string `json:"username"`
	Fullname string `json:"fullname"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" || in.Password == "" {
		respondError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	limitKey := clientIP(r) + "|" + strings.ToLower(in.Username)
	if !s.loginLimiter.allow(limitKey) {
		respondError(w, http.StatusTooManyRequests, "too many login attempts, try again later")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	up, err := s.upstream.Login(ctx, in.Username, in.Password)
	if err != nil {
		if errors.Is(err, upstream.ErrUnauthorized) {
			respondError(w, http.StatusUnauthorized, "invalid username or password")
			return
		}
		logger.Error().Err(err).Msg("upstream login")
		respondError(w, http.StatusBadGateway, "upstream service unavailable")
		return
	}

	sess, err := s.sessions.Create(ctx, session.NewSession{
		Username:       up.User.Username,
		Fullname:       up.User.Fullname,
		UpstreamUserID: up.User.ID,
		Token:          up.Token,
	}, s.sessionTTL)
	if err != nil {
		logger.Error().Err(err).Msg("create session")
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	token, err := s.signToken(sess)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to sign token")
		return
	}
	s.loginLimiter.reset(limitKey)
	logger.Info().Str("user", sess.Username).Msg("login")

	respondJSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"expiresAt": sess.ExpiresAt,
		"user":      userView{Username: sess.Username, Fullname: sess.Fullname},
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "invalid auth context")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.sessions.Delete(ctx, sess.ID); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("delete session")
		respondError(w, http.StatusInternalServerError, "failed to end session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "invalid auth context")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user":      userView{Username: sess.Username, Fullname: sess.Fullname},
		"expiresAt": sess.ExpiresAt,
	})
}
