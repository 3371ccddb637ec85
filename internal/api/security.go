package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"sonil/dashboard/internal/session"
)

// signToken issues the dashboard token. It only names the server-side
// session; the upstream token never leaves the database.
func (s *Server) signToken(sess session.Session) (string, error) {
	claims := jwt.MapClaims{
		"sid": sess.ID.String(),
		"sub": sess.Username,
		"exp": sess.ExpiresAt.Unix(),
		"iat": time.Now().Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

func (s *Server) parseToken(tokenString string) (uuid.UUID, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	if !token.Valid {
		return uuid.Nil, errors.New("invalid token")
	}

	raw, ok := claims["sid"].(string)
	if !ok {
		return uuid.Nil, errors.New("token carries no session")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("token session: %w", err)
	}
	return id, nil
}
