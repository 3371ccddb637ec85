// Package session keeps dashboard logins server-side. The upstream bearer
// token is sealed with NaCl secretbox before it reaches the database.
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/nacl/secretbox"
)

var ErrNotFound = errors.New("session not found")

var errSealed = errors.New("sealed token unreadable")

type Session struct {
	ID             uuid.UUID
	Username       string
	Fullname       string
	UpstreamUserID string
	Token          string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

type Store struct {
	db  *sql.DB
	key [32]byte
	now func() time.Time
}

func NewStore(db *sql.DB, secret string) *Store {
	return &Store{
		db:  db,
		key: sha256.Sum256([]byte("session-seal:" + secret)),
		now: func() time.Time { return time.Now().UTC() },
	}
}

type NewSession struct {
	Username       string
	Fullname       string
	UpstreamUserID string
	Token          string
}

func (s *Store) Create(ctx context.Context, in NewSession, ttl time.Duration) (Session, error) {
	sealed, err := s.seal(in.Token)
	if err != nil {
		return Session{}, err
	}

	now := s.now()
	out := Session{
		ID:             uuid.New(),
		Username:       in.Username,
		Fullname:       in.Fullname,
		UpstreamUserID: in.UpstreamUserID,
		Token:          in.Token,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, username, fullname, upstream_user, sealed_token, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, out.ID, out.Username, out.Fullname, out.UpstreamUserID, sealed, out.CreatedAt, out.ExpiresAt)
	if err != nil {
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (Session, error) {
	out := Session{ID: id}
	var sealed []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT username, fullname, upstream_user, sealed_token, created_at, expires_at
		FROM sessions
		WHERE id = $1 AND expires_at > $2
	`, id, s.now()).Scan(&out.Username, &out.Fullname, &out.UpstreamUserID, &sealed, &out.CreatedAt, &out.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("load session: %w", err)
	}

	token, err := s.open(sealed)
	if err != nil {
		return Session{}, err
	}
	out.Token = token
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, s.now())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) seal(token string) ([]byte, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("session nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], []byte(token), &nonce, &s.key), nil
}

func (s *Store) open(sealed []byte) (string, error) {
	if len(sealed) < 24+secretbox.Overhead {
		return "", errSealed
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plain, ok := secretbox.Open(nil, sealed[24:], &nonce, &s.key)
	if !ok {
		return "", errSealed
	}
	return string(plain), nil
}
