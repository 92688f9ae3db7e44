package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dom/neighbor-group/internal/domain"
	"github.com/dom/neighbor-group/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	sessionKeyOption = "session.key"
	sessionKeyBytes  = 32
)

// BoundSession is the identity a session token resolves to.
type BoundSession struct {
	ID        uuid.UUID
	UserID    int64
	ExpiresAt time.Time
}

// SessionBinding mints signed session tokens backed by a session row, so
// that revoking the row invalidates the token.
type SessionBinding struct {
	sessions repository.SessionRepository
	key      []byte
	ttl      time.Duration
	now      func() time.Time
}

func NewSessionBinding(sessions repository.SessionRepository, key []byte, ttl time.Duration) *SessionBinding {
	return &SessionBinding{
		sessions: sessions,
		key:      key,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (b *SessionBinding) WithClock(now func() time.Time) *SessionBinding {
	b.now = now
	return b
}

// LoadSessionKey returns the configured key, or the one persisted in the
// options table, generating and storing it on first use.
func LoadSessionKey(ctx context.Context, options repository.OptionRepository, configured string) ([]byte, error) {
	if configured != "" {
		return []byte(configured), nil
	}

	stored, err := options.Get(ctx, sessionKeyOption)
	if err == nil && stored != "" {
		return []byte(stored), nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("load session key: %w", err)
	}

	b := make([]byte, sessionKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generate session key: %w", err)
	}
	key := hex.EncodeToString(b)
	if err := options.Set(ctx, sessionKeyOption, key); err != nil {
		return nil, fmt.Errorf("store session key: %w", err)
	}
	return []byte(key), nil
}

// Bind starts a session for userID and returns its token.
func (b *SessionBinding) Bind(ctx context.Context, userID int64) (string, *BoundSession, error) {
	now := b.now().UTC()
	session := &domain.UserSession{
		ID:        uuid.New(),
		UserID:    userID,
		ExpiresAt: now.Add(b.ttl),
		CreatedAt: now,
	}
	if err := b.sessions.Create(ctx, session); err != nil {
		return "", nil, fmt.Errorf("create session: %w", err)
	}

	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		ID:        session.ID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.key)
	if err != nil {
		return "", nil, fmt.Errorf("sign session: %w", err)
	}

	return token, &BoundSession{ID: session.ID, UserID: userID, ExpiresAt: session.ExpiresAt}, nil
}

// Resolve maps a token to its live session. Every failure is
// ErrUnauthenticated.
func (b *SessionBinding) Resolve(ctx context.Context, token string) (*BoundSession, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return b.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(b.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}

	sessionID, err := uuid.Parse(claims.ID)
	if err != nil {
		return nil, domain.ErrUnauthenticated
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, domain.ErrUnauthenticated
	}

	session, err := b.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnauthenticated
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session.UserID != userID || !b.now().Before(session.ExpiresAt) {
		return nil, domain.ErrUnauthenticated
	}

	return &BoundSession{ID: session.ID, UserID: session.UserID, ExpiresAt: session.ExpiresAt}, nil
}

func (b *SessionBinding) Revoke(ctx context.Context, sessionID uuid.UUID) error {
	return b.sessions.Delete(ctx, sessionID)
}

func (b *SessionBinding) RevokeUser(ctx context.Context, userID int64) error {
	return b.sessions.DeleteByUserID(ctx, userID)
}

// PruneExpired deletes sessions past their expiry and returns how many.
func (b *SessionBinding) PruneExpired(ctx context.Context) (int64, error) {
	return b.sessions.DeleteExpired(ctx, b.now().UTC())
}
