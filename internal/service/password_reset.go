package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/dom/neighbor-group/internal/domain"
	"github.com/dom/neighbor-group/internal/observability"
	"github.com/dom/neighbor-group/internal/repository"
)

const (
	resetIDBytes  = 20
	resetCodeSpan = 1_000_000
)

// PasswordResetFlow issues and redeems single-use reset tickets.
type PasswordResetFlow struct {
	resets  repository.PasswordResetRepository
	users   *UserDirectory
	metrics *observability.Metrics
}

func NewPasswordResetFlow(resets repository.PasswordResetRepository, users *UserDirectory, metrics *observability.Metrics) *PasswordResetFlow {
	return &PasswordResetFlow{
		resets:  resets,
		users:   users,
		metrics: metrics,
	}
}

// Start creates an unclaimed ticket for user and returns its id and code.
func (f *PasswordResetFlow) Start(ctx context.Context, user *domain.User) (ticketID, code string, err error) {
	ticketID, err = newTicketID()
	if err != nil {
		return "", "", err
	}
	code, err = newResetCode()
	if err != nil {
		return "", "", err
	}

	reset := &domain.PasswordReset{
		ID:     ticketID,
		UserID: user.ID,
		Code:   code,
		Status: domain.ResetUnclaimed,
	}
	if err := f.resets.Create(ctx, reset); err != nil {
		return "", "", fmt.Errorf("create password reset: %w", err)
	}

	f.metrics.PasswordReset("started")
	return ticketID, code, nil
}

// Verify claims the ticket if code matches and it is still unclaimed.
// Unknown tickets, wrong codes and claimed tickets are all ErrInvalidReset.
func (f *PasswordResetFlow) Verify(ctx context.Context, ticketID, code string) (*domain.User, error) {
	reset, err := f.resets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, f.invalid()
		}
		return nil, fmt.Errorf("load password reset: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(reset.Code), []byte(code)) != 1 {
		return nil, f.invalid()
	}
	if reset.Status != domain.ResetUnclaimed {
		return nil, f.invalid()
	}

	claimed, err := f.resets.Claim(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("claim password reset: %w", err)
	}
	if !claimed {
		return nil, f.invalid()
	}

	user, err := f.users.LoadByID(ctx, reset.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, f.invalid()
		}
		return nil, err
	}

	f.metrics.PasswordReset("claimed")
	return user, nil
}

func (f *PasswordResetFlow) invalid() error {
	f.metrics.PasswordReset("rejected")
	return domain.ErrInvalidReset
}

func newTicketID() (string, error) {
	b := make([]byte, resetIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate ticket id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func newResetCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(resetCodeSpan))
	if err != nil {
		return "", fmt.Errorf("generate reset code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
