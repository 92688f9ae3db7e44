package service

import (
	"fmt"
	"sync"

	"github.com/dom/neighbor-group/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

const (
	bcryptCost        = 10
	minPasswordLength = 8
	// bcrypt ignores input past 72 bytes.
	maxPasswordBytes = 72
)

const passwordPolicyMessage = "Please enter a password at least 8 characters long that contains a lowercase letter, an uppercase letter, and a number."

// CredentialStore hashes and checks passwords and owns the password policy.
type CredentialStore struct {
	cost int

	dummyOnce sync.Once
	dummyHash []byte
}

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{cost: bcryptCost}
}

func (c *CredentialStore) Hash(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), c.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether secret matches digest. A malformed digest is a
// mismatch.
func (c *CredentialStore) Verify(secret, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
}

// EqualizeTiming spends one bcrypt comparison so that a lookup miss costs
// about as much as a wrong password.
func (c *CredentialStore) EqualizeTiming(secret string) {
	c.dummyOnce.Do(func() {
		c.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("equalize-timing"), c.cost)
	})
	_ = bcrypt.CompareHashAndPassword(c.dummyHash, []byte(secret))
}

func (c *CredentialStore) ValidateStrength(secret string) error {
	if len(secret) > maxPasswordBytes {
		return domain.NewValidationError("password", "Please enter a password no longer than 72 bytes.")
	}
	if len([]rune(secret)) < minPasswordLength {
		return domain.NewValidationError("password", passwordPolicyMessage)
	}

	var lower, upper, digit bool
	for _, r := range secret {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		}
	}
	if !lower || !upper || !digit {
		return domain.NewValidationError("password", passwordPolicyMessage)
	}
	return nil
}
