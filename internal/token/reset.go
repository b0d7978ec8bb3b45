package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/helios-sis/helios-sis/internal/principal"
	"github.com/helios-sis/helios-sis/internal/shared"
)

// ResetStore persists reset-token digests on principal records. Only the
// SHA-256 digest of a reset token is ever stored; the raw token travels
// out-of-band to the account owner.
type ResetStore interface {
	SetPasswordResetToken(ctx context.Context, principalID int64, digest string, expiresAt time.Time) error
	FindByPasswordResetDigest(ctx context.Context, digest string) (*principal.Principal, error)
	ClearPasswordResetToken(ctx context.Context, principalID int64) error
}

// ResetService issues single-use password reset tokens.
type ResetService struct {
	store ResetStore
	ttl   time.Duration
	now   func() time.Time
}

// NewResetService constructs a ResetService.
func NewResetService(store ResetStore, ttl time.Duration) *ResetService {
	return &ResetService{store: store, ttl: ttl, now: time.Now}
}

// Issue generates a high-entropy token, persists its digest with an expiry
// and returns the raw token for out-of-band delivery.
func (s *ResetService) Issue(ctx context.Context, principalID int64) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("token: reset entropy: %w", err)
	}
	raw := hex.EncodeToString(buf)
	if err := s.store.SetPasswordResetToken(ctx, principalID, digest(raw), s.now().Add(s.ttl)); err != nil {
		return "", err
	}
	return raw, nil
}

// Verify resolves a raw reset token to its principal. Expired or unknown
// tokens yield ErrInvalid.
func (s *ResetService) Verify(ctx context.Context, raw string) (*principal.Principal, error) {
	if raw == "" {
		return nil, ErrInvalid
	}
	p, err := s.store.FindByPasswordResetDigest(ctx, digest(raw))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, ErrInvalid
		}
		return nil, err
	}
	return p, nil
}

// Clear removes the stored digest, enforcing single use.
func (s *ResetService) Clear(ctx context.Context, principalID int64) error {
	return s.store.ClearPasswordResetToken(ctx, principalID)
}

func digest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
