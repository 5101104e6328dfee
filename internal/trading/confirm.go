package trading

import (
	"context"
	"sync"
	"time"

	"securities-trader/internal/broker"
	"securities-trader/internal/errors"
)

// ConfirmationGate issues and verifies the one-time phone confirmation code
// required before an order is finalized. Code issuance and validation are
// delegated to the phone-verification collaborator; the gate only enforces
// the resend cooldown.
type ConfirmationGate struct {
	verifier broker.PhoneVerifier
	cooldown time.Duration

	mu       sync.Mutex
	lastSent time.Time
	now      func() time.Time
}

// NewConfirmationGate creates a new confirmation gate with the given resend
// cooldown interval.
func NewConfirmationGate(v broker.PhoneVerifier, cooldown time.Duration) *ConfirmationGate {
	return &ConfirmationGate{
		verifier: v,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// Send requests a confirmation code for the phone number. The cooldown starts
// on each successful send and blocks further sends until it elapses.
func (g *ConfirmationGate) Send(ctx context.Context, phone string) error {
	g.mu.Lock()
	if remaining := g.remainingLocked(); remaining > 0 {
		g.mu.Unlock()
		return errors.Wrapf(errors.ErrCooldownActive, "retry in %s", remaining.Round(time.Second))
	}
	g.mu.Unlock()

	if err := g.verifier.SendCode(ctx, phone); err != nil {
		// A failed send does not start the cooldown.
		return errors.Wrap(err, "sending confirmation code")
	}

	g.mu.Lock()
	g.lastSent = g.now()
	g.mu.Unlock()
	return nil
}

// Verify checks the code against the verification collaborator. A rejected
// code returns ErrCodeRejected and does not consume the resend cooldown.
func (g *ConfirmationGate) Verify(ctx context.Context, phone, code string) error {
	ok, err := g.verifier.VerifyCode(ctx, phone, code)
	if err != nil {
		return errors.Wrap(err, "verifying confirmation code")
	}
	if !ok {
		return errors.ErrCodeRejected
	}
	return nil
}

// RemainingCooldown returns how long until the next send is allowed.
func (g *ConfirmationGate) RemainingCooldown() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.remainingLocked()
}

func (g *ConfirmationGate) remainingLocked() time.Duration {
	if g.lastSent.IsZero() {
		return 0
	}
	remaining := g.cooldown - g.now().Sub(g.lastSent)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset clears the cooldown. Called when the order attempt is abandoned.
func (g *ConfirmationGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastSent = time.Time{}
}
