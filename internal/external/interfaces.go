package external

import (
	"context"

	"clinicpulse/internal/types"
)

// EmailProvider abstracts the outbound email transport. Implementations
// transmit pre-rendered content as-is and return the provider's message
// identifier on success.
//
// Implementations map provider failures onto the shared error codes:
// blocked or suppressed recipients become ErrCodeEmailBlocked, throttling
// becomes ErrCodeUpstreamRateLimited, outages become
// ErrCodeUpstreamUnavailable, and everything else becomes
// ErrCodeUpstreamEmailProvider.
type EmailProvider interface {
	Send(ctx context.Context, input types.SendInput) (string, error)
}
