// Package external contains clients for services outside the process
// boundary: the AWS SES mail transport, its circuit-breaker wrapper, and the
// stub transport used in local and test runs.
package external

import (
	"context"

	"seasonmail/internal/types"
)

// EmailProvider is the outbound mail transport. Send transmits a fully
// rendered message and returns the provider's message id. Failures surface
// as errors carrying an AppError code so callers can classify them; nothing
// fails silently.
type EmailProvider interface {
	Send(ctx context.Context, input types.SendInput) (messageID string, err error)
}
