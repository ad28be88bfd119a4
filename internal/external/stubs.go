package external

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"seasonmail/internal/email"
	"seasonmail/internal/types"
)

// StubEmailProvider implements EmailProvider by logging sends and returning
// deterministic message ids. Used when EMAIL_TEST_MODE is set so the service
// can run locally without SES credentials and without mail leaving the
// process. It records sent inputs for inspection in tests.
type StubEmailProvider struct {
	logger *slog.Logger

	mu    sync.Mutex
	sent  []types.SendInput
	count int
}

// NewStubEmailProvider creates a new StubEmailProvider.
func NewStubEmailProvider(logger *slog.Logger) *StubEmailProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubEmailProvider{logger: logger}
}

// Send logs the message and returns a synthetic message id.
func (s *StubEmailProvider) Send(ctx context.Context, input types.SendInput) (string, error) {
	s.mu.Lock()
	s.sent = append(s.sent, input)
	s.count++
	id := fmt.Sprintf("stub-msg-%04d", s.count)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "stub: email send",
		"to", email.RedactEmail(input.To),
		"subject", input.Subject,
		"message_id", id,
	)
	return id, nil
}

// Sent returns a copy of every input passed to Send.
func (s *StubEmailProvider) Sent() []types.SendInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.SendInput, len(s.sent))
	copy(out, s.sent)
	return out
}

// Compile-time assertion that StubEmailProvider satisfies EmailProvider.
var _ EmailProvider = (*StubEmailProvider)(nil)
