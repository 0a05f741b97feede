package payment

import (
	"log/slog"
	"time"
)

// ProcessorOption configures a Processor instance.
type ProcessorOption func(*Processor)

// WithLogger sets the structured logger. Nil loggers are ignored.
func WithLogger(log *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if log != nil {
			p.log = log
		}
	}
}

// WithDedupCache installs a fast-path duplicate filter in front of the
// database idempotency check.
func WithDedupCache(cache DedupCache) ProcessorOption {
	return func(p *Processor) {
		p.dedup = cache
	}
}

// WithCreditRetryQueue installs a durable queue for credit grants that
// failed with a storage error. Without it such failures are only logged.
func WithCreditRetryQueue(q CreditRetryQueue) ProcessorOption {
	return func(p *Processor) {
		p.retryQueue = q
	}
}

// WithNowFunc overrides the clock, mainly for tests.
func WithNowFunc(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}
