package payment

import "context"

// Provider defines the minimal interface for payment provider
// integrations. This abstraction allows support for different providers
// (Stripe, Paddle) while avoiding vendor lock-in; the provider handles
// payment collection, signature schemes, and payload shapes internally
// and hands the processor one normalized event.
type Provider interface {
	// Name identifies the provider ("stripe", "paddle").
	Name() string

	// SignatureHeader returns the HTTP header carrying the webhook
	// signature for this provider.
	SignatureHeader() string

	// ParseWebhook verifies the signature and decodes the payload into a
	// normalized event. Returns ErrSignatureInvalid when verification
	// fails; no other processing happens in that case. Implementations
	// may call back to the provider's API to expand detail the webhook
	// payload omits (line items, price IDs).
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error)
}
