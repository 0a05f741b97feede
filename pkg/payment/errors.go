package payment

import "errors"

var (
	ErrSignatureInvalid      = errors.New("webhook signature verification failed")
	ErrMalformedPayload      = errors.New("malformed webhook payload")
	ErrEventAlreadyProcessed = errors.New("webhook event already processed")
	ErrRecordNotFound        = errors.New("payment record not found")
	ErrStoreFailure          = errors.New("payment store failure")
	ErrProviderFailure       = errors.New("payment provider request failed")

	ErrMissingAPIKey        = errors.New("payment provider API key is required")
	ErrMissingWebhookSecret = errors.New("payment provider webhook secret is required")
)
