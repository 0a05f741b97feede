package payment

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
)

// Webhook bodies are small; the limit guards against misdirected uploads.
const maxWebhookBody = 1 << 20

// HTTPHandler returns the webhook endpoint for this processor's
// provider. 400 is returned only for signature verification failures;
// storage failures return 500 so the provider retries; every other
// outcome — duplicates, unmatched records, unknown types — is a 200 to
// stop redelivery.
func (p *Processor) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}

		signature := r.Header.Get(p.provider.SignatureHeader())
		if signature == "" {
			http.Error(w, "missing signature", http.StatusBadRequest)
			return
		}

		if err := p.Handle(r.Context(), payload, signature); err != nil {
			if errors.Is(err, ErrSignatureInvalid) || errors.Is(err, ErrMalformedPayload) {
				http.Error(w, "invalid signature", http.StatusBadRequest)
				return
			}
			p.log.ErrorContext(r.Context(), "webhook processing failed",
				slog.String("provider", p.provider.Name()),
				slog.Any("error", err))
			http.Error(w, "webhook processing failed", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}
