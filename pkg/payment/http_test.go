package payment_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/creditkit/creditkit/pkg/ledger"
	"github.com/creditkit/creditkit/pkg/payment"
	"github.com/creditkit/creditkit/pkg/plan"
)

func postWebhook(t *testing.T, handler http.HandlerFunc, signature string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{}`))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func TestProcessor_HTTPHandler(t *testing.T) {
	t.Parallel()

	t.Run("acknowledges processed event", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		ev := subscriptionCheckout("evt_1")
		env.provider.ev = &ev

		rr := postWebhook(t, env.proc.HTTPHandler(), "sig")
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, int64(500), env.balance(t, "user_1"))
	})

	t.Run("missing signature header", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		rr := postWebhook(t, env.proc.HTTPHandler(), "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("invalid signature", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		env.provider.err = payment.ErrSignatureInvalid

		rr := postWebhook(t, env.proc.HTTPHandler(), "bad")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("malformed payload", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		env.provider.err = payment.ErrMalformedPayload

		rr := postWebhook(t, env.proc.HTTPHandler(), "sig")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("storage failure returns 500 for provider retry", func(t *testing.T) {
		t.Parallel()

		mockStore := new(MockStore)
		defer mockStore.AssertExpectations(t)
		mockStore.On("IsEventProcessed", mock.Anything, "evt_1").
			Return(false, payment.ErrStoreFailure)

		catalog, err := plan.NewCatalog(context.Background(), plan.NewInMemSource(plan.Plan{ID: "free"}))
		require.NoError(t, err)

		ev := subscriptionCheckout("evt_1")
		proc := payment.NewProcessor(&stubProvider{ev: &ev}, mockStore, catalog,
			ledger.NewService(ledger.NewMemoryStore()))

		rr := postWebhook(t, proc.HTTPHandler(), "sig")
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}
