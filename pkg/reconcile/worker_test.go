package reconcile_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creditkit/creditkit/pkg/ledger"
	"github.com/creditkit/creditkit/pkg/reconcile"
)

// flakyLedger fails Earn a set number of times before succeeding
// against the wrapped service.
type flakyLedger struct {
	ledger.Service
	failures int
	calls    int
}

func (f *flakyLedger) Earn(ctx context.Context, e ledger.Entry) (*ledger.Transaction, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, ledger.ErrStoreFailure
	}
	return f.Service.Earn(ctx, e)
}

func enqueueDue(t *testing.T, store reconcile.Store, p reconcile.Posting) reconcile.Posting {
	t.Helper()

	if p.ID == (uuid.UUID{}) {
		p.ID = uuid.New()
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 3
	}
	p.NextAttemptAt = time.Now().UTC().Add(-time.Second)
	p.CreatedAt = time.Now().UTC()
	require.NoError(t, store.Enqueue(context.Background(), &p))
	return p
}

func TestNewWorker(t *testing.T) {
	t.Parallel()

	_, err := reconcile.NewWorker(nil, ledger.NewService(ledger.NewMemoryStore()))
	assert.ErrorIs(t, err, reconcile.ErrStoreNil)

	_, err = reconcile.NewWorker(reconcile.NewMemoryStore(), nil)
	assert.ErrorIs(t, err, reconcile.ErrLedgerNil)
}

func TestWorker_ProcessDue(t *testing.T) {
	t.Parallel()

	t.Run("applies due posting", func(t *testing.T) {
		t.Parallel()

		store := reconcile.NewMemoryStore()
		svc := ledger.NewService(ledger.NewMemoryStore())
		worker, err := reconcile.NewWorker(store, svc)
		require.NoError(t, err)

		enqueueDue(t, store, reconcile.Posting{
			UserID:      "user_1",
			Amount:      500,
			Source:      ledger.SourceSubscription,
			ReferenceID: "sub_1_subscribe",
		})

		worker.ProcessDue(context.Background())

		acc, err := svc.GetAccount(context.Background(), "user_1")
		require.NoError(t, err)
		assert.Equal(t, int64(500), acc.Balance)

		// The queue is drained.
		due, err := store.ClaimDue(context.Background(), time.Now().UTC().Add(time.Hour), 10, time.Minute)
		require.NoError(t, err)
		assert.Empty(t, due)
	})

	t.Run("duplicate reference counts as success", func(t *testing.T) {
		t.Parallel()

		store := reconcile.NewMemoryStore()
		svc := ledger.NewService(ledger.NewMemoryStore())
		worker, err := reconcile.NewWorker(store, svc)
		require.NoError(t, err)

		// The grant already landed through a webhook redelivery.
		_, err = svc.Earn(context.Background(), ledger.Entry{
			UserID:      "user_1",
			Amount:      500,
			Source:      ledger.SourceSubscription,
			ReferenceID: "sub_1_subscribe",
		})
		require.NoError(t, err)

		enqueueDue(t, store, reconcile.Posting{
			UserID:      "user_1",
			Amount:      500,
			Source:      ledger.SourceSubscription,
			ReferenceID: "sub_1_subscribe",
		})

		worker.ProcessDue(context.Background())

		acc, err := svc.GetAccount(context.Background(), "user_1")
		require.NoError(t, err)
		assert.Equal(t, int64(500), acc.Balance, "no double grant")

		due, err := store.ClaimDue(context.Background(), time.Now().UTC().Add(time.Hour), 10, time.Minute)
		require.NoError(t, err)
		assert.Empty(t, due, "posting completed, not retried")
	})

	t.Run("transient failure reschedules then succeeds", func(t *testing.T) {
		t.Parallel()

		store := reconcile.NewMemoryStore()
		flaky := &flakyLedger{Service: ledger.NewService(ledger.NewMemoryStore()), failures: 1}
		worker, err := reconcile.NewWorker(store, flaky,
			reconcile.WithWorkerBackoff(reconcile.Backoff{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}))
		require.NoError(t, err)

		enqueueDue(t, store, reconcile.Posting{
			UserID:      "user_1",
			Amount:      250,
			Source:      ledger.SourceSubscription,
			ReferenceID: "sub_1_in_2",
		})

		worker.ProcessDue(context.Background())
		_, err = flaky.Service.GetAccount(context.Background(), "user_1")
		assert.ErrorIs(t, err, ledger.ErrAccountNotFound, "first attempt failed")

		time.Sleep(5 * time.Millisecond)
		worker.ProcessDue(context.Background())

		acc, err := flaky.Service.GetAccount(context.Background(), "user_1")
		require.NoError(t, err)
		assert.Equal(t, int64(250), acc.Balance)
	})

	t.Run("exhausted posting moves to dead letter", func(t *testing.T) {
		t.Parallel()

		store := reconcile.NewMemoryStore()
		flaky := &flakyLedger{Service: ledger.NewService(ledger.NewMemoryStore()), failures: 100}
		worker, err := reconcile.NewWorker(store, flaky,
			reconcile.WithWorkerBackoff(reconcile.Backoff{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}))
		require.NoError(t, err)

		p := enqueueDue(t, store, reconcile.Posting{
			UserID:      "user_1",
			Amount:      500,
			Source:      ledger.SourceSubscription,
			ReferenceID: "sub_1_subscribe",
			MaxAttempts: 2,
		})

		for range 3 {
			worker.ProcessDue(context.Background())
			time.Sleep(5 * time.Millisecond)
		}

		dead, err := store.ListDeadLetters(context.Background(), 10)
		require.NoError(t, err)
		require.Len(t, dead, 1)
		assert.Equal(t, p.ID, dead[0].PostingID)
		assert.Equal(t, "sub_1_subscribe", dead[0].ReferenceID)
		assert.Equal(t, 2, dead[0].Attempts)
		assert.NotEmpty(t, dead[0].LastError)

		due, err := store.ClaimDue(context.Background(), time.Now().UTC().Add(time.Hour), 10, time.Minute)
		require.NoError(t, err)
		assert.Empty(t, due, "dead-lettered posting left the live queue")
	})
}

func TestWorker_Run(t *testing.T) {
	t.Parallel()

	store := reconcile.NewMemoryStore()
	svc := ledger.NewService(ledger.NewMemoryStore())
	worker, err := reconcile.NewWorker(store, svc,
		reconcile.WithPollInterval(5*time.Millisecond))
	require.NoError(t, err)

	enqueueDue(t, store, reconcile.Posting{
		UserID:      "user_1",
		Amount:      100,
		Source:      ledger.SourceBonus,
		ReferenceID: "signup_user_1",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err = worker.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	acc, err := svc.GetAccount(context.Background(), "user_1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), acc.Balance)
}

func TestWorker_RunStopsCleanlyOnCancel(t *testing.T) {
	t.Parallel()

	worker, err := reconcile.NewWorker(reconcile.NewMemoryStore(), ledger.NewService(ledger.NewMemoryStore()),
		reconcile.WithPollInterval(5*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err, "cancellation is a normal shutdown")
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestQueue_Defer(t *testing.T) {
	t.Parallel()

	t.Run("nil store", func(t *testing.T) {
		t.Parallel()

		_, err := reconcile.NewQueue(nil)
		assert.ErrorIs(t, err, reconcile.ErrStoreNil)
	})

	t.Run("stores posting with backoff delay", func(t *testing.T) {
		t.Parallel()

		store := reconcile.NewMemoryStore()
		queue, err := reconcile.NewQueue(store,
			reconcile.WithMaxAttempts(3),
			reconcile.WithQueueBackoff(reconcile.Backoff{InitialInterval: time.Minute, MaxInterval: time.Minute}))
		require.NoError(t, err)

		err = queue.Defer(context.Background(), ledger.Entry{
			UserID:      "user_1",
			Amount:      500,
			Source:      ledger.SourceSubscription,
			ReferenceID: "sub_1_subscribe",
			Metadata:    map[string]string{"subscription_id": "sub_1"},
		}, errors.New("connection refused"))
		require.NoError(t, err)

		// Not due yet: the first retry waits out the initial interval.
		due, err := store.ClaimDue(context.Background(), time.Now().UTC(), 10, time.Minute)
		require.NoError(t, err)
		assert.Empty(t, due)

		due, err = store.ClaimDue(context.Background(), time.Now().UTC().Add(2*time.Minute), 10, time.Minute)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, "sub_1_subscribe", due[0].ReferenceID)
		assert.Equal(t, int64(500), due[0].Amount)
		assert.Equal(t, 3, due[0].MaxAttempts)
		assert.Equal(t, "connection refused", due[0].LastError)
	})
}

func TestBackoff_NextInterval(t *testing.T) {
	t.Parallel()

	b := reconcile.Backoff{
		InitialInterval: 30 * time.Second,
		MaxInterval:     30 * time.Minute,
		Multiplier:      2,
	}

	assert.Equal(t, 30*time.Second, b.NextInterval(1))
	assert.Equal(t, time.Minute, b.NextInterval(2))
	assert.Equal(t, 2*time.Minute, b.NextInterval(3))
	assert.Equal(t, 30*time.Minute, b.NextInterval(20), "capped at max")
	assert.Zero(t, b.NextInterval(0))

	jittered := reconcile.Backoff{
		InitialInterval: time.Minute,
		MaxInterval:     time.Hour,
		Multiplier:      2,
		JitterFactor:    0.2,
	}
	got := jittered.NextInterval(1)
	assert.GreaterOrEqual(t, got, 48*time.Second)
	assert.LessOrEqual(t, got, 72*time.Second)
}
