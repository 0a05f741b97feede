package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/creditkit/creditkit/pkg/ledger"
	"github.com/creditkit/creditkit/pkg/plan"
)

// DedupCache is an optional fast-path filter in front of the database
// idempotency check. Seen is consulted read-only before processing;
// MarkProcessed runs only after the audit insert commits, so a failed
// delivery is never cached and the provider's retry reaches the
// handlers again. A cache miss or error is never authoritative: the
// uniqueness constraint on the audit insert remains the real guard.
type DedupCache interface {
	// Seen reports whether the event ID was already fully processed.
	Seen(ctx context.Context, providerEventID string) (bool, error)

	// MarkProcessed caches the event ID once its side effects committed.
	MarkProcessed(ctx context.Context, providerEventID string) error
}

// CreditRetryQueue receives credit grants that failed with a transient
// storage error. The webhook is still acknowledged; the queued posting
// is retried out-of-band instead of relying on provider redelivery.
type CreditRetryQueue interface {
	Defer(ctx context.Context, e ledger.Entry, cause error) error
}

// Processor reconciles verified webhook events into payment records and
// credit grants. It is safe for concurrent use; redelivered and
// out-of-order events collapse via the audit table's uniqueness
// constraint and the ledger's reference IDs.
type Processor struct {
	provider Provider
	store    Store
	catalog  *plan.Catalog
	ledger   ledger.Service

	log        *slog.Logger
	dedup      DedupCache
	retryQueue CreditRetryQueue
	now        func() time.Time
}

// NewProcessor creates a webhook event processor. Panics if a required
// dependency is nil to fail fast during initialization.
func NewProcessor(provider Provider, store Store, catalog *plan.Catalog, ledgerSvc ledger.Service, opts ...ProcessorOption) *Processor {
	if provider == nil {
		panic("payment: Provider is required")
	}
	if store == nil {
		panic("payment: Store is required")
	}
	if catalog == nil {
		panic("payment: plan.Catalog is required")
	}
	if ledgerSvc == nil {
		panic("payment: ledger.Service is required")
	}

	p := &Processor{
		provider: provider,
		store:    store,
		catalog:  catalog,
		ledger:   ledgerSvc,
		log:      slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle processes one webhook delivery end to end: verify, dedupe,
// dispatch, record.
//
// Only two error classes surface to the caller: ErrSignatureInvalid
// (reject with 400 so a spoofed payload is never acknowledged) and
// storage failures (non-2xx so the provider retries). Everything else —
// duplicates, unmatched records, unknown event types, failed credit
// grants — is logged and acknowledged, because a retry storm cannot fix
// any of those.
func (p *Processor) Handle(ctx context.Context, payload []byte, signature string) error {
	ev, err := p.provider.ParseWebhook(ctx, payload, signature)
	if err != nil {
		return err
	}

	log := p.log.With(
		slog.String("provider", ev.Provider),
		slog.String("event_id", ev.ID),
		slog.String("event_type", ev.ProviderEvent),
	)

	if p.dedup != nil {
		if seen, err := p.dedup.Seen(ctx, ev.ID); err == nil && seen {
			log.DebugContext(ctx, "duplicate webhook delivery short-circuited by cache")
			return nil
		}
	}

	processed, err := p.store.IsEventProcessed(ctx, ev.ID)
	if err != nil {
		return err
	}
	if processed {
		log.DebugContext(ctx, "webhook event already processed")
		p.markProcessed(ctx, log, ev.ID)
		return nil
	}

	recordID, err := p.dispatch(ctx, log, ev)
	if err != nil {
		return err
	}

	err = p.store.InsertEvent(ctx, &Event{
		ID:              uuid.New(),
		RecordID:        recordID,
		EventType:       ev.ProviderEvent,
		ProviderEventID: ev.ID,
		RawPayload:      ev.Raw,
		CreatedAt:       p.now(),
	})
	if errors.Is(err, ErrEventAlreadyProcessed) {
		// A concurrent delivery won the insert race; its side effects are
		// the ones that count.
		log.DebugContext(ctx, "webhook event recorded by concurrent delivery")
		p.markProcessed(ctx, log, ev.ID)
		return nil
	}
	if err != nil {
		return err
	}
	p.markProcessed(ctx, log, ev.ID)
	return nil
}

// markProcessed caches a fully-committed event ID. Best effort: a cache
// write failure costs one extra database lookup on the next redelivery.
func (p *Processor) markProcessed(ctx context.Context, log *slog.Logger, eventID string) {
	if p.dedup == nil {
		return
	}
	if err := p.dedup.MarkProcessed(ctx, eventID); err != nil {
		log.DebugContext(ctx, "failed to cache processed webhook event", slog.Any("error", err))
	}
}

func (p *Processor) dispatch(ctx context.Context, log *slog.Logger, ev *WebhookEvent) (string, error) {
	switch ev.Type {
	case EventCheckoutCompleted:
		return p.handleCheckoutCompleted(ctx, log, ev)
	case EventSubscriptionCreated:
		return p.handleSubscriptionRefresh(ctx, log, ev, false)
	case EventSubscriptionUpdated:
		return p.handleSubscriptionRefresh(ctx, log, ev, true)
	case EventSubscriptionDeleted:
		return p.handleSubscriptionDeleted(ctx, log, ev)
	case EventInvoicePaid:
		return p.handleInvoicePaid(ctx, log, ev)
	case EventInvoicePaymentSucceeded, EventInvoicePaymentFailed:
		// Audit-only events: tag the record if one matches.
		rec, err := p.findRecordForSubscription(ctx, ev.SubscriptionID)
		if err != nil {
			return "", err
		}
		if rec == nil {
			return "", nil
		}
		return rec.ID, nil
	default:
		// The provider retries on non-2xx, so unhandled types must still
		// be acknowledged.
		log.InfoContext(ctx, "unhandled webhook event type acknowledged")
		return "", nil
	}
}

func (p *Processor) handleCheckoutCompleted(ctx context.Context, log *slog.Logger, ev *WebhookEvent) (string, error) {
	switch ev.Mode {
	case ModePayment:
		return p.handleOneTimeCheckout(ctx, log, ev)
	case ModeSubscription:
	default:
		log.WarnContext(ctx, "checkout completed with unknown mode", slog.String("mode", string(ev.Mode)))
		return "", nil
	}

	if ev.SubscriptionID == "" {
		log.WarnContext(ctx, "subscription checkout without subscription ID")
		return "", nil
	}

	existing, err := p.store.GetRecord(ctx, ev.SubscriptionID)
	if err == nil {
		// Duplicate delivery; the find is an optimization, the upsert key
		// is the guarantee.
		log.DebugContext(ctx, "payment record already exists for checkout",
			slog.String("record_id", existing.ID))
		return existing.ID, nil
	}
	if !errors.Is(err, ErrRecordNotFound) {
		return "", err
	}

	interval := plan.IntervalNone
	var grants plan.CreditGrants
	if pl, iv, perr := p.catalog.ResolvePrice(ev.PriceID); perr == nil {
		interval = iv
		grants = pl.Grants
	} else {
		log.WarnContext(ctx, "no plan configured for price, credit grant skipped",
			slog.String("price_id", ev.PriceID))
	}

	now := p.now()
	status := StatusFromProvider(ev.Status)
	if status == "" {
		status = StatusActive
	}
	rec := &Record{
		ID:                ev.SubscriptionID,
		PriceID:           ev.PriceID,
		Kind:              KindSubscription,
		BillingInterval:   interval,
		UserID:            ev.UserID,
		CustomerID:        ev.CustomerID,
		SubscriptionID:    ev.SubscriptionID,
		Status:            status,
		PeriodStart:       ev.PeriodStart,
		PeriodEnd:         ev.PeriodEnd,
		TrialStart:        ev.TrialStart,
		TrialEnd:          ev.TrialEnd,
		CancelAtPeriodEnd: ev.CancelAtPeriodEnd,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := p.store.UpsertRecord(ctx, rec); err != nil {
		return "", err
	}

	if rec.UserID != "" && grants.OnSubscribe > 0 {
		p.grant(ctx, log, ledger.Entry{
			UserID:      rec.UserID,
			Amount:      grants.OnSubscribe,
			Source:      ledger.SourceSubscription,
			Description: "subscription started",
			ReferenceID: subscribeRef(rec.SubscriptionID),
			Metadata:    map[string]string{"subscription_id": rec.SubscriptionID, "price_id": rec.PriceID},
		})
	}

	return rec.ID, nil
}

func (p *Processor) handleOneTimeCheckout(ctx context.Context, log *slog.Logger, ev *WebhookEvent) (string, error) {
	if ev.PaymentID == "" {
		log.WarnContext(ctx, "one-time checkout without payment ID")
		return "", nil
	}

	existing, err := p.store.GetRecord(ctx, ev.PaymentID)
	if err == nil {
		log.DebugContext(ctx, "payment record already exists for one-time checkout",
			slog.String("record_id", existing.ID))
		return existing.ID, nil
	}
	if !errors.Is(err, ErrRecordNotFound) {
		return "", err
	}

	var grants plan.CreditGrants
	if pl, _, perr := p.catalog.ResolvePrice(ev.PriceID); perr == nil {
		grants = pl.Grants
	} else {
		log.WarnContext(ctx, "no plan configured for price, credit grant skipped",
			slog.String("price_id", ev.PriceID))
	}

	now := p.now()
	rec := &Record{
		ID:              ev.PaymentID,
		PriceID:         ev.PriceID,
		Kind:            KindOneTime,
		BillingInterval: plan.IntervalNone,
		UserID:          ev.UserID,
		CustomerID:      ev.CustomerID,
		Status:          StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := p.store.UpsertRecord(ctx, rec); err != nil {
		return "", err
	}

	if rec.UserID != "" && grants.OnSubscribe > 0 {
		p.grant(ctx, log, ledger.Entry{
			UserID:      rec.UserID,
			Amount:      grants.OnSubscribe,
			Source:      ledger.SourceSubscription,
			Description: "one-time credit purchase",
			ReferenceID: purchaseRef(rec.ID),
			Metadata:    map[string]string{"payment_id": rec.ID, "price_id": rec.PriceID},
		})
	}

	return rec.ID, nil
}

// handleSubscriptionRefresh covers subscription.created and
// subscription.updated: both refresh lifecycle fields on an existing
// record; only updates react to price changes. A record created
// out-of-band (directly in the provider dashboard) has no known user, so
// it is logged and skipped rather than fabricated.
func (p *Processor) handleSubscriptionRefresh(ctx context.Context, log *slog.Logger, ev *WebhookEvent, detectPlanChange bool) (string, error) {
	rec, err := p.findRecordForSubscription(ctx, ev.SubscriptionID)
	if err != nil {
		return "", err
	}
	if rec == nil {
		log.WarnContext(ctx, "no payment record for subscription, skipping",
			slog.String("subscription_id", ev.SubscriptionID))
		return "", nil
	}

	if detectPlanChange && ev.PriceID != "" && ev.PriceID != rec.PriceID {
		p.applyPlanChange(ctx, log, rec, ev.PriceID)
	}

	p.refreshLifecycleFields(ctx, log, rec, ev)

	if err := p.store.UpsertRecord(ctx, rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

func (p *Processor) handleSubscriptionDeleted(ctx context.Context, log *slog.Logger, ev *WebhookEvent) (string, error) {
	rec, err := p.findRecordForSubscription(ctx, ev.SubscriptionID)
	if err != nil {
		return "", err
	}
	if rec == nil {
		log.WarnContext(ctx, "no payment record for deleted subscription, skipping",
			slog.String("subscription_id", ev.SubscriptionID))
		return "", nil
	}

	rec.Status = StatusCanceled
	rec.UpdatedAt = p.now()
	if err := p.store.UpsertRecord(ctx, rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

func (p *Processor) handleInvoicePaid(ctx context.Context, log *slog.Logger, ev *WebhookEvent) (string, error) {
	rec, err := p.findRecordForSubscription(ctx, ev.SubscriptionID)
	if err != nil {
		return "", err
	}
	if rec == nil {
		log.WarnContext(ctx, "no payment record for paid invoice, skipping",
			slog.String("subscription_id", ev.SubscriptionID))
		return "", nil
	}

	// The invoice that created the subscription is covered by the
	// checkout grant; only later invoices are renewals.
	if ev.BillingReason == BillingReasonSubscriptionCreate {
		return rec.ID, nil
	}
	if ev.InvoiceID == "" {
		log.WarnContext(ctx, "paid invoice without invoice ID, renewal credits skipped")
		return rec.ID, nil
	}
	if rec.UserID == "" {
		log.WarnContext(ctx, "payment record has no user, renewal credits skipped",
			slog.String("record_id", rec.ID))
		return rec.ID, nil
	}

	pl, interval, perr := p.catalog.ResolvePrice(rec.PriceID)
	if perr != nil {
		log.WarnContext(ctx, "no plan configured for price, renewal credits skipped",
			slog.String("price_id", rec.PriceID))
		return rec.ID, nil
	}

	if amount := pl.GrantFor(interval); amount > 0 {
		p.grant(ctx, log, ledger.Entry{
			UserID:      rec.UserID,
			Amount:      amount,
			Source:      ledger.SourceSubscription,
			Description: "subscription renewal credits",
			ReferenceID: renewalRef(rec.SubscriptionID, ev.InvoiceID),
			Metadata:    map[string]string{"subscription_id": rec.SubscriptionID, "invoice_id": ev.InvoiceID},
		})
	}

	return rec.ID, nil
}

// applyPlanChange posts upgrade credits before the record picks up the
// new price. Downgrades and lateral moves carry no credit action.
func (p *Processor) applyPlanChange(ctx context.Context, log *slog.Logger, rec *Record, newPriceID string) {
	change, err := p.catalog.DetectChange(rec.PriceID, newPriceID)
	if err != nil {
		log.WarnContext(ctx, "plan change not resolvable, credit adjustment skipped",
			slog.String("old_price_id", rec.PriceID),
			slog.String("new_price_id", newPriceID))
		return
	}

	rec.BillingInterval = change.Interval

	if !change.Upgrade || rec.UserID == "" {
		return
	}

	meta := map[string]string{
		"subscription_id": rec.SubscriptionID,
		"old_price_id":    rec.PriceID,
		"new_price_id":    newPriceID,
	}
	if change.CreditDelta > 0 {
		p.grant(ctx, log, ledger.Entry{
			UserID:      rec.UserID,
			Amount:      change.CreditDelta,
			Source:      ledger.SourceSubscription,
			Description: fmt.Sprintf("upgrade to %s", change.NewPlan.Name),
			ReferenceID: upgradeRef(rec.SubscriptionID, rec.PriceID, newPriceID),
			Metadata:    meta,
		})
	}
	if change.ImmediateCredits > 0 {
		p.grant(ctx, log, ledger.Entry{
			UserID:      rec.UserID,
			Amount:      change.ImmediateCredits,
			Source:      ledger.SourceBonus,
			Description: fmt.Sprintf("upgrade bonus for %s", change.NewPlan.Name),
			ReferenceID: upgradeBonusRef(rec.SubscriptionID, rec.PriceID, newPriceID),
			Metadata:    meta,
		})
	}
}

func (p *Processor) refreshLifecycleFields(ctx context.Context, log *slog.Logger, rec *Record, ev *WebhookEvent) {
	if ev.Status != "" {
		next := StatusFromProvider(ev.Status)
		if !ValidTransition(rec.Status, next) {
			// Out-of-order delivery; the provider's view still wins.
			log.WarnContext(ctx, "unexpected status transition",
				slog.String("from", string(rec.Status)),
				slog.String("to", string(next)))
		}
		rec.Status = next
	}
	if ev.PriceID != "" {
		rec.PriceID = ev.PriceID
	}
	if ev.PeriodStart != nil {
		rec.PeriodStart = ev.PeriodStart
	}
	if ev.PeriodEnd != nil {
		rec.PeriodEnd = ev.PeriodEnd
	}
	if ev.TrialStart != nil {
		rec.TrialStart = ev.TrialStart
	}
	if ev.TrialEnd != nil {
		rec.TrialEnd = ev.TrialEnd
	}
	rec.CancelAtPeriodEnd = ev.CancelAtPeriodEnd
	rec.UpdatedAt = p.now()
}

// findRecordForSubscription returns (nil, nil) for the expected gap of a
// subscription we never saw a checkout for; only storage failures
// propagate.
func (p *Processor) findRecordForSubscription(ctx context.Context, subscriptionID string) (*Record, error) {
	if subscriptionID == "" {
		return nil, nil
	}
	rec, err := p.store.GetRecordBySubscriptionID(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// grant posts an earn entry and swallows every failure: a duplicate
// reference means a previous delivery already granted it, and a storage
// failure is handed to the retry queue instead of failing the webhook.
func (p *Processor) grant(ctx context.Context, log *slog.Logger, e ledger.Entry) {
	_, err := p.ledger.Earn(ctx, e)
	switch {
	case err == nil:
	case errors.Is(err, ledger.ErrDuplicateReference):
		log.DebugContext(ctx, "credits already granted",
			slog.String("reference_id", e.ReferenceID))
	default:
		log.ErrorContext(ctx, "credit grant failed",
			slog.String("reference_id", e.ReferenceID),
			slog.String("user_id", e.UserID),
			slog.Int64("amount", e.Amount),
			slog.Any("error", err))
		if p.retryQueue != nil {
			if qerr := p.retryQueue.Defer(ctx, e, err); qerr != nil {
				log.ErrorContext(ctx, "failed to queue credit posting for retry",
					slog.String("reference_id", e.ReferenceID),
					slog.Any("error", qerr))
			}
		}
	}
}

func subscribeRef(subscriptionID string) string {
	return subscriptionID + "_subscribe"
}

func purchaseRef(paymentID string) string {
	return paymentID + "_purchase"
}

func renewalRef(subscriptionID, invoiceID string) string {
	return subscriptionID + "_" + invoiceID
}

// Upgrade reference IDs are derived only from stable identifiers so a
// retried delivery can never mint a second grant.
func upgradeRef(subscriptionID, oldPriceID, newPriceID string) string {
	return fmt.Sprintf("upgrade_%s_%s_%s", subscriptionID, oldPriceID, newPriceID)
}

func upgradeBonusRef(subscriptionID, oldPriceID, newPriceID string) string {
	return fmt.Sprintf("upgrade_bonus_%s_%s_%s", subscriptionID, oldPriceID, newPriceID)
}
