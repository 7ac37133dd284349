package billing

import (
	"context"
	"strings"
	"time"

	"github.com/draftboardhq/draftboard-backend/pkg/domain"
	"github.com/draftboardhq/draftboard-backend/pkg/entitlements"
	"github.com/draftboardhq/draftboard-backend/pkg/logger"
	"github.com/draftboardhq/draftboard-backend/pkg/metrics"
	"github.com/draftboardhq/draftboard-backend/pkg/models"
	"github.com/draftboardhq/draftboard-backend/pkg/plans"
	"github.com/draftboardhq/draftboard-backend/pkg/store"
)

// Trigger labels identify which adapter invoked a reconciliation.
const (
	TriggerWebhook  = "webhook"
	TriggerCheckout = "checkout"
	TriggerSweep    = "sweep"
)

// fallbackPeriod is assumed when the provider omits both the period end and
// a cancellation date. Downstream expiry logic needs a concrete end date.
const fallbackPeriod = 30 * 24 * time.Hour

// Reconciler idempotently merges provider subscription snapshots into the
// persisted rows. Webhooks, post-checkout verification and the periodic
// sweep all funnel into the single Reconcile entry point, so racing
// triggers converge on the same state instead of fighting over three write
// paths.
type Reconciler struct {
	store        store.Store
	catalog      *plans.Catalog
	materializer *plans.Materializer
	calculator   *entitlements.Calculator
	metrics      *metrics.Metrics
	log          logger.Logger
}

// NewReconciler creates a subscription reconciler. m may be nil.
func NewReconciler(st store.Store, catalog *plans.Catalog, materializer *plans.Materializer, calculator *entitlements.Calculator, m *metrics.Metrics, log logger.Logger) *Reconciler {
	return &Reconciler{
		store:        st,
		catalog:      catalog,
		materializer: materializer,
		calculator:   calculator,
		metrics:      m,
		log:          log,
	}
}

// Reconcile merges one snapshot into the store. The snapshot is always
// treated as more current than the persisted row: each trigger only fires
// after observing a real provider-side change, so last writer wins by
// retrieval order and no timestamps are compared.
func (r *Reconciler) Reconcile(ctx context.Context, snap *models.ProviderSubscription, trigger string) (*models.Subscription, error) {
	start := time.Now()
	sub, err := r.reconcile(ctx, snap)

	if r.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		r.metrics.ReconciliationsTotal.WithLabelValues(trigger, outcome).Inc()
		r.metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}

	r.calculator.InvalidateUser(ctx, sub.UserID)
	r.log.Info("subscription reconciled",
		"trigger", trigger,
		"provider_subscription_id", snap.ID,
		"status", sub.Status,
		"user_id", sub.UserID,
	)
	return sub, nil
}

func (r *Reconciler) reconcile(ctx context.Context, snap *models.ProviderSubscription) (*models.Subscription, error) {
	planName, _, err := r.catalog.ResolvePrice(snap.PriceID)
	if err != nil {
		// Never guess a plan: mis-mapping billing state is worse than
		// failing this attempt.
		r.log.Error("unresolvable provider price id",
			"price_id", snap.PriceID,
			"provider_subscription_id", snap.ID,
		)
		return nil, err
	}

	planID, err := r.materializer.EnsurePlan(ctx, planName)
	if err != nil {
		return nil, err
	}

	var result *models.Subscription
	err = r.store.WithinTx(ctx, func(tx store.Store) error {
		existing, err := tx.GetSubscriptionByProviderID(ctx, snap.ID)
		if err == nil {
			result, err = r.applyUpdate(ctx, tx, existing, snap, planID, planName)
			return err
		}
		if !domain.IsNotFound(err) {
			return err
		}

		result, err = r.createNew(ctx, tx, snap, planID, planName)
		if domain.IsConflict(err) {
			// Lost a concurrent insert race on the unique provider
			// subscription id; the winner's row exists now, so fall back to
			// the update path instead of erroring the caller.
			existing, gerr := tx.GetSubscriptionByProviderID(ctx, snap.ID)
			if gerr != nil {
				return gerr
			}
			result, err = r.applyUpdate(ctx, tx, existing, snap, planID, planName)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// applyUpdate overwrites the persisted row from the snapshot. canceledAt is
// cleared only on reactivation; a routine status refresh must never erase a
// previously recorded cancellation.
func (r *Reconciler) applyUpdate(ctx context.Context, tx store.Store, existing *models.Subscription, snap *models.ProviderSubscription, planID uint, planName string) (*models.Subscription, error) {
	isReactivated := existing.CancelAtPeriodEnd && !snap.CancelAtPeriodEnd

	existing.Status = normalizeStatus(snap.Status)
	existing.PlanID = planID
	existing.CurrentPeriodStart = periodStart(snap)
	existing.CurrentPeriodEnd = periodEnd(snap)
	existing.CancelAtPeriodEnd = snap.CancelAtPeriodEnd

	if isReactivated {
		existing.CanceledAt = nil
	} else if existing.Status == models.StatusCanceled && existing.CanceledAt == nil {
		now := time.Now()
		existing.CanceledAt = &now
	}

	copyTrialBounds(existing, snap)

	if err := tx.UpdateSubscription(ctx, existing); err != nil {
		return nil, err
	}
	if err := r.applyTier(ctx, tx, existing, planName); err != nil {
		return nil, err
	}
	return existing, nil
}

// createNew inserts a row for a provider subscription seen for the first
// time. Every other non-canceled row of the same user is canceled first so
// exactly one subscription stays authoritative.
func (r *Reconciler) createNew(ctx context.Context, tx store.Store, snap *models.ProviderSubscription, planID uint, planName string) (*models.Subscription, error) {
	user, err := tx.GetUserByStripeCustomerID(ctx, snap.CustomerID)
	if err != nil {
		return nil, err
	}

	demoted, err := tx.CancelOtherSubscriptions(ctx, user.ID, snap.ID, time.Now())
	if err != nil {
		return nil, err
	}
	if demoted > 0 {
		r.log.Info("superseded previous subscriptions",
			"user_id", user.ID,
			"count", demoted,
			"provider_subscription_id", snap.ID,
		)
	}

	sub := &models.Subscription{
		UserID:               user.ID,
		PlanID:               planID,
		StripeSubscriptionID: snap.ID,
		StripeCustomerID:     snap.CustomerID,
		Status:               normalizeStatus(snap.Status),
		CurrentPeriodStart:   periodStart(snap),
		CurrentPeriodEnd:     periodEnd(snap),
		CancelAtPeriodEnd:    snap.CancelAtPeriodEnd,
	}
	copyTrialBounds(sub, snap)

	if sub.Status == models.StatusCanceled {
		now := time.Now()
		sub.CanceledAt = &now
	}

	if err := tx.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	if err := r.applyTier(ctx, tx, sub, planName); err != nil {
		return nil, err
	}
	return sub, nil
}

// applyTier mutates workspace tiers for the statuses that demand it. All
// other statuses leave the tier untouched here; expiry for those is handled
// by the access-check path, not the reconciler.
func (r *Reconciler) applyTier(ctx context.Context, tx store.Store, sub *models.Subscription, planName string) error {
	switch sub.Status {
	case models.StatusActive:
		return tx.SetWorkspaceTierForOwner(ctx, sub.UserID, entitlements.TierForPlan(planName))
	case models.StatusIncomplete, models.StatusIncompleteExpired:
		return tx.SetWorkspaceTierForOwner(ctx, sub.UserID, models.TierFree)
	}
	return nil
}

func copyTrialBounds(sub *models.Subscription, snap *models.ProviderSubscription) {
	if !snap.TrialStart.IsZero() {
		ts := snap.TrialStart
		sub.TrialStart = &ts
	}
	if !snap.TrialEnd.IsZero() {
		te := snap.TrialEnd
		sub.TrialEnd = &te
	}
}

func normalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

func periodStart(snap *models.ProviderSubscription) time.Time {
	if !snap.CurrentPeriodStart.IsZero() {
		return snap.CurrentPeriodStart
	}
	return time.Now()
}

// periodEnd falls back to the cancellation date, then to thirty days after
// the period start, when the provider omits an explicit end.
func periodEnd(snap *models.ProviderSubscription) time.Time {
	if !snap.CurrentPeriodEnd.IsZero() {
		return snap.CurrentPeriodEnd
	}
	if !snap.CancelAt.IsZero() {
		return snap.CancelAt
	}
	return periodStart(snap).Add(fallbackPeriod)
}
