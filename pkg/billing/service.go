package billing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/draftboardhq/draftboard-backend/pkg/domain"
	"github.com/draftboardhq/draftboard-backend/pkg/logger"
	"github.com/draftboardhq/draftboard-backend/pkg/metrics"
	"github.com/draftboardhq/draftboard-backend/pkg/models"
	"github.com/draftboardhq/draftboard-backend/pkg/plans"
	"github.com/draftboardhq/draftboard-backend/pkg/store"
)

// Service glues the trigger adapters to the reconciler: webhook event
// dispatch, post-checkout verification and catalog lookups.
type Service struct {
	store         store.Store
	catalog       *plans.Catalog
	gateway       ProviderGateway
	reconciler    *Reconciler
	metrics       *metrics.Metrics
	log           logger.Logger
	webhookSecret string
}

// NewService creates the billing service. m may be nil.
func NewService(st store.Store, catalog *plans.Catalog, gateway ProviderGateway, reconciler *Reconciler, m *metrics.Metrics, log logger.Logger, webhookSecret string) *Service {
	return &Service{
		store:         st,
		catalog:       catalog,
		gateway:       gateway,
		reconciler:    reconciler,
		metrics:       m,
		log:           log,
		webhookSecret: webhookSecret,
	}
}

// HandleWebhook verifies and processes one Stripe webhook delivery. All
// subscription lifecycle events funnel into the same reconciler, so a
// replayed or out-of-order delivery converges instead of corrupting state.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return domain.NewValidationError(fmt.Sprintf("webhook signature verification failed: %v", err))
	}

	if s.metrics != nil {
		s.metrics.WebhookEventsTotal.WithLabelValues(string(event.Type)).Inc()
	}
	s.log.Info("stripe webhook received", "type", event.Type, "event_id", event.ID)

	switch event.Type {
	case "customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("failed to unmarshal subscription: %w", err)
		}
		_, err := s.reconciler.Reconcile(ctx, SnapshotFromStripe(&sub), TriggerWebhook)
		return err

	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fmt.Errorf("failed to unmarshal checkout session: %w", err)
		}
		if sess.Subscription == nil {
			s.log.Warn("checkout session completed without subscription", "session_id", sess.ID)
			return nil
		}
		snap, err := s.gateway.GetSubscription(ctx, sess.Subscription.ID)
		if err != nil {
			return err
		}
		_, err = s.reconciler.Reconcile(ctx, snap, TriggerWebhook)
		return err

	case "invoice.payment_failed":
		// The status change lands through customer.subscription.updated;
		// nothing to write here.
		s.log.Warn("invoice payment failed", "event_id", event.ID)
		return nil

	default:
		s.log.Debug("unhandled webhook event type", "type", event.Type)
		return nil
	}
}

// VerifyCheckout synchronously reconciles the subscription created by a
// completed checkout session. It also adopts the provider customer id onto
// the user on first checkout, so later webhooks and sweeps can resolve the
// customer.
func (s *Service) VerifyCheckout(ctx context.Context, userID uint, sessionID string) (*models.Subscription, error) {
	sub, err := s.verifyCheckout(ctx, userID, sessionID)
	if s.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		s.metrics.CheckoutVerifyTotal.WithLabelValues(outcome).Inc()
	}
	return sub, err
}

func (s *Service) verifyCheckout(ctx context.Context, userID uint, sessionID string) (*models.Subscription, error) {
	sess, err := s.gateway.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.SubscriptionID == "" {
		return nil, domain.NewValidationError("checkout session has no subscription")
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	snap, err := s.gateway.GetSubscription(ctx, sess.SubscriptionID)
	if err != nil {
		return nil, err
	}

	switch {
	case user.StripeCustomerID == nil || *user.StripeCustomerID == "":
		customerID := snap.CustomerID
		user.StripeCustomerID = &customerID
		if err := s.store.SaveUser(ctx, user); err != nil {
			return nil, err
		}
	case *user.StripeCustomerID != snap.CustomerID:
		return nil, domain.NewValidationError("checkout session does not belong to this user")
	}

	return s.reconciler.Reconcile(ctx, snap, TriggerCheckout)
}

// Pricing lists the purchasable catalog.
func (s *Service) Pricing() *models.PricingResponse {
	return &models.PricingResponse{Tiers: s.catalog.Pricing()}
}

// SubscriptionInfo returns the API view of the user's authoritative
// subscription.
func (s *Service) SubscriptionInfo(ctx context.Context, sub *models.Subscription) (*models.SubscriptionInfo, error) {
	plan, err := s.store.GetPlanByID(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}
	info := &models.SubscriptionInfo{
		ID:                sub.ID,
		PlanName:          plan.Name,
		Status:            sub.Status,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if !sub.CurrentPeriodStart.IsZero() {
		info.CurrentPeriodStart = sub.CurrentPeriodStart.Format("2006-01-02T15:04:05Z07:00")
	}
	if !sub.CurrentPeriodEnd.IsZero() {
		info.CurrentPeriodEnd = sub.CurrentPeriodEnd.Format("2006-01-02T15:04:05Z07:00")
	}
	return info, nil
}
