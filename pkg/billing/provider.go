package billing

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v76"
	checkoutsession "github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/invoice"
	"github.com/stripe/stripe-go/v76/subscription"

	"github.com/draftboardhq/draftboard-backend/pkg/domain"
	"github.com/draftboardhq/draftboard-backend/pkg/logger"
	"github.com/draftboardhq/draftboard-backend/pkg/models"
)

// CheckoutSession is the slice of a provider checkout session the verifier
// needs.
type CheckoutSession struct {
	ID             string
	SubscriptionID string
	CustomerID     string
}

// ProviderGateway abstracts the billing provider SDK. All implementations
// return opaque snapshots; callers never see SDK types.
type ProviderGateway interface {
	GetSubscription(ctx context.Context, providerSubscriptionID string) (*models.ProviderSubscription, error)
	ListCustomerSubscriptions(ctx context.Context, providerCustomerID string) ([]*models.ProviderSubscription, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
	PreviewProrationInvoice(ctx context.Context, providerSubscriptionID, newPriceID string) (*models.ProrationPreview, error)
}

// StripeGateway implements ProviderGateway with the Stripe SDK.
type StripeGateway struct {
	log logger.Logger
}

// NewStripeGateway configures the global Stripe key and returns a gateway.
func NewStripeGateway(secretKey string, log logger.Logger) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{log: log}
}

// GetSubscription fetches one subscription snapshot.
func (g *StripeGateway) GetSubscription(ctx context.Context, providerSubscriptionID string) (*models.ProviderSubscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := subscription.Get(providerSubscriptionID, params)
	if err != nil {
		return nil, domain.NewProviderError("failed to fetch subscription", err)
	}
	return SnapshotFromStripe(sub), nil
}

// ListCustomerSubscriptions lists every subscription of a customer,
// including canceled ones, so the sweep can correct drift in either
// direction.
func (g *StripeGateway) ListCustomerSubscriptions(ctx context.Context, providerCustomerID string) ([]*models.ProviderSubscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(providerCustomerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx

	var snaps []*models.ProviderSubscription
	iter := subscription.List(params)
	for iter.Next() {
		snaps = append(snaps, SnapshotFromStripe(iter.Subscription()))
	}
	if err := iter.Err(); err != nil {
		return nil, domain.NewProviderError("failed to list customer subscriptions", err)
	}
	return snaps, nil
}

// GetCheckoutSession fetches the subscription and customer behind a
// completed checkout session.
func (g *StripeGateway) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := checkoutsession.Get(sessionID, params)
	if err != nil {
		return nil, domain.NewProviderError("failed to fetch checkout session", err)
	}

	cs := &CheckoutSession{ID: sess.ID}
	if sess.Subscription != nil {
		cs.SubscriptionID = sess.Subscription.ID
	}
	if sess.Customer != nil {
		cs.CustomerID = sess.Customer.ID
	}
	return cs, nil
}

// PreviewProrationInvoice asks Stripe for the upcoming invoice if the
// subscription switched its item to newPriceID.
func (g *StripeGateway) PreviewProrationInvoice(ctx context.Context, providerSubscriptionID, newPriceID string) (*models.ProrationPreview, error) {
	subParams := &stripe.SubscriptionParams{}
	subParams.Context = ctx

	sub, err := subscription.Get(providerSubscriptionID, subParams)
	if err != nil {
		return nil, domain.NewProviderError("failed to fetch subscription for preview", err)
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil, domain.NewProviderError("subscription has no items", nil)
	}

	params := &stripe.InvoiceUpcomingParams{
		Customer:     stripe.String(sub.Customer.ID),
		Subscription: stripe.String(providerSubscriptionID),
		SubscriptionItems: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(sub.Items.Data[0].ID),
				Price: stripe.String(newPriceID),
			},
		},
		SubscriptionProrationBehavior: stripe.String("create_prorations"),
	}
	params.Context = ctx

	inv, err := invoice.Upcoming(params)
	if err != nil {
		return nil, domain.NewProviderError("failed to preview upcoming invoice", err)
	}

	preview := &models.ProrationPreview{
		ImmediateCharge:  inv.AmountDue,
		NextInvoiceTotal: inv.Total,
		Currency:         string(inv.Currency),
		EffectiveDate:    time.Now(),
	}
	if inv.Lines != nil {
		for _, line := range inv.Lines.Data {
			if line.Proration && line.Amount < 0 {
				preview.Credit += -line.Amount
			}
		}
	}
	return preview, nil
}

// SnapshotFromStripe converts an SDK subscription into the neutral snapshot
// the reconciler consumes.
func SnapshotFromStripe(sub *stripe.Subscription) *models.ProviderSubscription {
	snap := &models.ProviderSubscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		snap.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		snap.PriceID = sub.Items.Data[0].Price.ID
	}
	if sub.CurrentPeriodStart > 0 {
		snap.CurrentPeriodStart = time.Unix(sub.CurrentPeriodStart, 0)
	}
	if sub.CurrentPeriodEnd > 0 {
		snap.CurrentPeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0)
	}
	if sub.CancelAt > 0 {
		snap.CancelAt = time.Unix(sub.CancelAt, 0)
	}
	if sub.TrialStart > 0 {
		snap.TrialStart = time.Unix(sub.TrialStart, 0)
	}
	if sub.TrialEnd > 0 {
		snap.TrialEnd = time.Unix(sub.TrialEnd, 0)
	}
	return snap
}
