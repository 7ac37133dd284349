package billing

import (
	"context"
	"fmt"

	"github.com/draftboardhq/draftboard-backend/pkg/domain"
	"github.com/draftboardhq/draftboard-backend/pkg/logger"
	"github.com/draftboardhq/draftboard-backend/pkg/metrics"
	"github.com/draftboardhq/draftboard-backend/pkg/models"
	"github.com/draftboardhq/draftboard-backend/pkg/plans"
	"github.com/draftboardhq/draftboard-backend/pkg/store"
)

// planChangeAllowList enumerates the legal plan transitions. Only interval
// switches within the same base plan are supported today; anything else
// goes through cancel-and-resubscribe.
var planChangeAllowList = map[string]map[string]bool{
	"pro":        {"pro_annual": true},
	"pro_annual": {"pro": true},
}

// Estimator validates plan changes and produces provider-backed cost
// previews.
type Estimator struct {
	store   store.Store
	catalog *plans.Catalog
	gateway ProviderGateway
	metrics *metrics.Metrics
	log     logger.Logger
}

// NewEstimator creates a proration estimator. m may be nil.
func NewEstimator(st store.Store, catalog *plans.Catalog, gateway ProviderGateway, m *metrics.Metrics, log logger.Logger) *Estimator {
	return &Estimator{store: st, catalog: catalog, gateway: gateway, metrics: m, log: log}
}

// ValidatePlanChange checks that switching between two persisted plans is
// legal. No-op changes and transitions outside the allow-list are rejected
// with a readable message.
func (e *Estimator) ValidatePlanChange(ctx context.Context, currentPlanID, newPlanID uint) error {
	current, err := e.store.GetPlanByID(ctx, currentPlanID)
	if err != nil {
		return err
	}
	next, err := e.store.GetPlanByID(ctx, newPlanID)
	if err != nil {
		return err
	}

	if current.ID == next.ID {
		return domain.NewValidationError("you are already subscribed to this plan")
	}
	if !planChangeAllowList[current.Name][next.Name] {
		return domain.NewValidationError(fmt.Sprintf("changing from %s to %s is not supported", current.DisplayName, next.DisplayName))
	}
	return nil
}

// PreviewProration asks the provider what switching the subscription to
// newPlanName would cost. An unavailable preview returns (nil, nil), never
// an error: callers render "estimate unavailable" and must not treat nil as
// zero cost. The plan-change action itself is never blocked by a failed
// preview.
func (e *Estimator) PreviewProration(ctx context.Context, providerSubscriptionID, newPlanName string) (*models.ProrationPreview, error) {
	priceID, err := e.catalog.PriceIDFor(newPlanName)
	if err != nil {
		return nil, err
	}

	preview, err := e.gateway.PreviewProrationInvoice(ctx, providerSubscriptionID, priceID)
	if err != nil {
		e.log.Warn("proration preview unavailable",
			"provider_subscription_id", providerSubscriptionID,
			"new_plan", newPlanName,
			"error", err,
		)
		if e.metrics != nil {
			e.metrics.ProrationPreviewsTotal.WithLabelValues("unavailable").Inc()
		}
		return nil, nil
	}

	if e.metrics != nil {
		e.metrics.ProrationPreviewsTotal.WithLabelValues("ok").Inc()
	}
	return preview, nil
}
