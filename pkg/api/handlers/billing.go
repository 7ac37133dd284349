package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	apierrors "github.com/draftboardhq/draftboard-backend/pkg/api/errors"
	"github.com/draftboardhq/draftboard-backend/pkg/billing"
	"github.com/draftboardhq/draftboard-backend/pkg/domain"
	"github.com/draftboardhq/draftboard-backend/pkg/entitlements"
	"github.com/draftboardhq/draftboard-backend/pkg/models"
	"github.com/draftboardhq/draftboard-backend/pkg/plans"
)

// BillingHandler exposes the billing trigger adapters and entitlement
// queries over HTTP.
type BillingHandler struct {
	service      *billing.Service
	estimator    *billing.Estimator
	materializer *plans.Materializer
	calculator   *entitlements.Calculator
	aggregator   *entitlements.Aggregator
	validator    *validator.Validate
}

// NewBillingHandler creates a new billing handler
func NewBillingHandler(service *billing.Service, estimator *billing.Estimator, materializer *plans.Materializer, calculator *entitlements.Calculator, aggregator *entitlements.Aggregator) *BillingHandler {
	return &BillingHandler{
		service:      service,
		estimator:    estimator,
		materializer: materializer,
		calculator:   calculator,
		aggregator:   aggregator,
		validator:    validator.New(),
	}
}

func currentUserID(c echo.Context) (uint, bool) {
	id, ok := c.Get("user_id").(uint)
	return id, ok
}

// HandleWebhook processes Stripe webhook deliveries. The raw body is needed
// for signature verification, so no binding happens here.
func (h *BillingHandler) HandleWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_body",
			Message: "Failed to read request body",
		})
	}

	signature := c.Request().Header.Get("Stripe-Signature")
	if signature == "" {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "missing_signature",
		})
	}

	if err := h.service.HandleWebhook(c.Request().Context(), body, signature); err != nil {
		if domain.IsValidation(err) {
			return apierrors.ValidationError(c, err)
		}
		return apierrors.FromDomain(c, err)
	}

	return c.JSON(http.StatusOK, models.SuccessResponse{Success: true})
}

// VerifyCheckout reconciles the subscription behind a completed checkout
// session for the calling user.
func (h *BillingHandler) VerifyCheckout(c echo.Context) error {
	userID, ok := currentUserID(c)
	if !ok {
		return apierrors.UnauthorizedError(c)
	}

	var req models.VerifyCheckoutRequest
	if err := c.Bind(&req); err != nil {
		return apierrors.ValidationError(c, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return apierrors.ValidationError(c, err)
	}

	sub, err := h.service.VerifyCheckout(c.Request().Context(), userID, req.SessionID)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}

	info, err := h.service.SubscriptionInfo(c.Request().Context(), sub)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return c.JSON(http.StatusOK, info)
}

// GetPricing returns the purchasable plan catalog.
func (h *BillingHandler) GetPricing(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.Pricing())
}

// GetSubscription returns the calling user's authoritative subscription.
func (h *BillingHandler) GetSubscription(c echo.Context) error {
	userID, ok := currentUserID(c)
	if !ok {
		return apierrors.UnauthorizedError(c)
	}

	sub, err := h.calculator.AuthoritativeSubscription(c.Request().Context(), userID)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	info, err := h.service.SubscriptionInfo(c.Request().Context(), sub)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return c.JSON(http.StatusOK, info)
}

// GetSubscriptionState classifies the calling user's subscription and trial
// for UI gating.
func (h *BillingHandler) GetSubscriptionState(c echo.Context) error {
	userID, ok := currentUserID(c)
	if !ok {
		return apierrors.UnauthorizedError(c)
	}

	state, err := h.calculator.SubscriptionState(c.Request().Context(), userID)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return c.JSON(http.StatusOK, state)
}

// GetLimits returns effective limits next to current user-scope usage.
func (h *BillingHandler) GetLimits(c echo.Context) error {
	userID, ok := currentUserID(c)
	if !ok {
		return apierrors.UnauthorizedError(c)
	}
	ctx := c.Request().Context()

	limits, err := h.calculator.EffectiveLimits(ctx, userID)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	usage, err := h.aggregator.UserUsage(ctx, userID)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"limits": limits,
		"usage":  usage,
	})
}

// CheckLimit gates adding one more item behind a feature limit. Usage is
// aggregated at the granularity the feature demands: workspaces and storage
// per user, projects and members per workspace, files per project.
func (h *BillingHandler) CheckLimit(c echo.Context) error {
	userID, ok := currentUserID(c)
	if !ok {
		return apierrors.UnauthorizedError(c)
	}
	ctx := c.Request().Context()
	feature := c.QueryParam("feature")

	usage, err := h.currentUsage(c, userID, feature)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}

	result, err := h.calculator.CheckFeatureLimit(ctx, userID, feature, usage)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *BillingHandler) currentUsage(c echo.Context, userID uint, feature string) (int, error) {
	ctx := c.Request().Context()

	switch feature {
	case models.FeatureWorkspaces:
		snapshot, err := h.aggregator.UserUsage(ctx, userID)
		if err != nil {
			return 0, err
		}
		return snapshot.Workspaces, nil

	case models.FeatureStorageGB:
		snapshot, err := h.aggregator.UserUsage(ctx, userID)
		if err != nil {
			return 0, err
		}
		return int(snapshot.StorageGB), nil

	case models.FeatureProjectsPerWorkspace, models.FeatureTeamMembers:
		workspaceID, err := queryID(c, "workspace_id")
		if err != nil {
			return 0, err
		}
		snapshot, err := h.aggregator.WorkspaceUsage(ctx, workspaceID)
		if err != nil {
			return 0, err
		}
		if feature == models.FeatureTeamMembers {
			return snapshot.TeamMembers, nil
		}
		return snapshot.Projects, nil

	case models.FeatureFilesPerProject:
		projectID, err := queryID(c, "project_id")
		if err != nil {
			return 0, err
		}
		return h.aggregator.ProjectFileCount(ctx, projectID)

	default:
		return 0, domain.NewValidationError("unknown feature " + strconv.Quote(feature))
	}
}

func queryID(c echo.Context, param string) (uint, error) {
	raw := c.QueryParam(param)
	if raw == "" {
		return 0, domain.NewValidationError(param + " is required for this feature")
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, domain.NewValidationError(param + " must be a positive integer")
	}
	return uint(id), nil
}

// PreviewProration validates a plan change and returns a provider-backed
// cost estimate. When the provider preview is unavailable the response says
// so explicitly; the client must render "estimate unavailable" rather than
// assume zero cost.
func (h *BillingHandler) PreviewProration(c echo.Context) error {
	userID, ok := currentUserID(c)
	if !ok {
		return apierrors.UnauthorizedError(c)
	}
	ctx := c.Request().Context()

	var req models.PreviewProrationRequest
	if err := c.Bind(&req); err != nil {
		return apierrors.ValidationError(c, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return apierrors.ValidationError(c, err)
	}

	sub, err := h.calculator.AuthoritativeSubscription(ctx, userID)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}

	newPlanID, err := h.materializer.EnsurePlan(ctx, req.NewPlanName)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	if err := h.estimator.ValidatePlanChange(ctx, sub.PlanID, newPlanID); err != nil {
		return apierrors.FromDomain(c, err)
	}

	preview, err := h.estimator.PreviewProration(ctx, sub.StripeSubscriptionID, req.NewPlanName)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	if preview == nil {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"available": false,
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"available": true,
		"preview":   preview,
	})
}

// StartTrial starts the calling user's trial window. Idempotent.
func (h *BillingHandler) StartTrial(c echo.Context) error {
	userID, ok := currentUserID(c)
	if !ok {
		return apierrors.UnauthorizedError(c)
	}

	if err := h.calculator.InitializeTrial(c.Request().Context(), userID); err != nil {
		return apierrors.FromDomain(c, err)
	}
	return c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Message: "Trial started"})
}
