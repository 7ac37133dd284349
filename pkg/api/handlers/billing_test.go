package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/draftboardhq/draftboard-backend/pkg/billing"
	"github.com/draftboardhq/draftboard-backend/pkg/domain"
	"github.com/draftboardhq/draftboard-backend/pkg/entitlements"
	"github.com/draftboardhq/draftboard-backend/pkg/logger"
	"github.com/draftboardhq/draftboard-backend/pkg/models"
	"github.com/draftboardhq/draftboard-backend/pkg/plans"
	"github.com/draftboardhq/draftboard-backend/pkg/store"
)

// stubGateway satisfies billing.ProviderGateway without reaching Stripe.
type stubGateway struct {
	session *billing.CheckoutSession
	snap    *models.ProviderSubscription
}

func (s *stubGateway) GetSubscription(ctx context.Context, id string) (*models.ProviderSubscription, error) {
	if s.snap == nil {
		return nil, domain.NewProviderError("no subscription", nil)
	}
	return s.snap, nil
}

func (s *stubGateway) ListCustomerSubscriptions(ctx context.Context, customerID string) ([]*models.ProviderSubscription, error) {
	return nil, nil
}

func (s *stubGateway) GetCheckoutSession(ctx context.Context, sessionID string) (*billing.CheckoutSession, error) {
	if s.session == nil {
		return nil, domain.NewProviderError("no session", nil)
	}
	return s.session, nil
}

func (s *stubGateway) PreviewProrationInvoice(ctx context.Context, subID, priceID string) (*models.ProrationPreview, error) {
	return nil, domain.NewProviderError("preview unavailable", nil)
}

func setupHandler(t *testing.T, gw billing.ProviderGateway) (*BillingHandler, *store.GormStore) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, store.Migrate(db))
	st := store.New(db)

	log := logger.NewNop()
	catalog := plans.NewCatalog(plans.CatalogPrices{
		ProMonthly: "price_monthly",
		ProYearly:  "price_yearly",
	})
	materializer := plans.NewMaterializer(st, catalog, log)
	calculator := entitlements.NewCalculator(st, nil, nil, log, 14)
	aggregator := entitlements.NewAggregator(st)
	reconciler := billing.NewReconciler(st, catalog, materializer, calculator, nil, log)
	estimator := billing.NewEstimator(st, catalog, gw, nil, log)
	service := billing.NewService(st, catalog, gw, reconciler, nil, log, "whsec_test")

	return NewBillingHandler(service, estimator, materializer, calculator, aggregator), st
}

func newRequest(t *testing.T, method, target, body string, userID uint) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()

	c := echo.New().NewContext(req, rec)
	if userID != 0 {
		c.Set("user_id", userID)
	}
	return c, rec
}

func TestHandleWebhook_MissingSignature(t *testing.T) {
	h, _ := setupHandler(t, &stubGateway{})

	c, rec := newRequest(t, http.MethodPost, "/webhooks/stripe", `{}`, 0)
	require.NoError(t, h.HandleWebhook(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleWebhook_BadSignature(t *testing.T) {
	h, _ := setupHandler(t, &stubGateway{})

	c, rec := newRequest(t, http.MethodPost, "/webhooks/stripe", `{}`, 0)
	c.Request().Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	require.NoError(t, h.HandleWebhook(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyCheckout_Unauthorized(t *testing.T) {
	h, _ := setupHandler(t, &stubGateway{})

	c, rec := newRequest(t, http.MethodPost, "/billing/verify-checkout", `{"session_id":"cs_x"}`, 0)
	require.NoError(t, h.VerifyCheckout(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerifyCheckout_RequiresSessionID(t *testing.T) {
	h, st := setupHandler(t, &stubGateway{})
	u := &models.User{Email: "v@example.com", Name: "V"}
	require.NoError(t, st.SaveUser(context.Background(), u))

	c, rec := newRequest(t, http.MethodPost, "/billing/verify-checkout", `{}`, u.ID)
	require.NoError(t, h.VerifyCheckout(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyCheckout_HappyPath(t *testing.T) {
	gw := &stubGateway{
		session: &billing.CheckoutSession{ID: "cs_ok", SubscriptionID: "sub_ok", CustomerID: "cus_ok"},
		snap: &models.ProviderSubscription{
			ID:         "sub_ok",
			CustomerID: "cus_ok",
			PriceID:    "price_monthly",
			Status:     models.StatusActive,
		},
	}
	h, st := setupHandler(t, gw)

	u := &models.User{Email: "happy@example.com", Name: "Happy"}
	require.NoError(t, st.SaveUser(context.Background(), u))

	c, rec := newRequest(t, http.MethodPost, "/billing/verify-checkout", `{"session_id":"cs_ok"}`, u.ID)
	require.NoError(t, h.VerifyCheckout(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var info models.SubscriptionInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "pro", info.PlanName)
	assert.Equal(t, models.StatusActive, info.Status)
}

func TestGetPricing(t *testing.T) {
	h, _ := setupHandler(t, &stubGateway{})

	c, rec := newRequest(t, http.MethodGet, "/billing/pricing", "", 0)
	require.NoError(t, h.GetPricing(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.PricingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Tiers, 2)
}

func TestGetSubscription_NoneIs404(t *testing.T) {
	h, st := setupHandler(t, &stubGateway{})
	u := &models.User{Email: "nosub@example.com", Name: "No Sub"}
	require.NoError(t, st.SaveUser(context.Background(), u))

	c, rec := newRequest(t, http.MethodGet, "/billing/subscription", "", u.ID)
	require.NoError(t, h.GetSubscription(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckLimit(t *testing.T) {
	h, st := setupHandler(t, &stubGateway{})
	ctx := context.Background()

	u := &models.User{Email: "limits@example.com", Name: "Limits"}
	require.NoError(t, st.SaveUser(ctx, u))

	t.Run("free user below workspace cap", func(t *testing.T) {
		c, rec := newRequest(t, http.MethodGet, "/billing/limits/check?feature=workspaces", "", u.ID)
		require.NoError(t, h.CheckLimit(c))
		require.Equal(t, http.StatusOK, rec.Code)

		var result models.LimitCheckResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.True(t, result.Allowed)
		assert.Equal(t, 1, result.Limit)
	})

	t.Run("free user at workspace cap", func(t *testing.T) {
		require.NoError(t, st.DB().Create(&models.Workspace{OwnerID: u.ID, Name: "Only", SubscriptionTier: models.TierFree}).Error)

		c, rec := newRequest(t, http.MethodGet, "/billing/limits/check?feature=workspaces", "", u.ID)
		require.NoError(t, h.CheckLimit(c))
		require.Equal(t, http.StatusOK, rec.Code)

		var result models.LimitCheckResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.False(t, result.Allowed)
		assert.NotEmpty(t, result.Message)
	})

	t.Run("workspace scoped feature needs workspace_id", func(t *testing.T) {
		c, rec := newRequest(t, http.MethodGet, "/billing/limits/check?feature=projects_per_workspace", "", u.ID)
		require.NoError(t, h.CheckLimit(c))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown feature", func(t *testing.T) {
		c, rec := newRequest(t, http.MethodGet, "/billing/limits/check?feature=teleportation", "", u.ID)
		require.NoError(t, h.CheckLimit(c))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestStartTrial(t *testing.T) {
	h, st := setupHandler(t, &stubGateway{})
	ctx := context.Background()

	u := &models.User{Email: "trial@example.com", Name: "Trial"}
	require.NoError(t, st.SaveUser(ctx, u))

	c, rec := newRequest(t, http.MethodPost, "/billing/trial", "", u.ID)
	require.NoError(t, h.StartTrial(c))
	require.Equal(t, http.StatusOK, rec.Code)

	saved, err := st.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.NotNil(t, saved.TrialStartDate)
	assert.NotNil(t, saved.TrialEndDate)
}

func TestPreviewProration_NoSubscription(t *testing.T) {
	h, st := setupHandler(t, &stubGateway{})
	u := &models.User{Email: "preview@example.com", Name: "Preview"}
	require.NoError(t, st.SaveUser(context.Background(), u))

	c, rec := newRequest(t, http.MethodPost, "/billing/preview-proration", `{"new_plan_name":"pro_annual"}`, u.ID)
	require.NoError(t, h.PreviewProration(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
