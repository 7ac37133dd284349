package billing

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/draftboardhq/draftboard-backend/pkg/domain"
	"github.com/draftboardhq/draftboard-backend/pkg/entitlements"
	"github.com/draftboardhq/draftboard-backend/pkg/logger"
	"github.com/draftboardhq/draftboard-backend/pkg/models"
	"github.com/draftboardhq/draftboard-backend/pkg/plans"
	"github.com/draftboardhq/draftboard-backend/pkg/store"
)

const (
	testPriceMonthly = "price_pro_monthly_test"
	testPriceYearly  = "price_pro_yearly_test"
)

// setupTestStore opens a throwaway SQLite-backed store.
func setupTestStore(t *testing.T) *store.GormStore {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, store.Migrate(db))

	return store.New(db)
}

func testCatalog() *plans.Catalog {
	return plans.NewCatalog(plans.CatalogPrices{
		ProMonthly: testPriceMonthly,
		ProYearly:  testPriceYearly,
	})
}

func setupReconciler(t *testing.T) (*Reconciler, *store.GormStore) {
	t.Helper()

	st := setupTestStore(t)
	log := logger.NewNop()
	catalog := testCatalog()
	materializer := plans.NewMaterializer(st, catalog, log)
	calculator := entitlements.NewCalculator(st, nil, nil, log, 14)

	return NewReconciler(st, catalog, materializer, calculator, nil, log), st
}

func seedBillableUser(t *testing.T, st *store.GormStore, customerID string) *models.User {
	t.Helper()

	u := &models.User{
		Email:            customerID + "@example.com",
		Name:             "Test User",
		StripeCustomerID: &customerID,
	}
	require.NoError(t, st.SaveUser(context.Background(), u))
	return u
}

func seedWorkspace(t *testing.T, st *store.GormStore, ownerID uint) *models.Workspace {
	t.Helper()

	ws := &models.Workspace{OwnerID: ownerID, Name: "Test Workspace", SubscriptionTier: models.TierFree}
	require.NoError(t, st.DB().Create(ws).Error)
	return ws
}

func activeSnapshot(customerID, subID string) *models.ProviderSubscription {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.ProviderSubscription{
		ID:                 subID,
		CustomerID:         customerID,
		PriceID:            testPriceMonthly,
		Status:             models.StatusActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
	}
}

func TestReconcile_CreatesSubscriptionAndUpgradesTier(t *testing.T) {
	r, st := setupReconciler(t)
	ctx := context.Background()

	u := seedBillableUser(t, st, "cus_create")
	ws := seedWorkspace(t, st, u.ID)

	sub, err := r.Reconcile(ctx, activeSnapshot("cus_create", "sub_create"), TriggerWebhook)
	require.NoError(t, err)

	assert.Equal(t, u.ID, sub.UserID)
	assert.Equal(t, models.StatusActive, sub.Status)
	assert.Equal(t, "sub_create", sub.StripeSubscriptionID)
	assert.Nil(t, sub.CanceledAt)

	// The plan row was materialized lazily
	plan, err := st.GetPlanByID(ctx, sub.PlanID)
	require.NoError(t, err)
	assert.Equal(t, "pro", plan.Name)

	// Active subscription upgrades the owner's workspaces
	got, err := st.ListWorkspacesByOwner(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ws.ID, got[0].ID)
	assert.Equal(t, models.TierPro, got[0].SubscriptionTier)
}

func TestReconcile_IsIdempotent(t *testing.T) {
	r, st := setupReconciler(t)
	ctx := context.Background()

	u := seedBillableUser(t, st, "cus_idem")
	snap := activeSnapshot("cus_idem", "sub_idem")

	first, err := r.Reconcile(ctx, snap, TriggerWebhook)
	require.NoError(t, err)

	// Same snapshot again, from a different trigger
	second, err := r.Reconcile(ctx, snap, TriggerCheckout)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	subs, err := st.ListSubscriptionsByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestReconcile_NewSubscriptionSupersedesOld(t *testing.T) {
	r, st := setupReconciler(t)
	ctx := context.Background()

	u := seedBillableUser(t, st, "cus_super")

	_, err := r.Reconcile(ctx, activeSnapshot("cus_super", "sub_old"), TriggerWebhook)
	require.NoError(t, err)

	_, err = r.Reconcile(ctx, activeSnapshot("cus_super", "sub_new"), TriggerWebhook)
	require.NoError(t, err)

	subs, err := st.ListSubscriptionsByUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, subs, 2)

	var authoritative int
	for _, s := range subs {
		if s.IsAuthoritative() {
			authoritative++
			assert.Equal(t, "sub_new", s.StripeSubscriptionID)
		} else {
			assert.Equal(t, "sub_old", s.StripeSubscriptionID)
			assert.Equal(t, models.StatusCanceled, s.Status)
			assert.NotNil(t, s.CanceledAt)
		}
	}
	assert.Equal(t, 1, authoritative, "exactly one subscription must stay authoritative")
}

func TestReconcile_CancellationRecordsTimestampOnce(t *testing.T) {
	r, st := setupReconciler(t)
	ctx := context.Background()

	seedBillableUser(t, st, "cus_cancel")

	snap := activeSnapshot("cus_cancel", "sub_cancel")
	_, err := r.Reconcile(ctx, snap, TriggerWebhook)
	require.NoError(t, err)

	snap.Status = models.StatusCanceled
	first, err := r.Reconcile(ctx, snap, TriggerWebhook)
	require.NoError(t, err)
	require.NotNil(t, first.CanceledAt)
	canceledAt := *first.CanceledAt

	// A later sweep replays the canceled snapshot; the original timestamp
	// must survive.
	time.Sleep(10 * time.Millisecond)
	second, err := r.Reconcile(ctx, snap, TriggerSweep)
	require.NoError(t, err)
	require.NotNil(t, second.CanceledAt)
	assert.WithinDuration(t, canceledAt, *second.CanceledAt, time.Millisecond)
}

func TestReconcile_ReactivationClearsCanceledAt(t *testing.T) {
	r, st := setupReconciler(t)
	ctx := context.Background()

	seedBillableUser(t, st, "cus_react")

	snap := activeSnapshot("cus_react", "sub_react")
	snap.CancelAtPeriodEnd = true
	_, err := r.Reconcile(ctx, snap, TriggerWebhook)
	require.NoError(t, err)

	// Simulate a recorded cancellation while still pending at period end
	row, err := st.GetSubscriptionByProviderID(ctx, "sub_react")
	require.NoError(t, err)
	now := time.Now()
	row.CanceledAt = &now
	require.NoError(t, st.UpdateSubscription(ctx, row))

	// User resumes: cancel_at_period_end flips off
	snap.CancelAtPeriodEnd = false
	sub, err := r.Reconcile(ctx, snap, TriggerWebhook)
	require.NoError(t, err)
	assert.Nil(t, sub.CanceledAt)
	assert.False(t, sub.CancelAtPeriodEnd)
}

func TestReconcile_PeriodEndFallbacks(t *testing.T) {
	r, st := setupReconciler(t)
	ctx := context.Background()

	seedBillableUser(t, st, "cus_period")

	start := time.Now().UTC().Truncate(time.Second)
	cancelAt := start.AddDate(0, 0, 12)

	t.Run("cancel date substitutes missing period end", func(t *testing.T) {
		snap := activeSnapshot("cus_period", "sub_period_a")
		snap.CurrentPeriodStart = start
		snap.CurrentPeriodEnd = time.Time{}
		snap.CancelAt = cancelAt

		sub, err := r.Reconcile(ctx, snap, TriggerWebhook)
		require.NoError(t, err)
		assert.WithinDuration(t, cancelAt, sub.CurrentPeriodEnd, time.Second)
	})

	t.Run("thirty days after start when nothing else is known", func(t *testing.T) {
		snap := activeSnapshot("cus_period", "sub_period_b")
		snap.CurrentPeriodStart = start
		snap.CurrentPeriodEnd = time.Time{}

		sub, err := r.Reconcile(ctx, snap, TriggerWebhook)
		require.NoError(t, err)
		assert.WithinDuration(t, start.Add(30*24*time.Hour), sub.CurrentPeriodEnd, time.Second)
	})

}

func TestReconcile_IncompleteDowngradesTier(t *testing.T) {
	r, st := setupReconciler(t)
	ctx := context.Background()

	u := seedBillableUser(t, st, "cus_incomplete")
	ws := seedWorkspace(t, st, u.ID)
	require.NoError(t, st.SetWorkspaceTierForOwner(ctx, u.ID, models.TierPro))

	snap := activeSnapshot("cus_incomplete", "sub_incomplete")
	snap.Status = models.StatusIncomplete

	_, err := r.Reconcile(ctx, snap, TriggerWebhook)
	require.NoError(t, err)

	got, err := st.ListWorkspacesByOwner(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ws.ID, got[0].ID)
	assert.Equal(t, models.TierFree, got[0].SubscriptionTier)
}

func TestReconcile_PastDueLeavesTierUntouched(t *testing.T) {
	r, st := setupReconciler(t)
	ctx := context.Background()

	u := seedBillableUser(t, st, "cus_pastdue")
	seedWorkspace(t, st, u.ID)
	require.NoError(t, st.SetWorkspaceTierForOwner(ctx, u.ID, models.TierPro))

	snap := activeSnapshot("cus_pastdue", "sub_pastdue")
	snap.Status = models.StatusPastDue

	sub, err := r.Reconcile(ctx, snap, TriggerWebhook)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPastDue, sub.Status)

	// Grace period: payment trouble does not strip access
	got, err := st.ListWorkspacesByOwner(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TierPro, got[0].SubscriptionTier)
}

func TestReconcile_UnknownPriceFails(t *testing.T) {
	r, st := setupReconciler(t)
	ctx := context.Background()

	u := seedBillableUser(t, st, "cus_badprice")

	snap := activeSnapshot("cus_badprice", "sub_badprice")
	snap.PriceID = "price_never_configured"

	_, err := r.Reconcile(ctx, snap, TriggerWebhook)
	require.Error(t, err)
	assert.True(t, domain.IsConfiguration(err))

	// Nothing was persisted for the failed attempt
	subs, err := st.ListSubscriptionsByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestReconcile_UnknownCustomerFails(t *testing.T) {
	r, _ := setupReconciler(t)

	_, err := r.Reconcile(context.Background(), activeSnapshot("cus_ghost", "sub_ghost"), TriggerSweep)
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

func TestReconcile_TrialBoundsPersisted(t *testing.T) {
	r, st := setupReconciler(t)
	ctx := context.Background()

	seedBillableUser(t, st, "cus_trial")

	snap := activeSnapshot("cus_trial", "sub_trial")
	snap.Status = models.StatusTrialing
	snap.TrialStart = snap.CurrentPeriodStart
	snap.TrialEnd = snap.CurrentPeriodStart.AddDate(0, 0, 14)

	sub, err := r.Reconcile(ctx, snap, TriggerCheckout)
	require.NoError(t, err)
	require.NotNil(t, sub.TrialStart)
	require.NotNil(t, sub.TrialEnd)
	assert.WithinDuration(t, snap.TrialEnd, *sub.TrialEnd, time.Second)
}

func TestReconcile_StatusNormalization(t *testing.T) {
	r, st := setupReconciler(t)
	ctx := context.Background()

	seedBillableUser(t, st, "cus_norm")

	snap := activeSnapshot("cus_norm", "sub_norm")
	snap.Status = "  ACTIVE "

	sub, err := r.Reconcile(ctx, snap, TriggerWebhook)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, sub.Status)
}
