package entitlements

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/draftboardhq/draftboard-backend/pkg/cache"
	"github.com/draftboardhq/draftboard-backend/pkg/domain"
	"github.com/draftboardhq/draftboard-backend/pkg/logger"
	"github.com/draftboardhq/draftboard-backend/pkg/metrics"
	"github.com/draftboardhq/draftboard-backend/pkg/models"
	"github.com/draftboardhq/draftboard-backend/pkg/store"
)

const limitsCacheTTL = 60 * time.Second

// FreeTierLimits returns the hardcoded defaults for users without an
// authoritative subscription.
func FreeTierLimits() models.FeatureLimits {
	return models.FeatureLimits{
		Workspaces:           models.FeatureLimit{Max: 1},
		ProjectsPerWorkspace: models.FeatureLimit{Max: 1},
		FilesPerProject:      models.FeatureLimit{Max: 10},
		TeamMembers:          models.FeatureLimit{Max: 1},
		StorageGB:            models.FeatureLimit{Max: 1},
		FileSizeMB:           models.FeatureLimit{Max: 20},
	}
}

// Calculator derives effective feature limits and subscription-state
// classification from the persisted billing rows.
type Calculator struct {
	store       store.Store
	cache       *cache.Client
	metrics     *metrics.Metrics
	log         logger.Logger
	trialPeriod time.Duration
}

// NewCalculator creates an entitlement calculator. cache and m may be nil.
func NewCalculator(st store.Store, c *cache.Client, m *metrics.Metrics, log logger.Logger, trialPeriodDays int) *Calculator {
	return &Calculator{
		store:       st,
		cache:       c,
		metrics:     m,
		log:         log,
		trialPeriod: time.Duration(trialPeriodDays) * 24 * time.Hour,
	}
}

// AuthoritativeSubscription returns the user's one non-canceled row, or a
// not-found error when every row is canceled or none exist.
func (c *Calculator) AuthoritativeSubscription(ctx context.Context, userID uint) (*models.Subscription, error) {
	subs, err := c.store.ListSubscriptionsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range subs {
		if subs[i].IsAuthoritative() {
			return &subs[i], nil
		}
	}
	return nil, domain.NewNotFoundError("authoritative subscription")
}

// EffectiveLimits returns the authoritative subscription's plan limits, or
// free-tier defaults when the user has none.
func (c *Calculator) EffectiveLimits(ctx context.Context, userID uint) (models.FeatureLimits, error) {
	if cached, ok := c.cachedLimits(ctx, userID); ok {
		return cached, nil
	}

	limits, err := c.computeLimits(ctx, userID)
	if err != nil {
		return models.FeatureLimits{}, err
	}
	c.storeLimits(ctx, userID, limits)
	return limits, nil
}

func (c *Calculator) computeLimits(ctx context.Context, userID uint) (models.FeatureLimits, error) {
	sub, err := c.AuthoritativeSubscription(ctx, userID)
	if err != nil {
		if domain.IsNotFound(err) {
			return FreeTierLimits(), nil
		}
		return models.FeatureLimits{}, err
	}

	plan, err := c.store.GetPlanByID(ctx, sub.PlanID)
	if err != nil {
		return models.FeatureLimits{}, err
	}
	return plan.Limits(), nil
}

// SubscriptionState classifies the user's subscription for UI gating.
// Past-due and unpaid count as active so the UI shows a grace period;
// trial validity derives from the user's own trial dates, independent of
// any subscription row.
func (c *Calculator) SubscriptionState(ctx context.Context, userID uint) (*models.SubscriptionState, error) {
	u, err := c.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	state := &models.SubscriptionState{}

	sub, err := c.AuthoritativeSubscription(ctx, userID)
	if err == nil {
		switch sub.Status {
		case models.StatusActive, models.StatusTrialing, models.StatusPastDue, models.StatusUnpaid:
			state.HasActiveSubscription = true
		}
	} else if !domain.IsNotFound(err) {
		return nil, err
	}

	if u.TrialEndDate != nil {
		if time.Now().Before(*u.TrialEndDate) {
			state.HasValidTrial = true
		} else {
			state.TrialExpired = true
		}
	}

	return state, nil
}

// CheckFeatureLimit gates adding one more item behind a feature limit.
// currentUsage is the count before adding the new item, so the comparison
// is strict less-than.
func (c *Calculator) CheckFeatureLimit(ctx context.Context, userID uint, feature string, currentUsage int) (*models.LimitCheckResult, error) {
	limits, err := c.EffectiveLimits(ctx, userID)
	if err != nil {
		return nil, err
	}

	limit, ok := limits.ForFeature(feature)
	if !ok {
		return nil, domain.NewValidationError(fmt.Sprintf("unknown feature %q", feature))
	}

	result := &models.LimitCheckResult{
		Allowed: limit.Allows(currentUsage),
		Limit:   limit.Max,
		Usage:   currentUsage,
	}
	if limit.Unlimited {
		result.Limit = models.UnlimitedSentinel
	}
	if !result.Allowed {
		result.Message = fmt.Sprintf("You have reached the %s limit of %d for your plan. Upgrade to add more.", feature, limit.Max)
	}

	if c.metrics != nil {
		c.metrics.LimitChecksTotal.WithLabelValues(feature, strconv.FormatBool(result.Allowed)).Inc()
	}
	return result, nil
}

// InitializeTrial starts the user's trial clock. Calling it again is a
// no-op so retried signup flows cannot extend a trial.
func (c *Calculator) InitializeTrial(ctx context.Context, userID uint) error {
	u, err := c.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if u.TrialStartDate != nil {
		return nil
	}

	now := time.Now()
	end := now.Add(c.trialPeriod)
	u.TrialStartDate = &now
	u.TrialEndDate = &end
	if err := c.store.SaveUser(ctx, u); err != nil {
		return err
	}
	c.log.Info("trial initialized", "user_id", userID, "trial_end", end)
	return nil
}

// IsTrialExpired reports whether the user's trial window has passed. Users
// who never started a trial are not expired.
func (c *Calculator) IsTrialExpired(ctx context.Context, userID uint) (bool, error) {
	u, err := c.store.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if u.TrialEndDate == nil {
		return false, nil
	}
	return time.Now().After(*u.TrialEndDate), nil
}

// InvalidateUser drops cached limits after a reconciliation changed the
// user's subscription.
func (c *Calculator) InvalidateUser(ctx context.Context, userID uint) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Delete(ctx, limitsCacheKey(userID)); err != nil {
		c.log.Warn("failed to invalidate limits cache", "user_id", userID, "error", err)
	}
}

func (c *Calculator) cachedLimits(ctx context.Context, userID uint) (models.FeatureLimits, bool) {
	if c.cache == nil {
		return models.FeatureLimits{}, false
	}
	raw, err := c.cache.Get(ctx, limitsCacheKey(userID))
	if err != nil {
		if !cache.IsMiss(err) {
			c.log.Warn("limits cache read failed", "user_id", userID, "error", err)
		}
		return models.FeatureLimits{}, false
	}
	var limits models.FeatureLimits
	if err := json.Unmarshal([]byte(raw), &limits); err != nil {
		return models.FeatureLimits{}, false
	}
	return limits, true
}

func (c *Calculator) storeLimits(ctx context.Context, userID uint, limits models.FeatureLimits) {
	if c.cache == nil {
		return
	}
	raw, err := json.Marshal(limits)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, limitsCacheKey(userID), raw, limitsCacheTTL); err != nil {
		c.log.Warn("limits cache write failed", "user_id", userID, "error", err)
	}
}

func limitsCacheKey(userID uint) string {
	return fmt.Sprintf("entitlements:limits:%d", userID)
}
