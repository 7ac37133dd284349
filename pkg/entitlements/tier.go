package entitlements

import "github.com/draftboardhq/draftboard-backend/pkg/models"

// planTiers is the closed set of valid (plan name, tier) pairs. The annual
// variant collapses onto the same tier as its monthly base. Kept as an
// enumerated table rather than suffix parsing so the mapping stays
// reviewable.
var planTiers = map[string]string{
	"pro":        models.TierPro,
	"pro_annual": models.TierPro,
}

// TierForPlan returns the workspace tier granted by a plan name. Unknown
// plan names grant no paid tier.
func TierForPlan(planName string) string {
	if tier, ok := planTiers[planName]; ok {
		return tier
	}
	return models.TierFree
}
