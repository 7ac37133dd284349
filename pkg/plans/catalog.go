package plans

import (
	"fmt"
	"sort"
	"strings"

	"github.com/draftboardhq/draftboard-backend/pkg/domain"
	"github.com/draftboardhq/draftboard-backend/pkg/models"
)

// AnnualSuffix distinguishes yearly plan slugs from their monthly base.
const AnnualSuffix = "_annual"

// PlanConfig is a config-defined plan. The catalog is the source of truth;
// DB rows are materialized from it lazily on first reference.
type PlanConfig struct {
	Name              string
	DisplayName       string
	MonthlyPriceCents int64
	YearlyPriceCents  int64
	Limits            models.FeatureLimits
	SortOrder         int
	Features          []string
}

// PriceRef ties an opaque provider price id to a plan slug and billing
// interval.
type PriceRef struct {
	PlanName string
	Interval string
}

// Catalog holds plan definitions and the provider price id mapping.
type Catalog struct {
	plans  map[string]PlanConfig
	prices map[string]PriceRef
}

// CatalogPrices carries the provider price ids for the default catalog.
type CatalogPrices struct {
	ProMonthly string
	ProYearly  string
}

// NewCatalog builds the default Draftboard catalog. Price ids come from
// configuration because they differ between live and test provider accounts.
func NewCatalog(prices CatalogPrices) *Catalog {
	pro := PlanConfig{
		Name:              "pro",
		DisplayName:       "Draftboard Pro",
		MonthlyPriceCents: 1500,
		YearlyPriceCents:  14400,
		SortOrder:         1,
		Limits: models.FeatureLimits{
			Workspaces:           models.FeatureLimit{Max: 10},
			ProjectsPerWorkspace: models.FeatureLimit{Unlimited: true},
			FilesPerProject:      models.FeatureLimit{Unlimited: true},
			TeamMembers:          models.FeatureLimit{Max: 25},
			StorageGB:            models.FeatureLimit{Max: 100},
			FileSizeMB:           models.FeatureLimit{Max: 500},
		},
		Features: []string{
			"10 workspaces",
			"Unlimited projects and files",
			"Up to 25 team members",
			"100 GB storage",
		},
	}

	c := &Catalog{
		plans:  map[string]PlanConfig{pro.Name: pro},
		prices: map[string]PriceRef{},
	}
	c.registerPrice(prices.ProMonthly, pro.Name, models.IntervalMonthly)
	c.registerPrice(prices.ProYearly, pro.Name, models.IntervalYearly)
	return c
}

func (c *Catalog) registerPrice(priceID, base, interval string) {
	if priceID == "" {
		return
	}
	c.prices[priceID] = PriceRef{
		PlanName: PlanNameFor(base, interval),
		Interval: interval,
	}
}

// Get returns the config for a base plan name.
func (c *Catalog) Get(baseName string) (PlanConfig, error) {
	p, ok := c.plans[baseName]
	if !ok {
		return PlanConfig{}, domain.NewConfigurationError(fmt.Sprintf("plan %q is not in the catalog", baseName))
	}
	return p, nil
}

// ResolvePrice maps a provider price id to a plan slug and billing interval.
// An unknown price id is a hard failure: silently defaulting a plan would
// mis-map billing state, which is worse than failing the reconciliation.
func (c *Catalog) ResolvePrice(priceID string) (string, string, error) {
	ref, ok := c.prices[priceID]
	if !ok {
		return "", "", domain.NewConfigurationError(fmt.Sprintf("unknown provider price id %q", priceID))
	}
	return ref.PlanName, ref.Interval, nil
}

// PlanNameFor builds the slug for a base plan and interval.
func PlanNameFor(base, interval string) string {
	if interval == models.IntervalYearly {
		return base + AnnualSuffix
	}
	return base
}

// SplitPlanName derives the base name and billing interval from a slug.
func SplitPlanName(planName string) (string, string) {
	if base, ok := strings.CutSuffix(planName, AnnualSuffix); ok {
		return base, models.IntervalYearly
	}
	return planName, models.IntervalMonthly
}

// PlanRow builds a persistable plan row for a slug from catalog data.
func (c *Catalog) PlanRow(planName string) (*models.Plan, error) {
	base, interval := SplitPlanName(planName)
	cfg, err := c.Get(base)
	if err != nil {
		return nil, err
	}

	price := cfg.MonthlyPriceCents
	if interval == models.IntervalYearly {
		price = cfg.YearlyPriceCents
	}

	limits := cfg.Limits
	return &models.Plan{
		Name:                    planName,
		DisplayName:             cfg.DisplayName,
		PriceCents:              price,
		BillingInterval:         interval,
		IsActive:                true,
		SortOrder:               cfg.SortOrder,
		MaxWorkspaces:           columnFromLimit(limits.Workspaces),
		MaxProjectsPerWorkspace: columnFromLimit(limits.ProjectsPerWorkspace),
		MaxFilesPerProject:      columnFromLimit(limits.FilesPerProject),
		MaxTeamMembers:          columnFromLimit(limits.TeamMembers),
		MaxStorageGB:            columnFromLimit(limits.StorageGB),
		MaxFileSizeMB:           columnFromLimit(limits.FileSizeMB),
	}, nil
}

// PriceIDFor returns the provider price id selling a plan slug.
func (c *Catalog) PriceIDFor(planName string) (string, error) {
	for priceID, ref := range c.prices {
		if ref.PlanName == planName {
			return priceID, nil
		}
	}
	return "", domain.NewConfigurationError(fmt.Sprintf("no provider price configured for plan %q", planName))
}

// Pricing lists every purchasable plan variant for the pricing endpoint.
func (c *Catalog) Pricing() []models.PricingTier {
	var tiers []models.PricingTier
	for _, cfg := range c.plans {
		tiers = append(tiers,
			models.PricingTier{
				Name:        cfg.Name,
				DisplayName: cfg.DisplayName,
				PriceCents:  cfg.MonthlyPriceCents,
				Interval:    models.IntervalMonthly,
				Features:    cfg.Features,
			},
			models.PricingTier{
				Name:        cfg.Name + AnnualSuffix,
				DisplayName: cfg.DisplayName,
				PriceCents:  cfg.YearlyPriceCents,
				Interval:    models.IntervalYearly,
				Features:    cfg.Features,
			},
		)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Name < tiers[j].Name })
	return tiers
}

func columnFromLimit(l models.FeatureLimit) int {
	if l.Unlimited {
		return models.UnlimitedSentinel
	}
	return l.Max
}
