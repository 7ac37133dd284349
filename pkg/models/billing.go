package models

import "time"

// Feature names used by limit checks.
const (
	FeatureWorkspaces           = "workspaces"
	FeatureProjectsPerWorkspace = "projects_per_workspace"
	FeatureFilesPerProject      = "files_per_project"
	FeatureTeamMembers          = "team_members"
	FeatureStorageGB            = "storage_gb"
	FeatureFileSizeMB           = "file_size_mb"
)

// FeatureLimit is a single per-feature cap. Unlimited overrides Max.
type FeatureLimit struct {
	Max       int  `json:"max"`
	Unlimited bool `json:"unlimited"`
}

// Allows reports whether one more item may be added given the current count.
// Strict less-than: currentUsage is the count before adding the new item.
func (l FeatureLimit) Allows(currentUsage int) bool {
	return l.Unlimited || currentUsage < l.Max
}

// FeatureLimits holds the effective caps for every gated feature.
type FeatureLimits struct {
	Workspaces           FeatureLimit `json:"workspaces"`
	ProjectsPerWorkspace FeatureLimit `json:"projects_per_workspace"`
	FilesPerProject      FeatureLimit `json:"files_per_project"`
	TeamMembers          FeatureLimit `json:"team_members"`
	StorageGB            FeatureLimit `json:"storage_gb"`
	FileSizeMB           FeatureLimit `json:"file_size_mb"`
}

// ForFeature returns the limit for a named feature.
func (fl FeatureLimits) ForFeature(feature string) (FeatureLimit, bool) {
	switch feature {
	case FeatureWorkspaces:
		return fl.Workspaces, true
	case FeatureProjectsPerWorkspace:
		return fl.ProjectsPerWorkspace, true
	case FeatureFilesPerProject:
		return fl.FilesPerProject, true
	case FeatureTeamMembers:
		return fl.TeamMembers, true
	case FeatureStorageGB:
		return fl.StorageGB, true
	case FeatureFileSizeMB:
		return fl.FileSizeMB, true
	default:
		return FeatureLimit{}, false
	}
}

// UsageSnapshot is an ephemeral aggregation of current consumption, scoped
// either to a user or to a single workspace.
type UsageSnapshot struct {
	Workspaces      int     `json:"workspaces"`
	Projects        int     `json:"projects"`
	FilesPerProject int     `json:"files_per_project"`
	TeamMembers     int     `json:"team_members"`
	StorageGB       float64 `json:"storage_gb"`
}

// LimitCheckResult is the outcome of gating one more item behind a feature
// limit.
type LimitCheckResult struct {
	Allowed bool   `json:"allowed"`
	Limit   int    `json:"limit"`
	Usage   int    `json:"usage"`
	Message string `json:"message,omitempty"`
}

// SubscriptionState classifies a user's subscription for UI gating.
// Past-due and unpaid still count as active so the UI can show a grace
// period instead of cutting access off mid-cycle.
type SubscriptionState struct {
	HasActiveSubscription bool `json:"has_active_subscription"`
	HasValidTrial         bool `json:"has_valid_trial"`
	TrialExpired          bool `json:"trial_expired"`
}

// ProviderSubscription is a point-in-time snapshot of a billing subscription
// as reported by the payment provider. Zero time fields mean the provider
// omitted them.
type ProviderSubscription struct {
	ID                 string
	CustomerID         string
	Status             string
	PriceID            string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAt           time.Time
	CancelAtPeriodEnd  bool
	TrialStart         time.Time
	TrialEnd           time.Time
}

// ProrationPreview is an ephemeral cost estimate for a plan change.
type ProrationPreview struct {
	ImmediateCharge  int64     `json:"immediate_charge"`
	Credit           int64     `json:"credit"`
	NextInvoiceTotal int64     `json:"next_invoice_total"`
	Currency         string    `json:"currency"`
	EffectiveDate    time.Time `json:"effective_date"`
}

// VerifyCheckoutRequest is the post-checkout verification payload.
type VerifyCheckoutRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

// PreviewProrationRequest asks for a cost preview of switching plans.
type PreviewProrationRequest struct {
	NewPlanName string `json:"new_plan_name" validate:"required"`
}

// SubscriptionInfo is the API view of a persisted subscription.
type SubscriptionInfo struct {
	ID                 uint   `json:"id"`
	PlanName           string `json:"plan_name"`
	Status             string `json:"status"`
	CurrentPeriodStart string `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   string `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
}

// PricingTier represents one purchasable plan in the pricing listing.
type PricingTier struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	PriceCents  int64    `json:"price_cents"`
	Interval    string   `json:"interval"`
	Features    []string `json:"features"`
}

// PricingResponse represents pricing information
type PricingResponse struct {
	Tiers []PricingTier `json:"tiers"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse is the uniform success envelope.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
