package models

import "time"

// Subscription statuses, mirroring the provider lifecycle.
const (
	StatusActive            = "active"
	StatusTrialing          = "trialing"
	StatusPastDue           = "past_due"
	StatusCanceled          = "canceled"
	StatusIncomplete        = "incomplete"
	StatusIncompleteExpired = "incomplete_expired"
	StatusUnpaid            = "unpaid"
)

// Subscription is the locally persisted mirror of a provider subscription.
// Rows are never hard-deleted: cancellation is a status transition. At most
// one row per user is authoritative (non-canceled) at a time.
type Subscription struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	UserID               uint       `gorm:"not null;index" json:"user_id"`
	PlanID               uint       `gorm:"not null" json:"plan_id"`
	StripeSubscriptionID string     `gorm:"type:varchar(191);not null;uniqueIndex" json:"stripe_subscription_id"`
	StripeCustomerID     string     `gorm:"type:varchar(191);not null;index" json:"stripe_customer_id"`
	Status               string     `gorm:"type:varchar(32);not null;index" json:"status"`
	CurrentPeriodStart   time.Time  `json:"current_period_start"`
	CurrentPeriodEnd     time.Time  `json:"current_period_end"`
	CancelAtPeriodEnd    bool       `gorm:"default:false" json:"cancel_at_period_end"`
	CanceledAt           *time.Time `json:"canceled_at,omitempty"`
	TrialStart           *time.Time `json:"trial_start,omitempty"`
	TrialEnd             *time.Time `json:"trial_end,omitempty"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsAuthoritative reports whether this row currently governs the user's
// entitlements.
func (s *Subscription) IsAuthoritative() bool {
	return s.Status != StatusCanceled
}
