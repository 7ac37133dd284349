package models

import "time"

// User represents an account that owns workspaces and at most one
// authoritative subscription.
type User struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Email            string     `gorm:"type:varchar(191);not null;uniqueIndex" json:"email"`
	Name             string     `gorm:"type:varchar(191)" json:"name"`
	StripeCustomerID *string    `gorm:"type:varchar(191);index" json:"stripe_customer_id,omitempty"`
	TrialStartDate   *time.Time `json:"trial_start_date,omitempty"`
	TrialEndDate     *time.Time `json:"trial_end_date,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
