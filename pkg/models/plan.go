package models

import "time"

// Billing intervals
const (
	IntervalMonthly = "monthly"
	IntervalYearly  = "yearly"
)

// UnlimitedSentinel marks a feature limit column as unlimited.
const UnlimitedSentinel = -1

// Plan is a persisted plan row, materialized lazily from the catalog on
// first reference. Rows are append-only: catalog changes never rewrite an
// existing row, so subscription foreign keys stay stable.
type Plan struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Name            string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"name"`
	DisplayName     string    `gorm:"type:varchar(191);not null" json:"display_name"`
	PriceCents      int64     `gorm:"not null" json:"price_cents"`
	BillingInterval string    `gorm:"type:varchar(16);not null" json:"billing_interval"`
	IsActive        bool      `gorm:"default:true" json:"is_active"`
	SortOrder       int       `gorm:"default:0" json:"sort_order"`

	// Feature limit columns. UnlimitedSentinel (-1) means unlimited.
	MaxWorkspaces           int `gorm:"not null" json:"max_workspaces"`
	MaxProjectsPerWorkspace int `gorm:"not null" json:"max_projects_per_workspace"`
	MaxFilesPerProject      int `gorm:"not null" json:"max_files_per_project"`
	MaxTeamMembers          int `gorm:"not null" json:"max_team_members"`
	MaxStorageGB            int `gorm:"not null" json:"max_storage_gb"`
	MaxFileSizeMB           int `gorm:"not null" json:"max_file_size_mb"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Limits converts the persisted limit columns into a FeatureLimits value.
func (p *Plan) Limits() FeatureLimits {
	return FeatureLimits{
		Workspaces:           limitFromColumn(p.MaxWorkspaces),
		ProjectsPerWorkspace: limitFromColumn(p.MaxProjectsPerWorkspace),
		FilesPerProject:      limitFromColumn(p.MaxFilesPerProject),
		TeamMembers:          limitFromColumn(p.MaxTeamMembers),
		StorageGB:            limitFromColumn(p.MaxStorageGB),
		FileSizeMB:           limitFromColumn(p.MaxFileSizeMB),
	}
}

func limitFromColumn(max int) FeatureLimit {
	if max == UnlimitedSentinel {
		return FeatureLimit{Unlimited: true}
	}
	return FeatureLimit{Max: max}
}
