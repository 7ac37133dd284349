package models

import "time"

// Workspace subscription tiers. The tier is a coarse entitlement
// classification derived from the owner's authoritative subscription.
const (
	TierFree = "free"
	TierPro  = "pro"
)

// Workspace is the unit entitlements are applied to.
type Workspace struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	OwnerID          uint      `gorm:"not null;index" json:"owner_id"`
	Name             string    `gorm:"type:varchar(191);not null" json:"name"`
	SubscriptionTier string    `gorm:"type:varchar(16);not null;default:'free'" json:"subscription_tier"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Project lives inside a workspace. Project/file limits are enforced
// per-workspace, not per-user.
type Project struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	WorkspaceID uint      `gorm:"not null;index" json:"workspace_id"`
	Name        string    `gorm:"type:varchar(191);not null" json:"name"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ProjectFile is a stored file inside a project; SizeBytes feeds storage
// usage aggregation.
type ProjectFile struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ProjectID uint      `gorm:"not null;index" json:"project_id"`
	Name      string    `gorm:"type:varchar(191);not null" json:"name"`
	SizeBytes int64     `gorm:"not null;default:0" json:"size_bytes"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// WorkspaceMember links users to workspaces for team-member limits.
type WorkspaceMember struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	WorkspaceID uint      `gorm:"not null;uniqueIndex:ux_workspace_members,priority:1" json:"workspace_id"`
	UserID      uint      `gorm:"not null;uniqueIndex:ux_workspace_members,priority:2" json:"user_id"`
	Role        string    `gorm:"type:varchar(32);not null;default:'member'" json:"role"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}
