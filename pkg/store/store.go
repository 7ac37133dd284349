package store

import (
	"context"
	"time"

	"github.com/draftboardhq/draftboard-backend/pkg/models"
)

// Store is the persistence contract consumed by the billing and entitlement
// services. Implementations must map their backend's not-found and
// duplicate-key conditions to the domain error taxonomy so callers never
// depend on driver errors.
type Store interface {
	// WithinTx runs fn against a transactional view of the store. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(Store) error) error

	// Users
	GetUser(ctx context.Context, id uint) (*models.User, error)
	GetUserByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error)
	SaveUser(ctx context.Context, u *models.User) error
	ListBillableUsers(ctx context.Context) ([]models.User, error)

	// Plans
	GetPlanByID(ctx context.Context, id uint) (*models.Plan, error)
	GetPlanByName(ctx context.Context, name string) (*models.Plan, error)
	CreatePlanIfAbsent(ctx context.Context, p *models.Plan) error

	// Subscriptions
	GetSubscriptionByProviderID(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error)
	ListSubscriptionsByUser(ctx context.Context, userID uint) ([]models.Subscription, error)
	CreateSubscription(ctx context.Context, sub *models.Subscription) error
	UpdateSubscription(ctx context.Context, sub *models.Subscription) error
	CancelOtherSubscriptions(ctx context.Context, userID uint, keepProviderSubscriptionID string, canceledAt time.Time) (int64, error)

	// Workspaces
	ListWorkspacesByOwner(ctx context.Context, ownerID uint) ([]models.Workspace, error)
	SetWorkspaceTierForOwner(ctx context.Context, ownerID uint, tier string) error

	// Usage aggregation
	CountWorkspacesByOwner(ctx context.Context, ownerID uint) (int, error)
	CountMembersByOwnerWorkspaces(ctx context.Context, ownerID uint) (int, error)
	SumStorageBytesByOwner(ctx context.Context, ownerID uint) (int64, error)
	CountProjectsByWorkspace(ctx context.Context, workspaceID uint) (int, error)
	CountFilesByProject(ctx context.Context, projectID uint) (int, error)
	MaxFilesInWorkspaceProjects(ctx context.Context, workspaceID uint) (int, error)
	CountMembersByWorkspace(ctx context.Context, workspaceID uint) (int, error)
	SumStorageBytesByWorkspace(ctx context.Context, workspaceID uint) (int64, error)
}
