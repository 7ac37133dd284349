package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/draftboardhq/draftboard-backend/pkg/domain"
	"github.com/draftboardhq/draftboard-backend/pkg/models"
)

// GormStore implements Store on top of GORM.
type GormStore struct {
	db *gorm.DB
}

// Open connects to MySQL and returns a migrated store.
func Open(dsn string) (*GormStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return New(db), nil
}

// New wraps an existing GORM handle. The handle must be opened with
// TranslateError so duplicate-key races surface as gorm.ErrDuplicatedKey.
func New(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates or updates the schema for all billing tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Plan{},
		&models.Subscription{},
		&models.Workspace{},
		&models.Project{},
		&models.ProjectFile{},
		&models.WorkspaceMember{},
	)
}

// DB exposes the underlying handle for migrations and test seeding.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// WithinTx runs fn inside a database transaction.
func (s *GormStore) WithinTx(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func translate(err error, resource string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NewNotFoundError(resource)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.NewConflictError(resource + " already exists")
	}
	return err
}

// GetUser fetches a user by primary key.
func (s *GormStore) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, translate(err, "user")
	}
	return &u, nil
}

// GetUserByStripeCustomerID resolves a provider customer id to a local user.
func (s *GormStore) GetUserByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).
		Where("stripe_customer_id = ?", customerID).
		First(&u).Error
	if err != nil {
		return nil, translate(err, "user")
	}
	return &u, nil
}

// SaveUser persists all fields of an existing user.
func (s *GormStore) SaveUser(ctx context.Context, u *models.User) error {
	return translate(s.db.WithContext(ctx).Save(u).Error, "user")
}

// ListBillableUsers returns every user linked to a provider customer,
// ordered by id so the sweep iterates deterministically.
func (s *GormStore) ListBillableUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).
		Where("stripe_customer_id IS NOT NULL AND stripe_customer_id <> ''").
		Order("id").
		Find(&users).Error
	return users, err
}

// GetPlanByID fetches a plan row by primary key.
func (s *GormStore) GetPlanByID(ctx context.Context, id uint) (*models.Plan, error) {
	var p models.Plan
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, translate(err, "plan")
	}
	return &p, nil
}

// GetPlanByName fetches a plan row by its unique slug.
func (s *GormStore) GetPlanByName(ctx context.Context, name string) (*models.Plan, error) {
	var p models.Plan
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&p).Error; err != nil {
		return nil, translate(err, "plan")
	}
	return &p, nil
}

// CreatePlanIfAbsent inserts a plan unless one with the same name already
// exists, then rereads so p carries the winning row. Concurrent callers for
// the same plan serialize on the unique name index: never two winning inserts.
func (s *GormStore) CreatePlanIfAbsent(ctx context.Context, p *models.Plan) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(p).Error
	if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return err
	}
	return translate(s.db.WithContext(ctx).Where("name = ?", p.Name).First(p).Error, "plan")
}

// GetSubscriptionByProviderID looks up the row mirroring a provider
// subscription.
func (s *GormStore) GetSubscriptionByProviderID(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).
		Where("stripe_subscription_id = ?", providerSubscriptionID).
		First(&sub).Error
	if err != nil {
		return nil, translate(err, "subscription")
	}
	return &sub, nil
}

// ListSubscriptionsByUser returns all historical rows for a user, newest
// first.
func (s *GormStore) ListSubscriptionsByUser(ctx context.Context, userID uint) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&subs).Error
	return subs, err
}

// CreateSubscription inserts a new row. A duplicate provider subscription id
// surfaces as a domain conflict so the reconciler can fall back to its
// update path.
func (s *GormStore) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	return translate(s.db.WithContext(ctx).Create(sub).Error, "subscription")
}

// UpdateSubscription persists all fields of an existing row.
func (s *GormStore) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	return translate(s.db.WithContext(ctx).Save(sub).Error, "subscription")
}

// CancelOtherSubscriptions marks every non-canceled row of the user with a
// different provider subscription id as canceled. Enforces the
// single-authoritative-subscription invariant on the create path.
func (s *GormStore) CancelOtherSubscriptions(ctx context.Context, userID uint, keepProviderSubscriptionID string, canceledAt time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("user_id = ? AND stripe_subscription_id <> ? AND status <> ?",
			userID, keepProviderSubscriptionID, models.StatusCanceled).
		Updates(map[string]interface{}{
			"status":               models.StatusCanceled,
			"cancel_at_period_end": false,
			"canceled_at":          canceledAt,
		})
	return res.RowsAffected, res.Error
}

// ListWorkspacesByOwner returns all workspaces owned by a user.
func (s *GormStore) ListWorkspacesByOwner(ctx context.Context, ownerID uint) ([]models.Workspace, error) {
	var workspaces []models.Workspace
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("id").
		Find(&workspaces).Error
	return workspaces, err
}

// SetWorkspaceTierForOwner applies a tier to every workspace owned by a user.
func (s *GormStore) SetWorkspaceTierForOwner(ctx context.Context, ownerID uint, tier string) error {
	return s.db.WithContext(ctx).
		Model(&models.Workspace{}).
		Where("owner_id = ?", ownerID).
		Update("subscription_tier", tier).Error
}

// CountWorkspacesByOwner counts a user's workspaces.
func (s *GormStore) CountWorkspacesByOwner(ctx context.Context, ownerID uint) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Workspace{}).
		Where("owner_id = ?", ownerID).
		Count(&count).Error
	return int(count), err
}

// CountMembersByOwnerWorkspaces counts memberships across all workspaces a
// user owns.
func (s *GormStore) CountMembersByOwnerWorkspaces(ctx context.Context, ownerID uint) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.WorkspaceMember{}).
		Where("workspace_id IN (?)",
			s.db.Model(&models.Workspace{}).Select("id").Where("owner_id = ?", ownerID)).
		Count(&count).Error
	return int(count), err
}

// SumStorageBytesByOwner sums file sizes across all workspaces a user owns.
func (s *GormStore) SumStorageBytesByOwner(ctx context.Context, ownerID uint) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).
		Model(&models.ProjectFile{}).
		Select("COALESCE(SUM(size_bytes), 0)").
		Where("project_id IN (?)",
			s.db.Model(&models.Project{}).Select("id").Where("workspace_id IN (?)",
				s.db.Model(&models.Workspace{}).Select("id").Where("owner_id = ?", ownerID))).
		Scan(&total).Error
	return total, err
}

// CountProjectsByWorkspace counts projects in one workspace.
func (s *GormStore) CountProjectsByWorkspace(ctx context.Context, workspaceID uint) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Project{}).
		Where("workspace_id = ?", workspaceID).
		Count(&count).Error
	return int(count), err
}

// CountFilesByProject counts files in one project.
func (s *GormStore) CountFilesByProject(ctx context.Context, projectID uint) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.ProjectFile{}).
		Where("project_id = ?", projectID).
		Count(&count).Error
	return int(count), err
}

// MaxFilesInWorkspaceProjects returns the largest file count of any project
// in the workspace.
func (s *GormStore) MaxFilesInWorkspaceProjects(ctx context.Context, workspaceID uint) (int, error) {
	perProject := s.db.Model(&models.ProjectFile{}).
		Select("project_id, COUNT(*) AS cnt").
		Where("project_id IN (?)",
			s.db.Model(&models.Project{}).Select("id").Where("workspace_id = ?", workspaceID)).
		Group("project_id")

	var max int64
	err := s.db.WithContext(ctx).
		Table("(?) AS per_project", perProject).
		Select("COALESCE(MAX(cnt), 0)").
		Scan(&max).Error
	return int(max), err
}

// CountMembersByWorkspace counts memberships in one workspace.
func (s *GormStore) CountMembersByWorkspace(ctx context.Context, workspaceID uint) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.WorkspaceMember{}).
		Where("workspace_id = ?", workspaceID).
		Count(&count).Error
	return int(count), err
}

// SumStorageBytesByWorkspace sums file sizes in one workspace.
func (s *GormStore) SumStorageBytesByWorkspace(ctx context.Context, workspaceID uint) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).
		Model(&models.ProjectFile{}).
		Select("COALESCE(SUM(size_bytes), 0)").
		Where("project_id IN (?)",
			s.db.Model(&models.Project{}).Select("id").Where("workspace_id = ?", workspaceID)).
		Scan(&total).Error
	return total, err
}
