package testdata

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/draftboardhq/draftboard-backend/pkg/models"
)

// Generator produces randomized but realistic fixtures for tests and local
// seeding. Seed once per test for reproducible runs.
type Generator struct {
	faker *gofakeit.Faker
}

// NewGenerator creates a generator with the given seed.
func NewGenerator(seed int64) *Generator {
	return &Generator{faker: gofakeit.New(seed)}
}

// User returns a user without any billing linkage.
func (g *Generator) User() *models.User {
	return &models.User{
		Email: g.faker.Email(),
		Name:  g.faker.Name(),
	}
}

// BillableUser returns a user already linked to a provider customer.
func (g *Generator) BillableUser() *models.User {
	u := g.User()
	customerID := g.CustomerID()
	u.StripeCustomerID = &customerID
	return u
}

// CustomerID returns a provider customer identifier.
func (g *Generator) CustomerID() string {
	return "cus_" + g.faker.LetterN(14)
}

// SubscriptionID returns a provider subscription identifier.
func (g *Generator) SubscriptionID() string {
	return "sub_" + g.faker.LetterN(14)
}

// SessionID returns a checkout session identifier.
func (g *Generator) SessionID() string {
	return "cs_test_" + g.faker.LetterN(24)
}

// Workspace returns a free-tier workspace owned by ownerID.
func (g *Generator) Workspace(ownerID uint) *models.Workspace {
	return &models.Workspace{
		Name:             g.faker.Company(),
		OwnerID:          ownerID,
		SubscriptionTier: models.TierFree,
	}
}

// Project returns a project in the given workspace.
func (g *Generator) Project(workspaceID uint) *models.Project {
	return &models.Project{
		Name:        g.faker.AppName(),
		WorkspaceID: workspaceID,
	}
}

// ProjectFile returns a file between 1KB and maxMB megabytes.
func (g *Generator) ProjectFile(projectID uint, maxMB int) *models.ProjectFile {
	if maxMB < 1 {
		maxMB = 1
	}
	return &models.ProjectFile{
		Name:      fmt.Sprintf("%s.%s", g.faker.Word(), g.faker.FileExtension()),
		ProjectID: projectID,
		SizeBytes: int64(g.faker.Number(1024, maxMB*1024*1024)),
	}
}

// ProviderSubscription returns an active monthly subscription snapshot for
// the given customer, with a period anchored at now.
func (g *Generator) ProviderSubscription(customerID, priceID string) *models.ProviderSubscription {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.ProviderSubscription{
		ID:                 g.SubscriptionID(),
		CustomerID:         customerID,
		PriceID:            priceID,
		Status:             models.StatusActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
	}
}
