package testdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftboardhq/draftboard-backend/pkg/models"
)

func TestGeneratorIsDeterministic(t *testing.T) {
	a := NewGenerator(7).User()
	b := NewGenerator(7).User()
	assert.Equal(t, a.Email, b.Email)
	assert.Equal(t, a.Name, b.Name)
}

func TestBillableUserHasCustomer(t *testing.T) {
	u := NewGenerator(1).BillableUser()
	require.NotNil(t, u.StripeCustomerID)
	assert.Contains(t, *u.StripeCustomerID, "cus_")
}

func TestProviderSubscriptionShape(t *testing.T) {
	g := NewGenerator(1)

	snap := g.ProviderSubscription("cus_abc", "price_xyz")
	assert.Contains(t, snap.ID, "sub_")
	assert.Equal(t, "cus_abc", snap.CustomerID)
	assert.Equal(t, "price_xyz", snap.PriceID)
	assert.Equal(t, models.StatusActive, snap.Status)
	assert.True(t, snap.CurrentPeriodEnd.After(snap.CurrentPeriodStart))
}

func TestProjectFileSizeBounds(t *testing.T) {
	g := NewGenerator(3)

	f := g.ProjectFile(1, 5)
	assert.GreaterOrEqual(t, f.SizeBytes, int64(1024))
	assert.LessOrEqual(t, f.SizeBytes, int64(5*1024*1024))
	assert.NotEmpty(t, f.Name)
}
