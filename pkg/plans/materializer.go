package plans

import (
	"context"

	"github.com/draftboardhq/draftboard-backend/pkg/domain"
	"github.com/draftboardhq/draftboard-backend/pkg/logger"
	"github.com/draftboardhq/draftboard-backend/pkg/store"
)

// Materializer lazily creates persisted plan rows from catalog definitions.
// Existing rows are never overwritten, even if catalog values changed later:
// persisted plan ids must stay stable for subscription foreign keys.
type Materializer struct {
	store   store.Store
	catalog *Catalog
	log     logger.Logger
}

// NewMaterializer creates a plan materializer.
func NewMaterializer(st store.Store, catalog *Catalog, log logger.Logger) *Materializer {
	return &Materializer{store: st, catalog: catalog, log: log}
}

// EnsurePlan returns the persisted plan id for a slug, creating the row from
// catalog data on first reference. Concurrent callers for the same plan are
// serialized by the unique name constraint through the
// insert-on-conflict-then-reread path in the store.
func (m *Materializer) EnsurePlan(ctx context.Context, planName string) (uint, error) {
	existing, err := m.store.GetPlanByName(ctx, planName)
	if err == nil {
		return existing.ID, nil
	}
	if !domain.IsNotFound(err) {
		return 0, err
	}

	row, err := m.catalog.PlanRow(planName)
	if err != nil {
		// Plan absent from the catalog, e.g. deprecated. The caller aborts
		// the whole reconciliation rather than proceeding with a bad plan id.
		return 0, err
	}

	if err := m.store.CreatePlanIfAbsent(ctx, row); err != nil {
		return 0, err
	}
	m.log.Info("plan materialized", "plan", planName, "plan_id", row.ID)
	return row.ID, nil
}
