package entitlements

import (
	"context"

	"github.com/draftboardhq/draftboard-backend/pkg/models"
	"github.com/draftboardhq/draftboard-backend/pkg/store"
)

const bytesPerGB = 1 << 30

// Aggregator computes current consumption for limit enforcement. User scope
// and workspace scope are deliberately separate: workspaces is a per-user
// limit while projects and files are per-workspace, and conflating the two
// granularities over- or under-counts both.
type Aggregator struct {
	store store.Store
}

// NewAggregator creates a usage aggregator.
func NewAggregator(st store.Store) *Aggregator {
	return &Aggregator{store: st}
}

// UserUsage aggregates consumption across every workspace the user owns.
func (a *Aggregator) UserUsage(ctx context.Context, userID uint) (*models.UsageSnapshot, error) {
	workspaces, err := a.store.CountWorkspacesByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	members, err := a.store.CountMembersByOwnerWorkspaces(ctx, userID)
	if err != nil {
		return nil, err
	}
	storageBytes, err := a.store.SumStorageBytesByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &models.UsageSnapshot{
		Workspaces:  workspaces,
		TeamMembers: members,
		StorageGB:   float64(storageBytes) / bytesPerGB,
	}, nil
}

// WorkspaceUsage aggregates consumption inside one workspace.
func (a *Aggregator) WorkspaceUsage(ctx context.Context, workspaceID uint) (*models.UsageSnapshot, error) {
	projects, err := a.store.CountProjectsByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	maxFiles, err := a.store.MaxFilesInWorkspaceProjects(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	members, err := a.store.CountMembersByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	storageBytes, err := a.store.SumStorageBytesByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	return &models.UsageSnapshot{
		Projects:        projects,
		FilesPerProject: maxFiles,
		TeamMembers:     members,
		StorageGB:       float64(storageBytes) / bytesPerGB,
	}, nil
}

// ProjectFileCount counts files in a single project, for gating one more
// file upload.
func (a *Aggregator) ProjectFileCount(ctx context.Context, projectID uint) (int, error) {
	return a.store.CountFilesByProject(ctx, projectID)
}
