package services

import (
	"context"

	"github.com/prudhvinik1/crmsync/internal/models"
	"github.com/prudhvinik1/crmsync/internal/orchestrator"
)

// SyncOption adjusts a single sync request.
type SyncOption func(*syncOptions)

type syncOptions struct {
	associate    bool
	environments []string
	providers    []string
	soft         bool
}

// WithoutAssociations skips the association phase.
func WithoutAssociations() SyncOption {
	return func(o *syncOptions) { o.associate = false }
}

// WithEnvironments restricts the request to the named environments.
func WithEnvironments(envs ...string) SyncOption {
	return func(o *syncOptions) { o.environments = append(o.environments, envs...) }
}

// WithProviders restricts the request to the named providers.
func WithProviders(providers ...string) SyncOption {
	return func(o *syncOptions) { o.providers = append(o.providers, providers...) }
}

// HardDelete makes a delete action archive the remote object instead of
// applying the soft delete properties.
func HardDelete() SyncOption {
	return func(o *syncOptions) { o.soft = false }
}

// SyncService is the entry point host code uses to push a record to the
// configured CRMs.
type SyncService struct {
	orch *orchestrator.Orchestrator
}

func NewSyncService(orch *orchestrator.Orchestrator) *SyncService {
	return &SyncService{orch: orch}
}

// Sync runs actions for record. Only fatal configuration errors are
// returned; per-unit failures are in the report.
func (s *SyncService) Sync(ctx context.Context, record models.Record, actions orchestrator.Actions, opts ...SyncOption) (*orchestrator.Report, error) {
	o := syncOptions{associate: true, soft: true}
	for _, opt := range opts {
		opt(&o)
	}

	return s.orch.NewSync().
		SetModel(record).
		SetActions(actions).
		SetSoftDelete(o.soft).
		Execute(ctx, o.associate, o.environments, o.providers)
}

func (s *SyncService) SyncOnCreate(ctx context.Context, record models.Record, opts ...SyncOption) (*orchestrator.Report, error) {
	return s.Sync(ctx, record, orchestrator.ActionCreate, opts...)
}

func (s *SyncService) SyncOnUpdate(ctx context.Context, record models.Record, opts ...SyncOption) (*orchestrator.Report, error) {
	return s.Sync(ctx, record, orchestrator.ActionUpdate, opts...)
}

// SyncOnDelete soft deletes unless HardDelete is passed.
func (s *SyncService) SyncOnDelete(ctx context.Context, record models.Record, opts ...SyncOption) (*orchestrator.Report, error) {
	return s.Sync(ctx, record, orchestrator.ActionDelete, opts...)
}

func (s *SyncService) SyncOnRestore(ctx context.Context, record models.Record, opts ...SyncOption) (*orchestrator.Report, error) {
	return s.Sync(ctx, record, orchestrator.ActionRestore, opts...)
}

// SyncPatch creates the remote object when missing and updates it otherwise.
func (s *SyncService) SyncPatch(ctx context.Context, record models.Record, opts ...SyncOption) (*orchestrator.Report, error) {
	return s.Sync(ctx, record, orchestrator.ActionPatch, opts...)
}
