// Package orchestrator is the sync engine. For one local record it plans
// the (environment, provider) units to run, drives a crm.Provider through
// load, decide and mutate for each, keeps the external key lookup in step
// and reconciles declared associations.
package orchestrator

import (
	"context"
	"sort"
	"time"

	"github.com/prudhvinik1/crmsync/internal/crm"
	"github.com/prudhvinik1/crmsync/internal/logging"
	"github.com/prudhvinik1/crmsync/internal/models"
	"github.com/prudhvinik1/crmsync/internal/repositories"
	"github.com/prudhvinik1/crmsync/internal/utils"
	"golang.org/x/sync/errgroup"
)

// Settings are the engine's static options.
type Settings struct {
	DefaultEnvironment string
	// ObjectTables maps provider to remote object type to local table.
	ObjectTables map[string]map[string]string
	KeyFormat    string
	Workers      int
}

// Deps are the engine's collaborators. Locker and Status are optional.
type Deps struct {
	Registry *crm.Registry
	Lookups  repositories.KeyLookupRepository
	Locker   Locker
	Status   repositories.SyncStatusRepository
	Logger   *logging.Logger
}

// Orchestrator is long lived and safe for concurrent use. Each sync request
// is built with NewSync.
type Orchestrator struct {
	registry *crm.Registry
	lookups  repositories.KeyLookupRepository
	locker   Locker
	status   repositories.SyncStatusRepository
	log      *logging.Logger
	settings Settings
}

func New(deps Deps, settings Settings) *Orchestrator {
	if deps.Locker == nil {
		deps.Locker = NewMemoryLocker()
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if settings.Workers < 1 {
		settings.Workers = 1
	}
	if settings.KeyFormat == "" {
		settings.KeyFormat = utils.KeyFormatInt
	}
	return &Orchestrator{
		registry: deps.Registry,
		lookups:  deps.Lookups,
		locker:   deps.Locker,
		status:   deps.Status,
		log:      deps.Logger,
		settings: settings,
	}
}

// Sync is one sync request. It is not safe for concurrent use.
type Sync struct {
	o       *Orchestrator
	record  models.Record
	actions Actions
	soft    bool
}

// NewSync starts a request with the default patch actions and soft delete.
func (o *Orchestrator) NewSync() *Sync {
	return &Sync{o: o, actions: ActionPatch, soft: true}
}

func (s *Sync) SetModel(record models.Record) *Sync {
	s.record = record
	return s
}

func (s *Sync) SetActions(actions Actions) *Sync {
	s.actions = actions
	return s
}

func (s *Sync) SetSoftDelete(soft bool) *Sync {
	s.soft = soft
	return s
}

// syncContext is the state of one Execute call.
type syncContext struct {
	record    models.Record
	def       *models.SyncDefinition
	localID   string
	actions   Actions
	soft      bool
	associate bool
	log       *logging.Logger
}

// unit is one planned (environment, provider) pair.
type unit struct {
	environment string
	provider    string
	remoteType  string
	fields      models.FieldMap
	factory     crm.Factory
}

// Execute runs the request. Only fatal errors are returned. Everything
// else is logged and reflected in the report.
func (s *Sync) Execute(ctx context.Context, associate bool, envFilter, providerFilter []string) (*Report, error) {
	o := s.o
	log := o.log.WithCorrelation("")
	report := &Report{CorrelationID: log.CorrelationID(), Actions: s.actions.String()}

	if isNilRecord(s.record) {
		return report, crm.Fatal(crm.CodeConfiguration, "execute", "no model set")
	}
	report.LocalType = s.record.LocalType()
	report.LocalID = s.record.LocalID()
	log = log.Scope(report.LocalType + ":" + report.LocalID)

	localID, err := utils.NormalizeLocalID(o.settings.KeyFormat, s.record.LocalID())
	if err != nil {
		return report, crm.Fatal(crm.CodeConfiguration, "execute", "%v", err)
	}
	report.LocalID = localID

	sc := &syncContext{
		record:    s.record,
		def:       s.record.SyncDefinition(),
		localID:   localID,
		actions:   s.actions,
		soft:      s.soft,
		associate: associate,
		log:       log,
	}

	if reason := o.validate(sc); reason != "" {
		log.Error(logging.LevelHigh, "sync skipped", "reason", reason)
		report.Skipped = reason
		return report, nil
	}

	units, err := o.plan(sc, envFilter, providerFilter)
	if err != nil {
		log.Error(logging.LevelHigh, "sync aborted", "error", err)
		return report, err
	}
	if len(units) == 0 {
		log.Info(logging.LevelMid, "no units match the filters")
		report.Skipped = "no environment or provider matched the filters"
		return report, nil
	}

	log.Info(logging.LevelMid, "sync started", "actions", s.actions.String(), "units", len(units))

	report.Units = make([]UnitResult, len(units))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.settings.Workers)
	for i := range units {
		i := i
		g.Go(func() error {
			report.Units[i] = o.runUnit(gctx, sc, units[i])
			if crm.IsFatal(report.Units[i].Err) {
				return report.Units[i].Err
			}
			return nil
		})
	}
	err = g.Wait()

	o.recordStatuses(ctx, sc, report)
	log.Info(logging.LevelMid, "sync finished", "units", len(units), "failed", len(report.Failed()))
	return report, err
}

func (o *Orchestrator) validate(sc *syncContext) string {
	switch {
	case sc.actions.Empty():
		return "no actions requested"
	case !sc.def.HasMappings():
		return "no property mappings declared"
	case len(o.environments(sc.def)) == 0:
		return "no environment resolvable"
	}
	return ""
}

// environments returns the declared environments in order without
// duplicates, or the configured default.
func (o *Orchestrator) environments(def *models.SyncDefinition) []string {
	var declared []string
	if def != nil {
		declared = def.Environments
	}
	if len(declared) == 0 && o.settings.DefaultEnvironment != "" {
		declared = []string{o.settings.DefaultEnvironment}
	}

	seen := make(map[string]bool, len(declared))
	out := make([]string, 0, len(declared))
	for _, env := range declared {
		if env == "" || seen[env] {
			continue
		}
		seen[env] = true
		out = append(out, env)
	}
	return out
}

// plan resolves every unit before any remote call, so configuration errors
// abort the request without partial work.
func (o *Orchestrator) plan(sc *syncContext, envFilter, providerFilter []string) ([]unit, error) {
	type binding struct {
		remoteType string
		factory    crm.Factory
	}
	bindings := make(map[string]binding)

	var units []unit
	for _, env := range o.environments(sc.def) {
		if !allowed(envFilter, env) {
			sc.log.Debug(logging.LevelLow, "environment filtered out", "environment", env)
			continue
		}
		for _, m := range sc.def.Mappings {
			if len(m.Fields) == 0 || !allowed(providerFilter, m.Provider) {
				continue
			}

			b, ok := bindings[m.Provider]
			if !ok {
				remoteType, found := o.resolveRemoteType(sc.def, sc.record.LocalType(), m.Provider)
				if !found {
					return nil, crm.Fatal(crm.CodeUnsupportedObjectType, "plan",
						"no remote object type for %q", sc.record.LocalType()).In(m.Provider, env)
				}
				if o.registry == nil {
					return nil, crm.Fatal(crm.CodeConfiguration, "plan", "no provider registry").In(m.Provider, env)
				}
				factory, bound := o.registry.Get(m.Provider)
				if !bound {
					return nil, crm.Fatal(crm.CodeConfiguration, "plan", "no provider bound").In(m.Provider, env)
				}
				if !factory().SupportsObjectType(remoteType) {
					return nil, crm.Fatal(crm.CodeUnsupportedObjectType, "plan",
						"object type %q is not supported", remoteType).In(m.Provider, env)
				}
				b = binding{remoteType: remoteType, factory: factory}
				bindings[m.Provider] = b
			}

			units = append(units, unit{
				environment: env,
				provider:    m.Provider,
				remoteType:  b.remoteType,
				fields:      m.Fields,
				factory:     b.factory,
			})
		}
	}
	return units, nil
}

// resolveRemoteType returns the definition's override, else the remote type
// whose configured table is localType.
func (o *Orchestrator) resolveRemoteType(def *models.SyncDefinition, localType, provider string) (string, bool) {
	if def != nil && def.RemoteObjectType != "" {
		return def.RemoteObjectType, true
	}

	tables := o.settings.ObjectTables[provider]
	candidates := make([]string, 0, 1)
	for remote, table := range tables {
		if table == localType {
			candidates = append(candidates, remote)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Strings(candidates)
	return candidates[0], true
}

// resolveFilters reads the unique search fields of record for provider.
// Empty values are left out so they never match blank remote properties.
func resolveFilters(def *models.SyncDefinition, record models.Record, provider string) map[string]any {
	if def == nil {
		return nil
	}
	fields := def.UniqueSearch[provider]
	filters := make(map[string]any, len(fields))
	for local, remote := range fields {
		v, ok := record.Field(local)
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && s == "" {
			continue
		}
		filters[remote] = v
	}
	return filters
}

func (o *Orchestrator) recordStatuses(ctx context.Context, sc *syncContext, report *Report) {
	if o.status == nil {
		return
	}
	now := time.Now().UTC()
	for _, u := range report.Units {
		if u.State == "" {
			continue
		}
		state := string(u.Outcome)
		if u.State == StateFailed {
			state = string(StateFailed)
		}
		err := o.status.SetStatus(ctx, &models.SyncStatus{
			LocalType:   sc.record.LocalType(),
			LocalID:     sc.localID,
			Provider:    u.Provider,
			Environment: u.Environment,
			RemoteType:  u.RemoteType,
			RemoteID:    u.RemoteID,
			State:       state,
			Error:       u.Error,
			SyncedAt:    now,
		})
		if err != nil {
			sc.log.Warn(logging.LevelMid, "failed to record sync status", "provider", u.Provider, "environment", u.Environment, "error", err)
		}
	}
}

func allowed(filter []string, value string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == value {
			return true
		}
	}
	return false
}

// isNilRecord also catches a nil *GenericRecord stored in the interface.
func isNilRecord(r models.Record) bool {
	if r == nil {
		return true
	}
	g, ok := r.(*models.GenericRecord)
	return ok && g == nil
}
