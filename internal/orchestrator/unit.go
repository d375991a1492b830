package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/prudhvinik1/crmsync/internal/crm"
	"github.com/prudhvinik1/crmsync/internal/logging"
	"github.com/prudhvinik1/crmsync/internal/models"
	"github.com/prudhvinik1/crmsync/internal/repositories"
	"github.com/prudhvinik1/crmsync/internal/utils"
)

// runUnit takes one (environment, provider) pair from PENDING to
// DISCONNECTED or FAILED.
func (o *Orchestrator) runUnit(ctx context.Context, sc *syncContext, u unit) UnitResult {
	res := UnitResult{
		Environment: u.environment,
		Provider:    u.provider,
		RemoteType:  u.remoteType,
		Outcome:     StateSkipped,
	}
	res.transition(StatePending)
	log := sc.log.Scope(u.provider + "/" + u.environment)

	key := models.LookupKey{
		LocalType:   sc.record.LocalType(),
		LocalID:     sc.localID,
		Provider:    u.provider,
		Environment: u.environment,
		RemoteType:  u.remoteType,
	}

	unlock, err := o.locker.Lock(ctx, key.String())
	if err != nil {
		o.failUnit(log, &res, crm.Retryable(crm.CodeLookupStore, "lock", err).In(u.provider, u.environment))
		return res
	}
	defer unlock()

	provider := u.factory()
	if err := provider.Connect(ctx, u.environment, log); err != nil {
		o.failUnit(log, &res, err)
		return res
	}
	defer provider.Disconnect()
	res.transition(StateConnected)

	row, err := o.findLookup(ctx, key)
	if err != nil {
		o.failUnit(log, &res, err)
		return res
	}

	if err := provider.Setup(sc.record, u.remoteType, u.fields); err != nil {
		o.failUnit(log, &res, err)
		return res
	}

	row, err = o.load(ctx, provider, key, row, resolveFilters(sc.def, sc.record, u.provider), log)
	if err != nil {
		o.failUnit(log, &res, err)
		return res
	}
	res.transition(StateLoaded)

	hardDeleted, err := o.dispatch(ctx, sc, provider, &res, log)
	if err != nil {
		o.failUnit(log, &res, err)
		return res
	}

	if item := provider.FirstItem(); item != nil {
		res.RemoteID = item.ID
	} else if row != nil {
		res.RemoteID = row.RemoteID
	}

	switch {
	case hardDeleted && row != nil:
		if err := o.lookups.Delete(ctx, key); err != nil && !errors.Is(err, repositories.ErrNotFound) {
			o.failUnit(log, &res, crm.Retryable(crm.CodeLookupStore, "unlink", err).In(u.provider, u.environment))
			return res
		}
		log.Info(logging.LevelMid, "lookup removed after hard delete", "remote_id", row.RemoteID)
	case row == nil && provider.ObjectItemLoaded() && provider.FirstItem().ID != "":
		linked, err := o.link(ctx, key, provider.FirstItem().ID, log)
		if err != nil {
			o.failUnit(log, &res, err)
			return res
		}
		if linked {
			res.Linked = true
			res.transition(StateLinked)
		}
	}

	// The association phase only takes the related records' locks.
	unlock()

	if sc.associate && len(sc.def.AssociateRules) > 0 && provider.ObjectItemLoaded() {
		for _, rule := range sc.def.AssociateRules {
			res.Associations = append(res.Associations, o.associate(ctx, sc, u, provider, rule, log))
		}
	}

	res.transition(StateDisconnected)
	return res
}

func (o *Orchestrator) failUnit(log *logging.Logger, res *UnitResult, err error) {
	log.Error(logging.LevelHigh, "unit failed", "kind", crm.KindOf(err).String(), "code", string(crm.CodeOf(err)), "error", err)
	res.fail(err)
}

func (o *Orchestrator) findLookup(ctx context.Context, key models.LookupKey) (*models.ExternalKeyLookup, error) {
	row, err := o.lookups.Find(ctx, key)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, crm.Retryable(crm.CodeLookupStore, "lookup", err).In(key.Provider, key.Environment)
	}
	return row, nil
}

// load fetches the mapped remote id, falling back to a filter search. A
// mapped id the provider no longer knows is a stale row: it is removed and
// the returned row is nil.
func (o *Orchestrator) load(ctx context.Context, provider crm.Provider, key models.LookupKey, row *models.ExternalKeyLookup, filters map[string]any, log *logging.Logger) (*models.ExternalKeyLookup, error) {
	remoteID := ""
	if row != nil {
		remoteID = row.RemoteID
	}

	err := provider.Load(ctx, remoteID, filters)
	if !errors.Is(err, crm.ErrRemoteNotFound) {
		return row, err
	}
	if row == nil {
		return nil, nil
	}

	log.Warn(logging.LevelHigh, "mapped remote object is gone, removing stale lookup", "remote_id", row.RemoteID)
	if err := o.lookups.Delete(ctx, key); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return row, crm.Retryable(crm.CodeLookupStore, "unlink", err).In(key.Provider, key.Environment)
	}
	if err := provider.Load(ctx, "", filters); err != nil && !errors.Is(err, crm.ErrRemoteNotFound) {
		return nil, err
	}
	return nil, nil
}

// dispatch runs the mutations the actions call for. Patch beats the single
// create and update flags. It reports whether the remote object was hard
// deleted.
func (o *Orchestrator) dispatch(ctx context.Context, sc *syncContext, provider crm.Provider, res *UnitResult, log *logging.Logger) (bool, error) {
	step := func(state State, fn func(context.Context) error) error {
		err := fn(ctx)
		if err == nil {
			res.Outcome = state
			res.transition(state)
			return nil
		}
		if crm.IsSkip(err) {
			log.Warn(logging.LevelMid, "step skipped", "step", string(state), "error", err)
			return nil
		}
		return err
	}

	present := provider.ObjectItemLoaded()
	var err error
	switch {
	case sc.actions.IsPatch():
		if present {
			err = step(StateUpdated, provider.Update)
		} else {
			err = step(StateCreated, provider.Create)
		}
	case sc.actions.Has(ActionCreate):
		if !present {
			err = step(StateCreated, provider.Create)
		}
	case sc.actions.Has(ActionUpdate):
		if present {
			err = step(StateUpdated, provider.Update)
		}
	}
	if err != nil {
		return false, err
	}

	hardDeleted := false
	if sc.actions.Has(ActionDelete) && provider.ObjectItemLoaded() {
		err := step(StateDeleted, func(ctx context.Context) error {
			return provider.Delete(ctx, sc.soft)
		})
		if err != nil {
			return false, err
		}
		hardDeleted = !sc.soft && res.Outcome == StateDeleted && !provider.ObjectItemLoaded()
	}

	if sc.actions.Has(ActionRestore) && provider.ObjectItemLoaded() {
		if err := step(StateRestored, provider.Restore); err != nil {
			return hardDeleted, err
		}
	}

	if res.Outcome == StateSkipped {
		log.Debug(logging.LevelLow, "nothing to do", "actions", sc.actions.String(), "present", present)
	}
	return hardDeleted, nil
}

// link inserts the lookup row. An existing row is never overwritten; a
// conflict is logged as a duplicate mapping and reported as not linked.
func (o *Orchestrator) link(ctx context.Context, key models.LookupKey, remoteID string, log *logging.Logger) (bool, error) {
	err := o.lookups.Create(ctx, models.NewLookup(key, remoteID))
	if errors.Is(err, repositories.ErrDuplicateMapping) {
		dup := crm.Skip(crm.CodeDuplicateMapping, "link", "tuple %s is already mapped", key).In(key.Provider, key.Environment)
		log.Error(logging.LevelHigh, "lookup not written", "error", dup, "remote_id", remoteID)
		return false, nil
	}
	if err != nil {
		return false, crm.Retryable(crm.CodeLookupStore, "link", err).In(key.Provider, key.Environment)
	}
	log.Info(logging.LevelMid, "lookup created", "remote_id", remoteID)
	return true, nil
}

// associate handles one association rule for the loaded item. Every
// failure is logged and recorded, never returned.
func (o *Orchestrator) associate(ctx context.Context, sc *syncContext, u unit, provider crm.Provider, rule models.AssociationRule, log *logging.Logger) AssociationResult {
	res := AssociationResult{Accessor: rule.Accessor}
	skip := func(format string, args ...any) AssociationResult {
		err := crm.Skip(crm.CodeAssociation, "associate", format, args...).In(u.provider, u.environment)
		log.Warn(logging.LevelMid, "association skipped", "accessor", rule.Accessor, "error", err)
		res.Skipped = true
		res.Error = err.Error()
		return res
	}

	specs := rule.Providers[u.provider]
	if len(specs) == 0 {
		return skip("no association specs for provider")
	}
	related, ok := sc.record.Related(rule.Accessor)
	if !ok || related == nil {
		return skip("related record %q not found", rule.Accessor)
	}

	targetType := rule.TargetObjectType
	if targetType == "" {
		targetType, _ = o.resolveRemoteType(related.SyncDefinition(), related.LocalType(), u.provider)
	}
	if targetType == "" {
		return skip("no remote object type for %q", related.LocalType())
	}
	res.TargetType = targetType

	targetID, err := o.resolveRelated(ctx, sc, u, related, targetType, log)
	if err != nil {
		if crm.IsSkip(err) {
			return skip("%v", err)
		}
		log.Error(logging.LevelHigh, "association target unresolved", "accessor", rule.Accessor, "error", err)
		res.Error = err.Error()
		return res
	}
	res.TargetID = targetID

	if err := provider.Associate(ctx, targetType, targetID, specs); err != nil {
		if crm.IsSkip(err) {
			return skip("%v", err)
		}
		log.Error(logging.LevelHigh, "association failed", "accessor", rule.Accessor, "error", err)
		res.Error = err.Error()
		return res
	}

	log.Info(logging.LevelMid, "association reconciled", "accessor", rule.Accessor, "target_type", targetType, "target_id", targetID)
	return res
}

// resolveRelated returns the remote id of a related record: its lookup row,
// else a filter search, else a newly created remote object. A lookup row
// is written when none existed.
func (o *Orchestrator) resolveRelated(ctx context.Context, sc *syncContext, u unit, related models.Record, remoteType string, log *logging.Logger) (string, error) {
	localID, err := utils.NormalizeLocalID(o.settings.KeyFormat, related.LocalID())
	if err != nil {
		return "", crm.Skip(crm.CodeAssociation, "associate", "related %s: %v", related.LocalType(), err)
	}
	key := models.LookupKey{
		LocalType:   related.LocalType(),
		LocalID:     localID,
		Provider:    u.provider,
		Environment: u.environment,
		RemoteType:  remoteType,
	}
	log = log.Scope(key.LocalType + ":" + key.LocalID)

	unlock, err := o.locker.Lock(ctx, key.String())
	if err != nil {
		return "", crm.Retryable(crm.CodeLookupStore, "lock", err).In(u.provider, u.environment)
	}
	defer unlock()

	target := u.factory()
	if err := target.Connect(ctx, u.environment, log); err != nil {
		return "", err
	}
	defer target.Disconnect()

	row, err := o.findLookup(ctx, key)
	if err != nil {
		return "", err
	}

	def := related.SyncDefinition()
	fields, _ := def.Mapping(u.provider)
	if err := target.Setup(related, remoteType, fields); err != nil {
		return "", err
	}

	row, err = o.load(ctx, target, key, row, resolveFilters(def, related, u.provider), log)
	if err != nil {
		return "", err
	}

	if !target.ObjectItemLoaded() {
		if err := target.Create(ctx); err != nil {
			return "", err
		}
	}
	item := target.FirstItem()
	if item == nil || item.ID == "" {
		return "", fmt.Errorf("related %s has no remote id", key)
	}

	if row == nil {
		if _, err := o.link(ctx, key, item.ID, log); err != nil {
			return "", err
		}
	}
	return item.ID, nil
}
