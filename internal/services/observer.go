package services

import (
	"context"

	"github.com/prudhvinik1/crmsync/internal/logging"
	"github.com/prudhvinik1/crmsync/internal/models"
	"github.com/prudhvinik1/crmsync/internal/orchestrator"
)

// RecordObserver maps local lifecycle events onto sync requests. Host code
// calls a hook after the change is committed.
//
// Created and Updated reconcile associations; Deleted and Restored do not.
type RecordObserver struct {
	sync *SyncService
	log  *logging.Logger
}

func NewRecordObserver(sync *SyncService, log *logging.Logger) *RecordObserver {
	if log == nil {
		log = logging.Discard()
	}
	return &RecordObserver{sync: sync, log: log}
}

func (o *RecordObserver) Created(ctx context.Context, record models.Record) error {
	return o.observe("created")(o.sync.SyncOnCreate(ctx, record))
}

func (o *RecordObserver) Updated(ctx context.Context, record models.Record) error {
	return o.observe("updated")(o.sync.SyncOnUpdate(ctx, record))
}

func (o *RecordObserver) Deleted(ctx context.Context, record models.Record) error {
	return o.observe("deleted")(o.sync.SyncOnDelete(ctx, record, WithoutAssociations()))
}

func (o *RecordObserver) Restored(ctx context.Context, record models.Record) error {
	return o.observe("restored")(o.sync.SyncOnRestore(ctx, record, WithoutAssociations()))
}

func (o *RecordObserver) observe(event string) func(*orchestrator.Report, error) error {
	return func(report *orchestrator.Report, err error) error {
		if err != nil {
			o.log.Error(logging.LevelHigh, "observer sync failed", "event", event, "local_type", report.LocalType, "local_id", report.LocalID, "error", err)
			return err
		}
		if failed := report.Failed(); len(failed) > 0 {
			o.log.Warn(logging.LevelMid, "observer sync incomplete", "event", event, "correlation_id", report.CorrelationID, "failed_units", len(failed))
		}
		return nil
	}
}
