package worker

import (
	"context"
	"errors"
	"fmt"

	"cashflow/internal/amqp"
	"cashflow/internal/core"
	"cashflow/internal/log"
	"cashflow/internal/sheets"
	"cashflow/internal/storage"
)

// SnapshotSource is the storage the exporter reads from and marks progress in.
type SnapshotSource interface {
	GetSnapshot(ctx context.Context, id string) (core.DebtMonthlySnapshot, error)
	ListUnexportedSnapshotsAfter(ctx context.Context, after storage.ExportCursor, limit int) ([]core.DebtMonthlySnapshot, error)
	MarkSnapshotExported(ctx context.Context, id string) error
}

// ExportWorker copies interest snapshots from SQLite to the external ledger.
type ExportWorker struct {
	storage   SnapshotSource
	ledger    sheets.SnapshotWriter
	batchSize int
	logger    *log.Logger
}

func NewExportWorker(storage SnapshotSource, ledger sheets.SnapshotWriter, batchSize int) *ExportWorker {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &ExportWorker{
		storage:   storage,
		ledger:    ledger,
		batchSize: batchSize,
		logger:    log.Default(log.ComponentWorker),
	}
}

// HandleSnapshotMessage exports the snapshot named by an AMQP message.
// Snapshots deleted since publication (debt removed) are acknowledged and dropped.
func (w *ExportWorker) HandleSnapshotMessage(ctx context.Context, msg *amqp.SnapshotRecordedMessage) error {
	snapshot, err := w.storage.GetSnapshot(ctx, msg.SnapshotID)
	if errors.Is(err, storage.ErrNotFound) {
		w.logger.WarnContext(ctx, "Snapshot no longer exists, skipping export",
			log.FieldSnapshotID, msg.SnapshotID,
			log.FieldDebtID, msg.DebtID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get snapshot from storage: %w", err)
	}

	return w.export(ctx, snapshot)
}

// ExportPending exports up to one batch of snapshots that have not reached the
// ledger, covering messages that were never published or were lost. Snapshots
// that fail are stepped over, so they cannot hold back newer ones.
func (w *ExportWorker) ExportPending(ctx context.Context) (int, error) {
	var (
		cursor   storage.ExportCursor
		exported int
		failed   int
	)

	for exported < w.batchSize {
		page, err := w.storage.ListUnexportedSnapshotsAfter(ctx, cursor, w.batchSize)
		if err != nil {
			return exported, fmt.Errorf("list pending snapshots: %w", err)
		}
		if len(page) == 0 {
			break
		}

		for _, s := range page {
			if err := ctx.Err(); err != nil {
				return exported, err
			}
			cursor = storage.CursorAfter(s)
			if exported >= w.batchSize {
				break
			}
			if err := w.export(ctx, s); err != nil {
				failed++
				w.logger.ErrorContext(ctx, "Failed to export snapshot",
					log.FieldSnapshotID, s.ID,
					log.FieldError, err)
				continue
			}
			exported++
		}

		if len(page) < w.batchSize {
			break
		}
	}

	if exported > 0 || failed > 0 {
		w.logger.InfoContext(ctx, "Pending snapshot export complete",
			log.FieldOperation, log.OpExport,
			"exported", exported,
			"failed", failed)
	}
	return exported, nil
}

func (w *ExportWorker) export(ctx context.Context, s core.DebtMonthlySnapshot) error {
	ref, err := w.ledger.AppendSnapshot(ctx, s)
	if err != nil {
		return fmt.Errorf("append snapshot to ledger: %w", err)
	}
	if err := w.storage.MarkSnapshotExported(ctx, s.ID); err != nil {
		return fmt.Errorf("mark snapshot exported: %w", err)
	}

	w.logger.InfoContext(ctx, "Snapshot exported",
		log.FieldSnapshotID, s.ID,
		log.FieldDebtID, s.DebtID,
		log.FieldPeriod, s.YearMonth.String(),
		"ref", ref)
	return nil
}
