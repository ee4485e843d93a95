package worker

import (
	"context"
	"fmt"
	"log/slog"

	"refdesk/internal/amqp"
	"refdesk/internal/core"
	"refdesk/internal/tally"
)

// Store is the slice of the counter store the mirror worker needs.
type Store interface {
	GetDay(ctx context.Context, day core.Day) (core.DailyTally, bool, error)
	ListPendingDays(ctx context.Context, limit int) ([]core.Day, error)
	MarkSynced(ctx context.Context, day core.Day, version int64) error
	MarkSyncError(ctx context.Context, day core.Day) error
}

// MirrorWorker copies updated days into the external question log. It is
// driven by change messages and backed by a periodic sweep of pending days
// in case messages are lost.
type MirrorWorker struct {
	store     Store
	mirror    tally.DayMirror
	batchSize int
}

func NewMirrorWorker(store Store, mirror tally.DayMirror, batchSize int) *MirrorWorker {
	return &MirrorWorker{
		store:     store,
		mirror:    mirror,
		batchSize: batchSize,
	}
}

// HandleChange processes a single tally change message. The message is only
// a hint; the day's current state is re-read from the store.
func (w *MirrorWorker) HandleChange(ctx context.Context, msg *amqp.TallyChangedMessage) error {
	day, err := core.ParseDay(msg.Day)
	if err != nil {
		// Unparseable day will never succeed; drop instead of requeueing.
		slog.ErrorContext(ctx, "Change message with invalid day", "day", msg.Day, "error", err)
		return nil
	}
	return w.mirrorDay(ctx, day)
}

// ProcessPendingDays mirrors days whose change messages were missed.
func (w *MirrorWorker) ProcessPendingDays(ctx context.Context) error {
	pending, err := w.store.ListPendingDays(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("list pending days: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending days", "count", len(pending))

	for _, day := range pending {
		if err := w.mirrorDay(ctx, day); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror pending day", "day", day, "error", err)
			continue
		}
	}
	return nil
}

// StartupSweep runs a larger pending pass on worker start to recover from
// downtime.
func (w *MirrorWorker) StartupSweep(ctx context.Context) error {
	pending, err := w.store.ListPendingDays(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("list pending days for startup sweep: %w", err)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending days found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending days on startup, processing...", "count", len(pending))

	mirrored := 0
	failed := 0
	for _, day := range pending {
		if err := w.mirrorDay(ctx, day); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror day during startup", "day", day, "error", err)
			failed++
			continue
		}
		mirrored++
	}

	slog.InfoContext(ctx, "Startup sweep completed",
		"total", len(pending),
		"mirrored", mirrored,
		"failed", failed)

	return nil
}

func (w *MirrorWorker) mirrorDay(ctx context.Context, day core.Day) error {
	t, ok, err := w.store.GetDay(ctx, day)
	if err != nil {
		return fmt.Errorf("get day %s: %w", day, err)
	}
	if !ok {
		slog.WarnContext(ctx, "Change message for unknown day, skipping", "day", day)
		return nil
	}

	if err := w.mirror.MirrorDay(ctx, t); err != nil {
		if markErr := w.store.MarkSyncError(ctx, day); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "day", day, "error", markErr)
		}
		return fmt.Errorf("mirror day %s: %w", day, err)
	}

	// Marking is version-guarded: a concurrent increment keeps the day
	// pending so the sweep picks up the newer state.
	if err := w.store.MarkSynced(ctx, day, t.Version); err != nil {
		slog.ErrorContext(ctx, "Failed to mark day synced", "day", day, "error", err)
		// The mirror itself succeeded; don't fail the message.
	}

	slog.InfoContext(ctx, "Successfully mirrored day",
		"day", day,
		"total", t.Total(),
		"version", t.Version)

	return nil
}
