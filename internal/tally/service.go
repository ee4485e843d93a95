package tally

import (
	"context"
	"fmt"
	"log/slog"

	"refdesk/internal/amqp"
	"refdesk/internal/core"
	"refdesk/internal/live"
)

// Service orchestrates tally operations across the counter store, the live
// hub and the change bus.
type Service struct {
	store Store
	bus   *amqp.Client
	hub   *live.Hub
}

func NewService(store Store, bus *amqp.Client, hub *live.Hub) *Service {
	return &Service{
		store: store,
		bus:   bus,
		hub:   hub,
	}
}

// Increment records one question for the category and returns the full
// post-write tally. Local subscribers are notified immediately; the change
// announcement to other replicas is best-effort and never fails the count.
func (s *Service) Increment(ctx context.Context, day core.Day, categoryID, actor string) (core.DailyTally, error) {
	if err := day.Validate(); err != nil {
		return core.DailyTally{}, err
	}
	if !core.IsCategoryID(categoryID) {
		return core.DailyTally{}, fmt.Errorf("%w: %q", core.ErrUnknownCategory, categoryID)
	}

	tally, err := s.store.Increment(ctx, day, categoryID, actor)
	if err != nil {
		return core.DailyTally{}, fmt.Errorf("increment tally: %w", err)
	}

	if s.hub != nil {
		s.hub.Publish(tally)
	}

	if err := s.publishChange(ctx, tally, categoryID, actor); err != nil {
		slog.ErrorContext(ctx, "Failed to publish tally change",
			"day", day, "category", categoryID, "error", err)
		// Don't fail the request - the count is saved locally
	}

	return tally, nil
}

// Day returns the tally for one day, all zeros when the day has never been
// written.
func (s *Service) Day(ctx context.Context, day core.Day) (core.DailyTally, error) {
	tally, ok, err := s.store.GetDay(ctx, day)
	if err != nil {
		return core.DailyTally{}, fmt.Errorf("get day %s: %w", day, err)
	}
	if !ok {
		return core.EmptyTally(day), nil
	}
	return tally, nil
}

// Week builds the rolling report over the n most recent days.
func (s *Service) Week(ctx context.Context, n int) (core.WeekSummary, error) {
	days, err := s.store.ListRecentDays(ctx, n)
	if err != nil {
		return core.WeekSummary{}, fmt.Errorf("%w: list recent days: %v", core.ErrFetchFailed, err)
	}
	return core.Summarize(days), nil
}

func (s *Service) publishChange(ctx context.Context, tally core.DailyTally, categoryID, actor string) error {
	if s.bus == nil {
		slog.DebugContext(ctx, "AMQP client not available, skipping change message")
		return nil
	}
	msg := amqp.NewTallyChangedMessage(tally.Day.String(), categoryID, actor, tally.Version)
	return s.bus.PublishTallyChanged(ctx, msg)
}
