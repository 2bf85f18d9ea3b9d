package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/facturio/facturio/internal/accounting"
	"github.com/facturio/facturio/internal/documents"
	"github.com/facturio/facturio/internal/syncer"
	"github.com/facturio/facturio/internal/tenant"
)

// TenantSource lists the tenants a sweep task iterates.
type TenantSource interface {
	ListActiveIDs(ctx context.Context) ([]int64, error)
}

// ScheduleSource yields per-tenant sync schedules.
type ScheduleSource interface {
	ListSyncSchedules(ctx context.Context) (map[int64]accounting.SyncSchedule, error)
}

// NewSyncRunHandler processes one tenant's queue. A run already holding the
// tenant lock is not an error worth retrying.
func NewSyncRunHandler(logger *slog.Logger, svc *syncer.Service) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SyncRunPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		scope, err := tenant.NewScope(payload.TenantID)
		if err != nil {
			return asynq.SkipRetry
		}
		trigger := payload.Trigger
		if trigger == "" {
			trigger = syncer.TriggerScheduled
		}

		if _, err := svc.Run(ctx, scope, trigger); err != nil {
			if errors.Is(err, syncer.ErrRunInProgress) {
				logger.Info("sync run skipped, already running",
					slog.Int64("tenant_id", payload.TenantID))
				return nil
			}
			return err
		}
		return nil
	}
}

// dueNow decides whether a schedule fires in the given hour: daily runs
// every day, weekly on Mondays, monthly on the 1st, manual never.
func dueNow(sched accounting.SyncSchedule, now time.Time) bool {
	if now.Hour() != sched.Hour {
		return false
	}
	switch sched.Frequency {
	case accounting.SyncDaily:
		return true
	case accounting.SyncWeekly:
		return now.Weekday() == time.Monday
	case accounting.SyncMonthly:
		return now.Day() == 1
	default:
		return false
	}
}

// NewSyncDispatchHandler runs hourly and enqueues a sync run for every
// tenant whose schedule is due.
func NewSyncDispatchHandler(logger *slog.Logger, schedules ScheduleSource, client *Client) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		all, err := schedules.ListSyncSchedules(ctx)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		enqueued := 0
		for tenantID, sched := range all {
			if !dueNow(sched, now) {
				continue
			}
			_, err := client.EnqueueSyncRun(ctx, SyncRunPayload{
				TenantID: tenantID,
				Trigger:  syncer.TriggerScheduled,
			})
			if err != nil {
				logger.Error("enqueue sync run",
					slog.Int64("tenant_id", tenantID), slog.Any("error", err))
				continue
			}
			enqueued++
		}
		if enqueued > 0 {
			logger.Info("sync dispatch", slog.Int("enqueued", enqueued))
		}
		return nil
	}
}

// NewSyncReclaimHandler is the watchdog for items stuck IN_PROGRESS.
func NewSyncReclaimHandler(svc *syncer.Service) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		_, err := svc.Reclaim(ctx)
		return err
	}
}

// NewQuoteExpiryHandler sweeps every tenant's quotes past validity.
func NewQuoteExpiryHandler(logger *slog.Logger, tenants TenantSource, docs *documents.Service) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		ids, err := tenants.ListActiveIDs(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			scope, err := tenant.NewScope(id)
			if err != nil {
				continue
			}
			expired, err := docs.ExpireDueQuotes(ctx, scope)
			if err != nil {
				logger.Error("quote expiry sweep",
					slog.Int64("tenant_id", id), slog.Any("error", err))
				continue
			}
			if expired > 0 {
				logger.Info("quotes expired",
					slog.Int64("tenant_id", id), slog.Int("count", expired))
			}
		}
		return nil
	}
}
