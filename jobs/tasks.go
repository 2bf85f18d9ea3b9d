// Package jobs wires the asynq worker: per-tenant sync runs, the schedule
// dispatcher, the stale-item watchdog and quote expiry.
package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/facturio/facturio/internal/syncer"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskSyncRun processes one tenant's ledger sync queue.
	TaskSyncRun = "sync:run"
	// TaskSyncDispatch enqueues sync runs for every tenant whose schedule
	// is due.
	TaskSyncDispatch = "sync:dispatch"
	// TaskSyncReclaim requeues items stuck IN_PROGRESS.
	TaskSyncReclaim = "sync:reclaim"
	// TaskQuoteExpiry expires quotes past their validity date.
	TaskQuoteExpiry = "quotes:expire"
)

// SyncRunPayload targets one tenant's queue.
type SyncRunPayload struct {
	TenantID int64          `json:"tenant_id"`
	Trigger  syncer.Trigger `json:"trigger"`
}

// NewSyncRunTask constructs the per-tenant sync task.
func NewSyncRunTask(payload SyncRunPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSyncRun, data), nil
}

// NewSyncDispatchTask constructs the dispatcher task. No payload; the
// dispatcher reads every tenant's schedule itself.
func NewSyncDispatchTask() *asynq.Task {
	return asynq.NewTask(TaskSyncDispatch, nil)
}

// NewSyncReclaimTask constructs the watchdog task.
func NewSyncReclaimTask() *asynq.Task {
	return asynq.NewTask(TaskSyncReclaim, nil)
}

// NewQuoteExpiryTask constructs the quote expiry sweep task.
func NewQuoteExpiryTask() *asynq.Task {
	return asynq.NewTask(TaskQuoteExpiry, nil)
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueSyncRun enqueues a sync run for one tenant.
func (c *Client) EnqueueSyncRun(ctx context.Context, payload SyncRunPayload) (*asynq.TaskInfo, error) {
	task, err := NewSyncRunTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
