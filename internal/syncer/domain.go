// Package syncer orchestrates the ledger synchronization queue: pending
// invoice issuances and payments are derived, rendered and transmitted to
// the tenant's accounting target, with independent per-item failure.
package syncer

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/facturio/facturio/internal/documents"
)

// Status of a queued item or a run.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSuccess    Status = "SUCCESS"
	StatusError      Status = "ERROR"
)

// Trigger records what started a run.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
	TriggerRetry     Trigger = "retry"
)

// Item is one queued ledger unit: an invoice issuance or a payment. Items
// are enqueued by the documents module in the same transaction as the
// triggering status change.
type Item struct {
	ID        uuid.UUID                `json:"id"`
	TenantID  int64                    `json:"-"`
	Kind      documents.LedgerItemKind `json:"kind"`
	InvoiceID int64                    `json:"invoice_id"`
	PaymentID *int64                   `json:"payment_id,omitempty"`
	Status    Status                   `json:"status"`
	Attempts  int                      `json:"attempts"`
	LastError *string                  `json:"last_error,omitempty"`
	LockedAt  *time.Time               `json:"locked_at,omitempty"`
	CreatedAt time.Time                `json:"created_at"`
	UpdatedAt time.Time                `json:"updated_at"`
}

// Run is one orchestration pass over a tenant's queue.
type Run struct {
	ID          uuid.UUID  `json:"id"`
	TenantID    int64      `json:"-"`
	Trigger     Trigger    `json:"trigger"`
	Status      Status     `json:"status"`
	Processed   int        `json:"processed"`
	Succeeded   int        `json:"succeeded"`
	Failed      int        `json:"failed"`
	ErrorDetail *string    `json:"error_detail,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// Attempt is one append-only processing record. Retries create new attempts
// referencing the same item.
type Attempt struct {
	ID         uuid.UUID  `json:"id"`
	ItemID     uuid.UUID  `json:"item_id"`
	RunID      *uuid.UUID `json:"run_id,omitempty"`
	Status     Status     `json:"status"`
	Error      *string    `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
}

var (
	ErrItemNotFound = errors.New("sync item not found")

	// ErrRunInProgress means another run holds the tenant's sync lock.
	ErrRunInProgress = errors.New("a sync run is already in progress for this tenant")

	// ErrTransport wraps transmission failures; recorded per item and
	// retried on the next scheduled run or explicit retry.
	ErrTransport = errors.New("sync transport error")
)
