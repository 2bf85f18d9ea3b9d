package documents

import (
	"errors"
	"fmt"
)

// Domain errors for documents.
var (
	// ErrNotFound indicates the requested document was not found for the
	// calling tenant.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidLine indicates a line that violates quantity, price, or
	// tax-rate constraints.
	ErrInvalidLine = errors.New("invalid line")

	// ErrInvalidTransition indicates a request outside the allowed
	// lifecycle edges.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrDocumentLocked indicates a line mutation on a document whose
	// status does not allow edits.
	ErrDocumentLocked = errors.New("document locked")

	// ErrNotConvertible indicates conversion of a quote that is not in a
	// convertible status.
	ErrNotConvertible = errors.New("quote not convertible")

	// ErrAlreadyConverted indicates a second conversion attempt on the
	// same quote.
	ErrAlreadyConverted = errors.New("quote already converted")

	// ErrInvalidPayment indicates a missing or non-positive payment amount.
	ErrInvalidPayment = errors.New("invalid payment")

	// ErrDeleteNotDraft indicates an attempt to destroy a document that
	// left draft.
	ErrDeleteNotDraft = errors.New("only draft documents can be deleted")
)

func invalidQuoteTransition(from, to QuoteStatus) error {
	return fmt.Errorf("%w: quote %s -> %s", ErrInvalidTransition, from, to)
}

func invalidInvoiceTransition(from, to InvoiceStatus) error {
	return fmt.Errorf("%w: invoice %s -> %s", ErrInvalidTransition, from, to)
}
