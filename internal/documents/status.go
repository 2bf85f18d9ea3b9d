package documents

// The transition tables are the single source of truth for the lifecycle
// state machine. Status fields are only ever written through CanTransition
// checks in the service, so illegal states cannot be stored.

var quoteTransitions = map[QuoteStatus][]QuoteStatus{
	QuoteStatusDraft: {QuoteStatusSent},
	QuoteStatusSent:  {QuoteStatusAccepted, QuoteStatusRefused, QuoteStatusExpired},
	// ACCEPTED, REFUSED and EXPIRED are terminal; the record persists.
}

var invoiceTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusDraft: {InvoiceStatusSent, InvoiceStatusCancelled},
	InvoiceStatusSent:  {InvoiceStatusPaid, InvoiceStatusCancelled},
	// PAID and CANCELLED are terminal. OVERDUE is derived on read and is
	// not a stored state, so it never appears in this table.
}

// CanTransitionQuote reports whether from→to is a legal quote edge.
func CanTransitionQuote(from, to QuoteStatus) bool {
	for _, next := range quoteTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanTransitionInvoice reports whether from→to is a legal invoice edge.
func CanTransitionInvoice(from, to InvoiceStatus) bool {
	for _, next := range invoiceTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
