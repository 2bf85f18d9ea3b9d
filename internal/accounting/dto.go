package accounting

type UpsertConfigRequest struct {
	Accounts        map[AccountRole]Account `json:"accounts"`
	Journals        map[JournalKind]Journal `json:"journals"`
	QuotePrefix     string                  `json:"quote_prefix" validate:"omitempty,max=10,alphanum"`
	InvoicePrefix   string                  `json:"invoice_prefix" validate:"omitempty,max=10,alphanum"`
	ExportFormat    ExportFormat            `json:"export_format" validate:"omitempty,oneof=fec generic"`
	SyncFrequency   SyncFrequency           `json:"sync_frequency" validate:"omitempty,oneof=daily weekly monthly manual"`
	SyncHour        int                     `json:"sync_hour" validate:"gte=0,lte=23"`
	NotifyOnSuccess bool                    `json:"notify_on_success"`
	NotifyOnError   bool                    `json:"notify_on_error"`
}
