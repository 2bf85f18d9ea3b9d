package documents

import "github.com/go-chi/chi/v5"

func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/quotes", func(r chi.Router) {
		r.Get("/", h.ListQuotes)
		r.Post("/", h.CreateQuote)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.ShowQuote)
			r.Delete("/", h.DeleteQuote)
			r.Post("/lines", h.AddQuoteLine)
			r.Put("/lines/{lineID}", h.UpdateQuoteLine)
			r.Delete("/lines/{lineID}", h.RemoveQuoteLine)
			r.Post("/send", h.SendQuote)
			r.Post("/accept", h.AcceptQuote)
			r.Post("/refuse", h.RefuseQuote)
			r.Post("/convert", h.ConvertQuote)
		})
	})

	r.Route("/invoices", func(r chi.Router) {
		r.Get("/", h.ListInvoices)
		r.Post("/", h.CreateInvoice)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.ShowInvoice)
			r.Post("/lines", h.AddInvoiceLine)
			r.Put("/lines/{lineID}", h.UpdateInvoiceLine)
			r.Delete("/lines/{lineID}", h.RemoveInvoiceLine)
			r.Post("/send", h.SendInvoice)
			r.Post("/cancel", h.CancelInvoice)
			r.Post("/payments", h.RecordPayment)
		})
	})
}
