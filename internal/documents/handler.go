package documents

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/facturio/facturio/internal/money"
	"github.com/facturio/facturio/internal/platform/httpx"
	"github.com/facturio/facturio/internal/tenant"
)

type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// respondErr maps the domain error taxonomy onto problem responses.
func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidLine), errors.Is(err, money.ErrInvalidLine):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Line", err.Error())
	case errors.Is(err, ErrInvalidPayment):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payment", err.Error())
	case errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, ErrDocumentLocked):
		httpx.Problem(w, http.StatusConflict, "Document Locked", err.Error())
	case errors.Is(err, ErrNotConvertible):
		httpx.Problem(w, http.StatusConflict, "Not Convertible", err.Error())
	case errors.Is(err, ErrAlreadyConverted):
		httpx.Problem(w, http.StatusConflict, "Already Converted", err.Error())
	case errors.Is(err, ErrDeleteNotDraft):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("documents handler error", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func idParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func parseListFilter(r *http.Request) ListFilter {
	q := r.URL.Query()
	filter := ListFilter{Status: q.Get("status")}
	if v, err := strconv.ParseInt(q.Get("client_id"), 10, 64); err == nil {
		filter.ClientID = v
	}
	if t, err := time.Parse("2006-01-02", q.Get("from")); err == nil {
		filter.DateFrom = &t
	}
	if t, err := time.Parse("2006-01-02", q.Get("to")); err == nil {
		filter.DateTo = &t
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil {
		filter.Offset = v
	}
	return filter
}

func (h *Handler) decodeLines(reqs []LineRequest) ([]LineInput, error) {
	lines := make([]LineInput, 0, len(reqs))
	for _, lr := range reqs {
		input, err := lr.toInput()
		if err != nil {
			return nil, err
		}
		lines = append(lines, input)
	}
	return lines, nil
}

func respondTotals(w http.ResponseWriter, totals money.Totals) {
	httpx.JSON(w, http.StatusOK, totalsResponse{
		TotalHT:  totals.ExclTax,
		TotalTVA: totals.Tax,
		TotalTTC: totals.InclTax,
	})
}

// --- quotes ---

func (h *Handler) CreateQuote(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.RequireScope(w, r)
	if !ok {
		return
	}
	var req CreateQuoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	lines, err := h.decodeLines(req.Lines)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Line", err.Error())
		return
	}

	input := CreateQuoteInput{ClientID: req.ClientID, Notes: req.Notes, Lines: lines}
	if req.IssueDate != nil {
		input.IssueDate = *req.IssueDate
	}
	if req.ValidUntil != nil {
		input.ValidUntil = *req.ValidUntil
	}

	q, err := h.service.CreateQuote(r.Context(), scope, input)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, q)
}

func (h *Handler) ShowQuote(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.RequireScope(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid quote id")
		return
	}
	q, err := h.service.GetQuote(r.Context(), scope, id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) ListQuotes(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.RequireScope(w, r)
	if !ok {
		return
	}
	quotes, total, err := h.service.ListQuotes(r.Context(), scope, parseListFilter(r))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, quoteListResponse{Quotes: quotes, Total: total})
}

func (h *Handler) quoteLineOp(w http.ResponseWriter, r *http.Request, op func(tenant.Scope, int64) (money.Totals, error)) {
	scope, ok := tenant.RequireScope(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid quote id")
		return
	}
	totals, err := op(scope, id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	respondTotals(w, totals)
}

func (h *Handler) AddQuoteLine(w http.ResponseWriter, r *http.Request) {
	var lr LineRequest
	if err := httpx.DecodeJSON(r, &lr); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(lr); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input, err := lr.toInput()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Line", err.Error())
		return
	}
	h.quoteLineOp(w, r, func(scope tenant.Scope, id int64) (money.Totals, error) {
		return h.service.AddQuoteLine(r.Context(), scope, id, input)
	})
}

func (h *Handler) UpdateQuoteLine(w http.ResponseWriter, r *http.Request) {
	lineID, ok := idParam(r, "lineID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid line id")
		return
	}
	var lr LineRequest
	if err := httpx.DecodeJSON(r, &lr); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(lr); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input, err := lr.toInput()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Line", err.Error())
		return
	}
	h.quoteLineOp(w, r, func(scope tenant.Scope, id int64) (money.Totals, error) {
		return h.service.UpdateQuoteLine(r.Context(), scope, id, lineID, input)
	})
}

func (h *Handler) RemoveQuoteLine(w http.ResponseWriter, r *http.Request) {
	lineID, ok := idParam(r, "lineID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid line id")
		return
	}
	h.quoteLineOp(w, r, func(scope tenant.Scope, id int64) (money.Totals, error) {
		return h.service.RemoveQuoteLine(r.Context(), scope, id, lineID)
	})
}

func (h *Handler) quoteTransition(w http.ResponseWriter, r *http.Request, op func(tenant.Scope, int64) (*Quote, error)) {
	scope, ok := tenant.RequireScope(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid quote id")
		return
	}
	q, err := op(scope, id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) SendQuote(w http.ResponseWriter, r *http.Request) {
	h.quoteTransition(w, r, func(scope tenant.Scope, id int64) (*Quote, error) {
		return h.service.SendQuote(r.Context(), scope, id)
	})
}

func (h *Handler) AcceptQuote(w http.ResponseWriter, r *http.Request) {
	h.quoteTransition(w, r, func(scope tenant.Scope, id int64) (*Quote, error) {
		return h.service.AcceptQuote(r.Context(), scope, id)
	})
}

func (h *Handler) RefuseQuote(w http.ResponseWriter, r *http.Request) {
	h.quoteTransition(w, r, func(scope tenant.Scope, id int64) (*Quote, error) {
		return h.service.RefuseQuote(r.Context(), scope, id)
	})
}

func (h *Handler) DeleteQuote(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.RequireScope(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid quote id")
		return
	}
	if err := h.service.DeleteQuote(r.Context(), scope, id); err != nil {
		h.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ConvertQuote(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.RequireScope(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid quote id")
		return
	}
	inv, err := h.service.ConvertQuote(r.Context(), scope, id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

// --- invoices ---

func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.RequireScope(w, r)
	if !ok {
		return
	}
	var req CreateInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	lines, err := h.decodeLines(req.Lines)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Line", err.Error())
		return
	}

	input := CreateInvoiceInput{ClientID: req.ClientID, Notes: req.Notes, Lines: lines}
	if req.IssueDate != nil {
		input.IssueDate = *req.IssueDate
	}
	if req.DueDate != nil {
		input.DueDate = *req.DueDate
	}

	inv, err := h.service.CreateInvoice(r.Context(), scope, input)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) ShowInvoice(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.RequireScope(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), scope, id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.RequireScope(w, r)
	if !ok {
		return
	}
	invoices, total, err := h.service.ListInvoices(r.Context(), scope, parseListFilter(r))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoiceListResponse{Invoices: invoices, Total: total})
}

func (h *Handler) invoiceLineOp(w http.ResponseWriter, r *http.Request, op func(tenant.Scope, int64) (money.Totals, error)) {
	scope, ok := tenant.RequireScope(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}
	totals, err := op(scope, id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	respondTotals(w, totals)
}

func (h *Handler) AddInvoiceLine(w http.ResponseWriter, r *http.Request) {
	var lr LineRequest
	if err := httpx.DecodeJSON(r, &lr); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(lr); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input, err := lr.toInput()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Line", err.Error())
		return
	}
	h.invoiceLineOp(w, r, func(scope tenant.Scope, id int64) (money.Totals, error) {
		return h.service.AddInvoiceLine(r.Context(), scope, id, input)
	})
}

func (h *Handler) UpdateInvoiceLine(w http.ResponseWriter, r *http.Request) {
	lineID, ok := idParam(r, "lineID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid line id")
		return
	}
	var lr LineRequest
	if err := httpx.DecodeJSON(r, &lr); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(lr); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input, err := lr.toInput()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Line", err.Error())
		return
	}
	h.invoiceLineOp(w, r, func(scope tenant.Scope, id int64) (money.Totals, error) {
		return h.service.UpdateInvoiceLine(r.Context(), scope, id, lineID, input)
	})
}

func (h *Handler) RemoveInvoiceLine(w http.ResponseWriter, r *http.Request) {
	lineID, ok := idParam(r, "lineID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid line id")
		return
	}
	h.invoiceLineOp(w, r, func(scope tenant.Scope, id int64) (money.Totals, error) {
		return h.service.RemoveInvoiceLine(r.Context(), scope, id, lineID)
	})
}

func (h *Handler) invoiceTransition(w http.ResponseWriter, r *http.Request, op func(tenant.Scope, int64) (*Invoice, error)) {
	scope, ok := tenant.RequireScope(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}
	inv, err := op(scope, id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) SendInvoice(w http.ResponseWriter, r *http.Request) {
	h.invoiceTransition(w, r, func(scope tenant.Scope, id int64) (*Invoice, error) {
		return h.service.SendInvoice(r.Context(), scope, id)
	})
}

func (h *Handler) CancelInvoice(w http.ResponseWriter, r *http.Request) {
	h.invoiceTransition(w, r, func(scope tenant.Scope, id int64) (*Invoice, error) {
		return h.service.CancelInvoice(r.Context(), scope, id)
	})
}

func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid payment amount")
		return
	}

	input := PaymentInput{Amount: amount, Method: req.Method}
	if req.PaidAt != nil {
		input.PaidAt = *req.PaidAt
	}
	h.invoiceTransition(w, r, func(scope tenant.Scope, id int64) (*Invoice, error) {
		return h.service.RecordPayment(r.Context(), scope, id, input)
	})
}
