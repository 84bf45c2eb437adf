package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"study_ledger_back/internal/money"
	"study_ledger_back/models"
	"study_ledger_back/pkg/service"
)

type transactionQuery struct {
	ProfileID string `form:"profile_id"`
	Type      string `form:"type"`
	MinAmount string `form:"min_amount"`
	MaxAmount string `form:"max_amount"`
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
	Limit     int    `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset    int    `form:"offset" binding:"omitempty,min=0"`
}

func (q transactionQuery) filter() (models.TransactionFilter, error) {
	f := models.TransactionFilter{
		Type:   models.OperationType(q.Type),
		Limit:  q.Limit,
		Offset: q.Offset,
	}
	var err error
	if f.MinAmount, err = parseAmount("min_amount", q.MinAmount); err != nil {
		return f, err
	}
	if f.MaxAmount, err = parseAmount("max_amount", q.MaxAmount); err != nil {
		return f, err
	}
	if f.StartDate, err = parseDate("start_date", q.StartDate, false); err != nil {
		return f, err
	}
	if f.EndDate, err = parseDate("end_date", q.EndDate, true); err != nil {
		return f, err
	}
	if q.ProfileID != "" {
		id, err := strconv.ParseInt(q.ProfileID, 10, 64)
		if err != nil {
			return f, &service.ValidationError{Msg: "profile_id must be a number"}
		}
		f.ProfileID = &id
	}
	return f, nil
}

func parseAmount(name, raw string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := money.Parse(raw)
	if err != nil {
		return nil, &service.ValidationError{Msg: name + ": " + err.Error()}
	}
	return &v, nil
}

// parseDate accepts RFC 3339 or a plain date; a plain end date covers the whole day.
func parseDate(name, raw string, endOfDay bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, &service.ValidationError{Msg: name + " must be a date (YYYY-MM-DD) or RFC 3339 time"}
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func (h *Handler) listTransactions(c *gin.Context, own *int64) {
	var q transactionQuery
	if !bindQuery(c, &q) {
		return
	}
	filter, err := q.filter()
	if err != nil {
		respondError(c, err)
		return
	}
	if own != nil {
		filter.ProfileID = own
	}

	transactions, err := h.service.Ledger.Transactions(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	wrapOkJSON(c, map[string]interface{}{
		"data": transactions,
	})
}

// Ledger history of the current profile. Filters: type, min_amount, max_amount, start_date, end_date
func (h *Handler) GetTransactions(c *gin.Context) {
	id, ok := profileID(c)
	if !ok {
		return
	}
	h.listTransactions(c, &id)
}

func (h *Handler) FinanceTransactions(c *gin.Context) {
	h.listTransactions(c, nil)
}

// Bonus transfer to another profile. Body: {recipient_id, amount, comment}
func (h *Handler) TransferBonus(c *gin.Context) {
	id, ok := profileID(c)
	if !ok {
		return
	}
	var in models.BonusTransferInput
	if !bindJSON(c, &in) {
		return
	}

	out, err := h.service.Ledger.TransferBonus(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOutcome(c, out)
}

// ExecuteTransaction is called by other services: order payment, refunds, rank purchase, referral credit.
func (h *Handler) ExecuteTransaction(c *gin.Context) {
	var in models.ExecuteInput
	if !bindJSON(c, &in) {
		return
	}
	op, err := service.ParseOperation(in)
	if err != nil {
		respondError(c, err)
		return
	}

	out, err := h.service.Ledger.Execute(c.Request.Context(), service.Request{
		ProfileID: in.ProfileID,
		Operation: op,
		Comment:   in.Comment,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOutcome(c, out)
}

func (h *Handler) GetBalance(c *gin.Context) {
	id, ok := profileID(c)
	if !ok {
		return
	}
	balance, err := h.service.Ledger.Balance(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	wrapOkJSON(c, map[string]interface{}{
		"data": balance,
	})
}

func (h *Handler) ProvisionBalance(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		newErrorResponse(c, http.StatusBadRequest, "profile id must be a number")
		return
	}
	balance, err := h.service.Ledger.ProvisionBalance(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": balance})
}
