package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"study_ledger_back/models"
	"study_ledger_back/pkg/service"
)

type withdrawalQuery struct {
	User      string `form:"user"`
	MinAmount string `form:"min_amount"`
	MaxAmount string `form:"max_amount"`
	Status    string `form:"status"`
}

// statuses splits a comma separated status filter.
func statuses(raw string) []models.WithdrawalStatus {
	if raw == "" {
		return nil
	}
	var out []models.WithdrawalStatus
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, models.WithdrawalStatus(s))
		}
	}
	return out
}

func withdrawalID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		newErrorResponse(c, http.StatusBadRequest, "withdrawal id must be a positive number")
		return 0, false
	}
	return id, true
}

// Withdrawal request of the current profile. Body: {amount, card_number, comment}
func (h *Handler) CreateWithdrawal(c *gin.Context) {
	id, ok := profileID(c)
	if !ok {
		return
	}
	var in models.WithdrawalInput
	if !bindJSON(c, &in) {
		return
	}
	in.UserID = id

	res, err := h.service.Withdrawals.Submit(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	if !res.Outcome.OK() {
		c.JSON(http.StatusBadRequest, res)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) GetWithdrawals(c *gin.Context) {
	id, ok := profileID(c)
	if !ok {
		return
	}
	list, err := h.service.Withdrawals.ListByUser(c.Request.Context(), id, statuses(c.Query("status")))
	if err != nil {
		respondError(c, err)
		return
	}
	wrapOkJSON(c, map[string]interface{}{
		"data": list,
	})
}

func (h *Handler) FinanceWithdrawals(c *gin.Context) {
	var q withdrawalQuery
	if !bindQuery(c, &q) {
		return
	}

	filter := models.WithdrawalFilter{Statuses: statuses(q.Status)}
	if q.User != "" {
		user, err := strconv.ParseInt(q.User, 10, 64)
		if err != nil {
			newErrorResponse(c, http.StatusBadRequest, "user must be a number")
			return
		}
		filter.UserID = &user
	}
	var err error
	if filter.MinAmount, err = parseAmount("min_amount", q.MinAmount); err != nil {
		respondError(c, err)
		return
	}
	if filter.MaxAmount, err = parseAmount("max_amount", q.MaxAmount); err != nil {
		respondError(c, err)
		return
	}

	list, err := h.service.Withdrawals.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	wrapOkJSON(c, map[string]interface{}{
		"data": list,
	})
}

// Staff decision. Body: {action: approve|reject, comment}
func (h *Handler) DecideWithdrawal(c *gin.Context) {
	id, ok := withdrawalID(c)
	if !ok {
		return
	}
	var in models.WithdrawalDecisionInput
	if !bindJSON(c, &in) {
		return
	}
	if in.Action == "" {
		newErrorResponse(c, http.StatusBadRequest, "action is required")
		return
	}
	h.decided(c, func() (service.WithdrawalResult, error) {
		return h.service.Withdrawals.Decide(c.Request.Context(), id, in)
	})
}

func (h *Handler) ApproveWithdrawal(c *gin.Context) {
	h.decision(c, "approve")
}

func (h *Handler) RejectWithdrawal(c *gin.Context) {
	h.decision(c, "reject")
}

func (h *Handler) decision(c *gin.Context, action string) {
	id, ok := withdrawalID(c)
	if !ok {
		return
	}
	var in models.WithdrawalDecisionInput
	if c.Request.ContentLength != 0 && !bindJSON(c, &in) {
		return
	}
	in.Action = action
	h.decided(c, func() (service.WithdrawalResult, error) {
		return h.service.Withdrawals.Decide(c.Request.Context(), id, in)
	})
}

func (h *Handler) decided(c *gin.Context, decide func() (service.WithdrawalResult, error)) {
	res, err := decide()
	if err != nil {
		respondError(c, err)
		return
	}
	if !res.Outcome.OK() {
		c.JSON(http.StatusBadRequest, res)
		return
	}
	c.JSON(http.StatusOK, res)
}
