package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"study_ledger_back/pkg/lock"
	"study_ledger_back/pkg/middleware"
	"study_ledger_back/pkg/service"
)

type Error struct {
	Message string `json:"message"`
}

type rateLimitResponse struct {
	Message       string `json:"message"`
	RemainingDays int    `json:"remaining_days"`
}

func newErrorResponse(c *gin.Context, statusCode int, message string) {
	entry := middleware.Logger(c).WithField("status", statusCode)
	if statusCode >= http.StatusInternalServerError {
		entry.Error(message)
	} else {
		entry.Warn(message)
	}
	c.AbortWithStatusJSON(statusCode, Error{Message: message})
}

func wrapOkJSON(c *gin.Context, response map[string]interface{}) {
	c.JSON(http.StatusOK, response)
}

// respondError maps service errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	var (
		verr     *service.ValidationError
		rateErr  *service.RateLimitError
		outErr   *service.OutcomeError
		compErr  *service.CompensationError
		bindErrs validator.ValidationErrors
	)

	switch {
	case errors.As(err, &bindErrs):
		newErrorResponse(c, http.StatusBadRequest, strings.Join(formatValidationError(bindErrs), "; "))
	case errors.As(err, &verr):
		newErrorResponse(c, http.StatusBadRequest, verr.Msg)
	case errors.As(err, &rateErr):
		middleware.Logger(c).WithField("remaining_days", rateErr.RemainingDays).Warn(rateErr.Error())
		c.AbortWithStatusJSON(http.StatusTooManyRequests, rateLimitResponse{
			Message:       rateErr.Error(),
			RemainingDays: rateErr.RemainingDays,
		})
	case errors.Is(err, service.ErrNotFound):
		newErrorResponse(c, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrConflict), errors.Is(err, lock.ErrNotAcquired):
		newErrorResponse(c, http.StatusConflict, err.Error())
	case errors.As(err, &outErr):
		middleware.Logger(c).Warn(outErr.Error())
		c.AbortWithStatusJSON(http.StatusBadRequest, outErr.Outcome)
	case errors.As(err, &compErr):
		newErrorResponse(c, http.StatusInternalServerError, compErr.Error())
	default:
		middleware.Logger(c).WithError(err).Error("request failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError, Error{Message: "internal error"})
	}
}

// respondOutcome answers 200 for a successful ledger outcome and 400 for a failed one.
func respondOutcome(c *gin.Context, out service.Outcome) {
	if out.OK() {
		c.JSON(http.StatusOK, out)
		return
	}
	c.JSON(http.StatusBadRequest, out)
}

func formatValidationError(errs validator.ValidationErrors) []string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		field := e.Field()
		switch e.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", field, e.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", field, e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid (%s)", field, e.Tag()))
		}
	}
	return msgs
}

// bindJSON binds the body and answers 400 itself when that fails.
func bindJSON(c *gin.Context, dst interface{}) bool {
	return bound(c, c.ShouldBindJSON(dst), "invalid request body")
}

func bindQuery(c *gin.Context, dst interface{}) bool {
	return bound(c, c.ShouldBindQuery(dst), "invalid query")
}

func bound(c *gin.Context, err error, prefix string) bool {
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		respondError(c, verrs)
		return false
	}
	newErrorResponse(c, http.StatusBadRequest, prefix+": "+err.Error())
	return false
}

func profileID(c *gin.Context) (int64, bool) {
	id, ok := middleware.ProfileID(c)
	if !ok {
		logrus.Error("profile id missing from context")
		newErrorResponse(c, http.StatusUnauthorized, "profile id is required")
	}
	return id, ok
}
