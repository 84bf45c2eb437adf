package handler

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"study_ledger_back/pkg/middleware"
	"study_ledger_back/pkg/service"
)

const financeRole = "finance"

type Handler struct {
	service      *service.Service
	allowOrigins []string
}

func NewHandler(service *service.Service, allowOrigins []string) *Handler {
	return &Handler{
		service:      service,
		allowOrigins: allowOrigins,
	}
}

func (h *Handler) InitRoute() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID())

	if len(h.allowOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     h.allowOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", middleware.ProfileHeader, middleware.StaffHeader, middleware.RequestIDHeader},
			ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
			AllowCredentials: true,
		}))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api", middleware.Identity())
	{
		api.GET("/balance", h.GetBalance)
		api.GET("/transactions", h.GetTransactions)
		api.POST("/bonus/transfer", h.TransferBonus)
		api.POST("/withdrawals", h.CreateWithdrawal)
		api.GET("/withdrawals", h.GetWithdrawals)

		finance := api.Group("/finance", middleware.StaffOnly(financeRole))
		{
			finance.GET("/withdrawals", h.FinanceWithdrawals)
			finance.POST("/withdrawals/:id", h.DecideWithdrawal)
			finance.POST("/withdrawals/:id/approve", h.ApproveWithdrawal)
			finance.POST("/withdrawals/:id/reject", h.RejectWithdrawal)
			finance.GET("/transactions", h.FinanceTransactions)
		}
	}

	internal := router.Group("/internal")
	{
		internal.POST("/transactions", h.ExecuteTransaction)
		internal.POST("/profiles/:id/balance", h.ProvisionBalance)
	}
	return router
}
