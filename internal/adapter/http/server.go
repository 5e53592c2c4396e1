package http

import (
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Koss-Lab/crypto-portfolio-tracker/internal/usecase/alert"
	"github.com/Koss-Lab/crypto-portfolio-tracker/internal/usecase/ledger"
	"github.com/Koss-Lab/crypto-portfolio-tracker/internal/usecase/pricecache"
	"github.com/Koss-Lab/crypto-portfolio-tracker/internal/usecase/valuation"
)

// Server represents the API server
type Server struct {
	router    *gin.Engine
	logger    *zap.Logger
	ledger    *ledger.LedgerService
	valuation *valuation.ValuationService
	prices    *pricecache.PriceCacheService
	alerts    *alert.AlertService
}

// NewServer creates a new API server with injected services.
// authToken enables bearer-token auth on the API group; empty disables it.
func NewServer(
	logger *zap.Logger,
	ledgerSvc *ledger.LedgerService,
	valuationSvc *valuation.ValuationService,
	priceSvc *pricecache.PriceCacheService,
	alertSvc *alert.AlertService,
	authToken string,
) *Server {
	server := &Server{
		logger:    logger,
		ledger:    ledgerSvc,
		valuation: valuationSvc,
		prices:    priceSvc,
		alerts:    alertSvc,
	}

	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))

	router.GET("/health", server.healthCheck)

	api := router.Group("/api/v1")
	if authToken != "" {
		api.Use(BearerAuth(authToken))
	}
	{
		api.GET("/accounts", server.listAccounts)
		api.GET("/accounts/top", server.topAccounts)
		api.GET("/accounts/:id/portfolio", server.accountPortfolio)
		api.GET("/accounts/:id/history", server.accountHistory)
		api.GET("/accounts/:id/transfers", server.listTransfers)

		api.POST("/transfers", server.createTransfer)
		api.DELETE("/transfers/:id", server.deleteTransfer)

		api.GET("/prices", server.latestPrices)
		api.POST("/prices/refresh", server.refreshPrices)

		api.GET("/alerts", server.listAlerts)
		api.POST("/alerts", server.createAlert)
		api.POST("/alerts/check", server.checkAlerts)
	}

	server.router = router
	return server
}

// Start starts the API server
func (s *Server) Start(addr string) error {
	s.logger.Info("starting API server", zap.String("addr", addr))
	return s.router.Run(addr)
}

// Router returns the internal gin engine for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}
