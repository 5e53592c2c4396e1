package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Koss-Lab/crypto-portfolio-tracker/internal/domain"
	"github.com/Koss-Lab/crypto-portfolio-tracker/internal/usecase/ledger"
)

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listAccounts(c *gin.Context) {
	accounts, err := s.ledger.ListAccounts(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

func (s *Server) topAccounts(c *gin.Context) {
	n := 10
	if raw := c.Query("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "n must be a positive integer"})
			return
		}
		n = parsed
	}

	totals, err := s.valuation.TopAccounts(c.Request.Context(), n)
	if err != nil {
		s.fail(c, err)
		return
	}

	out := make([]gin.H, len(totals))
	for i, t := range totals {
		out[i] = gin.H{"account_id": t.AccountID, "total_usd": t.TotalUSD}
	}
	c.JSON(http.StatusOK, gin.H{"accounts": out})
}

type holdingResponse struct {
	Asset       string           `json:"asset"`
	NetQuantity decimal.Decimal  `json:"net_quantity"`
	ValueUSD    *decimal.Decimal `json:"value_usd"` // null when the price is unknown
}

func (s *Server) accountPortfolio(c *gin.Context) {
	accountID, ok := s.pathID(c)
	if !ok {
		return
	}

	result, err := s.valuation.Portfolio(c.Request.Context(), accountID)
	if err != nil {
		s.fail(c, err)
		return
	}

	holdings := make([]holdingResponse, len(result.Holdings))
	for i, h := range result.Holdings {
		holdings[i] = holdingResponse{
			Asset:       h.Asset,
			NetQuantity: h.NetQuantity,
			ValueUSD:    h.ValueUSD,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"account_id":     result.AccountID,
		"holdings":       holdings,
		"total_usd":      result.TotalUSD,
		"unpriced_count": result.UnpricedCount,
	})
}

func (s *Server) accountHistory(c *gin.Context) {
	accountID, ok := s.pathID(c)
	if !ok {
		return
	}

	days := 30
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be an integer"})
			return
		}
		days = parsed
	}

	result, err := s.valuation.History(c.Request.Context(), accountID, days)
	if err != nil {
		s.fail(c, err)
		return
	}

	points := make([]gin.H, len(result.Points))
	for i, p := range result.Points {
		points[i] = gin.H{"time": p.Time, "value_usd": p.ValueUSD}
	}

	c.JSON(http.StatusOK, gin.H{
		"account_id":  result.AccountID,
		"days":        days,
		"points":      points,
		"approximate": result.Approximate,
		"skipped":     result.Skipped,
	})
}

type createTransferRequest struct {
	AccountID uuid.UUID        `json:"account_id" binding:"required"`
	Asset     string           `json:"asset" binding:"required"`
	Kind      string           `json:"kind" binding:"required"`
	Quantity  decimal.Decimal  `json:"quantity" binding:"required"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
	Timestamp *time.Time       `json:"timestamp"`
}

func (s *Server) createTransfer(c *gin.Context) {
	var req createTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event, err := s.ledger.RecordTransfer(c.Request.Context(), ledger.RecordTransferInput{
		AccountID: req.AccountID,
		Asset:     req.Asset,
		Kind:      domain.EventKind(req.Kind),
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, transferResponse(event))
}

func (s *Server) listTransfers(c *gin.Context) {
	accountID, ok := s.pathID(c)
	if !ok {
		return
	}

	events, err := s.ledger.ListTransfers(c.Request.Context(), accountID)
	if err != nil {
		s.fail(c, err)
		return
	}

	out := make([]gin.H, len(events))
	for i := range events {
		out[i] = transferResponse(&events[i])
	}
	c.JSON(http.StatusOK, gin.H{"transfers": out})
}

func (s *Server) deleteTransfer(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transfer id"})
		return
	}

	if err := s.ledger.DeleteTransfer(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) latestPrices(c *gin.Context) {
	assets, err := s.requestedAssets(c, c.QueryArray("asset"))
	if err != nil {
		s.fail(c, err)
		return
	}

	snapshots, err := s.prices.LatestPrices(c.Request.Context(), assets)
	if err != nil {
		s.fail(c, err)
		return
	}

	out := make([]gin.H, 0, len(snapshots))
	for _, asset := range assets {
		snap, ok := snapshots[asset]
		if !ok {
			continue
		}
		out = append(out, gin.H{
			"asset":       snap.Asset,
			"price_usd":   snap.Price,
			"observed_at": snap.ObservedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"prices": out})
}

type refreshPricesRequest struct {
	Assets []string `json:"assets"`
}

func (s *Server) refreshPrices(c *gin.Context) {
	var req refreshPricesRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	assets, err := s.requestedAssets(c, req.Assets)
	if err != nil {
		s.fail(c, err)
		return
	}

	snapshots, err := s.prices.Refresh(c.Request.Context(), assets)
	if err != nil {
		s.fail(c, err)
		return
	}

	out := make([]gin.H, len(snapshots))
	for i, snap := range snapshots {
		out[i] = gin.H{
			"asset":       snap.Asset,
			"price_usd":   snap.Price,
			"observed_at": snap.ObservedAt,
		}
	}
	c.JSON(http.StatusOK, gin.H{"refreshed": out})
}

type createAlertRequest struct {
	AccountID uuid.UUID       `json:"account_id" binding:"required"`
	Asset     string          `json:"asset" binding:"required"`
	Operator  string          `json:"operator" binding:"required"`
	Threshold decimal.Decimal `json:"threshold" binding:"required"`
}

func (s *Server) createAlert(c *gin.Context) {
	var req createAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule := &domain.AlertRule{
		ID:        uuid.New(),
		AccountID: req.AccountID,
		Asset:     strings.ToUpper(strings.TrimSpace(req.Asset)),
		Operator:  domain.AlertOperator(req.Operator),
		Threshold: req.Threshold,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.alerts.CreateRule(c.Request.Context(), rule); err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, alertResponse(rule))
}

func (s *Server) listAlerts(c *gin.Context) {
	rules, err := s.alerts.ListRules(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}

	out := make([]gin.H, len(rules))
	for i := range rules {
		out[i] = alertResponse(&rules[i])
	}
	c.JSON(http.StatusOK, gin.H{"alerts": out})
}

func (s *Server) checkAlerts(c *gin.Context) {
	triggered, err := s.alerts.CheckNow(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}

	out := make([]gin.H, len(triggered))
	for i := range triggered {
		out[i] = alertResponse(&triggered[i])
	}
	c.JSON(http.StatusOK, gin.H{"triggered": out})
}

// pathID parses the :id path segment, responding 400 on malformed input
func (s *Server) pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account id"})
		return uuid.Nil, false
	}
	return id, true
}

// requestedAssets falls back to the distinct assets in the ledger when the
// caller did not name any
func (s *Server) requestedAssets(c *gin.Context, requested []string) ([]string, error) {
	if len(requested) > 0 {
		return requested, nil
	}
	return s.ledger.ListAssets(c.Request.Context())
}

// fail maps domain errors onto HTTP status codes
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidResolution),
		errors.Is(err, domain.ErrAssetNotSupported):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, domain.ErrSourceUnavailable),
		errors.Is(err, domain.ErrUnknownPrice):
		status = http.StatusBadGateway
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func transferResponse(event *domain.TransferEvent) gin.H {
	return gin.H{
		"id":         event.ID,
		"account_id": event.AccountID,
		"asset":      event.Asset,
		"kind":       event.Kind,
		"quantity":   event.Quantity,
		"unit_price": event.UnitPrice,
		"timestamp":  event.Timestamp,
	}
}

func alertResponse(rule *domain.AlertRule) gin.H {
	return gin.H{
		"id":           rule.ID,
		"account_id":   rule.AccountID,
		"asset":        rule.Asset,
		"operator":     rule.Operator,
		"threshold":    rule.Threshold,
		"active":       rule.Active,
		"created_at":   rule.CreatedAt,
		"triggered_at": rule.TriggeredAt,
	}
}
