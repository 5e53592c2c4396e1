package alert

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Koss-Lab/crypto-portfolio-tracker/internal/domain"
)

// PriceProvider resolves latest price snapshots without creating a dependency
// on the price cache package
type PriceProvider interface {
	LatestPrices(ctx context.Context, assets []string) (map[string]domain.PriceSnapshot, error)
}

// Evaluate compares rules against the latest snapshots and returns updated
// copies of the rules that changed state.
//
// Pure function over its inputs: no rule affects another, so evaluation order
// is irrelevant. Inactive or already-triggered rules are never re-evaluated.
// A rule whose asset has no snapshot is left unchanged; an unknown price must
// never satisfy either operator, it simply defers the rule to the next cycle.
func Evaluate(rules []domain.AlertRule, latestPrices map[string]domain.PriceSnapshot, now time.Time) []domain.AlertRule {
	triggered := make([]domain.AlertRule, 0)
	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		snap, ok := latestPrices[rule.Asset]
		if !ok {
			continue
		}
		// A non-positive quote is a broken quote, not a price; it must never
		// satisfy a below-threshold rule
		if !snap.Price.IsPositive() {
			continue
		}
		if rule.Satisfied(snap.Price) {
			at := now
			rule.Active = false
			rule.TriggeredAt = &at
			triggered = append(triggered, rule)
		}
	}
	return triggered
}

// AlertService evaluates persisted threshold rules against live prices
type AlertService struct {
	AlertRepo domain.AlertRuleRepository
	Prices    PriceProvider
	Logger    *zap.Logger
}

// NewAlertService creates a new AlertService instance
func NewAlertService(alertRepo domain.AlertRuleRepository, prices PriceProvider, logger *zap.Logger) *AlertService {
	return &AlertService{
		AlertRepo: alertRepo,
		Prices:    prices,
		Logger:    logger,
	}
}

// CreateRule validates and stores a new alert rule
func (s *AlertService) CreateRule(ctx context.Context, rule *domain.AlertRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if err := s.AlertRepo.Create(ctx, rule); err != nil {
		return fmt.Errorf("failed to create alert rule: %w", err)
	}
	return nil
}

// ListRules retrieves all alert rules
func (s *AlertService) ListRules(ctx context.Context) ([]domain.AlertRule, error) {
	return s.AlertRepo.List(ctx)
}

// CheckNow evaluates every active rule against the latest prices and writes
// the deactivated rules back. Returns the rules that triggered.
// Logic:
//  1. Load active rules
//  2. Resolve latest snapshots for the distinct assets they watch
//  3. Evaluate; triggered rules flip to inactive with TriggeredAt set
//  4. Persist the updated copies (the evaluator itself never persists)
func (s *AlertService) CheckNow(ctx context.Context) ([]domain.AlertRule, error) {
	rules, err := s.AlertRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active alert rules: %w", err)
	}
	if len(rules) == 0 {
		return nil, nil
	}

	assets := make([]string, 0)
	seen := make(map[string]struct{})
	for _, r := range rules {
		if _, ok := seen[r.Asset]; !ok {
			seen[r.Asset] = struct{}{}
			assets = append(assets, r.Asset)
		}
	}

	prices, err := s.Prices.LatestPrices(ctx, assets)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve latest prices: %w", err)
	}

	triggered := Evaluate(rules, prices, time.Now())
	for i := range triggered {
		if err := s.AlertRepo.Update(ctx, &triggered[i]); err != nil {
			return nil, fmt.Errorf("failed to persist triggered alert %s: %w", triggered[i].ID, err)
		}
		s.Logger.Info("alert triggered",
			zap.String("alert_id", triggered[i].ID.String()),
			zap.String("asset", triggered[i].Asset),
			zap.String("operator", string(triggered[i].Operator)),
			zap.String("threshold", triggered[i].Threshold.String()))
	}
	return triggered, nil
}
