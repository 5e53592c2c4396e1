package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Koss-Lab/crypto-portfolio-tracker/internal/domain"
)

// alertRuleRepository implements domain.AlertRuleRepository
type alertRuleRepository struct {
	db *DB
}

// NewAlertRuleRepository creates a new alert rule repository
func NewAlertRuleRepository(db *DB) domain.AlertRuleRepository {
	return &alertRuleRepository{db: db}
}

// Create stores a new alert rule
func (r *alertRuleRepository) Create(ctx context.Context, rule *domain.AlertRule) error {
	query := `
		INSERT INTO alert_rules (id, account_id, asset, operator, threshold, active, created_at, triggered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	var triggeredAt interface{}
	if rule.TriggeredAt != nil {
		triggeredAt = *rule.TriggeredAt
	}

	_, err := r.db.ExecContext(ctx, query,
		rule.ID,
		rule.AccountID,
		rule.Asset,
		string(rule.Operator),
		rule.Threshold.String(),
		rule.Active,
		rule.CreatedAt,
		triggeredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert rule: %w", err)
	}

	return nil
}

// List retrieves all alert rules, active first, newest first
func (r *alertRuleRepository) List(ctx context.Context) ([]domain.AlertRule, error) {
	query := `
		SELECT id, account_id, asset, operator, threshold, active, created_at, triggered_at
		FROM alert_rules
		ORDER BY active DESC, created_at DESC
	`

	return r.queryRules(ctx, query)
}

// ListActive retrieves only the active rules
func (r *alertRuleRepository) ListActive(ctx context.Context) ([]domain.AlertRule, error) {
	query := `
		SELECT id, account_id, asset, operator, threshold, active, created_at, triggered_at
		FROM alert_rules
		WHERE active = TRUE
		ORDER BY created_at DESC
	`

	return r.queryRules(ctx, query)
}

// Update writes back a rule mutated by the evaluator or by user edit
func (r *alertRuleRepository) Update(ctx context.Context, rule *domain.AlertRule) error {
	query := `
		UPDATE alert_rules
		SET asset = $2, operator = $3, threshold = $4, active = $5, triggered_at = $6
		WHERE id = $1
	`

	var triggeredAt interface{}
	if rule.TriggeredAt != nil {
		triggeredAt = *rule.TriggeredAt
	}

	result, err := r.db.ExecContext(ctx, query,
		rule.ID,
		rule.Asset,
		string(rule.Operator),
		rule.Threshold.String(),
		rule.Active,
		triggeredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update alert rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check updated rows: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// queryRules runs a rule query and scans the result set
func (r *alertRuleRepository) queryRules(ctx context.Context, query string) ([]domain.AlertRule, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.AlertRule
	for rows.Next() {
		var rule domain.AlertRule
		var operator string
		var thresholdStr string
		var triggeredAt sql.NullTime

		err := rows.Scan(
			&rule.ID,
			&rule.AccountID,
			&rule.Asset,
			&operator,
			&thresholdStr,
			&rule.Active,
			&rule.CreatedAt,
			&triggeredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert rule: %w", err)
		}

		rule.Operator = domain.AlertOperator(operator)

		threshold, err := decimal.NewFromString(thresholdStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse threshold: %w", err)
		}
		rule.Threshold = threshold

		if triggeredAt.Valid {
			t := triggeredAt.Time.UTC()
			rule.TriggeredAt = &t
		}

		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alert rules: %w", err)
	}

	return rules, nil
}
