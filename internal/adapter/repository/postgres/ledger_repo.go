package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Koss-Lab/crypto-portfolio-tracker/internal/domain"
)

// ledgerRepository implements domain.LedgerRepository
type ledgerRepository struct {
	db *DB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *DB) domain.LedgerRepository {
	return &ledgerRepository{db: db}
}

// Create records a new transfer event
func (r *ledgerRepository) Create(ctx context.Context, event *domain.TransferEvent) error {
	query := `
		INSERT INTO transfers (id, account_id, asset, kind, quantity, unit_price, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	var unitPrice interface{}
	if event.UnitPrice != nil {
		unitPrice = event.UnitPrice.String()
	}

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.AccountID,
		event.Asset,
		string(event.Kind),
		event.Quantity.String(),
		unitPrice,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transfer: %w", err)
	}

	return nil
}

// ListEvents retrieves an account's transfer events in chronological order
func (r *ledgerRepository) ListEvents(ctx context.Context, accountID uuid.UUID) ([]domain.TransferEvent, error) {
	query := `
		SELECT id, account_id, asset, kind, quantity, unit_price, occurred_at
		FROM transfers
		WHERE account_id = $1
		ORDER BY occurred_at ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	defer rows.Close()

	var events []domain.TransferEvent
	for rows.Next() {
		event, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transfers: %w", err)
	}

	return events, nil
}

// ListAccounts retrieves the identifiers of every account with at least one event
func (r *ledgerRepository) ListAccounts(ctx context.Context) ([]uuid.UUID, error) {
	query := `
		SELECT DISTINCT account_id
		FROM transfers
		ORDER BY account_id ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan account id: %w", err)
		}
		accounts = append(accounts, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}

	return accounts, nil
}

// ListAssets retrieves the distinct assets referenced anywhere in the ledger
func (r *ledgerRepository) ListAssets(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT asset
		FROM transfers
		ORDER BY asset ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	var assets []string
	for rows.Next() {
		var asset string
		if err := rows.Scan(&asset); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate assets: %w", err)
	}

	return assets, nil
}

// Delete removes a transfer event by ID
func (r *ledgerRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM transfers WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete transfer: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted rows: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// scanTransfer reads one transfer row into a domain event
func scanTransfer(rows *sql.Rows) (*domain.TransferEvent, error) {
	var event domain.TransferEvent
	var kind string
	var quantityStr string
	var unitPriceStr sql.NullString

	err := rows.Scan(
		&event.ID,
		&event.AccountID,
		&event.Asset,
		&kind,
		&quantityStr,
		&unitPriceStr,
		&event.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan transfer: %w", err)
	}

	event.Kind = domain.EventKind(kind)

	quantity, err := decimal.NewFromString(quantityStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse quantity: %w", err)
	}
	event.Quantity = quantity

	if unitPriceStr.Valid {
		unitPrice, err := decimal.NewFromString(unitPriceStr.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse unit_price: %w", err)
		}
		event.UnitPrice = &unitPrice
	}

	return &event, nil
}
