package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/aradsms/inbox_services/internal/inbound_processor_service/domain"
)

// PgBlockingPolicy reads per-address rules from blocking_rules.
type PgBlockingPolicy struct {
	db     DBTX
	logger *slog.Logger
}

func NewPgBlockingPolicy(db DBTX, logger *slog.Logger) *PgBlockingPolicy {
	return &PgBlockingPolicy{db: db, logger: logger.With("component", "blocking_policy_pg")}
}

// GetAction returns domain.NoAction when no rule exists for the address.
func (p *PgBlockingPolicy) GetAction(ctx context.Context, address string) (domain.BlockingAction, error) {
	query := `SELECT action, reason FROM blocking_rules WHERE normalized_address = $1 LIMIT 1`

	var (
		action string
		reason sql.NullString
	)
	err := p.db.QueryRow(ctx, query, domain.NormalizeAddress(address)).Scan(&action, &reason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			p.logger.DebugContext(ctx, "No blocking rule for address", "address", address)
			return domain.NoAction{}, nil
		}
		p.logger.ErrorContext(ctx, "Error checking blocking rules", "address", address, "error", err)
		return nil, fmt.Errorf("checking blocking rules: %w", err)
	}

	parsed, err := domain.ParseBlockingAction(action, reason.String)
	if err != nil {
		return nil, err
	}
	if _, ok := parsed.(domain.Block); ok {
		p.logger.InfoContext(ctx, "Address matched block rule", "address", address, "reason", reason.String)
	}
	return parsed, nil
}

// SetRule upserts the rule for address.
func (p *PgBlockingPolicy) SetRule(ctx context.Context, address string, action domain.BlockingAction) error {
	query := `
		INSERT INTO blocking_rules (normalized_address, action, reason)
		VALUES ($1, $2, $3)
		ON CONFLICT (normalized_address) DO UPDATE SET action = EXCLUDED.action, reason = EXCLUDED.reason
	`
	var reason sql.NullString
	if r := domain.ReasonOf(action); r != "" {
		reason = sql.NullString{String: r, Valid: true}
	}
	if _, err := p.db.Exec(ctx, query, domain.NormalizeAddress(address), action.String(), reason); err != nil {
		p.logger.ErrorContext(ctx, "Error saving blocking rule", "address", address, "error", err)
		return fmt.Errorf("saving blocking rule: %w", err)
	}
	return nil
}

func (p *PgBlockingPolicy) RemoveRule(ctx context.Context, address string) error {
	query := `DELETE FROM blocking_rules WHERE normalized_address = $1`
	if _, err := p.db.Exec(ctx, query, domain.NormalizeAddress(address)); err != nil {
		return fmt.Errorf("removing blocking rule: %w", err)
	}
	return nil
}
