package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/aradsms/inbox_services/internal/inbound_processor_service/domain"
)

type PgContactDirectory struct {
	db     DBTX
	logger *slog.Logger
}

func NewPgContactDirectory(db DBTX, logger *slog.Logger) *PgContactDirectory {
	return &PgContactDirectory{db: db, logger: logger.With("component", "contact_directory_pg")}
}

// FindContact looks the address up by its normalized form.
// It returns (nil, nil) if no contact matches.
func (d *PgContactDirectory) FindContact(ctx context.Context, address string) (*domain.Contact, error) {
	query := `
		SELECT id, number, display_name
		FROM contacts
		WHERE normalized_number = $1
		LIMIT 1
	`
	var (
		c           domain.Contact
		displayName sql.NullString
	)
	err := d.db.QueryRow(ctx, query, domain.NormalizeAddress(address)).Scan(&c.ID, &c.Number, &displayName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			d.logger.DebugContext(ctx, "Address is not a contact", "address", address)
			return nil, nil
		}
		d.logger.ErrorContext(ctx, "Error querying contact by number", "error", err, "address", address)
		return nil, fmt.Errorf("finding contact: %w", err)
	}
	if displayName.Valid {
		c.DisplayName = displayName.String
	}
	return &c, nil
}

// AddContact inserts a new address book entry for number.
func (d *PgContactDirectory) AddContact(ctx context.Context, number, displayName string) (*domain.Contact, error) {
	query := `
		INSERT INTO contacts (id, number, normalized_number, display_name)
		VALUES ($1, $2, $3, $4)
	`
	c := domain.Contact{ID: uuid.New(), Number: number, DisplayName: displayName}
	var name sql.NullString
	if displayName != "" {
		name = sql.NullString{String: displayName, Valid: true}
	}
	if _, err := d.db.Exec(ctx, query, c.ID, c.Number, domain.NormalizeAddress(number), name); err != nil {
		d.logger.ErrorContext(ctx, "Error inserting contact", "error", err, "number", number)
		return nil, fmt.Errorf("adding contact: %w", err)
	}
	return &c, nil
}
