package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gasto-obra/backend/internal/domain"
)

type LinkRepository struct {
	db *sql.DB
}

func NewLinkRepository(db *sql.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

// GetByPhone returns the link for a phone number, or domain.ErrNotFound.
func (r *LinkRepository) GetByPhone(ctx context.Context, phone string) (*domain.Link, error) {
	var link domain.Link
	err := r.db.QueryRowContext(ctx,
		`SELECT phone_number, account_id, contact_name, created_at
		FROM whatsapp_links WHERE phone_number = $1`, phone,
	).Scan(&link.PhoneNumber, &link.AccountID, &link.ContactName, &link.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetByPhone: %w", err)
	}
	return &link, nil
}

func (r *LinkRepository) Create(ctx context.Context, link *domain.Link) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO whatsapp_links (phone_number, account_id, contact_name, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (phone_number) DO UPDATE
		SET account_id = EXCLUDED.account_id,
			contact_name = EXCLUDED.contact_name,
			created_at = EXCLUDED.created_at`,
		link.PhoneNumber, link.AccountID, link.ContactName, link.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *LinkRepository) DeleteByPhone(ctx context.Context, phone string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM whatsapp_links WHERE phone_number = $1`, phone)
	if err != nil {
		return fmt.Errorf("DeleteByPhone: %w", err)
	}
	return nil
}

// GetCode returns a pending link code, or domain.ErrNotFound.
func (r *LinkRepository) GetCode(ctx context.Context, code string) (*domain.LinkCode, error) {
	var lc domain.LinkCode
	err := r.db.QueryRowContext(ctx,
		`SELECT code, account_id, created_at FROM link_codes WHERE code = $1`, code,
	).Scan(&lc.Code, &lc.AccountID, &lc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetCode: %w", err)
	}
	return &lc, nil
}

func (r *LinkRepository) DeleteCode(ctx context.Context, code string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM link_codes WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("DeleteCode: %w", err)
	}
	return nil
}
