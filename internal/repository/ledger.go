package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gasto-obra/backend/internal/domain"
)

const ledgerColumns = `id, project_id, account_id, title, description, amount,
	category, type, items, original_message, source, transcription, created_at`

type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Append persists a committed entry. It is the only write the bot issues
// against the ledger.
func (r *LedgerRepository) Append(ctx context.Context, entry *domain.LedgerEntry) error {
	var items any
	if len(entry.Items) > 0 {
		encoded, err := json.Marshal(entry.Items)
		if err != nil {
			return fmt.Errorf("Append: marshal items: %w", err)
		}
		items = encoded
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (
			id, project_id, account_id, title, description, amount,
			category, type, items, original_message, source, transcription, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		entry.ID, entry.ProjectID, entry.AccountID, entry.Title, entry.Description,
		entry.Amount, entry.Category, entry.Type, items, entry.OriginalMsg,
		entry.Source, nullIfEmpty(entry.Transcription), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Append: %w", err)
	}
	return nil
}

func (r *LedgerRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]domain.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM expenses
		WHERE project_id = $1 ORDER BY created_at`, projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByProject: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByProject: scan: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByProject: rows: %w", err)
	}
	return entries, nil
}

// ListByProjectBetween returns a project's entries created within [from, to).
func (r *LedgerRepository) ListByProjectBetween(ctx context.Context, projectID uuid.UUID, from, to time.Time) ([]domain.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM expenses
		WHERE project_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at`, projectID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByProjectBetween: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByProjectBetween: scan: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByProjectBetween: rows: %w", err)
	}
	return entries, nil
}

// SumByProject totals all entries of a project regardless of type.
func (r *LedgerRepository) SumByProject(ctx context.Context, projectID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM expenses WHERE project_id = $1`, projectID,
	).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("SumByProject: %w", err)
	}
	return total, nil
}

func scanLedgerEntry(s scanner) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	var description, transcription sql.NullString
	var items []byte
	err := s.Scan(
		&e.ID, &e.ProjectID, &e.AccountID, &e.Title, &description, &e.Amount,
		&e.Category, &e.Type, &items, &e.OriginalMsg, &e.Source, &transcription,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Description = description.String
	e.Transcription = transcription.String
	if len(items) > 0 {
		if err := json.Unmarshal(items, &e.Items); err != nil {
			return nil, fmt.Errorf("decode items: %w", err)
		}
	}
	return &e, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
