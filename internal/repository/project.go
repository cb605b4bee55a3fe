package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/gasto-obra/backend/internal/domain"
)

const projectColumns = `id, account_id, name, tag, status, client_name, client_phone, share_token, created_at`

type ProjectRepository struct {
	db *sql.DB
}

func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// FindActiveByTag looks up an account's active project by its tag. Tags are
// stored lower-cased; callers pass lower-cased tags.
func (r *ProjectRepository) FindActiveByTag(ctx context.Context, accountID uuid.UUID, tag string) (*domain.Project, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects
		WHERE account_id = $1 AND tag = $2 AND status = $3`,
		accountID, tag, domain.ProjectStatusActive,
	)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("FindActiveByTag: %w", err)
	}
	return p, nil
}

func (r *ProjectRepository) ListActive(ctx context.Context, accountID uuid.UUID) ([]domain.Project, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects
		WHERE account_id = $1 AND status = $2 ORDER BY created_at`,
		accountID, domain.ProjectStatusActive,
	)
	if err != nil {
		return nil, fmt.Errorf("ListActive: %w", err)
	}
	defer rows.Close()

	var projects []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("ListActive: scan: %w", err)
		}
		projects = append(projects, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListActive: rows: %w", err)
	}
	return projects, nil
}

// ListActiveAll returns every active project across all accounts, for the
// daily digest job.
func (r *ProjectRepository) ListActiveAll(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects
		WHERE status = $1 ORDER BY created_at`,
		domain.ProjectStatusActive,
	)
	if err != nil {
		return nil, fmt.Errorf("ListActiveAll: %w", err)
	}
	defer rows.Close()

	var projects []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("ListActiveAll: scan: %w", err)
		}
		projects = append(projects, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListActiveAll: rows: %w", err)
	}
	return projects, nil
}

func (r *ProjectRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return p, nil
}

func scanProject(s scanner) (*domain.Project, error) {
	var p domain.Project
	var clientName, clientPhone, shareToken sql.NullString
	err := s.Scan(
		&p.ID, &p.AccountID, &p.Name, &p.Tag, &p.Status,
		&clientName, &clientPhone, &shareToken, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.ClientName = clientName.String
	p.ClientPhone = clientPhone.String
	p.ShareToken = shareToken.String
	return &p, nil
}
