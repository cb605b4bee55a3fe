package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gasto-obra/backend/internal/assistant"
	"github.com/gasto-obra/backend/internal/domain"
	"github.com/gasto-obra/backend/internal/transport/whatsapp"
)

type linkRepository interface {
	GetByPhone(ctx context.Context, phone string) (*domain.Link, error)
	Create(ctx context.Context, link *domain.Link) error
	DeleteByPhone(ctx context.Context, phone string) error
	GetCode(ctx context.Context, code string) (*domain.LinkCode, error)
	DeleteCode(ctx context.Context, code string) error
}

type projectRepository interface {
	FindActiveByTag(ctx context.Context, accountID uuid.UUID, tag string) (*domain.Project, error)
	ListActive(ctx context.Context, accountID uuid.UUID) ([]domain.Project, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error)
}

type ledgerRepository interface {
	Append(ctx context.Context, entry *domain.LedgerEntry) error
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]domain.LedgerEntry, error)
	SumByProject(ctx context.Context, projectID uuid.UUID) (decimal.Decimal, error)
}

// Extractor is the external extraction assistant. Implementations return a
// nil result (not an error) when the model cannot read the content.
type Extractor interface {
	ParseReceipt(ctx context.Context, image []byte, mimeType string) (*assistant.Receipt, error)
	TranscribeExpense(ctx context.Context, audio []byte, mimeType string, projects []domain.Project) (*assistant.Transcription, error)
	Categorize(ctx context.Context, title, description string) domain.Category
}

// ChatTransport sends replies and fetches received media.
type ChatTransport interface {
	Send(ctx context.Context, to, text string) error
	DownloadMedia(ctx context.Context, mediaID string) (*whatsapp.Media, error)
}
