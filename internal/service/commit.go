package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/gasto-obra/backend/internal/domain"
	"github.com/gasto-obra/backend/internal/logging"
	"github.com/gasto-obra/backend/internal/pending"
)

// commit persists a resolved draft and confirms it to the sender. Pending
// state is cleared before the write: if the write then fails the user gets an
// error and re-sends, which is cheaper than ever double-inserting.
func (r *Router) commit(ctx context.Context, from string, entry *pending.Entry) error {
	r.pending.Clear(from)

	ledgerEntry := &domain.LedgerEntry{
		ID:            uuid.New(),
		ProjectID:     entry.Draft.ProjectID,
		AccountID:     entry.AccountID,
		Title:         entry.Draft.Title,
		Description:   entry.Draft.Description,
		Amount:        entry.Draft.Amount,
		Category:      entry.Draft.Category,
		Type:          entry.Draft.Type,
		Items:         entry.Draft.Items,
		OriginalMsg:   entry.Draft.OriginalMsg,
		Source:        entry.Draft.Source,
		Transcription: entry.Draft.Transcription,
		CreatedAt:     r.now().UTC(),
	}

	log := logging.FromContext(ctx)
	if err := r.ledger.Append(ctx, ledgerEntry); err != nil {
		log.Error("ledger append failed", "error", err, "project_id", entry.Draft.ProjectID)
		return r.chat.Send(ctx, from, msgSaveError)
	}

	log.Info("transaction committed",
		"entry_id", ledgerEntry.ID,
		"project_id", ledgerEntry.ProjectID,
		"type", ledgerEntry.Type,
		"amount", ledgerEntry.Amount,
	)

	if err := r.chat.Send(ctx, from, committedMessage(entry)); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	r.notifyClient(ctx, entry)
	return nil
}

// notifyClient tells the project's client about a committed expense or
// payment. Strictly best effort: the transaction is already saved, so any
// failure here is logged and swallowed. Self-expenses are the provider's own
// business and are never forwarded.
func (r *Router) notifyClient(ctx context.Context, entry *pending.Entry) {
	if entry.Draft.Type == domain.TypeSelfExpense {
		return
	}

	log := logging.FromContext(ctx)
	project, err := r.projects.GetByID(ctx, entry.Draft.ProjectID)
	if err != nil {
		log.Warn("client notification skipped", "error", err, "project_id", entry.Draft.ProjectID)
		return
	}
	if project.ClientPhone == "" {
		return
	}

	notice := clientNotice(entry.Draft.Type, entry.Draft.Amount, project.Name)
	if err := r.chat.Send(ctx, project.ClientPhone, notice); err != nil {
		log.Warn("client notification failed", "error", err, "project_id", project.ID)
	}
}
