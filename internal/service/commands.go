package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/gasto-obra/backend/internal/domain"
	"github.com/gasto-obra/backend/internal/logging"
	"github.com/gasto-obra/backend/internal/parser"
	"github.com/gasto-obra/backend/internal/pending"
)

func (r *Router) handleConfirm(ctx context.Context, msg domain.InboundMessage, entry *pending.Entry) error {
	return r.commit(ctx, msg.From, entry)
}

func (r *Router) handleCancel(ctx context.Context, msg domain.InboundMessage, _ *pending.Entry) error {
	r.pending.Clear(msg.From)
	return r.chat.Send(ctx, msg.From, msgCancelled)
}

// handleTagSelection answers a bare "#tag" reply while a draft is waiting for
// its project. An unknown tag leaves the pending draft untouched so the user
// can try again; a known tag moves the draft to the confirmation step and
// restarts its TTL.
func (r *Router) handleTagSelection(ctx context.Context, msg domain.InboundMessage, entry *pending.Entry) error {
	tag, _ := parser.BareTag(msg.Text)

	project, err := r.projects.FindActiveByTag(ctx, entry.AccountID, tag)
	if errors.Is(err, domain.ErrNotFound) {
		return r.chat.Send(ctx, msg.From, msgUnknownTag(tag))
	}
	if err != nil {
		return fmt.Errorf("handleTagSelection: %w", err)
	}

	entry.Draft.ProjectID = project.ID
	entry.Draft.ProjectTag = project.Tag
	entry.Draft.ProjectName = project.Name
	entry.AwaitingConfirmation = true
	r.pending.Put(entry)

	return r.chat.Send(ctx, msg.From, confirmationPrompt(&entry.Draft))
}

func (r *Router) handleLink(ctx context.Context, msg domain.InboundMessage, _ *pending.Entry) error {
	cmd, err := parser.ParseLinkCommand(msg.Text)
	if err != nil {
		return r.chat.Send(ctx, msg.From, msgLinkFormat)
	}

	code, err := r.links.GetCode(ctx, cmd.Code)
	if errors.Is(err, domain.ErrNotFound) {
		return r.chat.Send(ctx, msg.From, msgLinkCodeNotFound)
	}
	if err != nil {
		return fmt.Errorf("handleLink: %w", err)
	}

	log := logging.FromContext(ctx)
	if r.now().Sub(code.CreatedAt) > domain.LinkCodeTTL {
		if err := r.links.DeleteCode(ctx, cmd.Code); err != nil {
			log.Warn("failed to delete expired link code", "error", err)
		}
		return r.chat.Send(ctx, msg.From, msgLinkCodeExpired)
	}

	link := &domain.Link{
		PhoneNumber: msg.From,
		AccountID:   code.AccountID,
		ContactName: msg.ContactName,
		CreatedAt:   r.now().UTC(),
	}
	if err := r.links.Create(ctx, link); err != nil {
		log.Error("failed to create link", "error", err)
		return r.chat.Send(ctx, msg.From, msgLinkError)
	}

	// Codes are single use. A failed delete only risks a re-link to the same
	// account, so it is not worth failing over.
	if err := r.links.DeleteCode(ctx, cmd.Code); err != nil {
		log.Warn("failed to delete claimed link code", "error", err)
	}

	log.Info("phone number linked", "account_id", code.AccountID)
	return r.chat.Send(ctx, msg.From, msgLinked)
}

func (r *Router) handleUnlink(ctx context.Context, msg domain.InboundMessage, _ *pending.Entry) error {
	link, err := r.requireLink(ctx, msg.From, msgNotLinkedShort)
	if err != nil || link == nil {
		return err
	}

	if err := r.links.DeleteByPhone(ctx, msg.From); err != nil {
		logging.FromContext(ctx).Error("failed to delete link", "error", err)
		return r.chat.Send(ctx, msg.From, msgUnlinkError)
	}

	r.pending.Clear(msg.From)
	return r.chat.Send(ctx, msg.From, msgUnlinked)
}

func (r *Router) handleHelp(ctx context.Context, msg domain.InboundMessage, _ *pending.Entry) error {
	return r.chat.Send(ctx, msg.From, msgHelp)
}

func (r *Router) handleProjects(ctx context.Context, msg domain.InboundMessage, _ *pending.Entry) error {
	link, err := r.requireLink(ctx, msg.From, msgNotLinkedShort)
	if err != nil || link == nil {
		return err
	}

	projects, err := r.projects.ListActive(ctx, link.AccountID)
	if err != nil {
		return fmt.Errorf("handleProjects: %w", err)
	}
	if len(projects) == 0 {
		return r.chat.Send(ctx, msg.From, msgNoActiveProjects)
	}

	totals := make(map[string]decimal.Decimal, len(projects))
	for _, p := range projects {
		total, err := r.ledger.SumByProject(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("handleProjects: %w", err)
		}
		totals[p.Tag] = total
	}

	return r.chat.Send(ctx, msg.From, projectsMessage(projects, totals))
}

func (r *Router) handleSummary(ctx context.Context, msg domain.InboundMessage, _ *pending.Entry) error {
	link, err := r.requireLink(ctx, msg.From, msgNotLinkedShort)
	if err != nil || link == nil {
		return err
	}

	tag, err := parser.ParseSummaryCommand(msg.Text)
	if err != nil {
		return r.chat.Send(ctx, msg.From, msgSummaryFormat)
	}

	project, err := r.projects.FindActiveByTag(ctx, link.AccountID, tag)
	if errors.Is(err, domain.ErrNotFound) {
		return r.chat.Send(ctx, msg.From, msgUnknownTag(tag))
	}
	if err != nil {
		return fmt.Errorf("handleSummary: %w", err)
	}

	entries, err := r.ledger.ListByProject(ctx, project.ID)
	if err != nil {
		return fmt.Errorf("handleSummary: %w", err)
	}

	return r.chat.Send(ctx, msg.From, summaryMessage(project, entries))
}

// handlePayment registers a client payment. PAGO is an explicit command with
// all fields on one line, so it commits directly without the confirmation
// round trip.
func (r *Router) handlePayment(ctx context.Context, msg domain.InboundMessage, _ *pending.Entry) error {
	link, err := r.requireLink(ctx, msg.From, msgNotLinkedShort)
	if err != nil || link == nil {
		return err
	}

	cmd, err := parser.ParsePaymentCommand(msg.Text)
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		return r.chat.Send(ctx, msg.From, msgInvalidAmount)
	case errors.Is(err, domain.ErrMissingTag):
		return r.chat.Send(ctx, msg.From, msgPaymentMissingTag)
	case err != nil:
		return r.chat.Send(ctx, msg.From, msgPaymentFormat)
	}

	project, err := r.projects.FindActiveByTag(ctx, link.AccountID, cmd.Tag)
	if errors.Is(err, domain.ErrNotFound) {
		return r.chat.Send(ctx, msg.From, msgUnknownTag(cmd.Tag))
	}
	if err != nil {
		return fmt.Errorf("handlePayment: %w", err)
	}

	entry := &pending.Entry{
		Identity:  msg.From,
		AccountID: link.AccountID,
		Draft: domain.Draft{
			Title:       cmd.Title,
			Amount:      cmd.Amount,
			Category:    domain.CategoryPayment,
			Type:        domain.TypePayment,
			OriginalMsg: msg.Text,
			Source:      "whatsapp_text",
			ProjectID:   project.ID,
			ProjectTag:  project.Tag,
			ProjectName: project.Name,
		},
	}
	return r.commit(ctx, msg.From, entry)
}

// handleSelfExpense registers an out-of-pocket expense. Like PAGO it commits
// directly, but the client is never notified of these.
func (r *Router) handleSelfExpense(ctx context.Context, msg domain.InboundMessage, _ *pending.Entry) error {
	link, err := r.requireLink(ctx, msg.From, msgNotLinkedShort)
	if err != nil || link == nil {
		return err
	}

	cmd, err := parser.ParseSelfExpenseCommand(msg.Text)
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		return r.chat.Send(ctx, msg.From, msgInvalidAmount)
	case errors.Is(err, domain.ErrMissingTag):
		return r.chat.Send(ctx, msg.From, msgSelfMissingTag)
	case err != nil:
		return r.chat.Send(ctx, msg.From, msgSelfFormat)
	}

	project, err := r.projects.FindActiveByTag(ctx, link.AccountID, cmd.Tag)
	if errors.Is(err, domain.ErrNotFound) {
		return r.chat.Send(ctx, msg.From, msgUnknownTag(cmd.Tag))
	}
	if err != nil {
		return fmt.Errorf("handleSelfExpense: %w", err)
	}

	entry := &pending.Entry{
		Identity:  msg.From,
		AccountID: link.AccountID,
		Draft: domain.Draft{
			Title:       cmd.Title,
			Amount:      cmd.Amount,
			Category:    r.categorize(ctx, cmd.Title, ""),
			Type:        domain.TypeSelfExpense,
			OriginalMsg: msg.Text,
			Source:      "whatsapp_text",
			ProjectID:   project.ID,
			ProjectTag:  project.Tag,
			ProjectName: project.Name,
		},
	}
	return r.commit(ctx, msg.From, entry)
}

// handleExpenseLine is the fallback for any text that matched no command: the
// generic "$<amount> <title> #tag" grammar. A well-formed line becomes a draft
// waiting for confirmation.
func (r *Router) handleExpenseLine(ctx context.Context, msg domain.InboundMessage, _ *pending.Entry) error {
	link, err := r.requireLink(ctx, msg.From, notLinkedExpenseMessage(r.appURL))
	if err != nil || link == nil {
		return err
	}

	line, err := parser.ParseExpenseLine(msg.Text)
	if err != nil {
		return r.chat.Send(ctx, msg.From, msgUnparseable)
	}
	if line.Tag == "" {
		return r.chat.Send(ctx, msg.From, msgExpenseMissingTag)
	}

	project, err := r.projects.FindActiveByTag(ctx, link.AccountID, line.Tag)
	if errors.Is(err, domain.ErrNotFound) {
		return r.chat.Send(ctx, msg.From, msgUnknownTag(line.Tag))
	}
	if err != nil {
		return fmt.Errorf("handleExpenseLine: %w", err)
	}

	category := domain.MatchCategory(line.RawCategory)
	if line.RawCategory == "" {
		category = r.categorize(ctx, line.Title, line.Description)
	}

	entry := &pending.Entry{
		Identity:  msg.From,
		AccountID: link.AccountID,
		Draft: domain.Draft{
			Title:       line.Title,
			Amount:      line.Amount,
			Description: line.Description,
			Category:    category,
			Type:        domain.TypeExpense,
			OriginalMsg: msg.Text,
			Source:      "whatsapp_text",
			ProjectID:   project.ID,
			ProjectTag:  project.Tag,
			ProjectName: project.Name,
		},
		AwaitingConfirmation: true,
	}
	r.pending.Put(entry)

	return r.chat.Send(ctx, msg.From, confirmationPrompt(&entry.Draft))
}

// categorize picks a category for a draft without an explicit one. The
// assistant is optional; without it, keyword matching on the title is the
// best available guess.
func (r *Router) categorize(ctx context.Context, title, description string) domain.Category {
	if r.extract == nil {
		return domain.MatchCategory(title)
	}
	return r.extract.Categorize(ctx, title, description)
}
