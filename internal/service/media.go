package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gasto-obra/backend/internal/domain"
	"github.com/gasto-obra/backend/internal/logging"
	"github.com/gasto-obra/backend/internal/parser"
	"github.com/gasto-obra/backend/internal/pending"
	"github.com/gasto-obra/backend/internal/resolver"
)

// handleImage turns a receipt photo into a draft expense. The caption must
// carry the project tag: unlike audio there is nothing in the image itself to
// resolve a project from.
func (r *Router) handleImage(ctx context.Context, msg domain.InboundMessage) error {
	link, err := r.requireLink(ctx, msg.From, msgNotLinked)
	if err != nil || link == nil {
		return err
	}
	if r.extract == nil {
		return r.chat.Send(ctx, msg.From, msgImageUnavailable)
	}

	tag, ok := parser.FirstTag(msg.Caption)
	if !ok {
		return r.chat.Send(ctx, msg.From, msgImageNeedsTag)
	}

	project, err := r.projects.FindActiveByTag(ctx, link.AccountID, tag)
	if errors.Is(err, domain.ErrNotFound) {
		return r.chat.Send(ctx, msg.From, msgUnknownTag(tag))
	}
	if err != nil {
		return fmt.Errorf("handleImage: %w", err)
	}

	// Extraction takes seconds; an early ack keeps the user from re-sending.
	log := logging.FromContext(ctx)
	if err := r.chat.Send(ctx, msg.From, msgProcessingImage); err != nil {
		log.Warn("failed to send processing ack", "error", err)
	}

	media, err := r.chat.DownloadMedia(ctx, msg.MediaID)
	if err != nil {
		log.Error("media download failed", "error", err, "media_id", msg.MediaID)
		return r.chat.Send(ctx, msg.From, msgImageDownloadFail)
	}

	receipt, err := r.extract.ParseReceipt(ctx, media.Data, media.MimeType)
	if err != nil {
		return fmt.Errorf("handleImage: %w", err)
	}
	if receipt == nil || !receipt.TotalAmount.IsPositive() {
		return r.chat.Send(ctx, msg.From, msgReceiptUnreadable)
	}

	title := receipt.StoreName
	if title == "" && len(receipt.Items) > 0 {
		title = receipt.Items[0].Name
	}
	if title == "" {
		title = "Ticket"
	}
	title = parser.CapitalizeFirst(title)

	var description string
	if len(receipt.Items) > 0 {
		names := make([]string, len(receipt.Items))
		for i, item := range receipt.Items {
			names[i] = item.Name
		}
		description = strings.Join(names, ", ")
	}

	entry := &pending.Entry{
		Identity:  msg.From,
		AccountID: link.AccountID,
		Draft: domain.Draft{
			Title:       title,
			Amount:      receipt.TotalAmount,
			Description: description,
			Category:    r.categorize(ctx, title, description),
			Type:        domain.TypeExpense,
			Items:       receipt.Items,
			OriginalMsg: msg.Caption,
			Source:      "whatsapp_image",
			ProjectID:   project.ID,
			ProjectTag:  project.Tag,
			ProjectName: project.Name,
		},
		AwaitingConfirmation: true,
	}
	r.pending.Put(entry)

	return r.chat.Send(ctx, msg.From, confirmationPrompt(&entry.Draft))
}

// handleAudio turns a voice note into a draft. The project may come from a
// caption tag, from a project mention in the audio itself, or implicitly when
// the account has exactly one active project; failing all three the draft is
// parked and the user is asked to pick a tag.
func (r *Router) handleAudio(ctx context.Context, msg domain.InboundMessage) error {
	link, err := r.requireLink(ctx, msg.From, msgNotLinked)
	if err != nil || link == nil {
		return err
	}
	if r.extract == nil {
		return r.chat.Send(ctx, msg.From, msgAudioUnavailable)
	}

	projects, err := r.projects.ListActive(ctx, link.AccountID)
	if err != nil {
		return fmt.Errorf("handleAudio: %w", err)
	}

	log := logging.FromContext(ctx)
	if err := r.chat.Send(ctx, msg.From, msgProcessingAudio); err != nil {
		log.Warn("failed to send processing ack", "error", err)
	}

	media, err := r.chat.DownloadMedia(ctx, msg.MediaID)
	if err != nil {
		log.Error("media download failed", "error", err, "media_id", msg.MediaID)
		return r.chat.Send(ctx, msg.From, msgAudioDownloadFail)
	}

	result, err := r.extract.TranscribeExpense(ctx, media.Data, media.MimeType, projects)
	if err != nil {
		return fmt.Errorf("handleAudio: %w", err)
	}
	if result == nil {
		return r.chat.Send(ctx, msg.From, msgAudioUnreadable)
	}
	if !result.TotalAmount.IsPositive() {
		return r.chat.Send(ctx, msg.From, msgTranscriptionNoAmount(result.Transcription))
	}

	transactionType := domain.TypeExpense
	switch result.TransactionType {
	case string(domain.TypePayment):
		transactionType = domain.TypePayment
	case string(domain.TypeSelfExpense):
		transactionType = domain.TypeSelfExpense
	}

	title := parser.CapitalizeFirst(result.Title)
	if title == "" {
		title = "Gasto por audio"
	}

	category := domain.MatchCategory(result.Category)
	if transactionType == domain.TypePayment {
		category = domain.CategoryPayment
	}

	draft := domain.Draft{
		Title:         title,
		Amount:        result.TotalAmount,
		Description:   result.Description,
		Category:      category,
		Type:          transactionType,
		Items:         result.Items,
		OriginalMsg:   msg.Caption,
		Source:        "whatsapp_audio",
		Transcription: result.Transcription,
	}

	captionTag, _ := parser.FirstTag(msg.Caption)
	project := resolver.Resolve(captionTag, result.ProjectReference, projects)
	if project == nil {
		if len(projects) == 0 {
			return r.chat.Send(ctx, msg.From, msgNoActiveProjects)
		}
		entry := &pending.Entry{
			Identity:  msg.From,
			AccountID: link.AccountID,
			Draft:     draft,
		}
		r.pending.Put(entry)
		return r.chat.Send(ctx, msg.From, selectionPrompt(&draft, projects))
	}

	draft.ProjectID = project.ID
	draft.ProjectTag = project.Tag
	draft.ProjectName = project.Name

	entry := &pending.Entry{
		Identity:             msg.From,
		AccountID:            link.AccountID,
		Draft:                draft,
		AwaitingConfirmation: true,
	}
	r.pending.Put(entry)

	return r.chat.Send(ctx, msg.From, confirmationPrompt(&entry.Draft))
}
