// Package service contains the conversational intake state machine: it takes
// decoded inbound messages, resolves the project they refer to, asks the user
// for whatever is missing, and commits confirmed drafts to the ledger.
//
// Per sender the conversation is in one of three states: idle (no pending
// entry), awaiting a project tag, or awaiting a yes/no confirmation. The
// pending store holds the non-idle states.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gasto-obra/backend/internal/domain"
	"github.com/gasto-obra/backend/internal/logging"
	"github.com/gasto-obra/backend/internal/parser"
	"github.com/gasto-obra/backend/internal/pending"
)

type Router struct {
	links    linkRepository
	projects projectRepository
	ledger   ledgerRepository
	extract  Extractor // nil when no API key is configured
	chat     ChatTransport
	pending  *pending.Store
	now      func() time.Time
	appURL   string

	// One mutex per sender identity: events for the same sender are handled
	// strictly one at a time, while different senders proceed in parallel.
	senderMu sync.Map

	rules []rule
}

// rule pairs a predicate with its handler. Rules are evaluated strictly in
// order; the first match wins, so the slice below is the dispatch contract
// for text messages.
type rule struct {
	name   string
	match  func(text string, entry *pending.Entry) bool
	handle func(ctx context.Context, msg domain.InboundMessage, entry *pending.Entry) error
}

type RouterOption func(*Router)

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) RouterOption {
	return func(r *Router) { r.now = now }
}

// WithAppURL sets the web app address mentioned in onboarding replies.
func WithAppURL(url string) RouterOption {
	return func(r *Router) { r.appURL = url }
}

func NewRouter(
	links linkRepository,
	projects projectRepository,
	ledger ledgerRepository,
	extract Extractor,
	chat ChatTransport,
	pendingStore *pending.Store,
	opts ...RouterOption,
) *Router {
	r := &Router{
		links:    links,
		projects: projects,
		ledger:   ledger,
		extract:  extract,
		chat:     chat,
		pending:  pendingStore,
		now:      time.Now,
		appURL:   "https://gasto-obra.web.app",
	}
	for _, opt := range opts {
		opt(r)
	}

	awaitingConfirmation := func(entry *pending.Entry) bool {
		return entry != nil && entry.AwaitingConfirmation
	}
	awaitingSelection := func(entry *pending.Entry) bool {
		return entry != nil && !entry.AwaitingConfirmation
	}

	r.rules = []rule{
		{
			name: "confirm",
			match: func(text string, entry *pending.Entry) bool {
				return awaitingConfirmation(entry) && parser.IsAffirmative(text)
			},
			handle: r.handleConfirm,
		},
		{
			name: "cancel",
			match: func(text string, entry *pending.Entry) bool {
				return awaitingConfirmation(entry) && parser.IsNegative(text)
			},
			handle: r.handleCancel,
		},
		{
			name: "tag_selection",
			match: func(text string, entry *pending.Entry) bool {
				_, ok := parser.BareTag(text)
				return ok && awaitingSelection(entry)
			},
			handle: r.handleTagSelection,
		},
		{
			name: "link",
			match: func(text string, _ *pending.Entry) bool {
				return parser.IsLinkCommand(text)
			},
			handle: r.handleLink,
		},
		{
			name: "unlink",
			match: func(text string, _ *pending.Entry) bool {
				return parser.IsUnlinkCommand(text)
			},
			handle: r.handleUnlink,
		},
		{
			name: "help",
			match: func(text string, _ *pending.Entry) bool {
				return parser.IsHelpCommand(text)
			},
			handle: r.handleHelp,
		},
		{
			name: "projects",
			match: func(text string, _ *pending.Entry) bool {
				return parser.IsProjectsCommand(text)
			},
			handle: r.handleProjects,
		},
		{
			name: "summary",
			match: func(text string, _ *pending.Entry) bool {
				return parser.IsSummaryCommand(text)
			},
			handle: r.handleSummary,
		},
		{
			name: "payment",
			match: func(text string, _ *pending.Entry) bool {
				return parser.IsPaymentCommand(text)
			},
			handle: r.handlePayment,
		},
		{
			name: "self_expense",
			match: func(text string, _ *pending.Entry) bool {
				return parser.IsSelfExpenseCommand(text)
			},
			handle: r.handleSelfExpense,
		},
		{
			name:   "expense",
			match:  func(string, *pending.Entry) bool { return true },
			handle: r.handleExpenseLine,
		},
	}

	return r
}

// HandleMessage is the single entry point for inbound chat events. Handler
// failures are contained here: they are logged and answered with a generic
// retry prompt, and never propagate to the transport or to other senders'
// state.
func (r *Router) HandleMessage(ctx context.Context, msg domain.InboundMessage) {
	log := logging.FromContext(ctx).With("from", msg.From, "type", msg.Type)
	ctx = logging.WithLogger(ctx, log)

	// The webhook spawns a goroutine per delivery, so two messages from the
	// same sender can arrive in parallel. All reads and writes of a sender's
	// pending entry happen under that sender's lock.
	mu := r.senderLock(msg.From)
	mu.Lock()
	defer mu.Unlock()

	var err error
	switch msg.Type {
	case domain.MessageTypeText:
		err = r.dispatchText(ctx, msg)
	case domain.MessageTypeImage:
		err = r.handleImage(ctx, msg)
	case domain.MessageTypeAudio:
		err = r.handleAudio(ctx, msg)
	default:
		log.Debug("ignoring unsupported message type")
		return
	}

	if err != nil {
		log.Error("message handling failed", "error", err)
		if sendErr := r.chat.Send(ctx, msg.From, msgRetryError); sendErr != nil {
			log.Error("failed to send error reply", "error", sendErr)
		}
	}
}

func (r *Router) dispatchText(ctx context.Context, msg domain.InboundMessage) error {
	entry, _ := r.pending.Get(msg.From)

	for _, rule := range r.rules {
		if rule.match(msg.Text, entry) {
			log := logging.FromContext(ctx).With("rule", rule.name)
			ctx = logging.WithLogger(ctx, log)
			log.Debug("dispatching text message")
			return rule.handle(ctx, msg, entry)
		}
	}
	return nil
}

func (r *Router) senderLock(identity string) *sync.Mutex {
	mu, _ := r.senderMu.LoadOrStore(identity, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// requireLink answers link-gated paths: it returns the sender's link or, when
// not linked, sends reply and returns nil.
func (r *Router) requireLink(ctx context.Context, from, reply string) (*domain.Link, error) {
	link, err := r.links.GetByPhone(ctx, from)
	if err == nil {
		return link, nil
	}
	if errors.Is(err, domain.ErrNotFound) {
		return nil, r.chat.Send(ctx, from, reply)
	}
	return nil, fmt.Errorf("requireLink: %w", err)
}
