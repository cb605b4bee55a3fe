package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gasto-obra/backend/internal/assistant"
	"github.com/gasto-obra/backend/internal/domain"
	"github.com/gasto-obra/backend/internal/pending"
	"github.com/gasto-obra/backend/internal/transport/whatsapp"
)

type fakeLinks struct {
	links map[string]*domain.Link
	codes map[string]*domain.LinkCode

	createErr error
	deleteErr error
}

func (f *fakeLinks) GetByPhone(_ context.Context, phone string) (*domain.Link, error) {
	if l, ok := f.links[phone]; ok {
		return l, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeLinks) Create(_ context.Context, link *domain.Link) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.links[link.PhoneNumber] = link
	return nil
}

func (f *fakeLinks) DeleteByPhone(_ context.Context, phone string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.links, phone)
	return nil
}

func (f *fakeLinks) GetCode(_ context.Context, code string) (*domain.LinkCode, error) {
	if c, ok := f.codes[code]; ok {
		return c, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeLinks) DeleteCode(_ context.Context, code string) error {
	delete(f.codes, code)
	return nil
}

type fakeProjects struct {
	projects []domain.Project
	findErr  error
}

func (f *fakeProjects) FindActiveByTag(_ context.Context, accountID uuid.UUID, tag string) (*domain.Project, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	for i := range f.projects {
		p := &f.projects[i]
		if p.AccountID == accountID && p.Tag == tag && p.Status == domain.ProjectStatusActive {
			return p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeProjects) ListActive(_ context.Context, accountID uuid.UUID) ([]domain.Project, error) {
	var out []domain.Project
	for _, p := range f.projects {
		if p.AccountID == accountID && p.Status == domain.ProjectStatusActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProjects) GetByID(_ context.Context, id uuid.UUID) (*domain.Project, error) {
	for i := range f.projects {
		if f.projects[i].ID == id {
			return &f.projects[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

type fakeLedger struct {
	entries   []*domain.LedgerEntry
	appendErr error
}

func (f *fakeLedger) Append(_ context.Context, entry *domain.LedgerEntry) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeLedger) ListByProject(_ context.Context, projectID uuid.UUID) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	for _, e := range f.entries {
		if e.ProjectID == projectID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeLedger) SumByProject(_ context.Context, projectID uuid.UUID) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, e := range f.entries {
		if e.ProjectID == projectID {
			total = total.Add(e.Amount)
		}
	}
	return total, nil
}

type sentMessage struct {
	To   string
	Text string
}

type fakeChat struct {
	sent    []sentMessage
	sendErr map[string]error

	media       *whatsapp.Media
	downloadErr error
}

func (f *fakeChat) Send(_ context.Context, to, text string) error {
	if err := f.sendErr[to]; err != nil {
		return err
	}
	f.sent = append(f.sent, sentMessage{To: to, Text: text})
	return nil
}

func (f *fakeChat) DownloadMedia(_ context.Context, _ string) (*whatsapp.Media, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return f.media, nil
}

// lastTo returns the last message sent to a recipient, or "".
func (f *fakeChat) lastTo(to string) string {
	for i := len(f.sent) - 1; i >= 0; i-- {
		if f.sent[i].To == to {
			return f.sent[i].Text
		}
	}
	return ""
}

type fakeExtractor struct {
	receipt       *assistant.Receipt
	transcription *assistant.Transcription
	category      domain.Category
}

func (f *fakeExtractor) ParseReceipt(context.Context, []byte, string) (*assistant.Receipt, error) {
	return f.receipt, nil
}

func (f *fakeExtractor) TranscribeExpense(context.Context, []byte, string, []domain.Project) (*assistant.Transcription, error) {
	return f.transcription, nil
}

func (f *fakeExtractor) Categorize(context.Context, string, string) domain.Category {
	if f.category != "" {
		return f.category
	}
	return domain.CategoryOther
}

const (
	workerPhone = "5491155550001"
	clientPhone = "5491155559999"
)

type fixture struct {
	router   *Router
	links    *fakeLinks
	projects *fakeProjects
	ledger   *fakeLedger
	chat     *fakeChat
	extract  *fakeExtractor
	store    *pending.Store

	accountID uuid.UUID
	project   domain.Project
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	accountID := uuid.New()
	project := domain.Project{
		ID:          uuid.New(),
		AccountID:   accountID,
		Name:        "Casa Flores",
		Tag:         "flores3b",
		Status:      domain.ProjectStatusActive,
		ClientName:  "Marta",
		ClientPhone: clientPhone,
	}

	f := &fixture{
		links: &fakeLinks{
			links: map[string]*domain.Link{
				workerPhone: {PhoneNumber: workerPhone, AccountID: accountID},
			},
			codes: map[string]*domain.LinkCode{},
		},
		projects:  &fakeProjects{projects: []domain.Project{project}},
		ledger:    &fakeLedger{},
		chat:      &fakeChat{sendErr: map[string]error{}},
		extract:   &fakeExtractor{},
		store:     pending.NewStore(pending.DefaultTTL),
		accountID: accountID,
		project:   project,
	}
	f.router = NewRouter(f.links, f.projects, f.ledger, f.extract, f.chat, f.store)
	return f
}

func text(from, body string) domain.InboundMessage {
	return domain.InboundMessage{From: from, Type: domain.MessageTypeText, Text: body}
}

func TestExpenseConfirmFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.router.HandleMessage(ctx, text(workerPhone, "$1.234,56 Clavos y tornillos #flores3b"))

	require.Len(t, f.chat.sent, 1)
	prompt := f.chat.sent[0].Text
	assert.Contains(t, prompt, "$1.234,56")
	assert.Contains(t, prompt, "Clavos y tornillos")
	assert.Contains(t, prompt, "#flores3b")

	entry, ok := f.store.Get(workerPhone)
	require.True(t, ok)
	assert.True(t, entry.AwaitingConfirmation)
	assert.Empty(t, f.ledger.entries, "nothing persisted before confirmation")

	f.router.HandleMessage(ctx, text(workerPhone, "si"))

	require.Len(t, f.ledger.entries, 1)
	saved := f.ledger.entries[0]
	assert.Equal(t, "Clavos y tornillos", saved.Title)
	assert.True(t, saved.Amount.Equal(decimal.RequireFromString("1234.56")))
	assert.Equal(t, domain.TypeExpense, saved.Type)
	assert.Equal(t, f.project.ID, saved.ProjectID)
	assert.Equal(t, f.accountID, saved.AccountID)

	_, ok = f.store.Get(workerPhone)
	assert.False(t, ok, "pending cleared after commit")

	assert.Contains(t, f.chat.lastTo(workerPhone), "Gasto registrado")
	assert.Contains(t, f.chat.lastTo(clientPhone), "Casa Flores")
}

func TestExpenseCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.router.HandleMessage(ctx, text(workerPhone, "$500 Clavos #flores3b"))
	f.router.HandleMessage(ctx, text(workerPhone, "no"))

	assert.Equal(t, msgCancelled, f.chat.lastTo(workerPhone))
	assert.Empty(t, f.ledger.entries)
	_, ok := f.store.Get(workerPhone)
	assert.False(t, ok)
}

func TestExpenseRejections(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "unparseable", text: "hola que tal", want: msgUnparseable},
		{name: "missing tag", text: "$500 Clavos", want: msgExpenseMissingTag},
		{name: "unknown tag", text: "$500 Clavos #nada", want: msgUnknownTag("nada")},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)

			f.router.HandleMessage(context.Background(), text(workerPhone, tc.text))

			assert.Equal(t, tc.want, f.chat.lastTo(workerPhone))
			assert.Empty(t, f.ledger.entries)
			_, ok := f.store.Get(workerPhone)
			assert.False(t, ok)
		})
	}
}

func TestUnlinkedSender(t *testing.T) {
	f := newFixture(t)

	f.router.HandleMessage(context.Background(), text("5491100000000", "$500 Clavos #flores3b"))

	assert.Equal(t, notLinkedExpenseMessage("https://gasto-obra.web.app"), f.chat.lastTo("5491100000000"))
	assert.Empty(t, f.ledger.entries)
}

func TestManualCategoryMarker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.router.HandleMessage(ctx, text(workerPhone, "$3000 Ayudante #flores3b c:mano de obra d:Media jornada"))
	f.router.HandleMessage(ctx, text(workerPhone, "dale"))

	require.Len(t, f.ledger.entries, 1)
	assert.Equal(t, domain.CategoryLabor, f.ledger.entries[0].Category)
	assert.Equal(t, "Media jornada", f.ledger.entries[0].Description)
}

func TestPaymentCommitsImmediately(t *testing.T) {
	f := newFixture(t)

	f.router.HandleMessage(context.Background(), text(workerPhone, "PAGO $5.000 #flores3b"))

	require.Len(t, f.ledger.entries, 1)
	saved := f.ledger.entries[0]
	assert.Equal(t, domain.TypePayment, saved.Type)
	assert.Equal(t, domain.CategoryPayment, saved.Category)
	assert.Equal(t, "Pago del cliente", saved.Title)
	assert.True(t, saved.Amount.Equal(decimal.NewFromInt(5000)))

	assert.Contains(t, f.chat.lastTo(workerPhone), "Pago registrado")
	assert.Contains(t, f.chat.lastTo(clientPhone), "pago")

	_, ok := f.store.Get(workerPhone)
	assert.False(t, ok, "commands never leave pending state")
}

func TestPaymentRejections(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "missing tag", text: "PAGO $5000", want: msgPaymentMissingTag},
		{name: "zero amount", text: "PAGO $0 #flores3b", want: msgInvalidAmount},
		{name: "malformed", text: "PAGO mucho", want: msgPaymentFormat},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)

			f.router.HandleMessage(context.Background(), text(workerPhone, tc.text))

			assert.Equal(t, tc.want, f.chat.lastTo(workerPhone))
			assert.Empty(t, f.ledger.entries)
		})
	}
}

func TestSelfExpenseNeverNotifiesClient(t *testing.T) {
	f := newFixture(t)

	f.router.HandleMessage(context.Background(), text(workerPhone, "PROPIO $500 Tornillos #flores3b"))

	require.Len(t, f.ledger.entries, 1)
	assert.Equal(t, domain.TypeSelfExpense, f.ledger.entries[0].Type)
	assert.Equal(t, "Tornillos", f.ledger.entries[0].Title)

	assert.Contains(t, f.chat.lastTo(workerPhone), "Gasto propio registrado")
	assert.Empty(t, f.chat.lastTo(clientPhone), "self-expenses stay private")
}

func TestNotificationFailureDoesNotAffectCommit(t *testing.T) {
	f := newFixture(t)
	f.chat.sendErr[clientPhone] = errors.New("window closed")

	f.router.HandleMessage(context.Background(), text(workerPhone, "PAGO $5000 #flores3b"))

	require.Len(t, f.ledger.entries, 1)
	assert.Contains(t, f.chat.lastTo(workerPhone), "Pago registrado")
}

func TestSaveErrorLosesDraft(t *testing.T) {
	f := newFixture(t)
	f.ledger.appendErr = errors.New("db down")
	ctx := context.Background()

	f.router.HandleMessage(ctx, text(workerPhone, "$500 Clavos #flores3b"))
	f.router.HandleMessage(ctx, text(workerPhone, "si"))

	assert.Equal(t, msgSaveError, f.chat.lastTo(workerPhone))
	assert.Empty(t, f.ledger.entries)
	_, ok := f.store.Get(workerPhone)
	assert.False(t, ok, "pending cleared before the failed write")
}

func TestLinkFlow(t *testing.T) {
	f := newFixture(t)
	f.links.codes["ABC123"] = &domain.LinkCode{Code: "ABC123", AccountID: f.accountID, CreatedAt: time.Now()}
	ctx := context.Background()
	newPhone := "5491100000001"

	f.router.HandleMessage(ctx, domain.InboundMessage{
		From: newPhone, ContactName: "Juan", Type: domain.MessageTypeText, Text: "vincular abc123",
	})

	assert.Equal(t, msgLinked, f.chat.lastTo(newPhone))
	link, ok := f.links.links[newPhone]
	require.True(t, ok)
	assert.Equal(t, f.accountID, link.AccountID)
	assert.Equal(t, "Juan", link.ContactName)
	assert.NotContains(t, f.links.codes, "ABC123", "code is single use")
}

func TestLinkRejections(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	f.router = NewRouter(f.links, f.projects, f.ledger, f.extract, f.chat, f.store,
		WithClock(func() time.Time { return now }))
	f.links.codes["OLD999"] = &domain.LinkCode{
		Code:      "OLD999",
		AccountID: f.accountID,
		CreatedAt: now.Add(-domain.LinkCodeTTL - time.Minute),
	}
	ctx := context.Background()
	newPhone := "5491100000002"

	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "no code", text: "VINCULAR", want: msgLinkFormat},
		{name: "unknown code", text: "VINCULAR XYZ", want: msgLinkCodeNotFound},
		{name: "expired code", text: "VINCULAR OLD999", want: msgLinkCodeExpired},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f.router.HandleMessage(ctx, text(newPhone, tc.text))

			assert.Equal(t, tc.want, f.chat.lastTo(newPhone))
			assert.NotContains(t, f.links.links, newPhone)
		})
	}
}

func TestUnlink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.router.HandleMessage(ctx, text(workerPhone, "$500 Clavos #flores3b"))
	f.router.HandleMessage(ctx, text(workerPhone, "DESVINCULAR"))

	assert.Equal(t, msgUnlinked, f.chat.lastTo(workerPhone))
	assert.NotContains(t, f.links.links, workerPhone)
	_, ok := f.store.Get(workerPhone)
	assert.False(t, ok, "unlinking drops any pending draft")
}

func TestProjectsCommand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.router.HandleMessage(ctx, text(workerPhone, "PAGO $5000 #flores3b"))
	f.chat.sent = nil
	f.router.HandleMessage(ctx, text(workerPhone, "PROYECTOS"))

	reply := f.chat.lastTo(workerPhone)
	assert.Contains(t, reply, "Casa Flores")
	assert.Contains(t, reply, "#flores3b")
	assert.Contains(t, reply, "$5.000")
}

func TestSummaryCommand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.router.HandleMessage(ctx, text(workerPhone, "$1.000 Clavos #flores3b c:materiales"))
	f.router.HandleMessage(ctx, text(workerPhone, "si"))
	f.router.HandleMessage(ctx, text(workerPhone, "PAGO $5.000 #flores3b"))
	f.chat.sent = nil

	f.router.HandleMessage(ctx, text(workerPhone, "RESUMEN #flores3b"))

	reply := f.chat.lastTo(workerPhone)
	assert.Contains(t, reply, "Resumen - Casa Flores")
	assert.Contains(t, reply, "Materiales: $1.000")
	assert.Contains(t, reply, "Pagos recibidos: $5.000")
	assert.Contains(t, reply, "Saldo: $4.000")
}

func TestHelpCommand(t *testing.T) {
	f := newFixture(t)

	f.router.HandleMessage(context.Background(), text(workerPhone, "ayuda"))

	assert.Equal(t, msgHelp, f.chat.lastTo(workerPhone))
}

func TestPendingIsolatedPerSender(t *testing.T) {
	f := newFixture(t)
	other := "5491155550002"
	f.links.links[other] = &domain.Link{PhoneNumber: other, AccountID: f.accountID}
	ctx := context.Background()

	f.router.HandleMessage(ctx, text(workerPhone, "$500 Clavos #flores3b"))
	f.router.HandleMessage(ctx, text(other, "$900 Arena #flores3b"))
	f.router.HandleMessage(ctx, text(workerPhone, "si"))

	require.Len(t, f.ledger.entries, 1)
	assert.Equal(t, "Clavos", f.ledger.entries[0].Title)

	entry, ok := f.store.Get(other)
	require.True(t, ok, "second sender's draft untouched")
	assert.Equal(t, "Arena", entry.Draft.Title)
}

// Two deliveries for the same sender can be handled on parallel goroutines;
// both touch that sender's pending entry. Outcomes may land in either order,
// but the state machine must stay consistent: at most one commit, and a
// resolved-but-unconfirmed draft stays parked. Run with the race detector.
func TestConcurrentMessagesSameSender(t *testing.T) {
	for range 25 {
		f := newFixture(t)
		ctx := context.Background()

		f.store.Put(&pending.Entry{
			Identity:  workerPhone,
			AccountID: f.accountID,
			Draft: domain.Draft{
				Title:    "Arena",
				Amount:   decimal.NewFromInt(900),
				Category: domain.CategoryMaterials,
				Type:     domain.TypeExpense,
			},
		})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			f.router.HandleMessage(ctx, text(workerPhone, "#flores3b"))
		}()
		go func() {
			defer wg.Done()
			f.router.HandleMessage(ctx, text(workerPhone, "si"))
		}()
		wg.Wait()

		entry, pendingLeft := f.store.Get(workerPhone)
		switch len(f.ledger.entries) {
		case 0:
			// "si" ran first as ordinary input; the tag reply then moved the
			// draft to the confirmation step.
			require.True(t, pendingLeft)
			assert.True(t, entry.AwaitingConfirmation)
			assert.Equal(t, f.project.ID, entry.Draft.ProjectID)
		case 1:
			// The tag reply ran first and the "si" committed.
			assert.False(t, pendingLeft)
			assert.Equal(t, "Arena", f.ledger.entries[0].Title)
		default:
			t.Fatalf("draft committed %d times", len(f.ledger.entries))
		}
	}
}

func TestConfirmWordOutsideConfirmationState(t *testing.T) {
	f := newFixture(t)

	f.router.HandleMessage(context.Background(), text(workerPhone, "si"))

	assert.Equal(t, msgUnparseable, f.chat.lastTo(workerPhone))
	assert.Empty(t, f.ledger.entries)
}
