package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TypeExpense     TransactionType = "expense"
	TypePayment     TransactionType = "payment"
	TypeSelfExpense TransactionType = "provider_expense"
)

type Category string

const (
	CategoryMaterials Category = "materiales"
	CategoryTools     Category = "herramientas"
	CategoryTransport Category = "transporte"
	CategoryLabor     Category = "mano de obra"
	CategoryFood      Category = "comida"
	CategoryOther     Category = "otros"
	CategoryPayment   Category = "pago"
)

// ExpenseCategories is the fixed set an expense may carry. Payments use the
// dedicated "pago" category instead.
var ExpenseCategories = []Category{
	CategoryMaterials,
	CategoryTools,
	CategoryTransport,
	CategoryLabor,
	CategoryFood,
	CategoryOther,
}

// MatchCategory maps free-form category text onto the fixed set. Matching is
// substring containment in either direction, so "material" and "materiales de
// construccion" both resolve to "materiales". Unmatchable input falls back to
// "otros".
func MatchCategory(raw string) Category {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return CategoryOther
	}
	for _, c := range ExpenseCategories {
		if strings.Contains(string(c), normalized) || strings.Contains(normalized, string(c)) {
			return c
		}
	}
	return CategoryOther
}

type LineItem struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// Draft is an unpersisted candidate transaction. It is built by a handler from
// a parsed message and lives only in memory until committed, cancelled or
// expired.
type Draft struct {
	Title         string
	Amount        decimal.Decimal
	Description   string
	Category      Category
	Type          TransactionType
	Items         []LineItem
	OriginalMsg   string
	Source        string
	Transcription string

	// Set once the project is resolved.
	ProjectID   uuid.UUID
	ProjectTag  string
	ProjectName string
}

// LedgerEntry is the persisted result of a commit.
type LedgerEntry struct {
	ID            uuid.UUID
	ProjectID     uuid.UUID
	AccountID     uuid.UUID
	Title         string
	Description   string
	Amount        decimal.Decimal
	Category      Category
	Type          TransactionType
	Items         []LineItem
	OriginalMsg   string
	Source        string
	Transcription string
	CreatedAt     time.Time
}
