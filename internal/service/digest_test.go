package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/gasto-obra/backend/internal/domain"
)

func TestDailyDigestMessage(t *testing.T) {
	project := &domain.Project{
		Name:       "Casa Flores",
		Tag:        "flores3b",
		ShareToken: "abc123",
	}
	entries := []domain.LedgerEntry{
		{Title: "Clavos", Amount: decimal.NewFromInt(500), Category: domain.CategoryMaterials},
		{Title: "Viaje ferreteria", Amount: decimal.RequireFromString("1234.56"), Category: domain.CategoryTransport},
	}
	day := time.Date(2026, 8, 29, 18, 0, 0, 0, time.UTC)

	msg := DailyDigestMessage(project, entries, decimal.NewFromInt(20000), day, "https://gasto-obra.web.app")

	assert.Contains(t, msg, "*Resumen del dia - Casa Flores*")
	assert.Contains(t, msg, "Fecha: 29/08/2026")
	assert.Contains(t, msg, "$500 - Clavos (Materiales)")
	assert.Contains(t, msg, "$1.234,56 - Viaje ferreteria (Transporte)")
	assert.Contains(t, msg, "*Total del dia:* $1.734,56")
	assert.Contains(t, msg, "*Total acumulado del proyecto:* $20.000")
	assert.Contains(t, msg, "Ver detalle: https://gasto-obra.web.app/view/abc123")
}

func TestDailyDigestMessageWithoutShareToken(t *testing.T) {
	project := &domain.Project{Name: "Depto Centro", Tag: "centro2a"}
	entries := []domain.LedgerEntry{
		{Title: "Arena", Amount: decimal.NewFromInt(900), Category: domain.CategoryMaterials},
	}

	msg := DailyDigestMessage(project, entries, decimal.NewFromInt(900), time.Now(), "https://gasto-obra.web.app")

	assert.NotContains(t, msg, "Ver detalle")
}
