// Package assistant extracts structured expense data from receipts, voice
// notes and free text using Gemini. Responses are strict JSON; anything the
// model cannot produce comes back as nil rather than an error the router
// would have to interpret.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"google.golang.org/genai"

	"github.com/gasto-obra/backend/internal/domain"
)

const modelName = "gemini-2.5-flash-lite"

// Receipt is the structured content of a photographed ticket.
type Receipt struct {
	StoreName   string            `json:"storeName"`
	Items       []domain.LineItem `json:"items"`
	TotalAmount decimal.Decimal   `json:"totalAmount"`
	Date        string            `json:"date"`
}

// Transcription is the structured content of a voice note describing a
// transaction. ProjectReference carries any project mention heard in the
// audio, for fuzzy resolution downstream.
type Transcription struct {
	Transcription    string            `json:"transcription"`
	TransactionType  string            `json:"transactionType"`
	Title            string            `json:"title"`
	Items            []domain.LineItem `json:"items"`
	TotalAmount      decimal.Decimal   `json:"totalAmount"`
	Description      string            `json:"description"`
	Category         string            `json:"category"`
	ProjectReference string            `json:"projectReference"`
}

type Gemini struct {
	client *genai.Client
}

func NewGemini(ctx context.Context, apiKey string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("NewGemini: %w", err)
	}
	return &Gemini{client: client}, nil
}

const receiptPrompt = `Analiza esta imagen de un ticket/factura de compra en Argentina.
Extrae la siguiente informacion en formato JSON:
{
  "storeName": "nombre del comercio",
  "items": [
    {"name": "nombre del item", "amount": 123.45},
    {"name": "otro item", "amount": 67.89}
  ],
  "totalAmount": 1234.56,
  "date": "DD/MM/YYYY"
}

Cada item debe tener "name" (descripcion corta) y "amount" (precio unitario o subtotal).
Si no podes extraer algun campo, usa null.
Solo responde con el JSON, sin texto adicional.`

// ParseReceipt reads a ticket photo. A nil Receipt with nil error means the
// model could not make sense of the image.
func (g *Gemini) ParseReceipt(ctx context.Context, image []byte, mimeType string) (*Receipt, error) {
	raw, err := g.generate(ctx, receiptPrompt, image, mimeType, 1000)
	if err != nil {
		return nil, fmt.Errorf("ParseReceipt: %w", err)
	}

	var receipt Receipt
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &receipt); err != nil {
		return nil, nil
	}
	return &receipt, nil
}

const transcribePrompt = `Transcribi este audio en espanol argentino. El audio describe un gasto, pago o compra de obra/refaccion.
Extrae la informacion en formato JSON:
{
  "transcription": "texto completo transcrito",
  "transactionType": "expense|payment|provider_expense",
  "title": "titulo corto del gasto",
  "items": [{"name": "item mencionado", "amount": 123.45}],
  "totalAmount": 1234.56,
  "description": "descripcion adicional si hay",
  "category": "materiales|herramientas|transporte|mano de obra|comida|otros",
  "projectReference": "nombre o tag del proyecto si se menciona en el audio"
}%s

Usa "payment" si el cliente entrego plata, "provider_expense" si el gasto lo pago el proveedor de su bolsillo, "expense" en cualquier otro caso.
Si el audio menciona un proyecto, obra, o lugar que coincida con alguno de los proyectos activos, incluilo en projectReference.
Si no podes extraer algun campo, usa null. Solo responde con el JSON.`

// TranscribeExpense transcribes and classifies a voice note. The account's
// active projects are passed so the model can ground projectReference.
func (g *Gemini) TranscribeExpense(ctx context.Context, audio []byte, mimeType string, projects []domain.Project) (*Transcription, error) {
	var projectList string
	if len(projects) > 0 {
		var b strings.Builder
		b.WriteString("\n\nProyectos activos del usuario (nombre - tag):\n")
		for _, p := range projects {
			fmt.Fprintf(&b, "- %s (#%s)\n", p.Name, p.Tag)
		}
		projectList = b.String()
	}

	prompt := fmt.Sprintf(transcribePrompt, projectList)
	raw, err := g.generate(ctx, prompt, audio, mimeType, 500)
	if err != nil {
		return nil, fmt.Errorf("TranscribeExpense: %w", err)
	}

	var tr Transcription
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &tr); err != nil {
		return nil, nil
	}
	return &tr, nil
}

const categorizePrompt = `Clasifica el siguiente gasto de obra/refaccion de departamento en una de estas categorias:
- materiales (clavos, tornillos, cemento, pintura, cables, canos, etc.)
- herramientas (taladro, sierra, amoladora, etc.)
- transporte (viaje, flete, envio, uber, etc.)
- mano de obra (oficial, ayudante, electricista, plomero, etc.)
- comida (almuerzo, merienda, agua, bebida para los obreros)
- otros (cualquier cosa que no entre en las anteriores)

Gasto: %q%s

Responde SOLO con el nombre de la categoria en minusculas, sin texto adicional.`

// Categorize classifies a title/description pair into the fixed category
// set. Falls back to "otros" on any model failure.
func (g *Gemini) Categorize(ctx context.Context, title, description string) domain.Category {
	var desc string
	if description != "" {
		desc = fmt.Sprintf("\nDescripcion: %q", description)
	}

	prompt := fmt.Sprintf(categorizePrompt, title, desc)
	raw, err := g.generate(ctx, prompt, nil, "", 50)
	if err != nil {
		return domain.CategoryOther
	}
	return domain.MatchCategory(raw)
}

func (g *Gemini) generate(ctx context.Context, prompt string, media []byte, mimeType string, maxTokens int32) (string, error) {
	parts := []*genai.Part{{Text: prompt}}
	if media != nil {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				MIMEType: mimeType,
				Data:     media,
			},
		})
	}

	contents := []*genai.Content{{Role: "user", Parts: parts}}
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: maxTokens,
		Temperature:     genai.Ptr[float32](0.3),
	}

	resp, err := g.client.Models.GenerateContent(ctx, modelName, contents, config)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return text, nil
}

// cleanModelJSON strips Markdown code fences the model sometimes wraps its
// JSON in despite instructions.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
