package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/gasto-obra/backend/internal/domain"
	"github.com/gasto-obra/backend/internal/parser"
	"github.com/gasto-obra/backend/internal/pending"
)

// User-facing reply texts. The bot speaks Argentine Spanish, same as its
// users.
const (
	msgNotLinked = "Este numero no esta vinculado. Envia VINCULAR <codigo> para vincular tu cuenta."

	msgNotLinkedShort = "Este numero no esta vinculado a ninguna cuenta."

	msgUnparseable = "No pude entender el mensaje.\n\n*Formato:*\n`$<monto> <titulo> #<tag>`\n\n" +
		"*Ejemplo:*\n`$500 Clavos #flores3b`\n\nEscribi AYUDA para mas info."

	msgExpenseMissingTag = "Falta el tag del proyecto.\n\n*Formato:*\n`$500 Clavos #flores3b`\n\nEnvia PROYECTOS para ver tus tags."

	msgLinkFormat        = "Formato incorrecto. Usa: VINCULAR <codigo>\n\nEjemplo: VINCULAR ABC123"
	msgLinkCodeNotFound  = "Codigo no encontrado o expirado. Genera un nuevo codigo desde la app."
	msgLinkCodeExpired   = "El codigo ha expirado. Genera un nuevo codigo desde la app."
	msgLinkError         = "Error al vincular la cuenta. Intenta nuevamente."
	msgLinked            = "Cuenta vinculada!\n\nAhora podes registrar gastos de obra:\n\n`$500 Clavos y tornillos #flores3b`\n`$1200 Viaje ferreteria #flores3b`\n\nEscribi AYUDA para mas info."
	msgUnlinked          = "Cuenta desvinculada exitosamente. Ya no se registraran gastos desde este numero."
	msgUnlinkError       = "Error al desvincular la cuenta. Intenta nuevamente."
	msgNoActiveProjects  = "No tenes proyectos activos.\n\nCrea uno desde la app web."
	msgSummaryFormat     = "Formato: RESUMEN #tag\n\nEjemplo: RESUMEN #flores3b"
	msgPaymentFormat     = "Formato: PAGO $5000 #tag\n\nEjemplo: PAGO $5000 #flores3b"
	msgPaymentMissingTag = "Falta el tag del proyecto.\n\nFormato: PAGO $5000 #flores3b"
	msgSelfFormat        = "Formato: PROPIO $500 Titulo #tag\n\nEjemplo: PROPIO $500 Tornillos #flores3b"
	msgSelfMissingTag    = "Falta el tag del proyecto.\n\nFormato: PROPIO $500 Titulo #flores3b"
	msgInvalidAmount     = "Monto invalido."

	msgImageNeedsTag = "Inclui el tag del proyecto en el caption de la imagen.\n\nEjemplo: foto + caption \"#flores3b\""

	msgProcessingImage   = "Procesando imagen..."
	msgProcessingAudio   = "Procesando audio..."
	msgImageUnavailable  = "El procesamiento de imagenes no esta disponible."
	msgAudioUnavailable  = "El procesamiento de audio no esta disponible."
	msgImageDownloadFail = "Error al descargar la imagen. Intenta nuevamente."
	msgAudioDownloadFail = "Error al descargar el audio. Intenta nuevamente."
	msgReceiptUnreadable = "No pude leer el ticket. Intenta con una foto mas clara o registra el gasto manualmente."
	msgAudioUnreadable   = "No pude entender el audio. Intenta nuevamente o registra el gasto por texto."

	msgCancelled  = "Gasto cancelado."
	msgSaveError  = "Error al registrar el gasto. Intenta nuevamente."
	msgRetryError = "Ocurrio un error. Intenta nuevamente."

	msgHelp = "*Gasto Obra - Ayuda*\n\n" +
		"*Formato:*\n`$<monto> <titulo> #<tag>`\n\n" +
		"*Opcionales:*\n`d:<descripcion>` - Detalle\n`c:<categoria>` - Categoria manual\n\n" +
		"*Ejemplos:*\n`$500 Clavos #flores3b`\n`$1200 Viaje ferreteria #flores3b d:Fui a Easy`\n`$3000 Ayudante #flores3b c:mano de obra`\n\n" +
		"*Tambien podes enviar:*\n- Foto de ticket + caption con #tag\n- Audio describiendo el gasto + caption con #tag\n\n" +
		"*Pagos y gastos propios:*\n`PAGO $5000 #flores3b` - Registrar pago del cliente\n`PROPIO $500 Tornillos #flores3b` - Registrar gasto propio\n\n" +
		"*Categorias:*\nmateriales, herramientas, transporte, mano de obra, comida, otros\n\n" +
		"*Comandos:*\nPROYECTOS - Ver tus proyectos activos\nRESUMEN #tag - Resumen de un proyecto\nPAGO $monto #tag - Registrar pago del cliente\nPROPIO $monto titulo #tag - Registrar gasto propio\nAYUDA - Ver este mensaje"
)

// notLinkedExpenseMessage is the onboarding reply for an expense from an
// unlinked number, pointing at the web app where link codes are generated.
func notLinkedExpenseMessage(appURL string) string {
	return fmt.Sprintf("Este numero no esta vinculado a ninguna cuenta.\n\n"+
		"Para vincular:\n1. Ingresa a %s\n2. Ve a Configuracion > WhatsApp\n3. Genera un codigo\n4. Envialo: VINCULAR <codigo>", appURL)
}

func msgUnknownTag(tag string) string {
	return fmt.Sprintf("No se encontro el proyecto con tag #%s.\n\nEnvia PROYECTOS para ver tus proyectos activos.", tag)
}

// confirmationPrompt summarizes the draft and asks for a yes/no.
func confirmationPrompt(d *domain.Draft) string {
	var desc string
	if d.Description != "" {
		desc = fmt.Sprintf("_%s_\n", d.Description)
	}
	return fmt.Sprintf("Entendi: %s - %s\n%s - #%s\n%s\nResponde *si* para confirmar o *no* para cancelar.",
		parser.FormatAmount(d.Amount), d.Title,
		parser.CapitalizeFirst(string(d.Category)), d.ProjectTag, desc)
}

// selectionPrompt asks the user to pick a project for an understood draft.
func selectionPrompt(d *domain.Draft, projects []domain.Project) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Entendi el gasto:\n*%s* - %s\n\n", d.Title, parser.FormatAmount(d.Amount))
	b.WriteString("A que proyecto corresponde? Responde con el *#tag*:\n\n")
	for _, p := range projects {
		fmt.Fprintf(&b, "*%s* → #%s\n", p.Name, p.Tag)
	}
	b.WriteString("\n_Tenes 10 minutos para responder._")
	return b.String()
}

func committedMessage(e *pending.Entry) string {
	var label string
	switch e.Draft.Type {
	case domain.TypePayment:
		label = "Pago registrado"
	case domain.TypeSelfExpense:
		label = "Gasto propio registrado"
	default:
		label = "Gasto registrado"
	}

	var desc string
	if e.Draft.Description != "" {
		desc = fmt.Sprintf("\n_%s_", e.Draft.Description)
	}
	return fmt.Sprintf("%s!\n\n*%s*\n%s\n#%s - %s%s",
		label, e.Draft.Title, parser.FormatAmount(e.Draft.Amount),
		e.Draft.ProjectTag, parser.CapitalizeFirst(string(e.Draft.Category)), desc)
}

func clientNotice(transactionType domain.TransactionType, amount decimal.Decimal, projectName string) string {
	label := "gasto"
	if transactionType == domain.TypePayment {
		label = "pago"
	}
	return fmt.Sprintf("El proveedor registro un %s de %s en *%s*.",
		label, parser.FormatAmount(amount), projectName)
}

func msgTranscriptionNoAmount(transcription string) string {
	return fmt.Sprintf("Transcripcion: %q\n\nNo pude determinar el monto. Registra el gasto manualmente.", transcription)
}

// projectsMessage lists active projects with their running totals.
func projectsMessage(projects []domain.Project, totals map[string]decimal.Decimal) string {
	var b strings.Builder
	b.WriteString("*Tus proyectos activos:*\n\n")
	for _, p := range projects {
		fmt.Fprintf(&b, "*%s*\nTag: #%s\nTotal: %s\n\n",
			p.Name, p.Tag, parser.FormatAmount(totals[p.Tag]))
	}
	return strings.TrimSpace(b.String())
}

// summaryMessage builds the RESUMEN reply: totals by category, payments and
// balance when present, self-expenses when present.
func summaryMessage(project *domain.Project, entries []domain.LedgerEntry) string {
	if len(entries) == 0 {
		return fmt.Sprintf("*%s*\n\nNo hay gastos registrados en este proyecto.", project.Name)
	}

	var expenseCount int
	totalExpenses := decimal.Zero
	totalPayments := decimal.Zero
	totalSelf := decimal.Zero
	byCategory := make(map[domain.Category]decimal.Decimal)

	for _, e := range entries {
		switch e.Type {
		case domain.TypePayment:
			totalPayments = totalPayments.Add(e.Amount)
		case domain.TypeSelfExpense:
			totalSelf = totalSelf.Add(e.Amount)
		default:
			expenseCount++
			totalExpenses = totalExpenses.Add(e.Amount)
			cat := e.Category
			if cat == "" {
				cat = domain.CategoryOther
			}
			byCategory[cat] = byCategory[cat].Add(e.Amount)
		}
	}

	categories := make([]domain.Category, 0, len(byCategory))
	for cat := range byCategory {
		categories = append(categories, cat)
	}
	sort.Slice(categories, func(i, j int) bool {
		return byCategory[categories[i]].GreaterThan(byCategory[categories[j]])
	})

	var b strings.Builder
	fmt.Fprintf(&b, "*Resumen - %s*\nTag: #%s\n", project.Name, project.Tag)
	if project.ClientName != "" {
		fmt.Fprintf(&b, "Cliente: %s\n", project.ClientName)
	}
	fmt.Fprintf(&b, "\n*%d gastos registrados*\n\n*Por categoria:*\n", expenseCount)
	for _, cat := range categories {
		fmt.Fprintf(&b, "  %s: %s\n", parser.CapitalizeFirst(string(cat)), parser.FormatAmount(byCategory[cat]))
	}
	fmt.Fprintf(&b, "\n*Total gastos:* %s", parser.FormatAmount(totalExpenses))

	if totalPayments.IsPositive() {
		fmt.Fprintf(&b, "\n*Pagos recibidos:* %s", parser.FormatAmount(totalPayments))
		fmt.Fprintf(&b, "\n*Saldo:* %s", parser.FormatAmount(totalPayments.Sub(totalExpenses)))
	}
	if totalSelf.IsPositive() {
		fmt.Fprintf(&b, "\n*Gastos propios:* %s", parser.FormatAmount(totalSelf))
	}
	return b.String()
}
